package domain

import (
	"errors"
	"fmt"
)

var (
	// ErrNotConfigured is returned when no credentials exist for a required provider
	ErrNotConfigured = errors.New("provider not configured")

	// ErrProviderError is returned when a third-party API answers with a non-2xx status
	ErrProviderError = errors.New("provider returned an error")

	// ErrProviderUnavailable is returned when every request to the configured providers failed
	ErrProviderUnavailable = errors.New("price search provider unavailable")

	// ErrNoResults is returned when a provider answered successfully with an empty payload
	ErrNoResults = errors.New("provider returned no results")

	// ErrTransportFailure is returned for network, DNS and timeout failures
	ErrTransportFailure = errors.New("transport failure")

	// ErrUpstreamStatus is returned when a fetched page answers with a non-2xx status
	ErrUpstreamStatus = errors.New("upstream returned non-2xx status")

	// ErrBlocked is returned when a fetched page is a bot wall or CAPTCHA
	ErrBlocked = errors.New("page blocked by bot protection")

	// ErrInvalidURL is returned when a URL cannot be parsed or is not http(s)
	ErrInvalidURL = errors.New("invalid URL")

	// ErrInvalidImage is returned when an image payload cannot be decoded
	ErrInvalidImage = errors.New("invalid image payload")

	// ErrInvalidRequest is returned when request parameters are invalid
	ErrInvalidRequest = errors.New("invalid request parameters")

	// ErrCacheMiss is returned when data is not found in cache
	ErrCacheMiss = errors.New("cache miss")
)

// FetchError describes a failed page fetch. StatusCode is zero for transport failures.
type FetchError struct {
	URL        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("fetch %s: %v (status %d)", e.URL, e.Err, e.StatusCode)
	}
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}
