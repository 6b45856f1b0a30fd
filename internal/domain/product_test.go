package domain

import (
	"encoding/json"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsPlausiblePrice(t *testing.T) {
	tests := []struct {
		amount float64
		want   bool
	}{
		{0, false},
		{0.009, false},
		{0.01, true},
		{39.99, true},
		{100000, true},
		{100000.01, false},
		{999999, false},
		{-5, false},
		{math.NaN(), false},
		{math.Inf(1), false},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, IsPlausiblePrice(tt.amount), "amount %v", tt.amount)
	}
}

func TestRoundPrice(t *testing.T) {
	assert.Equal(t, 19.99, RoundPrice(19.989999))
	assert.Equal(t, 1299.5, RoundPrice(1299.499999))
}

func TestPriceQuoteValid(t *testing.T) {
	assert.True(t, PriceQuote{Price: 12.5}.Valid())
	assert.False(t, PriceQuote{Price: 999999}.Valid())
}

func TestImageRecognitionResultSucceeded(t *testing.T) {
	assert.True(t, ImageRecognitionResult{ProductName: "Kettle"}.Succeeded())
	assert.False(t, ImageRecognitionResult{ProductName: "Kettle", ErrorReason: RecognitionProviderError}.Succeeded())
	assert.False(t, ImageRecognitionResult{}.Succeeded())
}

func TestFetchError(t *testing.T) {
	err := error(&FetchError{URL: "https://shop.example", StatusCode: 503, Err: ErrUpstreamStatus})

	assert.True(t, errors.Is(err, ErrUpstreamStatus))
	assert.Contains(t, err.Error(), "status 503")

	var fetchErr *FetchError
	assert.True(t, errors.As(err, &fetchErr))
	assert.Equal(t, 503, fetchErr.StatusCode)

	transport := &FetchError{URL: "https://shop.example", Err: ErrTransportFailure}
	assert.NotContains(t, transport.Error(), "status")
}

func TestExtractedTitleJSON(t *testing.T) {
	tests := []struct {
		name  string
		title ExtractedTitle
		want  string
	}{
		{"title only", ExtractedTitle{Title: "Acme Widget 3000"}, `{"title":"Acme Widget 3000","description":null}`},
		{"both", ExtractedTitle{Title: "Kettle", Description: "1.7L"}, `{"title":"Kettle","description":"1.7L"}`},
		{"failed", ExtractedTitle{ErrorReason: TitleExtractionFailed}, `{"title":null,"description":null,"errorReason":"extraction_failed"}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.title)
			assert.NoError(t, err)
			assert.JSONEq(t, tt.want, string(data))
		})
	}
}
