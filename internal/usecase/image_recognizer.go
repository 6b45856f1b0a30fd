package usecase

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/metrics"
)

const (
	fallbackNameLabels  = 3
	descriptionLabels   = 5
	maxRecognizedLabels = 10
)

var (
	dataURIPrefix = regexp.MustCompile(`^data:([\w.+-]+/[\w.+-]+)?[^,]*,`)

	// "Product: ...", "**Product Name:** ...", "- Features: ..."
	productMarker     = regexp.MustCompile(`(?i)^(?:product(?:\s+name)?|name)\s*:\s*(.*)$`)
	descriptionMarker = regexp.MustCompile(`(?i)^description\s*:\s*(.*)$`)
	featuresMarker    = regexp.MustCompile(`(?i)^(?:key\s+)?features\s*:\s*(.*)$`)
)

var supportedImageTypes = map[string]string{
	"image/png":  "image/png",
	"image/jpeg": "image/jpeg",
	"image/jpg":  "image/jpeg",
	"image/webp": "image/webp",
	"image/gif":  "image/gif",
}

// ImageRecognizer identifies the product in an uploaded photo. The vision-language
// model is tried first; the label detection API is the fallback.
type ImageRecognizer struct {
	describer domain.ProductDescriber
	detector  domain.LabelDetector
	log       logger.Logger
}

// NewImageRecognizer creates a new image recognizer
func NewImageRecognizer(describer domain.ProductDescriber, detector domain.LabelDetector, log logger.Logger) *ImageRecognizer {
	return &ImageRecognizer{
		describer: describer,
		detector:  detector,
		log:       log,
	}
}

// AnalyzeImage never fails: every problem is reported through ErrorReason so that
// item creation can carry on without a recognized product.
func (r *ImageRecognizer) AnalyzeImage(ctx context.Context, imageBase64 string, cfg domain.VisionConfig) domain.ImageRecognitionResult {
	img, err := NormalizeImage(imageBase64)
	if err != nil {
		method := domain.MethodFallback
		if cfg.PrimaryConfigured() {
			method = domain.MethodPrimary
		}
		metrics.ObserveExtraction("image_recognition", metrics.OutcomeRejected)
		return failedRecognition(err, method)
	}

	if cfg.PrimaryConfigured() {
		result := r.analyzePrimary(ctx, cfg, img)
		if result.Succeeded() {
			metrics.ObserveExtraction("image_recognition", metrics.OutcomeSuccess)
			return result
		}
		r.log.Warn("primary image recognition failed, trying fallback",
			logger.String("reason", string(result.ErrorReason)),
			logger.String("detail", result.ErrorDetail))
	}

	result := r.analyzeFallback(ctx, cfg, img)
	switch {
	case result.Succeeded():
		metrics.ObserveExtraction("image_recognition", metrics.OutcomeSuccess)
	case result.ErrorReason == domain.RecognitionNotConfigured:
		metrics.ObserveExtraction("image_recognition", metrics.OutcomeSkipped)
	default:
		metrics.ObserveExtraction("image_recognition", metrics.OutcomeError)
	}
	return result
}

func (r *ImageRecognizer) analyzePrimary(ctx context.Context, cfg domain.VisionConfig, img domain.ImageInput) domain.ImageRecognitionResult {
	text, err := r.describer.DescribeProduct(ctx, cfg, img)
	if err != nil {
		return failedRecognition(err, domain.MethodPrimary)
	}

	name, description, features := ParseProductDescription(text)
	if isPlaceholderName(name) {
		return failedRecognition(domain.ErrNoResults, domain.MethodPrimary)
	}

	return domain.ImageRecognitionResult{
		ProductName: name,
		Description: description,
		Labels:      append([]string{}, features...),
		MethodUsed:  domain.MethodPrimary,
	}
}

func (r *ImageRecognizer) analyzeFallback(ctx context.Context, cfg domain.VisionConfig, img domain.ImageInput) domain.ImageRecognitionResult {
	if !cfg.FallbackConfigured() {
		return failedRecognition(domain.ErrNotConfigured, domain.MethodFallback)
	}

	annotations, err := r.detector.DetectLabels(ctx, cfg, img)
	if err != nil {
		r.log.Warn("label detection failed", logger.Err(err))
		return failedRecognition(err, domain.MethodFallback)
	}

	return RecognitionFromAnnotations(annotations)
}

// RecognitionFromAnnotations synthesizes a product from label detection output.
// The name comes from on-image text, else object names, else the top labels.
func RecognitionFromAnnotations(a *domain.LabelAnnotations) domain.ImageRecognitionResult {
	if a == nil {
		return failedRecognition(domain.ErrNoResults, domain.MethodFallback)
	}

	labels := nonEmpty(a.Labels)

	name := firstLine(a.Text)
	if name == "" {
		name = strings.Join(dedupe(nonEmpty(a.Objects)), " ")
	}
	if name == "" {
		name = strings.Join(head(labels, fallbackNameLabels), " ")
	}
	if name == "" {
		return failedRecognition(domain.ErrNoResults, domain.MethodFallback)
	}

	return domain.ImageRecognitionResult{
		ProductName: name,
		Description: strings.Join(head(labels, descriptionLabels), ", "),
		Labels:      head(labels, maxRecognizedLabels),
		MethodUsed:  domain.MethodFallback,
	}
}

// ParseProductDescription reads the "Product: / Description: / Features:" reply of the
// vision model. Free-form replies degrade to first line = name, the rest = description.
func ParseProductDescription(text string) (name, description string, features []string) {
	var lines []string
	for _, line := range strings.Split(text, "\n") {
		line = cleanReplyLine(line)
		if line != "" {
			lines = append(lines, line)
		}
	}
	if len(lines) == 0 {
		return "", "", nil
	}

	structured := false
	var descParts []string
	section := ""

	for _, line := range lines {
		switch {
		case productMarker.MatchString(line):
			structured = true
			section = "product"
			name = strings.TrimSpace(productMarker.FindStringSubmatch(line)[1])
		case descriptionMarker.MatchString(line):
			structured = true
			section = "description"
			if rest := strings.TrimSpace(descriptionMarker.FindStringSubmatch(line)[1]); rest != "" {
				descParts = append(descParts, rest)
			}
		case featuresMarker.MatchString(line):
			structured = true
			section = "features"
			features = append(features, splitFeatures(featuresMarker.FindStringSubmatch(line)[1])...)
		case section == "product" && name == "":
			name = line
		case section == "description":
			descParts = append(descParts, line)
		case section == "features":
			features = append(features, splitFeatures(line)...)
		}
	}

	if !structured {
		return lines[0], strings.Join(lines[1:], " "), nil
	}
	if name == "" && len(descParts) > 0 {
		name, descParts = descParts[0], descParts[1:]
	}

	return name, strings.Join(descParts, " "), head(features, maxRecognizedLabels)
}

// NormalizeImage strips a data URI prefix and whitespace, checks the payload decodes
// and works out its MIME type (JPEG when it cannot be told).
func NormalizeImage(raw string) (domain.ImageInput, error) {
	payload := strings.TrimSpace(raw)
	mimeType := ""

	if m := dataURIPrefix.FindStringSubmatch(payload); m != nil {
		mimeType = supportedImageTypes[strings.ToLower(m[1])]
		payload = payload[len(m[0]):]
	}
	payload = strings.Join(strings.Fields(payload), "")
	if payload == "" {
		return domain.ImageInput{}, fmt.Errorf("%w: empty payload", domain.ErrInvalidImage)
	}

	decoded, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		if decoded, err = base64.RawStdEncoding.DecodeString(payload); err != nil {
			return domain.ImageInput{}, fmt.Errorf("%w: %v", domain.ErrInvalidImage, err)
		}
		payload = base64.StdEncoding.EncodeToString(decoded)
	}

	if mimeType == "" {
		mimeType = supportedImageTypes[http.DetectContentType(decoded)]
	}
	if mimeType == "" {
		mimeType = "image/jpeg"
	}

	return domain.ImageInput{Base64: payload, MIMEType: mimeType}, nil
}

// isPlaceholderName reports whether the model answered without naming a product,
// e.g. "Product: unknown" as the prompt asks it to.
func isPlaceholderName(name string) bool {
	switch strings.ToLower(strings.TrimRight(strings.TrimSpace(name), ".!?;:")) {
	case "", "unknown", "none", "n/a", "na", "not applicable", "no product":
		return true
	default:
		return false
	}
}

func failedRecognition(err error, method domain.RecognitionMethod) domain.ImageRecognitionResult {
	return domain.ImageRecognitionResult{
		Labels:      []string{},
		ErrorReason: recognitionReason(err),
		ErrorDetail: providerDetail(err),
		MethodUsed:  method,
	}
}

func recognitionReason(err error) domain.RecognitionErrorReason {
	switch {
	case errors.Is(err, domain.ErrNotConfigured):
		return domain.RecognitionNotConfigured
	case errors.Is(err, domain.ErrInvalidImage):
		return domain.RecognitionInvalidImage
	case errors.Is(err, domain.ErrNoResults):
		return domain.RecognitionNoResults
	default:
		return domain.RecognitionProviderError
	}
}

// providerDetail is the provider's own message with our sentinel prefix removed
func providerDetail(err error) string {
	msg := err.Error()
	for _, sentinel := range []error{domain.ErrProviderError, domain.ErrTransportFailure, domain.ErrInvalidImage} {
		if rest, ok := strings.CutPrefix(msg, sentinel.Error()+": "); ok {
			return rest
		}
	}
	return msg
}

func cleanReplyLine(line string) string {
	line = strings.ReplaceAll(line, "**", "")
	line = strings.TrimSpace(line)
	line = strings.TrimLeft(line, "-*•# ")
	return strings.TrimSpace(line)
}

func splitFeatures(text string) []string {
	var out []string
	for _, part := range strings.Split(text, ",") {
		if part = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(part), ".")); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}

func nonEmpty(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func dedupe(values []string) []string {
	seen := make(map[string]bool, len(values))
	out := make([]string, 0, len(values))
	for _, v := range values {
		key := strings.ToLower(v)
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, v)
	}
	return out
}

func head(values []string, n int) []string {
	if len(values) > n {
		return values[:n]
	}
	return values
}
