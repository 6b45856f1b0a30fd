package usecase

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/wishlist/backend/internal/logger"
)

const maxQueryLength = 100

var (
	// Matches pack/count patterns like "2 pack", "pack of 6", "6-pack", "24 count"
	packCountPattern = regexp.MustCompile(`(?i)\b\d+[-\s]*(?:pack|pk|count|ct)\b|\bpack\s*of\s*\d+\b`)

	// Matches shipping and promo phrases copied from listings
	promoPhrasePattern = regexp.MustCompile(`(?i)\b(?:free (?:uk )?(?:delivery|shipping)|uk stock|fast dispatch|next day delivery|brand new|in stock|limited edition)\b`)

	// Bracketed trailers such as "(Renewed)" or "[Amazon Exclusive]"
	bracketPattern = regexp.MustCompile(`\s*[\[(][^\])]*[\])]`)

	orphanPunctuationPattern = regexp.MustCompile(`\s+[,\-;:|/]+(?:\s+|$)|^[,\-;:|/\s]+|[,\-;:|/\s]+$`)

	multiSpacePattern = regexp.MustCompile(`\s+`)
)

// queryNoiseWords are marketing terms that narrow shopping searches to nothing
var queryNoiseWords = map[string]bool{
	"new":         true,
	"improved":    true,
	"premium":     true,
	"genuine":     true,
	"original":    true,
	"official":    true,
	"authentic":   true,
	"quality":     true,
	"best":        true,
	"great":       true,
	"amazing":     true,
	"perfect":     true,
	"ideal":       true,
	"gift":        true,
	"gifts":       true,
	"sale":        true,
	"offer":       true,
	"deal":        true,
	"bargain":     true,
	"cheap":       true,
	"bestseller":  true,
	"bestselling": true,
}

// QueryBuilder turns wish-list item text into a price search query
type QueryBuilder struct {
	log logger.Logger
}

// NewQueryBuilder creates a new query builder
func NewQueryBuilder(log logger.Logger) *QueryBuilder {
	return &QueryBuilder{log: log}
}

// Build returns the search query for an item. An explicit query wins over the
// title and description. The result is bounded to 100 characters.
func (b *QueryBuilder) Build(explicitQuery, title, description string) string {
	if q := strings.TrimSpace(explicitQuery); q != "" {
		return truncateQuery(multiSpacePattern.ReplaceAllString(q, " "))
	}

	original := strings.TrimSpace(title + " " + description)
	if original == "" {
		return ""
	}

	cleaned := bracketPattern.ReplaceAllString(original, " ")
	cleaned = promoPhrasePattern.ReplaceAllString(cleaned, " ")
	cleaned = packCountPattern.ReplaceAllString(cleaned, " ")
	cleaned = removeNoiseWords(cleaned)
	cleaned = multiSpacePattern.ReplaceAllString(cleaned, " ")
	cleaned = orphanPunctuationPattern.ReplaceAllString(cleaned, " ")
	cleaned = strings.TrimSpace(multiSpacePattern.ReplaceAllString(cleaned, " "))

	// everything was noise; searching the raw text beats searching nothing
	if cleaned == "" {
		cleaned = multiSpacePattern.ReplaceAllString(original, " ")
	}

	cleaned = truncateQuery(cleaned)

	b.log.Debug("built search query",
		logger.String("input", original),
		logger.String("query", cleaned))

	return cleaned
}

// removeNoiseWords drops marketing terms, keeping the original casing of other words
func removeNoiseWords(s string) string {
	words := strings.Fields(s)
	kept := make([]string, 0, len(words))

	for _, word := range words {
		cleanWord := strings.ToLower(strings.Trim(word, ",.!?;:-'\""))
		if !queryNoiseWords[cleanWord] {
			kept = append(kept, word)
		}
	}

	return strings.Join(kept, " ")
}

// truncateQuery cuts to maxQueryLength characters, preferring a word boundary
func truncateQuery(s string) string {
	if utf8.RuneCountInString(s) <= maxQueryLength {
		return s
	}

	cut := string([]rune(s)[:maxQueryLength])
	if lastSpace := strings.LastIndex(cut, " "); lastSpace > maxQueryLength/2 {
		cut = cut[:lastSpace]
	}
	return strings.TrimSpace(cut)
}
