package usecase

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/wishlist/backend/internal/domain"
)

// DefaultCurrency is used when neither the match nor the surrounding text names a currency
const DefaultCurrency = "GBP"

// amountPattern accepts grouped thousands (1,299.99) and plain amounts (1299.99)
const amountPattern = `(?P<num>\d{1,3}(?:,\d{3})+(?:\.\d{1,2})?|\d+(?:\.\d{1,2})?)`

// decimalAmountPattern is used where a bare number is too ambiguous ("from 2 stores")
const decimalAmountPattern = `(?P<num>\d{1,3}(?:,\d{3})+\.\d{2}|\d+\.\d{2})`

// pricePatterns are tried in order and every match is collected. A "cur" group, when
// present and matched, names the currency of that match.
var pricePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?P<cur>£)\s*` + amountPattern),
	regexp.MustCompile(`\b` + amountPattern + `\s*(?:(?P<cur>(?i:gbp|pounds?))\b|(?P<cur2>£))`),
	regexp.MustCompile(`(?P<cur>\$)\s*` + amountPattern),
	regexp.MustCompile(`\b` + amountPattern + `\s*(?:(?P<cur>(?i:usd|dollars?))\b|(?P<cur2>\$))`),
	regexp.MustCompile(`(?P<cur>€)\s*` + amountPattern),
	regexp.MustCompile(`\b` + amountPattern + `\s*(?:(?P<cur>(?i:eur|euros?))\b|(?P<cur2>€))`),
	regexp.MustCompile(`(?i)\b(?:price|now|was|from|only)\b[:\s]*(?:(?P<cur>[£$€])\s*` + amountPattern + `|` + strings.Replace(decimalAmountPattern, "?P<num>", "?P<num2>", 1) + `\b)`),
	regexp.MustCompile(`(?P<cur>[£$€])\s*` + amountPattern),
	regexp.MustCompile(`^\s*` + amountPattern + `\s*$`),
}

var (
	gbpWordRegex = regexp.MustCompile(`(?i)\bgbp\b|\bpounds?\b`)
	eurWordRegex = regexp.MustCompile(`(?i)\beur\b|\beuros?\b`)
	usdWordRegex = regexp.MustCompile(`(?i)\busd\b|\bdollars?\b`)
)

// ExtractPrice finds the lowest plausible price in free text such as a search snippet
// or an API price string. Returns nil when no plausible amount is present.
func ExtractPrice(text, defaultCurrency string) *domain.Price {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}

	var best *domain.Price
	inferred := ""
	inferredDone := false

	for _, re := range pricePatterns {
		for _, m := range re.FindAllStringSubmatch(text, -1) {
			numStr := firstGroup(re, m, "num", "num2")
			if numStr == "" {
				continue
			}
			amount, err := parseAmount(numStr)
			if err != nil || !domain.IsPlausiblePrice(amount) {
				continue
			}

			currency := currencyFromToken(firstGroup(re, m, "cur", "cur2"))
			if currency == "" {
				if !inferredDone {
					inferred = InferCurrency(text)
					inferredDone = true
				}
				currency = inferred
			}
			if currency == "" {
				currency = defaultCurrency
			}

			// strictly lower, so the first match wins ties
			if best == nil || amount < best.Amount {
				best = &domain.Price{Amount: domain.RoundPrice(amount), Currency: currency}
			}
		}
	}

	return best
}

// InferCurrency guesses the currency of a text from symbols and words, or returns "".
// Pounds take priority over euros, euros over dollars.
func InferCurrency(text string) string {
	switch {
	case strings.Contains(text, "£") || gbpWordRegex.MatchString(text):
		return "GBP"
	case strings.Contains(text, "€") || eurWordRegex.MatchString(text):
		return "EUR"
	case strings.Contains(text, "$") || usdWordRegex.MatchString(text):
		return "USD"
	default:
		return ""
	}
}

func parseAmount(s string) (float64, error) {
	return strconv.ParseFloat(strings.ReplaceAll(s, ",", ""), 64)
}

func currencyFromToken(token string) string {
	switch strings.ToLower(token) {
	case "£", "gbp", "pound", "pounds":
		return "GBP"
	case "€", "eur", "euro", "euros":
		return "EUR"
	case "$", "usd", "dollar", "dollars":
		return "USD"
	default:
		return ""
	}
}

// firstGroup returns the first non-empty named group among names
func firstGroup(re *regexp.Regexp, match []string, names ...string) string {
	for _, name := range names {
		if idx := re.SubexpIndex(name); idx >= 0 && idx < len(match) && match[idx] != "" {
			return match[idx]
		}
	}
	return ""
}
