package usecase

import (
	"regexp"
	"strings"
)

var punctuationRegex = regexp.MustCompile(`[^\p{L}\p{N}\s]`)

// Scoring weights and bonuses
const (
	queryCoverageWeight   = 0.60 // share of query tokens found in the listing
	listingCoverageWeight = 0.20 // share of listing tokens found in the query
	jaccardWeight         = 0.20
	substringMatchBonus   = 10.0
	fuzzyWeightFactor     = 0.8 // fuzzy token hits count 80% of an exact hit
)

// listingStopWords are words that say nothing about which product a listing is for
var listingStopWords = map[string]bool{
	"a": true, "an": true, "the": true, "and": true, "or": true,
	"of": true, "in": true, "on": true, "at": true, "to": true,
	"for": true, "with": true, "by": true, "from": true, "is": true,
	"it": true, "as": true, "be": true, "was": true, "are": true,
	// Retail noise
	"buy": true, "price": true, "prices": true, "sale": true, "shop": true,
	"online": true, "cheap": true, "cheapest": true, "deal": true, "deals": true,
	"offer": true, "offers": true, "uk": true, "delivery": true, "free": true,
	"new": true, "official": true, "store": true, "compare": true, "best": true,
	"amazon": true, "ebay": true, "argos": true, "currys": true,
}

// MatchConfig holds configuration for the listing matcher
type MatchConfig struct {
	EnableFuzzyMatching bool
	FuzzyEditDistance   int
}

// ListingMatcher scores how well a search listing title matches the product being searched for
type ListingMatcher struct {
	enableFuzzyMatching bool
	fuzzyEditDistance   int
}

// NewListingMatcher creates a listing matcher
func NewListingMatcher(config MatchConfig) *ListingMatcher {
	fuzzyDist := config.FuzzyEditDistance
	if fuzzyDist <= 0 {
		fuzzyDist = 1
	}

	return &ListingMatcher{
		enableFuzzyMatching: config.EnableFuzzyMatching,
		fuzzyEditDistance:   fuzzyDist,
	}
}

// Score returns a 0-100 relevance score of listingTitle for query and the query tokens
// that were matched.
func (m *ListingMatcher) Score(query, listingTitle string) (float64, []string) {
	queryTokens := uniqueTokens(tokenize(query))
	listingTokens := tokenize(listingTitle)

	if len(queryTokens) == 0 || len(listingTokens) == 0 {
		return 0, nil
	}

	queryHits, matchedTokens := m.weightedHits(queryTokens, listingTokens)
	queryCoverage := queryHits / float64(len(queryTokens))

	listingMatched, _ := findIntersection(listingTokens, queryTokens)
	listingCoverage := float64(listingMatched) / float64(len(listingTokens))

	exact, _ := findIntersection(queryTokens, listingTokens)
	jaccard := float64(exact) / float64(findUnion(queryTokens, listingTokens))

	score := (queryCoverage*queryCoverageWeight + listingCoverage*listingCoverageWeight + jaccard*jaccardWeight) * 100

	queryLower := strings.Join(queryTokens, " ")
	listingLower := strings.Join(listingTokens, " ")
	if len(queryLower) > 3 && strings.Contains(listingLower, queryLower) {
		score += substringMatchBonus
	}

	if score > 100 {
		score = 100
	}

	return score, matchedTokens
}

// weightedHits counts query tokens present in the listing, giving partial credit for
// near-miss spellings when fuzzy matching is on.
func (m *ListingMatcher) weightedHits(queryTokens, listingTokens []string) (float64, []string) {
	listingSet := make(map[string]bool, len(listingTokens))
	for _, t := range listingTokens {
		listingSet[t] = true
	}

	var hits float64
	var matched []string

	for _, q := range queryTokens {
		if listingSet[q] {
			hits++
			matched = append(matched, q)
			continue
		}
		if !m.enableFuzzyMatching {
			continue
		}
		for _, l := range listingTokens {
			if fuzzyTokenMatch(q, l, m.fuzzyEditDistance) {
				hits += fuzzyWeightFactor
				matched = append(matched, q)
				break
			}
		}
	}

	return hits, matched
}

func uniqueTokens(tokens []string) []string {
	seen := make(map[string]bool, len(tokens))
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if !seen[t] {
			seen[t] = true
			out = append(out, t)
		}
	}
	return out
}

// tokenize splits a string into normalized lowercase tokens.
// Removes punctuation, stop words and single characters. Model numbers are kept.
func tokenize(s string) []string {
	cleaned := punctuationRegex.ReplaceAllString(strings.ToLower(s), " ")

	var tokens []string
	for _, word := range strings.Fields(cleaned) {
		if len(word) <= 1 {
			continue
		}
		if listingStopWords[word] {
			continue
		}
		tokens = append(tokens, word)
	}

	return tokens
}

// fuzzyTokenMatch checks if two tokens are similar within the edit distance threshold
func fuzzyTokenMatch(token1, token2 string, threshold int) bool {
	if token1 == token2 {
		return true
	}

	// Short tokens and anything with digits (model numbers) must match exactly
	if len(token1) < 4 || len(token2) < 4 || hasDigit(token1) || hasDigit(token2) {
		return false
	}

	lenDiff := len(token1) - len(token2)
	if lenDiff < 0 {
		lenDiff = -lenDiff
	}
	if lenDiff > threshold {
		return false
	}

	return levenshteinDistance(token1, token2) <= threshold
}

func hasDigit(s string) bool {
	for _, c := range s {
		if c >= '0' && c <= '9' {
			return true
		}
	}
	return false
}

// levenshteinDistance calculates the edit distance between two strings
func levenshteinDistance(s1, s2 string) int {
	r1 := []rune(s1)
	r2 := []rune(s2)
	m := len(r1)
	n := len(r2)

	if m == 0 {
		return n
	}
	if n == 0 {
		return m
	}

	// two rows instead of the full matrix
	prev := make([]int, n+1)
	curr := make([]int, n+1)

	for j := 0; j <= n; j++ {
		prev[j] = j
	}

	for i := 1; i <= m; i++ {
		curr[0] = i
		for j := 1; j <= n; j++ {
			cost := 0
			if r1[i-1] != r2[j-1] {
				cost = 1
			}
			curr[j] = min(
				prev[j]+1,      // deletion
				curr[j-1]+1,    // insertion
				prev[j-1]+cost, // substitution
			)
		}
		prev, curr = curr, prev
	}

	return prev[n]
}

// findIntersection returns the count of common tokens and the list of matched tokens
func findIntersection(tokens1, tokens2 []string) (int, []string) {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}

	var matched []string
	seen := make(map[string]bool)
	for _, t := range tokens2 {
		if set[t] && !seen[t] {
			matched = append(matched, t)
			seen[t] = true
		}
	}

	return len(matched), matched
}

// findUnion returns the count of unique tokens across both sets
func findUnion(tokens1, tokens2 []string) int {
	set := make(map[string]bool)
	for _, t := range tokens1 {
		set[t] = true
	}
	for _, t := range tokens2 {
		set[t] = true
	}
	return len(set)
}
