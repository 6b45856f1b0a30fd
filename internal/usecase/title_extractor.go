package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/metrics"
)

const (
	minTitleLength   = 10
	maxHeadingLength = 200
)

var (
	tagRegex         = regexp.MustCompile(`<[^>]*>`)
	titleSuffixRegex = regexp.MustCompile(`(?i)\s*[-|:]\s*(?:Amazon|eBay|Argos|Currys|John Lewis|Very\.co\.uk|Boots|Tesco|Walmart|Best Buy)\b.*$`)
	titlePrefixRegex = regexp.MustCompile(`(?i)^\s*(?:Amazon(?:\.[a-z]{2,3})+|eBay)\s*:\s*`)
)

// siteClass selects the structural selectors tried before the generic rules
type siteClass int

const (
	siteGeneric siteClass = iota
	siteAmazon
	siteEbay
)

var structuralSelectors = map[siteClass][]string{
	siteAmazon: {"#productTitle", "h1[class*=product-title]", "h1[data-automation-id=title]"},
	siteEbay:   {"h1#x-item-title-label", "h1[class*=it-ttl]", "h1.x-item-title__mainTitle"},
}

// JSON-LD node types that describe the site rather than the product
var nonProductTypes = map[string]bool{
	"organization":          true,
	"website":               true,
	"webpage":               true,
	"breadcrumblist":        true,
	"searchaction":          true,
	"person":                true,
	"imageobject":           true,
	"sitenavigationelement": true,
}

func classifySite(sourceDomain string) siteClass {
	host := strings.ToLower(sourceDomain)
	switch {
	case strings.Contains(host, "amazon."):
		return siteAmazon
	case strings.Contains(host, "ebay."):
		return siteEbay
	default:
		return siteGeneric
	}
}

// ExtractTitle recovers the product title and description from raw page markup.
// sourceDomain is the page's host and only selects retailer-specific selectors.
func ExtractTitle(rawHTML, sourceDomain string) domain.ExtractedTitle {
	failed := domain.ExtractedTitle{ErrorReason: domain.TitleExtractionFailed}
	if strings.TrimSpace(rawHTML) == "" {
		return failed
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(rawHTML))
	if err != nil {
		return failed
	}

	for _, selector := range structuralSelectors[classifySite(sourceDomain)] {
		if title := normalizeText(doc.Find(selector).First().Text()); isTitleCandidate(title) {
			return withMetaDescription(doc, title)
		}
	}

	if og, ok := doc.Find(`meta[property="og:title"]`).First().Attr("content"); ok {
		if title := normalizeText(og); isTitleCandidate(title) {
			return withMetaDescription(doc, title)
		}
	}

	for _, node := range jsonLDNodes(doc) {
		title := normalizeText(stringField(node, "name"))
		if !isTitleCandidate(title) {
			title = normalizeText(stringField(node, "title"))
		}
		if !isTitleCandidate(title) {
			continue
		}
		if desc := normalizeText(stringField(node, "description")); desc != "" {
			return domain.ExtractedTitle{Title: title, Description: desc}
		}
		return withMetaDescription(doc, title)
	}

	if h1 := normalizeText(doc.Find("h1").First().Text()); isTitleCandidate(h1) && utf8.RuneCountInString(h1) < maxHeadingLength {
		return withMetaDescription(doc, h1)
	}

	if title := cleanPageTitle(normalizeText(doc.Find("title").First().Text())); isTitleCandidate(title) {
		return withMetaDescription(doc, title)
	}

	return failed
}

func isTitleCandidate(s string) bool {
	return utf8.RuneCountInString(s) > minTitleLength
}

func withMetaDescription(doc *goquery.Document, title string) domain.ExtractedTitle {
	result := domain.ExtractedTitle{Title: title}
	for _, selector := range []string{`meta[property="og:description"]`, `meta[name="description"]`} {
		if content, ok := doc.Find(selector).First().Attr("content"); ok {
			if desc := normalizeText(content); desc != "" {
				result.Description = desc
				break
			}
		}
	}
	return result
}

func cleanPageTitle(title string) string {
	title = titleSuffixRegex.ReplaceAllString(title, "")
	title = titlePrefixRegex.ReplaceAllString(title, "")
	return strings.TrimSpace(title)
}

// normalizeText strips markup, decodes entities and collapses whitespace
func normalizeText(s string) string {
	s = html.UnescapeString(s)
	s = tagRegex.ReplaceAllString(s, " ")
	return strings.Join(strings.Fields(s), " ")
}

// jsonLDNodes returns every object in the page's JSON-LD blocks, product nodes first.
// Blocks that fail to parse are skipped.
func jsonLDNodes(doc *goquery.Document) []map[string]any {
	var products, others []map[string]any

	var walk func(v any)
	walk = func(v any) {
		switch t := v.(type) {
		case []any:
			for _, item := range t {
				walk(item)
			}
		case map[string]any:
			if graph, ok := t["@graph"]; ok {
				walk(graph)
			}
			switch {
			case hasType(t, "product"), hasType(t, "productgroup"), hasType(t, "individualproduct"):
				products = append(products, t)
			case !isSiteNode(t):
				others = append(others, t)
			}
		}
	}

	doc.Find(`script[type="application/ld+json"]`).Each(func(_ int, s *goquery.Selection) {
		var v any
		if err := json.Unmarshal([]byte(strings.TrimSpace(s.Text())), &v); err != nil {
			return
		}
		walk(v)
	})

	return append(products, others...)
}

func nodeTypes(node map[string]any) []string {
	switch t := node["@type"].(type) {
	case string:
		return []string{strings.ToLower(t)}
	case []any:
		types := make([]string, 0, len(t))
		for _, v := range t {
			if s, ok := v.(string); ok {
				types = append(types, strings.ToLower(s))
			}
		}
		return types
	}
	return nil
}

func hasType(node map[string]any, want string) bool {
	for _, t := range nodeTypes(node) {
		if t == want {
			return true
		}
	}
	return false
}

func isSiteNode(node map[string]any) bool {
	for _, t := range nodeTypes(node) {
		if nonProductTypes[t] {
			return true
		}
	}
	return false
}

func stringField(node map[string]any, key string) string {
	s, _ := node[key].(string)
	return s
}

// TitleService fetches a page and extracts its product title
type TitleService struct {
	fetcher domain.PageFetcher
	log     logger.Logger
}

// NewTitleService creates a title service
func NewTitleService(fetcher domain.PageFetcher, log logger.Logger) *TitleService {
	return &TitleService{fetcher: fetcher, log: log}
}

// ExtractFromURL fetches rawURL and extracts its title. A page without a recognizable
// title is not an error; it yields ErrorReason extraction_failed.
func (s *TitleService) ExtractFromURL(ctx context.Context, rawURL string) (domain.ExtractedTitle, error) {
	u, err := parseHTTPURL(rawURL)
	if err != nil {
		return domain.ExtractedTitle{}, err
	}

	page, err := s.fetcher.FetchHTML(ctx, u.String())
	if err != nil {
		metrics.ObserveExtraction("title", metrics.OutcomeError)
		s.log.Warn("title fetch failed", logger.String("url", u.String()), logger.Err(err))
		return domain.ExtractedTitle{}, err
	}

	result := ExtractTitle(page, u.Hostname())
	if result.ErrorReason != "" {
		metrics.ObserveExtraction("title", metrics.OutcomeEmpty)
		s.log.Info("no title found", logger.String("url", u.String()))
	} else {
		metrics.ObserveExtraction("title", metrics.OutcomeSuccess)
	}
	return result, nil
}

// parseHTTPURL accepts absolute http(s) URLs only
func parseHTTPURL(rawURL string) (*url.URL, error) {
	u, err := url.Parse(strings.TrimSpace(rawURL))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidURL, err)
	}
	if (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return nil, fmt.Errorf("%w: %q", domain.ErrInvalidURL, rawURL)
	}
	return u, nil
}
