package usecase

import (
	"context"
	"net/url"
	"regexp"
	"strings"

	"github.com/wishlist/backend/internal/domain"
	"github.com/wishlist/backend/internal/logger"
	"github.com/wishlist/backend/internal/metrics"
)

// pagePriceRule is one regex over raw markup. The "num" group holds the amount and the
// optional "cur" group a symbol or ISO code.
type pagePriceRule struct {
	name string
	re   *regexp.Regexp
}

func newRule(name, pattern string) pagePriceRule {
	return pagePriceRule{name: name, re: regexp.MustCompile(pattern)}
}

const symbolAmount = `(?P<cur>[£$€])\s*` + amountPattern

var (
	structuredRules = []pagePriceRule{
		newRule("microdata", `(?i)itemprop=["']price["'][^>]*content=["']`+amountPattern+`["']`),
		newRule("microdata-reversed", `(?i)content=["']`+amountPattern+`["'][^>]*itemprop=["']price["']`),
		newRule("og-price", `(?i)property=["'](?:product|og):price:amount["'][^>]*content=["']`+amountPattern+`["']`),
		newRule("json-price", `"price"\s*:\s*"?`+amountPattern+`"?`),
	}

	symbolRules = []pagePriceRule{
		newRule("pound", `(?P<cur>£)\s*`+amountPattern),
		newRule("any-symbol", symbolAmount),
	}

	siteRules = map[string][]pagePriceRule{
		"manomano": {
			newRule("manomano-price-element", `(?is)<[a-z]+[^>]*class="[^"]*price[^"]*"[^>]*>(?:\s*<[^>]+>)*\s*`+symbolAmount),
		},
		"amazon": {
			newRule("amazon-offscreen", `(?is)<span[^>]*class="[^"]*a-offscreen[^"]*"[^>]*>\s*`+symbolAmount),
			newRule("amazon-priceblock", `(?is)id="(?:priceblock_[^"]*|corePrice[^"]*|price_inside_buybox)"[^>]*>(?:\s*<[^>]+>)*\s*`+symbolAmount),
		},
		"ebay": {
			newRule("ebay-prcisum", `(?is)id="prcIsum"[^>]*>[^<]*?(?P<cur>£|\$|€|GBP|USD|EUR)\s*`+amountPattern),
			newRule("ebay-x-price", `(?is)class="[^"]*x-price-primary[^"]*"[^>]*>(?:\s*<[^>]+>)*[^<]*?(?P<cur>£|\$|€|GBP|USD|EUR)\s*`+amountPattern),
		},
	}

	priceCurrencyRegex = regexp.MustCompile(`(?i)(?:"priceCurrency"\s*:\s*"|itemprop=["']priceCurrency["'][^>]*content=["']|(?:product|og):price:currency["'][^>]*content=["'])(?P<code>[A-Z]{3})`)

	entityReplacer = strings.NewReplacer(
		"&pound;", "£", "&#163;", "£", "&#xa3;", "£", "&#xA3;", "£",
		"&euro;", "€", "&#8364;", "€", "&#x20ac;", "€", "&#x20AC;", "€",
		"&#36;", "$", "&dollar;", "$",
	)
)

// siteKey maps a hostname to a retailer rule set
func siteKey(host string) string {
	host = strings.ToLower(host)
	for _, key := range []string{"manomano", "amazon", "ebay"} {
		if strings.Contains(host, key+".") {
			return key
		}
	}
	return "generic"
}

// ExtractPagePrice applies the retailer rules for host to raw markup. The first rule
// with a plausible match wins.
func ExtractPagePrice(rawHTML, host, defaultCurrency string) *domain.Price {
	if rawHTML == "" {
		return nil
	}
	if defaultCurrency == "" {
		defaultCurrency = DefaultCurrency
	}

	page := entityReplacer.Replace(rawHTML)

	pageCurrency := ""
	if m := priceCurrencyRegex.FindStringSubmatch(page); m != nil {
		pageCurrency = strings.ToUpper(m[priceCurrencyRegex.SubexpIndex("code")])
	}

	rules := make([]pagePriceRule, 0, 8)
	rules = append(rules, siteRules[siteKey(host)]...)
	rules = append(rules, structuredRules...)
	rules = append(rules, symbolRules...)

	for _, rule := range rules {
		for _, m := range rule.re.FindAllStringSubmatch(page, -1) {
			amount, err := parseAmount(firstGroup(rule.re, m, "num"))
			if err != nil || !domain.IsPlausiblePrice(amount) {
				continue
			}
			currency := currencyFromToken(firstGroup(rule.re, m, "cur"))
			if currency == "" {
				currency = pageCurrency
			}
			if currency == "" {
				currency = defaultCurrency
			}
			return &domain.Price{Amount: domain.RoundPrice(amount), Currency: currency}
		}
	}

	return nil
}

// PagePriceFetcher reads a price straight from a product page
type PagePriceFetcher struct {
	fetcher         domain.PageFetcher
	defaultCurrency string
	log             logger.Logger
}

// NewPagePriceFetcher creates a page price fetcher
func NewPagePriceFetcher(fetcher domain.PageFetcher, defaultCurrency string, log logger.Logger) *PagePriceFetcher {
	return &PagePriceFetcher{fetcher: fetcher, defaultCurrency: defaultCurrency, log: log}
}

// FetchPriceFromPage returns the page's price, or nil when the page cannot be fetched
// or shows no plausible price.
func (f *PagePriceFetcher) FetchPriceFromPage(ctx context.Context, pageURL string) *domain.Price {
	u, err := url.Parse(pageURL)
	if err != nil || u.Host == "" {
		return nil
	}

	page, err := f.fetcher.FetchHTML(ctx, pageURL)
	if err != nil {
		metrics.ObserveExtraction("page_price", metrics.OutcomeError)
		f.log.Debug("page price fetch failed", logger.String("url", pageURL), logger.Err(err))
		return nil
	}

	price := ExtractPagePrice(page, u.Hostname(), f.defaultCurrency)
	if price == nil {
		metrics.ObserveExtraction("page_price", metrics.OutcomeEmpty)
		return nil
	}

	metrics.ObserveExtraction("page_price", metrics.OutcomeSuccess)
	return price
}
