package usecase

import (
	"net/url"
	"strings"

	"github.com/wishlist/backend/internal/domain"
)

// Query parameters that mean a link already pays someone a commission
var affiliateParams = []string{"tag", "aff", "affid", "aff_id", "affiliate", "affiliate_id", "partner", "campaign", "clickref"}

// AffiliateLink is the result of converting a product link
type AffiliateLink struct {
	OriginalURL  string `json:"originalUrl"`
	AffiliateURL string `json:"affiliateUrl"`
	Converted    bool   `json:"converted"`
}

// ConvertAffiliateLink adds the Amazon Associates tag to Amazon product links.
// Links that are invalid, not Amazon, or already carry affiliate markers are
// returned unchanged.
func ConvertAffiliateLink(rawURL string, cfg domain.AffiliateConfig) AffiliateLink {
	link := AffiliateLink{OriginalURL: rawURL, AffiliateURL: rawURL}

	u, err := parseHTTPURL(rawURL)
	if err != nil || cfg.AmazonAssociateTag == "" || isAffiliateLink(u) {
		return link
	}
	if !strings.Contains(strings.ToLower(u.Hostname()), "amazon.") {
		return link
	}

	q := u.Query()
	q.Set("tag", cfg.AmazonAssociateTag)
	u.RawQuery = q.Encode()

	link.AffiliateURL = u.String()
	link.Converted = true
	return link
}

func isAffiliateLink(u *url.URL) bool {
	for key := range u.Query() {
		lower := strings.ToLower(key)
		for _, param := range affiliateParams {
			if lower == param {
				return true
			}
		}
	}
	return strings.Contains(strings.ToLower(u.Path), "/affiliate")
}
