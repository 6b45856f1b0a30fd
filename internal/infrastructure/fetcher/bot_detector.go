package fetcher

import (
	"regexp"
	"strings"
)

// Full product pages are large; interstitials are not. Marker hits on a long page are
// usually footer text or script names and are ignored.
const botWallMaxLength = 20000

// BotDetector recognizes CAPTCHA and bot-wall interstitials
type BotDetector struct {
	botPatterns     []*regexp.Regexp
	captchaPatterns []*regexp.Regexp
}

// NewBotDetector creates a bot detector
func NewBotDetector() *BotDetector {
	return &BotDetector{
		botPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)robot check`),
			regexp.MustCompile(`(?i)access denied`),
			regexp.MustCompile(`(?i)bot detected`),
			regexp.MustCompile(`(?i)checking your browser`),
			regexp.MustCompile(`(?i)unusual traffic`),
			regexp.MustCompile(`(?i)pardon our interruption`),
			regexp.MustCompile(`(?i)ddos protection`),
			regexp.MustCompile(`(?i)sorry, we just need to make sure you're not a robot`),
		},
		captchaPatterns: []*regexp.Regexp{
			regexp.MustCompile(`(?i)captcha`),
			regexp.MustCompile(`(?i)verify you are (a )?human`),
			regexp.MustCompile(`(?i)enter the characters you see below`),
			regexp.MustCompile(`(?i)cf-challenge`),
		},
	}
}

// IsBotWall reports whether html looks like an interstitial rather than a product page
func (bd *BotDetector) IsBotWall(html string) (bool, string) {
	if len(html) > botWallMaxLength {
		return false, ""
	}

	score := 0.0
	var reasons []string

	for _, p := range bd.botPatterns {
		if p.MatchString(html) {
			score += 0.3
			reasons = append(reasons, p.String())
		}
	}
	for _, p := range bd.captchaPatterns {
		if p.MatchString(html) {
			score += 0.5
			reasons = append(reasons, "captcha: "+p.String())
		}
	}

	return score >= 0.5, strings.Join(reasons, "; ")
}
