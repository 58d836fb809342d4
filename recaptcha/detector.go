package recaptcha

import (
	"strings"

	"github.com/PuerkitoBio/goquery"
)

const (
	DEFAULT_CAPTCHA_SELECTOR = `iframe[title="reCAPTCHA"], iframe[src*="recaptcha/api2/anchor"], .g-recaptcha`
)

// Text Google shows instead of results when it rate limits a client
var banSignatures = []string{
	"our systems have detected unusual traffic",
	"unusual traffic from your computer network",
	"to continue, please type the characters below",
}

// IsCaptcha reports whether the crawled page shows a reCAPTCHA widget or the
// "unusual traffic" interstitial that embeds one.
func (s *Solver) IsCaptcha(doc *goquery.Document) bool {
	if doc == nil || doc.Selection == nil {
		return false
	}

	if s.captchaSelector != "" {
		return doc.Find(s.captchaSelector).Length() > 0
	}

	if doc.Find(DEFAULT_CAPTCHA_SELECTOR).Length() > 0 {
		return true
	}

	text := strings.ToLower(doc.Text())
	for _, signature := range banSignatures {
		if strings.Contains(text, signature) {
			return true
		}
	}
	return false
}

// parseAudioLink scans challenge frame HTML for the audio download link. blocked
// is true when Google replaced the challenge with its "automated queries" screen.
func parseAudioLink(html string, selectors Selectors) (link string, blocked bool, err error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", false, err
	}

	if selectors.BlockedMarker != "" && doc.Find(selectors.BlockedMarker).Length() > 0 {
		return "", true, nil
	}

	if selectors.DownloadLink != "" {
		if href, ok := doc.Find(selectors.DownloadLink).First().Attr("href"); ok {
			link = strings.TrimSpace(href)
		}
	}

	if link == "" {
		if src, ok := doc.Find(`audio source[src], audio[src]`).First().Attr("src"); ok {
			link = strings.TrimSpace(src)
		}
	}

	return link, false, nil
}
