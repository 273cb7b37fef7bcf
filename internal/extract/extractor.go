package extract

import (
	"net/url"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/jaytaylor/html2text"
	"go.uber.org/zap"

	"github.com/mikey/mail-sentinel/internal/core"
)

// urlPattern matches candidate HTTP/HTTPS URLs. Matches are cleaned and
// validated afterwards, so the pattern errs on the side of over-matching.
var urlPattern = regexp.MustCompile(`https?://[^\s<>"']+`)

// trailingJunk holds characters stripped off the end of a match: sentence
// punctuation and closing brackets that sit next to URLs in prose.
const trailingJunk = ".,;:!?)]}>*'\""

// minURLLength filters fragments like "http://x" that the pattern can match
const minURLLength = 11

// Extractor pulls unique HTTP/HTTPS URLs out of email messages
type Extractor struct {
	logger *zap.Logger
}

// NewExtractor creates a new URL extractor
func NewExtractor(logger *zap.Logger) *Extractor {
	return &Extractor{logger: logger}
}

// ExtractFromMessages returns the unique URLs across all messages of one
// cycle, in first-occurrence order. A URL appearing in several messages is
// attributed to the first message that contained it.
func (e *Extractor) ExtractFromMessages(msgs []*core.EmailMessage) []core.ExtractedURL {
	seen := make(map[string]struct{})
	var out []core.ExtractedURL

	add := func(raw string, msg *core.EmailMessage) {
		cleaned, ok := CleanURL(raw)
		if !ok {
			return
		}
		if _, dup := seen[cleaned]; dup {
			return
		}
		seen[cleaned] = struct{}{}
		out = append(out, core.ExtractedURL{RawURL: cleaned, Source: msg})
	}

	for _, msg := range msgs {
		for _, raw := range urlPattern.FindAllString(msg.Subject, -1) {
			add(raw, msg)
		}
		for _, raw := range urlPattern.FindAllString(msg.Body, -1) {
			add(raw, msg)
		}
		if msg.HTMLBody != "" {
			for _, raw := range e.fromHTML(msg.HTMLBody) {
				add(raw, msg)
			}
		}
	}

	e.logger.Debug("URL extraction finished",
		zap.Int("messages", len(msgs)),
		zap.Int("unique_urls", len(out)))

	return out
}

// FromText extracts the unique cleaned URLs from a single blob of text
func (e *Extractor) FromText(text string) []string {
	seen := make(map[string]struct{})
	var out []string
	for _, raw := range urlPattern.FindAllString(text, -1) {
		cleaned, ok := CleanURL(raw)
		if !ok {
			continue
		}
		if _, dup := seen[cleaned]; dup {
			continue
		}
		seen[cleaned] = struct{}{}
		out = append(out, cleaned)
	}
	return out
}

// fromHTML extracts URL candidates from an HTML body: the flattened text
// plus every anchor href, which catches URLs that never appear as text.
func (e *Extractor) fromHTML(htmlBody string) []string {
	var out []string

	flat, err := html2text.FromString(htmlBody)
	if err != nil {
		e.logger.Debug("Failed to flatten HTML body", zap.Error(err))
	} else {
		out = append(out, urlPattern.FindAllString(flat, -1)...)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlBody))
	if err != nil {
		e.logger.Debug("Failed to parse HTML body", zap.Error(err))
		return out
	}
	doc.Find("a[href], area[href]").Each(func(_ int, sel *goquery.Selection) {
		href, ok := sel.Attr("href")
		if !ok {
			return
		}
		href = strings.TrimSpace(href)
		if strings.HasPrefix(href, "http://") || strings.HasPrefix(href, "https://") {
			out = append(out, href)
		}
	})

	return out
}

// CleanURL strips trailing punctuation from a raw match and validates it.
// Malformed candidates are dropped silently.
func CleanURL(raw string) (string, bool) {
	cleaned := strings.TrimSpace(raw)
	cleaned = strings.TrimRight(cleaned, trailingJunk)

	if len(cleaned) < minURLLength {
		return "", false
	}

	parsed, err := url.Parse(cleaned)
	if err != nil {
		return "", false
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return "", false
	}
	if parsed.Host == "" {
		return "", false
	}

	return cleaned, true
}
