package lookalike

import (
	"math"
	"net/url"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"go.uber.org/zap"
	"golang.org/x/net/idna"
	"golang.org/x/net/publicsuffix"
	"golang.org/x/text/unicode/norm"
)

// Detector flags hostnames that sit within a small edit distance of a
// trusted brand domain without being that domain or one of its subdomains.
type Detector struct {
	enabled bool
	brands  []string
	logger  *zap.Logger
}

// NewDetector creates a detector for the given brand domains
func NewDetector(enabled bool, brands []string, logger *zap.Logger) *Detector {
	normalized := make([]string, 0, len(brands))
	for _, brand := range brands {
		if b := normalizeHost(brand); b != "" {
			normalized = append(normalized, b)
		}
	}
	return &Detector{enabled: enabled, brands: normalized, logger: logger}
}

// Match returns the brand domain the URL's host imitates, or "" when the
// host is genuine or resembles nothing on the list.
func (d *Detector) Match(rawURL string) string {
	if !d.enabled || len(d.brands) == 0 {
		return ""
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	host := normalizeHost(parsed.Hostname())
	if host == "" {
		return ""
	}

	registrable, err := publicsuffix.EffectiveTLDPlusOne(host)
	if err != nil {
		registrable = host
	}

	// The brand itself and its subdomains are genuine
	for _, brand := range d.brands {
		if registrable == brand || strings.HasSuffix(host, "."+brand) {
			return ""
		}
	}

	thresh := distanceThreshold(len(registrable))
	for _, brand := range d.brands {
		if fuzzy.LevenshteinDistance(registrable, brand) <= thresh {
			d.logger.Debug("Lookalike domain detected",
				zap.String("host", host),
				zap.String("brand", brand))
			return brand
		}
	}

	return ""
}

// distanceThreshold scales the allowed edit distance with name length:
// short names tolerate 1 edit, medium 2, long ones 15%.
func distanceThreshold(length int) int {
	switch {
	case length <= 11:
		return 1
	case length <= 15:
		return 2
	default:
		return int(math.Ceil(float64(length) * 0.15))
	}
}

// normalizeHost folds a hostname into comparable ASCII form
func normalizeHost(host string) string {
	host = strings.ToLower(strings.TrimSpace(norm.NFC.String(host)))
	if host == "" {
		return ""
	}
	ascii, err := idna.Lookup.ToASCII(host)
	if err != nil {
		return host
	}
	return ascii
}
