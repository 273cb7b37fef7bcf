package scoring

import (
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/mikey/mail-sentinel/internal/config"
)

// Signals carries the threat indicators pulled from a completed scan result.
// The scorer turns them into a single capped score.
type Signals struct {
	BlacklistedIPs       int
	BlacklistedCountries int
	BlacklistedDomains   int
	BlacklistedURLs      int
	Categories           []string
	MaliciousFlag        bool
	RequestCount         int
	DomainCount          int
	LookalikeBrand       string
}

// highRiskKeywords mark categories that carry the heaviest weight
var highRiskKeywords = []string{"malware", "phishing", "scam", "malicious"}

// mediumRiskKeywords mark categories flagged as suspect but not confirmed
var mediumRiskKeywords = []string{"suspicious", "suspected"}

// Scorer computes weighted threat scores from scan signals
type Scorer struct {
	cfg    config.ScoringConfig
	logger *zap.Logger
}

// NewScorer creates a new scorer with the configured weights
func NewScorer(cfg config.ScoringConfig, logger *zap.Logger) *Scorer {
	return &Scorer{cfg: cfg, logger: logger}
}

// Score sums the weighted signals, capped to [0,100], and returns the
// score together with the human-readable indicator lines.
func (s *Scorer) Score(sig Signals) (int, []string) {
	total := 0
	var indicators []string

	if sig.BlacklistedIPs > 0 {
		indicators = append(indicators, fmt.Sprintf("IPs in blacklists: %d", sig.BlacklistedIPs))
		total += sig.BlacklistedIPs * s.cfg.BlacklistIP
	}
	if sig.BlacklistedCountries > 0 {
		indicators = append(indicators, fmt.Sprintf("Countries in blacklists: %d", sig.BlacklistedCountries))
		total += sig.BlacklistedCountries * s.cfg.BlacklistCountry
	}
	if sig.BlacklistedDomains > 0 {
		indicators = append(indicators, fmt.Sprintf("Domains in blacklists: %d", sig.BlacklistedDomains))
		total += sig.BlacklistedDomains * s.cfg.BlacklistDomain
	}
	if sig.BlacklistedURLs > 0 {
		indicators = append(indicators, fmt.Sprintf("URLs in blacklists: %d", sig.BlacklistedURLs))
		total += sig.BlacklistedURLs * s.cfg.BlacklistURL
	}

	for _, category := range sig.Categories {
		total += s.categoryWeight(category)
	}

	if sig.MaliciousFlag {
		indicators = append(indicators, "Malicious behavior detected")
		total += s.cfg.MaliciousFlag
	}

	if sig.RequestCount > s.cfg.HighRequestCount {
		indicators = append(indicators, fmt.Sprintf("High number of requests: %d", sig.RequestCount))
		total += s.cfg.HighRequests
	}
	if sig.DomainCount > s.cfg.ManyDomainCount {
		indicators = append(indicators, fmt.Sprintf("High number of domains: %d", sig.DomainCount))
		total += s.cfg.ManyDomains
	}

	if sig.LookalikeBrand != "" {
		indicators = append(indicators, fmt.Sprintf("Domain resembles trusted brand: %s", sig.LookalikeBrand))
		total += s.cfg.Lookalike
	}

	if total > 100 {
		total = 100
	}
	if total < 0 {
		total = 0
	}

	s.logger.Debug("Scored scan signals",
		zap.Int("score", total),
		zap.Strings("indicators", indicators))

	return total, indicators
}

// IsMalicious applies the malicious threshold to a score
func (s *Scorer) IsMalicious(score int) bool {
	return score >= s.cfg.MaliciousThreshold
}

// Summary returns a one-line description for a score, used in reports
func (s *Scorer) Summary(score int) string {
	switch {
	case score > 50:
		return fmt.Sprintf("High threat detected (Score: %d%%)", score)
	case score > 25:
		return fmt.Sprintf("Medium threat detected (Score: %d%%)", score)
	case score > 0:
		return fmt.Sprintf("Low threat detected (Score: %d%%)", score)
	default:
		return "No threats detected"
	}
}

func (s *Scorer) categoryWeight(category string) int {
	lowered := strings.ToLower(category)
	for _, keyword := range highRiskKeywords {
		if strings.Contains(lowered, keyword) {
			return s.cfg.CategoryHigh
		}
	}
	for _, keyword := range mediumRiskKeywords {
		if strings.Contains(lowered, keyword) {
			return s.cfg.CategoryMedium
		}
	}
	return s.cfg.CategoryLow
}
