package scoring

import (
	"testing"

	"go.uber.org/zap"

	"github.com/mikey/mail-sentinel/internal/config"
)

func defaultScoringConfig() config.ScoringConfig {
	return config.ScoringConfig{
		MaliciousThreshold: 50,
		BlacklistIP:        10,
		BlacklistCountry:   5,
		BlacklistDomain:    15,
		BlacklistURL:       20,
		CategoryHigh:       30,
		CategoryMedium:     20,
		CategoryLow:        10,
		MaliciousFlag:      50,
		HighRequests:       10,
		ManyDomains:        10,
		Lookalike:          15,
		HighRequestCount:   100,
		ManyDomainCount:    20,
	}
}

func TestScoreWeightedSignals(t *testing.T) {
	scorer := NewScorer(defaultScoringConfig(), zap.NewNop())

	tests := []struct {
		name          string
		signals       Signals
		expectedScore int
	}{
		{
			name:          "No signals",
			signals:       Signals{},
			expectedScore: 0,
		},
		{
			name:          "Single blacklisted IP",
			signals:       Signals{BlacklistedIPs: 1},
			expectedScore: 10,
		},
		{
			name:          "Blacklist mix",
			signals:       Signals{BlacklistedIPs: 2, BlacklistedCountries: 1, BlacklistedDomains: 1},
			expectedScore: 40,
		},
		{
			name:          "Phishing category",
			signals:       Signals{Categories: []string{"phishing"}},
			expectedScore: 30,
		},
		{
			name:          "Suspicious category",
			signals:       Signals{Categories: []string{"suspicious activity"}},
			expectedScore: 20,
		},
		{
			name:          "Unknown category",
			signals:       Signals{Categories: []string{"advertising"}},
			expectedScore: 10,
		},
		{
			name:          "Malicious flag alone crosses nothing",
			signals:       Signals{MaliciousFlag: true},
			expectedScore: 50,
		},
		{
			name:          "High request count",
			signals:       Signals{RequestCount: 150},
			expectedScore: 10,
		},
		{
			name:          "Request count at boundary not counted",
			signals:       Signals{RequestCount: 100},
			expectedScore: 0,
		},
		{
			name:          "Many domains",
			signals:       Signals{DomainCount: 25},
			expectedScore: 10,
		},
		{
			name:          "Lookalike brand",
			signals:       Signals{LookalikeBrand: "paypal.com"},
			expectedScore: 15,
		},
		{
			name: "Capped at 100",
			signals: Signals{
				BlacklistedURLs: 4,
				MaliciousFlag:   true,
				Categories:      []string{"malware", "phishing"},
			},
			expectedScore: 100,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, _ := scorer.Score(tt.signals)
			if score != tt.expectedScore {
				t.Errorf("Expected score %d, got %d", tt.expectedScore, score)
			}
			if score < 0 || score > 100 {
				t.Errorf("Score out of range [0,100]: %d", score)
			}
		})
	}
}

func TestIsMaliciousBoundary(t *testing.T) {
	scorer := NewScorer(defaultScoringConfig(), zap.NewNop())

	if scorer.IsMalicious(49) {
		t.Error("Expected score 49 to not be malicious")
	}
	if !scorer.IsMalicious(50) {
		t.Error("Expected score 50 to be malicious")
	}
	if !scorer.IsMalicious(100) {
		t.Error("Expected score 100 to be malicious")
	}
	if scorer.IsMalicious(0) {
		t.Error("Expected score 0 to not be malicious")
	}
}

func TestScoreIndicators(t *testing.T) {
	scorer := NewScorer(defaultScoringConfig(), zap.NewNop())

	_, indicators := scorer.Score(Signals{
		BlacklistedIPs: 3,
		MaliciousFlag:  true,
		RequestCount:   200,
	})

	if len(indicators) != 3 {
		t.Fatalf("Expected 3 indicators, got %d: %v", len(indicators), indicators)
	}
	if indicators[0] != "IPs in blacklists: 3" {
		t.Errorf("Unexpected first indicator: %s", indicators[0])
	}
	if indicators[1] != "Malicious behavior detected" {
		t.Errorf("Unexpected second indicator: %s", indicators[1])
	}
	if indicators[2] != "High number of requests: 200" {
		t.Errorf("Unexpected third indicator: %s", indicators[2])
	}
}

func TestCustomWeights(t *testing.T) {
	cfg := defaultScoringConfig()
	cfg.BlacklistIP = 1
	cfg.MaliciousThreshold = 3
	scorer := NewScorer(cfg, zap.NewNop())

	score, _ := scorer.Score(Signals{BlacklistedIPs: 2})
	if score != 2 {
		t.Errorf("Expected custom weight score 2, got %d", score)
	}
	if scorer.IsMalicious(score) {
		t.Error("Score 2 under threshold 3 should not be malicious")
	}

	score, _ = scorer.Score(Signals{BlacklistedIPs: 3})
	if !scorer.IsMalicious(score) {
		t.Error("Score 3 at threshold 3 should be malicious")
	}
}

func TestSummaryBands(t *testing.T) {
	scorer := NewScorer(defaultScoringConfig(), zap.NewNop())

	tests := []struct {
		score    int
		expected string
	}{
		{0, "No threats detected"},
		{10, "Low threat detected (Score: 10%)"},
		{30, "Medium threat detected (Score: 30%)"},
		{85, "High threat detected (Score: 85%)"},
	}

	for _, tt := range tests {
		if got := scorer.Summary(tt.score); got != tt.expected {
			t.Errorf("Summary(%d): expected %q, got %q", tt.score, tt.expected, got)
		}
	}
}
