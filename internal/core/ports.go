package core

import (
	"context"
)

// MailSource defines the interface for fetching recent inbox messages
type MailSource interface {
	// ListRecentMessages returns up to limit recent messages, newest last
	ListRecentMessages(ctx context.Context, limit int) ([]*EmailMessage, error)
}

// ThreatScanner defines the interface for scanning a single URL.
// A failed scan returns a *ScanError carrying the failure kind.
type ThreatScanner interface {
	// Scan submits a URL and waits for its verdict
	Scan(ctx context.Context, rawURL string) (*ScanVerdict, error)
}

// URLExtractor defines the interface for pulling unique URLs out of messages
type URLExtractor interface {
	// ExtractFromMessages returns the cycle-unique URLs in message order
	ExtractFromMessages(msgs []*EmailMessage) []ExtractedURL
}

// ContentAnalyzer defines the interface for LLM risk assessment of a message
type ContentAnalyzer interface {
	// AssessEmail estimates sender and content risk for a message
	AssessEmail(ctx context.Context, msg *EmailMessage) (*EmailRiskAssessment, error)
}

// VerdictCache defines the interface for caching scan verdicts
type VerdictCache interface {
	// Get retrieves a cached entry for a URL
	Get(ctx context.Context, url string) (*CacheEntry, error)

	// Set stores a cache entry
	Set(ctx context.Context, entry *CacheEntry) error

	// Delete removes a cache entry
	Delete(ctx context.Context, url string) error

	// Cleanup removes expired entries
	Cleanup(ctx context.Context) error
}

// AlertPublisher defines the interface for raising security alerts
type AlertPublisher interface {
	// Raise builds, records, and displays an alert for a flagged message
	Raise(msg *EmailMessage, verdicts []ScanVerdict, assessment *EmailRiskAssessment) (*Alert, error)
}

// AllowlistChecker defines the interface for trusted-domain checks
type AllowlistChecker interface {
	// IsAllowlisted reports whether the URL's host is trusted
	IsAllowlisted(rawURL string) bool
}

// SeenTracker defines the interface for cross-cycle message dedup
type SeenTracker interface {
	// FilterNew returns the messages not seen before and marks them seen
	FilterNew(msgs []*EmailMessage) []*EmailMessage

	// Save persists the seen set
	Save() error
}
