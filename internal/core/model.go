package core

import (
	"fmt"
	"time"
)

// EmailMessage represents a message pulled from the mail source
type EmailMessage struct {
	ID         string
	Sender     string
	Subject    string
	Body       string
	HTMLBody   string
	ReceivedAt time.Time
}

// ExtractedURL is a unique URL found in a message during one cycle
type ExtractedURL struct {
	RawURL string
	Source *EmailMessage
}

// ScanVerdict represents the outcome of scanning a single URL
type ScanVerdict struct {
	URL         string
	Score       int
	Categories  []string
	Malicious   bool
	ScanUUID    string
	ReportURL   string
	PageTitle   string
	PageIP      string
	PageCountry string
	Indicators  []string
	ScannedAt   time.Time
	FromCache   bool
}

// FailureKind classifies why a scan did not produce a verdict
type FailureKind int

const (
	FailureTransport FailureKind = iota
	FailureTimeout
	FailureRateLimited
	FailureMalformedResponse
	FailureAuth
)

// String returns the human-readable name of the failure kind
func (k FailureKind) String() string {
	switch k {
	case FailureTransport:
		return "transport"
	case FailureTimeout:
		return "timeout"
	case FailureRateLimited:
		return "rate_limited"
	case FailureMalformedResponse:
		return "malformed_response"
	case FailureAuth:
		return "auth"
	default:
		return "unknown"
	}
}

// ScanError is a classified scan failure for one URL
type ScanError struct {
	Kind FailureKind
	URL  string
	Err  error
}

func (e *ScanError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("scan %s failed (%s): %v", e.URL, e.Kind, e.Err)
	}
	return fmt.Sprintf("scan %s failed (%s)", e.URL, e.Kind)
}

func (e *ScanError) Unwrap() error {
	return e.Err
}

// NewScanError builds a classified scan error for a URL
func NewScanError(kind FailureKind, url string, err error) *ScanError {
	return &ScanError{Kind: kind, URL: url, Err: err}
}

// ScanRecord pairs an extracted URL with its verdict or failure.
// Exactly one of Verdict and Failure is set.
type ScanRecord struct {
	URL     ExtractedURL
	Verdict *ScanVerdict
	Failure *ScanError
}

// ScanReport aggregates one polling cycle
type ScanReport struct {
	StartedAt       time.Time
	FinishedAt      time.Time
	EmailsProcessed int
	URLsFound       int
	URLsScanned     int
	MaliciousCount  int
	FailureCount    int
	Records         []ScanRecord
}

// CycleStats tracks running totals across polling cycles
type CycleStats struct {
	StartedAt       time.Time
	CyclesRun       int
	EmailsProcessed int
	URLsFound       int
	URLsScanned     int
	ThreatsDetected int
	ScanFailures    int
	LastCycleAt     time.Time
	LastCycleError  string
}

// EmailRiskAssessment is the optional content-analyzer view of a message
type EmailRiskAssessment struct {
	SenderRisk   float64
	ContentRisk  float64
	OverallScore float64
	Explanation  string
	ModelUsed    string
	AnalyzedAt   time.Time
}

// AlertLevel bands an alert by severity
type AlertLevel string

const (
	AlertSafe     AlertLevel = "SAFE"
	AlertLow      AlertLevel = "LOW"
	AlertMedium   AlertLevel = "MEDIUM"
	AlertHigh     AlertLevel = "HIGH"
	AlertCritical AlertLevel = "CRITICAL"
)

// Alert is raised for a message whose URLs produced malicious verdicts
type Alert struct {
	ID          string
	CreatedAt   time.Time
	Level       AlertLevel
	OverallRisk AlertLevel
	Sender      string
	Subject     string
	BodyPreview string
	Verdicts    []ScanVerdict
	Assessment  *EmailRiskAssessment
}

type CacheEntry struct {
	URL       string
	Verdict   ScanVerdict
	CreatedAt time.Time
	ExpiresAt time.Time
}
