package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type stubSource struct {
	msgs     []*EmailMessage
	err      error
	gotLimit int
}

func (s *stubSource) ListRecentMessages(ctx context.Context, limit int) ([]*EmailMessage, error) {
	s.gotLimit = limit
	if s.err != nil {
		return nil, s.err
	}
	return s.msgs, nil
}

// stubExtractor treats every whitespace-separated http token in a body as a URL
type stubExtractor struct{}

func (stubExtractor) ExtractFromMessages(msgs []*EmailMessage) []ExtractedURL {
	seen := make(map[string]struct{})
	var out []ExtractedURL
	for _, msg := range msgs {
		for _, token := range strings.Fields(msg.Body) {
			if !strings.HasPrefix(token, "http") {
				continue
			}
			if _, dup := seen[token]; dup {
				continue
			}
			seen[token] = struct{}{}
			out = append(out, ExtractedURL{RawURL: token, Source: msg})
		}
	}
	return out
}

type stubScanner struct {
	verdicts map[string]*ScanVerdict
	errs     map[string]error
	calls    []string
}

func (s *stubScanner) Scan(ctx context.Context, rawURL string) (*ScanVerdict, error) {
	s.calls = append(s.calls, rawURL)
	if err, ok := s.errs[rawURL]; ok {
		return nil, err
	}
	if v, ok := s.verdicts[rawURL]; ok {
		verdict := *v
		return &verdict, nil
	}
	return &ScanVerdict{URL: rawURL, ScannedAt: time.Now()}, nil
}

type stubCache struct {
	entries map[string]*CacheEntry
	sets    int
}

func (c *stubCache) Get(ctx context.Context, url string) (*CacheEntry, error) {
	if entry, ok := c.entries[url]; ok {
		return entry, nil
	}
	return nil, errors.New("cache miss")
}

func (c *stubCache) Set(ctx context.Context, entry *CacheEntry) error {
	if c.entries == nil {
		c.entries = make(map[string]*CacheEntry)
	}
	c.entries[entry.URL] = entry
	c.sets++
	return nil
}

func (c *stubCache) Delete(ctx context.Context, url string) error {
	delete(c.entries, url)
	return nil
}

func (c *stubCache) Cleanup(ctx context.Context) error { return nil }

type stubAllowlist map[string]bool

func (a stubAllowlist) IsAllowlisted(rawURL string) bool { return a[rawURL] }

type stubAlerts struct {
	raised []*Alert
}

func (a *stubAlerts) Raise(msg *EmailMessage, verdicts []ScanVerdict, assessment *EmailRiskAssessment) (*Alert, error) {
	alert := &Alert{
		ID:         fmt.Sprintf("alert-%d", len(a.raised)+1),
		Sender:     msg.Sender,
		Subject:    msg.Subject,
		Verdicts:   verdicts,
		Assessment: assessment,
	}
	a.raised = append(a.raised, alert)
	return alert, nil
}

type stubSeen struct {
	ids   map[string]struct{}
	saved int
}

func (s *stubSeen) FilterNew(msgs []*EmailMessage) []*EmailMessage {
	if s.ids == nil {
		s.ids = make(map[string]struct{})
	}
	var out []*EmailMessage
	for _, msg := range msgs {
		if _, ok := s.ids[msg.ID]; ok {
			continue
		}
		s.ids[msg.ID] = struct{}{}
		out = append(out, msg)
	}
	return out
}

func (s *stubSeen) Save() error {
	s.saved++
	return nil
}

type stubAnalyzer struct {
	assessment *EmailRiskAssessment
	err        error
	calls      int
}

func (a *stubAnalyzer) AssessEmail(ctx context.Context, msg *EmailMessage) (*EmailRiskAssessment, error) {
	a.calls++
	if a.err != nil {
		return nil, a.err
	}
	return a.assessment, nil
}

func testMessage(id, sender, body string) *EmailMessage {
	return &EmailMessage{
		ID:         id,
		Sender:     sender,
		Subject:    "subject " + id,
		Body:       body,
		ReceivedAt: time.Now(),
	}
}

func maliciousVerdict(url string) *ScanVerdict {
	return &ScanVerdict{
		URL:        url,
		Score:      85,
		Categories: []string{"phishing", "malware"},
		Malicious:  true,
		ScannedAt:  time.Now(),
	}
}

func TestRunCycleCountsVerdictsAndThreats(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "alice@example.com", "visit https://a.example/x today"),
		testMessage("m2", "mallory@evil.example", "claim prize https://b.example/y now"),
	}}
	scanner := &stubScanner{verdicts: map[string]*ScanVerdict{
		"https://b.example/y": maliciousVerdict("https://b.example/y"),
	}}
	alerts := &stubAlerts{}

	svc := NewScanService(source, stubExtractor{}, scanner, nil, nil, alerts, nil, nil,
		zap.NewNop(), false, 0, 0, 5)

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if report.EmailsProcessed != 2 {
		t.Errorf("Expected 2 emails processed, got %d", report.EmailsProcessed)
	}
	if report.URLsFound != 2 {
		t.Errorf("Expected 2 URLs found, got %d", report.URLsFound)
	}
	if report.URLsScanned != 2 {
		t.Errorf("Expected 2 URLs scanned, got %d", report.URLsScanned)
	}
	if report.MaliciousCount != 1 {
		t.Errorf("Expected 1 malicious URL, got %d", report.MaliciousCount)
	}
	if report.FailureCount != 0 {
		t.Errorf("Expected no failures, got %d", report.FailureCount)
	}
	if source.gotLimit != 5 {
		t.Errorf("Expected source limit 5, got %d", source.gotLimit)
	}

	if len(report.Records) != 2 {
		t.Fatalf("Expected 2 records, got %d", len(report.Records))
	}
	if report.Records[0].URL.RawURL != "https://a.example/x" {
		t.Errorf("Expected records in extraction order, got %q first", report.Records[0].URL.RawURL)
	}

	if len(alerts.raised) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts.raised))
	}
	if alerts.raised[0].Sender != "mallory@evil.example" {
		t.Errorf("Expected alert for mallory@evil.example, got %s", alerts.raised[0].Sender)
	}
	if len(alerts.raised[0].Verdicts) != 1 {
		t.Errorf("Expected 1 verdict on the alert, got %d", len(alerts.raised[0].Verdicts))
	}
}

func TestRunCycleIsolatesScanFailures(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "alice@example.com",
			"https://a.example/x https://b.example/y https://c.example/z"),
	}}
	scanner := &stubScanner{errs: map[string]error{
		"https://b.example/y": NewScanError(FailureRateLimited, "https://b.example/y", errors.New("429")),
	}}

	svc := NewScanService(source, stubExtractor{}, scanner, nil, nil, nil, nil, nil,
		zap.NewNop(), false, 0, 0, 5)

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if report.URLsScanned != 2 {
		t.Errorf("Expected 2 URLs scanned, got %d", report.URLsScanned)
	}
	if report.FailureCount != 1 {
		t.Errorf("Expected 1 failure, got %d", report.FailureCount)
	}
	if len(report.Records) != 3 {
		t.Fatalf("Expected 3 records, got %d", len(report.Records))
	}

	failed := report.Records[1]
	if failed.Failure == nil {
		t.Fatal("Expected a failure record for the second URL")
	}
	if failed.Failure.Kind != FailureRateLimited {
		t.Errorf("Expected rate_limited failure, got %s", failed.Failure.Kind)
	}
	if report.Records[0].Verdict == nil || report.Records[2].Verdict == nil {
		t.Error("Expected verdicts for the URLs before and after the failure")
	}
}

func TestRunCycleSourceErrorAbortsCycle(t *testing.T) {
	source := &stubSource{err: errors.New("login rejected")}

	svc := NewScanService(source, stubExtractor{}, &stubScanner{}, nil, nil, nil, nil, nil,
		zap.NewNop(), false, 0, 0, 5)

	if _, err := svc.RunCycle(context.Background()); err == nil {
		t.Fatal("Expected RunCycle to fail when the source fails")
	}

	stats := svc.Stats()
	if stats.CyclesRun != 1 {
		t.Errorf("Expected failed cycle to count, got %d cycles", stats.CyclesRun)
	}
	if stats.LastCycleError == "" {
		t.Error("Expected the cycle error to be recorded")
	}
}

func TestRunCycleSkipsAllowlistedURLs(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "alice@example.com", "https://trusted.example/ok https://b.example/y"),
	}}
	scanner := &stubScanner{}

	svc := NewScanService(source, stubExtractor{}, scanner, nil,
		stubAllowlist{"https://trusted.example/ok": true}, nil, nil, nil,
		zap.NewNop(), false, 0, 0, 5)

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(scanner.calls) != 1 || scanner.calls[0] != "https://b.example/y" {
		t.Errorf("Expected only the non-allowlisted URL to be scanned, got %v", scanner.calls)
	}

	allowlisted := report.Records[0]
	if allowlisted.Verdict == nil {
		t.Fatal("Expected a synthetic verdict for the allowlisted URL")
	}
	if allowlisted.Verdict.Score != 0 || allowlisted.Verdict.Malicious {
		t.Errorf("Expected a clean verdict, got score %d malicious %t",
			allowlisted.Verdict.Score, allowlisted.Verdict.Malicious)
	}
	if len(allowlisted.Verdict.Categories) != 1 || allowlisted.Verdict.Categories[0] != "allowlisted" {
		t.Errorf("Expected categories [allowlisted], got %v", allowlisted.Verdict.Categories)
	}
}

func TestRunCycleUsesCachedVerdicts(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "alice@example.com", "https://a.example/x https://b.example/y"),
	}}
	cached := maliciousVerdict("https://b.example/y")
	cache := &stubCache{entries: map[string]*CacheEntry{
		"https://b.example/y": {
			URL:       "https://b.example/y",
			Verdict:   *cached,
			CreatedAt: time.Now().Add(-time.Minute),
			ExpiresAt: time.Now().Add(time.Hour),
		},
	}}
	scanner := &stubScanner{}

	svc := NewScanService(source, stubExtractor{}, scanner, cache, nil, nil, nil, nil,
		zap.NewNop(), true, time.Hour, 0, 5)

	report, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(scanner.calls) != 1 || scanner.calls[0] != "https://a.example/x" {
		t.Errorf("Expected only the uncached URL to be scanned, got %v", scanner.calls)
	}
	if report.MaliciousCount != 1 {
		t.Errorf("Expected the cached malicious verdict to count, got %d", report.MaliciousCount)
	}

	var fromCache *ScanVerdict
	for _, rec := range report.Records {
		if rec.Verdict != nil && rec.Verdict.URL == "https://b.example/y" {
			fromCache = rec.Verdict
		}
	}
	if fromCache == nil {
		t.Fatal("Expected a verdict for the cached URL")
	}
	if !fromCache.FromCache {
		t.Error("Expected the cached verdict to be marked FromCache")
	}

	if cache.sets != 1 {
		t.Errorf("Expected 1 fresh verdict cached, got %d", cache.sets)
	}
	entry, ok := cache.entries["https://a.example/x"]
	if !ok {
		t.Fatal("Expected the fresh verdict to be cached")
	}
	if !entry.ExpiresAt.After(entry.CreatedAt) {
		t.Error("Expected the cache entry to expire after its creation time")
	}
}

func TestRunCycleFiltersSeenMessages(t *testing.T) {
	msgs := []*EmailMessage{
		testMessage("m1", "alice@example.com", "https://a.example/x"),
	}
	source := &stubSource{msgs: msgs}
	seen := &stubSeen{}
	scanner := &stubScanner{}

	svc := NewScanService(source, stubExtractor{}, scanner, nil, nil, nil, seen, nil,
		zap.NewNop(), false, 0, 0, 5)

	first, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("First cycle failed: %v", err)
	}
	if first.EmailsProcessed != 1 || first.URLsFound != 1 {
		t.Errorf("Expected first cycle to process the message, got %d emails %d urls",
			first.EmailsProcessed, first.URLsFound)
	}

	second, err := svc.RunCycle(context.Background())
	if err != nil {
		t.Fatalf("Second cycle failed: %v", err)
	}
	if second.EmailsProcessed != 0 || second.URLsFound != 0 {
		t.Errorf("Expected second cycle to skip the seen message, got %d emails %d urls",
			second.EmailsProcessed, second.URLsFound)
	}

	if seen.saved != 2 {
		t.Errorf("Expected the seen set to be saved after each cycle, got %d saves", seen.saved)
	}
}

func TestRunCycleCancelledContextTalliesRemainder(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "alice@example.com", "https://a.example/x https://b.example/y"),
	}}
	scanner := &stubScanner{}

	svc := NewScanService(source, stubExtractor{}, scanner, nil, nil, nil, nil, nil,
		zap.NewNop(), false, 0, 0, 5)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	report, err := svc.RunCycle(ctx)
	if err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(scanner.calls) != 0 {
		t.Errorf("Expected no scans after cancellation, got %v", scanner.calls)
	}
	if report.FailureCount != 2 {
		t.Errorf("Expected both URLs tallied as failures, got %d", report.FailureCount)
	}
	if report.URLsScanned != 0 {
		t.Errorf("Expected no URLs scanned, got %d", report.URLsScanned)
	}
}

func TestRunCycleAttachesAssessmentToAlerts(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "mallory@evil.example", "https://b.example/y"),
	}}
	scanner := &stubScanner{verdicts: map[string]*ScanVerdict{
		"https://b.example/y": maliciousVerdict("https://b.example/y"),
	}}
	alerts := &stubAlerts{}
	analyzer := &stubAnalyzer{assessment: &EmailRiskAssessment{
		SenderRisk:   8,
		ContentRisk:  7,
		OverallScore: 8,
		Explanation:  "urgent payment demand from unknown sender",
		ModelUsed:    "test-model",
	}}

	svc := NewScanService(source, stubExtractor{}, scanner, nil, nil, alerts, nil, analyzer,
		zap.NewNop(), false, 0, 0, 5)

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if analyzer.calls != 1 {
		t.Errorf("Expected 1 analyzer call, got %d", analyzer.calls)
	}
	if len(alerts.raised) != 1 {
		t.Fatalf("Expected 1 alert, got %d", len(alerts.raised))
	}
	if alerts.raised[0].Assessment == nil {
		t.Fatal("Expected the assessment attached to the alert")
	}
	if alerts.raised[0].Assessment.OverallScore != 8 {
		t.Errorf("Expected overall score 8, got %v", alerts.raised[0].Assessment.OverallScore)
	}
}

func TestRunCycleAlertsSurviveAnalyzerFailure(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "mallory@evil.example", "https://b.example/y"),
	}}
	scanner := &stubScanner{verdicts: map[string]*ScanVerdict{
		"https://b.example/y": maliciousVerdict("https://b.example/y"),
	}}
	alerts := &stubAlerts{}
	analyzer := &stubAnalyzer{err: errors.New("model unavailable")}

	svc := NewScanService(source, stubExtractor{}, scanner, nil, nil, alerts, nil, analyzer,
		zap.NewNop(), false, 0, 0, 5)

	if _, err := svc.RunCycle(context.Background()); err != nil {
		t.Fatalf("RunCycle failed: %v", err)
	}

	if len(alerts.raised) != 1 {
		t.Fatalf("Expected the alert despite the analyzer failure, got %d", len(alerts.raised))
	}
	if alerts.raised[0].Assessment != nil {
		t.Error("Expected no assessment on the alert")
	}
}

func TestScanURLsRunsWithoutMailSource(t *testing.T) {
	scanner := &stubScanner{verdicts: map[string]*ScanVerdict{
		"https://b.example/y": maliciousVerdict("https://b.example/y"),
	}}

	svc := NewScanService(nil, stubExtractor{}, scanner, nil, nil, nil, nil, nil,
		zap.NewNop(), false, 0, 0, 0)

	report := svc.ScanURLs(context.Background(), []ExtractedURL{
		{RawURL: "https://a.example/x"},
		{RawURL: "https://b.example/y"},
	})

	if report.URLsFound != 2 || report.URLsScanned != 2 {
		t.Errorf("Expected 2 URLs found and scanned, got %d and %d",
			report.URLsFound, report.URLsScanned)
	}
	if report.MaliciousCount != 1 {
		t.Errorf("Expected 1 malicious URL, got %d", report.MaliciousCount)
	}
}

func TestStatsAccumulateAcrossCycles(t *testing.T) {
	source := &stubSource{msgs: []*EmailMessage{
		testMessage("m1", "alice@example.com", "https://a.example/x"),
	}}
	scanner := &stubScanner{}

	svc := NewScanService(source, stubExtractor{}, scanner, nil, nil, nil, nil, nil,
		zap.NewNop(), false, 0, 0, 5)

	for i := 0; i < 2; i++ {
		if _, err := svc.RunCycle(context.Background()); err != nil {
			t.Fatalf("Cycle %d failed: %v", i+1, err)
		}
	}

	stats := svc.Stats()
	if stats.CyclesRun != 2 {
		t.Errorf("Expected 2 cycles run, got %d", stats.CyclesRun)
	}
	if stats.EmailsProcessed != 2 {
		t.Errorf("Expected 2 emails processed in total, got %d", stats.EmailsProcessed)
	}
	if stats.URLsScanned != 2 {
		t.Errorf("Expected 2 URLs scanned in total, got %d", stats.URLsScanned)
	}
	if stats.LastCycleAt.IsZero() {
		t.Error("Expected the last cycle time to be recorded")
	}
}
