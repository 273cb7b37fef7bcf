package core

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// ScanService is the core service driving one polling cycle:
// fetch messages, extract URLs, scan each one, report and alert.
type ScanService struct {
	source       MailSource
	extractor    URLExtractor
	scanner      ThreatScanner
	cache        VerdictCache
	allowlist    AllowlistChecker
	alerts       AlertPublisher
	seen         SeenTracker
	analyzer     ContentAnalyzer
	logger       *zap.Logger
	cacheEnabled bool
	cacheTTL     time.Duration
	scanDelay    time.Duration
	maxEmails    int

	statsMu sync.Mutex
	stats   CycleStats
}

// NewScanService creates a new scan service
func NewScanService(
	source MailSource,
	extractor URLExtractor,
	scanner ThreatScanner,
	cache VerdictCache,
	allowlist AllowlistChecker,
	alerts AlertPublisher,
	seen SeenTracker,
	analyzer ContentAnalyzer,
	logger *zap.Logger,
	cacheEnabled bool,
	cacheTTL time.Duration,
	scanDelay time.Duration,
	maxEmails int,
) *ScanService {
	return &ScanService{
		source:       source,
		extractor:    extractor,
		scanner:      scanner,
		cache:        cache,
		allowlist:    allowlist,
		alerts:       alerts,
		seen:         seen,
		analyzer:     analyzer,
		logger:       logger,
		cacheEnabled: cacheEnabled,
		cacheTTL:     cacheTTL,
		scanDelay:    scanDelay,
		maxEmails:    maxEmails,
		stats:        CycleStats{StartedAt: time.Now()},
	}
}

// RunCycle executes one full fetch-extract-scan-report cycle.
// A source failure (including authentication) aborts the cycle; per-URL
// scan failures are recorded in the report and never abort it.
func (s *ScanService) RunCycle(ctx context.Context) (*ScanReport, error) {
	startedAt := time.Now()

	msgs, err := s.source.ListRecentMessages(ctx, s.maxEmails)
	if err != nil {
		s.recordCycleError(err)
		return nil, fmt.Errorf("failed to list recent messages: %w", err)
	}

	if s.seen != nil {
		before := len(msgs)
		msgs = s.seen.FilterNew(msgs)
		if skipped := before - len(msgs); skipped > 0 {
			s.logger.Debug("Skipped already-seen messages", zap.Int("skipped", skipped))
		}
	}

	urls := s.extractor.ExtractFromMessages(msgs)
	s.logger.Info("Extracted URLs from new messages",
		zap.Int("messages", len(msgs)),
		zap.Int("urls", len(urls)))

	records := s.scanAll(ctx, urls)

	report := &ScanReport{
		StartedAt:       startedAt,
		FinishedAt:      time.Now(),
		EmailsProcessed: len(msgs),
		URLsFound:       len(urls),
		Records:         records,
	}
	for _, rec := range records {
		switch {
		case rec.Failure != nil:
			report.FailureCount++
		case rec.Verdict != nil:
			report.URLsScanned++
			if rec.Verdict.Malicious {
				report.MaliciousCount++
			}
		}
	}

	s.raiseAlerts(ctx, records)

	if s.seen != nil {
		if err := s.seen.Save(); err != nil {
			s.logger.Error("Failed to persist seen messages", zap.Error(err))
		}
	}

	s.recordCycle(report)
	return report, nil
}

// ScanURLs runs the scan stage alone for an already-extracted URL set.
// Used by the one-shot CLI, which has no mail source.
func (s *ScanService) ScanURLs(ctx context.Context, urls []ExtractedURL) *ScanReport {
	startedAt := time.Now()
	records := s.scanAll(ctx, urls)
	report := &ScanReport{
		StartedAt:  startedAt,
		FinishedAt: time.Now(),
		URLsFound:  len(urls),
		Records:    records,
	}
	for _, rec := range records {
		switch {
		case rec.Failure != nil:
			report.FailureCount++
		case rec.Verdict != nil:
			report.URLsScanned++
			if rec.Verdict.Malicious {
				report.MaliciousCount++
			}
		}
	}
	return report
}

// scanAll scans each URL in order. One failing URL never prevents the
// rest of the batch from being scanned.
func (s *ScanService) scanAll(ctx context.Context, urls []ExtractedURL) []ScanRecord {
	records := make([]ScanRecord, 0, len(urls))
	submitted := false

	for i, u := range urls {
		if err := ctx.Err(); err != nil {
			// Cycle cancelled: tally the rest as failures rather than dropping them
			for _, rest := range urls[i:] {
				records = append(records, ScanRecord{
					URL:     rest,
					Failure: NewScanError(FailureTransport, rest.RawURL, err),
				})
			}
			break
		}

		if s.allowlist != nil && s.allowlist.IsAllowlisted(u.RawURL) {
			s.logger.Info("Skipping scan for allowlisted URL", zap.String("url", u.RawURL))
			records = append(records, ScanRecord{URL: u, Verdict: allowlistedVerdict(u.RawURL)})
			continue
		}

		if s.cacheEnabled && s.cache != nil {
			if entry, err := s.cache.Get(ctx, u.RawURL); err == nil {
				s.logger.Debug("Cache hit for URL", zap.String("url", u.RawURL))
				v := entry.Verdict
				v.FromCache = true
				records = append(records, ScanRecord{URL: u, Verdict: &v})
				continue
			}
		}

		// Pace submissions to the scanning service
		if submitted && s.scanDelay > 0 {
			select {
			case <-ctx.Done():
			case <-time.After(s.scanDelay):
			}
		}
		submitted = true

		s.logger.Info("Scanning URL", zap.String("url", u.RawURL))
		verdict, err := s.scanner.Scan(ctx, u.RawURL)
		if err != nil {
			scanErr := AsScanError(err, u.RawURL)
			s.logger.Warn("Scan failed",
				zap.String("url", u.RawURL),
				zap.String("kind", scanErr.Kind.String()),
				zap.Error(scanErr.Err))
			records = append(records, ScanRecord{URL: u, Failure: scanErr})
			continue
		}

		records = append(records, ScanRecord{URL: u, Verdict: verdict})

		if s.cacheEnabled && s.cache != nil {
			entry := &CacheEntry{
				URL:       u.RawURL,
				Verdict:   *verdict,
				CreatedAt: time.Now(),
				ExpiresAt: time.Now().Add(s.cacheTTL),
			}
			if err := s.cache.Set(ctx, entry); err != nil {
				s.logger.Error("Failed to update verdict cache", zap.Error(err))
			}
		}
	}

	return records
}

// raiseAlerts groups malicious verdicts by source message and raises one
// alert per flagged message.
func (s *ScanService) raiseAlerts(ctx context.Context, records []ScanRecord) {
	if s.alerts == nil {
		return
	}

	byMsg := make(map[*EmailMessage][]ScanVerdict)
	var order []*EmailMessage
	for _, rec := range records {
		if rec.Verdict == nil || !rec.Verdict.Malicious || rec.URL.Source == nil {
			continue
		}
		if _, ok := byMsg[rec.URL.Source]; !ok {
			order = append(order, rec.URL.Source)
		}
		byMsg[rec.URL.Source] = append(byMsg[rec.URL.Source], *rec.Verdict)
	}

	for _, msg := range order {
		var assessment *EmailRiskAssessment
		if s.analyzer != nil {
			a, err := s.analyzer.AssessEmail(ctx, msg)
			if err != nil {
				// Alerts still go out without the assessment
				s.logger.Warn("Content analysis failed", zap.String("sender", msg.Sender), zap.Error(err))
			} else {
				assessment = a
			}
		}

		alert, err := s.alerts.Raise(msg, byMsg[msg], assessment)
		if err != nil {
			s.logger.Error("Failed to raise alert", zap.String("sender", msg.Sender), zap.Error(err))
			continue
		}
		s.logger.Warn("Security alert raised",
			zap.String("id", alert.ID),
			zap.String("level", string(alert.Level)),
			zap.String("sender", msg.Sender))
	}
}

// Stats returns a copy of the running cycle statistics
func (s *ScanService) Stats() CycleStats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	return s.stats
}

func (s *ScanService) recordCycle(report *ScanReport) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.CyclesRun++
	s.stats.EmailsProcessed += report.EmailsProcessed
	s.stats.URLsFound += report.URLsFound
	s.stats.URLsScanned += report.URLsScanned
	s.stats.ThreatsDetected += report.MaliciousCount
	s.stats.ScanFailures += report.FailureCount
	s.stats.LastCycleAt = report.FinishedAt
	s.stats.LastCycleError = ""
}

func (s *ScanService) recordCycleError(err error) {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	s.stats.CyclesRun++
	s.stats.LastCycleAt = time.Now()
	s.stats.LastCycleError = err.Error()
}

// AsScanError coerces any scan error into a classified *ScanError
func AsScanError(err error, url string) *ScanError {
	var scanErr *ScanError
	if errors.As(err, &scanErr) {
		return scanErr
	}
	return NewScanError(FailureTransport, url, err)
}

func allowlistedVerdict(url string) *ScanVerdict {
	return &ScanVerdict{
		URL:        url,
		Score:      0,
		Categories: []string{"allowlisted"},
		Malicious:  false,
		ScannedAt:  time.Now(),
	}
}
