package report

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

func fixtureReport() *core.ScanReport {
	started := time.Date(2026, 8, 20, 12, 0, 0, 0, time.UTC)
	msg := &core.EmailMessage{Sender: "attacker@evil.example", Subject: "verify"}

	return &core.ScanReport{
		StartedAt:       started,
		FinishedAt:      started.Add(41 * time.Second),
		EmailsProcessed: 2,
		URLsFound:       3,
		URLsScanned:     2,
		MaliciousCount:  1,
		FailureCount:    1,
		Records: []core.ScanRecord{
			{
				URL: core.ExtractedURL{RawURL: "https://evil.example/login", Source: msg},
				Verdict: &core.ScanVerdict{
					URL:        "https://evil.example/login",
					Score:      90,
					Categories: []string{"phishing"},
					Malicious:  true,
				},
			},
			{
				URL: core.ExtractedURL{RawURL: "https://ok.example/"},
				Verdict: &core.ScanVerdict{
					URL:       "https://ok.example/",
					Score:     0,
					FromCache: true,
				},
			},
			{
				URL:     core.ExtractedURL{RawURL: "https://slow.example/"},
				Failure: core.NewScanError(core.FailureTimeout, "https://slow.example/", nil),
			},
		},
	}
}

func TestRenderReport(t *testing.T) {
	r := NewReporter("", zap.NewNop())
	text := r.Render(fixtureReport())

	wants := []string{
		"URL SCAN REPORT",
		"Emails Processed: 2",
		"URLs Found:       3",
		"URLs Scanned:     2",
		"Threats Detected: 1",
		"Scan Failures:    1",
		"https://evil.example/login  score 90  MALICIOUS  [phishing]",
		"source: attacker@evil.example",
		"https://ok.example/  score 0  clean  (cached)",
		"https://slow.example/  (timeout)",
	}
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Errorf("Expected report to contain %q", want)
		}
	}
}

func TestRenderKeepsScanOrder(t *testing.T) {
	r := NewReporter("", zap.NewNop())
	text := r.Render(fixtureReport())

	first := strings.Index(text, "https://evil.example/login")
	second := strings.Index(text, "https://ok.example/")
	if first == -1 || second == -1 || first > second {
		t.Error("Expected verdicts to keep scan order")
	}
}

func TestPublishAppendsToActivityLog(t *testing.T) {
	logPath := filepath.Join(t.TempDir(), "activity.log")
	r := NewReporter(logPath, zap.NewNop())
	var console bytes.Buffer
	r.out = &console

	if err := r.Publish(fixtureReport()); err != nil {
		t.Fatalf("Expected publish to succeed, got %v", err)
	}
	if err := r.Publish(fixtureReport()); err != nil {
		t.Fatalf("Expected second publish to succeed, got %v", err)
	}

	if !strings.Contains(console.String(), "URL SCAN REPORT") {
		t.Error("Expected report on the console")
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("Expected activity log to exist, got %v", err)
	}
	if got := strings.Count(string(data), "URL SCAN REPORT"); got != 2 {
		t.Errorf("Expected 2 appended reports, got %d", got)
	}
}

func TestRenderStats(t *testing.T) {
	r := NewReporter("", zap.NewNop())
	stats := core.CycleStats{
		StartedAt:       time.Now().Add(-time.Minute),
		CyclesRun:       4,
		EmailsProcessed: 7,
		URLsFound:       12,
		URLsScanned:     11,
		ThreatsDetected: 2,
		ScanFailures:    1,
		LastCycleError:  "login failed",
	}

	text := r.RenderStats(stats)
	wants := []string{
		"STATISTICS:",
		"Cycles Run: 4",
		"Emails Processed: 7",
		"URLs Found: 12",
		"URLs Scanned: 11",
		"Threats Detected: 2",
		"Scan Failures: 1",
		"Last Cycle Error: login failed",
	}
	for _, want := range wants {
		if !strings.Contains(text, want) {
			t.Errorf("Expected stats to contain %q", want)
		}
	}
}
