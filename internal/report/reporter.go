package report

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

const timeLayout = "2006-01-02 15:04:05"

// Reporter renders cycle reports to the console and appends them to the
// append-only activity log.
type Reporter struct {
	activityLog string
	out         io.Writer
	logger      *zap.Logger
}

// NewReporter creates a reporter writing to the given activity log path.
// An empty path disables the file sink.
func NewReporter(activityLog string, logger *zap.Logger) *Reporter {
	return &Reporter{
		activityLog: activityLog,
		out:         os.Stdout,
		logger:      logger,
	}
}

// Publish renders the report to the console and the activity log
func (r *Reporter) Publish(rep *core.ScanReport) error {
	text := r.Render(rep)
	fmt.Fprint(r.out, text)

	if r.activityLog == "" {
		return nil
	}
	file, err := os.OpenFile(r.activityLog, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open activity log: %w", err)
	}
	defer file.Close()

	if _, err := file.WriteString(text); err != nil {
		return fmt.Errorf("failed to append report: %w", err)
	}
	return nil
}

// Render formats one polling cycle. Verdicts and failures keep scan order.
func (r *Reporter) Render(rep *core.ScanReport) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	b.WriteString(rule + "\n")
	b.WriteString("URL SCAN REPORT\n")
	b.WriteString(rule + "\n")
	fmt.Fprintf(&b, "Started:          %s\n", rep.StartedAt.Format(timeLayout))
	fmt.Fprintf(&b, "Finished:         %s\n", rep.FinishedAt.Format(timeLayout))
	fmt.Fprintf(&b, "Emails Processed: %d\n", rep.EmailsProcessed)
	fmt.Fprintf(&b, "URLs Found:       %d\n", rep.URLsFound)
	fmt.Fprintf(&b, "URLs Scanned:     %d\n", rep.URLsScanned)
	fmt.Fprintf(&b, "Threats Detected: %d\n", rep.MaliciousCount)
	fmt.Fprintf(&b, "Scan Failures:    %d\n", rep.FailureCount)

	var verdictLines, failureLines []string
	for _, rec := range rep.Records {
		switch {
		case rec.Verdict != nil:
			verdictLines = append(verdictLines, renderVerdictLine(rec))
		case rec.Failure != nil:
			failureLines = append(failureLines, renderFailureLine(rec))
		}
	}

	if len(verdictLines) > 0 {
		b.WriteString("\nVerdicts:\n")
		for _, line := range verdictLines {
			b.WriteString(line)
		}
	}
	if len(failureLines) > 0 {
		b.WriteString("\nFailures:\n")
		for _, line := range failureLines {
			b.WriteString(line)
		}
	}

	b.WriteString(rule + "\n")
	return b.String()
}

func renderVerdictLine(rec core.ScanRecord) string {
	v := rec.Verdict
	flag := "clean"
	if v.Malicious {
		flag = "MALICIOUS"
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  - %s  score %d  %s", v.URL, v.Score, flag)
	if len(v.Categories) > 0 {
		fmt.Fprintf(&b, "  [%s]", strings.Join(v.Categories, ", "))
	}
	if v.FromCache {
		b.WriteString("  (cached)")
	}
	b.WriteString("\n")
	if rec.URL.Source != nil && rec.URL.Source.Sender != "" {
		fmt.Fprintf(&b, "      source: %s\n", rec.URL.Source.Sender)
	}
	return b.String()
}

func renderFailureLine(rec core.ScanRecord) string {
	f := rec.Failure
	if f.Err != nil {
		return fmt.Sprintf("  - %s  (%s) %v\n", rec.URL.RawURL, f.Kind, f.Err)
	}
	return fmt.Sprintf("  - %s  (%s)\n", rec.URL.RawURL, f.Kind)
}

// RenderStats formats the running totals shown between cycles and at shutdown
func (r *Reporter) RenderStats(stats core.CycleStats) string {
	var b strings.Builder
	b.WriteString("STATISTICS:\n")
	fmt.Fprintf(&b, "   Runtime: %s\n", time.Since(stats.StartedAt).Round(time.Second))
	fmt.Fprintf(&b, "   Cycles Run: %d\n", stats.CyclesRun)
	fmt.Fprintf(&b, "   Emails Processed: %d\n", stats.EmailsProcessed)
	fmt.Fprintf(&b, "   URLs Found: %d\n", stats.URLsFound)
	fmt.Fprintf(&b, "   URLs Scanned: %d\n", stats.URLsScanned)
	fmt.Fprintf(&b, "   Threats Detected: %d\n", stats.ThreatsDetected)
	fmt.Fprintf(&b, "   Scan Failures: %d\n", stats.ScanFailures)
	if stats.LastCycleError != "" {
		fmt.Fprintf(&b, "   Last Cycle Error: %s\n", stats.LastCycleError)
	}
	b.WriteString(strings.Repeat("-", 40) + "\n")
	return b.String()
}

// PrintStats renders the running totals to the console
func (r *Reporter) PrintStats(stats core.CycleStats) {
	fmt.Fprint(r.out, r.RenderStats(stats))
}
