package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/mikey/mail-sentinel/internal/adapters/mailfile"
	"github.com/mikey/mail-sentinel/internal/adapters/urlscan"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/di"
	"github.com/mikey/mail-sentinel/internal/extract"
	"github.com/mikey/mail-sentinel/internal/report"
	"go.uber.org/zap"
)

// Exit codes: 0 clean, 1 hard failure, 2 at least one malicious verdict
const (
	exitClean     = 0
	exitFailure   = 1
	exitMalicious = 2
)

func main() {
	// Load a local .env if one exists
	_ = godotenv.Load()

	flags := di.ParseFlags()

	// Build the dependency injection container
	container, err := di.BuildCLIContainer(flags)
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(exitFailure)
	}

	exitCode := exitClean
	if err := container.Invoke(func(
		flags *di.CLIFlags,
		logger *zap.Logger,
		extractor *extract.Extractor,
		scanner *urlscan.Client,
		service *core.ScanService,
	) error {
		defer logger.Sync()
		code, err := run(flags, logger, extractor, scanner, service)
		exitCode = code
		return err
	}); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(exitFailure)
	}
	os.Exit(exitCode)
}

// run executes one CLI invocation and returns the process exit code
func run(
	flags *di.CLIFlags,
	logger *zap.Logger,
	extractor *extract.Extractor,
	scanner *urlscan.Client,
	service *core.ScanService,
) (int, error) {
	if flags.Format != "text" && flags.Format != "json" {
		return exitFailure, fmt.Errorf("unsupported output format: %s", flags.Format)
	}

	ctx := context.Background()

	if flags.Search != "" {
		return runSearch(ctx, flags, scanner, logger)
	}

	targets, err := collectTargets(flags, logger, extractor)
	if err != nil {
		return exitFailure, err
	}
	if len(targets) == 0 {
		return exitFailure, fmt.Errorf("nothing to scan: pass -url, -file or -eml")
	}

	rep := service.ScanURLs(ctx, targets)

	if err := printReport(flags.Format, rep, logger); err != nil {
		return exitFailure, err
	}

	if rep.MaliciousCount > 0 {
		return exitMalicious, nil
	}
	return exitClean, nil
}

// runSearch looks up the latest finished scan for one URL without submitting it
func runSearch(ctx context.Context, flags *di.CLIFlags, scanner *urlscan.Client, logger *zap.Logger) (int, error) {
	verdict, err := scanner.Search(ctx, flags.Search)
	if err != nil {
		if errors.Is(err, urlscan.ErrNoResults) {
			fmt.Printf("No finished scans found for %s\n", flags.Search)
			return exitClean, nil
		}
		return exitFailure, err
	}

	rep := &core.ScanReport{
		StartedAt:   time.Now(),
		FinishedAt:  time.Now(),
		URLsFound:   1,
		URLsScanned: 1,
		Records: []core.ScanRecord{
			{URL: core.ExtractedURL{RawURL: verdict.URL}, Verdict: verdict},
		},
	}
	if verdict.Malicious {
		rep.MaliciousCount = 1
	}

	if err := printReport(flags.Format, rep, logger); err != nil {
		return exitFailure, err
	}

	if verdict.Malicious {
		return exitMalicious, nil
	}
	return exitClean, nil
}

// collectTargets gathers the unique URL set from flags, a URL file and an email file
func collectTargets(flags *di.CLIFlags, logger *zap.Logger, extractor *extract.Extractor) ([]core.ExtractedURL, error) {
	var targets []core.ExtractedURL
	seen := make(map[string]struct{})

	add := func(raw string, src *core.EmailMessage) {
		cleaned, ok := extract.CleanURL(raw)
		if !ok {
			logger.Warn("Skipping invalid URL", zap.String("url", raw))
			return
		}
		if _, dup := seen[cleaned]; dup {
			return
		}
		seen[cleaned] = struct{}{}
		targets = append(targets, core.ExtractedURL{RawURL: cleaned, Source: src})
	}

	for _, raw := range flags.URLs {
		add(raw, nil)
	}

	if flags.File != "" {
		data, err := os.ReadFile(flags.File)
		if err != nil {
			return nil, fmt.Errorf("failed to read URL file: %w", err)
		}
		for _, raw := range extractor.FromText(string(data)) {
			add(raw, nil)
		}
	}

	if flags.EmlFile != "" {
		msg, err := mailfile.ReadFile(flags.EmlFile)
		if err != nil {
			return nil, err
		}
		for _, u := range extractor.ExtractFromMessages([]*core.EmailMessage{msg}) {
			add(u.RawURL, u.Source)
		}
	}

	return targets, nil
}

// printReport renders the report in the requested format
func printReport(format string, rep *core.ScanReport, logger *zap.Logger) error {
	switch format {
	case "json":
		out, err := json.MarshalIndent(buildJSONReport(rep), "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode report: %w", err)
		}
		fmt.Println(string(out))
		return nil
	default:
		reporter := report.NewReporter("", logger)
		return reporter.Publish(rep)
	}
}

// jsonReport is the machine-readable report layout
type jsonReport struct {
	URLsFound       int          `json:"urls_found"`
	URLsScanned     int          `json:"urls_scanned"`
	ThreatsDetected int          `json:"threats_detected"`
	ScanFailures    int          `json:"scan_failures"`
	Results         []jsonResult `json:"results"`
}

// jsonResult is one URL outcome in the machine-readable report
type jsonResult struct {
	URL        string   `json:"url"`
	Score      int      `json:"score"`
	Malicious  bool     `json:"malicious"`
	Categories []string `json:"categories,omitempty"`
	ReportURL  string   `json:"report_url,omitempty"`
	FromCache  bool     `json:"from_cache,omitempty"`
	Source     string   `json:"source,omitempty"`
	Error      string   `json:"error,omitempty"`
	ErrorKind  string   `json:"error_kind,omitempty"`
}

func buildJSONReport(rep *core.ScanReport) jsonReport {
	out := jsonReport{
		URLsFound:       rep.URLsFound,
		URLsScanned:     rep.URLsScanned,
		ThreatsDetected: rep.MaliciousCount,
		ScanFailures:    rep.FailureCount,
		Results:         make([]jsonResult, 0, len(rep.Records)),
	}

	for _, rec := range rep.Records {
		switch {
		case rec.Verdict != nil:
			res := jsonResult{
				URL:        rec.Verdict.URL,
				Score:      rec.Verdict.Score,
				Malicious:  rec.Verdict.Malicious,
				Categories: rec.Verdict.Categories,
				ReportURL:  rec.Verdict.ReportURL,
				FromCache:  rec.Verdict.FromCache,
			}
			if rec.URL.Source != nil {
				res.Source = rec.URL.Source.Sender
			}
			out.Results = append(out.Results, res)
		case rec.Failure != nil:
			res := jsonResult{
				URL:       rec.URL.RawURL,
				ErrorKind: rec.Failure.Kind.String(),
			}
			if rec.Failure.Err != nil {
				res.Error = rec.Failure.Err.Error()
			}
			out.Results = append(out.Results, res)
		}
	}

	return out
}
