package di

import (
	"flag"
	"strings"
	"time"

	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-sentinel/internal/adapters/urlscan"
	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/extract"
	"github.com/mikey/mail-sentinel/internal/logging"
	"github.com/mikey/mail-sentinel/internal/lookalike"
	"github.com/mikey/mail-sentinel/internal/scoring"
)

// URLList collects repeated -url flags
type URLList []string

// String returns the flag value as a comma-separated list
func (u *URLList) String() string {
	return strings.Join(*u, ",")
}

// Set appends one URL to the list
func (u *URLList) Set(value string) error {
	*u = append(*u, value)
	return nil
}

// CLIFlags contains all command line flags for the CLI application
type CLIFlags struct {
	// Input flags
	URLs    URLList
	File    string
	EmlFile string
	Search  string

	// Scanner flags
	APIKey     string
	Visibility string

	// Output flags
	Format    string
	LogFormat string
	Verbose   bool

	ConfigFile string
}

// ParseFlags parses command line flags and returns a CLIFlags struct
func ParseFlags() *CLIFlags {
	flags := &CLIFlags{}

	// Input flags
	flag.Var(&flags.URLs, "url", "URL to scan (repeatable)")
	flag.StringVar(&flags.File, "file", "", "File with URLs to scan, one per line")
	flag.StringVar(&flags.EmlFile, "eml", "", "Email file (.eml) to extract and scan URLs from")
	flag.StringVar(&flags.Search, "search", "", "Look up existing scans for a URL instead of submitting it")

	// Scanner flags
	flag.StringVar(&flags.APIKey, "api-key", "", "urlscan.io API key")
	flag.StringVar(&flags.Visibility, "visibility", "public", "Scan visibility (public, unlisted, private)")

	// Output flags
	flag.StringVar(&flags.Format, "format", "text", "Output format (text, json)")
	flag.StringVar(&flags.LogFormat, "log", "console", "Log format (console, json)")
	flag.BoolVar(&flags.Verbose, "verbose", false, "Enable verbose logging")

	flag.StringVar(&flags.ConfigFile, "config", "", "Path to config file (overrides command line flags)")

	flag.Parse()
	return flags
}

// BuildCLIContainer creates and configures a dependency injection container for the CLI application
func BuildCLIContainer(flags *CLIFlags) (*dig.Container, error) {
	container := dig.New()

	// Register flags
	if err := container.Provide(func() *CLIFlags { return flags }); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(func(flags *CLIFlags) (*zap.Logger, error) {
		return logging.InitConsoleLogger(flags.Verbose, flags.LogFormat == "json")
	}); err != nil {
		return nil, err
	}

	// Register configuration
	if err := container.Provide(func(flags *CLIFlags, logger *zap.Logger) (*config.Config, error) {
		if flags.ConfigFile != "" {
			cfg, err := config.NewFromFile(flags.ConfigFile)
			if err != nil {
				return nil, err
			}
			logger.Info("Loaded configuration from file", zap.String("file", flags.ConfigFile))
			return cfg, nil
		}

		// Create config from command line flags
		return createConfigFromFlags(flags), nil
	}); err != nil {
		return nil, err
	}

	// Register verdict scorer
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *scoring.Scorer {
		return scoring.NewScorer(cfg.GetScoring(), logger)
	}); err != nil {
		return nil, err
	}

	// Register lookalike detector
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *lookalike.Detector {
		lookalikeCfg := cfg.GetLookalike()
		return lookalike.NewDetector(lookalikeCfg.Enabled, lookalikeCfg.Brands, logger)
	}); err != nil {
		return nil, err
	}

	// Register URL extractor as its concrete type, the CLI reads bare text too
	if err := container.Provide(func(logger *zap.Logger) *extract.Extractor {
		return extract.NewExtractor(logger)
	}); err != nil {
		return nil, err
	}

	// Register URL scanner as its concrete type, the CLI also drives search lookups
	if err := container.Provide(func(
		cfg *config.Config,
		scorer *scoring.Scorer,
		detector *lookalike.Detector,
		logger *zap.Logger,
	) *urlscan.Client {
		return urlscan.NewClient(cfg.GetScanner(), scorer, detector, logger)
	}); err != nil {
		return nil, err
	}

	// Register scan service with no mail source, cache, alerts or seen tracking
	if err := container.Provide(func(
		extractor *extract.Extractor,
		scanner *urlscan.Client,
		cfg *config.Config,
		logger *zap.Logger,
	) *core.ScanService {
		return core.NewScanService(
			nil, // no mail source for one-shot scans
			extractor,
			scanner,
			nil, // no cache
			nil, // no allowlist
			nil, // no alerts
			nil, // no seen tracking
			nil, // no content analyzer
			logger,
			false,            // cache disabled
			time.Duration(0), // no TTL
			cfg.GetServer().ScanDelay,
			0,
		)
	}); err != nil {
		return nil, err
	}

	return container, nil
}

// createConfigFromFlags creates a configuration from command line flags
func createConfigFromFlags(flags *CLIFlags) *config.Config {
	v := config.NewEmptyViper()

	if flags.APIKey != "" {
		v.Set("scanner.api_key", flags.APIKey)
	}
	v.Set("scanner.visibility", flags.Visibility)

	return config.NewFromViper(v)
}
