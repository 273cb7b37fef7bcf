package di

import (
	"go.uber.org/dig"
	"go.uber.org/zap"

	"github.com/mikey/mail-sentinel/internal/adapters/urlscan"
	"github.com/mikey/mail-sentinel/internal/alert"
	"github.com/mikey/mail-sentinel/internal/allowlist"
	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/extract"
	"github.com/mikey/mail-sentinel/internal/factory"
	"github.com/mikey/mail-sentinel/internal/logging"
	"github.com/mikey/mail-sentinel/internal/lookalike"
	"github.com/mikey/mail-sentinel/internal/monitoring"
	"github.com/mikey/mail-sentinel/internal/report"
	"github.com/mikey/mail-sentinel/internal/schedule"
	"github.com/mikey/mail-sentinel/internal/scoring"
	"github.com/mikey/mail-sentinel/internal/seen"
	"github.com/mikey/mail-sentinel/internal/utils"
)

// BuildContainer creates and configures a dependency injection container
func BuildContainer() (*dig.Container, error) {
	container := dig.New()

	// Register configuration
	if err := container.Provide(config.New); err != nil {
		return nil, err
	}

	// Register logger
	if err := container.Provide(logging.InitLogger); err != nil {
		return nil, err
	}

	// Register factories
	if err := container.Provide(factory.NewTextProcessorFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewCacheFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewSourceFactory); err != nil {
		return nil, err
	}
	if err := container.Provide(factory.NewAnalyzerFactory); err != nil {
		return nil, err
	}

	// Register text processor
	if err := container.Provide(func(f *factory.TextProcessorFactory) *utils.TextProcessor {
		return f.CreateTextProcessor()
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

	// Register URL extractor
	if err := container.Provide(func(logger *zap.Logger) core.URLExtractor {
		return extract.NewExtractor(logger)
	}); err != nil {
		return nil, err
	}

	// Register threat scanner
	if err := container.Provide(func(
		cfg *config.Config,
		scorer *scoring.Scorer,
		detector *lookalike.Detector,
		logger *zap.Logger,
	) core.ThreatScanner {
		return urlscan.NewClient(cfg.GetScanner(), scorer, detector, logger)
	}); err != nil {
		return nil, err
	}

	// Register verdict cache
	if err := container.Provide(func(f *factory.CacheFactory) (core.VerdictCache, error) {
		return f.CreateVerdictCache()
	}); err != nil {
		return nil, err
	}

	// Register mail source
	if err := container.Provide(func(f *factory.SourceFactory) (core.MailSource, error) {
		return f.CreateMailSource()
	}); err != nil {
		return nil, err
	}

	// Register content analyzer
	if err := container.Provide(func(f *factory.AnalyzerFactory) (core.ContentAnalyzer, error) {
		return f.CreateContentAnalyzer()
	}); err != nil {
		return nil, err
	}

	// Register allowlist checker
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.AllowlistChecker, error) {
		allowlistCfg := cfg.GetAllowlist()
		return allowlist.NewChecker(allowlistCfg.Enabled, allowlistCfg.Domains, allowlistCfg.File, logger)
	}); err != nil {
		return nil, err
	}

	// Register alert publisher
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger, text *utils.TextProcessor) core.AlertPublisher {
		return alert.NewEngine(cfg.GetAlerts(), logger, text)
	}); err != nil {
		return nil, err
	}

	// Register seen-message tracker
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) (core.SeenTracker, error) {
		seenCfg := cfg.GetSeen()
		return seen.NewTracker(seenCfg.File, seenCfg.MaxAge, logger)
	}); err != nil {
		return nil, err
	}

	// Register scan service
	if err := container.Provide(func(
		source core.MailSource,
		extractor core.URLExtractor,
		scanner core.ThreatScanner,
		verdictCache core.VerdictCache,
		checker core.AllowlistChecker,
		alerts core.AlertPublisher,
		tracker core.SeenTracker,
		analyzer core.ContentAnalyzer,
		cacheFactory *factory.CacheFactory,
		cfg *config.Config,
		logger *zap.Logger,
	) (*core.ScanService, error) {
		cacheTTL, err := cacheFactory.GetCacheTTL()
		if err != nil {
			return nil, err
		}
		serverCfg := cfg.GetServer()
		return core.NewScanService(
			source,
			extractor,
			scanner,
			verdictCache,
			checker,
			alerts,
			tracker,
			analyzer,
			logger,
			cacheFactory.IsCacheEnabled(),
			cacheTTL,
			serverCfg.ScanDelay,
			serverCfg.MaxEmails,
		), nil
	}); err != nil {
		return nil, err
	}

	// Register cycle reporter
	if err := container.Provide(func(cfg *config.Config, logger *zap.Logger) *report.Reporter {
		return report.NewReporter(cfg.GetServer().ActivityLog, logger)
	}); err != nil {
		return nil, err
	}

	// Register cycle monitor
	if err := container.Provide(func(service *core.ScanService, logger *zap.Logger) *monitoring.Monitor {
		return monitoring.NewMonitor(service, logger)
	}); err != nil {
		return nil, err
	}

	// Register health server
	if err := container.Provide(func(
		monitor *monitoring.Monitor,
		cfg *config.Config,
		logger *zap.Logger,
	) *monitoring.HealthServer {
		return monitoring.NewHealthServer(monitor, cfg.GetMonitoring().ListenAddress, logger)
	}); err != nil {
		return nil, err
	}

	// Register cycle scheduler
	if err := container.Provide(func(
		service *core.ScanService,
		reporter *report.Reporter,
		monitor *monitoring.Monitor,
		cfg *config.Config,
		logger *zap.Logger,
	) *schedule.Scheduler {
		serverCfg := cfg.GetServer()
		return schedule.NewScheduler(service, reporter, monitor, serverCfg.PollSchedule, serverCfg.Cycles, logger)
	}); err != nil {
		return nil, err
	}

	return container, nil
}
