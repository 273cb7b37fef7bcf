package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/di"
	"github.com/mikey/mail-sentinel/internal/monitoring"
	"github.com/mikey/mail-sentinel/internal/report"
	"github.com/mikey/mail-sentinel/internal/schedule"
	"go.uber.org/zap"
)

func main() {
	// Load a local .env if one exists
	_ = godotenv.Load()

	// Build the dependency injection container
	container, err := di.BuildContainer()
	if err != nil {
		fmt.Printf("Failed to build dependency container: %v\n", err)
		os.Exit(1)
	}

	// Run the application
	if err := container.Invoke(run); err != nil {
		fmt.Printf("Application error: %v\n", err)
		os.Exit(1)
	}
}

// run is the main application function that gets all dependencies injected
func run(
	cfg *config.Config,
	logger *zap.Logger,
	scheduler *schedule.Scheduler,
	healthServer *monitoring.HealthServer,
	reporter *report.Reporter,
	service *core.ScanService,
	source core.MailSource,
	verdictCache core.VerdictCache,
	analyzer core.ContentAnalyzer,
) error {
	defer logger.Sync()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Start the health endpoint when enabled
	monitoringEnabled := cfg.GetMonitoring().Enabled
	if monitoringEnabled {
		if err := healthServer.Start(); err != nil {
			logger.Fatal("Failed to start health server", zap.Error(err))
			return err
		}
	}

	// Start scheduled scan cycles
	if err := scheduler.Start(ctx); err != nil {
		logger.Fatal("Failed to start scheduler", zap.Error(err))
		return err
	}

	// Handle graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigCh:
		logger.Info("Shutting down...")
	case <-scheduler.Done():
		logger.Info("Cycle limit reached, shutting down...")
	}
	cancel()

	// Stop the scheduler and wait for any in-flight cycle
	scheduler.Stop()

	// Stop the health endpoint
	if monitoringEnabled {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		if err := healthServer.Stop(shutdownCtx); err != nil {
			logger.Error("Failed to stop health server", zap.Error(err))
		}
	}

	// Stop the mail source if needed
	if stopper, ok := source.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	// Close any resources that need closing
	if closer, ok := analyzer.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			logger.Error("Failed to close content analyzer", zap.Error(err))
		}
	}

	// Stop the cache if needed
	if stopper, ok := verdictCache.(interface{ Stop() }); ok {
		stopper.Stop()
	}

	reporter.PrintStats(service.Stats())

	logger.Info("Shutdown complete")
	return nil
}
