package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/monitoring"
	"github.com/mikey/mail-sentinel/internal/report"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
)

// Scheduler drives polling cycles on a cron schedule
type Scheduler struct {
	service   *core.ScanService
	reporter  *report.Reporter
	monitor   *monitoring.Monitor
	logger    *zap.Logger
	schedule  string
	maxCycles int
	cron      *cron.Cron

	runMu    sync.Mutex
	countMu  sync.Mutex
	cycles   int
	done     chan struct{}
	doneOnce sync.Once
}

// NewScheduler creates a new cycle scheduler.
// maxCycles 0 runs until stopped.
func NewScheduler(
	service *core.ScanService,
	reporter *report.Reporter,
	monitor *monitoring.Monitor,
	schedule string,
	maxCycles int,
	logger *zap.Logger,
) *Scheduler {
	return &Scheduler{
		service:   service,
		reporter:  reporter,
		monitor:   monitor,
		logger:    logger,
		schedule:  schedule,
		maxCycles: maxCycles,
		// Skip a tick rather than overlap a still-running cycle
		cron: cron.New(cron.WithSeconds(), cron.WithChain(cron.SkipIfStillRunning(cron.DefaultLogger))),
		done: make(chan struct{}),
	}
}

// Start schedules cycles and kicks off the first one immediately
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(s.schedule, func() { s.runCycle(ctx) }); err != nil {
		return fmt.Errorf("failed to schedule cycles: %w", err)
	}

	s.logger.Info("Scheduler started",
		zap.String("schedule", s.schedule),
		zap.Int("max_cycles", s.maxCycles))
	s.cron.Start()

	// First cycle runs right away rather than waiting for the first tick
	go s.runCycle(ctx)

	return nil
}

// Stop stops the cron loop and waits for any in-flight cycle to finish
func (s *Scheduler) Stop() {
	<-s.cron.Stop().Done()
	s.runMu.Lock()
	s.runMu.Unlock()
	s.logger.Info("Scheduler stopped")
}

// Done is closed once the configured cycle limit is reached
func (s *Scheduler) Done() <-chan struct{} {
	return s.done
}

// Cycles returns the number of completed cycles
func (s *Scheduler) Cycles() int {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.cycles
}

// runCycle executes one cycle. The immediate first run and cron ticks
// share one guard so cycles never overlap.
func (s *Scheduler) runCycle(ctx context.Context) {
	if !s.runMu.TryLock() {
		s.logger.Debug("Previous cycle still running, skipping this tick")
		return
	}
	defer s.runMu.Unlock()

	if s.limitReached() || ctx.Err() != nil {
		return
	}

	started := time.Now()
	s.logger.Info("Starting polling cycle")

	result, err := s.service.RunCycle(ctx)
	if err != nil {
		s.monitor.RecordCycleFailure(err, time.Since(started))
	} else {
		s.monitor.RecordCycleSuccess(result)
		if s.reporter != nil {
			if err := s.reporter.Publish(result); err != nil {
				s.logger.Error("Failed to publish cycle report", zap.Error(err))
			}
		}
	}

	s.finishCycle()
}

func (s *Scheduler) limitReached() bool {
	s.countMu.Lock()
	defer s.countMu.Unlock()
	return s.maxCycles > 0 && s.cycles >= s.maxCycles
}

func (s *Scheduler) finishCycle() {
	s.countMu.Lock()
	s.cycles++
	reached := s.maxCycles > 0 && s.cycles >= s.maxCycles
	s.countMu.Unlock()

	if reached {
		s.logger.Info("Reached configured cycle limit", zap.Int("cycles", s.maxCycles))
		s.doneOnce.Do(func() { close(s.done) })
	}
}
