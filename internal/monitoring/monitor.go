package monitoring

import (
	"fmt"
	"sync"
	"time"

	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

// StatsSource provides the running cycle statistics exposed on /status
type StatsSource interface {
	Stats() core.CycleStats
}

// Monitor tracks the outcome of polling cycles for health reporting
type Monitor struct {
	mu             sync.Mutex
	lastCycleOK    bool
	lastCycleTime  time.Time
	lastCycleError string
	stats          StatsSource
	logger         *zap.Logger
}

// NewMonitor creates a new cycle monitor
func NewMonitor(stats StatsSource, logger *zap.Logger) *Monitor {
	return &Monitor{
		stats:  stats,
		logger: logger,
	}
}

// RecordCycleSuccess records a completed cycle
func (m *Monitor) RecordCycleSuccess(report *core.ScanReport) {
	m.mu.Lock()
	m.lastCycleOK = true
	m.lastCycleTime = time.Now()
	m.lastCycleError = ""
	m.mu.Unlock()

	m.logger.Info("Cycle completed",
		zap.Int("emails", report.EmailsProcessed),
		zap.Int("urls", report.URLsFound),
		zap.Int("threats", report.MaliciousCount),
		zap.Int("failures", report.FailureCount),
		zap.Duration("took", report.FinishedAt.Sub(report.StartedAt)))
}

// RecordCycleFailure records a cycle that aborted before producing a report
func (m *Monitor) RecordCycleFailure(err error, duration time.Duration) {
	m.mu.Lock()
	m.lastCycleOK = false
	m.lastCycleTime = time.Now()
	m.lastCycleError = err.Error()
	m.mu.Unlock()

	m.logger.Error("Cycle failed", zap.Error(err), zap.Duration("took", duration))
}

// IsHealthy reports whether the last cycle completed.
// Before the first cycle the service is considered healthy.
func (m *Monitor) IsHealthy() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastCycleTime.IsZero() {
		return true
	}
	return m.lastCycleOK
}

// StatusSummary returns a one-line description of the last cycle
func (m *Monitor) StatusSummary() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.lastCycleTime.IsZero() {
		return "no cycles yet"
	}
	if m.lastCycleOK {
		return fmt.Sprintf("last cycle at %s", m.lastCycleTime.Format("2006-01-02 15:04:05"))
	}
	return fmt.Sprintf("last cycle failed at %s: %s", m.lastCycleTime.Format("2006-01-02 15:04:05"), m.lastCycleError)
}

func (m *Monitor) lastCycle() (time.Time, bool, string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastCycleTime, m.lastCycleOK, m.lastCycleError
}

// Stats returns the running cycle statistics, zero-valued when no source is wired
func (m *Monitor) Stats() core.CycleStats {
	if m.stats == nil {
		return core.CycleStats{}
	}
	return m.stats.Stats()
}
