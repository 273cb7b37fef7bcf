package monitoring

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/shirou/gopsutil/cpu"
	"github.com/shirou/gopsutil/mem"
	"go.uber.org/zap"
)

// HealthServer exposes /health and /status endpoints for the daemon
type HealthServer struct {
	monitor    *Monitor
	logger     *zap.Logger
	listenAddr string
	server     *http.Server
	startedAt  time.Time
}

type healthResponse struct {
	Status string `json:"status"`
	Detail string `json:"detail,omitempty"`
}

type statusResponse struct {
	Status    string        `json:"status"`
	Uptime    string        `json:"uptime"`
	Cycles    cycleTotals   `json:"cycles"`
	LastCycle lastCycleInfo `json:"last_cycle"`
	Host      hostInfo      `json:"host"`
}

type cycleTotals struct {
	CyclesRun       int `json:"cycles_run"`
	EmailsProcessed int `json:"emails_processed"`
	URLsFound       int `json:"urls_found"`
	URLsScanned     int `json:"urls_scanned"`
	ThreatsDetected int `json:"threats_detected"`
	ScanFailures    int `json:"scan_failures"`
}

type lastCycleInfo struct {
	At    string `json:"at,omitempty"`
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

type hostInfo struct {
	Hostname          string  `json:"hostname"`
	CPUCount          int     `json:"cpu_count"`
	MemoryUsedPercent float64 `json:"memory_used_percent"`
}

// NewHealthServer creates a new health check server
func NewHealthServer(monitor *Monitor, listenAddr string, logger *zap.Logger) *HealthServer {
	return &HealthServer{
		monitor:    monitor,
		logger:     logger,
		listenAddr: listenAddr,
	}
}

// Start starts the health check server
func (h *HealthServer) Start() error {
	h.startedAt = time.Now()

	mux := http.NewServeMux()
	mux.HandleFunc("/health", h.healthHandler)
	mux.HandleFunc("/status", h.statusHandler)

	h.server = &http.Server{
		Addr:    h.listenAddr,
		Handler: mux,
	}

	h.logger.Info("Health server started", zap.String("address", h.listenAddr))

	go func() {
		if err := h.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			h.logger.Error("Health server error", zap.Error(err))
		}
	}()

	return nil
}

// Stop shuts the health check server down
func (h *HealthServer) Stop(ctx context.Context) error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(ctx)
}

func (h *HealthServer) healthHandler(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if h.monitor.IsHealthy() {
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(healthResponse{Status: "ok"})
		return
	}

	w.WriteHeader(http.StatusServiceUnavailable)
	json.NewEncoder(w).Encode(healthResponse{
		Status: "unhealthy",
		Detail: h.monitor.StatusSummary(),
	})
}

func (h *HealthServer) statusHandler(w http.ResponseWriter, r *http.Request) {
	stats := h.monitor.Stats()
	lastAt, lastOK, lastErr := h.monitor.lastCycle()

	status := "ok"
	if !h.monitor.IsHealthy() {
		status = "unhealthy"
	}

	resp := statusResponse{
		Status: status,
		Uptime: time.Since(h.startedAt).Round(time.Second).String(),
		Cycles: cycleTotals{
			CyclesRun:       stats.CyclesRun,
			EmailsProcessed: stats.EmailsProcessed,
			URLsFound:       stats.URLsFound,
			URLsScanned:     stats.URLsScanned,
			ThreatsDetected: stats.ThreatsDetected,
			ScanFailures:    stats.ScanFailures,
		},
		LastCycle: lastCycleInfo{
			OK:    lastOK,
			Error: lastErr,
		},
		Host: collectHostInfo(),
	}
	if !lastAt.IsZero() {
		resp.LastCycle.At = lastAt.UTC().Format(time.RFC3339)
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		h.logger.Error("Failed to encode status response", zap.Error(err))
	}
}

// collectHostInfo gathers host readings, falling back to runtime values
// when system probes fail.
func collectHostInfo() hostInfo {
	info := hostInfo{CPUCount: runtime.NumCPU()}

	if hostname, err := os.Hostname(); err == nil {
		info.Hostname = hostname
	}
	if count, err := cpu.Counts(true); err == nil && count > 0 {
		info.CPUCount = count
	}
	if vmStat, err := mem.VirtualMemory(); err == nil {
		info.MemoryUsedPercent = vmStat.UsedPercent
	}

	return info
}
