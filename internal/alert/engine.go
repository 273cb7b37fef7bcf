package alert

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/utils"
	"go.uber.org/zap"
)

const previewLength = 200

// Engine builds security alerts for flagged messages, appends them to the
// alert log, prints them to the console and keeps an in-memory history.
type Engine struct {
	cfg     config.AlertsConfig
	logger  *zap.Logger
	text    *utils.TextProcessor
	out     io.Writer
	history []core.Alert
	mu      sync.Mutex
}

// Summary aggregates the recorded alerts
type Summary struct {
	TotalAlerts int                     `json:"total_alerts"`
	AlertLevels map[core.AlertLevel]int `json:"alert_levels"`
	RiskLevels  map[core.AlertLevel]int `json:"risk_levels"`
	LatestAlert time.Time               `json:"latest_alert,omitempty"`
}

type verdictJSON struct {
	URL        string   `json:"url"`
	Score      int      `json:"score"`
	Malicious  bool     `json:"malicious"`
	Categories []string `json:"categories,omitempty"`
	Indicators []string `json:"indicators,omitempty"`
	ReportURL  string   `json:"report_url,omitempty"`
}

type assessmentJSON struct {
	SenderRisk   float64 `json:"sender_risk"`
	ContentRisk  float64 `json:"content_risk"`
	OverallScore float64 `json:"overall_score"`
	Explanation  string  `json:"explanation,omitempty"`
	ModelUsed    string  `json:"model_used,omitempty"`
}

type alertJSON struct {
	ID          string          `json:"alert_id"`
	Timestamp   time.Time       `json:"timestamp"`
	Level       core.AlertLevel `json:"alert_level"`
	OverallRisk core.AlertLevel `json:"overall_risk"`
	Sender      string          `json:"sender"`
	Subject     string          `json:"subject"`
	BodyPreview string          `json:"body_preview,omitempty"`
	Assessment  *assessmentJSON `json:"email_analysis,omitempty"`
	URLScans    []verdictJSON   `json:"url_scans"`
}

// NewEngine creates an alert engine writing to the configured alert log
func NewEngine(cfg config.AlertsConfig, logger *zap.Logger, text *utils.TextProcessor) *Engine {
	return &Engine{
		cfg:    cfg,
		logger: logger,
		text:   text,
		out:    os.Stdout,
	}
}

// Raise builds, records, and displays an alert for a flagged message
func (e *Engine) Raise(msg *core.EmailMessage, verdicts []core.ScanVerdict, assessment *core.EmailRiskAssessment) (*core.Alert, error) {
	now := time.Now()
	alert := core.Alert{
		ID:          fmt.Sprintf("alert_%s", now.Format("20060102_150405")),
		CreatedAt:   now,
		Level:       determineLevel(verdicts, assessment),
		OverallRisk: e.riskBand(overallRiskScore(verdicts, assessment)),
		Sender:      msg.Sender,
		Subject:     msg.Subject,
		BodyPreview: e.text.BodyPreview(msg.Body, previewLength),
		Verdicts:    verdicts,
		Assessment:  assessment,
	}

	e.mu.Lock()
	e.history = append(e.history, alert)
	e.mu.Unlock()

	fmt.Fprint(e.out, e.renderConsole(&alert))
	e.logger.Warn("Security alert triggered",
		zap.String("alert_id", alert.ID),
		zap.String("level", string(alert.Level)),
		zap.String("sender", alert.Sender))

	if err := e.appendToFile(&alert); err != nil {
		return &alert, fmt.Errorf("failed to record alert: %w", err)
	}
	return &alert, nil
}

// overallRiskScore combines the analyzer score with the URL verdict scores
// scaled down to the same range
func overallRiskScore(verdicts []core.ScanVerdict, assessment *core.EmailRiskAssessment) float64 {
	total := 0.0
	if assessment != nil {
		total += assessment.OverallScore
	}
	for _, v := range verdicts {
		total += float64(v.Score) / 10
	}
	return total
}

// riskBand maps a combined risk score onto the configured severity bands
func (e *Engine) riskBand(score float64) core.AlertLevel {
	switch {
	case score >= e.cfg.CriticalThreshold:
		return core.AlertCritical
	case score >= e.cfg.HighThreshold:
		return core.AlertHigh
	case score >= e.cfg.MediumThreshold:
		return core.AlertMedium
	case score >= e.cfg.LowThreshold:
		return core.AlertLow
	default:
		return core.AlertSafe
	}
}

// determineLevel derives the alert level from the threat descriptions
func determineLevel(verdicts []core.ScanVerdict, assessment *core.EmailRiskAssessment) core.AlertLevel {
	var threats []string
	for _, v := range verdicts {
		threats = append(threats, v.Categories...)
		threats = append(threats, v.Indicators...)
	}
	if assessment != nil && assessment.Explanation != "" {
		threats = append(threats, assessment.Explanation)
	}

	containsAny := func(keywords ...string) bool {
		for _, threat := range threats {
			upper := strings.ToUpper(threat)
			for _, kw := range keywords {
				if strings.Contains(upper, kw) {
					return true
				}
			}
		}
		return false
	}

	switch {
	case containsAny("CRITICAL", "MALWARE", "PHISHING"):
		return core.AlertCritical
	case containsAny("HIGH", "SUSPICIOUS"):
		return core.AlertHigh
	case len(threats) > 0:
		return core.AlertMedium
	default:
		return core.AlertLow
	}
}

func (e *Engine) levelColor(level core.AlertLevel) *color.Color {
	var c *color.Color
	switch level {
	case core.AlertCritical:
		c = color.New(color.FgRed, color.Bold)
	case core.AlertHigh:
		c = color.New(color.FgYellow)
	case core.AlertMedium:
		c = color.New(color.FgBlue)
	default:
		c = color.New(color.FgGreen)
	}
	if !e.cfg.Color {
		c.DisableColor()
	}
	return c
}

// renderConsole formats the alert banner shown on stdout
func (e *Engine) renderConsole(alert *core.Alert) string {
	var b strings.Builder
	rule := strings.Repeat("=", 60)

	b.WriteString("\n")
	b.WriteString(e.levelColor(alert.Level).Sprintf("SECURITY ALERT - %s LEVEL", alert.Level))
	b.WriteString("\n" + rule + "\n\n")

	b.WriteString("Email Details:\n")
	fmt.Fprintf(&b, "   From: %s\n", alert.Sender)
	fmt.Fprintf(&b, "   Subject: %s\n", alert.Subject)

	b.WriteString("\nRisk Assessment:\n")
	fmt.Fprintf(&b, "   Overall Risk: %s\n", alert.OverallRisk)
	fmt.Fprintf(&b, "   Alert Level: %s\n", alert.Level)

	if alert.Assessment != nil {
		b.WriteString("\nEmail Analysis:\n")
		fmt.Fprintf(&b, "   Sender Risk Score: %.1f\n", alert.Assessment.SenderRisk)
		fmt.Fprintf(&b, "   Content Risk Score: %.1f\n", alert.Assessment.ContentRisk)
		fmt.Fprintf(&b, "   Overall Score: %.1f\n", alert.Assessment.OverallScore)
		if alert.Assessment.Explanation != "" {
			fmt.Fprintf(&b, "   Explanation: %s\n", alert.Assessment.Explanation)
		}
	}

	if len(alert.Verdicts) > 0 {
		b.WriteString("\nURL Scan Results:\n")
		for _, v := range alert.Verdicts {
			fmt.Fprintf(&b, "   URL: %s\n", v.URL)
			fmt.Fprintf(&b, "   Risk Score: %d (Malicious: %v)\n", v.Score, v.Malicious)
			for _, ind := range v.Indicators {
				fmt.Fprintf(&b, "     - %s\n", ind)
			}
			b.WriteString("\n")
		}
	}

	if alert.BodyPreview != "" {
		b.WriteString("\nEmail Preview:\n")
		b.WriteString(alert.BodyPreview + "\n")
	}

	fmt.Fprintf(&b, "\nAlert Time: %s\n", alert.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "Alert ID: %s\n", alert.ID)
	b.WriteString(rule + "\n")

	return b.String()
}

// appendToFile writes the alert to the append-only alert log
func (e *Engine) appendToFile(alert *core.Alert) error {
	file, err := os.OpenFile(e.cfg.LogFile, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return fmt.Errorf("failed to open alert log: %w", err)
	}
	defer file.Close()

	record := toAlertJSON(alert)
	scansJSON, err := json.MarshalIndent(record.URLScans, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode url scans: %w", err)
	}

	rule := strings.Repeat("=", 80)
	var b strings.Builder
	b.WriteString("\n" + rule + "\n")
	fmt.Fprintf(&b, "ALERT ID: %s\n", alert.ID)
	fmt.Fprintf(&b, "TIMESTAMP: %s\n", alert.CreatedAt.Format(time.RFC3339))
	fmt.Fprintf(&b, "ALERT LEVEL: %s\n", alert.Level)
	fmt.Fprintf(&b, "OVERALL RISK: %s\n", alert.OverallRisk)
	fmt.Fprintf(&b, "SENDER: %s\n", alert.Sender)
	fmt.Fprintf(&b, "SUBJECT: %s\n", alert.Subject)
	if record.Assessment != nil {
		assessJSON, err := json.MarshalIndent(record.Assessment, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to encode assessment: %w", err)
		}
		fmt.Fprintf(&b, "EMAIL ANALYSIS: %s\n", assessJSON)
	}
	fmt.Fprintf(&b, "URL SCANS: %s\n", scansJSON)
	b.WriteString(rule + "\n")

	if _, err := file.WriteString(b.String()); err != nil {
		return fmt.Errorf("failed to write alert: %w", err)
	}
	return nil
}

func toAlertJSON(alert *core.Alert) alertJSON {
	record := alertJSON{
		ID:          alert.ID,
		Timestamp:   alert.CreatedAt,
		Level:       alert.Level,
		OverallRisk: alert.OverallRisk,
		Sender:      alert.Sender,
		Subject:     alert.Subject,
		BodyPreview: alert.BodyPreview,
		URLScans:    make([]verdictJSON, 0, len(alert.Verdicts)),
	}
	if alert.Assessment != nil {
		record.Assessment = &assessmentJSON{
			SenderRisk:   alert.Assessment.SenderRisk,
			ContentRisk:  alert.Assessment.ContentRisk,
			OverallScore: alert.Assessment.OverallScore,
			Explanation:  alert.Assessment.Explanation,
			ModelUsed:    alert.Assessment.ModelUsed,
		}
	}
	for _, v := range alert.Verdicts {
		record.URLScans = append(record.URLScans, verdictJSON{
			URL:        v.URL,
			Score:      v.Score,
			Malicious:  v.Malicious,
			Categories: v.Categories,
			Indicators: v.Indicators,
			ReportURL:  v.ReportURL,
		})
	}
	return record
}

// History returns a copy of the recorded alerts
func (e *Engine) History() []core.Alert {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]core.Alert, len(e.history))
	copy(out, e.history)
	return out
}

// Summarize aggregates the recorded alerts by level and risk
func (e *Engine) Summarize() Summary {
	e.mu.Lock()
	defer e.mu.Unlock()

	summary := Summary{
		TotalAlerts: len(e.history),
		AlertLevels: make(map[core.AlertLevel]int),
		RiskLevels:  make(map[core.AlertLevel]int),
	}
	for _, alert := range e.history {
		summary.AlertLevels[alert.Level]++
		summary.RiskLevels[alert.OverallRisk]++
	}
	if len(e.history) > 0 {
		summary.LatestAlert = e.history[len(e.history)-1].CreatedAt
	}
	return summary
}

// ClearHistory drops the recorded alerts
func (e *Engine) ClearHistory() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.history = nil
	e.logger.Info("Alert history cleared")
}

// ExportJSON writes the alert history to a JSON file and returns its name
func (e *Engine) ExportJSON(filename string) (string, error) {
	if filename == "" {
		filename = fmt.Sprintf("alerts_export_%s.json", time.Now().Format("20060102_150405"))
	}

	e.mu.Lock()
	records := make([]alertJSON, 0, len(e.history))
	for i := range e.history {
		records = append(records, toAlertJSON(&e.history[i]))
	}
	e.mu.Unlock()

	data, err := json.MarshalIndent(records, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode alerts: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return "", fmt.Errorf("failed to export alerts: %w", err)
	}

	e.logger.Info("Alerts exported", zap.String("file", filename))
	return filename, nil
}
