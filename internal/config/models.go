package config

import "time"

// AnalyzerConfig selects the optional content-analyzer provider
type AnalyzerConfig struct {
	Type string
}

// BedrockConfig represents the configuration for Amazon Bedrock
type BedrockConfig struct {
	Region      string
	ModelID     string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// GeminiConfig represents the configuration for Google Gemini
type GeminiConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// OpenAIConfig represents the configuration for OpenAI
type OpenAIConfig struct {
	APIKey      string
	ModelName   string
	MaxTokens   int
	Temperature float32
	TopP        float32
	MaxBodySize int
}

// ScannerConfig represents the configuration for the URL scanning service
type ScannerConfig struct {
	BaseURL       string
	APIKey        string
	Visibility    string
	UserAgent     string
	SubmitTimeout time.Duration
	PollInterval  time.Duration
	MaxWait       time.Duration
	MaxRetries    int
	RetryBackoff  time.Duration
}

// ScoringConfig holds the per-signal weights and thresholds
type ScoringConfig struct {
	MaliciousThreshold int
	BlacklistIP        int
	BlacklistCountry   int
	BlacklistDomain    int
	BlacklistURL       int
	CategoryHigh       int
	CategoryMedium     int
	CategoryLow        int
	MaliciousFlag      int
	HighRequests       int
	ManyDomains        int
	Lookalike          int
	HighRequestCount   int
	ManyDomainCount    int
}

// WebmailConfig represents the browser-automation source settings
type WebmailConfig struct {
	URL               string
	InboxURL          string
	Username          string
	Password          string
	Headless          bool
	NavTimeout        time.Duration
	UsernameSelectors []string
	PasswordSelectors []string
	SubmitSelectors   []string
	InboxMarkers      []string
	RowSelectors      []string
	SenderSelectors   []string
	SubjectSelectors  []string
	BodySelectors     []string
}

// MailfileConfig represents the .eml directory source settings
type MailfileConfig struct {
	Dir string
}

// GmailAPIConfig represents the Gmail REST source settings
type GmailAPIConfig struct {
	CredentialsFile string
	TokenFile       string
	Query           string
}

// AlertsConfig represents the alert engine settings
type AlertsConfig struct {
	LogFile           string
	Color             bool
	CriticalThreshold float64
	HighThreshold     float64
	MediumThreshold   float64
	LowThreshold      float64
}

// ServerConfig represents the daemon polling settings
type ServerConfig struct {
	PollSchedule string
	MaxEmails    int
	Cycles       int
	ScanDelay    time.Duration
	ActivityLog  string
}

// MonitoringConfig represents the health endpoint settings
type MonitoringConfig struct {
	Enabled       bool
	ListenAddress string
}

// SeenConfig represents the seen-message tracker settings
type SeenConfig struct {
	File   string
	MaxAge time.Duration
}

// LookalikeConfig represents the brand lookalike heuristic settings
type LookalikeConfig struct {
	Enabled bool
	Brands  []string
}

// AllowlistConfig represents the trusted-domain settings
type AllowlistConfig struct {
	Enabled bool
	Domains []string
	File    string
}

// GetAnalyzer returns the content analyzer configuration
func (c *Config) GetAnalyzer() AnalyzerConfig {
	return AnalyzerConfig{
		Type: c.GetString("analyzer.type"),
	}
}

// GetBedrock returns the Bedrock configuration
func (c *Config) GetBedrock() BedrockConfig {
	return BedrockConfig{
		Region:      c.GetString("bedrock.region"),
		ModelID:     c.GetString("bedrock.model_id"),
		MaxTokens:   c.GetInt("bedrock.max_tokens"),
		Temperature: float32(c.GetFloat64("bedrock.temperature")),
		TopP:        float32(c.GetFloat64("bedrock.top_p")),
		MaxBodySize: c.GetInt("bedrock.max_body_size"),
	}
}

// GetGemini returns the Gemini configuration
func (c *Config) GetGemini() GeminiConfig {
	return GeminiConfig{
		APIKey:      c.GetString("gemini.api_key"),
		ModelName:   c.GetString("gemini.model_name"),
		MaxTokens:   c.GetInt("gemini.max_tokens"),
		Temperature: float32(c.GetFloat64("gemini.temperature")),
		TopP:        float32(c.GetFloat64("gemini.top_p")),
		MaxBodySize: c.GetInt("gemini.max_body_size"),
	}
}

// GetOpenAI returns the OpenAI configuration
func (c *Config) GetOpenAI() OpenAIConfig {
	return OpenAIConfig{
		APIKey:      c.GetString("openai.api_key"),
		ModelName:   c.GetString("openai.model_name"),
		MaxTokens:   c.GetInt("openai.max_tokens"),
		Temperature: float32(c.GetFloat64("openai.temperature")),
		TopP:        float32(c.GetFloat64("openai.top_p")),
		MaxBodySize: c.GetInt("openai.max_body_size"),
	}
}

// GetScanner returns the URL scanner configuration
func (c *Config) GetScanner() ScannerConfig {
	submitTimeout, err := c.GetDuration("scanner.submit_timeout")
	if err != nil {
		submitTimeout = 30 * time.Second
	}
	pollInterval, err := c.GetDuration("scanner.poll_interval")
	if err != nil {
		pollInterval = 5 * time.Second
	}
	maxWait, err := c.GetDuration("scanner.max_wait")
	if err != nil {
		maxWait = 60 * time.Second
	}
	retryBackoff, err := c.GetDuration("scanner.retry_backoff")
	if err != nil {
		retryBackoff = 2 * time.Second
	}

	return ScannerConfig{
		BaseURL:       c.GetString("scanner.base_url"),
		APIKey:        c.GetString("scanner.api_key"),
		Visibility:    c.GetString("scanner.visibility"),
		UserAgent:     c.GetString("scanner.user_agent"),
		SubmitTimeout: submitTimeout,
		PollInterval:  pollInterval,
		MaxWait:       maxWait,
		MaxRetries:    c.GetInt("scanner.max_retries"),
		RetryBackoff:  retryBackoff,
	}
}

// GetScoring returns the scoring weights and thresholds
func (c *Config) GetScoring() ScoringConfig {
	return ScoringConfig{
		MaliciousThreshold: c.GetInt("scoring.malicious_threshold"),
		BlacklistIP:        c.GetInt("scoring.weights.blacklist_ip"),
		BlacklistCountry:   c.GetInt("scoring.weights.blacklist_country"),
		BlacklistDomain:    c.GetInt("scoring.weights.blacklist_domain"),
		BlacklistURL:       c.GetInt("scoring.weights.blacklist_url"),
		CategoryHigh:       c.GetInt("scoring.weights.category_high"),
		CategoryMedium:     c.GetInt("scoring.weights.category_medium"),
		CategoryLow:        c.GetInt("scoring.weights.category_low"),
		MaliciousFlag:      c.GetInt("scoring.weights.malicious_flag"),
		HighRequests:       c.GetInt("scoring.weights.high_requests"),
		ManyDomains:        c.GetInt("scoring.weights.many_domains"),
		Lookalike:          c.GetInt("scoring.weights.lookalike"),
		HighRequestCount:   c.GetInt("scoring.high_request_count"),
		ManyDomainCount:    c.GetInt("scoring.many_domain_count"),
	}
}

// GetWebmail returns the webmail source configuration
func (c *Config) GetWebmail() WebmailConfig {
	navTimeout, err := c.GetDuration("source.webmail.nav_timeout")
	if err != nil {
		navTimeout = 30 * time.Second
	}

	return WebmailConfig{
		URL:               c.GetString("source.webmail.url"),
		InboxURL:          c.GetString("source.webmail.inbox_url"),
		Username:          c.GetString("source.webmail.username"),
		Password:          c.GetString("source.webmail.password"),
		Headless:          c.GetBool("source.webmail.headless"),
		NavTimeout:        navTimeout,
		UsernameSelectors: c.GetStringSlice("source.webmail.username_selectors"),
		PasswordSelectors: c.GetStringSlice("source.webmail.password_selectors"),
		SubmitSelectors:   c.GetStringSlice("source.webmail.submit_selectors"),
		InboxMarkers:      c.GetStringSlice("source.webmail.inbox_markers"),
		RowSelectors:      c.GetStringSlice("source.webmail.row_selectors"),
		SenderSelectors:   c.GetStringSlice("source.webmail.sender_selectors"),
		SubjectSelectors:  c.GetStringSlice("source.webmail.subject_selectors"),
		BodySelectors:     c.GetStringSlice("source.webmail.body_selectors"),
	}
}

// GetMailfile returns the .eml directory source configuration
func (c *Config) GetMailfile() MailfileConfig {
	return MailfileConfig{
		Dir: c.GetString("source.mailfile.dir"),
	}
}

// GetGmailAPI returns the Gmail REST source configuration
func (c *Config) GetGmailAPI() GmailAPIConfig {
	return GmailAPIConfig{
		CredentialsFile: c.GetString("source.gmailapi.credentials_file"),
		TokenFile:       c.GetString("source.gmailapi.token_file"),
		Query:           c.GetString("source.gmailapi.query"),
	}
}

// GetAlerts returns the alert engine configuration
func (c *Config) GetAlerts() AlertsConfig {
	return AlertsConfig{
		LogFile:           c.GetString("alerts.log_file"),
		Color:             c.GetBool("alerts.color"),
		CriticalThreshold: c.GetFloat64("alerts.thresholds.critical"),
		HighThreshold:     c.GetFloat64("alerts.thresholds.high"),
		MediumThreshold:   c.GetFloat64("alerts.thresholds.medium"),
		LowThreshold:      c.GetFloat64("alerts.thresholds.low"),
	}
}

// GetServer returns the daemon polling configuration
func (c *Config) GetServer() ServerConfig {
	scanDelay, err := c.GetDuration("server.scan_delay")
	if err != nil {
		scanDelay = time.Second
	}

	return ServerConfig{
		PollSchedule: c.GetString("server.poll_schedule"),
		MaxEmails:    c.GetInt("server.max_emails"),
		Cycles:       c.GetInt("server.cycles"),
		ScanDelay:    scanDelay,
		ActivityLog:  c.GetString("server.activity_log"),
	}
}

// GetMonitoring returns the health endpoint configuration
func (c *Config) GetMonitoring() MonitoringConfig {
	return MonitoringConfig{
		Enabled:       c.GetBool("monitoring.enabled"),
		ListenAddress: c.GetString("monitoring.listen_address"),
	}
}

// GetSeen returns the seen-message tracker configuration
func (c *Config) GetSeen() SeenConfig {
	maxAge, err := c.GetDuration("seen.max_age")
	if err != nil {
		maxAge = 24 * time.Hour
	}

	return SeenConfig{
		File:   c.GetString("seen.file"),
		MaxAge: maxAge,
	}
}

// GetLookalike returns the brand lookalike configuration
func (c *Config) GetLookalike() LookalikeConfig {
	return LookalikeConfig{
		Enabled: c.GetBool("lookalike.enabled"),
		Brands:  c.GetStringSlice("lookalike.brands"),
	}
}

// GetAllowlist returns the trusted-domain configuration
func (c *Config) GetAllowlist() AllowlistConfig {
	return AllowlistConfig{
		Enabled: c.GetBool("allowlist.enabled"),
		Domains: c.GetStringSlice("allowlist.domains"),
		File:    c.GetString("allowlist.file"),
	}
}
