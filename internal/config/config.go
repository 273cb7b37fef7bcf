package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the application configuration
type Config struct {
	v *viper.Viper
}

// New creates a new configuration instance
func New() (*Config, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("/etc/mail-sentinel/")
	v.AddConfigPath("$HOME/.mail-sentinel")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	// Set defaults
	setDefaults(v)

	// Environment variables
	v.AutomaticEnv()
	v.SetEnvPrefix("MAIL_SENTINEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// Config file not found, using defaults
	}

	return &Config{v: v}, nil
}

// NewFromFile creates a new configuration instance from an explicit file path
func NewFromFile(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	return &Config{v: v}, nil
}

// NewFromViper creates a new configuration instance from an existing Viper instance
func NewFromViper(v *viper.Viper) *Config {
	return &Config{v: v}
}

// NewEmptyViper creates a new Viper instance with defaults
func NewEmptyViper() *viper.Viper {
	v := viper.New()
	setDefaults(v)
	return v
}

// setDefaults sets the default configuration values
func setDefaults(v *viper.Viper) {
	// Cycle defaults
	v.SetDefault("server.poll_schedule", "*/30 * * * * *")
	v.SetDefault("server.max_emails", 5)
	v.SetDefault("server.cycles", 0)
	v.SetDefault("server.scan_delay", "1s")
	v.SetDefault("server.activity_log", "mail_sentinel.log")

	// Mail source defaults
	v.SetDefault("source.type", "webmail")
	v.SetDefault("source.webmail.url", "https://mail.google.com")
	v.SetDefault("source.webmail.inbox_url", "https://mail.google.com/mail/u/0/#inbox")
	v.SetDefault("source.webmail.username", "")
	v.SetDefault("source.webmail.password", "")
	v.SetDefault("source.webmail.headless", true)
	v.SetDefault("source.webmail.nav_timeout", "30s")
	v.SetDefault("source.webmail.username_selectors", []string{
		"input[name='identifier']",
		"input[type='email']",
		"#identifierId",
	})
	v.SetDefault("source.webmail.password_selectors", []string{
		"input[name='password']",
		"input[type='password']",
	})
	v.SetDefault("source.webmail.submit_selectors", []string{
		"#identifierNext",
		"#passwordNext",
		"button[type='submit']",
	})
	v.SetDefault("source.webmail.inbox_markers", []string{
		"div[role='main']",
		"div[aria-label*='Inbox']",
	})
	v.SetDefault("source.webmail.row_selectors", []string{
		"tr.zA",
		"tr[role='row']",
		"div[role='row']",
	})
	v.SetDefault("source.webmail.sender_selectors", []string{
		"span[email]",
		"td[data-tooltip]",
		"span[title*='@']",
	})
	v.SetDefault("source.webmail.subject_selectors", []string{
		"span.bog",
		"td span[dir='ltr']",
	})
	v.SetDefault("source.webmail.body_selectors", []string{
		"div[role='main'] div[dir='ltr']",
		"div[role='main'] div[data-message-id]",
	})
	v.SetDefault("source.mailfile.dir", "./inbox")
	v.SetDefault("source.gmailapi.credentials_file", "credentials.json")
	v.SetDefault("source.gmailapi.token_file", "token.json")
	v.SetDefault("source.gmailapi.query", "in:inbox is:unread")

	// Scanner defaults
	v.SetDefault("scanner.base_url", "https://urlscan.io/api/v1")
	v.SetDefault("scanner.api_key", "")
	v.SetDefault("scanner.visibility", "public")
	v.SetDefault("scanner.user_agent", "mail-sentinel/1.0")
	v.SetDefault("scanner.submit_timeout", "30s")
	v.SetDefault("scanner.poll_interval", "5s")
	v.SetDefault("scanner.max_wait", "60s")
	v.SetDefault("scanner.max_retries", 3)
	v.SetDefault("scanner.retry_backoff", "2s")

	// Scoring defaults
	v.SetDefault("scoring.malicious_threshold", 50)
	v.SetDefault("scoring.weights.blacklist_ip", 10)
	v.SetDefault("scoring.weights.blacklist_country", 5)
	v.SetDefault("scoring.weights.blacklist_domain", 15)
	v.SetDefault("scoring.weights.blacklist_url", 20)
	v.SetDefault("scoring.weights.category_high", 30)
	v.SetDefault("scoring.weights.category_medium", 20)
	v.SetDefault("scoring.weights.category_low", 10)
	v.SetDefault("scoring.weights.malicious_flag", 50)
	v.SetDefault("scoring.weights.high_requests", 10)
	v.SetDefault("scoring.weights.many_domains", 10)
	v.SetDefault("scoring.weights.lookalike", 15)
	v.SetDefault("scoring.high_request_count", 100)
	v.SetDefault("scoring.many_domain_count", 20)

	// Lookalike heuristic defaults
	v.SetDefault("lookalike.enabled", true)
	v.SetDefault("lookalike.brands", []string{
		"paypal.com",
		"google.com",
		"microsoft.com",
		"apple.com",
		"amazon.com",
	})

	// Content analyzer defaults
	v.SetDefault("analyzer.type", "none")

	// Bedrock defaults
	v.SetDefault("bedrock.region", "us-east-1")
	v.SetDefault("bedrock.model_id", "anthropic.claude-v2")
	v.SetDefault("bedrock.max_tokens", 1000)
	v.SetDefault("bedrock.temperature", 0.1)
	v.SetDefault("bedrock.top_p", 0.9)
	v.SetDefault("bedrock.max_body_size", 4096)

	// Gemini defaults
	v.SetDefault("gemini.api_key", "")
	v.SetDefault("gemini.model_name", "gemini-pro")
	v.SetDefault("gemini.max_tokens", 1000)
	v.SetDefault("gemini.temperature", 0.1)
	v.SetDefault("gemini.top_p", 0.9)
	v.SetDefault("gemini.max_body_size", 4096)

	// OpenAI defaults
	v.SetDefault("openai.api_key", "")
	v.SetDefault("openai.model_name", "gpt-4")
	v.SetDefault("openai.max_tokens", 1000)
	v.SetDefault("openai.temperature", 0.1)
	v.SetDefault("openai.top_p", 0.9)
	v.SetDefault("openai.max_body_size", 4096)

	// Allowlist defaults
	v.SetDefault("allowlist.enabled", true)
	v.SetDefault("allowlist.domains", []string{})
	v.SetDefault("allowlist.file", "")

	// Alert defaults
	v.SetDefault("alerts.log_file", "security_alerts.log")
	v.SetDefault("alerts.color", true)
	v.SetDefault("alerts.thresholds.critical", 25)
	v.SetDefault("alerts.thresholds.high", 15)
	v.SetDefault("alerts.thresholds.medium", 8)
	v.SetDefault("alerts.thresholds.low", 3)

	// Seen tracker defaults
	v.SetDefault("seen.file", "seen_messages.json")
	v.SetDefault("seen.max_age", "24h")

	// Cache defaults
	v.SetDefault("cache.type", "memory")
	v.SetDefault("cache.enabled", true)
	v.SetDefault("cache.ttl", "24h")
	v.SetDefault("cache.cleanup_frequency", "1h")
	v.SetDefault("cache.sqlite_path", "/data/verdict_cache.db")
	v.SetDefault("cache.mysql_dsn", "user:password@tcp(localhost:3306)/mail_sentinel")

	// Monitoring defaults
	v.SetDefault("monitoring.enabled", true)
	v.SetDefault("monitoring.listen_address", "0.0.0.0:8972")

	// Logging defaults
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
}

// GetString gets a string value from the configuration
func (c *Config) GetString(key string) string {
	return c.v.GetString(key)
}

// GetInt gets an integer value from the configuration
func (c *Config) GetInt(key string) int {
	return c.v.GetInt(key)
}

// GetFloat64 gets a float64 value from the configuration
func (c *Config) GetFloat64(key string) float64 {
	return c.v.GetFloat64(key)
}

// GetBool gets a boolean value from the configuration
func (c *Config) GetBool(key string) bool {
	return c.v.GetBool(key)
}

// GetStringSlice gets a string slice value from the configuration
func (c *Config) GetStringSlice(key string) []string {
	return c.v.GetStringSlice(key)
}

// GetDuration gets a duration value from the configuration
func (c *Config) GetDuration(key string) (time.Duration, error) {
	return time.ParseDuration(c.GetString(key))
}

// GetViper returns the underlying Viper instance
func (c *Config) GetViper() *viper.Viper {
	return c.v
}
