package allowlist

import (
	"fmt"
	"net/url"
	"os"
	"strings"

	"go.uber.org/zap"
)

// Checker provides functionality to check if URL hosts belong to trusted domains
type Checker struct {
	enabled bool
	domains []string
	logger  *zap.Logger
}

// NewChecker creates a new allowlist checker from configured domains plus an
// optional file with one domain per line (# starts a comment)
func NewChecker(enabled bool, domains []string, file string, logger *zap.Logger) (*Checker, error) {
	all := make([]string, 0, len(domains))
	for _, domain := range domains {
		if d := normalizeDomain(domain); d != "" {
			all = append(all, d)
		}
	}

	if file != "" {
		fromFile, err := loadDomainFile(file)
		if err != nil {
			return nil, err
		}
		all = append(all, fromFile...)
	}

	if len(all) > 0 && logger != nil {
		logger.Info("Initialized allowlist checker", zap.Strings("domains", all))
	}

	return &Checker{
		enabled: enabled,
		domains: all,
		logger:  logger,
	}, nil
}

// IsAllowlisted checks if the URL's host is a trusted domain or a
// subdomain of one
func (c *Checker) IsAllowlisted(rawURL string) bool {
	if !c.enabled || len(c.domains) == 0 {
		return false
	}

	parsed, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return false
	}

	for _, trusted := range c.domains {
		if host == trusted || strings.HasSuffix(host, "."+trusted) {
			if c.logger != nil {
				c.logger.Debug("URL host is allowlisted",
					zap.String("host", host),
					zap.String("domain", trusted))
			}
			return true
		}
	}

	return false
}

func normalizeDomain(domain string) string {
	return strings.TrimPrefix(strings.ToLower(strings.TrimSpace(domain)), ".")
}

func loadDomainFile(path string) ([]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read allowlist file: %w", err)
	}

	var domains []string
	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if d := normalizeDomain(line); d != "" {
			domains = append(domains, d)
		}
	}
	return domains, nil
}
