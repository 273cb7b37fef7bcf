package factory

import (
	"fmt"

	"github.com/mikey/mail-sentinel/internal/adapters/gmailapi"
	"github.com/mikey/mail-sentinel/internal/adapters/mailfile"
	"github.com/mikey/mail-sentinel/internal/adapters/webmail"
	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"go.uber.org/zap"
)

// SourceFactory creates mail sources based on configuration
type SourceFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewSourceFactory creates a new source factory
func NewSourceFactory(cfg *config.Config, logger *zap.Logger) *SourceFactory {
	return &SourceFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailSource creates a mail source based on the configuration
func (f *SourceFactory) CreateMailSource() (core.MailSource, error) {
	sourceType := f.cfg.GetString("source.type")

	switch sourceType {
	case "webmail":
		return webmail.NewSource(f.cfg.GetWebmail(), f.logger), nil
	case "mailfile":
		mailfileCfg := f.cfg.GetMailfile()
		if mailfileCfg.Dir == "" {
			return nil, fmt.Errorf("mailfile source requires a directory")
		}
		return mailfile.NewSource(mailfileCfg.Dir, f.logger), nil
	case "gmailapi":
		return gmailapi.NewSource(f.cfg.GetGmailAPI(), f.logger)
	default:
		return nil, fmt.Errorf("unsupported mail source type: %s", sourceType)
	}
}
