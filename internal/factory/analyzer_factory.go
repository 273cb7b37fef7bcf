package factory

import (
	"fmt"

	"github.com/mikey/mail-sentinel/internal/config"
	"github.com/mikey/mail-sentinel/internal/core"
	"github.com/mikey/mail-sentinel/internal/utils"
	"go.uber.org/zap"
)

// AnalyzerFactory creates content analyzers
type AnalyzerFactory struct {
	cfg           *config.Config
	logger        *zap.Logger
	textProcessor *utils.TextProcessor
}

// NewAnalyzerFactory creates a new analyzer factory
func NewAnalyzerFactory(cfg *config.Config, logger *zap.Logger, textProcessor *utils.TextProcessor) *AnalyzerFactory {
	return &AnalyzerFactory{
		cfg:           cfg,
		logger:        logger,
		textProcessor: textProcessor,
	}
}

// CreateContentAnalyzer creates a content analyzer based on the configuration.
// A nil analyzer means LLM assessment is disabled.
func (f *AnalyzerFactory) CreateContentAnalyzer() (core.ContentAnalyzer, error) {
	analyzerCfg := f.cfg.GetAnalyzer()

	switch analyzerCfg.Type {
	case "", "none":
		return nil, nil
	case "bedrock":
		factory := NewBedrockFactory(f.cfg, f.logger, f.textProcessor)
		return factory.CreateContentAnalyzer()
	case "gemini":
		factory := NewGeminiFactory(f.cfg, f.logger)
		return factory.CreateContentAnalyzer()
	case "openai":
		factory := NewOpenAIFactory(f.cfg, f.logger)
		return factory.CreateContentAnalyzer()
	default:
		return nil, fmt.Errorf("unsupported analyzer type: %s", analyzerCfg.Type)
	}
}
