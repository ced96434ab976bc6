package config

import (
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store     StoreConfig     `yaml:"store" mapstructure:"store"`
	Anthropic AnthropicConfig `yaml:"anthropic" mapstructure:"anthropic"`
	Paths     PathsConfig     `yaml:"paths" mapstructure:"paths"`
	Discovery DiscoveryConfig `yaml:"discovery" mapstructure:"discovery"`
	Classify  ClassifyConfig  `yaml:"classify" mapstructure:"classify"`
	Extract   ExtractConfig   `yaml:"extract" mapstructure:"extract"`
	Vision    VisionConfig    `yaml:"vision" mapstructure:"vision"`
	Compare   CompareConfig   `yaml:"compare" mapstructure:"compare"`
	Batch     BatchConfig     `yaml:"batch" mapstructure:"batch"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	Path        string `yaml:"path" mapstructure:"path"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
}

// AnthropicConfig holds Anthropic API settings. TopP zero leaves nucleus
// sampling unset on requests.
type AnthropicConfig struct {
	Key            string  `yaml:"key" mapstructure:"key"`
	Model          string  `yaml:"model" mapstructure:"model"`
	VisionModel    string  `yaml:"vision_model" mapstructure:"vision_model"`
	MaxTokens      int64   `yaml:"max_tokens" mapstructure:"max_tokens"`
	Temperature    float64 `yaml:"temperature" mapstructure:"temperature"`
	TopP           float64 `yaml:"top_p" mapstructure:"top_p"`
	CallsPerMinute int     `yaml:"calls_per_minute" mapstructure:"calls_per_minute"`
	MaxRetries     int     `yaml:"max_retries" mapstructure:"max_retries"`
	RetryInitialMS int     `yaml:"retry_initial_ms" mapstructure:"retry_initial_ms"`
}

// RetryInitialBackoff returns the configured initial backoff as a duration.
func (c AnthropicConfig) RetryInitialBackoff() time.Duration {
	return time.Duration(c.RetryInitialMS) * time.Millisecond
}

// PathsConfig locates input and output directories.
type PathsConfig struct {
	TEIDir    string `yaml:"tei_dir" mapstructure:"tei_dir"`
	PDFDir    string `yaml:"pdf_dir" mapstructure:"pdf_dir"`
	OutputDir string `yaml:"output_dir" mapstructure:"output_dir"`
}

// DiscoveryConfig configures the table discovery stage.
type DiscoveryConfig struct {
	MaxDocumentChars    int     `yaml:"max_document_chars" mapstructure:"max_document_chars"`
	ConfidenceThreshold float64 `yaml:"confidence_threshold" mapstructure:"confidence_threshold"`
	WarnOnGaps          bool    `yaml:"warn_on_gaps" mapstructure:"warn_on_gaps"`
}

// ClassifyConfig configures table classification.
type ClassifyConfig struct {
	Strategy         string  `yaml:"strategy" mapstructure:"strategy"`
	ResultsThreshold float64 `yaml:"results_threshold" mapstructure:"results_threshold"`
	RulesetPath      string  `yaml:"ruleset_path" mapstructure:"ruleset_path"`
}

// ExtractConfig configures statistical extraction.
type ExtractConfig struct {
	BatchSize        int `yaml:"batch_size" mapstructure:"batch_size"`
	MaxDocumentChars int `yaml:"max_document_chars" mapstructure:"max_document_chars"`
}

// VisionConfig configures the PDF vision fallback.
type VisionConfig struct {
	Trigger       string `yaml:"trigger" mapstructure:"trigger"`
	DPI           int    `yaml:"dpi" mapstructure:"dpi"`
	PageBatchSize int    `yaml:"page_batch_size" mapstructure:"page_batch_size"`
	PdftoppmPath  string `yaml:"pdftoppm_path" mapstructure:"pdftoppm_path"`
}

// CompareConfig configures the comparison engine.
type CompareConfig struct {
	NumericTolerance float64 `yaml:"numeric_tolerance" mapstructure:"numeric_tolerance"`
}

// BatchConfig configures multi-document processing.
type BatchConfig struct {
	MaxConcurrentDocuments int `yaml:"max_concurrent_documents" mapstructure:"max_concurrent_documents"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("QEX")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "sqlite")
	v.SetDefault("store.path", "qex.db")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("anthropic.model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.vision_model", "claude-sonnet-4-5-20250929")
	v.SetDefault("anthropic.max_tokens", 8192)
	v.SetDefault("anthropic.temperature", 0.0)
	v.SetDefault("anthropic.top_p", 0.0)
	v.SetDefault("anthropic.calls_per_minute", 30)
	v.SetDefault("anthropic.max_retries", 3)
	v.SetDefault("anthropic.retry_initial_ms", 1000)
	v.SetDefault("paths.tei_dir", "data/tei")
	v.SetDefault("paths.pdf_dir", "data/pdf")
	v.SetDefault("paths.output_dir", "output")
	v.SetDefault("discovery.max_document_chars", 100000)
	v.SetDefault("discovery.confidence_threshold", 0.5)
	v.SetDefault("discovery.warn_on_gaps", true)
	v.SetDefault("classify.strategy", "heuristic")
	v.SetDefault("classify.results_threshold", 0.55)
	v.SetDefault("extract.batch_size", 5)
	v.SetDefault("extract.max_document_chars", 150000)
	v.SetDefault("vision.trigger", "intelligent")
	v.SetDefault("vision.dpi", 150)
	v.SetDefault("vision.page_batch_size", 20)
	v.SetDefault("vision.pdftoppm_path", "pdftoppm")
	v.SetDefault("compare.numeric_tolerance", 0.01)
	v.SetDefault("batch.max_concurrent_documents", 1)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
