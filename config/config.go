// Package config loads InvoiceMesh configuration from a YAML file, a .env
// file and INVOICEMESH_* environment variables using spf13/viper.
package config

import (
	"time"

	"github.com/hupe1980/invoicemesh/logging"
)

// Config is the complete runtime configuration.
type Config struct {
	Backend      BackendConfig          `mapstructure:"backend"`
	Orchestrator OrchestratorConfig     `mapstructure:"orchestrator"`
	Preprocess   PreprocessConfig       `mapstructure:"preprocess"`
	Agents       map[string]AgentConfig `mapstructure:"agents"`
	Store        StoreConfig            `mapstructure:"store"`
	Recorder     RecorderConfig         `mapstructure:"recorder"`
	Logging      LoggingConfig          `mapstructure:"logging"`
}

// BackendConfig selects the completion backend.
type BackendConfig struct {
	Provider       string `mapstructure:"provider"` // openai | anthropic
	Model          string `mapstructure:"model"`
	APIKey         string `mapstructure:"api_key"`
	BaseURL        string `mapstructure:"base_url"`
	MaxCallsPerRun int    `mapstructure:"max_calls_per_run"` // 0 = unlimited
}

// OrchestratorConfig carries the controller thresholds and invoker limits.
type OrchestratorConfig struct {
	Stage1Threshold          int     `mapstructure:"stage1_threshold"`
	Stage2Threshold          int     `mapstructure:"stage2_threshold"`
	MergeThreshold           int     `mapstructure:"merge_threshold"`
	ReviewThreshold          int     `mapstructure:"review_threshold"`
	MaxIterations            int     `mapstructure:"max_iterations"`
	TextBudget               int     `mapstructure:"text_budget"`
	Temperature              float64 `mapstructure:"temperature"`
	OriginOverrideConfidence int     `mapstructure:"origin_override_confidence"`
	CoveredJurisdiction      string  `mapstructure:"covered_jurisdiction"`
}

// PreprocessConfig configures the document pre-processor.
type PreprocessConfig struct {
	MaxPages      int           `mapstructure:"max_pages"`
	DPI           int           `mapstructure:"dpi"`
	HighTextChars int           `mapstructure:"high_text_chars"`
	Pdftotext     string        `mapstructure:"pdftotext"`
	Pdftoppm      string        `mapstructure:"pdftoppm"`
	Tesseract     string        `mapstructure:"tesseract"`
	TesseractLang string        `mapstructure:"tesseract_lang"`
	EnableOCR     bool          `mapstructure:"enable_ocr"`
	CacheMaxBytes int64         `mapstructure:"cache_max_bytes"` // 0 disables the cache
	CacheTTL      time.Duration `mapstructure:"cache_ttl"`
}

// AgentConfig overrides catalog values of one agent. Nil fields keep the
// catalog value.
type AgentConfig struct {
	Enabled    *bool    `mapstructure:"enabled"`
	Weight     *float64 `mapstructure:"weight"`
	TimeoutMS  *int     `mapstructure:"timeout_ms"`
	MaxRetries *int     `mapstructure:"max_retries"`
	Model      *string  `mapstructure:"model"`
	MaxTokens  *int64   `mapstructure:"max_tokens"`
}

// StoreConfig selects where completed runs are persisted.
type StoreConfig struct {
	Driver        string        `mapstructure:"driver"` // memory | redis | none
	RedisAddr     string        `mapstructure:"redis_addr"`
	RedisPassword string        `mapstructure:"redis_password"`
	RedisDB       int           `mapstructure:"redis_db"`
	KeyPrefix     string        `mapstructure:"key_prefix"`
	TTL           time.Duration `mapstructure:"ttl"`
}

// RecorderConfig configures the run history and Prometheus export.
type RecorderConfig struct {
	HistorySize int  `mapstructure:"history_size"`
	Metrics     bool `mapstructure:"metrics"`
}

// LoggingConfig selects the logger implementation.
type LoggingConfig struct {
	Backend   string `mapstructure:"backend"` // slog | zap
	Level     string `mapstructure:"level"`
	Format    string `mapstructure:"format"` // json | text
	AddSource bool   `mapstructure:"add_source"`
}

// NewLogger builds the configured logger.
func (c LoggingConfig) NewLogger() (logging.Logger, error) {
	level := logging.ParseLevel(c.Level)
	if c.Backend == "zap" {
		z, err := logging.NewZapLogger(level, c.Format)
		if err != nil {
			return nil, err
		}
		return z, nil
	}
	return logging.NewSlogLogger(level, c.Format, c.AddSource), nil
}
