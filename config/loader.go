package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes every environment override, e.g.
// INVOICEMESH_BACKEND_API_KEY or INVOICEMESH_STORE_DRIVER.
const EnvPrefix = "INVOICEMESH"

var defaults = map[string]any{
	"backend.provider":          "openai",
	"backend.model":             "",
	"backend.api_key":           "",
	"backend.base_url":          "",
	"backend.max_calls_per_run": 0,

	"orchestrator.stage1_threshold":           85,
	"orchestrator.stage2_threshold":           95,
	"orchestrator.merge_threshold":            75,
	"orchestrator.review_threshold":           90,
	"orchestrator.max_iterations":             3,
	"orchestrator.text_budget":                3000,
	"orchestrator.temperature":                0.1,
	"orchestrator.origin_override_confidence": 60,
	"orchestrator.covered_jurisdiction":       "argentina",

	"preprocess.max_pages":       5,
	"preprocess.dpi":             150,
	"preprocess.high_text_chars": 500,
	"preprocess.pdftotext":       "pdftotext",
	"preprocess.pdftoppm":        "pdftoppm",
	"preprocess.tesseract":       "tesseract",
	"preprocess.tesseract_lang":  "eng+spa",
	"preprocess.enable_ocr":      false,
	"preprocess.cache_max_bytes": 64 << 20,
	"preprocess.cache_ttl":       "1h",

	"store.driver":         "memory",
	"store.redis_addr":     "localhost:6379",
	"store.redis_password": "",
	"store.redis_db":       0,
	"store.key_prefix":     "invoicemesh:",
	"store.ttl":            "168h",

	"recorder.history_size": 100,
	"recorder.metrics":      true,

	"logging.backend":    "slog",
	"logging.level":      "info",
	"logging.format":     "json",
	"logging.add_source": false,
}

// Load reads config.yaml from ./configs or the working directory. A missing
// file is not an error; defaults and environment variables still apply.
func Load() (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
	}

	return finish(v)
}

// LoadFromFile reads the YAML file at path.
func LoadFromFile(path string) (*Config, error) {
	loadEnvFile()

	v := newViper()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	return finish(v)
}

func newViper() *viper.Viper {
	v := viper.New()
	for k, val := range defaults {
		v.SetDefault(k, val)
	}
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()
	return v
}

func finish(v *viper.Viper) (*Config, error) {
	expandEnvVars(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadEnvFile loads the first .env found walking up to the module root.
// Variables already set in the environment win.
func loadEnvFile() {
	paths := []string{".env", "../.env", "../../.env"}
	if root := findProjectRoot(); root != "" {
		paths = append(paths, filepath.Join(root, ".env"))
	}

	for _, p := range paths {
		if _, err := os.Stat(p); err == nil {
			if err := godotenv.Load(p); err == nil {
				return
			}
		}
	}
}

func findProjectRoot() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}
	for {
		if _, err := os.Stat(filepath.Join(dir, "go.mod")); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// expandEnvVars replaces ${VAR} placeholders in string values.
func expandEnvVars(v *viper.Viper) {
	for _, key := range v.AllKeys() {
		s, ok := v.Get(key).(string)
		if !ok || !strings.Contains(s, "${") {
			continue
		}
		v.Set(key, os.ExpandEnv(s))
	}
}

func applyDefaults(cfg *Config) {
	cfg.Backend.Provider = strings.ToLower(strings.TrimSpace(cfg.Backend.Provider))
	cfg.Store.Driver = strings.ToLower(strings.TrimSpace(cfg.Store.Driver))
	cfg.Logging.Backend = strings.ToLower(strings.TrimSpace(cfg.Logging.Backend))

	if cfg.Backend.APIKey == "" {
		switch cfg.Backend.Provider {
		case "openai":
			cfg.Backend.APIKey = os.Getenv("OPENAI_API_KEY")
		case "anthropic":
			cfg.Backend.APIKey = os.Getenv("ANTHROPIC_API_KEY")
		}
	}

	if cfg.Orchestrator.MaxIterations <= 0 {
		cfg.Orchestrator.MaxIterations = 3
	}
	if cfg.Orchestrator.TextBudget <= 0 {
		cfg.Orchestrator.TextBudget = 3000
	}
	if cfg.Preprocess.MaxPages <= 0 {
		cfg.Preprocess.MaxPages = 5
	}
	if cfg.Recorder.HistorySize <= 0 {
		cfg.Recorder.HistorySize = 100
	}
	if cfg.Agents == nil {
		cfg.Agents = map[string]AgentConfig{}
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	switch c.Backend.Provider {
	case "openai", "anthropic":
	default:
		errs = append(errs, fmt.Errorf("backend.provider %q must be openai or anthropic", c.Backend.Provider))
	}
	if c.Backend.MaxCallsPerRun < 0 {
		errs = append(errs, errors.New("backend.max_calls_per_run must not be negative"))
	}

	for name, val := range map[string]int{
		"orchestrator.stage1_threshold":           c.Orchestrator.Stage1Threshold,
		"orchestrator.stage2_threshold":           c.Orchestrator.Stage2Threshold,
		"orchestrator.merge_threshold":            c.Orchestrator.MergeThreshold,
		"orchestrator.review_threshold":           c.Orchestrator.ReviewThreshold,
		"orchestrator.origin_override_confidence": c.Orchestrator.OriginOverrideConfidence,
	} {
		if val < 0 || val > 100 {
			errs = append(errs, fmt.Errorf("%s must be within 0..100, got %d", name, val))
		}
	}
	if c.Orchestrator.MaxIterations > 3 {
		errs = append(errs, fmt.Errorf("orchestrator.max_iterations must be within 1..3, got %d", c.Orchestrator.MaxIterations))
	}
	if c.Orchestrator.Temperature < 0 || c.Orchestrator.Temperature > 2 {
		errs = append(errs, fmt.Errorf("orchestrator.temperature must be within 0..2, got %g", c.Orchestrator.Temperature))
	}

	switch c.Store.Driver {
	case "memory", "none", "":
	case "redis":
		if c.Store.RedisAddr == "" {
			errs = append(errs, errors.New("store.redis_addr is required for the redis driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("store.driver %q must be memory, redis or none", c.Store.Driver))
	}

	switch c.Logging.Backend {
	case "slog", "zap", "":
	default:
		errs = append(errs, fmt.Errorf("logging.backend %q must be slog or zap", c.Logging.Backend))
	}

	for name, ac := range c.Agents {
		if ac.Weight != nil && *ac.Weight <= 0 {
			errs = append(errs, fmt.Errorf("agents.%s.weight must be positive", name))
		}
		if ac.TimeoutMS != nil && *ac.TimeoutMS <= 0 {
			errs = append(errs, fmt.Errorf("agents.%s.timeout_ms must be positive", name))
		}
		if ac.MaxRetries != nil && *ac.MaxRetries < 0 {
			errs = append(errs, fmt.Errorf("agents.%s.max_retries must not be negative", name))
		}
	}

	return errors.Join(errs...)
}

// AgentUpdater is implemented by *registry.Registry.
type AgentUpdater interface {
	Update(name string, u core.AgentUpdate) (core.AgentDescriptor, error)
}

// ApplyAgentOverrides pushes the per-agent settings of cfg through the
// registry in name order. Unknown agent names fail.
func ApplyAgentOverrides(reg AgentUpdater, cfg *Config) error {
	names := make([]string, 0, len(cfg.Agents))
	for name := range cfg.Agents {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		if _, err := reg.Update(name, cfg.Agents[name].Update()); err != nil {
			return fmt.Errorf("apply agents.%s: %w", name, err)
		}
	}
	return nil
}

// Update converts the override into a partial descriptor update.
func (a AgentConfig) Update() core.AgentUpdate {
	u := core.AgentUpdate{
		Enabled:    a.Enabled,
		Weight:     a.Weight,
		MaxRetries: a.MaxRetries,
		Model:      a.Model,
		MaxTokens:  a.MaxTokens,
	}
	if a.TimeoutMS != nil {
		d := time.Duration(*a.TimeoutMS) * time.Millisecond
		u.Timeout = &d
	}
	return u
}
