package invoicemesh

import (
	"fmt"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/hupe1980/invoicemesh/agent"
	"github.com/hupe1980/invoicemesh/config"
	"github.com/hupe1980/invoicemesh/logging"
	"github.com/hupe1980/invoicemesh/model"
	anthropicmodel "github.com/hupe1980/invoicemesh/model/anthropic"
	openaimodel "github.com/hupe1980/invoicemesh/model/openai"
	"github.com/hupe1980/invoicemesh/orchestrator"
	"github.com/hupe1980/invoicemesh/preprocess"
	"github.com/hupe1980/invoicemesh/recorder"
	"github.com/hupe1980/invoicemesh/registry"
	"github.com/hupe1980/invoicemesh/store"
	"github.com/prometheus/client_golang/prometheus"
)

// NewFromConfig wires every component from cfg. optFns run last and may
// replace any component, e.g. the backend in tests or the Prometheus
// registerer via Recorder.
func NewFromConfig(cfg *config.Config, optFns ...func(o *Options)) (*InvoiceMesh, error) {
	logger, err := cfg.Logging.NewLogger()
	if err != nil {
		return nil, fmt.Errorf("build logger: %w", err)
	}

	reg, err := registry.New(func(o *registry.Options) {
		o.CoveredJurisdiction = cfg.Orchestrator.CoveredJurisdiction
		o.OriginOverrideConfidence = cfg.Orchestrator.OriginOverrideConfidence
		o.Logger = logging.ForComponent(logger, "registry")
	})
	if err != nil {
		return nil, fmt.Errorf("load agent catalog: %w", err)
	}
	if err := config.ApplyAgentOverrides(reg, cfg); err != nil {
		return nil, err
	}

	var closers []func() error

	var cache *preprocess.Cache
	if cfg.Preprocess.CacheMaxBytes > 0 {
		cache, err = preprocess.NewCache(cfg.Preprocess.CacheMaxBytes, cfg.Preprocess.CacheTTL)
		if err != nil {
			return nil, fmt.Errorf("create preprocess cache: %w", err)
		}
		closers = append(closers, func() error { cache.Close(); return nil })
	}

	pre := preprocess.New(func(o *preprocess.Options) {
		o.Pdftotext = cfg.Preprocess.Pdftotext
		o.Pdftoppm = cfg.Preprocess.Pdftoppm
		o.Tesseract = cfg.Preprocess.Tesseract
		o.TesseractLang = cfg.Preprocess.TesseractLang
		o.DPI = cfg.Preprocess.DPI
		o.MaxPages = cfg.Preprocess.MaxPages
		o.HighTextChars = cfg.Preprocess.HighTextChars
		o.EnableOCR = cfg.Preprocess.EnableOCR
		o.Cache = cache
		o.Logger = logging.ForComponent(logger, "preprocess")
	})

	rec := recorder.New(func(o *recorder.Options) {
		o.HistorySize = cfg.Recorder.HistorySize
		if cfg.Recorder.Metrics {
			o.Registerer = prometheus.DefaultRegisterer
		}
		o.Logger = logging.ForComponent(logger, "recorder")
	})

	opts := []func(o *Options){
		func(o *Options) {
			o.Backend = newBackend(cfg.Backend)
			o.Registry = reg
			o.Preprocessor = pre
			o.Recorder = rec
			o.Logger = logger
			o.PingBackend = true
			o.Controller = append(o.Controller, func(co *orchestrator.Options) {
				co.Stage1Threshold = cfg.Orchestrator.Stage1Threshold
				co.Stage2Threshold = cfg.Orchestrator.Stage2Threshold
				co.MergeThreshold = cfg.Orchestrator.MergeThreshold
				co.ReviewThreshold = cfg.Orchestrator.ReviewThreshold
				co.MaxIterations = cfg.Orchestrator.MaxIterations
				co.MaxCallsPerRun = cfg.Backend.MaxCallsPerRun
			})
			o.Invoker = append(o.Invoker, func(io *agent.InvokerOptions) {
				io.TextBudget = cfg.Orchestrator.TextBudget
				io.Temperature = cfg.Orchestrator.Temperature
			})
		},
	}

	switch cfg.Store.Driver {
	case "memory":
		opts = append(opts, func(o *Options) { o.Store = store.NewInMemoryStore() })
	case "redis":
		client := store.NewRedisClient(cfg.Store.RedisAddr, cfg.Store.RedisPassword, cfg.Store.RedisDB)
		rs := store.NewRedisStore(client, func(o *store.RedisOptions) {
			o.KeyPrefix = cfg.Store.KeyPrefix
			o.TTL = cfg.Store.TTL
			o.Logger = logging.With(logging.ForComponent(logger, "store"), "driver", "redis")
		})
		closers = append(closers, rs.Close)
		opts = append(opts, func(o *Options) { o.Store = rs })
	}

	opts = append(opts, func(o *Options) { o.Closers = append(o.Closers, closers...) })

	return New(append(opts, optFns...)...)
}

func newBackend(cfg config.BackendConfig) model.Model {
	switch cfg.Provider {
	case "anthropic":
		return anthropicmodel.NewModel(func(o *anthropicmodel.Options) {
			if cfg.Model != "" {
				o.Model = anthropic.Model(cfg.Model)
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
	default:
		return openaimodel.NewModel(func(o *openaimodel.Options) {
			if cfg.Model != "" {
				o.Model = cfg.Model
			}
			o.APIKey = cfg.APIKey
			o.BaseURL = cfg.BaseURL
		})
	}
}
