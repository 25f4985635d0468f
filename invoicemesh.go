// Package invoicemesh provides a high-level façade over the invoice
// extraction pipeline: document pre-processing, the agent registry, the
// staged orchestration controller, the metrics recorder and optional run
// persistence. Most applications interact with this package by:
//  1. Creating an InvoiceMesh via New() with a completion backend, or via
//     NewFromConfig() from a loaded config.Config
//  2. Calling Run with the raw file bytes of an invoice
//  3. Inspecting the returned core.OrchestrationRun (final data, confidence,
//     NeedsReview) and the Recorder aggregates
//
// Only configuration failures are returned from Run. Pre-processing and agent
// failures degrade into lower confidence inside the returned run.
package invoicemesh

import (
	"context"
	"errors"
	"fmt"

	"github.com/hupe1980/invoicemesh/agent"
	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/logging"
	"github.com/hupe1980/invoicemesh/model"
	"github.com/hupe1980/invoicemesh/orchestrator"
	"github.com/hupe1980/invoicemesh/preprocess"
	"github.com/hupe1980/invoicemesh/recorder"
	"github.com/hupe1980/invoicemesh/registry"
)

// Options configures the InvoiceMesh instance.
type Options struct {
	// Backend is the completion backend shared by every model-backed agent. Required.
	Backend model.Model

	// Registry defaults to the embedded catalog.
	Registry *registry.Registry
	// Preprocessor defaults to poppler tools found on PATH without a cache.
	Preprocessor *preprocess.Preprocessor
	// Recorder defaults to a 100-entry history without Prometheus export.
	Recorder *recorder.Recorder
	// Store persists every completed run when set.
	Store core.RunStore

	// Controller and Invoker tune the orchestrator and agent invoker on top
	// of their defaults.
	Controller []func(o *orchestrator.Options)
	Invoker    []func(o *agent.InvokerOptions)

	// PingBackend verifies backends implementing model.Pinger before each run.
	PingBackend bool

	// Closers are released by Close, e.g. a Redis client or the pre-processing cache.
	Closers []func() error

	// Logger (defaults to NoOp logger if nil)
	Logger logging.Logger
}

// InvoiceMesh is the high-level façade aggregating the pipeline components.
type InvoiceMesh struct {
	opts       Options
	controller *orchestrator.Controller
}

// New creates an InvoiceMesh. Unset components are initialized with their defaults.
func New(optFns ...func(o *Options)) (*InvoiceMesh, error) {
	opts := Options{
		Logger: logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	if opts.Backend == nil {
		return nil, core.NewError(core.CodeBackendNotConfigured, "no completion backend", core.ErrBackendNotConfigured)
	}
	if opts.Logger == nil {
		opts.Logger = logging.NoOpLogger{}
	}

	if opts.Registry == nil {
		reg, err := registry.New(func(o *registry.Options) { o.Logger = logging.ForComponent(opts.Logger, "registry") })
		if err != nil {
			return nil, fmt.Errorf("load agent catalog: %w", err)
		}
		opts.Registry = reg
	}
	if opts.Preprocessor == nil {
		opts.Preprocessor = preprocess.New(func(o *preprocess.Options) { o.Logger = logging.ForComponent(opts.Logger, "preprocess") })
	}
	if opts.Recorder == nil {
		opts.Recorder = recorder.New(func(o *recorder.Options) { o.Logger = logging.ForComponent(opts.Logger, "recorder") })
	}

	invoker := agent.NewInvoker(opts.Backend, append([]func(o *agent.InvokerOptions){
		func(o *agent.InvokerOptions) { o.Logger = logging.ForComponent(opts.Logger, "invoker") },
	}, opts.Invoker...)...)

	controller := orchestrator.NewController(opts.Registry, invoker, append([]func(o *orchestrator.Options){
		func(o *orchestrator.Options) { o.Logger = logging.ForComponent(opts.Logger, "orchestrator") },
	}, opts.Controller...)...)

	return &InvoiceMesh{opts: opts, controller: controller}, nil
}

// Run pre-processes the file and runs the staged extraction. The error is
// non-nil only when the backend is unusable before any stage starts.
func (m *InvoiceMesh) Run(ctx context.Context, documentID string, fileBytes []byte, mimeType, fileName string) (*core.OrchestrationRun, error) {
	if m.opts.PingBackend {
		if p, ok := m.opts.Backend.(model.Pinger); ok {
			if err := p.Ping(ctx); err != nil {
				return nil, core.NewError(core.CodeBackendNotConfigured, "completion backend unreachable", err)
			}
		}
	}

	doc := m.opts.Preprocessor.Process(ctx, fileBytes, mimeType, fileName)
	doc.ID = documentID
	if doc.ID == "" {
		doc.ID = core.NewID()
	}

	run, err := m.controller.Run(ctx, doc)
	if err != nil {
		return nil, err
	}

	m.opts.Recorder.Record(run)

	if m.opts.Store != nil {
		if err := m.opts.Store.Save(ctx, run); err != nil {
			m.opts.Logger.Warn("invoicemesh.store.save_failed", "run_id", run.ID, "error", err.Error())
		}
	}

	return run, nil
}

// Registry exposes the agent registry for operational tuning.
func (m *InvoiceMesh) Registry() *registry.Registry { return m.opts.Registry }

// Recorder exposes the run history and aggregates.
func (m *InvoiceMesh) Recorder() *recorder.Recorder { return m.opts.Recorder }

// Store returns the configured run store, or nil.
func (m *InvoiceMesh) Store() core.RunStore { return m.opts.Store }

// Close releases the registered closers.
func (m *InvoiceMesh) Close() error {
	var errs []error
	for _, c := range m.opts.Closers {
		if err := c(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
