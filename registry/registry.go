// Package registry holds the agent descriptors and their running metrics.
//
// Descriptors are loaded from the embedded catalog at construction and may be
// tuned at runtime with Update. Each agent's metrics sit behind their own
// mutex so that concurrent runs updating different agents never contend and
// concurrent updates of the same agent never lose an observation.
package registry

import (
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/logging"
)

const (
	originUnknown = "unknown"
	originForeign = "foreign"
)

// Options configures a Registry.
type Options struct {
	// CoveredJurisdiction is the origin served by jurisdiction-specific fiscal agents.
	CoveredJurisdiction string
	// OriginOverrideConfidence: a classification below this confidence is
	// treated as unknown origin, so no jurisdiction agent is skipped.
	OriginOverrideConfidence int
	Logger                   logging.Logger
}

type entry struct {
	mu      sync.Mutex
	metrics Metrics
}

// Registry is the process-wide agent registry.
type Registry struct {
	opts Options

	mu      sync.RWMutex
	order   []string
	descs   map[string]core.AgentDescriptor
	entries map[string]*entry
}

// New creates a registry seeded with the default catalog.
func New(optFns ...func(o *Options)) (*Registry, error) {
	descs, err := DefaultCatalog()
	if err != nil {
		return nil, err
	}
	return NewFromDescriptors(descs, optFns...), nil
}

// NewFromDescriptors creates a registry from explicit descriptors, preserving their order.
func NewFromDescriptors(descs []core.AgentDescriptor, optFns ...func(o *Options)) *Registry {
	opts := Options{
		CoveredJurisdiction:      "argentina",
		OriginOverrideConfidence: 60,
		Logger:                   logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	opts.CoveredJurisdiction = normalizeOrigin(opts.CoveredJurisdiction, "")

	r := &Registry{
		opts:    opts,
		descs:   make(map[string]core.AgentDescriptor, len(descs)),
		entries: make(map[string]*entry, len(descs)),
	}
	for _, d := range descs {
		if _, dup := r.descs[d.Name]; !dup {
			r.order = append(r.order, d.Name)
		}
		r.descs[d.Name] = d.Clone()
		r.entries[d.Name] = &entry{}
	}
	return r
}

// Get returns a copy of the named descriptor.
func (r *Registry) Get(name string) (core.AgentDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	d, ok := r.descs[name]
	if !ok {
		return core.AgentDescriptor{}, fmt.Errorf("%w: %s", core.ErrAgentNotFound, name)
	}
	return d.Clone(), nil
}

// List returns copies of all descriptors in catalog order.
func (r *Registry) List() []core.AgentDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]core.AgentDescriptor, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.descs[name].Clone())
	}
	return out
}

// Update applies a partial update and returns the resulting descriptor.
// The update is rejected as a whole when any field is invalid.
func (r *Registry) Update(name string, u core.AgentUpdate) (core.AgentDescriptor, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	d, ok := r.descs[name]
	if !ok {
		return core.AgentDescriptor{}, fmt.Errorf("%w: %s", core.ErrAgentNotFound, name)
	}

	d = d.Clone()
	if u.Label != nil {
		d.Label = *u.Label
	}
	if u.Specializations != nil {
		d.Specializations = append([]string(nil), u.Specializations...)
	}
	if u.Enabled != nil {
		d.Enabled = *u.Enabled
	}
	if u.Weight != nil {
		d.Weight = *u.Weight
	}
	if u.Timeout != nil {
		d.Timeout = *u.Timeout
	}
	if u.MaxRetries != nil {
		d.MaxRetries = *u.MaxRetries
	}
	if u.MaxTokens != nil {
		d.MaxTokens = *u.MaxTokens
	}
	if u.Model != nil {
		d.Model = *u.Model
	}
	if u.PromptTemplate != nil {
		d.PromptTemplate = *u.PromptTemplate
	}

	if err := validateDescriptor(d); err != nil {
		return core.AgentDescriptor{}, err
	}

	r.descs[name] = d
	r.opts.Logger.Info("registry.agent.updated", "agent", name, "enabled", d.Enabled, "weight", d.Weight, "timeout", d.Timeout)

	return d.Clone(), nil
}

// ResetMetrics clears the running statistics of the named agent.
func (r *Registry) ResetMetrics(name string) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.metrics = Metrics{}
	e.mu.Unlock()

	return nil
}

// RecordExecution folds one invocation outcome into the agent's metrics.
func (r *Registry) RecordExecution(name string, ex Execution) error {
	e, err := r.entry(name)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.metrics.apply(ex)
	e.mu.Unlock()

	return nil
}

// Metrics returns a snapshot of the agent's running statistics.
func (r *Registry) Metrics(name string) (Metrics, error) {
	e, err := r.entry(name)
	if err != nil {
		return Metrics{}, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	return e.metrics, nil
}

// AllMetrics returns a snapshot of every agent's statistics.
func (r *Registry) AllMetrics() map[string]Metrics {
	r.mu.RLock()
	names := append([]string(nil), r.order...)
	r.mu.RUnlock()

	out := make(map[string]Metrics, len(names))
	for _, n := range names {
		if m, err := r.Metrics(n); err == nil {
			out[n] = m
		}
	}
	return out
}

func (r *Registry) entry(name string) (*entry, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, ok := r.entries[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", core.ErrAgentNotFound, name)
	}
	return e, nil
}

// ShouldRun reports whether the named agent is eligible for a document with
// the given origin hint. It has no side effects.
//
// Disabled or unknown agents never run. An agent bound to the covered
// jurisdiction runs only when the origin is that jurisdiction or unknown; a
// "foreign" agent runs only when the origin is not the covered jurisdiction or
// unknown. A classification less confident than OriginOverrideConfidence
// counts as unknown.
func (r *Registry) ShouldRun(name string, hint core.OriginHint) bool {
	r.mu.RLock()
	d, ok := r.descs[name]
	r.mu.RUnlock()

	if !ok || !d.Enabled {
		return false
	}
	if d.Jurisdiction == "" {
		return true
	}

	origin := r.EffectiveOrigin(hint)
	if origin == originUnknown {
		return true
	}

	covered := r.opts.CoveredJurisdiction
	switch jurisdiction := normalizeOrigin(d.Jurisdiction, covered); jurisdiction {
	case originForeign:
		return origin != covered
	default:
		return origin == jurisdiction
	}
}

// EffectiveOrigin normalizes the hint's origin, downgrading low-confidence
// classifications to unknown.
func (r *Registry) EffectiveOrigin(hint core.OriginHint) string {
	origin := normalizeOrigin(hint.Origin, r.opts.CoveredJurisdiction)
	if origin != originUnknown && hint.Confidence < r.opts.OriginOverrideConfidence {
		return originUnknown
	}
	return origin
}

func normalizeOrigin(origin, covered string) string {
	o := strings.ToLower(strings.TrimSpace(origin))
	switch o {
	case "", originUnknown, "desconocido", "n/a", "null":
		return originUnknown
	case "ar", "arg", "argentina", "argentine", "argentino", "argentinian":
		return "argentina"
	case originForeign, "international", "extranjero", "extranjera":
		if covered == "" {
			return o
		}
		return originForeign
	}
	return o
}
