// Package recorder keeps a bounded in-memory history of orchestration runs
// and computes system-wide aggregates on read. When a Prometheus registerer
// is configured every recorded run is also exported as metrics.
package recorder

import (
	"sort"
	"sync"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/logging"
	"github.com/prometheus/client_golang/prometheus"
)

// Entry is the fixed-shape summary kept per run.
type Entry struct {
	RunID           string        `json:"runId"`
	DocumentID      string        `json:"documentId"`
	Timestamp       time.Time     `json:"timestamp"`
	AgentsUsed      []string      `json:"agentsUsed"`
	FinalConfidence int           `json:"finalConfidence"`
	Iterations      int           `json:"iterations"`
	TotalTime       time.Duration `json:"totalTime"`
	NeedsReview     bool          `json:"needsReview"`
}

// Aggregates are computed over the retained history.
type Aggregates struct {
	TotalRuns      int            `json:"totalRuns"`
	MeanConfidence float64        `json:"meanConfidence"`
	MeanDuration   time.Duration  `json:"meanDuration"`
	MostUsedAgent  string         `json:"mostUsedAgent"`
	AgentUsage     map[string]int `json:"agentUsage"`
	ReviewRate     float64        `json:"reviewRate"` // percent
}

// Options configures a Recorder.
type Options struct {
	HistorySize int
	// Registerer receives the Prometheus collectors; nil disables metrics.
	Registerer prometheus.Registerer
	Namespace  string
	Logger     logging.Logger
}

// Recorder is safe for concurrent use.
type Recorder struct {
	opts    Options
	metrics *collectors

	mu      sync.RWMutex
	entries []Entry // oldest first
}

// New creates a recorder. It panics if the collectors cannot be registered,
// e.g. when two recorders share a registerer and namespace.
func New(optFns ...func(o *Options)) *Recorder {
	opts := Options{
		HistorySize: 100,
		Namespace:   "invoicemesh",
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.HistorySize <= 0 {
		opts.HistorySize = 100
	}

	r := &Recorder{opts: opts}
	if opts.Registerer != nil {
		r.metrics = newCollectors(opts.Registerer, opts.Namespace)
	}
	return r
}

// Record appends the summary of run, evicting the oldest entries beyond the history size.
func (r *Recorder) Record(run *core.OrchestrationRun) {
	if run == nil {
		return
	}

	e := Entry{
		RunID:           run.ID,
		DocumentID:      run.DocumentID,
		Timestamp:       run.CompletedAt,
		AgentsUsed:      run.DistinctAgents(),
		FinalConfidence: run.FinalConfidence(),
		Iterations:      len(run.Iterations),
		TotalTime:       run.Summary.TotalTime,
		NeedsReview:     run.NeedsReview,
	}
	if e.Timestamp.IsZero() {
		e.Timestamp = time.Now().UTC()
	}

	r.mu.Lock()
	r.entries = append(r.entries, e)
	if over := len(r.entries) - r.opts.HistorySize; over > 0 {
		r.entries = append([]Entry(nil), r.entries[over:]...)
	}
	r.mu.Unlock()

	if r.metrics != nil {
		r.metrics.observe(run)
	}

	r.opts.Logger.Debug("recorder.run.recorded", "run_id", e.RunID, "confidence", e.FinalConfidence, "iterations", e.Iterations)
}

// Recent returns up to limit entries, newest first. limit <= 0 returns all.
func (r *Recorder) Recent(limit int) []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	n := len(r.entries)
	if limit <= 0 || limit > n {
		limit = n
	}

	out := make([]Entry, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		e := r.entries[i]
		e.AgentsUsed = append([]string(nil), e.AgentsUsed...)
		out = append(out, e)
	}
	return out
}

// Len returns the number of retained entries.
func (r *Recorder) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Reset drops the history. Exported metrics are not affected.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.entries = nil
	r.mu.Unlock()
}

// Aggregates computes mean confidence, mean duration and agent usage over the
// retained history. Ties for the most used agent resolve alphabetically.
func (r *Recorder) Aggregates() Aggregates {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agg := Aggregates{TotalRuns: len(r.entries), AgentUsage: map[string]int{}}
	if len(r.entries) == 0 {
		return agg
	}

	var (
		confSum float64
		durSum  time.Duration
		reviews int
	)
	for _, e := range r.entries {
		confSum += float64(e.FinalConfidence)
		durSum += e.TotalTime
		if e.NeedsReview {
			reviews++
		}
		for _, a := range e.AgentsUsed {
			agg.AgentUsage[a]++
		}
	}

	n := len(r.entries)
	agg.MeanConfidence = confSum / float64(n)
	agg.MeanDuration = durSum / time.Duration(n)
	agg.ReviewRate = float64(reviews) / float64(n) * 100

	names := make([]string, 0, len(agg.AgentUsage))
	for name := range agg.AgentUsage {
		names = append(names, name)
	}
	sort.Strings(names)
	best := 0
	for _, name := range names {
		if c := agg.AgentUsage[name]; c > best {
			best, agg.MostUsedAgent = c, name
		}
	}

	return agg
}
