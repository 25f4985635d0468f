package orchestrator

import (
	"context"
	"time"

	"github.com/hupe1980/invoicemesh/agent"
	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/internal/telemetry"
	"github.com/hupe1980/invoicemesh/logging"
	"github.com/hupe1980/invoicemesh/registry"
	"go.opentelemetry.io/otel/attribute"
)

// Registry is the subset of the agent registry the controller depends on.
type Registry interface {
	Get(name string) (core.AgentDescriptor, error)
	ShouldRun(name string, hint core.OriginHint) bool
	RecordExecution(name string, ex registry.Execution) error
}

// Invoker runs one agent. It must never fail; failures are fallback results.
type Invoker interface {
	Invoke(ctx context.Context, desc core.AgentDescriptor, in agent.Input) agent.Invocation
}

// Options configures the controller thresholds.
type Options struct {
	// Stage1Threshold: Stage 1 stops when confidence reaches it without conflicts.
	Stage1Threshold int
	// Stage2Threshold: Stage 2 stops when confidence reaches it or no critical field is missing.
	Stage2Threshold int
	// MergeThreshold: results above it may overwrite fields that are already set.
	MergeThreshold int
	// ReviewThreshold: runs finishing below it are flagged for manual review.
	ReviewThreshold int
	MaxIterations   int
	// MaxCallsPerRun caps backend calls across all agents of a run; 0 is unlimited.
	MaxCallsPerRun int
	// OnEvent, when set, receives every audit event as it is appended.
	OnEvent func(core.Event)
	Logger  logging.Logger
}

// Controller coordinates the agents of a run. It is safe for concurrent use;
// every call to Run owns its state.
type Controller struct {
	registry Registry
	invoker  Invoker
	opts     Options
}

// NewController creates a controller with the default thresholds (85/95/75/90, 3 iterations).
func NewController(reg Registry, inv Invoker, optFns ...func(o *Options)) *Controller {
	opts := Options{
		Stage1Threshold: 85,
		Stage2Threshold: 95,
		MergeThreshold:  75,
		ReviewThreshold: 90,
		MaxIterations:   3,
		Logger:          logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.MaxIterations <= 0 || opts.MaxIterations > 3 {
		opts.MaxIterations = 3
	}

	return &Controller{registry: reg, invoker: inv, opts: opts}
}

// runState is the private, single-goroutine state of one run.
type runState struct {
	run          *core.OrchestrationRun
	doc          *core.Document
	consolidated core.ExtractedData
	limiter      *core.CallLimiter
	logger       logging.Logger
}

// Run processes a pre-processed document. The only error is a nil document;
// agent failures are absorbed into the returned run.
func (c *Controller) Run(ctx context.Context, doc *core.Document) (*core.OrchestrationRun, error) {
	if doc == nil {
		return nil, core.ErrEmptyDocument
	}

	run := &core.OrchestrationRun{
		ID:         core.NewID(),
		DocumentID: doc.ID,
		FileName:   doc.FileName,
		MimeType:   doc.MimeType,
		Quality:    doc.Quality,
		StartedAt:  time.Now().UTC(),
	}

	ctx, span := telemetry.StartRunSpan(ctx, run.ID, doc.ID, doc.MimeType)
	defer span.End()

	st := &runState{
		run:          run,
		doc:          doc,
		consolidated: core.ExtractedData{},
		limiter:      core.NewCallLimiter(c.opts.MaxCallsPerRun),
		logger:       c.runLogger(run),
	}

	st.logger.Info("orchestrator.run.start", "file", doc.FileName, "quality", string(doc.Quality.Level), "pages", len(doc.Pages))
	c.emit(st, core.NewEvent(run.ID, core.EventRunStarted, authorOrchestrator))

	stage := core.StageBaseAnalysis
	for stage != core.StageDone && len(run.Iterations) < c.opts.MaxIterations {
		it := c.runStage(ctx, st, stage, len(run.Iterations)+1)

		if it.RequiresNextIteration && len(run.Iterations)+1 >= c.opts.MaxIterations {
			it.RequiresNextIteration = false
			it.Reason += "; iteration cap reached"
		}
		run.Iterations = append(run.Iterations, it)

		if it.RequiresNextIteration {
			stage = stage.Next()
		} else {
			stage = core.StageDone
		}
	}

	run.CompletedAt = time.Now().UTC()
	run.FinalData = st.consolidated.Clone()
	run.NeedsReview = run.FinalConfidence() < c.opts.ReviewThreshold
	run.Summary = core.RunSummary{
		TotalTime:       run.CompletedAt.Sub(run.StartedAt),
		Iterations:      len(run.Iterations),
		AgentsUsed:      run.DistinctAgents(),
		FinalConfidence: run.FinalConfidence(),
	}

	span.SetAttributes(
		attribute.Int("run.iterations", len(run.Iterations)),
		attribute.Int("run.confidence", run.FinalConfidence()),
		attribute.Bool("run.needs_review", run.NeedsReview),
	)

	done := core.NewEvent(run.ID, core.EventRunCompleted, authorOrchestrator).WithConfidence(run.FinalConfidence())
	done.Iteration = len(run.Iterations)
	c.emit(st, done)

	st.logger.Info("orchestrator.run.done",
		"iterations", len(run.Iterations),
		"confidence", run.FinalConfidence(),
		"needs_review", run.NeedsReview,
		"backend_calls", st.limiter.Count(),
		"calls_remaining", st.limiter.Remaining(),
		"duration", run.Summary.TotalTime,
	)

	return run, nil
}

func (c *Controller) runLogger(run *core.OrchestrationRun) logging.Logger {
	if sl, ok := c.opts.Logger.(*logging.StructuredLogger); ok {
		return sl.WithRun(run.ID, run.DocumentID)
	}
	return &prefixLogger{next: c.opts.Logger, args: []any{"run_id", run.ID, "document_id", run.DocumentID}}
}

// prefixLogger prepends fixed key/value pairs to every record.
type prefixLogger struct {
	next logging.Logger
	args []any
}

func (l *prefixLogger) with(args []any) []any {
	return append(append([]any(nil), l.args...), args...)
}

func (l *prefixLogger) Debug(msg string, args ...any) { l.next.Debug(msg, l.with(args)...) }
func (l *prefixLogger) Info(msg string, args ...any)  { l.next.Info(msg, l.with(args)...) }
func (l *prefixLogger) Warn(msg string, args ...any)  { l.next.Warn(msg, l.with(args)...) }
func (l *prefixLogger) Error(msg string, args ...any) { l.next.Error(msg, l.with(args)...) }
