package orchestrator

import (
	"context"
	"time"

	"github.com/hupe1980/invoicemesh/agent"
	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/internal/telemetry"
	"github.com/hupe1980/invoicemesh/registry"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

const authorOrchestrator = "orchestrator"

// Agents of each stage, in merge order.
var (
	baseAgents       = []string{core.AgentClassification, core.AgentStructural, core.AgentMetadata}
	refinementAgents = []string{core.AgentFiscalArgentina, core.AgentInternational, core.AgentConflictResolution}
	finalAgents      = []string{core.AgentCrossValidation}
)

type stageLogger interface {
	LogStage(stage string, agents int, confidence int, next bool, dur time.Duration)
}

func (c *Controller) runStage(ctx context.Context, st *runState, stage core.Stage, iteration int) core.IterationResult {
	ctx, span := telemetry.StartStageSpan(ctx, stage.String(), iteration)
	defer span.End()

	it := core.IterationResult{
		Iteration: iteration,
		Stage:     stage,
		StartedAt: time.Now().UTC(),
	}

	started := core.NewEvent(st.run.ID, core.EventStageStarted, authorOrchestrator)
	started.Stage, started.Iteration = stage, iteration
	c.emit(st, started)

	switch stage {
	case core.StageBaseAnalysis:
		c.baseAnalysis(ctx, st, &it)
	case core.StageSpecializedRefinement:
		c.specializedRefinement(ctx, st, &it)
	case core.StageFinalVerification:
		c.finalVerification(ctx, st, &it)
	}

	it.ConsolidatedData = st.consolidated.Clone()
	it.EndedAt = time.Now().UTC()
	it.Duration = it.EndedAt.Sub(it.StartedAt)

	span.SetAttributes(
		attribute.Int("stage.agents", len(it.AgentResults)),
		attribute.Int("stage.confidence", it.OverallConfidence),
		attribute.Bool("stage.next", it.RequiresNextIteration),
	)

	completed := core.NewEvent(st.run.ID, core.EventStageCompleted, authorOrchestrator).WithConfidence(it.OverallConfidence)
	completed.Stage, completed.Iteration, completed.Message = stage, iteration, it.Reason
	c.emit(st, completed)

	if l, ok := st.logger.(stageLogger); ok {
		l.LogStage(stage.String(), len(it.AgentResults), it.OverallConfidence, it.RequiresNextIteration, it.Duration)
	} else {
		st.logger.Info("orchestrator.stage.done",
			"stage", stage.String(),
			"agent_count", len(it.AgentResults),
			"confidence", it.OverallConfidence,
			"next", it.RequiresNextIteration,
			"duration", it.Duration,
		)
	}

	return it
}

// baseAnalysis: classification, structural and metadata agents on the raw document.
func (c *Controller) baseAnalysis(ctx context.Context, st *runState, it *core.IterationResult) {
	descs := c.eligible(st, it, baseAgents, core.OriginHint{})
	it.AgentResults = c.fanOut(ctx, st, it, descs, agent.Input{Document: st.doc, Iteration: it.Iteration})

	st.consolidated = Merge(st.consolidated, it.AgentResults, c.opts.MergeThreshold)
	it.OverallConfidence, _ = OverallConfidence(it.AgentResults)
	it.RequiresNextIteration, it.Reason = continueAfterBase(it.OverallConfidence, it.HasConflicts(), c.opts.Stage1Threshold)
}

// specializedRefinement: jurisdiction and conflict agents refining the Stage 1 data.
func (c *Controller) specializedRefinement(ctx context.Context, st *runState, it *core.IterationResult) {
	prev := st.run.Iterations[len(st.run.Iterations)-1]
	hint := c.originHint(st, prev)

	names := refinementAgents
	if !prev.HasConflicts() {
		names = names[:2]
		c.skip(st, it, core.AgentConflictResolution, "no conflicts reported")
	}
	descs := c.eligible(st, it, names, hint)

	it.AgentResults = c.fanOut(ctx, st, it, descs, agent.Input{
		Document:  st.doc,
		PriorData: st.consolidated.Clone(),
		Conflicts: prev.Conflicts(),
		Iteration: it.Iteration,
	})

	st.consolidated = Merge(st.consolidated, it.AgentResults, c.opts.MergeThreshold)

	confidence, ok := OverallConfidence(it.AgentResults)
	if !ok {
		confidence = prev.OverallConfidence
	}
	it.OverallConfidence = confidence
	it.RequiresNextIteration, it.Reason = continueAfterRefinement(confidence, st.consolidated.MissingCritical(), c.opts.Stage2Threshold)
}

// finalVerification: the cross validator returns the final record.
func (c *Controller) finalVerification(ctx context.Context, st *runState, it *core.IterationResult) {
	prev := st.run.Iterations[len(st.run.Iterations)-1]

	descs := c.eligible(st, it, finalAgents, core.OriginHint{})
	it.AgentResults = c.fanOut(ctx, st, it, descs, agent.Input{
		Document:  st.doc,
		PriorData: st.consolidated.Clone(),
		Conflicts: prev.Conflicts(),
		Iteration: it.Iteration,
	})

	it.RequiresNextIteration = false

	confidence, ok := OverallConfidence(it.AgentResults)
	if !ok {
		it.OverallConfidence = prev.OverallConfidence
		it.Reason = "cross validation unavailable; keeping refined data"
		return
	}
	it.OverallConfidence = confidence

	res := it.AgentResults[0]
	if res.Fallback || len(res.Data) == 0 {
		it.Reason = "cross validation failed; keeping refined data"
		return
	}
	st.consolidated = res.Data.Clone()
	it.Reason = "final verification complete"
}

// originHint derives the jurisdiction hint from the Stage 1 classification.
func (c *Controller) originHint(st *runState, base core.IterationResult) core.OriginHint {
	res, ok := base.Result(core.AgentClassification)
	if !ok || res.Fallback {
		return core.OriginHint{}
	}
	origin := st.consolidated.String(core.FieldDocumentOrigin)
	if origin == "" {
		origin = res.Data.String(core.FieldDocumentOrigin)
	}
	return core.OriginHint{Origin: origin, Confidence: res.Confidence}
}

// eligible resolves the descriptors of names that should run, emitting a
// skip event for the others.
func (c *Controller) eligible(st *runState, it *core.IterationResult, names []string, hint core.OriginHint) []core.AgentDescriptor {
	descs := make([]core.AgentDescriptor, 0, len(names))
	for _, name := range names {
		desc, err := c.registry.Get(name)
		if err != nil {
			c.skip(st, it, name, "not registered")
			continue
		}
		if !c.registry.ShouldRun(name, hint) {
			reason := "not eligible for origin"
			if !desc.Enabled {
				reason = "disabled"
			}
			c.skip(st, it, name, reason)
			continue
		}
		descs = append(descs, desc)
	}
	return descs
}

func (c *Controller) skip(st *runState, it *core.IterationResult, name, reason string) {
	ev := core.NewEvent(st.run.ID, core.EventAgentSkipped, name)
	ev.Stage, ev.Iteration, ev.Message = it.Stage, it.Iteration, reason
	c.emit(st, ev)
	st.logger.Debug("orchestrator.agent.skipped", "agent", name, "stage", it.Stage.String(), "reason", reason)
}

// fanOut invokes every descriptor concurrently and waits for all of them.
// Results keep the order of descs regardless of completion order.
func (c *Controller) fanOut(ctx context.Context, st *runState, it *core.IterationResult, descs []core.AgentDescriptor, in agent.Input) []core.AgentResult {
	invocations := make([]agent.Invocation, len(descs))
	in.Limiter = st.limiter

	var g errgroup.Group
	for i, desc := range descs {
		g.Go(func() error {
			input := in
			input.PriorData = in.PriorData.Clone()
			input.Conflicts = append([]string(nil), in.Conflicts...)
			invocations[i] = c.invoker.Invoke(ctx, desc, input)
			return nil
		})
	}
	_ = g.Wait() // invocations never fail

	results := make([]core.AgentResult, 0, len(descs))
	for i, inv := range invocations {
		res := inv.Result
		if res.AgentName == "" {
			res.AgentName = descs[i].Name
		}
		results = append(results, res)
		st.run.Exchanges = append(st.run.Exchanges, inv.Exchanges...)

		if err := c.registry.RecordExecution(res.AgentName, registry.Execution{
			Confidence: res.Confidence,
			Latency:    res.ProcessingTime,
			Success:    res.Succeeded(),
		}); err != nil {
			st.logger.Warn("orchestrator.metrics.record_failed", "agent", res.AgentName, "error", err.Error())
		}

		kind := core.EventAgentCompleted
		if res.Fallback {
			kind = core.EventAgentFallback
		}
		ev := core.NewEvent(st.run.ID, kind, res.AgentName).WithConfidence(res.Confidence)
		ev.Stage, ev.Iteration = it.Stage, it.Iteration
		if res.ErrorCode != "" {
			ev.Metadata = map[string]string{"error_code": string(res.ErrorCode)}
		}
		c.emit(st, ev)
	}
	return results
}

func (c *Controller) emit(st *runState, ev core.Event) {
	st.run.Events = append(st.run.Events, ev)
	if c.opts.OnEvent != nil {
		c.opts.OnEvent(ev)
	}
}
