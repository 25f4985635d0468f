package agent

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/hupe1980/invoicemesh/core"
	"github.com/hupe1980/invoicemesh/internal/telemetry"
	"github.com/hupe1980/invoicemesh/internal/util"
	"github.com/hupe1980/invoicemesh/logging"
	"github.com/hupe1980/invoicemesh/model"
	"go.opentelemetry.io/otel/attribute"
)

const defaultMaxTokens = 2000

// InvokerOptions configures an Invoker.
type InvokerOptions struct {
	// TextBudget caps the extracted text attached to each call, in characters.
	TextBudget  int
	Temperature float64
	// BaseBackoff is the delay before the first retry; it doubles per retry up to MaxBackoff.
	BaseBackoff time.Duration
	MaxBackoff  time.Duration
	// SchemaCheck records field type violations as conflict markers.
	SchemaCheck bool
	Logger      logging.Logger
}

// Invoker runs one agent descriptor against a document. It never fails:
// backend errors, timeouts and malformed responses produce a fallback result.
type Invoker struct {
	backend model.Model
	opts    InvokerOptions
}

// NewInvoker creates an invoker calling backend.
func NewInvoker(backend model.Model, optFns ...func(o *InvokerOptions)) *Invoker {
	opts := InvokerOptions{
		TextBudget:  3000,
		Temperature: 0.1,
		BaseBackoff: 500 * time.Millisecond,
		MaxBackoff:  4 * time.Second,
		SchemaCheck: true,
		Logger:      logging.NoOpLogger{},
	}
	for _, fn := range optFns {
		fn(&opts)
	}

	return &Invoker{backend: backend, opts: opts}
}

// Input is the per-call context handed to Invoke.
type Input struct {
	Document  *core.Document
	PriorData core.ExtractedData
	Conflicts []string
	Iteration int
	// Limiter is shared by every agent of a run; nil means unlimited.
	Limiter *core.CallLimiter
}

// Invocation is the outcome of Invoke: the result and every backend exchange
// made to produce it.
type Invocation struct {
	Result    core.AgentResult
	Exchanges []core.Exchange
}

// agentCallLogger is implemented by logging.StructuredLogger.
type agentCallLogger interface {
	LogAgentCall(agent string, dur time.Duration, attempts int, confidence int, err error)
}

// Invoke runs desc. Agents that do not use the model are answered locally.
func (iv *Invoker) Invoke(ctx context.Context, desc core.AgentDescriptor, in Input) Invocation {
	ctx, span := telemetry.StartAgentSpan(ctx, desc.Name, in.Iteration)

	start := time.Now()

	var (
		inv Invocation
		err error
	)
	if desc.UsesModel {
		inv, err = iv.invokeModel(ctx, desc, in)
	} else {
		inv = Invocation{Result: core.AgentResult{
			Data:       InferMetadata(in.Document),
			Confidence: MetadataConfidence,
		}}
	}

	inv.Result.AgentName = desc.Name
	inv.Result.Specializations = append([]string(nil), desc.Specializations...)
	inv.Result.Weight = desc.Weight
	inv.Result.ProcessingTime = time.Since(start)

	span.SetAttributes(
		attribute.Int("agent.confidence", inv.Result.Confidence),
		attribute.Int("agent.attempts", inv.Result.Attempts),
		attribute.Bool("agent.fallback", inv.Result.Fallback),
	)
	telemetry.EndWithError(span, err)

	if l, ok := iv.opts.Logger.(agentCallLogger); ok {
		l.LogAgentCall(desc.Name, inv.Result.ProcessingTime, inv.Result.Attempts, inv.Result.Confidence, err)
	} else if err != nil {
		iv.opts.Logger.Warn("agent.invoke.fallback", "agent", desc.Name, "attempts", inv.Result.Attempts, "error", err.Error())
	} else {
		iv.opts.Logger.Debug("agent.invoke.done", "agent", desc.Name, "confidence", inv.Result.Confidence, "duration", inv.Result.ProcessingTime)
	}

	return inv
}

func (iv *Invoker) invokeModel(ctx context.Context, desc core.AgentDescriptor, in Input) (Invocation, error) {
	doc := in.Document
	if doc == nil {
		doc = &core.Document{}
	}

	_, hasImage := doc.FirstPage()
	prompt, err := BuildPrompt(desc, PromptData{
		Text:      util.Truncate(iv.opts.TextBudget, doc.Text),
		PriorData: in.PriorData,
		Conflicts: in.Conflicts,
		FileName:  doc.FileName,
		MimeType:  doc.MimeType,
		Quality:   string(doc.Quality.Level),
		Iteration: in.Iteration,
		HasImage:  hasImage,
	})
	if err != nil {
		err = core.NewError(core.CodeAgentParseError, "render prompt", err)
		return Invocation{Result: fallback(err, "", "", 0)}, err
	}

	if iv.backend == nil {
		return Invocation{Result: fallback(core.ErrBackendNotConfigured, prompt, "", 0)}, core.ErrBackendNotConfigured
	}

	maxTokens := desc.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	req := model.Request{
		Model:       desc.Model,
		Parts:       BuildParts(doc, prompt),
		MaxTokens:   maxTokens,
		Temperature: iv.opts.Temperature,
	}
	modelName := desc.Model
	if modelName == "" {
		modelName = iv.backend.Info().Name
	}

	var (
		exchanges []core.Exchange
		resp      model.Response
		callErr   error
		attempts  int
	)
	for attempt := 0; attempt <= desc.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := iv.backoff(attempt)
			iv.opts.Logger.Warn("agent.invoke.retry", "agent", desc.Name, "attempt", attempt+1, "delay", delay, "error", callErr.Error())
			if err := sleep(ctx, delay); err != nil {
				callErr = err
				break
			}
		}

		if err := in.Limiter.Increment(); err != nil {
			callErr = err
			break
		}

		attempts++
		resp, callErr = iv.complete(ctx, desc, req)

		ex := core.Exchange{
			ID:        core.NewID(),
			Agent:     desc.Name,
			Iteration: in.Iteration,
			Attempt:   attempts,
			Model:     modelName,
			Prompt:    prompt,
			HasImage:  hasImage,
			Response:  resp.Text,
			Timestamp: time.Now().UTC(),
		}
		if callErr != nil {
			ex.Error = callErr.Error()
		}
		exchanges = append(exchanges, ex)

		if callErr == nil || ctx.Err() != nil {
			break
		}
	}

	if callErr != nil {
		err := classifyCallError(callErr)
		return Invocation{Result: fallback(err, prompt, "", attempts), Exchanges: exchanges}, err
	}

	result, err := iv.interpret(desc, resp.Text)
	result.Prompt = prompt
	result.Attempts = attempts

	return Invocation{Result: result, Exchanges: exchanges}, err
}

// complete performs a single backend call bounded by the agent's timeout.
func (iv *Invoker) complete(ctx context.Context, desc core.AgentDescriptor, req model.Request) (model.Response, error) {
	if desc.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, desc.Timeout)
		defer cancel()
	}
	return iv.backend.Complete(ctx, req)
}

// interpret turns raw response text into a result. A parse failure yields a
// fallback carrying the raw text.
func (iv *Invoker) interpret(desc core.AgentDescriptor, raw string) (core.AgentResult, error) {
	data, err := ParseResponse(raw)
	if err != nil {
		err = core.NewError(core.CodeAgentParseError, "parse response", err)
		r := fallback(err, "", raw, 0)
		return r, err
	}

	confidence, reported := takeConfidence(data)
	conflicts := takeConflicts(data)
	if !reported {
		confidence = HeuristicConfidence(data, desc.CriticalFields, desc.BonusFields)
	}

	result := core.AgentResult{
		Data:        data,
		Confidence:  confidence,
		Conflicts:   conflicts,
		RawResponse: raw,
	}

	if iv.opts.SchemaCheck {
		violations, verr := ValidateData(data)
		if verr != nil {
			iv.opts.Logger.Error("agent.schema.unavailable", "agent", desc.Name, "error", verr.Error())
		}
		for _, v := range violations {
			result.Conflicts = append(result.Conflicts, "schema: "+v)
		}
		if len(violations) > 0 {
			result.ErrorCode = core.CodeAgentSchemaError
		}
	}

	return result, nil
}

func (iv *Invoker) backoff(retry int) time.Duration {
	if iv.opts.BaseBackoff <= 0 {
		return 0
	}
	d := iv.opts.BaseBackoff << (retry - 1)
	if iv.opts.MaxBackoff > 0 && (d > iv.opts.MaxBackoff || d <= 0) {
		d = iv.opts.MaxBackoff
	}
	return d
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func classifyCallError(err error) error {
	var ce *core.Error
	switch {
	case errors.As(err, &ce):
		return err
	case errors.Is(err, core.ErrCallLimitExceeded):
		return core.NewError(core.CodeCallLimitExceeded, "backend call budget exhausted", err)
	case errors.Is(err, context.DeadlineExceeded):
		return core.NewError(core.CodeAgentTimeout, "backend call timed out", err)
	default:
		return core.NewError(core.CodeAgentBackendError, "backend call failed", err)
	}
}

// fallback builds the low-confidence result of a failed call.
func fallback(err error, prompt, raw string, attempts int) core.AgentResult {
	code := core.ErrorCodeOf(err)
	return core.AgentResult{
		Data:        core.ExtractedData{},
		Confidence:  core.FallbackConfidence,
		Conflicts:   []string{fmt.Sprintf("%s: %v", code, errorMessage(err))},
		RawResponse: raw,
		Prompt:      prompt,
		Attempts:    attempts,
		Fallback:    true,
		ErrorCode:   code,
	}
}

func errorMessage(err error) string {
	var ce *core.Error
	if errors.As(err, &ce) {
		if ce.Cause != nil {
			return ce.Message + ": " + ce.Cause.Error()
		}
		return ce.Message
	}
	return err.Error()
}
