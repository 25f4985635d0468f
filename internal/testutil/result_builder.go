package testutil

import (
	"time"

	"github.com/hupe1980/invoicemesh/core"
)

// ResultBuilder provides a fluent helper for constructing agent results.
// Example:
//
//	r := NewResultBuilder("structural").Tags("header", "amounts").Confidence(90).Field("totalAmount", 100.0).Build()
type ResultBuilder struct {
	r core.AgentResult
}

// NewResultBuilder creates a builder for the named agent with weight 1 and one tag.
func NewResultBuilder(agent string) *ResultBuilder {
	return &ResultBuilder{r: core.AgentResult{
		AgentName:       agent,
		Data:            core.ExtractedData{},
		Specializations: []string{agent},
		Weight:          1.0,
		Attempts:        1,
		ProcessingTime:  time.Millisecond,
	}}
}

// Confidence sets the result confidence (chainable).
func (b *ResultBuilder) Confidence(c int) *ResultBuilder { b.r.Confidence = c; return b }

// Tags replaces the specialization tags (chainable).
func (b *ResultBuilder) Tags(tags ...string) *ResultBuilder {
	b.r.Specializations = append([]string(nil), tags...)
	return b
}

// Weight sets the descriptor weight carried by the result (chainable).
func (b *ResultBuilder) Weight(w float64) *ResultBuilder { b.r.Weight = w; return b }

// Field sets one extracted field (chainable).
func (b *ResultBuilder) Field(k string, v any) *ResultBuilder { b.r.Data[k] = v; return b }

// Conflict appends a conflict marker (chainable).
func (b *ResultBuilder) Conflict(c string) *ResultBuilder {
	b.r.Conflicts = append(b.r.Conflicts, c)
	return b
}

// Fallback marks the result as a failed call with the fallback confidence (chainable).
func (b *ResultBuilder) Fallback(code core.ErrorCode) *ResultBuilder {
	b.r.Fallback = true
	b.r.ErrorCode = code
	b.r.Confidence = core.FallbackConfidence
	b.r.Conflicts = append(b.r.Conflicts, string(code))
	return b
}

// Build returns the constructed result; its data is a deep copy.
func (b *ResultBuilder) Build() core.AgentResult {
	r := b.r
	r.Data = b.r.Data.Clone()
	r.Specializations = append([]string(nil), b.r.Specializations...)
	r.Conflicts = append([]string(nil), b.r.Conflicts...)
	return r
}
