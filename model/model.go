package model

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/hupe1980/invoicemesh/core"
)

// Request captures one completion call: complete(model, promptParts, maxTokens, temperature).
type Request struct {
	Model       string      `json:"model"`
	Parts       []core.Part `json:"-"`
	MaxTokens   int64       `json:"max_tokens"`
	Temperature float64     `json:"temperature"`
}

// TokenUsage captures token usage statistics for a response.
type TokenUsage struct {
	PromptTokens     int `json:"prompt_tokens"`
	CompletionTokens int `json:"completion_tokens"`
	TotalTokens      int `json:"total_tokens"`
}

// Response is the raw text returned by a backend. The text is expected to be
// JSON, possibly markdown-fenced, possibly malformed.
type Response struct {
	Text         string      `json:"text"`
	Model        string      `json:"model"`
	FinishReason string      `json:"finish_reason"`
	Usage        *TokenUsage `json:"usage,omitempty"`
}

// Info contains metadata about a model implementation.
type Info struct {
	Name           string `json:"name"`
	Provider       string `json:"provider"` // "openai", "anthropic", "mock", ...
	SupportsImages bool   `json:"supports_images"`
}

// Model is the completion backend contract used by the agent invoker.
type Model interface {
	Complete(ctx context.Context, req Request) (Response, error)

	// Info returns information about the model implementation.
	Info() Info
}

// Pinger is optionally implemented by backends able to verify credentials
// and reachability before a run starts.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ErrNoScriptedResponse is returned by MockModel when no rule matches.
var ErrNoScriptedResponse = errors.New("mock model: no scripted response")

// MockRule maps prompts containing Match to a canned response or error.
type MockRule struct {
	Match    string
	Response string
	Err      error
}

// MockModel is a lightweight in‑memory Model useful for tests & examples.
// Rules are evaluated in registration order against the prompt text.
type MockModel struct {
	info     Info
	mu       sync.Mutex
	rules    []MockRule
	fallback *MockRule
	calls    []Request
}

// NewMockModel constructs a MockModel with image support enabled.
func NewMockModel(name, provider string) *MockModel {
	return &MockModel{
		info: Info{
			Name:           name,
			Provider:       provider,
			SupportsImages: true,
		},
	}
}

// AddResponse registers a deterministic canned completion for prompts containing match.
func (m *MockModel) AddResponse(match, response string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, MockRule{Match: match, Response: response})
}

// AddError registers an error for prompts containing match.
func (m *MockModel) AddError(match string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rules = append(m.rules, MockRule{Match: match, Err: err})
}

// SetDefault sets the response used when no rule matches.
func (m *MockModel) SetDefault(response string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.fallback = &MockRule{Response: response, Err: err}
}

// Calls returns a copy of the requests received so far.
func (m *MockModel) Calls() []Request {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Request(nil), m.calls...)
}

// Complete implements Model.
func (m *MockModel) Complete(ctx context.Context, req Request) (Response, error) {
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}

	m.mu.Lock()
	m.calls = append(m.calls, req)
	rules := append([]MockRule(nil), m.rules...)
	fallback := m.fallback
	m.mu.Unlock()

	prompt := core.PromptText(req.Parts)
	for _, r := range rules {
		if strings.Contains(prompt, r.Match) {
			return m.reply(req, r)
		}
	}
	if fallback != nil {
		return m.reply(req, *fallback)
	}
	return Response{}, fmt.Errorf("%w for prompt %.40q", ErrNoScriptedResponse, prompt)
}

func (m *MockModel) reply(req Request, r MockRule) (Response, error) {
	if r.Err != nil {
		return Response{}, r.Err
	}
	return Response{Text: r.Response, Model: req.Model, FinishReason: "stop"}, nil
}

// Info implements Model interface.
func (m *MockModel) Info() Info { return m.info }
