package core

import (
	"sort"
	"time"
)

// FallbackConfidence is the fixed confidence of a failed agent call.
const FallbackConfidence = 30

// AgentResult is the outcome of one agent invocation within a run. It is
// immutable once returned by the invoker.
type AgentResult struct {
	AgentName       string        `json:"agentName"`
	Data            ExtractedData `json:"extractedData"`
	Confidence      int           `json:"confidence"`
	Specializations []string      `json:"specializations"`
	Weight          float64       `json:"weight"`
	Conflicts       []string      `json:"conflicts,omitempty"`
	RawResponse     string        `json:"rawResponse,omitempty"`
	Prompt          string        `json:"prompt,omitempty"`
	ProcessingTime  time.Duration `json:"processingTime"`
	Attempts        int           `json:"attempts"`
	// Fallback is set when the call failed and Data is empty or error-marked.
	Fallback  bool      `json:"fallback"`
	ErrorCode ErrorCode `json:"errorCode,omitempty"`
}

// HasConflicts reports whether the agent surfaced any conflict marker.
func (r AgentResult) HasConflicts() bool { return len(r.Conflicts) > 0 }

// Succeeded reports whether the call produced real data.
func (r AgentResult) Succeeded() bool { return !r.Fallback }

// IterationResult is one pass of the three-stage pipeline.
type IterationResult struct {
	Iteration             int           `json:"iterationNumber"`
	Stage                 Stage         `json:"stage"`
	AgentResults          []AgentResult `json:"agentResults"`
	ConsolidatedData      ExtractedData `json:"consolidatedData"`
	OverallConfidence     int           `json:"overallConfidence"`
	RequiresNextIteration bool          `json:"requiresNextIteration"`
	Reason                string        `json:"reason"`
	StartedAt             time.Time     `json:"startedAt"`
	EndedAt               time.Time     `json:"endedAt"`
	Duration              time.Duration `json:"duration"`
}

// HasConflicts reports whether any agent of the iteration surfaced a conflict.
func (it IterationResult) HasConflicts() bool {
	for _, r := range it.AgentResults {
		if r.HasConflicts() {
			return true
		}
	}
	return false
}

// Conflicts flattens every conflict marker, prefixed with the agent name.
func (it IterationResult) Conflicts() []string {
	var out []string
	for _, r := range it.AgentResults {
		for _, c := range r.Conflicts {
			out = append(out, r.AgentName+": "+c)
		}
	}
	return out
}

// Result returns the result of the named agent in this iteration.
func (it IterationResult) Result(agent string) (AgentResult, bool) {
	for _, r := range it.AgentResults {
		if r.AgentName == agent {
			return r, true
		}
	}
	return AgentResult{}, false
}

// Exchange is one prompt/response pair sent to the completion backend.
type Exchange struct {
	ID        string    `json:"id"`
	Agent     string    `json:"agent"`
	Iteration int       `json:"iteration"`
	Attempt   int       `json:"attempt"`
	Model     string    `json:"model"`
	Prompt    string    `json:"prompt"`
	HasImage  bool      `json:"hasImage"`
	Response  string    `json:"response,omitempty"`
	Error     string    `json:"error,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// RunSummary carries the aggregate metrics of a run.
type RunSummary struct {
	TotalTime       time.Duration `json:"totalTime"`
	Iterations      int           `json:"iterations"`
	AgentsUsed      []string      `json:"agentsUsed"`
	FinalConfidence int           `json:"finalConfidence"`
}

// OrchestrationRun is the complete output of one document run.
type OrchestrationRun struct {
	ID          string            `json:"id"`
	DocumentID  string            `json:"documentId"`
	FileName    string            `json:"fileName"`
	MimeType    string            `json:"mimeType"`
	Quality     Quality           `json:"quality"`
	Iterations  []IterationResult `json:"iterations"`
	FinalData   ExtractedData     `json:"finalData"`
	Summary     RunSummary        `json:"summary"`
	NeedsReview bool              `json:"needsReview"`
	Exchanges   []Exchange        `json:"exchanges"`
	Events      []Event           `json:"events"`
	StartedAt   time.Time         `json:"startedAt"`
	CompletedAt time.Time         `json:"completedAt"`
}

// FinalConfidence is the overall confidence of the last iteration.
func (r *OrchestrationRun) FinalConfidence() int {
	if r == nil || len(r.Iterations) == 0 {
		return 0
	}
	return r.Iterations[len(r.Iterations)-1].OverallConfidence
}

// DistinctAgents returns the sorted set of agent names invoked during the run.
func (r *OrchestrationRun) DistinctAgents() []string {
	seen := map[string]struct{}{}
	for _, it := range r.Iterations {
		for _, res := range it.AgentResults {
			seen[res.AgentName] = struct{}{}
		}
	}
	names := make([]string, 0, len(seen))
	for n := range seen {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Clone returns a copy of the run whose slices and maps can be mutated
// independently. Agent results share their Data with the original.
func (r *OrchestrationRun) Clone() *OrchestrationRun {
	if r == nil {
		return nil
	}
	c := *r
	c.Iterations = append([]IterationResult(nil), r.Iterations...)
	c.FinalData = r.FinalData.Clone()
	c.Summary.AgentsUsed = append([]string(nil), r.Summary.AgentsUsed...)
	c.Exchanges = append([]Exchange(nil), r.Exchanges...)
	c.Events = append([]Event(nil), r.Events...)
	return &c
}
