package core

import (
	"time"

	"github.com/google/uuid"
)

// EventKind classifies audit trail entries.
type EventKind string

const (
	EventRunStarted     EventKind = "run_started"
	EventStageStarted   EventKind = "stage_started"
	EventAgentCompleted EventKind = "agent_completed"
	EventAgentFallback  EventKind = "agent_fallback"
	EventAgentSkipped   EventKind = "agent_skipped"
	EventStageCompleted EventKind = "stage_completed"
	EventRunCompleted   EventKind = "run_completed"
)

// Event is an immutable audit record emitted by the controller while a run
// progresses. Author is the agent name or "orchestrator".
type Event struct {
	ID         string            `json:"id"`
	RunID      string            `json:"runId"`
	Kind       EventKind         `json:"kind"`
	Author     string            `json:"author"`
	Stage      Stage             `json:"stage,omitempty"`
	Iteration  int               `json:"iteration,omitempty"`
	Confidence *int              `json:"confidence,omitempty"`
	Message    string            `json:"message,omitempty"`
	Timestamp  time.Time         `json:"timestamp"`
	Metadata   map[string]string `json:"metadata,omitempty"`
}

// NewEvent creates a bare event bound to a run.
func NewEvent(runID string, kind EventKind, author string) Event {
	return Event{
		ID:        NewID(),
		RunID:     runID,
		Kind:      kind,
		Author:    author,
		Timestamp: time.Now().UTC(),
	}
}

// WithConfidence returns a copy of e carrying the confidence value.
func (e Event) WithConfidence(c int) Event {
	e.Confidence = &c
	return e
}

// NewID generates a new unique identifier.
func NewID() string { return uuid.NewString() }
