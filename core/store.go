package core

import "context"

// RunStore persists completed orchestration runs. Implementations live in the
// store package; depend on this interface and pick a backend at wiring time.
type RunStore interface {
	// Save stores run under run.ID, replacing any previous record.
	Save(ctx context.Context, run *OrchestrationRun) error
	// Get returns ErrRunNotFound when no record exists.
	Get(ctx context.Context, id string) (*OrchestrationRun, error)
	// List returns up to limit runs, most recently completed first.
	List(ctx context.Context, limit int) ([]*OrchestrationRun, error)
}
