package runs

import "context"

// Tracker advances a single run through its statuses. Stages receive a
// Tracker instead of the whole store so they cannot touch other runs.
type Tracker struct {
	store *Store
	runID string
}

// NewTracker binds a store to one run id.
func NewTracker(store *Store, runID string) *Tracker {
	return &Tracker{store: store, runID: runID}
}

// RunID returns the tracked run's id.
func (t *Tracker) RunID() string {
	if t == nil {
		return ""
	}
	return t.runID
}

// Advance moves the run to a new status. A nil tracker is a no-op so tests
// can exercise stages without a database.
func (t *Tracker) Advance(ctx context.Context, status Status) error {
	if t == nil || t.store == nil {
		return nil
	}
	return t.store.SetStatus(ctx, t.runID, status)
}

// Fail marks the run failed with a message.
func (t *Tracker) Fail(ctx context.Context, message string) error {
	if t == nil || t.store == nil {
		return nil
	}
	return t.store.Fail(ctx, t.runID, message)
}
