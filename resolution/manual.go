package resolution

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/paperspine/paperspine/core"
)

func nowUTC() time.Time {
	return time.Now().UTC()
}

// StateStore is the slice of snapshot persistence the manual service needs.
// The checkpoint package's snapshot stores satisfy it.
type StateStore interface {
	Save(ctx context.Context, state *core.DocumentState) error
	Load(ctx context.Context, docID string) (*core.DocumentState, error)
}

// ManualService handles reviewer decisions on escalated conflicts. Every
// mutation loads the document snapshot, applies the decision, and persists
// the updated snapshot before returning, so a decision is never acknowledged
// without being durable.
type ManualService struct {
	store  StateStore
	logger core.Logger
}

// ManualOption configures a ManualService
type ManualOption func(*ManualService)

// WithManualLogger sets the logger
func WithManualLogger(l core.Logger) ManualOption {
	return func(m *ManualService) { m.logger = l }
}

// NewManualService creates a manual resolution service backed by the given
// snapshot store.
func NewManualService(store StateStore, opts ...ManualOption) *ManualService {
	m := &ManualService{
		store:  store,
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PendingConflicts returns the conflicts awaiting a reviewer decision for a
// document, highest impact first so reviewers see the most consequential
// disagreements at the top of the queue.
func (m *ManualService) PendingConflicts(ctx context.Context, docID string) ([]core.Conflict, error) {
	state, err := m.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}

	var pending []core.Conflict
	for _, c := range state.Conflicts {
		if c.Status == core.ResolutionPending || c.Status == core.ResolutionFlagged {
			pending = append(pending, c)
		}
	}
	sort.SliceStable(pending, func(i, j int) bool {
		return pending[i].ImpactScore > pending[j].ImpactScore
	})
	return pending, nil
}

// Apply records a reviewer's decision on one conflict. An unknown conflict
// ID fails with core.ErrConflictNotFound and leaves the snapshot untouched.
func (m *ManualService) Apply(ctx context.Context, docID, conflictID string, value float64, userID, notes string) (*core.DocumentState, error) {
	state, err := m.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}

	conflict := state.FindConflict(conflictID)
	if conflict == nil {
		return nil, &core.PipelineError{
			Op:    "manual_resolve",
			Kind:  "conflict_lookup",
			DocID: docID,
			Err:   fmt.Errorf("conflict %q: %w", conflictID, core.ErrConflictNotFound),
		}
	}

	conflict.Status = core.ResolutionResolved
	conflict.Method = core.MethodUserOverride

	chosen := value
	state.Resolutions = append(state.Resolutions, core.ConflictResolution{
		ConflictID:  conflictID,
		ChosenValue: &chosen,
		Method:      core.MethodUserOverride,
		UserID:      userID,
		Confidence:  1.0,
		Notes:       notes,
		Timestamp:   nowUTC(),
	})
	state.UpdatedAt = nowUTC()

	if err := m.store.Save(ctx, state); err != nil {
		return nil, &core.PipelineError{
			Op:    "manual_resolve",
			Kind:  "snapshot_write",
			DocID: docID,
			Err:   err,
		}
	}

	m.logger.Info("Manual resolution applied", map[string]interface{}{
		"operation":   "manual_resolve",
		"doc_id":      docID,
		"conflict_id": conflictID,
		"user_id":     userID,
		"value":       value,
	})
	return state, nil
}

// History returns the append-only resolution audit trail for a document.
func (m *ManualService) History(ctx context.Context, docID string) ([]core.ConflictResolution, error) {
	state, err := m.store.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	return state.Resolutions, nil
}
