package resolution

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperspine/paperspine/checkpoint"
	"github.com/paperspine/paperspine/core"
)

func newManualFixture(t *testing.T) (*ManualService, *checkpoint.FileSnapshotStore, *core.DocumentState) {
	t.Helper()
	store, err := checkpoint.NewFileSnapshotStore(t.TempDir())
	require.NoError(t, err)

	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")
	state.Stage = core.StageHumanReview

	low := core.NewConflict("r1", core.ConflictValueMismatch)
	low.Status = core.ResolutionFlagged
	low.ImpactScore = 0.3
	high := core.NewConflict("r2", core.ConflictValueMismatch)
	high.Status = core.ResolutionFlagged
	high.ImpactScore = 0.9
	state.Conflicts = []core.Conflict{low, high}

	require.NoError(t, store.Save(context.Background(), state))
	return NewManualService(store), store, state
}

func TestPendingConflictsSortedByImpact(t *testing.T) {
	svc, _, state := newManualFixture(t)

	pending, err := svc.PendingConflicts(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, pending, 2)

	assert.Equal(t, state.Conflicts[1].ID, pending[0].ID, "highest impact first")
	assert.Equal(t, state.Conflicts[0].ID, pending[1].ID)
}

func TestApplyPersistsDecision(t *testing.T) {
	svc, store, state := newManualFixture(t)
	conflictID := state.Conflicts[0].ID

	updated, err := svc.Apply(context.Background(), "doc-1", conflictID, 1234.5, "reviewer-7", "checked source scan")
	require.NoError(t, err)

	c := updated.FindConflict(conflictID)
	require.NotNil(t, c)
	assert.Equal(t, core.ResolutionResolved, c.Status)
	assert.Equal(t, core.MethodUserOverride, c.Method)

	// The decision must be durable, not just in the returned state.
	reloaded, err := store.Load(context.Background(), "doc-1")
	require.NoError(t, err)
	require.Len(t, reloaded.Resolutions, 1)
	res := reloaded.Resolutions[0]
	assert.Equal(t, conflictID, res.ConflictID)
	require.NotNil(t, res.ChosenValue)
	assert.Equal(t, 1234.5, *res.ChosenValue)
	assert.Equal(t, "reviewer-7", res.UserID)
	assert.Equal(t, core.MethodUserOverride, res.Method)
}

func TestApplyUnknownConflictRejectsWithoutWrite(t *testing.T) {
	svc, store, _ := newManualFixture(t)

	_, err := svc.Apply(context.Background(), "doc-1", "no-such-conflict", 10, "reviewer-7", "")
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrConflictNotFound))

	// The snapshot must be untouched by the failed attempt.
	reloaded, err := store.Load(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Empty(t, reloaded.Resolutions)
	for _, c := range reloaded.Conflicts {
		assert.Equal(t, core.ResolutionFlagged, c.Status)
	}
}

func TestApplyUnknownDocument(t *testing.T) {
	svc, _, _ := newManualFixture(t)

	_, err := svc.Apply(context.Background(), "ghost-doc", "c1", 10, "reviewer-7", "")
	require.Error(t, err)
	assert.True(t, core.IsNotFound(err))
}

func TestHistoryAccumulates(t *testing.T) {
	svc, _, state := newManualFixture(t)

	for _, c := range state.Conflicts {
		_, err := svc.Apply(context.Background(), "doc-1", c.ID, 42, "reviewer-7", "")
		require.NoError(t, err)
	}

	history, err := svc.History(context.Background(), "doc-1")
	require.NoError(t, err)
	assert.Len(t, history, 2)
}
