package workflow

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperspine/paperspine/checkpoint"
	"github.com/paperspine/paperspine/core"
	"github.com/paperspine/paperspine/resolution"
)

func newAPIFixture(t *testing.T) (*httptest.Server, *core.DocumentState) {
	t.Helper()
	dir := t.TempDir()

	snapshot, err := checkpoint.NewFileSnapshotStore(dir + "/snapshots")
	require.NoError(t, err)
	recovery, err := checkpoint.NewRecoveryStore(dir + "/recovery")
	require.NoError(t, err)

	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")
	state.Stage = core.StageHumanReview
	conflict := core.NewConflict("r1", core.ConflictValueMismatch)
	conflict.Status = core.ResolutionFlagged
	conflict.ImpactScore = 0.9
	state.Conflicts = []core.Conflict{conflict}
	require.NoError(t, snapshot.Save(context.Background(), state))
	require.NoError(t, recovery.SaveCheckpoint("doc-1", 1, true, checkpoint.WithTotalPages(2)))

	manual := resolution.NewManualService(snapshot)
	api := NewReviewAPI(manual, recovery, nil, nil)
	server := httptest.NewServer(api.Handler())
	t.Cleanup(server.Close)
	return server, state
}

func TestAPIPendingConflicts(t *testing.T) {
	server, state := newAPIFixture(t)

	resp, err := http.Get(server.URL + "/api/v1/documents/doc-1/conflicts")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		DocID     string          `json:"doc_id"`
		Conflicts []core.Conflict `json:"conflicts"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, "doc-1", body.DocID)
	require.Len(t, body.Conflicts, 1)
	assert.Equal(t, state.Conflicts[0].ID, body.Conflicts[0].ID)
}

func TestAPIResolveConflict(t *testing.T) {
	server, state := newAPIFixture(t)

	payload, _ := json.Marshal(map[string]interface{}{
		"value":   120.0,
		"user_id": "reviewer-1",
		"notes":   "verified",
	})
	url := server.URL + "/api/v1/documents/doc-1/conflicts/" + state.Conflicts[0].ID + "/resolve"
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	// The decision shows up in the history endpoint.
	histResp, err := http.Get(server.URL + "/api/v1/documents/doc-1/resolutions")
	require.NoError(t, err)
	defer histResp.Body.Close()
	var hist struct {
		Resolutions []core.ConflictResolution `json:"resolutions"`
	}
	require.NoError(t, json.NewDecoder(histResp.Body).Decode(&hist))
	require.Len(t, hist.Resolutions, 1)
	assert.Equal(t, "reviewer-1", hist.Resolutions[0].UserID)
}

func TestAPIResolveUnknownConflictIs404(t *testing.T) {
	server, _ := newAPIFixture(t)

	payload, _ := json.Marshal(map[string]interface{}{"value": 1.0, "user_id": "reviewer-1"})
	url := server.URL + "/api/v1/documents/doc-1/conflicts/no-such-id/resolve"
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestAPIResolveRequiresUserID(t *testing.T) {
	server, state := newAPIFixture(t)

	payload, _ := json.Marshal(map[string]interface{}{"value": 1.0})
	url := server.URL + "/api/v1/documents/doc-1/conflicts/" + state.Conflicts[0].ID + "/resolve"
	resp, err := http.Post(url, "application/json", bytes.NewReader(payload))
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestAPIProgress(t *testing.T) {
	server, _ := newAPIFixture(t)

	resp, err := http.Get(server.URL + "/api/v1/documents/doc-1/progress")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var stats checkpoint.ProgressStats
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&stats))
	assert.Equal(t, 2, stats.TotalPages)
	assert.Equal(t, 1, stats.Completed)
}

func TestAPIPendingJobs(t *testing.T) {
	server, _ := newAPIFixture(t)

	resp, err := http.Get(server.URL + "/api/v1/jobs/pending")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var body struct {
		Pending []string `json:"pending"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
	assert.Equal(t, []string{"doc-1"}, body.Pending)
}

func TestAPIHealth(t *testing.T) {
	server, _ := newAPIFixture(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAPIUnknownDocumentIs404(t *testing.T) {
	server, _ := newAPIFixture(t)

	resp, err := http.Get(server.URL + "/api/v1/documents/ghost/conflicts")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}
