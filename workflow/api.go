package workflow

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/paperspine/paperspine/checkpoint"
	"github.com/paperspine/paperspine/core"
	"github.com/paperspine/paperspine/resolution"
)

// ReviewAPI exposes the human-review surface over HTTP: pending conflicts,
// reviewer decisions, audit history, and job progress.
type ReviewAPI struct {
	manual   *resolution.ManualService
	recovery *checkpoint.RecoveryStore
	pipeline *Pipeline
	logger   core.Logger
}

// NewReviewAPI creates the review API over the given services.
func NewReviewAPI(manual *resolution.ManualService, recovery *checkpoint.RecoveryStore, pipeline *Pipeline, logger core.Logger) *ReviewAPI {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &ReviewAPI{
		manual:   manual,
		recovery: recovery,
		pipeline: pipeline,
		logger:   logger,
	}
}

// Handler returns the API routes wrapped with OpenTelemetry HTTP
// instrumentation.
func (a *ReviewAPI) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /api/v1/documents/{docID}/conflicts", a.handlePendingConflicts)
	mux.HandleFunc("POST /api/v1/documents/{docID}/conflicts/{conflictID}/resolve", a.handleResolve)
	mux.HandleFunc("GET /api/v1/documents/{docID}/resolutions", a.handleHistory)
	mux.HandleFunc("GET /api/v1/documents/{docID}/progress", a.handleProgress)
	mux.HandleFunc("POST /api/v1/documents/{docID}/complete", a.handleCompleteReview)
	mux.HandleFunc("GET /api/v1/jobs/pending", a.handlePendingJobs)
	mux.HandleFunc("GET /health", a.handleHealth)
	return otelhttp.NewHandler(mux, "review-api")
}

// Serve runs the API on addr until the server fails.
func (a *ReviewAPI) Serve(addr string) error {
	server := &http.Server{
		Addr:         addr,
		Handler:      a.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}
	a.logger.Info("Review API listening", map[string]interface{}{
		"operation": "review_api",
		"addr":      addr,
	})
	return server.ListenAndServe()
}

func (a *ReviewAPI) handlePendingConflicts(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	conflicts, err := a.manual.PendingConflicts(r.Context(), docID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"doc_id":    docID,
		"conflicts": conflicts,
	})
}

// resolveRequest is a reviewer's decision payload.
type resolveRequest struct {
	Value  float64 `json:"value"`
	UserID string  `json:"user_id"`
	Notes  string  `json:"notes"`
}

func (a *ReviewAPI) handleResolve(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	conflictID := r.PathValue("conflictID")

	var req resolveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}
	if req.UserID == "" {
		a.writeJSON(w, http.StatusBadRequest, map[string]string{"error": "user_id is required"})
		return
	}

	state, err := a.manual.Apply(r.Context(), docID, conflictID, req.Value, req.UserID, req.Notes)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"doc_id":      docID,
		"conflict_id": conflictID,
		"stage":       state.Stage,
	})
}

func (a *ReviewAPI) handleHistory(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	history, err := a.manual.History(r.Context(), docID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"doc_id":      docID,
		"resolutions": history,
	})
}

func (a *ReviewAPI) handleProgress(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	stats, err := a.recovery.Progress(docID)
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, stats)
}

func (a *ReviewAPI) handleCompleteReview(w http.ResponseWriter, r *http.Request) {
	docID := r.PathValue("docID")
	state, err := a.pipeline.CompleteReview(r.Context(), docID)
	if err != nil {
		if core.IsNotFound(err) {
			a.writeError(w, err)
			return
		}
		a.writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{
		"doc_id": docID,
		"stage":  state.Stage,
	})
}

func (a *ReviewAPI) handlePendingJobs(w http.ResponseWriter, r *http.Request) {
	jobs, err := a.recovery.ListPendingJobs()
	if err != nil {
		a.writeError(w, err)
		return
	}
	a.writeJSON(w, http.StatusOK, map[string]interface{}{"pending": jobs})
}

func (a *ReviewAPI) handleHealth(w http.ResponseWriter, r *http.Request) {
	a.writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (a *ReviewAPI) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		a.logger.Error("Failed to encode response", map[string]interface{}{
			"operation": "review_api",
			"error":     err.Error(),
		})
	}
}

func (a *ReviewAPI) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case core.IsNotFound(err):
		status = http.StatusNotFound
	case errors.Is(err, core.ErrInvalidConfiguration), errors.Is(err, core.ErrMissingConfiguration):
		status = http.StatusBadRequest
	}
	a.writeJSON(w, status, map[string]string{"error": fmt.Sprintf("%v", err)})
}
