package checkpoint

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/paperspine/paperspine/core"
)

// Job status values recorded in the recovery ledger.
const (
	JobInProgress = "in_progress"
	JobCompleted  = "completed"
	JobFailed     = "failed"
)

// RecoveryState is the per-document page ledger. Completed pages are never
// reprocessed on resume; failed pages are recorded for diagnostics but
// treated as never attempted, so a resume retries them.
type RecoveryState struct {
	DocID          string            `json:"doc_id"`
	Status         string            `json:"status"`
	TotalPages     int               `json:"total_pages"`
	CompletedPages []int             `json:"completed_pages"`
	FailedPages    []int             `json:"failed_pages"`
	TierLabel      string            `json:"tier_label,omitempty"`
	Metadata       map[string]string `json:"metadata,omitempty"`
	UpdatedAt      time.Time         `json:"updated_at"`
}

func (r *RecoveryState) completedSet() map[int]bool {
	set := make(map[int]bool, len(r.CompletedPages))
	for _, p := range r.CompletedPages {
		set[p] = true
	}
	return set
}

// addPage inserts page into a sorted slice without duplicates.
func addPage(pages []int, page int) []int {
	for _, p := range pages {
		if p == page {
			return pages
		}
	}
	pages = append(pages, page)
	sort.Ints(pages)
	return pages
}

func removePage(pages []int, page int) []int {
	for i, p := range pages {
		if p == page {
			return append(pages[:i], pages[i+1:]...)
		}
	}
	return pages
}

// RecoveryStore persists page ledgers as one JSON file per document under a
// base directory. All writes are atomic temp-plus-rename.
type RecoveryStore struct {
	dir    string
	logger core.Logger
}

// RecoveryOption configures a RecoveryStore
type RecoveryOption func(*RecoveryStore)

// WithRecoveryLogger sets the logger
func WithRecoveryLogger(l core.Logger) RecoveryOption {
	return func(s *RecoveryStore) { s.logger = l }
}

// NewRecoveryStore creates a ledger store rooted at dir.
func NewRecoveryStore(dir string, opts ...RecoveryOption) (*RecoveryStore, error) {
	if dir == "" {
		return nil, &core.PipelineError{
			Op:   "recovery_store_init",
			Kind: "configuration",
			Err:  fmt.Errorf("recovery directory: %w", core.ErrMissingConfiguration),
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create recovery directory %s: %w", dir, err)
	}
	s := &RecoveryStore{
		dir:    dir,
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *RecoveryStore) path(docID string) string {
	return filepath.Join(s.dir, sanitizeID(docID)+".recovery.json")
}

// SaveOption customizes a checkpoint write
type SaveOption func(*RecoveryState)

// WithTotalPages records the document's page count on the ledger
func WithTotalPages(n int) SaveOption {
	return func(r *RecoveryState) { r.TotalPages = n }
}

// WithTierLabel records which capability tier processed the page
func WithTierLabel(label string) SaveOption {
	return func(r *RecoveryState) { r.TierLabel = label }
}

// WithMetadata attaches a free-form key to the ledger
func WithMetadata(key, value string) SaveOption {
	return func(r *RecoveryState) {
		if r.Metadata == nil {
			r.Metadata = make(map[string]string)
		}
		r.Metadata[key] = value
	}
}

// SaveCheckpoint records the outcome of one page. A completed page joins the
// completed set and leaves the failed set; a failed page is recorded in the
// failed set only. The ledger file is created on first write.
func (s *RecoveryStore) SaveCheckpoint(docID string, page int, completed bool, opts ...SaveOption) error {
	state, err := s.Load(docID)
	if err != nil {
		if !core.IsNotFound(err) {
			return err
		}
		state = &RecoveryState{
			DocID:  docID,
			Status: JobInProgress,
		}
	}

	if completed {
		state.CompletedPages = addPage(state.CompletedPages, page)
		state.FailedPages = removePage(state.FailedPages, page)
	} else {
		state.FailedPages = addPage(state.FailedPages, page)
	}
	for _, opt := range opts {
		opt(state)
	}
	state.UpdatedAt = time.Now().UTC()

	if err := writeJSONAtomic(s.path(docID), state); err != nil {
		return &core.PipelineError{
			Op:    "save_checkpoint",
			Kind:  "ledger_write",
			DocID: docID,
			Err:   fmt.Errorf("%w: %v", core.ErrCheckpointWrite, err),
		}
	}

	s.logger.Debug("Page checkpoint saved", map[string]interface{}{
		"operation": "save_checkpoint",
		"doc_id":    docID,
		"page":      page,
		"completed": completed,
	})
	return nil
}

// Load reads a document's ledger. A missing ledger is reported with
// core.ErrCheckpointNotFound.
func (s *RecoveryStore) Load(docID string) (*RecoveryState, error) {
	data, err := os.ReadFile(s.path(docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &core.PipelineError{
				Op:    "load_checkpoint",
				Kind:  "ledger_read",
				DocID: docID,
				Err:   core.ErrCheckpointNotFound,
			}
		}
		return nil, fmt.Errorf("failed to read recovery ledger for %s: %w", docID, err)
	}

	var state RecoveryState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt recovery ledger for %s: %w", docID, err)
	}
	return &state, nil
}

// GetResumePoint returns the first page that still needs processing and the
// sorted list of pages already done. With no ledger the answer is page 1 and
// an empty list. When every page up to TotalPages is complete, the resume
// point is TotalPages+1.
func (s *RecoveryStore) GetResumePoint(docID string) (int, []int) {
	state, err := s.Load(docID)
	if err != nil {
		return 1, nil
	}

	done := state.completedSet()
	resume := 1
	for done[resume] {
		resume++
	}

	completed := make([]int, len(state.CompletedPages))
	copy(completed, state.CompletedPages)
	sort.Ints(completed)
	return resume, completed
}

// MarkCompleted sets the ledger's job status to completed. Page sets are
// left intact for later inspection.
func (s *RecoveryStore) MarkCompleted(docID string) error {
	return s.setStatus(docID, JobCompleted)
}

// MarkFailed sets the ledger's job status to failed.
func (s *RecoveryStore) MarkFailed(docID string) error {
	return s.setStatus(docID, JobFailed)
}

func (s *RecoveryStore) setStatus(docID, status string) error {
	state, err := s.Load(docID)
	if err != nil {
		return err
	}
	state.Status = status
	state.UpdatedAt = time.Now().UTC()
	if err := writeJSONAtomic(s.path(docID), state); err != nil {
		return &core.PipelineError{
			Op:    "update_checkpoint",
			Kind:  "ledger_write",
			DocID: docID,
			Err:   fmt.Errorf("%w: %v", core.ErrCheckpointWrite, err),
		}
	}
	return nil
}

// ListPendingJobs returns the document IDs whose ledger is still in
// progress. Unreadable or corrupt ledger files are skipped with a warning
// rather than failing the whole scan.
func (s *RecoveryStore) ListPendingJobs() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan recovery directory %s: %w", s.dir, err)
	}

	var pending []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".recovery.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			s.logger.Warn("Skipping unreadable ledger", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		var state RecoveryState
		if err := json.Unmarshal(data, &state); err != nil {
			s.logger.Warn("Skipping corrupt ledger", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		if state.Status == JobInProgress {
			pending = append(pending, state.DocID)
		}
	}
	sort.Strings(pending)
	return pending, nil
}

// ClearCheckpoint removes a document's ledger. Clearing a ledger that does
// not exist is not an error.
func (s *RecoveryStore) ClearCheckpoint(docID string) error {
	err := os.Remove(s.path(docID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear recovery ledger for %s: %w", docID, err)
	}
	return nil
}

// ProgressStats summarizes a run's page progress for operator dashboards.
type ProgressStats struct {
	DocID        string  `json:"doc_id"`
	Status       string  `json:"status"`
	TotalPages   int     `json:"total_pages"`
	Completed    int     `json:"completed"`
	Failed       int     `json:"failed"`
	PercentDone  float64 `json:"percent_done"`
	TierLabel    string  `json:"tier_label,omitempty"`
}

// Progress reports page progress for one document.
func (s *RecoveryStore) Progress(docID string) (*ProgressStats, error) {
	state, err := s.Load(docID)
	if err != nil {
		return nil, err
	}
	stats := &ProgressStats{
		DocID:      state.DocID,
		Status:     state.Status,
		TotalPages: state.TotalPages,
		Completed:  len(state.CompletedPages),
		Failed:     len(state.FailedPages),
		TierLabel:  state.TierLabel,
	}
	if state.TotalPages > 0 {
		stats.PercentDone = float64(stats.Completed) / float64(state.TotalPages) * 100
	}
	return stats, nil
}
