package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/paperspine/paperspine/core"
)

// SnapshotStore persists full document-run snapshots at stage boundaries.
// Implementations must write atomically: a crash mid-save leaves the
// previous snapshot intact.
type SnapshotStore interface {
	// Save overwrites the snapshot for state.DocID.
	Save(ctx context.Context, state *core.DocumentState) error
	// Load returns the latest snapshot, or core.ErrCheckpointNotFound.
	Load(ctx context.Context, docID string) (*core.DocumentState, error)
	// ListInterrupted returns doc IDs whose stored snapshot is at a
	// non-terminal stage.
	ListInterrupted(ctx context.Context) ([]string, error)
	// Clear removes a document's snapshot. Missing snapshots are ignored.
	Clear(ctx context.Context, docID string) error
}

// FileSnapshotStore keeps one JSON snapshot file per document under a base
// directory. Suitable for single-node deployments and tests.
type FileSnapshotStore struct {
	dir    string
	logger core.Logger
}

// FileSnapshotOption configures a FileSnapshotStore
type FileSnapshotOption func(*FileSnapshotStore)

// WithSnapshotLogger sets the logger
func WithSnapshotLogger(l core.Logger) FileSnapshotOption {
	return func(s *FileSnapshotStore) { s.logger = l }
}

// NewFileSnapshotStore creates a snapshot store rooted at dir.
func NewFileSnapshotStore(dir string, opts ...FileSnapshotOption) (*FileSnapshotStore, error) {
	if dir == "" {
		return nil, &core.PipelineError{
			Op:   "snapshot_store_init",
			Kind: "configuration",
			Err:  fmt.Errorf("snapshot directory: %w", core.ErrMissingConfiguration),
		}
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create snapshot directory %s: %w", dir, err)
	}
	s := &FileSnapshotStore{
		dir:    dir,
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func (s *FileSnapshotStore) path(docID string) string {
	return filepath.Join(s.dir, sanitizeID(docID)+".snapshot.json")
}

// Save writes the snapshot atomically.
func (s *FileSnapshotStore) Save(ctx context.Context, state *core.DocumentState) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := writeJSONAtomic(s.path(state.DocID), state); err != nil {
		return &core.PipelineError{
			Op:    "save_snapshot",
			Kind:  "snapshot_write",
			DocID: state.DocID,
			Err:   fmt.Errorf("%w: %v", core.ErrCheckpointWrite, err),
		}
	}
	s.logger.Debug("Snapshot saved", map[string]interface{}{
		"operation": "save_snapshot",
		"doc_id":    state.DocID,
		"stage":     string(state.Stage),
	})
	return nil
}

// Load reads the latest snapshot for a document.
func (s *FileSnapshotStore) Load(ctx context.Context, docID string) (*core.DocumentState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(docID))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, &core.PipelineError{
				Op:    "load_snapshot",
				Kind:  "snapshot_read",
				DocID: docID,
				Err:   core.ErrCheckpointNotFound,
			}
		}
		return nil, fmt.Errorf("failed to read snapshot for %s: %w", docID, err)
	}

	var state core.DocumentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt snapshot for %s: %w", docID, err)
	}
	return &state, nil
}

// ListInterrupted scans the snapshot directory for runs stuck at a
// non-terminal stage.
func (s *FileSnapshotStore) ListInterrupted(ctx context.Context) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to scan snapshot directory %s: %w", s.dir, err)
	}

	var interrupted []string
	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".snapshot.json") {
			continue
		}
		data, err := os.ReadFile(filepath.Join(s.dir, entry.Name()))
		if err != nil {
			continue
		}
		var state core.DocumentState
		if err := json.Unmarshal(data, &state); err != nil {
			s.logger.Warn("Skipping corrupt snapshot", map[string]interface{}{
				"file":  entry.Name(),
				"error": err.Error(),
			})
			continue
		}
		if !state.Stage.Terminal() {
			interrupted = append(interrupted, state.DocID)
		}
	}
	sort.Strings(interrupted)
	return interrupted, nil
}

// Clear removes a document's snapshot.
func (s *FileSnapshotStore) Clear(ctx context.Context, docID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	err := os.Remove(s.path(docID))
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to clear snapshot for %s: %w", docID, err)
	}
	return nil
}
