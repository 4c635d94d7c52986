package checkpoint

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/paperspine/paperspine/core"
)

// RedisSnapshotStore persists document snapshots in Redis for deployments
// where review and processing run on different nodes. Snapshots live under
// {prefix}:snapshot:{docID}; an open-runs set indexes non-terminal runs so
// ListInterrupted needs no key scan.
type RedisSnapshotStore struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
	logger    core.Logger
}

type redisSnapshotConfig struct {
	redisURL  string
	redisDB   int
	keyPrefix string
	ttl       time.Duration
	logger    core.Logger
}

// RedisSnapshotOption configures a RedisSnapshotStore
type RedisSnapshotOption func(*redisSnapshotConfig)

// WithSnapshotRedisURL overrides the Redis connection URL
func WithSnapshotRedisURL(url string) RedisSnapshotOption {
	return func(c *redisSnapshotConfig) { c.redisURL = url }
}

// WithSnapshotRedisDB selects the Redis database number
func WithSnapshotRedisDB(db int) RedisSnapshotOption {
	return func(c *redisSnapshotConfig) { c.redisDB = db }
}

// WithSnapshotKeyPrefix overrides the key namespace
func WithSnapshotKeyPrefix(prefix string) RedisSnapshotOption {
	return func(c *redisSnapshotConfig) { c.keyPrefix = prefix }
}

// WithSnapshotTTL sets an expiry on stored snapshots. Zero means no expiry.
func WithSnapshotTTL(ttl time.Duration) RedisSnapshotOption {
	return func(c *redisSnapshotConfig) { c.ttl = ttl }
}

// WithRedisSnapshotLogger sets the logger
func WithRedisSnapshotLogger(l core.Logger) RedisSnapshotOption {
	return func(c *redisSnapshotConfig) { c.logger = l }
}

// NewRedisSnapshotStore connects to Redis and verifies the connection.
//
// Configuration priority:
//  1. Explicit option (e.g., WithSnapshotRedisURL)
//  2. Environment variable (REDIS_URL)
//  3. Default value (redis://localhost:6379)
func NewRedisSnapshotStore(opts ...RedisSnapshotOption) (*RedisSnapshotStore, error) {
	config := &redisSnapshotConfig{
		redisURL:  getEnvOrDefault("REDIS_URL", "redis://localhost:6379"),
		keyPrefix: "paperspine",
		logger:    &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(config)
	}

	redisOpts, err := redis.ParseURL(config.redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL %s: %w (check REDIS_URL environment variable)", config.redisURL, err)
	}
	redisOpts.DB = config.redisDB

	client := redis.NewClient(redisOpts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", config.redisURL, core.ErrConnectionFailed)
	}

	return &RedisSnapshotStore{
		client:    client,
		keyPrefix: config.keyPrefix,
		ttl:       config.ttl,
		logger:    config.logger,
	}, nil
}

func getEnvOrDefault(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func (s *RedisSnapshotStore) snapshotKey(docID string) string {
	return fmt.Sprintf("%s:snapshot:%s", s.keyPrefix, docID)
}

func (s *RedisSnapshotStore) openRunsKey() string {
	return fmt.Sprintf("%s:open_runs", s.keyPrefix)
}

// Save stores the snapshot and keeps the open-runs index in sync with the
// run's stage.
func (s *RedisSnapshotStore) Save(ctx context.Context, state *core.DocumentState) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to serialize snapshot for %s: %w", state.DocID, err)
	}

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.snapshotKey(state.DocID), data, s.ttl)
	if state.Stage.Terminal() {
		pipe.SRem(ctx, s.openRunsKey(), state.DocID)
	} else {
		pipe.SAdd(ctx, s.openRunsKey(), state.DocID)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return &core.PipelineError{
			Op:    "save_snapshot",
			Kind:  "snapshot_write",
			DocID: state.DocID,
			Err:   fmt.Errorf("%w: %v", core.ErrCheckpointWrite, err),
		}
	}

	s.logger.Debug("Snapshot saved to Redis", map[string]interface{}{
		"operation": "save_snapshot",
		"doc_id":    state.DocID,
		"stage":     string(state.Stage),
	})
	return nil
}

// Load reads the latest snapshot for a document.
func (s *RedisSnapshotStore) Load(ctx context.Context, docID string) (*core.DocumentState, error) {
	data, err := s.client.Get(ctx, s.snapshotKey(docID)).Bytes()
	if err == redis.Nil {
		return nil, &core.PipelineError{
			Op:    "load_snapshot",
			Kind:  "snapshot_read",
			DocID: docID,
			Err:   core.ErrCheckpointNotFound,
		}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot for %s from Redis: %w", docID, err)
	}

	var state core.DocumentState
	if err := json.Unmarshal(data, &state); err != nil {
		return nil, fmt.Errorf("corrupt snapshot for %s: %w", docID, err)
	}
	return &state, nil
}

// ListInterrupted returns the members of the open-runs index. Entries whose
// snapshot has expired are pruned lazily.
func (s *RedisSnapshotStore) ListInterrupted(ctx context.Context) ([]string, error) {
	members, err := s.client.SMembers(ctx, s.openRunsKey()).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list open runs: %w", err)
	}

	var interrupted []string
	for _, docID := range members {
		exists, err := s.client.Exists(ctx, s.snapshotKey(docID)).Result()
		if err != nil {
			return nil, fmt.Errorf("failed to check snapshot for %s: %w", docID, err)
		}
		if exists == 0 {
			s.client.SRem(ctx, s.openRunsKey(), docID)
			continue
		}
		interrupted = append(interrupted, docID)
	}
	return interrupted, nil
}

// Clear removes a document's snapshot and its open-runs entry.
func (s *RedisSnapshotStore) Clear(ctx context.Context, docID string) error {
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.snapshotKey(docID))
	pipe.SRem(ctx, s.openRunsKey(), docID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to clear snapshot for %s: %w", docID, err)
	}
	return nil
}

// Close releases the Redis connection.
func (s *RedisSnapshotStore) Close() error {
	return s.client.Close()
}
