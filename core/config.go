package core

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config holds all configuration options for the processing core.
// It supports three-layer configuration priority:
//  1. Default values (lowest priority)
//  2. Optional YAML file, then environment variables (medium priority)
//  3. Functional options (highest priority)
//
// Example usage:
//
//	cfg, err := core.NewConfig(
//	    core.WithTargetTier("hybrid"),
//	    core.WithCheckpointDir("/var/lib/paperspine"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
type Config struct {
	// ServiceName identifies this deployment in logs and telemetry.
	ServiceName string `yaml:"service_name"`

	Mode       ModeConfig       `yaml:"mode"`
	Retry      RetryConfig      `yaml:"retry"`
	Detector   DetectorConfig   `yaml:"detector"`
	Resolver   ResolverConfig   `yaml:"resolver"`
	Checkpoint CheckpointConfig `yaml:"checkpoint"`
	Telemetry  TelemetryConfig  `yaml:"telemetry"`
	Logging    LoggingConfig    `yaml:"logging"`
	Review     ReviewConfig     `yaml:"review"`

	// loadErr carries a deferred file-loading failure into Validate.
	loadErr error `yaml:"-"`
}

// ModeConfig controls capability tier selection.
type ModeConfig struct {
	// TargetTier is the configured processing target: one of
	// "hybrid", "accelerated", "cpu_only", "text_only".
	TargetTier string `yaml:"target_tier"`
	// CriticalMemoryFraction is the free-memory fraction below which the
	// selector forces the lowest tier.
	CriticalMemoryFraction float64 `yaml:"critical_memory_fraction"`
	// MinAcceleratorFreeGB is the accelerator headroom required before an
	// accelerator-dependent tier is allowed.
	MinAcceleratorFreeGB float64 `yaml:"min_accelerator_free_gb"`
}

// RetryConfig controls the bounded-retry executor.
type RetryConfig struct {
	MaxAttempts           int             `yaml:"max_attempts"`
	BackoffDelays         []time.Duration `yaml:"backoff_delays"`
	DowngradeOnExhaustion bool            `yaml:"downgrade_on_exhaustion"`
}

// DetectorConfig controls conflict detection.
type DetectorConfig struct {
	// Threshold is the discrepancy ratio above which a conflict is raised.
	Threshold float64 `yaml:"threshold"`
	// AssumedVisionConfidence is used when the vision collaborator does not
	// supply a confidence score of its own.
	AssumedVisionConfidence float64 `yaml:"assumed_vision_confidence"`
}

// ResolverConfig controls the automatic resolution heuristics.
type ResolverConfig struct {
	HighConfidence       float64 `yaml:"high_confidence"`
	LowConfidence        float64 `yaml:"low_confidence"`
	ReasonableConfidence float64 `yaml:"reasonable_confidence"`
	// MassiveDiscrepancy escalates to manual review when the discrepancy
	// ratio reaches this value. The comparison is inclusive: a ratio exactly
	// at the threshold escalates.
	MassiveDiscrepancy float64 `yaml:"massive_discrepancy"`
}

// CheckpointConfig controls both persistence units.
type CheckpointConfig struct {
	RecoveryDir string `yaml:"recovery_dir"`
	SnapshotDir string `yaml:"snapshot_dir"`
	// RedisURL selects the Redis snapshot backend when set; the file
	// backend is used otherwise.
	RedisURL string `yaml:"redis_url"`
}

// TelemetryConfig controls tracing and metrics.
type TelemetryConfig struct {
	Enabled bool `yaml:"enabled"`
	// Endpoint is the OTLP gRPC collector address. Empty selects the
	// stdout trace exporter for local development.
	Endpoint string `yaml:"endpoint"`
}

// LoggingConfig controls structured logging output.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"` // "json" or "text"; autodetected when empty
}

// ReviewConfig controls the manual review HTTP API.
type ReviewConfig struct {
	Addr string `yaml:"addr"`
}

// Option is a functional configuration option
type Option func(*Config)

// WithServiceName sets the service name used in logs and telemetry
func WithServiceName(name string) Option {
	return func(c *Config) { c.ServiceName = name }
}

// WithTargetTier sets the configured capability tier target
func WithTargetTier(tier string) Option {
	return func(c *Config) { c.Mode.TargetTier = tier }
}

// WithRetry sets the retry attempt bound and backoff schedule
func WithRetry(maxAttempts int, delays ...time.Duration) Option {
	return func(c *Config) {
		c.Retry.MaxAttempts = maxAttempts
		if len(delays) > 0 {
			c.Retry.BackoffDelays = delays
		}
	}
}

// WithConflictThreshold sets the detector's discrepancy threshold
func WithConflictThreshold(threshold float64) Option {
	return func(c *Config) { c.Detector.Threshold = threshold }
}

// WithCheckpointDir sets both checkpoint directories under one root
func WithCheckpointDir(root string) Option {
	return func(c *Config) {
		c.Checkpoint.RecoveryDir = root + "/recovery"
		c.Checkpoint.SnapshotDir = root + "/snapshots"
	}
}

// WithRedisURL selects the Redis snapshot backend
func WithRedisURL(url string) Option {
	return func(c *Config) { c.Checkpoint.RedisURL = url }
}

// WithTelemetryEndpoint enables telemetry against an OTLP collector
func WithTelemetryEndpoint(endpoint string) Option {
	return func(c *Config) {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = endpoint
	}
}

// WithConfigFile loads a YAML configuration file before the remaining
// options are applied. Missing files are an error; this option is only
// used when the caller explicitly asks for a file.
func WithConfigFile(path string) Option {
	return func(c *Config) {
		data, err := os.ReadFile(path)
		if err != nil {
			// Surfaced by Validate: an unreadable explicit config file
			// must not be silently ignored.
			c.loadErr = fmt.Errorf("read config file %s: %w", path, err)
			return
		}
		if err := yaml.Unmarshal(data, c); err != nil {
			c.loadErr = fmt.Errorf("parse config file %s: %w", path, err)
		}
	}
}

// NewConfig creates a Config with defaults, environment overrides, and
// functional options applied in that order.
func NewConfig(opts ...Option) (*Config, error) {
	cfg := defaultConfig()
	cfg.applyEnvironment()

	for _, opt := range opts {
		opt(cfg)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func defaultConfig() *Config {
	return &Config{
		ServiceName: "paperspine",
		Mode: ModeConfig{
			TargetTier:             "hybrid",
			CriticalMemoryFraction: 0.10,
			MinAcceleratorFreeGB:   2.0,
		},
		Retry: RetryConfig{
			MaxAttempts:           3,
			BackoffDelays:         []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second},
			DowngradeOnExhaustion: false,
		},
		Detector: DetectorConfig{
			Threshold:               0.15,
			AssumedVisionConfidence: 0.8,
		},
		Resolver: ResolverConfig{
			HighConfidence:       0.90,
			LowConfidence:        0.60,
			ReasonableConfidence: 0.80,
			MassiveDiscrepancy:   0.50,
		},
		Checkpoint: CheckpointConfig{
			RecoveryDir: "./data/recovery",
			SnapshotDir: "./data/checkpoints",
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		Review: ReviewConfig{
			Addr: ":8090",
		},
	}
}

// applyEnvironment applies PAPERSPINE_* environment variables.
func (c *Config) applyEnvironment() {
	if v := os.Getenv("PAPERSPINE_SERVICE_NAME"); v != "" {
		c.ServiceName = v
	}
	if v := os.Getenv("PAPERSPINE_TARGET_TIER"); v != "" {
		c.Mode.TargetTier = v
	}
	if v := os.Getenv("PAPERSPINE_CHECKPOINT_DIR"); v != "" {
		c.Checkpoint.RecoveryDir = v + "/recovery"
		c.Checkpoint.SnapshotDir = v + "/snapshots"
	}
	if v := os.Getenv("REDIS_URL"); v != "" {
		c.Checkpoint.RedisURL = v
	}
	if v := os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT"); v != "" {
		c.Telemetry.Enabled = true
		c.Telemetry.Endpoint = v
	}
	if v := os.Getenv("PAPERSPINE_LOG_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("PAPERSPINE_REVIEW_ADDR"); v != "" {
		c.Review.Addr = v
	}
	if v := os.Getenv("PAPERSPINE_MAX_ATTEMPTS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			c.Retry.MaxAttempts = n
		}
	}
	if v := os.Getenv("PAPERSPINE_CONFLICT_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			c.Detector.Threshold = f
		}
	}
}

// Validate checks the configuration once at construction.
func (c *Config) Validate() error {
	if c.loadErr != nil {
		return fmt.Errorf("%w: %v", ErrInvalidConfiguration, c.loadErr)
	}
	switch c.Mode.TargetTier {
	case "hybrid", "accelerated", "cpu_only", "text_only":
	default:
		return fmt.Errorf("%w: unknown target tier %q", ErrInvalidConfiguration, c.Mode.TargetTier)
	}
	if c.Retry.MaxAttempts < 1 {
		return fmt.Errorf("%w: retry max attempts must be >= 1", ErrInvalidConfiguration)
	}
	if len(c.Retry.BackoffDelays) == 0 {
		return fmt.Errorf("%w: retry backoff schedule is empty", ErrInvalidConfiguration)
	}
	if c.Detector.Threshold <= 0 || c.Detector.Threshold >= 1 {
		return fmt.Errorf("%w: conflict threshold must be in (0,1)", ErrInvalidConfiguration)
	}
	if c.Detector.AssumedVisionConfidence < 0 || c.Detector.AssumedVisionConfidence > 1 {
		return fmt.Errorf("%w: assumed vision confidence must be in [0,1]", ErrInvalidConfiguration)
	}
	if c.Resolver.LowConfidence >= c.Resolver.HighConfidence {
		return fmt.Errorf("%w: resolver low threshold must be below high threshold", ErrInvalidConfiguration)
	}
	if c.Checkpoint.RecoveryDir == "" || c.Checkpoint.SnapshotDir == "" {
		return fmt.Errorf("%w: checkpoint directories are required", ErrMissingConfiguration)
	}
	return nil
}
