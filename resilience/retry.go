package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/paperspine/paperspine/core"
)

// RetryPolicy configures bounded re-invocation of a fallible operation.
// The wrapped operation must be idempotent or externally deduplicated by
// the caller; the executor provides no deduplication, only bounded retry.
type RetryPolicy struct {
	// MaxAttempts bounds total invocations, including the first.
	MaxAttempts int
	// BackoffDelays is the sleep schedule between attempts. Attempts past
	// the end of the schedule reuse the final delay.
	BackoffDelays []time.Duration
	// RetryableKinds, when set, restricts retries to errors matching one of
	// these sentinel kinds (via errors.Is). Any other error propagates on
	// first occurrence.
	RetryableKinds []error
	// DowngradeOnExhaustion requests a one-step tier downgrade from the
	// selector after the final attempt fails.
	DowngradeOnExhaustion bool
}

// DefaultRetryPolicy provides sensible defaults
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxAttempts:   3,
		BackoffDelays: []time.Duration{1 * time.Second, 2 * time.Second, 5 * time.Second},
	}
}

// ExponentialSchedule builds a backoff schedule growing by factor from
// initial, capped at max. Convenience for callers that prefer exponential
// spacing over an explicit list.
func ExponentialSchedule(initial time.Duration, factor float64, steps int, max time.Duration) []time.Duration {
	delays := make([]time.Duration, 0, steps)
	d := initial
	for i := 0; i < steps; i++ {
		if d > max {
			d = max
		}
		delays = append(delays, d)
		d = time.Duration(float64(d) * factor)
	}
	return delays
}

// Executor re-invokes operations under a RetryPolicy. The zero value is not
// usable; construct with NewExecutor. Executors are stateless apart from
// injected dependencies and safe for concurrent use across documents.
type Executor struct {
	policy   RetryPolicy
	selector *Selector // optional downgrade hook
	logger   core.Logger
	metrics  *Metrics
}

// ExecutorOption configures an Executor
type ExecutorOption func(*Executor)

// WithExecutorLogger sets the logger
func WithExecutorLogger(l core.Logger) ExecutorOption {
	return func(e *Executor) { e.logger = l }
}

// WithDowngradeSelector sets the selector used for downgrade requests
func WithDowngradeSelector(s *Selector) ExecutorOption {
	return func(e *Executor) { e.selector = s }
}

// WithExecutorMetrics sets the metrics sink
func WithExecutorMetrics(m *Metrics) ExecutorOption {
	return func(e *Executor) { e.metrics = m }
}

// NewExecutor creates a retry executor with the given policy.
func NewExecutor(policy RetryPolicy, opts ...ExecutorOption) *Executor {
	e := &Executor{
		policy: policy,
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op with bounded retries. On success it returns nil
// immediately. Non-retryable errors propagate without further attempts.
// When attempts are exhausted the last error is returned unchanged; a
// downgrade request, if configured, is best-effort and never masks it.
// The backoff sleep is context-aware and suspends only this document's
// pipeline, never other in-flight documents.
func (e *Executor) Execute(ctx context.Context, name string, op func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 1; attempt <= e.policy.MaxAttempts; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := op(ctx)
		if err == nil {
			if attempt > 1 {
				e.logger.Info("Operation succeeded after retry", map[string]interface{}{
					"operation": name,
					"attempt":   attempt,
				})
			}
			return nil
		}
		lastErr = err

		if !e.retryable(err) {
			e.logger.Warn("Non-retryable error, propagating", map[string]interface{}{
				"operation": name,
				"error":     err.Error(),
			})
			return err
		}

		if e.metrics != nil {
			e.metrics.RecordRetry(name, attempt)
		}

		if attempt == e.policy.MaxAttempts {
			break
		}

		delay := e.delayFor(attempt)
		e.logger.Warn("Operation failed, retrying", map[string]interface{}{
			"operation":    name,
			"attempt":      attempt,
			"max_attempts": e.policy.MaxAttempts,
			"delay":        delay.String(),
			"error":        err.Error(),
		})

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	e.logger.Error("Operation failed after all attempts", map[string]interface{}{
		"operation":    name,
		"max_attempts": e.policy.MaxAttempts,
		"error":        lastErr.Error(),
	})

	if e.policy.DowngradeOnExhaustion && e.selector != nil {
		// Best-effort: the downgrade outcome never replaces the
		// operation's own error.
		e.selector.RequestDowngrade()
	}

	return lastErr
}

// retryable applies the policy's error-kind filter.
func (e *Executor) retryable(err error) bool {
	if len(e.policy.RetryableKinds) == 0 {
		return true
	}
	for _, kind := range e.policy.RetryableKinds {
		if errors.Is(err, kind) {
			return true
		}
	}
	return false
}

// delayFor returns the backoff delay after the given attempt, clamping to
// the final schedule entry.
func (e *Executor) delayFor(attempt int) time.Duration {
	if len(e.policy.BackoffDelays) == 0 {
		return 0
	}
	idx := attempt - 1
	if idx >= len(e.policy.BackoffDelays) {
		idx = len(e.policy.BackoffDelays) - 1
	}
	return e.policy.BackoffDelays[idx]
}

// ExecuteWithBreaker combines retry with a circuit breaker: each attempt is
// admitted through the breaker first, and outcomes feed its window.
func (e *Executor) ExecuteWithBreaker(ctx context.Context, name string, cb *CircuitBreaker, op func(ctx context.Context) error) error {
	return e.Execute(ctx, name, func(ctx context.Context) error {
		if !cb.CanExecute() {
			return core.ErrCircuitBreakerOpen
		}
		if err := op(ctx); err != nil {
			cb.RecordFailure()
			return err
		}
		cb.RecordSuccess()
		return nil
	})
}
