package resilience

import (
	"sync"
	"time"

	"github.com/paperspine/paperspine/core"
)

// CircuitState represents the state of the circuit breaker
type CircuitState int

const (
	// StateClosed allows all requests through
	StateClosed CircuitState = iota
	// StateOpen blocks all requests
	StateOpen
	// StateHalfOpen allows limited requests for testing recovery
	StateHalfOpen
)

// String returns the string representation of the state
func (s CircuitState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig holds configuration for the circuit breaker.
// One breaker guards one inference engine (layout, text, or vision); the
// pipeline wraps engine calls in breaker plus retry.
type CircuitBreakerConfig struct {
	// Name identifies the guarded engine
	Name string
	// FailureThreshold is the number of consecutive failures before opening
	FailureThreshold int
	// RecoveryTimeout is how long to wait before entering half-open
	RecoveryTimeout time.Duration
	// HalfOpenSuccesses is the number of successful probes needed to close
	HalfOpenSuccesses int
	// Logger for state-change events
	Logger core.Logger
	// Metrics sink for monitoring
	Metrics *Metrics
}

// DefaultBreakerConfig returns a production-ready default configuration
func DefaultBreakerConfig(name string) CircuitBreakerConfig {
	return CircuitBreakerConfig{
		Name:              name,
		FailureThreshold:  5,
		RecoveryTimeout:   30 * time.Second,
		HalfOpenSuccesses: 2,
		Logger:            &core.NoOpLogger{},
	}
}

// CircuitBreaker stops hammering a failing engine. Consecutive failures
// open the circuit; after the recovery timeout a limited number of half-open
// probes decide whether it closes again.
type CircuitBreaker struct {
	config CircuitBreakerConfig

	mu                sync.Mutex
	state             CircuitState
	failures          int
	halfOpenSuccesses int
	openedAt          time.Time
	now               func() time.Time // injectable clock for tests
}

// NewCircuitBreaker creates a circuit breaker in the closed state.
func NewCircuitBreaker(config CircuitBreakerConfig) *CircuitBreaker {
	if config.FailureThreshold <= 0 {
		config.FailureThreshold = 5
	}
	if config.RecoveryTimeout <= 0 {
		config.RecoveryTimeout = 30 * time.Second
	}
	if config.HalfOpenSuccesses <= 0 {
		config.HalfOpenSuccesses = 2
	}
	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	return &CircuitBreaker{
		config: config,
		state:  StateClosed,
		now:    time.Now,
	}
}

// CanExecute reports whether a request may proceed, moving the breaker from
// open to half-open once the recovery timeout has elapsed.
func (cb *CircuitBreaker) CanExecute() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed, StateHalfOpen:
		return true
	case StateOpen:
		if cb.now().Sub(cb.openedAt) >= cb.config.RecoveryTimeout {
			cb.transition(StateHalfOpen)
			return true
		}
		if cb.config.Metrics != nil {
			cb.config.Metrics.RecordRejection(cb.config.Name)
		}
		return false
	default:
		return false
	}
}

// RecordSuccess feeds a successful call outcome into the breaker.
func (cb *CircuitBreaker) RecordSuccess() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures = 0
	case StateHalfOpen:
		cb.halfOpenSuccesses++
		if cb.halfOpenSuccesses >= cb.config.HalfOpenSuccesses {
			cb.transition(StateClosed)
		}
	}
	if cb.config.Metrics != nil {
		cb.config.Metrics.RecordBreakerSuccess(cb.config.Name)
	}
}

// RecordFailure feeds a failed call outcome into the breaker.
func (cb *CircuitBreaker) RecordFailure() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	switch cb.state {
	case StateClosed:
		cb.failures++
		if cb.failures >= cb.config.FailureThreshold {
			cb.transition(StateOpen)
		}
	case StateHalfOpen:
		// A failed probe reopens immediately.
		cb.transition(StateOpen)
	}
	if cb.config.Metrics != nil {
		cb.config.Metrics.RecordBreakerFailure(cb.config.Name)
	}
}

// State returns the current breaker state.
func (cb *CircuitBreaker) State() CircuitState {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}

// transition moves the breaker to a new state. Caller holds the lock.
func (cb *CircuitBreaker) transition(to CircuitState) {
	from := cb.state
	if from == to {
		return
	}
	cb.state = to

	switch to {
	case StateOpen:
		cb.openedAt = cb.now()
		cb.halfOpenSuccesses = 0
	case StateClosed:
		cb.failures = 0
		cb.halfOpenSuccesses = 0
	case StateHalfOpen:
		cb.halfOpenSuccesses = 0
	}

	cb.config.Logger.Warn("Circuit breaker state change", map[string]interface{}{
		"operation": "circuit_breaker_transition",
		"name":      cb.config.Name,
		"from":      from.String(),
		"to":        to.String(),
	})
	if cb.config.Metrics != nil {
		cb.config.Metrics.RecordBreakerStateChange(cb.config.Name, from.String(), to.String())
	}
}
