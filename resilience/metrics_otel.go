package resilience

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metrics records resilience events (retries, tier downgrades, circuit
// breaker activity) through the OpenTelemetry metric API. A nil *Metrics is
// safe to leave on any config: every record site checks for nil.
type Metrics struct {
	retries      metric.Int64Counter
	downgrades   metric.Int64Counter
	breakerCalls metric.Int64Counter
	breakerState metric.Int64Counter
	rejections   metric.Int64Counter
	ctx          context.Context
}

// NewMetrics creates the resilience metric instruments on the global meter
// provider. Instrument creation errors leave the corresponding counter nil,
// which disables that instrument without failing startup.
func NewMetrics(ctx context.Context) *Metrics {
	meter := otel.Meter("paperspine/resilience")

	m := &Metrics{ctx: ctx}
	m.retries, _ = meter.Int64Counter("resilience.retry.attempts",
		metric.WithDescription("Retry attempts per operation"))
	m.downgrades, _ = meter.Int64Counter("resilience.tier.downgrades",
		metric.WithDescription("Capability tier downgrade requests"))
	m.breakerCalls, _ = meter.Int64Counter("resilience.circuit_breaker.calls",
		metric.WithDescription("Circuit breaker call outcomes"))
	m.breakerState, _ = meter.Int64Counter("resilience.circuit_breaker.state_changes",
		metric.WithDescription("Circuit breaker state transitions"))
	m.rejections, _ = meter.Int64Counter("resilience.circuit_breaker.rejections",
		metric.WithDescription("Requests rejected by an open circuit breaker"))
	return m
}

// RecordRetry records one retry attempt for an operation
func (m *Metrics) RecordRetry(op string, attempt int) {
	if m == nil || m.retries == nil {
		return
	}
	m.retries.Add(m.ctx, 1, metric.WithAttributes(
		attribute.String("op", op),
		attribute.Int("attempt", attempt),
	))
}

// RecordDowngrade records a tier downgrade request
func (m *Metrics) RecordDowngrade(from, to string) {
	if m == nil || m.downgrades == nil {
		return
	}
	m.downgrades.Add(m.ctx, 1, metric.WithAttributes(
		attribute.String("from_tier", from),
		attribute.String("to_tier", to),
	))
}

// RecordBreakerSuccess records a successful call through a breaker
func (m *Metrics) RecordBreakerSuccess(name string) {
	if m == nil || m.breakerCalls == nil {
		return
	}
	m.breakerCalls.Add(m.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
		attribute.String("result", "success"),
	))
}

// RecordBreakerFailure records a failed call through a breaker
func (m *Metrics) RecordBreakerFailure(name string) {
	if m == nil || m.breakerCalls == nil {
		return
	}
	m.breakerCalls.Add(m.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
		attribute.String("result", "failure"),
	))
}

// RecordBreakerStateChange records a breaker state transition
func (m *Metrics) RecordBreakerStateChange(name, from, to string) {
	if m == nil || m.breakerState == nil {
		return
	}
	m.breakerState.Add(m.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
		attribute.String("from_state", from),
		attribute.String("to_state", to),
	))
}

// RecordRejection records a request rejected by an open breaker
func (m *Metrics) RecordRejection(name string) {
	if m == nil || m.rejections == nil {
		return
	}
	m.rejections.Add(m.ctx, 1, metric.WithAttributes(
		attribute.String("circuit_breaker", name),
	))
}
