package resilience

import (
	"sync"

	"github.com/paperspine/paperspine/core"
)

// memoryTolerance is the slack applied to the free-memory requirement check,
// roughly 50 MB on a typical host, so a tier is not rejected over rounding.
const memoryTolerance = 0.005

// SelectorConfig configures tier selection thresholds.
type SelectorConfig struct {
	// TargetTier is the configured processing target.
	TargetTier Tier
	// CriticalMemoryFraction forces the lowest tier when free memory drops
	// below it.
	CriticalMemoryFraction float64
	// MinAcceleratorFreeGB is the accelerator headroom an
	// accelerator-dependent tier needs.
	MinAcceleratorFreeGB float64
}

// DefaultSelectorConfig provides sensible defaults
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		TargetTier:             TierHybrid,
		CriticalMemoryFraction: 0.10,
		MinAcceleratorFreeGB:   2.0,
	}
}

// Selector maps health snapshots to capability tiers. Instances are
// explicitly constructed and injected; there is no process-wide singleton,
// so concurrent documents and tests run with independent selectors.
type Selector struct {
	config  SelectorConfig
	health  HealthSource
	reclaim MemoryReclaimer
	logger  core.Logger
	metrics *Metrics

	mu sync.Mutex
	// last holds the most recently selected tier. Observability only:
	// it never feeds back into selection.
	last    Tier
	lastSet bool
}

// SelectorOption configures a Selector
type SelectorOption func(*Selector)

// WithSelectorLogger sets the logger
func WithSelectorLogger(l core.Logger) SelectorOption {
	return func(s *Selector) { s.logger = l }
}

// WithMemoryReclaimer sets the memory reclamation hook
func WithMemoryReclaimer(r MemoryReclaimer) SelectorOption {
	return func(s *Selector) { s.reclaim = r }
}

// WithSelectorMetrics sets the metrics sink
func WithSelectorMetrics(m *Metrics) SelectorOption {
	return func(s *Selector) { s.metrics = m }
}

// NewSelector creates a tier selector reading from the given health source.
func NewSelector(config SelectorConfig, health HealthSource, opts ...SelectorOption) *Selector {
	s := &Selector{
		config:  config,
		health:  health,
		reclaim: DefaultMemoryReclaimer,
		logger:  &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// SelectTier picks the best usable tier for the current health snapshot,
// starting from the configured target. Selection is deterministic in the
// snapshot; the cached last-selected tier is updated but never consulted.
func (s *Selector) SelectTier() Tier {
	snap := s.health.Snapshot()
	tier := s.selectFromSnapshot(snap, s.config.TargetTier)

	s.mu.Lock()
	s.last = tier
	s.lastSet = true
	s.mu.Unlock()

	s.logger.Info("Selected capability tier", map[string]interface{}{
		"operation":   "tier_select",
		"tier":        tier.String(),
		"target":      s.config.TargetTier.String(),
		"free_memory": snap.FreeMemoryFraction,
		"accelerator": snap.AcceleratorAvailable,
	})
	return tier
}

func (s *Selector) selectFromSnapshot(snap HealthSnapshot, target Tier) Tier {
	// Index-dependent tiers cannot be used while the index service is
	// critical, and safe mode is the only tier that does not need it.
	if snap.HasCriticalAlert(AlertIndex) {
		s.logger.Warn("Index service critical, forcing safe mode", map[string]interface{}{
			"operation": "tier_select",
		})
		return LowestTier
	}

	// Memory pressure forces safe mode and triggers best-effort reclamation.
	if snap.HasCriticalAlert(AlertMemory) || snap.FreeMemoryFraction < s.config.CriticalMemoryFraction {
		s.logger.Warn("Memory critical, forcing safe mode and reclaiming", map[string]interface{}{
			"operation":   "tier_select",
			"free_memory": snap.FreeMemoryFraction,
		})
		if s.reclaim != nil {
			s.reclaim()
		}
		return LowestTier
	}

	tier := target
	req := Requirement(tier)

	// Accelerator checks apply to tiers that want one: step down exactly
	// one tier when the accelerator is missing or starved.
	wantsAccelerator := req.NeedsAccelerator || tier == TierHybrid
	if wantsAccelerator {
		switch {
		case req.NeedsAccelerator && !snap.AcceleratorAvailable:
			s.logger.Info("No accelerator available, stepping down", map[string]interface{}{
				"operation": "tier_select",
				"from":      tier.String(),
			})
			tier = Downgrade(tier)
		case snap.AcceleratorAvailable && snap.AcceleratorFreeGB < s.config.MinAcceleratorFreeGB:
			s.logger.Warn("Accelerator capacity low, stepping down", map[string]interface{}{
				"operation": "tier_select",
				"free_gb":   snap.AcceleratorFreeGB,
				"from":      tier.String(),
			})
			tier = Downgrade(tier)
		}
	}

	if s.CanUseTier(tier, snap) {
		return tier
	}

	// The stepped-down tier is still unusable: take the highest tier that
	// passes, scanning from most to least capable.
	for _, candidate := range AllTiers {
		if s.CanUseTier(candidate, snap) {
			return candidate
		}
	}
	return LowestTier
}

// CanUseTier checks a tier's requirements against the snapshot. Callers
// re-check this opportunistically during a run since snapshots go stale.
func (s *Selector) CanUseTier(tier Tier, snap HealthSnapshot) bool {
	req := Requirement(tier)

	if snap.FreeMemoryFraction < req.MinFreeMemoryFraction-memoryTolerance {
		return false
	}
	if req.NeedsAccelerator && !snap.AcceleratorAvailable {
		return false
	}
	if req.NeedsIndexService && snap.HasCriticalAlert(AlertIndex) {
		return false
	}
	if req.NeedsNetwork && snap.HasCriticalAlert(AlertNetwork) {
		return false
	}
	return true
}

// StillUsable re-checks a previously selected tier against a fresh health
// snapshot. Selections go stale mid-run; callers poll this between units of
// work instead of trusting one selection for a whole document.
func (s *Selector) StillUsable(tier Tier) bool {
	return s.CanUseTier(tier, s.health.Snapshot())
}

// Downgrade steps the given tier down one rank. Pure passthrough to the
// package-level function, kept on the selector so callers hold one handle.
func (s *Selector) Downgrade(t Tier) Tier {
	return Downgrade(t)
}

// RequestDowngrade steps the cached current tier down one rank and records
// the transition. Used by the retry executor after exhausting attempts; the
// actual tier change is picked up by the caller on its next SelectTier or
// LastSelected read.
func (s *Selector) RequestDowngrade() Tier {
	s.mu.Lock()
	defer s.mu.Unlock()

	from := s.config.TargetTier
	if s.lastSet {
		from = s.last
	}
	to := Downgrade(from)
	s.last = to
	s.lastSet = true

	s.logger.Warn("Tier downgrade requested", map[string]interface{}{
		"operation": "tier_downgrade",
		"from":      from.String(),
		"to":        to.String(),
	})
	if s.metrics != nil {
		s.metrics.RecordDowngrade(from.String(), to.String())
	}
	return to
}

// LastSelected returns the most recently selected tier and whether any
// selection has happened yet. Observability only.
func (s *Selector) LastSelected() (Tier, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last, s.lastSet
}
