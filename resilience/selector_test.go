package resilience

import (
	"testing"
)

func healthySnapshot() HealthSnapshot {
	return HealthSnapshot{
		FreeMemoryFraction:   0.60,
		AcceleratorAvailable: true,
		AcceleratorFreeGB:    8.0,
	}
}

func newTestSelector(snap HealthSnapshot, opts ...SelectorOption) *Selector {
	source := HealthSourceFunc(func() HealthSnapshot { return snap })
	return NewSelector(DefaultSelectorConfig(), source, opts...)
}

func TestSelectTierHealthySystem(t *testing.T) {
	s := newTestSelector(healthySnapshot())
	if got := s.SelectTier(); got != TierHybrid {
		t.Errorf("healthy system selected %s, want hybrid", got)
	}
}

func TestSelectTierIndexAlertForcesSafeMode(t *testing.T) {
	snap := healthySnapshot()
	snap.CriticalAlerts = []string{AlertIndex}

	s := newTestSelector(snap)
	if got := s.SelectTier(); got != TierTextOnlySafe {
		t.Errorf("index alert selected %s, want text_only regardless of target", got)
	}
}

func TestSelectTierMemoryCriticalForcesSafeModeAndReclaims(t *testing.T) {
	snap := healthySnapshot()
	snap.FreeMemoryFraction = 0.05

	reclaimed := false
	s := newTestSelector(snap, WithMemoryReclaimer(func() { reclaimed = true }))

	if got := s.SelectTier(); got != TierTextOnlySafe {
		t.Errorf("memory pressure selected %s, want text_only", got)
	}
	if !reclaimed {
		t.Error("memory pressure should trigger the reclamation hook")
	}
}

func TestSelectTierMemoryAlertForcesSafeMode(t *testing.T) {
	snap := healthySnapshot()
	snap.CriticalAlerts = []string{AlertMemory}

	s := newTestSelector(snap)
	if got := s.SelectTier(); got != TierTextOnlySafe {
		t.Errorf("memory alert selected %s, want text_only", got)
	}
}

func TestSelectTierAcceleratorMissingStepsDownOnce(t *testing.T) {
	snap := healthySnapshot()
	snap.AcceleratorAvailable = false

	source := HealthSourceFunc(func() HealthSnapshot { return snap })
	config := DefaultSelectorConfig()
	config.TargetTier = TierAcceleratedLocal
	s := NewSelector(config, source)

	if got := s.SelectTier(); got != TierCPUOnlyLocal {
		t.Errorf("missing accelerator selected %s, want exactly one step down to cpu_only", got)
	}
}

func TestSelectTierAcceleratorStarvedStepsDownOnce(t *testing.T) {
	snap := healthySnapshot()
	snap.AcceleratorFreeGB = 0.5 // below the 2 GB minimum

	s := newTestSelector(snap)
	if got := s.SelectTier(); got != TierAcceleratedLocal {
		t.Errorf("starved accelerator selected %s, want one step down from hybrid", got)
	}
}

func TestSelectTierSteppedDownTierStillUnusable(t *testing.T) {
	// Accelerator starved steps hybrid down to accelerated, but accelerated
	// needs 35% free memory; with 30% free, the scan lands on cpu_only.
	snap := HealthSnapshot{
		FreeMemoryFraction:   0.30,
		AcceleratorAvailable: true,
		AcceleratorFreeGB:    0.5,
	}
	s := newTestSelector(snap)
	if got := s.SelectTier(); got != TierCPUOnlyLocal {
		t.Errorf("selected %s, want cpu_only from the capability scan", got)
	}
}

func TestCanUseTierMemoryTolerance(t *testing.T) {
	s := newTestSelector(healthySnapshot())

	// Just under the requirement but within tolerance.
	snap := healthySnapshot()
	snap.FreeMemoryFraction = Requirement(TierHybrid).MinFreeMemoryFraction - 0.003
	if !s.CanUseTier(TierHybrid, snap) {
		t.Error("a shortfall within tolerance should not reject the tier")
	}

	snap.FreeMemoryFraction = Requirement(TierHybrid).MinFreeMemoryFraction - 0.05
	if s.CanUseTier(TierHybrid, snap) {
		t.Error("a real shortfall should reject the tier")
	}
}

func TestRequestDowngradeStepsFromLastSelection(t *testing.T) {
	s := newTestSelector(healthySnapshot())

	if got := s.SelectTier(); got != TierHybrid {
		t.Fatalf("setup: expected hybrid, got %s", got)
	}
	if got := s.RequestDowngrade(); got != TierAcceleratedLocal {
		t.Errorf("downgrade from hybrid = %s, want accelerated", got)
	}
	if got := s.RequestDowngrade(); got != TierCPUOnlyLocal {
		t.Errorf("second downgrade = %s, want cpu_only", got)
	}

	last, ok := s.LastSelected()
	if !ok || last != TierCPUOnlyLocal {
		t.Errorf("LastSelected = %s (%v), want cpu_only", last, ok)
	}
}
