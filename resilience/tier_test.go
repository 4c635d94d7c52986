package resilience

import (
	"errors"
	"testing"

	"github.com/paperspine/paperspine/core"
)

func TestDowngradeOrder(t *testing.T) {
	tests := []struct {
		from Tier
		want Tier
	}{
		{TierHybrid, TierAcceleratedLocal},
		{TierAcceleratedLocal, TierCPUOnlyLocal},
		{TierCPUOnlyLocal, TierTextOnlySafe},
		{TierTextOnlySafe, TierTextOnlySafe},
	}

	for _, tt := range tests {
		if got := Downgrade(tt.from); got != tt.want {
			t.Errorf("Downgrade(%s) = %s, want %s", tt.from, got, tt.want)
		}
	}
}

func TestDowngradeReachesFixedPoint(t *testing.T) {
	// From any tier, repeated downgrades must bottom out at safe mode in
	// at most len(AllTiers)-1 steps and stay there.
	for _, start := range AllTiers {
		tier := start
		for i := 0; i < len(AllTiers)-1; i++ {
			tier = Downgrade(tier)
		}
		if tier != LowestTier {
			t.Errorf("starting from %s, expected %s after %d downgrades, got %s",
				start, LowestTier, len(AllTiers)-1, tier)
		}
		if Downgrade(tier) != LowestTier {
			t.Errorf("downgrade from the lowest tier must be idempotent")
		}
	}
}

func TestTierBelow(t *testing.T) {
	if !TierTextOnlySafe.Below(TierHybrid) {
		t.Error("safe mode should rank below hybrid")
	}
	if TierHybrid.Below(TierCPUOnlyLocal) {
		t.Error("hybrid should not rank below cpu_only")
	}
	if TierHybrid.Below(TierHybrid) {
		t.Error("a tier is not below itself")
	}
}

func TestParseTier(t *testing.T) {
	tests := []struct {
		label string
		want  Tier
	}{
		{"hybrid", TierHybrid},
		{"accelerated", TierAcceleratedLocal},
		{"local_gpu", TierAcceleratedLocal},
		{"cpu_only", TierCPUOnlyLocal},
		{"local_cpu", TierCPUOnlyLocal},
		{"text_only", TierTextOnlySafe},
		{"safe", TierTextOnlySafe},
	}
	for _, tt := range tests {
		got, err := ParseTier(tt.label)
		if err != nil {
			t.Errorf("ParseTier(%q) failed: %v", tt.label, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTier(%q) = %s, want %s", tt.label, got, tt.want)
		}
	}

	if _, err := ParseTier("turbo"); !errors.Is(err, core.ErrInvalidConfiguration) {
		t.Errorf("expected ErrInvalidConfiguration for unknown label, got %v", err)
	}
}

func TestRequirementUnknownTierFallsBack(t *testing.T) {
	req := Requirement(Tier(99))
	if req != Requirement(LowestTier) {
		t.Error("unknown tier should use the safe-mode requirements")
	}
}
