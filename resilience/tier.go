// Package resilience decides how much processing capability the pipeline may
// use and keeps fallible operations bounded: capability tier selection with
// one-step degradation, bounded retry with backoff, and circuit breaking
// around the external inference engines.
package resilience

import (
	"fmt"

	"github.com/paperspine/paperspine/core"
)

// Tier is a ranked processing capability level. Rank 0 is the highest
// capability; comparisons operate on the explicit rank, not declaration
// order. Only monotonic one-step-down transitions are legal, via
// Selector.Downgrade.
type Tier int

const (
	// TierHybrid uses the accelerator plus external APIs (maximum capability).
	TierHybrid Tier = iota
	// TierAcceleratedLocal runs fully local with accelerator support.
	TierAcceleratedLocal
	// TierCPUOnlyLocal runs on CPU only (slower but stable).
	TierCPUOnlyLocal
	// TierTextOnlySafe is safe mode: text extraction only, no index or vision.
	TierTextOnlySafe
)

// LowestTier is the safe-mode fixed point of Downgrade.
const LowestTier = TierTextOnlySafe

// Rank returns the tier's explicit capability rank; lower rank means more
// capability.
func (t Tier) Rank() int { return int(t) }

// Below reports whether t has less capability than other.
func (t Tier) Below(other Tier) bool { return t.Rank() > other.Rank() }

func (t Tier) String() string {
	switch t {
	case TierHybrid:
		return "hybrid"
	case TierAcceleratedLocal:
		return "accelerated"
	case TierCPUOnlyLocal:
		return "cpu_only"
	case TierTextOnlySafe:
		return "text_only"
	default:
		return fmt.Sprintf("tier(%d)", int(t))
	}
}

// ParseTier converts a configuration label into a Tier.
func ParseTier(s string) (Tier, error) {
	switch s {
	case "hybrid":
		return TierHybrid, nil
	case "accelerated", "local_gpu":
		return TierAcceleratedLocal, nil
	case "cpu_only", "local_cpu":
		return TierCPUOnlyLocal, nil
	case "text_only", "safe":
		return TierTextOnlySafe, nil
	default:
		return LowestTier, fmt.Errorf("%w: unknown tier %q", core.ErrInvalidConfiguration, s)
	}
}

// Downgrade returns the next-lower tier. It is a pure function and
// idempotent at the lowest tier.
func Downgrade(t Tier) Tier {
	if t >= LowestTier {
		return LowestTier
	}
	return t + 1
}

// AllTiers lists every tier from highest to lowest capability.
var AllTiers = []Tier{TierHybrid, TierAcceleratedLocal, TierCPUOnlyLocal, TierTextOnlySafe}

// TierRequirement states the resources a tier needs before it may be used.
type TierRequirement struct {
	// MinFreeMemoryFraction is the free system memory fraction required.
	MinFreeMemoryFraction float64
	// NeedsAccelerator requires accelerator presence.
	NeedsAccelerator bool
	// NeedsIndexService requires the persistent index service to be healthy.
	NeedsIndexService bool
	// NeedsNetwork requires network egress for external APIs.
	NeedsNetwork bool
	// Description is a human-readable summary for logs.
	Description string
}

// tierRequirements is the per-tier resource requirement table.
var tierRequirements = map[Tier]TierRequirement{
	TierHybrid: {
		MinFreeMemoryFraction: 0.50,
		NeedsAccelerator:      false, // preferred but optional
		NeedsIndexService:     true,
		NeedsNetwork:          true,
		Description:           "accelerator + external APIs (maximum capability)",
	},
	TierAcceleratedLocal: {
		MinFreeMemoryFraction: 0.35,
		NeedsAccelerator:      true,
		NeedsIndexService:     true,
		NeedsNetwork:          false,
		Description:           "local accelerated processing",
	},
	TierCPUOnlyLocal: {
		MinFreeMemoryFraction: 0.25,
		NeedsAccelerator:      false,
		NeedsIndexService:     true,
		NeedsNetwork:          false,
		Description:           "CPU-only processing (stable fallback)",
	},
	TierTextOnlySafe: {
		MinFreeMemoryFraction: 0.10,
		NeedsAccelerator:      false,
		NeedsIndexService:     false,
		NeedsNetwork:          false,
		Description:           "safe mode - text extraction only",
	},
}

// Requirement returns the resource requirements for a tier.
func Requirement(t Tier) TierRequirement {
	req, ok := tierRequirements[t]
	if !ok {
		return tierRequirements[LowestTier]
	}
	return req
}
