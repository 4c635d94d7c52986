package resilience

import (
	"runtime"
	"runtime/debug"
)

// Alert tags used by the health monitor for subsystem-level critical alerts.
const (
	AlertMemory  = "memory"
	AlertIndex   = "index"
	AlertStorage = "storage"
	AlertNetwork = "network"
)

// HealthSnapshot is a point-in-time view of system resources and service
// health, refreshed by an external monitor on each call. Reads are
// snapshots: a selected tier can go stale and callers re-check CanUseTier
// opportunistically rather than assuming validity for a whole run.
type HealthSnapshot struct {
	// FreeMemoryFraction is available system memory as a fraction of total.
	FreeMemoryFraction float64
	// AcceleratorAvailable reports accelerator presence.
	AcceleratorAvailable bool
	// AcceleratorFreeGB is free accelerator capacity in gigabytes.
	// Meaningful only when AcceleratorAvailable is true.
	AcceleratorFreeGB float64
	// CriticalAlerts holds the active critical-alert tags keyed by
	// subsystem (see the Alert* constants).
	CriticalAlerts []string
}

// HasCriticalAlert reports whether a critical alert is active for the tag.
func (h HealthSnapshot) HasCriticalAlert(tag string) bool {
	for _, t := range h.CriticalAlerts {
		if t == tag {
			return true
		}
	}
	return false
}

// HealthSource supplies health snapshots. The monitor implementing it is an
// external collaborator; this package only consumes it.
type HealthSource interface {
	Snapshot() HealthSnapshot
}

// HealthSourceFunc adapts a function to the HealthSource interface.
type HealthSourceFunc func() HealthSnapshot

func (f HealthSourceFunc) Snapshot() HealthSnapshot { return f() }

// MemoryReclaimer is a best-effort hook invoked when memory pressure forces
// the selector to the lowest tier.
type MemoryReclaimer func()

// DefaultMemoryReclaimer forces a GC cycle and returns freed pages to the OS.
func DefaultMemoryReclaimer() {
	runtime.GC()
	debug.FreeOSMemory()
}
