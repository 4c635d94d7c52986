// Package resolution decides what happens to detected conflicts: an ordered
// set of deterministic heuristics auto-resolves the clear cases and
// escalates the rest to manual review, and a manual-resolution service lets
// a reviewer settle the escalated ones with a full audit trail.
package resolution

import (
	"fmt"

	"github.com/paperspine/paperspine/core"
)

// Strategy identifiers recorded in resolution notes for audit.
const (
	StrategyConfidenceDominance = "confidence_dominance"
	StrategyRegionBiasTable     = "region_bias_table"
	StrategyRegionBiasChart     = "region_bias_chart"
	StrategyManualReview        = "manual_review_required"
)

// Resolver applies the ordered resolution heuristics. First matching rule
// wins:
//
//  1. Confidence dominance - one side very confident, the other not.
//  2. Massive discrepancy - escalate regardless of confidence. Checked
//     before region bias so wildly divergent values are never silently
//     auto-merged just because both sides look confident.
//  3. Region-kind bias - both sides reasonably confident: text wins tables,
//     vision wins charts.
//  4. Default - escalate to manual review.
type Resolver struct {
	config core.ResolverConfig
	logger core.Logger
}

// ResolverOption configures a Resolver
type ResolverOption func(*Resolver)

// WithResolverLogger sets the logger
func WithResolverLogger(l core.Logger) ResolverOption {
	return func(r *Resolver) { r.logger = l }
}

// NewResolver creates a conflict resolver.
func NewResolver(config core.ResolverConfig, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		config: config,
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve decides one conflict given its region kind. Escalations use
// method Manual with no chosen value; every other branch is Auto.
//
// The massive-discrepancy comparison is inclusive (>=): a ratio exactly at
// the threshold escalates. The original engine used a strict comparison,
// which made its own boundary scenario fall through to region bias; the
// inclusive form keeps the documented behavior at the boundary.
func (r *Resolver) Resolve(conflict core.Conflict, kind core.RegionKind) core.ConflictResolution {
	textConf := conflict.Confidence.Text
	visionConf := conflict.Confidence.Vision

	// Rule 1: confidence dominance.
	if textConf > r.config.HighConfidence && visionConf < r.config.LowConfidence {
		return r.auto(conflict, conflict.TextValue, StrategyConfidenceDominance, textConf,
			"high text confidence outweighs uncertain vision")
	}
	if visionConf > r.config.HighConfidence && textConf < r.config.LowConfidence {
		return r.auto(conflict, conflict.VisionValue, StrategyConfidenceDominance, visionConf,
			"high vision confidence outweighs uncertain text")
	}

	// Rule 2: massive discrepancy escalates before region bias can apply.
	if conflict.DiscrepancyRatio >= r.config.MassiveDiscrepancy {
		return r.escalate(conflict, fmt.Sprintf(
			"massive discrepancy (%.0f%%) requires human review", conflict.DiscrepancyRatio*100))
	}

	// Rule 3: region-kind bias when both sides are reasonably confident.
	if textConf > r.config.ReasonableConfidence && visionConf > r.config.ReasonableConfidence {
		switch kind {
		case core.RegionTable:
			return r.auto(conflict, conflict.TextValue, StrategyRegionBiasTable, textConf,
				"table region: text extraction preferred for dense numeric text")
		case core.RegionChart:
			return r.auto(conflict, conflict.VisionValue, StrategyRegionBiasChart, visionConf,
				"chart region: vision preferred for visual magnitude reading")
		}
	}

	// Rule 4: default to manual review, distinguishing the two paths for
	// audit clarity.
	reason := "ambiguous case - no resolution rule applies"
	if textConf < r.config.ReasonableConfidence && visionConf < r.config.ReasonableConfidence {
		reason = "both confidence scores too low for auto-resolution"
	}
	return r.escalate(conflict, reason)
}

// ResolveAll runs the heuristics over every pending conflict in a document
// state, looking up each conflict's region kind from the document structure.
// A region missing from the structure resolves as kind unknown and falls
// through to manual review.
func (r *Resolver) ResolveAll(state *core.DocumentState) []core.ConflictResolution {
	pending := state.PendingConflicts()
	if len(pending) == 0 {
		return nil
	}

	resolutions := make([]core.ConflictResolution, 0, len(pending))
	auto := 0
	for _, conflict := range pending {
		res := r.Resolve(conflict, state.RegionKind(conflict.RegionID))
		resolutions = append(resolutions, res)
		if res.Method == core.MethodAuto {
			auto++
		}
		r.logger.Info("Conflict decided", map[string]interface{}{
			"operation":   "conflict_resolve",
			"conflict_id": conflict.ID,
			"method":      string(res.Method),
			"confidence":  res.Confidence,
			"notes":       res.Notes,
		})
	}

	r.logger.Info("Auto-resolution pass complete", map[string]interface{}{
		"operation": "conflict_resolve",
		"total":     len(pending),
		"auto":      auto,
		"escalated": len(pending) - auto,
	})
	return resolutions
}

func (r *Resolver) auto(conflict core.Conflict, value float64, strategy string, confidence float64, reason string) core.ConflictResolution {
	chosen := value
	return core.ConflictResolution{
		ConflictID:  conflict.ID,
		ChosenValue: &chosen,
		Method:      core.MethodAuto,
		Confidence:  confidence,
		Notes:       fmt.Sprintf("%s: %s", strategy, reason),
		Timestamp:   nowUTC(),
	}
}

func (r *Resolver) escalate(conflict core.Conflict, reason string) core.ConflictResolution {
	return core.ConflictResolution{
		ConflictID:  conflict.ID,
		ChosenValue: nil,
		Method:      core.MethodManual,
		Confidence:  0,
		Notes:       fmt.Sprintf("%s: %s", StrategyManualReview, reason),
		Timestamp:   nowUTC(),
	}
}
