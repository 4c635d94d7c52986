// Package workflow drives a document run through its stages: engine calls
// under retry and breaker protection, validation, routing by conflict
// impact, automatic resolution, and hand-off to human review. It also hosts
// the HTTP review API.
package workflow

import (
	"fmt"

	"github.com/paperspine/paperspine/core"
)

// Decision is the routing outcome after validation.
type Decision string

const (
	// DecisionComplete ends the run with no conflicts to settle.
	DecisionComplete Decision = "complete"
	// DecisionAutoResolve sends conflicts through the heuristic resolver.
	DecisionAutoResolve Decision = "auto_resolve"
	// DecisionHumanReview holds the run for a reviewer.
	DecisionHumanReview Decision = "human_review"
)

// humanReviewImpact is the maximum-impact threshold at or above which a run
// bypasses auto-resolution entirely.
const humanReviewImpact = 0.7

// RouteAfterValidation picks the post-validation path from the document's
// detected conflicts. Any single conflict at or above the impact threshold
// routes the whole run to human review; auto-resolution is all-or-nothing
// per run so a reviewer always sees the complete conflict picture.
func RouteAfterValidation(state *core.DocumentState) Decision {
	if len(state.Conflicts) == 0 {
		return DecisionComplete
	}

	maxImpact := 0.0
	for _, c := range state.Conflicts {
		if c.ImpactScore > maxImpact {
			maxImpact = c.ImpactScore
		}
	}
	if maxImpact >= humanReviewImpact {
		return DecisionHumanReview
	}
	return DecisionAutoResolve
}

// validTransitions is the stage machine. A run may only move along these
// edges; anything else is a programming error surfaced loudly.
var validTransitions = map[core.Stage][]core.Stage{
	core.StageIngest:         {core.StageLayoutDone, core.StageFailed},
	core.StageLayoutDone:     {core.StageExtractionDone, core.StageFailed},
	core.StageExtractionDone: {core.StageValidated, core.StageFailed},
	core.StageValidated:      {core.StageComplete, core.StageAutoResolving, core.StageHumanReview, core.StageFailed},
	core.StageAutoResolving:  {core.StageComplete, core.StageHumanReview, core.StageFailed},
	core.StageHumanReview:    {core.StageComplete, core.StageFailed},
}

// Transition moves the run to the next stage after checking the edge is
// legal.
func Transition(state *core.DocumentState, to core.Stage) error {
	for _, allowed := range validTransitions[state.Stage] {
		if allowed == to {
			state.Stage = to
			return nil
		}
	}
	return fmt.Errorf("illegal stage transition %s -> %s for document %s", state.Stage, to, state.DocID)
}

// Fail records the error and moves the run to the failed stage directly.
// Accumulated regions, conflicts, and resolutions are kept so partial
// progress stays inspectable.
func Fail(state *core.DocumentState, stage core.Stage, kind string, err error) {
	state.RecordError(string(stage), kind, err.Error())
	state.Stage = core.StageFailed
}
