package workflow

import (
	"errors"
	"testing"

	"github.com/paperspine/paperspine/core"
)

func stateWithImpacts(impacts ...float64) *core.DocumentState {
	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")
	for _, impact := range impacts {
		c := core.NewConflict("r1", core.ConflictValueMismatch)
		c.ImpactScore = impact
		state.Conflicts = append(state.Conflicts, c)
	}
	return state
}

func TestRouteAfterValidation(t *testing.T) {
	tests := []struct {
		name    string
		impacts []float64
		want    Decision
	}{
		{"no conflicts", nil, DecisionComplete},
		{"all low impact", []float64{0.1, 0.3, 0.5}, DecisionAutoResolve},
		{"one high impact", []float64{0.1, 0.8, 0.2}, DecisionHumanReview},
		{"exactly at threshold", []float64{0.7}, DecisionHumanReview},
		{"just below threshold", []float64{0.69}, DecisionAutoResolve},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := RouteAfterValidation(stateWithImpacts(tt.impacts...)); got != tt.want {
				t.Errorf("RouteAfterValidation = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestTransitionLegalPath(t *testing.T) {
	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")

	path := []core.Stage{
		core.StageLayoutDone,
		core.StageExtractionDone,
		core.StageValidated,
		core.StageAutoResolving,
		core.StageComplete,
	}
	for _, next := range path {
		if err := Transition(state, next); err != nil {
			t.Fatalf("transition to %s failed: %v", next, err)
		}
	}
	if state.Stage != core.StageComplete {
		t.Errorf("final stage = %s, want complete", state.Stage)
	}
}

func TestTransitionRejectsIllegalEdge(t *testing.T) {
	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")

	if err := Transition(state, core.StageComplete); err == nil {
		t.Error("ingest cannot jump straight to complete")
	}
	if state.Stage != core.StageIngest {
		t.Errorf("failed transition must not change the stage, got %s", state.Stage)
	}
}

func TestTransitionOutOfTerminalStageFails(t *testing.T) {
	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")
	state.Stage = core.StageComplete

	if err := Transition(state, core.StageIngest); err == nil {
		t.Error("terminal stages have no outgoing edges")
	}
}

func TestFailRecordsErrorAndKeepsProgress(t *testing.T) {
	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")
	state.Regions = []core.Region{{ID: "r1", Kind: core.RegionTable}}
	state.Conflicts = []core.Conflict{core.NewConflict("r1", core.ConflictValueMismatch)}

	Fail(state, core.StageValidated, "transient", errors.New("engine gave up"))

	if state.Stage != core.StageFailed {
		t.Errorf("stage = %s, want failed", state.Stage)
	}
	if len(state.Errors) != 1 {
		t.Fatalf("expected 1 error entry, got %d", len(state.Errors))
	}
	entry := state.Errors[0]
	if entry.Stage != string(core.StageValidated) || entry.Kind != "transient" {
		t.Errorf("unexpected error entry: %+v", entry)
	}
	if len(state.Regions) != 1 || len(state.Conflicts) != 1 {
		t.Error("failing must not discard accumulated results")
	}
}
