package resolution

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/paperspine/paperspine/core"
)

func defaultResolver() *Resolver {
	return NewResolver(core.ResolverConfig{
		HighConfidence:       0.90,
		LowConfidence:        0.60,
		ReasonableConfidence: 0.80,
		MassiveDiscrepancy:   0.50,
	})
}

func makeConflict(textVal, visionVal, discrepancy, textConf, visionConf float64) core.Conflict {
	c := core.NewConflict("r1", core.ConflictValueMismatch)
	c.TextValue = textVal
	c.VisionValue = visionVal
	c.DiscrepancyRatio = discrepancy
	c.Confidence = core.ConfidencePair{Text: textConf, Vision: visionConf}
	return c
}

func TestResolveTextConfidenceDominance(t *testing.T) {
	r := defaultResolver()
	c := makeConflict(1000, 200, 0.8, 0.98, 0.40)

	res := r.Resolve(c, core.RegionTable)

	assert.Equal(t, core.MethodAuto, res.Method)
	require.NotNil(t, res.ChosenValue)
	assert.Equal(t, 1000.0, *res.ChosenValue)
	assert.Equal(t, 0.98, res.Confidence)
	assert.Contains(t, res.Notes, StrategyConfidenceDominance)
}

func TestResolveVisionConfidenceDominance(t *testing.T) {
	r := defaultResolver()
	c := makeConflict(1000, 200, 0.8, 0.40, 0.95)

	res := r.Resolve(c, core.RegionChart)

	assert.Equal(t, core.MethodAuto, res.Method)
	require.NotNil(t, res.ChosenValue)
	assert.Equal(t, 200.0, *res.ChosenValue)
}

func TestResolveMassiveDiscrepancyEscalates(t *testing.T) {
	r := defaultResolver()
	// Both sides extremely confident on a table region: without the
	// discrepancy guard, region bias would pick the text value.
	c := makeConflict(100, 200, 0.5, 0.95, 0.95)

	res := r.Resolve(c, core.RegionTable)

	assert.Equal(t, core.MethodManual, res.Method)
	assert.Nil(t, res.ChosenValue)
	assert.Contains(t, res.Notes, "discrepancy")
}

func TestResolveMassiveDiscrepancyBoundaryIsInclusive(t *testing.T) {
	r := defaultResolver()

	// Exactly at the threshold escalates.
	atBoundary := makeConflict(100, 200, 0.50, 0.95, 0.95)
	res := r.Resolve(atBoundary, core.RegionTable)
	assert.Equal(t, core.MethodManual, res.Method)

	// Just below it falls through to region bias.
	below := makeConflict(100, 190, 0.47, 0.95, 0.95)
	res = r.Resolve(below, core.RegionTable)
	assert.Equal(t, core.MethodAuto, res.Method)
}

func TestResolveTableBiasPrefersText(t *testing.T) {
	r := defaultResolver()
	c := makeConflict(100, 130, 0.23, 0.85, 0.85)

	res := r.Resolve(c, core.RegionTable)

	assert.Equal(t, core.MethodAuto, res.Method)
	require.NotNil(t, res.ChosenValue)
	assert.Equal(t, 100.0, *res.ChosenValue)
	assert.Contains(t, res.Notes, StrategyRegionBiasTable)
}

func TestResolveChartBiasPrefersVision(t *testing.T) {
	r := defaultResolver()
	c := makeConflict(100, 130, 0.23, 0.85, 0.85)

	res := r.Resolve(c, core.RegionChart)

	assert.Equal(t, core.MethodAuto, res.Method)
	require.NotNil(t, res.ChosenValue)
	assert.Equal(t, 130.0, *res.ChosenValue)
	assert.Contains(t, res.Notes, StrategyRegionBiasChart)
}

func TestResolveTextRegionHasNoBias(t *testing.T) {
	r := defaultResolver()
	c := makeConflict(100, 130, 0.23, 0.85, 0.85)

	res := r.Resolve(c, core.RegionText)

	assert.Equal(t, core.MethodManual, res.Method)
	assert.Nil(t, res.ChosenValue)
}

func TestResolveBothLowConfidenceReason(t *testing.T) {
	r := defaultResolver()
	c := makeConflict(100, 130, 0.23, 0.50, 0.45)

	res := r.Resolve(c, core.RegionTable)

	assert.Equal(t, core.MethodManual, res.Method)
	assert.Contains(t, res.Notes, "too low")
}

func TestResolveAmbiguousReason(t *testing.T) {
	r := defaultResolver()
	// One side reasonable, the other not: neither dominance nor bias.
	c := makeConflict(100, 130, 0.23, 0.85, 0.70)

	res := r.Resolve(c, core.RegionTable)

	assert.Equal(t, core.MethodManual, res.Method)
	assert.Contains(t, res.Notes, "ambiguous")
}

func TestResolveAllLooksUpRegionKind(t *testing.T) {
	r := defaultResolver()
	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")
	state.Regions = []core.Region{{ID: "r-table", Kind: core.RegionTable}}

	known := makeConflict(100, 130, 0.23, 0.85, 0.85)
	known.RegionID = "r-table"
	orphan := makeConflict(100, 130, 0.23, 0.85, 0.85)
	orphan.RegionID = "r-missing"
	state.Conflicts = []core.Conflict{known, orphan}

	resolutions := r.ResolveAll(state)
	require.Len(t, resolutions, 2)

	// The table conflict auto-resolves by bias; the orphan region resolves
	// as unknown kind and escalates.
	assert.Equal(t, core.MethodAuto, resolutions[0].Method)
	assert.Equal(t, core.MethodManual, resolutions[1].Method)
}

func TestResolveAllSkipsSettledConflicts(t *testing.T) {
	r := defaultResolver()
	state := core.NewDocumentState("doc-1", "/tmp/doc.pdf")

	settled := makeConflict(100, 130, 0.23, 0.85, 0.85)
	settled.Status = core.ResolutionResolved
	state.Conflicts = []core.Conflict{settled}

	assert.Empty(t, r.ResolveAll(state))
}
