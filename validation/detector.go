package validation

import (
	"github.com/paperspine/paperspine/core"
)

// TextObservation is the text-path raw value for one region, as produced by
// the recognition engine.
type TextObservation struct {
	Value      string
	Confidence float64
}

// VisionObservation is the vision-path raw value for one region. Confidence
// may be zero when the vision collaborator does not report one; the detector
// substitutes its configured assumed confidence.
type VisionObservation struct {
	Value      string
	Confidence float64
}

// Detector compares the two extraction paths region by region and emits a
// Conflict wherever their normalized values diverge beyond the threshold.
type Detector struct {
	config core.DetectorConfig
	logger core.Logger
}

// DetectorOption configures a Detector
type DetectorOption func(*Detector)

// WithDetectorLogger sets the logger
func WithDetectorLogger(l core.Logger) DetectorOption {
	return func(d *Detector) { d.logger = l }
}

// NewDetector creates a conflict detector.
func NewDetector(config core.DetectorConfig, opts ...DetectorOption) *Detector {
	d := &Detector{
		config: config,
		logger: &core.NoOpLogger{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// Detect compares text and vision observations for each region present in
// both maps. Regions where either side yields no numeric value are skipped:
// absence of a number is not disagreement. Discrepancies strictly above the
// configured threshold become value-mismatch conflicts with their impact
// score computed immediately from the region's kind.
func (d *Detector) Detect(regions []core.Region, text map[string]TextObservation, vision map[string]VisionObservation) []core.Conflict {
	var conflicts []core.Conflict

	for _, region := range regions {
		textObs, ok := text[region.ID]
		if !ok || textObs.Value == "" {
			continue
		}
		visionObs, ok := vision[region.ID]
		if !ok || visionObs.Value == "" {
			continue
		}

		textValue, ok := ExtractNumeric(textObs.Value)
		if !ok {
			continue
		}
		visionValue, ok := ExtractNumeric(visionObs.Value)
		if !ok {
			continue
		}

		discrepancy := Discrepancy(textValue, visionValue)
		if discrepancy <= d.config.Threshold {
			d.logger.Debug("Values agree within threshold", map[string]interface{}{
				"region_id":   region.ID,
				"text":        textValue,
				"vision":      visionValue,
				"discrepancy": discrepancy,
			})
			continue
		}

		visionConfidence := visionObs.Confidence
		if visionConfidence <= 0 {
			visionConfidence = d.config.AssumedVisionConfidence
		}

		conflict := core.NewConflict(region.ID, core.ConflictValueMismatch)
		conflict.TextValue = textValue
		conflict.VisionValue = visionValue
		conflict.TextRaw = textObs.Value
		conflict.VisionRaw = visionObs.Value
		conflict.DiscrepancyRatio = discrepancy
		conflict.Confidence = core.ConfidencePair{
			Text:   textObs.Confidence,
			Vision: visionConfidence,
		}
		conflict.UpdateImpactScore(region.Kind)

		conflicts = append(conflicts, conflict)
		d.logger.Warn("Conflict detected", map[string]interface{}{
			"operation":   "conflict_detect",
			"region_id":   region.ID,
			"region_kind": string(region.Kind),
			"text":        textValue,
			"vision":      visionValue,
			"discrepancy": discrepancy,
			"impact":      conflict.ImpactScore,
		})
	}

	d.logger.Info("Validation complete", map[string]interface{}{
		"operation": "conflict_detect",
		"regions":   len(regions),
		"conflicts": len(conflicts),
	})
	return conflicts
}
