package core

import (
	"time"

	"github.com/google/uuid"
)

// RegionKind classifies a detected layout region.
type RegionKind string

const (
	RegionText    RegionKind = "text"
	RegionTable   RegionKind = "table"
	RegionImage   RegionKind = "image"
	RegionChart   RegionKind = "chart"
	RegionUnknown RegionKind = "unknown"
)

// Region is one layout-detected area of a document page. The extraction
// engines attach their outputs to regions by ID.
type Region struct {
	ID         string     `json:"id"`
	Page       int        `json:"page"`
	Kind       RegionKind `json:"kind"`
	Text       string     `json:"text,omitempty"`
	Confidence float64    `json:"confidence"`
}

// NewRegionID generates a unique region identifier
func NewRegionID() string {
	return uuid.New().String()
}

// ConflictKind categorizes a detected disagreement between extraction methods.
type ConflictKind string

const (
	ConflictValueMismatch      ConflictKind = "value_mismatch"
	ConflictLowConfidence      ConflictKind = "confidence_low"
	ConflictMethodDisagreement ConflictKind = "method_disagreement"
)

// ResolutionStatus tracks where a conflict is in its lifecycle.
type ResolutionStatus string

const (
	ResolutionPending  ResolutionStatus = "pending"
	ResolutionResolved ResolutionStatus = "resolved"
	ResolutionFlagged  ResolutionStatus = "flagged"
)

// ResolutionMethod records how a conflict was resolved.
type ResolutionMethod string

const (
	MethodAuto         ResolutionMethod = "auto"
	MethodManual       ResolutionMethod = "manual"
	MethodUserOverride ResolutionMethod = "user_override"
)

// ConfidencePair holds the per-method confidence scores for a conflict.
type ConfidencePair struct {
	Text   float64 `json:"text"`
	Vision float64 `json:"vision"`
}

// Conflict represents a detected disagreement between the text and vision
// extraction paths for a single region. Conflicts are created by the
// detector, mutated by the resolver or manual review, and never deleted -
// they are retained for audit.
type Conflict struct {
	ID               string           `json:"id"`
	RegionID         string           `json:"region_id"`
	Kind             ConflictKind     `json:"conflict_type"`
	TextValue        float64          `json:"text_value"`
	VisionValue      float64          `json:"vision_value"`
	TextRaw          string           `json:"text_raw,omitempty"`
	VisionRaw        string           `json:"vision_raw,omitempty"`
	DiscrepancyRatio float64          `json:"discrepancy_ratio"`
	Confidence       ConfidencePair   `json:"confidence_scores"`
	Status           ResolutionStatus `json:"resolution_status"`
	Method           ResolutionMethod `json:"resolution_method,omitempty"`
	ImpactScore      float64          `json:"impact_score"`
	CreatedAt        time.Time        `json:"created_at"`
}

// NewConflict creates a pending conflict with a fresh identifier.
func NewConflict(regionID string, kind ConflictKind) Conflict {
	return Conflict{
		ID:        uuid.New().String(),
		RegionID:  regionID,
		Kind:      kind,
		Status:    ResolutionPending,
		CreatedAt: time.Now().UTC(),
	}
}

// confidenceBoostFloor is the mutual-confidence level above which a
// disagreement is considered high-signal and its impact boosted.
const confidenceBoostFloor = 0.7

// UpdateImpactScore computes and stores the conflict's impact score for the
// given region kind. Table regions weigh double because dense numeric text
// carries most of a document's financial content. The score is capped at 1.0.
func (c *Conflict) UpdateImpactScore(kind RegionKind) float64 {
	base := 0.5
	if kind == RegionTable {
		base = 1.0
	}

	discrepancy := c.DiscrepancyRatio
	if discrepancy > 1.0 {
		discrepancy = 1.0
	}

	impact := base * discrepancy
	if c.Confidence.Text > confidenceBoostFloor && c.Confidence.Vision > confidenceBoostFloor {
		impact *= 1.5
	}
	if impact > 1.0 {
		impact = 1.0
	}

	c.ImpactScore = impact
	return impact
}

// ConflictResolution is an immutable audit record of how one conflict was
// decided. Resolutions are append-only per document and never mutated.
type ConflictResolution struct {
	ConflictID string           `json:"conflict_id"`
	// ChosenValue is nil when the conflict was escalated to manual review.
	ChosenValue *float64         `json:"chosen_value"`
	Method      ResolutionMethod `json:"resolution_method"`
	UserID      string           `json:"user_id,omitempty"`
	Confidence  float64          `json:"confidence"`
	Notes       string           `json:"notes,omitempty"`
	Timestamp   time.Time        `json:"timestamp"`
}

// Stage identifies where a document run is in the processing state machine.
type Stage string

const (
	StageIngest         Stage = "ingest"
	StageLayoutDone     Stage = "layout_done"
	StageExtractionDone Stage = "extraction_done"
	StageValidated      Stage = "validated"
	StageAutoResolving  Stage = "auto_resolving"
	StageHumanReview    Stage = "human_review"
	StageComplete       Stage = "complete"
	StageFailed         Stage = "failed"
)

// Terminal reports whether the stage ends a run. Human review is a pause,
// not a terminal stage: an external action resumes it.
func (s Stage) Terminal() bool {
	return s == StageComplete || s == StageFailed
}

// StageError is one entry in a run's error log.
type StageError struct {
	Stage     string    `json:"stage"`
	Kind      string    `json:"kind"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
}

// DocumentState is the full snapshot of one in-flight document run. It is
// overwritten on every stage transition and retained on failure for
// operator inspection.
type DocumentState struct {
	DocID       string               `json:"doc_id"`
	FilePath    string               `json:"file_path"`
	Stage       Stage                `json:"stage"`
	TierLabel   string               `json:"tier_label,omitempty"`
	Regions     []Region             `json:"regions"`
	Conflicts   []Conflict           `json:"conflicts"`
	Resolutions []ConflictResolution `json:"resolutions"`
	Errors      []StageError         `json:"error_log"`
	UpdatedAt   time.Time            `json:"updated_at"`
}

// NewDocumentState creates an Ingest-stage state for a fresh run.
func NewDocumentState(docID, filePath string) *DocumentState {
	return &DocumentState{
		DocID:     docID,
		FilePath:  filePath,
		Stage:     StageIngest,
		UpdatedAt: time.Now().UTC(),
	}
}

// RegionKind returns the kind of the region with the given ID, or
// RegionUnknown if the region is not part of the document structure.
func (s *DocumentState) RegionKind(regionID string) RegionKind {
	for i := range s.Regions {
		if s.Regions[i].ID == regionID {
			return s.Regions[i].Kind
		}
	}
	return RegionUnknown
}

// FindConflict returns a pointer to the stored conflict with the given ID.
func (s *DocumentState) FindConflict(conflictID string) *Conflict {
	for i := range s.Conflicts {
		if s.Conflicts[i].ID == conflictID {
			return &s.Conflicts[i]
		}
	}
	return nil
}

// PendingConflicts returns the conflicts still awaiting a decision.
func (s *DocumentState) PendingConflicts() []Conflict {
	var pending []Conflict
	for _, c := range s.Conflicts {
		if c.Status == ResolutionPending {
			pending = append(pending, c)
		}
	}
	return pending
}

// RecordError appends a structured entry to the error log. Previously
// accumulated results are kept so partial progress stays visible.
func (s *DocumentState) RecordError(stage, kind, message string) {
	s.Errors = append(s.Errors, StageError{
		Stage:     stage,
		Kind:      kind,
		Message:   message,
		Timestamp: time.Now().UTC(),
	})
}
