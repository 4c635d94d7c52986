package workflow

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paperspine/paperspine/checkpoint"
	"github.com/paperspine/paperspine/core"
	"github.com/paperspine/paperspine/resilience"
	"github.com/paperspine/paperspine/resolution"
	"github.com/paperspine/paperspine/validation"
)

// LayoutEngine analyzes document structure page by page.
type LayoutEngine interface {
	// PageCount returns the number of pages in the document.
	PageCount(ctx context.Context, filePath string) (int, error)
	// AnalyzePage returns the detected regions of one page.
	AnalyzePage(ctx context.Context, filePath string, page int, tier resilience.Tier) ([]core.Region, error)
}

// TextEngine extracts values from regions through the text recognition path.
type TextEngine interface {
	ExtractPage(ctx context.Context, filePath string, regions []core.Region, tier resilience.Tier) (map[string]validation.TextObservation, error)
}

// VisionEngine extracts values from regions through the vision path. It is
// skipped entirely in safe mode, where only text recognition runs.
type VisionEngine interface {
	ExtractPage(ctx context.Context, filePath string, regions []core.Region, tier resilience.Tier) (map[string]validation.VisionObservation, error)
}

// Pipeline runs documents through layout, extraction, validation, and
// resolution, checkpointing progress so interrupted runs resume without
// redoing completed pages. One Pipeline serves many concurrent documents;
// per-run state lives entirely in the DocumentState.
type Pipeline struct {
	layout LayoutEngine
	text   TextEngine
	vision VisionEngine

	selector *resilience.Selector
	executor *resilience.Executor
	breakers map[string]*resilience.CircuitBreaker

	detector *validation.Detector
	resolver *resolution.Resolver

	recovery  *checkpoint.RecoveryStore
	snapshots checkpoint.SnapshotStore

	logger    core.Logger
	telemetry core.Telemetry
}

// PipelineConfig wires a Pipeline's collaborators. Engines, selector,
// executor, detector, resolver, and both stores are required.
type PipelineConfig struct {
	Layout   LayoutEngine
	Text     TextEngine
	Vision   VisionEngine
	Selector *resilience.Selector
	Executor *resilience.Executor
	Detector *validation.Detector
	Resolver *resolution.Resolver
	Recovery *checkpoint.RecoveryStore
	Snapshot checkpoint.SnapshotStore

	// Breakers maps engine names (layout, text, vision) to their circuit
	// breakers. Missing entries get a default breaker.
	Breakers map[string]*resilience.CircuitBreaker

	Logger    core.Logger
	Telemetry core.Telemetry
}

// NewPipeline validates the wiring and creates a pipeline.
func NewPipeline(config PipelineConfig) (*Pipeline, error) {
	switch {
	case config.Layout == nil, config.Text == nil, config.Vision == nil:
		return nil, fmt.Errorf("pipeline engines: %w", core.ErrMissingConfiguration)
	case config.Selector == nil, config.Executor == nil:
		return nil, fmt.Errorf("pipeline resilience wiring: %w", core.ErrMissingConfiguration)
	case config.Detector == nil, config.Resolver == nil:
		return nil, fmt.Errorf("pipeline arbitration wiring: %w", core.ErrMissingConfiguration)
	case config.Recovery == nil, config.Snapshot == nil:
		return nil, fmt.Errorf("pipeline checkpoint wiring: %w", core.ErrMissingConfiguration)
	}

	if config.Logger == nil {
		config.Logger = &core.NoOpLogger{}
	}
	if config.Telemetry == nil {
		config.Telemetry = &core.NoOpTelemetry{}
	}

	breakers := config.Breakers
	if breakers == nil {
		breakers = make(map[string]*resilience.CircuitBreaker)
	}
	for _, name := range []string{"layout", "text", "vision"} {
		if breakers[name] == nil {
			breakers[name] = resilience.NewCircuitBreaker(resilience.DefaultBreakerConfig(name))
		}
	}

	return &Pipeline{
		layout:    config.Layout,
		text:      config.Text,
		vision:    config.Vision,
		selector:  config.Selector,
		executor:  config.Executor,
		breakers:  breakers,
		detector:  config.Detector,
		resolver:  config.Resolver,
		recovery:  config.Recovery,
		snapshots: config.Snapshot,
		logger:    config.Logger,
		telemetry: config.Telemetry,
	}, nil
}

// Run processes one document end to end. Engine and extraction failures are
// recorded on the returned state and end it at the failed stage; Run returns
// a non-nil error only when progress cannot be made durable, since
// continuing past an unpersisted checkpoint would fake crash safety.
//
// A rerun of a previously interrupted document resumes after the last
// completed page in its recovery ledger.
func (p *Pipeline) Run(ctx context.Context, docID, filePath string) (*core.DocumentState, error) {
	ctx, span := p.telemetry.StartSpan(ctx, "pipeline.run")
	defer span.End()
	span.SetAttribute("doc_id", docID)

	state := p.loadOrCreateState(ctx, docID, filePath)
	if state.Stage.Terminal() {
		p.logger.Info("Document already in terminal stage", map[string]interface{}{
			"operation": "pipeline_run",
			"doc_id":    docID,
			"stage":     string(state.Stage),
		})
		return state, nil
	}
	switch state.Stage {
	case core.StageHumanReview:
		// Held for a reviewer; resumption happens through the review API.
		return state, nil
	case core.StageValidated, core.StageAutoResolving:
		// Interrupted after validation: conflicts are on the snapshot, so
		// routing can restart without re-extracting anything.
		return p.route(ctx, state)
	case core.StageLayoutDone, core.StageExtractionDone:
		// Interrupted mid-extraction. Raw observations are not snapshotted,
		// so re-enter the page loop; the recovery ledger skips what is done.
		state.Stage = core.StageIngest
	}

	tier := p.selector.SelectTier()
	state.TierLabel = tier.String()
	span.SetAttribute("tier", tier.String())

	pageCount, err := p.countPages(ctx, filePath)
	if err != nil {
		span.RecordError(err)
		return p.failRun(ctx, state, core.StageIngest, "layout", err)
	}

	resume, completed := p.recovery.GetResumePoint(docID)
	if len(completed) > 0 {
		p.logger.Info("Resuming from recovery ledger", map[string]interface{}{
			"operation":       "pipeline_run",
			"doc_id":          docID,
			"resume_page":     resume,
			"completed_pages": len(completed),
		})
	}

	textObs := make(map[string]validation.TextObservation)
	visionObs := make(map[string]validation.VisionObservation)

	for page := resume; page <= pageCount; page++ {
		// Selections go stale: health can shift between pages. Re-validate
		// the tier before each page and re-select when it no longer holds.
		if !p.selector.StillUsable(tier) {
			tier = p.selector.SelectTier()
			state.TierLabel = tier.String()
		}
		// The executor may also have requested a downgrade mid-run; honor
		// it before starting the next page.
		if last, ok := p.selector.LastSelected(); ok && last != tier {
			p.logger.Warn("Tier changed mid-run", map[string]interface{}{
				"operation": "pipeline_run",
				"doc_id":    docID,
				"from":      tier.String(),
				"to":        last.String(),
			})
			tier = last
			state.TierLabel = tier.String()
		}

		if err := p.processPage(ctx, state, filePath, page, tier, textObs, visionObs); err != nil {
			if ctx.Err() != nil {
				return state, ctx.Err()
			}
			state.RecordError(string(state.Stage), "page_extraction", fmt.Sprintf("page %d: %v", page, err))
			if cerr := p.saveLedger(docID, page, false, pageCount, tier); cerr != nil {
				return state, cerr
			}
			continue
		}
		if cerr := p.saveLedger(docID, page, true, pageCount, tier); cerr != nil {
			return state, cerr
		}
	}

	if err := p.advance(ctx, state, core.StageLayoutDone); err != nil {
		return state, err
	}
	if err := p.advance(ctx, state, core.StageExtractionDone); err != nil {
		return state, err
	}

	state.Conflicts = append(state.Conflicts, p.detector.Detect(state.Regions, textObs, visionObs)...)
	if err := p.advance(ctx, state, core.StageValidated); err != nil {
		return state, err
	}

	return p.route(ctx, state)
}

// route applies the post-validation decision and drives the run to its next
// resting point: terminal complete, held for review, or auto-resolved.
func (p *Pipeline) route(ctx context.Context, state *core.DocumentState) (*core.DocumentState, error) {
	decision := RouteAfterValidation(state)
	p.logger.Info("Routing after validation", map[string]interface{}{
		"operation": "route",
		"doc_id":    state.DocID,
		"decision":  string(decision),
		"conflicts": len(state.Conflicts),
	})

	switch decision {
	case DecisionComplete:
		return p.complete(ctx, state)

	case DecisionHumanReview:
		p.flagPending(state)
		if err := p.advance(ctx, state, core.StageHumanReview); err != nil {
			return state, err
		}
		return state, nil

	default: // DecisionAutoResolve
		// A rerun interrupted mid-resolution is already at this stage.
		if state.Stage != core.StageAutoResolving {
			if err := p.advance(ctx, state, core.StageAutoResolving); err != nil {
				return state, err
			}
		}

		escalated := 0
		for _, res := range p.resolver.ResolveAll(state) {
			conflict := state.FindConflict(res.ConflictID)
			if conflict == nil {
				continue
			}
			if res.Method == core.MethodAuto {
				conflict.Status = core.ResolutionResolved
				conflict.Method = core.MethodAuto
			} else {
				conflict.Status = core.ResolutionFlagged
				conflict.Method = core.MethodManual
				escalated++
			}
			state.Resolutions = append(state.Resolutions, res)
		}

		if escalated > 0 {
			if err := p.advance(ctx, state, core.StageHumanReview); err != nil {
				return state, err
			}
			return state, nil
		}
		return p.complete(ctx, state)
	}
}

func (p *Pipeline) complete(ctx context.Context, state *core.DocumentState) (*core.DocumentState, error) {
	if err := p.advance(ctx, state, core.StageComplete); err != nil {
		return state, err
	}
	if err := p.recovery.MarkCompleted(state.DocID); err != nil && !core.IsNotFound(err) {
		return state, err
	}
	// A successful run needs no snapshot; failed and held snapshots are the
	// ones retained for inspection and review.
	if err := p.snapshots.Clear(ctx, state.DocID); err != nil {
		return state, err
	}
	p.logger.Info("Document complete", map[string]interface{}{
		"operation":   "pipeline_run",
		"doc_id":      state.DocID,
		"conflicts":   len(state.Conflicts),
		"resolutions": len(state.Resolutions),
	})
	return state, nil
}

// CompleteReview finishes a run that was held for human review once every
// flagged conflict has a decision. Unresolved conflicts keep the run held.
func (p *Pipeline) CompleteReview(ctx context.Context, docID string) (*core.DocumentState, error) {
	state, err := p.snapshots.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if state.Stage != core.StageHumanReview {
		return state, fmt.Errorf("document %s is not held for review (stage %s)", docID, state.Stage)
	}

	for _, c := range state.Conflicts {
		if c.Status == core.ResolutionPending || c.Status == core.ResolutionFlagged {
			return state, fmt.Errorf("document %s still has unresolved conflicts", docID)
		}
	}
	return p.complete(ctx, state)
}

// RetryFailed reruns a document whose last run ended at the failed stage.
// The error log and the page ledger survive: pages that completed before the
// failure are not redone, and the new run's errors append to the old ones.
func (p *Pipeline) RetryFailed(ctx context.Context, docID string) (*core.DocumentState, error) {
	state, err := p.snapshots.Load(ctx, docID)
	if err != nil {
		return nil, err
	}
	if state.Stage != core.StageFailed {
		return state, fmt.Errorf("document %s is not in the failed stage (stage %s)", docID, state.Stage)
	}

	state.Stage = core.StageIngest
	state.UpdatedAt = time.Now().UTC()
	if err := p.snapshots.Save(ctx, state); err != nil {
		return state, err
	}
	return p.Run(ctx, docID, state.FilePath)
}

// RunResult pairs a document with its outcome for batch processing.
type RunResult struct {
	DocID string
	State *core.DocumentState
	Err   error
}

// DocumentJob names one document for batch processing.
type DocumentJob struct {
	DocID    string
	FilePath string
}

// ProcessAll runs documents concurrently, one goroutine per document. A
// failure in one document never blocks or aborts the others; results arrive
// in completion order.
func (p *Pipeline) ProcessAll(ctx context.Context, jobs []DocumentJob) []RunResult {
	results := make(chan RunResult, len(jobs))
	var wg sync.WaitGroup

	for _, job := range jobs {
		wg.Add(1)
		go func(job DocumentJob) {
			defer wg.Done()
			state, err := p.Run(ctx, job.DocID, job.FilePath)
			results <- RunResult{DocID: job.DocID, State: state, Err: err}
		}(job)
	}
	wg.Wait()
	close(results)

	collected := make([]RunResult, 0, len(jobs))
	for r := range results {
		collected = append(collected, r)
	}
	return collected
}

// ResumeInterrupted reruns every document whose snapshot was left at a
// non-terminal stage, typically after a crash.
func (p *Pipeline) ResumeInterrupted(ctx context.Context) []RunResult {
	docIDs, err := p.snapshots.ListInterrupted(ctx)
	if err != nil {
		p.logger.Error("Failed to list interrupted runs", map[string]interface{}{
			"operation": "resume_interrupted",
			"error":     err.Error(),
		})
		return nil
	}

	jobs := make([]DocumentJob, 0, len(docIDs))
	for _, docID := range docIDs {
		state, err := p.snapshots.Load(ctx, docID)
		if err != nil {
			p.logger.Warn("Skipping interrupted run with unreadable snapshot", map[string]interface{}{
				"operation": "resume_interrupted",
				"doc_id":    docID,
				"error":     err.Error(),
			})
			continue
		}
		if state.Stage == core.StageHumanReview {
			continue
		}
		jobs = append(jobs, DocumentJob{DocID: docID, FilePath: state.FilePath})
	}
	return p.ProcessAll(ctx, jobs)
}

func (p *Pipeline) loadOrCreateState(ctx context.Context, docID, filePath string) *core.DocumentState {
	state, err := p.snapshots.Load(ctx, docID)
	if err != nil {
		return core.NewDocumentState(docID, filePath)
	}
	return state
}

func (p *Pipeline) countPages(ctx context.Context, filePath string) (int, error) {
	var pages int
	err := p.executor.ExecuteWithBreaker(ctx, "layout.page_count", p.breakers["layout"], func(ctx context.Context) error {
		n, err := p.layout.PageCount(ctx, filePath)
		if err != nil {
			return err
		}
		pages = n
		return nil
	})
	return pages, err
}

// processPage runs layout and both extraction paths for one page, appending
// regions to the state and observations to the accumulator maps. Vision is
// skipped in safe mode.
func (p *Pipeline) processPage(ctx context.Context, state *core.DocumentState, filePath string, page int, tier resilience.Tier, textObs map[string]validation.TextObservation, visionObs map[string]validation.VisionObservation) error {
	var regions []core.Region
	err := p.executor.ExecuteWithBreaker(ctx, "layout.analyze", p.breakers["layout"], func(ctx context.Context) error {
		r, err := p.layout.AnalyzePage(ctx, filePath, page, tier)
		if err != nil {
			return err
		}
		regions = r
		return nil
	})
	if err != nil {
		return fmt.Errorf("layout analysis: %w", err)
	}
	state.Regions = append(state.Regions, regions...)

	err = p.executor.ExecuteWithBreaker(ctx, "text.extract", p.breakers["text"], func(ctx context.Context) error {
		obs, err := p.text.ExtractPage(ctx, filePath, regions, tier)
		if err != nil {
			return err
		}
		for id, o := range obs {
			textObs[id] = o
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("text extraction: %w", err)
	}

	if tier == resilience.TierTextOnlySafe {
		return nil
	}

	err = p.executor.ExecuteWithBreaker(ctx, "vision.extract", p.breakers["vision"], func(ctx context.Context) error {
		obs, err := p.vision.ExtractPage(ctx, filePath, regions, tier)
		if err != nil {
			return err
		}
		for id, o := range obs {
			visionObs[id] = o
		}
		return nil
	})
	if err != nil {
		// Vision is the arbitration path, not the primary one. Losing it
		// degrades validation coverage but does not fail the page.
		state.RecordError(string(state.Stage), "vision_extraction", fmt.Sprintf("page %d: %v", page, err))
		p.logger.Warn("Vision extraction failed, continuing with text only", map[string]interface{}{
			"operation": "pipeline_run",
			"doc_id":    state.DocID,
			"page":      page,
			"error":     err.Error(),
		})
	}
	return nil
}

// saveLedger persists one page outcome, retrying once before giving up. An
// unpersisted checkpoint aborts the run: claiming crash safety over progress
// that only exists in memory would be a lie.
func (p *Pipeline) saveLedger(docID string, page int, completed bool, totalPages int, tier resilience.Tier) error {
	opts := []checkpoint.SaveOption{
		checkpoint.WithTotalPages(totalPages),
		checkpoint.WithTierLabel(tier.String()),
	}
	err := p.recovery.SaveCheckpoint(docID, page, completed, opts...)
	if err == nil {
		return nil
	}

	p.logger.Warn("Checkpoint write failed, retrying once", map[string]interface{}{
		"operation": "save_checkpoint",
		"doc_id":    docID,
		"page":      page,
		"error":     err.Error(),
	})
	time.Sleep(100 * time.Millisecond)
	if err := p.recovery.SaveCheckpoint(docID, page, completed, opts...); err != nil {
		return err
	}
	return nil
}

// advance transitions the stage and persists the snapshot. Persisting is
// part of the transition: a stage change that is not durable did not happen.
func (p *Pipeline) advance(ctx context.Context, state *core.DocumentState, to core.Stage) error {
	if err := Transition(state, to); err != nil {
		return err
	}
	state.UpdatedAt = time.Now().UTC()
	return p.snapshots.Save(ctx, state)
}

func (p *Pipeline) flagPending(state *core.DocumentState) {
	for i := range state.Conflicts {
		if state.Conflicts[i].Status == core.ResolutionPending {
			state.Conflicts[i].Status = core.ResolutionFlagged
		}
	}
}

// failRun records the failure, moves the run to the failed stage, and
// persists both snapshot and ledger status. The returned error is nil: an
// engine failure is a recorded outcome, not an infrastructure fault.
func (p *Pipeline) failRun(ctx context.Context, state *core.DocumentState, stage core.Stage, kind string, cause error) (*core.DocumentState, error) {
	Fail(state, stage, kind, cause)
	state.UpdatedAt = time.Now().UTC()

	if err := p.snapshots.Save(ctx, state); err != nil {
		return state, err
	}
	if err := p.recovery.MarkFailed(state.DocID); err != nil && !core.IsNotFound(err) {
		return state, err
	}

	p.logger.Error("Document run failed", map[string]interface{}{
		"operation": "pipeline_run",
		"doc_id":    state.DocID,
		"stage":     string(stage),
		"kind":      kind,
		"error":     cause.Error(),
	})
	return state, nil
}
