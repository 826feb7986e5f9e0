// Package pipeline drives the seven-stage document state machine:
// ingestion, text extraction, table extraction, labeling, normalization,
// validation, output assembly. Stages advance strictly forward; failed
// attempts fall back to the next configured method until the per-stage
// attempt budget runs out.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
	"finspread/internal/extract"
	"finspread/internal/ingest"
	"finspread/internal/labeler"
	"finspread/internal/metrics"
	"finspread/internal/repository"
	"finspread/internal/taxonomy"
	"finspread/internal/validate"
)

// Deps wires the orchestrator's collaborators. Extraction chains are
// keyed by file type; order within a chain is fallback order.
type Deps struct {
	Config    common.PipelineConfig
	Documents repository.DocumentRepository
	Runs      repository.RunRepository
	Bundles   repository.BundleRepository
	Store     ingest.DocumentStore // nil selects the filesystem store
	Text      map[constants.FileType][]extract.TextExtractor
	Tables    map[constants.FileType][]extract.TableExtractor
	Labelers  []labeler.Labeler
	Mapper    *taxonomy.Mapper
	Validator *validate.Validator
	Logger    *slog.Logger
}

// Orchestrator owns run lifecycles. One goroutine drives one run; the
// run row is persisted after every stage so a crash resumes cleanly.
type Orchestrator struct {
	cfg        common.PipelineConfig
	docs       repository.DocumentRepository
	runs       repository.RunRepository
	bundles    repository.BundleRepository
	store      ingest.DocumentStore
	text       map[constants.FileType][]extract.TextExtractor
	tables     map[constants.FileType][]extract.TableExtractor
	labelers   []labeler.Labeler
	mapper     *taxonomy.Mapper
	validator  *validate.Validator
	thresholds validate.Thresholds
	log        *slog.Logger
}

func NewOrchestrator(d Deps) *Orchestrator {
	log := d.Logger
	if log == nil {
		log = slog.Default()
	}
	store := d.Store
	if store == nil {
		store = ingest.NewFSStore()
	}
	return &Orchestrator{
		cfg:        d.Config,
		docs:       d.Documents,
		runs:       d.Runs,
		bundles:    d.Bundles,
		store:      store,
		text:       d.Text,
		tables:     d.Tables,
		labelers:   d.Labelers,
		mapper:     d.Mapper,
		validator:  d.Validator,
		thresholds: validate.ThresholdsFrom(d.Config),
		log:        log,
	}
}

// Run creates a fresh run for the document and drives it to a terminal
// status. The returned run always reflects the final persisted state;
// the error covers infrastructure failures only, not document outcomes.
func (o *Orchestrator) Run(ctx context.Context, documentID uuid.UUID) (*entity.PipelineRun, error) {
	run := entity.NewPipelineRun(documentID)
	if err := o.runs.Create(ctx, run); err != nil {
		return nil, err
	}
	if err := o.drive(ctx, run); err != nil {
		return run, err
	}
	return run, nil
}

// Resume restarts a stranded run from the first stage. Intermediate
// artifacts are not persisted, so earlier stages are re-executed; the
// audit history of prior attempts is preserved.
func (o *Orchestrator) Resume(ctx context.Context, run *entity.PipelineRun) error {
	if run.Status.Terminal() {
		return fmt.Errorf("%w: run %s is already %s", common.ErrInvalidInput, run.ID, run.Status)
	}
	o.log.Info("pipeline.resuming", "run_id", run.ID, "stage", run.Stage, "prior_attempts", len(run.History))
	run.Stage = constants.StageIngestion
	return o.drive(ctx, run)
}

func (o *Orchestrator) drive(ctx context.Context, run *entity.PipelineRun) error {
	ctx = common.WithRunID(ctx, run.ID.String())
	run.Status = constants.RunStatusProcessing
	state := &runState{}

	start := constants.StageIndex(run.Stage)
	if start < 0 {
		start = 0
	}
	for _, stage := range constants.StageOrder[start:] {
		// Cancellation is honored at stage boundaries only; a stage
		// in flight finishes or fails on its own context.
		if ctx.Err() != nil {
			run.Finish(constants.RunStatusCancelled)
			o.log.Warn("pipeline.cancelled", "run_id", run.ID, "stage", stage)
			return o.persist(run)
		}

		run.Stage = stage
		if ok, fatal := o.execStage(ctx, run, stage, state); !ok {
			// Finding no tables is a valid outcome for text-first
			// documents; the labeler still has the page text.
			if stage == constants.StageTableExtraction && !fatal {
				o.log.Warn("pipeline.no_tables", "run_id", run.ID, "document_id", run.DocumentID)
				if err := o.persist(run); err != nil {
					return err
				}
				continue
			}
			run.Finish(constants.RunStatusFailed)
			o.log.Error("pipeline.run_failed", "run_id", run.ID, "stage", stage,
				"attempts", run.Attempts[stage])
			return o.persist(run)
		}
		if err := o.persist(run); err != nil {
			return err
		}
	}

	// Output assembly set the terminal status itself.
	if !run.Status.Terminal() {
		run.Finish(constants.RunStatusCompleted)
	}
	o.log.Info("pipeline.run_finished", "run_id", run.ID, "status", run.Status)
	return o.persist(run)
}

// execStage walks the stage's fallback chain. Every attempt lands in the
// audit history regardless of outcome. ok is false when the stage is
// exhausted or an attempt was fatal; fatal distinguishes the two.
func (o *Orchestrator) execStage(ctx context.Context, run *entity.PipelineRun, stage constants.Stage, state *runState) (ok, fatal bool) {
	attempts := o.attemptsFor(stage, run, state)
	if len(attempts) == 0 {
		o.log.Debug("pipeline.stage_skipped", "run_id", run.ID, "stage", stage)
		return true, false
	}

	budget := o.cfg.StageAttemptBudget + 1 // primary plus alternates
	if budget > len(attempts) {
		budget = len(attempts)
	}
	if budget < 1 {
		budget = 1
	}

	for i := 0; i < budget; i++ {
		att := attempts[i]
		startedAt := time.Now().UTC()
		out := att.invoke(ctx)
		entry := entity.StageAttempt{
			Stage:      stage,
			Attempt:    run.Attempts[stage] + 1,
			Method:     att.method,
			Outcome:    out.Kind.String(),
			StartedAt:  startedAt,
			FinishedAt: time.Now().UTC(),
		}
		if out.Err != nil {
			entry.Error = out.Err.Error()
		}
		run.RecordAttempt(entry)

		switch out.Kind {
		case OutcomeSuccess:
			return true, false
		case OutcomeFatal:
			o.log.Error("pipeline.stage_fatal", "run_id", run.ID, "stage", stage,
				"method", att.method, "error", out.Err)
			return false, true
		default:
			o.log.Warn("pipeline.stage_retry", "run_id", run.ID, "stage", stage,
				"method", att.method, "attempt", entry.Attempt, "error", out.Err)
		}
	}
	return false, false
}

// assembleOutput is the final stage: derived metrics, disposition, and
// the write-once bundle record. It sets the run's terminal status.
func (o *Orchestrator) assembleOutput(ctx context.Context, run *entity.PipelineRun, state *runState) Outcome {
	state.metrics = metrics.Compute(state.bundle)

	disposition := o.validator.Disposition(state.report)
	if state.blocked && disposition == validate.AutoApprove {
		disposition = validate.FlagForReview
	}

	run.Bundle = state.bundle
	run.Report = state.report
	run.Metrics = state.metrics

	rec := &repository.BundleRecord{
		RunID:      run.ID,
		DocumentID: state.doc.ID,
		Bundle:     state.bundle,
		Report:     state.report,
		Metrics:    state.metrics,
	}
	if err := o.bundles.Save(ctx, rec); err != nil {
		return Fatal(err)
	}

	switch disposition {
	case validate.NeedsManualReview:
		run.Finish(constants.RunStatusNeedsReview)
	default:
		run.Finish(constants.RunStatusCompleted)
	}
	o.log.Info("pipeline.assembled", "run_id", run.ID,
		"disposition", disposition, "quality_score", state.report.QualityScore,
		"status", run.Status)
	return Success()
}

func (o *Orchestrator) persist(run *entity.PipelineRun) error {
	// Persistence must survive the run's own context being cancelled.
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := o.runs.Save(ctx, run); err != nil {
		o.log.Error("pipeline.persist_failed", "run_id", run.ID, "error", err)
		return err
	}
	return nil
}
