package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

// RunRepository persists pipeline run state. Each save writes the whole
// mutable surface (stage, status, attempts, history); the worker owning
// the run is the only writer, so last-write-wins is safe.
type RunRepository interface {
	Create(ctx context.Context, run *entity.PipelineRun) error
	Save(ctx context.Context, run *entity.PipelineRun) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.PipelineRun, error)
	// ListResumable returns runs stranded mid-flight (pending or
	// processing), oldest first, for crash recovery at startup.
	ListResumable(ctx context.Context, limit int) ([]*entity.PipelineRun, error)
}

type runRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewRunRepository(db *sql.DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

func (r *runRepo) Create(ctx context.Context, run *entity.PipelineRun) error {
	attempts, history, errs, err := marshalRunState(run)
	if err != nil {
		return err
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO pipeline_runs (id, document_id, stage, status, attempts, history, errors, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		run.ID.String(), run.DocumentID.String(), string(run.Stage), string(run.Status),
		attempts, history, errs,
		run.StartedAt.UTC().Format(time.RFC3339Nano), nullableTime(run.FinishedAt))
	if err != nil {
		r.log.Error("repository.run_create_failed", "run_id", run.ID, "error", err)
		return fmt.Errorf("%w: insert run: %v", common.ErrDatabase, err)
	}
	r.log.Info("repository.run_created", "run_id", run.ID, "document_id", run.DocumentID)
	return nil
}

func (r *runRepo) Save(ctx context.Context, run *entity.PipelineRun) error {
	attempts, history, errs, err := marshalRunState(run)
	if err != nil {
		return err
	}
	res, err := r.db.ExecContext(ctx, `
		UPDATE pipeline_runs
		SET stage = $1, status = $2, attempts = $3, history = $4, errors = $5, finished_at = $6
		WHERE id = $7`,
		string(run.Stage), string(run.Status), attempts, history, errs,
		nullableTime(run.FinishedAt), run.ID.String())
	if err != nil {
		r.log.Error("repository.run_save_failed", "run_id", run.ID, "error", err)
		return fmt.Errorf("%w: update run: %v", common.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%w: run %s", common.ErrNotFound, run.ID)
	}
	return nil
}

func (r *runRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.PipelineRun, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, document_id, stage, status, attempts, history, errors, started_at, finished_at
		FROM pipeline_runs WHERE id = $1`, id.String())
	run, err := scanRun(row.Scan)
	if err != nil {
		return nil, err
	}
	return run, nil
}

func (r *runRepo) ListResumable(ctx context.Context, limit int) ([]*entity.PipelineRun, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, document_id, stage, status, attempts, history, errors, started_at, finished_at
		FROM pipeline_runs
		WHERE status IN ('pending', 'processing')
		ORDER BY started_at ASC
		LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: list resumable: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var runs []*entity.PipelineRun
	for rows.Next() {
		run, err := scanRun(rows.Scan)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list resumable: %v", common.ErrDatabase, err)
	}
	return runs, nil
}

func marshalRunState(run *entity.PipelineRun) (attempts, history, errs string, err error) {
	a, err := json.Marshal(run.Attempts)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal attempts: %w", err)
	}
	h, err := json.Marshal(run.History)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal history: %w", err)
	}
	e, err := json.Marshal(run.Errors)
	if err != nil {
		return "", "", "", fmt.Errorf("marshal errors: %w", err)
	}
	return string(a), string(h), string(e), nil
}

func scanRun(scan func(dest ...any) error) (*entity.PipelineRun, error) {
	var run entity.PipelineRun
	var id, documentID, stage, status, attempts, history, errs, startedAt string
	var finishedAt sql.NullString

	err := scan(&id, &documentID, &stage, &status, &attempts, &history, &errs, &startedAt, &finishedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan run: %v", common.ErrDatabase, err)
	}

	if run.ID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: run id: %v", common.ErrDatabase, err)
	}
	if run.DocumentID, err = uuid.Parse(documentID); err != nil {
		return nil, fmt.Errorf("%w: run document id: %v", common.ErrDatabase, err)
	}
	run.Stage = constants.Stage(stage)
	run.Status = constants.RunStatus(status)
	if err := json.Unmarshal([]byte(attempts), &run.Attempts); err != nil {
		return nil, fmt.Errorf("%w: run attempts: %v", common.ErrDatabase, err)
	}
	if err := json.Unmarshal([]byte(history), &run.History); err != nil {
		return nil, fmt.Errorf("%w: run history: %v", common.ErrDatabase, err)
	}
	if err := json.Unmarshal([]byte(errs), &run.Errors); err != nil {
		return nil, fmt.Errorf("%w: run errors: %v", common.ErrDatabase, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("%w: run started_at: %v", common.ErrDatabase, err)
	}
	if finishedAt.Valid {
		t, err := time.Parse(time.RFC3339Nano, finishedAt.String)
		if err != nil {
			return nil, fmt.Errorf("%w: run finished_at: %v", common.ErrDatabase, err)
		}
		run.FinishedAt = &t
	}
	return &run, nil
}

func nullableTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}
