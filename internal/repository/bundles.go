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

	"finspread/internal/common"
	"finspread/internal/entity"
)

// BundleRecord is a completed run's immutable output: the bundle plus its
// validation report and derived metrics.
type BundleRecord struct {
	RunID      uuid.UUID
	DocumentID uuid.UUID
	Bundle     *entity.StatementBundle
	Report     *entity.ValidationReport
	Metrics    map[string]map[string]*float64
	CreatedAt  time.Time
}

// BundleRepository stores assembled bundles. Save is write-once: a bundle
// is immutable after its run completes, so a second save for the same run
// is an error, never an overwrite.
type BundleRepository interface {
	Save(ctx context.Context, rec *BundleRecord) error
	GetByRunID(ctx context.Context, runID uuid.UUID) (*BundleRecord, error)
}

type bundleRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewBundleRepository(db *sql.DB, log *slog.Logger) BundleRepository {
	if log == nil {
		log = slog.Default()
	}
	return &bundleRepo{db: db, log: log}
}

func (r *bundleRepo) Save(ctx context.Context, rec *BundleRecord) error {
	bundle, err := json.Marshal(rec.Bundle)
	if err != nil {
		return fmt.Errorf("marshal bundle: %w", err)
	}
	report, err := json.Marshal(rec.Report)
	if err != nil {
		return fmt.Errorf("marshal report: %w", err)
	}
	metrics, err := json.Marshal(rec.Metrics)
	if err != nil {
		return fmt.Errorf("marshal metrics: %w", err)
	}

	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO bundles (run_id, document_id, bundle, report, metrics, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		rec.RunID.String(), rec.DocumentID.String(),
		string(bundle), string(report), string(metrics),
		rec.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		r.log.Error("repository.bundle_save_failed", "run_id", rec.RunID, "error", err)
		return fmt.Errorf("%w: insert bundle: %v", common.ErrDatabase, err)
	}
	r.log.Info("repository.bundle_saved", "run_id", rec.RunID, "document_id", rec.DocumentID)
	return nil
}

func (r *bundleRepo) GetByRunID(ctx context.Context, runID uuid.UUID) (*BundleRecord, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT run_id, document_id, bundle, report, metrics, created_at
		FROM bundles WHERE run_id = $1`, runID.String())

	var rec BundleRecord
	var id, documentID, bundle, report, metrics, createdAt string
	err := row.Scan(&id, &documentID, &bundle, &report, &metrics, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan bundle: %v", common.ErrDatabase, err)
	}

	if rec.RunID, err = uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("%w: bundle run id: %v", common.ErrDatabase, err)
	}
	if rec.DocumentID, err = uuid.Parse(documentID); err != nil {
		return nil, fmt.Errorf("%w: bundle document id: %v", common.ErrDatabase, err)
	}
	if err := json.Unmarshal([]byte(bundle), &rec.Bundle); err != nil {
		return nil, fmt.Errorf("%w: bundle payload: %v", common.ErrDatabase, err)
	}
	if err := json.Unmarshal([]byte(report), &rec.Report); err != nil {
		return nil, fmt.Errorf("%w: bundle report: %v", common.ErrDatabase, err)
	}
	if err := json.Unmarshal([]byte(metrics), &rec.Metrics); err != nil {
		return nil, fmt.Errorf("%w: bundle metrics: %v", common.ErrDatabase, err)
	}
	if rec.CreatedAt, err = time.Parse(time.RFC3339Nano, createdAt); err != nil {
		return nil, fmt.Errorf("%w: bundle created_at: %v", common.ErrDatabase, err)
	}
	return &rec, nil
}
