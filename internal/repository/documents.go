package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

// DocumentRepository stores uploaded document handles. Content hash is
// unique: re-uploading the same bytes dedupes onto the existing row.
type DocumentRepository interface {
	Create(ctx context.Context, doc *entity.Document) error
	GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error)
	FindByHash(ctx context.Context, contentHash string) (*entity.Document, error)
}

type documentRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewDocumentRepository(db *sql.DB, log *slog.Logger) DocumentRepository {
	if log == nil {
		log = slog.Default()
	}
	return &documentRepo{db: db, log: log}
}

func (r *documentRepo) Create(ctx context.Context, doc *entity.Document) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO documents (id, filename, file_type, size_bytes, content_hash, language, source_path, uploaded_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		doc.ID.String(), doc.Filename, string(doc.FileType), doc.SizeBytes,
		doc.ContentHash, doc.Language, doc.SourcePath, doc.UploadedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		r.log.Error("repository.document_create_failed", "document_id", doc.ID, "error", err)
		return fmt.Errorf("%w: insert document: %v", common.ErrDatabase, err)
	}
	r.log.Info("repository.document_created", "document_id", doc.ID, "filename", doc.Filename)
	return nil
}

func (r *documentRepo) GetByID(ctx context.Context, id uuid.UUID) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, filename, file_type, size_bytes, content_hash, language, source_path, uploaded_at
		FROM documents WHERE id = $1`, id.String())
	return scanDocument(row)
}

func (r *documentRepo) FindByHash(ctx context.Context, contentHash string) (*entity.Document, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT id, filename, file_type, size_bytes, content_hash, language, source_path, uploaded_at
		FROM documents WHERE content_hash = $1`, contentHash)
	return scanDocument(row)
}

func scanDocument(row *sql.Row) (*entity.Document, error) {
	var doc entity.Document
	var id, fileType, uploadedAt string
	err := row.Scan(&id, &doc.Filename, &fileType, &doc.SizeBytes,
		&doc.ContentHash, &doc.Language, &doc.SourcePath, &uploadedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("%w: scan document: %v", common.ErrDatabase, err)
	}
	doc.ID, err = uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("%w: document id: %v", common.ErrDatabase, err)
	}
	doc.FileType = constants.FileType(fileType)
	doc.UploadedAt, err = time.Parse(time.RFC3339Nano, uploadedAt)
	if err != nil {
		return nil, fmt.Errorf("%w: uploaded_at: %v", common.ErrDatabase, err)
	}
	return &doc, nil
}
