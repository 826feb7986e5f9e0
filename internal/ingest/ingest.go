// Package ingest registers uploaded documents: extension gating, sha-256
// content hashing, and duplicate detection against the document store.
package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
	"finspread/internal/repository"
)

// IngestionResult summarizes one file's registration.
type IngestionResult struct {
	SourcePath   string             `json:"source_path"`
	DocumentID   string             `json:"document_id,omitempty"`
	Deduplicated bool               `json:"deduplicated"`
	HashHex      string             `json:"hash_hex,omitempty"`
	FileType     constants.FileType `json:"file_type,omitempty"`
	UploadedAt   time.Time          `json:"uploaded_at,omitempty"`
	Err          string             `json:"error,omitempty"`
}

// DirStats aggregates a directory walk.
type DirStats struct {
	Scanned      uint32 `json:"scanned"`
	Matched      uint32 `json:"matched"`
	Succeeded    uint32 `json:"succeeded"`
	Deduplicated uint32 `json:"deduplicated"`
	Failed       uint32 `json:"failed"`
}

// Ingestor reads from the local filesystem.
type Ingestor struct {
	Documents   repository.DocumentRepository
	AllowedExts map[string]struct{} // lowercased sans '.'; nil -> default set
	log         *slog.Logger
}

func NewIngestor(docs repository.DocumentRepository, log *slog.Logger) *Ingestor {
	if log == nil {
		log = slog.Default()
	}
	return &Ingestor{Documents: docs, log: log}
}

func (i *Ingestor) allowed(ext string) bool {
	if i.AllowedExts != nil {
		_, ok := i.AllowedExts[ext]
		return ok
	}
	_, ok := constants.AllowedExtensions[ext]
	return ok
}

// IngestPath hashes one file and registers it, deduplicating on content
// hash. A re-upload of identical bytes returns the existing document.
func (i *Ingestor) IngestPath(ctx context.Context, path string) (IngestionResult, error) {
	var out IngestionResult

	abs, err := filepath.Abs(path)
	if err != nil {
		return out, fmt.Errorf("abs path: %w", err)
	}
	out.SourcePath = abs

	ext := constants.NormalizeExt(filepath.Ext(abs))
	if ext == "" || !i.allowed(ext) {
		i.log.Warn("ingest.unsupported_extension", "path", abs, "ext", ext)
		return out, fmt.Errorf("%w: unsupported or missing extension %q", common.ErrInvalidInput, ext)
	}
	fileType := constants.MapExtToFileType(ext)
	if fileType == "" {
		return out, fmt.Errorf("%w: no file type for extension %q", common.ErrInvalidInput, ext)
	}

	f, err := os.Open(abs)
	if err != nil {
		return out, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return out, fmt.Errorf("stat: %w", err)
	}
	if info.Size() == 0 {
		return out, fmt.Errorf("%w: empty file", common.ErrInvalidInput)
	}

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return out, fmt.Errorf("hash: %w", err)
	}
	hashHex := hex.EncodeToString(h.Sum(nil))
	out.HashHex = hashHex
	out.FileType = fileType

	existing, err := i.Documents.FindByHash(ctx, hashHex)
	if err == nil {
		i.log.Info("ingest.deduplicated", "path", abs, "document_id", existing.ID)
		out.DocumentID = existing.ID.String()
		out.Deduplicated = true
		out.UploadedAt = existing.UploadedAt
		return out, nil
	}
	if !errors.Is(err, common.ErrNotFound) {
		return out, err
	}

	doc := &entity.Document{
		ID:          uuid.New(),
		Filename:    filepath.Base(abs),
		FileType:    fileType,
		SizeBytes:   info.Size(),
		ContentHash: hashHex,
		SourcePath:  abs,
		UploadedAt:  time.Now().UTC(),
	}
	if err := i.Documents.Create(ctx, doc); err != nil {
		return out, err
	}

	i.log.Info("ingest.registered", "path", abs, "document_id", doc.ID, "file_type", fileType, "size_bytes", info.Size())
	out.DocumentID = doc.ID.String()
	out.UploadedAt = doc.UploadedAt
	return out, nil
}

// IngestDirectory walks root, skips hidden entries if requested, and calls
// IngestPath for each allowed file. Returns per-file results + aggregate stats.
func (i *Ingestor) IngestDirectory(ctx context.Context, root string, skipHidden bool) ([]IngestionResult, DirStats, error) {
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, fmt.Errorf("%w: root path is required", common.ErrInvalidInput)
	}

	var results []IngestionResult
	var stats DirStats

	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		stats.Scanned++
		if walkErr != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: walkErr.Error()})
			stats.Failed++
			return nil
		}
		if skipHidden && isHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if !i.allowed(constants.NormalizeExt(filepath.Ext(path))) {
			return nil
		}
		stats.Matched++

		r, err := i.IngestPath(ctx, path)
		if err != nil {
			results = append(results, IngestionResult{SourcePath: path, Err: err.Error()})
			stats.Failed++
			return nil
		}

		results = append(results, r)
		stats.Succeeded++
		if r.Deduplicated {
			stats.Deduplicated++
		}
		return nil
	})

	if err != nil {
		return results, stats, fmt.Errorf("walk: %w", err)
	}
	i.log.Info("ingest.directory_done", "root", root,
		"scanned", stats.Scanned, "matched", stats.Matched,
		"succeeded", stats.Succeeded, "deduplicated", stats.Deduplicated, "failed", stats.Failed)
	return results, stats, nil
}

func isHidden(path string) bool {
	base := filepath.Base(path)
	return strings.HasPrefix(base, ".") && base != "." && base != ".."
}
