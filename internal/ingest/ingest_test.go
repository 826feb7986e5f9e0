package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/uuid"

	"finspread/internal/common"
	"finspread/internal/entity"
)

// memDocs is an in-memory stand-in for the document store.
type memDocs struct {
	byID   map[uuid.UUID]*entity.Document
	byHash map[string]*entity.Document
}

func newMemDocs() *memDocs {
	return &memDocs{
		byID:   map[uuid.UUID]*entity.Document{},
		byHash: map[string]*entity.Document{},
	}
}

func (m *memDocs) Create(_ context.Context, doc *entity.Document) error {
	if _, ok := m.byHash[doc.ContentHash]; ok {
		return fmt.Errorf("%w: duplicate hash", common.ErrDatabase)
	}
	m.byID[doc.ID] = doc
	m.byHash[doc.ContentHash] = doc
	return nil
}

func (m *memDocs) GetByID(_ context.Context, id uuid.UUID) (*entity.Document, error) {
	doc, ok := m.byID[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return doc, nil
}

func (m *memDocs) FindByHash(_ context.Context, hash string) (*entity.Document, error) {
	doc, ok := m.byHash[hash]
	if !ok {
		return nil, common.ErrNotFound
	}
	return doc, nil
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func TestIngestPathRegistersDocument(t *testing.T) {
	dir := t.TempDir()
	docs := newMemDocs()
	ing := NewIngestor(docs, nil)

	path := writeFile(t, dir, "fy2023-annual-report.pdf", "%PDF-1.7 fake body")
	res, err := ing.IngestPath(context.Background(), path)
	if err != nil {
		t.Fatalf("IngestPath: %v", err)
	}
	if res.Deduplicated {
		t.Error("first ingest flagged as duplicate")
	}
	if res.DocumentID == "" || len(res.HashHex) != 64 {
		t.Errorf("result = %+v", res)
	}
	if res.FileType != "PDF" {
		t.Errorf("file type = %q, want PDF", res.FileType)
	}

	id := uuid.MustParse(res.DocumentID)
	doc, err := docs.GetByID(context.Background(), id)
	if err != nil {
		t.Fatalf("stored document missing: %v", err)
	}
	if doc.Filename != "fy2023-annual-report.pdf" || doc.SizeBytes == 0 {
		t.Errorf("stored document = %+v", doc)
	}
}

func TestIngestPathDeduplicates(t *testing.T) {
	dir := t.TempDir()
	docs := newMemDocs()
	ing := NewIngestor(docs, nil)
	ctx := context.Background()

	first := writeFile(t, dir, "q2.csv", "label,FY2023\nTotal Revenue,100")
	// Same bytes, different name: still one document.
	second := writeFile(t, dir, "q2-copy.csv", "label,FY2023\nTotal Revenue,100")

	r1, err := ing.IngestPath(ctx, first)
	if err != nil {
		t.Fatalf("first ingest: %v", err)
	}
	r2, err := ing.IngestPath(ctx, second)
	if err != nil {
		t.Fatalf("second ingest: %v", err)
	}
	if !r2.Deduplicated {
		t.Error("identical content not deduplicated")
	}
	if r1.DocumentID != r2.DocumentID {
		t.Errorf("document ids differ: %s vs %s", r1.DocumentID, r2.DocumentID)
	}
	if len(docs.byID) != 1 {
		t.Errorf("stored %d documents, want 1", len(docs.byID))
	}
}

func TestIngestPathRejectsUnsupported(t *testing.T) {
	dir := t.TempDir()
	ing := NewIngestor(newMemDocs(), nil)
	ctx := context.Background()

	for _, name := range []string{"notes.txt", "archive.zip", "noext"} {
		path := writeFile(t, dir, name, "content")
		if _, err := ing.IngestPath(ctx, path); !errors.Is(err, common.ErrInvalidInput) {
			t.Errorf("%s: error = %v, want ErrInvalidInput", name, err)
		}
	}
}

func TestIngestPathRejectsEmptyFile(t *testing.T) {
	dir := t.TempDir()
	ing := NewIngestor(newMemDocs(), nil)

	path := writeFile(t, dir, "empty.pdf", "")
	if _, err := ing.IngestPath(context.Background(), path); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}

func TestIngestDirectory(t *testing.T) {
	dir := t.TempDir()
	docs := newMemDocs()
	ing := NewIngestor(docs, nil)

	writeFile(t, dir, "reports/fy2023.pdf", "%PDF-1.7 alpha")
	writeFile(t, dir, "reports/fy2022.csv", "label,FY2022\nNet Income,50")
	writeFile(t, dir, "reports/readme.txt", "not a statement")
	writeFile(t, dir, ".hidden/secret.pdf", "%PDF-1.7 hidden")

	results, stats, err := ing.IngestDirectory(context.Background(), dir, true)
	if err != nil {
		t.Fatalf("IngestDirectory: %v", err)
	}
	if stats.Matched != 2 || stats.Succeeded != 2 || stats.Failed != 0 {
		t.Errorf("stats = %+v", stats)
	}
	if len(results) != 2 {
		t.Errorf("results = %d, want 2", len(results))
	}
	if len(docs.byID) != 2 {
		t.Errorf("stored %d documents, want 2", len(docs.byID))
	}
}

func TestIngestDirectoryEmptyRoot(t *testing.T) {
	ing := NewIngestor(newMemDocs(), nil)
	if _, _, err := ing.IngestDirectory(context.Background(), "  ", false); !errors.Is(err, common.ErrInvalidInput) {
		t.Errorf("error = %v, want ErrInvalidInput", err)
	}
}
