package ingest

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"finspread/internal/common"
	"finspread/internal/entity"
)

// DocumentStore hands back a registered document's original bytes.
type DocumentStore interface {
	GetBytes(ctx context.Context, doc *entity.Document) ([]byte, error)
}

// FSStore reads documents from the path recorded at ingestion and
// verifies the content hash still matches, so a swapped or truncated
// file can never masquerade as the registered document.
type FSStore struct{}

func NewFSStore() FSStore { return FSStore{} }

func (FSStore) GetBytes(_ context.Context, doc *entity.Document) ([]byte, error) {
	raw, err := os.ReadFile(doc.SourcePath)
	if err != nil {
		return nil, fmt.Errorf("read document %s: %w", doc.ID, err)
	}
	sum := sha256.Sum256(raw)
	if got := hex.EncodeToString(sum[:]); got != doc.ContentHash {
		return nil, fmt.Errorf("%w: content hash mismatch for %s", common.ErrInvalidInput, doc.ID)
	}
	return raw, nil
}
