// Package extract turns document bytes into page units: positioned text
// blocks and candidate table grids. Each extractor announces its method
// name so the orchestrator can walk the configured fallback chain.
package extract

import (
	"context"
	"time"

	"finspread/constants"
	"finspread/internal/entity"
)

// TextResult is the output of one text-extraction attempt.
type TextResult struct {
	Pages    []entity.PageUnit
	Method   constants.ExtractionMethod
	Language string
	Duration time.Duration
	Warnings []string
}

// TableResult is the output of one table-extraction attempt.
type TableResult struct {
	Tables   []entity.TableGrid
	Method   constants.ExtractionMethod
	Duration time.Duration
	Warnings []string
}

// TextExtractor produces page text from a document on disk.
type TextExtractor interface {
	Method() constants.ExtractionMethod
	ExtractText(ctx context.Context, doc *entity.Document) (TextResult, error)
}

// TableExtractor produces candidate table grids. Implementations may read
// the document again or work from already-extracted pages.
type TableExtractor interface {
	Method() constants.ExtractionMethod
	ExtractTables(ctx context.Context, doc *entity.Document, pages []entity.PageUnit) (TableResult, error)
}
