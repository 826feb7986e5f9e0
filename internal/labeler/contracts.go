// Package labeler assigns meaning to extracted content: which statement a
// table belongs to, which cell is a label, which is a value, and for which
// period. Labelers propose; they never normalize values or invent numbers.
package labeler

import (
	"context"

	"finspread/constants"
	"finspread/internal/entity"
)

// LabelRequest carries everything one labeling attempt may look at.
type LabelRequest struct {
	Document *entity.Document
	Pages    []entity.PageUnit
	Tables   []entity.TableGrid

	CurrencyHint string
}

// LabelResult is one labeling attempt's proposal. Every candidate field
// must carry provenance back to its table cell or text block.
type LabelResult struct {
	DocumentType constants.StatementType // dominant statement, unknown if mixed
	Fields       []entity.CandidateField
	Confidence   float64 // labeler self-assessment over the whole proposal
	Warnings     []string
}

// Labeler is the labeling-stage collaborator. Implementations identify
// fields; numeric normalization stays downstream.
type Labeler interface {
	Name() string
	Label(ctx context.Context, req LabelRequest) (LabelResult, error)
}
