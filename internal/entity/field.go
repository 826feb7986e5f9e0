package entity

import (
	"github.com/google/uuid"

	"finspread/constants"
)

// SourceRef is the provenance attribution every normalized field must carry.
// A field with a zero DocumentID has no provenance and must be rejected.
type SourceRef struct {
	DocumentID uuid.UUID   `json:"document_id"`
	Coords     Coordinates `json:"coords"`
}

// Valid reports whether the attribution points at a real document.
func (s SourceRef) Valid() bool {
	return s.DocumentID != uuid.Nil
}

// CandidateField is a single labeled value prior to normalization,
// produced by the labeling stage.
type CandidateField struct {
	RawLabel      string                  `json:"raw_label"`
	RawValue      string                  `json:"raw_value"`
	ProposedLabel string                  `json:"proposed_label,omitempty"`
	RawPeriod     string                  `json:"raw_period,omitempty"`
	RawCurrency   string                  `json:"raw_currency,omitempty"`
	Unit          string                  `json:"unit,omitempty"`
	StatementHint constants.StatementType `json:"statement_hint,omitempty"`
	Source        SourceRef               `json:"source"`
	Confidence    float64                 `json:"confidence"`
}

// Routing is the confidence engine's decision for one field.
type Routing string

const (
	RoutingAccepted   Routing = "accepted"
	RoutingReviewSoft Routing = "review_required_soft"
	RoutingReviewHard Routing = "review_required_hard"
	RoutingRejected   Routing = "rejected"
)

// Blocking reports whether this routing blocks bundle auto-approval.
func (r Routing) Blocking() bool {
	return r == RoutingReviewHard || r == RoutingRejected
}

// NormalizedField is a standardized, provenance-attributed field ready for
// statement assembly.
type NormalizedField struct {
	ID             uuid.UUID               `json:"id"`
	CanonicalLabel string                  `json:"canonical_label"`
	OriginalLabel  string                  `json:"original_label"`
	Value          float64                 `json:"value"`
	PeriodKey      string                  `json:"period_key"`
	Currency       string                  `json:"currency"`
	Statement      constants.StatementType `json:"statement"`
	Confidence     float64                 `json:"confidence"`
	Unmapped       bool                    `json:"unmapped,omitempty"`
	Routing        Routing                 `json:"routing,omitempty"`
	Source         SourceRef               `json:"source"`
}
