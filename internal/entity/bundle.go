package entity

import (
	"sort"

	"github.com/google/uuid"

	"finspread/constants"
)

// Statement holds normalized fields for one statement type, keyed by
// canonical period then canonical label. Labels are unique per period:
// assembly resolves duplicates last-wins with an ambiguity flag.
type Statement struct {
	Periods []string                              `json:"periods"`
	Fields  map[string]map[string]NormalizedField `json:"fields"` // period -> label -> field
}

// Value returns the field value for (period, label) if present.
func (s *Statement) Value(period, label string) (float64, bool) {
	if s == nil || s.Fields == nil {
		return 0, false
	}
	f, ok := s.Fields[period][label]
	if !ok {
		return 0, false
	}
	return f.Value, true
}

// Field returns the normalized field for (period, label) if present.
func (s *Statement) Field(period, label string) (NormalizedField, bool) {
	if s == nil || s.Fields == nil {
		return NormalizedField{}, false
	}
	f, ok := s.Fields[period][label]
	return f, ok
}

// StatementBundle groups normalized fields into the three core statements.
// Immutable once its run reaches the completed status.
type StatementBundle struct {
	DocumentID uuid.UUID `json:"document_id"`
	RunID      uuid.UUID `json:"run_id"`

	IncomeStatement   Statement `json:"income_statement"`
	BalanceSheet      Statement `json:"balance_sheet"`
	CashFlowStatement Statement `json:"cash_flow_statement"`

	// Unmapped holds fields whose labels did not resolve to the taxonomy;
	// preserved verbatim, never dropped.
	Unmapped []NormalizedField `json:"unmapped,omitempty"`

	// AmbiguityFlags records duplicate-label and unresolved-period events
	// surfaced during assembly.
	AmbiguityFlags []string `json:"ambiguity_flags,omitempty"`
}

// StatementFor returns the statement matching t, or nil.
func (b *StatementBundle) StatementFor(t constants.StatementType) *Statement {
	switch t {
	case constants.StatementIncome:
		return &b.IncomeStatement
	case constants.StatementBalance:
		return &b.BalanceSheet
	case constants.StatementCashFlow:
		return &b.CashFlowStatement
	}
	return nil
}

// AllFields re-extracts every normalized field in the bundle, including
// unmapped ones, in deterministic order.
func (b *StatementBundle) AllFields() []NormalizedField {
	var out []NormalizedField
	for _, st := range []*Statement{&b.IncomeStatement, &b.BalanceSheet, &b.CashFlowStatement} {
		periods := make([]string, 0, len(st.Fields))
		for p := range st.Fields {
			periods = append(periods, p)
		}
		sort.Strings(periods)
		for _, p := range periods {
			labels := make([]string, 0, len(st.Fields[p]))
			for l := range st.Fields[p] {
				labels = append(labels, l)
			}
			sort.Strings(labels)
			for _, l := range labels {
				out = append(out, st.Fields[p][l])
			}
		}
	}
	out = append(out, b.Unmapped...)
	return out
}

// Periods returns the sorted union of periods across all three statements.
func (b *StatementBundle) Periods() []string {
	seen := map[string]struct{}{}
	for _, st := range []*Statement{&b.IncomeStatement, &b.BalanceSheet, &b.CashFlowStatement} {
		for p := range st.Fields {
			seen[p] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for p := range seen {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// CheckResult is one arithmetic check's outcome.
type CheckResult struct {
	Name      string  `json:"name"`
	Period    string  `json:"period"`
	Passed    bool    `json:"passed"`
	Skipped   bool    `json:"skipped,omitempty"`
	Tolerance float64 `json:"tolerance"`
	Diff      float64 `json:"diff"`
	Detail    string  `json:"detail,omitempty"`
}

// ValidationReport is the per-bundle result of cross-statement validation.
type ValidationReport struct {
	BalanceSheetBalanced  bool          `json:"balance_sheet_balanced"`
	IncomeStatementValid  bool          `json:"income_statement_valid"`
	CashFlowReconciled    bool          `json:"cash_flow_reconciled"`
	CrossStatementMatches bool          `json:"cross_statement_consistent"`
	Checks                []CheckResult `json:"checks"`
	FlaggedFieldIDs       []uuid.UUID   `json:"flagged_field_ids,omitempty"`
	QualityScore          float64       `json:"quality_score"`
}
