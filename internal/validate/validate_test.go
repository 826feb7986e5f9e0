package validate

import (
	"testing"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

func testConfig() common.PipelineConfig {
	return common.PipelineConfig{
		BalanceSheetTolerance: 0.01,
		IncomeStmtTolerance:   0.01,
		CrossStmtTolerance:    0.005,
		BalanceSheetPenalty:   30,
		IncomeStmtPenalty:     20,
		CashFlowPenalty:       20,
		CrossStmtPenalty:      15,
		AutoApproveScore:      90,
		ReviewScore:           70,
		LowConfPenalty:        1,
		AcceptConfidence:      0.95,
		SoftReviewFloor:       0.80,
		HardReviewFloor:       0.50,
	}
}

func field(label string, value float64, confidence float64, stmt constants.StatementType) entity.NormalizedField {
	return entity.NormalizedField{
		ID:             uuid.New(),
		CanonicalLabel: label,
		Value:          value,
		PeriodKey:      "FY2023",
		Statement:      stmt,
		Confidence:     confidence,
		Source:         entity.SourceRef{DocumentID: uuid.New()},
	}
}

func bundleWith(fields ...entity.NormalizedField) *entity.StatementBundle {
	b := &entity.StatementBundle{DocumentID: uuid.New(), RunID: uuid.New()}
	for _, f := range fields {
		st := b.StatementFor(f.Statement)
		if st.Fields == nil {
			st.Fields = map[string]map[string]entity.NormalizedField{}
		}
		if st.Fields[f.PeriodKey] == nil {
			st.Fields[f.PeriodKey] = map[string]entity.NormalizedField{}
			st.Periods = append(st.Periods, f.PeriodKey)
		}
		st.Fields[f.PeriodKey][f.CanonicalLabel] = f
	}
	return b
}

func TestBalanceSheetImbalanceFlagged(t *testing.T) {
	// assets 1,000,000 vs liabilities 600,000 + equity 390,000: the
	// 10,000 gap sits exactly on the 1% band edge and must fail.
	b := bundleWith(
		field("total_assets", 1_000_000, 0.99, constants.StatementBalance),
		field("total_liabilities", 600_000, 0.99, constants.StatementBalance),
		field("total_equity", 390_000, 0.99, constants.StatementBalance),
	)
	report := NewValidator(testConfig(), nil).Validate(b)

	if report.BalanceSheetBalanced {
		t.Error("balance sheet reported balanced, want imbalance")
	}
	if report.QualityScore != 70 {
		t.Errorf("quality score = %v, want 70 (100 - 30)", report.QualityScore)
	}
}

func TestBalanceSheetWithinTolerance(t *testing.T) {
	b := bundleWith(
		field("total_assets", 1_000_000, 0.99, constants.StatementBalance),
		field("total_liabilities", 600_000, 0.99, constants.StatementBalance),
		field("total_equity", 395_000, 0.99, constants.StatementBalance),
	)
	report := NewValidator(testConfig(), nil).Validate(b)

	if !report.BalanceSheetBalanced {
		t.Error("balance sheet reported imbalanced, want balanced (diff 5,000 < 1%)")
	}
	if report.QualityScore != 100 {
		t.Errorf("quality score = %v, want 100", report.QualityScore)
	}
}

func TestCashFlowExactReconciliation(t *testing.T) {
	b := bundleWith(
		field("beginning_cash", 100, 0.99, constants.StatementCashFlow),
		field("net_change_in_cash", 50, 0.99, constants.StatementCashFlow),
		field("ending_cash", 150, 0.99, constants.StatementCashFlow),
	)
	report := NewValidator(testConfig(), nil).Validate(b)
	if !report.CashFlowReconciled {
		t.Error("100 + 50 == 150 must reconcile")
	}

	b = bundleWith(
		field("beginning_cash", 100, 0.99, constants.StatementCashFlow),
		field("net_change_in_cash", 50, 0.99, constants.StatementCashFlow),
		field("ending_cash", 151, 0.99, constants.StatementCashFlow),
	)
	report = NewValidator(testConfig(), nil).Validate(b)
	if report.CashFlowReconciled {
		t.Error("off-by-one cash roll-forward must fail: no tolerance on cash")
	}
	if report.QualityScore != 80 {
		t.Errorf("quality score = %v, want 80 (100 - 20)", report.QualityScore)
	}
}

func TestIncomeStatementSkipsWhenIncomplete(t *testing.T) {
	// Revenue and net income present, total expenses absent: the check
	// must skip, not fail.
	b := bundleWith(
		field("total_revenue", 500_000, 0.99, constants.StatementIncome),
		field("net_income", 50_000, 0.99, constants.StatementIncome),
	)
	report := NewValidator(testConfig(), nil).Validate(b)

	if !report.IncomeStatementValid {
		t.Error("incomplete income statement must skip, not fail")
	}
	for _, c := range report.Checks {
		if c.Name == CheckIncomeStmt && !c.Skipped {
			t.Errorf("income statement check not marked skipped: %+v", c)
		}
	}
	if report.QualityScore != 100 {
		t.Errorf("quality score = %v, want 100", report.QualityScore)
	}
}

func TestIncomeStatementEquation(t *testing.T) {
	b := bundleWith(
		field("total_revenue", 500_000, 0.99, constants.StatementIncome),
		field("total_expenses", 440_000, 0.99, constants.StatementIncome),
		field("net_income", 60_000, 0.99, constants.StatementIncome),
	)
	report := NewValidator(testConfig(), nil).Validate(b)
	if !report.IncomeStatementValid {
		t.Error("500k - 440k == 60k must pass")
	}

	b = bundleWith(
		field("total_revenue", 500_000, 0.99, constants.StatementIncome),
		field("total_expenses", 440_000, 0.99, constants.StatementIncome),
		field("net_income", 70_000, 0.99, constants.StatementIncome),
	)
	report = NewValidator(testConfig(), nil).Validate(b)
	if report.IncomeStatementValid {
		t.Error("10k gap on 500k revenue exceeds 1%, must fail")
	}
	if report.QualityScore != 80 {
		t.Errorf("quality score = %v, want 80 (100 - 20)", report.QualityScore)
	}
}

func TestCrossStatementNetIncome(t *testing.T) {
	b := bundleWith(
		field("net_income", 100_000, 0.99, constants.StatementIncome),
		field("cf_net_income", 100_400, 0.99, constants.StatementCashFlow),
	)
	report := NewValidator(testConfig(), nil).Validate(b)
	if !report.CrossStatementMatches {
		t.Error("400 gap on 100k is within 0.5%, must pass")
	}

	b = bundleWith(
		field("net_income", 100_000, 0.99, constants.StatementIncome),
		field("cf_net_income", 101_000, 0.99, constants.StatementCashFlow),
	)
	report = NewValidator(testConfig(), nil).Validate(b)
	if report.CrossStatementMatches {
		t.Error("1,000 gap on 100k exceeds 0.5%, must fail")
	}
	if report.QualityScore != 85 {
		t.Errorf("quality score = %v, want 85 (100 - 15)", report.QualityScore)
	}
}

func TestLowConfidenceFieldPenalties(t *testing.T) {
	b := bundleWith(
		field("total_revenue", 500_000, 0.92, constants.StatementIncome),
		field("net_income", 60_000, 0.97, constants.StatementIncome),
	)
	report := NewValidator(testConfig(), nil).Validate(b)

	if report.QualityScore != 99 {
		t.Errorf("quality score = %v, want 99 (one field below 0.95)", report.QualityScore)
	}
	if len(report.FlaggedFieldIDs) != 1 {
		t.Errorf("flagged fields = %d, want 1", len(report.FlaggedFieldIDs))
	}
}

func TestQualityScoreFloorsAtZero(t *testing.T) {
	var fields []entity.NormalizedField
	// Fail every check and pile on low-confidence fields.
	fields = append(fields,
		field("total_assets", 1_000_000, 0.5, constants.StatementBalance),
		field("total_liabilities", 100_000, 0.5, constants.StatementBalance),
		field("total_equity", 100_000, 0.5, constants.StatementBalance),
		field("total_revenue", 500_000, 0.5, constants.StatementIncome),
		field("total_expenses", 100_000, 0.5, constants.StatementIncome),
		field("net_income", 10_000, 0.5, constants.StatementIncome),
		field("cf_net_income", 90_000, 0.5, constants.StatementCashFlow),
		field("beginning_cash", 100, 0.5, constants.StatementCashFlow),
		field("net_change_in_cash", 50, 0.5, constants.StatementCashFlow),
		field("ending_cash", 500, 0.5, constants.StatementCashFlow),
	)
	for i := 0; i < 30; i++ {
		fields = append(fields, field("sga_expense", float64(i), 0.3, constants.StatementIncome))
	}
	// Duplicate labels collapse in the map; spread them across periods.
	for i := range fields[10:] {
		fields[10+i].PeriodKey = "FY" + string(rune('A'+i))
	}
	report := NewValidator(testConfig(), nil).Validate(bundleWith(fields...))

	if report.QualityScore != 0 {
		t.Errorf("quality score = %v, want floor at 0", report.QualityScore)
	}
}

func TestDisposition(t *testing.T) {
	v := NewValidator(testConfig(), nil)
	cases := []struct {
		score float64
		want  Disposition
	}{
		{100, AutoApprove},
		{90, AutoApprove},
		{89.9, FlagForReview},
		{70, FlagForReview},
		{69.9, NeedsManualReview},
		{0, NeedsManualReview},
	}
	for _, tc := range cases {
		if got := v.Disposition(&entity.ValidationReport{QualityScore: tc.score}); got != tc.want {
			t.Errorf("Disposition(%v) = %v, want %v", tc.score, got, tc.want)
		}
	}
}

func TestEmptyBundleValidates(t *testing.T) {
	report := NewValidator(testConfig(), nil).Validate(&entity.StatementBundle{})
	if report.QualityScore != 100 {
		t.Errorf("empty bundle score = %v, want 100", report.QualityScore)
	}
	if len(report.Checks) != 0 {
		t.Errorf("empty bundle produced %d checks, want 0", len(report.Checks))
	}
}
