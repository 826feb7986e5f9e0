// Package validate runs the arithmetic cross-checks over an assembled
// statement bundle and scores the result. Checks are independent: one
// failing never prevents the others from running, so the report always
// reflects the full picture.
package validate

import (
	"fmt"
	"log/slog"
	"math"
	"sort"

	"finspread/internal/common"
	"finspread/internal/entity"
)

// Canonical labels the checks read. These are taxonomy outputs, not raw
// document text.
const (
	labelTotalAssets      = "total_assets"
	labelTotalLiabilities = "total_liabilities"
	labelTotalEquity      = "total_equity"
	labelTotalRevenue     = "total_revenue"
	labelTotalExpenses    = "total_expenses"
	labelNetIncome        = "net_income"
	labelCFNetIncome      = "cf_net_income"
	labelBeginningCash    = "beginning_cash"
	labelNetChangeInCash  = "net_change_in_cash"
	labelEndingCash       = "ending_cash"
)

// Check names as they appear in reports.
const (
	CheckBalanceSheet   = "balance_sheet_equation"
	CheckIncomeStmt     = "income_statement_equation"
	CheckCashFlow       = "cash_flow_rollforward"
	CheckCrossStatement = "cross_statement_net_income"
)

// Validator applies the validation contract to bundles.
type Validator struct {
	cfg common.PipelineConfig
	log *slog.Logger
}

// NewValidator builds a validator from pipeline config.
func NewValidator(cfg common.PipelineConfig, log *slog.Logger) *Validator {
	if log == nil {
		log = slog.Default()
	}
	return &Validator{cfg: cfg, log: log}
}

// Validate runs every check over every period and produces the scored
// report. A bundle with no fields still validates; every check is simply
// skipped and the score reflects only field confidence.
func (v *Validator) Validate(bundle *entity.StatementBundle) *entity.ValidationReport {
	report := &entity.ValidationReport{
		BalanceSheetBalanced:  true,
		IncomeStatementValid:  true,
		CashFlowReconciled:    true,
		CrossStatementMatches: true,
	}

	for _, period := range periodsOf(&bundle.BalanceSheet) {
		report.Checks = append(report.Checks, v.checkBalanceSheet(&bundle.BalanceSheet, period))
	}
	for _, period := range periodsOf(&bundle.IncomeStatement) {
		report.Checks = append(report.Checks, v.checkIncomeStatement(&bundle.IncomeStatement, period))
	}
	for _, period := range periodsOf(&bundle.CashFlowStatement) {
		report.Checks = append(report.Checks, v.checkCashFlow(&bundle.CashFlowStatement, period))
	}
	for _, period := range periodsOf(&bundle.CashFlowStatement) {
		report.Checks = append(report.Checks, v.checkCrossStatement(bundle, period))
	}

	// A check category fails the report when it fails in any period; its
	// penalty is charged once regardless of how many periods fail.
	failed := map[string]bool{}
	for _, c := range report.Checks {
		if !c.Passed && !c.Skipped {
			failed[c.Name] = true
			v.log.Warn("validate.check_failed",
				"check", c.Name, "period", c.Period, "diff", c.Diff, "detail", c.Detail)
		}
	}
	report.BalanceSheetBalanced = !failed[CheckBalanceSheet]
	report.IncomeStatementValid = !failed[CheckIncomeStmt]
	report.CashFlowReconciled = !failed[CheckCashFlow]
	report.CrossStatementMatches = !failed[CheckCrossStatement]

	score := 100.0
	if failed[CheckBalanceSheet] {
		score -= v.cfg.BalanceSheetPenalty
	}
	if failed[CheckIncomeStmt] {
		score -= v.cfg.IncomeStmtPenalty
	}
	if failed[CheckCashFlow] {
		score -= v.cfg.CashFlowPenalty
	}
	if failed[CheckCrossStatement] {
		score -= v.cfg.CrossStmtPenalty
	}
	for _, f := range bundle.AllFields() {
		if f.Confidence < v.cfg.AcceptConfidence {
			score -= v.cfg.LowConfPenalty
			report.FlaggedFieldIDs = append(report.FlaggedFieldIDs, f.ID)
		}
	}
	if score < 0 {
		score = 0
	}
	report.QualityScore = score

	v.log.Info("validate.done",
		"checks", len(report.Checks),
		"failed", len(failed),
		"flagged_fields", len(report.FlaggedFieldIDs),
		"quality_score", report.QualityScore)
	return report
}

// Disposition maps a quality score onto the threshold table consumed by
// the orchestrator.
type Disposition string

const (
	AutoApprove       Disposition = "auto_approve"
	FlagForReview     Disposition = "flag_for_review"
	NeedsManualReview Disposition = "needs_manual_review"
)

// Disposition applies the threshold table to a report's quality score.
func (v *Validator) Disposition(report *entity.ValidationReport) Disposition {
	switch {
	case report.QualityScore >= v.cfg.AutoApproveScore:
		return AutoApprove
	case report.QualityScore >= v.cfg.ReviewScore:
		return FlagForReview
	default:
		return NeedsManualReview
	}
}

func (v *Validator) checkBalanceSheet(bs *entity.Statement, period string) entity.CheckResult {
	res := entity.CheckResult{Name: CheckBalanceSheet, Period: period, Tolerance: v.cfg.BalanceSheetTolerance}
	assets, okA := bs.Value(period, labelTotalAssets)
	liabilities, okL := bs.Value(period, labelTotalLiabilities)
	equity, okE := bs.Value(period, labelTotalEquity)
	if !okA || !okL || !okE {
		res.Skipped = true
		res.Passed = true
		res.Detail = "missing total assets, liabilities, or equity"
		return res
	}
	res.Diff = math.Abs(assets - (liabilities + equity))
	res.Passed = withinTolerance(res.Diff, v.cfg.BalanceSheetTolerance, math.Abs(assets))
	if !res.Passed {
		res.Detail = fmt.Sprintf("assets %.2f != liabilities %.2f + equity %.2f", assets, liabilities, equity)
	}
	return res
}

func (v *Validator) checkIncomeStatement(is *entity.Statement, period string) entity.CheckResult {
	res := entity.CheckResult{Name: CheckIncomeStmt, Period: period, Tolerance: v.cfg.IncomeStmtTolerance}
	revenue, okR := is.Value(period, labelTotalRevenue)
	expenses, okE := is.Value(period, labelTotalExpenses)
	netIncome, okN := is.Value(period, labelNetIncome)
	if !okR || !okE || !okN {
		res.Skipped = true
		res.Passed = true
		res.Detail = "missing revenue, total expenses, or net income"
		return res
	}
	res.Diff = math.Abs((revenue - expenses) - netIncome)
	res.Passed = withinTolerance(res.Diff, v.cfg.IncomeStmtTolerance, math.Abs(revenue))
	if !res.Passed {
		res.Detail = fmt.Sprintf("revenue %.2f - expenses %.2f != net income %.2f", revenue, expenses, netIncome)
	}
	return res
}

func (v *Validator) checkCashFlow(cf *entity.Statement, period string) entity.CheckResult {
	// Roll-forward reconciles exactly: no tolerance on cash.
	res := entity.CheckResult{Name: CheckCashFlow, Period: period, Tolerance: 0}
	beginning, okB := cf.Value(period, labelBeginningCash)
	change, okC := cf.Value(period, labelNetChangeInCash)
	ending, okE := cf.Value(period, labelEndingCash)
	if !okB || !okC || !okE {
		res.Skipped = true
		res.Passed = true
		res.Detail = "missing beginning cash, net change, or ending cash"
		return res
	}
	res.Diff = math.Abs((beginning + change) - ending)
	res.Passed = res.Diff == 0
	if !res.Passed {
		res.Detail = fmt.Sprintf("beginning %.2f + change %.2f != ending %.2f", beginning, change, ending)
	}
	return res
}

func (v *Validator) checkCrossStatement(bundle *entity.StatementBundle, period string) entity.CheckResult {
	res := entity.CheckResult{Name: CheckCrossStatement, Period: period, Tolerance: v.cfg.CrossStmtTolerance}
	isNI, okIS := bundle.IncomeStatement.Value(period, labelNetIncome)
	cfNI, okCF := bundle.CashFlowStatement.Value(period, labelCFNetIncome)
	if !okIS || !okCF {
		res.Skipped = true
		res.Passed = true
		res.Detail = "net income absent from one statement"
		return res
	}
	res.Diff = math.Abs(isNI - cfNI)
	res.Passed = withinTolerance(res.Diff, v.cfg.CrossStmtTolerance, math.Abs(isNI))
	if !res.Passed {
		res.Detail = fmt.Sprintf("income statement net income %.2f != cash flow net income %.2f", isNI, cfNI)
	}
	return res
}

// withinTolerance passes when diff is strictly inside the tolerance band,
// or exactly zero. A diff landing exactly on the band edge fails.
func withinTolerance(diff, tolerance, base float64) bool {
	if diff == 0 {
		return true
	}
	return diff < tolerance*base
}

func periodsOf(s *entity.Statement) []string {
	periods := make([]string, 0, len(s.Fields))
	for p := range s.Fields {
		periods = append(periods, p)
	}
	sort.Strings(periods)
	return periods
}
