// Package metrics derives standard financial ratios from a validated
// statement bundle. A metric whose inputs are absent, or whose divisor is
// zero, is nil rather than zero so consumers can tell "not computable"
// from "computed as zero".
package metrics

import (
	"math"

	"finspread/internal/entity"
)

// Metric names as they appear in run output.
const (
	GrossMargin       = "gross_margin"
	EBITDAMargin      = "ebitda_margin"
	OperatingMargin   = "operating_margin"
	NetMargin         = "net_margin"
	ReturnOnEquity    = "return_on_equity"
	ReturnOnAssets    = "return_on_assets"
	CurrentRatio      = "current_ratio"
	QuickRatio        = "quick_ratio"
	DebtToEquity      = "debt_to_equity"
	DebtToAssets      = "debt_to_assets"
	InterestCoverage  = "interest_coverage"
	RevenueGrowth     = "revenue_growth"
	NetIncomeGrowth   = "net_income_growth"
	OperatingCFGrowth = "operating_cf_growth"
)

// Compute calculates all ratios for every period in the bundle. The
// result maps metric name to period to value; nil values mark metrics
// that could not be computed for that period.
func Compute(bundle *entity.StatementBundle) map[string]map[string]*float64 {
	periods := bundle.Periods()
	out := make(map[string]map[string]*float64)
	set := func(metric, period string, v *float64) {
		if out[metric] == nil {
			out[metric] = make(map[string]*float64, len(periods))
		}
		out[metric][period] = round4(v)
	}

	for _, period := range periods {
		is := lookup(&bundle.IncomeStatement, period)
		bs := lookup(&bundle.BalanceSheet, period)
		cf := lookup(&bundle.CashFlowStatement, period)

		set(GrossMargin, period, safeDivide(is("gross_profit"), is("total_revenue")))

		ebitda := is("ebitda")
		if ebitda == nil {
			if op, da := is("operating_income"), cf("depreciation_amortization"); op != nil && da != nil {
				v := *op + math.Abs(*da)
				ebitda = &v
			}
		}
		set(EBITDAMargin, period, safeDivide(ebitda, is("total_revenue")))

		set(OperatingMargin, period, safeDivide(is("operating_income"), is("total_revenue")))
		set(NetMargin, period, safeDivide(is("net_income"), is("total_revenue")))
		set(ReturnOnEquity, period, safeDivide(is("net_income"), bs("total_equity")))
		set(ReturnOnAssets, period, safeDivide(is("net_income"), bs("total_assets")))

		set(CurrentRatio, period, safeDivide(bs("total_current_assets"), bs("total_current_liabilities")))

		// Quick ratio treats missing inventories as zero; missing current
		// assets makes the whole ratio incomputable.
		if ca := bs("total_current_assets"); ca != nil {
			quick := *ca
			if inv := bs("inventories"); inv != nil {
				quick -= *inv
			}
			set(QuickRatio, period, safeDivide(&quick, bs("total_current_liabilities")))
		} else {
			set(QuickRatio, period, nil)
		}

		set(DebtToEquity, period, safeDivide(bs("total_liabilities"), bs("total_equity")))
		set(DebtToAssets, period, safeDivide(bs("total_liabilities"), bs("total_assets")))

		// Interest expense is often reported negative.
		interest := is("interest_expense")
		if interest != nil {
			v := math.Abs(*interest)
			interest = &v
		}
		set(InterestCoverage, period, safeDivide(is("operating_income"), interest))
	}

	// Growth rates need consecutive periods; bundle.Periods() is already
	// in ascending canonical order.
	for i := 1; i < len(periods); i++ {
		curr, prev := periods[i], periods[i-1]
		isCurr, isPrev := lookup(&bundle.IncomeStatement, curr), lookup(&bundle.IncomeStatement, prev)
		cfCurr, cfPrev := lookup(&bundle.CashFlowStatement, curr), lookup(&bundle.CashFlowStatement, prev)

		set(RevenueGrowth, curr, growth(isCurr("total_revenue"), isPrev("total_revenue")))
		set(NetIncomeGrowth, curr, growth(isCurr("net_income"), isPrev("net_income")))
		set(OperatingCFGrowth, curr, growth(cfCurr("operating_cash_flow"), cfPrev("operating_cash_flow")))
	}

	return out
}

func lookup(s *entity.Statement, period string) func(label string) *float64 {
	return func(label string) *float64 {
		v, ok := s.Value(period, label)
		if !ok {
			return nil
		}
		return &v
	}
}

func safeDivide(numerator, denominator *float64) *float64 {
	if numerator == nil || denominator == nil || *denominator == 0 {
		return nil
	}
	v := *numerator / *denominator
	return &v
}

func growth(curr, prev *float64) *float64 {
	if curr == nil || prev == nil {
		return nil
	}
	delta := *curr - *prev
	return safeDivide(&delta, prev)
}

func round4(v *float64) *float64 {
	if v == nil {
		return nil
	}
	r := math.Round(*v*10000) / 10000
	return &r
}
