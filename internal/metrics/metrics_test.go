package metrics

import (
	"testing"

	"github.com/google/uuid"

	"finspread/constants"
	"finspread/internal/entity"
)

func put(b *entity.StatementBundle, stmt constants.StatementType, period, label string, value float64) {
	st := b.StatementFor(stmt)
	if st.Fields == nil {
		st.Fields = map[string]map[string]entity.NormalizedField{}
	}
	if st.Fields[period] == nil {
		st.Fields[period] = map[string]entity.NormalizedField{}
		st.Periods = append(st.Periods, period)
	}
	st.Fields[period][label] = entity.NormalizedField{
		ID:             uuid.New(),
		CanonicalLabel: label,
		Value:          value,
		PeriodKey:      period,
		Statement:      stmt,
		Confidence:     0.99,
	}
}

func TestComputeRatios(t *testing.T) {
	b := &entity.StatementBundle{}
	put(b, constants.StatementIncome, "FY2023", "total_revenue", 1000)
	put(b, constants.StatementIncome, "FY2023", "gross_profit", 400)
	put(b, constants.StatementIncome, "FY2023", "operating_income", 250)
	put(b, constants.StatementIncome, "FY2023", "net_income", 150)
	put(b, constants.StatementIncome, "FY2023", "interest_expense", -50)
	put(b, constants.StatementBalance, "FY2023", "total_assets", 3000)
	put(b, constants.StatementBalance, "FY2023", "total_liabilities", 1800)
	put(b, constants.StatementBalance, "FY2023", "total_equity", 1200)
	put(b, constants.StatementBalance, "FY2023", "total_current_assets", 900)
	put(b, constants.StatementBalance, "FY2023", "total_current_liabilities", 600)
	put(b, constants.StatementBalance, "FY2023", "inventories", 300)

	got := Compute(b)

	want := map[string]float64{
		GrossMargin:      0.4,
		OperatingMargin:  0.25,
		NetMargin:        0.15,
		ReturnOnEquity:   0.125,
		ReturnOnAssets:   0.05,
		CurrentRatio:     1.5,
		QuickRatio:       1.0,
		DebtToEquity:     1.5,
		DebtToAssets:     0.6,
		InterestCoverage: 5.0, // negative interest expense is magnitude
	}
	for metric, w := range want {
		v := got[metric]["FY2023"]
		if v == nil {
			t.Errorf("%s = nil, want %v", metric, w)
			continue
		}
		if *v != w {
			t.Errorf("%s = %v, want %v", metric, *v, w)
		}
	}
}

func TestComputeMissingInputsAreNil(t *testing.T) {
	b := &entity.StatementBundle{}
	put(b, constants.StatementIncome, "FY2023", "total_revenue", 1000)

	got := Compute(b)

	for _, metric := range []string{GrossMargin, ReturnOnEquity, CurrentRatio, DebtToEquity, InterestCoverage} {
		if v := got[metric]["FY2023"]; v != nil {
			t.Errorf("%s = %v, want nil with missing inputs", metric, *v)
		}
	}
}

func TestComputeZeroDenominatorIsNil(t *testing.T) {
	b := &entity.StatementBundle{}
	put(b, constants.StatementIncome, "FY2023", "net_income", 150)
	put(b, constants.StatementBalance, "FY2023", "total_equity", 0)

	got := Compute(b)
	if v := got[ReturnOnEquity]["FY2023"]; v != nil {
		t.Errorf("return_on_equity = %v, want nil on zero equity", *v)
	}
}

func TestComputeGrowth(t *testing.T) {
	b := &entity.StatementBundle{}
	put(b, constants.StatementIncome, "FY2022", "total_revenue", 800)
	put(b, constants.StatementIncome, "FY2023", "total_revenue", 1000)
	put(b, constants.StatementIncome, "FY2022", "net_income", 100)
	put(b, constants.StatementIncome, "FY2023", "net_income", 150)

	got := Compute(b)

	if v := got[RevenueGrowth]["FY2023"]; v == nil || *v != 0.25 {
		t.Errorf("revenue_growth = %v, want 0.25", got[RevenueGrowth]["FY2023"])
	}
	if v := got[NetIncomeGrowth]["FY2023"]; v == nil || *v != 0.5 {
		t.Errorf("net_income_growth = %v, want 0.5", got[NetIncomeGrowth]["FY2023"])
	}
	// No prior period for FY2022.
	if _, ok := got[RevenueGrowth]["FY2022"]; ok {
		t.Error("growth must not be emitted for the earliest period")
	}
}

func TestComputeQuickRatioWithoutInventories(t *testing.T) {
	b := &entity.StatementBundle{}
	put(b, constants.StatementBalance, "FY2023", "total_current_assets", 900)
	put(b, constants.StatementBalance, "FY2023", "total_current_liabilities", 600)

	got := Compute(b)
	if v := got[QuickRatio]["FY2023"]; v == nil || *v != 1.5 {
		t.Errorf("quick_ratio = %v, want 1.5 (missing inventories treated as zero)", got[QuickRatio]["FY2023"])
	}
}

func TestComputeRounding(t *testing.T) {
	b := &entity.StatementBundle{}
	put(b, constants.StatementIncome, "FY2023", "net_income", 1)
	put(b, constants.StatementIncome, "FY2023", "total_revenue", 3)

	got := Compute(b)
	if v := got[NetMargin]["FY2023"]; v == nil || *v != 0.3333 {
		t.Errorf("net_margin = %v, want 0.3333 (rounded to 4 places)", got[NetMargin]["FY2023"])
	}
}
