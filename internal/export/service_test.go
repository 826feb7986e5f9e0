package export

import (
	"bytes"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
	"finspread/internal/repository"
)

type memBundles struct{ recs map[uuid.UUID]*repository.BundleRecord }

func (m *memBundles) Save(_ context.Context, rec *repository.BundleRecord) error {
	m.recs[rec.RunID] = rec
	return nil
}

func (m *memBundles) GetByRunID(_ context.Context, runID uuid.UUID) (*repository.BundleRecord, error) {
	rec, ok := m.recs[runID]
	if !ok {
		return nil, common.ErrNotFound
	}
	return rec, nil
}

func field(label string, value float64, stmt constants.StatementType) entity.NormalizedField {
	return entity.NormalizedField{
		ID:             uuid.New(),
		CanonicalLabel: label,
		Value:          value,
		PeriodKey:      "FY2023",
		Statement:      stmt,
		Confidence:     0.99,
		Source:         entity.SourceRef{DocumentID: uuid.New()},
	}
}

func fixtureRecord() *repository.BundleRecord {
	runID := uuid.New()
	docID := uuid.New()
	margin := 0.2
	return &repository.BundleRecord{
		RunID:      runID,
		DocumentID: docID,
		Bundle: &entity.StatementBundle{
			DocumentID: docID,
			RunID:      runID,
			IncomeStatement: entity.Statement{
				Periods: []string{"FY2023"},
				Fields: map[string]map[string]entity.NormalizedField{
					"FY2023": {
						"total_revenue": field("total_revenue", 500, constants.StatementIncome),
						"net_income":    field("net_income", 100, constants.StatementIncome),
					},
				},
			},
			BalanceSheet: entity.Statement{
				Periods: []string{"FY2023"},
				Fields: map[string]map[string]entity.NormalizedField{
					"FY2023": {
						"total_assets": field("total_assets", 1000, constants.StatementBalance),
					},
				},
			},
			Unmapped: []entity.NormalizedField{
				{
					ID:            uuid.New(),
					OriginalLabel: "Adjusted pro-forma EBITDA",
					Value:         42,
					PeriodKey:     "FY2023",
					Unmapped:      true,
					Confidence:    0.7,
					Source:        entity.SourceRef{DocumentID: docID},
				},
			},
		},
		Report: &entity.ValidationReport{
			QualityScore: 85,
			Checks: []entity.CheckResult{
				{Name: "balance_sheet_equation", Period: "FY2023", Passed: true, Tolerance: 0.01},
				{Name: "cash_flow_reconciliation", Period: "FY2023", Skipped: true},
			},
		},
		Metrics: map[string]map[string]*float64{
			"net_margin": {"FY2023": &margin},
		},
	}
}

func TestExportRunXLSX(t *testing.T) {
	bundles := &memBundles{recs: map[uuid.UUID]*repository.BundleRecord{}}
	rec := fixtureRecord()
	if err := bundles.Save(context.Background(), rec); err != nil {
		t.Fatalf("save: %v", err)
	}

	svc := NewService(bundles, nil)
	raw, err := svc.ExportRunXLSX(context.Background(), rec.RunID)
	if err != nil {
		t.Fatalf("ExportRunXLSX: %v", err)
	}

	wb, err := excelize.OpenReader(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("reopen workbook: %v", err)
	}
	defer wb.Close()

	want := []string{"Income Statement", "Balance Sheet", "Cash Flow", "Validation", "Metrics", "Unmapped"}
	got := wb.GetSheetList()
	for _, name := range want {
		found := false
		for _, g := range got {
			if g == name {
				found = true
				break
			}
		}
		if !found {
			t.Errorf("sheet %q missing from %v", name, got)
		}
	}

	if v, _ := wb.GetCellValue("Income Statement", "B1"); v != "FY2023" {
		t.Errorf("period header = %q", v)
	}
	if v, _ := wb.GetCellValue("Income Statement", "A2"); v != "net_income" {
		t.Errorf("first label = %q, want net_income (sorted)", v)
	}
	if v, _ := wb.GetCellValue("Income Statement", "B2"); v != "100" {
		t.Errorf("net_income value = %q", v)
	}
	if v, _ := wb.GetCellValue("Balance Sheet", "B2"); v != "1000" {
		t.Errorf("total_assets value = %q", v)
	}
	if v, _ := wb.GetCellValue("Validation", "B1"); v != "85" {
		t.Errorf("quality score = %q", v)
	}
	if v, _ := wb.GetCellValue("Validation", "C5"); v != "skipped" {
		t.Errorf("skipped check cell = %q", v)
	}
	if v, _ := wb.GetCellValue("Metrics", "A2"); v != "net_margin" {
		t.Errorf("metric name = %q", v)
	}
	if v, _ := wb.GetCellValue("Metrics", "B2"); v != "0.2" {
		t.Errorf("metric value = %q", v)
	}
	if v, _ := wb.GetCellValue("Unmapped", "A2"); v != "Adjusted pro-forma EBITDA" {
		t.Errorf("unmapped label = %q", v)
	}
}

func TestExportRunXLSXNotFound(t *testing.T) {
	svc := NewService(&memBundles{recs: map[uuid.UUID]*repository.BundleRecord{}}, nil)
	if _, err := svc.ExportRunXLSX(context.Background(), uuid.New()); err == nil {
		t.Error("export of unknown run succeeded")
	}
}
