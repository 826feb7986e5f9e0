// Package export renders completed bundles as XLSX workbooks: one sheet
// per statement in spread layout, plus validation and metrics sheets.
package export

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/xuri/excelize/v2"

	"finspread/internal/entity"
	"finspread/internal/period"
	"finspread/internal/repository"
)

// Service is a tiny façade over the bundle store that produces XLSX bytes.
type Service struct {
	bundles repository.BundleRepository
	logger  *slog.Logger
}

func NewService(bundles repository.BundleRepository, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{bundles: bundles, logger: logger}
}

// statementSheets maps sheet names onto the bundle's statements in the
// order reviewers expect.
func statementSheets(b *entity.StatementBundle) []struct {
	name string
	st   *entity.Statement
} {
	return []struct {
		name string
		st   *entity.Statement
	}{
		{"Income Statement", &b.IncomeStatement},
		{"Balance Sheet", &b.BalanceSheet},
		{"Cash Flow", &b.CashFlowStatement},
	}
}

// ExportRunXLSX returns an XLSX workbook for a completed run.
func (s *Service) ExportRunXLSX(ctx context.Context, runID uuid.UUID) ([]byte, error) {
	start := time.Now()

	rec, err := s.bundles.GetByRunID(ctx, runID)
	if err != nil {
		return nil, fmt.Errorf("load bundle: %w", err)
	}

	f := excelize.NewFile()
	rows := 0
	for i, sheet := range statementSheets(rec.Bundle) {
		if i == 0 {
			// excelize seeds the workbook with "Sheet1".
			if err := f.SetSheetName("Sheet1", sheet.name); err != nil {
				return nil, err
			}
		} else if _, err := f.NewSheet(sheet.name); err != nil {
			return nil, err
		}
		n, err := writeStatement(f, sheet.name, sheet.st)
		if err != nil {
			return nil, err
		}
		rows += n
	}
	if err := writeValidation(f, rec.Report); err != nil {
		return nil, err
	}
	if err := writeMetrics(f, rec.Metrics); err != nil {
		return nil, err
	}
	if len(rec.Bundle.Unmapped) > 0 {
		if err := writeUnmapped(f, rec.Bundle.Unmapped); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}

	s.logger.Info("export.xlsx.ok",
		"run_id", runID.String(),
		"rows", rows,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return buf.Bytes(), nil
}

// writeStatement lays the statement out as a spread: labels down column
// A, one column per period, ascending.
func writeStatement(f *excelize.File, sheet string, st *entity.Statement) (int, error) {
	periods := sortedPeriods(st)
	labels := sortedLabels(st)

	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(1, 1, "Line Item")
	for i, p := range periods {
		write(i+2, 1, p)
	}

	row := 2
	for _, label := range labels {
		write(1, row, label)
		for i, p := range periods {
			if field, ok := st.Field(p, label); ok {
				write(i+2, row, field.Value)
			}
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 40)
	if len(periods) > 0 {
		last, _ := excelize.ColumnNumberToName(len(periods) + 1)
		_ = f.SetColWidth(sheet, "B", last, 16)
	}
	return len(labels), nil
}

func writeValidation(f *excelize.File, report *entity.ValidationReport) error {
	const sheet = "Validation"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	write(1, 1, "Quality Score")
	write(2, 1, report.QualityScore)

	headers := []string{"Check", "Period", "Result", "Tolerance", "Diff", "Detail"}
	for i, h := range headers {
		write(i+1, 3, h)
	}
	row := 4
	for _, c := range report.Checks {
		result := "pass"
		if c.Skipped {
			result = "skipped"
		} else if !c.Passed {
			result = "fail"
		}
		write(1, row, c.Name)
		write(2, row, c.Period)
		write(3, row, result)
		write(4, row, c.Tolerance)
		write(5, row, c.Diff)
		write(6, row, truncate(c.Detail, 140))
		row++
	}

	_ = f.SetColWidth(sheet, "A", "B", 24)
	_ = f.SetColWidth(sheet, "F", "F", 60)
	return nil
}

func writeMetrics(f *excelize.File, metrics map[string]map[string]*float64) error {
	const sheet = "Metrics"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	names := make([]string, 0, len(metrics))
	for n := range metrics {
		names = append(names, n)
	}
	sort.Strings(names)

	periodSet := map[string]struct{}{}
	for _, byPeriod := range metrics {
		for p := range byPeriod {
			periodSet[p] = struct{}{}
		}
	}
	periods := make([]string, 0, len(periodSet))
	for p := range periodSet {
		periods = append(periods, p)
	}
	sort.Strings(periods)

	write(1, 1, "Metric")
	for i, p := range periods {
		write(i+2, 1, p)
	}
	row := 2
	for _, name := range names {
		write(1, row, name)
		for i, p := range periods {
			if v := metrics[name][p]; v != nil {
				write(i+2, row, *v)
			}
		}
		row++
	}

	_ = f.SetColWidth(sheet, "A", "A", 28)
	return nil
}

func writeUnmapped(f *excelize.File, unmapped []entity.NormalizedField) error {
	const sheet = "Unmapped"
	if _, err := f.NewSheet(sheet); err != nil {
		return err
	}
	write := func(col, row int, v any) {
		cell, _ := excelize.CoordinatesToCellName(col, row)
		_ = f.SetCellValue(sheet, cell, v)
	}

	headers := []string{"Original Label", "Value", "Period", "Confidence", "Page"}
	for i, h := range headers {
		write(i+1, 1, h)
	}
	for i, u := range unmapped {
		write(1, i+2, u.OriginalLabel)
		write(2, i+2, u.Value)
		write(3, i+2, u.PeriodKey)
		write(4, i+2, u.Confidence)
		write(5, i+2, u.Source.Coords.Page)
	}
	_ = f.SetColWidth(sheet, "A", "A", 48)
	return nil
}

// sortedPeriods orders the statement's period columns chronologically,
// quarters before the annual column of the same year. Keys that fail to
// parse sort last, lexically.
func sortedPeriods(st *entity.Statement) []string {
	seen := map[string]struct{}{}
	var out []string
	for p := range st.Fields {
		if _, dup := seen[p]; !dup {
			seen[p] = struct{}{}
			out = append(out, p)
		}
	}
	keys := make(map[string]period.Key, len(out))
	for _, p := range out {
		if k, err := period.Parse(p); err == nil {
			keys[p] = k
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ki, iok := keys[out[i]]
		kj, jok := keys[out[j]]
		switch {
		case iok && jok:
			if ki != kj {
				return ki.Less(kj)
			}
			return out[i] < out[j]
		case iok:
			return true
		case jok:
			return false
		default:
			return out[i] < out[j]
		}
	})
	return out
}

func sortedLabels(st *entity.Statement) []string {
	seen := map[string]struct{}{}
	var out []string
	for _, byLabel := range st.Fields {
		for l := range byLabel {
			if _, dup := seen[l]; !dup {
				seen[l] = struct{}{}
				out = append(out, l)
			}
		}
	}
	sort.Strings(out)
	return out
}

func truncate(s string, n int) string {
	if n <= 0 || len(s) <= n {
		return s
	}
	if n <= 1 {
		return s[:n]
	}
	return s[:n-1] + "…"
}
