package extract

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"
	"time"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

// CSVExtractor reads delimited files as a single native grid.
type CSVExtractor struct {
	log *slog.Logger
}

func NewCSVExtractor(log *slog.Logger) *CSVExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &CSVExtractor{log: log}
}

func (c *CSVExtractor) Method() constants.ExtractionMethod { return constants.MethodGrid }

func (c *CSVExtractor) ExtractTables(ctx context.Context, doc *entity.Document, _ []entity.PageUnit) (TableResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return TableResult{}, err
	}

	f, err := os.Open(doc.SourcePath)
	if err != nil {
		return TableResult{}, fmt.Errorf("%w: open csv: %v", common.ErrInvalidInput, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1 // financial exports are ragged more often than not
	rows, err := r.ReadAll()
	if err != nil {
		return TableResult{}, fmt.Errorf("%w: parse csv: %v", common.ErrInvalidInput, err)
	}
	rows = trimEmptyRows(rows)
	if len(rows) == 0 {
		return TableResult{}, fmt.Errorf("%w: csv %s is empty", common.ErrInvalidInput, doc.Filename)
	}

	c.log.Info("extract.csv_ok", "document_id", doc.ID, "rows", len(rows))
	return TableResult{
		Tables: []entity.TableGrid{{
			TableID:  0,
			Headers:  rows[0],
			Rows:     rows[1:],
			Coords:   entity.Coordinates{Page: 1},
			Accuracy: 1.0,
			Method:   constants.MethodGrid,
		}},
		Method:   constants.MethodGrid,
		Duration: time.Since(start),
	}, nil
}
