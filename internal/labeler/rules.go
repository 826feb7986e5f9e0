package labeler

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
	"finspread/internal/numeric"
)

// statementMarkers score a table toward one statement type. Counted per
// distinct marker present, not per occurrence.
var statementMarkers = map[constants.StatementType][]string{
	constants.StatementIncome: {
		"revenue", "net sales", "cost of", "gross profit", "operating expenses",
		"operating income", "net income", "earnings per share", "income tax",
	},
	constants.StatementBalance: {
		"total assets", "total liabilities", "stockholders equity", "shareholders equity",
		"accounts receivable", "accounts payable", "current assets", "current liabilities",
		"retained earnings",
	},
	constants.StatementCashFlow: {
		"operating activities", "investing activities", "financing activities",
		"cash at beginning", "cash at end", "net change in cash", "depreciation",
	},
}

// RuleLabeler is the deterministic primary labeler. It treats the first
// column of each grid as row labels, the header row as period columns,
// and keyword density as the statement classifier. It needs no network
// and its confidence reflects how cleanly the grid parsed.
type RuleLabeler struct {
	log *slog.Logger
}

func NewRuleLabeler(log *slog.Logger) *RuleLabeler {
	if log == nil {
		log = slog.Default()
	}
	return &RuleLabeler{log: log}
}

func (r *RuleLabeler) Name() string { return "rules" }

func (r *RuleLabeler) Label(ctx context.Context, req LabelRequest) (LabelResult, error) {
	if err := ctx.Err(); err != nil {
		return LabelResult{}, err
	}
	if len(req.Tables) == 0 {
		return LabelResult{}, fmt.Errorf("%w: rule labeling needs table grids", common.ErrInvalidInput)
	}

	var result LabelResult
	counts := map[constants.StatementType]int{}
	confSum := 0.0

	for _, table := range req.Tables {
		stmt := classifyGrid(table)
		counts[stmt]++

		fields, warnings := gridFields(req.Document, table, stmt)
		result.Fields = append(result.Fields, fields...)
		result.Warnings = append(result.Warnings, warnings...)

		conf := table.Accuracy
		if stmt == constants.StatementUnknown {
			conf *= 0.7
		}
		confSum += conf
	}

	if len(result.Fields) == 0 {
		return LabelResult{}, fmt.Errorf("%w: no labeled fields in %d tables", common.ErrInvalidInput, len(req.Tables))
	}

	result.DocumentType = dominantStatement(counts)
	result.Confidence = confSum / float64(len(req.Tables))

	r.log.Info("labeler.rules_ok",
		"document_id", req.Document.ID,
		"tables", len(req.Tables),
		"fields", len(result.Fields),
		"document_type", result.DocumentType,
		"confidence", result.Confidence)
	return result, nil
}

// classifyGrid scores the grid's full text against each statement's
// marker list and picks the winner. Ties and empty scores are unknown.
func classifyGrid(table entity.TableGrid) constants.StatementType {
	var sb strings.Builder
	for _, h := range table.Headers {
		sb.WriteString(strings.ToLower(h))
		sb.WriteByte('\n')
	}
	for _, row := range table.Rows {
		for _, cell := range row {
			sb.WriteString(strings.ToLower(cell))
			sb.WriteByte('\n')
		}
	}
	text := sb.String()

	best, bestScore, tied := constants.StatementUnknown, 0, false
	for _, stmt := range []constants.StatementType{
		constants.StatementIncome, constants.StatementBalance, constants.StatementCashFlow,
	} {
		score := 0
		for _, marker := range statementMarkers[stmt] {
			if strings.Contains(text, marker) {
				score++
			}
		}
		switch {
		case score > bestScore:
			best, bestScore, tied = stmt, score, false
		case score == bestScore && score > 0:
			tied = true
		}
	}
	if tied || bestScore == 0 {
		return constants.StatementUnknown
	}
	return best
}

// gridFields expands a grid into candidate fields: one per (row, period
// column) pair with a numeric-looking value.
func gridFields(doc *entity.Document, table entity.TableGrid, stmt constants.StatementType) ([]entity.CandidateField, []string) {
	if len(table.Headers) < 2 {
		return nil, []string{fmt.Sprintf("table %d: no period columns", table.TableID)}
	}

	var fields []entity.CandidateField
	var warnings []string
	periods := table.Headers[1:]

	for _, row := range table.Rows {
		if len(row) == 0 || strings.TrimSpace(row[0]) == "" {
			continue
		}
		label := strings.TrimSpace(row[0])
		for col, rawPeriod := range periods {
			if col+1 >= len(row) {
				break
			}
			value := strings.TrimSpace(row[col+1])
			if value == "" || !numeric.IsNumeric(value) {
				continue
			}
			conf := table.Accuracy
			if stmt == constants.StatementUnknown {
				conf *= 0.85
			}
			fields = append(fields, entity.CandidateField{
				RawLabel:      label,
				RawValue:      value,
				RawPeriod:     strings.TrimSpace(rawPeriod),
				StatementHint: stmt,
				Source: entity.SourceRef{
					DocumentID: doc.ID,
					Coords:     table.Coords,
				},
				Confidence: conf,
			})
		}
	}
	if len(fields) == 0 {
		warnings = append(warnings, fmt.Sprintf("table %d: no numeric cells", table.TableID))
	}
	return fields, warnings
}

func dominantStatement(counts map[constants.StatementType]int) constants.StatementType {
	best, bestN := constants.StatementUnknown, 0
	total := 0
	for stmt, n := range counts {
		if stmt == constants.StatementUnknown {
			continue
		}
		total += n
		if n > bestN {
			best, bestN = stmt, n
		}
	}
	// Mixed filings (10-K style) classify as unknown at document level;
	// per-table hints still flow through the candidate fields.
	if total == 0 || bestN*2 <= total {
		return constants.StatementUnknown
	}
	return best
}
