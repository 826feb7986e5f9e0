package extract

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

// CommandTableExtractor shells out to a ruled-table detector and decodes
// its JSON report. The command contract: argv = [command, path], stdout =
// array of {page, accuracy, headers, rows}.
type CommandTableExtractor struct {
	command string
	runner  Runner
	log     *slog.Logger
}

func NewCommandTableExtractor(command string, runner Runner, log *slog.Logger) *CommandTableExtractor {
	if runner == nil {
		runner = NewExecRunner()
	}
	if log == nil {
		log = slog.Default()
	}
	return &CommandTableExtractor{command: command, runner: runner, log: log}
}

func (c *CommandTableExtractor) Method() constants.ExtractionMethod { return constants.MethodLattice }

type commandTable struct {
	Page     int        `json:"page"`
	Accuracy float64    `json:"accuracy"`
	Headers  []string   `json:"headers"`
	Rows     [][]string `json:"rows"`
}

func (c *CommandTableExtractor) ExtractTables(ctx context.Context, doc *entity.Document, _ []entity.PageUnit) (TableResult, error) {
	start := time.Now()
	if c.command == "" {
		return TableResult{}, fmt.Errorf("%w: no table command configured", common.ErrStageUnavailable)
	}

	stdout, _, err := c.runner.Run(ctx, c.command, doc.SourcePath)
	if err != nil {
		return TableResult{}, fmt.Errorf("%w: table command: %v", common.ErrStageUnavailable, err)
	}

	var decoded []commandTable
	if err := json.Unmarshal(stdout, &decoded); err != nil {
		return TableResult{}, fmt.Errorf("%w: table command output: %v", common.ErrInvalidInput, err)
	}
	if len(decoded) == 0 {
		return TableResult{}, fmt.Errorf("%w: no ruled tables detected in %s", common.ErrInvalidInput, doc.Filename)
	}

	tables := make([]entity.TableGrid, 0, len(decoded))
	for i, t := range decoded {
		tables = append(tables, entity.TableGrid{
			TableID:  i,
			Headers:  t.Headers,
			Rows:     t.Rows,
			Coords:   entity.Coordinates{Page: t.Page},
			Accuracy: t.Accuracy,
			Method:   constants.MethodLattice,
		})
	}

	c.log.Info("extract.tables_lattice_ok", "document_id", doc.ID, "tables", len(tables))
	return TableResult{Tables: tables, Method: constants.MethodLattice, Duration: time.Since(start)}, nil
}

// StreamTableExtractor recovers column structure from already-extracted
// page text by splitting lines on multi-space runs. It is the whitespace
// fallback for borderless statements; accuracy is scored from column-count
// consistency rather than detection geometry.
type StreamTableExtractor struct {
	log *slog.Logger
}

func NewStreamTableExtractor(log *slog.Logger) *StreamTableExtractor {
	if log == nil {
		log = slog.Default()
	}
	return &StreamTableExtractor{log: log}
}

func (s *StreamTableExtractor) Method() constants.ExtractionMethod { return constants.MethodStream }

var reColumnGap = regexp.MustCompile(`\s{2,}|\t`)

func (s *StreamTableExtractor) ExtractTables(ctx context.Context, doc *entity.Document, pages []entity.PageUnit) (TableResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return TableResult{}, err
	}
	if len(pages) == 0 {
		return TableResult{}, fmt.Errorf("%w: stream detection needs extracted text", common.ErrInvalidInput)
	}

	var tables []entity.TableGrid
	for _, page := range pages {
		grid, ok := streamDetect(page)
		if !ok {
			continue
		}
		grid.TableID = len(tables)
		tables = append(tables, grid)
	}
	if len(tables) == 0 {
		return TableResult{}, fmt.Errorf("%w: no columnar text found in %s", common.ErrInvalidInput, doc.Filename)
	}

	s.log.Info("extract.tables_stream_ok", "document_id", doc.ID, "tables", len(tables))
	return TableResult{Tables: tables, Method: constants.MethodStream, Duration: time.Since(start)}, nil
}

// streamDetect splits a page's text into rows of columns. A page counts
// as a table when at least three lines split into two or more columns.
func streamDetect(page entity.PageUnit) (entity.TableGrid, bool) {
	var rows [][]string
	columnar := 0
	widths := map[int]int{}

	for _, line := range strings.Split(page.FullText(), "\n") {
		line = strings.TrimRight(line, " ")
		if strings.TrimSpace(line) == "" {
			continue
		}
		cells := reColumnGap.Split(line, -1)
		for i := range cells {
			cells[i] = strings.TrimSpace(cells[i])
		}
		rows = append(rows, cells)
		if len(cells) >= 2 {
			columnar++
			widths[len(cells)]++
		}
	}
	if columnar < 3 {
		return entity.TableGrid{}, false
	}

	// Dominant column count over columnar lines approximates accuracy.
	dominant := 0
	for _, n := range widths {
		if n > dominant {
			dominant = n
		}
	}

	return entity.TableGrid{
		Headers:  rows[0],
		Rows:     rows[1:],
		Coords:   entity.Coordinates{Page: page.PageNumber},
		Accuracy: float64(dominant) / float64(columnar),
		Method:   constants.MethodStream,
	}, true
}
