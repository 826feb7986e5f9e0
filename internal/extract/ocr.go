package extract

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

// OCRExtractor shells out to an OCR engine (tesseract by default) and
// parses its TSV word stream into positioned text blocks.
type OCRExtractor struct {
	command string
	runner  Runner
	log     *slog.Logger
}

func NewOCRExtractor(command string, runner Runner, log *slog.Logger) *OCRExtractor {
	if runner == nil {
		runner = NewExecRunner()
	}
	if log == nil {
		log = slog.Default()
	}
	return &OCRExtractor{command: command, runner: runner, log: log}
}

func (o *OCRExtractor) Method() constants.ExtractionMethod { return constants.MethodOCR }

func (o *OCRExtractor) ExtractText(ctx context.Context, doc *entity.Document) (TextResult, error) {
	start := time.Now()

	stdout, _, err := o.runner.Run(ctx, o.command, doc.SourcePath, "stdout", "tsv")
	if err != nil {
		return TextResult{}, fmt.Errorf("%w: ocr command: %v", common.ErrStageUnavailable, err)
	}

	pages, warnings := parseTSV(string(stdout))
	if len(pages) == 0 {
		return TextResult{}, fmt.Errorf("%w: ocr produced no text for %s", common.ErrInvalidInput, doc.Filename)
	}

	o.log.Info("extract.ocr_ok",
		"document_id", doc.ID,
		"pages", len(pages),
		"duration_ms", time.Since(start).Milliseconds())

	return TextResult{
		Pages:    pages,
		Method:   constants.MethodOCR,
		Duration: time.Since(start),
		Warnings: warnings,
	}, nil
}

// parseTSV converts tesseract's TSV word stream into per-page text blocks.
// Words sharing (page, block) merge into one block whose box is the union
// of the word boxes and whose confidence is the word average.
func parseTSV(tsv string) ([]entity.PageUnit, []string) {
	type blockKey struct{ page, block int }
	type blockAcc struct {
		words                  []string
		confSum                float64
		confN                  int
		minX, minY, maxX, maxY float64
	}

	accs := map[blockKey]*blockAcc{}
	var order []blockKey
	var warnings []string

	lines := strings.Split(tsv, "\n")
	for i, line := range lines {
		if i == 0 || strings.TrimSpace(line) == "" {
			continue // header
		}
		cols := strings.Split(line, "\t")
		if len(cols) < 12 {
			continue
		}
		level, _ := strconv.Atoi(cols[0])
		if level != 5 { // word level
			continue
		}
		text := strings.TrimSpace(cols[11])
		if text == "" {
			continue
		}
		page, _ := strconv.Atoi(cols[1])
		block, _ := strconv.Atoi(cols[2])
		left, _ := strconv.ParseFloat(cols[6], 64)
		top, _ := strconv.ParseFloat(cols[7], 64)
		width, _ := strconv.ParseFloat(cols[8], 64)
		height, _ := strconv.ParseFloat(cols[9], 64)
		conf, err := strconv.ParseFloat(cols[10], 64)
		if err != nil || conf < 0 {
			warnings = append(warnings, fmt.Sprintf("page %d: word %q without confidence", page, text))
			conf = 0
		}

		key := blockKey{page, block}
		acc, ok := accs[key]
		if !ok {
			acc = &blockAcc{minX: left, minY: top, maxX: left + width, maxY: top + height}
			accs[key] = acc
			order = append(order, key)
		}
		acc.words = append(acc.words, text)
		acc.confSum += conf
		acc.confN++
		acc.minX = min(acc.minX, left)
		acc.minY = min(acc.minY, top)
		acc.maxX = max(acc.maxX, left+width)
		acc.maxY = max(acc.maxY, top+height)
	}

	pageBlocks := map[int][]entity.TextBlock{}
	var pageOrder []int
	for _, key := range order {
		acc := accs[key]
		if _, seen := pageBlocks[key.page]; !seen {
			pageOrder = append(pageOrder, key.page)
		}
		pageBlocks[key.page] = append(pageBlocks[key.page], entity.TextBlock{
			Text: strings.Join(acc.words, " "),
			Coords: entity.Coordinates{
				Page:   key.page,
				X:      acc.minX,
				Y:      acc.minY,
				Width:  acc.maxX - acc.minX,
				Height: acc.maxY - acc.minY,
			},
			Confidence: acc.confSum / float64(acc.confN) / 100.0,
			Method:     constants.MethodOCR,
		})
	}

	pages := make([]entity.PageUnit, 0, len(pageOrder))
	for _, p := range pageOrder {
		pages = append(pages, entity.PageUnit{
			PageNumber: p,
			Blocks:     pageBlocks[p],
			Scanned:    true,
			Method:     constants.MethodOCR,
		})
	}
	return pages, warnings
}
