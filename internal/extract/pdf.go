package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"github.com/pdfcpu/pdfcpu/pkg/pdfcpu/model"

	"finspread/constants"
	"finspread/internal/common"
	"finspread/internal/entity"
)

// minNativeChars is the threshold below which a PDF is treated as scanned:
// native extraction reports failure so the caller can fall back to OCR.
const minNativeChars = 64

// PDFTextExtractor pulls embedded text out of digitally-born PDFs. It has
// no lens on scanned pages; those surface as a recoverable failure.
type PDFTextExtractor struct {
	cacheDir string
	conf     *model.Configuration
	log      *slog.Logger
}

func NewPDFTextExtractor(cacheDir string, log *slog.Logger) *PDFTextExtractor {
	if log == nil {
		log = slog.Default()
	}
	conf := model.NewDefaultConfiguration()
	conf.ValidationMode = model.ValidationRelaxed
	return &PDFTextExtractor{cacheDir: cacheDir, conf: conf, log: log}
}

func (p *PDFTextExtractor) Method() constants.ExtractionMethod { return constants.MethodNativeText }

func (p *PDFTextExtractor) ExtractText(ctx context.Context, doc *entity.Document) (TextResult, error) {
	start := time.Now()
	if err := ctx.Err(); err != nil {
		return TextResult{}, err
	}

	pageCount, err := api.PageCountFile(doc.SourcePath)
	if err != nil {
		return TextResult{}, fmt.Errorf("%w: pdf page count: %v", common.ErrInvalidInput, err)
	}

	outDir, err := os.MkdirTemp(p.cacheDir, "pdftext-*")
	if err != nil {
		return TextResult{}, fmt.Errorf("%w: temp dir: %v", common.ErrStageUnavailable, err)
	}
	defer os.RemoveAll(outDir)

	if err := api.ExtractContentFile(doc.SourcePath, outDir, nil, p.conf); err != nil {
		return TextResult{}, fmt.Errorf("%w: pdf content extraction: %v", common.ErrInvalidInput, err)
	}

	entries, err := os.ReadDir(outDir)
	if err != nil {
		return TextResult{}, fmt.Errorf("%w: read content dir: %v", common.ErrStageUnavailable, err)
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	var pages []entity.PageUnit
	var warnings []string
	total := 0
	for i, name := range names {
		raw, err := os.ReadFile(filepath.Join(outDir, name))
		if err != nil {
			warnings = append(warnings, fmt.Sprintf("page %d: %v", i+1, err))
			continue
		}
		text := decodeContentText(string(raw))
		total += len(text)
		if text == "" {
			continue
		}
		pages = append(pages, entity.PageUnit{
			PageNumber: i + 1,
			Blocks: []entity.TextBlock{{
				Text:       text,
				Coords:     entity.Coordinates{Page: i + 1},
				Confidence: 1.0,
				Method:     constants.MethodNativeText,
			}},
			Method: constants.MethodNativeText,
		})
	}

	if total < minNativeChars {
		return TextResult{}, fmt.Errorf("%w: native text sparse (%d chars over %d pages), likely scanned",
			common.ErrInvalidInput, total, pageCount)
	}

	p.log.Info("extract.pdf_native_ok",
		"document_id", doc.ID,
		"pages", len(pages),
		"chars", total,
		"duration_ms", time.Since(start).Milliseconds())

	return TextResult{
		Pages:    pages,
		Method:   constants.MethodNativeText,
		Duration: time.Since(start),
		Warnings: warnings,
	}, nil
}

// decodeContentText walks a PDF content stream and collects the literal
// strings fed to the text-showing operators (Tj, TJ, '). Kerning numbers
// inside TJ arrays fall away; text-line operators (Td, TD, T*) insert
// newlines.
func decodeContentText(content string) string {
	var sb strings.Builder
	i := 0
	for i < len(content) {
		switch content[i] {
		case '(':
			str, next := readPDFString(content, i)
			sb.WriteString(str)
			sb.WriteByte(' ')
			i = next
		case 'T':
			if i+1 < len(content) && (content[i+1] == 'd' || content[i+1] == 'D' || content[i+1] == '*') {
				sb.WriteByte('\n')
			}
			i++
		default:
			i++
		}
	}
	return foldWhitespace(sb.String())
}

// readPDFString reads a parenthesized PDF literal string starting at
// offset open, handling escapes and nested parens. Returns the decoded
// string and the offset just past the closing paren.
func readPDFString(s string, open int) (string, int) {
	var sb strings.Builder
	depth := 0
	i := open
	for i < len(s) {
		c := s[i]
		switch c {
		case '\\':
			if i+1 < len(s) {
				switch s[i+1] {
				case 'n':
					sb.WriteByte('\n')
				case 't':
					sb.WriteByte('\t')
				case '(', ')', '\\':
					sb.WriteByte(s[i+1])
				}
				i += 2
				continue
			}
			i++
		case '(':
			depth++
			if depth > 1 {
				sb.WriteByte(c)
			}
			i++
		case ')':
			depth--
			if depth == 0 {
				return sb.String(), i + 1
			}
			sb.WriteByte(c)
			i++
		default:
			sb.WriteByte(c)
			i++
		}
	}
	return sb.String(), i
}

// foldWhitespace collapses space runs within lines and drops blank lines,
// preserving the line breaks the Td/T* operators introduced.
func foldWhitespace(s string) string {
	lines := strings.Split(s, "\n")
	out := make([]string, 0, len(lines))
	for _, ln := range lines {
		ln = strings.Join(strings.Fields(ln), " ")
		if ln != "" {
			out = append(out, ln)
		}
	}
	return strings.Join(out, "\n")
}
