package entity

import (
	"time"

	"github.com/google/uuid"

	"finspread/constants"
)

// Document is the immutable handle to an uploaded document's original bytes.
// Created at upload; never mutated afterwards.
type Document struct {
	ID          uuid.UUID          `json:"id"`
	Filename    string             `json:"filename"`
	FileType    constants.FileType `json:"file_type"`
	SizeBytes   int64              `json:"size_bytes"`
	ContentHash string             `json:"content_hash"` // sha-256 hex, used for duplicate detection
	Language    string             `json:"language,omitempty"`
	SourcePath  string             `json:"source_path,omitempty"`
	UploadedAt  time.Time          `json:"uploaded_at"`
}

// Coordinates locate an extracted artifact on its source page.
type Coordinates struct {
	Page   int     `json:"page"`
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"w"`
	Height float64 `json:"h"`
}

// TextBlock is one block of extracted page text with its bounding box.
type TextBlock struct {
	Text       string                     `json:"text"`
	Coords     Coordinates                `json:"coords"`
	Confidence float64                    `json:"confidence"`
	Method     constants.ExtractionMethod `json:"method"`
}

// TableGrid is a candidate table as a grid of raw cell strings.
type TableGrid struct {
	TableID  int                        `json:"table_id"`
	Headers  []string                   `json:"headers"`
	Rows     [][]string                 `json:"rows"`
	Coords   Coordinates                `json:"coords"`
	Accuracy float64                    `json:"accuracy"`
	Method   constants.ExtractionMethod `json:"method"`
}

// PageUnit is one page's extracted text blocks and/or table grids.
// Owned by the pipeline run, discarded after output assembly.
type PageUnit struct {
	PageNumber int                        `json:"page_number"`
	Blocks     []TextBlock                `json:"blocks,omitempty"`
	Tables     []TableGrid                `json:"tables,omitempty"`
	Scanned    bool                       `json:"scanned"`
	Method     constants.ExtractionMethod `json:"method"`
}

// FullText concatenates all block text on the page.
func (p PageUnit) FullText() string {
	out := ""
	for i, b := range p.Blocks {
		if i > 0 {
			out += "\n"
		}
		out += b.Text
	}
	return out
}
