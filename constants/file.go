package constants

import "strings"

// FileType is the declared type of an uploaded document.
type FileType string

const (
	FileTypePDF   FileType = "PDF"
	FileTypeDOCX  FileType = "DOCX"
	FileTypeXLSX  FileType = "XLSX"
	FileTypeCSV   FileType = "CSV"
	FileTypeImage FileType = "IMAGE"
)

// AllowedExtensions holds the default allowed file extensions for ingestion.
var AllowedExtensions = map[string]FileType{
	"pdf":  FileTypePDF,
	"docx": FileTypeDOCX,
	"xlsx": FileTypeXLSX,
	"xls":  FileTypeXLSX,
	"csv":  FileTypeCSV,
	"jpg":  FileTypeImage,
	"jpeg": FileTypeImage,
	"png":  FileTypeImage,
	"tiff": FileTypeImage,
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFileType resolves an extension to its declared FileType, or "".
func MapExtToFileType(ext string) FileType {
	return AllowedExtensions[NormalizeExt(ext)]
}

// ExtractionMethod tags how a page's content was obtained.
type ExtractionMethod string

const (
	MethodNativeText ExtractionMethod = "native-text"
	MethodOCR        ExtractionMethod = "ocr"
	MethodVision     ExtractionMethod = "vision-api"
	MethodLattice    ExtractionMethod = "table-lattice"
	MethodStream     ExtractionMethod = "table-stream"
	MethodGrid       ExtractionMethod = "native-grid"
)

// StatementType separates the three core statements.
type StatementType string

const (
	StatementIncome   StatementType = "income_statement"
	StatementBalance  StatementType = "balance_sheet"
	StatementCashFlow StatementType = "cash_flow_statement"
	StatementUnknown  StatementType = "unknown"
)
