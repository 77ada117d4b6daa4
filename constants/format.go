package constants

import (
	"strings"
)

type ExportFormat string

const (
	ExportCSV  ExportFormat = "csv"
	ExportJSON ExportFormat = "json"
	ExportXLSX ExportFormat = "xlsx"
)

var allExportFormats = []ExportFormat{
	ExportCSV,
	ExportJSON,
	ExportXLSX,
}

func ExportFormatsAsStringSlice() []string {
	result := make([]string, len(allExportFormats))
	for i, f := range allExportFormats {
		result[i] = string(f)
	}
	return result
}

// CanonicalizeExportFormat maps user input (query params, CLI flags) to a known format.
// Empty input defaults to CSV.
func CanonicalizeExportFormat(input string) (ExportFormat, bool) {
	normalized := strings.ToLower(strings.TrimSpace(input))
	if normalized == "" {
		return ExportCSV, true
	}

	synonyms := map[string]ExportFormat{
		"text/csv":         ExportCSV,
		"excel":            ExportXLSX,
		"xls":              ExportXLSX,
		"application/json": ExportJSON,
	}
	if f, ok := synonyms[normalized]; ok {
		return f, true
	}

	for _, f := range allExportFormats {
		if normalized == string(f) {
			return f, true
		}
	}
	return "", false
}

// ContentType returns the MIME type used when serving an export.
func (f ExportFormat) ContentType() string {
	switch f {
	case ExportJSON:
		return "application/json"
	case ExportXLSX:
		return "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	default:
		return "text/csv; charset=utf-8"
	}
}

// ExportBaseName is the file name (sans extension) offered for result downloads.
const ExportBaseName = "resultados_clinicos"
