package constants

import "strings"

// Document formats accepted by the extraction pipeline.
const (
	PDF = "PDF"
)

// Pattern table source formats.
const (
	PatternsJSON = "JSON"
	PatternsYAML = "YAML"
)

// AllowedExtensions holds the file extensions picked up by directory ingestion.
var AllowedExtensions = map[string]struct{}{
	"pdf": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToFormat returns the document format for an extension, or "" when unsupported.
func MapExtToFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	default:
		return ""
	}
}

// MapExtToPatternFormat returns the pattern table format for an extension.
// Anything that is not YAML is treated as JSON, like patterns_es.json.
func MapExtToPatternFormat(ext string) string {
	switch NormalizeExt(ext) {
	case "yaml", "yml":
		return PatternsYAML
	default:
		return PatternsJSON
	}
}

// DefaultFileColumn is the name of the optional source-file column.
const DefaultFileColumn = "file"
