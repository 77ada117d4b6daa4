package patterns

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
)

// SourceKind tells where a pattern table came from.
type SourceKind int

const (
	SourceDefault SourceKind = iota // built-in table
	SourceText                      // user-edited buffer
	SourceFile                      // uploaded or on-disk file
)

func (k SourceKind) String() string {
	switch k {
	case SourceDefault:
		return "default"
	case SourceText:
		return "text"
	case SourceFile:
		return "file"
	default:
		return fmt.Sprintf("source(%d)", int(k))
	}
}

// Source is one of: the built-in default, user-supplied text, or an uploaded file.
type Source struct {
	Kind   SourceKind
	Name   string // file name for SourceFile, used to pick the format
	Format string // constants.PatternsJSON | constants.PatternsYAML; "" = infer
	Data   []byte
}

func DefaultSource() Source { return Source{Kind: SourceDefault} }

func TextSource(text, format string) Source {
	return Source{Kind: SourceText, Format: format, Data: []byte(text)}
}

func FileSource(name string, data []byte) Source {
	return Source{Kind: SourceFile, Name: name, Data: data}
}

func (s Source) format() string {
	if s.Format != "" {
		return strings.ToUpper(s.Format)
	}
	if s.Name != "" {
		return constants.MapExtToPatternFormat(filepath.Ext(s.Name))
	}
	return constants.PatternsJSON
}

// Load builds a Table from src. Any source that is not a mapping of
// string -> non-empty sequence of strings fails with common.ErrInvalidPatternFormat.
func Load(src Source) (*Table, error) {
	if src.Kind == SourceDefault {
		return Default(), nil
	}
	return Parse(src.Data, src.format())
}

// Parse decodes data in the given format (constants.PatternsJSON or PatternsYAML).
func Parse(data []byte, format string) (*Table, error) {
	switch strings.ToUpper(format) {
	case constants.PatternsYAML:
		return parseYAML(data)
	case constants.PatternsJSON, "":
		return parseJSON(data)
	default:
		return nil, common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("unknown pattern format %q", format), common.ErrInvalidInput)
	}
}

// LoadFile reads a pattern table from disk; the extension picks JSON or YAML.
func LoadFile(path string) (*Table, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read patterns %q: %w", path, err)
	}
	return Load(FileSource(filepath.Base(path), data))
}

// LoadDefaultOrFile loads path when it exists and falls back to the built-in
// table when it does not. An existing but malformed file is an error.
func LoadDefaultOrFile(path string, logger *slog.Logger) (*Table, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if path == "" {
		return Default(), nil
	}
	t, err := LoadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		logger.Debug("patterns file not found, using built-in table", "path", path)
		return Default(), nil
	}
	if err != nil {
		return nil, err
	}
	logger.Info("patterns loaded", "path", path, "fields", t.Len(), "patterns", t.PatternCount())
	return t, nil
}

func parseJSON(data []byte) (*Table, error) {
	var doc any
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, common.InvalidPatternFormatError("not valid JSON: %v", err)
	}
	if err := validateShape(doc); err != nil {
		return nil, common.InvalidPatternFormatError("expected an object of field -> list of patterns: %v", err)
	}

	// Second pass with the token stream to keep the source field order.
	dec := json.NewDecoder(bytes.NewReader(data))
	if _, err := dec.Token(); err != nil {
		return nil, common.InvalidPatternFormatError("read object: %v", err)
	}
	t := NewTable()
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return nil, common.InvalidPatternFormatError("read field name: %v", err)
		}
		field, _ := tok.(string)
		var pats []string
		if err := dec.Decode(&pats); err != nil {
			return nil, common.InvalidPatternFormatError("field %q: %v", field, err)
		}
		if t.Has(field) {
			return nil, common.InvalidPatternFormatError("duplicate field %q", field)
		}
		t.Set(field, pats)
	}
	if _, err := dec.Token(); err != nil && !errors.Is(err, io.EOF) {
		return nil, common.InvalidPatternFormatError("close object: %v", err)
	}
	return t, nil
}

func parseYAML(data []byte) (*Table, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, common.InvalidPatternFormatError("not valid YAML: %v", err)
	}
	if root.Kind != yaml.DocumentNode || len(root.Content) == 0 {
		return nil, common.InvalidPatternFormatError("empty YAML document")
	}

	// Run the same schema as JSON sources so both formats accept the same shapes.
	var doc any
	if err := root.Content[0].Decode(&doc); err != nil {
		return nil, common.InvalidPatternFormatError("decode YAML: %v", err)
	}
	asJSON, err := json.Marshal(doc)
	if err != nil {
		return nil, common.InvalidPatternFormatError("field names must be strings: %v", err)
	}
	var generic any
	if err := json.Unmarshal(asJSON, &generic); err != nil {
		return nil, common.InvalidPatternFormatError("decode YAML: %v", err)
	}
	if err := validateShape(generic); err != nil {
		return nil, common.InvalidPatternFormatError("expected a mapping of field -> list of patterns: %v", err)
	}

	mapping := root.Content[0]
	t := NewTable()
	for i := 0; i+1 < len(mapping.Content); i += 2 {
		key, val := mapping.Content[i], mapping.Content[i+1]
		var pats []string
		if err := val.Decode(&pats); err != nil {
			return nil, common.InvalidPatternFormatError("field %q: %v", key.Value, err)
		}
		if t.Has(key.Value) {
			return nil, common.InvalidPatternFormatError("duplicate field %q", key.Value)
		}
		t.Set(key.Value, pats)
	}
	return t, nil
}
