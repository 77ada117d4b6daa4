package patterns

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
)

// Export serialises t in the same shape it is loaded from, so the output can be
// fed back to Load for a later run.
func Export(t *Table, format string) ([]byte, error) {
	switch strings.ToUpper(format) {
	case constants.PatternsJSON, "":
		return exportJSON(t)
	case constants.PatternsYAML:
		return exportYAML(t)
	default:
		return nil, common.NewAppError(common.CodeInvalidInput, fmt.Sprintf("unknown pattern format %q", format), common.ErrInvalidInput)
	}
}

func exportJSON(t *Table) ([]byte, error) {
	compact, err := t.MarshalJSON()
	if err != nil {
		return nil, err
	}
	var out bytes.Buffer
	if err := json.Indent(&out, compact, "", "  "); err != nil {
		return nil, err
	}
	out.WriteByte('\n')
	return out.Bytes(), nil
}

func exportYAML(t *Table) ([]byte, error) {
	mapping := &yaml.Node{Kind: yaml.MappingNode}
	for _, f := range t.order {
		seq := &yaml.Node{Kind: yaml.SequenceNode}
		for _, p := range t.patterns[f] {
			seq.Content = append(seq.Content, &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: p})
		}
		mapping.Content = append(mapping.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: f},
			seq,
		)
	}

	var out bytes.Buffer
	enc := yaml.NewEncoder(&out)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{mapping}}); err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("yaml encode: %w", err)
	}
	return out.Bytes(), nil
}
