package export

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"

	"github.com/joseph-ayodele/clinical-extract/internal/core"
)

// WriteJSON writes an array with one object per row; keys keep column order
// and absent values are null.
func WriteJSON(w io.Writer, res *core.RunResult) error {
	bw := bufio.NewWriter(w)
	keys := make([][]byte, len(res.Columns))
	for i, c := range res.Columns {
		k, err := marshalNoEscape(c)
		if err != nil {
			return err
		}
		keys[i] = k
	}

	_, _ = bw.WriteString("[")
	for r, row := range res.Rows {
		if r > 0 {
			_, _ = bw.WriteString(",")
		}
		_, _ = bw.WriteString("\n  {")
		for i, col := range res.Columns {
			if i > 0 {
				_, _ = bw.WriteString(", ")
			}
			_, _ = bw.Write(keys[i])
			_, _ = bw.WriteString(": ")
			v := row[col]
			if v == nil {
				_, _ = bw.WriteString("null")
				continue
			}
			b, err := marshalNoEscape(*v)
			if err != nil {
				return err
			}
			_, _ = bw.Write(b)
		}
		_, _ = bw.WriteString("}")
	}
	if len(res.Rows) > 0 {
		_, _ = bw.WriteString("\n")
	}
	_, _ = bw.WriteString("]\n")
	return bw.Flush()
}

// marshalNoEscape keeps lab values like "<0.01" readable.
func marshalNoEscape(s string) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
