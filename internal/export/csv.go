package export

import (
	"encoding/csv"
	"io"

	"github.com/joseph-ayodele/clinical-extract/internal/core"
)

// WriteCSV writes the header (res.Columns) and one record per row. Absent
// values become empty cells. UTF-8, no BOM.
func WriteCSV(w io.Writer, res *core.RunResult) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(res.Columns); err != nil {
		return err
	}
	record := make([]string, len(res.Columns))
	for _, row := range res.Rows {
		for i, col := range res.Columns {
			record[i] = ""
			if v := row[col]; v != nil {
				record[i] = *v
			}
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}
