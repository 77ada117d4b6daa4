package export

import (
	"bytes"
	"fmt"
	"io"
	"log/slog"
	"time"
	"unicode/utf8"

	"github.com/xuri/excelize/v2"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
)

// Service turns run results into downloadable files.
type Service struct {
	logger *slog.Logger
}

func NewService(logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger}
}

// FileName is the download name for a format, e.g. resultados_clinicos.csv.
func FileName(format constants.ExportFormat) string {
	return constants.ExportBaseName + "." + string(format)
}

// Write encodes res in format to w.
func (s *Service) Write(w io.Writer, res *core.RunResult, format constants.ExportFormat) error {
	start := time.Now()
	var err error
	switch format {
	case constants.ExportCSV:
		err = WriteCSV(w, res)
	case constants.ExportJSON:
		err = WriteJSON(w, res)
	case constants.ExportXLSX:
		var b []byte
		if b, err = XLSX(res); err == nil {
			_, err = w.Write(b)
		}
	default:
		err = fmt.Errorf("unsupported export format %q", format)
	}
	if err != nil {
		s.logger.Error("export failed", "run_id", res.RunID.String(), "format", string(format), "error", err)
		return err
	}
	s.logger.Info("export."+string(format)+".ok",
		"run_id", res.RunID.String(),
		"rows", len(res.Rows),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Bytes is Write into a buffer.
func (s *Service) Bytes(res *core.RunResult, format constants.ExportFormat) ([]byte, error) {
	var buf bytes.Buffer
	if err := s.Write(&buf, res, format); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

const sheet = "Results"

// XLSX returns a single-sheet workbook with a header row and one row per
// document. Absent values are left as empty cells.
func XLSX(res *core.RunResult) ([]byte, error) {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()

	if err := f.SetSheetName("Sheet1", sheet); err != nil {
		return nil, err
	}
	activeIndex, _ := f.GetSheetIndex(sheet)
	f.SetActiveSheet(activeIndex)

	widths := make([]int, len(res.Columns))
	for i, h := range res.Columns {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheet, cell, h)
		widths[i] = utf8.RuneCountInString(h)
	}
	if len(res.Columns) > 0 {
		last, _ := excelize.CoordinatesToCellName(len(res.Columns), 1)
		if style, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}}); err == nil {
			_ = f.SetCellStyle(sheet, "A1", last, style)
		}
	}

	for r, row := range res.Rows {
		for c, col := range res.Columns {
			v := row[col]
			if v == nil {
				continue
			}
			cell, _ := excelize.CoordinatesToCellName(c+1, r+2)
			_ = f.SetCellValue(sheet, cell, *v)
			if n := utf8.RuneCountInString(*v); n > widths[c] {
				widths[c] = n
			}
		}
	}

	// Widen columns to fit, within reason
	for i, w := range widths {
		name, _ := excelize.ColumnNumberToName(i + 1)
		_ = f.SetColWidth(sheet, name, name, float64(min(max(w+2, 8), 60)))
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("xlsx write: %w", err)
	}
	return buf.Bytes(), nil
}
