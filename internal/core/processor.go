package core

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core/fields"
	"github.com/joseph-ayodele/clinical-extract/internal/core/normalize"
	"github.com/joseph-ayodele/clinical-extract/internal/core/textextract"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

// Document is one input file of a batch.
type Document struct {
	Name    string
	Content []byte
}

// TextExtractor is Stage 1: PDF bytes -> text.
type TextExtractor interface {
	Extract(ctx context.Context, pdf []byte) textextract.Result
}

// Options controls a single run.
type Options struct {
	RunID          uuid.UUID // generated when zero
	Normalize      bool
	FileColumn     bool
	FileColumnName string
	Progress       func(done, total int)
}

// DefaultOptions normalizes text and prepends a "file" column.
func DefaultOptions() Options {
	return Options{Normalize: true, FileColumn: true, FileColumnName: constants.DefaultFileColumn}
}

// DocumentOutcome summarizes how one document went.
type DocumentOutcome struct {
	Name       string `json:"name"`
	Method     string `json:"method"`
	Chars      int    `json:"chars"`
	Pages      int    `json:"pages"`
	Unreadable bool   `json:"unreadable"`
	Matched    int    `json:"matched"`
}

// RunResult is the table produced by a run: one row per document, in input order.
type RunResult struct {
	RunID      uuid.UUID
	Columns    []string
	FileColumn string // "" when disabled
	Rows       []fields.Row
	Documents  []DocumentOutcome
	Patterns   *patterns.Table
	StartedAt  time.Time
	FinishedAt time.Time
}

// Processor coordinates text extraction then pattern matching.
type Processor struct {
	logger     *slog.Logger
	text       TextExtractor
	fieldsOpts fields.Options
}

func NewProcessor(logger *slog.Logger, text TextExtractor, fieldsOpts fields.Options) *Processor {
	if logger == nil {
		logger = slog.Default()
	}
	if fieldsOpts.Logger == nil {
		fieldsOpts.Logger = logger
	}
	return &Processor{logger: logger, text: text, fieldsOpts: fieldsOpts}
}

// Run processes docs one after another with a table that is read-only for the
// whole run. Unreadable documents produce an all-absent row and do not stop
// the batch. Cancellation is checked between documents; the rows finished so
// far are returned together with the context error.
func (p *Processor) Run(ctx context.Context, table *patterns.Table, docs []Document, opts Options) (*RunResult, error) {
	if table == nil {
		return nil, common.WrapError(common.ErrInvalidInput, "pattern table is required")
	}
	fileCol := ""
	if opts.FileColumn {
		fileCol = opts.FileColumnName
		if fileCol == "" {
			fileCol = constants.DefaultFileColumn
		}
		if table.Has(fileCol) {
			return nil, common.WrapError(common.ErrInvalidInput,
				fmt.Sprintf("file column %q collides with a pattern field", fileCol))
		}
	}
	runID := opts.RunID
	if runID == uuid.Nil {
		runID = uuid.New()
	}
	logger := p.logger.With("run_id", runID.String())

	ex := fields.Compile(table, p.fieldsOpts)
	cols := make([]string, 0, table.Len()+1)
	if fileCol != "" {
		cols = append(cols, fileCol)
	}
	cols = append(cols, ex.Fields()...)

	res := &RunResult{
		RunID:      runID,
		Columns:    cols,
		FileColumn: fileCol,
		Rows:       make([]fields.Row, 0, len(docs)),
		Documents:  make([]DocumentOutcome, 0, len(docs)),
		Patterns:   table,
		StartedAt:  time.Now().UTC(),
	}
	logger.Info("run started", "documents", len(docs), "fields", table.Len(),
		"normalize", opts.Normalize, "file_column", fileCol, "malformed_patterns", len(ex.Malformed()))

	for i, doc := range docs {
		if err := ctx.Err(); err != nil {
			res.FinishedAt = time.Now().UTC()
			logger.Warn("run cancelled", "done", i, "total", len(docs), "error", err)
			return res, err
		}

		tr := p.text.Extract(ctx, doc.Content)
		text := tr.Text
		if opts.Normalize {
			text = normalize.Normalize(text)
		}
		row := ex.Extract(text)

		matched := 0
		for _, v := range row {
			if v != nil {
				matched++
			}
		}
		if fileCol != "" {
			name := doc.Name
			row[fileCol] = &name
		}
		res.Rows = append(res.Rows, row)
		res.Documents = append(res.Documents, DocumentOutcome{
			Name:       doc.Name,
			Method:     tr.Method,
			Chars:      len([]rune(tr.Text)),
			Pages:      tr.Pages,
			Unreadable: tr.Unreadable,
			Matched:    matched,
		})

		if tr.Unreadable {
			logger.Warn("document unreadable; row left empty", "file", doc.Name, "attempts", len(tr.Attempts))
		} else {
			logger.Debug("document processed", "file", doc.Name, "method", tr.Method,
				"pages", tr.Pages, "matched", matched, "duration_ms", tr.Duration.Milliseconds())
		}
		if opts.Progress != nil {
			opts.Progress(i+1, len(docs))
		}
	}

	res.FinishedAt = time.Now().UTC()
	logger.Info("run finished", "documents", len(docs),
		"duration_ms", res.FinishedAt.Sub(res.StartedAt).Milliseconds())
	return res, nil
}

// Value returns row i's value for column, nil when absent.
func (r *RunResult) Value(i int, column string) *string {
	if i < 0 || i >= len(r.Rows) {
		return nil
	}
	return r.Rows[i][column]
}
