package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/core/fields"
	"github.com/joseph-ayodele/clinical-extract/internal/entity"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

type RunRepository interface {
	Start(ctx context.Context, run *entity.Run) error
	MarkRunning(ctx context.Context, id uuid.UUID) error
	SaveResult(ctx context.Context, res *core.RunResult) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Run, error)
	List(ctx context.Context) ([]*entity.Run, error)
	Rows(ctx context.Context, id uuid.UUID) ([]entity.RunRow, error)
	Result(ctx context.Context, id uuid.UUID) (*core.RunResult, error)
}

type runRepo struct {
	db  *DB
	log *slog.Logger
}

func NewRunRepository(db *DB, log *slog.Logger) RunRepository {
	if log == nil {
		log = slog.Default()
	}
	return &runRepo{db: db, log: log}
}

var runColumns = []string{
	"id", "status", "started_at", "finished_at", "error_message",
	"options", "patterns_json", "columns_json", "document_count",
}

var rowColumns = []string{
	"run_id", "position", "file_name", "method", "chars", "pages", "unreadable", "matched", "values_json",
}

func (r *runRepo) Start(ctx context.Context, run *entity.Run) error {
	if run.ID == uuid.Nil {
		run.ID = uuid.New()
	}
	if run.Status == "" {
		run.Status = constants.RunStatusRunning
	}
	if run.StartedAt.IsZero() {
		run.StartedAt = time.Now().UTC()
	}
	opts, err := json.Marshal(run.Options)
	if err != nil {
		return err
	}
	cols, err := json.Marshal(nonNil(run.Columns))
	if err != nil {
		return err
	}
	pats := run.Patterns
	if len(pats) == 0 {
		pats = json.RawMessage("{}")
	}

	q, args := r.db.builder().Insert("runs").
		Columns("id", "status", "started_at", "options", "patterns_json", "columns_json", "document_count").
		Values(run.ID.String(), string(run.Status), formatTime(run.StartedAt), string(opts), string(pats), string(cols), run.DocumentCount).
		Query()
	if err := r.db.drv.Exec(ctx, q, args, nil); err != nil {
		r.log.Error("run start failed", "run_id", run.ID, "err", err)
		return common.WrapError(common.ErrDatabase, err.Error())
	}
	r.log.Info("run started", "run_id", run.ID, "status", run.Status, "documents", run.DocumentCount)
	return nil
}

func (r *runRepo) MarkRunning(ctx context.Context, id uuid.UUID) error {
	q, args := r.db.builder().Update("runs").
		Set("status", string(constants.RunStatusRunning)).
		Where(entsql.EQ("id", id.String())).
		Query()
	return r.execOne(ctx, r.db.drv, q, args, id)
}

// SaveResult stores every row of res and marks the run DONE in one transaction.
// insertBatchRows keeps each INSERT under SQLite's bound-parameter limit
// (32766) at len(rowColumns) parameters per row.
const insertBatchRows = 1000

func (r *runRepo) SaveResult(ctx context.Context, res *core.RunResult) error {
	cols, err := json.Marshal(nonNil(res.Columns))
	if err != nil {
		return err
	}

	tx, err := r.db.drv.Tx(ctx)
	if err != nil {
		return common.WrapError(common.ErrDatabase, err.Error())
	}
	fail := func(err error) error {
		if rbErr := tx.Rollback(); rbErr != nil {
			r.log.Error("rollback failed", "run_id", res.RunID, "err", rbErr)
		}
		r.log.Error("save run result failed", "run_id", res.RunID, "err", err)
		return err
	}

	finished := res.FinishedAt
	if finished.IsZero() {
		finished = time.Now().UTC()
	}
	q, args := r.db.builder().Update("runs").
		Set("status", string(constants.RunStatusDone)).
		Set("finished_at", formatTime(finished)).
		Set("columns_json", string(cols)).
		Set("document_count", len(res.Rows)).
		Where(entsql.EQ("id", res.RunID.String())).
		Query()
	if err := r.execOne(ctx, tx, q, args, res.RunID); err != nil {
		return fail(err)
	}

	for start := 0; start < len(res.Rows); start += insertBatchRows {
		end := min(start+insertBatchRows, len(res.Rows))
		ins := r.db.builder().Insert("run_rows").Columns(rowColumns...)
		for i := start; i < end; i++ {
			values, err := json.Marshal(res.Rows[i])
			if err != nil {
				return fail(err)
			}
			var doc core.DocumentOutcome
			if i < len(res.Documents) {
				doc = res.Documents[i]
			}
			ins.Values(res.RunID.String(), i, doc.Name, doc.Method, doc.Chars, doc.Pages, doc.Unreadable, doc.Matched, string(values))
		}
		q, args = ins.Query()
		if err := tx.Exec(ctx, q, args, nil); err != nil {
			return fail(common.WrapError(common.ErrDatabase, err.Error()))
		}
	}

	if err := tx.Commit(); err != nil {
		return common.WrapError(common.ErrDatabase, err.Error())
	}
	r.log.Info("run result saved", "run_id", res.RunID, "rows", len(res.Rows))
	return nil
}

func (r *runRepo) Fail(ctx context.Context, id uuid.UUID, message string) error {
	q, args := r.db.builder().Update("runs").
		Set("status", string(constants.RunStatusFailed)).
		Set("error_message", message).
		Set("finished_at", formatTime(time.Now().UTC())).
		Where(entsql.EQ("id", id.String())).
		Query()
	if err := r.execOne(ctx, r.db.drv, q, args, id); err != nil {
		return err
	}
	r.log.Warn("run failed", "run_id", id, "error", message)
	return nil
}

func (r *runRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Run, error) {
	q, args := r.db.builder().Select(runColumns...).
		From(entsql.Table("runs")).
		Where(entsql.EQ("id", id.String())).
		Query()
	runs, err := r.queryRuns(ctx, q, args)
	if err != nil {
		return nil, err
	}
	if len(runs) == 0 {
		return nil, fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	return runs[0], nil
}

// List returns the session's runs, newest first.
func (r *runRepo) List(ctx context.Context) ([]*entity.Run, error) {
	q, args := r.db.builder().Select(runColumns...).
		From(entsql.Table("runs")).
		OrderBy(entsql.Desc("started_at")).
		Query()
	return r.queryRuns(ctx, q, args)
}

func (r *runRepo) Rows(ctx context.Context, id uuid.UUID) ([]entity.RunRow, error) {
	q, args := r.db.builder().Select(rowColumns...).
		From(entsql.Table("run_rows")).
		Where(entsql.EQ("run_id", id.String())).
		OrderBy("position").
		Query()

	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, common.WrapError(common.ErrDatabase, err.Error())
	}
	defer rows.Close()

	var out []entity.RunRow
	for rows.Next() {
		var (
			runID, values string
			row           entity.RunRow
		)
		if err := rows.Scan(&runID, &row.Position, &row.FileName, &row.Method, &row.Chars, &row.Pages,
			&row.Unreadable, &row.Matched, &values); err != nil {
			return nil, err
		}
		row.RunID, _ = uuid.Parse(runID)
		if err := json.Unmarshal([]byte(values), &row.Values); err != nil {
			return nil, fmt.Errorf("decode row %d: %w", row.Position, err)
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// Result rebuilds the in-memory result of a finished run for export.
func (r *runRepo) Result(ctx context.Context, id uuid.UUID) (*core.RunResult, error) {
	run, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != constants.RunStatusDone {
		return nil, common.WrapError(common.ErrInvalidInput, fmt.Sprintf("run %s is %s", id, run.Status))
	}
	rows, err := r.Rows(ctx, id)
	if err != nil {
		return nil, err
	}
	table, err := patterns.Parse(run.Patterns, constants.PatternsJSON)
	if err != nil {
		return nil, err
	}

	res := &core.RunResult{
		RunID:     run.ID,
		Columns:   run.Columns,
		Rows:      make([]fields.Row, 0, len(rows)),
		Documents: make([]core.DocumentOutcome, 0, len(rows)),
		Patterns:  table,
		StartedAt: run.StartedAt,
	}
	if run.Options.FileColumn {
		res.FileColumn = run.Options.FileColumnName
	}
	if run.FinishedAt != nil {
		res.FinishedAt = *run.FinishedAt
	}
	for _, row := range rows {
		values := fields.Row(row.Values)
		// keep the one-key-per-column shape even if a value was stored as null
		for _, c := range run.Columns {
			if _, ok := values[c]; !ok {
				values[c] = nil
			}
		}
		res.Rows = append(res.Rows, values)
		res.Documents = append(res.Documents, core.DocumentOutcome{
			Name:       row.FileName,
			Method:     row.Method,
			Chars:      row.Chars,
			Pages:      row.Pages,
			Unreadable: row.Unreadable,
			Matched:    row.Matched,
		})
	}
	return res, nil
}

type execer interface {
	Exec(ctx context.Context, query string, args, v any) error
}

func (r *runRepo) execOne(ctx context.Context, ex execer, q string, args []any, id uuid.UUID) error {
	var res sql.Result
	if err := ex.Exec(ctx, q, args, &res); err != nil {
		return common.WrapError(common.ErrDatabase, err.Error())
	}
	n, err := res.RowsAffected()
	if err != nil {
		return common.WrapError(common.ErrDatabase, err.Error())
	}
	if n == 0 {
		return fmt.Errorf("run %s: %w", id, common.ErrNotFound)
	}
	return nil
}

func (r *runRepo) queryRuns(ctx context.Context, q string, args []any) ([]*entity.Run, error) {
	rows := &entsql.Rows{}
	if err := r.db.drv.Query(ctx, q, args, rows); err != nil {
		return nil, common.WrapError(common.ErrDatabase, err.Error())
	}
	defer rows.Close()

	var out []*entity.Run
	for rows.Next() {
		var (
			id, status, started, opts, pats, cols string
			finished, errMsg                      sql.NullString
			run                                   entity.Run
		)
		if err := rows.Scan(&id, &status, &started, &finished, &errMsg, &opts, &pats, &cols, &run.DocumentCount); err != nil {
			return nil, err
		}
		run.ID, _ = uuid.Parse(id)
		run.Status = constants.RunStatus(status)
		run.StartedAt = parseTime(started)
		if finished.Valid {
			t := parseTime(finished.String)
			run.FinishedAt = &t
		}
		if errMsg.Valid {
			msg := errMsg.String
			run.ErrorMessage = &msg
		}
		if err := json.Unmarshal([]byte(opts), &run.Options); err != nil {
			return nil, fmt.Errorf("decode run options: %w", err)
		}
		if err := json.Unmarshal([]byte(cols), &run.Columns); err != nil {
			return nil, fmt.Errorf("decode run columns: %w", err)
		}
		run.Patterns = json.RawMessage(pats)
		out = append(out, &run)
	}
	return out, rows.Err()
}

// timeLayout is fixed width so started_at sorts correctly as text.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func formatTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) time.Time {
	t, _ := time.Parse(time.RFC3339Nano, s)
	return t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
