package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/core/fields"
	"github.com/joseph-ayodele/clinical-extract/internal/entity"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

func openTestRepo(t *testing.T) RunRepository {
	t.Helper()
	db, err := Open(context.Background(), "", nil)
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.HealthCheck(context.Background(), time.Second))
	return NewRunRepository(db, nil)
}

func ptr(s string) *string { return &s }

func testTable(t *testing.T) (*patterns.Table, json.RawMessage) {
	t.Helper()
	tbl := patterns.NewTable()
	tbl.Set("FC", []string{`FC\s*(\d+)`})
	tbl.Set("Temp", []string{`TEMP\s*(\d+)`, `T\s*(\d+)`})
	raw, err := tbl.MarshalJSON()
	require.NoError(t, err)
	return tbl, raw
}

func TestRunLifecycle(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	tbl, raw := testTable(t)

	run := &entity.Run{
		Status:        constants.RunStatusQueued,
		Options:       entity.RunOptions{Normalize: true, FileColumn: true, FileColumnName: "file"},
		Patterns:      raw,
		DocumentCount: 2,
	}
	require.NoError(t, repo.Start(ctx, run))
	require.NotEqual(t, uuid.Nil, run.ID)

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusQueued, got.Status)
	assert.Nil(t, got.FinishedAt)
	assert.True(t, got.Options.Normalize)

	// not finished yet
	_, err = repo.Result(ctx, run.ID)
	assert.ErrorIs(t, err, common.ErrInvalidInput)

	require.NoError(t, repo.MarkRunning(ctx, run.ID))

	res := &core.RunResult{
		RunID:      run.ID,
		Columns:    []string{"file", "FC", "Temp"},
		FileColumn: "file",
		Rows: []fields.Row{
			{"file": ptr("a.pdf"), "FC": ptr("80"), "Temp": nil},
			{"file": ptr("b.pdf"), "FC": nil, "Temp": nil},
		},
		Documents: []core.DocumentOutcome{
			{Name: "a.pdf", Method: "pdf-text", Chars: 120, Pages: 1, Matched: 1},
			{Name: "b.pdf", Unreadable: true},
		},
		FinishedAt: time.Now().UTC(),
	}
	require.NoError(t, repo.SaveResult(ctx, res))

	got, err = repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusDone, got.Status)
	require.NotNil(t, got.FinishedAt)
	assert.Equal(t, []string{"file", "FC", "Temp"}, got.Columns)

	rows, err := repo.Rows(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, 0, rows[0].Position)
	assert.Equal(t, "a.pdf", rows[0].FileName)
	assert.Equal(t, "80", *rows[0].Values["FC"])
	assert.True(t, rows[1].Unreadable)

	back, err := repo.Result(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, res.Columns, back.Columns)
	assert.Equal(t, "file", back.FileColumn)
	assert.Equal(t, res.Rows, back.Rows)
	assert.True(t, tbl.Equal(back.Patterns))
	assert.Equal(t, fields.Row{"file": ptr("b.pdf"), "FC": nil, "Temp": nil}, back.Rows[1])
}

func TestSaveResult_ManyRows(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	_, raw := testTable(t)

	run := &entity.Run{Status: constants.RunStatusRunning, Patterns: raw}
	require.NoError(t, repo.Start(ctx, run))

	// more rows than one INSERT can bind at nine parameters per row
	const n = 4000
	res := &core.RunResult{RunID: run.ID, Columns: []string{"file", "FC"}, FileColumn: "file"}
	for i := 0; i < n; i++ {
		name := fmt.Sprintf("doc-%04d.pdf", i)
		res.Rows = append(res.Rows, fields.Row{"file": ptr(name), "FC": ptr(fmt.Sprint(60 + i%40))})
		res.Documents = append(res.Documents, core.DocumentOutcome{Name: name, Method: "pdf-text", Pages: 1, Matched: 1})
	}
	require.NoError(t, repo.SaveResult(ctx, res))

	rows, err := repo.Rows(ctx, run.ID)
	require.NoError(t, err)
	require.Len(t, rows, n)
	for _, i := range []int{0, insertBatchRows - 1, insertBatchRows, n - 1} {
		assert.Equal(t, i, rows[i].Position)
		assert.Equal(t, fmt.Sprintf("doc-%04d.pdf", i), rows[i].FileName)
	}

	got, err := repo.Get(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, constants.RunStatusDone, got.Status)
	assert.Equal(t, n, got.DocumentCount)
}

func TestRunFailAndList(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	_, raw := testTable(t)

	first := &entity.Run{Patterns: raw, StartedAt: time.Now().Add(-time.Minute)}
	second := &entity.Run{Patterns: raw}
	require.NoError(t, repo.Start(ctx, first))
	require.NoError(t, repo.Start(ctx, second))
	require.NoError(t, repo.Fail(ctx, first.ID, "context canceled"))

	runs, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, runs, 2)
	assert.Equal(t, second.ID, runs[0].ID)
	assert.Equal(t, constants.RunStatusRunning, runs[0].Status)
	assert.Equal(t, constants.RunStatusFailed, runs[1].Status)
	require.NotNil(t, runs[1].ErrorMessage)
	assert.Equal(t, "context canceled", *runs[1].ErrorMessage)
}

func TestRunNotFound(t *testing.T) {
	ctx := context.Background()
	repo := openTestRepo(t)
	id := uuid.New()

	_, err := repo.Get(ctx, id)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, repo.Fail(ctx, id, "x"), common.ErrNotFound)
	assert.ErrorIs(t, repo.SaveResult(ctx, &core.RunResult{RunID: id}), common.ErrNotFound)

	rows, err := repo.Rows(ctx, id)
	require.NoError(t, err)
	assert.Empty(t, rows)
}
