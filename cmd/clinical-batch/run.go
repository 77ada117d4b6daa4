package main

import (
	"context"
	"log/slog"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/entity"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
	repo "github.com/joseph-ayodele/clinical-extract/internal/repository"
)

// runBatch records the run, processes every document and returns the result
// as read back from the store. A run that fails after Start is marked FAILED.
func runBatch(ctx context.Context, proc *core.Processor, runs repo.RunRepository, table *patterns.Table, docs []core.Document, opts core.Options, logger *slog.Logger) (*core.RunResult, error) {
	if logger == nil {
		logger = slog.Default()
	}
	raw, err := table.MarshalJSON()
	if err != nil {
		return nil, err
	}
	run := &entity.Run{
		ID:     uuid.New(),
		Status: constants.RunStatusRunning,
		Options: entity.RunOptions{
			Normalize:      opts.Normalize,
			FileColumn:     opts.FileColumn,
			FileColumnName: opts.FileColumnName,
		},
		Patterns:      raw,
		DocumentCount: len(docs),
	}
	if err := runs.Start(ctx, run); err != nil {
		return nil, err
	}
	opts.RunID = run.ID

	res, err := proc.Run(ctx, table, docs, opts)
	if err != nil {
		failRun(ctx, runs, logger, run.ID, err)
		return nil, err
	}
	if err := runs.SaveResult(ctx, res); err != nil {
		failRun(ctx, runs, logger, run.ID, err)
		return nil, err
	}
	return runs.Result(ctx, run.ID)
}

// failRun records cause on the run even when ctx is already done.
func failRun(ctx context.Context, runs repo.RunRepository, logger *slog.Logger, id uuid.UUID, cause error) {
	if err := runs.Fail(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		logger.Error("record run failure failed", "run_id", id, "cause", cause, "error", err)
	}
}
