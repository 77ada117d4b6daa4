package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clinical-extract/constants"
	"github.com/joseph-ayodele/clinical-extract/internal/common"
	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/core/async"
	"github.com/joseph-ayodele/clinical-extract/internal/entity"
	"github.com/joseph-ayodele/clinical-extract/internal/export"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
	"github.com/joseph-ayodele/clinical-extract/internal/repository"
)

// Service is what both the HTTP and gRPC surfaces call into. It owns the
// session default pattern table and the run bookkeeping.
type Service struct {
	runner   async.Runner
	runs     repository.RunRepository
	queue    async.Queue
	exporter *export.Service
	defaults *patterns.Table
	batch    common.BatchConfig
	logger   *slog.Logger
}

// NewService wires the facade. queue may be nil, which disables async runs.
func NewService(
	runner async.Runner,
	runs repository.RunRepository,
	queue async.Queue,
	exporter *export.Service,
	defaults *patterns.Table,
	batch common.BatchConfig,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if defaults == nil {
		defaults = patterns.Default()
	}
	if exporter == nil {
		exporter = export.NewService(logger)
	}
	return &Service{
		runner:   runner,
		runs:     runs,
		queue:    queue,
		exporter: exporter,
		defaults: defaults,
		batch:    batch,
		logger:   logger,
	}
}

// RunRequest is a batch submission. Nil pointers fall back to the configured
// batch defaults; a nil Table uses the session default table.
type RunRequest struct {
	Table          *patterns.Table
	Documents      []core.Document
	Normalize      *bool
	FileColumn     *bool
	FileColumnName string
	Async          bool
}

// MaxFileColumnName bounds the user-supplied name of the file column.
const MaxFileColumnName = 128

// Validate checks the caller-supplied request fields.
func (r RunRequest) Validate() *common.Validator {
	return common.NewValidator().
		Field("file_column_name", r.FileColumnName, common.MaxLength(MaxFileColumnName))
}

// Submission is the outcome of Submit: a finished result for synchronous runs,
// just the id for queued ones.
type Submission struct {
	RunID  uuid.UUID
	Status constants.RunStatus
	Result *core.RunResult
}

// DefaultPatterns returns a copy of the session default table.
func (s *Service) DefaultPatterns() *patterns.Table {
	return s.defaults.Clone()
}

func (s *Service) options(req RunRequest) core.Options {
	opts := core.Options{
		Normalize:      s.batch.Normalize,
		FileColumn:     s.batch.FileColumn,
		FileColumnName: s.batch.FileColumnName,
	}
	if req.Normalize != nil {
		opts.Normalize = *req.Normalize
	}
	if req.FileColumn != nil {
		opts.FileColumn = *req.FileColumn
	}
	if req.FileColumnName != "" {
		opts.FileColumnName = req.FileColumnName
	}
	if opts.FileColumn && opts.FileColumnName == "" {
		opts.FileColumnName = constants.DefaultFileColumn
	}
	return opts
}

// Submit records a new run and either processes it in place or hands it to
// the run queue.
func (s *Service) Submit(ctx context.Context, req RunRequest) (*Submission, error) {
	if len(req.Documents) == 0 {
		return nil, common.NewAppError(common.CodeInvalidInput, "at least one PDF file is required", common.ErrInvalidInput)
	}
	table := req.Table
	if table == nil {
		table = s.DefaultPatterns()
	}
	raw, err := table.MarshalJSON()
	if err != nil {
		return nil, err
	}
	opts := s.options(req)
	logger := common.LoggerFromContext(ctx, s.logger)

	run := &entity.Run{
		ID:     uuid.New(),
		Status: constants.RunStatusRunning,
		Options: entity.RunOptions{
			Normalize:      opts.Normalize,
			FileColumn:     opts.FileColumn,
			FileColumnName: opts.FileColumnName,
		},
		Patterns:      raw,
		DocumentCount: len(req.Documents),
	}
	opts.RunID = run.ID

	if req.Async {
		if s.queue == nil {
			return nil, common.NewAppError(common.CodeInvalidInput, "async runs are disabled", common.ErrInvalidInput)
		}
		run.Status = constants.RunStatusQueued
		if err := s.runs.Start(ctx, run); err != nil {
			return nil, err
		}
		job := async.Job{
			RunID:       run.ID,
			Table:       table,
			Documents:   req.Documents,
			Options:     opts,
			SubmittedAt: time.Now(),
			RequestID:   common.RequestIDFromContext(ctx),
		}
		if err := s.queue.Enqueue(ctx, job); err != nil {
			s.fail(ctx, logger, run.ID, err)
			return nil, fmt.Errorf("enqueue run: %w", err)
		}
		logger.Info("run queued", "run_id", run.ID, "documents", len(req.Documents))
		return &Submission{RunID: run.ID, Status: constants.RunStatusQueued}, nil
	}

	if err := s.runs.Start(ctx, run); err != nil {
		return nil, err
	}
	res, err := s.runner.Run(common.WithRunID(ctx, run.ID.String()), table, req.Documents, opts)
	if err != nil {
		s.fail(ctx, logger, run.ID, err)
		return nil, err
	}
	if err := s.runs.SaveResult(ctx, res); err != nil {
		s.fail(ctx, logger, run.ID, err)
		return nil, err
	}
	return &Submission{RunID: run.ID, Status: constants.RunStatusDone, Result: res}, nil
}

func (s *Service) fail(ctx context.Context, logger *slog.Logger, id uuid.UUID, cause error) {
	if err := s.runs.Fail(context.WithoutCancel(ctx), id, cause.Error()); err != nil {
		logger.Error("record run failure failed", "run_id", id, "error", err)
	}
}

func (s *Service) ListRuns(ctx context.Context) ([]*entity.Run, error) {
	return s.runs.List(ctx)
}

// GetRun returns the run and, once it is done, its rows.
func (s *Service) GetRun(ctx context.Context, id uuid.UUID) (*entity.Run, []entity.RunRow, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	if run.Status != constants.RunStatusDone {
		return run, nil, nil
	}
	rows, err := s.runs.Rows(ctx, id)
	if err != nil {
		return nil, nil, err
	}
	return run, rows, nil
}

// Export renders a finished run's table.
func (s *Service) Export(ctx context.Context, id uuid.UUID, format constants.ExportFormat) ([]byte, error) {
	res, err := s.runs.Result(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.exporter.Bytes(res, format)
}

// RunPatterns returns the table a run was started with.
func (s *Service) RunPatterns(ctx context.Context, id uuid.UUID) (*patterns.Table, error) {
	run, err := s.runs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	return patterns.Parse(run.Patterns, constants.PatternsJSON)
}
