package async

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/clinical-extract/internal/core"
	"github.com/joseph-ayodele/clinical-extract/internal/patterns"
)

// ErrQueueClosed is returned by Enqueue once Shutdown has started.
var ErrQueueClosed = errors.New("run queue is shutting down")

// Job is one whole batch run. Documents are processed sequentially by a single
// worker; different jobs may run on different workers.
type Job struct {
	RunID       uuid.UUID
	Table       *patterns.Table
	Documents   []core.Document
	Options     core.Options
	SubmittedAt time.Time
	RequestID   string
}

type Queue interface {
	Enqueue(ctx context.Context, job Job) error
	Shutdown(ctx context.Context)
}

// Runner executes a batch; *core.Processor satisfies it.
type Runner interface {
	Run(ctx context.Context, table *patterns.Table, docs []core.Document, opts core.Options) (*core.RunResult, error)
}

// ResultStore receives run state transitions; the session store satisfies it.
type ResultStore interface {
	MarkRunning(ctx context.Context, id uuid.UUID) error
	SaveResult(ctx context.Context, res *core.RunResult) error
	Fail(ctx context.Context, id uuid.UUID, message string) error
}
