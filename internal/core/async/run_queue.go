package async

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/joseph-ayodele/clinical-extract/internal/common"
)

type RunQueue struct {
	runner  Runner
	store   ResultStore
	logger  *slog.Logger
	workers int
	timeout time.Duration

	ch   chan Job
	wg   sync.WaitGroup
	once sync.Once

	mu     sync.Mutex
	closed bool
}

type Option func(*RunQueue)

func WithWorkers(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}
func WithQueueSize(n int) Option {
	return func(q *RunQueue) {
		if n > 0 {
			q.ch = make(chan Job, n)
		}
	}
}
func WithRunTimeout(d time.Duration) Option {
	return func(q *RunQueue) {
		if d > 0 {
			q.timeout = d
		}
	}
}

func NewRunQueue(runner Runner, store ResultStore, logger *slog.Logger, opts ...Option) *RunQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &RunQueue{
		runner:  runner,
		store:   store,
		logger:  logger,
		workers: 2,
		timeout: 5 * time.Minute,
		ch:      make(chan Job, 64),
	}
	for _, o := range opts {
		o(q)
	}
	q.start()
	return q
}

func (q *RunQueue) start() {
	q.once.Do(func() {
		for i := 0; i < q.workers; i++ {
			q.wg.Add(1)
			go func(workerID int) {
				defer q.wg.Done()
				q.logger.Info("worker started", "worker_id", workerID)

				for job := range q.ch {
					q.process(workerID, job)
				}

				q.logger.Info("worker stopped", "worker_id", workerID)
			}(i + 1)
		}
	})
}

func (q *RunQueue) process(workerID int, job Job) {
	ctx, cancel := common.WithTimeout(context.Background(), q.timeout)
	defer cancel()
	ctx = common.WithRunID(ctx, job.RunID.String())
	if job.RequestID != "" {
		ctx = common.WithRequestID(ctx, job.RequestID)
	}
	logger := common.LoggerFromContext(ctx, q.logger).With("worker_id", workerID)

	if err := q.store.MarkRunning(ctx, job.RunID); err != nil {
		logger.Error("mark running failed", "error", err)
	}

	opts := job.Options
	opts.RunID = job.RunID
	res, err := q.runner.Run(ctx, job.Table, job.Documents, opts)
	if err != nil {
		logger.Error("run failed", "error", err)
		q.fail(ctx, logger, job, err)
		return
	}
	if err := q.store.SaveResult(ctx, res); err != nil {
		logger.Error("save result failed", "error", err)
		q.fail(ctx, logger, job, err)
		return
	}
	logger.Info("run completed", "rows", len(res.Rows), "queued_ms", time.Since(job.SubmittedAt).Milliseconds())
}

// fail marks the run FAILED. Store updates must outlive a run that hit its own
// deadline.
func (q *RunQueue) fail(ctx context.Context, logger *slog.Logger, job Job, cause error) {
	if err := q.store.Fail(context.WithoutCancel(ctx), job.RunID, cause.Error()); err != nil {
		logger.Error("record failure failed", "error", err)
	}
}

// Enqueue hands job to a worker. When the buffer is full it blocks until a
// slot frees up or ctx is done.
func (q *RunQueue) Enqueue(ctx context.Context, job Job) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		q.logger.Warn("cannot enqueue: queue is shutting down", "run_id", job.RunID)
		return ErrQueueClosed
	}
	if job.SubmittedAt.IsZero() {
		job.SubmittedAt = time.Now()
	}
	select {
	case q.ch <- job:
		q.logger.Info("queued run", "run_id", job.RunID, "documents", len(job.Documents))
		return nil
	default:
	}

	q.logger.Warn("queue full, applying backpressure", "run_id", job.RunID)
	select {
	case q.ch <- job:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *RunQueue) Shutdown(ctx context.Context) {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return
	}
	q.closed = true
	close(q.ch)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() { defer close(done); q.wg.Wait() }()

	select {
	case <-ctx.Done():
		q.logger.Warn("shutdown interrupted by context")
	case <-done:
		q.logger.Info("queue drained, shutdown complete")
	}
}
