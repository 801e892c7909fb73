package async

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/kjartanjoensen/report-extractor/internal/async"
)

const (
	defaultWorkers   = 4
	defaultQueueSize = 256
)

// JobRunner is what a worker invokes per task. *core.Processor satisfies it.
type JobRunner interface {
	ProcessJob(ctx context.Context, jobID uuid.UUID) error
	// FailJob records reason as the job's terminal failure. The queue calls
	// it when a task dies without returning, so no job is left PROCESSING.
	FailJob(ctx context.Context, jobID uuid.UUID, reason string)
}

// ProcessorQueue is a bounded worker pool over a JobRunner. Tasks run on
// context.Background(): once a job is accepted it runs to completion (or to
// its own failure) regardless of the submitter's request lifetime, and there
// is no per-job deadline.
type ProcessorQueue struct {
	runner  JobRunner
	logger  *slog.Logger
	workers int

	ch   chan async.Task
	wg   sync.WaitGroup
	once sync.Once

	// mu guards closed and every send on ch: senders hold it for reading
	// across the send, Shutdown takes it for writing before closing ch, so
	// the channel is never closed under a parked sender.
	mu     sync.RWMutex
	closed bool
}

type Option func(*ProcessorQueue)

func WithWorkers(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.workers = n
		}
	}
}

func WithQueueSize(n int) Option {
	return func(q *ProcessorQueue) {
		if n > 0 {
			q.ch = make(chan async.Task, n)
		}
	}
}

func NewProcessorQueue(runner JobRunner, logger *slog.Logger, opts ...Option) *ProcessorQueue {
	if logger == nil {
		logger = slog.Default()
	}
	q := &ProcessorQueue{
		runner:  runner,
		logger:  logger,
		workers: defaultWorkers,
		ch:      make(chan async.Task, defaultQueueSize),
	}
	for _, opt := range opts {
		opt(q)
	}
	for i := 0; i < q.workers; i++ {
		q.wg.Add(1)
		go q.worker(i)
	}
	q.logger.Info("processor queue started", "workers", q.workers, "queue_size", cap(q.ch))
	return q
}

// Enqueue implements async.Queue.
func (q *ProcessorQueue) Enqueue(ctx context.Context, task async.Task) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return fmt.Errorf("queue is shut down")
	}

	if task.SubmittedAt.IsZero() {
		task.SubmittedAt = time.Now().UTC()
	}
	select {
	case q.ch <- task:
		q.logger.Debug("task enqueued", "job_id", task.JobID, "backlog", len(q.ch))
		return nil
	case <-ctx.Done():
		return fmt.Errorf("enqueue job %s: %w", task.JobID, ctx.Err())
	}
}

// Shutdown implements async.Queue: stop intake, then wait for in-flight
// tasks until ctx expires.
func (q *ProcessorQueue) Shutdown(ctx context.Context) {
	q.once.Do(func() {
		q.mu.Lock()
		q.closed = true
		close(q.ch)
		q.mu.Unlock()
	})

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		q.logger.Info("processor queue drained")
	case <-ctx.Done():
		q.logger.Warn("processor queue shutdown timed out", "err", ctx.Err())
	}
}

func (q *ProcessorQueue) worker(id int) {
	defer q.wg.Done()
	for task := range q.ch {
		q.run(id, task)
	}
}

func (q *ProcessorQueue) run(workerID int, task async.Task) {
	defer func() {
		if r := recover(); r != nil {
			q.logger.Error("panic while processing job", "worker", workerID, "job_id", task.JobID, "panic", r)
			q.runner.FailJob(context.Background(), task.JobID, fmt.Sprintf("panic: %v", r))
		}
	}()

	wait := time.Since(task.SubmittedAt)
	q.logger.Info("task picked up", "worker", workerID, "job_id", task.JobID, "queued_ms", wait.Milliseconds())
	if err := q.runner.ProcessJob(context.Background(), task.JobID); err != nil {
		// already persisted on the job row; logged here for the operator
		q.logger.Error("job processing returned error", "worker", workerID, "job_id", task.JobID, "err", err)
	}
}
