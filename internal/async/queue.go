package async

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Task asks the background runner to process one job. Submission is
// fire-and-forget: the submitter never learns the outcome through the queue,
// only through the job's persisted status.
type Task struct {
	JobID       uuid.UUID
	SubmittedAt time.Time
}

// Queue accepts tasks for background processing.
type Queue interface {
	// Enqueue hands the task to a worker. It blocks while the buffer is
	// full and fails only when ctx is done or the queue has shut down.
	Enqueue(ctx context.Context, t Task) error
	// Shutdown stops intake and waits for in-flight tasks, up to ctx.
	Shutdown(ctx context.Context)
}
