package jobqueue

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// Store defines the persistence contract for the job queue. Implementations
// must make ClaimJob atomic and exclusive: at most one worker may hold an
// active claim on a job at any instant.
type Store interface {
	// CreateJob stores a new job in the waiting state.
	CreateJob(ctx context.Context, job *Job) error

	// GetJob returns a job by id or ErrJobNotFound.
	GetJob(ctx context.Context, id uuid.UUID) (*Job, error)

	// ClaimJob atomically claims the best ready job: highest priority first,
	// FIFO by enqueue time within one priority. Returns ErrNoJobToClaim
	// when nothing is ready.
	ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error)

	// CompleteJob transitions an active job to completed.
	CompleteJob(ctx context.Context, id uuid.UUID) error

	// FailJob records a failed attempt. The job is delayed for the backoff
	// interval if attempts remain, otherwise moved to the terminal failed state.
	FailJob(ctx context.Context, id uuid.UUID, reason string) error

	// MarkFailed moves a job straight to the terminal failed state,
	// bypassing the retry budget. Used when retrying cannot help.
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error

	// RequeueJob resets a failed job to waiting without touching its
	// attempt counter. Returns ErrJobNotRetryable for non-failed jobs.
	RequeueJob(ctx context.Context, id uuid.UUID) error

	// ListJobsByState returns jobs in the given state, newest first.
	ListJobsByState(ctx context.Context, state JobState, offset, limit int) ([]Job, error)

	// Stats returns a per-state snapshot of the queue.
	Stats(ctx context.Context) (Stats, error)

	// PurgeFinished deletes completed and failed jobs whose FinishedAt is
	// older than the given retention windows, and trims completed jobs
	// beyond keepCompleted (0 = unbounded). Returns the number deleted.
	PurgeFinished(ctx context.Context, completedOlderThan, failedOlderThan time.Duration, keepCompleted int) (int, error)
}
