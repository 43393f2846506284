package jobqueue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/logger"
)

// Queue is the enqueue and administrative surface of the delivery job queue.
// Processing is done by one or more Workers sharing the same store.
type Queue struct {
	store  Store
	logger *slog.Logger
	paused atomic.Bool

	mu         sync.RWMutex
	knownTypes map[JobType]struct{}
}

// QueueOption is a functional option for configuring a Queue.
type QueueOption func(*Queue)

// WithQueueLogger sets the logger for the queue.
func WithQueueLogger(l *slog.Logger) QueueOption {
	return func(q *Queue) {
		if l != nil {
			q.logger = l
		}
	}
}

// NewQueue creates a new Queue over the given store. The four messaging
// job types are pre-registered; additional types must be registered
// before they can be enqueued.
func NewQueue(store Store, opts ...QueueOption) (*Queue, error) {
	if store == nil {
		return nil, ErrStoreNil
	}

	q := &Queue{
		store:  store,
		logger: slog.Default(),
		knownTypes: map[JobType]struct{}{
			JobTypeSendOTP:          {},
			JobTypeSendNotification: {},
			JobTypeSendGroup:        {},
			JobTypeSendBulk:         {},
		},
	}

	for _, opt := range opts {
		opt(q)
	}

	return q, nil
}

// RegisterType allows an additional job type to be enqueued.
func (q *Queue) RegisterType(jobType JobType) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.knownTypes[jobType] = struct{}{}
}

func (q *Queue) typeKnown(jobType JobType) bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	_, ok := q.knownTypes[jobType]
	return ok
}

// EnqueueOption is a functional option for the Enqueue method.
type EnqueueOption func(*enqueueOptions)

type enqueueOptions struct {
	priority    *Priority
	maxAttempts int8
	delay       time.Duration
}

// WithPriority overrides the priority derived from the job type.
func WithPriority(p Priority) EnqueueOption {
	return func(o *enqueueOptions) {
		o.priority = &p
	}
}

// WithMaxAttempts sets the automatic retry budget (1-10).
// Capped to prevent infinite retry loops on persistent failures.
func WithMaxAttempts(n int8) EnqueueOption {
	return func(o *enqueueOptions) {
		if n >= 1 && n <= 10 {
			o.maxAttempts = n
		}
	}
}

// WithDelay defers the first processing attempt.
func WithDelay(d time.Duration) EnqueueOption {
	return func(o *enqueueOptions) {
		if d > 0 {
			o.delay = d
		}
	}
}

// Enqueue adds a new job to the queue and returns it. Unknown job types are
// rejected here rather than silently queued. An explicit priority option
// wins over the job-type mapping.
func (q *Queue) Enqueue(ctx context.Context, jobType JobType, payload any, opts ...EnqueueOption) (*Job, error) {
	if payload == nil {
		return nil, ErrPayloadNil
	}
	if !q.typeKnown(jobType) {
		return nil, fmt.Errorf("%w: %q", ErrUnknownJobType, jobType)
	}

	options := &enqueueOptions{
		maxAttempts: DefaultMaxAttempts,
	}
	for _, opt := range opts {
		opt(options)
	}

	payloadBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload of type %T: %w", payload, err)
	}

	priority := PriorityForType(jobType)
	if options.priority != nil {
		priority = *options.priority
	}

	now := time.Now()
	job := &Job{
		ID:          uuid.New(),
		Type:        jobType,
		Payload:     payloadBytes,
		Priority:    priority,
		MaxAttempts: options.maxAttempts,
		State:       JobStateWaiting,
		RunAt:       now.Add(options.delay),
		CreatedAt:   now,
	}
	if options.delay > 0 {
		job.State = JobStateDelayed
	}

	if err := q.store.CreateJob(ctx, job); err != nil {
		return nil, fmt.Errorf("failed to create job of type %q: %w", jobType, err)
	}

	q.logger.Info("job enqueued",
		logger.JobID(job.ID),
		logger.JobType(string(jobType)),
		slog.Int("priority", int(priority)))

	return job, nil
}

// Stats returns a per-state snapshot of the queue.
func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	return q.store.Stats(ctx)
}

// JobsByState lists jobs in the named state for operator inspection.
func (q *Queue) JobsByState(ctx context.Context, state JobState, offset, limit int) ([]Job, error) {
	if !state.Valid() {
		return nil, fmt.Errorf("%w: %q", ErrInvalidJobState, state)
	}
	return q.store.ListJobsByState(ctx, state, offset, limit)
}

// Retry resets a failed job to waiting. The attempt counter is left
// untouched: manual retries do not count against the automatic budget.
func (q *Queue) Retry(ctx context.Context, id uuid.UUID) error {
	if err := q.store.RequeueJob(ctx, id); err != nil {
		return err
	}

	q.logger.Info("job manually requeued", logger.JobID(id))
	return nil
}

// Clean purges completed and failed jobs that finished longer than
// grace ago. Returns the number of jobs removed.
func (q *Queue) Clean(ctx context.Context, grace time.Duration) (int, error) {
	return q.store.PurgeFinished(ctx, grace, grace, 0)
}

// Pause stops new job claims without discarding queued work.
// Jobs already active complete normally.
func (q *Queue) Pause() {
	q.paused.Store(true)
	q.logger.Info("queue paused")
}

// Resume re-enables job claims.
func (q *Queue) Resume() {
	q.paused.Store(false)
	q.logger.Info("queue resumed")
}

// Paused reports whether new claims are currently suspended.
func (q *Queue) Paused() bool {
	return q.paused.Load()
}

// Store returns the underlying job store.
func (q *Queue) Store() Store {
	return q.store
}
