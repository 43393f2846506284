package jobqueue

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Retention windows for finished jobs. Completed jobs are kept briefly for
// inspection; failed jobs stay longer so operators can diagnose and retry.
const (
	CompletedRetention = time.Hour
	CompletedKeepCount = 1000
	FailedRetention    = 24 * time.Hour
)

// MemoryStore is an in-memory Store implementation for testing and
// single-process deployments.
type MemoryStore struct {
	mu      sync.RWMutex
	jobs    map[uuid.UUID]*Job
	byState map[JobState][]uuid.UUID

	janitorTicker *time.Ticker
	done          chan struct{}
	closeOnce     sync.Once
}

// NewMemoryStore creates a new in-memory job store. A background janitor
// promotes delayed jobs, expires stale claims and enforces retention.
func NewMemoryStore() *MemoryStore {
	ms := &MemoryStore{
		jobs:    make(map[uuid.UUID]*Job),
		byState: make(map[JobState][]uuid.UUID),
		done:    make(chan struct{}),
	}

	ms.janitorTicker = time.NewTicker(time.Second)
	go ms.janitor()

	return ms
}

// Close stops the background janitor.
func (ms *MemoryStore) Close() error {
	ms.closeOnce.Do(func() {
		close(ms.done)
		ms.janitorTicker.Stop()
	})
	return nil
}

func (ms *MemoryStore) CreateJob(ctx context.Context, job *Job) error {
	if job == nil {
		return errors.New("job cannot be nil")
	}

	ms.mu.Lock()
	defer ms.mu.Unlock()

	if _, exists := ms.jobs[job.ID]; exists {
		return fmt.Errorf("job with ID %s already exists", job.ID)
	}

	// Clone to prevent external modification of stored state.
	jobCopy := *job
	ms.jobs[job.ID] = &jobCopy
	ms.byState[job.State] = append(ms.byState[job.State], job.ID)

	return nil
}

func (ms *MemoryStore) GetJob(ctx context.Context, id uuid.UUID) (*Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	job, exists := ms.jobs[id]
	if !exists {
		return nil, ErrJobNotFound
	}

	jobCopy := *job
	return &jobCopy, nil
}

func (ms *MemoryStore) ClaimJob(ctx context.Context, workerID uuid.UUID, lockDuration time.Duration) (*Job, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	ms.promoteDelayedLocked(time.Now())

	now := time.Now()
	var best *Job

	for _, id := range ms.byState[JobStateWaiting] {
		job := ms.jobs[id]

		if job.RunAt.After(now) {
			continue
		}

		// Highest priority wins; earliest enqueue time breaks ties.
		if best == nil ||
			job.Priority > best.Priority ||
			(job.Priority == best.Priority && job.CreatedAt.Before(best.CreatedAt)) {
			best = job
		}
	}

	if best == nil {
		return nil, ErrNoJobToClaim
	}

	lockUntil := now.Add(lockDuration)
	best.State = JobStateActive
	best.AttemptsMade++
	best.LockedUntil = &lockUntil
	best.LockedBy = &workerID
	best.ProcessedAt = &now

	ms.moveStateLocked(best.ID, JobStateWaiting, JobStateActive)

	jobCopy := *best
	return &jobCopy, nil
}

func (ms *MemoryStore) CompleteJob(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	if job.State != JobStateActive {
		return fmt.Errorf("job %s is not active", id)
	}

	now := time.Now()
	job.State = JobStateCompleted
	job.FinishedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.moveStateLocked(id, JobStateActive, JobStateCompleted)
	return nil
}

func (ms *MemoryStore) FailJob(ctx context.Context, id uuid.UUID, reason string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()
	return ms.failJobLocked(id, reason)
}

func (ms *MemoryStore) failJobLocked(id uuid.UUID, reason string) error {
	job, exists := ms.jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	if job.State != JobStateActive {
		return fmt.Errorf("job %s is not active", id)
	}

	job.FailureReason = &reason
	job.LockedUntil = nil
	job.LockedBy = nil

	if job.AttemptsMade >= job.MaxAttempts {
		now := time.Now()
		job.State = JobStateFailed
		job.FinishedAt = &now
		ms.moveStateLocked(id, JobStateActive, JobStateFailed)
		return nil
	}

	// Exponential backoff: the delay doubles with every attempt made.
	job.State = JobStateDelayed
	job.RunAt = time.Now().Add(BackoffFor(job.AttemptsMade))
	ms.moveStateLocked(id, JobStateActive, JobStateDelayed)
	return nil
}

func (ms *MemoryStore) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[id]
	if !exists {
		return ErrJobNotFound
	}

	prev := job.State
	now := time.Now()
	job.State = JobStateFailed
	job.FailureReason = &reason
	job.FinishedAt = &now
	job.LockedUntil = nil
	job.LockedBy = nil

	ms.moveStateLocked(id, prev, JobStateFailed)
	return nil
}

func (ms *MemoryStore) RequeueJob(ctx context.Context, id uuid.UUID) error {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	job, exists := ms.jobs[id]
	if !exists {
		return ErrJobNotFound
	}
	if job.State != JobStateFailed {
		return fmt.Errorf("%w: job %s is %s", ErrJobNotRetryable, id, job.State)
	}

	job.State = JobStateWaiting
	job.RunAt = time.Now()
	job.FinishedAt = nil

	ms.moveStateLocked(id, JobStateFailed, JobStateWaiting)
	return nil
}

func (ms *MemoryStore) ListJobsByState(ctx context.Context, state JobState, offset, limit int) ([]Job, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	ids := ms.byState[state]
	jobs := make([]Job, 0, len(ids))
	for _, id := range ids {
		jobs = append(jobs, *ms.jobs[id])
	}

	// Newest first for operator inspection.
	sort.Slice(jobs, func(i, j int) bool {
		return jobs[i].CreatedAt.After(jobs[j].CreatedAt)
	})

	if offset >= len(jobs) {
		return []Job{}, nil
	}
	jobs = jobs[offset:]
	if limit > 0 && limit < len(jobs) {
		jobs = jobs[:limit]
	}

	return jobs, nil
}

func (ms *MemoryStore) Stats(ctx context.Context) (Stats, error) {
	ms.mu.RLock()
	defer ms.mu.RUnlock()

	s := Stats{
		Waiting:   len(ms.byState[JobStateWaiting]),
		Active:    len(ms.byState[JobStateActive]),
		Completed: len(ms.byState[JobStateCompleted]),
		Failed:    len(ms.byState[JobStateFailed]),
		Delayed:   len(ms.byState[JobStateDelayed]),
	}
	s.Total = len(ms.jobs)
	return s, nil
}

func (ms *MemoryStore) PurgeFinished(ctx context.Context, completedOlderThan, failedOlderThan time.Duration, keepCompleted int) (int, error) {
	ms.mu.Lock()
	defer ms.mu.Unlock()

	now := time.Now()
	deleted := 0

	for _, id := range slices.Clone(ms.byState[JobStateCompleted]) {
		job := ms.jobs[id]
		if job.FinishedAt != nil && now.Sub(*job.FinishedAt) > completedOlderThan {
			ms.deleteLocked(id)
			deleted++
		}
	}

	for _, id := range slices.Clone(ms.byState[JobStateFailed]) {
		job := ms.jobs[id]
		if job.FinishedAt != nil && now.Sub(*job.FinishedAt) > failedOlderThan {
			ms.deleteLocked(id)
			deleted++
		}
	}

	// Trim completed jobs beyond the keep count, oldest first.
	if keepCompleted > 0 && len(ms.byState[JobStateCompleted]) > keepCompleted {
		ids := slices.Clone(ms.byState[JobStateCompleted])
		sort.Slice(ids, func(i, j int) bool {
			a, b := ms.jobs[ids[i]], ms.jobs[ids[j]]
			return finishedTime(a).Before(finishedTime(b))
		})
		for _, id := range ids[:len(ids)-keepCompleted] {
			ms.deleteLocked(id)
			deleted++
		}
	}

	return deleted, nil
}

func finishedTime(j *Job) time.Time {
	if j.FinishedAt != nil {
		return *j.FinishedAt
	}
	return j.CreatedAt
}

func (ms *MemoryStore) deleteLocked(id uuid.UUID) {
	job, exists := ms.jobs[id]
	if !exists {
		return
	}
	ms.removeFromStateIndex(id, job.State)
	delete(ms.jobs, id)
}

func (ms *MemoryStore) moveStateLocked(id uuid.UUID, from, to JobState) {
	ms.removeFromStateIndex(id, from)
	ms.byState[to] = append(ms.byState[to], id)
}

func (ms *MemoryStore) removeFromStateIndex(id uuid.UUID, state JobState) {
	ms.byState[state] = slices.DeleteFunc(ms.byState[state], func(other uuid.UUID) bool {
		return other == id
	})
}

// promoteDelayedLocked moves delayed jobs whose backoff has elapsed back to
// waiting. Must be called with the mutex held.
func (ms *MemoryStore) promoteDelayedLocked(now time.Time) {
	for _, id := range slices.Clone(ms.byState[JobStateDelayed]) {
		job := ms.jobs[id]
		if !job.RunAt.After(now) {
			job.State = JobStateWaiting
			ms.moveStateLocked(id, JobStateDelayed, JobStateWaiting)
		}
	}
}

// janitor recovers jobs from dead workers, promotes delayed jobs and
// enforces retention. Without claim expiry, a job locked by a crashed
// worker would be stuck in active forever.
func (ms *MemoryStore) janitor() {
	for {
		select {
		case <-ms.janitorTicker.C:
			ms.tick()
		case <-ms.done:
			return
		}
	}
}

func (ms *MemoryStore) tick() {
	now := time.Now()

	ms.mu.Lock()
	ms.promoteDelayedLocked(now)

	// An expired claim means the attempt timed out or its worker died;
	// either way it counts as a failure subject to the retry policy.
	for _, id := range slices.Clone(ms.byState[JobStateActive]) {
		job := ms.jobs[id]
		if job.LockedUntil != nil && job.LockedUntil.Before(now) {
			_ = ms.failJobLocked(id, "processing timeout exceeded")
		}
	}
	ms.mu.Unlock()

	_, _ = ms.PurgeFinished(context.Background(), CompletedRetention, FailedRetention, CompletedKeepCount)
}
