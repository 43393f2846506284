package jobqueue_test

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispkit/notify/pkg/jobqueue"
)

func newTestWorker(t *testing.T, queue *jobqueue.Queue) *jobqueue.Worker {
	t.Helper()

	worker, err := jobqueue.NewWorker(queue,
		jobqueue.WithPollInterval(10*time.Millisecond),
		jobqueue.WithProcessTimeout(5*time.Second),
		jobqueue.WithConcurrency(2),
	)
	require.NoError(t, err)
	return worker
}

func TestNewWorker(t *testing.T) {
	t.Parallel()

	worker, err := jobqueue.NewWorker(nil)
	assert.ErrorIs(t, err, jobqueue.ErrStoreNil)
	assert.Nil(t, worker)
}

func TestWorker_ProcessesJobs(t *testing.T) {
	t.Parallel()
	queue, store := newTestQueue(t)
	worker := newTestWorker(t, queue)

	var processed atomic.Int32
	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendNotification,
		func(ctx context.Context, p jobqueue.NotificationPayload) error {
			processed.Add(1)
			return nil
		}))

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, jobqueue.NotificationPayload{
		UserID: "u-1", Title: "hello",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.ID)
		return err == nil && stored.State == jobqueue.JobStateCompleted
	}, 2*time.Second, 10*time.Millisecond)

	assert.Equal(t, int32(1), processed.Load())

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.ProcessedAt)
	require.NotNil(t, stored.FinishedAt)
}

func TestWorker_RetriesThenSucceeds(t *testing.T) {
	t.Parallel()
	queue, store := newTestQueue(t)
	worker := newTestWorker(t, queue)

	var attempts atomic.Int32
	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendOTP,
		func(ctx context.Context, p jobqueue.OTPPayload) error {
			if attempts.Add(1) < 3 {
				return errors.New("gateway busy")
			}
			return nil
		}))

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendOTP, jobqueue.OTPPayload{
		Recipient: "+15550001111", Code: "000111",
	})
	require.NoError(t, err)

	// Two failures cost 2s+4s of backoff before the third attempt lands.
	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.ID)
		return err == nil && stored.State == jobqueue.JobStateCompleted
	}, 10*time.Second, 50*time.Millisecond)

	assert.Equal(t, int32(3), attempts.Load())

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(3), stored.AttemptsMade)
}

func TestWorker_ExhaustsRetryBudget(t *testing.T) {
	t.Parallel()
	queue, store := newTestQueue(t)
	worker := newTestWorker(t, queue)

	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendNotification,
		func(ctx context.Context, p jobqueue.NotificationPayload) error {
			return errors.New("permanent transport failure")
		}))

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification,
		jobqueue.NotificationPayload{UserID: "u-1"},
		jobqueue.WithMaxAttempts(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.ID)
		return err == nil && stored.State == jobqueue.JobStateFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "permanent transport failure")
}

func TestWorker_PanicIsFailure(t *testing.T) {
	t.Parallel()
	queue, store := newTestQueue(t)
	worker := newTestWorker(t, queue)

	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendNotification,
		func(ctx context.Context, p jobqueue.NotificationPayload) error {
			panic("handler exploded")
		}))

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification,
		jobqueue.NotificationPayload{UserID: "u-1"},
		jobqueue.WithMaxAttempts(1))
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.ID)
		return err == nil && stored.State == jobqueue.JobStateFailed
	}, 2*time.Second, 10*time.Millisecond)

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "panic")
}

func TestWorker_MissingHandlerFailsTerminally(t *testing.T) {
	t.Parallel()
	queue, store := newTestQueue(t)
	worker := newTestWorker(t, queue)

	// Bulk jobs are enqueueable but this worker only handles OTP.
	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendOTP,
		func(ctx context.Context, p jobqueue.OTPPayload) error { return nil }))

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendBulk, jobqueue.BulkPayload{
		UserIDs: []string{"u-1"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.ID)
		return err == nil && stored.State == jobqueue.JobStateFailed
	}, 2*time.Second, 10*time.Millisecond)

	// No retries: nobody handles this type, burning the budget helps no one.
	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, int8(1), stored.AttemptsMade)
	require.NotNil(t, stored.FailureReason)
	assert.Contains(t, *stored.FailureReason, "no handler registered")
}

func TestWorker_PausedQueueClaimsNothing(t *testing.T) {
	t.Parallel()
	queue, store := newTestQueue(t)
	worker := newTestWorker(t, queue)

	var processed atomic.Int32
	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendNotification,
		func(ctx context.Context, p jobqueue.NotificationPayload) error {
			processed.Add(1)
			return nil
		}))

	queue.Pause()

	ctx := context.Background()
	require.NoError(t, worker.Start(ctx))
	t.Cleanup(func() { _ = worker.Stop() })

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, jobqueue.NotificationPayload{UserID: "u-1"})
	require.NoError(t, err)

	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), processed.Load())

	stored, err := store.GetJob(ctx, job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.JobStateWaiting, stored.State)

	queue.Resume()
	require.Eventually(t, func() bool {
		stored, err := store.GetJob(ctx, job.ID)
		return err == nil && stored.State == jobqueue.JobStateCompleted
	}, 2*time.Second, 10*time.Millisecond)
}

// shutdownStore captures the context error seen by CompleteJob, the way
// a context-respecting store implementation would.
type shutdownStore struct {
	*jobqueue.MemoryStore
	completeCtxErr chan error
}

func (s *shutdownStore) CompleteJob(ctx context.Context, id uuid.UUID) error {
	s.completeCtxErr <- ctx.Err()
	return s.MemoryStore.CompleteJob(ctx, id)
}

func TestWorker_RecordsOutcomeDuringShutdown(t *testing.T) {
	t.Parallel()

	store := &shutdownStore{
		MemoryStore:    jobqueue.NewMemoryStore(),
		completeCtxErr: make(chan error, 1),
	}
	t.Cleanup(func() { _ = store.Close() })

	queue, err := jobqueue.NewQueue(store)
	require.NoError(t, err)
	worker := newTestWorker(t, queue)

	started := make(chan struct{})
	release := make(chan struct{})
	worker.RegisterHandler(jobqueue.NewHandler(jobqueue.JobTypeSendNotification,
		func(ctx context.Context, p jobqueue.NotificationPayload) error {
			close(started)
			<-release
			return nil
		}))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, worker.Start(ctx))

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification,
		jobqueue.NotificationPayload{UserID: "u-1"})
	require.NoError(t, err)

	<-started

	// Cancel the worker context while the job is still in flight, then
	// let it finish. Its outcome must still reach the store.
	cancel()
	close(release)
	require.NoError(t, worker.Stop())

	select {
	case ctxErr := <-store.completeCtxErr:
		assert.NoError(t, ctxErr, "completion write must not run on the cancelled worker context")
	case <-time.After(time.Second):
		t.Fatal("job completion never recorded")
	}

	stored, err := store.GetJob(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, jobqueue.JobStateCompleted, stored.State)
}

func TestWorker_StartValidation(t *testing.T) {
	t.Parallel()
	queue, _ := newTestQueue(t)

	worker, err := jobqueue.NewWorker(queue)
	require.NoError(t, err)

	err = worker.Start(context.Background())
	assert.ErrorIs(t, err, jobqueue.ErrNoHandlers)
}
