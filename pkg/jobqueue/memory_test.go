package jobqueue_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ispkit/notify/pkg/jobqueue"
)

func TestMemoryStore_ClaimOrdering(t *testing.T) {
	t.Parallel()

	t.Run("higher priority claimed first regardless of enqueue order", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		bulk, err := queue.Enqueue(ctx, jobqueue.JobTypeSendBulk, testPayload{})
		require.NoError(t, err)
		otp, err := queue.Enqueue(ctx, jobqueue.JobTypeSendOTP, testPayload{})
		require.NoError(t, err)

		first, err := store.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, otp.ID, first.ID)

		second, err := store.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, bulk.ID, second.ID)
	})

	t.Run("fifo within one priority", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		first, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{Message: "a"})
		require.NoError(t, err)
		time.Sleep(5 * time.Millisecond)
		_, err = queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{Message: "b"})
		require.NoError(t, err)

		claimed, err := store.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		assert.Equal(t, first.ID, claimed.ID)
	})

	t.Run("no ready jobs", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		_, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{},
			jobqueue.WithDelay(time.Hour))
		require.NoError(t, err)

		_, err = store.ClaimJob(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, jobqueue.ErrNoJobToClaim)
	})

	t.Run("claim is exclusive", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{})
		require.NoError(t, err)

		workerID := uuid.New()
		claimed, err := store.ClaimJob(ctx, workerID, time.Minute)
		require.NoError(t, err)
		assert.Equal(t, job.ID, claimed.ID)
		assert.Equal(t, jobqueue.JobStateActive, claimed.State)
		assert.Equal(t, int8(1), claimed.AttemptsMade)
		require.NotNil(t, claimed.LockedBy)
		assert.Equal(t, workerID, *claimed.LockedBy)

		_, err = store.ClaimJob(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, jobqueue.ErrNoJobToClaim)
	})
}

func TestMemoryStore_FailureAndRetry(t *testing.T) {
	t.Parallel()

	t.Run("failure before budget exhaustion delays with backoff", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{})
		require.NoError(t, err)

		_, err = store.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailJob(ctx, job.ID, "smtp unreachable"))

		stored, err := store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, jobqueue.JobStateDelayed, stored.State)
		require.NotNil(t, stored.FailureReason)
		assert.Equal(t, "smtp unreachable", *stored.FailureReason)
		// First failed attempt waits the base backoff before rerunning.
		assert.WithinDuration(t, time.Now().Add(2*time.Second), stored.RunAt, time.Second)
	})

	t.Run("exhausted budget fails terminally", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{},
			jobqueue.WithMaxAttempts(1))
		require.NoError(t, err)

		_, err = store.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailJob(ctx, job.ID, "boom"))

		stored, err := store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, jobqueue.JobStateFailed, stored.State)
		require.NotNil(t, stored.FinishedAt)
	})

	t.Run("manual retry requeues without touching attempts", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{},
			jobqueue.WithMaxAttempts(1))
		require.NoError(t, err)

		_, err = store.ClaimJob(ctx, uuid.New(), time.Minute)
		require.NoError(t, err)
		require.NoError(t, store.FailJob(ctx, job.ID, "boom"))

		require.NoError(t, queue.Retry(ctx, job.ID))

		stored, err := store.GetJob(ctx, job.ID)
		require.NoError(t, err)
		assert.Equal(t, jobqueue.JobStateWaiting, stored.State)
		assert.Equal(t, int8(1), stored.AttemptsMade)
	})

	t.Run("retry rejects non-failed jobs", func(t *testing.T) {
		t.Parallel()
		queue, _ := newTestQueue(t)
		ctx := context.Background()

		job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{})
		require.NoError(t, err)

		err = queue.Retry(ctx, job.ID)
		assert.ErrorIs(t, err, jobqueue.ErrJobNotRetryable)
	})

	t.Run("retry rejects unknown job", func(t *testing.T) {
		t.Parallel()
		queue, _ := newTestQueue(t)

		err := queue.Retry(context.Background(), uuid.New())
		assert.ErrorIs(t, err, jobqueue.ErrJobNotFound)
	})

	t.Run("delayed job becomes claimable after backoff elapses", func(t *testing.T) {
		t.Parallel()
		queue, store := newTestQueue(t)
		ctx := context.Background()

		job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{},
			jobqueue.WithDelay(30*time.Millisecond))
		require.NoError(t, err)

		_, err = store.ClaimJob(ctx, uuid.New(), time.Minute)
		assert.ErrorIs(t, err, jobqueue.ErrNoJobToClaim)

		require.Eventually(t, func() bool {
			claimed, err := store.ClaimJob(ctx, uuid.New(), time.Minute)
			return err == nil && claimed.ID == job.ID
		}, time.Second, 10*time.Millisecond)
	})
}

func TestMemoryStore_PurgeFinished(t *testing.T) {
	t.Parallel()
	queue, store := newTestQueue(t)
	ctx := context.Background()

	job, err := queue.Enqueue(ctx, jobqueue.JobTypeSendNotification, testPayload{})
	require.NoError(t, err)
	_, err = store.ClaimJob(ctx, uuid.New(), time.Minute)
	require.NoError(t, err)
	require.NoError(t, store.CompleteJob(ctx, job.ID))

	// Zero grace removes everything already finished.
	removed, err := queue.Clean(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, removed)

	_, err = store.GetJob(ctx, job.ID)
	assert.ErrorIs(t, err, jobqueue.ErrJobNotFound)
}
