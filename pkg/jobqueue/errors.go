package jobqueue

import "errors"

var (
	// ErrStoreNil is returned when a nil store is provided.
	ErrStoreNil = errors.New("store cannot be nil")

	// ErrPayloadNil is returned when attempting to enqueue a nil payload.
	ErrPayloadNil = errors.New("payload cannot be nil")

	// ErrUnknownJobType is returned when enqueueing a job type no handler is registered for.
	ErrUnknownJobType = errors.New("unknown job type")

	// ErrJobNotFound is returned when a job id does not exist in the store.
	ErrJobNotFound = errors.New("job not found")

	// ErrJobNotRetryable is returned by Retry for jobs not in the failed state.
	ErrJobNotRetryable = errors.New("job is not in a retryable state")

	// ErrNoJobToClaim signals that no ready job is available; callers treat it as idle, not failure.
	ErrNoJobToClaim = errors.New("no job available to claim")

	// ErrInvalidJobState is returned when an unknown state name is supplied.
	ErrInvalidJobState = errors.New("invalid job state")

	// ErrNoHandlers is returned when a worker is started with no handlers registered.
	ErrNoHandlers = errors.New("no job handlers registered")

	// ErrHandlerNotFound is returned when a claimed job has no registered handler.
	ErrHandlerNotFound = errors.New("no handler registered for job type")

	// ErrJobTimeout marks a job that exceeded its processing timeout.
	ErrJobTimeout = errors.New("job processing timed out")
)
