package jobqueue

import (
	"time"

	"github.com/google/uuid"
)

// JobType identifies the channel-specific operation a job performs.
type JobType string

const (
	JobTypeSendOTP          JobType = "send-otp"
	JobTypeSendNotification JobType = "send-notification"
	JobTypeSendGroup        JobType = "send-group"
	JobTypeSendBulk         JobType = "send-bulk"
)

// JobState represents the lifecycle state of a job.
type JobState string

const (
	JobStateWaiting   JobState = "waiting"
	JobStateActive    JobState = "active"
	JobStateCompleted JobState = "completed"
	JobStateFailed    JobState = "failed"
	JobStateDelayed   JobState = "delayed"
)

// Valid reports whether s is a known job state.
func (s JobState) Valid() bool {
	switch s {
	case JobStateWaiting, JobStateActive, JobStateCompleted, JobStateFailed, JobStateDelayed:
		return true
	}
	return false
}

// Priority represents job priority. Higher values are claimed first;
// within one priority, jobs are processed FIFO by enqueue time.
type Priority int8

const (
	PriorityBulk         Priority = 1
	PriorityGroup        Priority = 3
	PriorityNotification Priority = 5
	PriorityOTP          Priority = 10
	PriorityDefault      Priority = PriorityNotification
)

// priorityByType is the fixed job-type to priority mapping. OTP sends are
// the most urgent, bulk fan-outs yield to everything else.
var priorityByType = map[JobType]Priority{
	JobTypeSendOTP:          PriorityOTP,
	JobTypeSendNotification: PriorityNotification,
	JobTypeSendGroup:        PriorityGroup,
	JobTypeSendBulk:         PriorityBulk,
}

// PriorityForType resolves the priority for a job type,
// falling back to PriorityDefault for unmapped types.
func PriorityForType(jobType JobType) Priority {
	if p, ok := priorityByType[jobType]; ok {
		return p
	}
	return PriorityDefault
}

const (
	// DefaultMaxAttempts bounds automatic retries per job.
	DefaultMaxAttempts int8 = 3

	// BackoffBase is the first retry delay; it doubles with every attempt.
	BackoffBase = 2 * time.Second
)

// BackoffFor returns the delay before the next automatic attempt,
// given the number of attempts already made.
func BackoffFor(attemptsMade int8) time.Duration {
	if attemptsMade < 1 {
		return BackoffBase
	}
	return BackoffBase << (attemptsMade - 1)
}

// Job is a queued unit of channel-specific work.
type Job struct {
	ID            uuid.UUID  `json:"id"`
	Type          JobType    `json:"job_type"`
	Payload       []byte     `json:"payload,omitempty"`
	Priority      Priority   `json:"priority"`
	AttemptsMade  int8       `json:"attempts_made"`
	MaxAttempts   int8       `json:"max_attempts"`
	State         JobState   `json:"state"`
	RunAt         time.Time  `json:"run_at"`
	LockedUntil   *time.Time `json:"locked_until,omitempty"`
	LockedBy      *uuid.UUID `json:"locked_by,omitempty"`
	CreatedAt     time.Time  `json:"created_at"`
	ProcessedAt   *time.Time `json:"processed_at,omitempty"`
	FinishedAt    *time.Time `json:"finished_at,omitempty"`
	FailureReason *string    `json:"failure_reason,omitempty"`
}

// Stats is a per-state snapshot of the queue.
type Stats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
	Total     int `json:"total"`
}
