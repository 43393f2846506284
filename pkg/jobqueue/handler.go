package jobqueue

import (
	"context"
	"encoding/json"
)

type (
	// Handler processes jobs of a single type.
	Handler interface {
		Type() JobType
		Handle(ctx context.Context, payload json.RawMessage) error
	}

	// HandlerFunc is a typed job handler. The payload type is the variant
	// of the job-type tagged union the handler is registered for.
	HandlerFunc[T any] func(ctx context.Context, payload T) error
)

// NewHandler wraps a typed handler function for the given job type.
// The raw payload is unmarshaled into T before the function is invoked.
func NewHandler[T any](jobType JobType, fn HandlerFunc[T]) Handler {
	return &typedHandler[T]{jobType: jobType, fn: fn}
}

type typedHandler[T any] struct {
	jobType JobType
	fn      HandlerFunc[T]
}

func (h *typedHandler[T]) Type() JobType {
	return h.jobType
}

func (h *typedHandler[T]) Handle(ctx context.Context, payload json.RawMessage) error {
	var t T
	if err := json.Unmarshal(payload, &t); err != nil {
		return err
	}
	return h.fn(ctx, t)
}
