package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ispkit/notify/pkg/devices"
	"github.com/ispkit/notify/pkg/dispatch"
	"github.com/ispkit/notify/pkg/jobqueue"
	"github.com/ispkit/notify/pkg/policy"
)

type errorResponse struct {
	Error string `json:"error"`
}

func respondJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if body != nil {
		_ = json.NewEncoder(w).Encode(body)
	}
}

func respondError(w http.ResponseWriter, status int, err error) {
	respondJSON(w, status, errorResponse{Error: err.Error()})
}

// statusFor maps domain errors onto HTTP statuses. Anything unmapped is
// an internal error.
func statusFor(err error) int {
	switch {
	case errors.Is(err, jobqueue.ErrJobNotFound),
		errors.Is(err, devices.ErrDeviceNotFound),
		errors.Is(err, devices.ErrLogNotFound),
		errors.Is(err, policy.ErrSettingsNotFound):
		return http.StatusNotFound
	case errors.Is(err, jobqueue.ErrJobNotRetryable),
		errors.Is(err, devices.ErrStatusNotAdvancing):
		return http.StatusConflict
	case errors.Is(err, jobqueue.ErrUnknownJobType),
		errors.Is(err, jobqueue.ErrInvalidJobState),
		errors.Is(err, jobqueue.ErrPayloadNil),
		errors.Is(err, devices.ErrInvalidDeviceType),
		errors.Is(err, dispatch.ErrUnknownEventType),
		errors.Is(err, dispatch.ErrInvalidPriority),
		errors.Is(err, dispatch.ErrNoTarget):
		return http.StatusBadRequest
	case errors.Is(err, dispatch.ErrNoRecipients):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

func decodeBody(r *http.Request, dst any) error {
	defer func() { _ = r.Body.Close() }()
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}
