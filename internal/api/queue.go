package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/jobqueue"
)

// QueueHandler exposes the operational surface of the delivery job
// queue: stats, inspection by state, manual retry, pause/resume and
// cleanup. None of this is on the delivery hot path.
type QueueHandler struct {
	queue *jobqueue.Queue
}

// NewQueueHandler creates the queue admin handler.
func NewQueueHandler(queue *jobqueue.Queue) *QueueHandler {
	return &QueueHandler{queue: queue}
}

// Routes mounts the handler under the given router.
func (h *QueueHandler) Routes(r chi.Router) {
	r.Get("/stats", h.stats)
	r.Get("/jobs", h.listJobs)
	r.Post("/jobs/{id}/retry", h.retry)
	r.Post("/pause", h.pause)
	r.Post("/resume", h.resume)
	r.Post("/clean", h.clean)
}

func (h *QueueHandler) stats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.queue.Stats(r.Context())
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, stats)
}

func (h *QueueHandler) listJobs(w http.ResponseWriter, r *http.Request) {
	state := jobqueue.JobState(r.URL.Query().Get("state"))
	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	if limit <= 0 || limit > 500 {
		limit = 50
	}

	jobs, err := h.queue.JobsByState(r.Context(), state, offset, limit)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{
		"state": state,
		"jobs":  jobs,
	})
}

func (h *QueueHandler) retry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid job id"))
		return
	}

	if err := h.queue.Retry(r.Context(), id); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "requeued"})
}

func (h *QueueHandler) pause(w http.ResponseWriter, _ *http.Request) {
	h.queue.Pause()
	respondJSON(w, http.StatusOK, map[string]bool{"paused": true})
}

func (h *QueueHandler) resume(w http.ResponseWriter, _ *http.Request) {
	h.queue.Resume()
	respondJSON(w, http.StatusOK, map[string]bool{"paused": false})
}

func (h *QueueHandler) clean(w http.ResponseWriter, r *http.Request) {
	grace := time.Hour
	if raw := r.URL.Query().Get("grace_seconds"); raw != "" {
		seconds, err := strconv.Atoi(raw)
		if err != nil || seconds < 0 {
			respondError(w, http.StatusBadRequest, errors.New("invalid grace_seconds"))
			return
		}
		grace = time.Duration(seconds) * time.Second
	}

	removed, err := h.queue.Clean(r.Context(), grace)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]int{"removed": removed})
}
