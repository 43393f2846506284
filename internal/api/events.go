package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/ispkit/notify/pkg/dispatch"
	"github.com/ispkit/notify/pkg/policy"
)

// EventsHandler is the entrypoint for event producers (ticket, invoice,
// payment and registration services) and the delivery record audit view.
type EventsHandler struct {
	dispatcher *dispatch.Dispatcher
	records    dispatch.RecordStore
}

// NewEventsHandler creates the events handler.
func NewEventsHandler(dispatcher *dispatch.Dispatcher, records dispatch.RecordStore) *EventsHandler {
	return &EventsHandler{dispatcher: dispatcher, records: records}
}

// Routes mounts the handler under the given router.
func (h *EventsHandler) Routes(r chi.Router) {
	r.Post("/events", h.dispatchEvent)
	r.Get("/users/{userID}/deliveries", h.userRecords)
	r.Get("/deliveries", h.recordsByStatus)
}

type dispatchRequest struct {
	Type     string          `json:"type"`
	Priority policy.Priority `json:"priority"`
	Title    string          `json:"title"`
	Message  string          `json:"message"`
	Payload  map[string]any  `json:"payload,omitempty"`
	Target   dispatch.Target `json:"target"`
}

func (h *EventsHandler) dispatchEvent(w http.ResponseWriter, r *http.Request) {
	var req dispatchRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid event payload"))
		return
	}

	event, err := dispatch.NewEvent(req.Type, req.Priority, req.Title, req.Message, req.Payload, req.Target)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}

	summary, err := h.dispatcher.Dispatch(r.Context(), event)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusAccepted, summary)
}

func (h *EventsHandler) userRecords(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.records.ListByUser(r.Context(), chi.URLParam(r, "userID"), limit)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deliveries": records})
}

func (h *EventsHandler) recordsByStatus(w http.ResponseWriter, r *http.Request) {
	status := dispatch.RecordStatus(r.URL.Query().Get("status"))
	if status == "" {
		status = dispatch.RecordSuppressed
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	records, err := h.records.ListByStatus(r.Context(), status, limit)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deliveries": records})
}
