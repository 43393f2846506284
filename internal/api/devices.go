package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/ispkit/notify/pkg/devices"
)

// DevicesHandler serves device registration and push delivery tracking.
type DevicesHandler struct {
	registry *devices.Registry
}

// NewDevicesHandler creates the devices handler.
func NewDevicesHandler(registry *devices.Registry) *DevicesHandler {
	return &DevicesHandler{registry: registry}
}

// Routes mounts the handler under the given router.
func (h *DevicesHandler) Routes(r chi.Router) {
	r.Post("/users/{userID}/devices", h.register)
	r.Get("/users/{userID}/devices", h.list)
	r.Delete("/devices/{token}", h.unregister)
	r.Get("/notifications/{notificationID}/deliveries", h.deliveries)
	r.Post("/notifications/{notificationID}/deliveries/{deviceID}", h.logDelivery)
}

func (h *DevicesHandler) register(w http.ResponseWriter, r *http.Request) {
	var input devices.RegisterInput
	if err := decodeBody(r, &input); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid device payload"))
		return
	}

	device, err := h.registry.Register(r.Context(), chi.URLParam(r, "userID"), input)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusCreated, device)
}

func (h *DevicesHandler) list(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.UserDevices(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"devices": list})
}

func (h *DevicesHandler) unregister(w http.ResponseWriter, r *http.Request) {
	if err := h.registry.Unregister(r.Context(), chi.URLParam(r, "token")); err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": "deactivated"})
}

func (h *DevicesHandler) deliveries(w http.ResponseWriter, r *http.Request) {
	logs, err := h.registry.DeliveryLogs(r.Context(), chi.URLParam(r, "notificationID"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"deliveries": logs})
}

type logDeliveryRequest struct {
	Status devices.DeliveryStatus `json:"status"`
	Error  string                 `json:"error,omitempty"`
}

func (h *DevicesHandler) logDelivery(w http.ResponseWriter, r *http.Request) {
	deviceID, err := uuid.Parse(chi.URLParam(r, "deviceID"))
	if err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid device id"))
		return
	}

	var req logDeliveryRequest
	if err := decodeBody(r, &req); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid delivery payload"))
		return
	}

	err = h.registry.LogDelivery(r.Context(),
		chi.URLParam(r, "notificationID"), deviceID, req.Status, req.Error)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"status": string(req.Status)})
}
