package api

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ispkit/notify/pkg/policy"
)

// SettingsHandler serves the per-user notification preferences consumed
// by the front-end settings UI.
type SettingsHandler struct {
	engine *policy.Engine
}

// NewSettingsHandler creates the settings handler.
func NewSettingsHandler(engine *policy.Engine) *SettingsHandler {
	return &SettingsHandler{engine: engine}
}

// Routes mounts the handler under the given router.
func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/users/{userID}/settings", h.getSettings)
	r.Patch("/users/{userID}/settings", h.updateSettings)
	r.Patch("/users/{userID}/settings/types/{eventType}", h.updateTypeSettings)
	r.Get("/users/{userID}/channels", h.allowedChannels)
}

func (h *SettingsHandler) getSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.engine.Settings(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) updateSettings(w http.ResponseWriter, r *http.Request) {
	var patch policy.SettingsPatch
	if err := decodeBody(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid settings payload"))
		return
	}

	settings, err := h.engine.UpdateSettings(r.Context(), chi.URLParam(r, "userID"), patch)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) updateTypeSettings(w http.ResponseWriter, r *http.Request) {
	var patch policy.TypeSettingPatch
	if err := decodeBody(r, &patch); err != nil {
		respondError(w, http.StatusBadRequest, errors.New("invalid type settings payload"))
		return
	}

	settings, err := h.engine.UpdateTypeSettings(r.Context(),
		chi.URLParam(r, "userID"), chi.URLParam(r, "eventType"), patch)
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, settings)
}

func (h *SettingsHandler) allowedChannels(w http.ResponseWriter, r *http.Request) {
	channels, err := h.engine.AllowedChannels(r.Context(), chi.URLParam(r, "userID"))
	if err != nil {
		respondError(w, statusFor(err), err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]any{"channels": channels})
}
