package api

import (
	"net/http"

	"github.com/harrylevesque/makerdash/internal/models"
)

func (h *handlers) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := h.svc.Settings(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (h *handlers) saveSettings(w http.ResponseWriter, r *http.Request) {
	var next models.Settings
	if err := decode(w, r, &next, false); err != nil {
		h.writeError(w, r, err)
		return
	}
	s, err := h.svc.SaveSettings(r.Context(), next)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

// testConnection tests the posted settings, or the stored ones when the
// body is empty.
func (h *handlers) testConnection(w http.ResponseWriter, r *http.Request) {
	var in *models.Settings
	if err := decode(w, r, &in, true); err != nil {
		h.writeError(w, r, err)
		return
	}
	status, err := h.svc.TestConnection(r.Context(), in)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, status)
}

func (h *handlers) zmqConfig(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.svc.ZMQConfig(r.Context())
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"config": cfg})
}
