package handlers

import (
	"encoding/json"
	"log"
	"net/http"

	"streamweave/config"
)

// SettingsHandler reads and writes the persisted configuration. Writes
// trigger a source registry reload so new providers join the cascade without
// a restart.
type SettingsHandler struct {
	Manager  *config.Manager
	OnUpdate func(config.Settings)
}

func NewSettingsHandler(m *config.Manager, onUpdate func(config.Settings)) *SettingsHandler {
	return &SettingsHandler{Manager: m, OnUpdate: onUpdate}
}

// GetSettings returns the current configuration.
func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	settings, err := h.Manager.Load()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// PutSettings replaces the configuration on disk.
func (h *SettingsHandler) PutSettings(w http.ResponseWriter, r *http.Request) {
	var settings config.Settings
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&settings); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := h.Manager.Save(settings); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("[settings-handler] settings updated, %d source(s) configured", len(settings.Sources))

	if h.OnUpdate != nil {
		h.OnUpdate(settings)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(settings)
}

// Options handles CORS preflight requests.
func (h *SettingsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
