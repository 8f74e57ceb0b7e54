package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"streamweave/services/prefetch"
)

type prefetchManager interface {
	StartSession(state prefetch.PlaybackState) string
	UpdateState(id string, state prefetch.PlaybackState) bool
	StopSession(id string) bool
	Sessions() []string
}

// PrefetchHandler manages segment-warming sessions for active playback.
type PrefetchHandler struct {
	Manager prefetchManager
}

var _ prefetchManager = (*prefetch.Manager)(nil)

func NewPrefetchHandler(m prefetchManager) *PrefetchHandler {
	return &PrefetchHandler{Manager: m}
}

// Start opens a warming session for the given playback state.
func (h *PrefetchHandler) Start(w http.ResponseWriter, r *http.Request) {
	var state prefetch.PlaybackState
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&state); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if state.URI == "" {
		http.Error(w, "uri is required", http.StatusBadRequest)
		return
	}

	id := h.Manager.StartSession(state)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	json.NewEncoder(w).Encode(map[string]string{"sessionId": id})
}

// UpdateState reports the player's current state into a session.
func (h *PrefetchHandler) UpdateState(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionID"]

	var state prefetch.PlaybackState
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&state); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if !h.Manager.UpdateState(id, state) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Stop ends a warming session.
func (h *PrefetchHandler) Stop(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["sessionID"]
	if !h.Manager.StopSession(id) {
		http.Error(w, "session not found", http.StatusNotFound)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// List reports the active session IDs.
func (h *PrefetchHandler) List(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"sessions": h.Manager.Sessions()})
}

// Options handles CORS preflight requests.
func (h *PrefetchHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
