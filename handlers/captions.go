package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"streamweave/models"
	captionsvc "streamweave/services/captions"
)

type captionService interface {
	Load(ctx context.Context, ref models.CaptionRef) ([]models.CaptionCue, error)
	ClearSession()
}

// CaptionsHandler serves parsed subtitle cue lists to the player overlay.
type CaptionsHandler struct {
	Service captionService
}

var _ captionService = (*captionsvc.Service)(nil)

func NewCaptionsHandler(s captionService) *CaptionsHandler {
	return &CaptionsHandler{Service: s}
}

// Load fetches and parses one caption track. A failed track never blocks
// playback, so errors map to 502 and the client just shows no captions.
func (h *CaptionsHandler) Load(w http.ResponseWriter, r *http.Request) {
	var ref models.CaptionRef
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&ref); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ref.URL == "" {
		http.Error(w, "caption url is required", http.StatusBadRequest)
		return
	}

	cues, err := h.Service.Load(r.Context(), ref)
	if err != nil {
		log.Printf("[captions-handler] load failed for %q: %v", ref.URL, err)
		if errors.Is(err, captionsvc.ErrCaptionLoad) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{
		"id":   ref.ID,
		"cues": cues,
	})
}

// ClearSession drops memoized cue lists when a playback session ends.
func (h *CaptionsHandler) ClearSession(w http.ResponseWriter, r *http.Request) {
	h.Service.ClearSession()
	w.WriteHeader(http.StatusNoContent)
}

// Options handles CORS preflight requests.
func (h *CaptionsHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
