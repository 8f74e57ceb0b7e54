package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"streamweave/models"
	resolversvc "streamweave/services/resolver"
)

type resolverService interface {
	Resolve(ctx context.Context, desc models.MediaDescriptor, hint string) (*models.Playback, error)
}

// PlaybackHandler turns media descriptors into playable streams via the
// provider cascade.
type PlaybackHandler struct {
	Service resolverService
}

var _ resolverService = (*resolversvc.Service)(nil)

func NewPlaybackHandler(s resolverService) *PlaybackHandler {
	return &PlaybackHandler{Service: s}
}

// Resolve accepts a media descriptor and responds with a validated playback.
func (h *PlaybackHandler) Resolve(w http.ResponseWriter, r *http.Request) {
	var request struct {
		Media models.MediaDescriptor `json:"media"`
		Hint  string                 `json:"hint,omitempty"`
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.Media.Title == "" && len(request.Media.ExternalIDs) == 0 {
		http.Error(w, "media descriptor needs a title or external id", http.StatusBadRequest)
		return
	}

	start := time.Now()
	log.Printf("[playback-handler] resolve request: kind=%s title=%q hint=%q",
		request.Media.Kind, request.Media.Title, request.Hint)

	playback, err := h.Service.Resolve(r.Context(), request.Media, request.Hint)
	if err != nil {
		log.Printf("[playback-handler] resolve failed after %v: %v", time.Since(start), err)
		if errors.Is(err, resolversvc.ErrResolutionFailed) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	log.Printf("[playback-handler] resolved via %s in %v", playback.SourceID, time.Since(start))

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(playback)
}

// Options handles CORS preflight requests.
func (h *PlaybackHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
