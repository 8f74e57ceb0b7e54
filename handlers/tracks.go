package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"net/http"

	manifestsvc "streamweave/services/manifest"
	"streamweave/utils/proxyurl"
)

type manifestIntrospector interface {
	Introspect(ctx context.Context, manifestURL string, headers map[string]string) (*manifestsvc.Tracks, error)
}

// TracksHandler exposes manifest introspection and track selection. Selection
// is stateless: the client sends the track URI it picked and gets back the
// final URI/header pair for its player.
type TracksHandler struct {
	Introspector manifestIntrospector
	PublicBase   string
}

var _ manifestIntrospector = (*manifestsvc.Introspector)(nil)

func NewTracksHandler(in manifestIntrospector, publicBase string) *TracksHandler {
	return &TracksHandler{Introspector: in, PublicBase: publicBase}
}

type tracksRequest struct {
	URI     string            `json:"uri"`
	Headers map[string]string `json:"headers,omitempty"`
}

// decodeTarget resolves a possibly proxy-wrapped URI into the direct URL and
// its embedded headers.
func decodeTarget(req tracksRequest) (string, map[string]string) {
	if target, headers, ok := proxyurl.Unwrap(req.URI); ok {
		if len(headers) == 0 {
			headers = req.Headers
		}
		return target, headers
	}
	return req.URI, req.Headers
}

// Introspect parses a multivariant playlist into selectable tracks.
// Failures are advisory: the client keeps playing its current variant.
func (h *TracksHandler) Introspect(w http.ResponseWriter, r *http.Request) {
	var request tracksRequest
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.URI == "" {
		http.Error(w, "uri is required", http.StatusBadRequest)
		return
	}

	target, headers := decodeTarget(request)
	tracks, err := h.Introspector.Introspect(r.Context(), target, headers)
	if err != nil {
		log.Printf("[tracks-handler] introspection failed for %q: %v", target, err)
		if errors.Is(err, manifestsvc.ErrIntrospection) {
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(tracks)
}

// deriveTarget re-derives the playable URI/header pair for a chosen track
// URI, re-wrapping in the stream proxy when headers are needed. Selection
// never re-runs the provider cascade.
func (h *TracksHandler) deriveTarget(w http.ResponseWriter, r *http.Request, extra map[string]any) {
	var request struct {
		ID      string            `json:"id,omitempty"`
		URI     string            `json:"uri"`
		Headers map[string]string `json:"headers,omitempty"`
	}
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&request); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if request.URI == "" {
		http.Error(w, "uri is required", http.StatusBadRequest)
		return
	}

	uri := request.URI
	headers := request.Headers
	if len(headers) > 0 && h.PublicBase != "" && !proxyurl.IsWrapped(uri) {
		uri = proxyurl.Wrap(h.PublicBase, uri, headers)
		headers = nil
	}

	response := map[string]any{
		"uri":     uri,
		"headers": headers,
	}
	if request.ID != "" {
		response["id"] = request.ID
	}
	for k, v := range extra {
		response[k] = v
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// SelectQuality switches playback to a chosen variant URI.
func (h *TracksHandler) SelectQuality(w http.ResponseWriter, r *http.Request) {
	h.deriveTarget(w, r, nil)
}

// SelectAudio acknowledges an audio rendition choice. HLS audio lives inside
// the same playlist, so the playback URI is unchanged; the player applies the
// group switch locally.
func (h *TracksHandler) SelectAudio(w http.ResponseWriter, r *http.Request) {
	h.deriveTarget(w, r, map[string]any{"applyLocally": true})
}

// SelectCaption derives the fetchable URL for a chosen caption track.
func (h *TracksHandler) SelectCaption(w http.ResponseWriter, r *http.Request) {
	h.deriveTarget(w, r, nil)
}

// Options handles CORS preflight requests.
func (h *TracksHandler) Options(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
}
