// Package hosts turns embed/redirect pages from known video hosts into
// directly fetchable media URLs. Host markup changes without notice, so every
// handler is best-effort: irrecoverable failures return a nil result, never a
// panic, and the caller moves on to the next candidate.
package hosts

import (
	"context"
	"errors"
	"log"
	"net/http"
	"strings"
	"time"
)

// ErrHostResolution is returned when no handler could extract a direct URL.
var ErrHostResolution = errors.New("host resolution failed")

// ErrFileGone is returned when a host page says the file is permanently
// unavailable. It is terminal: probing the same page again cannot help.
var ErrFileGone = errors.New("file gone from host")

// Result is a directly fetchable media location.
type Result struct {
	URI     string
	Headers map[string]string
}

// Hints carries optional context a handler may use when probing.
type Hints struct {
	Referer string
	Title   string
}

// Handler is one per-host resolution strategy. Resolve returns (nil, nil)
// for a soft failure the registry should not log as an error, and ErrFileGone
// when the host says the file is permanently gone.
type Handler interface {
	Name() string
	Matches(rawURL string) bool
	Resolve(ctx context.Context, embedURL string, hints Hints) (*Result, error)
}

// Registry dispatches an embed URL to the first matching handler, with the
// generic prober as the fallback for unrecognized hosts.
type Registry struct {
	handlers []Handler
	fallback Handler
}

// NewRegistry builds the default handler set over the given client.
// A nil client gets a default with a 10s timeout.
func NewRegistry(httpc *http.Client) *Registry {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Registry{
		handlers: []Handler{
			NewStreamtapeHandler(httpc),
			NewMixdropHandler(httpc),
		},
		fallback: NewGenericHandler(httpc),
	}
}

// Resolve tries each matching handler in order, then the generic fallback.
func (r *Registry) Resolve(ctx context.Context, embedURL string, hints Hints) (*Result, error) {
	for _, h := range r.handlers {
		if !h.Matches(embedURL) {
			continue
		}
		res, err := h.Resolve(ctx, embedURL, hints)
		if errors.Is(err, ErrFileGone) {
			log.Printf("[hosts] %s reports %q gone", h.Name(), embedURL)
			return nil, ErrFileGone
		}
		if err != nil {
			log.Printf("[hosts] %s failed for %q: %v", h.Name(), embedURL, err)
			continue
		}
		if res != nil {
			log.Printf("[hosts] %s resolved %q", h.Name(), embedURL)
			return res, nil
		}
	}

	res, err := r.fallback.Resolve(ctx, embedURL, hints)
	if errors.Is(err, ErrFileGone) {
		log.Printf("[hosts] %s reports %q gone", r.fallback.Name(), embedURL)
		return nil, ErrFileGone
	}
	if err != nil {
		log.Printf("[hosts] %s failed for %q: %v", r.fallback.Name(), embedURL, err)
	}
	if res != nil {
		return res, nil
	}
	return nil, ErrHostResolution
}

func containsAny(haystack string, needles ...string) bool {
	lower := strings.ToLower(haystack)
	for _, n := range needles {
		if strings.Contains(lower, n) {
			return true
		}
	}
	return false
}

// isDirectMediaURL reports whether a URL already points at a playlist or
// media file and needs no host resolution.
func isDirectMediaURL(rawURL string) bool {
	lower := strings.ToLower(rawURL)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	for _, ext := range []string{".m3u8", ".mp4", ".mkv", ".webm", ".mov"} {
		if strings.HasSuffix(lower, ext) {
			return true
		}
	}
	return false
}

func isMediaContentType(ct string) bool {
	ct = strings.ToLower(strings.TrimSpace(ct))
	return strings.HasPrefix(ct, "video/") ||
		strings.HasPrefix(ct, "audio/") ||
		strings.Contains(ct, "application/octet-stream") ||
		strings.Contains(ct, "mpegurl") ||
		strings.Contains(ct, "application/dash+xml")
}

func isHTMLContentType(ct string) bool {
	return strings.Contains(strings.ToLower(ct), "text/html")
}
