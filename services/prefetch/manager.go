// Package prefetch warms upcoming HLS segments so mid-stream CDN latency
// spikes do not stall playback. Warming is advisory: every failure is
// swallowed and the next tick tries again.
package prefetch

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"streamweave/config"
	"streamweave/models"
	"streamweave/services/manifest"
	"streamweave/utils/proxyurl"

	"github.com/google/uuid"
	"github.com/sourcegraph/conc/pool"
)

// PlaybackState is the client-reported state that gates warming.
type PlaybackState struct {
	URI     string            `json:"uri"`
	Headers map[string]string `json:"headers,omitempty"`
	Kind    models.StreamKind `json:"kind"`
	Playing bool              `json:"playing"`
	Stalled bool              `json:"stalled"`
}

// playlistFetcher is the slice of manifest.Introspector the manager needs.
type playlistFetcher interface {
	Fetch(ctx context.Context, rawURL string, headers map[string]string) (string, string, error)
}

// Manager runs one warming loop per playback session.
type Manager struct {
	mu       sync.Mutex
	sessions map[string]*session

	httpc     *http.Client
	playlists playlistFetcher
	cfg       config.PrefetchSettings
}

type session struct {
	id     string
	cancel context.CancelFunc

	mu    sync.Mutex
	state PlaybackState
	seen  map[string]struct{}
}

// NewManager wires a prefetch manager from configuration. Zero-valued
// settings fall back to the shipped defaults.
func NewManager(httpc *http.Client, playlists playlistFetcher, cfg config.PrefetchSettings) *Manager {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.IntervalSec <= 0 {
		cfg.IntervalSec = 15
	}
	if cfg.MaxSegments <= 0 {
		cfg.MaxSegments = 40
	}
	if cfg.TargetDurationSec <= 0 {
		cfg.TargetDurationSec = 180
	}
	if cfg.SeenLimit <= 0 {
		cfg.SeenLimit = 600
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}
	return &Manager{
		sessions:  make(map[string]*session),
		httpc:     httpc,
		playlists: playlists,
		cfg:       cfg,
	}
}

// StartSession begins a warming loop for the given playback and returns its
// session ID.
func (m *Manager) StartSession(state PlaybackState) string {
	ctx, cancel := context.WithCancel(context.Background())
	s := &session{
		id:     uuid.NewString(),
		cancel: cancel,
		state:  state,
		seen:   make(map[string]struct{}),
	}

	m.mu.Lock()
	m.sessions[s.id] = s
	m.mu.Unlock()

	go m.run(ctx, s)
	log.Printf("[prefetch] session %s started for %q", s.id, state.URI)
	return s.id
}

// UpdateState replaces a session's playback state. A URI change resets the
// seen set synchronously so the next tick warms the new stream from scratch.
func (m *Manager) UpdateState(id string, state PlaybackState) bool {
	m.mu.Lock()
	s := m.sessions[id]
	m.mu.Unlock()
	if s == nil {
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if state.URI != "" && state.URI != s.state.URI {
		s.seen = make(map[string]struct{})
		log.Printf("[prefetch] session %s switched stream, window reset", id)
	}
	if state.URI == "" {
		state.URI = s.state.URI
		if state.Headers == nil {
			state.Headers = s.state.Headers
		}
		if state.Kind == "" {
			state.Kind = s.state.Kind
		}
	}
	s.state = state
	return true
}

// StopSession cancels a session's warming loop.
func (m *Manager) StopSession(id string) bool {
	m.mu.Lock()
	s := m.sessions[id]
	delete(m.sessions, id)
	m.mu.Unlock()
	if s == nil {
		return false
	}
	s.cancel()
	log.Printf("[prefetch] session %s stopped", id)
	return true
}

// StopAll cancels every active session.
func (m *Manager) StopAll() {
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.cancel()
	}
}

// Sessions returns the IDs of all active sessions.
func (m *Manager) Sessions() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		ids = append(ids, id)
	}
	return ids
}

func (m *Manager) run(ctx context.Context, s *session) {
	ticker := time.NewTicker(time.Duration(m.cfg.IntervalSec) * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			m.tick(ctx, s)
		}
	}
}

// tick warms the next window of unseen segments for one session.
func (m *Manager) tick(ctx context.Context, s *session) {
	s.mu.Lock()
	state := s.state
	s.mu.Unlock()

	// Warm only active, healthy HLS playback. A stalled player means the
	// network is already saturated; adding warm requests makes it worse.
	if state.Kind != models.StreamKindHLS || !state.Playing || state.Stalled {
		return
	}

	target := state.URI
	headers := state.Headers
	if wrapped, h, ok := proxyurl.Unwrap(target); ok {
		target = wrapped
		if len(h) > 0 {
			headers = h
		}
	}

	fetchCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	body, finalURL, err := m.playlists.Fetch(fetchCtx, target, headers)
	if err != nil {
		return
	}
	if manifest.IsMultivariant(body) {
		variantURL := manifest.BestVariantURI(body, finalURL)
		if variantURL == "" {
			return
		}
		body, finalURL, err = m.playlists.Fetch(fetchCtx, variantURL, headers)
		if err != nil {
			return
		}
	}

	window := m.selectWindow(s, manifest.ParseSegments(body, finalURL))
	if len(window) == 0 {
		return
	}

	p := pool.New().WithMaxGoroutines(m.cfg.Concurrency)
	for _, seg := range window {
		p.Go(func() {
			m.warmSegment(ctx, seg.URI, headers)
		})
	}
	p.Wait()
}

// selectWindow picks unseen segments until the count or cumulative-duration
// cap is hit, marking them seen.
func (m *Manager) selectWindow(s *session, segments []manifest.Segment) []manifest.Segment {
	s.mu.Lock()
	defer s.mu.Unlock()

	var window []manifest.Segment
	total := 0.0
	for _, seg := range segments {
		if len(window) >= m.cfg.MaxSegments || total >= float64(m.cfg.TargetDurationSec) {
			break
		}
		if _, ok := s.seen[seg.URI]; ok {
			continue
		}
		s.seen[seg.URI] = struct{}{}
		window = append(window, seg)
		total += seg.Duration
	}

	// Long VOD playlists would grow the seen set without bound; a full reset
	// at the cap only costs re-warming segments the CDN has cached anyway.
	if len(s.seen) > m.cfg.SeenLimit {
		s.seen = make(map[string]struct{})
	}
	return window
}

// warmSegment issues a one-byte ranged request so the CDN pulls the segment
// into its edge cache without us downloading it.
func (m *Manager) warmSegment(ctx context.Context, segURL string, headers map[string]string) {
	reqCtx, cancel := context.WithTimeout(ctx, 8*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, segURL, nil)
	if err != nil {
		return
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := m.httpc.Do(req)
	if err != nil {
		return
	}
	resp.Body.Close()
}
