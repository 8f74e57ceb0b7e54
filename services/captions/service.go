package captions

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"streamweave/models"

	retry "github.com/avast/retry-go/v4"
	"github.com/spf13/afero"
)

// ErrCaptionLoad marks a subtitle track that could not be fetched or parsed.
// Callers fall back to "no captions"; this never blocks video playback.
var ErrCaptionLoad = errors.New("caption load failed")

const maxCaptionBytes = 4 * 1024 * 1024

// Service fetches caption documents, parses them and caches the raw text on
// disk keyed by URL. Parsed cue lists are additionally memoized per track ID
// for the lifetime of the playback session.
type Service struct {
	httpc    *http.Client
	fs       afero.Fs
	cacheDir string

	mu     sync.Mutex
	parsed map[string][]models.CaptionCue
}

// NewService returns a caption service caching under cacheDir on fs.
// A nil client gets a default with a 15s timeout; a nil fs uses the OS
// filesystem.
func NewService(httpc *http.Client, fs afero.Fs, cacheDir string) *Service {
	if httpc == nil {
		httpc = &http.Client{Timeout: 15 * time.Second}
	}
	if fs == nil {
		fs = afero.NewOsFs()
	}
	return &Service{
		httpc:    httpc,
		fs:       fs,
		cacheDir: cacheDir,
		parsed:   make(map[string][]models.CaptionCue),
	}
}

// Load fetches and parses the caption track behind ref.
func (s *Service) Load(ctx context.Context, ref models.CaptionRef) ([]models.CaptionCue, error) {
	s.mu.Lock()
	if cues, ok := s.parsed[ref.ID]; ok && ref.ID != "" {
		s.mu.Unlock()
		return cues, nil
	}
	s.mu.Unlock()

	text, err := s.fetchText(ctx, ref.URL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptionLoad, err)
	}

	cues, err := Parse(text, DetectFormat(ref.URL, text))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCaptionLoad, err)
	}
	if len(cues) == 0 {
		return nil, fmt.Errorf("%w: no cues in %q", ErrCaptionLoad, ref.URL)
	}

	if ref.ID != "" {
		s.mu.Lock()
		s.parsed[ref.ID] = cues
		s.mu.Unlock()
	}
	log.Printf("[captions] loaded track id=%q lang=%q cues=%d", ref.ID, ref.Language, len(cues))
	return cues, nil
}

// ClearSession drops memoized cue lists when a playback session ends.
func (s *Service) ClearSession() {
	s.mu.Lock()
	s.parsed = make(map[string][]models.CaptionCue)
	s.mu.Unlock()
}

func (s *Service) fetchText(ctx context.Context, rawURL string) (string, error) {
	cachePath := s.cachePath(rawURL)
	if data, err := afero.ReadFile(s.fs, cachePath); err == nil && len(data) > 0 {
		return string(data), nil
	}

	var body []byte
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			resp, err := s.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("caption fetch returned %s", resp.Status)
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxCaptionBytes))
			return err
		},
		retry.Attempts(2),
		retry.Delay(300*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", err
	}

	if err := s.fs.MkdirAll(s.cacheDir, 0o755); err == nil {
		if err := afero.WriteFile(s.fs, cachePath, body, 0o644); err != nil {
			log.Printf("[captions] cache write failed for %q: %v", rawURL, err)
		}
	}
	return string(body), nil
}

func (s *Service) cachePath(rawURL string) string {
	sum := sha1.Sum([]byte(rawURL))
	return filepath.Join(s.cacheDir, hex.EncodeToString(sum[:])+".txt")
}
