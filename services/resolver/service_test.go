package resolver

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"streamweave/config"
	"streamweave/models"
	"streamweave/services/hosts"
	"streamweave/services/sources"
)

// fakeSource scripts one source's behavior and records that it was attempted.
type fakeSource struct {
	id      string
	delay   time.Duration
	stream  *models.StreamDescriptor
	embeds  []sources.EmbedCandidate
	discErr error

	embedStreams map[string]*models.StreamDescriptor

	mu        sync.Mutex
	attempted bool
	embedLog  []string
}

func (f *fakeSource) ID() string { return f.id }

func (f *fakeSource) Discover(ctx context.Context, _ models.MediaDescriptor) (*sources.Discovery, error) {
	f.mu.Lock()
	f.attempted = true
	f.mu.Unlock()
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.discErr != nil {
		return nil, f.discErr
	}
	return &sources.Discovery{Stream: f.stream, Embeds: f.embeds}, nil
}

func (f *fakeSource) ResolveEmbed(ctx context.Context, cand sources.EmbedCandidate) (*models.StreamDescriptor, error) {
	f.mu.Lock()
	f.embedLog = append(f.embedLog, cand.EmbedID)
	f.mu.Unlock()
	if stream, ok := f.embedStreams[cand.EmbedID]; ok && stream != nil {
		return stream, nil
	}
	return nil, errors.New("embed resolution failed")
}

func (f *fakeSource) wasAttempted() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attempted
}

// fakeCatalog serves a fixed source set and order.
type fakeCatalog struct {
	srcs  map[string]sources.Source
	order []string
}

func (c *fakeCatalog) Source(id string) sources.Source { return c.srcs[id] }
func (c *fakeCatalog) Order(string) []string           { return append([]string(nil), c.order...) }

// fakeAffinity is an in-memory affinity store.
type fakeAffinity struct {
	mu      sync.Mutex
	records map[string]*models.ProviderAffinity
	writes  int
}

func newFakeAffinity() *fakeAffinity {
	return &fakeAffinity{records: make(map[string]*models.ProviderAffinity)}
}

func (a *fakeAffinity) Get(_ context.Context, key string) (*models.ProviderAffinity, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.records[key], nil
}

func (a *fakeAffinity) MergeSet(_ context.Context, key, sourceID, embedID string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.writes++
	prev := a.records[key]
	if embedID == "" && prev != nil {
		embedID = prev.EmbedID
	}
	a.records[key] = &models.ProviderAffinity{ResolutionKey: key, SourceID: sourceID, EmbedID: embedID}
	return nil
}

// stubHosts trusts anything that already looks like media and rejects the
// rest, with no network involved.
type stubHosts struct{}

func (stubHosts) Resolve(_ context.Context, rawURL string, _ hosts.Hints) (*hosts.Result, error) {
	lower := strings.ToLower(rawURL)
	if strings.Contains(lower, ".mp4") || strings.Contains(lower, ".m3u8") {
		return &hosts.Result{URI: rawURL}, nil
	}
	return nil, hosts.ErrHostResolution
}

func testService(catalog SourceCatalog, aff AffinityStore) *Service {
	norm := NewNormalizer(stubHosts{}, "")
	return NewService(catalog, aff, norm, config.StreamingSettings{
		AttemptTimeoutSec: 2,
		SourceWindow:      3,
		EmbedWindow:       3,
	})
}

func fileStream(url string, label models.QualityLabel) *models.StreamDescriptor {
	return &models.StreamDescriptor{
		Kind:      models.StreamKindFile,
		Qualities: map[models.QualityLabel]models.FileVariant{label: {URL: url}},
	}
}

func movieDesc(tmdbID string) models.MediaDescriptor {
	return models.MediaDescriptor{
		Kind:        models.MediaKindMovie,
		Title:       "Some Movie",
		ExternalIDs: map[string]string{"tmdb": tmdbID},
	}
}

func TestResolveEndToEnd(t *testing.T) {
	a := &fakeSource{id: "A", discErr: errors.New("provider down")}
	b := &fakeSource{id: "B", stream: fileStream("http://h/720.mp4", models.Quality720)}
	catalog := &fakeCatalog{srcs: map[string]sources.Source{"A": a, "B": b}, order: []string{"A", "B"}}
	aff := newFakeAffinity()
	svc := testService(catalog, aff)

	pb, err := svc.Resolve(context.Background(), movieDesc("42"), "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pb.URI != "http://h/720.mp4" || pb.SourceID != "B" {
		t.Fatalf("unexpected playback: %+v", pb)
	}
	rec := aff.records["movie-42"]
	if rec == nil || rec.SourceID != "B" {
		t.Fatalf("expected affinity for movie-42 -> B, got %+v", rec)
	}
}

func TestResolvePrefersHigherQuality(t *testing.T) {
	src := &fakeSource{id: "A", stream: &models.StreamDescriptor{
		Kind: models.StreamKindFile,
		Qualities: map[models.QualityLabel]models.FileVariant{
			models.Quality480:  {URL: "http://h/480.mp4"},
			models.Quality1080: {URL: "http://h/1080.mp4"},
		},
	}}
	catalog := &fakeCatalog{srcs: map[string]sources.Source{"A": src}, order: []string{"A"}}
	svc := testService(catalog, newFakeAffinity())

	pb, err := svc.Resolve(context.Background(), movieDesc("1"), "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pb.URI != "http://h/1080.mp4" {
		t.Fatalf("expected 1080 variant, got %s", pb.URI)
	}
	if len(pb.QualityOptions) != 2 || pb.QualityOptions[0].Label != "1080p" {
		t.Fatalf("unexpected quality options: %+v", pb.QualityOptions)
	}
}

func TestResolveFirstSuccessWins(t *testing.T) {
	fast := &fakeSource{id: "fast", delay: 10 * time.Millisecond, stream: fileStream("http://h/fast.mp4", models.Quality720)}
	slow := &fakeSource{id: "slow", delay: 300 * time.Millisecond, stream: fileStream("http://h/slow.mp4", models.Quality720)}
	catalog := &fakeCatalog{
		srcs:  map[string]sources.Source{"fast": fast, "slow": slow},
		order: []string{"slow", "fast"},
	}
	svc := testService(catalog, newFakeAffinity())

	start := time.Now()
	pb, err := svc.Resolve(context.Background(), movieDesc("7"), "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pb.SourceID != "fast" {
		t.Fatalf("expected fast source to win, got %s", pb.SourceID)
	}
	// The slow source's wait is interrupted by the winner's cancel.
	if elapsed := time.Since(start); elapsed > 250*time.Millisecond {
		t.Fatalf("expected early return after first success, took %v", elapsed)
	}
}

// blockingHosts stalls until the caller's context expires, the way a hung
// host page fetch would.
type blockingHosts struct{}

func (blockingHosts) Resolve(ctx context.Context, _ string, _ hosts.Hints) (*hosts.Result, error) {
	<-ctx.Done()
	return nil, ctx.Err()
}

func TestResolveDirectStreamHonorsAttemptTimeout(t *testing.T) {
	src := &fakeSource{id: "A", stream: fileStream("https://host.example/watch/abc", models.Quality720)}
	catalog := &fakeCatalog{srcs: map[string]sources.Source{"A": src}, order: []string{"A"}}
	svc := NewService(catalog, newFakeAffinity(), NewNormalizer(blockingHosts{}, ""), config.StreamingSettings{
		AttemptTimeoutSec: 1,
		SourceWindow:      1,
		EmbedWindow:       1,
	})

	start := time.Now()
	_, err := svc.Resolve(context.Background(), movieDesc("77"), "")
	if !errors.Is(err, ErrResolutionFailed) {
		t.Fatalf("expected ErrResolutionFailed, got %v", err)
	}
	if elapsed := time.Since(start); elapsed > 1800*time.Millisecond {
		t.Fatalf("direct stream attempt outlived its timeout: %v", elapsed)
	}
}

func TestResolveAffinityBiasIsNotLockIn(t *testing.T) {
	remembered := &fakeSource{id: "C", discErr: errors.New("gone")}
	other := &fakeSource{id: "A", delay: 20 * time.Millisecond, stream: fileStream("http://h/a.mp4", models.Quality720)}
	catalog := &fakeCatalog{
		srcs:  map[string]sources.Source{"A": other, "C": remembered},
		order: []string{"A", "C"},
	}
	aff := newFakeAffinity()
	aff.records["movie-9"] = &models.ProviderAffinity{ResolutionKey: "movie-9", SourceID: "C"}
	svc := testService(catalog, aff)

	pb, err := svc.Resolve(context.Background(), movieDesc("9"), "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pb.SourceID != "A" {
		t.Fatalf("expected fallback past remembered source, got %s", pb.SourceID)
	}
	if !remembered.wasAttempted() {
		t.Fatalf("remembered source should have been tried first")
	}
	if rec := aff.records["movie-9"]; rec == nil || rec.SourceID != "A" {
		t.Fatalf("expected affinity updated to A, got %+v", rec)
	}
}

func TestResolveExhaustionWritesNoAffinity(t *testing.T) {
	a := &fakeSource{id: "A", discErr: errors.New("down")}
	b := &fakeSource{id: "B", embeds: []sources.EmbedCandidate{
		{EmbedID: "e1", URL: "https://host.example/e/1"},
	}}
	catalog := &fakeCatalog{srcs: map[string]sources.Source{"A": a, "B": b}, order: []string{"A", "B"}}
	aff := newFakeAffinity()
	svc := testService(catalog, aff)

	_, err := svc.Resolve(context.Background(), movieDesc("13"), "")
	if !errors.Is(err, ErrResolutionFailed) {
		t.Fatalf("expected ErrResolutionFailed, got %v", err)
	}
	if aff.writes != 0 {
		t.Fatalf("expected no affinity writes on exhaustion, got %d", aff.writes)
	}
}

func TestResolveEmbedCascade(t *testing.T) {
	src := &fakeSource{
		id: "A",
		embeds: []sources.EmbedCandidate{
			{EmbedID: "dead", URL: "https://host.example/e/dead"},
			{EmbedID: "live", URL: "https://host.example/e/live"},
		},
		embedStreams: map[string]*models.StreamDescriptor{
			"live": fileStream("http://cdn/live.mp4", models.Quality1080),
		},
	}
	catalog := &fakeCatalog{srcs: map[string]sources.Source{"A": src}, order: []string{"A"}}
	aff := newFakeAffinity()
	svc := testService(catalog, aff)

	pb, err := svc.Resolve(context.Background(), movieDesc("21"), "")
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if pb.URI != "http://cdn/live.mp4" || pb.EmbedID != "live" {
		t.Fatalf("unexpected playback: %+v", pb)
	}
	rec := aff.records["movie-21"]
	if rec == nil || rec.EmbedID != "live" {
		t.Fatalf("expected embed recorded in affinity, got %+v", rec)
	}
}

func TestOrderEmbedsEnglishFirstAndAffinityFront(t *testing.T) {
	embeds := []sources.EmbedCandidate{
		{EmbedID: "de", Language: "de"},
		{EmbedID: "en1", Language: "en-US"},
		{EmbedID: "named", Language: "English"},
		{EmbedID: "fr", Language: "fr"},
	}

	out := orderEmbeds(embeds, "")
	if out[0].EmbedID != "en1" || out[1].EmbedID != "named" {
		t.Fatalf("expected english candidates first, got %+v", out)
	}

	out = orderEmbeds(embeds, "fr")
	if out[0].EmbedID != "fr" {
		t.Fatalf("expected remembered embed promoted, got %+v", out)
	}
	if len(out) != 4 {
		t.Fatalf("promotion must not drop candidates: %+v", out)
	}
}

func TestPromote(t *testing.T) {
	order := []string{"a", "b", "c"}
	if got := promote(order, "c"); got[0] != "c" || len(got) != 3 {
		t.Fatalf("unexpected promotion: %v", got)
	}
	if got := promote(order, "missing"); len(got) != 3 || got[0] != "a" {
		t.Fatalf("unknown id must not change order: %v", got)
	}
}
