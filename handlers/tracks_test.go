package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamweave/models"
	manifestsvc "streamweave/services/manifest"
	"streamweave/utils/proxyurl"
)

type stubIntrospector struct {
	tracks  *manifestsvc.Tracks
	err     error
	gotURL  string
	gotHdrs map[string]string
}

func (s *stubIntrospector) Introspect(_ context.Context, manifestURL string, headers map[string]string) (*manifestsvc.Tracks, error) {
	s.gotURL = manifestURL
	s.gotHdrs = headers
	return s.tracks, s.err
}

func TestTracksIntrospectUnwrapsProxyURI(t *testing.T) {
	stub := &stubIntrospector{tracks: &manifestsvc.Tracks{
		QualityVariants: []models.QualityOption{{Label: "1080p", Height: 1080, URI: "https://cdn/1080.m3u8"}},
	}}
	h := NewTracksHandler(stub, "http://public.example")

	wrapped := proxyurl.Wrap("http://public.example", "https://cdn/master.m3u8", map[string]string{"Referer": "https://host/"})
	body, _ := json.Marshal(map[string]string{"uri": wrapped})

	rec := httptest.NewRecorder()
	h.Introspect(rec, httptest.NewRequest(http.MethodPost, "/api/playback/tracks", strings.NewReader(string(body))))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if stub.gotURL != "https://cdn/master.m3u8" {
		t.Fatalf("expected unwrapped target, got %q", stub.gotURL)
	}
	if stub.gotHdrs["Referer"] != "https://host/" {
		t.Fatalf("expected embedded headers forwarded, got %+v", stub.gotHdrs)
	}
}

func TestTracksIntrospectFailureIsAdvisory(t *testing.T) {
	h := NewTracksHandler(&stubIntrospector{err: manifestsvc.ErrIntrospection}, "")
	rec := httptest.NewRecorder()
	h.Introspect(rec, httptest.NewRequest(http.MethodPost, "/api/playback/tracks",
		strings.NewReader(`{"uri":"https://cdn/master.m3u8"}`)))
	if rec.Code != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", rec.Code)
	}
}

func TestSelectQualityWrapsHeaderedVariant(t *testing.T) {
	h := NewTracksHandler(&stubIntrospector{}, "http://public.example")
	rec := httptest.NewRecorder()
	h.SelectQuality(rec, httptest.NewRequest(http.MethodPost, "/api/playback/tracks/quality",
		strings.NewReader(`{"uri":"https://cdn/720.m3u8","headers":{"Referer":"https://host/"}}`)))

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	var got struct {
		URI     string            `json:"uri"`
		Headers map[string]string `json:"headers"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if !proxyurl.IsWrapped(got.URI) {
		t.Fatalf("expected wrapped URI, got %q", got.URI)
	}
	if len(got.Headers) != 0 {
		t.Fatalf("wrapped selection should carry no loose headers, got %+v", got.Headers)
	}
}

func TestSelectCaptionPassthroughWithoutHeaders(t *testing.T) {
	h := NewTracksHandler(&stubIntrospector{}, "http://public.example")
	rec := httptest.NewRecorder()
	h.SelectCaption(rec, httptest.NewRequest(http.MethodPost, "/api/playback/tracks/caption",
		strings.NewReader(`{"id":"en/subs","uri":"https://cdn/en.vtt"}`)))

	var got struct {
		ID  string `json:"id"`
		URI string `json:"uri"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.URI != "https://cdn/en.vtt" || got.ID != "en/subs" {
		t.Fatalf("unexpected selection: %+v", got)
	}
}
