package handlers

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"streamweave/utils/proxyurl"
)

func TestProxyAttachesEmbeddedHeaders(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Referer") != "https://host.example/" {
			t.Errorf("expected embedded referer, got %q", r.Header.Get("Referer"))
		}
		w.Header().Set("Content-Type", "video/mp4")
		w.Write([]byte("data"))
	}))
	defer upstream.Close()

	h := NewStreamProxyHandler(upstream.Client(), "http://public.example")
	wrapped := proxyurl.Wrap("http://public.example", upstream.URL+"/seg.ts", map[string]string{"Referer": "https://host.example/"})

	req := httptest.NewRequest(http.MethodGet, wrapped, nil)
	rec := httptest.NewRecorder()
	h.Proxy(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Type") != "video/mp4" {
		t.Fatalf("expected content type copied, got %q", rec.Header().Get("Content-Type"))
	}
	if rec.Body.String() != "data" {
		t.Fatalf("expected body relayed, got %q", rec.Body.String())
	}
}

func TestProxyPassesRangeThrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Range") != "bytes=100-200" {
			t.Errorf("expected range passthrough, got %q", r.Header.Get("Range"))
		}
		w.Header().Set("Content-Range", "bytes 100-200/1000")
		w.WriteHeader(http.StatusPartialContent)
	}))
	defer upstream.Close()

	h := NewStreamProxyHandler(upstream.Client(), "http://public.example")
	wrapped := proxyurl.Wrap("http://public.example", upstream.URL+"/movie.mp4", nil)

	req := httptest.NewRequest(http.MethodGet, wrapped, nil)
	req.Header.Set("Range", "bytes=100-200")
	rec := httptest.NewRecorder()
	h.Proxy(rec, req)

	if rec.Code != http.StatusPartialContent {
		t.Fatalf("expected 206, got %d", rec.Code)
	}
	if rec.Header().Get("Content-Range") != "bytes 100-200/1000" {
		t.Fatalf("expected content range copied, got %q", rec.Header().Get("Content-Range"))
	}
}

func TestProxyRewritesPlaylistURIs(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte("#EXTM3U\n" +
			"#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID=\"subs\",NAME=\"English\",URI=\"subs/en.m3u8\"\n" +
			"#EXTINF:6.0,\n" +
			"seg0.ts\n"))
	}))
	defer upstream.Close()

	headers := map[string]string{"Referer": "https://host.example/"}
	h := NewStreamProxyHandler(upstream.Client(), "http://public.example")
	wrapped := proxyurl.Wrap("http://public.example", upstream.URL+"/media.m3u8", headers)

	req := httptest.NewRequest(http.MethodGet, wrapped, nil)
	rec := httptest.NewRecorder()
	h.Proxy(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body := rec.Body.String()

	for _, line := range strings.Split(body, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#EXTM3U") || strings.HasPrefix(line, "#EXTINF") {
			continue
		}
		if strings.HasPrefix(line, "#EXT-X-MEDIA") {
			if !strings.Contains(line, "http://public.example/api/stream/proxy") {
				t.Fatalf("expected URI attribute rewritten: %s", line)
			}
			continue
		}
		target, h, ok := proxyurl.Unwrap(line)
		if !ok {
			t.Fatalf("expected segment line wrapped, got %q", line)
		}
		if !strings.HasSuffix(target, "/seg0.ts") {
			t.Fatalf("expected segment resolved against playlist URL, got %q", target)
		}
		if h["Referer"] != "https://host.example/" {
			t.Fatalf("expected headers carried into segment URL, got %+v", h)
		}
	}
}

func TestProxyRequiresURLParam(t *testing.T) {
	h := NewStreamProxyHandler(http.DefaultClient, "http://public.example")
	req := httptest.NewRequest(http.MethodGet, "/api/stream/proxy", nil)
	rec := httptest.NewRecorder()
	h.Proxy(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", rec.Code)
	}
}
