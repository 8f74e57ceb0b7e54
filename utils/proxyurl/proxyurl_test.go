package proxyurl

import "testing"

func TestWrapUnwrapRoundTrip(t *testing.T) {
	headers := map[string]string{"Referer": "https://embed.example/", "User-Agent": "sw"}
	wrapped := Wrap("http://127.0.0.1:7900", "https://cdn.example/master.m3u8", headers)

	if !IsWrapped(wrapped) {
		t.Fatalf("expected IsWrapped for %q", wrapped)
	}

	target, got, ok := Unwrap(wrapped)
	if !ok {
		t.Fatalf("unwrap failed for %q", wrapped)
	}
	if target != "https://cdn.example/master.m3u8" {
		t.Fatalf("unexpected target %q", target)
	}
	if got["Referer"] != headers["Referer"] || got["User-Agent"] != headers["User-Agent"] {
		t.Fatalf("headers did not round-trip: %v", got)
	}
}

func TestWrapWithoutHeaders(t *testing.T) {
	wrapped := Wrap("http://127.0.0.1:7900/", "https://cdn.example/video.mp4", nil)
	target, headers, ok := Unwrap(wrapped)
	if !ok || target != "https://cdn.example/video.mp4" {
		t.Fatalf("unwrap failed: ok=%v target=%q", ok, target)
	}
	if len(headers) != 0 {
		t.Fatalf("expected no headers, got %v", headers)
	}
}

func TestIsWrappedRejectsPlainURLs(t *testing.T) {
	for _, raw := range []string{
		"https://cdn.example/video.mp4",
		"https://cdn.example/api/stream/proxy", // no url param
		"://bad",
	} {
		if IsWrapped(raw) {
			t.Fatalf("expected IsWrapped=false for %q", raw)
		}
	}
}
