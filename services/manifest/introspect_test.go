package manifest

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

const masterPlaylist = `#EXTM3U
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="English",LANGUAGE="en",DEFAULT=YES,URI="audio/en.m3u8"
#EXT-X-MEDIA:TYPE=AUDIO,GROUP-ID="aac",NAME="Japanese",LANGUAGE="ja",URI="audio/ja.m3u8"
#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",NAME="English",LANGUAGE="en",URI="subs/en.vtt"
#EXT-X-MEDIA:TYPE=SUBTITLES,GROUP-ID="subs",NAME="German",LANGUAGE="de",URI="subs/de.m3u8"
#EXT-X-STREAM-INF:BANDWIDTH=2500000,RESOLUTION=1280x720,AUDIO="aac"
variants/720.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=5000000,RESOLUTION=1920x1080,AUDIO="aac"
variants/1080.m3u8
`

func TestIntrospectMasterPlaylist(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.Write([]byte(masterPlaylist))
	}))
	defer srv.Close()

	tracks, err := NewIntrospector(srv.Client()).Introspect(context.Background(), srv.URL+"/hls/master.m3u8", nil)
	if err != nil {
		t.Fatalf("introspect failed: %v", err)
	}

	// Variants sorted by height descending, relative URIs resolved.
	if len(tracks.QualityVariants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(tracks.QualityVariants))
	}
	if tracks.QualityVariants[0].Label != "1080p" || tracks.QualityVariants[1].Label != "720p" {
		t.Fatalf("unexpected variant order: %+v", tracks.QualityVariants)
	}
	want := srv.URL + "/hls/variants/1080.m3u8"
	if tracks.QualityVariants[0].URI != want {
		t.Fatalf("expected resolved URI %q, got %q", want, tracks.QualityVariants[0].URI)
	}

	if len(tracks.AudioTracks) != 2 {
		t.Fatalf("expected 2 audio tracks, got %d", len(tracks.AudioTracks))
	}
	if !tracks.AudioTracks[0].Default || tracks.AudioTracks[0].Language != "en" {
		t.Fatalf("unexpected default audio track: %+v", tracks.AudioTracks[0])
	}

	// The segmented .m3u8 subtitle track is dropped; only the .vtt survives.
	if len(tracks.SubtitleTracks) != 1 {
		t.Fatalf("expected 1 subtitle track, got %d", len(tracks.SubtitleTracks))
	}
	if tracks.SubtitleTracks[0].Language != "en" || !strings.HasSuffix(tracks.SubtitleTracks[0].URL, "/hls/subs/en.vtt") {
		t.Fatalf("unexpected subtitle track: %+v", tracks.SubtitleTracks[0])
	}
}

func TestIntrospectFetchFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	if _, err := NewIntrospector(srv.Client()).Introspect(context.Background(), srv.URL+"/master.m3u8", nil); err == nil {
		t.Fatalf("expected error for 404 manifest")
	}
}

func TestParseAttributes(t *testing.T) {
	attrs := ParseAttributes(`TYPE=AUDIO,GROUP-ID="aac",NAME="English, UK",DEFAULT=YES`)
	if attrs["TYPE"] != "AUDIO" {
		t.Fatalf("TYPE mismatch: %q", attrs["TYPE"])
	}
	if attrs["NAME"] != "English, UK" {
		t.Fatalf("quoted comma mishandled: %q", attrs["NAME"])
	}
	if attrs["DEFAULT"] != "YES" {
		t.Fatalf("DEFAULT mismatch: %q", attrs["DEFAULT"])
	}
}

func TestVariantsWithoutResolutionSortByBandwidth(t *testing.T) {
	const body = `#EXTM3U
#EXT-X-STREAM-INF:BANDWIDTH=1000000
low.m3u8
#EXT-X-STREAM-INF:BANDWIDTH=3000000
high.m3u8
`
	tracks := parseTracks(body, nil)
	if len(tracks.QualityVariants) != 2 {
		t.Fatalf("expected 2 variants, got %d", len(tracks.QualityVariants))
	}
	if tracks.QualityVariants[0].Bandwidth != 3000000 {
		t.Fatalf("expected bandwidth-descending order, got %+v", tracks.QualityVariants)
	}
}

func TestParseSegments(t *testing.T) {
	const body = `#EXTM3U
#EXT-X-TARGETDURATION:6
#EXTINF:6.006,
seg0.ts
#EXTINF:5.994,
seg1.ts
#EXT-X-ENDLIST
`
	segments := ParseSegments(body, "https://cdn.example/hls/media.m3u8")
	if len(segments) != 2 {
		t.Fatalf("expected 2 segments, got %d", len(segments))
	}
	if segments[0].URI != "https://cdn.example/hls/seg0.ts" {
		t.Fatalf("unexpected segment URI: %q", segments[0].URI)
	}
	if segments[0].Duration != 6.006 {
		t.Fatalf("unexpected duration: %v", segments[0].Duration)
	}
}

func TestDeobfuscateURL(t *testing.T) {
	real := "https://cdn.example/hls/master.m3u8"
	encoded := base64.URLEncoding.EncodeToString([]byte(real))
	obfuscated := "https://relay.example/fetch/" + encoded + "/index.m3u8"

	if got := DeobfuscateURL(obfuscated); got != real {
		t.Fatalf("expected %q, got %q", real, got)
	}
	// Plain URLs pass through.
	if got := DeobfuscateURL(real); got != real {
		t.Fatalf("plain URL mangled: %q", got)
	}
}
