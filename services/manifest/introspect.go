// Package manifest parses HLS playlists: multivariant track discovery for
// the selection UI and media-playlist segment listing for the prefetch loop.
package manifest

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"streamweave/models"

	retry "github.com/avast/retry-go/v4"
)

// ErrIntrospection marks a manifest that could not be fetched or parsed.
// This is advisory: playback of the already-resolved variant continues, only
// manual track switching is disabled.
var ErrIntrospection = errors.New("manifest introspection failed")

const maxManifestBytes = 2 * 1024 * 1024

// Tracks is the introspection result for one multivariant playlist.
type Tracks struct {
	AudioTracks     []models.AudioOption   `json:"audioTracks,omitempty"`
	QualityVariants []models.QualityOption `json:"qualityVariants,omitempty"`
	SubtitleTracks  []models.CaptionRef    `json:"subtitleTracks,omitempty"`
}

// Introspector fetches and parses HLS manifests.
type Introspector struct {
	httpc *http.Client
}

// NewIntrospector returns an introspector using the given client, or a
// default one with a 10s timeout.
func NewIntrospector(httpc *http.Client) *Introspector {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &Introspector{httpc: httpc}
}

// Introspect fetches manifestURL and extracts the selectable tracks.
func (in *Introspector) Introspect(ctx context.Context, manifestURL string, headers map[string]string) (*Tracks, error) {
	manifestURL = DeobfuscateURL(manifestURL)

	body, finalURL, err := in.Fetch(ctx, manifestURL, headers)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrIntrospection, err)
	}

	base, err := url.Parse(finalURL)
	if err != nil {
		return nil, fmt.Errorf("%w: parse base url: %v", ErrIntrospection, err)
	}

	tracks := parseTracks(body, base)
	log.Printf("[manifest] introspected %q: %d audio, %d variants, %d subtitle tracks",
		manifestURL, len(tracks.AudioTracks), len(tracks.QualityVariants), len(tracks.SubtitleTracks))
	return tracks, nil
}

// Fetch retrieves a playlist body with retries, returning the final URL
// after redirects so relative URIs resolve correctly.
func (in *Introspector) Fetch(ctx context.Context, rawURL string, headers map[string]string) (string, string, error) {
	var body []byte
	finalURL := rawURL
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			for k, v := range headers {
				req.Header.Set(k, v)
			}
			resp, err := in.httpc.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			if resp.StatusCode >= 400 {
				return fmt.Errorf("manifest fetch returned %s", resp.Status)
			}
			if resp.Request != nil && resp.Request.URL != nil {
				finalURL = resp.Request.URL.String()
			}
			body, err = io.ReadAll(io.LimitReader(resp.Body, maxManifestBytes))
			return err
		},
		retry.Attempts(3),
		retry.Delay(250*time.Millisecond),
		retry.Context(ctx),
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return "", "", err
	}
	return string(body), finalURL, nil
}

// IsMultivariant reports whether the playlist body is a multivariant master.
func IsMultivariant(body string) bool {
	return strings.Contains(body, "#EXT-X-STREAM-INF")
}

func parseTracks(body string, base *url.URL) *Tracks {
	tracks := &Tracks{}
	lines := strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n")

	for i := 0; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		switch {
		case strings.HasPrefix(line, "#EXT-X-MEDIA:"):
			attrs := ParseAttributes(strings.TrimPrefix(line, "#EXT-X-MEDIA:"))
			switch attrs["TYPE"] {
			case "AUDIO":
				tracks.AudioTracks = append(tracks.AudioTracks, models.AudioOption{
					ID:       attrs["NAME"] + "/" + attrs["GROUP-ID"],
					Language: attrs["LANGUAGE"],
					Name:     attrs["NAME"],
					GroupID:  attrs["GROUP-ID"],
					Default:  attrs["DEFAULT"] == "YES",
				})
			case "SUBTITLES":
				uri := attrs["URI"]
				// Segmented subtitle playlists need per-segment stitching;
				// only direct .vtt/.srt documents are supported.
				if !hasCaptionExtension(uri) {
					continue
				}
				tracks.SubtitleTracks = append(tracks.SubtitleTracks, models.CaptionRef{
					ID:       attrs["NAME"] + "/" + attrs["GROUP-ID"],
					Label:    attrs["NAME"],
					Language: attrs["LANGUAGE"],
					URL:      resolveURL(base, uri),
				})
			}
		case strings.HasPrefix(line, "#EXT-X-STREAM-INF:"):
			attrs := ParseAttributes(strings.TrimPrefix(line, "#EXT-X-STREAM-INF:"))
			uri := nextURILine(lines, i+1)
			if uri == "" {
				continue
			}
			variant := models.QualityOption{URI: resolveURL(base, uri)}
			if bw, err := strconv.ParseInt(attrs["BANDWIDTH"], 10, 64); err == nil {
				variant.Bandwidth = bw
			}
			if res := attrs["RESOLUTION"]; res != "" {
				if idx := strings.IndexAny(res, "xX"); idx > 0 {
					if h, err := strconv.Atoi(res[idx+1:]); err == nil {
						variant.Height = h
					}
				}
			}
			variant.Label = qualityLabel(variant.Height, variant.Bandwidth)
			tracks.QualityVariants = append(tracks.QualityVariants, variant)
		}
	}

	// Highest quality first; bandwidth breaks ties and covers variants with
	// no RESOLUTION attribute.
	sort.SliceStable(tracks.QualityVariants, func(i, j int) bool {
		a, b := tracks.QualityVariants[i], tracks.QualityVariants[j]
		if a.Height != b.Height {
			return a.Height > b.Height
		}
		return a.Bandwidth > b.Bandwidth
	})

	return tracks
}

// nextURILine returns the first following line that is not blank or a tag.
func nextURILine(lines []string, from int) string {
	for i := from; i < len(lines); i++ {
		line := strings.TrimSpace(lines[i])
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return line
	}
	return ""
}

// ParseAttributes splits an HLS attribute list, honoring quoted values that
// may contain commas.
func ParseAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var key strings.Builder
	var val strings.Builder
	inKey := true
	inQuotes := false

	commit := func() {
		k := strings.TrimSpace(key.String())
		if k != "" {
			attrs[k] = val.String()
		}
		key.Reset()
		val.Reset()
		inKey = true
	}

	for _, r := range list {
		switch {
		case inKey && r == '=':
			inKey = false
		case !inKey && r == '"':
			inQuotes = !inQuotes
		case !inQuotes && r == ',':
			commit()
		case inKey:
			key.WriteRune(r)
		default:
			val.WriteRune(r)
		}
	}
	commit()
	return attrs
}

func resolveURL(base *url.URL, ref string) string {
	refURL, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return ref
	}
	if base == nil {
		return refURL.String()
	}
	return base.ResolveReference(refURL).String()
}

func hasCaptionExtension(uri string) bool {
	lower := strings.ToLower(uri)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	return strings.HasSuffix(lower, ".vtt") || strings.HasSuffix(lower, ".srt")
}

func qualityLabel(height int, bandwidth int64) string {
	if height > 0 {
		if height >= 2100 {
			return "4k"
		}
		return fmt.Sprintf("%dp", height)
	}
	if bandwidth > 0 {
		return fmt.Sprintf("%dkbps", bandwidth/1000)
	}
	return "auto"
}

// DeobfuscateURL undoes the base64 path-segment obfuscation some providers
// apply to playlist URLs. A segment that decodes to a full URL replaces the
// whole thing; anything else passes through untouched.
func DeobfuscateURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	for _, seg := range strings.Split(u.Path, "/") {
		if len(seg) < 16 {
			continue
		}
		if decoded, ok := tryBase64(seg); ok && strings.Contains(decoded, "://") {
			if _, err := url.Parse(decoded); err == nil {
				return decoded
			}
		}
	}
	return raw
}

func tryBase64(seg string) (string, bool) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding,
		base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if decoded, err := enc.DecodeString(seg); err == nil {
			return string(decoded), true
		}
	}
	return "", false
}
