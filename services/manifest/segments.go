package manifest

import (
	"net/url"
	"strconv"
	"strings"
)

// Segment is one media segment with its nominal duration.
type Segment struct {
	URI      string
	Duration float64
}

// ParseSegments extracts segment URIs and their EXTINF durations from a
// media playlist, resolving relative URIs against baseURL.
func ParseSegments(body, baseURL string) []Segment {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}

	var segments []Segment
	pending := 0.0
	for _, line := range strings.Split(strings.ReplaceAll(body, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		switch {
		case strings.HasPrefix(line, "#EXTINF:"):
			spec := strings.TrimPrefix(line, "#EXTINF:")
			if idx := strings.Index(spec, ","); idx >= 0 {
				spec = spec[:idx]
			}
			if d, err := strconv.ParseFloat(strings.TrimSpace(spec), 64); err == nil {
				pending = d
			}
		case line == "" || strings.HasPrefix(line, "#"):
			continue
		default:
			segments = append(segments, Segment{
				URI:      resolveURL(base, line),
				Duration: pending,
			})
			pending = 0
		}
	}
	return segments
}

// BestVariantURI picks the top variant of a multivariant playlist body, or
// "" when none is present.
func BestVariantURI(body, baseURL string) string {
	base, err := url.Parse(baseURL)
	if err != nil {
		base = nil
	}
	tracks := parseTracks(body, base)
	if len(tracks.QualityVariants) == 0 {
		return ""
	}
	return tracks.QualityVariants[0].URI
}
