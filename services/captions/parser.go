package captions

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"streamweave/models"
)

// Format names a supported subtitle text format.
type Format string

const (
	FormatSRT Format = "srt"
	FormatVTT Format = "vtt"
)

// ErrUnsupportedFormat is returned for formats other than srt/vtt.
var ErrUnsupportedFormat = errors.New("unsupported caption format")

var (
	markupTagRe = regexp.MustCompile(`<[^>]*>|\{[^}]*\}`)
	timingRe    = regexp.MustCompile(`^\s*([\d:,.]+)\s*-->\s*([\d:,.]+)`)
)

// DetectFormat guesses the format from a URL or file name, falling back to
// sniffing the content for a WEBVTT header.
func DetectFormat(name, content string) Format {
	lower := strings.ToLower(name)
	if idx := strings.IndexAny(lower, "?#"); idx >= 0 {
		lower = lower[:idx]
	}
	switch {
	case strings.HasSuffix(lower, ".vtt"):
		return FormatVTT
	case strings.HasSuffix(lower, ".srt"):
		return FormatSRT
	}
	if strings.HasPrefix(strings.TrimSpace(content), "WEBVTT") {
		return FormatVTT
	}
	return FormatSRT
}

// Parse turns raw subtitle text into a cue list sorted by start time.
// Malformed blocks are skipped rather than failing the whole parse; upstream
// subtitle files are routinely sloppy about padding and indices.
func Parse(text string, format Format) ([]models.CaptionCue, error) {
	if format != FormatSRT && format != FormatVTT {
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	text = strings.ReplaceAll(text, "\r\n", "\n")
	lines := strings.Split(text, "\n")

	// Drop the WEBVTT header line and any header metadata up to the first
	// blank line or timing line. Cue lines survive even when the document
	// omits the blank separator after the header.
	if format == FormatVTT && len(lines) > 0 && strings.HasPrefix(strings.TrimSpace(lines[0]), "WEBVTT") {
		rest := lines[1:]
		for i, line := range rest {
			if strings.TrimSpace(line) == "" {
				rest = rest[i+1:]
				break
			}
			if timingRe.MatchString(line) {
				rest = rest[i:]
				break
			}
		}
		lines = rest
	}

	var cues []models.CaptionCue
	var block []string
	flush := func() {
		if cue, ok := parseBlock(block); ok {
			cues = append(cues, cue)
		}
		block = block[:0]
	}
	for _, line := range lines {
		if strings.TrimSpace(line) == "" {
			flush()
			continue
		}
		block = append(block, line)
	}
	flush()

	sort.SliceStable(cues, func(i, j int) bool { return cues[i].StartMs < cues[j].StartMs })
	return cues, nil
}

// parseBlock handles one blank-line-delimited cue block: an optional numeric
// sequence index, the timing line, then the text body.
func parseBlock(block []string) (models.CaptionCue, bool) {
	if len(block) == 0 {
		return models.CaptionCue{}, false
	}

	i := 0
	// Optional leading sequence number (SRT) or cue identifier (VTT).
	if !timingRe.MatchString(block[i]) {
		i++
		if i >= len(block) {
			return models.CaptionCue{}, false
		}
	}

	m := timingRe.FindStringSubmatch(block[i])
	if m == nil {
		return models.CaptionCue{}, false
	}
	start, err1 := parseTimestamp(m[1])
	end, err2 := parseTimestamp(m[2])
	if err1 != nil || err2 != nil || end < start {
		return models.CaptionCue{}, false
	}

	var parts []string
	for _, line := range block[i+1:] {
		cleaned := strings.TrimSpace(markupTagRe.ReplaceAllString(line, ""))
		if cleaned != "" {
			parts = append(parts, cleaned)
		}
	}
	if len(parts) == 0 {
		return models.CaptionCue{}, false
	}

	return models.CaptionCue{StartMs: start, EndMs: end, Text: strings.Join(parts, "\n")}, true
}

// parseTimestamp accepts "HH:MM:SS,mmm", "HH:MM:SS.mmm", "MM:SS.mmm" and
// "SS.mmm"; the millisecond component may be missing or short-padded.
func parseTimestamp(ts string) (int64, error) {
	ts = strings.TrimSpace(ts)

	var millis int64
	if idx := strings.LastIndexAny(ts, ",."); idx >= 0 {
		frac := ts[idx+1:]
		ts = ts[:idx]
		// Normalize to exactly three digits: "5" -> 500, "5000" -> 500.
		for len(frac) < 3 {
			frac += "0"
		}
		frac = frac[:3]
		v, err := strconv.ParseInt(frac, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse millis %q: %w", frac, err)
		}
		millis = v
	}

	var h, m, s int64
	parts := strings.Split(ts, ":")
	switch len(parts) {
	case 3:
		h, _ = strconv.ParseInt(parts[0], 10, 64)
		m, _ = strconv.ParseInt(parts[1], 10, 64)
		s, _ = strconv.ParseInt(parts[2], 10, 64)
	case 2:
		m, _ = strconv.ParseInt(parts[0], 10, 64)
		s, _ = strconv.ParseInt(parts[1], 10, 64)
	case 1:
		var err error
		s, err = strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return 0, fmt.Errorf("parse timestamp %q", ts)
		}
	default:
		return 0, fmt.Errorf("parse timestamp %q", ts)
	}

	return ((h*60+m)*60+s)*1000 + millis, nil
}
