package models

import "time"

// QualityOption is a selectable quality rung surfaced to the track UI.
// For HLS it comes from the manifest; for file streams from the quality map.
type QualityOption struct {
	Label     string `json:"label"`
	Height    int    `json:"height,omitempty"`
	Bandwidth int64  `json:"bandwidth,omitempty"`
	URI       string `json:"uri"`
}

// AudioOption is a selectable audio rendition from an HLS manifest.
type AudioOption struct {
	ID       string `json:"id"`
	Language string `json:"language,omitempty"`
	Name     string `json:"name,omitempty"`
	GroupID  string `json:"groupId,omitempty"`
	Default  bool   `json:"default,omitempty"`
}

// Playback is the engine's public result: the single URI/header pair the
// media pipeline consumes, plus track metadata for the selection UI. It is
// replaced wholesale when the caller switches source or quality.
type Playback struct {
	URI            string            `json:"uri"`
	Headers        map[string]string `json:"headers,omitempty"`
	SourceID       string            `json:"sourceId"`
	EmbedID        string            `json:"embedId,omitempty"`
	StreamKind     StreamKind        `json:"streamKind"`
	CaptionSources []CaptionRef      `json:"captionSources,omitempty"`
	QualityOptions []QualityOption   `json:"qualityOptions,omitempty"`
	AudioOptions   []AudioOption     `json:"audioOptions,omitempty"`
}

// ProviderAffinity records which provider last produced a working stream for
// a resolution key. It biases future candidate ordering; it is a hint, never
// a filter.
type ProviderAffinity struct {
	ResolutionKey string    `json:"resolutionKey"`
	SourceID      string    `json:"sourceId"`
	EmbedID       string    `json:"embedId,omitempty"`
	UpdatedAt     time.Time `json:"updatedAt"`
}

// CaptionCue is one timed subtitle cue. Cue lists are sorted by StartMs.
type CaptionCue struct {
	StartMs int64  `json:"startMs"`
	EndMs   int64  `json:"endMs"`
	Text    string `json:"text"`
}
