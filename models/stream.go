package models

// StreamKind discriminates the two shapes of StreamDescriptor.
type StreamKind string

const (
	StreamKindHLS  StreamKind = "hls"
	StreamKindFile StreamKind = "file"
)

// QualityLabel names a file-stream quality rung.
type QualityLabel string

const (
	Quality4K      QualityLabel = "4k"
	Quality1080    QualityLabel = "1080"
	Quality720     QualityLabel = "720"
	Quality480     QualityLabel = "480"
	Quality360     QualityLabel = "360"
	QualityUnknown QualityLabel = "unknown"
)

// QualityPreference is the fixed probe order used when selecting the best
// variant of a file stream.
var QualityPreference = []QualityLabel{
	Quality4K, Quality1080, Quality720, Quality480, Quality360, QualityUnknown,
}

// CaptionRef points at a fetchable subtitle document (.srt or .vtt).
type CaptionRef struct {
	ID       string `json:"id"`
	Label    string `json:"label,omitempty"`
	Language string `json:"language,omitempty"`
	URL      string `json:"url"`
}

// FileVariant is one quality rung of a file-based stream.
type FileVariant struct {
	URL     string            `json:"url"`
	Headers map[string]string `json:"headers,omitempty"`
}

// StreamDescriptor is a provider's raw answer: either an HLS playlist or a
// map of file qualities. Kind selects which fields are meaningful. Instances
// are never mutated after creation.
type StreamDescriptor struct {
	Kind        StreamKind                   `json:"kind"`
	PlaylistURL string                       `json:"playlistUrl,omitempty"`
	Headers     map[string]string            `json:"headers,omitempty"`
	Qualities   map[QualityLabel]FileVariant `json:"qualities,omitempty"`
	CaptionRefs []CaptionRef                 `json:"captionRefs,omitempty"`
}
