package resolver

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"sort"
	"strings"

	"streamweave/models"
	"streamweave/services/hosts"
	"streamweave/utils/proxyurl"
)

// ErrNormalizationFailed marks a stream descriptor that could not be turned
// into a playable URI/header pair.
var ErrNormalizationFailed = errors.New("stream normalization failed")

// hostResolver is the slice of hosts.Registry the normalizer needs.
type hostResolver interface {
	Resolve(ctx context.Context, embedURL string, hints hosts.Hints) (*hosts.Result, error)
}

// Normalizer flattens raw provider stream descriptors into the single
// URI/header pair the media pipeline consumes.
type Normalizer struct {
	hosts      hostResolver
	publicBase string
}

// NewNormalizer returns a normalizer. publicBase is the externally reachable
// base URL of this server; empty disables proxy wrapping. A nil host resolver
// makes file URLs pass through untouched.
func NewNormalizer(hr hostResolver, publicBase string) *Normalizer {
	return &Normalizer{hosts: hr, publicBase: publicBase}
}

// Normalize turns a stream descriptor into a Playback attributed to the
// given source and embed.
func (n *Normalizer) Normalize(ctx context.Context, stream *models.StreamDescriptor, sourceID, embedID string) (*models.Playback, error) {
	if stream == nil {
		return nil, fmt.Errorf("%w: nil stream", ErrNormalizationFailed)
	}
	switch stream.Kind {
	case models.StreamKindHLS:
		return n.normalizeHLS(stream, sourceID, embedID)
	case models.StreamKindFile:
		return n.normalizeFile(ctx, stream, sourceID, embedID)
	default:
		return nil, fmt.Errorf("%w: unknown stream kind %q", ErrNormalizationFailed, stream.Kind)
	}
}

// normalizeHLS wraps header-requiring playlists in the stream proxy. Native
// players only attach headers to the top-level request, so segment requests
// must route through us to carry them.
func (n *Normalizer) normalizeHLS(stream *models.StreamDescriptor, sourceID, embedID string) (*models.Playback, error) {
	uri := strings.TrimSpace(stream.PlaylistURL)
	if uri == "" {
		return nil, fmt.Errorf("%w: hls stream missing playlist url", ErrNormalizationFailed)
	}

	headers := stream.Headers
	if len(headers) > 0 && n.publicBase != "" && !proxyurl.IsWrapped(uri) {
		uri = proxyurl.Wrap(n.publicBase, uri, headers)
		headers = nil
	}

	return &models.Playback{
		URI:            uri,
		Headers:        headers,
		SourceID:       sourceID,
		EmbedID:        embedID,
		StreamKind:     models.StreamKindHLS,
		CaptionSources: filterCaptions(stream.CaptionRefs),
	}, nil
}

// normalizeFile picks the best quality rung and resolves hosted URLs down to
// direct media locations.
func (n *Normalizer) normalizeFile(ctx context.Context, stream *models.StreamDescriptor, sourceID, embedID string) (*models.Playback, error) {
	variant, ok := bestVariant(stream.Qualities)
	if !ok {
		return nil, fmt.Errorf("%w: file stream has no variants", ErrNormalizationFailed)
	}

	uri := variant.URL
	headers := variant.Headers

	// Some providers hand back our own proxy URLs. When no headers are folded
	// in, the wrapping is pure indirection and the direct URL is better.
	if proxyurl.IsWrapped(uri) {
		if target, wrapped, ok := proxyurl.Unwrap(uri); ok && len(wrapped) == 0 {
			uri = target
		}
	}

	if n.hosts != nil {
		res, err := n.hosts.Resolve(ctx, uri, hosts.Hints{})
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrNormalizationFailed, err)
		}
		uri = res.URI
		headers = mergeHeaders(res.Headers, headers)
	}

	return &models.Playback{
		URI:            uri,
		Headers:        headers,
		SourceID:       sourceID,
		EmbedID:        embedID,
		StreamKind:     models.StreamKindFile,
		CaptionSources: filterCaptions(stream.CaptionRefs),
		QualityOptions: qualityOptions(stream.Qualities),
	}, nil
}

// bestVariant walks the fixed quality preference order, falling back to a
// deterministic key sort for labels outside the known set.
func bestVariant(qualities map[models.QualityLabel]models.FileVariant) (models.FileVariant, bool) {
	for _, label := range models.QualityPreference {
		if v, ok := qualities[label]; ok {
			return v, true
		}
	}
	keys := make([]string, 0, len(qualities))
	for k := range qualities {
		keys = append(keys, string(k))
	}
	sort.Strings(keys)
	for _, k := range keys {
		return qualities[models.QualityLabel(k)], true
	}
	return models.FileVariant{}, false
}

func qualityOptions(qualities map[models.QualityLabel]models.FileVariant) []models.QualityOption {
	var opts []models.QualityOption
	for _, label := range models.QualityPreference {
		v, ok := qualities[label]
		if !ok {
			continue
		}
		opts = append(opts, models.QualityOption{
			Label:  displayQuality(label),
			Height: qualityHeight(label),
			URI:    v.URL,
		})
	}
	return opts
}

func displayQuality(label models.QualityLabel) string {
	switch label {
	case models.Quality4K:
		return "4K"
	case models.QualityUnknown:
		return "auto"
	default:
		return string(label) + "p"
	}
}

func qualityHeight(label models.QualityLabel) int {
	switch label {
	case models.Quality4K:
		return 2160
	case models.Quality1080:
		return 1080
	case models.Quality720:
		return 720
	case models.Quality480:
		return 480
	case models.Quality360:
		return 360
	default:
		return 0
	}
}

// filterCaptions keeps only refs pointing at parseable subtitle documents.
func filterCaptions(refs []models.CaptionRef) []models.CaptionRef {
	var out []models.CaptionRef
	for _, ref := range refs {
		if hasCaptionExtension(ref.URL) {
			out = append(out, ref)
		}
	}
	return out
}

func hasCaptionExtension(rawURL string) bool {
	u, err := url.Parse(rawURL)
	if err != nil {
		return false
	}
	lower := strings.ToLower(u.Path)
	return strings.HasSuffix(lower, ".vtt") || strings.HasSuffix(lower, ".srt")
}

// mergeHeaders overlays specific headers on top of base without mutating
// either map.
func mergeHeaders(base, overlay map[string]string) map[string]string {
	if len(base) == 0 {
		return overlay
	}
	merged := make(map[string]string, len(base)+len(overlay))
	for k, v := range base {
		merged[k] = v
	}
	for k, v := range overlay {
		merged[k] = v
	}
	return merged
}
