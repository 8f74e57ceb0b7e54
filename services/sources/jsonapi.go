package sources

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"streamweave/models"
)

// JSONAPISource speaks the consumet-style discovery API most self-hosted
// provider gateways expose: GET /discover returns either a stream document
// or a list of embeds, GET /embed resolves one embed to a stream document.
type JSONAPISource struct {
	id     string
	base   string
	apiKey string
	httpc  *http.Client
}

// NewJSONAPISource returns a source client for the gateway at base.
// A nil client gets a default with a 10s timeout.
func NewJSONAPISource(id, base, apiKey string, httpc *http.Client) *JSONAPISource {
	if httpc == nil {
		httpc = &http.Client{Timeout: 10 * time.Second}
	}
	return &JSONAPISource{
		id:     id,
		base:   strings.TrimRight(base, "/"),
		apiKey: apiKey,
		httpc:  httpc,
	}
}

func (s *JSONAPISource) ID() string { return s.id }

// wire DTOs for the gateway's loosely typed responses. They are mapped onto
// the closed StreamDescriptor union at the boundary so nothing downstream
// depends on whichever shape the gateway happened to return.
type wireStream struct {
	PlaylistURL string            `json:"playlistUrl,omitempty"`
	URL         string            `json:"url,omitempty"` // some gateways use "url" for hls too
	Headers     map[string]string `json:"headers,omitempty"`
	Qualities   map[string]struct {
		URL     string            `json:"url"`
		Headers map[string]string `json:"headers,omitempty"`
	} `json:"qualities,omitempty"`
	Captions []struct {
		ID       string `json:"id"`
		Label    string `json:"label,omitempty"`
		Language string `json:"language,omitempty"`
		URL      string `json:"url"`
	} `json:"captions,omitempty"`
}

type wireDiscovery struct {
	Stream *wireStream `json:"stream,omitempty"`
	Embeds []struct {
		ID       string `json:"id"`
		Title    string `json:"title,omitempty"`
		URL      string `json:"url"`
		Language string `json:"language,omitempty"`
	} `json:"embeds,omitempty"`
}

// Discover asks the gateway where the descriptor's video might be hosted.
func (s *JSONAPISource) Discover(ctx context.Context, desc models.MediaDescriptor) (*Discovery, error) {
	q := url.Values{}
	q.Set("kind", string(desc.Kind))
	q.Set("title", desc.Title)
	q.Set("id", desc.PrimaryExternalID())
	if desc.ReleaseYear > 0 {
		q.Set("year", strconv.Itoa(desc.ReleaseYear))
	}
	if desc.Kind == models.MediaKindEpisode && desc.Season != nil && desc.Episode != nil {
		q.Set("season", strconv.Itoa(desc.Season.Number))
		q.Set("episode", strconv.Itoa(desc.Episode.Number))
		if desc.Season.ExternalID != "" {
			q.Set("seasonId", desc.Season.ExternalID)
		}
		if desc.Episode.ExternalID != "" {
			q.Set("episodeId", desc.Episode.ExternalID)
		}
	}

	var wire wireDiscovery
	if err := s.doGET(ctx, s.base+"/discover?"+q.Encode(), &wire); err != nil {
		return nil, fmt.Errorf("%s discover: %w", s.id, err)
	}

	disc := &Discovery{}
	if wire.Stream != nil {
		stream, err := mapWireStream(wire.Stream)
		if err != nil {
			return nil, fmt.Errorf("%s discover: %w", s.id, err)
		}
		disc.Stream = stream
	}
	for _, e := range wire.Embeds {
		if strings.TrimSpace(e.URL) == "" {
			continue
		}
		disc.Embeds = append(disc.Embeds, EmbedCandidate{
			EmbedID:  e.ID,
			Title:    e.Title,
			URL:      e.URL,
			Language: e.Language,
		})
	}
	return disc, nil
}

// ResolveEmbed asks the gateway to resolve one embed candidate.
func (s *JSONAPISource) ResolveEmbed(ctx context.Context, candidate EmbedCandidate) (*models.StreamDescriptor, error) {
	q := url.Values{}
	q.Set("id", candidate.EmbedID)
	q.Set("url", candidate.URL)

	var wire wireStream
	if err := s.doGET(ctx, s.base+"/embed?"+q.Encode(), &wire); err != nil {
		return nil, fmt.Errorf("%s embed %s: %w", s.id, candidate.EmbedID, err)
	}
	stream, err := mapWireStream(&wire)
	if err != nil {
		return nil, fmt.Errorf("%s embed %s: %w", s.id, candidate.EmbedID, err)
	}
	return stream, nil
}

func (s *JSONAPISource) doGET(ctx context.Context, rawURL string, dest any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if s.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+s.apiKey)
	}

	resp, err := s.httpc.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("gateway returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}
	return json.NewDecoder(resp.Body).Decode(dest)
}

// mapWireStream converts a gateway stream document into the closed
// StreamDescriptor union, rejecting documents with no usable location.
func mapWireStream(w *wireStream) (*models.StreamDescriptor, error) {
	captions := make([]models.CaptionRef, 0, len(w.Captions))
	for _, c := range w.Captions {
		if strings.TrimSpace(c.URL) == "" {
			continue
		}
		captions = append(captions, models.CaptionRef{
			ID:       c.ID,
			Label:    c.Label,
			Language: c.Language,
			URL:      c.URL,
		})
	}

	playlist := w.PlaylistURL
	if playlist == "" && strings.Contains(strings.ToLower(w.URL), ".m3u8") {
		playlist = w.URL
	}
	if playlist != "" {
		return &models.StreamDescriptor{
			Kind:        models.StreamKindHLS,
			PlaylistURL: playlist,
			Headers:     w.Headers,
			CaptionRefs: captions,
		}, nil
	}

	if len(w.Qualities) > 0 {
		qualities := make(map[models.QualityLabel]models.FileVariant, len(w.Qualities))
		for label, v := range w.Qualities {
			if strings.TrimSpace(v.URL) == "" {
				continue
			}
			qualities[normalizeQualityLabel(label)] = models.FileVariant{URL: v.URL, Headers: v.Headers}
		}
		if len(qualities) > 0 {
			return &models.StreamDescriptor{
				Kind:        models.StreamKindFile,
				Qualities:   qualities,
				CaptionRefs: captions,
			}, nil
		}
	}

	if w.URL != "" {
		return &models.StreamDescriptor{
			Kind:        models.StreamKindFile,
			Qualities:   map[models.QualityLabel]models.FileVariant{models.QualityUnknown: {URL: w.URL, Headers: w.Headers}},
			CaptionRefs: captions,
		}, nil
	}

	return nil, fmt.Errorf("stream document has no playable location")
}

func normalizeQualityLabel(raw string) models.QualityLabel {
	switch strings.ToLower(strings.TrimSpace(strings.TrimSuffix(raw, "p"))) {
	case "4k", "2160":
		return models.Quality4K
	case "1080":
		return models.Quality1080
	case "720":
		return models.Quality720
	case "480":
		return models.Quality480
	case "360":
		return models.Quality360
	default:
		return models.QualityUnknown
	}
}
