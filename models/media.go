package models

import (
	"fmt"
	"strings"
)

// MediaKind discriminates the two shapes of MediaDescriptor.
type MediaKind string

const (
	MediaKindMovie   MediaKind = "movie"
	MediaKindEpisode MediaKind = "episode"
)

// SeasonRef identifies a season within a series.
type SeasonRef struct {
	Number       int    `json:"number"`
	ExternalID   string `json:"externalId,omitempty"`
	Title        string `json:"title,omitempty"`
	EpisodeCount int    `json:"episodeCount,omitempty"`
}

// EpisodeRef identifies an episode within a season.
type EpisodeRef struct {
	Number     int    `json:"number"`
	ExternalID string `json:"externalId,omitempty"`
}

// MediaDescriptor describes the title a caller wants resolved. It is owned by
// the caller and never mutated by the engine.
type MediaDescriptor struct {
	Kind        MediaKind         `json:"kind"`
	Title       string            `json:"title"`
	ExternalIDs map[string]string `json:"externalIds,omitempty"`
	ReleaseYear int               `json:"releaseYear,omitempty"`
	Season      *SeasonRef        `json:"season,omitempty"`
	Episode     *EpisodeRef       `json:"episode,omitempty"`
}

// externalIDPreference is the lookup order for the primary external ID.
// TMDB first because every provider in the default set keys off it.
var externalIDPreference = []string{"tmdb", "imdb", "tvdb", "anilist"}

// PrimaryExternalID returns the most specific external ID carried by the
// descriptor, or a slug of the title when no ID is known.
func (d MediaDescriptor) PrimaryExternalID() string {
	for _, key := range externalIDPreference {
		if id := strings.TrimSpace(d.ExternalIDs[key]); id != "" {
			return id
		}
	}
	// Any remaining ID beats a title slug; the lowest key wins so the same
	// descriptor always yields the same ID regardless of map iteration order.
	var bestKey, best string
	for key, id := range d.ExternalIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if bestKey == "" || key < bestKey {
			bestKey = key
			best = id
		}
	}
	if best != "" {
		return best
	}
	return slugify(d.Title)
}

// ResolutionKey derives the stable affinity key for this descriptor.
// The same logical movie or episode always yields the same key.
func (d MediaDescriptor) ResolutionKey() string {
	id := d.PrimaryExternalID()
	if d.Kind == MediaKindEpisode && d.Season != nil && d.Episode != nil {
		return fmt.Sprintf("episode-%s-s%d-e%d", id, d.Season.Number, d.Episode.Number)
	}
	return fmt.Sprintf("movie-%s", id)
}

func slugify(title string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(title)) {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9':
			b.WriteRune(r)
		case r == ' ' || r == '-' || r == '_':
			b.WriteByte('-')
		}
	}
	return strings.Trim(b.String(), "-")
}
