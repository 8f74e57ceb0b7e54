// Package sources manages the upstream source providers the cascade races.
package sources

import (
	"context"

	"streamweave/models"
)

// EmbedCandidate is one hosting backend returned by a source's discovery
// call. It needs its own resolution step before it yields a stream.
type EmbedCandidate struct {
	EmbedID  string `json:"embedId"`
	Title    string `json:"title,omitempty"`
	URL      string `json:"url"`
	Language string `json:"language,omitempty"`
}

// Discovery is a source's answer for a descriptor: either a direct stream or
// a list of embed candidates to race.
type Discovery struct {
	Stream *models.StreamDescriptor
	Embeds []EmbedCandidate
}

// Source is one upstream provider integration.
type Source interface {
	ID() string
	Discover(ctx context.Context, desc models.MediaDescriptor) (*Discovery, error)
	ResolveEmbed(ctx context.Context, candidate EmbedCandidate) (*models.StreamDescriptor, error)
}
