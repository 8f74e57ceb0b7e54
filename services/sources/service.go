package sources

import (
	"log"
	"net/http"
	"strings"
	"sync"
	"time"

	"streamweave/config"
)

// Registry holds the configured source providers and the preferred attempt
// order for each content hint.
type Registry struct {
	mu           sync.RWMutex
	sources      map[string]Source
	defaultOrder []string
	animeOrder   []string
	httpc        *http.Client
}

// NewRegistry builds a registry from configuration. Disabled and
// unrecognized source entries are skipped with a log line.
func NewRegistry(cfg config.Settings) *Registry {
	r := &Registry{
		httpc: &http.Client{Timeout: 15 * time.Second},
	}
	r.apply(cfg)
	return r
}

// Reload rebuilds the source set from updated configuration.
func (r *Registry) Reload(cfg config.Settings) {
	r.apply(cfg)
	log.Printf("[sources] reloaded %d source(s)", len(r.sources))
}

func (r *Registry) apply(cfg config.Settings) {
	built := buildSourcesFromConfig(cfg.Sources, r.httpc)

	r.mu.Lock()
	defer r.mu.Unlock()
	r.sources = built
	r.defaultOrder = filterKnown(cfg.Streaming.DefaultOrder, built)
	r.animeOrder = filterKnown(cfg.Streaming.AnimeOrder, built)
	if len(r.defaultOrder) == 0 {
		for _, sc := range cfg.Sources {
			if _, ok := built[sc.ID]; ok {
				r.defaultOrder = append(r.defaultOrder, sc.ID)
			}
		}
	}
}

func buildSourcesFromConfig(configs []config.SourceConfig, httpc *http.Client) map[string]Source {
	built := make(map[string]Source, len(configs))
	for _, sc := range configs {
		if !sc.Enabled {
			continue
		}
		switch strings.ToLower(sc.Type) {
		case "jsonapi":
			built[sc.ID] = NewJSONAPISource(sc.ID, sc.URL, sc.APIKey, httpc)
		default:
			log.Printf("[sources] unknown source type %q for %q, skipping", sc.Type, sc.ID)
		}
	}
	return built
}

func filterKnown(order []string, known map[string]Source) []string {
	out := make([]string, 0, len(order))
	for _, id := range order {
		if _, ok := known[id]; ok {
			out = append(out, id)
		}
	}
	return out
}

// Source returns the provider registered under id, or nil.
func (r *Registry) Source(id string) Source {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sources[id]
}

// Order returns the preferred source attempt order for a content hint.
// The hint "anime" selects the anime-specific order when one is configured;
// anything else gets the default order.
func (r *Registry) Order(hint string) []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if strings.EqualFold(hint, "anime") && len(r.animeOrder) > 0 {
		return append([]string(nil), r.animeOrder...)
	}
	return append([]string(nil), r.defaultOrder...)
}
