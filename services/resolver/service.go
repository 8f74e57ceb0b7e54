// Package resolver runs the provider cascade: race configured sources over a
// bounded window until one yields a playable stream.
package resolver

import (
	"context"
	"errors"
	"log"
	"sort"
	"strings"
	"sync"
	"time"

	"streamweave/config"
	"streamweave/models"
	"streamweave/services/sources"

	"github.com/sourcegraph/conc/pool"
	"golang.org/x/text/language"
)

// ErrResolutionFailed is returned only after every source and embed candidate
// has been exhausted.
var ErrResolutionFailed = errors.New("no playable stream")

// SourceCatalog provides the configured sources and their attempt order.
type SourceCatalog interface {
	Source(id string) sources.Source
	Order(hint string) []string
}

// AffinityStore persists which provider last worked for a resolution key.
type AffinityStore interface {
	Get(ctx context.Context, key string) (*models.ProviderAffinity, error)
	MergeSet(ctx context.Context, key, sourceID, embedID string) error
}

// Service is the cascade scheduler.
type Service struct {
	catalog        SourceCatalog
	affinity       AffinityStore
	normalizer     *Normalizer
	attemptTimeout time.Duration
	sourceWindow   int
	embedWindow    int
}

// NewService wires a resolver from configuration.
func NewService(catalog SourceCatalog, affinity AffinityStore, normalizer *Normalizer, cfg config.StreamingSettings) *Service {
	timeout := time.Duration(cfg.AttemptTimeoutSec) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	sourceWindow := cfg.SourceWindow
	if sourceWindow <= 0 {
		sourceWindow = 3
	}
	embedWindow := cfg.EmbedWindow
	if embedWindow <= 0 {
		embedWindow = 3
	}
	return &Service{
		catalog:        catalog,
		affinity:       affinity,
		normalizer:     normalizer,
		attemptTimeout: timeout,
		sourceWindow:   sourceWindow,
		embedWindow:    embedWindow,
	}
}

// Resolve races sources for desc until one produces a playable stream. The
// hint selects the attempt order ("anime" gets its own). Affinity biases the
// order but never restricts it: a remembered provider goes first, everything
// else still runs.
func (s *Service) Resolve(ctx context.Context, desc models.MediaDescriptor, hint string) (*models.Playback, error) {
	key := desc.ResolutionKey()

	var aff *models.ProviderAffinity
	if s.affinity != nil {
		rec, err := s.affinity.Get(ctx, key)
		if err != nil {
			log.Printf("[resolver] affinity read failed for %s: %v", key, err)
		} else {
			aff = rec
		}
	}

	order := s.catalog.Order(hint)
	if aff != nil {
		order = promote(order, aff.SourceID)
	}
	if len(order) == 0 {
		return nil, ErrResolutionFailed
	}
	log.Printf("[resolver] resolving %s across %d source(s)", key, len(order))

	raceCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var mu sync.Mutex
	var winner *models.Playback

	p := pool.New().WithMaxGoroutines(s.sourceWindow)
	for _, id := range order {
		src := s.catalog.Source(id)
		if src == nil {
			continue
		}
		affEmbed := ""
		if aff != nil && aff.SourceID == id {
			affEmbed = aff.EmbedID
		}
		p.Go(func() {
			if raceCtx.Err() != nil {
				return
			}
			pb := s.attemptSource(raceCtx, src, desc, affEmbed)
			if pb == nil {
				return
			}
			mu.Lock()
			if winner == nil {
				winner = pb
				cancel()
			}
			mu.Unlock()
		})
	}
	p.Wait()

	if winner == nil {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		return nil, ErrResolutionFailed
	}

	log.Printf("[resolver] %s resolved via %s (embed %q)", key, winner.SourceID, winner.EmbedID)
	s.recordAffinity(key, winner.SourceID, winner.EmbedID)
	return winner, nil
}

// attemptSource runs one source's discovery and, when it returns embeds,
// races them over the embed window. All failures are soft: log and return
// nil so the cascade moves on.
func (s *Service) attemptSource(ctx context.Context, src sources.Source, desc models.MediaDescriptor, affEmbed string) *models.Playback {
	discCtx, cancelDisc := context.WithTimeout(ctx, s.attemptTimeout)
	disc, err := src.Discover(discCtx, desc)
	cancelDisc()
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[resolver] %s discover failed: %v", src.ID(), err)
		}
		return nil
	}
	if disc == nil {
		return nil
	}

	if disc.Stream != nil {
		normCtx, cancelNorm := context.WithTimeout(ctx, s.attemptTimeout)
		pb, err := s.normalizer.Normalize(normCtx, disc.Stream, src.ID(), "")
		cancelNorm()
		if err != nil {
			log.Printf("[resolver] %s direct stream rejected: %v", src.ID(), err)
		} else {
			return pb
		}
	}
	if len(disc.Embeds) == 0 {
		return nil
	}

	embeds := orderEmbeds(disc.Embeds, affEmbed)

	embedCtx, cancelEmbeds := context.WithCancel(ctx)
	defer cancelEmbeds()

	var mu sync.Mutex
	var winner *models.Playback

	p := pool.New().WithMaxGoroutines(s.embedWindow)
	for _, cand := range embeds {
		p.Go(func() {
			if embedCtx.Err() != nil {
				return
			}
			pb := s.attemptEmbed(embedCtx, src, cand)
			if pb == nil {
				return
			}
			mu.Lock()
			if winner == nil {
				winner = pb
				cancelEmbeds()
			}
			mu.Unlock()
		})
	}
	p.Wait()
	return winner
}

// attemptEmbed resolves one embed candidate through the source, with a host
// handler probe of the raw embed URL as the fallback.
func (s *Service) attemptEmbed(ctx context.Context, src sources.Source, cand sources.EmbedCandidate) *models.Playback {
	attemptCtx, cancel := context.WithTimeout(ctx, s.attemptTimeout)
	defer cancel()

	stream, err := src.ResolveEmbed(attemptCtx, cand)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[resolver] %s embed %s failed, probing directly: %v", src.ID(), cand.EmbedID, err)
		}
		stream = nil
	}
	if stream == nil {
		// The normalizer routes unknown file URLs through the host handlers,
		// so an unresolved embed page still gets a chance.
		stream = &models.StreamDescriptor{
			Kind: models.StreamKindFile,
			Qualities: map[models.QualityLabel]models.FileVariant{
				models.QualityUnknown: {URL: cand.URL},
			},
		}
	}

	pb, err := s.normalizer.Normalize(attemptCtx, stream, src.ID(), cand.EmbedID)
	if err != nil {
		if ctx.Err() == nil {
			log.Printf("[resolver] %s embed %s rejected: %v", src.ID(), cand.EmbedID, err)
		}
		return nil
	}
	return pb
}

// recordAffinity merges the winning provider into the store. The resolve
// already succeeded, so a failed write only costs the next bias.
func (s *Service) recordAffinity(key, sourceID, embedID string) {
	if s.affinity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.affinity.MergeSet(ctx, key, sourceID, embedID); err != nil {
		log.Printf("[resolver] affinity write failed for %s: %v", key, err)
	}
}

// promote moves id to the front of order, preserving the rest.
func promote(order []string, id string) []string {
	if id == "" {
		return order
	}
	out := make([]string, 0, len(order))
	found := false
	for _, o := range order {
		if o == id {
			found = true
			continue
		}
		out = append(out, o)
	}
	if !found {
		return order
	}
	return append([]string{id}, out...)
}

// orderEmbeds sorts English-language candidates first (stable within groups)
// and then moves the remembered embed, if any, to the very front.
func orderEmbeds(embeds []sources.EmbedCandidate, affEmbed string) []sources.EmbedCandidate {
	out := append([]sources.EmbedCandidate(nil), embeds...)
	sort.SliceStable(out, func(i, j int) bool {
		return isEnglish(out[i].Language) && !isEnglish(out[j].Language)
	})
	if affEmbed == "" {
		return out
	}
	for i, cand := range out {
		if cand.EmbedID == affEmbed {
			promoted := append([]sources.EmbedCandidate{cand}, append(out[:i:i], out[i+1:]...)...)
			return promoted
		}
	}
	return out
}

var englishBase = func() language.Base {
	b, _ := language.English.Base()
	return b
}()

// isEnglish tolerates both BCP 47 tags ("en", "en-US") and the spelled-out
// names some providers use.
func isEnglish(lang string) bool {
	lower := strings.ToLower(strings.TrimSpace(lang))
	if lower == "" {
		return false
	}
	if strings.HasPrefix(lower, "english") {
		return true
	}
	tag, err := language.Parse(lang)
	if err != nil {
		return false
	}
	base, conf := tag.Base()
	return conf != language.No && base == englishBase
}
