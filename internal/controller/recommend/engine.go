// Package recommend derives personalized recommendations from the user's
// ledger and the catalog's per-media recommendation lists. The pipeline is
// stateless: seed selection, concurrent candidate fetch, dedupe, filter.
package recommend

import (
	"context"
	"fmt"
	"sort"

	"github.com/screenlogapp/screenlog/pkg/model"
	"golang.org/x/sync/errgroup"
)

// maxSeeds bounds how many ledger entries are used as taste seeds.
const maxSeeds = 5

type catalogClient interface {
	GetRecommendations(ctx context.Context, mediaType model.MediaType, mediaID string) ([]model.RecommendationCandidate, error)
}

type Engine struct {
	catalog catalogClient
}

// New creates a recommendation engine over the given catalog client.
func New(catalog catalogClient) *Engine {
	return &Engine{catalog: catalog}
}

// ForUser computes recommendations from the user's current ledger
// entries. With no qualifying seeds the result is empty; there is no
// generic fallback.
func (e *Engine) ForUser(ctx context.Context, entries []model.MediaStatusEntry) ([]model.RecommendationCandidate, error) {
	seeds := selectSeeds(entries)
	if len(seeds) == 0 {
		return nil, nil
	}

	// One catalog request per seed, concurrently. Results keep the seed
	// order so dedupe stays first-seen-wins across seeds.
	perSeed := make([][]model.RecommendationCandidate, len(seeds))
	g, gctx := errgroup.WithContext(ctx)
	for i, seed := range seeds {
		i, seed := i, seed
		g.Go(func() error {
			candidates, err := e.catalog.GetRecommendations(gctx, seed.MediaType, seed.MediaID)
			if err != nil {
				return fmt.Errorf("recommendations for %s: %w", seed.Key(), err)
			}
			perSeed[i] = candidates
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	excluded := make(map[string]bool, len(entries))
	for _, e := range entries {
		if e.Watched || e.InWatchlist {
			excluded[e.MediaID] = true
		}
	}

	seen := map[string]bool{}
	var out []model.RecommendationCandidate
	for _, candidates := range perSeed {
		for _, cand := range candidates {
			if seen[cand.MediaID] {
				continue
			}
			seen[cand.MediaID] = true
			if excluded[cand.MediaID] {
				continue
			}
			if cand.PosterRef == "" {
				continue
			}
			if cand.MediaType == model.MediaTypePerson {
				continue
			}
			out = append(out, cand)
		}
	}
	return out, nil
}

// selectSeeds picks the entries representing the user's taste: favorited
// or rated at least 4, sorted by rating descending with unrated favorites
// last, truncated to maxSeeds.
func selectSeeds(entries []model.MediaStatusEntry) []model.MediaStatusEntry {
	var seeds []model.MediaStatusEntry
	for _, e := range entries {
		if e.Favorited || (e.Rating != nil && *e.Rating >= 4) {
			seeds = append(seeds, e)
		}
	}
	sort.SliceStable(seeds, func(i, j int) bool {
		return ratingOrZero(seeds[i]) > ratingOrZero(seeds[j])
	})
	if len(seeds) > maxSeeds {
		seeds = seeds[:maxSeeds]
	}
	return seeds
}

func ratingOrZero(e model.MediaStatusEntry) int {
	if e.Rating == nil {
		return 0
	}
	return *e.Rating
}
