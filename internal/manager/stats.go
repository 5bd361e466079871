package manager

import (
	"context"
	"fmt"

	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

// Stats summarizes one user's stored memory for the /stats/{user_id}
// endpoint: raw counts plus a strength histogram so an operator can see
// how much of a user's episodes are close to being forgotten without
// pulling every episode down to the client.
type Stats struct {
	EpisodeCount int            `json:"episode_count"`
	FactCount    int            `json:"fact_count"`
	Histogram    map[string]int `json:"strength_histogram"`
}

// strengthBuckets are the fixed [0,1] histogram buckets Stats reports
// over: five equal-width buckets of 0.2.
var strengthBuckets = []struct {
	label string
	lo    float64
	hi    float64
}{
	{"0.0-0.2", 0.0, 0.2},
	{"0.2-0.4", 0.2, 0.4},
	{"0.4-0.6", 0.4, 0.6},
	{"0.6-0.8", 0.6, 0.8},
	{"0.8-1.0", 0.8, 1.01}, // inclusive upper bound
}

// Stats computes userID's episode/fact counts and strength histogram.
func (m *Manager) Stats(ctx context.Context, userID string) (*Stats, error) {
	episodes, err := m.storage.ListEpisodes(ctx, userID, store.EpisodeFilter{})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	facts, err := m.storage.ListFacts(ctx, userID, "")
	if err != nil {
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}

	hist := make(map[string]int, len(strengthBuckets))
	for _, b := range strengthBuckets {
		hist[b.label] = 0
	}
	for _, ep := range episodes {
		s := m.forgetter.Strength(ep)
		for _, b := range strengthBuckets {
			if s >= b.lo && s < b.hi {
				hist[b.label]++
				break
			}
		}
	}

	return &Stats{
		EpisodeCount: len(episodes),
		FactCount:    len(facts),
		Histogram:    hist,
	}, nil
}
