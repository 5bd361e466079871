// Package forgetter implements spec.md's retention policy: decaying an
// episode's strength over time and access count, deleting what falls
// below the importance floor, and trimming per-user resource caps.
package forgetter

import (
	"context"
	"log/slog"
	"time"

	"github.com/nugget/memoraid/internal/config"
	"github.com/nugget/memoraid/internal/store"
)

// Forgetter enforces decay and caps for one user at a time; Manager
// calls it synchronously from EndSession, and Worker calls it on a
// ticker for users nobody visits anymore.
type Forgetter struct {
	storage store.Storage
	cfg     config.Config
	logger  *slog.Logger
}

func New(storage store.Storage, cfg config.Config, logger *slog.Logger) *Forgetter {
	if logger == nil {
		logger = slog.Default()
	}
	return &Forgetter{storage: storage, cfg: cfg, logger: logger}
}

// Strength computes spec.md §4.5's decay score:
//
//	time_factor = max(0, 1 - days_since(last_accessed_at)/memory_decay_days)
//	access_factor = min(1, access_count/10)
//	strength = importance * (time_decay_weight*time_factor + access_count_weight*access_factor)
func (f *Forgetter) Strength(ep store.Episode) float64 {
	decayDays := float64(f.cfg.MemoryDecayDays)
	if decayDays <= 0 {
		decayDays = 30
	}
	daysSince := time.Since(ep.LastAccessedAt).Hours() / 24
	timeFactor := 1 - daysSince/decayDays
	if timeFactor < 0 {
		timeFactor = 0
	}
	accessFactor := float64(ep.AccessCount) / 10
	if accessFactor > 1 {
		accessFactor = 1
	}
	return ep.Importance * (f.cfg.TimeDecayWeight*timeFactor + f.cfg.AccessCountWeight*accessFactor)
}

// RunForget deletes episodes whose strength has decayed below
// min_importance_threshold, and facts whose confidence has fallen below
// half that threshold (facts don't decay with time, but low-confidence
// ones age out the same way low-strength episodes do). It returns the
// total number of records removed, the `removed_n` the
// /maintenance/forget/{user_id} endpoint reports.
func (f *Forgetter) RunForget(ctx context.Context, userID string) (int, error) {
	episodes, err := f.storage.ListEpisodes(ctx, userID, store.EpisodeFilter{})
	if err != nil {
		return 0, err
	}
	forgotten := 0
	for _, ep := range episodes {
		if f.Strength(ep) < f.cfg.MinImportanceThreshold {
			if err := f.storage.DeleteEpisode(ctx, ep.ID); err != nil {
				return 0, err
			}
			forgotten++
		}
	}
	if forgotten > 0 {
		f.logger.Info("forgot low-strength episodes", "user_id", userID, "count", forgotten)
	}

	factFloor := f.cfg.MinImportanceThreshold / 2
	n, err := f.storage.DeleteFactsBelow(ctx, userID, factFloor)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		f.logger.Info("forgot low-confidence facts", "user_id", userID, "count", n)
	}
	return forgotten + n, nil
}

// EnforceCaps trims episodes and facts down to the configured per-user
// maximums, evicting the lowest-strength/lowest-confidence records
// first. Returns the number of records evicted.
func (f *Forgetter) EnforceCaps(ctx context.Context, userID string) (int, error) {
	evicted := 0

	episodeCount, err := f.storage.CountEpisodes(ctx, userID)
	if err != nil {
		return 0, err
	}
	if f.cfg.MaxEpisodesPerUser > 0 && episodeCount > f.cfg.MaxEpisodesPerUser {
		excess := episodeCount - f.cfg.MaxEpisodesPerUser
		n, err := f.storage.EvictLowestStrengthEpisodes(ctx, userID, excess, f.Strength)
		if err != nil {
			return evicted, err
		}
		f.logger.Info("evicted episodes over cap", "user_id", userID, "count", n)
		evicted += n
	}

	factCount, err := f.storage.CountFacts(ctx, userID)
	if err != nil {
		return evicted, err
	}
	if f.cfg.MaxFactsPerUser > 0 && factCount > f.cfg.MaxFactsPerUser {
		excess := factCount - f.cfg.MaxFactsPerUser
		n, err := f.storage.EvictLowestConfidenceFacts(ctx, userID, excess)
		if err != nil {
			return evicted, err
		}
		f.logger.Info("evicted facts over cap", "user_id", userID, "count", n)
		evicted += n
	}
	return evicted, nil
}

// RunMaintenance runs RunForget then EnforceCaps for userID, the unit
// of work the /maintenance/cleanup endpoint performs per user. Returns
// the total number of records removed or evicted.
func (f *Forgetter) RunMaintenance(ctx context.Context, userID string) (int, error) {
	forgotten, err := f.RunForget(ctx, userID)
	if err != nil {
		return 0, err
	}
	evicted, err := f.EnforceCaps(ctx, userID)
	if err != nil {
		return forgotten, err
	}
	return forgotten + evicted, nil
}
