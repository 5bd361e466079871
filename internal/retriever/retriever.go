// Package retriever scores a user's episodes and facts against a query
// and returns the top results, bumping each returned episode's access
// count as a side effect of being retrieved.
package retriever

import (
	"context"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/nugget/memoraid/internal/config"
	"github.com/nugget/memoraid/internal/store"
)

// VectorIndex is the pluggable similarity backend for vector mode.
// The in-process implementation (inprocess.go) keeps embeddings in an
// in-memory map and scores them by brute-force cosine similarity; an
// optional Qdrant-backed implementation
// (qdrant.go) satisfies it against an external index.
type VectorIndex interface {
	Upsert(ctx context.Context, userID, id string, embedding []float32) error
	Delete(ctx context.Context, id string) error
	// Query returns the ids of the n nearest neighbors to embedding,
	// restricted to userID, ordered nearest-first.
	Query(ctx context.Context, userID string, embedding []float32, n int) ([]string, error)
}

// Embedder generates a query embedding for vector mode.
type Embedder interface {
	Generate(ctx context.Context, text string) ([]float32, error)
}

// Retriever answers GetMemoryContext queries.
type Retriever struct {
	storage  store.Storage
	index    VectorIndex
	embedder Embedder
	cfg      config.Config
	logger   *slog.Logger
}

func New(storage store.Storage, index VectorIndex, embedder Embedder, cfg config.Config, logger *slog.Logger) *Retriever {
	if logger == nil {
		logger = slog.Default()
	}
	return &Retriever{storage: storage, index: index, embedder: embedder, cfg: cfg, logger: logger}
}

// Retrieve returns the episodes and facts most relevant to query for
// userID, in keyword or vector mode per cfg.EnableVectorSearch, falling
// back to keyword mode if vector mode fails for any reason. An empty
// query returns the user's strongest episodes and most confident facts.
func (r *Retriever) Retrieve(ctx context.Context, userID string, query string) ([]store.Episode, []store.Fact, error) {
	episodes, err := r.storage.ListEpisodes(ctx, userID, store.EpisodeFilter{OrderBy: store.OrderByRecentDesc})
	if err != nil {
		return nil, nil, err
	}
	facts, err := r.storage.ListFacts(ctx, userID, "")
	if err != nil {
		return nil, nil, err
	}

	var ranked []store.Episode
	if query == "" {
		ranked = rankByStrength(episodes, r.cfg)
	} else if r.cfg.EnableVectorSearch && r.index != nil && r.embedder != nil {
		ranked, err = r.rankByVector(ctx, userID, query, episodes)
		if err != nil {
			r.logger.Warn("vector retrieval failed, falling back to keyword mode", "user_id", userID, "error", err)
			ranked = rankByKeyword(episodes, query, r.cfg)
		}
	} else {
		ranked = rankByKeyword(episodes, query, r.cfg)
	}

	limit := r.cfg.MaxRetrievalResults
	if limit <= 0 {
		limit = 5
	}
	if len(ranked) > limit {
		ranked = ranked[:limit]
	}

	rankedFacts := rankFacts(facts, query)
	if len(rankedFacts) > limit {
		rankedFacts = rankedFacts[:limit]
	}

	now := time.Now()
	if txErr := r.storage.Transaction(ctx, func(tx store.Storage) error {
		for _, ep := range ranked {
			if err := tx.UpdateEpisodeAccess(ctx, ep.ID, now); err != nil {
				return err
			}
		}
		return nil
	}); txErr != nil {
		r.logger.Warn("access bump failed", "user_id", userID, "error", txErr)
	}

	return ranked, rankedFacts, nil
}

func (r *Retriever) rankByVector(ctx context.Context, userID, query string, episodes []store.Episode) ([]store.Episode, error) {
	queryVec, err := r.embedder.Generate(ctx, query)
	if err != nil {
		return nil, err
	}
	ids, err := r.index.Query(ctx, userID, queryVec, len(episodes))
	if err != nil {
		return nil, err
	}
	byID := make(map[string]store.Episode, len(episodes))
	for _, ep := range episodes {
		byID[ep.ID] = ep
	}
	ranked := make([]store.Episode, 0, len(ids))
	for _, id := range ids {
		if ep, ok := byID[id]; ok {
			ranked = append(ranked, ep)
		}
	}
	return ranked, nil
}

func rankByStrength(episodes []store.Episode, cfg config.Config) []store.Episode {
	out := make([]store.Episode, len(episodes))
	copy(out, episodes)
	sort.SliceStable(out, func(i, j int) bool {
		return strength(out[i], cfg) > strength(out[j], cfg)
	})
	return out
}

// rankByKeyword implements spec.md's default scoring:
// 0.6*keyword_overlap + 0.4*recency, with recency decaying to 0 over
// cfg.MemoryDecayDays since the episode was last accessed.
func rankByKeyword(episodes []store.Episode, query string, cfg config.Config) []store.Episode {
	queryTokens := tokenSet(query)
	out := make([]store.Episode, len(episodes))
	copy(out, episodes)

	decayDays := float64(cfg.MemoryDecayDays)
	if decayDays <= 0 {
		decayDays = 30
	}

	score := func(ep store.Episode) float64 {
		overlap := keywordOverlap(queryTokens, ep.Keywords)
		daysSince := time.Since(ep.LastAccessedAt).Hours() / 24
		recency := 1 - daysSince/decayDays
		if recency < 0 {
			recency = 0
		}
		return 0.6*overlap + 0.4*recency
	}

	sort.SliceStable(out, func(i, j int) bool {
		return score(out[i]) > score(out[j])
	})
	return out
}

func rankFacts(facts []store.Fact, query string) []store.Fact {
	out := make([]store.Fact, len(facts))
	copy(out, facts)
	if query == "" {
		sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
		return out
	}
	queryTokens := tokenSet(query)
	score := func(f store.Fact) float64 {
		hit := 0.0
		if queryTokens[strings.ToLower(f.Subject)] || queryTokens[strings.ToLower(f.Object)] {
			hit = 1.0
		}
		return hit + f.Confidence
	}
	sort.SliceStable(out, func(i, j int) bool { return score(out[i]) > score(out[j]) })
	return out
}

func keywordOverlap(queryTokens map[string]bool, keywords []string) float64 {
	if len(queryTokens) == 0 || len(keywords) == 0 {
		return 0
	}
	hits := 0
	for _, k := range keywords {
		if queryTokens[strings.ToLower(k)] {
			hits++
		}
	}
	return float64(hits) / float64(len(keywords))
}

func tokenSet(s string) map[string]bool {
	out := map[string]bool{}
	for _, f := range strings.Fields(strings.ToLower(s)) {
		out[f] = true
	}
	for _, r := range s {
		if r >= 0x4E00 && r <= 0x9FFF {
			out[string(r)] = true
		}
	}
	return out
}

// strength mirrors internal/forgetter's formula so empty-query ranking
// agrees with what the forgetter considers valuable.
func strength(ep store.Episode, cfg config.Config) float64 {
	decayDays := float64(cfg.MemoryDecayDays)
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
	return ep.Importance * (cfg.TimeDecayWeight*timeFactor + cfg.AccessCountWeight*accessFactor)
}
