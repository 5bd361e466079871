package retriever

import (
	"context"
	"testing"
	"time"

	"github.com/nugget/memoraid/internal/config"
	"github.com/nugget/memoraid/internal/store"
)

func newTestStorage(t *testing.T) store.Storage {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir()+"/test.db", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRetrieveBumpsAccessCount(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	cfg := config.Balanced()

	ep := store.Episode{UserID: "u1", Summary: "likes dinosaurs", Keywords: []string{"dinosaur"}, Importance: 0.8}
	if err := s.InsertEpisode(ctx, ep); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}
	before, err := s.ListEpisodes(ctx, "u1", store.EpisodeFilter{})
	if err != nil || len(before) != 1 {
		t.Fatalf("ListEpisodes: %v, %d", err, len(before))
	}

	r := New(s, nil, nil, *cfg, nil)
	_, _, err = r.Retrieve(ctx, "u1", "dinosaur")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}

	after, err := s.ListEpisodes(ctx, "u1", store.EpisodeFilter{})
	if err != nil || len(after) != 1 {
		t.Fatalf("ListEpisodes: %v, %d", err, len(after))
	}
	if after[0].AccessCount != before[0].AccessCount+1 {
		t.Errorf("expected access count to bump from %d to %d, got %d", before[0].AccessCount, before[0].AccessCount+1, after[0].AccessCount)
	}
}

func TestRetrieveEmptyQueryOrdersByStrength(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	cfg := config.Balanced()

	weak := store.Episode{UserID: "u1", Summary: "weak", Keywords: []string{"x"}, Importance: 0.1}
	strong := store.Episode{UserID: "u1", Summary: "strong", Keywords: []string{"y"}, Importance: 0.9}
	if err := s.InsertEpisode(ctx, weak); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}
	if err := s.InsertEpisode(ctx, strong); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}

	r := New(s, nil, nil, *cfg, nil)
	episodes, _, err := r.Retrieve(ctx, "u1", "")
	if err != nil {
		t.Fatalf("Retrieve: %v", err)
	}
	if len(episodes) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(episodes))
	}
	if episodes[0].Summary != "strong" {
		t.Errorf("expected strongest episode first, got %q", episodes[0].Summary)
	}
}

func TestInProcessIndexQueryScopedToUser(t *testing.T) {
	idx := NewInProcessIndex()
	ctx := context.Background()

	if err := idx.Upsert(ctx, "u1", "e1", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	if err := idx.Upsert(ctx, "u2", "e2", []float32{1, 0, 0}); err != nil {
		t.Fatalf("Upsert: %v", err)
	}

	ids, err := idx.Query(ctx, "u1", []float32{1, 0, 0}, 10)
	if err != nil {
		t.Fatalf("Query: %v", err)
	}
	if len(ids) != 1 || ids[0] != "e1" {
		t.Errorf("expected only u1's vector, got %v", ids)
	}
}

func TestRankByKeywordRecencyUsesMemoryDecayDays(t *testing.T) {
	cfg := *config.Balanced()
	recent := store.Episode{ID: "recent", Summary: "recent", LastAccessedAt: time.Now()}
	stale := store.Episode{ID: "stale", Summary: "stale", LastAccessedAt: time.Now().Add(-time.Duration(cfg.MemoryDecayDays*2) * 24 * time.Hour)}

	ranked := rankByKeyword([]store.Episode{stale, recent}, "", cfg)
	if ranked[0].ID != "recent" {
		t.Fatalf("expected recent episode ranked first, got %+v", ranked)
	}

	// Episodes accessed a minute apart are both returned by the
	// empty-query ranking.
	allRecent := []store.Episode{
		{ID: "a", LastAccessedAt: time.Now()},
		{ID: "b", LastAccessedAt: time.Now().Add(-time.Minute)},
	}
	ranked = rankByKeyword(allRecent, "", cfg)
	if len(ranked) != 2 {
		t.Fatalf("expected 2 episodes, got %d", len(ranked))
	}
}

func TestStrengthDecaysWithAge(t *testing.T) {
	cfg := *config.Balanced()
	fresh := store.Episode{Importance: 0.8, LastAccessedAt: time.Now(), AccessCount: 0}
	stale := store.Episode{Importance: 0.8, LastAccessedAt: time.Now().Add(-time.Duration(cfg.MemoryDecayDays*2) * 24 * time.Hour), AccessCount: 0}

	if strength(stale, cfg) >= strength(fresh, cfg) {
		t.Errorf("expected stale episode to score lower: fresh=%v stale=%v", strength(fresh, cfg), strength(stale, cfg))
	}
}
