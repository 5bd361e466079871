package forgetter

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

func TestRunForgetDeletesDecayedEpisodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	cfg := *config.Balanced()
	cfg.MinImportanceThreshold = 0.2

	// Importance 0, no accesses, last accessed long ago -> strength 0.
	stale := store.Episode{
		UserID:         "u1",
		Summary:        "stale",
		Keywords:       []string{"x"},
		Importance:     0,
		LastAccessedAt: time.Now().Add(-time.Duration(cfg.MemoryDecayDays*3) * 24 * time.Hour),
	}
	if err := s.InsertEpisode(ctx, stale); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}
	fresh := store.Episode{UserID: "u1", Summary: "fresh", Keywords: []string{"y"}, Importance: 0.9}
	if err := s.InsertEpisode(ctx, fresh); err != nil {
		t.Fatalf("InsertEpisode: %v", err)
	}

	f := New(s, cfg, nil)
	n, err := f.RunForget(ctx, "u1")
	if err != nil {
		t.Fatalf("RunForget: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 removed, got %d", n)
	}

	remaining, err := s.ListEpisodes(ctx, "u1", store.EpisodeFilter{})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(remaining) != 1 || remaining[0].Summary != "fresh" {
		t.Fatalf("expected only the fresh episode to remain, got %+v", remaining)
	}
}

func TestEnforceCapsEvictsOverLimit(t *testing.T) {
	ctx := context.Background()
	s := newTestStorage(t)
	cfg := *config.Balanced()
	cfg.MaxEpisodesPerUser = 2

	for i, imp := range []float64{0.9, 0.1, 0.5} {
		if err := s.InsertEpisode(ctx, store.Episode{UserID: "u1", Summary: "e", Keywords: []string{"k"}, Importance: imp}); err != nil {
			t.Fatalf("InsertEpisode %d: %v", i, err)
		}
	}

	f := New(s, cfg, nil)
	n, err := f.EnforceCaps(ctx, "u1")
	if err != nil {
		t.Fatalf("EnforceCaps: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 evicted, got %d", n)
	}

	remaining, err := s.ListEpisodes(ctx, "u1", store.EpisodeFilter{})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(remaining) != 2 {
		t.Fatalf("expected 2 remaining episodes after cap enforcement, got %d", len(remaining))
	}
	for _, ep := range remaining {
		if ep.Importance == 0.1 {
			t.Errorf("lowest-importance episode should have been evicted")
		}
	}
}

func TestStrengthZeroForStaleUnaccessedEpisode(t *testing.T) {
	cfg := *config.Balanced()
	f := New(nil, cfg, nil)

	ep := store.Episode{
		Importance:     0.5,
		AccessCount:    0,
		LastAccessedAt: time.Now().Add(-time.Duration(cfg.MemoryDecayDays*2) * 24 * time.Hour),
	}
	if got := f.Strength(ep); got != 0 {
		t.Errorf("expected strength 0 for fully decayed episode, got %v", got)
	}
}
