package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	path := filepath.Join(t.TempDir(), "test.db")
	s, err := NewSQLiteStore(path, nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestUpsertProfileRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	p := Profile{UserID: "u1", Name: "小明", Age: 5, Tags: []string{"恐龙"}}
	if err := s.UpsertProfile(ctx, p); err != nil {
		t.Fatalf("UpsertProfile: %v", err)
	}

	got, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got == nil || got.Name != "小明" || got.Age != 5 {
		t.Fatalf("unexpected profile: %+v", got)
	}
}

func TestUpsertFactCoalescesConfidence(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	f1 := Fact{UserID: "u1", Subject: "小明", Predicate: "喜欢", Object: "恐龙", Confidence: 0.7}
	if _, err := s.UpsertFact(ctx, f1); err != nil {
		t.Fatalf("first upsert: %v", err)
	}

	f2 := Fact{UserID: "u1", Subject: "小明", Predicate: "喜欢", Object: "恐龙", Confidence: 0.9}
	got, err := s.UpsertFact(ctx, f2)
	if err != nil {
		t.Fatalf("second upsert: %v", err)
	}
	if got.Confidence != 0.9 {
		t.Errorf("expected confidence 0.9, got %v", got.Confidence)
	}

	n, err := s.CountFacts(ctx, "u1")
	if err != nil {
		t.Fatalf("CountFacts: %v", err)
	}
	if n != 1 {
		t.Errorf("expected exactly one coalesced fact, got %d", n)
	}
}

func TestEvictLowestStrengthEpisodes(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	importances := []float64{0.1, 0.9, 0.5, 0.8}
	for _, imp := range importances {
		if err := s.InsertEpisode(ctx, Episode{UserID: "u1", Summary: "s", Keywords: []string{"k"}, Importance: imp}); err != nil {
			t.Fatalf("InsertEpisode: %v", err)
		}
	}

	strengthOf := func(ep Episode) float64 { return ep.Importance }
	n, err := s.EvictLowestStrengthEpisodes(ctx, "u1", 1, strengthOf)
	if err != nil {
		t.Fatalf("EvictLowestStrengthEpisodes: %v", err)
	}
	if n != 1 {
		t.Fatalf("expected 1 eviction, got %d", n)
	}

	remaining, err := s.ListEpisodes(ctx, "u1", EpisodeFilter{})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(remaining) != 3 {
		t.Fatalf("expected 3 remaining episodes, got %d", len(remaining))
	}
	for _, ep := range remaining {
		if ep.Importance == 0.1 {
			t.Errorf("lowest-importance episode should have been evicted")
		}
	}
}

func TestTransactionRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	wantErr := errAbort
	err := s.Transaction(ctx, func(tx Storage) error {
		if err := tx.UpsertProfile(ctx, Profile{UserID: "u1", Name: "temp"}); err != nil {
			return err
		}
		return wantErr
	})
	if err != wantErr {
		t.Fatalf("expected %v, got %v", wantErr, err)
	}

	got, err := s.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if got != nil {
		t.Fatalf("expected rollback to prevent profile write, got %+v", got)
	}
}

func TestActiveSessionLifecycle(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	sess := Session{ID: "s1", UserID: "u1", State: SessionActive, StartedAt: time.Now()}
	if err := s.StartSession(ctx, sess); err != nil {
		t.Fatalf("StartSession: %v", err)
	}

	active, err := s.ActiveSession(ctx, "u1")
	if err != nil || active == nil {
		t.Fatalf("ActiveSession: %v, %+v", err, active)
	}

	if err := s.EndSession(ctx, "s1", time.Now()); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	active, err = s.ActiveSession(ctx, "u1")
	if err != nil {
		t.Fatalf("ActiveSession after end: %v", err)
	}
	if active != nil {
		t.Fatalf("expected no active session after EndSession, got %+v", active)
	}
}

var errAbort = &abortError{}

type abortError struct{}

func (e *abortError) Error() string { return "abort" }
