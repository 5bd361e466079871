package manager

import (
	"context"
	"errors"
	"testing"

	"github.com/nugget/memoraid/internal/config"
	"github.com/nugget/memoraid/internal/extractor"
	"github.com/nugget/memoraid/internal/forgetter"
	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/retriever"
	"github.com/nugget/memoraid/internal/store"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	s, err := store.NewSQLiteStore(t.TempDir()+"/test.db", nil)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })

	cfg := *config.Minimal()
	cfg.EpisodeCompressThreshold = 2
	cfg.EnableCache = true
	cfg.CacheTTL = 0 // forever within the test, but still exercises invalidation paths

	ext := extractor.NewRuleExtractor(cfg.EpisodeSummaryMaxLength)
	retr := retriever.New(s, nil, nil, cfg, nil)
	forg := forgetter.New(s, cfg, nil)

	return New(s, nil, ext, retr, forg, cfg, nil)
}

func TestStartSessionEndsPriorActiveSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	first, err := m.StartSession(ctx, "u1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	second, err := m.StartSession(ctx, "u1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if first.ID == second.ID {
		t.Fatalf("expected a new session ID, got the same one twice")
	}

	if err := m.AddMessage(ctx, first.ID, store.RoleUser, "hello"); !errors.Is(err, memerr.ErrUnknownSession) {
		t.Errorf("expected ErrUnknownSession adding to the superseded session, got %v", err)
	}
}

func TestAddMessageUnknownSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	err := m.AddMessage(ctx, "does-not-exist", store.RoleUser, "hi")
	if !errors.Is(err, memerr.ErrUnknownSession) {
		t.Fatalf("expected ErrUnknownSession, got %v", err)
	}
}

func TestEndSessionBelowThresholdSkipsExtraction(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.StartSession(ctx, "u1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.AddMessage(ctx, sess.ID, store.RoleUser, "hi"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	ep, err := m.EndSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ep != nil {
		t.Errorf("expected no episode below compress threshold, got %+v", ep)
	}

	episodes, err := m.storage.ListEpisodes(ctx, "u1", store.EpisodeFilter{})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(episodes) != 0 {
		t.Errorf("expected no episode below compress threshold, got %d", len(episodes))
	}
}

func TestEndSessionAboveThresholdExtractsEpisodeAndFacts(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)

	sess, err := m.StartSession(ctx, "u1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.AddMessage(ctx, sess.ID, store.RoleUser, "我叫小明，我喜欢恐龙"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := m.AddMessage(ctx, sess.ID, store.RoleAssistant, "你好小明！"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	ep, err := m.EndSession(ctx, sess.ID)
	if err != nil {
		t.Fatalf("EndSession: %v", err)
	}
	if ep == nil {
		t.Fatal("expected a returned episode above compress threshold")
	}

	episodes, err := m.storage.ListEpisodes(ctx, "u1", store.EpisodeFilter{})
	if err != nil {
		t.Fatalf("ListEpisodes: %v", err)
	}
	if len(episodes) != 1 {
		t.Fatalf("expected 1 episode, got %d", len(episodes))
	}

	facts, err := m.storage.ListFacts(ctx, "u1", "")
	if err != nil {
		t.Fatalf("ListFacts: %v", err)
	}
	if len(facts) == 0 {
		t.Errorf("expected at least one extracted fact")
	}

	profile, err := m.storage.GetProfile(ctx, "u1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}
	if profile == nil || profile.Name != "小明" {
		t.Fatalf("expected profile name 小明, got %+v", profile)
	}

	mc, err := m.GetMemoryContext(ctx, "u1", "")
	if err != nil {
		t.Fatalf("GetMemoryContext: %v", err)
	}
	if mc.SystemPrompt == "" {
		t.Error("expected non-empty rendered system prompt")
	}
}

func TestGetMemoryContextCacheInvalidatedByEndSession(t *testing.T) {
	ctx := context.Background()
	m := newTestManager(t)
	m.cfg.CacheTTL = 0

	if _, err := m.GetMemoryContext(ctx, "u1", ""); err != nil {
		t.Fatalf("GetMemoryContext: %v", err)
	}
	if _, ok := m.cache.Get(cacheKey("u1", "")); !ok {
		t.Fatalf("expected context to be cached")
	}

	sess, err := m.StartSession(ctx, "u1")
	if err != nil {
		t.Fatalf("StartSession: %v", err)
	}
	if err := m.AddMessage(ctx, sess.ID, store.RoleUser, "我叫小红，我喜欢猫"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if err := m.AddMessage(ctx, sess.ID, store.RoleAssistant, "你好小红！"); err != nil {
		t.Fatalf("AddMessage: %v", err)
	}
	if _, err := m.EndSession(ctx, sess.ID); err != nil {
		t.Fatalf("EndSession: %v", err)
	}

	if _, ok := m.cache.Get(cacheKey("u1", "")); ok {
		t.Errorf("expected cache entry to be invalidated after EndSession")
	}
}

