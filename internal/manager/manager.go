// Package manager orchestrates storage, the LLM client, extraction,
// retrieval, and forgetting behind the four public operations spec.md
// §2 describes: StartSession, AddMessage, EndSession, and
// GetMemoryContext, plus ExportUser/ImportUser for backup.
package manager

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	gocache "github.com/patrickmn/go-cache"

	"github.com/nugget/memoraid/internal/config"
	"github.com/nugget/memoraid/internal/extractor"
	"github.com/nugget/memoraid/internal/forgetter"
	"github.com/nugget/memoraid/internal/llm"
	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/retriever"
	"github.com/nugget/memoraid/internal/store"
)

// Manager is the concurrency-safe entry point every external surface
// (HTTP API, CLI) calls through. One Manager serves every user; internal
// locking is per-session (for the working-memory ring buffer) and
// per-user (for the active-session invariant and cap enforcement), never
// a single global lock.
type Manager struct {
	storage   store.Storage
	llmClient llm.Client
	extractor extractor.Extractor
	retriever *retriever.Retriever
	forgetter *forgetter.Forgetter
	cfg       config.Config
	logger    *slog.Logger

	sessions  sync.Map // session ID -> *sessionState
	userLocks sync.Map // user ID -> *sync.Mutex

	cache *gocache.Cache // keyed userID+":"+sha256(query), invalidated on EndSession/maintenance
}

// sessionState holds one session's bounded working memory. The ring
// buffer is trimmed to 2*cfg.WorkingMemorySize on every append — oldest
// message evicted first — since working memory is a window, not a log.
type sessionState struct {
	mu      sync.Mutex
	session store.Session
	ring    []store.Message
	nextSeq int64
}

// New builds a Manager. The caller constructs and owns storage, the LLM
// client, extractor, retriever, and forgetter — Manager composes them,
// it doesn't build them, so tests can swap in fakes for any one piece.
func New(storage store.Storage, llmClient llm.Client, ext extractor.Extractor, retr *retriever.Retriever, forg *forgetter.Forgetter, cfg config.Config, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	var cache *gocache.Cache
	if cfg.EnableCache {
		cache = gocache.New(cfg.CacheTTL, 2*cfg.CacheTTL)
	}
	return &Manager{
		storage:   storage,
		llmClient: llmClient,
		extractor: ext,
		retriever: retr,
		forgetter: forg,
		cfg:       cfg,
		logger:    logger.With("component", "manager"),
		cache:     cache,
	}
}

func (m *Manager) userLock(userID string) *sync.Mutex {
	v, _ := m.userLocks.LoadOrStore(userID, &sync.Mutex{})
	return v.(*sync.Mutex)
}

func (m *Manager) invalidateCache(userID string) {
	if m.cache == nil {
		return
	}
	prefix := userID + ":"
	for key := range m.cache.Items() {
		if len(key) >= len(prefix) && key[:len(prefix)] == prefix {
			m.cache.Delete(key)
		}
	}
}

func cacheKey(userID, query string) string {
	sum := sha256.Sum256([]byte(query))
	return userID + ":" + hex.EncodeToString(sum[:])
}

func newID() string {
	id, err := uuid.NewV7()
	if err != nil {
		return uuid.NewString()
	}
	return id.String()
}

func (m *Manager) lookupSession(sessionID string) (*sessionState, error) {
	v, ok := m.sessions.Load(sessionID)
	if !ok {
		return nil, fmt.Errorf("%w: session %s", memerr.ErrUnknownSession, sessionID)
	}
	return v.(*sessionState), nil
}

func now() time.Time { return time.Now() }
