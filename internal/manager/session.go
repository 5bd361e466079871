package manager

import (
	"context"
	"fmt"

	"github.com/nugget/memoraid/internal/extractor"
	"github.com/nugget/memoraid/internal/memerr"
	"github.com/nugget/memoraid/internal/store"
)

// StartSession opens a new session for userID. If the user already has
// an active session, it is ended first (without extraction, since an
// abandoned session that was never explicitly closed carries no
// reliable signal about when the conversation actually stopped) —
// enforcing spec.md's "at most one Active session per user" invariant
// without ever returning a conflict error to the caller.
func (m *Manager) StartSession(ctx context.Context, userID string) (*store.Session, error) {
	lock := m.userLock(userID)
	lock.Lock()
	existing, err := m.storage.ActiveSession(ctx, userID)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	if existing != nil {
		if err := m.storage.EndSession(ctx, existing.ID, now()); err != nil {
			lock.Unlock()
			return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
		}
		m.sessions.Delete(existing.ID)
	}

	sess := store.Session{
		ID:        newID(),
		UserID:    userID,
		State:     store.SessionActive,
		StartedAt: now(),
	}
	if err := m.storage.StartSession(ctx, sess); err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	lock.Unlock()

	m.sessions.Store(sess.ID, &sessionState{session: sess})
	return &sess, nil
}

// AddMessage appends one turn to sessionID's working memory, trimming
// the ring buffer to 2*WorkingMemorySize and optionally persisting the raw
// message when Config.PersistMessages is enabled.
func (m *Manager) AddMessage(ctx context.Context, sessionID string, role store.Role, text string) error {
	st, err := m.lookupSession(sessionID)
	if err != nil {
		return err
	}

	st.mu.Lock()
	defer st.mu.Unlock()

	if st.session.State != store.SessionActive {
		return fmt.Errorf("%w: session %s is not active", memerr.ErrUnknownSession, sessionID)
	}

	st.nextSeq++
	msg := store.Message{
		ID:        newID(),
		SessionID: sessionID,
		Seq:       st.nextSeq,
		Role:      role,
		Text:      text,
		Timestamp: now(),
	}

	st.ring = append(st.ring, msg)
	if limit := 2 * m.cfg.WorkingMemorySize; limit > 0 && len(st.ring) > limit {
		st.ring = st.ring[len(st.ring)-limit:]
	}

	if m.cfg.PersistMessages {
		if err := m.storage.PersistMessage(ctx, msg); err != nil {
			return fmt.Errorf("%w: %w", memerr.ErrStorage, err)
		}
	}
	return nil
}

// EndSession closes sessionID, extracting an episode (and any facts and
// profile delta) from its working memory when the session accumulated
// enough messages to be worth summarizing. Extraction runs outside any
// lock; only the final commit briefly holds the per-user lock, so a slow
// LLM call never blocks other users' operations. The returned episode is
// nil when the session closed below EpisodeCompressThreshold or
// extraction failed.
func (m *Manager) EndSession(ctx context.Context, sessionID string) (*store.Episode, error) {
	st, err := m.lookupSession(sessionID)
	if err != nil {
		return nil, err
	}

	st.mu.Lock()
	if st.session.State != store.SessionActive {
		st.mu.Unlock()
		return nil, fmt.Errorf("%w: session %s is not active", memerr.ErrUnknownSession, sessionID)
	}
	messages := make([]store.Message, len(st.ring))
	copy(messages, st.ring)
	userID := st.session.UserID
	st.session.State = store.SessionEnded
	st.mu.Unlock()

	if err := m.storage.EndSession(ctx, sessionID, now()); err != nil {
		return nil, fmt.Errorf("%w: %w", memerr.ErrStorage, err)
	}
	m.sessions.Delete(sessionID)

	if len(messages) < m.cfg.EpisodeCompressThreshold {
		return nil, nil
	}

	result, err := m.extractor.Extract(ctx, messages, userID)
	if err != nil {
		m.logger.Warn("extraction failed, session closed without an episode", "session_id", sessionID, "error", err)
		return nil, nil
	}

	lock := m.userLock(userID)
	lock.Lock()
	defer lock.Unlock()

	ep, err := m.commitExtraction(ctx, userID, result)
	if err != nil {
		return nil, err
	}

	if m.forgetter != nil {
		if _, err := m.forgetter.EnforceCaps(ctx, userID); err != nil {
			m.logger.Warn("cap enforcement failed", "user_id", userID, "error", err)
		}
		if _, err := m.forgetter.RunForget(ctx, userID); err != nil {
			m.logger.Warn("decay-based forgetting failed", "user_id", userID, "error", err)
		}
	}

	m.invalidateCache(userID)
	return ep, nil
}

func (m *Manager) commitExtraction(ctx context.Context, userID string, result *extractor.ExtractionResult) (*store.Episode, error) {
	ep := store.Episode{
		ID:             newID(),
		UserID:         userID,
		Summary:        result.Summary,
		Keywords:       result.Keywords,
		Emotion:        result.Emotion,
		Importance:     result.Importance,
		CreatedAt:      now(),
		LastAccessedAt: now(),
	}

	err := m.storage.Transaction(ctx, func(tx store.Storage) error {
		if !result.ProfileDelta.Empty() {
			if err := applyProfileDelta(ctx, tx, userID, result.ProfileDelta, m.cfg.MaxProfileTags); err != nil {
				return err
			}
		}

		if err := tx.InsertEpisode(ctx, ep); err != nil {
			return err
		}

		for _, f := range result.Facts {
			f.UserID = userID
			if _, err := tx.UpsertFact(ctx, f); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &ep, nil
}

// UserIDForSession resolves an active session's owning user, for callers
// (the /context HTTP handler) that only have a session_id in hand.
func (m *Manager) UserIDForSession(sessionID string) (string, error) {
	st, err := m.lookupSession(sessionID)
	if err != nil {
		return "", err
	}
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.session.UserID, nil
}
