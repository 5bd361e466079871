package store

import (
	"context"
	"database/sql"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
)

// schemaVersion is the current forward-only migration step. Migrations
// only ever add columns/tables; nothing here drops data.
const schemaVersion = 1

// dbtx is satisfied by both *sql.DB and *sql.Tx, letting every query
// method run unmodified whether or not it is inside Transaction.
type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// SQLiteStore is the SQLite-backed Storage implementation. Opened with
// WAL journaling and a busy timeout so concurrent readers don't starve
// the Manager's writers (spec.md §5's "serializable for single-row
// updates, repeatable-read for list queries" expectation).
type SQLiteStore struct {
	db         *sql.DB
	q          dbtx // == db, unless this value is a transaction-scoped view
	logger     *slog.Logger
	ftsEnabled bool
}

// NewSQLiteStore opens (creating if necessary) a SQLite database at
// dbPath and applies the schema.
func NewSQLiteStore(dbPath string, logger *slog.Logger) (*SQLiteStore, error) {
	if logger == nil {
		logger = slog.Default()
	}
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	s := &SQLiteStore{db: db, logger: logger}
	s.q = s.db
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) migrate() error {
	_, err := s.db.Exec(`
	CREATE TABLE IF NOT EXISTS schema_meta (version INTEGER NOT NULL);

	CREATE TABLE IF NOT EXISTS profiles (
		user_id TEXT PRIMARY KEY,
		name TEXT,
		age INTEGER,
		gender TEXT,
		tags TEXT,
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		state TEXT NOT NULL,
		started_at TEXT NOT NULL,
		ended_at TEXT
	);
	CREATE INDEX IF NOT EXISTS idx_sessions_user_state ON sessions(user_id, state);

	CREATE TABLE IF NOT EXISTS messages (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL,
		seq INTEGER NOT NULL,
		role TEXT NOT NULL,
		text TEXT NOT NULL,
		timestamp TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_session ON messages(session_id, seq);

	CREATE TABLE IF NOT EXISTS episodes (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		summary TEXT NOT NULL,
		keywords TEXT,
		emotion TEXT NOT NULL,
		importance REAL NOT NULL,
		access_count INTEGER NOT NULL DEFAULT 0,
		embedding BLOB,
		created_at TEXT NOT NULL,
		last_accessed_at TEXT NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_episodes_user ON episodes(user_id);
	CREATE INDEX IF NOT EXISTS idx_episodes_user_accessed ON episodes(user_id, last_accessed_at DESC);

	CREATE TABLE IF NOT EXISTS facts (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		subject TEXT NOT NULL,
		predicate TEXT NOT NULL,
		object TEXT NOT NULL,
		confidence REAL NOT NULL,
		embedding BLOB,
		created_at TEXT NOT NULL,
		last_seen_at TEXT NOT NULL,
		UNIQUE(user_id, subject, predicate, object)
	);
	CREATE INDEX IF NOT EXISTS idx_facts_user ON facts(user_id);
	CREATE INDEX IF NOT EXISTS idx_facts_subject ON facts(user_id, subject);
	`)
	if err != nil {
		return err
	}

	var count int
	if err := s.db.QueryRow(`SELECT COUNT(*) FROM schema_meta`).Scan(&count); err != nil {
		return err
	}
	if count == 0 {
		if _, err := s.db.Exec(`INSERT INTO schema_meta(version) VALUES (?)`, schemaVersion); err != nil {
			return err
		}
	}

	s.tryEnableFactsFTS()
	return nil
}

// tryEnableFactsFTS probes for FTS5 support and records the result on
// s.ftsEnabled, so each SQLiteStore tracks its own flag independently.
func (s *SQLiteStore) tryEnableFactsFTS() {
	_, err := s.db.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS facts_fts USING fts5(
			subject, predicate, object, content=facts, content_rowid=rowid
		)
	`)
	if err != nil {
		s.logger.Warn("FTS5 not available for facts, using LIKE fallback", "error", err)
		s.ftsEnabled = false
		return
	}
	if _, err := s.db.Exec(`INSERT INTO facts_fts(facts_fts) VALUES('rebuild')`); err != nil {
		s.logger.Warn("failed to rebuild facts FTS index", "error", err)
		s.ftsEnabled = false
		return
	}
	s.ftsEnabled = true
}

// Close closes the underlying database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// ---- Profiles ----

func (s *SQLiteStore) UpsertProfile(ctx context.Context, p Profile) error {
	now := time.Now().UTC()
	if p.CreatedAt.IsZero() {
		p.CreatedAt = now
	}
	p.UpdatedAt = now

	tagsJSON, err := json.Marshal(p.Tags)
	if err != nil {
		return fmt.Errorf("marshal tags: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO profiles (user_id, name, age, gender, tags, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET
			name = excluded.name,
			age = excluded.age,
			gender = excluded.gender,
			tags = excluded.tags,
			updated_at = excluded.updated_at
	`, p.UserID, p.Name, p.Age, p.Gender, string(tagsJSON),
		p.CreatedAt.Format(time.RFC3339Nano), p.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("upsert profile: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetProfile(ctx context.Context, userID string) (*Profile, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT user_id, name, age, gender, tags, created_at, updated_at
		FROM profiles WHERE user_id = ?
	`, userID)

	var p Profile
	var name, gender, tagsRaw sql.NullString
	var age sql.NullInt64
	var createdAt, updatedAt string
	if err := row.Scan(&p.UserID, &name, &age, &gender, &tagsRaw, &createdAt, &updatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("get profile: %w", err)
	}
	p.Name = name.String
	p.Age = int(age.Int64)
	p.Gender = gender.String
	if tagsRaw.Valid && tagsRaw.String != "" {
		_ = json.Unmarshal([]byte(tagsRaw.String), &p.Tags)
	}
	p.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	p.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedAt)
	return &p, nil
}

// ---- Episodes ----

func (s *SQLiteStore) InsertEpisode(ctx context.Context, ep Episode) error {
	if ep.ID == "" {
		id, err := uuid.NewV7()
		if err != nil {
			return fmt.Errorf("generate episode id: %w", err)
		}
		ep.ID = id.String()
	}
	now := time.Now().UTC()
	if ep.CreatedAt.IsZero() {
		ep.CreatedAt = now
	}
	if ep.LastAccessedAt.IsZero() {
		ep.LastAccessedAt = ep.CreatedAt
	}

	kwJSON, err := json.Marshal(ep.Keywords)
	if err != nil {
		return fmt.Errorf("marshal keywords: %w", err)
	}

	_, err = s.q.ExecContext(ctx, `
		INSERT INTO episodes (id, user_id, summary, keywords, emotion, importance, access_count, embedding, created_at, last_accessed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, ep.ID, ep.UserID, ep.Summary, string(kwJSON), string(ep.Emotion), ep.Importance, ep.AccessCount,
		encodeEmbedding(ep.Embedding), ep.CreatedAt.Format(time.RFC3339Nano), ep.LastAccessedAt.Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("insert episode: %w", err)
	}
	return nil
}

func (s *SQLiteStore) UpdateEpisodeAccess(ctx context.Context, episodeID string, accessedAt time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE episodes SET access_count = access_count + 1, last_accessed_at = ?
		WHERE id = ?
	`, accessedAt.UTC().Format(time.RFC3339Nano), episodeID)
	if err != nil {
		return fmt.Errorf("update episode access: %w", err)
	}
	return nil
}

func (s *SQLiteStore) DeleteEpisode(ctx context.Context, episodeID string) error {
	_, err := s.q.ExecContext(ctx, `DELETE FROM episodes WHERE id = ?`, episodeID)
	if err != nil {
		return fmt.Errorf("delete episode: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListEpisodes(ctx context.Context, userID string, filter EpisodeFilter) ([]Episode, error) {
	query := `SELECT id, user_id, summary, keywords, emotion, importance, access_count, embedding, created_at, last_accessed_at
		FROM episodes WHERE user_id = ?`
	args := []any{userID}

	if !filter.After.IsZero() {
		query += ` AND last_accessed_at >= ?`
		args = append(args, filter.After.UTC().Format(time.RFC3339Nano))
	}
	if !filter.Before.IsZero() {
		query += ` AND last_accessed_at <= ?`
		args = append(args, filter.Before.UTC().Format(time.RFC3339Nano))
	}

	switch filter.OrderBy {
	case OrderByImportanceDesc:
		query += ` ORDER BY importance DESC`
	default:
		query += ` ORDER BY last_accessed_at DESC`
	}
	if filter.Limit > 0 {
		query += ` LIMIT ?`
		args = append(args, filter.Limit)
	}

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list episodes: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		if len(filter.Keywords) > 0 && !anyKeywordMatch(ep.Keywords, filter.Keywords) {
			continue
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

func anyKeywordMatch(have, want []string) bool {
	set := make(map[string]bool, len(have))
	for _, k := range have {
		set[strings.ToLower(k)] = true
	}
	for _, w := range want {
		if set[strings.ToLower(w)] {
			return true
		}
	}
	return false
}

func (s *SQLiteStore) CountEpisodes(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM episodes WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count episodes: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) SetEpisodeEmbedding(ctx context.Context, episodeID string, embedding []float32) error {
	_, err := s.q.ExecContext(ctx, `UPDATE episodes SET embedding = ? WHERE id = ?`, encodeEmbedding(embedding), episodeID)
	if err != nil {
		return fmt.Errorf("set episode embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) EpisodesWithoutEmbeddings(ctx context.Context, userID string, limit int) ([]Episode, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, summary, keywords, emotion, importance, access_count, embedding, created_at, last_accessed_at
		FROM episodes WHERE user_id = ? AND embedding IS NULL LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("episodes without embeddings: %w", err)
	}
	defer rows.Close()

	var out []Episode
	for rows.Next() {
		ep, err := scanEpisode(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, ep)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEpisode(row rowScanner) (Episode, error) {
	var ep Episode
	var emotion, kwRaw string
	var embeddingBlob []byte
	var createdAt, accessedAt string

	err := row.Scan(&ep.ID, &ep.UserID, &ep.Summary, &kwRaw, &emotion, &ep.Importance, &ep.AccessCount,
		&embeddingBlob, &createdAt, &accessedAt)
	if err != nil {
		return Episode{}, fmt.Errorf("scan episode: %w", err)
	}
	ep.Emotion = Emotion(emotion)
	if kwRaw != "" {
		_ = json.Unmarshal([]byte(kwRaw), &ep.Keywords)
	}
	ep.Embedding = decodeEmbedding(embeddingBlob)
	ep.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	ep.LastAccessedAt, _ = time.Parse(time.RFC3339Nano, accessedAt)
	return ep, nil
}

// ---- Facts ----

func (s *SQLiteStore) UpsertFact(ctx context.Context, f Fact) (*Fact, error) {
	now := time.Now().UTC()

	var existingID string
	var existingConfidence float64
	err := s.q.QueryRowContext(ctx, `
		SELECT id, confidence FROM facts WHERE user_id = ? AND subject = ? AND predicate = ? AND object = ?
	`, f.UserID, f.Subject, f.Predicate, f.Object).Scan(&existingID, &existingConfidence)

	if err == sql.ErrNoRows {
		id, genErr := uuid.NewV7()
		if genErr != nil {
			return nil, fmt.Errorf("generate fact id: %w", genErr)
		}
		f.ID = id.String()
		f.CreatedAt = now
		f.LastSeenAt = now

		_, err = s.q.ExecContext(ctx, `
			INSERT INTO facts (id, user_id, subject, predicate, object, confidence, embedding, created_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, f.ID, f.UserID, f.Subject, f.Predicate, f.Object, f.Confidence, encodeEmbedding(f.Embedding),
			f.CreatedAt.Format(time.RFC3339Nano), f.LastSeenAt.Format(time.RFC3339Nano))
		if err != nil {
			return nil, fmt.Errorf("insert fact: %w", err)
		}
		s.resyncFactsFTS(ctx)
		return &f, nil
	} else if err != nil {
		return nil, fmt.Errorf("check existing fact: %w", err)
	}

	merged := math.Max(existingConfidence, f.Confidence)
	_, err = s.q.ExecContext(ctx, `
		UPDATE facts SET confidence = ?, last_seen_at = ? WHERE id = ?
	`, merged, now.Format(time.RFC3339Nano), existingID)
	if err != nil {
		return nil, fmt.Errorf("update fact: %w", err)
	}

	f.ID = existingID
	f.Confidence = merged
	f.LastSeenAt = now
	s.resyncFactsFTS(ctx)
	return &f, nil
}

func (s *SQLiteStore) resyncFactsFTS(ctx context.Context) {
	if !s.ftsEnabled {
		return
	}
	if _, err := s.q.ExecContext(ctx, `INSERT INTO facts_fts(facts_fts) VALUES('rebuild')`); err != nil {
		s.logger.Warn("failed to rebuild facts FTS index", "error", err)
	}
}

func (s *SQLiteStore) ListFacts(ctx context.Context, userID string, subject string) ([]Fact, error) {
	query := `SELECT id, user_id, subject, predicate, object, confidence, embedding, created_at, last_seen_at FROM facts WHERE user_id = ?`
	args := []any{userID}
	if subject != "" {
		query += ` AND subject = ?`
		args = append(args, subject)
	}
	query += ` ORDER BY last_seen_at DESC`

	rows, err := s.q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list facts: %w", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) DeleteFactsBelow(ctx context.Context, userID string, confidence float64) (int, error) {
	res, err := s.q.ExecContext(ctx, `DELETE FROM facts WHERE user_id = ? AND confidence < ?`, userID, confidence)
	if err != nil {
		return 0, fmt.Errorf("delete facts below threshold: %w", err)
	}
	s.resyncFactsFTS(ctx)
	n, _ := res.RowsAffected()
	return int(n), nil
}

func (s *SQLiteStore) CountFacts(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.q.QueryRowContext(ctx, `SELECT COUNT(*) FROM facts WHERE user_id = ?`, userID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("count facts: %w", err)
	}
	return n, nil
}

func (s *SQLiteStore) SetFactEmbedding(ctx context.Context, factID string, embedding []float32) error {
	_, err := s.q.ExecContext(ctx, `UPDATE facts SET embedding = ? WHERE id = ?`, encodeEmbedding(embedding), factID)
	if err != nil {
		return fmt.Errorf("set fact embedding: %w", err)
	}
	return nil
}

func (s *SQLiteStore) FactsWithoutEmbeddings(ctx context.Context, userID string, limit int) ([]Fact, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT id, user_id, subject, predicate, object, confidence, embedding, created_at, last_seen_at
		FROM facts WHERE user_id = ? AND embedding IS NULL LIMIT ?
	`, userID, limit)
	if err != nil {
		return nil, fmt.Errorf("facts without embeddings: %w", err)
	}
	defer rows.Close()

	var out []Fact
	for rows.Next() {
		f, err := scanFact(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFact(row rowScanner) (Fact, error) {
	var f Fact
	var embeddingBlob []byte
	var createdAt, lastSeenAt string

	err := row.Scan(&f.ID, &f.UserID, &f.Subject, &f.Predicate, &f.Object, &f.Confidence,
		&embeddingBlob, &createdAt, &lastSeenAt)
	if err != nil {
		return Fact{}, fmt.Errorf("scan fact: %w", err)
	}
	f.Embedding = decodeEmbedding(embeddingBlob)
	f.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)
	f.LastSeenAt, _ = time.Parse(time.RFC3339Nano, lastSeenAt)
	return f, nil
}

// ---- Messages (optional persistence) ----

func (s *SQLiteStore) PersistMessage(ctx context.Context, msg Message) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO messages (id, session_id, seq, role, text, timestamp)
		VALUES (?, ?, ?, ?, ?, ?)
	`, msg.ID, msg.SessionID, msg.Seq, string(msg.Role), msg.Text, msg.Timestamp.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("persist message: %w", err)
	}
	return nil
}

// ---- Sessions ----

func (s *SQLiteStore) StartSession(ctx context.Context, sess Session) error {
	_, err := s.q.ExecContext(ctx, `
		INSERT INTO sessions (id, user_id, state, started_at, ended_at)
		VALUES (?, ?, ?, ?, NULL)
	`, sess.ID, sess.UserID, string(SessionActive), sess.StartedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ActiveSession(ctx context.Context, userID string) (*Session, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, state, started_at, ended_at FROM sessions
		WHERE user_id = ? AND state = ? ORDER BY started_at DESC LIMIT 1
	`, userID, string(SessionActive))
	return scanSessionRow(row)
}

func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	row := s.q.QueryRowContext(ctx, `
		SELECT id, user_id, state, started_at, ended_at FROM sessions WHERE id = ?
	`, sessionID)
	return scanSessionRow(row)
}

func scanSessionRow(row *sql.Row) (*Session, error) {
	var sess Session
	var state, startedAt string
	var endedAt sql.NullString
	if err := row.Scan(&sess.ID, &sess.UserID, &state, &startedAt, &endedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("scan session: %w", err)
	}
	sess.State = SessionState(state)
	sess.StartedAt, _ = time.Parse(time.RFC3339Nano, startedAt)
	if endedAt.Valid {
		t, _ := time.Parse(time.RFC3339Nano, endedAt.String)
		sess.EndedAt = &t
	}
	return &sess, nil
}

func (s *SQLiteStore) EndSession(ctx context.Context, sessionID string, endedAt time.Time) error {
	_, err := s.q.ExecContext(ctx, `
		UPDATE sessions SET state = ?, ended_at = ? WHERE id = ?
	`, string(SessionEnded), endedAt.UTC().Format(time.RFC3339Nano), sessionID)
	if err != nil {
		return fmt.Errorf("end session: %w", err)
	}
	return nil
}

// ---- Eviction (Forgetter support) ----

func (s *SQLiteStore) EvictLowestStrengthEpisodes(ctx context.Context, userID string, n int, strengthOf func(Episode) float64) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	eps, err := s.ListEpisodes(ctx, userID, EpisodeFilter{})
	if err != nil {
		return 0, err
	}
	sort.Slice(eps, func(i, j int) bool { return strengthOf(eps[i]) < strengthOf(eps[j]) })
	if n > len(eps) {
		n = len(eps)
	}
	for i := 0; i < n; i++ {
		if err := s.DeleteEpisode(ctx, eps[i].ID); err != nil {
			return i, err
		}
	}
	return n, nil
}

func (s *SQLiteStore) EvictLowestConfidenceFacts(ctx context.Context, userID string, n int) (int, error) {
	if n <= 0 {
		return 0, nil
	}
	facts, err := s.ListFacts(ctx, userID, "")
	if err != nil {
		return 0, err
	}
	sort.Slice(facts, func(i, j int) bool {
		if facts[i].Confidence != facts[j].Confidence {
			return facts[i].Confidence < facts[j].Confidence
		}
		return facts[i].LastSeenAt.Before(facts[j].LastSeenAt)
	})
	if n > len(facts) {
		n = len(facts)
	}
	for i := 0; i < n; i++ {
		if _, err := s.q.ExecContext(ctx, `DELETE FROM facts WHERE id = ?`, facts[i].ID); err != nil {
			return i, fmt.Errorf("evict fact: %w", err)
		}
	}
	s.resyncFactsFTS(ctx)
	return n, nil
}

// ---- Export / Import ----

func (s *SQLiteStore) ExportUser(ctx context.Context, userID string) (*UserExport, error) {
	profile, err := s.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	episodes, err := s.ListEpisodes(ctx, userID, EpisodeFilter{})
	if err != nil {
		return nil, err
	}
	facts, err := s.ListFacts(ctx, userID, "")
	if err != nil {
		return nil, err
	}
	return &UserExport{Profile: profile, Episodes: episodes, Facts: facts}, nil
}

func (s *SQLiteStore) ImportUser(ctx context.Context, export UserExport) error {
	if export.Profile != nil {
		if err := s.UpsertProfile(ctx, *export.Profile); err != nil {
			return err
		}
	}
	for _, ep := range export.Episodes {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO episodes (id, user_id, summary, keywords, emotion, importance, access_count, embedding, created_at, last_accessed_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				summary=excluded.summary, keywords=excluded.keywords, emotion=excluded.emotion,
				importance=excluded.importance, access_count=excluded.access_count,
				embedding=excluded.embedding, last_accessed_at=excluded.last_accessed_at
		`, mustEpisodeArgs(ep)...); err != nil {
			return fmt.Errorf("import episode %s: %w", ep.ID, err)
		}
	}
	for _, f := range export.Facts {
		if _, err := s.q.ExecContext(ctx, `
			INSERT INTO facts (id, user_id, subject, predicate, object, confidence, embedding, created_at, last_seen_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
			ON CONFLICT(id) DO UPDATE SET
				confidence=excluded.confidence, embedding=excluded.embedding, last_seen_at=excluded.last_seen_at
		`, f.ID, f.UserID, f.Subject, f.Predicate, f.Object, f.Confidence, encodeEmbedding(f.Embedding),
			f.CreatedAt.Format(time.RFC3339Nano), f.LastSeenAt.Format(time.RFC3339Nano)); err != nil {
			return fmt.Errorf("import fact %s: %w", f.ID, err)
		}
	}
	s.resyncFactsFTS(ctx)
	return nil
}

func mustEpisodeArgs(ep Episode) []any {
	kwJSON, _ := json.Marshal(ep.Keywords)
	return []any{
		ep.ID, ep.UserID, ep.Summary, string(kwJSON), string(ep.Emotion), ep.Importance, ep.AccessCount,
		encodeEmbedding(ep.Embedding), ep.CreatedAt.Format(time.RFC3339Nano), ep.LastAccessedAt.Format(time.RFC3339Nano),
	}
}

func (s *SQLiteStore) AllUserIDs(ctx context.Context) ([]string, error) {
	rows, err := s.q.QueryContext(ctx, `
		SELECT user_id FROM profiles
		UNION SELECT DISTINCT user_id FROM episodes
		UNION SELECT DISTINCT user_id FROM facts
	`)
	if err != nil {
		return nil, fmt.Errorf("list user ids: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// ---- Transaction ----

// Transaction runs fn against a Storage view bound to one *sql.Tx. All of
// fn's writes commit atomically if fn returns nil, and roll back
// otherwise — this is how EndSession applies its profile+episode+facts
// write as a single unit (spec.md §4.1).
func (s *SQLiteStore) Transaction(ctx context.Context, fn func(tx Storage) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}

	scoped := &SQLiteStore{db: s.db, q: tx, logger: s.logger, ftsEnabled: s.ftsEnabled}
	if err := fn(scoped); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil {
			s.logger.Warn("rollback failed", "error", rbErr)
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// ---- Embedding blob codec ----

func encodeEmbedding(embedding []float32) []byte {
	if len(embedding) == 0 {
		return nil
	}
	buf := make([]byte, len(embedding)*4)
	for i, v := range embedding {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

func decodeEmbedding(data []byte) []float32 {
	if len(data) == 0 {
		return nil
	}
	result := make([]float32, len(data)/4)
	for i := range result {
		result[i] = math.Float32frombits(binary.LittleEndian.Uint32(data[i*4:]))
	}
	return result
}
