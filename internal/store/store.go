package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

type Store struct {
	dbPath string
	db     *sql.DB
	log    zerolog.Logger
	mu     sync.Mutex
}

func Open(dbPath string, reindex bool, log zerolog.Logger) (*Store, error) {
	if reindex {
		_ = os.Remove(dbPath)
	}

	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	s := &Store{dbPath: dbPath, db: db, log: log}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) initSchema() error {
	stmts := []string{
		`PRAGMA journal_mode = WAL;`,
		`PRAGMA foreign_keys = ON;`,
		`CREATE TABLE IF NOT EXISTS sessions (
			id TEXT PRIMARY KEY,
			project_id TEXT NOT NULL,
			public INTEGER NOT NULL DEFAULT 0,
			bookmarked INTEGER NOT NULL DEFAULT 0,
			source_path TEXT
		);`,
		`CREATE TABLE IF NOT EXISTS traces (
			id TEXT PRIMARY KEY,
			session_id TEXT NOT NULL,
			project_id TEXT NOT NULL,
			name TEXT,
			ts INTEGER,
			user_id TEXT,
			input TEXT,
			output TEXT,
			cost REAL,
			source_path TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_traces_session_ts ON traces(session_id, ts, id);`,
		`CREATE TABLE IF NOT EXISTS scores (
			id TEXT PRIMARY KEY,
			trace_id TEXT NOT NULL,
			name TEXT,
			value REAL,
			string_value TEXT,
			source TEXT,
			source_path TEXT
		);`,
		`CREATE INDEX IF NOT EXISTS idx_scores_trace_id ON scores(trace_id);`,
		`CREATE TABLE IF NOT EXISTS ingested_files (
			path TEXT PRIMARY KEY,
			mtime INTEGER,
			size INTEGER,
			offset INTEGER
		);`,
		`CREATE TABLE IF NOT EXISTS preferences (
			key TEXT PRIMARY KEY,
			value TEXT NOT NULL
		);`,
	}

	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("init schema: %w", err)
		}
	}
	return nil
}

// GetSession loads a session with its ordered trace list. Sessions owned by
// another project are only readable when public.
func (s *Store) GetSession(ctx context.Context, projectID, sessionID string) (Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess := Session{ID: sessionID}
	err := s.db.QueryRowContext(ctx, `
		SELECT project_id, public, bookmarked FROM sessions WHERE id = ?
	`, sessionID).Scan(&sess.ProjectID, &sess.Public, &sess.Bookmarked)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return Session{}, fmt.Errorf("query session %s: %w", sessionID, err)
	}
	if sess.ProjectID != projectID && !sess.Public {
		return Session{}, fmt.Errorf("session %s: %w", sessionID, ErrUnauthorized)
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT id, COALESCE(name, ''), COALESCE(ts, 0), COALESCE(user_id, ''), COALESCE(cost, 0)
		FROM traces
		WHERE session_id = ?
		ORDER BY ts, id
	`, sessionID)
	if err != nil {
		return Session{}, fmt.Errorf("query session traces: %w", err)
	}
	defer rows.Close()

	seenUsers := make(map[string]struct{})
	byID := make(map[string]int)
	for rows.Next() {
		var (
			t    TraceSummary
			ts   int64
			cost float64
		)
		if err := rows.Scan(&t.ID, &t.Name, &ts, &t.UserID, &cost); err != nil {
			return Session{}, fmt.Errorf("scan trace row: %w", err)
		}
		t.Timestamp = time.UnixMilli(ts)
		sess.TotalCost += cost
		if _, ok := seenUsers[t.UserID]; !ok {
			seenUsers[t.UserID] = struct{}{}
			sess.Users = append(sess.Users, t.UserID)
		}
		byID[t.ID] = len(sess.Traces)
		sess.Traces = append(sess.Traces, t)
	}
	if err := rows.Err(); err != nil {
		return Session{}, fmt.Errorf("iterate trace rows: %w", err)
	}

	scores, err := s.queryScores(ctx, `
		SELECT sc.id, sc.trace_id, COALESCE(sc.name, ''), COALESCE(sc.value, 0), COALESCE(sc.string_value, ''), COALESCE(sc.source, '')
		FROM scores sc
		JOIN traces t ON t.id = sc.trace_id
		WHERE t.session_id = ?
		ORDER BY sc.name, sc.id
	`, sessionID)
	if err != nil {
		return Session{}, err
	}
	for _, sc := range scores {
		if idx, ok := byID[sc.TraceID]; ok {
			sess.Traces[idx].Scores = append(sess.Traces[idx].Scores, sc)
		}
	}
	return sess, nil
}

// GetTrace loads one trace with its payloads. Access follows the owning
// session.
func (s *Store) GetTrace(ctx context.Context, projectID, traceID string) (Trace, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var (
		t      Trace
		ts     int64
		public bool
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT t.id, t.session_id, t.project_id, COALESCE(t.name, ''), COALESCE(t.ts, 0), COALESCE(t.user_id, ''),
			COALESCE(t.input, ''), COALESCE(t.output, ''), COALESCE(s.public, 0)
		FROM traces t
		LEFT JOIN sessions s ON s.id = t.session_id
		WHERE t.id = ?
	`, traceID).Scan(&t.ID, &t.SessionID, &t.ProjectID, &t.Name, &ts, &t.UserID, &t.Input, &t.Output, &public)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Trace{}, fmt.Errorf("trace %s: %w", traceID, ErrNotFound)
		}
		return Trace{}, fmt.Errorf("query trace %s: %w", traceID, err)
	}
	if t.ProjectID != projectID && !public {
		return Trace{}, fmt.Errorf("trace %s: %w", traceID, ErrUnauthorized)
	}
	t.Timestamp = time.UnixMilli(ts)

	t.Scores, err = s.queryScores(ctx, `
		SELECT id, trace_id, COALESCE(name, ''), COALESCE(value, 0), COALESCE(string_value, ''), COALESCE(source, '')
		FROM scores
		WHERE trace_id = ?
		ORDER BY name, id
	`, traceID)
	if err != nil {
		return Trace{}, err
	}
	return t, nil
}

func (s *Store) queryScores(ctx context.Context, query string, args ...any) ([]Score, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query scores: %w", err)
	}
	defer rows.Close()

	var out []Score
	for rows.Next() {
		var sc Score
		if err := rows.Scan(&sc.ID, &sc.TraceID, &sc.Name, &sc.Value, &sc.StringValue, &sc.Source); err != nil {
			return nil, fmt.Errorf("scan score row: %w", err)
		}
		out = append(out, sc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate score rows: %w", err)
	}
	return out, nil
}

// ListSessions returns the sessions of a project, most recently active
// first.
func (s *Store) ListSessions(ctx context.Context, projectID string, limit int) ([]SessionSummary, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit <= 0 {
		limit = 500
	}
	rows, err := s.db.QueryContext(ctx, `
		SELECT s.id, s.project_id, COUNT(t.id), COALESCE(MAX(t.ts), 0), s.bookmarked, s.public
		FROM sessions s
		LEFT JOIN traces t ON t.session_id = s.id
		WHERE s.project_id = ?
		GROUP BY s.id
		ORDER BY COALESCE(MAX(t.ts), 0) DESC, s.id
		LIMIT ?
	`, projectID, limit)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()

	out := make([]SessionSummary, 0, 64)
	for rows.Next() {
		var (
			ss   SessionSummary
			last int64
		)
		if err := rows.Scan(&ss.ID, &ss.ProjectID, &ss.TraceCount, &last, &ss.Bookmarked, &ss.Public); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		ss.LastActivityTS = last / 1000
		out = append(out, ss)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate session rows: %w", err)
	}
	return out, nil
}

func (s *Store) SetBookmarked(ctx context.Context, projectID, sessionID string, v bool) error {
	return s.setFlag(ctx, projectID, sessionID, "bookmarked", v)
}

func (s *Store) SetPublic(ctx context.Context, projectID, sessionID string, v bool) error {
	return s.setFlag(ctx, projectID, sessionID, "public", v)
}

// setFlag only accepts the owning project; public sessions are read-only to
// everyone else.
func (s *Store) setFlag(ctx context.Context, projectID, sessionID, column string, v bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var owner string
	err := s.db.QueryRowContext(ctx, `SELECT project_id FROM sessions WHERE id = ?`, sessionID).Scan(&owner)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
		}
		return fmt.Errorf("query session owner: %w", err)
	}
	if owner != projectID {
		return fmt.Errorf("session %s: %w", sessionID, ErrUnauthorized)
	}

	var query string
	switch column {
	case "bookmarked":
		query = `UPDATE sessions SET bookmarked = ? WHERE id = ?`
	case "public":
		query = `UPDATE sessions SET public = ? WHERE id = ?`
	default:
		return fmt.Errorf("unknown session flag %q", column)
	}
	if _, err := s.db.ExecContext(ctx, query, v, sessionID); err != nil {
		return fmt.Errorf("update session %s %s: %w", sessionID, column, err)
	}
	s.log.Info().Str("session_id", sessionID).Str("flag", column).Bool("value", v).Msg("session flag updated")
	return nil
}

// Read implements prefs.Store.
func (s *Store) Read(key string) (string, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var value string
	err := s.db.QueryRow(`SELECT value FROM preferences WHERE key = ?`, key).Scan(&value)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("read preference %s: %w", key, err)
	}
	return value, true, nil
}

// Write implements prefs.Store.
func (s *Store) Write(key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, err := s.db.Exec(`
		INSERT INTO preferences(key, value) VALUES(?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value
	`, key, value); err != nil {
		return fmt.Errorf("write preference %s: %w", key, err)
	}
	return nil
}
