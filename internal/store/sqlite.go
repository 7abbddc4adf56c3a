package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/omharigupta/datasynth/internal/domain"
	"github.com/omharigupta/datasynth/internal/retry"
	"github.com/omharigupta/datasynth/internal/shared"
	_ "modernc.org/sqlite"
)

// SQLiteStore implements Repository using SQLite.
type SQLiteStore struct {
	db        *sql.DB
	sessionMu sync.Mutex // serialises session writes to avoid SQLITE_BUSY
}

// NewSQLite creates a new SQLite-backed repository.
func NewSQLite(dbPath string) (*SQLiteStore, error) {
	db, err := Open(dbPath)
	if err != nil {
		return nil, err
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}

	return store, nil
}

// Open opens a WAL-mode SQLite database, creating its directory first.
// Other packages that keep tables in the same file share this handle.
func Open(dbPath string) (*sql.DB, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	return db, nil
}

// DB exposes the underlying handle for stores sharing the database file.
func (s *SQLiteStore) DB() *sql.DB {
	return s.db
}

func (s *SQLiteStore) initSchema() error {
	query := `
	CREATE TABLE IF NOT EXISTS kyb_sessions (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL DEFAULT '',
		step INTEGER NOT NULL,
		kyb_file TEXT,
		state_json TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_kyb_sessions_updated ON kyb_sessions(updated_at);
	CREATE INDEX IF NOT EXISTS idx_kyb_sessions_user ON kyb_sessions(user_id);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("close database: %w", err)
	}
	return nil
}

// GetSession retrieves session state by ID.
func (s *SQLiteStore) GetSession(ctx context.Context, sessionID string) (*domain.Session, error) {
	row := s.db.QueryRowContext(ctx, `SELECT state_json FROM kyb_sessions WHERE session_id = ?`, sessionID)

	var stateJSON string
	err := row.Scan(&stateJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session: %w", err)
	}

	var session domain.Session
	if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", sessionID, err)
	}
	return &session, nil
}

// UpsertSession creates or replaces session state, retrying on lock contention.
func (s *SQLiteStore) UpsertSession(ctx context.Context, session *domain.Session) error {
	if session == nil || session.SessionID == "" {
		return fmt.Errorf("upsert session: missing session id")
	}
	stateJSON, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	query := `
		INSERT INTO kyb_sessions (session_id, user_id, step, kyb_file, state_json, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(session_id) DO UPDATE SET
			user_id = excluded.user_id,
			step = excluded.step,
			kyb_file = COALESCE(excluded.kyb_file, kyb_sessions.kyb_file),
			state_json = excluded.state_json,
			updated_at = excluded.updated_at`

	var kybFile interface{}
	if session.KYBFile != "" {
		kybFile = session.KYBFile
	}

	return s.withWriteRetry(ctx, "upsert_session", func(ctx context.Context) error {
		_, err := s.db.ExecContext(ctx, query,
			session.SessionID, session.UserID, session.Step, kybFile, string(stateJSON),
			session.CreatedAt.Unix(), time.Now().Unix(),
		)
		if err != nil {
			return fmt.Errorf("upsert session: %w", err)
		}
		return nil
	})
}

// DeleteSession removes session state.
func (s *SQLiteStore) DeleteSession(ctx context.Context, sessionID string) error {
	return s.withWriteRetry(ctx, "delete_session", func(ctx context.Context) error {
		if _, err := s.db.ExecContext(ctx, `DELETE FROM kyb_sessions WHERE session_id = ?`, sessionID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

// ListUserSessions returns the sessions owned by a user, newest first.
func (s *SQLiteStore) ListUserSessions(ctx context.Context, userID string) ([]*domain.Session, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT state_json FROM kyb_sessions WHERE user_id = ? ORDER BY updated_at DESC`, userID)
	if err != nil {
		return nil, fmt.Errorf("query user sessions: %w", err)
	}
	defer func() {
		if closeErr := rows.Close(); closeErr != nil {
			slog.Warn("failed to close user sessions rows", "error", closeErr)
		}
	}()

	var sessions []*domain.Session
	for rows.Next() {
		var stateJSON string
		if err := rows.Scan(&stateJSON); err != nil {
			return nil, fmt.Errorf("scan user session row: %w", err)
		}
		var session domain.Session
		if err := json.Unmarshal([]byte(stateJSON), &session); err != nil {
			slog.Warn("Skipping undecodable session row", "user_id", userID, "error", err)
			continue
		}
		sessions = append(sessions, &session)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user sessions: %w", err)
	}
	return sessions, nil
}

// CleanupExpiredSessions removes sessions idle longer than ttl.
func (s *SQLiteStore) CleanupExpiredSessions(ctx context.Context, ttl time.Duration) (int64, error) {
	threshold := time.Now().Add(-ttl).Unix()

	var deleted int64
	err := s.withWriteRetry(ctx, "cleanup_sessions", func(ctx context.Context) error {
		result, err := s.db.ExecContext(ctx, `DELETE FROM kyb_sessions WHERE updated_at < ?`, threshold)
		if err != nil {
			return fmt.Errorf("cleanup expired sessions: %w", err)
		}
		deleted, err = result.RowsAffected()
		return err
	})
	return deleted, err
}

func (s *SQLiteStore) withWriteRetry(ctx context.Context, op string, fn func(context.Context) error) error {
	policy := retry.SQLite
	policy.Name = op
	policy.Retryable = shared.IsSQLiteConflictError

	return retry.Do(ctx, policy, func(ctx context.Context) error {
		s.sessionMu.Lock()
		defer s.sessionMu.Unlock()
		return fn(ctx)
	})
}
