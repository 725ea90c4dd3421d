// Package history records finished watch and autopilot runs so the status
// command can show what happened recently. Only run metadata is stored;
// question and answer text lives in the transcript alone.
package history

import (
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ihavespoons/seance/internal/logger"

	_ "modernc.org/sqlite" // SQLite driver for database/sql
)

// Record is one watched session.
type Record struct {
	ID           string
	Command      string
	Mode         string // "auto" or "watch"
	StartedAt    time.Time
	EndedAt      time.Time
	ExitCode     int
	Questions    int
	AnswersTyped int
}

// Store defines the interface for session history persistence.
type Store interface {
	StartSession(command, mode string) (*Record, error)
	FinishSession(id string, exitCode, questions, answersTyped int) error
	ListSessions(limit int) ([]*Record, error)
	Close() error
}

// SQLiteStore implements Store using SQLite.
type SQLiteStore struct {
	db *sql.DB
	mu sync.Mutex
}

// NewSQLiteStore opens (creating if needed) the history database at dbPath.
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dbPath == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("failed to get home directory: %w", err)
		}
		dbPath = filepath.Join(homeDir, ".seance", "sessions.db")
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("failed to create history directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err := store.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	logger.Debug().Str("path", dbPath).Msg("Opened session history")
	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		command TEXT NOT NULL,
		mode TEXT NOT NULL,
		started_at INTEGER NOT NULL,
		ended_at INTEGER,
		exit_code INTEGER,
		questions INTEGER NOT NULL DEFAULT 0,
		answers_typed INTEGER NOT NULL DEFAULT 0
	);

	CREATE INDEX IF NOT EXISTS idx_sessions_started ON sessions(started_at);
	`

	_, err := s.db.Exec(schema)
	return err
}

// StartSession records a new session start and returns it.
func (s *SQLiteStore) StartSession(command, mode string) (*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := &Record{
		ID:        uuid.NewString(),
		Command:   command,
		Mode:      mode,
		StartedAt: time.Now(),
	}

	_, err := s.db.Exec(
		`INSERT INTO sessions (id, command, mode, started_at) VALUES (?, ?, ?, ?)`,
		rec.ID, rec.Command, rec.Mode, rec.StartedAt.Unix(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to record session start: %w", err)
	}

	return rec, nil
}

// FinishSession records the outcome of a session.
func (s *SQLiteStore) FinishSession(id string, exitCode, questions, answersTyped int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	result, err := s.db.Exec(
		`UPDATE sessions SET ended_at = ?, exit_code = ?, questions = ?, answers_typed = ?
		 WHERE id = ?`,
		time.Now().Unix(), exitCode, questions, answersTyped, id,
	)
	if err != nil {
		return fmt.Errorf("failed to record session end: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return fmt.Errorf("session not found: %s", id)
	}

	return nil
}

// ListSessions returns the most recent sessions, newest first.
func (s *SQLiteStore) ListSessions(limit int) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if limit < 1 {
		limit = 20
	}

	rows, err := s.db.Query(
		`SELECT id, command, mode, started_at, ended_at, exit_code, questions, answers_typed
		 FROM sessions ORDER BY started_at DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var records []*Record
	for rows.Next() {
		var rec Record
		var startedAt int64
		var endedAt, exitCode sql.NullInt64

		if err := rows.Scan(&rec.ID, &rec.Command, &rec.Mode, &startedAt, &endedAt, &exitCode, &rec.Questions, &rec.AnswersTyped); err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}

		rec.StartedAt = time.Unix(startedAt, 0)
		if endedAt.Valid {
			rec.EndedAt = time.Unix(endedAt.Int64, 0)
		}
		if exitCode.Valid {
			rec.ExitCode = int(exitCode.Int64)
		}
		records = append(records, &rec)
	}

	return records, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
