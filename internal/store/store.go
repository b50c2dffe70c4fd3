// Package store provides SQLite persistence for savewatch: a journal of
// reconciliation outcomes and terminal request states.
package store

import (
	"database/sql"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Event is one journaled reconciliation outcome: a source adoption, an
// error raised or cleared, or a peer sync applied. Ticks that change
// nothing are not journaled.
type Event struct {
	ID     int64
	At     time.Time
	Kind   string // "source_adopted", "error", "error_cleared", "peer_sync"
	Source string
	Detail string
}

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	// Build connection string based on database type
	connStr := dbPath
	if dbPath == ":memory:" {
		// For in-memory databases, use shared cache mode so all connections
		// in the pool see the same database
		connStr = "file::memory:?cache=shared"
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	// For in-memory databases, limit to 1 connection to avoid issues
	// with multiple connections getting different databases
	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	// Enable WAL mode for file-based databases (not :memory:)
	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		at DATETIME NOT NULL,
		kind TEXT NOT NULL,
		source TEXT,
		detail TEXT
	);

	CREATE INDEX IF NOT EXISTS idx_events_at ON events(at DESC);

	CREATE TABLE IF NOT EXISTS requests (
		url TEXT PRIMARY KEY,
		state TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// RecordEvent appends one reconciliation outcome to the journal.
func (s *Store) RecordEvent(e Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(
		"INSERT INTO events (at, kind, source, detail) VALUES (?, ?, ?, ?)",
		e.At, e.Kind, e.Source, e.Detail,
	)
	if err != nil {
		return fmt.Errorf("record event: %w", err)
	}
	return nil
}

// RecentEvents returns up to limit events, newest first.
func (s *Store) RecentEvents(limit int) ([]Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rows, err := s.db.Query(
		"SELECT id, at, kind, source, detail FROM events ORDER BY at DESC, id DESC LIMIT ?",
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query events: %w", err)
	}
	defer rows.Close()

	var events []Event
	for rows.Next() {
		var e Event
		if err := rows.Scan(&e.ID, &e.At, &e.Kind, &e.Source, &e.Detail); err != nil {
			return nil, fmt.Errorf("scan event: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// RecordRequest upserts the terminal state of an outbound request.
func (s *Store) RecordRequest(url, state string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		INSERT INTO requests (url, state, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(url) DO UPDATE SET state = excluded.state, updated_at = excluded.updated_at`,
		url, state, at,
	)
	if err != nil {
		return fmt.Errorf("record request: %w", err)
	}
	return nil
}

// RequestState returns the journaled state of a URL, if present.
func (s *Store) RequestState(url string) (string, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var state string
	err := s.db.QueryRow("SELECT state FROM requests WHERE url = ?", url).Scan(&state)
	if err == sql.ErrNoRows {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("query request: %w", err)
	}
	return state, true, nil
}

// PruneEvents keeps only the newest keep events.
func (s *Store) PruneEvents(keep int) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, err := s.db.Exec(`
		DELETE FROM events WHERE id NOT IN (
			SELECT id FROM events ORDER BY at DESC, id DESC LIMIT ?
		)`, keep)
	if err != nil {
		return fmt.Errorf("prune events: %w", err)
	}
	return nil
}
