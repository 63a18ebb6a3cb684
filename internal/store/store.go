// Package store is the durable relational layer. SQLite in WAL mode holds
// conversations, participants, messages, and per-recipient receipts; all
// writes driven by the persistence workers are keyed upserts so redelivered
// log entries collapse into a single logical effect.
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "modernc.org/sqlite"
)

var (
	ErrNotFound = errors.New("store: not found")
)

// Store manages all SQLite operations.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the database at path and initializes the schema.
func Open(path string) (*Store, error) {
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(60000)&_pragma=synchronous(NORMAL)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(30 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error { return s.db.Close() }

// Ping verifies the connection is usable.
func (s *Store) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS conversations (
		name    TEXT PRIMARY KEY,
		admin   TEXT NOT NULL,
		title   TEXT,
		created INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS participants (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		conversation TEXT NOT NULL,
		participant  TEXT NOT NULL,
		created      INTEGER NOT NULL,
		UNIQUE(conversation, participant)
	);
	CREATE INDEX IF NOT EXISTS idx_participants_conversation ON participants(conversation);
	CREATE INDEX IF NOT EXISTS idx_participants_user ON participants(participant);

	CREATE TABLE IF NOT EXISTS messages (
		id           TEXT NOT NULL,
		conversation TEXT NOT NULL,
		source       TEXT NOT NULL,
		text         TEXT NOT NULL,
		reply_to     TEXT,
		created      INTEGER NOT NULL,
		UNIQUE(id)
	);
	CREATE INDEX IF NOT EXISTS idx_messages_conversation ON messages(conversation, created);

	CREATE TABLE IF NOT EXISTS message_receipts (
		id           INTEGER PRIMARY KEY AUTOINCREMENT,
		message      TEXT NOT NULL,
		user         TEXT NOT NULL,
		delivered_at INTEGER,
		read_at      INTEGER,
		reaction     INTEGER,
		updated      INTEGER NOT NULL DEFAULT 0,
		UNIQUE(message, user)
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// nowMs returns wall-clock milliseconds; overridable in tests.
var nowMs = func() int64 { return time.Now().UnixMilli() }
