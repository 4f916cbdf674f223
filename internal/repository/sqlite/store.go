// Package sqlite is a single-file backend for sessions, users and quota
// counters, used for local runs and the chatctl operator CLI.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"chat-gateway/internal/domain"
)

// Store provides SQLite-backed persistence for the chat service.
type Store struct {
	db           *sql.DB
	defaultQuota int
	now          func() time.Time
}

type Option func(*Store)

// WithDefaultDailyQuota sets the allowance given to users created on first use.
func WithDefaultDailyQuota(n int) Option {
	return func(s *Store) {
		if n > 0 {
			s.defaultQuota = n
		}
	}
}

// Open opens (or creates) the database at path, ensuring that the parent
// directory exists, and creates the tables.
func Open(path string, opts ...Option) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("sqlite: path must not be empty")
	}
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("sqlite: create db directory %s: %w", dir, err)
		}
	}

	// Writers take the lock up front so a read-then-decrement never upgrades
	// mid-transaction.
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_busy_timeout=5000&_txlock=immediate")
	if err != nil {
		return nil, fmt.Errorf("sqlite: open db at %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: ping db at %s: %w", path, err)
	}
	if err := initSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("sqlite: create tables: %w", err)
	}

	s := &Store{db: db, defaultQuota: domain.DefaultDailyQuota, now: time.Now}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

func initSchema(db *sql.DB) error {
	_, err := db.Exec(`
		CREATE TABLE IF NOT EXISTS sessions (
			session_id TEXT PRIMARY KEY,
			partition_key TEXT NOT NULL,
			turns TEXT NOT NULL,
			promo TEXT NOT NULL DEFAULT '',
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_partition_key ON sessions(partition_key);

		CREATE TABLE IF NOT EXISTS users (
			email TEXT PRIMARY KEY,
			daily_quota INTEGER NOT NULL,
			created_at INTEGER NOT NULL
		);

		CREATE TABLE IF NOT EXISTS quota (
			user_id TEXT PRIMARY KEY,
			remaining INTEGER NOT NULL,
			expires_at INTEGER NOT NULL
		);
	`)
	return err
}

func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
