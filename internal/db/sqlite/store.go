// Package sqlite is the single-file backend of the ledger and settlement
// stores. Amounts are stored as integer cents and timestamps as unix
// milliseconds.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	msqlite "modernc.org/sqlite"
	sqlite3lib "modernc.org/sqlite/lib"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/metrics"
)

const backend = "sqlite"

// Store is a SQLite-backed ledger, settlement and digest store.
type Store struct {
	sqlDB *sql.DB
}

// Open opens the database at path. Every transaction starts with BEGIN
// IMMEDIATE, so units of work that write are serialized by the database
// write lock and wait up to the busy timeout for it.
func Open(path string) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("storage path is required")
	}
	memory := path == ":memory:"
	if !memory {
		path = filepath.Clean(path)
	}
	dsn := path + "?_pragma=foreign_keys(1)&_pragma=busy_timeout(5000)&_txlock=immediate"
	if !memory {
		dsn += "&_pragma=journal_mode(WAL)"
	}
	sqlDB, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if memory {
		// Each connection to :memory: is its own database.
		sqlDB.SetMaxOpenConns(1)
	}
	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	return &Store{sqlDB: sqlDB}, nil
}

// Close releases the SQLite connection.
func (s *Store) Close() error {
	if s == nil || s.sqlDB == nil {
		return nil
	}
	return s.sqlDB.Close()
}

var schema = []string{
	`CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		username TEXT NOT NULL UNIQUE,
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS groups (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		join_code TEXT NOT NULL UNIQUE,
		created_by TEXT NOT NULL REFERENCES users(id),
		created_at INTEGER NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS group_members (
		group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (group_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS sessions (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		session_code TEXT NOT NULL,
		created_by TEXT NOT NULL REFERENCES users(id),
		group_id TEXT REFERENCES groups(id) ON DELETE SET NULL,
		status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed')),
		created_at INTEGER NOT NULL,
		closed_at INTEGER
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sessions_group_status ON sessions(group_id, status)`,
	`CREATE TABLE IF NOT EXISTS session_players (
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		role TEXT NOT NULL DEFAULT 'player' CHECK (role IN ('admin', 'player')),
		final_winnings INTEGER,
		joined_at INTEGER NOT NULL,
		PRIMARY KEY (session_id, user_id)
	)`,
	`CREATE TABLE IF NOT EXISTS buy_ins (
		id TEXT PRIMARY KEY,
		session_id TEXT NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
		user_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL CHECK (amount <> 0),
		status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
		created_at INTEGER NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS idx_buy_ins_session_status ON buy_ins(session_id, status)`,
	`CREATE TABLE IF NOT EXISTS group_settlements (
		id TEXT PRIMARY KEY,
		group_id TEXT NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
		payer_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		receiver_id TEXT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		amount INTEGER NOT NULL CHECK (amount > 0),
		note TEXT NOT NULL DEFAULT '',
		settled_at INTEGER NOT NULL,
		CHECK (payer_id <> receiver_id)
	)`,
	`CREATE INDEX IF NOT EXISTS idx_group_settlements_group_id ON group_settlements(group_id)`,
	`CREATE TABLE IF NOT EXISTS group_digests (
		group_id TEXT PRIMARY KEY REFERENCES groups(id) ON DELETE CASCADE,
		channel_id TEXT NOT NULL,
		interval_minutes INTEGER NOT NULL CHECK (interval_minutes > 0),
		next_due_at INTEGER,
		last_sent_at INTEGER
	)`,
}

// RunMigrations creates the schema. It is safe to run repeatedly.
func (s *Store) RunMigrations(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.sqlDB.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("run migrations: %w", err)
		}
	}
	return nil
}

// translate maps driver failures onto domain error kinds. Errors that
// already carry a kind pass through unchanged.
func translate(err error, op string) error {
	if err == nil {
		return nil
	}
	var de *domain.Error
	if errors.As(err, &de) {
		return err
	}
	var sqliteErr *msqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		switch code {
		case sqlite3lib.SQLITE_CONSTRAINT_FOREIGNKEY:
			return domain.Wrap(domain.KindNotFound, op, err)
		case sqlite3lib.SQLITE_CONSTRAINT_CHECK:
			return domain.Wrap(domain.KindInvalidArgument, op, err)
		case sqlite3lib.SQLITE_CONSTRAINT_PRIMARYKEY, sqlite3lib.SQLITE_CONSTRAINT_UNIQUE:
			metrics.StoreTxConflicts.WithLabelValues(backend).Inc()
			return domain.Wrap(domain.KindConflict, op, err)
		}
		switch code & 0xff {
		case sqlite3lib.SQLITE_BUSY, sqlite3lib.SQLITE_LOCKED:
			metrics.StoreTxConflicts.WithLabelValues(backend).Inc()
			return domain.Wrap(domain.KindConflict, op, err)
		}
	}
	return domain.Wrap(domain.KindStoreUnavailable, op, err)
}

// inTx runs fn in one transaction and rolls back unless fn and the commit
// succeed.
func (s *Store) inTx(ctx context.Context, op string, fn func(*sql.Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.StoreTxDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	}()

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return translate(err, op+": begin")
	}
	defer func() { _ = tx.Rollback() }()

	if err := fn(tx); err != nil {
		return translate(err, op)
	}
	if err := tx.Commit(); err != nil {
		return translate(err, op+": commit")
	}
	return nil
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func toMillis(t time.Time) int64 {
	return t.UTC().UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

func nullMillis(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := fromMillis(v.Int64)
	return &t
}

func millisOrNull(t *time.Time) sql.NullInt64 {
	if t == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: toMillis(*t), Valid: true}
}
