package db

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/metrics"
)

const backend = "postgres"

type DB struct {
	pool *pgxpool.Pool
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func New(ctx context.Context, databaseURL string, maxConns int32) (*DB, error) {
	cfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database url: %w", err)
	}
	if maxConns > 0 {
		cfg.MaxConns = maxConns
	}

	pool, err := pgxpool.NewWithConfig(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	// Test connection
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &DB{pool: pool}, nil
}

func (db *DB) Close() error {
	db.pool.Close()
	return nil
}

// RunMigrations creates the schema. Users, groups and sessions are owned by
// the CRUD collaborators; the ledger only needs them for referential checks.
func (db *DB) RunMigrations(ctx context.Context) error {
	_, err := db.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS users (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			username TEXT NOT NULL UNIQUE,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS groups (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			join_code TEXT NOT NULL UNIQUE,
			created_by UUID NOT NULL REFERENCES users(id),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS group_members (
			group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL CHECK (role IN ('owner', 'admin', 'member')),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (group_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS sessions (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			session_code TEXT NOT NULL,
			created_by UUID NOT NULL REFERENCES users(id),
			group_id UUID REFERENCES groups(id) ON DELETE SET NULL,
			status TEXT NOT NULL DEFAULT 'active' CHECK (status IN ('active', 'closed')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			closed_at TIMESTAMPTZ
		);
		CREATE INDEX IF NOT EXISTS idx_sessions_group_status ON sessions(group_id, status);

		CREATE TABLE IF NOT EXISTS session_players (
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			role TEXT NOT NULL DEFAULT 'player' CHECK (role IN ('admin', 'player')),
			final_winnings NUMERIC(12,2),
			joined_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (session_id, user_id)
		);

		CREATE TABLE IF NOT EXISTS buy_ins (
			id UUID PRIMARY KEY,
			session_id UUID NOT NULL REFERENCES sessions(id) ON DELETE CASCADE,
			user_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount NUMERIC(12,2) NOT NULL CHECK (amount <> 0),
			status TEXT NOT NULL DEFAULT 'pending' CHECK (status IN ('pending', 'approved', 'rejected')),
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_buy_ins_session_status ON buy_ins(session_id, status);

		CREATE TABLE IF NOT EXISTS group_settlements (
			id UUID PRIMARY KEY,
			group_id UUID NOT NULL REFERENCES groups(id) ON DELETE CASCADE,
			payer_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			receiver_id UUID NOT NULL REFERENCES users(id) ON DELETE CASCADE,
			amount NUMERIC(12,2) NOT NULL CHECK (amount > 0),
			note TEXT NOT NULL DEFAULT '',
			settled_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CHECK (payer_id <> receiver_id)
		);
		CREATE INDEX IF NOT EXISTS idx_group_settlements_group_id ON group_settlements(group_id);

		CREATE TABLE IF NOT EXISTS group_digests (
			group_id UUID PRIMARY KEY REFERENCES groups(id) ON DELETE CASCADE,
			channel_id TEXT NOT NULL,
			interval_minutes INT NOT NULL CHECK (interval_minutes > 0),
			next_due_at TIMESTAMPTZ,
			last_sent_at TIMESTAMPTZ
		);
	`)
	return err
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
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "40001", "40P01", "55P03", "23505":
			metrics.StoreTxConflicts.WithLabelValues(backend).Inc()
			return domain.Wrap(domain.KindConflict, op, err)
		case "23503":
			return domain.Wrap(domain.KindNotFound, op, err)
		case "23514", "22003", "22P02":
			return domain.Wrap(domain.KindInvalidArgument, op, err)
		}
	}
	return domain.Wrap(domain.KindStoreUnavailable, op, err)
}

// inTx runs fn in a transaction with the given options. The deferred
// rollback is a no-op once Commit has succeeded.
func (db *DB) inTx(ctx context.Context, op string, opts pgx.TxOptions, fn func(pgx.Tx) error) error {
	start := time.Now()
	defer func() {
		metrics.StoreTxDuration.WithLabelValues(backend, op).Observe(time.Since(start).Seconds())
	}()

	tx, err := db.pool.BeginTx(ctx, opts)
	if err != nil {
		return translate(err, op+": begin")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := fn(tx); err != nil {
		return translate(err, op)
	}
	if err := tx.Commit(ctx); err != nil {
		return translate(err, op+": commit")
	}
	return nil
}
