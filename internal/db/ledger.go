package db

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/ledger"
)

const buyInColumns = `id, session_id, user_id, amount, status, created_at`

const poolQuery = `
	SELECT COALESCE(SUM(amount), 0)
	FROM buy_ins
	WHERE session_id = $1
	  AND (status = 'approved' OR (status = 'pending' AND amount < 0))`

// InSessionTx locks the session row with FOR UPDATE so that concurrent
// units of work on the same session run one after the other. Under READ
// COMMITTED each statement after the lock sees rows committed by the
// previous holder.
func (db *DB) InSessionTx(ctx context.Context, sessionID uuid.UUID, fn func(ledger.SessionTx) error) error {
	return db.inTx(ctx, "session_tx", pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		sess, err := scanSession(tx.QueryRow(ctx,
			`SELECT id, name, session_code, created_by, group_id, status, created_at, closed_at
			 FROM sessions WHERE id = $1
			 FOR UPDATE`,
			sessionID,
		))
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.NotFound("session %s not found", sessionID)
		}
		if err != nil {
			return err
		}
		return fn(&sessionTx{tx: tx, session: sess})
	})
}

func (db *DB) SessionPool(ctx context.Context, sessionID uuid.UUID) (decimal.Decimal, error) {
	if err := sessionExists(ctx, db.pool, sessionID); err != nil {
		return decimal.Zero, err
	}
	var pool decimal.Decimal
	if err := db.pool.QueryRow(ctx, poolQuery, sessionID).Scan(&pool); err != nil {
		return decimal.Zero, translate(err, "session pool")
	}
	return pool, nil
}

func (db *DB) ListBuyIns(ctx context.Context, sessionID uuid.UUID) ([]domain.BuyIn, error) {
	if err := sessionExists(ctx, db.pool, sessionID); err != nil {
		return nil, err
	}
	rows, err := db.pool.Query(ctx,
		`SELECT `+buyInColumns+` FROM buy_ins WHERE session_id = $1 ORDER BY created_at, id`,
		sessionID,
	)
	if err != nil {
		return nil, translate(err, "list buy-ins")
	}
	defer rows.Close()

	out := []domain.BuyIn{}
	for rows.Next() {
		b, err := scanBuyIn(rows)
		if err != nil {
			return nil, translate(err, "list buy-ins")
		}
		out = append(out, b)
	}
	return out, translate(rows.Err(), "list buy-ins")
}

func (db *DB) BuyInSession(ctx context.Context, buyInID uuid.UUID) (uuid.UUID, error) {
	var sessionID uuid.UUID
	err := db.pool.QueryRow(ctx, `SELECT session_id FROM buy_ins WHERE id = $1`, buyInID).Scan(&sessionID)
	if errors.Is(err, pgx.ErrNoRows) {
		return uuid.Nil, domain.NotFound("buy-in %s not found", buyInID)
	}
	if err != nil {
		return uuid.Nil, translate(err, "buy-in session")
	}
	return sessionID, nil
}

type sessionTx struct {
	tx      pgx.Tx
	session domain.Session
}

func (s *sessionTx) Session() domain.Session { return s.session }

func (s *sessionTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.tx.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&ok)
	return ok, err
}

func (s *sessionTx) HasApprovedPositiveBuyIn(ctx context.Context, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.tx.QueryRow(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM buy_ins
			WHERE session_id = $1 AND user_id = $2 AND status = 'approved' AND amount > 0
		)`,
		s.session.ID, userID,
	).Scan(&ok)
	return ok, err
}

func (s *sessionTx) SessionPool(ctx context.Context) (decimal.Decimal, error) {
	var pool decimal.Decimal
	err := s.tx.QueryRow(ctx, poolQuery, s.session.ID).Scan(&pool)
	return pool, err
}

func (s *sessionTx) InsertSessionPlayerIfAbsent(ctx context.Context, userID uuid.UUID, role domain.PlayerRole) error {
	_, err := s.tx.Exec(ctx,
		`INSERT INTO session_players (session_id, user_id, role)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (session_id, user_id) DO NOTHING`,
		s.session.ID, userID, string(role),
	)
	return err
}

func (s *sessionTx) InsertBuyIn(ctx context.Context, b domain.BuyIn) (domain.BuyIn, error) {
	return scanBuyIn(s.tx.QueryRow(ctx,
		`INSERT INTO buy_ins (id, session_id, user_id, amount, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING `+buyInColumns,
		b.ID, b.SessionID, b.UserID, b.Amount, string(b.Status), b.CreatedAt,
	))
}

func (s *sessionTx) BuyIn(ctx context.Context, buyInID uuid.UUID) (domain.BuyIn, error) {
	b, err := scanBuyIn(s.tx.QueryRow(ctx,
		`SELECT `+buyInColumns+` FROM buy_ins WHERE id = $1 AND session_id = $2 FOR UPDATE`,
		buyInID, s.session.ID,
	))
	if errors.Is(err, pgx.ErrNoRows) {
		return b, domain.NotFound("buy-in %s not found", buyInID)
	}
	return b, err
}

func (s *sessionTx) SetBuyInStatus(ctx context.Context, buyInID uuid.UUID, status domain.BuyInStatus) (domain.BuyIn, error) {
	return scanBuyIn(s.tx.QueryRow(ctx,
		`UPDATE buy_ins SET status = $3 WHERE id = $1 AND session_id = $2
		 RETURNING `+buyInColumns,
		buyInID, s.session.ID, string(status),
	))
}

func sessionExists(ctx context.Context, q querier, sessionID uuid.UUID) error {
	var ok bool
	if err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = $1)`, sessionID).Scan(&ok); err != nil {
		return translate(err, "check session")
	}
	if !ok {
		return domain.NotFound("session %s not found", sessionID)
	}
	return nil
}

func scanSession(row pgx.Row) (domain.Session, error) {
	var s domain.Session
	var status string
	err := row.Scan(&s.ID, &s.Name, &s.Code, &s.CreatedBy, &s.GroupID, &status, &s.CreatedAt, &s.ClosedAt)
	s.Status = domain.SessionStatus(status)
	return s, err
}

func scanBuyIn(row pgx.Row) (domain.BuyIn, error) {
	var b domain.BuyIn
	var status string
	err := row.Scan(&b.ID, &b.SessionID, &b.UserID, &b.Amount, &status, &b.CreatedAt)
	b.Status = domain.BuyInStatus(status)
	return b, err
}

var _ ledger.Store = (*DB)(nil)
