package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/ledger"
)

const buyInColumns = `id, session_id, user_id, amount, status, created_at`

const poolQuery = `
SELECT COALESCE(SUM(amount), 0)
FROM buy_ins
WHERE session_id = ?
  AND (status = 'approved' OR (status = 'pending' AND amount < 0))`

// InSessionTx holds the database write lock for the whole unit of work, so
// units on the same session (and on every other session) run one at a time.
func (s *Store) InSessionTx(ctx context.Context, sessionID uuid.UUID, fn func(ledger.SessionTx) error) error {
	return s.inTx(ctx, "session_tx", func(tx *sql.Tx) error {
		sess, err := scanSession(tx.QueryRowContext(ctx,
			`SELECT id, name, session_code, created_by, group_id, status, created_at, closed_at
			 FROM sessions WHERE id = ?`,
			sessionID,
		))
		if errors.Is(err, sql.ErrNoRows) {
			return domain.NotFound("session %s not found", sessionID)
		}
		if err != nil {
			return err
		}
		return fn(&sessionTx{tx: tx, session: sess})
	})
}

func (s *Store) SessionPool(ctx context.Context, sessionID uuid.UUID) (decimal.Decimal, error) {
	if err := sessionExists(ctx, s.sqlDB, sessionID); err != nil {
		return decimal.Zero, err
	}
	var cents int64
	if err := s.sqlDB.QueryRowContext(ctx, poolQuery, sessionID).Scan(&cents); err != nil {
		return decimal.Zero, translate(err, "session pool")
	}
	return domain.FromCents(cents), nil
}

func (s *Store) ListBuyIns(ctx context.Context, sessionID uuid.UUID) ([]domain.BuyIn, error) {
	if err := sessionExists(ctx, s.sqlDB, sessionID); err != nil {
		return nil, err
	}
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT `+buyInColumns+` FROM buy_ins WHERE session_id = ? ORDER BY created_at, id`,
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

func (s *Store) BuyInSession(ctx context.Context, buyInID uuid.UUID) (uuid.UUID, error) {
	var sessionID uuid.UUID
	err := s.sqlDB.QueryRowContext(ctx, `SELECT session_id FROM buy_ins WHERE id = ?`, buyInID).Scan(&sessionID)
	if errors.Is(err, sql.ErrNoRows) {
		return uuid.Nil, domain.NotFound("buy-in %s not found", buyInID)
	}
	if err != nil {
		return uuid.Nil, translate(err, "buy-in session")
	}
	return sessionID, nil
}

type sessionTx struct {
	tx      *sql.Tx
	session domain.Session
}

func (s *sessionTx) Session() domain.Session { return s.session }

func (s *sessionTx) UserExists(ctx context.Context, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.tx.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = ?)`, userID).Scan(&ok)
	return ok, err
}

func (s *sessionTx) HasApprovedPositiveBuyIn(ctx context.Context, userID uuid.UUID) (bool, error) {
	var ok bool
	err := s.tx.QueryRowContext(ctx,
		`SELECT EXISTS (
			SELECT 1 FROM buy_ins
			WHERE session_id = ? AND user_id = ? AND status = 'approved' AND amount > 0
		)`,
		s.session.ID, userID,
	).Scan(&ok)
	return ok, err
}

func (s *sessionTx) SessionPool(ctx context.Context) (decimal.Decimal, error) {
	var cents int64
	if err := s.tx.QueryRowContext(ctx, poolQuery, s.session.ID).Scan(&cents); err != nil {
		return decimal.Zero, err
	}
	return domain.FromCents(cents), nil
}

func (s *sessionTx) InsertSessionPlayerIfAbsent(ctx context.Context, userID uuid.UUID, role domain.PlayerRole) error {
	_, err := s.tx.ExecContext(ctx,
		`INSERT INTO session_players (session_id, user_id, role, joined_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (session_id, user_id) DO NOTHING`,
		s.session.ID, userID, string(role), toMillis(time.Now()),
	)
	return err
}

func (s *sessionTx) InsertBuyIn(ctx context.Context, b domain.BuyIn) (domain.BuyIn, error) {
	return scanBuyIn(s.tx.QueryRowContext(ctx,
		`INSERT INTO buy_ins (id, session_id, user_id, amount, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)
		 RETURNING `+buyInColumns,
		b.ID, b.SessionID, b.UserID, domain.ToCents(b.Amount), string(b.Status), toMillis(b.CreatedAt),
	))
}

func (s *sessionTx) BuyIn(ctx context.Context, buyInID uuid.UUID) (domain.BuyIn, error) {
	b, err := scanBuyIn(s.tx.QueryRowContext(ctx,
		`SELECT `+buyInColumns+` FROM buy_ins WHERE id = ? AND session_id = ?`,
		buyInID, s.session.ID,
	))
	if errors.Is(err, sql.ErrNoRows) {
		return b, domain.NotFound("buy-in %s not found", buyInID)
	}
	return b, err
}

func (s *sessionTx) SetBuyInStatus(ctx context.Context, buyInID uuid.UUID, status domain.BuyInStatus) (domain.BuyIn, error) {
	return scanBuyIn(s.tx.QueryRowContext(ctx,
		`UPDATE buy_ins SET status = ? WHERE id = ? AND session_id = ?
		 RETURNING `+buyInColumns,
		string(status), buyInID, s.session.ID,
	))
}

func sessionExists(ctx context.Context, q querier, sessionID uuid.UUID) error {
	var ok bool
	if err := q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM sessions WHERE id = ?)`, sessionID).Scan(&ok); err != nil {
		return translate(err, "check session")
	}
	if !ok {
		return domain.NotFound("session %s not found", sessionID)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (domain.Session, error) {
	var (
		s         domain.Session
		status    string
		createdAt int64
		closedAt  sql.NullInt64
	)
	if err := row.Scan(&s.ID, &s.Name, &s.Code, &s.CreatedBy, &s.GroupID, &status, &createdAt, &closedAt); err != nil {
		return s, err
	}
	s.Status = domain.SessionStatus(status)
	s.CreatedAt = fromMillis(createdAt)
	s.ClosedAt = nullMillis(closedAt)
	return s, nil
}

func scanBuyIn(row rowScanner) (domain.BuyIn, error) {
	var (
		b         domain.BuyIn
		cents     int64
		status    string
		createdAt int64
	)
	if err := row.Scan(&b.ID, &b.SessionID, &b.UserID, &cents, &status, &createdAt); err != nil {
		return b, err
	}
	b.Amount = domain.FromCents(cents)
	b.Status = domain.BuyInStatus(status)
	b.CreatedAt = fromMillis(createdAt)
	return b, nil
}

var _ ledger.Store = (*Store)(nil)
