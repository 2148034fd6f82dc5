package ledger

import (
	"context"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
)

// SessionTx is a unit of work holding the write lock of one session. Every
// read observes the writes of earlier committed units for the same session.
type SessionTx interface {
	// Session returns the locked session row.
	Session() domain.Session
	UserExists(ctx context.Context, userID uuid.UUID) (bool, error)
	HasApprovedPositiveBuyIn(ctx context.Context, userID uuid.UUID) (bool, error)
	// SessionPool is the sum of approved amounts plus pending cashouts.
	SessionPool(ctx context.Context) (decimal.Decimal, error)
	InsertSessionPlayerIfAbsent(ctx context.Context, userID uuid.UUID, role domain.PlayerRole) error
	InsertBuyIn(ctx context.Context, b domain.BuyIn) (domain.BuyIn, error)
	// BuyIn loads a buy-in of this session for update.
	BuyIn(ctx context.Context, buyInID uuid.UUID) (domain.BuyIn, error)
	SetBuyInStatus(ctx context.Context, buyInID uuid.UUID, status domain.BuyInStatus) (domain.BuyIn, error)
}

// Store hands out session-scoped units of work. InSessionTx returns a
// NotFound error when the session does not exist, commits when fn returns
// nil, and rolls back on every other path.
type Store interface {
	InSessionTx(ctx context.Context, sessionID uuid.UUID, fn func(SessionTx) error) error
	SessionPool(ctx context.Context, sessionID uuid.UUID) (decimal.Decimal, error)
	ListBuyIns(ctx context.Context, sessionID uuid.UUID) ([]domain.BuyIn, error)
	// BuyInSession resolves the session a buy-in belongs to.
	BuyInSession(ctx context.Context, buyInID uuid.UUID) (uuid.UUID, error)
}
