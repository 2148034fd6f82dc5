// Package ledger records chip buy-ins and cashouts for active sessions and
// keeps the session pool from going negative.
package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/metrics"
)

// BuyInRequest asks for chips to be added (positive Amount) or cashed out
// (negative Amount) for UserID. ActorID is the authenticated caller.
type BuyInRequest struct {
	SessionID uuid.UUID
	UserID    uuid.UUID
	ActorID   uuid.UUID
	Amount    decimal.Decimal
	Status    domain.BuyInStatus
}

type Ledger struct {
	store  Store
	policy StatusPolicy
	log    *zap.Logger
	now    func() time.Time
}

// New builds a ledger. A nil policy trusts the requested status.
func New(store Store, policy StatusPolicy, log *zap.Logger) *Ledger {
	if policy == nil {
		policy = TrustRequested{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{store: store, policy: policy, log: log, now: time.Now}
}

// SubmitBuyIn records a buy-in or cashout request. The user joins the
// session on first buy-in. A cashout needs an approved deposit by the same
// user and may not exceed the session pool; both checks and the insert run
// in one unit of work holding the session lock.
func (l *Ledger) SubmitBuyIn(ctx context.Context, req BuyInRequest) (*domain.BuyIn, error) {
	if err := validateBuyIn(&req); err != nil {
		l.rejected(err)
		return nil, err
	}

	var created domain.BuyIn
	err := l.store.InSessionTx(ctx, req.SessionID, func(tx SessionTx) error {
		sess := tx.Session()
		if sess.Status != domain.SessionActive {
			return domain.PreconditionFailed("session %s is not active", sess.ID)
		}
		ok, err := tx.UserExists(ctx, req.UserID)
		if err != nil {
			return fmt.Errorf("check user: %w", err)
		}
		if !ok {
			return domain.NotFound("user %s not found", req.UserID)
		}
		if err := tx.InsertSessionPlayerIfAbsent(ctx, req.UserID, domain.RolePlayer); err != nil {
			return fmt.Errorf("auto-join: %w", err)
		}

		if req.Amount.Sign() < 0 {
			ok, err := tx.HasApprovedPositiveBuyIn(ctx, req.UserID)
			if err != nil {
				return fmt.Errorf("check approved buy-in: %w", err)
			}
			if !ok {
				return domain.PreconditionFailed("no approved buy-in: at least one approved buy-in is required to cash out")
			}
			pool, err := tx.SessionPool(ctx)
			if err != nil {
				return fmt.Errorf("session pool: %w", err)
			}
			if req.Amount.Abs().GreaterThan(pool) {
				return domain.PoolExceeded("cannot cash out %s, session pool is %s", req.Amount.Abs(), pool)
			}
		}

		created, err = tx.InsertBuyIn(ctx, domain.BuyIn{
			ID:        uuid.New(),
			SessionID: req.SessionID,
			UserID:    req.UserID,
			Amount:    req.Amount,
			Status:    l.policy.Resolve(sess, req),
			CreatedAt: l.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("insert buy-in: %w", err)
		}
		return nil
	})
	if err != nil {
		l.rejected(err)
		return nil, err
	}

	kind := "deposit"
	if created.IsCashout() {
		kind = "cashout"
	}
	metrics.BuyInsRecorded.WithLabelValues(kind, string(created.Status)).Inc()
	l.log.Debug("buy-in recorded",
		zap.Stringer("session_id", created.SessionID),
		zap.Stringer("user_id", created.UserID),
		zap.Stringer("amount", created.Amount),
		zap.String("status", string(created.Status)))
	return &created, nil
}

func validateBuyIn(req *BuyInRequest) error {
	if req.SessionID == uuid.Nil || req.UserID == uuid.Nil {
		return domain.InvalidArgument("session and user are required")
	}
	if req.Amount.IsZero() {
		return domain.InvalidArgument("amount must be non-zero")
	}
	if err := domain.CheckAmount(req.Amount); err != nil {
		return err
	}
	if req.Status == "" {
		req.Status = domain.BuyInPending
	}
	if req.Status != domain.BuyInPending && req.Status != domain.BuyInApproved {
		return domain.InvalidArgument("status %q cannot be requested", req.Status)
	}
	return nil
}

func (l *Ledger) rejected(err error) {
	metrics.BuyInsRejected.WithLabelValues(string(domain.KindOf(err))).Inc()
}

// Decide moves a pending buy-in to approved or rejected on behalf of actorID.
// Neither transition can drive the pool negative: pending cashouts are
// already counted against it.
func (l *Ledger) Decide(ctx context.Context, buyInID, actorID uuid.UUID, status domain.BuyInStatus) (*domain.BuyIn, error) {
	if status != domain.BuyInApproved && status != domain.BuyInRejected {
		return nil, domain.InvalidArgument("status must be approved or rejected")
	}
	sessionID, err := l.store.BuyInSession(ctx, buyInID)
	if err != nil {
		return nil, err
	}

	var updated domain.BuyIn
	err = l.store.InSessionTx(ctx, sessionID, func(tx SessionTx) error {
		sess := tx.Session()
		if !l.policy.MayDecide(sess, actorID) {
			return domain.PreconditionFailed("only the session host can approve or reject buy-ins")
		}
		b, err := tx.BuyIn(ctx, buyInID)
		if err != nil {
			return err
		}
		if b.Status != domain.BuyInPending {
			return domain.PreconditionFailed("buy-in %s is already %s", b.ID, b.Status)
		}
		updated, err = tx.SetBuyInStatus(ctx, buyInID, status)
		return err
	})
	if err != nil {
		return nil, err
	}

	metrics.BuyInDecisions.WithLabelValues(string(status)).Inc()
	return &updated, nil
}

// Pool returns the session's running total: approved amounts plus pending
// cashouts.
func (l *Ledger) Pool(ctx context.Context, sessionID uuid.UUID) (decimal.Decimal, error) {
	return l.store.SessionPool(ctx, sessionID)
}

// BuyIns lists a session's buy-ins oldest first.
func (l *Ledger) BuyIns(ctx context.Context, sessionID uuid.UUID) ([]domain.BuyIn, error) {
	return l.store.ListBuyIns(ctx, sessionID)
}
