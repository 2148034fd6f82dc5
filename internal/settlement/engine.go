// Package settlement turns a group's closed-session history and its real-money
// settlements into per-member balances and a short list of suggested payments.
package settlement

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/metrics"
)

// PlayerTotals aggregates one user's closed sessions in a group.
// TotalApprovedBuyIns only counts approved deposits (amount > 0).
type PlayerTotals struct {
	UserID              uuid.UUID
	TotalWinnings       decimal.Decimal
	TotalApprovedBuyIns decimal.Decimal
}

// LeaderboardEntry is a member's lifetime final winnings in a group.
type LeaderboardEntry struct {
	UserID      uuid.UUID        `json:"user_id"`
	Name        string           `json:"name"`
	Role        domain.GroupRole `json:"role"`
	NetWinnings decimal.Decimal  `json:"net_winnings"`
}

// Reader is a consistent read snapshot of one store.
type Reader interface {
	GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error)
	// ListGroupMembers returns members ordered by join time, then user id.
	ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error)
	SumClosedSessionWinningsAndBuyins(ctx context.Context, groupID uuid.UUID) ([]PlayerTotals, error)
	// ListSettlements returns settlements newest first, with display names.
	ListSettlements(ctx context.Context, groupID uuid.UUID) ([]domain.GroupSettlement, error)
	Leaderboard(ctx context.Context, groupID uuid.UUID) ([]LeaderboardEntry, error)
}

// Writer appends settlements.
type Writer interface {
	GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error)
	MembersOfGroup(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error)
	InsertSettlement(ctx context.Context, s domain.GroupSettlement) (domain.GroupSettlement, error)
}

// Store scopes every engine operation to one unit of work. Implementations
// release the underlying transaction on every return path.
type Store interface {
	Snapshot(ctx context.Context, fn func(Reader) error) error
	InGroupTx(ctx context.Context, fn func(Writer) error) error
}

type MemberBalance struct {
	UserID   uuid.UUID       `json:"user_id"`
	Name     string          `json:"name"`
	Username string          `json:"username"`
	Balance  decimal.Decimal `json:"balance"`
}

// Report is the result of ComputeBalances.
type Report struct {
	Members []MemberBalance          `json:"members"`
	Debts   []Debt                   `json:"debts"`
	History []domain.GroupSettlement `json:"history"`
}

// Outstanding reports whether any payment is still suggested.
func (r *Report) Outstanding() bool { return len(r.Debts) > 0 }

type SettlementRequest struct {
	GroupID    uuid.UUID
	PayerID    uuid.UUID
	ReceiverID uuid.UUID
	Amount     decimal.Decimal
	Note       string
}

type Engine struct {
	store Store
	log   *zap.Logger
	now   func() time.Time
}

func NewEngine(store Store, log *zap.Logger) *Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return &Engine{store: store, log: log, now: time.Now}
}

// ComputeBalances nets each member's poker results, layers the recorded
// settlements on top, and simplifies the remaining debts.
func (e *Engine) ComputeBalances(ctx context.Context, groupID uuid.UUID) (*Report, error) {
	var (
		members     []domain.GroupMember
		totals      []PlayerTotals
		settlements []domain.GroupSettlement
	)
	err := e.store.Snapshot(ctx, func(r Reader) error {
		ok, err := r.GroupExists(ctx, groupID)
		if err != nil {
			return fmt.Errorf("check group: %w", err)
		}
		if !ok {
			return domain.NotFound("group %s not found", groupID)
		}
		if members, err = r.ListGroupMembers(ctx, groupID); err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		if totals, err = r.SumClosedSessionWinningsAndBuyins(ctx, groupID); err != nil {
			return fmt.Errorf("sum closed sessions: %w", err)
		}
		if settlements, err = r.ListSettlements(ctx, groupID); err != nil {
			return fmt.Errorf("list settlements: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	balances := make(map[uuid.UUID]decimal.Decimal, len(members))
	for _, m := range members {
		balances[m.UserID] = decimal.Zero
	}
	// Poker results first, then cash already handed over.
	for _, t := range totals {
		if b, ok := balances[t.UserID]; ok {
			balances[t.UserID] = b.Add(t.TotalWinnings).Sub(t.TotalApprovedBuyIns)
		}
	}
	for _, s := range settlements {
		if b, ok := balances[s.PayerID]; ok {
			balances[s.PayerID] = b.Add(s.Amount)
		}
		if b, ok := balances[s.ReceiverID]; ok {
			balances[s.ReceiverID] = b.Sub(s.Amount)
		}
	}

	report := &Report{
		Members: make([]MemberBalance, 0, len(members)),
		History: settlements,
	}
	positions := make([]Position, 0, len(members))
	for _, m := range members {
		b := balances[m.UserID]
		positions = append(positions, Position{UserID: m.UserID, Name: m.Name, Amount: b})
		report.Members = append(report.Members, MemberBalance{
			UserID:   m.UserID,
			Name:     m.Name,
			Username: m.Username,
			Balance:  b.Round(2),
		})
	}
	report.Debts = Simplify(positions)
	if report.History == nil {
		report.History = []domain.GroupSettlement{}
	}

	metrics.BalanceComputations.Inc()
	metrics.DebtEdges.Observe(float64(len(report.Debts)))
	return report, nil
}

// RecordSettlement appends a cash payment between two members. Balances are
// not touched; the next ComputeBalances call observes it.
func (e *Engine) RecordSettlement(ctx context.Context, req SettlementRequest) (*domain.GroupSettlement, error) {
	if req.GroupID == uuid.Nil || req.PayerID == uuid.Nil || req.ReceiverID == uuid.Nil {
		return nil, domain.InvalidArgument("group, payer and receiver are required")
	}
	if req.PayerID == req.ReceiverID {
		return nil, domain.InvalidArgument("cannot settle with yourself")
	}
	if req.Amount.Sign() <= 0 {
		return nil, domain.InvalidArgument("amount must be a positive number")
	}
	if err := domain.CheckAmount(req.Amount); err != nil {
		return nil, err
	}

	var created domain.GroupSettlement
	err := e.store.InGroupTx(ctx, func(w Writer) error {
		ok, err := w.GroupExists(ctx, req.GroupID)
		if err != nil {
			return fmt.Errorf("check group: %w", err)
		}
		if !ok {
			return domain.NotFound("group %s not found", req.GroupID)
		}
		found, err := w.MembersOfGroup(ctx, req.GroupID, []uuid.UUID{req.PayerID, req.ReceiverID})
		if err != nil {
			return fmt.Errorf("check membership: %w", err)
		}
		if !found[req.PayerID] || !found[req.ReceiverID] {
			return domain.PreconditionFailed("both users must be members of this group")
		}
		created, err = w.InsertSettlement(ctx, domain.GroupSettlement{
			ID:         uuid.New(),
			GroupID:    req.GroupID,
			PayerID:    req.PayerID,
			ReceiverID: req.ReceiverID,
			Amount:     req.Amount,
			Note:       strings.TrimSpace(req.Note),
			SettledAt:  e.now().UTC(),
		})
		if err != nil {
			return fmt.Errorf("insert settlement: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	metrics.SettlementsRecorded.Inc()
	e.log.Info("settlement recorded",
		zap.Stringer("group_id", req.GroupID),
		zap.Stringer("payer_id", req.PayerID),
		zap.Stringer("receiver_id", req.ReceiverID),
		zap.Stringer("amount", req.Amount))
	return &created, nil
}

// Leaderboard lists members by lifetime final winnings, highest first.
func (e *Engine) Leaderboard(ctx context.Context, groupID uuid.UUID) ([]LeaderboardEntry, error) {
	var out []LeaderboardEntry
	err := e.store.Snapshot(ctx, func(r Reader) error {
		ok, err := r.GroupExists(ctx, groupID)
		if err != nil {
			return fmt.Errorf("check group: %w", err)
		}
		if !ok {
			return domain.NotFound("group %s not found", groupID)
		}
		out, err = r.Leaderboard(ctx, groupID)
		return err
	})
	return out, err
}
