package domain

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SessionStatus string

const (
	SessionActive SessionStatus = "active"
	SessionClosed SessionStatus = "closed"
)

type BuyInStatus string

const (
	BuyInPending  BuyInStatus = "pending"
	BuyInApproved BuyInStatus = "approved"
	BuyInRejected BuyInStatus = "rejected"
)

// Valid reports whether s is one of the known buy-in states.
func (s BuyInStatus) Valid() bool {
	switch s {
	case BuyInPending, BuyInApproved, BuyInRejected:
		return true
	}
	return false
}

type PlayerRole string

const (
	RoleAdmin  PlayerRole = "admin"
	RolePlayer PlayerRole = "player"
)

type GroupRole string

const (
	GroupRoleOwner  GroupRole = "owner"
	GroupRoleAdmin  GroupRole = "admin"
	GroupRoleMember GroupRole = "member"
)

type User struct {
	ID       uuid.UUID `json:"id"`
	Name     string    `json:"name"`
	Username string    `json:"username"`
}

type Group struct {
	ID        uuid.UUID `json:"id"`
	Name      string    `json:"name"`
	JoinCode  string    `json:"join_code"`
	CreatedBy uuid.UUID `json:"created_by"`
	CreatedAt time.Time `json:"created_at"`
}

// Session is one cash game. It is created active by its host and closed once.
type Session struct {
	ID        uuid.UUID     `json:"id"`
	Name      string        `json:"name"`
	Code      string        `json:"session_code"`
	CreatedBy uuid.UUID     `json:"created_by"`
	GroupID   uuid.NullUUID `json:"group_id"`
	Status    SessionStatus `json:"status"`
	CreatedAt time.Time     `json:"created_at"`
	ClosedAt  *time.Time    `json:"closed_at,omitempty"`
}

type SessionPlayer struct {
	SessionID     uuid.UUID           `json:"session_id"`
	UserID        uuid.UUID           `json:"user_id"`
	Role          PlayerRole          `json:"role"`
	FinalWinnings decimal.NullDecimal `json:"final_winnings"`
}

// BuyIn is a chip movement request. A positive amount is a deposit, a
// negative amount is a cashout. Only Status changes after insert.
type BuyIn struct {
	ID        uuid.UUID       `json:"id"`
	SessionID uuid.UUID       `json:"session_id"`
	UserID    uuid.UUID       `json:"user_id"`
	Amount    decimal.Decimal `json:"amount"`
	Status    BuyInStatus     `json:"status"`
	CreatedAt time.Time       `json:"created_at"`
}

// IsCashout reports whether the row draws chips out of the pool.
func (b BuyIn) IsCashout() bool { return b.Amount.Sign() < 0 }

type GroupMember struct {
	GroupID  uuid.UUID `json:"group_id"`
	UserID   uuid.UUID `json:"user_id"`
	Name     string    `json:"name"`
	Username string    `json:"username"`
	Role     GroupRole `json:"role"`
	JoinedAt time.Time `json:"joined_at"`
}

// GroupSettlement records real cash handed from Payer to Receiver.
// Rows are append-only.
type GroupSettlement struct {
	ID           uuid.UUID       `json:"id"`
	GroupID      uuid.UUID       `json:"group_id"`
	PayerID      uuid.UUID       `json:"payer_id"`
	PayerName    string          `json:"payer_name,omitempty"`
	ReceiverID   uuid.UUID       `json:"receiver_id"`
	ReceiverName string          `json:"receiver_name,omitempty"`
	Amount       decimal.Decimal `json:"amount"`
	Note         string          `json:"note"`
	SettledAt    time.Time       `json:"settled_at"`
}

// GroupDigest schedules a periodic summary of a group's outstanding debts
// to a chat channel.
type GroupDigest struct {
	GroupID         uuid.UUID  `json:"group_id"`
	GroupName       string     `json:"group_name"`
	ChannelID       string     `json:"channel_id"`
	IntervalMinutes int        `json:"interval_minutes"`
	NextDueAt       *time.Time `json:"next_due_at,omitempty"`
	LastSentAt      *time.Time `json:"last_sent_at,omitempty"`
}
