package db

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
)

// The writers below stand in for the user, group and session CRUD
// collaborators. They are used by the CLI and by tests.

func (db *DB) CreateUser(ctx context.Context, name, username string) (domain.User, error) {
	u := domain.User{ID: uuid.New(), Name: name, Username: username}
	_, err := db.pool.Exec(ctx, `INSERT INTO users (id, name, username) VALUES ($1, $2, $3)`, u.ID, u.Name, u.Username)
	return u, translate(err, "create user")
}

// CreateGroup inserts a group and its owner membership in one transaction.
func (db *DB) CreateGroup(ctx context.Context, name, joinCode string, owner uuid.UUID) (domain.Group, error) {
	g := domain.Group{ID: uuid.New(), Name: name, JoinCode: joinCode, CreatedBy: owner, CreatedAt: time.Now().UTC()}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return g, translate(err, "create group")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO groups (id, name, join_code, created_by, created_at) VALUES ($1, $2, $3, $4, $5)`,
		g.ID, g.Name, g.JoinCode, g.CreatedBy, g.CreatedAt,
	); err != nil {
		return g, translate(err, "create group")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES ($1, $2, 'owner', $3)`,
		g.ID, owner, g.CreatedAt,
	); err != nil {
		return g, translate(err, "create group")
	}
	return g, translate(tx.Commit(ctx), "create group")
}

func (db *DB) AddGroupMember(ctx context.Context, groupID, userID uuid.UUID, role domain.GroupRole) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO group_members (group_id, user_id, role) VALUES ($1, $2, $3)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, string(role),
	)
	return translate(err, "add group member")
}

// CreateSession opens an active session with its host as admin player.
func (db *DB) CreateSession(ctx context.Context, name, code string, host uuid.UUID, groupID uuid.NullUUID) (domain.Session, error) {
	s := domain.Session{
		ID:        uuid.New(),
		Name:      name,
		Code:      code,
		CreatedBy: host,
		GroupID:   groupID,
		Status:    domain.SessionActive,
		CreatedAt: time.Now().UTC(),
	}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return s, translate(err, "create session")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx,
		`INSERT INTO sessions (id, name, session_code, created_by, group_id, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, 'active', $6)`,
		s.ID, s.Name, s.Code, s.CreatedBy, s.GroupID, s.CreatedAt,
	); err != nil {
		return s, translate(err, "create session")
	}
	if _, err := tx.Exec(ctx,
		`INSERT INTO session_players (session_id, user_id, role) VALUES ($1, $2, 'admin')`,
		s.ID, host,
	); err != nil {
		return s, translate(err, "create session")
	}
	return s, translate(tx.Commit(ctx), "create session")
}

// CloseSession records final winnings and marks the session closed.
func (db *DB) CloseSession(ctx context.Context, sessionID uuid.UUID, winnings map[uuid.UUID]decimal.Decimal) error {
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return translate(err, "close session")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	ct, err := tx.Exec(ctx,
		`UPDATE sessions SET status = 'closed', closed_at = NOW() WHERE id = $1 AND status = 'active'`,
		sessionID,
	)
	if err != nil {
		return translate(err, "close session")
	}
	if ct.RowsAffected() == 0 {
		return domain.PreconditionFailed("session %s is not active", sessionID)
	}
	for userID, amount := range winnings {
		if _, err := tx.Exec(ctx,
			`INSERT INTO session_players (session_id, user_id, role, final_winnings)
			 VALUES ($1, $2, 'player', $3)
			 ON CONFLICT (session_id, user_id) DO UPDATE SET final_winnings = EXCLUDED.final_winnings`,
			sessionID, userID, amount,
		); err != nil {
			return translate(err, "close session")
		}
	}
	return translate(tx.Commit(ctx), "close session")
}
