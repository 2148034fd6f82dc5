package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, name, username string) (domain.User, error) {
	u := domain.User{ID: uuid.New(), Name: name, Username: username}
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO users (id, name, username, created_at) VALUES (?, ?, ?, ?)`,
		u.ID, u.Name, u.Username, toMillis(time.Now()),
	)
	return u, translate(err, "create user")
}

// CreateGroup inserts a group and its owner membership in one transaction.
func (s *Store) CreateGroup(ctx context.Context, name, joinCode string, owner uuid.UUID) (domain.Group, error) {
	g := domain.Group{ID: uuid.New(), Name: name, JoinCode: joinCode, CreatedBy: owner, CreatedAt: time.Now().UTC()}
	err := s.inTx(ctx, "create_group", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO groups (id, name, join_code, created_by, created_at) VALUES (?, ?, ?, ?, ?)`,
			g.ID, g.Name, g.JoinCode, g.CreatedBy, toMillis(g.CreatedAt),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, 'owner', ?)`,
			g.ID, owner, toMillis(g.CreatedAt),
		)
		return err
	})
	return g, err
}

func (s *Store) AddGroupMember(ctx context.Context, groupID, userID uuid.UUID, role domain.GroupRole) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO group_members (group_id, user_id, role, joined_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT (group_id, user_id) DO NOTHING`,
		groupID, userID, string(role), toMillis(time.Now()),
	)
	return translate(err, "add group member")
}

// CreateSession opens an active session with its host as admin player.
func (s *Store) CreateSession(ctx context.Context, name, code string, host uuid.UUID, groupID uuid.NullUUID) (domain.Session, error) {
	sess := domain.Session{
		ID:        uuid.New(),
		Name:      name,
		Code:      code,
		CreatedBy: host,
		GroupID:   groupID,
		Status:    domain.SessionActive,
		CreatedAt: time.Now().UTC(),
	}
	err := s.inTx(ctx, "create_session", func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO sessions (id, name, session_code, created_by, group_id, status, created_at)
			 VALUES (?, ?, ?, ?, ?, 'active', ?)`,
			sess.ID, sess.Name, sess.Code, sess.CreatedBy, sess.GroupID, toMillis(sess.CreatedAt),
		); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			`INSERT INTO session_players (session_id, user_id, role, joined_at) VALUES (?, ?, 'admin', ?)`,
			sess.ID, host, toMillis(sess.CreatedAt),
		)
		return err
	})
	return sess, err
}

// CloseSession records final winnings and marks the session closed.
func (s *Store) CloseSession(ctx context.Context, sessionID uuid.UUID, winnings map[uuid.UUID]decimal.Decimal) error {
	now := toMillis(time.Now())
	return s.inTx(ctx, "close_session", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx,
			`UPDATE sessions SET status = 'closed', closed_at = ? WHERE id = ? AND status = 'active'`,
			now, sessionID,
		)
		if err != nil {
			return err
		}
		if n, err := res.RowsAffected(); err != nil {
			return err
		} else if n == 0 {
			return domain.PreconditionFailed("session %s is not active", sessionID)
		}
		for userID, amount := range winnings {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO session_players (session_id, user_id, role, final_winnings, joined_at)
				 VALUES (?, ?, 'player', ?, ?)
				 ON CONFLICT (session_id, user_id) DO UPDATE SET final_winnings = excluded.final_winnings`,
				sessionID, userID, domain.ToCents(amount), now,
			); err != nil {
				return err
			}
		}
		return nil
	})
}
