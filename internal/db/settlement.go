package db

import (
	"context"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/settlement"
)

// Snapshot runs fn against one REPEATABLE READ read-only transaction so the
// member, P&L and settlement queries agree with each other.
func (db *DB) Snapshot(ctx context.Context, fn func(settlement.Reader) error) error {
	opts := pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
	return db.inTx(ctx, "group_snapshot", opts, func(tx pgx.Tx) error {
		return fn(groupQueries{q: tx})
	})
}

func (db *DB) InGroupTx(ctx context.Context, fn func(settlement.Writer) error) error {
	return db.inTx(ctx, "group_tx", pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		return fn(groupQueries{q: tx})
	})
}

type groupQueries struct {
	q querier
}

func (g groupQueries) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	var ok bool
	err := g.q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = $1)`, groupID).Scan(&ok)
	return ok, err
}

func (g groupQueries) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	rows, err := g.q.Query(ctx,
		`SELECT gm.group_id, gm.user_id, u.name, u.username, gm.role, gm.joined_at
		 FROM group_members gm
		 JOIN users u ON gm.user_id = u.id
		 WHERE gm.group_id = $1
		 ORDER BY gm.joined_at, gm.user_id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GroupMember
	for rows.Next() {
		var m domain.GroupMember
		var role string
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Name, &m.Username, &role, &m.JoinedAt); err != nil {
			return nil, err
		}
		m.Role = domain.GroupRole(role)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (g groupQueries) SumClosedSessionWinningsAndBuyins(ctx context.Context, groupID uuid.UUID) ([]settlement.PlayerTotals, error) {
	rows, err := g.q.Query(ctx,
		`SELECT
			sp.user_id,
			COALESCE(SUM(sp.final_winnings), 0) AS total_winnings,
			COALESCE(SUM(b.buyin_total), 0) AS total_buyins
		 FROM session_players sp
		 JOIN sessions s ON sp.session_id = s.id
		 LEFT JOIN (
			SELECT session_id, user_id, SUM(amount) AS buyin_total
			FROM buy_ins
			WHERE status = 'approved' AND amount > 0
			GROUP BY session_id, user_id
		 ) b ON b.session_id = sp.session_id AND b.user_id = sp.user_id
		 WHERE s.group_id = $1 AND s.status = 'closed'
		 GROUP BY sp.user_id
		 ORDER BY sp.user_id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []settlement.PlayerTotals
	for rows.Next() {
		var t settlement.PlayerTotals
		if err := rows.Scan(&t.UserID, &t.TotalWinnings, &t.TotalApprovedBuyIns); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

func (g groupQueries) ListSettlements(ctx context.Context, groupID uuid.UUID) ([]domain.GroupSettlement, error) {
	rows, err := g.q.Query(ctx,
		`SELECT gs.id, gs.group_id, gs.payer_id, p.name, gs.receiver_id, r.name,
		        gs.amount, gs.note, gs.settled_at
		 FROM group_settlements gs
		 JOIN users p ON gs.payer_id = p.id
		 JOIN users r ON gs.receiver_id = r.id
		 WHERE gs.group_id = $1
		 ORDER BY gs.settled_at DESC, gs.id DESC`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GroupSettlement
	for rows.Next() {
		var s domain.GroupSettlement
		if err := rows.Scan(&s.ID, &s.GroupID, &s.PayerID, &s.PayerName, &s.ReceiverID, &s.ReceiverName,
			&s.Amount, &s.Note, &s.SettledAt); err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, rows.Err()
}

func (g groupQueries) Leaderboard(ctx context.Context, groupID uuid.UUID) ([]settlement.LeaderboardEntry, error) {
	rows, err := g.q.Query(ctx,
		`SELECT u.id, u.name, gm.role, COALESCE(SUM(sp.final_winnings), 0) AS net_winnings
		 FROM group_members gm
		 JOIN users u ON gm.user_id = u.id
		 LEFT JOIN sessions s ON s.group_id = gm.group_id AND s.status = 'closed'
		 LEFT JOIN session_players sp ON sp.session_id = s.id AND sp.user_id = gm.user_id
		 WHERE gm.group_id = $1
		 GROUP BY u.id, u.name, gm.role
		 ORDER BY net_winnings DESC, u.name`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []settlement.LeaderboardEntry{}
	for rows.Next() {
		var e settlement.LeaderboardEntry
		var role string
		if err := rows.Scan(&e.UserID, &e.Name, &role, &e.NetWinnings); err != nil {
			return nil, err
		}
		e.Role = domain.GroupRole(role)
		out = append(out, e)
	}
	return out, rows.Err()
}

// MembersOfGroup takes share locks on the matching membership rows for the
// rest of the transaction.
func (g groupQueries) MembersOfGroup(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	rows, err := g.q.Query(ctx,
		`SELECT user_id FROM group_members
		 WHERE group_id = $1 AND user_id = ANY($2::uuid[])
		 FOR SHARE`,
		groupID, userIDs,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	found := make(map[uuid.UUID]bool, len(userIDs))
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

func (g groupQueries) InsertSettlement(ctx context.Context, s domain.GroupSettlement) (domain.GroupSettlement, error) {
	err := g.q.QueryRow(ctx,
		`WITH ins AS (
			INSERT INTO group_settlements (id, group_id, payer_id, receiver_id, amount, note, settled_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
			RETURNING id, group_id, payer_id, receiver_id, amount, note, settled_at
		 )
		 SELECT ins.id, ins.group_id, ins.payer_id, p.name, ins.receiver_id, r.name,
		        ins.amount, ins.note, ins.settled_at
		 FROM ins
		 JOIN users p ON ins.payer_id = p.id
		 JOIN users r ON ins.receiver_id = r.id`,
		s.ID, s.GroupID, s.PayerID, s.ReceiverID, s.Amount, s.Note, s.SettledAt,
	).Scan(&s.ID, &s.GroupID, &s.PayerID, &s.PayerName, &s.ReceiverID, &s.ReceiverName,
		&s.Amount, &s.Note, &s.SettledAt)
	return s, err
}

var _ settlement.Store = (*DB)(nil)
