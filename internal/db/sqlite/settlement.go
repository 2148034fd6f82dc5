package sqlite

import (
	"context"
	"database/sql"
	"strings"

	"github.com/google/uuid"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/settlement"
)

// Snapshot reads inside one transaction. SQLite transactions are
// serializable, so the member, P&L and settlement queries agree.
func (s *Store) Snapshot(ctx context.Context, fn func(settlement.Reader) error) error {
	return s.inTx(ctx, "group_snapshot", func(tx *sql.Tx) error {
		return fn(groupQueries{q: tx})
	})
}

func (s *Store) InGroupTx(ctx context.Context, fn func(settlement.Writer) error) error {
	return s.inTx(ctx, "group_tx", func(tx *sql.Tx) error {
		return fn(groupQueries{q: tx})
	})
}

type groupQueries struct {
	q querier
}

func (g groupQueries) GroupExists(ctx context.Context, groupID uuid.UUID) (bool, error) {
	var ok bool
	err := g.q.QueryRowContext(ctx, `SELECT EXISTS (SELECT 1 FROM groups WHERE id = ?)`, groupID).Scan(&ok)
	return ok, err
}

func (g groupQueries) ListGroupMembers(ctx context.Context, groupID uuid.UUID) ([]domain.GroupMember, error) {
	rows, err := g.q.QueryContext(ctx,
		`SELECT gm.group_id, gm.user_id, u.name, u.username, gm.role, gm.joined_at
		 FROM group_members gm
		 JOIN users u ON gm.user_id = u.id
		 WHERE gm.group_id = ?
		 ORDER BY gm.joined_at, gm.user_id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GroupMember
	for rows.Next() {
		var (
			m        domain.GroupMember
			role     string
			joinedAt int64
		)
		if err := rows.Scan(&m.GroupID, &m.UserID, &m.Name, &m.Username, &role, &joinedAt); err != nil {
			return nil, err
		}
		m.Role = domain.GroupRole(role)
		m.JoinedAt = fromMillis(joinedAt)
		out = append(out, m)
	}
	return out, rows.Err()
}

func (g groupQueries) SumClosedSessionWinningsAndBuyins(ctx context.Context, groupID uuid.UUID) ([]settlement.PlayerTotals, error) {
	rows, err := g.q.QueryContext(ctx,
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
		 WHERE s.group_id = ? AND s.status = 'closed'
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
		var (
			t               settlement.PlayerTotals
			winnings, buyin int64
		)
		if err := rows.Scan(&t.UserID, &winnings, &buyin); err != nil {
			return nil, err
		}
		t.TotalWinnings = domain.FromCents(winnings)
		t.TotalApprovedBuyIns = domain.FromCents(buyin)
		out = append(out, t)
	}
	return out, rows.Err()
}

func (g groupQueries) ListSettlements(ctx context.Context, groupID uuid.UUID) ([]domain.GroupSettlement, error) {
	rows, err := g.q.QueryContext(ctx,
		`SELECT gs.id, gs.group_id, gs.payer_id, p.name, gs.receiver_id, r.name,
		        gs.amount, gs.note, gs.settled_at
		 FROM group_settlements gs
		 JOIN users p ON gs.payer_id = p.id
		 JOIN users r ON gs.receiver_id = r.id
		 WHERE gs.group_id = ?
		 ORDER BY gs.settled_at DESC, gs.id DESC`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.GroupSettlement
	for rows.Next() {
		st, err := scanSettlement(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, st)
	}
	return out, rows.Err()
}

func (g groupQueries) Leaderboard(ctx context.Context, groupID uuid.UUID) ([]settlement.LeaderboardEntry, error) {
	rows, err := g.q.QueryContext(ctx,
		`SELECT u.id, u.name, gm.role, COALESCE(SUM(sp.final_winnings), 0) AS net_winnings
		 FROM group_members gm
		 JOIN users u ON gm.user_id = u.id
		 LEFT JOIN sessions s ON s.group_id = gm.group_id AND s.status = 'closed'
		 LEFT JOIN session_players sp ON sp.session_id = s.id AND sp.user_id = gm.user_id
		 WHERE gm.group_id = ?
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
		var (
			e     settlement.LeaderboardEntry
			role  string
			cents int64
		)
		if err := rows.Scan(&e.UserID, &e.Name, &role, &cents); err != nil {
			return nil, err
		}
		e.Role = domain.GroupRole(role)
		e.NetWinnings = domain.FromCents(cents)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (g groupQueries) MembersOfGroup(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) (map[uuid.UUID]bool, error) {
	found := make(map[uuid.UUID]bool, len(userIDs))
	if len(userIDs) == 0 {
		return found, nil
	}
	args := make([]any, 0, len(userIDs)+1)
	args = append(args, groupID)
	for _, id := range userIDs {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(userIDs)), ", ")

	rows, err := g.q.QueryContext(ctx,
		`SELECT user_id FROM group_members
		 WHERE group_id = ? AND user_id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		found[id] = true
	}
	return found, rows.Err()
}

func (g groupQueries) InsertSettlement(ctx context.Context, st domain.GroupSettlement) (domain.GroupSettlement, error) {
	if _, err := g.q.ExecContext(ctx,
		`INSERT INTO group_settlements (id, group_id, payer_id, receiver_id, amount, note, settled_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)`,
		st.ID, st.GroupID, st.PayerID, st.ReceiverID, domain.ToCents(st.Amount), st.Note, toMillis(st.SettledAt),
	); err != nil {
		return st, err
	}
	return scanSettlement(g.q.QueryRowContext(ctx,
		`SELECT gs.id, gs.group_id, gs.payer_id, p.name, gs.receiver_id, r.name,
		        gs.amount, gs.note, gs.settled_at
		 FROM group_settlements gs
		 JOIN users p ON gs.payer_id = p.id
		 JOIN users r ON gs.receiver_id = r.id
		 WHERE gs.id = ?`,
		st.ID,
	))
}

func scanSettlement(row rowScanner) (domain.GroupSettlement, error) {
	var (
		st        domain.GroupSettlement
		cents     int64
		settledAt int64
	)
	if err := row.Scan(&st.ID, &st.GroupID, &st.PayerID, &st.PayerName, &st.ReceiverID, &st.ReceiverName,
		&cents, &st.Note, &settledAt); err != nil {
		return st, err
	}
	st.Amount = domain.FromCents(cents)
	st.SettledAt = fromMillis(settledAt)
	return st, nil
}

var _ settlement.Store = (*Store)(nil)
