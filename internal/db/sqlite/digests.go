package sqlite

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"

	"github.com/susu3304/chipledger/internal/domain"
)

// UpsertDigest configures the debt digest for a group. A nil nextDueAt keeps
// the existing schedule.
func (s *Store) UpsertDigest(ctx context.Context, groupID uuid.UUID, channelID string, intervalMinutes int, nextDueAt *time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`INSERT INTO group_digests (group_id, channel_id, interval_minutes, next_due_at)
		 VALUES (?, ?, ?, ?)
		 ON CONFLICT (group_id) DO UPDATE
		 SET channel_id = excluded.channel_id,
			 interval_minutes = excluded.interval_minutes,
			 next_due_at = COALESCE(excluded.next_due_at, group_digests.next_due_at)`,
		groupID, channelID, intervalMinutes, millisOrNull(nextDueAt),
	)
	return translate(err, "upsert digest")
}

// DueDigests returns digests whose next_due_at has passed.
func (s *Store) DueDigests(ctx context.Context, now time.Time) ([]domain.GroupDigest, error) {
	rows, err := s.sqlDB.QueryContext(ctx,
		`SELECT d.group_id, g.name, d.channel_id, d.interval_minutes, d.next_due_at, d.last_sent_at
		 FROM group_digests d
		 JOIN groups g ON g.id = d.group_id
		 WHERE d.next_due_at IS NULL OR d.next_due_at <= ?
		 ORDER BY d.group_id`,
		toMillis(now),
	)
	if err != nil {
		return nil, translate(err, "due digests")
	}
	defer rows.Close()

	var out []domain.GroupDigest
	for rows.Next() {
		var (
			d             domain.GroupDigest
			nextDue, sent sql.NullInt64
		)
		if err := rows.Scan(&d.GroupID, &d.GroupName, &d.ChannelID, &d.IntervalMinutes, &nextDue, &sent); err != nil {
			return nil, translate(err, "due digests")
		}
		d.NextDueAt = nullMillis(nextDue)
		d.LastSentAt = nullMillis(sent)
		out = append(out, d)
	}
	return out, translate(rows.Err(), "due digests")
}

// MarkDigestSent updates digest schedule timestamps.
func (s *Store) MarkDigestSent(ctx context.Context, groupID uuid.UUID, sentAt, nextDue time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE group_digests SET last_sent_at = ?, next_due_at = ? WHERE group_id = ?`,
		toMillis(sentAt), toMillis(nextDue), groupID,
	)
	return translate(err, "mark digest sent")
}

// DelayDigest updates next_due_at without touching last_sent_at.
func (s *Store) DelayDigest(ctx context.Context, groupID uuid.UUID, nextDue time.Time) error {
	_, err := s.sqlDB.ExecContext(ctx,
		`UPDATE group_digests SET next_due_at = ? WHERE group_id = ?`,
		toMillis(nextDue), groupID,
	)
	return translate(err, "delay digest")
}
