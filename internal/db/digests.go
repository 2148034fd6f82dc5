package db

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/susu3304/chipledger/internal/domain"
)

// UpsertDigest configures the debt digest for a group. A nil nextDueAt keeps
// the existing schedule.
func (db *DB) UpsertDigest(ctx context.Context, groupID uuid.UUID, channelID string, intervalMinutes int, nextDueAt *time.Time) error {
	_, err := db.pool.Exec(ctx,
		`INSERT INTO group_digests (group_id, channel_id, interval_minutes, next_due_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (group_id) DO UPDATE
		 SET channel_id = EXCLUDED.channel_id,
			 interval_minutes = EXCLUDED.interval_minutes,
			 next_due_at = COALESCE(EXCLUDED.next_due_at, group_digests.next_due_at)`,
		groupID, channelID, intervalMinutes, nextDueAt,
	)
	return translate(err, "upsert digest")
}

// DueDigests returns digests whose next_due_at has passed.
func (db *DB) DueDigests(ctx context.Context, now time.Time) ([]domain.GroupDigest, error) {
	rows, err := db.pool.Query(ctx,
		`SELECT d.group_id, g.name, d.channel_id, d.interval_minutes, d.next_due_at, d.last_sent_at
		 FROM group_digests d
		 JOIN groups g ON g.id = d.group_id
		 WHERE d.next_due_at IS NULL OR d.next_due_at <= $1
		 ORDER BY d.group_id`,
		now,
	)
	if err != nil {
		return nil, translate(err, "due digests")
	}
	defer rows.Close()

	var out []domain.GroupDigest
	for rows.Next() {
		var d domain.GroupDigest
		if err := rows.Scan(&d.GroupID, &d.GroupName, &d.ChannelID, &d.IntervalMinutes, &d.NextDueAt, &d.LastSentAt); err != nil {
			return nil, translate(err, "due digests")
		}
		out = append(out, d)
	}
	return out, translate(rows.Err(), "due digests")
}

// MarkDigestSent updates digest schedule timestamps.
func (db *DB) MarkDigestSent(ctx context.Context, groupID uuid.UUID, sentAt, nextDue time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE group_digests
		 SET last_sent_at = $2, next_due_at = $3
		 WHERE group_id = $1`,
		groupID, sentAt, nextDue,
	)
	return translate(err, "mark digest sent")
}

// DelayDigest updates next_due_at without touching last_sent_at.
func (db *DB) DelayDigest(ctx context.Context, groupID uuid.UUID, nextDue time.Time) error {
	_, err := db.pool.Exec(ctx,
		`UPDATE group_digests
		 SET next_due_at = $2
		 WHERE group_id = $1`,
		groupID, nextDue,
	)
	return translate(err, "delay digest")
}
