package bot

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/settlement"
)

// DigestStore is the schedule behind the digest worker.
type DigestStore interface {
	DueDigests(ctx context.Context, now time.Time) ([]domain.GroupDigest, error)
	MarkDigestSent(ctx context.Context, groupID uuid.UUID, sentAt, nextDue time.Time) error
	DelayDigest(ctx context.Context, groupID uuid.UUID, nextDue time.Time) error
}

type balanceReporter interface {
	ComputeBalances(ctx context.Context, groupID uuid.UUID) (*settlement.Report, error)
}

// Minimal session interface for sending channel messages.
type digestSession interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// digestWorker periodically posts outstanding group debts to channels.
type digestWorker struct {
	store    DigestStore
	balances balanceReporter
	session  digestSession
	log      *zap.Logger
	stopChan chan struct{}
	ticker   *time.Ticker
	interval time.Duration
	now      func() time.Time
}

func newDigestWorker(session digestSession, store DigestStore, balances balanceReporter, interval time.Duration, log *zap.Logger) *digestWorker {
	if interval <= 0 {
		interval = time.Minute
	}
	return &digestWorker{
		store:    store,
		balances: balances,
		session:  session,
		log:      log,
		stopChan: make(chan struct{}),
		interval: interval,
		now:      time.Now,
	}
}

func (w *digestWorker) start() {
	if w == nil {
		return
	}
	w.ticker = time.NewTicker(w.interval)
	go w.loop()
}

func (w *digestWorker) stop() {
	if w == nil {
		return
	}
	close(w.stopChan)
	if w.ticker != nil {
		w.ticker.Stop()
	}
}

func (w *digestWorker) loop() {
	ctx := context.Background()
	for {
		select {
		case <-w.ticker.C:
			w.tick(ctx)
		case <-w.stopChan:
			return
		}
	}
}

func (w *digestWorker) tick(ctx context.Context) {
	now := w.now()
	targets, err := w.store.DueDigests(ctx, now)
	if err != nil {
		w.log.Warn("digest: failed to load due digests", zap.Error(err))
		return
	}

	for _, t := range targets {
		next := now.Add(time.Duration(t.IntervalMinutes) * time.Minute)
		report, err := w.balances.ComputeBalances(ctx, t.GroupID)
		if err != nil {
			w.log.Warn("digest: failed to compute balances",
				zap.Stringer("group_id", t.GroupID), zap.Error(err))
			continue
		}
		// Nothing owed: skip this round but keep the schedule moving.
		if !report.Outstanding() {
			if err := w.store.MarkDigestSent(ctx, t.GroupID, now, next); err != nil {
				w.log.Warn("digest: failed to reschedule", zap.Stringer("group_id", t.GroupID), zap.Error(err))
			}
			continue
		}

		msg := FormatDigest(t.GroupName, report) + "\n\n_This message is posted automatically._"
		if err := w.sendWithRetry(ctx, t.ChannelID, msg); err != nil {
			w.log.Warn("digest: failed to send",
				zap.String("channel_id", t.ChannelID), zap.Error(err))
			// Back off so we don't hammer Discord every tick.
			backoff := 2 * time.Minute
			if t.IntervalMinutes > 0 {
				max := time.Duration(t.IntervalMinutes) * time.Minute
				if backoff > max {
					backoff = max
				}
			}
			if derr := w.store.DelayDigest(ctx, t.GroupID, now.Add(backoff)); derr != nil {
				w.log.Warn("digest: failed to delay", zap.Stringer("group_id", t.GroupID), zap.Error(derr))
			}
			continue
		}
		if err := w.store.MarkDigestSent(ctx, t.GroupID, now, next); err != nil {
			w.log.Warn("digest: failed to mark sent", zap.Stringer("group_id", t.GroupID), zap.Error(err))
		}
	}
}

func (w *digestWorker) sendWithRetry(ctx context.Context, channelID, content string) error {
	const attemptTimeout = 12 * time.Second
	const maxAttempts = 2

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		sendCtx, cancel := context.WithTimeout(ctx, attemptTimeout)
		_, err := w.session.ChannelMessageSend(channelID, content, discordgo.WithContext(sendCtx))
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err
		if !isTimeout(err) {
			return err
		}
		time.Sleep(time.Duration(300+rand.Intn(500)) * time.Millisecond)
	}
	return lastErr
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// FormatDigest renders a report as a chat message. Discord caps messages at
// 2000 characters, so long debt lists are cut short.
func FormatDigest(groupName string, r *settlement.Report) string {
	var b strings.Builder
	fmt.Fprintf(&b, "**%s**: outstanding balances\n", groupName)
	if !r.Outstanding() {
		b.WriteString("Everyone is settled up.")
		return b.String()
	}
	for i, d := range r.Debts {
		line := fmt.Sprintf("• %s owes %s %s\n", d.FromName, d.ToName, d.Amount.StringFixed(2))
		if b.Len()+len(line) > 1900 {
			fmt.Fprintf(&b, "…and %d more", len(r.Debts)-i)
			break
		}
		b.WriteString(line)
	}
	return strings.TrimRight(b.String(), "\n")
}
