package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/settlement"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "chipledger.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.RunMigrations(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return s
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open("  "); err == nil {
		t.Fatal("expected error for empty path")
	}
}

func TestRunMigrationsIsIdempotent(t *testing.T) {
	s := openTestStore(t)
	if err := s.RunMigrations(context.Background()); err != nil {
		t.Fatalf("second migrate: %v", err)
	}
}

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	s, err := Open(":memory:")
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer s.Close()
	if err := s.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	if _, err := s.CreateUser(ctx, "Alice", "alice"); err != nil {
		t.Fatalf("create user: %v", err)
	}
}

func TestSessionTxRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	host, _ := s.CreateUser(ctx, "Host", "host")
	sess, err := s.CreateSession(ctx, "Friday", "ABC123", host.ID, uuid.NullUUID{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var inserted domain.BuyIn
	err = s.InSessionTx(ctx, sess.ID, func(tx ledger.SessionTx) error {
		if tx.Session().ID != sess.ID || tx.Session().Status != domain.SessionActive {
			t.Errorf("unexpected session %+v", tx.Session())
		}
		var err error
		inserted, err = tx.InsertBuyIn(ctx, domain.BuyIn{
			ID:        uuid.New(),
			SessionID: sess.ID,
			UserID:    host.ID,
			Amount:    decimal.RequireFromString("123.45"),
			Status:    domain.BuyInApproved,
			CreatedAt: time.Now(),
		})
		if err != nil {
			return err
		}
		ok, err := tx.HasApprovedPositiveBuyIn(ctx, host.ID)
		if err != nil || !ok {
			t.Errorf("HasApprovedPositiveBuyIn = %v, %v", ok, err)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InSessionTx: %v", err)
	}
	if !inserted.Amount.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("amount = %s", inserted.Amount)
	}

	pool, err := s.SessionPool(ctx, sess.ID)
	if err != nil {
		t.Fatalf("pool: %v", err)
	}
	if !pool.Equal(decimal.RequireFromString("123.45")) {
		t.Errorf("pool = %s", pool)
	}

	got, err := s.BuyInSession(ctx, inserted.ID)
	if err != nil || got != sess.ID {
		t.Errorf("BuyInSession = %s, %v", got, err)
	}
}

func TestSessionTxRollsBackOnError(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	host, _ := s.CreateUser(ctx, "Host", "host")
	sess, _ := s.CreateSession(ctx, "Friday", "ABC123", host.ID, uuid.NullUUID{})

	boom := errors.New("boom")
	err := s.InSessionTx(ctx, sess.ID, func(tx ledger.SessionTx) error {
		if _, err := tx.InsertBuyIn(ctx, domain.BuyIn{
			ID: uuid.New(), SessionID: sess.ID, UserID: host.ID,
			Amount: decimal.NewFromInt(50), Status: domain.BuyInApproved, CreatedAt: time.Now(),
		}); err != nil {
			return err
		}
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	rows, err := s.ListBuyIns(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(rows) != 0 {
		t.Fatalf("expected rollback, found %d rows", len(rows))
	}
}

func TestMissingRowsAreNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)

	err := s.InSessionTx(ctx, uuid.New(), func(ledger.SessionTx) error { return nil })
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("InSessionTx: expected not found, got %v", err)
	}
	if _, err := s.SessionPool(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("SessionPool: expected not found, got %v", err)
	}
	if _, err := s.ListBuyIns(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("ListBuyIns: expected not found, got %v", err)
	}
	if _, err := s.BuyInSession(ctx, uuid.New()); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("BuyInSession: expected not found, got %v", err)
	}
}

func TestForeignKeyViolationIsNotFound(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	host, _ := s.CreateUser(ctx, "Host", "host")

	_, err := s.CreateSession(ctx, "Orphan", "X", host.ID, uuid.NullUUID{UUID: uuid.New(), Valid: true})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestDuplicateUsernameIsConflict(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	if _, err := s.CreateUser(ctx, "A", "same"); err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := s.CreateUser(ctx, "B", "same"); !errors.Is(err, domain.ErrConflict) {
		t.Fatalf("expected conflict, got %v", err)
	}
}

func TestCloseSessionTwice(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	host, _ := s.CreateUser(ctx, "Host", "host")
	sess, _ := s.CreateSession(ctx, "Friday", "ABC123", host.ID, uuid.NullUUID{})

	if err := s.CloseSession(ctx, sess.ID, nil); err != nil {
		t.Fatalf("close: %v", err)
	}
	if err := s.CloseSession(ctx, sess.ID, nil); !errors.Is(err, domain.ErrPreconditionFailed) {
		t.Fatalf("expected precondition failed, got %v", err)
	}
}

func TestGroupQueries(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	alice, _ := s.CreateUser(ctx, "Alice", "alice")
	bob, _ := s.CreateUser(ctx, "Bob", "bob")
	carol, _ := s.CreateUser(ctx, "Carol", "carol")
	g, err := s.CreateGroup(ctx, "Home game", "JOIN1", alice.ID)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := s.AddGroupMember(ctx, g.ID, bob.ID, domain.GroupRoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}

	err = s.InGroupTx(ctx, func(w settlement.Writer) error {
		found, err := w.MembersOfGroup(ctx, g.ID, []uuid.UUID{alice.ID, bob.ID, carol.ID})
		if err != nil {
			return err
		}
		if !found[alice.ID] || !found[bob.ID] || found[carol.ID] {
			t.Errorf("membership = %v", found)
		}
		st, err := w.InsertSettlement(ctx, domain.GroupSettlement{
			ID: uuid.New(), GroupID: g.ID, PayerID: bob.ID, ReceiverID: alice.ID,
			Amount: decimal.RequireFromString("10.50"), Note: "cash", SettledAt: time.Now(),
		})
		if err != nil {
			return err
		}
		if st.PayerName != "Bob" || st.ReceiverName != "Alice" {
			t.Errorf("names = %q, %q", st.PayerName, st.ReceiverName)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("InGroupTx: %v", err)
	}

	err = s.Snapshot(ctx, func(r settlement.Reader) error {
		members, err := r.ListGroupMembers(ctx, g.ID)
		if err != nil {
			return err
		}
		if len(members) != 2 || members[0].UserID != alice.ID {
			t.Errorf("members = %+v", members)
		}
		history, err := r.ListSettlements(ctx, g.ID)
		if err != nil {
			return err
		}
		if len(history) != 1 || !history[0].Amount.Equal(decimal.RequireFromString("10.5")) {
			t.Errorf("history = %+v", history)
		}
		return nil
	})
	if err != nil {
		t.Fatalf("Snapshot: %v", err)
	}
}

func TestDigestSchedule(t *testing.T) {
	ctx := context.Background()
	s := openTestStore(t)
	alice, _ := s.CreateUser(ctx, "Alice", "alice")
	g, _ := s.CreateGroup(ctx, "Home game", "JOIN1", alice.ID)

	now := time.Now().UTC().Truncate(time.Millisecond)
	if err := s.UpsertDigest(ctx, g.ID, "chan-1", 60, nil); err != nil {
		t.Fatalf("upsert: %v", err)
	}
	due, err := s.DueDigests(ctx, now)
	if err != nil {
		t.Fatalf("due: %v", err)
	}
	if len(due) != 1 || due[0].GroupName != "Home game" || due[0].ChannelID != "chan-1" {
		t.Fatalf("due = %+v", due)
	}

	next := now.Add(time.Hour)
	if err := s.MarkDigestSent(ctx, g.ID, now, next); err != nil {
		t.Fatalf("mark sent: %v", err)
	}
	if due, _ := s.DueDigests(ctx, now); len(due) != 0 {
		t.Fatalf("expected nothing due, got %+v", due)
	}
	due, _ = s.DueDigests(ctx, next)
	if len(due) != 1 || due[0].LastSentAt == nil || !due[0].LastSentAt.Equal(now) {
		t.Fatalf("due after interval = %+v", due)
	}

	if err := s.DelayDigest(ctx, g.ID, next.Add(time.Minute)); err != nil {
		t.Fatalf("delay: %v", err)
	}
	if due, _ := s.DueDigests(ctx, next); len(due) != 0 {
		t.Fatalf("expected delayed digest, got %+v", due)
	}
}
