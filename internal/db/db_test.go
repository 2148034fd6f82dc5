package db

import (
	"context"
	"errors"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/settlement"
)

// openTestDB connects to CHIPLEDGER_TEST_DATABASE_URL. Tests are skipped
// when it is unset.
func openTestDB(t *testing.T) *DB {
	t.Helper()
	url := os.Getenv("CHIPLEDGER_TEST_DATABASE_URL")
	if url == "" {
		t.Skip("CHIPLEDGER_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	d, err := New(ctx, url, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	t.Cleanup(func() { _ = d.Close() })
	if err := d.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return d
}

func uniqueName(prefix string) string {
	return prefix + "-" + uuid.NewString()[:8]
}

func TestTranslate(t *testing.T) {
	if translate(nil, "op") != nil {
		t.Fatal("nil should stay nil")
	}
	nf := domain.NotFound("missing")
	if got := translate(nf, "op"); got != nf {
		t.Fatalf("domain errors should pass through, got %v", got)
	}
	if got := translate(errors.New("dial tcp: refused"), "op"); !errors.Is(got, domain.ErrStoreUnavailable) {
		t.Fatalf("expected store unavailable, got %v", got)
	}
}

func TestPostgresLedgerFlow(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	host, err := d.CreateUser(ctx, "Host", uniqueName("host"))
	if err != nil {
		t.Fatalf("create user: %v", err)
	}
	sess, err := d.CreateSession(ctx, "Friday", "PG1", host.ID, uuid.NullUUID{})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	l := ledger.New(d, nil, nil)
	if _, err := l.SubmitBuyIn(ctx, ledger.BuyInRequest{
		SessionID: sess.ID, UserID: host.ID, ActorID: host.ID,
		Amount: decimal.NewFromInt(100), Status: domain.BuyInApproved,
	}); err != nil {
		t.Fatalf("buy-in: %v", err)
	}
	pool, err := d.SessionPool(ctx, sess.ID)
	if err != nil || !pool.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("pool = %s, %v", pool, err)
	}
}

// Two cashouts that each fit the pool alone must not both be accepted.
func TestPostgresConcurrentCashouts(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	host, _ := d.CreateUser(ctx, "Host", uniqueName("host"))
	sess, _ := d.CreateSession(ctx, "Race", "PG2", host.ID, uuid.NullUUID{})

	l := ledger.New(d, nil, nil)
	if _, err := l.SubmitBuyIn(ctx, ledger.BuyInRequest{
		SessionID: sess.ID, UserID: host.ID, Amount: decimal.NewFromInt(100), Status: domain.BuyInApproved,
	}); err != nil {
		t.Fatalf("buy-in: %v", err)
	}

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = l.SubmitBuyIn(ctx, ledger.BuyInRequest{
				SessionID: sess.ID, UserID: host.ID, Amount: decimal.NewFromInt(-80), Status: domain.BuyInApproved,
			})
		}(i)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		if !errors.Is(err, domain.ErrPoolExceeded) && !errors.Is(err, domain.ErrConflict) {
			t.Errorf("unexpected error: %v", err)
		}
	}
	if ok != 1 {
		t.Fatalf("expected exactly one cashout to succeed, got %d", ok)
	}
	pool, _ := d.SessionPool(ctx, sess.ID)
	if pool.Sign() < 0 {
		t.Fatalf("pool went negative: %s", pool)
	}
}

func TestPostgresSettlementFlow(t *testing.T) {
	d := openTestDB(t)
	ctx := context.Background()
	a, _ := d.CreateUser(ctx, "A", uniqueName("a"))
	b, _ := d.CreateUser(ctx, "B", uniqueName("b"))
	g, err := d.CreateGroup(ctx, "Group", uniqueName("join"), a.ID)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := d.AddGroupMember(ctx, g.ID, b.ID, domain.GroupRoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}

	e := settlement.NewEngine(d, nil)
	if _, err := e.RecordSettlement(ctx, settlement.SettlementRequest{
		GroupID: g.ID, PayerID: b.ID, ReceiverID: a.ID, Amount: decimal.NewFromInt(25),
	}); err != nil {
		t.Fatalf("record: %v", err)
	}
	report, err := e.ComputeBalances(ctx, g.ID)
	if err != nil {
		t.Fatalf("balances: %v", err)
	}
	if len(report.History) != 1 || len(report.Debts) != 1 {
		t.Fatalf("report = %+v", report)
	}

	now := time.Now().UTC()
	if err := d.UpsertDigest(ctx, g.ID, "chan", 30, &now); err != nil {
		t.Fatalf("upsert digest: %v", err)
	}
}
