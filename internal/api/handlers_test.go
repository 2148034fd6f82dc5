package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/config"
	"github.com/susu3304/chipledger/internal/db/sqlite"
	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/settlement"
)

const testSecret = "test-secret"

type testEnv struct {
	handler http.Handler
	store   *sqlite.Store
	host    domain.User
	guest   domain.User
	session domain.Session
	group   domain.Group
	token   string
}

func newTestEnv(t *testing.T, strict bool) *testEnv {
	t.Helper()
	ctx := context.Background()
	s, err := sqlite.Open(filepath.Join(t.TempDir(), "api.db"))
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	if err := s.RunMigrations(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	host, _ := s.CreateUser(ctx, "Host", "host")
	guest, _ := s.CreateUser(ctx, "Guest", "guest")
	g, err := s.CreateGroup(ctx, "Home game", "HOME", host.ID)
	if err != nil {
		t.Fatalf("create group: %v", err)
	}
	if err := s.AddGroupMember(ctx, g.ID, guest.ID, domain.GroupRoleMember); err != nil {
		t.Fatalf("add member: %v", err)
	}
	sess, err := s.CreateSession(ctx, "Friday", "FRI", host.ID, uuid.NullUUID{UUID: g.ID, Valid: true})
	if err != nil {
		t.Fatalf("create session: %v", err)
	}

	var policy ledger.StatusPolicy = ledger.TrustRequested{}
	if strict {
		policy = ledger.HostApproval{}
	}
	cfg := &config.Config{JWTSecret: testSecret, MetricsEnabled: true}
	a := New(cfg, ledger.New(s, policy, nil), settlement.NewEngine(s, nil), nil)

	token, err := IssueToken([]byte(testSecret), host.ID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return &testEnv{handler: a.Handler(), store: s, host: host, guest: guest, session: sess, group: g, token: token}
}

func (e *testEnv) do(t *testing.T, method, path, body, token string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	e.handler.ServeHTTP(w, req)
	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v any) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, w.Body.String())
	}
}

func TestHealthIsPublic(t *testing.T) {
	e := newTestEnv(t, false)
	w := e.do(t, "GET", "/api/health", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	e := newTestEnv(t, false)
	w := e.do(t, "GET", "/metrics", "", "")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
}

func TestAuthRequired(t *testing.T) {
	e := newTestEnv(t, false)
	path := "/api/sessions/" + e.session.ID.String() + "/pool"

	tests := []struct {
		name   string
		header string
	}{
		{"missing", ""},
		{"not bearer", "Token abc"},
		{"bad signature", "Bearer " + mustToken(t, []byte("other"), e.host.ID)},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest("GET", path, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			e.handler.ServeHTTP(w, req)
			if w.Code != http.StatusUnauthorized {
				t.Fatalf("status = %d, want 401", w.Code)
			}
		})
	}
}

func mustToken(t *testing.T, secret []byte, userID uuid.UUID) string {
	t.Helper()
	tok, err := IssueToken(secret, userID, time.Hour)
	if err != nil {
		t.Fatalf("issue token: %v", err)
	}
	return tok
}

func TestBuyInFlow(t *testing.T) {
	e := newTestEnv(t, false)
	base := "/api/sessions/" + e.session.ID.String()

	w := e.do(t, "POST", base+"/buyins", `{"amount": "100.00", "status": "approved"}`, e.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("deposit status = %d body %s", w.Code, w.Body.String())
	}
	var created domain.BuyIn
	decodeBody(t, w, &created)
	if created.UserID != e.host.ID || created.Status != domain.BuyInApproved {
		t.Fatalf("created = %+v", created)
	}

	w = e.do(t, "POST", base+"/buyins", `{"amount": -150, "status": "pending"}`, e.token)
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("oversized cashout status = %d body %s", w.Code, w.Body.String())
	}

	w = e.do(t, "POST", base+"/buyins", `{"user_id": "`+e.guest.ID.String()+`", "amount": -10}`, e.token)
	if w.Code != http.StatusPreconditionFailed {
		t.Fatalf("cashout without deposit status = %d body %s", w.Code, w.Body.String())
	}

	w = e.do(t, "POST", base+"/buyins", `{"amount": 0}`, e.token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("zero amount status = %d", w.Code)
	}

	w = e.do(t, "GET", base+"/pool", "", e.token)
	if w.Code != http.StatusOK {
		t.Fatalf("pool status = %d", w.Code)
	}
	var pool struct {
		Pool decimal.Decimal `json:"pool"`
	}
	decodeBody(t, w, &pool)
	if !pool.Pool.Equal(decimal.NewFromInt(100)) {
		t.Fatalf("pool = %s", pool.Pool)
	}

	w = e.do(t, "GET", base+"/buyins", "", e.token)
	var rows []domain.BuyIn
	decodeBody(t, w, &rows)
	if len(rows) != 1 {
		t.Fatalf("rows = %+v", rows)
	}
}

func TestUnknownAndMalformedIDs(t *testing.T) {
	e := newTestEnv(t, false)

	w := e.do(t, "GET", "/api/sessions/"+uuid.NewString()+"/pool", "", e.token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown session status = %d", w.Code)
	}
	w = e.do(t, "GET", "/api/sessions/not-a-uuid/pool", "", e.token)
	if w.Code != http.StatusBadRequest {
		t.Fatalf("malformed id status = %d", w.Code)
	}
	w = e.do(t, "GET", "/api/groups/"+uuid.NewString()+"/balances", "", e.token)
	if w.Code != http.StatusNotFound {
		t.Fatalf("unknown group status = %d", w.Code)
	}
}

func TestStrictApprovalDecision(t *testing.T) {
	e := newTestEnv(t, true)
	guestToken := mustToken(t, []byte(testSecret), e.guest.ID)
	base := "/api/sessions/" + e.session.ID.String()

	w := e.do(t, "POST", base+"/buyins", `{"amount": 40, "status": "approved"}`, guestToken)
	if w.Code != http.StatusCreated {
		t.Fatalf("status = %d body %s", w.Code, w.Body.String())
	}
	var b domain.BuyIn
	decodeBody(t, w, &b)
	if b.Status != domain.BuyInPending {
		t.Fatalf("guest approval should be pending, got %s", b.Status)
	}

	decision := "/api/buyins/" + b.ID.String() + "/decision"
	if w := e.do(t, "POST", decision, `{"status": "approved"}`, guestToken); w.Code != http.StatusPreconditionFailed {
		t.Fatalf("guest decision status = %d", w.Code)
	}
	w = e.do(t, "POST", decision, `{"status": "approved"}`, e.token)
	if w.Code != http.StatusOK {
		t.Fatalf("host decision status = %d body %s", w.Code, w.Body.String())
	}
	decodeBody(t, w, &b)
	if b.Status != domain.BuyInApproved {
		t.Fatalf("status = %s", b.Status)
	}
}

func TestGroupEndpoints(t *testing.T) {
	e := newTestEnv(t, false)
	ctx := context.Background()
	l := ledger.New(e.store, nil, nil)
	for _, u := range []uuid.UUID{e.host.ID, e.guest.ID} {
		if _, err := l.SubmitBuyIn(ctx, ledger.BuyInRequest{
			SessionID: e.session.ID, UserID: u, Amount: decimal.NewFromInt(500), Status: domain.BuyInApproved,
		}); err != nil {
			t.Fatalf("buy-in: %v", err)
		}
	}
	if err := e.store.CloseSession(ctx, e.session.ID, map[uuid.UUID]decimal.Decimal{
		e.host.ID:  decimal.NewFromInt(1000),
		e.guest.ID: decimal.Zero,
	}); err != nil {
		t.Fatalf("close: %v", err)
	}
	base := "/api/groups/" + e.group.ID.String()

	w := e.do(t, "GET", base+"/balances", "", e.token)
	if w.Code != http.StatusOK {
		t.Fatalf("balances status = %d", w.Code)
	}
	var report settlement.Report
	decodeBody(t, w, &report)
	if len(report.Debts) != 1 || report.Debts[0].From != e.guest.ID {
		t.Fatalf("debts = %+v", report.Debts)
	}

	body := `{"payer_id": "` + e.guest.ID.String() + `", "receiver_id": "` + e.host.ID.String() + `", "amount": 500, "note": "venmo"}`
	w = e.do(t, "POST", base+"/settlements", body, e.token)
	if w.Code != http.StatusCreated {
		t.Fatalf("settlement status = %d body %s", w.Code, w.Body.String())
	}

	self := `{"payer_id": "` + e.host.ID.String() + `", "receiver_id": "` + e.host.ID.String() + `", "amount": 5}`
	if w := e.do(t, "POST", base+"/settlements", self, e.token); w.Code != http.StatusBadRequest {
		t.Fatalf("self settlement status = %d", w.Code)
	}

	w = e.do(t, "GET", base+"/balances", "", e.token)
	report = settlement.Report{}
	decodeBody(t, w, &report)
	if len(report.Debts) != 0 || len(report.History) != 1 {
		t.Fatalf("report after settlement = %+v", report)
	}

	w = e.do(t, "GET", base+"/leaderboard", "", e.token)
	var board []settlement.LeaderboardEntry
	decodeBody(t, w, &board)
	if len(board) != 2 || board[0].UserID != e.host.ID {
		t.Fatalf("leaderboard = %+v", board)
	}
}

func TestStatusFor(t *testing.T) {
	tests := map[domain.Kind]int{
		domain.KindNotFound:           http.StatusNotFound,
		domain.KindInvalidArgument:    http.StatusBadRequest,
		domain.KindPreconditionFailed: http.StatusPreconditionFailed,
		domain.KindPoolExceeded:       http.StatusUnprocessableEntity,
		domain.KindConflict:           http.StatusConflict,
		domain.KindStoreUnavailable:   http.StatusServiceUnavailable,
	}
	for kind, want := range tests {
		if got := statusFor(kind); got != want {
			t.Errorf("statusFor(%s) = %d, want %d", kind, got, want)
		}
	}
}
