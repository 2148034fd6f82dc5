package api

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/susu3304/chipledger/internal/domain"
	"github.com/susu3304/chipledger/internal/ledger"
	"github.com/susu3304/chipledger/internal/settlement"
)

func (a *API) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Session ledger

type buyInRequest struct {
	// UserID defaults to the caller.
	UserID uuid.UUID          `json:"user_id"`
	Amount decimal.Decimal    `json:"amount"`
	Status domain.BuyInStatus `json:"status"`
}

func (a *API) handleSubmitBuyIn(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "session_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req buyInRequest
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}
	if req.UserID == uuid.Nil {
		req.UserID = actor(r)
	}

	b, err := a.ledger.SubmitBuyIn(r.Context(), ledger.BuyInRequest{
		SessionID: sessionID,
		UserID:    req.UserID,
		ActorID:   actor(r),
		Amount:    req.Amount,
		Status:    req.Status,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, b)
}

func (a *API) handleListBuyIns(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "session_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	rows, err := a.ledger.BuyIns(r.Context(), sessionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

func (a *API) handlePool(w http.ResponseWriter, r *http.Request) {
	sessionID, err := pathUUID(r, "session_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	pool, err := a.ledger.Pool(r.Context(), sessionID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session_id": sessionID,
		"pool":       pool,
	})
}

func (a *API) handleDecide(w http.ResponseWriter, r *http.Request) {
	buyInID, err := pathUUID(r, "buyin_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		Status domain.BuyInStatus `json:"status"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	b, err := a.ledger.Decide(r.Context(), buyInID, actor(r), req.Status)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// Group settlement

func (a *API) handleBalances(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathUUID(r, "group_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	report, err := a.engine.ComputeBalances(r.Context(), groupID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, report)
}

func (a *API) handleRecordSettlement(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathUUID(r, "group_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	var req struct {
		PayerID    uuid.UUID       `json:"payer_id"`
		ReceiverID uuid.UUID       `json:"receiver_id"`
		Amount     decimal.Decimal `json:"amount"`
		Note       string          `json:"note"`
	}
	if err := decodeJSON(r, &req); err != nil {
		a.writeError(w, r, err)
		return
	}

	st, err := a.engine.RecordSettlement(r.Context(), settlement.SettlementRequest{
		GroupID:    groupID,
		PayerID:    req.PayerID,
		ReceiverID: req.ReceiverID,
		Amount:     req.Amount,
		Note:       req.Note,
	})
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, st)
}

func (a *API) handleLeaderboard(w http.ResponseWriter, r *http.Request) {
	groupID, err := pathUUID(r, "group_id")
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	entries, err := a.engine.Leaderboard(r.Context(), groupID)
	if err != nil {
		a.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, entries)
}
