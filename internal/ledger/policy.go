package ledger

import (
	"github.com/google/uuid"

	"github.com/susu3304/chipledger/internal/domain"
)

// StatusPolicy decides which status a new buy-in is stored with and who may
// approve or reject pending rows. The ledger invariants hold whatever the
// policy answers.
type StatusPolicy interface {
	Resolve(session domain.Session, req BuyInRequest) domain.BuyInStatus
	MayDecide(session domain.Session, actorID uuid.UUID) bool
}

// TrustRequested stores whatever status the caller asked for and lets any
// caller decide. Callers are expected to have authorised the request.
type TrustRequested struct{}

func (TrustRequested) Resolve(_ domain.Session, req BuyInRequest) domain.BuyInStatus {
	return req.Status
}

func (TrustRequested) MayDecide(domain.Session, uuid.UUID) bool { return true }

// HostApproval only lets the session host approve. Anyone else asking for
// approved gets pending.
type HostApproval struct{}

func (HostApproval) Resolve(session domain.Session, req BuyInRequest) domain.BuyInStatus {
	if req.Status == domain.BuyInApproved && req.ActorID != session.CreatedBy {
		return domain.BuyInPending
	}
	return req.Status
}

func (HostApproval) MayDecide(session domain.Session, actorID uuid.UUID) bool {
	return actorID == session.CreatedBy
}
