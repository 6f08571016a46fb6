package roomapi

import (
	"github.com/mcdev12/liveauction/go/internal/auction/gate"
	"github.com/mcdev12/liveauction/go/internal/auction/state"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
)

// UserIDHeader carries the authenticated user id set by the upstream auth proxy.
const UserIDHeader = "X-User-Id"

// Error metadata keys set on rejected calls.
const (
	ReasonHeader     = "Auction-Reason"
	ActionHeader     = "Auction-Action"
	MinAllowedHeader = "Auction-Min-Allowed"
)

type GetStateRequest struct{}

type GetStateResponse struct {
	State      state.Snapshot  `json:"state"`
	MinNextBid decimal.Decimal `json:"min_next_bid"`
	// CanBid is the gate decision for the caller, so clients can enable the bid control.
	CanBid bool        `json:"can_bid"`
	Action gate.Action `json:"action"`
	Reason string      `json:"reason,omitempty"`
}

type SubmitBidRequest struct {
	// Amount is a decimal string, e.g. "12.50".
	Amount string `json:"amount"`
}

type SubmitBidResponse struct {
	Bid        models.Bid      `json:"bid"`
	MinNextBid decimal.Decimal `json:"min_next_bid"`
}

type LifecycleRequest struct{}

type LifecycleResponse struct {
	Room   string            `json:"room"`
	Status models.RoomStatus `json:"status"`
}
