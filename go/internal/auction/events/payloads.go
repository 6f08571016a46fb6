package events

import (
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
)

// Event payload types shared by the feeds, the relay and the room app.

// BidInsertedPayload is the payload for a BidInserted event
type BidInsertedPayload struct {
	ID         uuid.UUID       `json:"id"`
	Room       string          `json:"room"`
	Bidder     string          `json:"bidder"`
	Amount     decimal.Decimal `json:"amount"`
	InsertedAt time.Time       `json:"inserted_at"`
}

// RoomStatusChangedPayload is the payload for a RoomStatusChanged event
type RoomStatusChangedPayload struct {
	Room   string            `json:"name"`
	Status models.RoomStatus `json:"status"`
	EndsAt *time.Time        `json:"ends_at,omitempty"`
}

// Bid converts the payload into the model.
func (p BidInsertedPayload) Bid() models.Bid {
	return models.Bid{
		ID:         p.ID,
		Room:       p.Room,
		Bidder:     p.Bidder,
		Amount:     p.Amount,
		InsertedAt: p.InsertedAt,
	}
}

// FromBid builds the payload for b.
func FromBid(b models.Bid) BidInsertedPayload {
	return BidInsertedPayload{
		ID:         b.ID,
		Room:       b.Room,
		Bidder:     b.Bidder,
		Amount:     b.Amount,
		InsertedAt: b.InsertedAt,
	}
}
