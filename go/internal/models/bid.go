package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Bid represents an accepted bid row. Bids are append-only.
type Bid struct {
	ID         uuid.UUID       `json:"id"`
	Room       string          `json:"room"`
	Bidder     string          `json:"bidder"`
	Amount     decimal.Decimal `json:"amount"`
	InsertedAt time.Time       `json:"inserted_at"`
}

// NewBid is the insert shape for a bid; the store assigns the ID.
type NewBid struct {
	Room       string          `json:"room"`
	Bidder     string          `json:"bidder"`
	Amount     decimal.Decimal `json:"amount"`
	InsertedAt time.Time       `json:"inserted_at"`
}
