package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DefaultRoomName is the single room the live page binds to.
const DefaultRoomName = "auction-room"

// RoomStatus defines the lifecycle status of an auction room.
type RoomStatus string

const (
	RoomStatusActive RoomStatus = "active"
	RoomStatusPaused RoomStatus = "paused"
	RoomStatusEnded  RoomStatus = "ended"
)

// Valid reports whether s is one of the known statuses.
func (s RoomStatus) Valid() bool {
	switch s {
	case RoomStatusActive, RoomStatusPaused, RoomStatusEnded:
		return true
	}
	return false
}

// CanTransition reports whether moving from s to next changes anything.
// Same-state moves and anything out of ended are no-ops and return false.
func (s RoomStatus) CanTransition(next RoomStatus) bool {
	if s == next || s == RoomStatusEnded {
		return false
	}
	switch s {
	case RoomStatusActive:
		return next == RoomStatusPaused || next == RoomStatusEnded
	case RoomStatusPaused:
		return next == RoomStatusActive || next == RoomStatusEnded
	}
	return false
}

// StreamInfo holds the video playback details shown next to the room.
type StreamInfo struct {
	StreamID    string `json:"stream_id,omitempty" yaml:"stream_id"`
	PlaybackID  string `json:"playback_id,omitempty" yaml:"playback_id"`
	PlaybackURL string `json:"playback_url,omitempty" yaml:"playback_url"`
}

// AuctionRoom represents a named auction session.
type AuctionRoom struct {
	Name          string          `json:"name"`
	Description   string          `json:"description,omitempty"`
	StartingPrice decimal.Decimal `json:"starting_price"`
	MinIncrement  decimal.Decimal `json:"min_increment"` // <1 means fractional bump, see bidding.MinAllowed
	Status        RoomStatus      `json:"status"`
	EndsAt        *time.Time      `json:"ends_at,omitempty"`
	Stream        *StreamInfo     `json:"stream,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// RoomDefaults are the values used when a room is created lazily.
type RoomDefaults struct {
	Name          string
	Description   string
	StartingPrice decimal.Decimal
	MinIncrement  decimal.Decimal
	Stream        *StreamInfo
}

// CurrentBid is the derived leader state of a room.
type CurrentBid struct {
	Amount decimal.Decimal `json:"amount"`
	Bidder *string         `json:"bidder"`
}
