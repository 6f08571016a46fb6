package room

//go:generate mockgen -source=repository.go -destination=mock_repository.go -package=room

import (
	"context"
	"time"

	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/models"
)

// Store defines what the room app needs from persistence.
// Implementations report failures as *BackendError.
type Store interface {
	GetOrCreateRoom(ctx context.Context, defaults models.RoomDefaults) (*models.AuctionRoom, error)
	GetRoom(ctx context.Context, name string) (*models.AuctionRoom, error)
	// ListRecentBids returns at most limit of the newest bids, oldest first.
	ListRecentBids(ctx context.Context, room string, limit int) ([]models.Bid, error)
	InsertBid(ctx context.Context, bid models.NewBid) (*models.Bid, error)
	// UpdateRoomStatus must be a no-op when the room is already ended.
	UpdateRoomStatus(ctx context.Context, room string, status models.RoomStatus, endsAt *time.Time) error
}

// Feed delivers a room's events in commit order. The bool channel reports
// connection transitions. Both channels are closed once ctx is done.
type Feed interface {
	Subscribe(ctx context.Context, room string) (<-chan events.Event, <-chan bool, error)
}
