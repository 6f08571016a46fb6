package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/mcdev12/liveauction/go/internal/sqlutil"
	"github.com/sqlc-dev/pqtype"
)

// Repository implements room.Store on Postgres.
type Repository struct {
	db      *sql.DB
	queries *Queries
}

// NewRepository creates a new Postgres auction repository
func NewRepository(db *sql.DB) *Repository {
	return &Repository{
		db:      db,
		queries: New(db),
	}
}

var _ room.Store = (*Repository)(nil)

// GetOrCreateRoom inserts the room with the given defaults if it does not exist yet and returns it.
func (r *Repository) GetOrCreateRoom(ctx context.Context, defaults models.RoomDefaults) (*models.AuctionRoom, error) {
	stream, err := streamToDB(defaults.Stream)
	if err != nil {
		return nil, room.ConstraintViolation("get or create room", err)
	}

	var row AuctionRoomRow
	err = sqlutil.Run(ctx, r.db, r.queries.WithTx, func(q *Queries) error {
		if err := q.InsertRoomIfMissing(ctx, InsertRoomIfMissingParams{
			Name:          defaults.Name,
			Description:   defaults.Description,
			StartingPrice: defaults.StartingPrice,
			MinIncrement:  defaults.MinIncrement,
			Stream:        stream,
		}); err != nil {
			return err
		}
		var err error
		row, err = q.GetRoom(ctx, defaults.Name)
		return err
	})
	if err != nil {
		return nil, classify("get or create room", err)
	}
	return roomFromDB(row)
}

// GetRoom returns the room or room.ErrRoomNotFound.
func (r *Repository) GetRoom(ctx context.Context, name string) (*models.AuctionRoom, error) {
	row, err := r.queries.GetRoom(ctx, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", room.ErrRoomNotFound, name)
		}
		return nil, classify("get room", err)
	}
	return roomFromDB(row)
}

// ListRecentBids returns the newest limit bids of the room, oldest first.
func (r *Repository) ListRecentBids(ctx context.Context, roomName string, limit int) ([]models.Bid, error) {
	rows, err := r.queries.ListRecentBids(ctx, roomName, int32(limit))
	if err != nil {
		return nil, classify("list recent bids", err)
	}
	bids := make([]models.Bid, 0, len(rows))
	for _, row := range rows {
		bids = append(bids, bidFromDB(row))
	}
	return bids, nil
}

// InsertBid appends a bid. The NOTIFY trigger announces it once committed.
func (r *Repository) InsertBid(ctx context.Context, bid models.NewBid) (*models.Bid, error) {
	var email sql.NullString
	if strings.Contains(bid.Bidder, "@") {
		email = sqlutil.ToNonEmptySqlString(bid.Bidder)
	}

	row, err := r.queries.InsertBid(ctx, InsertBidParams{
		Room:        bid.Room,
		Bidder:      bid.Bidder,
		BidderEmail: email,
		Amount:      bid.Amount,
		InsertedAt:  bid.InsertedAt,
	})
	if err != nil {
		return nil, classify("insert bid", err)
	}
	b := bidFromDB(row)
	return &b, nil
}

// UpdateRoomStatus moves the room to status. Setting the current status, or any
// status on an ended room, is a no-op.
func (r *Repository) UpdateRoomStatus(ctx context.Context, roomName string, status models.RoomStatus, endsAt *time.Time) error {
	if !status.Valid() {
		return room.ConstraintViolation("update room status", fmt.Errorf("unknown status %q", status))
	}

	n, err := r.queries.UpdateRoomStatus(ctx, UpdateRoomStatusParams{
		Name:   roomName,
		Status: string(status),
		EndsAt: sqlutil.ToSqlTime(endsAt),
	})
	if err != nil {
		return classify("update room status", err)
	}
	if n > 0 {
		return nil
	}

	exists, err := r.queries.RoomExists(ctx, roomName)
	if err != nil {
		return classify("update room status", err)
	}
	if !exists {
		return fmt.Errorf("%w: %s", room.ErrRoomNotFound, roomName)
	}
	return nil
}

// classify maps a driver error onto the room backend error kinds. Integrity
// (class 23) and data (class 22) errors are rejected writes; anything else is
// treated as connectivity.
func classify(op string, err error) error {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code.Class() {
		case "23", "22":
			return room.ConstraintViolation(op, err)
		}
	}
	return room.Connectivity(op, err)
}

func roomFromDB(row AuctionRoomRow) (*models.AuctionRoom, error) {
	stream, err := streamFromDB(row.Stream)
	if err != nil {
		return nil, fmt.Errorf("failed to decode stream for room %s: %w", row.Name, err)
	}
	return &models.AuctionRoom{
		Name:          row.Name,
		Description:   row.Description,
		StartingPrice: row.StartingPrice,
		MinIncrement:  row.MinIncrement,
		Status:        models.RoomStatus(row.Status),
		EndsAt:        sqlutil.FromSqlTime(row.EndsAt),
		Stream:        stream,
		CreatedAt:     row.CreatedAt.UTC(),
		UpdatedAt:     row.UpdatedAt.UTC(),
	}, nil
}

func bidFromDB(row BidRow) models.Bid {
	return models.Bid{
		ID:         row.ID,
		Room:       row.Room,
		Bidder:     row.Bidder,
		Amount:     row.Amount,
		InsertedAt: row.InsertedAt.UTC(),
	}
}

func streamToDB(s *models.StreamInfo) (pqtype.NullRawMessage, error) {
	if s == nil {
		return pqtype.NullRawMessage{Valid: false}, nil
	}
	raw, err := json.Marshal(s)
	if err != nil {
		return pqtype.NullRawMessage{}, err
	}
	return pqtype.NullRawMessage{RawMessage: raw, Valid: true}, nil
}

func streamFromDB(raw pqtype.NullRawMessage) (*models.StreamInfo, error) {
	if !raw.Valid || len(raw.RawMessage) == 0 || string(raw.RawMessage) == "null" {
		return nil, nil
	}
	var s models.StreamInfo
	if err := json.Unmarshal(raw.RawMessage, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
