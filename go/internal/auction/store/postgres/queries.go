package postgres

import (
	"context"
	"database/sql"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sqlc-dev/pqtype"
)

// DBTX is satisfied by *sql.DB and *sql.Tx.
type DBTX interface {
	ExecContext(context.Context, string, ...interface{}) (sql.Result, error)
	QueryContext(context.Context, string, ...interface{}) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}

// Queries holds the hand-written statements of the auction schema.
type Queries struct {
	db DBTX
}

func New(db DBTX) *Queries {
	return &Queries{db: db}
}

func (q *Queries) WithTx(tx *sql.Tx) *Queries {
	return &Queries{db: tx}
}

type AuctionRoomRow struct {
	Name          string
	Description   string
	StartingPrice decimal.Decimal
	MinIncrement  decimal.Decimal
	Status        string
	EndsAt        sql.NullTime
	Stream        pqtype.NullRawMessage
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

type BidRow struct {
	ID         uuid.UUID
	Room       string
	Bidder     string
	Amount     decimal.Decimal
	InsertedAt time.Time
}

const getRoom = `-- name: GetRoom :one
SELECT name, description, starting_price, min_increment, status, ends_at, stream, created_at, updated_at
FROM auction_rooms
WHERE name = $1
`

func (q *Queries) GetRoom(ctx context.Context, name string) (AuctionRoomRow, error) {
	row := q.db.QueryRowContext(ctx, getRoom, name)
	var i AuctionRoomRow
	err := row.Scan(
		&i.Name,
		&i.Description,
		&i.StartingPrice,
		&i.MinIncrement,
		&i.Status,
		&i.EndsAt,
		&i.Stream,
		&i.CreatedAt,
		&i.UpdatedAt,
	)
	return i, err
}

const insertRoomIfMissing = `-- name: InsertRoomIfMissing :exec
INSERT INTO auction_rooms (name, description, starting_price, min_increment, status, stream)
VALUES ($1, $2, $3, $4, 'active', $5)
ON CONFLICT (name) DO NOTHING
`

type InsertRoomIfMissingParams struct {
	Name          string
	Description   string
	StartingPrice decimal.Decimal
	MinIncrement  decimal.Decimal
	Stream        pqtype.NullRawMessage
}

func (q *Queries) InsertRoomIfMissing(ctx context.Context, arg InsertRoomIfMissingParams) error {
	_, err := q.db.ExecContext(ctx, insertRoomIfMissing,
		arg.Name,
		arg.Description,
		arg.StartingPrice,
		arg.MinIncrement,
		arg.Stream,
	)
	return err
}

const insertBid = `-- name: InsertBid :one
INSERT INTO bids (room, bidder, bidder_email, amount, inserted_at)
VALUES ($1, $2, $3, $4, $5)
RETURNING id, room, bidder, amount, inserted_at
`

type InsertBidParams struct {
	Room        string
	Bidder      string
	BidderEmail sql.NullString
	Amount      decimal.Decimal
	InsertedAt  time.Time
}

func (q *Queries) InsertBid(ctx context.Context, arg InsertBidParams) (BidRow, error) {
	row := q.db.QueryRowContext(ctx, insertBid,
		arg.Room,
		arg.Bidder,
		arg.BidderEmail,
		arg.Amount,
		arg.InsertedAt,
	)
	var i BidRow
	err := row.Scan(
		&i.ID,
		&i.Room,
		&i.Bidder,
		&i.Amount,
		&i.InsertedAt,
	)
	return i, err
}

// The newest rows are selected, then returned oldest first.
const listRecentBids = `-- name: ListRecentBids :many
SELECT id, room, bidder, amount, inserted_at
FROM (
    SELECT id, room, bidder, amount, inserted_at
    FROM bids
    WHERE room = $1
    ORDER BY inserted_at DESC, id DESC
    LIMIT $2
) recent
ORDER BY inserted_at ASC, id ASC
`

func (q *Queries) ListRecentBids(ctx context.Context, room string, limit int32) ([]BidRow, error) {
	rows, err := q.db.QueryContext(ctx, listRecentBids, room, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []BidRow
	for rows.Next() {
		var i BidRow
		if err := rows.Scan(
			&i.ID,
			&i.Room,
			&i.Bidder,
			&i.Amount,
			&i.InsertedAt,
		); err != nil {
			return nil, err
		}
		items = append(items, i)
	}
	if err := rows.Close(); err != nil {
		return nil, err
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return items, nil
}

// Ended rooms and same-status updates are left untouched.
const updateRoomStatus = `-- name: UpdateRoomStatus :execrows
UPDATE auction_rooms
SET status     = $2,
    ends_at    = CASE WHEN $2 = 'ended' THEN COALESCE($3, now()) ELSE ends_at END,
    updated_at = now()
WHERE name = $1
  AND status <> 'ended'
  AND status <> $2
`

type UpdateRoomStatusParams struct {
	Name   string
	Status string
	EndsAt sql.NullTime
}

func (q *Queries) UpdateRoomStatus(ctx context.Context, arg UpdateRoomStatusParams) (int64, error) {
	result, err := q.db.ExecContext(ctx, updateRoomStatus, arg.Name, arg.Status, arg.EndsAt)
	if err != nil {
		return 0, err
	}
	return result.RowsAffected()
}

const roomExists = `-- name: RoomExists :one
SELECT EXISTS (SELECT 1 FROM auction_rooms WHERE name = $1)
`

func (q *Queries) RoomExists(ctx context.Context, name string) (bool, error) {
	row := q.db.QueryRowContext(ctx, roomExists, name)
	var exists bool
	err := row.Scan(&exists)
	return exists, err
}

type ProfileRow struct {
	ID          uuid.UUID
	Email       string
	Role        string
	FirstName   sql.NullString
	LastName    sql.NullString
	Address     sql.NullString
	PostalCode  sql.NullString
	City        sql.NullString
	Country     sql.NullString
	PhoneNumber sql.NullString
}

const getProfile = `-- name: GetProfile :one
SELECT id, email, role, first_name, last_name, address, postal_code, city, country, phone_number
FROM profiles
WHERE id = $1
`

func (q *Queries) GetProfile(ctx context.Context, id uuid.UUID) (ProfileRow, error) {
	row := q.db.QueryRowContext(ctx, getProfile, id)
	var i ProfileRow
	err := row.Scan(
		&i.ID,
		&i.Email,
		&i.Role,
		&i.FirstName,
		&i.LastName,
		&i.Address,
		&i.PostalCode,
		&i.City,
		&i.Country,
		&i.PhoneNumber,
	)
	return i, err
}
