package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/mcdev12/liveauction/go/internal/sqlutil"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
	sqlite "modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// Store implements room.Store on SQLite and announces committed writes on its Feed.
// It is meant for local runs and tests.
type Store struct {
	db    *sql.DB
	clock clockwork.Clock
	feed  *Feed
}

var _ room.Store = (*Store)(nil)
var _ room.Feed = (*Feed)(nil)

// Open opens the database at dsn (":memory:" for an in-memory database) and applies the schema.
func Open(ctx context.Context, dsn string, clock clockwork.Clock) (*Store, error) {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite database: %w", err)
	}
	// a single connection serialises writers and keeps :memory: databases alive
	db.SetMaxOpenConns(1)

	for _, stmt := range []string{"PRAGMA foreign_keys = ON", "PRAGMA busy_timeout = 5000", schema} {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to initialise sqlite schema: %w", err)
		}
	}

	log.Info().Str("dsn", dsn).Msg("sqlite store opened")

	return &Store{db: db, clock: clock, feed: newFeed()}, nil
}

// Feed returns the in-process feed of committed writes.
func (s *Store) Feed() *Feed {
	return s.feed
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) GetOrCreateRoom(ctx context.Context, defaults models.RoomDefaults) (*models.AuctionRoom, error) {
	var stream sql.NullString
	if defaults.Stream != nil {
		raw, err := json.Marshal(defaults.Stream)
		if err != nil {
			return nil, room.ConstraintViolation("get or create room", err)
		}
		stream = sql.NullString{String: string(raw), Valid: true}
	}

	now := sqlutil.ToUnixNano(s.clock.Now())
	var rm *models.AuctionRoom
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) *sql.Tx { return tx }, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, `
			INSERT INTO auction_rooms (name, description, starting_price, min_increment, status, stream, created_at, updated_at)
			VALUES (?, ?, ?, ?, 'active', ?, ?, ?)
			ON CONFLICT (name) DO NOTHING`,
			defaults.Name,
			defaults.Description,
			defaults.StartingPrice.String(),
			defaults.MinIncrement.String(),
			stream,
			now,
			now,
		); err != nil {
			return err
		}
		var err error
		rm, err = getRoom(ctx, tx, defaults.Name)
		return err
	})
	if err != nil {
		return nil, classify("get or create room", err)
	}
	return rm, nil
}

func (s *Store) GetRoom(ctx context.Context, name string) (*models.AuctionRoom, error) {
	rm, err := getRoom(ctx, s.db, name)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", room.ErrRoomNotFound, name)
		}
		return nil, classify("get room", err)
	}
	return rm, nil
}

func (s *Store) ListRecentBids(ctx context.Context, roomName string, limit int) ([]models.Bid, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, room, bidder, amount, inserted_at FROM (
			SELECT id, room, bidder, amount, inserted_at, rowid AS seq
			FROM bids
			WHERE room = ?
			ORDER BY inserted_at DESC, seq DESC
			LIMIT ?
		) ORDER BY inserted_at ASC, seq ASC`,
		roomName, limit,
	)
	if err != nil {
		return nil, classify("list recent bids", err)
	}
	defer rows.Close()

	bids := make([]models.Bid, 0)
	for rows.Next() {
		b, err := scanBid(rows)
		if err != nil {
			return nil, classify("list recent bids", err)
		}
		bids = append(bids, b)
	}
	if err := rows.Err(); err != nil {
		return nil, classify("list recent bids", err)
	}
	return bids, nil
}

func (s *Store) InsertBid(ctx context.Context, nb models.NewBid) (*models.Bid, error) {
	if !nb.Amount.IsPositive() {
		return nil, room.ConstraintViolation("insert bid", fmt.Errorf("amount must be positive, got %s", nb.Amount))
	}

	b := models.Bid{
		ID:         uuid.New(),
		Room:       nb.Room,
		Bidder:     nb.Bidder,
		Amount:     nb.Amount,
		InsertedAt: nb.InsertedAt.UTC(),
	}
	var email sql.NullString
	if strings.Contains(nb.Bidder, "@") {
		email = sqlutil.ToNonEmptySqlString(nb.Bidder)
	}

	if _, err := s.db.ExecContext(ctx, `
		INSERT INTO bids (id, room, bidder, bidder_email, amount, inserted_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		b.ID.String(),
		b.Room,
		b.Bidder,
		email,
		b.Amount.String(),
		sqlutil.ToUnixNano(b.InsertedAt),
	); err != nil {
		return nil, classify("insert bid", err)
	}

	// nanosecond precision round-trips exactly, so the event matches what a reload returns
	s.feed.publish(events.BidInserted(b))
	return &b, nil
}

func (s *Store) UpdateRoomStatus(ctx context.Context, roomName string, status models.RoomStatus, endsAt *time.Time) error {
	if !status.Valid() {
		return room.ConstraintViolation("update room status", fmt.Errorf("unknown status %q", status))
	}

	now := s.clock.Now().UTC()
	var ends sql.NullInt64
	if status == models.RoomStatusEnded {
		if endsAt == nil {
			endsAt = &now
		}
		ends = sqlutil.ToNullUnixNano(endsAt)
	}

	var (
		changed bool
		rm      *models.AuctionRoom
	)
	err := sqlutil.Run(ctx, s.db, func(tx *sql.Tx) *sql.Tx { return tx }, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE auction_rooms
			SET status = ?,
			    ends_at = CASE WHEN ? = 'ended' THEN ? ELSE ends_at END,
			    updated_at = ?
			WHERE name = ? AND status <> 'ended' AND status <> ?`,
			string(status),
			string(status), ends,
			sqlutil.ToUnixNano(now),
			roomName, string(status),
		)
		if err != nil {
			return err
		}
		n, err := res.RowsAffected()
		if err != nil {
			return err
		}
		changed = n > 0
		rm, err = getRoom(ctx, tx, roomName)
		return err
	})
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return fmt.Errorf("%w: %s", room.ErrRoomNotFound, roomName)
		}
		return classify("update room status", err)
	}

	if changed {
		s.feed.publish(events.RoomStatusChanged(rm.Name, rm.Status, rm.EndsAt))
	}
	return nil
}

type queryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

func getRoom(ctx context.Context, q queryer, name string) (*models.AuctionRoom, error) {
	var (
		rm            models.AuctionRoom
		startingPrice string
		minIncrement  string
		status        string
		endsAt        sql.NullInt64
		stream        sql.NullString
		createdAt     int64
		updatedAt     int64
	)
	err := q.QueryRowContext(ctx, `
		SELECT name, description, starting_price, min_increment, status, ends_at, stream, created_at, updated_at
		FROM auction_rooms WHERE name = ?`, name,
	).Scan(&rm.Name, &rm.Description, &startingPrice, &minIncrement, &status, &endsAt, &stream, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}

	if rm.StartingPrice, err = decimal.NewFromString(startingPrice); err != nil {
		return nil, fmt.Errorf("starting_price: %w", err)
	}
	if rm.MinIncrement, err = decimal.NewFromString(minIncrement); err != nil {
		return nil, fmt.Errorf("min_increment: %w", err)
	}
	rm.Status = models.RoomStatus(status)
	rm.EndsAt = sqlutil.FromNullUnixNano(endsAt)
	rm.CreatedAt = sqlutil.FromUnixNano(createdAt)
	rm.UpdatedAt = sqlutil.FromUnixNano(updatedAt)
	if stream.Valid && stream.String != "" {
		var si models.StreamInfo
		if err := json.Unmarshal([]byte(stream.String), &si); err != nil {
			return nil, fmt.Errorf("stream: %w", err)
		}
		rm.Stream = &si
	}
	return &rm, nil
}

func scanBid(rows *sql.Rows) (models.Bid, error) {
	var (
		b          models.Bid
		id         string
		amount     string
		insertedAt int64
	)
	if err := rows.Scan(&id, &b.Room, &b.Bidder, &amount, &insertedAt); err != nil {
		return models.Bid{}, err
	}
	var err error
	if b.ID, err = uuid.Parse(id); err != nil {
		return models.Bid{}, fmt.Errorf("bid id: %w", err)
	}
	if b.Amount, err = decimal.NewFromString(amount); err != nil {
		return models.Bid{}, fmt.Errorf("bid amount: %w", err)
	}
	b.InsertedAt = sqlutil.FromUnixNano(insertedAt)
	return b, nil
}

// classify maps SQLite constraint failures to rejected writes and everything else to connectivity.
func classify(op string, err error) error {
	var se *sqlite.Error
	if errors.As(err, &se) && se.Code()&0xff == sqlite3.SQLITE_CONSTRAINT {
		return room.ConstraintViolation(op, err)
	}
	return room.Connectivity(op, err)
}
