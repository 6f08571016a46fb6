package state

import (
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// DefaultHistoryLimit bounds both the bootstrap replay and the in-memory history.
const DefaultHistoryLimit = 200

// Snapshot is a copy of the derived room state handed to readers.
type Snapshot struct {
	Room          string             `json:"room"`
	Status        models.RoomStatus  `json:"status"`
	CurrentAmount decimal.Decimal    `json:"current_amount"`
	CurrentLeader *string            `json:"current_leader"`
	StartingPrice decimal.Decimal    `json:"starting_price"`
	MinIncrement  decimal.Decimal    `json:"min_increment"`
	EndsAt        *time.Time         `json:"ends_at,omitempty"`
	LastBidAt     *time.Time         `json:"last_bid_at,omitempty"`
	Connected     bool               `json:"connected"`
	Stream        *models.StreamInfo `json:"stream,omitempty"`
	History       []models.Bid       `json:"history"`
}

// Current returns the leader view of the snapshot.
func (s Snapshot) Current() models.CurrentBid {
	return models.CurrentBid{Amount: s.CurrentAmount, Bidder: s.CurrentLeader}
}

// Reducer folds the room's bid and status events into derived state.
// It is safe for concurrent use, but events must be applied in feed order.
type Reducer struct {
	mu sync.RWMutex

	room         models.AuctionRoom
	current      models.CurrentBid
	history      []models.Bid
	seen         map[uuid.UUID]struct{}
	lastBidAt    *time.Time
	connected    bool
	historyLimit int
}

// NewReducer creates a reducer seeded with the room's static settings and no bids.
func NewReducer(room models.AuctionRoom, historyLimit int) *Reducer {
	if historyLimit <= 0 {
		historyLimit = DefaultHistoryLimit
	}
	r := &Reducer{historyLimit: historyLimit}
	r.reset(room)
	return r
}

func (r *Reducer) reset(room models.AuctionRoom) {
	if room.Status == "" {
		room.Status = models.RoomStatusActive
	}
	r.room = room
	r.current = models.CurrentBid{Amount: room.StartingPrice}
	r.history = make([]models.Bid, 0, r.historyLimit)
	r.seen = make(map[uuid.UUID]struct{})
	r.lastBidAt = nil
}

// Bootstrap replaces the state with the room's stored status and a replay of its
// recent bids. Bids are replayed by InsertedAt ascending; only the most recent
// historyLimit are kept. The connected flag is preserved.
func (r *Reducer) Bootstrap(room models.AuctionRoom, bids []models.Bid) {
	ordered := make([]models.Bid, len(bids))
	copy(ordered, bids)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].InsertedAt.Before(ordered[j].InsertedAt)
	})
	if len(ordered) > r.historyLimit {
		ordered = ordered[len(ordered)-r.historyLimit:]
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.reset(room)
	for _, b := range ordered {
		r.applyBid(b)
	}

	log.Debug().
		Str("room", room.Name).
		Int("bids", len(r.history)).
		Str("status", string(r.room.Status)).
		Str("current_amount", r.current.Amount.String()).
		Msg("reducer bootstrapped")
}

// Apply folds a single feed event. It reports whether the state changed.
func (r *Reducer) Apply(ev events.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	if ev.Room != "" && ev.Room != r.room.Name {
		log.Warn().
			Str("room", r.room.Name).
			Str("event_room", ev.Room).
			Str("event_type", string(ev.Type)).
			Msg("discarding event for another room")
		return false
	}

	switch ev.Type {
	case events.EventTypeBidInserted:
		if ev.Bid == nil {
			log.Warn().Str("room", r.room.Name).Msg("discarding BidInserted without bid")
			return false
		}
		return r.applyBid(*ev.Bid)

	case events.EventTypeRoomStatusChanged:
		if ev.StatusChange == nil {
			log.Warn().Str("room", r.room.Name).Msg("discarding RoomStatusChanged without payload")
			return false
		}
		return r.applyStatus(ev.StatusChange.Status, ev.StatusChange.EndsAt)

	default:
		log.Warn().
			Str("room", r.room.Name).
			Str("event_type", string(ev.Type)).
			Msg("unknown event type - ignoring")
		return false
	}
}

func (r *Reducer) applyBid(b models.Bid) bool {
	if b.ID == uuid.Nil || !b.Amount.IsPositive() || (b.Room != "" && b.Room != r.room.Name) {
		log.Warn().
			Str("room", r.room.Name).
			Str("bid_id", b.ID.String()).
			Str("amount", b.Amount.String()).
			Msg("discarding anomalous bid from feed")
		return false
	}
	if _, dup := r.seen[b.ID]; dup {
		return false
	}
	// seen only covers the retained window; anything not newer than its oldest bid
	// is an evicted bid delivered again
	if len(r.history) == r.historyLimit && !b.InsertedAt.After(r.history[0].InsertedAt) {
		log.Debug().
			Str("room", r.room.Name).
			Str("bid_id", b.ID.String()).
			Msg("discarding redelivered bid older than history window")
		return false
	}
	r.seen[b.ID] = struct{}{}

	r.history = append(r.history, b)
	if len(r.history) > r.historyLimit {
		delete(r.seen, r.history[0].ID)
		r.history = append(r.history[:0:0], r.history[1:]...)
	}

	if b.Amount.GreaterThan(r.current.Amount) {
		bidder := b.Bidder
		r.current = models.CurrentBid{Amount: b.Amount, Bidder: &bidder}
	}

	insertedAt := b.InsertedAt
	r.lastBidAt = &insertedAt
	return true
}

func (r *Reducer) applyStatus(status models.RoomStatus, endsAt *time.Time) bool {
	if !status.Valid() {
		log.Warn().
			Str("room", r.room.Name).
			Str("status", string(status)).
			Msg("discarding unknown room status")
		return false
	}
	prev := r.room.Status
	if prev == status {
		if status == models.RoomStatusEnded && endsAt != nil && r.room.EndsAt == nil {
			r.room.EndsAt = endsAt
			return true
		}
		return false
	}
	if !prev.CanTransition(status) {
		// The feed is authoritative; apply it but flag it.
		log.Warn().
			Str("room", r.room.Name).
			Str("from", string(prev)).
			Str("to", string(status)).
			Msg("feed reported a status transition outside the lifecycle")
	}

	r.room.Status = status
	if status == models.RoomStatusEnded {
		r.room.EndsAt = endsAt
	}
	return true
}

// SetConnected records the feed connection state. State is never cleared on disconnect.
func (r *Reducer) SetConnected(connected bool) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.connected == connected {
		return false
	}
	r.connected = connected
	return true
}

// Status returns the current room status.
func (r *Reducer) Status() models.RoomStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.room.Status
}

// Current returns the leader state.
func (r *Reducer) Current() models.CurrentBid {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current
}

// Room returns the room settings as last seen.
func (r *Reducer) Room() models.AuctionRoom {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.room
}

// Snapshot returns a copy of the full derived state.
func (r *Reducer) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	history := make([]models.Bid, len(r.history))
	copy(history, r.history)

	var leader *string
	if r.current.Bidder != nil {
		bidder := *r.current.Bidder
		leader = &bidder
	}

	return Snapshot{
		Room:          r.room.Name,
		Status:        r.room.Status,
		CurrentAmount: r.current.Amount,
		CurrentLeader: leader,
		StartingPrice: r.room.StartingPrice,
		MinIncrement:  r.room.MinIncrement,
		EndsAt:        r.room.EndsAt,
		LastBidAt:     r.lastBidAt,
		Connected:     r.connected,
		Stream:        r.room.Stream,
		History:       history,
	}
}
