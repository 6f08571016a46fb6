package room

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/liveauction/go/internal/auction/autoclose"
	"github.com/mcdev12/liveauction/go/internal/auction/bidding"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/gate"
	"github.com/mcdev12/liveauction/go/internal/auction/state"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/rs/zerolog/log"
	"github.com/shopspring/decimal"
)

// Config holds the per-room settings of an App.
type Config struct {
	Defaults     models.RoomDefaults
	HistoryLimit int
	IdleDelay    time.Duration
}

// StateView is the derived room state plus the smallest bid that would be accepted next.
type StateView struct {
	state.Snapshot
	MinNextBid decimal.Decimal `json:"min_next_bid"`
}

// SubmitResult is returned for an accepted bid.
type SubmitResult struct {
	Bid        models.Bid      `json:"bid"`
	MinNextBid decimal.Decimal `json:"min_next_bid"`
}

// Bounds of the backoff between failed subscribe or bootstrap attempts.
const (
	minRetryDelay = time.Second
	maxRetryDelay = 30 * time.Second
)

// App coordinates one auction room: it folds the feed into a reducer, drives the
// idle policy and turns submissions into store calls.
type App struct {
	store   Store
	feed    Feed
	clock   clockwork.Clock
	cfg     Config
	reducer *state.Reducer
	policy  *autoclose.Policy
	expired chan autoclose.Expiry

	// touched only by the Run loop
	connectedOnce bool
	feedUp        bool
	bootstrapped  bool
	retry         <-chan time.Time
	retryDelay    time.Duration

	observersMu  sync.Mutex
	observers    map[uint64]chan StateView
	nextObserver uint64
}

// NewApp creates a room App. The reducer starts from the configured defaults until Run bootstraps it.
func NewApp(store Store, feed Feed, clock clockwork.Clock, cfg Config) *App {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	if cfg.Defaults.Name == "" {
		cfg.Defaults.Name = models.DefaultRoomName
	}
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = state.DefaultHistoryLimit
	}

	a := &App{
		store:     store,
		feed:      feed,
		clock:     clock,
		cfg:       cfg,
		expired:   make(chan autoclose.Expiry, 1),
		observers: make(map[uint64]chan StateView),

		retryDelay: minRetryDelay,
	}
	a.reducer = state.NewReducer(models.AuctionRoom{
		Name:          cfg.Defaults.Name,
		Description:   cfg.Defaults.Description,
		StartingPrice: cfg.Defaults.StartingPrice,
		MinIncrement:  cfg.Defaults.MinIncrement,
		Status:        models.RoomStatusActive,
		Stream:        cfg.Defaults.Stream,
	}, cfg.HistoryLimit)
	a.policy = autoclose.NewPolicy(clock, cfg.IdleDelay, a)
	return a
}

// Name returns the room this App serves.
func (a *App) Name() string {
	return a.cfg.Defaults.Name
}

// Run subscribes to the feed, bootstraps the reducer and applies events until ctx is done.
// Feed events, connection changes and idle expiries are handled one at a time.
// Backend failures are retried with backoff; meanwhile the last known state is served
// with connected=false. Run only returns when ctx is done.
func (a *App) Run(ctx context.Context) error {
	defer a.policy.Stop()

	evs, conn, err := a.subscribe(ctx)
	if err != nil {
		return err
	}
	a.resync(ctx)

	log.Info().Str("room", a.Name()).Msg("room app running")

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case ev, ok := <-evs:
			if !ok {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				log.Warn().Str("room", a.Name()).Msg("room feed closed - resubscribing")
				a.feedUp = false
				a.setConnected(false)
				if evs, conn, err = a.subscribe(ctx); err != nil {
					return err
				}
				continue
			}
			a.handleEvent(ctx, ev)

		case up, ok := <-conn:
			if !ok {
				conn = nil
				continue
			}
			a.handleConnection(ctx, up)

		case <-a.retry:
			a.retry = nil
			a.resync(ctx)

		case exp := <-a.expired:
			a.handleIdle(ctx, exp)
		}
	}
}

// subscribe retries the feed subscription until it succeeds or ctx is done.
func (a *App) subscribe(ctx context.Context) (<-chan events.Event, <-chan bool, error) {
	delay := minRetryDelay
	for {
		evs, conn, err := a.feed.Subscribe(ctx, a.Name())
		if err == nil {
			return evs, conn, nil
		}
		log.Error().
			Err(err).
			Str("room", a.Name()).
			Dur("retry_in", delay).
			Msg("failed to subscribe to room feed")

		select {
		case <-ctx.Done():
			return nil, nil, ctx.Err()
		case <-a.clock.After(delay):
		}
		delay = min(delay*2, maxRetryDelay)
	}
}

// resync bootstraps the reducer from the store. On failure the room reads as
// disconnected and another attempt is scheduled.
func (a *App) resync(ctx context.Context) {
	if err := a.bootstrap(ctx); err != nil {
		log.Error().
			Err(err).
			Str("room", a.Name()).
			Dur("retry_in", a.retryDelay).
			Msg("failed to bootstrap room")
		a.bootstrapped = false
		a.setConnected(false)
		a.retry = a.clock.After(a.retryDelay)
		a.retryDelay = min(a.retryDelay*2, maxRetryDelay)
		return
	}
	a.bootstrapped = true
	a.retry = nil
	a.retryDelay = minRetryDelay
	a.setConnected(a.feedUp)
}

func (a *App) setConnected(up bool) {
	if a.reducer.SetConnected(up) {
		a.publish()
	}
}

func (a *App) bootstrap(ctx context.Context) error {
	rm, err := a.store.GetOrCreateRoom(ctx, a.cfg.Defaults)
	if err != nil {
		return err
	}
	bids, err := a.store.ListRecentBids(ctx, rm.Name, a.cfg.HistoryLimit)
	if err != nil {
		return err
	}
	if rm.Stream == nil {
		rm.Stream = a.cfg.Defaults.Stream
	}

	a.reducer.Bootstrap(*rm, bids)

	// the idle timer only runs once the room has seen a bid
	snap := a.reducer.Snapshot()
	if snap.Status == models.RoomStatusActive && snap.LastBidAt != nil {
		a.policy.Arm(ctx, rm.Name)
	} else {
		a.policy.Disarm(rm.Name)
	}
	a.publish()
	return nil
}

func (a *App) handleEvent(ctx context.Context, ev events.Event) {
	if !a.reducer.Apply(ev) {
		return
	}

	switch ev.Type {
	case events.EventTypeBidInserted:
		if a.reducer.Status() == models.RoomStatusActive {
			a.policy.Reset(ctx, a.Name())
		}
	case events.EventTypeRoomStatusChanged:
		status := a.reducer.Status()
		if status == models.RoomStatusActive {
			a.policy.Arm(ctx, a.Name())
		} else {
			a.policy.Disarm(a.Name())
		}
		log.Info().
			Str("room", a.Name()).
			Str("status", string(status)).
			Msg("room status changed")
	}

	a.publish()
}

func (a *App) handleConnection(ctx context.Context, up bool) {
	wasUp := a.feedUp
	a.feedUp = up

	if !up {
		if wasUp {
			log.Warn().Str("room", a.Name()).Msg("room feed disconnected - keeping last known state")
		}
		a.setConnected(false)
		return
	}
	if wasUp {
		return
	}

	switch {
	case a.connectedOnce:
		// events may have been missed while disconnected
		log.Info().Str("room", a.Name()).Msg("room feed reconnected - resyncing")
		a.resync(ctx)
	case !a.bootstrapped:
		a.resync(ctx)
	default:
		a.setConnected(true)
	}
	a.connectedOnce = true
}

// handleIdle closes the room for an expiry that is still current. An expiry
// superseded by a later bid, pause or close is dropped.
func (a *App) handleIdle(ctx context.Context, exp autoclose.Expiry) {
	if !a.policy.Claim(exp) {
		log.Debug().
			Str("room", exp.Room).
			Uint64("generation", exp.Generation).
			Msg("idle expiry superseded - ignoring")
		return
	}

	snap := a.reducer.Snapshot()
	if snap.Status != models.RoomStatusActive {
		log.Debug().Str("room", exp.Room).Msg("idle expiry after room left active - ignoring")
		return
	}
	if snap.LastBidAt != nil && snap.LastBidAt.After(exp.At.Add(-a.policy.Delay())) {
		log.Debug().
			Str("room", exp.Room).
			Time("last_bid_at", *snap.LastBidAt).
			Msg("bid within idle delay - rearming")
		a.policy.Arm(ctx, exp.Room)
		return
	}

	endsAt := exp.At.UTC()
	if err := a.store.UpdateRoomStatus(ctx, exp.Room, models.RoomStatusEnded, &endsAt); err != nil {
		log.Error().Err(err).Str("room", exp.Room).Msg("failed to close idle room")
		return
	}
	log.Info().Str("room", exp.Room).Time("ends_at", endsAt).Msg("idle room close requested")
}

// CloseIdle hands an idle expiry to the Run loop.
func (a *App) CloseIdle(ctx context.Context, exp autoclose.Expiry) error {
	select {
	case a.expired <- exp:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// SubmitBid runs the session gate and the bid validator against the current state,
// then inserts the bid. The reducer is updated only when the feed replays the insert.
func (a *App) SubmitBid(ctx context.Context, session models.SessionContext, amount decimal.Decimal) (*SubmitResult, error) {
	snap := a.reducer.Snapshot()

	if d := gate.CanBid(session, snap.Status); !d.Permit {
		return nil, d.Reason
	}
	if err := bidding.ValidateBid(amount, snap.CurrentAmount, snap.MinIncrement, snap.Status); err != nil {
		return nil, err
	}

	bid, err := a.store.InsertBid(ctx, models.NewBid{
		Room:       snap.Room,
		Bidder:     session.Identity,
		Amount:     amount,
		InsertedAt: a.clock.Now().UTC(),
	})
	if err != nil {
		log.Error().
			Err(err).
			Str("room", snap.Room).
			Str("bidder", session.Identity).
			Str("amount", amount.String()).
			Msg("failed to insert bid")
		return nil, asBackendError("insert bid", err)
	}

	log.Info().
		Str("room", bid.Room).
		Str("bid_id", bid.ID.String()).
		Str("bidder", bid.Bidder).
		Str("amount", bid.Amount.String()).
		Msg("bid accepted")

	return &SubmitResult{
		Bid:        *bid,
		MinNextBid: bidding.MinAllowed(amount, snap.MinIncrement),
	}, nil
}

// PauseAuction stops bidding until resumed.
func (a *App) PauseAuction(ctx context.Context, session models.SessionContext) error {
	return a.changeStatus(ctx, session, models.RoomStatusPaused)
}

// ResumeAuction reopens a paused auction.
func (a *App) ResumeAuction(ctx context.Context, session models.SessionContext) error {
	return a.changeStatus(ctx, session, models.RoomStatusActive)
}

// CloseAuction ends the auction now. Closing an ended auction is a no-op.
func (a *App) CloseAuction(ctx context.Context, session models.SessionContext) error {
	return a.changeStatus(ctx, session, models.RoomStatusEnded)
}

func (a *App) changeStatus(ctx context.Context, session models.SessionContext, target models.RoomStatus) error {
	if d := gate.CanAdminister(session); !d.Permit {
		return d.Reason
	}

	current := a.reducer.Status()
	if current == target {
		return nil
	}
	if !current.CanTransition(target) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, current, target)
	}

	var endsAt *time.Time
	if target == models.RoomStatusEnded {
		now := a.clock.Now().UTC()
		endsAt = &now
	}

	// an expiry already queued can no longer be claimed once disarmed
	if target != models.RoomStatusActive {
		a.policy.Disarm(a.Name())
	}

	if err := a.store.UpdateRoomStatus(ctx, a.Name(), target, endsAt); err != nil {
		if target != models.RoomStatusActive && current == models.RoomStatusActive && a.reducer.Snapshot().LastBidAt != nil {
			a.policy.Arm(context.WithoutCancel(ctx), a.Name())
		}
		log.Error().
			Err(err).
			Str("room", a.Name()).
			Str("from", string(current)).
			Str("to", string(target)).
			Msg("failed to update room status")
		return asBackendError("update room status", err)
	}

	log.Info().
		Str("room", a.Name()).
		Str("from", string(current)).
		Str("to", string(target)).
		Str("by", session.Identity).
		Msg("room status change requested")
	return nil
}

// State returns the current derived state.
func (a *App) State() StateView {
	snap := a.reducer.Snapshot()
	return StateView{
		Snapshot:   snap,
		MinNextBid: bidding.MinAllowed(snap.CurrentAmount, snap.MinIncrement),
	}
}

// Subscribe returns a channel that receives the latest state after every change.
// Slow observers only ever see the most recent state. Call the returned func to stop.
func (a *App) Subscribe() (<-chan StateView, func()) {
	ch := make(chan StateView, 1)
	ch <- a.State()

	a.observersMu.Lock()
	id := a.nextObserver
	a.nextObserver++
	a.observers[id] = ch
	a.observersMu.Unlock()

	return ch, func() {
		a.observersMu.Lock()
		defer a.observersMu.Unlock()
		if _, ok := a.observers[id]; ok {
			delete(a.observers, id)
			close(ch)
		}
	}
}

func (a *App) publish() {
	view := a.State()

	a.observersMu.Lock()
	defer a.observersMu.Unlock()

	for _, ch := range a.observers {
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- view:
		default:
		}
	}
}
