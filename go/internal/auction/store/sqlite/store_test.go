package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/liveauction/go/internal/auction/bidding"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

func defaults() models.RoomDefaults {
	return models.RoomDefaults{
		Name:          models.DefaultRoomName,
		Description:   "main room",
		StartingPrice: decimal.NewFromInt(10),
		MinIncrement:  decimal.NewFromInt(1),
		Stream:        &models.StreamInfo{PlaybackID: "abc"},
	}
}

func openStore(t *testing.T) (*Store, *clockwork.FakeClock) {
	t.Helper()
	clock := clockwork.NewFakeClockAt(t0)
	s, err := Open(context.Background(), ":memory:", clock)
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s, clock
}

func nextEvent(t *testing.T, ch <-chan events.Event) events.Event {
	t.Helper()
	select {
	case ev := <-ch:
		return ev
	case <-time.After(time.Second):
		t.Fatal("expected feed event")
		return events.Event{}
	}
}

func TestStore_GetOrCreateRoom(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	rm, err := s.GetOrCreateRoom(ctx, defaults())
	require.NoError(t, err)
	assert.Equal(t, models.DefaultRoomName, rm.Name)
	assert.Equal(t, models.RoomStatusActive, rm.Status)
	assert.True(t, rm.StartingPrice.Equal(decimal.NewFromInt(10)))
	require.NotNil(t, rm.Stream)
	assert.Equal(t, "abc", rm.Stream.PlaybackID)
	assert.Nil(t, rm.EndsAt)

	// existing rooms keep their settings
	other := defaults()
	other.StartingPrice = decimal.NewFromInt(500)
	rm, err = s.GetOrCreateRoom(ctx, other)
	require.NoError(t, err)
	assert.True(t, rm.StartingPrice.Equal(decimal.NewFromInt(10)))
}

func TestStore_GetRoomNotFound(t *testing.T) {
	s, _ := openStore(t)

	_, err := s.GetRoom(context.Background(), "missing")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestStore_ListRecentBids(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	_, err := s.GetOrCreateRoom(ctx, defaults())
	require.NoError(t, err)

	// inserted out of time order
	for _, off := range []int{3, 1, 4, 2, 0} {
		_, err := s.InsertBid(ctx, models.NewBid{
			Room:       models.DefaultRoomName,
			Bidder:     "alice@example.com",
			Amount:     decimal.NewFromInt(int64(11 + off)),
			InsertedAt: t0.Add(time.Duration(off) * time.Second),
		})
		require.NoError(t, err)
	}

	bids, err := s.ListRecentBids(ctx, models.DefaultRoomName, 3)
	require.NoError(t, err)
	require.Len(t, bids, 3)
	assert.Equal(t, t0.Add(2*time.Second), bids[0].InsertedAt)
	assert.Equal(t, t0.Add(4*time.Second), bids[2].InsertedAt)
	assert.True(t, bids[2].Amount.Equal(decimal.NewFromInt(15)))

	empty, err := s.ListRecentBids(ctx, "other-room", 200)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestStore_InsertBidConstraints(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()

	_, err := s.InsertBid(ctx, models.NewBid{Room: "missing", Bidder: "alice", Amount: decimal.NewFromInt(5), InsertedAt: t0})
	var be *room.BackendError
	require.ErrorAs(t, err, &be)
	assert.Equal(t, room.KindConstraintViolation, be.Kind)

	_, err = s.InsertBid(ctx, models.NewBid{Room: models.DefaultRoomName, Bidder: "alice", Amount: decimal.Zero, InsertedAt: t0})
	require.ErrorAs(t, err, &be)
	assert.Equal(t, room.KindConstraintViolation, be.Kind)
}

func TestStore_UpdateRoomStatusIsIdempotent(t *testing.T) {
	s, clock := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.GetOrCreateRoom(ctx, defaults())
	require.NoError(t, err)
	evs, _, err := s.Feed().Subscribe(ctx, models.DefaultRoomName)
	require.NoError(t, err)

	require.NoError(t, s.UpdateRoomStatus(ctx, models.DefaultRoomName, models.RoomStatusPaused, nil))
	ev := nextEvent(t, evs)
	assert.Equal(t, events.EventTypeRoomStatusChanged, ev.Type)
	assert.Equal(t, models.RoomStatusPaused, ev.StatusChange.Status)

	endsAt := clock.Now().Add(time.Minute)
	require.NoError(t, s.UpdateRoomStatus(ctx, models.DefaultRoomName, models.RoomStatusEnded, &endsAt))
	ev = nextEvent(t, evs)
	assert.Equal(t, models.RoomStatusEnded, ev.StatusChange.Status)
	require.NotNil(t, ev.StatusChange.EndsAt)
	assert.Equal(t, endsAt, *ev.StatusChange.EndsAt)

	// redundant closes and moves out of ended change nothing
	later := endsAt.Add(time.Hour)
	require.NoError(t, s.UpdateRoomStatus(ctx, models.DefaultRoomName, models.RoomStatusEnded, &later))
	require.NoError(t, s.UpdateRoomStatus(ctx, models.DefaultRoomName, models.RoomStatusActive, nil))

	rm, err := s.GetRoom(ctx, models.DefaultRoomName)
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusEnded, rm.Status)
	assert.Equal(t, endsAt, *rm.EndsAt)

	select {
	case ev := <-evs:
		t.Fatalf("unexpected event %s", ev.Type)
	case <-time.After(50 * time.Millisecond):
	}

	assert.ErrorIs(t, s.UpdateRoomStatus(ctx, "missing", models.RoomStatusPaused, nil), room.ErrRoomNotFound)
}

func TestFeed_FiltersByRoomAndClosesOnCancel(t *testing.T) {
	s, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())

	_, err := s.GetOrCreateRoom(ctx, defaults())
	require.NoError(t, err)
	other := defaults()
	other.Name = "other-room"
	_, err = s.GetOrCreateRoom(ctx, other)
	require.NoError(t, err)

	evs, conn, err := s.Feed().Subscribe(ctx, models.DefaultRoomName)
	require.NoError(t, err)
	assert.True(t, <-conn)

	_, err = s.InsertBid(ctx, models.NewBid{Room: "other-room", Bidder: "bob", Amount: decimal.NewFromInt(20), InsertedAt: t0})
	require.NoError(t, err)
	b, err := s.InsertBid(ctx, models.NewBid{Room: models.DefaultRoomName, Bidder: "alice", Amount: decimal.NewFromInt(12), InsertedAt: t0})
	require.NoError(t, err)

	ev := nextEvent(t, evs)
	require.NotNil(t, ev.Bid)
	assert.Equal(t, b.ID, ev.Bid.ID)

	cancel()
	select {
	case _, open := <-evs:
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("feed not closed after cancel")
	}
}

// The full loop: submit through the app, persist, replay through the feed, fold.
func TestStore_RoomAppScenario(t *testing.T) {
	s, clock := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app := room.NewApp(s, s.Feed(), clock, room.Config{Defaults: defaults()})
	done := make(chan error, 1)
	go func() { done <- app.Run(ctx) }()

	require.Eventually(t, func() bool { return app.State().Connected }, time.Second, 5*time.Millisecond)
	assert.True(t, app.State().CurrentAmount.Equal(decimal.NewFromInt(10)))
	assert.Nil(t, app.State().CurrentLeader)

	alice := models.SessionContext{Authenticated: true, ProfileComplete: true, Identity: "alice@example.com"}
	bob := models.SessionContext{Authenticated: true, ProfileComplete: true, Identity: "bob@example.com"}

	_, err := app.SubmitBid(ctx, alice, decimal.NewFromInt(12))
	require.NoError(t, err)
	require.Eventually(t, func() bool {
		return app.State().CurrentAmount.Equal(decimal.NewFromInt(12))
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "alice@example.com", *app.State().CurrentLeader)

	_, err = app.SubmitBid(ctx, bob, decimal.NewFromInt(12))
	assert.ErrorIs(t, err, bidding.ErrBelowMinimum)

	cancel()
	assert.ErrorIs(t, <-done, context.Canceled)
}

func TestStore_Profiles(t *testing.T) {
	s, _ := openStore(t)
	ctx := context.Background()
	id := uuid.New()

	_, err := s.GetProfile(ctx, id)
	assert.ErrorIs(t, err, identity.ErrProfileNotFound)

	require.NoError(t, s.PutProfile(ctx, models.Profile{ID: id, Email: "alice@example.com", FirstName: "Alice"}))
	p, err := s.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleParticipant, p.Role)
	assert.Equal(t, "Alice", p.FirstName)
	assert.Empty(t, p.City)
	assert.False(t, p.IsComplete())

	// resolved through the identity layer
	session, err := identity.NewResolver(s, nil).Resolve(ctx, id.String())
	require.NoError(t, err)
	assert.True(t, session.Authenticated)
	assert.False(t, session.ProfileComplete)
	assert.Equal(t, "alice@example.com", session.Identity)

	require.NoError(t, s.PutProfile(ctx, models.Profile{ID: id, Email: "alice@example.com", Role: models.RoleAdmin}))
	p, err = s.GetProfile(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, models.RoleAdmin, p.Role)
	assert.Empty(t, p.FirstName)
}

func TestFeed_SlowSubscriberGetsReconnect(t *testing.T) {
	s, _ := openStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err := s.GetOrCreateRoom(ctx, defaults())
	require.NoError(t, err)
	evs, conn, err := s.Feed().Subscribe(ctx, models.DefaultRoomName)
	require.NoError(t, err)
	assert.True(t, <-conn)

	for i := 0; i < subscriberBuffer+2; i++ {
		_, err := s.InsertBid(ctx, models.NewBid{
			Room:       models.DefaultRoomName,
			Bidder:     "alice@example.com",
			Amount:     decimal.NewFromInt(int64(11 + i)),
			InsertedAt: t0.Add(time.Duration(i) * time.Millisecond),
		})
		require.NoError(t, err)
	}

	assert.Len(t, evs, subscriberBuffer)
	assert.False(t, <-conn)
	assert.True(t, <-conn)

	// the store still has every bid for the resync
	bids, err := s.ListRecentBids(ctx, models.DefaultRoomName, subscriberBuffer+2)
	require.NoError(t, err)
	assert.Len(t, bids, subscriberBuffer+2)
}
