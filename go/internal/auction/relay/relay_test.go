package relay

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var t0 = time.Date(2025, 3, 14, 18, 0, 0, 0, time.UTC)

const bidNote = `{"eventId":"6f1c8a3e-1d1b-4a53-9a3b-0d7cbe0f3e21","eventType":"BidInserted","room":"side-room",
"timestamp":"2025-03-14T18:00:01+00:00","payload":{"id":"6f1c8a3e-1d1b-4a53-9a3b-0d7cbe0f3e21","room":"side-room",
"bidder":"alice@example.com","amount":"12.00","inserted_at":"2025-03-14T18:00:01+00:00"}}`

type fakeListener struct {
	notes  chan *pq.Notification
	closed chan struct{}
	once   sync.Once
}

func newFakeListener() *fakeListener {
	return &fakeListener{notes: make(chan *pq.Notification, 8), closed: make(chan struct{})}
}

func (f *fakeListener) NotificationChannel() <-chan *pq.Notification { return f.notes }
func (f *fakeListener) Ping() error                                  { return nil }
func (f *fakeListener) Close() error {
	f.once.Do(func() { close(f.closed) })
	return nil
}

type recordingPublisher struct {
	mu       sync.Mutex
	failures int
	sent     []events.Envelope
}

func (p *recordingPublisher) Publish(_ context.Context, env events.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.failures > 0 {
		p.failures--
		return errors.New("nats: timeout")
	}
	p.sent = append(p.sent, env)
	return nil
}

func (p *recordingPublisher) envelopes() []events.Envelope {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]events.Envelope(nil), p.sent...)
}

type stubReader struct {
	rooms map[string]*models.AuctionRoom
	bids  map[string][]models.Bid
}

func (s stubReader) GetRoom(_ context.Context, name string) (*models.AuctionRoom, error) {
	rm, ok := s.rooms[name]
	if !ok {
		return nil, room.ErrRoomNotFound
	}
	return rm, nil
}

func (s stubReader) ListRecentBids(_ context.Context, name string, limit int) ([]models.Bid, error) {
	bids := s.bids[name]
	if len(bids) > limit {
		bids = bids[len(bids)-limit:]
	}
	return bids, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.RetryDelay = time.Millisecond
	cfg.MaxRetries = 2
	cfg.ResyncLimit = 2
	return cfg
}

func mainRoom() stubReader {
	bid := func(n int64, who string) models.Bid {
		return models.Bid{ID: uuid.New(), Room: models.DefaultRoomName, Bidder: who, Amount: decimal.NewFromInt(n), InsertedAt: t0.Add(time.Duration(n) * time.Second)}
	}
	return stubReader{
		rooms: map[string]*models.AuctionRoom{
			models.DefaultRoomName: {Name: models.DefaultRoomName, Status: models.RoomStatusPaused, UpdatedAt: t0.Add(time.Minute)},
		},
		bids: map[string][]models.Bid{
			models.DefaultRoomName: {bid(11, "alice"), bid(12, "bob"), bid(13, "alice")},
		},
	}
}

func TestRelay_HandleNotification(t *testing.T) {
	pub := &recordingPublisher{}
	r := newRelay(newFakeListener(), mainRoom(), pub, testConfig())

	require.NoError(t, r.handleNotification(context.Background(), bidNote))
	sent := pub.envelopes()
	require.Len(t, sent, 1)
	assert.Equal(t, "6f1c8a3e-1d1b-4a53-9a3b-0d7cbe0f3e21", sent[0].EventID)
	assert.Equal(t, events.EventTypeBidInserted, sent[0].EventType)
	assert.ElementsMatch(t, []string{models.DefaultRoomName, "side-room"}, r.knownRooms())

	assert.Error(t, r.handleNotification(context.Background(), "6f1c8a3e"))
	assert.Error(t, r.handleNotification(context.Background(), `{"eventType":"BidInserted"}`))
}

func TestRelay_PublishWithRetry(t *testing.T) {
	ctx := context.Background()
	env := events.Envelope{EventID: "e1", EventType: events.EventTypeBidInserted, Room: models.DefaultRoomName}

	pub := &recordingPublisher{failures: 2}
	r := newRelay(newFakeListener(), mainRoom(), pub, testConfig())
	require.NoError(t, r.publishWithRetry(ctx, env))
	assert.Len(t, pub.envelopes(), 1)
	n, last := r.Stats()
	assert.Equal(t, uint64(1), n)
	assert.False(t, last.IsZero())

	pub = &recordingPublisher{failures: 3}
	r = newRelay(newFakeListener(), mainRoom(), pub, testConfig())
	err := r.publishWithRetry(ctx, env)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "after 3 attempts")
	assert.Empty(t, pub.envelopes())
}

func TestRelay_SnapshotOrder(t *testing.T) {
	reader := mainRoom()
	r := newRelay(newFakeListener(), reader, &recordingPublisher{}, testConfig())

	envs, err := r.snapshot(context.Background(), models.DefaultRoomName)
	require.NoError(t, err)
	require.Len(t, envs, 3)

	bids := reader.bids[models.DefaultRoomName]
	assert.Equal(t, bids[1].ID.String(), envs[0].EventID)
	assert.Equal(t, bids[2].ID.String(), envs[1].EventID)

	status, err := envs[2].Decode()
	require.NoError(t, err)
	assert.Equal(t, models.RoomStatusPaused, status.StatusChange.Status)

	again, err := r.snapshot(context.Background(), models.DefaultRoomName)
	require.NoError(t, err)
	assert.Equal(t, envs[2].EventID, again[2].EventID)

	_, err = r.snapshot(context.Background(), "missing")
	assert.ErrorIs(t, err, room.ErrRoomNotFound)
}

func TestRelay_StartResyncsAndForwards(t *testing.T) {
	fl := newFakeListener()
	pub := &recordingPublisher{}
	r := newRelay(fl, mainRoom(), pub, testConfig())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Start(ctx) }()

	// initial resync: two bids plus status
	require.Eventually(t, func() bool { return len(pub.envelopes()) == 3 }, time.Second, 5*time.Millisecond)

	fl.notes <- &pq.Notification{Channel: "auction_events", Extra: bidNote}
	require.Eventually(t, func() bool { return len(pub.envelopes()) == 4 }, time.Second, 5*time.Millisecond)

	// reconnect replays the main room again; side-room is unknown to the reader and skipped
	fl.notes <- nil
	require.Eventually(t, func() bool { return len(pub.envelopes()) == 7 }, time.Second, 5*time.Millisecond)

	cancel()
	require.NoError(t, <-done)
	select {
	case <-fl.closed:
	default:
		t.Fatal("listener not closed")
	}
}

func TestBuildMsg(t *testing.T) {
	env := events.Envelope{EventID: "e1", EventType: events.EventTypeRoomStatusChanged, Room: "auction.room", Timestamp: t0}
	msg, err := buildMsg(events.DefaultSubjectPrefix, env)
	require.NoError(t, err)
	assert.Equal(t, "auction.events.auction_room", msg.Subject)
	assert.Equal(t, "e1", msg.Header.Get(HeaderEventID))
	assert.Equal(t, "RoomStatusChanged", msg.Header.Get(HeaderEventType))
	assert.Equal(t, "auction.room", msg.Header.Get(HeaderRoom))
	assert.Contains(t, string(msg.Data), `"eventId":"e1"`)

	_, err = buildMsg(events.DefaultSubjectPrefix, events.Envelope{Room: "x"})
	assert.Error(t, err)
}

func TestStreamConfig(t *testing.T) {
	cfg := DefaultJetStreamConfig()
	sc := streamConfig(cfg)
	assert.Equal(t, []string{"auction.events.>"}, sc.Subjects)
	assert.Equal(t, 2*time.Hour, sc.Duplicates)
	assert.True(t, isStreamConfigEqual(sc, streamConfig(cfg)))

	cfg.DuplicateWindow = time.Minute
	assert.False(t, isStreamConfigEqual(sc, streamConfig(cfg)))
}
