// Package relay forwards Postgres room notifications to JetStream so that
// room apps on other hosts can follow a room without a database listener.
package relay

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/store/postgres"
	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL    string        // Postgres DSN for LISTEN/NOTIFY
	NotifyChannel  string        // Channel name to LISTEN on
	Rooms          []string      // Rooms resynced even before a notification is seen
	ResyncInterval time.Duration // How often to republish recent state
	ResyncLimit    int           // Bids republished per room on resync
	MaxRetries     int
	RetryDelay     time.Duration
	PingInterval   time.Duration
}

func DefaultConfig() Config {
	return Config{
		NotifyChannel:  postgres.EventsChannel,
		Rooms:          []string{models.DefaultRoomName},
		ResyncInterval: 30 * time.Second,
		ResyncLimit:    200,
		MaxRetries:     5,
		RetryDelay:     200 * time.Millisecond,
		PingInterval:   90 * time.Second,
	}
}

// Publisher sends an envelope downstream.
type Publisher interface {
	Publish(ctx context.Context, env events.Envelope) error
}

// RoomReader is the read side of the room store used for resyncs.
type RoomReader interface {
	GetRoom(ctx context.Context, name string) (*models.AuctionRoom, error)
	ListRecentBids(ctx context.Context, room string, limit int) ([]models.Bid, error)
}

type notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

type Relay struct {
	listener  notifier
	reader    RoomReader
	publisher Publisher
	cfg       Config

	mu        sync.Mutex
	rooms     map[string]struct{}
	published uint64
	lastAt    time.Time
}

func New(reader RoomReader, publisher Publisher, cfg Config) (*Relay, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		10*time.Second,
		time.Minute,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
		},
	)
	if err := l.Listen(cfg.NotifyChannel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}

	log.Info().
		Str("channel", cfg.NotifyChannel).
		Msg("listening for notifications")

	return newRelay(l, reader, publisher, cfg), nil
}

func newRelay(l notifier, reader RoomReader, publisher Publisher, cfg Config) *Relay {
	r := &Relay{
		listener:  l,
		reader:    reader,
		publisher: publisher,
		cfg:       cfg,
		rooms:     make(map[string]struct{}),
	}
	for _, name := range cfg.Rooms {
		r.rooms[name] = struct{}{}
	}
	return r
}

func (r *Relay) Start(ctx context.Context) error {
	log.Info().
		Str("channel", r.cfg.NotifyChannel).
		Dur("ping_interval", r.cfg.PingInterval).
		Dur("resync_interval", r.cfg.ResyncInterval).
		Msg("relay started")

	pingTicker := time.NewTicker(r.cfg.PingInterval)
	resyncTicker := time.NewTicker(r.cfg.ResyncInterval)
	defer pingTicker.Stop()
	defer resyncTicker.Stop()

	// anything committed before the listener came up
	r.resync(ctx)

	notes := r.listener.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("relay shutting down")
			return r.Stop()
		case note, ok := <-notes:
			if !ok {
				return fmt.Errorf("listener closed")
			}
			if note == nil {
				// the connection was re-established and notifications may have been lost
				log.Warn().Msg("listener reconnected - resyncing rooms")
				r.resync(ctx)
				continue
			}
			if err := r.handleNotification(ctx, note.Extra); err != nil {
				log.Error().Err(err).Msg("failed to handle notification")
			}
		case <-resyncTicker.C:
			r.resync(ctx)
		case <-pingTicker.C:
			if err := r.listener.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

func (r *Relay) Stop() error {
	return r.listener.Close()
}

// Stats returns how many envelopes were published and when the last one went out.
func (r *Relay) Stats() (uint64, time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published, r.lastAt
}

// handleNotification forwards the trigger payload as is. Extra is the payload on the note.
func (r *Relay) handleNotification(ctx context.Context, extra string) error {
	var env events.Envelope
	if err := json.Unmarshal([]byte(extra), &env); err != nil {
		return fmt.Errorf("invalid notification payload: %w", err)
	}
	if env.EventID == "" || env.Room == "" {
		return fmt.Errorf("notification without event id or room")
	}

	r.mu.Lock()
	r.rooms[env.Room] = struct{}{}
	r.mu.Unlock()

	return r.publishWithRetry(ctx, env)
}

// resync republishes the current status and recent bids of every known room.
// Bid envelopes reuse the bid id, which the trigger also uses, so JetStream
// drops the ones it has already seen.
func (r *Relay) resync(ctx context.Context) {
	for _, name := range r.knownRooms() {
		envs, err := r.snapshot(ctx, name)
		if err != nil {
			log.Error().Err(err).Str("room", name).Msg("failed to load room for resync")
			continue
		}
		for _, env := range envs {
			if err := r.publishWithRetry(ctx, env); err != nil {
				log.Error().Err(err).Str("room", name).Str("event_id", env.EventID).Msg("failed to republish event")
				break
			}
		}
	}
}

func (r *Relay) knownRooms() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, 0, len(r.rooms))
	for name := range r.rooms {
		names = append(names, name)
	}
	return names
}

func (r *Relay) snapshot(ctx context.Context, name string) ([]events.Envelope, error) {
	rm, err := r.reader.GetRoom(ctx, name)
	if err != nil {
		return nil, err
	}
	bids, err := r.reader.ListRecentBids(ctx, name, r.cfg.ResyncLimit)
	if err != nil {
		return nil, err
	}

	envs := make([]events.Envelope, 0, len(bids)+1)
	for _, b := range bids {
		env, err := events.Encode(b.ID.String(), events.BidInserted(b), b.InsertedAt)
		if err != nil {
			return nil, err
		}
		envs = append(envs, env)
	}

	env, err := events.Encode(statusEventID(rm), events.RoomStatusChanged(rm.Name, rm.Status, rm.EndsAt), rm.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return append(envs, env), nil
}

// statusEventID is stable for a given status row version.
func statusEventID(rm *models.AuctionRoom) string {
	return rm.Name + ":" + string(rm.Status) + ":" + strconv.FormatInt(rm.UpdatedAt.UnixNano(), 10)
}

// publishWithRetry attempts to publish an envelope with a given retry delay and max retries.
func (r *Relay) publishWithRetry(ctx context.Context, env events.Envelope) error {
	var lastErr error

	for attempt := 0; attempt <= r.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := r.cfg.RetryDelay * time.Duration(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		if err := r.publisher.Publish(ctx, env); err != nil {
			lastErr = err
			log.Error().
				Err(err).
				Int("attempt", attempt+1).
				Str("event_id", env.EventID).
				Msg("failed to publish, retrying")
			continue
		}

		r.mu.Lock()
		r.published++
		r.lastAt = time.Now()
		r.mu.Unlock()

		if attempt > 0 {
			log.Info().
				Int("attempt", attempt+1).
				Str("event_id", env.EventID).
				Msg("publish succeeded after retry")
		}
		return nil
	}

	return fmt.Errorf("publish failed after %d attempts: %w", r.cfg.MaxRetries+1, lastErr)
}
