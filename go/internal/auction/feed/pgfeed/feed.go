// Package pgfeed delivers room events from Postgres LISTEN/NOTIFY.
package pgfeed

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/liveauction/go/internal/auction/events"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/auction/store/postgres"
	"github.com/rs/zerolog/log"
)

type Config struct {
	DatabaseURL  string        // Postgres DSN for LISTEN/NOTIFY
	Channel      string        // Channel name to LISTEN on
	MinReconnect time.Duration // pq.Listener backoff bounds
	MaxReconnect time.Duration
	PingInterval time.Duration
	Buffer       int // Events buffered per subscription
}

func DefaultConfig() Config {
	return Config{
		Channel:      postgres.EventsChannel,
		MinReconnect: 10 * time.Second,
		MaxReconnect: time.Minute,
		PingInterval: 90 * time.Second,
		Buffer:       256,
	}
}

// notifier is the part of *pq.Listener the pump needs.
type notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// Feed implements room.Feed with one pq.Listener per subscription.
type Feed struct {
	cfg    Config
	listen func(cfg Config, onState func(bool)) (notifier, error)
}

var _ room.Feed = (*Feed)(nil)

func New(cfg Config) *Feed {
	def := DefaultConfig()
	if cfg.Channel == "" {
		cfg.Channel = def.Channel
	}
	if cfg.MinReconnect <= 0 {
		cfg.MinReconnect = def.MinReconnect
	}
	if cfg.MaxReconnect <= 0 {
		cfg.MaxReconnect = def.MaxReconnect
	}
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = def.PingInterval
	}
	if cfg.Buffer <= 0 {
		cfg.Buffer = def.Buffer
	}
	return &Feed{cfg: cfg, listen: newListener}
}

func newListener(cfg Config, onState func(bool)) (notifier, error) {
	l := pq.NewListener(
		cfg.DatabaseURL,
		cfg.MinReconnect,
		cfg.MaxReconnect,
		func(ev pq.ListenerEventType, err error) {
			if err != nil {
				log.Error().Err(err).Msg("listener event")
			}
			if up, ok := connectionState(ev); ok {
				onState(up)
			}
		},
	)
	if err := l.Listen(cfg.Channel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}
	return l, nil
}

// Subscribe listens on the configured channel and forwards the events of roomName.
// Both channels are closed once ctx is done.
func (f *Feed) Subscribe(ctx context.Context, roomName string) (<-chan events.Event, <-chan bool, error) {
	evs := make(chan events.Event, f.cfg.Buffer)
	conn := make(chan bool, 4)
	states := newStateBox()

	n, err := f.listen(f.cfg, states.set)
	if err != nil {
		return nil, nil, err
	}

	log.Info().
		Str("channel", f.cfg.Channel).
		Str("room", roomName).
		Msg("listening for notifications")

	go f.pump(ctx, n, roomName, states, evs, conn)
	return evs, conn, nil
}

func (f *Feed) pump(ctx context.Context, n notifier, roomName string, states *stateBox, evs chan<- events.Event, conn chan<- bool) {
	defer close(evs)
	defer close(conn)
	defer func() {
		if err := n.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close listener")
		}
	}()

	pingTicker := time.NewTicker(f.cfg.PingInterval)
	defer pingTicker.Stop()

	notes := n.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Str("room", roomName).Msg("listener shutting down")
			return

		case up := <-states.ch:
			select {
			case conn <- up:
			case <-ctx.Done():
				return
			}

		case note, ok := <-notes:
			if !ok {
				log.Warn().Str("room", roomName).Msg("listener notification channel closed")
				return
			}
			if note == nil {
				// sent after a reconnect; the state callback already reported it
				continue
			}
			ev, match, err := decodeNotification(note.Extra, roomName)
			if err != nil {
				log.Error().Err(err).Str("channel", note.Channel).Msg("failed to handle notification")
				continue
			}
			if !match {
				continue
			}
			select {
			case evs <- ev:
			case <-ctx.Done():
				return
			}

		case <-pingTicker.C:
			if err := n.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping listener")
			}
		}
	}
}

// decodeNotification parses a trigger payload. match is false for other rooms.
func decodeNotification(extra, roomName string) (events.Event, bool, error) {
	var env events.Envelope
	if err := json.Unmarshal([]byte(extra), &env); err != nil {
		return events.Event{}, false, fmt.Errorf("invalid notification payload: %w", err)
	}
	if env.Room != roomName {
		return events.Event{}, false, nil
	}
	ev, err := env.Decode()
	if err != nil {
		return events.Event{}, false, err
	}
	return ev, true, nil
}

func connectionState(ev pq.ListenerEventType) (up bool, ok bool) {
	switch ev {
	case pq.ListenerEventConnected, pq.ListenerEventReconnected:
		return true, true
	case pq.ListenerEventDisconnected, pq.ListenerEventConnectionAttemptFailed:
		return false, true
	}
	return false, false
}

// stateBox hands connection changes from the pq callback goroutine to the pump
// without blocking the callback. When full the oldest change is dropped.
type stateBox struct {
	mu sync.Mutex
	ch chan bool
}

func newStateBox() *stateBox {
	return &stateBox{ch: make(chan bool, 16)}
}

func (s *stateBox) set(up bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for {
		select {
		case s.ch <- up:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}
