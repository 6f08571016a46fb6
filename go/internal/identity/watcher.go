package identity

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/mcdev12/liveauction/go/internal/auction/store/postgres"
	"github.com/rs/zerolog/log"
)

type WatcherConfig struct {
	DatabaseURL  string
	Channel      string
	MinReconnect time.Duration
	MaxReconnect time.Duration
	PingInterval time.Duration
}

func DefaultWatcherConfig() WatcherConfig {
	return WatcherConfig{
		Channel:      postgres.ProfilesChannel,
		MinReconnect: 10 * time.Second,
		MaxReconnect: time.Minute,
		PingInterval: 90 * time.Second,
	}
}

// Invalidator drops cached sessions.
type Invalidator interface {
	Invalidate(ctx context.Context, userID string) error
}

type notifier interface {
	NotificationChannel() <-chan *pq.Notification
	Ping() error
	Close() error
}

// ProfileWatcher invalidates cached sessions whenever a profile row changes.
type ProfileWatcher struct {
	cfg      WatcherConfig
	sessions Invalidator
	listen   func(cfg WatcherConfig) (notifier, error)
}

func NewProfileWatcher(cfg WatcherConfig, sessions Invalidator) *ProfileWatcher {
	def := DefaultWatcherConfig()
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
	return &ProfileWatcher{cfg: cfg, sessions: sessions, listen: newProfileListener}
}

func newProfileListener(cfg WatcherConfig) (notifier, error) {
	l := pq.NewListener(cfg.DatabaseURL, cfg.MinReconnect, cfg.MaxReconnect, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			log.Error().Err(err).Msg("profile listener event")
		}
	})
	if err := l.Listen(cfg.Channel); err != nil {
		l.Close()
		return nil, fmt.Errorf("failed to listen to channel: %w", err)
	}
	return l, nil
}

// Run listens until ctx is done.
func (w *ProfileWatcher) Run(ctx context.Context) error {
	n, err := w.listen(w.cfg)
	if err != nil {
		return err
	}
	defer func() {
		if err := n.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close profile listener")
		}
	}()

	log.Info().Str("channel", w.cfg.Channel).Msg("watching profile changes")

	pingTicker := time.NewTicker(w.cfg.PingInterval)
	defer pingTicker.Stop()

	notes := n.NotificationChannel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case note, ok := <-notes:
			if !ok {
				return errors.New("profile listener closed")
			}
			if note == nil {
				// notifications sent while disconnected are lost; cached sessions expire on their TTL
				log.Warn().Msg("profile listener reconnected - changes may have been missed")
				continue
			}
			if err := w.sessions.Invalidate(ctx, note.Extra); err != nil {
				log.Error().Err(err).Str("user_id", note.Extra).Msg("failed to invalidate session")
				continue
			}
			log.Debug().Str("user_id", note.Extra).Msg("session invalidated after profile change")

		case <-pingTicker.C:
			if err := n.Ping(); err != nil {
				log.Error().Err(err).Msg("failed to ping profile listener")
			}
		}
	}
}
