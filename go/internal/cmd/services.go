package main

import (
	"context"

	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/liveauction/go/internal/auction/gateway"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/rs/zerolog/log"
)

type Services struct {
	App     *room.App
	Room    *room.Service
	Gateway *gateway.Service

	// Profiles is nil unless sessions are cached and profiles live in Postgres.
	Profiles *identity.ProfileWatcher

	backend *backend
}

func (s *Services) Close() {
	s.backend.Close()
}

func setupServices(ctx context.Context, cfg *Config, clock clockwork.Clock) (*Services, error) {
	// Wire up dependency injection chain
	// Store/feed → room app → connect service and websocket gateway
	b, err := setupBackend(ctx, cfg, clock)
	if err != nil {
		return nil, err
	}

	// Sessions
	var cache identity.SessionCache
	if cfg.Redis.Addr != "" {
		rc, err := identity.NewRedisCache(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, cfg.Redis.SessionTTL)
		if err != nil {
			// sessions still resolve, just without the cache
			log.Warn().Err(err).Str("addr", cfg.Redis.Addr).Msg("session cache unavailable")
		} else {
			cache = rc
			b.closers = append(b.closers, rc.Close)
		}
	}
	resolver := identity.NewResolver(b.profiles, cache)

	var profiles *identity.ProfileWatcher
	if cache != nil && b.dsn != "" {
		watcherCfg := identity.DefaultWatcherConfig()
		watcherCfg.DatabaseURL = b.dsn
		profiles = identity.NewProfileWatcher(watcherCfg, resolver)
	}

	// Room
	app := room.NewApp(b.store, b.feed, clock, room.Config{
		Defaults:     cfg.roomDefaults(),
		HistoryLimit: cfg.Room.HistoryLimit,
		IdleDelay:    cfg.Room.IdleClose,
	})

	return &Services{
		App:      app,
		Room:     room.NewService(app, resolver),
		Gateway:  gateway.NewService(gateway.DefaultConnectionConfig(), app),
		Profiles: profiles,
		backend:  b,
	}, nil
}
