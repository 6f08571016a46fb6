package main

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/mcdev12/liveauction/go/internal/auction/feed/natsfeed"
	"github.com/mcdev12/liveauction/go/internal/auction/feed/pgfeed"
	"github.com/mcdev12/liveauction/go/internal/auction/room"
	"github.com/mcdev12/liveauction/go/internal/auction/store/postgres"
	"github.com/mcdev12/liveauction/go/internal/auction/store/sqlite"
	"github.com/mcdev12/liveauction/go/internal/dbconfig"
	"github.com/mcdev12/liveauction/go/internal/identity"
	"github.com/rs/zerolog/log"
)

// backend bundles the storage side chosen by configuration.
type backend struct {
	store    room.Store
	feed     room.Feed
	profiles identity.ProfileReader
	ping     func(ctx context.Context) error
	closers  []func() error

	// dsn is set for the postgres store
	dsn string
}

func (b *backend) Close() {
	for i := len(b.closers) - 1; i >= 0; i-- {
		if err := b.closers[i](); err != nil {
			log.Error().Err(err).Msg("failed to close backend")
		}
	}
}

func setupDatabase() (*sql.DB, string, error) {
	dbConfig := dbconfig.NewConfigFromEnv("auctiond")
	dsn := dbConfig.DSN()

	database, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, "", fmt.Errorf("failed to create database connection: %w", err)
	}

	if err := database.Ping(); err != nil {
		database.Close()
		return nil, "", fmt.Errorf("failed to ping database: %w", err)
	}

	log.Info().
		Str("host", dbConfig.Host).
		Int("port", dbConfig.Port).
		Str("database", dbConfig.Database).
		Msg("connected to database")
	return database, dsn, nil
}

func setupBackend(ctx context.Context, cfg *Config, clock clockwork.Clock) (*backend, error) {
	if cfg.Store.Driver == DriverSQLite {
		s, err := sqlite.Open(ctx, cfg.Store.SQLiteDSN, clock)
		if err != nil {
			return nil, err
		}
		return &backend{
			store:    s,
			feed:     s.Feed(),
			profiles: s,
			ping:     func(context.Context) error { return nil },
			closers:  []func() error{s.Close},
		}, nil
	}

	database, dsn, err := setupDatabase()
	if err != nil {
		return nil, err
	}
	b := &backend{
		store:    postgres.NewRepository(database),
		profiles: identity.NewRepository(postgres.New(database)),
		ping:     database.PingContext,
		closers:  []func() error{database.Close},
		dsn:      dsn,
	}

	switch cfg.Feed.Driver {
	case DriverNATS:
		natsCfg := natsfeed.DefaultConfig()
		if cfg.Feed.NATSURL != "" {
			natsCfg.URL = cfg.Feed.NATSURL
		}
		feed, err := natsfeed.New(natsCfg)
		if err != nil {
			b.Close()
			return nil, fmt.Errorf("failed to connect room feed: %w", err)
		}
		b.feed = feed
		b.closers = append(b.closers, feed.Close)
	default:
		pgCfg := pgfeed.DefaultConfig()
		pgCfg.DatabaseURL = dsn
		b.feed = pgfeed.New(pgCfg)
	}

	log.Info().
		Str("store", cfg.Store.Driver).
		Str("feed", cfg.Feed.Driver).
		Msg("backend ready")
	return b, nil
}
