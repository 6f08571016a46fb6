package main

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"PORT", "LOG_LEVEL", "STORE_DRIVER", "SQLITE_DSN", "FEED_DRIVER",
		"NATS_URL", "REDIS_ADDR", "REDIS_PASSWORD", "REDIS_DB", "IDLE_CLOSE",
	} {
		t.Setenv(key, "")
	}
}

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "auction.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoadConfig_MissingFileUsesDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := loadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	require.NoError(t, err)
	assert.Equal(t, "auction-room", cfg.Room.Name)
	assert.True(t, cfg.Room.StartingPrice.Equal(decimal.NewFromInt(10)))
	assert.True(t, cfg.Room.MinIncrement.Equal(decimal.NewFromInt(1)))
	assert.Equal(t, 30*time.Second, cfg.Room.IdleClose)
	assert.Equal(t, 200, cfg.Room.HistoryLimit)
	assert.Equal(t, DriverPostgres, cfg.Store.Driver)
	assert.Equal(t, "8080", cfg.Port)
}

func TestLoadConfig_File(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
room:
  name: spring-sale
  description: Lot 12
  starting_price: 250
  min_increment: "0.5"
  idle_close: 45s
  stream:
    playback_id: abc123
store:
  driver: sqlite
  sqlite_dsn: ":memory:"
`)

	cfg, err := loadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, "spring-sale", cfg.Room.Name)
	assert.True(t, cfg.Room.StartingPrice.Equal(decimal.NewFromInt(250)))
	assert.True(t, cfg.Room.MinIncrement.Equal(decimal.RequireFromString("0.5")))
	assert.Equal(t, 45*time.Second, cfg.Room.IdleClose)
	assert.Equal(t, 200, cfg.Room.HistoryLimit, "unset fields keep their default")
	require.NotNil(t, cfg.Room.Stream)
	assert.Equal(t, "abc123", cfg.Room.Stream.PlaybackID)
	assert.Equal(t, DriverSQLite, cfg.Store.Driver)

	d := cfg.roomDefaults()
	assert.Equal(t, "Lot 12", d.Description)
	assert.Equal(t, cfg.Room.Stream, d.Stream)
}

func TestLoadConfig_EnvOverrides(t *testing.T) {
	clearEnv(t)
	t.Setenv("PORT", "9090")
	t.Setenv("FEED_DRIVER", "nats")
	t.Setenv("NATS_URL", "nats://nats:4222")
	t.Setenv("REDIS_ADDR", "redis:6379")
	t.Setenv("REDIS_DB", "2")
	t.Setenv("IDLE_CLOSE", "1m")

	cfg, err := loadConfig(writeConfig(t, "port: \"7070\"\n"))
	require.NoError(t, err)
	assert.Equal(t, "9090", cfg.Port)
	assert.Equal(t, DriverNATS, cfg.Feed.Driver)
	assert.Equal(t, "nats://nats:4222", cfg.Feed.NATSURL)
	assert.Equal(t, "redis:6379", cfg.Redis.Addr)
	assert.Equal(t, 2, cfg.Redis.DB)
	assert.Equal(t, time.Minute, cfg.Room.IdleClose)
}

func TestLoadConfig_Invalid(t *testing.T) {
	tests := []struct {
		name string
		body string
		env  map[string]string
	}{
		{name: "bad yaml", body: "room: [\n"},
		{name: "zero increment", body: "room:\n  min_increment: 0\n"},
		{name: "negative starting price", body: "room:\n  starting_price: -1\n"},
		{name: "unknown store", body: "store:\n  driver: mongo\n"},
		{name: "unknown feed", env: map[string]string{"FEED_DRIVER": "kafka"}},
		{name: "bad idle close", env: map[string]string{"IDLE_CLOSE": "soon"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			clearEnv(t)
			for k, v := range tt.env {
				t.Setenv(k, v)
			}
			_, err := loadConfig(writeConfig(t, tt.body))
			assert.Error(t, err)
		})
	}
}
