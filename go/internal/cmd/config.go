package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"time"

	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
	DriverNATS     = "nats"
)

type RoomConfig struct {
	Name          string             `yaml:"name"`
	Description   string             `yaml:"description"`
	StartingPrice decimal.Decimal    `yaml:"starting_price"`
	MinIncrement  decimal.Decimal    `yaml:"min_increment"`
	IdleClose     time.Duration      `yaml:"idle_close"`
	HistoryLimit  int                `yaml:"history_limit"`
	Stream        *models.StreamInfo `yaml:"stream"`
}

type Config struct {
	Room RoomConfig `yaml:"room"`

	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	Store struct {
		Driver    string `yaml:"driver"`
		SQLiteDSN string `yaml:"sqlite_dsn"`
	} `yaml:"store"`

	Feed struct {
		Driver  string `yaml:"driver"`
		NATSURL string `yaml:"nats_url"`
	} `yaml:"feed"`

	Redis struct {
		Addr       string        `yaml:"addr"`
		Password   string        `yaml:"password"`
		DB         int           `yaml:"db"`
		SessionTTL time.Duration `yaml:"session_ttl"`
	} `yaml:"redis"`
}

func defaultConfig() *Config {
	cfg := &Config{
		Room: RoomConfig{
			Name:          models.DefaultRoomName,
			StartingPrice: decimal.NewFromInt(10),
			MinIncrement:  decimal.NewFromInt(1),
			IdleClose:     30 * time.Second,
			HistoryLimit:  200,
		},
		Port:     "8080",
		LogLevel: "info",
	}
	cfg.Store.Driver = DriverPostgres
	cfg.Store.SQLiteDSN = "file:liveauction.db"
	cfg.Feed.Driver = DriverPostgres
	cfg.Redis.SessionTTL = time.Minute
	return cfg
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

// loadConfig reads the yaml file at path over the defaults, then applies
// environment overrides. A missing file is not an error.
func loadConfig(path string) (*Config, error) {
	config := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return nil, fmt.Errorf("failed to read config file: %w", err)
	default:
		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
	}

	config.Port = getEnv("PORT", config.Port)
	config.LogLevel = getEnv("LOG_LEVEL", config.LogLevel)
	config.Store.Driver = getEnv("STORE_DRIVER", config.Store.Driver)
	config.Store.SQLiteDSN = getEnv("SQLITE_DSN", config.Store.SQLiteDSN)
	config.Feed.Driver = getEnv("FEED_DRIVER", config.Feed.Driver)
	config.Feed.NATSURL = getEnv("NATS_URL", config.Feed.NATSURL)
	config.Redis.Addr = getEnv("REDIS_ADDR", config.Redis.Addr)
	config.Redis.Password = getEnv("REDIS_PASSWORD", config.Redis.Password)
	config.Redis.DB = getEnvAsInt("REDIS_DB", config.Redis.DB)
	if v := os.Getenv("IDLE_CLOSE"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid IDLE_CLOSE: %w", err)
		}
		config.Room.IdleClose = d
	}

	if err := config.validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func (c *Config) validate() error {
	if c.Room.Name == "" {
		return errors.New("room name is required")
	}
	if c.Room.StartingPrice.IsNegative() {
		return fmt.Errorf("starting price must not be negative, got %s", c.Room.StartingPrice)
	}
	if !c.Room.MinIncrement.IsPositive() {
		return fmt.Errorf("min increment must be positive, got %s", c.Room.MinIncrement)
	}
	switch c.Store.Driver {
	case DriverPostgres, DriverSQLite:
	default:
		return fmt.Errorf("unknown store driver %q", c.Store.Driver)
	}
	switch c.Feed.Driver {
	case DriverPostgres, DriverNATS:
	default:
		return fmt.Errorf("unknown feed driver %q", c.Feed.Driver)
	}
	return nil
}

func (c *Config) roomDefaults() models.RoomDefaults {
	return models.RoomDefaults{
		Name:          c.Room.Name,
		Description:   c.Room.Description,
		StartingPrice: c.Room.StartingPrice,
		MinIncrement:  c.Room.MinIncrement,
		Stream:        c.Room.Stream,
	}
}
