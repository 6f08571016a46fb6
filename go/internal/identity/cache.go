package identity

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/mcdev12/liveauction/go/internal/models"
	"github.com/redis/go-redis/v9"
)

const keyPrefix = "auction:session:"

// RedisCache keeps resolved sessions for a short while so that every
// request does not hit the profiles table.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisCache connects to addr and checks the connection.
func NewRedisCache(ctx context.Context, addr, password string, db int, ttl time.Duration) (*RedisCache, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return newRedisCache(rdb, ttl), nil
}

func newRedisCache(rdb *redis.Client, ttl time.Duration) *RedisCache {
	if ttl <= 0 {
		ttl = time.Minute
	}
	return &RedisCache{client: rdb, ttl: ttl}
}

func (c *RedisCache) Get(ctx context.Context, userID string) (models.SessionContext, bool, error) {
	raw, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return models.SessionContext{}, false, nil
	}
	if err != nil {
		return models.SessionContext{}, false, fmt.Errorf("redis get: %w", err)
	}

	var session models.SessionContext
	if err := json.Unmarshal(raw, &session); err != nil {
		return models.SessionContext{}, false, fmt.Errorf("decode cached session: %w", err)
	}
	return session, true, nil
}

func (c *RedisCache) Set(ctx context.Context, userID string, session models.SessionContext) error {
	raw, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}
	if err := c.client.Set(ctx, keyPrefix+userID, raw, c.ttl).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Invalidate drops the cached session, e.g. after the profile was edited.
func (c *RedisCache) Invalidate(ctx context.Context, userID string) error {
	return c.client.Del(ctx, keyPrefix+userID).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}
