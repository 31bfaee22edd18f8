package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Domenick1991/flightbooking/config"
	"github.com/Domenick1991/flightbooking/internal/domain"
	"github.com/redis/go-redis/v9"
)

const (
	flightsKey   = "cache:flights"
	sweepLockKey = "lock:booking-sweeper"
	dedupTTL     = 48 * time.Hour
)

// releaseLock deletes the lock only while it still carries our token.
var releaseLock = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

type RedisCache struct {
	client     redis.UniversalClient
	flightsTTL time.Duration
}

func NewRedisCache(cfg config.RedisConfig, flightsTTL time.Duration) *RedisCache {
	client := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	return NewWithClient(client, flightsTTL)
}

func NewWithClient(client redis.UniversalClient, flightsTTL time.Duration) *RedisCache {
	return &RedisCache{client: client, flightsTTL: flightsTTL}
}

func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisCache) Close() error {
	return c.client.Close()
}

// GetFlights returns nil, nil on a miss.
func (c *RedisCache) GetFlights(ctx context.Context) ([]domain.Flight, error) {
	data, err := c.client.Get(ctx, flightsKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		return nil, fmt.Errorf("get cached flights: %w", err)
	}

	var flights []domain.Flight
	if err := json.Unmarshal(data, &flights); err != nil {
		return nil, fmt.Errorf("decode cached flights: %w", err)
	}
	return flights, nil
}

func (c *RedisCache) SetFlights(ctx context.Context, flights []domain.Flight) error {
	payload, err := json.Marshal(flights)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, flightsKey, payload, c.flightsTTL).Err()
}

func (c *RedisCache) InvalidateFlights(ctx context.Context) error {
	return c.client.Del(ctx, flightsKey).Err()
}

func (c *RedisCache) AcquireSweepLock(ctx context.Context, token string, ttl time.Duration) (bool, error) {
	return c.client.SetNX(ctx, sweepLockKey, token, ttl).Result()
}

func (c *RedisCache) ReleaseSweepLock(ctx context.Context, token string) error {
	return releaseLock.Run(ctx, c.client, []string{sweepLockKey}, token).Err()
}

// MarkProcessed records a notification id and reports whether it was new.
func (c *RedisCache) MarkProcessed(ctx context.Context, id string) (bool, error) {
	return c.client.SetNX(ctx, dedupKey(id), 1, dedupTTL).Result()
}

// ForgetProcessed undoes MarkProcessed so a failed delivery can be retried.
func (c *RedisCache) ForgetProcessed(ctx context.Context, id string) error {
	return c.client.Del(ctx, dedupKey(id)).Err()
}

func dedupKey(id string) string {
	return "dedup:notifier:" + id
}
