package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/gomodule/redigo/redis"
)

// counterTTL keeps day counters around long enough to survive timezone
// skew around the day boundary, then lets Redis reclaim them.
const counterTTL = 48 * time.Hour

// RedisCounterStore is the multi-instance counter backend: atomic INCR
// keyed by (user, day) with a TTL. Use this when more than one protocold
// instance serves the same user base.
type RedisCounterStore struct {
	pool *redis.Pool
}

// NewRedisCounterStore creates a counter store over a Redis address.
func NewRedisCounterStore(addr string) *RedisCounterStore {
	return &RedisCounterStore{
		pool: &redis.Pool{
			MaxIdle:     4,
			IdleTimeout: 240 * time.Second,
			DialContext: func(ctx context.Context) (redis.Conn, error) {
				return redis.DialContext(ctx, "tcp", addr)
			},
			TestOnBorrow: func(c redis.Conn, t time.Time) error {
				if time.Since(t) < time.Minute {
					return nil
				}
				_, err := c.Do("PING")
				return err
			},
		},
	}
}

// Close releases the connection pool.
func (s *RedisCounterStore) Close() error {
	return s.pool.Close()
}

func counterKey(userID int64, dayKey string) string {
	return fmt.Sprintf("quota:%d:%s", userID, dayKey)
}

// Get returns the current count for the key, zero if absent.
func (s *RedisCounterStore) Get(ctx context.Context, userID int64, dayKey string) (int64, error) {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("redis get conn: %w", err)
	}
	defer conn.Close()

	used, err := redis.Int64(conn.Do("GET", counterKey(userID, dayKey)))
	if err == redis.ErrNil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("redis get: %w", err)
	}
	return used, nil
}

// Increment bumps the counter atomically and sets the TTL on first use.
func (s *RedisCounterStore) Increment(ctx context.Context, userID int64, dayKey string) error {
	conn, err := s.pool.GetContext(ctx)
	if err != nil {
		return fmt.Errorf("redis get conn: %w", err)
	}
	defer conn.Close()

	key := counterKey(userID, dayKey)
	used, err := redis.Int64(conn.Do("INCR", key))
	if err != nil {
		return fmt.Errorf("redis incr: %w", err)
	}
	if used == 1 {
		if _, err := conn.Do("EXPIRE", key, int64(counterTTL.Seconds())); err != nil {
			return fmt.Errorf("redis expire: %w", err)
		}
	}
	return nil
}
