package middleware

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimitStore shares counters between instances through Redis.
type RedisLimitStore struct {
	client redis.UniversalClient
}

func NewRedisLimitStore(client redis.UniversalClient) *RedisLimitStore {
	return &RedisLimitStore{client: client}
}

// ConnectRedis parses a redis:// URL and checks the server answers.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}

func (s *RedisLimitStore) Hit(ctx context.Context, key string, window time.Duration) (int, time.Duration, error) {
	count, err := s.client.Incr(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("incr %s: %w", key, err)
	}

	ttl, err := s.client.PTTL(ctx, key).Result()
	if err != nil {
		return 0, 0, fmt.Errorf("pttl %s: %w", key, err)
	}
	// First hit of a window, or a key left without expiry.
	if count == 1 || ttl < 0 {
		if err := s.client.PExpire(ctx, key, window).Err(); err != nil {
			return 0, 0, fmt.Errorf("pexpire %s: %w", key, err)
		}
		ttl = window
	}
	return int(count), ttl, nil
}

func (s *RedisLimitStore) Reset(ctx context.Context, key string) error {
	return s.client.Del(ctx, key).Err()
}
