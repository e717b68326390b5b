package database

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisClients keeps publishing and subscribing on separate connection
// pools so long-lived subscriptions never starve publishers.
type RedisClients struct {
	Publish   *redis.Client
	Subscribe *redis.Client
}

func NewRedis(ctx context.Context, redisURL string) (*redis.Client, error) {
	opt, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping Redis: %w", err)
	}
	return client, nil
}

func NewRedisClients(ctx context.Context, redisURL string) (*RedisClients, error) {
	pub, err := NewRedis(ctx, redisURL)
	if err != nil {
		return nil, fmt.Errorf("publisher: %w", err)
	}

	sub, err := NewRedis(ctx, redisURL)
	if err != nil {
		pub.Close()
		return nil, fmt.Errorf("subscriber: %w", err)
	}

	return &RedisClients{Publish: pub, Subscribe: sub}, nil
}

func (r *RedisClients) Close() {
	r.Publish.Close()
	r.Subscribe.Close()
}
