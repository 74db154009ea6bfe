package token

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisMedium keeps values in Redis under a common prefix so several
// frontend processes can share one login.
type RedisMedium struct {
	client *redis.Client
	prefix string
}

// NewRedisMedium connects to addr and verifies the connection with PING.
func NewRedisMedium(ctx context.Context, opts *redis.Options, prefix string) (*RedisMedium, error) {
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, errors.Wrap(err, "redis ping")
	}
	return &RedisMedium{client: client, prefix: prefix}, nil
}

func (m *RedisMedium) Get(ctx context.Context, key string) (string, error) {
	value, err := m.client.Get(ctx, m.prefix+key).Result()
	if errors.Is(err, redis.Nil) {
		return "", ErrNotFound
	}
	if err != nil {
		return "", errors.Wrap(err, "redis get")
	}
	return value, nil
}

func (m *RedisMedium) Set(ctx context.Context, key, value string) error {
	return errors.Wrap(m.client.Set(ctx, m.prefix+key, value, 0).Err(), "redis set")
}

func (m *RedisMedium) Delete(ctx context.Context, key string) error {
	return errors.Wrap(m.client.Del(ctx, m.prefix+key).Err(), "redis del")
}

func (m *RedisMedium) Close() error {
	return m.client.Close()
}
