package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/teemow/homedash/internal/logging"
)

// DefaultRedisPrefix namespaces credential keys.
const DefaultRedisPrefix = "homedash:cred:"

// RedisBackend stores credential blobs as plain Redis strings without TTL.
type RedisBackend struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBackend wraps an existing client. An empty prefix uses
// DefaultRedisPrefix.
func NewRedisBackend(client redis.UniversalClient, prefix string) *RedisBackend {
	if prefix == "" {
		prefix = DefaultRedisPrefix
	}
	return &RedisBackend{client: client, prefix: prefix}
}

// NewRedisBackendFromURL connects to the server at rawURL and verifies the
// connection.
func NewRedisBackendFromURL(ctx context.Context, rawURL, prefix string) (*RedisBackend, error) {
	opts, err := redis.ParseURL(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid redis URL: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return NewRedisBackend(client, prefix), nil
}

// SetRedisLogger routes go-redis internal logging.
func SetRedisLogger(l *logging.RedisAdapter) {
	redis.SetLogger(l)
}

func (b *RedisBackend) key(k string) string {
	return b.prefix + k
}

// Load reads the slot for key.
func (b *RedisBackend) Load(ctx context.Context, key string) ([]byte, error) {
	data, err := b.client.Get(ctx, b.key(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return data, nil
}

// Save writes the slot for key.
func (b *RedisBackend) Save(ctx context.Context, key string, data []byte) error {
	if err := b.client.Set(ctx, b.key(key), data, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes the slot for key.
func (b *RedisBackend) Delete(ctx context.Context, key string) error {
	if err := b.client.Del(ctx, b.key(key)).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Ping checks the connection.
func (b *RedisBackend) Ping(ctx context.Context) error {
	return b.client.Ping(ctx).Err()
}

// Close closes the underlying client.
func (b *RedisBackend) Close() error {
	return b.client.Close()
}
