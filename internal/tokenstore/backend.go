package tokenstore

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/teemow/homedash/internal/logging"
)

// ErrNotFound is returned by Backend.Load for an empty slot.
var ErrNotFound = errors.New("tokenstore: slot not found")

// Backend is the durable get/put/delete contract. Keys are provider IDs.
// Delete of an absent key is not an error.
type Backend interface {
	Load(ctx context.Context, key string) ([]byte, error)
	Save(ctx context.Context, key string, data []byte) error
	Delete(ctx context.Context, key string) error
}

// Backend kinds accepted by NewBackend.
const (
	BackendFile   = "file"
	BackendRedis  = "redis"
	BackendMemory = "memory"
)

// BackendConfig selects and configures a backend.
type BackendConfig struct {
	Kind string
	// Dir is the FileBackend directory. Empty means DefaultDir().
	Dir string
	// RedisURL is a redis:// URL for the RedisBackend.
	RedisURL string
	// RedisPrefix overrides DefaultRedisPrefix.
	RedisPrefix string
}

// NewBackend constructs the configured backend.
func NewBackend(ctx context.Context, cfg BackendConfig, logger *slog.Logger) (Backend, error) {
	switch cfg.Kind {
	case "", BackendFile:
		dir := cfg.Dir
		if dir == "" {
			dir = DefaultDir()
		}
		return NewFileBackend(dir), nil
	case BackendRedis:
		if cfg.RedisURL == "" {
			return nil, fmt.Errorf("redis storage requires a redis URL")
		}
		b, err := NewRedisBackendFromURL(ctx, cfg.RedisURL, cfg.RedisPrefix)
		if err != nil {
			return nil, err
		}
		SetRedisLogger(logging.NewRedisAdapter(logger))
		return b, nil
	case BackendMemory:
		return NewMemoryBackend(), nil
	}
	return nil, fmt.Errorf("unknown storage backend %q (supported: file, redis, memory)", cfg.Kind)
}
