package logging

import (
	"context"
	"fmt"
	"log/slog"
)

// RedisAdapter routes go-redis internal log output (connection pool
// warnings, reconnect notices) to slog at warn level.
type RedisAdapter struct {
	logger *slog.Logger
}

// NewRedisAdapter creates a RedisAdapter. If logger is nil, slog.Default()
// is used.
func NewRedisAdapter(logger *slog.Logger) *RedisAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisAdapter{logger: WithComponent(logger, "redis")}
}

// Printf implements the go-redis logging interface.
func (a *RedisAdapter) Printf(ctx context.Context, format string, v ...interface{}) {
	a.logger.WarnContext(ctx, fmt.Sprintf(format, v...))
}
