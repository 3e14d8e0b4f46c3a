package history

import (
	"context"
	"fmt"
	"strings"
)

// Backend names accepted by Open.
const (
	BackendMemory = "memory"
	BackendRedis  = "redis"
)

// Open returns the store for backend. url and key only apply to Redis.
func Open(ctx context.Context, backend, url, key string) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(backend)) {
	case "", BackendMemory:
		return NewMemoryStore(), nil
	case BackendRedis:
		return NewRedisStore(ctx, url, key)
	default:
		return nil, fmt.Errorf("unknown history backend %q", backend)
	}
}
