package kv

import (
	"context"
	"fmt"
	"time"
)

// Backend represents the storage backend type
type Backend string

const (
	// BackendMemory uses the in-memory store
	BackendMemory Backend = "memory"
	// BackendRedis uses Redis as the backend
	BackendRedis Backend = "redis"
)

// LogFunc receives backend selection events.
type LogFunc func(msg string, keysAndValues ...interface{})

// Config holds configuration for creating a Store instance
type Config struct {
	Backend Backend

	// RedisURL is the connection string for Redis, e.g.
	// redis://localhost:6379/0 or redis://:password@localhost:6379/1
	RedisURL string

	// JanitorInterval controls how often the in-memory store evicts expired
	// keys. Default: 30 seconds.
	JanitorInterval time.Duration

	// StartupProbeTimeout bounds the initial Redis ping. Default: 1 second.
	StartupProbeTimeout time.Duration

	// FallbackToMemory selects the in-memory store when Redis cannot be
	// reached at startup instead of failing.
	FallbackToMemory bool

	Logger LogFunc
}

// StoreFactory defines a function that creates a Store instance
type StoreFactory func(cfg Config) (Store, error)

var factories = make(map[Backend]StoreFactory)

// RegisterBackend registers a store factory for a given backend
func RegisterBackend(backend Backend, factory StoreFactory) {
	factories[backend] = factory
}

// NewStoreFromConfig creates a Store for cfg.Backend. Backends register
// themselves from their package init, so callers import them for effect.
func NewStoreFromConfig(cfg Config) (Store, error) {
	if cfg.JanitorInterval == 0 {
		cfg.JanitorInterval = 30 * time.Second
	}
	if cfg.StartupProbeTimeout == 0 {
		cfg.StartupProbeTimeout = time.Second
	}

	switch cfg.Backend {
	case BackendMemory:
		return newFromFactory(BackendMemory, cfg)
	case BackendRedis:
		return newRedisStore(cfg)
	default:
		return nil, fmt.Errorf("unsupported backend: %s (supported: %s, %s)",
			cfg.Backend, BackendMemory, BackendRedis)
	}
}

func newFromFactory(backend Backend, cfg Config) (Store, error) {
	factory, exists := factories[backend]
	if !exists {
		return nil, fmt.Errorf("%s backend not registered", backend)
	}
	return factory(cfg)
}

// newRedisStore connects to Redis and verifies it with a ping. A cache must
// not split its entries across two backends, so there is no runtime
// failover: the fallback only applies at startup.
func newRedisStore(cfg Config) (Store, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("redis URL is required when backend is 'redis'")
	}

	fallback := func(reason error) (Store, error) {
		if !cfg.FallbackToMemory {
			return nil, fmt.Errorf("%w: %v", ErrBackendUnavailable, reason)
		}
		if cfg.Logger != nil {
			cfg.Logger("Redis unavailable at startup; using in-memory store", "error", reason.Error())
		}
		return newFromFactory(BackendMemory, cfg)
	}

	redisStore, err := newFromFactory(BackendRedis, cfg)
	if err != nil {
		return fallback(err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.StartupProbeTimeout)
	defer cancel()

	if err := redisStore.Ping(ctx); err != nil {
		_ = redisStore.Close()
		return fallback(err)
	}

	if cfg.Logger != nil {
		cfg.Logger("Redis healthy at startup")
	}
	return redisStore, nil
}
