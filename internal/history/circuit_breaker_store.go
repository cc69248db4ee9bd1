package history

import (
	"context"
	"time"

	"hush/internal/config"
	"hush/pkg/circuitbreaker"
)

// CircuitBreakerStore stops calling a failing store so that evaluations
// fall back immediately instead of waiting on timeouts.
type CircuitBreakerStore struct {
	store Store
	cb    *circuitbreaker.Wrapper
}

// NewCircuitBreakerStore returns store unchanged when the breaker is disabled.
func NewCircuitBreakerStore(store Store, cfg config.CircuitBreakerConfig) Store {
	if !cfg.Enabled {
		return store
	}
	return &CircuitBreakerStore{
		store: store,
		cb:    circuitbreaker.NewWrapper(circuitbreaker.FromSettings("history-store", cfg)),
	}
}

func (s *CircuitBreakerStore) Exists(ctx context.Context, key string) (bool, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) (bool, error) {
		return s.store.Exists(ctx, key)
	})
}

func (s *CircuitBreakerStore) SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) (bool, error) {
		return s.store.SetNX(ctx, key, value, ttl)
	})
}

func (s *CircuitBreakerStore) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return circuitbreaker.Run(ctx, s.cb, func(ctx context.Context) error {
		return s.store.Set(ctx, key, value, ttl)
	})
}

func (s *CircuitBreakerStore) Delete(ctx context.Context, key string) error {
	return circuitbreaker.Run(ctx, s.cb, func(ctx context.Context) error {
		return s.store.Delete(ctx, key)
	})
}

func (s *CircuitBreakerStore) GetMany(ctx context.Context, keys ...string) (map[string]string, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) (map[string]string, error) {
		return s.store.GetMany(ctx, keys...)
	})
}

func (s *CircuitBreakerStore) Incr(ctx context.Context, key string, ttl time.Duration) (int64, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) (int64, error) {
		return s.store.Incr(ctx, key, ttl)
	})
}

func (s *CircuitBreakerStore) TTL(ctx context.Context, key string) (time.Duration, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) (time.Duration, error) {
		return s.store.TTL(ctx, key)
	})
}

func (s *CircuitBreakerStore) PushRecent(ctx context.Context, key, value string, maxLen int, ttl time.Duration) error {
	return circuitbreaker.Run(ctx, s.cb, func(ctx context.Context) error {
		return s.store.PushRecent(ctx, key, value, maxLen, ttl)
	})
}

func (s *CircuitBreakerStore) Recent(ctx context.Context, key string, limit int) ([]string, error) {
	return circuitbreaker.Do(ctx, s.cb, func(ctx context.Context) ([]string, error) {
		return s.store.Recent(ctx, key, limit)
	})
}

// Ping bypasses the breaker so health checks see the real backend.
func (s *CircuitBreakerStore) Ping(ctx context.Context) error {
	return s.store.Ping(ctx)
}

func (s *CircuitBreakerStore) State() string {
	return s.cb.State().String()
}
