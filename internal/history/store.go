package history

import (
	"context"
	"time"
)

// Store is the key-value view of user history: membership markers, rolling
// counters and short bounded lists. Missing keys read as absent or zero.
// Counter and set-if-absent operations are atomic per key.
type Store interface {
	Exists(ctx context.Context, key string) (bool, error)
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	// Delete removes key. Deleting a missing key is not an error.
	Delete(ctx context.Context, key string) error
	// GetMany returns only the keys that exist.
	GetMany(ctx context.Context, keys ...string) (map[string]string, error)
	// Incr increments key and applies ttl only when the key had no expiry,
	// so a rolling window starts at its first write.
	Incr(ctx context.Context, key string, ttl time.Duration) (int64, error)
	// TTL is zero for missing keys and keys without expiry.
	TTL(ctx context.Context, key string) (time.Duration, error)
	// PushRecent prepends value, trims the list to maxLen and refreshes ttl.
	PushRecent(ctx context.Context, key, value string, maxLen int, ttl time.Duration) error
	// Recent returns up to limit values, newest first.
	Recent(ctx context.Context, key string, limit int) ([]string, error)
	Ping(ctx context.Context) error
}
