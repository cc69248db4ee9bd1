package history

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/config"
	apperrors "hush/pkg/errors"
)

// downStore fails every call.
type downStore struct {
	*MemoryStore
	calls int
}

var errDown = errors.New("dial tcp: connection refused")

func (d *downStore) Exists(context.Context, string) (bool, error) {
	d.calls++
	return false, errDown
}

func TestCircuitBreakerStore_Opens(t *testing.T) {
	inner := &downStore{MemoryStore: NewMemoryStore()}
	s := NewCircuitBreakerStore(inner, config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  3,
	})

	for i := 0; i < 3; i++ {
		_, err := s.Exists(context.Background(), "k")
		require.ErrorIs(t, err, errDown)
	}

	_, err := s.Exists(context.Background(), "k")
	require.Error(t, err)
	assert.True(t, apperrors.IsDependencyUnavailable(err))
	assert.Equal(t, apperrors.KindDependencyUnavailable, apperrors.KindOf(err))
	assert.Equal(t, 3, inner.calls)
	assert.Equal(t, "open", s.(*CircuitBreakerStore).State())
}

func TestCircuitBreakerStore_Disabled(t *testing.T) {
	inner := NewMemoryStore()
	s := NewCircuitBreakerStore(inner, config.CircuitBreakerConfig{Enabled: false})
	assert.Same(t, inner, s)
}
