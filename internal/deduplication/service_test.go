package deduplication

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/config"
	"hush/internal/history"
	"hush/internal/logger"
	"hush/pkg/models"
)

var baseTime = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type clock struct{ now time.Time }

func (c *clock) Now() time.Time          { return c.now }
func (c *clock) Advance(d time.Duration) { c.now = c.now.Add(d) }

// vectorEmbedder returns a fixed vector per normalized message.
type vectorEmbedder struct {
	vectors map[string][]float32
	err     error
}

func (v *vectorEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	if v.err != nil {
		return nil, v.err
	}
	if vec, ok := v.vectors[text]; ok {
		return vec, nil
	}
	return []float32{0, 0, 1}, nil
}

type brokenStore struct{ history.Store }

func (brokenStore) SetNX(context.Context, string, string, time.Duration) (bool, error) {
	return false, errors.New("redis: connection refused")
}

func testConfig() config.DeduplicationConfig {
	return config.DeduplicationConfig{
		HashAlgorithm: "sha256",
		TTL:           24 * time.Hour,
		NearDuplicate: config.NearDuplicateConfig{
			Enabled:       true,
			Window:        5 * time.Minute,
			MaxCandidates: 10,
			Threshold:     0.92,
			Policy:        "suppress",
		},
		Digest: config.DigestConfig{Window: 5 * time.Minute},
	}
}

func newEngine(store history.Store, emb Embedder, cfg config.DeduplicationConfig) (*Engine, *clock) {
	c := &clock{now: baseTime}
	return NewEngine(store, emb, cfg, logger.NopLogger()).WithClock(c.Now), c
}

func event(user, msg string) *models.NotificationEvent {
	return &models.NotificationEvent{
		ID:         "evt-" + user,
		UserID:     user,
		EventType:  "promo",
		Message:    msg,
		Source:     "marketing",
		Priority:   models.PriorityLow,
		Channel:    models.ChannelPush,
		ReceivedAt: baseTime,
	}
}

func TestEngine_ExactDuplicateAfterRecord(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(history.NewMemoryStore(), nil, testConfig())

	first := event("u1", "Your order shipped")
	first.DedupeKey = "order-42"

	res := e.Check(ctx, first)
	assert.Equal(t, models.DuplicateNone, res.Kind)
	require.NoError(t, e.Record(ctx, first, res))

	second := event("u1", "different text, same key")
	second.DedupeKey = "order-42"
	res = e.Check(ctx, second)
	assert.Equal(t, models.DuplicateExact, res.Kind)

	other := event("u2", "Your order shipped")
	other.DedupeKey = "order-42"
	assert.Equal(t, models.DuplicateNone, e.Check(ctx, other).Kind)
}

func TestEngine_ConcurrentIdenticalEvents(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(history.NewMemoryStore(), nil, testConfig())
	ev := event("u5", "Your code is 1234")

	first := e.Check(ctx, ev)
	assert.Equal(t, models.DuplicateNone, first.Kind)
	assert.True(t, first.Claimed)

	inFlight := e.Check(ctx, ev)
	assert.Equal(t, models.DuplicateExact, inFlight.Kind, "the first evaluation still holds the claim")
	assert.False(t, inFlight.Claimed)
	require.NoError(t, e.Release(ctx, ev, inFlight), "releasing without a claim is a no-op")

	require.NoError(t, e.Release(ctx, ev, first))
	assert.Equal(t, models.DuplicateNone, e.Check(ctx, ev).Kind, "released claims do not mark history")
}

func TestEngine_NormalizedMessageMatches(t *testing.T) {
	ctx := context.Background()
	e, _ := newEngine(history.NewMemoryStore(), nil, testConfig())

	first := event("u1", "Flash   SALE today")
	require.NoError(t, e.Record(ctx, first, e.Check(ctx, first)))

	assert.Equal(t, models.DuplicateExact, e.Check(ctx, event("u1", "flash sale TODAY")).Kind)
}

func TestEngine_NearDuplicate(t *testing.T) {
	ctx := context.Background()
	emb := &vectorEmbedder{vectors: map[string][]float32{
		"your package is out for delivery":  {1, 0, 0},
		"your package is out for delivery!": {0.95, 0.3122499, 0},
	}}
	e, c := newEngine(history.NewMemoryStore(), emb, testConfig())

	first := event("u3", "Your package is out for delivery")
	res := e.Check(ctx, first)
	require.Equal(t, models.DuplicateNone, res.Kind)
	require.NoError(t, e.Record(ctx, first, res))

	c.Advance(2 * time.Minute)
	second := event("u3", "Your package is out for delivery!")
	res = e.Check(ctx, second)
	assert.Equal(t, models.DuplicateNear, res.Kind)
	assert.InDelta(t, 0.95, res.Score, 0.001)
	assert.Empty(t, res.DigestKey)
	require.NoError(t, e.Release(ctx, second, res))

	c.Advance(4 * time.Minute)
	res = e.Check(ctx, event("u3", "Your package is out for delivery!"))
	assert.Equal(t, models.DuplicateNone, res.Kind, "candidate outside the window")
}

func TestEngine_DigestSignal(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	cfg.Digest.Enabled = true
	emb := &vectorEmbedder{vectors: map[string][]float32{
		"new comment on your post":         {1, 0, 0},
		"another new comment on your post": {0.99, 0.14106736, 0},
	}}
	e, c := newEngine(history.NewMemoryStore(), emb, cfg)

	first := event("u4", "New comment on your post")
	res := e.Check(ctx, first)
	require.NoError(t, e.Record(ctx, first, res))

	c.Advance(time.Minute)
	second := event("u4", "Another new comment on your post")
	res = e.Check(ctx, second)
	require.Equal(t, models.DuplicateNear, res.Kind)
	assert.Contains(t, res.DigestKey, "digest:u4:marketing:")
	assert.Equal(t, baseTime.Add(5*time.Minute), res.DigestAt)
	require.NoError(t, e.Release(ctx, second, res))

	other := event("u4", "Another new comment on your post")
	other.Source = "social"
	res = e.Check(ctx, other)
	assert.Equal(t, models.DuplicateNear, res.Kind)
	assert.Empty(t, res.DigestKey, "different source never joins the digest")
}

func TestEngine_FailsOpen(t *testing.T) {
	ctx := context.Background()

	t.Run("history down", func(t *testing.T) {
		e, _ := newEngine(brokenStore{history.NewMemoryStore()}, nil, testConfig())
		res := e.Check(ctx, event("u1", "hello"))
		assert.Equal(t, models.DuplicateNone, res.Kind)
		assert.Error(t, res.HistoryErr)
	})

	t.Run("embedding down", func(t *testing.T) {
		e, _ := newEngine(history.NewMemoryStore(), &vectorEmbedder{err: context.DeadlineExceeded}, testConfig())
		res := e.Check(ctx, event("u1", "hello"))
		assert.Equal(t, models.DuplicateNone, res.Kind)
		assert.ErrorIs(t, res.EmbeddingErr, context.DeadlineExceeded)
		assert.Nil(t, res.Embedding)
	})
}

func TestHasher_Fingerprint(t *testing.T) {
	h := NewHasher("sha256")
	a := event("u1", "Hello  World")
	b := event("u1", "hello world")
	assert.Equal(t, h.Fingerprint(a), h.Fingerprint(b))

	b.EventType = "other"
	assert.NotEqual(t, h.Fingerprint(a), h.Fingerprint(b))

	keyed := event("u1", "Hello World")
	keyed.DedupeKey = "k"
	assert.NotEqual(t, h.Fingerprint(a), h.Fingerprint(keyed))

	assert.Len(t, NewHasher("md5").Fingerprint(a), 32)
	assert.Len(t, h.Fingerprint(a), 64)
}

func TestCosineSimilarity(t *testing.T) {
	assert.InDelta(t, 1.0, CosineSimilarity([]float32{1, 2, 3}, []float32{2, 4, 6}), 1e-9)
	assert.InDelta(t, 0.0, CosineSimilarity([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, CosineSimilarity([]float32{1, 0}, []float32{1, 0, 0}))
	assert.Zero(t, CosineSimilarity([]float32{0, 0}, []float32{1, 1}))
}
