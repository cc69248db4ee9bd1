package classifier

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"hush/internal/config"
	"hush/internal/logger"
	apperrors "hush/pkg/errors"
	"hush/pkg/models"
)

type fakePort struct {
	classify func(ctx context.Context) (models.ClassifierResult, error)
	embed    func(ctx context.Context) ([]float32, error)
}

func (f *fakePort) Classify(ctx context.Context, _ *models.NotificationEvent, _ models.EvaluationContext) (models.ClassifierResult, error) {
	return f.classify(ctx)
}

func (f *fakePort) Embed(ctx context.Context, _ string) ([]float32, error) {
	return f.embed(ctx)
}

func testConfig() config.ClassifierConfig {
	return config.ClassifierConfig{Timeout: 50 * time.Millisecond, EmbedTimeout: 30 * time.Millisecond}
}

func hang(ctx context.Context) (models.ClassifierResult, error) {
	<-ctx.Done()
	return models.ClassifierResult{Verdict: models.VerdictSendNow, Confidence: 1}, nil
}

func TestBounded_Classify(t *testing.T) {
	port := &fakePort{classify: func(context.Context) (models.ClassifierResult, error) {
		return models.ClassifierResult{Verdict: models.VerdictDefer, Confidence: 0.7}, nil
	}}
	b := NewBounded(port, testConfig(), config.CircuitBreakerConfig{}, logger.NopLogger())

	res, err := b.Classify(context.Background(), &models.NotificationEvent{}, models.EvaluationContext{})
	require.NoError(t, err)
	assert.Equal(t, models.ClassifierResult{Verdict: models.VerdictDefer, Confidence: 0.7}, res)
}

func TestBounded_TimeoutAbandonsCall(t *testing.T) {
	defer goleak.VerifyNone(t)

	b := NewBounded(&fakePort{classify: hang}, testConfig(), config.CircuitBreakerConfig{}, logger.NopLogger())

	start := time.Now()
	_, err := b.Classify(context.Background(), &models.NotificationEvent{}, models.EvaluationContext{})
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.Equal(t, apperrors.KindTimeout, apperrors.KindOf(err))
	assert.Less(t, elapsed, 50*time.Millisecond+40*time.Millisecond)
}

func TestBounded_ParentDeadlineWins(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := testConfig()
	cfg.Timeout = time.Second
	b := NewBounded(&fakePort{classify: hang}, cfg, config.CircuitBreakerConfig{}, logger.NopLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := b.Classify(ctx, &models.NotificationEvent{}, models.EvaluationContext{})
	require.Error(t, err)
	assert.Less(t, time.Since(start), 200*time.Millisecond)
}

func TestBounded_LateResultDropped(t *testing.T) {
	defer goleak.VerifyNone(t)

	release := make(chan struct{})
	finished := make(chan struct{})
	port := &fakePort{classify: func(context.Context) (models.ClassifierResult, error) {
		defer close(finished)
		<-release
		return models.ClassifierResult{Verdict: models.VerdictSuppress, Confidence: 1}, nil
	}}
	b := NewBounded(port, testConfig(), config.CircuitBreakerConfig{}, logger.NopLogger())

	_, err := b.Classify(context.Background(), &models.NotificationEvent{}, models.EvaluationContext{})
	require.Error(t, err)

	// The abandoned call finishes after the caller has moved on.
	close(release)
	<-finished
}

func TestBounded_InvalidResult(t *testing.T) {
	tests := []struct {
		name string
		res  models.ClassifierResult
	}{
		{"unknown verdict", models.ClassifierResult{Verdict: "MAYBE", Confidence: 0.5}},
		{"confidence above one", models.ClassifierResult{Verdict: models.VerdictDefer, Confidence: 1.5}},
		{"negative confidence", models.ClassifierResult{Verdict: models.VerdictDefer, Confidence: -0.1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			port := &fakePort{classify: func(context.Context) (models.ClassifierResult, error) { return tt.res, nil }}
			b := NewBounded(port, testConfig(), config.CircuitBreakerConfig{}, logger.NopLogger())

			_, err := b.Classify(context.Background(), &models.NotificationEvent{}, models.EvaluationContext{})
			require.Error(t, err)
			assert.Equal(t, apperrors.KindDependencyUnavailable, apperrors.KindOf(err))
		})
	}
}

func TestBounded_BreakerOpens(t *testing.T) {
	calls := 0
	port := &fakePort{classify: func(context.Context) (models.ClassifierResult, error) {
		calls++
		return models.ClassifierResult{}, errors.New("upstream 503")
	}}
	cb := config.CircuitBreakerConfig{
		Enabled:      true,
		MaxRequests:  1,
		Interval:     time.Minute,
		Timeout:      time.Minute,
		FailureRatio: 0.5,
		MinRequests:  2,
	}
	b := NewBounded(port, testConfig(), cb, logger.NopLogger())

	for i := 0; i < 4; i++ {
		_, err := b.Classify(context.Background(), &models.NotificationEvent{}, models.EvaluationContext{})
		require.Error(t, err)
		assert.True(t, apperrors.IsDependencyUnavailable(err))
	}
	assert.Equal(t, 2, calls, "open breaker short-circuits further calls")
}

func TestBounded_Embed(t *testing.T) {
	defer goleak.VerifyNone(t)

	port := &fakePort{embed: func(ctx context.Context) ([]float32, error) {
		return []float32{0.1, 0.2}, nil
	}}
	b := NewBounded(port, testConfig(), config.CircuitBreakerConfig{}, logger.NopLogger())

	vec, err := b.Embed(context.Background(), "hello")
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, vec)

	port.embed = func(ctx context.Context) ([]float32, error) { return nil, nil }
	_, err = b.Embed(context.Background(), "hello")
	assert.Error(t, err, "empty embedding is a failure")

	port.embed = func(ctx context.Context) ([]float32, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	start := time.Now()
	_, err = b.Embed(context.Background(), "hello")
	require.Error(t, err)
	assert.True(t, apperrors.IsTimeout(err))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
}

func TestParseVerdict(t *testing.T) {
	res, err := parseVerdict(` {"verdict":"defer","confidence":0.64} `)
	require.NoError(t, err)
	assert.Equal(t, models.ClassifierResult{Verdict: models.VerdictDefer, Confidence: 0.64}, res)

	_, err = parseVerdict(`{"verdict":"later-maybe","confidence":0.5}`)
	assert.Error(t, err)

	_, err = parseVerdict(`not json`)
	assert.Error(t, err)
}

func TestDescribe(t *testing.T) {
	sim := 0.4
	text, err := describe(&models.NotificationEvent{EventType: "promo", Channel: models.ChannelSMS},
		models.EvaluationContext{RecentCount1h: 2, Similarity: &sim, OptedOutChannels: []models.Channel{models.ChannelSMS}})
	require.NoError(t, err)
	assert.Contains(t, text, `"event_type":"promo"`)
	assert.Contains(t, text, `"similarity_to_recent":0.4`)
	assert.Contains(t, text, `"opted_out_of_channel":true`)
}

func TestNew_Disabled(t *testing.T) {
	b, err := New(context.Background(), config.ClassifierConfig{Provider: "none"}, config.CircuitBreakerConfig{}, logger.NopLogger())
	require.NoError(t, err)
	assert.Nil(t, b)

	_, err = New(context.Background(), config.ClassifierConfig{Provider: "genai"}, config.CircuitBreakerConfig{}, logger.NopLogger())
	assert.Error(t, err, "genai requires an api key")
}
