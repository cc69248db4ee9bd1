package classifier

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hush/internal/config"
	"hush/internal/logger"
	"hush/pkg/circuitbreaker"
	apperrors "hush/pkg/errors"
	"hush/pkg/metrics"
	"hush/pkg/models"
	"hush/pkg/tracing"
)

const (
	opClassify = "classify"
	opEmbed    = "embed"
)

// Bounded enforces the classifier deadlines. A call that outlives its
// deadline is abandoned: its context is canceled and its late result is
// dropped.
type Bounded struct {
	port            Port
	classifyTimeout time.Duration
	embedTimeout    time.Duration
	breaker         *circuitbreaker.Wrapper
	logger          logger.Logger
}

func NewBounded(port Port, cfg config.ClassifierConfig, cb config.CircuitBreakerConfig, log logger.Logger) *Bounded {
	b := &Bounded{
		port:            port,
		classifyTimeout: cfg.Timeout,
		embedTimeout:    cfg.EmbedTimeout,
		logger:          log,
	}
	if b.embedTimeout <= 0 {
		b.embedTimeout = b.classifyTimeout
	}
	if cb.Enabled {
		b.breaker = circuitbreaker.NewWrapper(circuitbreaker.FromSettings("classifier", cb))
	}
	return b
}

// Classify returns the model verdict or a TIMEOUT / DEPENDENCY_UNAVAILABLE
// error. The effective deadline is the earlier of the classifier timeout
// and the deadline already on ctx.
func (b *Bounded) Classify(ctx context.Context, event *models.NotificationEvent, ec models.EvaluationContext) (models.ClassifierResult, error) {
	ctx, span := tracing.GetTracer("classifier").Start(ctx, "classifier.classify")
	defer span.End()

	res, err := bounded(ctx, b, opClassify, b.classifyTimeout, func(ctx context.Context) (models.ClassifierResult, error) {
		res, err := b.port.Classify(ctx, event, ec)
		if err != nil {
			return res, err
		}
		if err := validateResult(res); err != nil {
			return models.ClassifierResult{}, err
		}
		return res, nil
	})
	if err != nil {
		span.RecordError(err)
	}
	return res, err
}

// Embed satisfies deduplication.Embedder.
func (b *Bounded) Embed(ctx context.Context, text string) ([]float32, error) {
	ctx, span := tracing.GetTracer("classifier").Start(ctx, "classifier.embed")
	defer span.End()

	vec, err := bounded(ctx, b, opEmbed, b.embedTimeout, func(ctx context.Context) ([]float32, error) {
		vec, err := b.port.Embed(ctx, text)
		if err == nil && len(vec) == 0 {
			err = fmt.Errorf("empty embedding")
		}
		return vec, err
	})
	if err != nil {
		span.RecordError(err)
	}
	return vec, err
}

func bounded[T any](ctx context.Context, b *Bounded, op string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	start := time.Now()

	call := func(ctx context.Context) (T, error) {
		return await(ctx, timeout, fn)
	}

	var (
		res T
		err error
	)
	if b.breaker != nil {
		res, err = circuitbreaker.Do(ctx, b.breaker, call)
	} else {
		res, err = call(ctx)
	}

	status := statusOf(err)
	metrics.ObserveClassifier(op, status, time.Since(start))
	if err != nil {
		b.logger.WarnwCtx(ctx, "Classifier call failed",
			"operation", op,
			"status", status,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"error", err,
		)
		var zero T
		return zero, apperrors.Unavailable(err, "classifier")
	}
	return res, nil
}

// await runs fn in its own goroutine and waits at most timeout for it. The
// result channel is buffered so an abandoned call can still complete and
// exit.
func await[T any](ctx context.Context, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	type result struct {
		val T
		err error
	}
	done := make(chan result, 1)

	go func() {
		val, err := fn(ctx)
		done <- result{val: val, err: err}
	}()

	select {
	case r := <-done:
		return r.val, r.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

func validateResult(res models.ClassifierResult) error {
	if !res.Verdict.Valid() {
		return fmt.Errorf("classifier returned unknown verdict %q", res.Verdict)
	}
	if res.Confidence < 0 || res.Confidence > 1 {
		return fmt.Errorf("classifier confidence %v out of range", res.Confidence)
	}
	return nil
}

func statusOf(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, context.DeadlineExceeded) || apperrors.IsTimeout(err):
		return "timeout"
	case apperrors.IsDependencyUnavailable(err):
		return "unavailable"
	default:
		return "error"
	}
}
