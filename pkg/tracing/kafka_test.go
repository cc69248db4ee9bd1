package tracing

import (
	"context"
	"testing"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

func withPropagator(t *testing.T) {
	t.Helper()
	prev := otel.GetTextMapPropagator()
	otel.SetTextMapPropagator(propagation.TraceContext{})
	t.Cleanup(func() { otel.SetTextMapPropagator(prev) })
}

func TestKafkaHeaders_RoundTrip(t *testing.T) {
	withPropagator(t)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "produce")
	defer span.End()

	headers := InjectTraceContext(ctx, nil)
	require.NotEmpty(t, headers)
	assert.Equal(t, "traceparent", headers[0].Key)

	extracted := ExtractTraceContext(context.Background(), headers)
	got := trace.SpanContextFromContext(extracted)
	assert.Equal(t, span.SpanContext().TraceID(), got.TraceID())
}

func TestNATSHeaders_RoundTrip(t *testing.T) {
	withPropagator(t)

	tp := sdktrace.NewTracerProvider()
	ctx, span := tp.Tracer("test").Start(context.Background(), "publish")
	defer span.End()

	msg := nats.NewMsg("subject")
	InjectNATSHeaders(ctx, msg.Header)

	ctx2, span2 := StartSpanFromNATSMessage(context.Background(), "consume", msg)
	defer span2.End()
	parent := trace.SpanContextFromContext(ctx2)
	assert.Equal(t, span.SpanContext().TraceID(), parent.TraceID())
}
