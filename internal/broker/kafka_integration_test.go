//go:build integration

package broker

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/config"
	"hush/internal/logger"
	"hush/internal/testinfra"
	"hush/pkg/models"
)

func TestKafka_RoundTrip(t *testing.T) {
	brokers := testinfra.Kafka(t)
	cfg := config.BrokerConfig{
		Type:  "kafka",
		Kafka: config.KafkaConfig{Brokers: brokers, GroupID: "hush-test"},
		Retry: fastRetry(2),
	}

	producer := NewKafkaProducer(cfg.Kafka, logger.NopLogger())
	t.Cleanup(func() { _ = producer.Close() })

	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	env, err := models.NewMessageEnvelopeBuilder().
		WithType(models.MessageTypeNotification).
		WithSource("test").
		WithPayload(map[string]string{"user_id": "u1"}).
		WithAttribute(models.AttrPartitionKey, "u1").
		Build()
	require.NoError(t, err)
	require.NoError(t, producer.Publish(ctx, "hush.events.test", *env))

	consumer := NewKafkaConsumer(cfg, logger.NopLogger())
	consumer.SetServiceName("broker-test")

	received := make(chan models.MessageEnvelope, 1)
	consumeCtx, stop := context.WithCancel(ctx)
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = consumer.Consume(consumeCtx, "hush.events.test", func(_ context.Context, m models.MessageEnvelope) error {
			received <- m
			return nil
		})
	}()

	select {
	case got := <-received:
		assert.Equal(t, env.ID, got.ID)
		assert.Equal(t, "u1", got.Metadata.Attributes[models.AttrPartitionKey])
	case <-ctx.Done():
		t.Fatal("message not consumed")
	}

	stop()
	<-done
	require.NoError(t, consumer.Close())
}
