package ruleset

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/pkg/models"
)

type capturingProducer struct {
	topic string
	sent  []models.MessageEnvelope
}

func (p *capturingProducer) Publish(_ context.Context, topic string, msg models.MessageEnvelope) error {
	p.topic = topic
	p.sent = append(p.sent, msg)
	return nil
}

func (p *capturingProducer) Close() error { return nil }

func TestNotifier_PublishRulesUpdated(t *testing.T) {
	producer := &capturingProducer{}
	n := NewNotifier(producer, "config_updates")
	at := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	n.now = func() time.Time { return at }

	require.NoError(t, n.PublishRulesUpdated(context.Background(), models.ActionUpdate, 9, "ops"))

	require.Len(t, producer.sent, 1)
	assert.Equal(t, "config_updates", producer.topic)

	env := producer.sent[0]
	assert.Equal(t, models.MessageTypeConfigUpdate, env.Type)
	assert.Equal(t, models.EventTypeRulesUpdated, env.Metadata.Attributes["event_type"])

	var event models.ConfigUpdateEvent
	require.NoError(t, env.DecodePayload(&event))
	assert.Equal(t, models.EventTypeRulesUpdated, event.EventType)
	assert.Equal(t, int64(9), event.Version)
	assert.Equal(t, "ops", event.ChangedBy)
	assert.True(t, at.Equal(event.Timestamp))
}

func TestNotifier_Disabled(t *testing.T) {
	assert.NoError(t, NewNotifier(nil, "config_updates").PublishRulesUpdated(context.Background(), models.ActionReload, 1, ""))

	producer := &capturingProducer{}
	assert.NoError(t, NewNotifier(producer, "").PublishRulesUpdated(context.Background(), models.ActionReload, 1, ""))
	assert.Empty(t, producer.sent)
}
