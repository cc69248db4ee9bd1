package ruleset

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"hush/internal/broker"
	"hush/internal/constants"
	"hush/pkg/models"
)

// Notifier publishes the push signal that makes running instances reload
// their rules ahead of the next poll.
type Notifier struct {
	producer broker.Producer
	topic    string
	now      func() time.Time
}

func NewNotifier(producer broker.Producer, topic string) *Notifier {
	return &Notifier{
		producer: producer,
		topic:    topic,
		now:      time.Now,
	}
}

// PublishRulesUpdated is a no-op without a producer or topic.
func (n *Notifier) PublishRulesUpdated(ctx context.Context, action string, version int64, changedBy string) error {
	if n.producer == nil || n.topic == "" {
		return nil
	}

	event := models.ConfigUpdateEvent{
		EventType: models.EventTypeRulesUpdated,
		Action:    action,
		Version:   version,
		Timestamp: n.now().UTC(),
		ChangedBy: changedBy,
	}

	envelope, err := models.NewMessageEnvelopeBuilder().
		WithID(uuid.NewString()).
		WithType(models.MessageTypeConfigUpdate).
		WithSource(constants.ServiceName).
		WithTimestamp(event.Timestamp).
		WithPayload(event).
		WithAttribute("event_type", event.EventType).
		Build()
	if err != nil {
		return fmt.Errorf("failed to build config event: %w", err)
	}

	return n.producer.Publish(ctx, n.topic, *envelope)
}
