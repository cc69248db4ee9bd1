package sink

import (
	"context"
	"fmt"

	"hush/internal/broker"
	"hush/internal/constants"
	"hush/pkg/logging"
	"hush/pkg/models"
)

// BrokerSink publishes records as envelopes on one topic. Decision topics
// carry the full record; audit topics carry an AuditEntry.
type BrokerSink struct {
	producer    broker.Producer
	topic       string
	messageType string
}

func NewDecisionSink(producer broker.Producer, topic string) *BrokerSink {
	return &BrokerSink{producer: producer, topic: topic, messageType: models.MessageTypeDecision}
}

func NewBrokerAuditSink(producer broker.Producer, topic string) *BrokerSink {
	return &BrokerSink{producer: producer, topic: topic, messageType: models.MessageTypeAudit}
}

func (s *BrokerSink) Name() string {
	return "broker:" + s.topic
}

func (s *BrokerSink) Publish(ctx context.Context, record models.DecisionRecord) error {
	var payload interface{} = record
	if s.messageType == models.MessageTypeAudit {
		payload = NewAuditEntry(record)
	}

	env, err := models.NewMessageEnvelopeBuilder().
		WithType(s.messageType).
		WithSource(constants.ServiceName).
		WithPayload(payload).
		WithTraceID(logging.GetTraceID(ctx)).
		WithAttribute(models.AttrPartitionKey, record.Decision.UserID).
		WithAttribute("verdict", string(record.Decision.Verdict)).
		WithAttribute("event_id", record.Decision.EventID).
		Build()
	if err != nil {
		return fmt.Errorf("build envelope: %w", err)
	}

	return s.producer.Publish(ctx, s.topic, *env)
}
