package models

import (
	"encoding/json"
	"time"
)

const (
	MessageTypeNotification = "notification.event"
	MessageTypeDecision     = "notification.decision"
	MessageTypeAudit        = "notification.audit"
	MessageTypeConfigUpdate = "config.update"
)

// AttrPartitionKey orders records on brokers that partition by key.
const AttrPartitionKey = "partition_key"

// MessageEnvelope wraps every payload that crosses the broker.
type MessageEnvelope struct {
	ID        string          `json:"id"`
	Type      string          `json:"type"`
	Source    string          `json:"source"`
	Timestamp time.Time       `json:"timestamp"`
	Payload   json.RawMessage `json:"payload"`
	Metadata  Metadata        `json:"metadata"`
}

type Metadata struct {
	TraceID    string            `json:"trace_id,omitempty"`
	Attributes map[string]string `json:"attributes,omitempty"`
}

func (m *MessageEnvelope) DecodePayload(v interface{}) error {
	return json.Unmarshal(m.Payload, v)
}

func (m *MessageEnvelope) SetAttribute(key, value string) {
	if m.Metadata.Attributes == nil {
		m.Metadata.Attributes = make(map[string]string)
	}
	m.Metadata.Attributes[key] = value
}
