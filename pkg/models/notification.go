package models

import "time"

type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

func (p Priority) IsCritical() bool {
	return p == PriorityCritical
}

// IsUrgent reports whether the priority is high or critical.
func (p Priority) IsUrgent() bool {
	return p == PriorityHigh || p == PriorityCritical
}

func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

type Channel string

const (
	ChannelPush  Channel = "push"
	ChannelEmail Channel = "email"
	ChannelSMS   Channel = "sms"
	ChannelInApp Channel = "in_app"
)

var Channels = []Channel{ChannelPush, ChannelEmail, ChannelSMS, ChannelInApp}

func (c Channel) Valid() bool {
	for _, known := range Channels {
		if c == known {
			return true
		}
	}
	return false
}

// NotificationEvent is the normalized input of one decision. It is never
// mutated once it enters the orchestrator.
type NotificationEvent struct {
	ID         string                 `json:"id" validate:"required,max=128"`
	UserID     string                 `json:"user_id" validate:"required,max=128"`
	EventType  string                 `json:"event_type" validate:"required,max=128"`
	Message    string                 `json:"message" validate:"max=8192"`
	Source     string                 `json:"source" validate:"max=128"`
	Priority   Priority               `json:"priority" validate:"required,oneof=low medium high critical"`
	Channel    Channel                `json:"channel" validate:"required,oneof=push email sms in_app"`
	ReceivedAt time.Time              `json:"received_at"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	DedupeKey  string                 `json:"dedupe_key,omitempty" validate:"max=256"`
	Metadata   map[string]interface{} `json:"metadata,omitempty"`
}

// IsExpired reports whether expires_at is set and not after now.
func (e *NotificationEvent) IsExpired(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}

// EvaluationContext is derived per evaluation and never shared between
// events. The rule engine only ever receives it by value.
type EvaluationContext struct {
	DoNotDisturb      bool       `json:"do_not_disturb"`
	OptedOutChannels  []Channel  `json:"opted_out_channels,omitempty"`
	ChannelCount1h    int64      `json:"channel_count_1h"`
	RecentCount1h     int64      `json:"recent_count_1h"`
	RecentCountWindow int64      `json:"recent_count_window"`
	LastSentAt        *time.Time `json:"last_sent_at,omitempty"`
	InCooldown        bool       `json:"in_cooldown"`

	// HistoryUnavailable is set when the counters above could not be loaded
	// and hold zero values.
	HistoryUnavailable bool `json:"history_unavailable"`

	Duplicate  DuplicateKind     `json:"duplicate"`
	Similarity *float64          `json:"similarity,omitempty"`
	Classifier *ClassifierResult `json:"classifier,omitempty"`
}

func (c EvaluationContext) OptedOut(channel Channel) bool {
	for _, ch := range c.OptedOutChannels {
		if ch == channel {
			return true
		}
	}
	return false
}

type DuplicateKind string

const (
	DuplicateNone  DuplicateKind = "none"
	DuplicateExact DuplicateKind = "exact"
	DuplicateNear  DuplicateKind = "near"
)

type ClassifierResult struct {
	Verdict    Verdict `json:"verdict"`
	Confidence float64 `json:"confidence"`
}
