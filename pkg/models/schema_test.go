package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validEvent() *NotificationEvent {
	return &NotificationEvent{
		ID:         "evt-1",
		UserID:     "u1",
		EventType:  "account_breach",
		Message:    "New login from an unknown device",
		Source:     "security",
		Priority:   PriorityCritical,
		Channel:    ChannelPush,
		ReceivedAt: time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
	}
}

func TestValidateEvent(t *testing.T) {
	before := time.Date(2026, 1, 1, 11, 0, 0, 0, time.UTC)
	after := time.Date(2026, 1, 1, 13, 0, 0, 0, time.UTC)

	tests := []struct {
		name      string
		mutate    func(e *NotificationEvent)
		wantField string
	}{
		{
			name:   "valid event",
			mutate: func(e *NotificationEvent) {},
		},
		{
			name:   "expiry after receipt",
			mutate: func(e *NotificationEvent) { e.ExpiresAt = &after },
		},
		{
			name:      "missing user",
			mutate:    func(e *NotificationEvent) { e.UserID = "" },
			wantField: "user_id",
		},
		{
			name:      "unknown priority",
			mutate:    func(e *NotificationEvent) { e.Priority = "urgent" },
			wantField: "priority",
		},
		{
			name:      "unknown channel",
			mutate:    func(e *NotificationEvent) { e.Channel = "fax" },
			wantField: "channel",
		},
		{
			name:      "missing received_at",
			mutate:    func(e *NotificationEvent) { e.ReceivedAt = time.Time{} },
			wantField: "received_at",
		},
		{
			name:      "expiry before receipt",
			mutate:    func(e *NotificationEvent) { e.ExpiresAt = &before },
			wantField: "expires_at",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			event := validEvent()
			tt.mutate(event)

			err := ValidateEvent(event)
			if tt.wantField == "" {
				assert.NoError(t, err)
				return
			}

			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.wantField, verr.Field)
		})
	}
}

func TestValidateEvent_Nil(t *testing.T) {
	err := ValidateEvent(nil)
	require.Error(t, err)
}

func TestNotificationEvent_IsExpired(t *testing.T) {
	now := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	event := validEvent()
	assert.False(t, event.IsExpired(now))

	past := now.Add(-time.Second)
	event.ExpiresAt = &past
	assert.True(t, event.IsExpired(now))

	future := now.Add(time.Minute)
	event.ExpiresAt = &future
	assert.False(t, event.IsExpired(now))
}

func TestParseVerdict(t *testing.T) {
	tests := map[string]Verdict{
		"SEND_NOW": VerdictSendNow,
		"NOW":      VerdictSendNow,
		"LATER":    VerdictDefer,
		"DEFER":    VerdictDefer,
		"NEVER":    VerdictSuppress,
		"SUPPRESS": VerdictSuppress,
	}
	for in, want := range tests {
		got, ok := ParseVerdict(in)
		assert.True(t, ok, in)
		assert.Equal(t, want, got, in)
	}

	_, ok := ParseVerdict("MAYBE")
	assert.False(t, ok)
}

func TestMessageEnvelopeBuilder(t *testing.T) {
	env, err := NewMessageEnvelopeBuilder().
		WithType(MessageTypeNotification).
		WithSource("api").
		WithPayload(validEvent()).
		WithAttribute("user_id", "u1").
		Build()
	require.NoError(t, err)

	assert.NotEmpty(t, env.ID)
	assert.False(t, env.Timestamp.IsZero())
	assert.Equal(t, "u1", env.Metadata.Attributes["user_id"])

	var decoded NotificationEvent
	require.NoError(t, env.DecodePayload(&decoded))
	assert.Equal(t, "evt-1", decoded.ID)
}

func TestMessageEnvelopeBuilder_PayloadError(t *testing.T) {
	_, err := NewMessageEnvelopeBuilder().WithPayload(make(chan int)).Build()
	assert.Error(t, err)
}
