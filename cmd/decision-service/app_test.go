package main

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/config"
	"hush/internal/logger"
	"hush/pkg/models"
	"hush/pkg/retry"
)

const testRules = `
version: 2
rules:
  - id: promo-suppression
    name: Promotional Suppression
    action: NEVER
    conditions:
      - field: event_type
        op: eq
        value: promotion
  - id: critical-security
    name: Critical Security Alert
    action: NOW
    override_fatigue: true
    conditions:
      - field: priority
        op: eq
        value: critical
`

func newTestApp(t *testing.T) *App {
	t.Helper()
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(testRules), 0o600))

	configPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(configPath, []byte(`
history:
  backend: memory
rules:
  provider: file
  file: `+rulesPath+`
  reload:
    watch: false
`), 0o600))

	cfg, err := config.LoadConfig(configPath)
	require.NoError(t, err)

	app := NewApp(cfg, logger.NopLogger())
	require.NoError(t, app.Initialize(context.Background()))
	t.Cleanup(func() { _ = app.Shutdown(context.Background()) })
	return app
}

func envelopeFor(t *testing.T, event models.NotificationEvent) models.MessageEnvelope {
	t.Helper()
	payload, err := json.Marshal(event)
	require.NoError(t, err)
	return models.MessageEnvelope{
		ID:        "msg-" + event.ID,
		Type:      models.MessageTypeNotification,
		Timestamp: time.Now().UTC(),
		Payload:   payload,
	}
}

func TestApp_InitializeWithoutBroker(t *testing.T) {
	app := newTestApp(t)

	assert.Nil(t, app.Producer)
	assert.Nil(t, app.Consumer)
	assert.Equal(t, int64(2), app.orchestrator.Snapshot().Version)
	assert.Len(t, app.orchestrator.Snapshot().Rules, 2)
}

func TestApp_HandleEvent(t *testing.T) {
	app := newTestApp(t)

	err := app.handleEvent(context.Background(), envelopeFor(t, models.NotificationEvent{
		ID:        "evt-1",
		UserID:    "u1",
		EventType: "promotion",
		Message:   "50% off",
		Priority:  models.PriorityLow,
		Channel:   models.ChannelEmail,
	}))
	assert.NoError(t, err)
}

func TestApp_HandleEvent_Fatal(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name string
		msg  models.MessageEnvelope
	}{
		{
			name: "undecodable payload",
			msg:  models.MessageEnvelope{ID: "bad", Type: models.MessageTypeNotification, Payload: json.RawMessage(`"nope"`)},
		},
		{
			name: "invalid event",
			msg: envelopeFor(t, models.NotificationEvent{
				ID:        "evt-2",
				EventType: "promotion",
				Priority:  models.PriorityLow,
				Channel:   models.ChannelEmail,
			}),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := app.handleEvent(context.Background(), tt.msg)
			require.Error(t, err)

			var fatal retry.FatalError
			require.True(t, errors.As(err, &fatal))
			assert.True(t, fatal.IsFatal())
		})
	}
}

func TestApp_HandleEvent_SkipsOtherTypes(t *testing.T) {
	app := newTestApp(t)

	err := app.handleEvent(context.Background(), models.MessageEnvelope{
		ID:      "cfg-1",
		Type:    models.MessageTypeConfigUpdate,
		Payload: json.RawMessage(`{}`),
	})
	assert.NoError(t, err)
}
