//go:build integration

package main

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/broker"
	"hush/internal/config"
	"hush/internal/logger"
	"hush/internal/testinfra"
	"hush/pkg/models"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

func TestPipeline_EventToDecision(t *testing.T) {
	brokers := testinfra.Kafka(t)
	dir := t.TempDir()

	rulesPath := filepath.Join(dir, "rules.yaml")
	require.NoError(t, os.WriteFile(rulesPath, []byte(testRules), 0o600))

	cfg, err := config.LoadConfig("")
	require.NoError(t, err)
	cfg.Server.Port = freePort(t)
	cfg.History.Backend = "memory"
	cfg.Rules.File = rulesPath
	cfg.Rules.Reload.Watch = false
	cfg.Broker.Type = "kafka"
	cfg.Broker.Kafka = config.KafkaConfig{Brokers: brokers, GroupID: "pipeline-test"}
	cfg.Broker.Topics.Input = "pipeline.events"
	cfg.Broker.Topics.Decisions = "pipeline.decisions"
	cfg.Broker.Topics.ConfigUpdate = ""

	ctx, cancel := context.WithTimeout(context.Background(), 90*time.Second)
	defer cancel()

	app := NewApp(cfg, logger.NopLogger())
	require.NoError(t, app.Initialize(ctx))

	runCtx, stop := context.WithCancel(ctx)
	runDone := make(chan error, 1)
	go func() { runDone <- app.Run(runCtx) }()
	t.Cleanup(func() {
		stop()
		<-runDone
		_ = app.Shutdown(context.Background())
	})

	event := models.NotificationEvent{
		ID:         "evt-pipeline-1",
		UserID:     "u1",
		EventType:  "promotion",
		Message:    "Spring sale",
		Priority:   models.PriorityLow,
		Channel:    models.ChannelEmail,
		ReceivedAt: time.Now().UTC(),
	}
	env, err := models.NewMessageEnvelopeBuilder().
		WithType(models.MessageTypeNotification).
		WithSource("pipeline-test").
		WithPayload(event).
		WithAttribute(models.AttrPartitionKey, event.UserID).
		Build()
	require.NoError(t, err)
	require.NoError(t, app.Producer.Publish(ctx, cfg.Broker.Topics.Input, *env))

	readerCfg := cfg.Broker
	readerCfg.Kafka.GroupID = "pipeline-reader"
	reader := broker.NewKafkaConsumer(readerCfg, logger.NopLogger())
	t.Cleanup(func() { _ = reader.Close() })

	records := make(chan models.DecisionRecord, 1)
	go func() {
		_ = reader.Consume(runCtx, cfg.Broker.Topics.Decisions, func(_ context.Context, m models.MessageEnvelope) error {
			var record models.DecisionRecord
			if err := m.DecodePayload(&record); err != nil {
				return err
			}
			if record.Decision.EventID == event.ID {
				records <- record
			}
			return nil
		})
	}()

	select {
	case record := <-records:
		assert.Equal(t, models.VerdictSuppress, record.Decision.Verdict)
		assert.Equal(t, models.MechanismRule, record.Decision.Mechanism)
		require.NotNil(t, record.Decision.MatchedRule)
		assert.Equal(t, "promo-suppression", *record.Decision.MatchedRule)
		assert.Equal(t, int64(2), record.Decision.RulesVersion)
	case <-ctx.Done():
		t.Fatal("timed out waiting for the decision record")
	}
}
