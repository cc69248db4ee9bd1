package broker

import (
	"context"
	"fmt"
	"time"

	"hush/internal/config"
	"hush/internal/logger"
	"hush/pkg/errors"
	"hush/pkg/metrics"
	"hush/pkg/models"
	"hush/pkg/retry"
)

const (
	attrDLQReason      = "dlq_reason"
	attrDLQSourceTopic = "dlq_source_topic"
	attrDLQTimestamp   = "dlq_timestamp"
)

// dispatcher runs a handler with retries and moves exhausted envelopes to
// the dead letter topic. Both broker types share it.
type dispatcher struct {
	policy      retry.Policy
	dlq         Producer
	dlqTopic    string
	serviceName string
	logger      logger.Logger
}

func newDispatcher(cfg config.RetryConfig, dlq Producer, dlqTopic string, log logger.Logger) *dispatcher {
	return &dispatcher{
		policy:      policyFrom(cfg),
		dlq:         dlq,
		dlqTopic:    dlqTopic,
		serviceName: "unknown",
		logger:      log,
	}
}

func policyFrom(cfg config.RetryConfig) retry.Policy {
	policy := retry.Policy{
		MaxAttempts:     3,
		InitialInterval: 1 * time.Second,
		MaxInterval:     30 * time.Second,
		Multiplier:      2.0,
	}

	if cfg.MaxAttempts > 0 {
		policy.MaxAttempts = cfg.MaxAttempts
	}
	if cfg.InitialInterval > 0 {
		policy.InitialInterval = cfg.InitialInterval
	}
	if cfg.MaxInterval > 0 {
		policy.MaxInterval = cfg.MaxInterval
	}
	if cfg.Multiplier > 0 {
		policy.Multiplier = cfg.Multiplier
	}
	if cfg.MaxElapsedTime > 0 {
		policy.MaxElapsedTime = cfg.MaxElapsedTime
	}
	return policy
}

// dispatch returns an error only when the handler failed for good and the
// envelope could not be parked either.
func (d *dispatcher) dispatch(ctx context.Context, envelope models.MessageEnvelope, topic string, handler HandlerFunc) error {
	err := d.processWithRetry(ctx, envelope, handler, topic)
	if err == nil {
		return nil
	}

	d.logger.ErrorwCtx(ctx, "Failed to process message after retries",
		"error", err,
		"topic", topic,
	)

	if d.dlq == nil || d.dlqTopic == "" {
		d.logger.WarnwCtx(ctx, "No DLQ configured, dropping message",
			"topic", topic,
			"message_id", envelope.ID,
		)
		return nil
	}

	if dlqErr := d.sendToDLQ(ctx, envelope, err, topic); dlqErr != nil {
		d.logger.ErrorwCtx(ctx, "Failed to send message to DLQ",
			"error", dlqErr,
			"topic", topic,
		)
		return dlqErr
	}
	return nil
}

func (d *dispatcher) processWithRetry(ctx context.Context, envelope models.MessageEnvelope, handler HandlerFunc, topic string) error {
	return retry.RetryWithCallback(ctx, d.policy, func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = errors.RecoverPanic(r)
				d.logger.ErrorwCtx(ctx, "Panic recovered during message processing",
					"error", err,
					"topic", topic,
				)
			}
		}()
		return handler(ctx, envelope)
	}, func(attempt int, err error, nextDelay time.Duration) {
		metrics.RetryAttemptsTotal.WithLabelValues(d.serviceName, topic).Inc()
		d.logger.WarnwCtx(ctx, "Retrying message processing",
			"attempt", attempt,
			"max_attempts", d.policy.MaxAttempts,
			"next_delay", nextDelay,
			"error", err,
			"topic", topic,
		)
	})
}

func (d *dispatcher) sendToDLQ(ctx context.Context, envelope models.MessageEnvelope, originalErr error, sourceTopic string) error {
	envelope.SetAttribute(attrDLQReason, originalErr.Error())
	envelope.SetAttribute(attrDLQSourceTopic, sourceTopic)
	envelope.SetAttribute(attrDLQTimestamp, time.Now().UTC().Format(time.RFC3339))

	if err := d.dlq.Publish(ctx, d.dlqTopic, envelope); err != nil {
		return fmt.Errorf("failed to publish to DLQ: %w", err)
	}

	metrics.DLQMessagesTotal.WithLabelValues(d.serviceName, sourceTopic, "max_retries_exceeded").Inc()
	d.logger.InfowCtx(ctx, "Message sent to DLQ",
		"source_topic", sourceTopic,
		"dlq_topic", d.dlqTopic,
		"reason", originalErr.Error(),
	)
	return nil
}
