package config_handler

import (
	"context"

	"hush/internal/logger"
	"hush/pkg/models"
)

type ConfigReloader interface {
	ReloadRules(ctx context.Context) error
}

// Handler turns config update envelopes into rule reloads.
type Handler struct {
	expectedEventType string
	reloader          ConfigReloader
	logger            logger.Logger
}

func NewHandler(expectedEventType string, reloader ConfigReloader, log logger.Logger) *Handler {
	return &Handler{
		expectedEventType: expectedEventType,
		reloader:          reloader,
		logger:            log,
	}
}

// HandleConfigUpdateEvent ignores envelopes for other event types. A reload
// failure is returned so the broker can retry the signal.
func (h *Handler) HandleConfigUpdateEvent(ctx context.Context, envelope models.MessageEnvelope) error {
	if envelope.Type != "" && envelope.Type != models.MessageTypeConfigUpdate {
		return nil
	}

	var event models.ConfigUpdateEvent
	if err := envelope.DecodePayload(&event); err != nil {
		// Malformed signals are dropped; retrying cannot fix them.
		h.logger.WarnwCtx(ctx, "Failed to decode config event", "error", err, "id", envelope.ID)
		return nil
	}

	if event.EventType == "" {
		event.EventType = envelope.Metadata.Attributes["event_type"]
	}
	if event.EventType == "" {
		h.logger.WarnwCtx(ctx, "Config event missing event_type", "id", envelope.ID)
		return nil
	}

	if event.EventType != h.expectedEventType {
		return nil
	}

	h.logger.InfowCtx(ctx, "Received config update event",
		"event_type", event.EventType,
		"action", event.Action,
		"rule_id", event.RuleID,
		"version", event.Version,
	)

	if err := h.reloader.ReloadRules(ctx); err != nil {
		h.logger.ErrorwCtx(ctx, "Failed to reload rules after config update", "error", err)
		return err
	}

	h.logger.InfowCtx(ctx, "Rules reloaded after config update", "action", event.Action)
	return nil
}
