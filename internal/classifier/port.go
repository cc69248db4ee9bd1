// Package classifier is the boundary to the secondary classification and
// embedding model. Every call through it is bounded by a deadline.
package classifier

import (
	"context"
	"fmt"

	"hush/internal/config"
	"hush/internal/constants"
	"hush/internal/logger"
	"hush/pkg/models"
)

// Port is implemented by model adapters. Implementations must honor ctx
// cancellation; callers enforce the deadline.
type Port interface {
	Classify(ctx context.Context, event *models.NotificationEvent, ec models.EvaluationContext) (models.ClassifierResult, error)
	Embed(ctx context.Context, text string) ([]float32, error)
}

// New returns the configured adapter wrapped in deadline and breaker
// enforcement, or nil when no classifier is configured.
func New(ctx context.Context, cfg config.ClassifierConfig, cb config.CircuitBreakerConfig, log logger.Logger) (*Bounded, error) {
	switch cfg.Provider {
	case constants.ClassifierProviderNone, "":
		return nil, nil
	case constants.ClassifierProviderGenAI:
		port, err := NewGenAIClassifier(ctx, cfg.GenAI)
		if err != nil {
			return nil, err
		}
		return NewBounded(port, cfg, cb, log), nil
	}
	return nil, fmt.Errorf("unknown classifier provider: %s", cfg.Provider)
}
