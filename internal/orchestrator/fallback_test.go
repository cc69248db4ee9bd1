package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	apperrors "hush/pkg/errors"
)

func TestFallbackTable_Complete(t *testing.T) {
	stages := []Stage{StageDedupHistory, StageEmbedding, StageFatigue, StageClassifier}
	kinds := []apperrors.Kind{apperrors.KindDependencyUnavailable, apperrors.KindTimeout}

	for _, stage := range stages {
		for _, kind := range kinds {
			fb, ok := fallbacks[fallbackKey{stage, kind}]
			if assert.True(t, ok, "missing fallback for %s/%s", stage, kind) {
				assert.NotEmpty(t, fb.Reason)
				assert.NotEmpty(t, fb.Behavior)
			}
		}
	}
}

func TestFallbackFor(t *testing.T) {
	tests := []struct {
		stage    Stage
		err      error
		behavior Behavior
		reason   string
	}{
		{StageClassifier, context.DeadlineExceeded, BehaviorDefaultVerdict, "classifier fallback: timeout"},
		{StageClassifier, apperrors.ErrTimeout, BehaviorDefaultVerdict, "classifier fallback: timeout"},
		{StageClassifier, apperrors.ErrDependencyUnavailable, BehaviorDefaultVerdict, "classifier fallback: unavailable"},
		{StageFatigue, errors.New("dial tcp: connection refused"), BehaviorConservative, "fatigue history unavailable"},
		{StageFatigue, fmt.Errorf("load: %w", context.DeadlineExceeded), BehaviorConservative, "fatigue history timeout"},
		{StageDedupHistory, errors.New("boom"), BehaviorSkip, "duplicate check skipped: history unavailable"},
		{StageEmbedding, apperrors.ErrTimeout, BehaviorSkip, "near-duplicate check skipped: embedding timeout"},
		// Kinds without an entry fall back to the unavailable row.
		{StageDedupHistory, apperrors.ErrValidation, BehaviorSkip, "duplicate check skipped: history unavailable"},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprintf("%s/%v", tt.stage, tt.err), func(t *testing.T) {
			fb := FallbackFor(tt.stage, tt.err)
			assert.Equal(t, tt.behavior, fb.Behavior)
			assert.Equal(t, tt.reason, fb.Reason)
		})
	}
}

func TestFallbackFor_ClassifierReasonsNameFallback(t *testing.T) {
	for key, fb := range fallbacks {
		if key.stage == StageClassifier {
			assert.Contains(t, fb.Reason, "fallback")
		}
	}
}
