package orchestrator

import (
	apperrors "hush/pkg/errors"
	"hush/pkg/metrics"
)

// Stage names a step that depends on something outside the process.
type Stage string

const (
	StageDedupHistory Stage = "dedup_history"
	StageEmbedding    Stage = "embedding"
	StageFatigue      Stage = "fatigue"
	StageClassifier   Stage = "classifier"
)

// Behavior is what the pipeline does instead of the failed step.
type Behavior string

const (
	// BehaviorSkip proceeds as if the step found nothing.
	BehaviorSkip Behavior = "skip"
	// BehaviorConservative defers the event unless it is high or critical
	// priority, in which case it proceeds as for BehaviorSkip.
	BehaviorConservative Behavior = "conservative"
	// BehaviorDefaultVerdict resolves to the configured fallback verdict.
	BehaviorDefaultVerdict Behavior = "default_verdict"
)

type Fallback struct {
	Behavior Behavior
	Reason   string
}

type fallbackKey struct {
	stage Stage
	kind  apperrors.Kind
}

// fallbacks is the complete degradation policy. Dependency failures never
// reach the caller; each one resolves through exactly one entry here.
var fallbacks = map[fallbackKey]Fallback{
	{StageDedupHistory, apperrors.KindDependencyUnavailable}: {BehaviorSkip, "duplicate check skipped: history unavailable"},
	{StageDedupHistory, apperrors.KindTimeout}:               {BehaviorSkip, "duplicate check skipped: history timeout"},
	{StageEmbedding, apperrors.KindDependencyUnavailable}:    {BehaviorSkip, "near-duplicate check skipped: embedding unavailable"},
	{StageEmbedding, apperrors.KindTimeout}:                  {BehaviorSkip, "near-duplicate check skipped: embedding timeout"},
	{StageFatigue, apperrors.KindDependencyUnavailable}:      {BehaviorConservative, "fatigue history unavailable"},
	{StageFatigue, apperrors.KindTimeout}:                    {BehaviorConservative, "fatigue history timeout"},
	{StageClassifier, apperrors.KindDependencyUnavailable}:   {BehaviorDefaultVerdict, "classifier fallback: unavailable"},
	{StageClassifier, apperrors.KindTimeout}:                 {BehaviorDefaultVerdict, "classifier fallback: timeout"},
}

// FallbackFor returns the entry for a failure at stage. Kinds without an
// entry of their own are handled as an unavailable dependency.
func FallbackFor(stage Stage, err error) Fallback {
	kind := apperrors.KindOf(err)
	fb, ok := fallbacks[fallbackKey{stage, kind}]
	if !ok {
		kind = apperrors.KindDependencyUnavailable
		fb = fallbacks[fallbackKey{stage, kind}]
	}
	metrics.IncFallback(string(stage), string(kind))
	return fb
}
