package orchestrator

import (
	"context"

	"hush/pkg/metrics"
	"hush/pkg/models"
)

const (
	effectDedupRecord   = "dedup_record"
	effectDedupRelease  = "dedup_release"
	effectFatigueRecord = "fatigue_record"
	effectPublish       = "publish"
)

// applySideEffects writes history and hands the record on. It runs after the
// decision is final, detached from the caller's cancellation and bounded by
// its own timeout. Failures are logged and counted; the decision stands.
func (o *Orchestrator) applySideEffects(ctx context.Context, ev *evaluation, decision models.Decision) {
	ctx, cancel := o.sideEffectContext(ctx)
	defer cancel()

	if shouldRecordHistory(ev, decision) {
		if err := o.dedup.Record(ctx, ev.event, ev.dedup); err != nil {
			o.sideEffectFailed(ctx, effectDedupRecord, err)
		}
	} else {
		o.releaseClaim(ctx, ev)
	}

	if decision.Verdict == models.VerdictSendNow {
		if err := o.fatigue.Record(ctx, ev.event); err != nil {
			o.sideEffectFailed(ctx, effectFatigueRecord, err)
		}
	}

	if o.publisher != nil {
		record := models.DecisionRecord{Decision: decision, Event: *ev.event}
		if err := o.publisher.Publish(ctx, record); err != nil {
			o.sideEffectFailed(ctx, effectPublish, err)
		}
	}
}

func (o *Orchestrator) sideEffectContext(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx = context.WithoutCancel(ctx)
	if timeout := o.cfg.Orchestrator.SideEffectTimeout; timeout > 0 {
		return context.WithTimeout(ctx, timeout)
	}
	return ctx, func() {}
}

// releaseClaim frees the fingerprint claim of an event that leaves no
// history behind.
func (o *Orchestrator) releaseClaim(ctx context.Context, ev *evaluation) {
	if err := o.dedup.Release(ctx, ev.event, ev.dedup); err != nil {
		o.sideEffectFailed(ctx, effectDedupRelease, err)
	}
}

// shouldRecordHistory keeps suppressed noise out of the duplicate history.
// Non-duplicates that go out now or later are recorded; anything else only
// when the matched rule asks for it.
func shouldRecordHistory(ev *evaluation, decision models.Decision) bool {
	if !ev.dedupRan || ev.dedup.Fingerprint == "" {
		return false
	}
	if rule := ev.matchedRule(); rule != nil && rule.Spec.RecordHistory {
		return true
	}
	if ev.dedup.IsDuplicate() {
		return false
	}
	return decision.Verdict == models.VerdictSendNow || decision.Verdict == models.VerdictDefer
}

func (o *Orchestrator) sideEffectFailed(ctx context.Context, effect string, err error) {
	metrics.SideEffectErrorsTotal.WithLabelValues(effect).Inc()
	o.logger.WarnwCtx(ctx, "Post-decision side effect failed",
		"effect", effect,
		"error", err,
	)
}
