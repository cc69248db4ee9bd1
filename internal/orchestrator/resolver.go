package orchestrator

import (
	"fmt"

	"github.com/google/uuid"

	apperrors "hush/pkg/errors"
	"hush/pkg/metrics"
	"hush/pkg/models"
)

const reasonCriticalDowngrade = "critical downgrade-not-suppress"

// resolveSafety applies the critical-never-suppressed guarantee and fills a
// schedule for DEFER verdicts that do not carry one.
func (o *Orchestrator) resolveSafety(ev *evaluation) {
	var reasons []string

	if ev.verdict == models.VerdictSuppress && ev.event.Priority.IsCritical() {
		ev.verdict = models.VerdictDefer
		ev.downgraded = true
		ev.scheduledFor = nil
		metrics.CriticalDowngradesTotal.Inc()
		reasons = append(reasons, reasonCriticalDowngrade)
	}

	if ev.verdict == models.VerdictDefer {
		now := o.now()
		if ev.scheduledFor == nil || !ev.scheduledFor.After(now) {
			ev.deferUntil(now.Add(o.cfg.Orchestrator.DefaultDeferDelay))
		}
	} else {
		ev.scheduledFor = nil
	}

	ev.step(models.StateResolved, reasons...)
}

func (o *Orchestrator) buildDecision(ev *evaluation) models.Decision {
	d := models.Decision{
		ID:           o.newID(),
		EventID:      ev.event.ID,
		UserID:       ev.event.UserID,
		Verdict:      ev.verdict,
		Reason:       ev.reason(),
		Mechanism:    ev.mechanism,
		ScheduledFor: ev.scheduledFor,
		DecidedAt:    o.now(),
		RulesVersion: ev.snap.Version,
		Downgraded:   ev.downgraded,
		Trace:        ev.trace,
	}

	if rule := ev.matchedRule(); rule != nil {
		id := rule.ID()
		d.MatchedRule = &id
		d.MatchedRuleName = rule.Name()
	}
	if ev.confidence != nil {
		c := *ev.confidence
		d.ClassifierConfidence = &c
	}
	if ev.dedup.Kind == models.DuplicateNear {
		score := ev.dedup.Score
		d.Similarity = &score
		d.DigestKey = ev.dedup.DigestKey
	}

	return d
}

// checkInvariants reports a decision the resolver should never have
// produced.
func checkInvariants(event *models.NotificationEvent, d models.Decision) error {
	var problem string
	switch {
	case !d.Verdict.Valid():
		problem = fmt.Sprintf("unknown verdict %q", d.Verdict)
	case d.Verdict == models.VerdictSuppress && event.Priority.IsCritical():
		problem = "critical event suppressed"
	case d.Verdict == models.VerdictDefer && d.ScheduledFor == nil:
		problem = "deferred decision without schedule"
	case d.Verdict != models.VerdictDefer && d.ScheduledFor != nil:
		problem = "schedule set on non-deferred decision"
	case d.Reason == "":
		problem = "empty reason"
	case d.Mechanism == "":
		problem = "missing mechanism"
	default:
		return nil
	}

	return apperrors.ErrInvariantViolation.
		WithDetail("message", problem).
		WithDetail("event_id", event.ID).
		WithDetail("verdict", string(d.Verdict))
}

func newDecisionID() string {
	return uuid.NewString()
}
