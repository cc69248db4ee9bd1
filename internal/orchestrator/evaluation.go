package orchestrator

import (
	"strings"
	"time"

	"hush/internal/deduplication"
	"hush/internal/rules"
	"hush/pkg/models"
)

// evaluation is the state of one Decide call. It is never shared.
type evaluation struct {
	event *models.NotificationEvent
	snap  *rules.Snapshot
	ec    models.EvaluationContext
	start time.Time

	state     models.State
	trace     []models.TraceStep
	fragments []string

	resolved     bool
	verdict      models.Verdict
	mechanism    models.Mechanism
	scheduledFor *time.Time
	confidence   *float64
	downgraded   bool

	dedupRan bool
	dedup    deduplication.Result

	ruleDone  bool
	ruleMatch rules.Verdict
}

func newEvaluation(event *models.NotificationEvent, snap *rules.Snapshot, start time.Time) *evaluation {
	e := &evaluation{
		event: event,
		snap:  snap,
		start: start,
		ec:    models.EvaluationContext{Duplicate: models.DuplicateNone},
	}
	e.step(models.StateReceived, "received")
	return e
}

// step records a transition. Its reason becomes one fragment of the final
// reason text.
func (e *evaluation) step(state models.State, reasons ...string) {
	e.state = state
	reason := strings.Join(nonEmpty(reasons), "; ")
	e.trace = append(e.trace, models.TraceStep{State: state, Reason: reason})
	if reason != "" && state != models.StateReceived {
		e.fragments = append(e.fragments, reason)
	}
}

func (e *evaluation) resolve(verdict models.Verdict, mechanism models.Mechanism) {
	e.resolved = true
	e.verdict = verdict
	e.mechanism = mechanism
}

func (e *evaluation) deferUntil(t time.Time) {
	e.scheduledFor = &t
}

func (e *evaluation) reason() string {
	return strings.Join(e.fragments, "; ")
}

func (e *evaluation) matchedRule() *rules.Rule {
	if e.mechanism != models.MechanismRule {
		return nil
	}
	return e.ruleMatch.Rule
}

func nonEmpty(in []string) []string {
	out := in[:0:0]
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
