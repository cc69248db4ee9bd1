// Package orchestrator turns a notification event into a SEND_NOW, DEFER or
// SUPPRESS decision with a reason that traces every step taken.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hush/internal/config"
	"hush/internal/constants"
	"hush/internal/deduplication"
	"hush/internal/fatigue"
	"hush/internal/logger"
	"hush/internal/rules"
	apperrors "hush/pkg/errors"
	"hush/pkg/logging"
	"hush/pkg/metrics"
	"hush/pkg/models"
	"hush/pkg/tracing"
)

// Classifier is the bounded secondary classifier. Implementations return a
// TIMEOUT or DEPENDENCY_UNAVAILABLE error instead of blocking past ctx.
type Classifier interface {
	Classify(ctx context.Context, event *models.NotificationEvent, ec models.EvaluationContext) (models.ClassifierResult, error)
}

// Publisher receives every decision record once side effects are done.
type Publisher interface {
	Publish(ctx context.Context, record models.DecisionRecord) error
}

type Config struct {
	Orchestrator        config.OrchestratorConfig
	FallbackVerdict     models.Verdict
	NearDuplicatePolicy string
	NearDuplicateWindow time.Duration
}

// ConfigFrom collects the settings the orchestrator reads from the service
// configuration.
func ConfigFrom(cfg *config.Config) Config {
	fallback, ok := models.ParseVerdict(cfg.Classifier.FallbackVerdict)
	if !ok {
		fallback = models.VerdictDefer
	}
	return Config{
		Orchestrator:        cfg.Orchestrator,
		FallbackVerdict:     fallback,
		NearDuplicatePolicy: cfg.Deduplication.NearDuplicate.Policy,
		NearDuplicateWindow: cfg.Deduplication.NearDuplicate.Window,
	}
}

type Orchestrator struct {
	holder     *rules.Holder
	rules      *rules.Engine
	dedup      *deduplication.Engine
	fatigue    *fatigue.Tracker
	classifier Classifier
	publisher  Publisher
	cfg        Config
	logger     logger.Logger
	now        func() time.Time
	newID      func() string
}

type Option func(*Orchestrator)

// WithClassifier enables the classifier stage. Without one, undecided
// events take the classifier fallback.
func WithClassifier(c Classifier) Option {
	return func(o *Orchestrator) { o.classifier = c }
}

func WithPublisher(p Publisher) Option {
	return func(o *Orchestrator) { o.publisher = p }
}

func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) { o.now = now }
}

func WithIDGenerator(newID func() string) Option {
	return func(o *Orchestrator) { o.newID = newID }
}

func New(holder *rules.Holder, engine *rules.Engine, dedup *deduplication.Engine, tracker *fatigue.Tracker, cfg Config, log logger.Logger, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		holder:  holder,
		rules:   engine,
		dedup:   dedup,
		fatigue: tracker,
		cfg:     cfg,
		logger:  log,
		now:     time.Now,
		newID:   newDecisionID,
	}
	for _, opt := range opts {
		opt(o)
	}
	if !o.cfg.FallbackVerdict.Valid() {
		o.cfg.FallbackVerdict = models.VerdictDefer
	}
	return o
}

// Snapshot returns the rule snapshot new evaluations bind to.
func (o *Orchestrator) Snapshot() *rules.Snapshot {
	return o.holder.Load()
}

// Decide evaluates one event. A malformed event is rejected with a
// VALIDATION_ERROR and no decision. Dependency failures never surface as
// errors; they resolve through the fallback table. The only other error is
// an INVARIANT_VIOLATION, returned together with the offending decision.
func (o *Orchestrator) Decide(ctx context.Context, event *models.NotificationEvent) (models.Decision, error) {
	if err := models.ValidateEvent(event); err != nil {
		metrics.DecisionRejectionsTotal.WithLabelValues("validation").Inc()
		var verr *models.ValidationError
		appErr := apperrors.ErrValidation.WithCause(err)
		if errors.As(err, &verr) {
			appErr = appErr.WithDetail("field", verr.Field).WithDetail("message", verr.Message)
		}
		return models.Decision{}, appErr
	}

	ctx = logging.WithEventID(ctx, event.ID)
	ctx = logging.WithUserID(ctx, event.UserID)
	ctx, span := tracing.GetTracer("decision-service").Start(ctx, "orchestrator.decide")
	defer span.End()

	budgetCtx := ctx
	if o.cfg.Orchestrator.Budget > 0 {
		var cancel context.CancelFunc
		budgetCtx, cancel = context.WithTimeout(ctx, o.cfg.Orchestrator.Budget)
		defer cancel()
	}

	ev := newEvaluation(event, o.holder.Load(), o.now())
	o.run(budgetCtx, ev)
	o.resolveSafety(ev)

	decision := o.buildDecision(ev)
	elapsed := time.Since(ev.start)

	span.SetAttributes(
		attribute.String("decision.verdict", string(decision.Verdict)),
		attribute.String("decision.mechanism", string(decision.Mechanism)),
		attribute.Int64("rules.version", decision.RulesVersion),
	)

	if err := checkInvariants(event, decision); err != nil {
		metrics.InvariantViolationsTotal.Inc()
		span.RecordError(err)
		o.logger.ErrorwCtx(ctx, "Decision invariant violated",
			"error", err,
			"verdict", decision.Verdict,
			"reason", decision.Reason,
		)
		releaseCtx, cancel := o.sideEffectContext(ctx)
		o.releaseClaim(releaseCtx, ev)
		cancel()
		return decision, err
	}

	metrics.ObserveDecision(string(decision.Verdict), string(decision.Mechanism), elapsed)
	o.logger.InfowCtx(ctx, "Decision made",
		"decision_id", decision.ID,
		"verdict", decision.Verdict,
		"mechanism", decision.Mechanism,
		"reason", decision.Reason,
		"elapsed_ms", elapsed.Milliseconds(),
	)

	o.applySideEffects(ctx, ev, decision)
	return decision, nil
}

// run walks the state machine until a stage resolves the event.
func (o *Orchestrator) run(ctx context.Context, ev *evaluation) {
	stages := []struct {
		name string
		fn   func(context.Context, *evaluation)
	}{
		{"expiry", o.checkExpiry},
		{"deduplication", o.checkDuplicates},
		{"fatigue", o.checkFatigue},
		{"rules", o.evaluateRules},
		{"classifier", o.invokeClassifier},
	}

	for _, stage := range stages {
		start := time.Now()
		stage.fn(ctx, ev)
		metrics.ObserveStage(stage.name, time.Since(start))
		if ev.resolved {
			return
		}
	}
}

func (o *Orchestrator) checkExpiry(_ context.Context, ev *evaluation) {
	if ev.event.IsExpired(o.now()) {
		ev.resolve(models.VerdictSuppress, models.MechanismExpiry)
		ev.step(models.StateExpiryChecked, "stale: expired before evaluation")
		return
	}
	ev.step(models.StateExpiryChecked, "not expired")
}

func (o *Orchestrator) checkDuplicates(ctx context.Context, ev *evaluation) {
	res := o.dedup.Check(ctx, ev.event)
	ev.dedupRan = true
	ev.dedup = res
	ev.ec.Duplicate = res.Kind

	var notes []string
	for _, failure := range []struct {
		stage Stage
		err   error
	}{
		{StageDedupHistory, res.HistoryErr},
		{StageEmbedding, res.EmbeddingErr},
	} {
		if failure.err == nil {
			continue
		}
		reason, resolved := o.degrade(ev, failure.stage, failure.err, models.MechanismHistoryFallback)
		notes = append(notes, reason)
		if resolved {
			ev.step(models.StateDeduplicated, notes...)
			return
		}
	}

	switch res.Kind {
	case models.DuplicateExact:
		ev.resolve(models.VerdictSuppress, models.MechanismExactDuplicate)
		notes = append(notes, "exact duplicate")

	case models.DuplicateNear:
		score := res.Score
		ev.ec.Similarity = &score
		note := fmt.Sprintf("near-duplicate (similarity %.2f)", score)

		switch {
		case res.DigestKey != "":
			ev.resolve(models.VerdictDefer, models.MechanismDigest)
			ev.deferUntil(res.DigestAt)
			note += " merged into digest " + res.DigestKey
		case o.cfg.NearDuplicatePolicy == constants.NearDuplicatePolicyDefer:
			ev.resolve(models.VerdictDefer, models.MechanismNearDuplicate)
			ev.deferUntil(o.now().Add(o.cfg.NearDuplicateWindow))
		default:
			ev.resolve(models.VerdictSuppress, models.MechanismNearDuplicate)
		}
		notes = append(notes, note)

	default:
		if len(notes) == 0 {
			notes = append(notes, "no duplicate")
		}
	}

	ev.step(models.StateDeduplicated, notes...)
}

// checkFatigue loads the user's counters, then matches rules against them
// so that a rule with override_fatigue can bypass the caps. The rule match
// is kept for the next stage.
func (o *Orchestrator) checkFatigue(ctx context.Context, ev *evaluation) {
	var notes []string
	loadErr := o.fatigue.Load(ctx, ev.event, &ev.ec)

	if match := o.matchRules(ctx, ev); match.Matched && match.Rule.Spec.OverrideFatigue {
		if loadErr != nil {
			notes = append(notes, FallbackFor(StageFatigue, loadErr).Reason)
		}
		notes = append(notes, "fatigue override by rule "+match.Rule.Name())
		ev.step(models.StateFatigueChecked, notes...)
		return
	}

	if loadErr != nil {
		reason, resolved := o.degrade(ev, StageFatigue, loadErr, models.MechanismFatigue)
		notes = append(notes, reason)
		if resolved {
			ev.step(models.StateFatigueChecked, notes...)
			return
		}
	}

	verdict := o.fatigue.Evaluate(ev.event, ev.ec)
	if verdict.Exceeded {
		ev.resolve(models.VerdictDefer, models.MechanismFatigue)
		if resetAt, err := o.fatigue.ResetAt(ctx, ev.event, verdict.Scope); err == nil && !resetAt.IsZero() {
			ev.deferUntil(resetAt)
		}
		notes = append(notes, fmt.Sprintf("fatigue cap exceeded (%s)", verdict.Scope))
	} else {
		notes = append(notes, "fatigue ok")
	}

	ev.step(models.StateFatigueChecked, notes...)
}

// matchRules runs the rule pass once per evaluation. Rules are evaluated in
// memory and are not bounded by the evaluation budget, so a stage that used
// up the budget waiting on history cannot drop a matching rule.
func (o *Orchestrator) matchRules(ctx context.Context, ev *evaluation) rules.Verdict {
	if !ev.ruleDone {
		ev.ruleMatch = o.rules.Evaluate(context.WithoutCancel(ctx), ev.snap, ev.event, ev.ec)
		ev.ruleDone = true
	}
	return ev.ruleMatch
}

func (o *Orchestrator) evaluateRules(ctx context.Context, ev *evaluation) {
	match := o.matchRules(ctx, ev)
	if !match.Matched {
		ev.step(models.StateRuleEvaluated, "no rule matched")
		return
	}

	rule := match.Rule
	ev.resolve(rule.Verdict, models.MechanismRule)
	if rule.Verdict == models.VerdictDefer {
		ev.deferUntil(rule.DeferUntil(o.now(), o.cfg.Orchestrator.DefaultDeferDelay))
	}
	ev.step(models.StateRuleEvaluated, "matched rule "+rule.Name())
}

func (o *Orchestrator) invokeClassifier(ctx context.Context, ev *evaluation) {
	if o.classifier == nil {
		o.classifierFallback(ev, apperrors.ErrDependencyUnavailable.WithDetail("message", "classifier not configured"))
		return
	}

	res, err := o.classifier.Classify(ctx, ev.event, ev.ec)
	if err != nil {
		o.classifierFallback(ev, err)
		return
	}

	ev.ec.Classifier = &res
	confidence := res.Confidence
	ev.confidence = &confidence
	ev.resolve(res.Verdict, models.MechanismClassifier)
	ev.step(models.StateClassifierInvoked, fmt.Sprintf("classifier: %.2f", res.Confidence))
}

// classifierFallback applies the classifier's fallback. Nothing runs after
// this stage, so an entry that leaves the event open still ends in the
// fallback verdict.
func (o *Orchestrator) classifierFallback(ev *evaluation, err error) {
	reason, resolved := o.degrade(ev, StageClassifier, err, models.MechanismClassifierFallback)
	if !resolved {
		ev.resolve(o.cfg.FallbackVerdict, models.MechanismClassifierFallback)
	}
	ev.step(models.StateClassifierInvoked, reason)
}

// degrade applies the fallback table entry for a failure at stage and
// returns its reason. resolved reports whether the entry decided the event,
// in which case mechanism is recorded as the deciding one.
func (o *Orchestrator) degrade(ev *evaluation, stage Stage, err error, mechanism models.Mechanism) (reason string, resolved bool) {
	fb := FallbackFor(stage, err)
	switch fb.Behavior {
	case BehaviorConservative:
		if ev.event.Priority.IsUrgent() {
			return fb.Reason, false
		}
		ev.resolve(models.VerdictDefer, mechanism)
		return fb.Reason, true
	case BehaviorDefaultVerdict:
		ev.resolve(o.cfg.FallbackVerdict, mechanism)
		return fb.Reason, true
	default:
		return fb.Reason, false
	}
}
