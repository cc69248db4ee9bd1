package rules

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"hush/internal/logger"
	"hush/pkg/cel"
	"hush/pkg/metrics"
	"hush/pkg/models"
	"hush/pkg/tracing"
)

// Verdict is the outcome of one rule pass. Rule is nil when nothing
// matched.
type Verdict struct {
	Matched         bool
	Rule            *Rule
	PredicateErrors int
}

type Engine struct {
	logger logger.Logger
	now    func() time.Time
}

func NewEngine(log logger.Logger) *Engine {
	return &Engine{logger: log, now: time.Now}
}

func (e *Engine) WithClock(now func() time.Time) *Engine {
	e.now = now
	return e
}

// Evaluate walks snap in order and returns the first rule whose conditions
// all hold. A condition that fails to evaluate makes its rule not match.
// ec is received by value and is never modified. Every rule is visited
// regardless of ctx; callers hand in a context without a deadline.
func (e *Engine) Evaluate(ctx context.Context, snap *Snapshot, event *models.NotificationEvent, ec models.EvaluationContext) Verdict {
	ctx, span := tracing.GetTracer("rules").Start(ctx, "rules.evaluate")
	defer span.End()
	span.SetAttributes(
		attribute.Int64("rules.version", snap.Version),
		attribute.Int("rules.count", len(snap.Rules)),
	)

	vars := cel.Variables(event, ec, e.now())
	var verdict Verdict

	for _, rule := range snap.Rules {
		ok, err := e.matches(ctx, rule, vars)
		if err != nil {
			verdict.PredicateErrors++
			metrics.IncRulePredicateError(rule.ID())
			e.logger.WarnwCtx(ctx, "Rule condition failed to evaluate, skipping rule",
				"rule_id", rule.ID(),
				"rule_name", rule.Name(),
				"error", err,
			)
			continue
		}
		if !ok {
			continue
		}

		metrics.IncRuleMatch(rule.ID(), string(rule.Spec.Action))
		span.SetAttributes(attribute.String("rules.matched", rule.ID()))
		e.logger.DebugwCtx(ctx, "Rule matched",
			"rule_id", rule.ID(),
			"rule_name", rule.Name(),
			"action", rule.Spec.Action,
		)
		verdict.Matched = true
		verdict.Rule = rule
		return verdict
	}

	return verdict
}

func (e *Engine) matches(ctx context.Context, rule *Rule, vars map[string]interface{}) (bool, error) {
	for _, p := range rule.predicates {
		ok, err := p.eval(ctx, vars)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}
