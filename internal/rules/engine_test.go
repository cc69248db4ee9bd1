package rules

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/internal/logger"
	"hush/pkg/cel"
	"hush/pkg/models"
)

func newEvaluator(t *testing.T) *cel.Evaluator {
	t.Helper()
	eval, err := cel.NewEvaluator()
	require.NoError(t, err)
	return eval
}

func compile(t *testing.T, set models.RuleSet) *Snapshot {
	t.Helper()
	snap, err := Compile(set, newEvaluator(t))
	require.NoError(t, err)
	return snap
}

func exampleRules() models.RuleSet {
	return models.RuleSet{
		Version: 3,
		Rules: []models.RuleSpec{
			{
				ID:   "critical-security",
				Name: "Critical Security Alert",
				Conditions: []models.Condition{
					{Op: models.OpExpr, Expr: `event_type.startsWith("account_")`},
					{Field: "priority", Op: models.OpEq, Value: "critical"},
				},
				Action:          models.RuleActionNow,
				OverrideFatigue: true,
			},
			{
				ID:   "promo-suppression",
				Name: "Promotional Suppression",
				Conditions: []models.Condition{
					{Field: "event_type", Op: models.OpEq, Value: "promo"},
					{Field: "recent_count_1h", Op: models.OpGte, Value: 3},
				},
				Action: models.RuleActionNever,
			},
		},
	}
}

func TestEngine_Evaluate(t *testing.T) {
	snap := compile(t, exampleRules())
	engine := NewEngine(logger.NopLogger())

	tests := []struct {
		name    string
		event   models.NotificationEvent
		ec      models.EvaluationContext
		matched string
	}{
		{
			name:    "security alert",
			event:   models.NotificationEvent{UserID: "u1", EventType: "account_breach", Priority: models.PriorityCritical, Channel: models.ChannelPush},
			ec:      models.EvaluationContext{RecentCount1h: 50},
			matched: "critical-security",
		},
		{
			name:    "promo over threshold",
			event:   models.NotificationEvent{UserID: "u2", EventType: "promo", Priority: models.PriorityLow, Channel: models.ChannelEmail},
			ec:      models.EvaluationContext{RecentCount1h: 3},
			matched: "promo-suppression",
		},
		{
			name:  "promo under threshold",
			event: models.NotificationEvent{UserID: "u2", EventType: "promo", Priority: models.PriorityLow, Channel: models.ChannelEmail},
			ec:    models.EvaluationContext{RecentCount1h: 2},
		},
		{
			name:  "account event not critical",
			event: models.NotificationEvent{UserID: "u1", EventType: "account_login", Priority: models.PriorityHigh, Channel: models.ChannelPush},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := engine.Evaluate(context.Background(), snap, &tt.event, tt.ec)
			if tt.matched == "" {
				assert.False(t, v.Matched)
				assert.Nil(t, v.Rule)
				return
			}
			require.True(t, v.Matched)
			assert.Equal(t, tt.matched, v.Rule.ID())
		})
	}
}

func TestEngine_FirstMatchWins(t *testing.T) {
	snap := compile(t, models.RuleSet{
		Version: 1,
		Rules: []models.RuleSpec{
			{
				ID:         "broad",
				Conditions: []models.Condition{{Field: "channel", Op: models.OpIn, Value: []interface{}{"push", "sms"}}},
				Action:     models.RuleActionLater,
			},
			{
				ID: "specific",
				Conditions: []models.Condition{
					{Field: "channel", Op: models.OpEq, Value: "push"},
					{Field: "event_type", Op: models.OpEq, Value: "promo"},
					{Field: "source", Op: models.OpEq, Value: "marketing"},
				},
				Action: models.RuleActionNever,
			},
		},
	})

	event := &models.NotificationEvent{EventType: "promo", Source: "marketing", Channel: models.ChannelPush, Priority: models.PriorityLow}
	v := NewEngine(logger.NopLogger()).Evaluate(context.Background(), snap, event, models.EvaluationContext{})

	require.True(t, v.Matched)
	assert.Equal(t, "broad", v.Rule.ID())
	assert.Equal(t, models.VerdictDefer, v.Rule.Verdict)
}

func TestEngine_PredicateErrorSkipsRule(t *testing.T) {
	snap := compile(t, models.RuleSet{
		Version: 1,
		Rules: []models.RuleSpec{
			{
				ID:         "bad-metadata",
				Conditions: []models.Condition{{Op: models.OpExpr, Expr: `metadata.tier == "gold"`}},
				Action:     models.RuleActionNever,
			},
			{
				ID:         "string-compare",
				Conditions: []models.Condition{{Field: "metadata.score", Op: models.OpGt, Value: 5}},
				Action:     models.RuleActionNever,
			},
			{
				ID:         "fallthrough",
				Conditions: []models.Condition{{Field: "priority", Op: models.OpNeq, Value: "critical"}},
				Action:     models.RuleActionNow,
			},
		},
	})

	event := &models.NotificationEvent{Priority: models.PriorityLow, Channel: models.ChannelPush, Metadata: map[string]interface{}{"score": "high"}}
	v := NewEngine(logger.NopLogger()).Evaluate(context.Background(), snap, event, models.EvaluationContext{})

	require.True(t, v.Matched)
	assert.Equal(t, "fallthrough", v.Rule.ID())
	assert.Equal(t, 2, v.PredicateErrors)
}

func TestEngine_DetachedFromDeadline(t *testing.T) {
	snap := compile(t, exampleRules())
	ctx, cancel := context.WithTimeout(context.Background(), time.Nanosecond)
	defer cancel()
	<-ctx.Done()

	event := &models.NotificationEvent{EventType: "promo", Priority: models.PriorityLow}
	v := NewEngine(logger.NopLogger()).Evaluate(context.WithoutCancel(ctx), snap, event, models.EvaluationContext{RecentCount1h: 9})

	require.True(t, v.Matched)
	assert.Equal(t, "promo-suppression", v.Rule.ID())
}

func TestConditions(t *testing.T) {
	vars := cel.Variables(&models.NotificationEvent{
		EventType: "promo",
		Priority:  models.PriorityMedium,
		Channel:   models.ChannelSMS,
		Metadata:  map[string]interface{}{"campaign": "spring", "attempt": 2},
	}, models.EvaluationContext{ChannelCount1h: 4, DoNotDisturb: true}, time.Now())

	tests := []struct {
		name string
		cond models.Condition
		want bool
	}{
		{"eq string", models.Condition{Field: "channel", Op: models.OpEq, Value: "sms"}, true},
		{"neq string", models.Condition{Field: "channel", Op: models.OpNeq, Value: "sms"}, false},
		{"eq bool", models.Condition{Field: "do_not_disturb", Op: models.OpEq, Value: true}, true},
		{"in", models.Condition{Field: "priority", Op: models.OpIn, Value: []interface{}{"low", "medium"}}, true},
		{"not in", models.Condition{Field: "priority", Op: models.OpNotIn, Value: []interface{}{"low", "medium"}}, false},
		{"gt int counter", models.Condition{Field: "channel_count_1h", Op: models.OpGt, Value: 3}, true},
		{"lte float counter", models.Condition{Field: "channel_count_1h", Op: models.OpLte, Value: 3.5}, false},
		{"metadata eq", models.Condition{Field: "metadata.campaign", Op: models.OpEq, Value: "spring"}, true},
		{"metadata numeric eq", models.Condition{Field: "metadata.attempt", Op: models.OpEq, Value: 2.0}, true},
		{"metadata lt", models.Condition{Field: "metadata.attempt", Op: models.OpLt, Value: 3}, true},
		{"missing metadata eq", models.Condition{Field: "metadata.absent", Op: models.OpEq, Value: "x"}, false},
		{"missing metadata neq", models.Condition{Field: "metadata.absent", Op: models.OpNeq, Value: "x"}, true},
		{"similarity unset", models.Condition{Field: "similarity", Op: models.OpLt, Value: 0}, true},
	}

	eval := newEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := compileCondition(tt.cond, eval)
			require.NoError(t, err)
			got, err := p.eval(context.Background(), vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Rejects(t *testing.T) {
	valid := models.Condition{Field: "channel", Op: models.OpEq, Value: "push"}

	tests := []struct {
		name  string
		rules []models.RuleSpec
	}{
		{"missing id", []models.RuleSpec{{Conditions: []models.Condition{valid}, Action: models.RuleActionNow}}},
		{"duplicate id", []models.RuleSpec{
			{ID: "a", Conditions: []models.Condition{valid}, Action: models.RuleActionNow},
			{ID: "a", Conditions: []models.Condition{valid}, Action: models.RuleActionNever},
		}},
		{"bad action", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{valid}, Action: "MAYBE"}}},
		{"no conditions", []models.RuleSpec{{ID: "a", Action: models.RuleActionNow}}},
		{"unknown field", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{{Field: "mood", Op: models.OpEq, Value: "x"}}, Action: models.RuleActionNow}}},
		{"unknown op", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{{Field: "channel", Op: "like", Value: "x"}}, Action: models.RuleActionNow}}},
		{"value type", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{{Field: "recent_count_1h", Op: models.OpEq, Value: "three"}}, Action: models.RuleActionNow}}},
		{"compare string field", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{{Field: "channel", Op: models.OpGt, Value: 1}}, Action: models.RuleActionNow}}},
		{"empty in", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{{Field: "channel", Op: models.OpIn, Value: []interface{}{}}}, Action: models.RuleActionNow}}},
		{"bad expr", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{{Op: models.OpExpr, Expr: "recent_count_1h +"}}, Action: models.RuleActionNow}}},
		{"bad defer", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{valid}, Action: models.RuleActionLater, Defer: &models.DeferPolicy{Mode: models.DeferModeDelay, Delay: "soon"}}}},
		{"unknown defer mode", []models.RuleSpec{{ID: "a", Conditions: []models.Condition{valid}, Action: models.RuleActionLater, Defer: &models.DeferPolicy{Mode: "tomorrow"}}}},
	}

	eval := newEvaluator(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Compile(models.RuleSet{Version: 1, Rules: tt.rules}, eval)
			assert.Error(t, err)
		})
	}
}

func TestRule_DeferUntil(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 20, 0, 0, time.UTC)
	cond := []models.Condition{{Field: "channel", Op: models.OpEq, Value: "push"}}

	snap := compile(t, models.RuleSet{Version: 1, Rules: []models.RuleSpec{
		{ID: "default", Conditions: cond, Action: models.RuleActionLater},
		{ID: "delay", Conditions: cond, Action: models.RuleActionLater, Defer: &models.DeferPolicy{Mode: models.DeferModeDelay, Delay: "45m"}},
		{ID: "next-hour", Conditions: cond, Action: models.RuleActionLater, Defer: &models.DeferPolicy{Mode: models.DeferModeNextHour}},
	}})

	assert.Equal(t, now.Add(15*time.Minute), snap.Rules[0].DeferUntil(now, 15*time.Minute))
	assert.Equal(t, now.Add(45*time.Minute), snap.Rules[1].DeferUntil(now, 15*time.Minute))
	assert.Equal(t, time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC), snap.Rules[2].DeferUntil(now, 15*time.Minute))
}

func TestHolder_SwapForwardOnly(t *testing.T) {
	h := NewHolder(nil)
	assert.Equal(t, int64(0), h.Load().Version)

	assert.True(t, h.Swap(&Snapshot{Version: 2}))
	assert.False(t, h.Swap(&Snapshot{Version: 1}), "older version must not replace newer")
	assert.False(t, h.Swap(&Snapshot{Version: 2}))
	assert.Equal(t, int64(2), h.Load().Version)
}

func TestHolder_InFlightKeepsSnapshot(t *testing.T) {
	h := NewHolder(compile(t, exampleRules()))
	engine := NewEngine(logger.NopLogger())
	event := &models.NotificationEvent{EventType: "promo", Priority: models.PriorityLow, Channel: models.ChannelPush}
	ec := models.EvaluationContext{RecentCount1h: 5}

	bound := h.Load()
	require.True(t, h.Swap(&Snapshot{Version: 10}))

	v := engine.Evaluate(context.Background(), bound, event, ec)
	require.True(t, v.Matched, "evaluation stays on the snapshot it started with")
	assert.Equal(t, "promo-suppression", v.Rule.ID())
	assert.False(t, engine.Evaluate(context.Background(), h.Load(), event, ec).Matched)
}

func TestHolder_ConcurrentSwap(t *testing.T) {
	h := NewHolder(nil)
	var wg sync.WaitGroup
	for i := int64(1); i <= 50; i++ {
		wg.Add(1)
		go func(v int64) {
			defer wg.Done()
			h.Swap(&Snapshot{Version: v})
		}(i)
	}
	wg.Wait()
	assert.Equal(t, int64(50), h.Load().Version)
}
