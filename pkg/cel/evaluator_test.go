package cel

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"hush/pkg/models"
)

func TestNewEvaluator(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)
	assert.NotNil(t, eval)
}

func TestValidateExpression(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	tests := []struct {
		name      string
		expr      string
		wantError bool
	}{
		{
			name: "counter comparison",
			expr: `recent_count_1h >= 3`,
		},
		{
			name: "set membership",
			expr: `priority in ["high", "critical"]`,
		},
		{
			name:      "non-bool expression",
			expr:      `recent_count_1h + 1`,
			wantError: true,
		},
		{
			name:      "invalid syntax",
			expr:      `invalid syntax here!!!`,
			wantError: true,
		},
		{
			name:      "undefined variable",
			expr:      `payload.status == "active"`,
			wantError: true,
		},
		{
			name:      "type mismatch",
			expr:      `recent_count_1h == "three"`,
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := eval.ValidateExpression(tt.expr)
			if tt.wantError {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestExpressionExamplesCompile(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	for name, expr := range ExpressionExamples {
		t.Run(name, func(t *testing.T) {
			assert.NoError(t, eval.ValidateExpression(expr))
		})
	}
}

func TestPredicateEval(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	lastSent := now.Add(-90 * time.Second)
	event := &models.NotificationEvent{
		UserID:    "u2",
		EventType: "promo",
		Message:   "Reset your PASSWORD now",
		Source:    "marketing",
		Priority:  models.PriorityLow,
		Channel:   models.ChannelSMS,
		Metadata:  map[string]interface{}{"vip": true},
	}
	ec := models.EvaluationContext{
		RecentCount1h:    3,
		ChannelCount1h:   2,
		LastSentAt:       &lastSent,
		OptedOutChannels: []models.Channel{models.ChannelSMS},
	}
	vars := Variables(event, ec, now)

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"promo flood", ExpressionExamples["promo_flood"], true},
		{"recently notified", ExpressionExamples["recently_notified"], true},
		{"metadata flag", ExpressionExamples["metadata_flag"], true},
		{"message keyword", ExpressionExamples["message_keyword"], true},
		{"opted out", ExpressionExamples["opted_out_channel"], true},
		{"security event", ExpressionExamples["security_event"], false},
		{"no similarity", `similarity < 0.0`, true},
		{"not duplicate", `duplicate == "none"`, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := eval.Compile(tt.expr)
			require.NoError(t, err)

			got, err := p.Eval(context.Background(), vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestPredicateEval_RuntimeError(t *testing.T) {
	eval, err := NewEvaluator()
	require.NoError(t, err)

	p, err := eval.Compile(`metadata.tier == "gold"`)
	require.NoError(t, err)

	vars := Variables(&models.NotificationEvent{}, models.EvaluationContext{}, time.Now())
	_, err = p.Eval(context.Background(), vars)
	assert.Error(t, err, "missing map key is a runtime error")
}

func TestVariables_NeverSent(t *testing.T) {
	vars := Variables(&models.NotificationEvent{}, models.EvaluationContext{}, time.Now())
	assert.Equal(t, int64(-1), vars[VarMinutesSinceLastSent])
	assert.Equal(t, -1.0, vars[VarSimilarity])
	assert.Equal(t, "none", vars[VarDuplicate])
}
