package cel

import (
	"context"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"hush/pkg/models"
)

const (
	// costLimit bounds the work of one predicate evaluation.
	costLimit               = 10_000
	interruptCheckFrequency = 100
)

// Variables available to rule expressions.
const (
	VarEventType            = "event_type"
	VarPriority             = "priority"
	VarChannel              = "channel"
	VarSource               = "source"
	VarUserID               = "user_id"
	VarMessage              = "message"
	VarMetadata             = "metadata"
	VarChannelCount1h       = "channel_count_1h"
	VarRecentCount1h        = "recent_count_1h"
	VarRecentCountWindow    = "recent_count_window"
	VarDoNotDisturb         = "do_not_disturb"
	VarOptedOut             = "opted_out"
	VarInCooldown           = "in_cooldown"
	VarMinutesSinceLastSent = "minutes_since_last_sent"
	VarDuplicate            = "duplicate"
	VarSimilarity           = "similarity"
)

type Evaluator struct {
	env *cel.Env
}

func NewEvaluator() (*Evaluator, error) {
	env, err := cel.NewEnv(
		cel.Variable(VarEventType, cel.StringType),
		cel.Variable(VarPriority, cel.StringType),
		cel.Variable(VarChannel, cel.StringType),
		cel.Variable(VarSource, cel.StringType),
		cel.Variable(VarUserID, cel.StringType),
		cel.Variable(VarMessage, cel.StringType),
		cel.Variable(VarMetadata, cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable(VarChannelCount1h, cel.IntType),
		cel.Variable(VarRecentCount1h, cel.IntType),
		cel.Variable(VarRecentCountWindow, cel.IntType),
		cel.Variable(VarDoNotDisturb, cel.BoolType),
		cel.Variable(VarOptedOut, cel.BoolType),
		cel.Variable(VarInCooldown, cel.BoolType),
		cel.Variable(VarMinutesSinceLastSent, cel.IntType),
		cel.Variable(VarDuplicate, cel.StringType),
		cel.Variable(VarSimilarity, cel.DoubleType),
		ext.Strings(),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Evaluator{env: env}, nil
}

// ValidateExpression checks that expression compiles to a bool.
func (e *Evaluator) ValidateExpression(expression string) error {
	_, err := e.Compile(expression)
	return err
}

// Predicate is a compiled boolean expression. It is safe for concurrent use.
type Predicate struct {
	source  string
	program cel.Program
}

func (e *Evaluator) Compile(expression string) (*Predicate, error) {
	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("CEL expression validation failed: %w", issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("expression must return bool, got %v", ast.OutputType())
	}

	program, err := e.env.Program(ast,
		cel.CostLimit(costLimit),
		cel.InterruptCheckFrequency(interruptCheckFrequency),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL program: %w", err)
	}

	return &Predicate{source: expression, program: program}, nil
}

func (p *Predicate) String() string {
	return p.source
}

func (p *Predicate) Eval(ctx context.Context, vars map[string]interface{}) (bool, error) {
	result, _, err := p.program.ContextEval(ctx, vars)
	if err != nil {
		return false, fmt.Errorf("failed to evaluate CEL expression: %w", err)
	}

	boolVal, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("CEL expression did not return bool, got %T", result.Value())
	}

	return boolVal, nil
}

// Variables builds the activation for one event. Rule conditions resolve
// their fields from the same map so both predicate kinds agree.
func Variables(event *models.NotificationEvent, ec models.EvaluationContext, now time.Time) map[string]interface{} {
	metadata := event.Metadata
	if metadata == nil {
		metadata = map[string]interface{}{}
	}

	minutesSince := int64(-1)
	if ec.LastSentAt != nil {
		minutesSince = int64(now.Sub(*ec.LastSentAt) / time.Minute)
	}

	similarity := -1.0
	if ec.Similarity != nil {
		similarity = *ec.Similarity
	}

	duplicate := string(ec.Duplicate)
	if duplicate == "" {
		duplicate = string(models.DuplicateNone)
	}

	return map[string]interface{}{
		VarEventType:            event.EventType,
		VarPriority:             string(event.Priority),
		VarChannel:              string(event.Channel),
		VarSource:               event.Source,
		VarUserID:               event.UserID,
		VarMessage:              event.Message,
		VarMetadata:             metadata,
		VarChannelCount1h:       ec.ChannelCount1h,
		VarRecentCount1h:        ec.RecentCount1h,
		VarRecentCountWindow:    ec.RecentCountWindow,
		VarDoNotDisturb:         ec.DoNotDisturb,
		VarOptedOut:             ec.OptedOut(event.Channel),
		VarInCooldown:           ec.InCooldown,
		VarMinutesSinceLastSent: minutesSince,
		VarDuplicate:            duplicate,
		VarSimilarity:           similarity,
	}
}
