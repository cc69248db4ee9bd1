package rules

import (
	"context"
	"fmt"

	"hush/pkg/cel"
	"hush/pkg/models"
)

// predicate is one compiled condition. A predicate never mutates vars.
type predicate interface {
	eval(ctx context.Context, vars map[string]interface{}) (bool, error)
}

type equality struct {
	field  string
	value  interface{}
	negate bool
}

func (p equality) eval(_ context.Context, vars map[string]interface{}) (bool, error) {
	v, ok := resolve(vars, p.field)
	if !ok {
		return p.negate, nil
	}
	return equalValues(v, p.value) != p.negate, nil
}

type membership struct {
	field  string
	values []interface{}
	negate bool
}

func (p membership) eval(_ context.Context, vars map[string]interface{}) (bool, error) {
	v, ok := resolve(vars, p.field)
	if !ok {
		return p.negate, nil
	}
	for _, candidate := range p.values {
		if equalValues(v, candidate) {
			return !p.negate, nil
		}
	}
	return p.negate, nil
}

type comparison struct {
	field     string
	op        models.ConditionOp
	threshold float64
}

func (p comparison) eval(_ context.Context, vars map[string]interface{}) (bool, error) {
	raw, ok := resolve(vars, p.field)
	if !ok {
		return false, fmt.Errorf("field %q is not set", p.field)
	}
	v, ok := toFloat(raw)
	if !ok {
		return false, fmt.Errorf("field %q is %T, not a number", p.field, raw)
	}

	switch p.op {
	case models.OpGt:
		return v > p.threshold, nil
	case models.OpGte:
		return v >= p.threshold, nil
	case models.OpLt:
		return v < p.threshold, nil
	case models.OpLte:
		return v <= p.threshold, nil
	}
	return false, fmt.Errorf("unsupported comparison %q", p.op)
}

type expression struct {
	program *cel.Predicate
}

func (p expression) eval(ctx context.Context, vars map[string]interface{}) (bool, error) {
	return p.program.Eval(ctx, vars)
}

func compileCondition(c models.Condition, evaluator *cel.Evaluator) (predicate, error) {
	if c.Op == models.OpExpr {
		if c.Expr == "" {
			return nil, fmt.Errorf("expr condition needs an expression")
		}
		program, err := evaluator.Compile(c.Expr)
		if err != nil {
			return nil, err
		}
		return expression{program: program}, nil
	}

	kind, err := lookupField(c.Field)
	if err != nil {
		return nil, err
	}

	switch c.Op {
	case models.OpEq, models.OpNeq:
		if err := checkValueKind(kind, c.Value); err != nil {
			return nil, fmt.Errorf("field %q: %w", c.Field, err)
		}
		return equality{field: c.Field, value: c.Value, negate: c.Op == models.OpNeq}, nil

	case models.OpIn, models.OpNotIn:
		values, ok := c.Value.([]interface{})
		if !ok || len(values) == 0 {
			return nil, fmt.Errorf("field %q: %s needs a non-empty list", c.Field, c.Op)
		}
		for _, v := range values {
			if err := checkValueKind(kind, v); err != nil {
				return nil, fmt.Errorf("field %q: %w", c.Field, err)
			}
		}
		return membership{field: c.Field, values: values, negate: c.Op == models.OpNotIn}, nil

	case models.OpGt, models.OpGte, models.OpLt, models.OpLte:
		if kind != kindNumber && kind != kindDynamic {
			return nil, fmt.Errorf("field %q is a %s and cannot be compared with %s", c.Field, kind, c.Op)
		}
		threshold, ok := toFloat(c.Value)
		if !ok {
			return nil, fmt.Errorf("field %q: %s needs a numeric value, got %T", c.Field, c.Op, c.Value)
		}
		return comparison{field: c.Field, op: c.Op, threshold: threshold}, nil
	}

	return nil, fmt.Errorf("unknown operator %q", c.Op)
}
