package models

type RuleAction string

const (
	RuleActionNow   RuleAction = "NOW"
	RuleActionLater RuleAction = "LATER"
	RuleActionNever RuleAction = "NEVER"
)

func (a RuleAction) Verdict() (Verdict, bool) {
	switch a {
	case RuleActionNow:
		return VerdictSendNow, true
	case RuleActionLater:
		return VerdictDefer, true
	case RuleActionNever:
		return VerdictSuppress, true
	}
	return "", false
}

type ConditionOp string

const (
	OpEq    ConditionOp = "eq"
	OpNeq   ConditionOp = "neq"
	OpIn    ConditionOp = "in"
	OpNotIn ConditionOp = "not_in"
	OpGt    ConditionOp = "gt"
	OpGte   ConditionOp = "gte"
	OpLt    ConditionOp = "lt"
	OpLte   ConditionOp = "lte"
	OpExpr  ConditionOp = "expr"
)

// Condition is one predicate of a rule. Field and Value are used by every
// op except expr, which carries a CEL boolean expression in Expr.
type Condition struct {
	Field string      `json:"field,omitempty" yaml:"field,omitempty"`
	Op    ConditionOp `json:"op" yaml:"op"`
	Value interface{} `json:"value,omitempty" yaml:"value,omitempty"`
	Expr  string      `json:"expr,omitempty" yaml:"expr,omitempty"`
}

const (
	DeferModeDelay    = "delay"
	DeferModeNextHour = "next_hour"
)

type DeferPolicy struct {
	Mode  string `json:"mode" yaml:"mode"`
	Delay string `json:"delay,omitempty" yaml:"delay,omitempty"`
}

type RuleSpec struct {
	ID              string       `json:"id" yaml:"id"`
	Name            string       `json:"name" yaml:"name"`
	Conditions      []Condition  `json:"conditions" yaml:"conditions"`
	Action          RuleAction   `json:"action" yaml:"action"`
	OverrideFatigue bool         `json:"override_fatigue,omitempty" yaml:"override_fatigue,omitempty"`
	RecordHistory   bool         `json:"record_history,omitempty" yaml:"record_history,omitempty"`
	Defer           *DeferPolicy `json:"defer,omitempty" yaml:"defer,omitempty"`
}

// RuleSet is what a config provider returns: an ordered rule list and a
// version that only grows.
type RuleSet struct {
	Version int64      `json:"version" yaml:"version"`
	Rules   []RuleSpec `json:"rules" yaml:"rules"`
}
