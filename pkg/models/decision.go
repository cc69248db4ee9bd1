package models

import "time"

type Verdict string

const (
	VerdictSendNow  Verdict = "SEND_NOW"
	VerdictDefer    Verdict = "DEFER"
	VerdictSuppress Verdict = "SUPPRESS"
)

func (v Verdict) Valid() bool {
	return v == VerdictSendNow || v == VerdictDefer || v == VerdictSuppress
}

// ParseVerdict accepts both verdict names and rule action names.
func ParseVerdict(s string) (Verdict, bool) {
	switch s {
	case string(VerdictSendNow), string(RuleActionNow):
		return VerdictSendNow, true
	case string(VerdictDefer), string(RuleActionLater):
		return VerdictDefer, true
	case string(VerdictSuppress), string(RuleActionNever):
		return VerdictSuppress, true
	}
	return "", false
}

// Mechanism names the stage that produced the verdict.
type Mechanism string

const (
	MechanismExpiry             Mechanism = "expiry"
	MechanismExactDuplicate     Mechanism = "exact_duplicate"
	MechanismNearDuplicate      Mechanism = "near_duplicate"
	MechanismDigest             Mechanism = "digest"
	MechanismFatigue            Mechanism = "fatigue"
	MechanismRule               Mechanism = "rule"
	MechanismClassifier         Mechanism = "classifier"
	MechanismClassifierFallback Mechanism = "classifier_fallback"

	// MechanismHistoryFallback is a verdict taken because duplicate history
	// could not be read.
	MechanismHistoryFallback Mechanism = "history_fallback"
)

type State string

const (
	StateReceived          State = "received"
	StateExpiryChecked     State = "expiry_checked"
	StateDeduplicated      State = "deduplicated"
	StateFatigueChecked    State = "fatigue_checked"
	StateRuleEvaluated     State = "rule_evaluated"
	StateClassifierInvoked State = "classifier_invoked"
	StateResolved          State = "resolved"
)

type TraceStep struct {
	State  State  `json:"state"`
	Reason string `json:"reason"`
}

type Decision struct {
	ID                   string      `json:"id"`
	EventID              string      `json:"event_id"`
	UserID               string      `json:"user_id"`
	Verdict              Verdict     `json:"verdict"`
	Reason               string      `json:"reason"`
	Mechanism            Mechanism   `json:"mechanism"`
	MatchedRule          *string     `json:"matched_rule,omitempty"`
	MatchedRuleName      string      `json:"matched_rule_name,omitempty"`
	ClassifierConfidence *float64    `json:"classifier_confidence,omitempty"`
	Similarity           *float64    `json:"similarity,omitempty"`
	DigestKey            string      `json:"digest_key,omitempty"`
	ScheduledFor         *time.Time  `json:"scheduled_for,omitempty"`
	DecidedAt            time.Time   `json:"decided_at"`
	RulesVersion         int64       `json:"rules_version"`
	Downgraded           bool        `json:"downgraded,omitempty"`
	Trace                []TraceStep `json:"trace"`
}

// DecisionRecord is the produced event handed to delivery and audit
// collaborators.
type DecisionRecord struct {
	Decision Decision          `json:"decision" bson:"decision"`
	Event    NotificationEvent `json:"event" bson:"event"`
}
