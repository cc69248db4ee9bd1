package rules

import (
	"fmt"
	"sync/atomic"
	"time"

	"hush/pkg/cel"
	"hush/pkg/models"
)

// Rule is a compiled RuleSpec.
type Rule struct {
	Spec       models.RuleSpec
	Verdict    models.Verdict
	predicates []predicate
	deferDelay time.Duration
}

func (r *Rule) ID() string {
	return r.Spec.ID
}

func (r *Rule) Name() string {
	if r.Spec.Name == "" {
		return r.Spec.ID
	}
	return r.Spec.Name
}

// DeferUntil applies the rule's defer policy. Rules without one use
// defaultDelay.
func (r *Rule) DeferUntil(now time.Time, defaultDelay time.Duration) time.Time {
	if r.Spec.Defer == nil {
		return now.Add(defaultDelay)
	}
	if r.Spec.Defer.Mode == models.DeferModeNextHour {
		return now.Truncate(time.Hour).Add(time.Hour)
	}
	return now.Add(r.deferDelay)
}

// Snapshot is an immutable, versioned rule list. Order is precedence.
type Snapshot struct {
	Version  int64
	Rules    []*Rule
	LoadedAt time.Time
}

func EmptySnapshot() *Snapshot {
	return &Snapshot{LoadedAt: time.Now()}
}

// Specs returns the source rule list of the snapshot.
func (s *Snapshot) Specs() []models.RuleSpec {
	specs := make([]models.RuleSpec, 0, len(s.Rules))
	for _, r := range s.Rules {
		specs = append(specs, r.Spec)
	}
	return specs
}

// Compile validates set and builds a snapshot from it. Any invalid rule
// rejects the whole set.
func Compile(set models.RuleSet, evaluator *cel.Evaluator) (*Snapshot, error) {
	snap := &Snapshot{
		Version:  set.Version,
		Rules:    make([]*Rule, 0, len(set.Rules)),
		LoadedAt: time.Now(),
	}

	seen := make(map[string]bool, len(set.Rules))
	for i, spec := range set.Rules {
		if spec.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if seen[spec.ID] {
			return nil, fmt.Errorf("rule %q: duplicate id", spec.ID)
		}
		seen[spec.ID] = true

		rule, err := compileRule(spec, evaluator)
		if err != nil {
			return nil, fmt.Errorf("rule %q: %w", spec.ID, err)
		}
		snap.Rules = append(snap.Rules, rule)
	}

	return snap, nil
}

func compileRule(spec models.RuleSpec, evaluator *cel.Evaluator) (*Rule, error) {
	verdict, ok := spec.Action.Verdict()
	if !ok {
		return nil, fmt.Errorf("invalid action %q", spec.Action)
	}
	if len(spec.Conditions) == 0 {
		return nil, fmt.Errorf("at least one condition is required")
	}

	rule := &Rule{
		Spec:       spec,
		Verdict:    verdict,
		predicates: make([]predicate, 0, len(spec.Conditions)),
	}

	for i, c := range spec.Conditions {
		p, err := compileCondition(c, evaluator)
		if err != nil {
			return nil, fmt.Errorf("condition %d: %w", i, err)
		}
		rule.predicates = append(rule.predicates, p)
	}

	if spec.Defer != nil {
		switch spec.Defer.Mode {
		case models.DeferModeNextHour:
		case models.DeferModeDelay:
			d, err := time.ParseDuration(spec.Defer.Delay)
			if err != nil {
				return nil, fmt.Errorf("invalid defer delay %q: %w", spec.Defer.Delay, err)
			}
			if d <= 0 {
				return nil, fmt.Errorf("defer delay must be positive")
			}
			rule.deferDelay = d
		default:
			return nil, fmt.Errorf("invalid defer mode %q", spec.Defer.Mode)
		}
	}

	return rule, nil
}

// Holder publishes the current snapshot. Readers never block and keep the
// snapshot they loaded for as long as they need it.
type Holder struct {
	current atomic.Pointer[Snapshot]
}

func NewHolder(initial *Snapshot) *Holder {
	if initial == nil {
		initial = EmptySnapshot()
	}
	h := &Holder{}
	h.current.Store(initial)
	return h
}

func (h *Holder) Load() *Snapshot {
	return h.current.Load()
}

// Swap installs next if its version is newer than the current one.
func (h *Holder) Swap(next *Snapshot) bool {
	for {
		cur := h.current.Load()
		if next.Version <= cur.Version {
			return false
		}
		if h.current.CompareAndSwap(cur, next) {
			return true
		}
	}
}
