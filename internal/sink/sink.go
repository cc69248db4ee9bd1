// Package sink hands decision records to the collaborators that deliver or
// audit them.
package sink

import (
	"context"
	"errors"
	"fmt"
	"time"

	"hush/internal/logger"
	"hush/pkg/metrics"
	"hush/pkg/models"
)

const (
	statusSuccess = "success"
	statusError   = "error"
)

type Sink interface {
	Name() string
	Publish(ctx context.Context, record models.DecisionRecord) error
}

// Multi fans a record out to every sink. One failing sink does not stop the
// others.
type Multi struct {
	sinks  []Sink
	logger logger.Logger
}

// NewMulti drops nil sinks.
func NewMulti(log logger.Logger, sinks ...Sink) *Multi {
	m := &Multi{logger: log}
	for _, s := range sinks {
		if s != nil {
			m.sinks = append(m.sinks, s)
		}
	}
	return m
}

func (m *Multi) Len() int {
	return len(m.sinks)
}

func (m *Multi) Publish(ctx context.Context, record models.DecisionRecord) error {
	var errs []error
	for _, s := range m.sinks {
		if err := s.Publish(ctx, record); err != nil {
			metrics.IncSinkPublish(s.Name(), statusError)
			m.logger.WarnwCtx(ctx, "Sink publish failed",
				"sink", s.Name(),
				"decision_id", record.Decision.ID,
				"error", err,
			)
			errs = append(errs, fmt.Errorf("%s: %w", s.Name(), err))
			continue
		}
		metrics.IncSinkPublish(s.Name(), statusSuccess)
	}
	return errors.Join(errs...)
}

// AuditEntry is the flattened, queryable form of a decision record.
type AuditEntry struct {
	DecisionID   string             `json:"decision_id" bson:"decision_id"`
	EventID      string             `json:"event_id" bson:"event_id"`
	UserID       string             `json:"user_id" bson:"user_id"`
	EventType    string             `json:"event_type" bson:"event_type"`
	Channel      models.Channel     `json:"channel" bson:"channel"`
	Priority     models.Priority    `json:"priority" bson:"priority"`
	Verdict      models.Verdict     `json:"verdict" bson:"verdict"`
	Mechanism    models.Mechanism   `json:"mechanism" bson:"mechanism"`
	Reason       string             `json:"reason" bson:"reason"`
	MatchedRule  string             `json:"matched_rule,omitempty" bson:"matched_rule,omitempty"`
	Confidence   *float64           `json:"classifier_confidence,omitempty" bson:"classifier_confidence,omitempty"`
	Similarity   *float64           `json:"similarity,omitempty" bson:"similarity,omitempty"`
	DigestKey    string             `json:"digest_key,omitempty" bson:"digest_key,omitempty"`
	ScheduledFor *time.Time         `json:"scheduled_for,omitempty" bson:"scheduled_for,omitempty"`
	Downgraded   bool               `json:"downgraded" bson:"downgraded"`
	RulesVersion int64              `json:"rules_version" bson:"rules_version"`
	Trace        []models.TraceStep `json:"trace" bson:"trace"`
	ReceivedAt   time.Time          `json:"received_at" bson:"received_at"`
	DecidedAt    time.Time          `json:"decided_at" bson:"decided_at"`
}

func NewAuditEntry(record models.DecisionRecord) AuditEntry {
	d := record.Decision
	e := AuditEntry{
		DecisionID:   d.ID,
		EventID:      d.EventID,
		UserID:       d.UserID,
		EventType:    record.Event.EventType,
		Channel:      record.Event.Channel,
		Priority:     record.Event.Priority,
		Verdict:      d.Verdict,
		Mechanism:    d.Mechanism,
		Reason:       d.Reason,
		Confidence:   d.ClassifierConfidence,
		Similarity:   d.Similarity,
		DigestKey:    d.DigestKey,
		ScheduledFor: d.ScheduledFor,
		Downgraded:   d.Downgraded,
		RulesVersion: d.RulesVersion,
		Trace:        d.Trace,
		ReceivedAt:   record.Event.ReceivedAt,
		DecidedAt:    d.DecidedAt,
	}
	if d.MatchedRule != nil {
		e.MatchedRule = *d.MatchedRule
	}
	return e
}
