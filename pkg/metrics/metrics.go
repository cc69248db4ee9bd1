package metrics

import (
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	DecisionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decisions_total",
			Help: "Total number of decisions produced (count)",
		},
		[]string{"verdict", "mechanism"},
	)

	DecisionDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decision_duration_ms",
			Help:    "End-to-end decision latency in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"verdict"},
	)

	StageDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "decision_stage_duration_ms",
			Help:    "Duration of a single decision stage in milliseconds",
			Buckets: []float64{0.5, 1, 5, 10, 25, 50, 100, 250, 500},
		},
		[]string{"stage"},
	)

	DecisionRejectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_rejections_total",
			Help: "Total number of events rejected before evaluation (count)",
		},
		[]string{"reason"},
	)

	InvariantViolationsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decision_invariant_violations_total",
			Help: "Total number of resolved decisions that failed an invariant check (count)",
		},
	)

	CriticalDowngradesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "decision_critical_downgrades_total",
			Help: "Total number of SUPPRESS verdicts on critical events turned into DEFER (count)",
		},
	)

	FallbackUsageTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fallback_usage_total",
			Help: "Total number of times a stage fell back on a dependency failure (count)",
		},
		[]string{"stage", "kind"},
	)

	SideEffectErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "decision_side_effect_errors_total",
			Help: "Total number of failed post-decision writes (count)",
		},
		[]string{"effect"},
	)

	DuplicatesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dedup_duplicates_total",
			Help: "Total number of duplicates detected (count)",
		},
		[]string{"kind"},
	)

	FatigueExceededTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "fatigue_exceeded_total",
			Help: "Total number of events over a fatigue cap (count)",
		},
		[]string{"scope"},
	)

	RuleMatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_matches_total",
			Help: "Total number of rule matches (count)",
		},
		[]string{"rule_id", "action"},
	)

	RulePredicateErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_predicate_errors_total",
			Help: "Total number of predicate evaluation errors (count)",
		},
		[]string{"rule_id"},
	)

	ActiveRules = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rules_active",
			Help: "Number of rules in the active snapshot (count)",
		},
	)

	RulesVersion = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "rules_snapshot_version",
			Help: "Version of the active rule snapshot",
		},
	)

	RuleReloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rule_reloads_total",
			Help: "Total number of rule reload attempts (count)",
		},
		[]string{"provider", "status"},
	)

	ClassifierRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "classifier_requests_total",
			Help: "Total number of classifier port calls (count)",
		},
		[]string{"operation", "status"},
	)

	ClassifierDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "classifier_duration_ms",
			Help:    "Duration of classifier port calls in milliseconds",
			Buckets: []float64{5, 10, 25, 50, 100, 200, 300, 500, 1000},
		},
		[]string{"operation"},
	)

	HistoryOperationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "history_operations_total",
			Help: "Total number of history store operations (count)",
		},
		[]string{"operation", "status"},
	)

	HistoryOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "history_operation_duration_ms",
			Help:    "Duration of history store operations in milliseconds",
			Buckets: []float64{0.5, 1, 2, 5, 10, 25, 50, 100, 250},
		},
		[]string{"operation"},
	)

	SinkPublishTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "sink_publish_total",
			Help: "Total number of decision records handed to sinks (count)",
		},
		[]string{"sink", "status"},
	)

	RetryAttemptsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "retry_attempts_total",
			Help: "Total number of retry attempts (count)",
		},
		[]string{"service", "topic"},
	)

	DLQMessagesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "dlq_messages_total",
			Help: "Total number of messages sent to DLQ (count)",
		},
		[]string{"service", "topic", "reason"},
	)

	BrokerMessagesReadTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_read_total",
			Help: "Total number of messages read from the broker (count)",
		},
		[]string{"broker", "topic"},
	)

	BrokerMessagesWrittenTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "broker_messages_written_total",
			Help: "Total number of messages written to the broker (count)",
		},
		[]string{"broker", "topic"},
	)

	BrokerMessageSizeBytes = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_message_size_bytes",
			Help:    "Size of broker messages in bytes",
			Buckets: []float64{100, 500, 1000, 5000, 10000, 50000, 100000, 500000},
		},
		[]string{"broker", "topic", "direction"},
	)

	BrokerWriteDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "broker_write_duration_ms",
			Help:    "Duration of writing messages to the broker in milliseconds",
			Buckets: []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000},
		},
		[]string{"broker", "topic"},
	)

	CircuitBreakerState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "circuit_breaker_state",
			Help: "Circuit breaker state (0=closed, 1=half-open, 2=open) (state code)",
		},
		[]string{"name"},
	)

	CircuitBreakerRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_requests_total",
			Help: "Total number of requests through circuit breaker (count)",
		},
		[]string{"name", "state"},
	)

	CircuitBreakerFailures = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "circuit_breaker_failures_total",
			Help: "Total number of failures through circuit breaker (count)",
		},
		[]string{"name"},
	)

	RateLimitRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "rate_limit_requests_total",
			Help: "Total number of requests checked against rate limit (count)",
		},
		[]string{"status"},
	)
)

var registerOnce sync.Once

// Register adds every collector to the default registry. Safe to call more
// than once.
func Register() {
	registerOnce.Do(func() {
		RegisterDecisionMetrics()
		RegisterBrokerMetrics()
		RegisterCircuitBreakerMetrics()
		RegisterAPIMetrics()
	})
}

func RegisterDecisionMetrics() {
	prometheus.MustRegister(DecisionsTotal)
	prometheus.MustRegister(DecisionDuration)
	prometheus.MustRegister(StageDuration)
	prometheus.MustRegister(DecisionRejectionsTotal)
	prometheus.MustRegister(InvariantViolationsTotal)
	prometheus.MustRegister(CriticalDowngradesTotal)
	prometheus.MustRegister(FallbackUsageTotal)
	prometheus.MustRegister(SideEffectErrorsTotal)
	prometheus.MustRegister(DuplicatesTotal)
	prometheus.MustRegister(FatigueExceededTotal)
	prometheus.MustRegister(RuleMatchesTotal)
	prometheus.MustRegister(RulePredicateErrorsTotal)
	prometheus.MustRegister(ActiveRules)
	prometheus.MustRegister(RulesVersion)
	prometheus.MustRegister(RuleReloadsTotal)
	prometheus.MustRegister(ClassifierRequestsTotal)
	prometheus.MustRegister(ClassifierDuration)
	prometheus.MustRegister(HistoryOperationsTotal)
	prometheus.MustRegister(HistoryOperationDuration)
	prometheus.MustRegister(SinkPublishTotal)
}

func RegisterBrokerMetrics() {
	prometheus.MustRegister(RetryAttemptsTotal)
	prometheus.MustRegister(DLQMessagesTotal)
	prometheus.MustRegister(BrokerMessagesReadTotal)
	prometheus.MustRegister(BrokerMessagesWrittenTotal)
	prometheus.MustRegister(BrokerMessageSizeBytes)
	prometheus.MustRegister(BrokerWriteDuration)
}

func RegisterCircuitBreakerMetrics() {
	prometheus.MustRegister(CircuitBreakerState)
	prometheus.MustRegister(CircuitBreakerRequests)
	prometheus.MustRegister(CircuitBreakerFailures)
}

func RegisterAPIMetrics() {
	prometheus.MustRegister(RateLimitRequestsTotal)
}

func ObserveDecision(verdict, mechanism string, duration time.Duration) {
	DecisionsTotal.WithLabelValues(verdict, mechanism).Inc()
	DecisionDuration.WithLabelValues(verdict).Observe(float64(duration.Microseconds()) / 1000)
}

func ObserveStage(stage string, duration time.Duration) {
	StageDuration.WithLabelValues(stage).Observe(float64(duration.Microseconds()) / 1000)
}

func IncFallback(stage, kind string) {
	FallbackUsageTotal.WithLabelValues(stage, kind).Inc()
}

func IncRuleMatch(ruleID, action string) {
	RuleMatchesTotal.WithLabelValues(ruleID, action).Inc()
}

func IncRulePredicateError(ruleID string) {
	RulePredicateErrorsTotal.WithLabelValues(ruleID).Inc()
}

func SetActiveRules(count int, version int64) {
	ActiveRules.Set(float64(count))
	RulesVersion.Set(float64(version))
}

func IncRuleReload(provider, status string) {
	RuleReloadsTotal.WithLabelValues(provider, status).Inc()
}

func ObserveClassifier(operation, status string, duration time.Duration) {
	ClassifierRequestsTotal.WithLabelValues(operation, status).Inc()
	ClassifierDuration.WithLabelValues(operation).Observe(float64(duration.Milliseconds()))
}

func ObserveHistory(operation, status string, duration time.Duration) {
	HistoryOperationsTotal.WithLabelValues(operation, status).Inc()
	HistoryOperationDuration.WithLabelValues(operation).Observe(float64(duration.Microseconds()) / 1000)
}

func IncSinkPublish(sink, status string) {
	SinkPublishTotal.WithLabelValues(sink, status).Inc()
}

func IncMessagesRead(broker, topic string) {
	BrokerMessagesReadTotal.WithLabelValues(broker, topic).Inc()
}

func IncMessagesWritten(broker, topic string) {
	BrokerMessagesWrittenTotal.WithLabelValues(broker, topic).Inc()
}

func ObserveMessageSize(broker, topic, direction string, sizeBytes int) {
	BrokerMessageSizeBytes.WithLabelValues(broker, topic, direction).Observe(float64(sizeBytes))
}

func ObserveWriteDuration(broker, topic string, duration time.Duration) {
	BrokerWriteDuration.WithLabelValues(broker, topic).Observe(float64(duration.Milliseconds()))
}
