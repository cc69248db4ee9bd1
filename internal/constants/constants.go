package constants

import "time"

const (
	KafkaBatchTimeout = 10 * time.Millisecond
	KafkaWriteTimeout = 10 * time.Second
)

const (
	DefaultHTTPTimeout = 10 * time.Second
	ShutdownTimeout    = 5 * time.Second
)

// History key namespaces. Every key is prefixed by history.key_prefix.
const (
	KeyPrefixDedup   = "dedup:"
	KeyPrefixNear    = "near:"
	KeyPrefixFatigue = "fatigue:"
	KeyPrefixPrefs   = "prefs:"
	KeyPrefixDigest  = "digest:"
)

const (
	DefaultMongoDBName = "hush"
)

const (
	HistoryBackendRedis  = "redis"
	HistoryBackendMemory = "memory"
)

const (
	RulesProviderFile     = "file"
	RulesProviderPostgres = "postgres"
)

const (
	BrokerTypeKafka = "kafka"
	BrokerTypeNATS  = "nats"
	BrokerTypeNone  = "none"
)

const (
	ClassifierProviderGenAI = "genai"
	ClassifierProviderNone  = "none"
)

const (
	NearDuplicatePolicySuppress = "suppress"
	NearDuplicatePolicyDefer    = "defer"
)

const (
	ServiceName = "decision-service"
)

const (
	HTTPStatusOKMin = 200
	HTTPStatusOKMax = 300
)
