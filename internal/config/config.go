package config

import (
	"time"
)

type Config struct {
	Server         ServerConfig
	Database       DatabaseConfig
	Broker         BrokerConfig
	Logging        LoggingConfig
	CircuitBreaker CircuitBreakerConfig `mapstructure:"circuit_breaker"`
	Tracing        TracingConfig
	History        HistoryConfig
	Rules          RulesConfig
	Deduplication  DeduplicationConfig
	Fatigue        FatigueConfig
	Classifier     ClassifierConfig
	Orchestrator   OrchestratorConfig
	API            APIConfig `mapstructure:"api"`
	Audit          AuditConfig
}

type ServerConfig struct {
	Port         int           `mapstructure:"port"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

type DatabaseConfig struct {
	Postgres       PostgresConfig
	Redis          RedisConfig
	MongoDB        MongoDBConfig
	RunMigrations  bool   `mapstructure:"run_migrations"`
	MigrationsPath string `mapstructure:"migrations_path"`
}

type PostgresConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	DBName   string `mapstructure:"dbname"`
	SSLMode  string `mapstructure:"sslmode"`
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type BrokerConfig struct {
	Type   string       `mapstructure:"type"`
	Kafka  KafkaConfig  `mapstructure:"kafka"`
	NATS   NATSConfig   `mapstructure:"nats"`
	Topics TopicsConfig `mapstructure:"topics"`
	Retry  RetryConfig  `mapstructure:"retry"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	GroupID string   `mapstructure:"group_id"`
}

type NATSConfig struct {
	URL        string `mapstructure:"url"`
	QueueGroup string `mapstructure:"queue_group"`
}

// TopicsConfig names topics for Kafka and subjects for NATS.
type TopicsConfig struct {
	Input        string `mapstructure:"input"`
	Decisions    string `mapstructure:"decisions"`
	Audit        string `mapstructure:"audit"`
	ConfigUpdate string `mapstructure:"config_update"`
	DLQ          string `mapstructure:"dlq"`
}

type RetryConfig struct {
	MaxAttempts     int           `mapstructure:"max_attempts"`
	InitialInterval time.Duration `mapstructure:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval"`
	Multiplier      float64       `mapstructure:"multiplier"`
	MaxElapsedTime  time.Duration `mapstructure:"max_elapsed_time"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

type CircuitBreakerConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	MaxRequests  uint32        `mapstructure:"max_requests"`
	Interval     time.Duration `mapstructure:"interval"`
	Timeout      time.Duration `mapstructure:"timeout"`
	FailureRatio float64       `mapstructure:"failure_ratio"`
	MinRequests  uint32        `mapstructure:"min_requests"`
}

type TracingConfig struct {
	Enabled     bool          `mapstructure:"enabled"`
	ServiceName string        `mapstructure:"service_name"`
	OTLP        OTLPConfig    `mapstructure:"otlp"`
	Sampler     SamplerConfig `mapstructure:"sampler"`
}

type OTLPConfig struct {
	Endpoint string `mapstructure:"endpoint"`
	Insecure bool   `mapstructure:"insecure"`
}

type SamplerConfig struct {
	Type  string  `mapstructure:"type"`
	Param float64 `mapstructure:"param"`
}

type HistoryConfig struct {
	Backend   string `mapstructure:"backend"` // "redis" or "memory"
	KeyPrefix string `mapstructure:"key_prefix"`
}

type RulesConfig struct {
	Provider string       `mapstructure:"provider"` // "file" or "postgres"
	File     string       `mapstructure:"file"`
	Reload   ReloadConfig `mapstructure:"reload"`
}

type ReloadConfig struct {
	IntervalSeconds       int  `mapstructure:"interval_seconds"`
	JitterMaxMilliseconds int  `mapstructure:"jitter_max_milliseconds"`
	Watch                 bool `mapstructure:"watch"`
}

type DeduplicationConfig struct {
	HashAlgorithm string              `mapstructure:"hash_algorithm"`
	TTL           time.Duration       `mapstructure:"ttl"`
	NearDuplicate NearDuplicateConfig `mapstructure:"near_duplicate"`
	Digest        DigestConfig        `mapstructure:"digest"`
}

type NearDuplicateConfig struct {
	Enabled       bool          `mapstructure:"enabled"`
	Window        time.Duration `mapstructure:"window"`
	MaxCandidates int           `mapstructure:"max_candidates"`
	Threshold     float64       `mapstructure:"threshold"`
	Policy        string        `mapstructure:"policy"` // "suppress" or "defer"
}

type DigestConfig struct {
	Enabled bool          `mapstructure:"enabled"`
	Window  time.Duration `mapstructure:"window"`
}

type FatigueConfig struct {
	GlobalHourlyCap   int64            `mapstructure:"global_hourly_cap"`
	ChannelHourlyCaps map[string]int64 `mapstructure:"channel_hourly_caps"`
	BurstThreshold    int64            `mapstructure:"burst_threshold"`
	BurstWindow       time.Duration    `mapstructure:"burst_window"`
	Cooldown          time.Duration    `mapstructure:"cooldown"`
}

type ClassifierConfig struct {
	Provider        string        `mapstructure:"provider"` // "genai" or "none"
	Timeout         time.Duration `mapstructure:"timeout"`
	EmbedTimeout    time.Duration `mapstructure:"embed_timeout"`
	FallbackVerdict string        `mapstructure:"fallback_verdict"`
	GenAI           GenAIConfig   `mapstructure:"genai"`
}

type GenAIConfig struct {
	APIKey         string `mapstructure:"api_key"`
	Model          string `mapstructure:"model"`
	EmbeddingModel string `mapstructure:"embedding_model"`
}

type OrchestratorConfig struct {
	Budget            time.Duration `mapstructure:"budget"`
	DefaultDeferDelay time.Duration `mapstructure:"default_defer_delay"`
	SideEffectTimeout time.Duration `mapstructure:"side_effect_timeout"`
}

type APIConfig struct {
	Enabled   bool            `mapstructure:"enabled"`
	RateLimit RateLimitConfig `mapstructure:"rate_limit"`
}

type RateLimitConfig struct {
	Enabled         bool    `mapstructure:"enabled"`
	RPS             float64 `mapstructure:"rps"`
	Burst           int     `mapstructure:"burst"`
	CleanupInterval int     `mapstructure:"cleanup_interval"`
	MaxAge          int     `mapstructure:"max_age"`
}

// AuditConfig controls decision audit records. Records go to the broker
// audit topic and, when MongoDB is configured, to Collection.
type AuditConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	Collection string        `mapstructure:"collection"`
	Retention  time.Duration `mapstructure:"retention"`
}

func Load(configFile string) (*Config, error) {
	return LoadConfig(configFile)
}
