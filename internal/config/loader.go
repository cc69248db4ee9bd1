package config

import (
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// LoadConfig reads configFile (YAML) over the built-in defaults. An empty
// path loads defaults and environment overrides only.
func LoadConfig(configFile string) (*Config, error) {
	viper.Reset()

	viper.SetConfigType("yaml")
	setDefaults()

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	bindEnvVariables()

	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	applyEnvOverrides(&cfg)

	if err := ValidateStatic(&cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("server.port", 8080)
	viper.SetDefault("server.read_timeout", "10s")
	viper.SetDefault("server.write_timeout", "10s")

	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "json")

	viper.SetDefault("broker.type", "none")
	viper.SetDefault("broker.kafka.group_id", "decision-service")
	viper.SetDefault("broker.nats.url", "nats://localhost:4222")
	viper.SetDefault("broker.nats.queue_group", "decision-service")
	viper.SetDefault("broker.topics.input", "notification_events")
	viper.SetDefault("broker.topics.decisions", "notification_decisions")
	viper.SetDefault("broker.topics.audit", "notification_audit")
	viper.SetDefault("broker.topics.config_update", "config_updates")
	viper.SetDefault("broker.topics.dlq", "notification_events_dlq")
	viper.SetDefault("broker.retry.max_attempts", 3)
	viper.SetDefault("broker.retry.initial_interval", "100ms")
	viper.SetDefault("broker.retry.max_interval", "2s")
	viper.SetDefault("broker.retry.multiplier", 2.0)
	viper.SetDefault("broker.retry.max_elapsed_time", "10s")

	viper.SetDefault("circuit_breaker.enabled", true)
	viper.SetDefault("circuit_breaker.max_requests", 3)
	viper.SetDefault("circuit_breaker.interval", "10s")
	viper.SetDefault("circuit_breaker.timeout", "30s")
	viper.SetDefault("circuit_breaker.failure_ratio", 0.6)
	viper.SetDefault("circuit_breaker.min_requests", 5)

	viper.SetDefault("tracing.service_name", "decision-service")
	viper.SetDefault("tracing.sampler.type", "always_on")
	viper.SetDefault("tracing.sampler.param", 1.0)

	viper.SetDefault("database.redis.host", "localhost")
	viper.SetDefault("database.redis.port", 6379)
	viper.SetDefault("database.migrations_path", "migrations/postgres")

	viper.SetDefault("history.backend", "redis")
	viper.SetDefault("history.key_prefix", "hush:")

	viper.SetDefault("rules.provider", "file")
	viper.SetDefault("rules.file", "rules.yaml")
	viper.SetDefault("rules.reload.interval_seconds", 30)
	viper.SetDefault("rules.reload.jitter_max_milliseconds", 1000)
	viper.SetDefault("rules.reload.watch", true)

	viper.SetDefault("deduplication.hash_algorithm", "sha256")
	viper.SetDefault("deduplication.ttl", "24h")
	viper.SetDefault("deduplication.near_duplicate.enabled", true)
	viper.SetDefault("deduplication.near_duplicate.window", "5m")
	viper.SetDefault("deduplication.near_duplicate.max_candidates", 10)
	viper.SetDefault("deduplication.near_duplicate.threshold", 0.92)
	viper.SetDefault("deduplication.near_duplicate.policy", "suppress")
	viper.SetDefault("deduplication.digest.enabled", false)
	viper.SetDefault("deduplication.digest.window", "5m")

	viper.SetDefault("fatigue.global_hourly_cap", 10)
	viper.SetDefault("fatigue.channel_hourly_caps", map[string]int64{
		"push":   5,
		"email":  3,
		"sms":    2,
		"in_app": 20,
	})
	viper.SetDefault("fatigue.burst_threshold", 5)
	viper.SetDefault("fatigue.burst_window", "10m")
	viper.SetDefault("fatigue.cooldown", "30m")

	viper.SetDefault("classifier.provider", "none")
	viper.SetDefault("classifier.timeout", "300ms")
	viper.SetDefault("classifier.embed_timeout", "300ms")
	viper.SetDefault("classifier.fallback_verdict", "DEFER")
	viper.SetDefault("classifier.genai.model", "gemini-2.5-flash")
	viper.SetDefault("classifier.genai.embedding_model", "gemini-embedding-001")

	viper.SetDefault("orchestrator.budget", "500ms")
	viper.SetDefault("orchestrator.default_defer_delay", "15m")
	viper.SetDefault("orchestrator.side_effect_timeout", "200ms")

	viper.SetDefault("api.enabled", true)
	viper.SetDefault("api.rate_limit.enabled", false)
	viper.SetDefault("api.rate_limit.rps", 50.0)
	viper.SetDefault("api.rate_limit.burst", 100)
	viper.SetDefault("api.rate_limit.cleanup_interval", 60)
	viper.SetDefault("api.rate_limit.max_age", 300)

	viper.SetDefault("audit.enabled", false)
	viper.SetDefault("audit.collection", "decision_audit")
	viper.SetDefault("audit.retention", "720h")
}

func bindEnvVariables() {
	viper.BindEnv("broker.type", "BROKER_TYPE")
	viper.BindEnv("broker.kafka.brokers", "BROKER_KAFKA_BROKERS")
	viper.BindEnv("broker.kafka.group_id", "BROKER_KAFKA_GROUP_ID")
	viper.BindEnv("broker.nats.url", "BROKER_NATS_URL")

	viper.BindEnv("database.postgres.host", "DATABASE_POSTGRES_HOST")
	viper.BindEnv("database.postgres.port", "DATABASE_POSTGRES_PORT")
	viper.BindEnv("database.postgres.user", "DATABASE_POSTGRES_USER")
	viper.BindEnv("database.postgres.password", "DATABASE_POSTGRES_PASSWORD")
	viper.BindEnv("database.postgres.dbname", "DATABASE_POSTGRES_DBNAME")
	viper.BindEnv("database.postgres.sslmode", "DATABASE_POSTGRES_SSLMODE")

	viper.BindEnv("database.redis.host", "DATABASE_REDIS_HOST")
	viper.BindEnv("database.redis.port", "DATABASE_REDIS_PORT")
	viper.BindEnv("database.redis.password", "DATABASE_REDIS_PASSWORD")
	viper.BindEnv("database.redis.db", "DATABASE_REDIS_DB")

	viper.BindEnv("database.mongodb.uri", "DATABASE_MONGODB_URI")
	viper.BindEnv("database.mongodb.database", "DATABASE_MONGODB_DATABASE")

	viper.BindEnv("server.port", "SERVER_PORT")

	viper.BindEnv("logging.level", "LOGGING_LEVEL")
	viper.BindEnv("logging.format", "LOGGING_FORMAT")

	viper.BindEnv("classifier.provider", "CLASSIFIER_PROVIDER")
	viper.BindEnv("classifier.genai.api_key", "GEMINI_API_KEY")

	viper.BindEnv("rules.file", "RULES_FILE")

	viper.BindEnv("tracing.otlp.endpoint", "TRACING_OTLP_ENDPOINT")
	viper.BindEnv("tracing.otlp.insecure", "TRACING_OTLP_INSECURE")
	viper.BindEnv("tracing.enabled", "TRACING_ENABLED")
	viper.BindEnv("tracing.service_name", "TRACING_SERVICE_NAME")
}

func applyEnvOverrides(cfg *Config) {
	if brokersEnv := viper.GetString("BROKER_KAFKA_BROKERS"); brokersEnv != "" {
		brokers := strings.Split(brokersEnv, ",")
		for i := range brokers {
			brokers[i] = strings.TrimSpace(brokers[i])
		}
		if len(brokers) > 0 && brokers[0] != "" {
			cfg.Broker.Kafka.Brokers = brokers
		}
	}
}
