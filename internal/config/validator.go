package config

import (
	"fmt"
	"strings"
)

type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s': %s", e.Field, e.Message)
}

func ValidateStatic(cfg *Config) error {
	var errs []error

	validators := []func(*Config) error{
		func(c *Config) error { return validateServer(c.Server) },
		func(c *Config) error { return validateBroker(c.Broker) },
		func(c *Config) error { return validateDatabase(c.Database) },
		func(c *Config) error { return validateHistory(c.History, c.Database) },
		func(c *Config) error { return validateRules(c.Rules, c.Database) },
		func(c *Config) error { return validateDeduplication(c.Deduplication) },
		func(c *Config) error { return validateFatigue(c.Fatigue) },
		func(c *Config) error { return validateClassifier(c.Classifier) },
		func(c *Config) error { return validateOrchestrator(c.Orchestrator) },
	}
	for _, v := range validators {
		if err := v(cfg); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %v", errs)
	}

	return nil
}

func validateServer(cfg ServerConfig) error {
	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "server.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.ReadTimeout <= 0 {
		return &ValidationError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		}
	}

	if cfg.WriteTimeout <= 0 {
		return &ValidationError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		}
	}

	return nil
}

func validateBroker(cfg BrokerConfig) error {
	switch cfg.Type {
	case "", "none":
		return nil
	case "kafka":
		if err := validateKafka(cfg.Kafka); err != nil {
			return err
		}
	case "nats":
		if err := validateNATS(cfg.NATS); err != nil {
			return err
		}
	default:
		return &ValidationError{
			Field:   "broker.type",
			Message: fmt.Sprintf("unknown broker type: %s (supported: kafka, nats, none)", cfg.Type),
		}
	}

	if cfg.Topics.Input == "" {
		return &ValidationError{
			Field:   "broker.topics.input",
			Message: "input topic is required",
		}
	}

	return validateRetry(cfg.Retry)
}

func validateKafka(cfg KafkaConfig) error {
	if len(cfg.Brokers) == 0 {
		return &ValidationError{
			Field:   "broker.kafka.brokers",
			Message: "at least one Kafka broker is required",
		}
	}

	for i, broker := range cfg.Brokers {
		if broker == "" {
			return &ValidationError{
				Field:   fmt.Sprintf("broker.kafka.brokers[%d]", i),
				Message: "broker address cannot be empty",
			}
		}
	}

	if cfg.GroupID == "" {
		return &ValidationError{
			Field:   "broker.kafka.group_id",
			Message: "Kafka consumer group ID is required",
		}
	}

	return nil
}

func validateNATS(cfg NATSConfig) error {
	if !strings.HasPrefix(cfg.URL, "nats://") && !strings.HasPrefix(cfg.URL, "tls://") {
		return &ValidationError{
			Field:   "broker.nats.url",
			Message: "NATS URL must start with nats:// or tls://",
		}
	}

	return nil
}

func validateRetry(cfg RetryConfig) error {
	if cfg.MaxAttempts < 0 {
		return &ValidationError{
			Field:   "broker.retry.max_attempts",
			Message: "max_attempts must be non-negative",
		}
	}

	if cfg.InitialInterval < 0 {
		return &ValidationError{
			Field:   "broker.retry.initial_interval",
			Message: "initial_interval must be non-negative",
		}
	}

	if cfg.MaxInterval < 0 {
		return &ValidationError{
			Field:   "broker.retry.max_interval",
			Message: "max_interval must be non-negative",
		}
	}

	if cfg.MaxInterval > 0 && cfg.InitialInterval > 0 && cfg.MaxInterval < cfg.InitialInterval {
		return &ValidationError{
			Field:   "broker.retry.max_interval",
			Message: "max_interval must be greater than or equal to initial_interval",
		}
	}

	if cfg.Multiplier <= 0 {
		return &ValidationError{
			Field:   "broker.retry.multiplier",
			Message: "multiplier must be positive",
		}
	}

	return nil
}

func validateDatabase(cfg DatabaseConfig) error {
	if cfg.Postgres.Host != "" || cfg.Postgres.Port > 0 {
		if err := validatePostgres(cfg.Postgres); err != nil {
			return err
		}
	}

	if cfg.Redis.Host != "" || cfg.Redis.Port > 0 {
		if err := validateRedis(cfg.Redis); err != nil {
			return err
		}
	}

	if cfg.MongoDB.URI != "" {
		if err := validateMongoDB(cfg.MongoDB); err != nil {
			return err
		}
	}

	return nil
}

func validatePostgres(cfg PostgresConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.postgres.host",
			Message: "PostgreSQL host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.postgres.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	if cfg.User == "" {
		return &ValidationError{
			Field:   "database.postgres.user",
			Message: "PostgreSQL user is required",
		}
	}

	if cfg.DBName == "" {
		return &ValidationError{
			Field:   "database.postgres.dbname",
			Message: "PostgreSQL database name is required",
		}
	}

	validSSLModes := map[string]bool{
		"disable": true, "allow": true, "prefer": true,
		"require": true, "verify-ca": true, "verify-full": true,
	}
	if cfg.SSLMode != "" && !validSSLModes[strings.ToLower(cfg.SSLMode)] {
		return &ValidationError{
			Field:   "database.postgres.sslmode",
			Message: fmt.Sprintf("invalid SSL mode: %s (valid: disable, allow, prefer, require, verify-ca, verify-full)", cfg.SSLMode),
		}
	}

	return nil
}

func validateRedis(cfg RedisConfig) error {
	if cfg.Host == "" {
		return &ValidationError{
			Field:   "database.redis.host",
			Message: "Redis host is required",
		}
	}

	if cfg.Port < 1 || cfg.Port > 65535 {
		return &ValidationError{
			Field:   "database.redis.port",
			Message: fmt.Sprintf("port must be between 1 and 65535, got %d", cfg.Port),
		}
	}

	return nil
}

func validateMongoDB(cfg MongoDBConfig) error {
	if cfg.URI == "" {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI is required",
		}
	}

	if !strings.HasPrefix(cfg.URI, "mongodb://") && !strings.HasPrefix(cfg.URI, "mongodb+srv://") {
		return &ValidationError{
			Field:   "database.mongodb.uri",
			Message: "MongoDB URI must start with mongodb:// or mongodb+srv://",
		}
	}

	if cfg.Database == "" {
		return &ValidationError{
			Field:   "database.mongodb.database",
			Message: "MongoDB database name is required",
		}
	}

	return nil
}

func validateHistory(cfg HistoryConfig, db DatabaseConfig) error {
	switch cfg.Backend {
	case "memory":
		return nil
	case "redis":
		if db.Redis.Host == "" {
			return &ValidationError{
				Field:   "database.redis.host",
				Message: "Redis host is required for the redis history backend",
			}
		}
		return nil
	default:
		return &ValidationError{
			Field:   "history.backend",
			Message: fmt.Sprintf("unknown history backend: %s (supported: redis, memory)", cfg.Backend),
		}
	}
}

func validateRules(cfg RulesConfig, db DatabaseConfig) error {
	switch cfg.Provider {
	case "file":
		if cfg.File == "" {
			return &ValidationError{
				Field:   "rules.file",
				Message: "rules file path is required for the file provider",
			}
		}
	case "postgres":
		if db.Postgres.Host == "" {
			return &ValidationError{
				Field:   "database.postgres.host",
				Message: "PostgreSQL host is required for the postgres rules provider",
			}
		}
	default:
		return &ValidationError{
			Field:   "rules.provider",
			Message: fmt.Sprintf("unknown rules provider: %s (supported: file, postgres)", cfg.Provider),
		}
	}

	if cfg.Reload.IntervalSeconds < 0 {
		return &ValidationError{
			Field:   "rules.reload.interval_seconds",
			Message: "interval must be non-negative",
		}
	}

	return nil
}

func validateDeduplication(cfg DeduplicationConfig) error {
	validAlgorithms := map[string]bool{
		"md5": true, "sha256": true, "sha1": true,
	}
	if cfg.HashAlgorithm != "" && !validAlgorithms[strings.ToLower(cfg.HashAlgorithm)] {
		return &ValidationError{
			Field:   "deduplication.hash_algorithm",
			Message: fmt.Sprintf("invalid hash algorithm: %s (valid: md5, sha256, sha1)", cfg.HashAlgorithm),
		}
	}

	if cfg.TTL <= 0 {
		return &ValidationError{
			Field:   "deduplication.ttl",
			Message: "TTL must be positive",
		}
	}

	nd := cfg.NearDuplicate
	if nd.Enabled {
		if nd.Threshold <= 0 || nd.Threshold > 1 {
			return &ValidationError{
				Field:   "deduplication.near_duplicate.threshold",
				Message: fmt.Sprintf("threshold must be in (0, 1], got %v", nd.Threshold),
			}
		}
		if nd.MaxCandidates < 1 {
			return &ValidationError{
				Field:   "deduplication.near_duplicate.max_candidates",
				Message: "max_candidates must be at least 1",
			}
		}
		if nd.Window <= 0 {
			return &ValidationError{
				Field:   "deduplication.near_duplicate.window",
				Message: "window must be positive",
			}
		}
		if nd.Policy != "suppress" && nd.Policy != "defer" {
			return &ValidationError{
				Field:   "deduplication.near_duplicate.policy",
				Message: fmt.Sprintf("invalid policy: %s (valid: suppress, defer)", nd.Policy),
			}
		}
	}

	if cfg.Digest.Enabled && cfg.Digest.Window <= 0 {
		return &ValidationError{
			Field:   "deduplication.digest.window",
			Message: "window must be positive",
		}
	}

	return nil
}

func validateFatigue(cfg FatigueConfig) error {
	if cfg.GlobalHourlyCap < 0 {
		return &ValidationError{
			Field:   "fatigue.global_hourly_cap",
			Message: "cap must be non-negative (0 disables it)",
		}
	}

	validChannels := map[string]bool{"push": true, "email": true, "sms": true, "in_app": true}
	for ch, limit := range cfg.ChannelHourlyCaps {
		if !validChannels[ch] {
			return &ValidationError{
				Field:   "fatigue.channel_hourly_caps." + ch,
				Message: "unknown channel",
			}
		}
		if limit < 0 {
			return &ValidationError{
				Field:   "fatigue.channel_hourly_caps." + ch,
				Message: "cap must be non-negative (0 disables it)",
			}
		}
	}

	if cfg.BurstThreshold > 0 && (cfg.BurstWindow <= 0 || cfg.Cooldown <= 0) {
		return &ValidationError{
			Field:   "fatigue.burst_window",
			Message: "burst_window and cooldown must be positive when burst_threshold is set",
		}
	}

	return nil
}

func validateClassifier(cfg ClassifierConfig) error {
	switch cfg.Provider {
	case "none", "":
	case "genai":
		if cfg.GenAI.Model == "" {
			return &ValidationError{
				Field:   "classifier.genai.model",
				Message: "model is required for the genai provider",
			}
		}
	default:
		return &ValidationError{
			Field:   "classifier.provider",
			Message: fmt.Sprintf("unknown classifier provider: %s (supported: genai, none)", cfg.Provider),
		}
	}

	if cfg.Timeout <= 0 {
		return &ValidationError{
			Field:   "classifier.timeout",
			Message: "timeout must be positive",
		}
	}

	switch strings.ToUpper(cfg.FallbackVerdict) {
	case "SEND_NOW", "DEFER", "SUPPRESS":
	default:
		return &ValidationError{
			Field:   "classifier.fallback_verdict",
			Message: fmt.Sprintf("invalid verdict: %s (valid: SEND_NOW, DEFER, SUPPRESS)", cfg.FallbackVerdict),
		}
	}

	return nil
}

func validateOrchestrator(cfg OrchestratorConfig) error {
	if cfg.Budget <= 0 {
		return &ValidationError{
			Field:   "orchestrator.budget",
			Message: "budget must be positive",
		}
	}

	if cfg.DefaultDeferDelay <= 0 {
		return &ValidationError{
			Field:   "orchestrator.default_defer_delay",
			Message: "default defer delay must be positive",
		}
	}

	if cfg.SideEffectTimeout <= 0 {
		return &ValidationError{
			Field:   "orchestrator.side_effect_timeout",
			Message: "side effect timeout must be positive",
		}
	}

	return nil
}
