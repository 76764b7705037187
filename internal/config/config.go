// Package config loads configuration from the environment, grounded on
// the teacher's src/config/config.go, internal/infrastructure/database/postgres/config.go
// and internal/infrastructure/messaging/kafka/config.go getEnv* helpers.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Logging  LoggingConfig
	Ledger   LedgerConfig
}

type ServerConfig struct {
	Port string
	Host string
}

type DatabaseConfig struct {
	Host              string
	Port              int
	Database          string
	User              string
	Password          string
	SSLMode           string
	MaxOpenConns      int
	MaxIdleConns      int
	ConnMaxLifetime   string
	ConnMaxIdleTime   string
	HealthCheckPeriod string
}

func (c *DatabaseConfig) ConnectionString() string {
	return "host=" + c.Host +
		" port=" + strconv.Itoa(c.Port) +
		" user=" + c.User +
		" password=" + c.Password +
		" dbname=" + c.Database +
		" sslmode=" + c.SSLMode
}

type KafkaConfig struct {
	Brokers           []string
	ClientID          string
	EnableIdempotence bool
	CompressionType   string
	RequiredAcks      string
	MaxRetries        int
	RetryBackoff      time.Duration
	OutboxTopicPrefix string
	PollInterval      time.Duration
	BatchSize         int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// LedgerConfig mirrors options.advanced.* plus options.schema/currency of spec §6.
type LedgerConfig struct {
	Schema               string
	Currency             string
	MaxTransactionAmount int64
	HMACSecret           string
	LockMode             string // wait | nowait | optimistic
	IdempotencyTTLMs     int64
	EnableBatching       bool
	BatchMaxSize         int
	BatchFlushInterval   time.Duration
	WorldAccount         string
	VelocityRetentionDays int
}

func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8080"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:              getEnv("DB_HOST", "localhost"),
			Port:              getEnvAsInt("DB_PORT", 5432),
			Database:          getEnv("DB_NAME", "ledger"),
			User:              getEnv("DB_USER", "ledger"),
			Password:          getEnv("DB_PASSWORD", "ledger_secure_pass"),
			SSLMode:           getEnv("DB_SSLMODE", "disable"),
			MaxOpenConns:      getEnvAsInt("DB_MAX_OPEN_CONNS", 25),
			MaxIdleConns:      getEnvAsInt("DB_MAX_IDLE_CONNS", 5),
			ConnMaxLifetime:   getEnv("DB_CONN_MAX_LIFETIME", "30m"),
			ConnMaxIdleTime:   getEnv("DB_CONN_MAX_IDLE_TIME", "5m"),
			HealthCheckPeriod: getEnv("DB_HEALTH_CHECK_PERIOD", "1m"),
		},
		Kafka: KafkaConfig{
			Brokers:           strings.Split(getEnv("KAFKA_BROKERS", "localhost:9092"), ","),
			ClientID:          getEnv("KAFKA_CLIENT_ID", "ledger-core"),
			EnableIdempotence: getEnvAsBool("KAFKA_ENABLE_IDEMPOTENCE", false),
			CompressionType:   getEnv("KAFKA_COMPRESSION_TYPE", "snappy"),
			RequiredAcks:      getEnv("KAFKA_REQUIRED_ACKS", "all"),
			MaxRetries:        getEnvAsInt("KAFKA_MAX_RETRIES", 5),
			RetryBackoff:      getEnvAsDuration("KAFKA_RETRY_BACKOFF", 100*time.Millisecond),
			OutboxTopicPrefix: getEnv("KAFKA_OUTBOX_TOPIC_PREFIX", ""),
			PollInterval:      getEnvAsDuration("OUTBOX_POLL_INTERVAL", 500*time.Millisecond),
			BatchSize:         getEnvAsInt("OUTBOX_DISPATCH_BATCH_SIZE", 200),
		},
		Logging: LoggingConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "json"),
		},
		Ledger: LedgerConfig{
			Schema:                getEnv("LEDGER_SCHEMA", "public"),
			Currency:              getEnv("LEDGER_DEFAULT_CURRENCY", "USD"),
			MaxTransactionAmount:  getEnvAsInt64("LEDGER_MAX_TRANSACTION_AMOUNT", 1_000_000_00),
			HMACSecret:            getEnv("LEDGER_HMAC_SECRET", ""),
			LockMode:              getEnv("LEDGER_LOCK_MODE", "wait"),
			IdempotencyTTLMs:      getEnvAsInt64("LEDGER_IDEMPOTENCY_TTL_MS", int64(24*time.Hour/time.Millisecond)),
			EnableBatching:        getEnvAsBool("LEDGER_ENABLE_BATCHING", true),
			BatchMaxSize:          getEnvAsInt("LEDGER_BATCH_MAX_SIZE", 100),
			BatchFlushInterval:    getEnvAsDuration("LEDGER_BATCH_FLUSH_INTERVAL", 10*time.Millisecond),
			WorldAccount:          getEnv("LEDGER_WORLD_ACCOUNT", "@World"),
			VelocityRetentionDays: getEnvAsInt("LEDGER_VELOCITY_RETENTION_DAYS", 90),
		},
	}
}

func getEnv(key, defaultValue string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return defaultValue
}

func getEnvAsInt(key string, defaultValue int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsInt64(key string, defaultValue int64) int64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvAsBool(key string, defaultValue bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return defaultValue
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return defaultValue
}
