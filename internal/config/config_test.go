package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadAppliesDefaultsWithNoEnv(t *testing.T) {
	cfg := Load()

	assert.Equal(t, "8080", cfg.Server.Port)
	assert.Equal(t, "localhost", cfg.Database.Host)
	assert.Equal(t, 5432, cfg.Database.Port)
	assert.Equal(t, []string{"localhost:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "wait", cfg.Ledger.LockMode)
	assert.True(t, cfg.Ledger.EnableBatching)
}

func TestLoadReadsOverridesFromEnv(t *testing.T) {
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("DB_PORT", "6543")
	t.Setenv("KAFKA_BROKERS", "broker-a:9092,broker-b:9092")
	t.Setenv("LEDGER_ENABLE_BATCHING", "false")
	t.Setenv("LEDGER_BATCH_FLUSH_INTERVAL", "25ms")
	t.Setenv("LEDGER_MAX_TRANSACTION_AMOUNT", "50000")

	cfg := Load()

	assert.Equal(t, "9090", cfg.Server.Port)
	assert.Equal(t, 6543, cfg.Database.Port)
	assert.Equal(t, []string{"broker-a:9092", "broker-b:9092"}, cfg.Kafka.Brokers)
	assert.False(t, cfg.Ledger.EnableBatching)
	assert.Equal(t, 25*time.Millisecond, cfg.Ledger.BatchFlushInterval)
	assert.EqualValues(t, 50000, cfg.Ledger.MaxTransactionAmount)
}

func TestDatabaseConnectionString(t *testing.T) {
	dbCfg := DatabaseConfig{
		Host:     "db.internal",
		Port:     5432,
		User:     "ledger",
		Password: "secret",
		Database: "ledger",
		SSLMode:  "disable",
	}

	assert.Equal(t, "host=db.internal port=5432 user=ledger password=secret dbname=ledger sslmode=disable",
		dbCfg.ConnectionString())
}

func TestGetEnvAsIntIgnoresUnparseableValue(t *testing.T) {
	t.Setenv("DB_MAX_OPEN_CONNS", "not-a-number")
	cfg := Load()
	assert.Equal(t, 25, cfg.Database.MaxOpenConns)
}

func TestGetEnvAsBoolIgnoresUnparseableValue(t *testing.T) {
	t.Setenv("KAFKA_ENABLE_IDEMPOTENCE", "not-a-bool")
	cfg := Load()
	assert.False(t, cfg.Kafka.EnableIdempotence)
}
