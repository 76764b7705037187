package testenv

import (
	"context"
	"fmt"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"ledgercore/internal/config"
	dbpostgres "ledgercore/internal/infrastructure/database/postgres"
	"ledgercore/internal/ledger/store"
)

var (
	testContainer     *postgres.PostgresContainer
	testContainerOnce sync.Once
	testContainerErr  error
	testAdapter       *store.Adapter
)

// PostgresContainerConfig holds configuration for the test container.
type PostgresContainerConfig struct {
	Database string
	Username string
	Password string
	Image    string
}

func DefaultPostgresConfig() PostgresContainerConfig {
	return PostgresContainerConfig{
		Database: "ledger",
		Username: "ledger",
		Password: "ledger_secure_pass",
		Image:    "postgres:16-alpine",
	}
}

// SetupIntegrationTest starts (once, shared across the package's tests) a
// PostgreSQL testcontainer, applies the schema migration and returns a
// connected store.Adapter. Grounded on the teacher's
// SetupIntegrationTest, generalized from the global database.Repo
// singleton to a returned *store.Adapter per Design Note 1.
func SetupIntegrationTest(t *testing.T) *store.Adapter {
	t.Helper()
	ctx := context.Background()

	testContainerOnce.Do(func() {
		cfg := DefaultPostgresConfig()

		container, err := postgres.Run(ctx,
			cfg.Image,
			postgres.WithDatabase(cfg.Database),
			postgres.WithUsername(cfg.Username),
			postgres.WithPassword(cfg.Password),
			testcontainers.WithWaitStrategy(
				wait.ForLog("database system is ready to accept connections").
					WithOccurrence(2).
					WithStartupTimeout(60*time.Second),
			),
		)
		if err != nil {
			testContainerErr = fmt.Errorf("failed to start PostgreSQL testcontainer: %w", err)
			return
		}
		testContainer = container

		host, err := container.Host(ctx)
		if err != nil {
			testContainerErr = fmt.Errorf("failed to get container host: %w", err)
			return
		}
		port, err := container.MappedPort(ctx, "5432")
		if err != nil {
			testContainerErr = fmt.Errorf("failed to get container port: %w", err)
			return
		}

		dbConfig := config.DatabaseConfig{
			Host:              host,
			Port:              port.Int(),
			Database:          cfg.Database,
			User:              cfg.Username,
			Password:          cfg.Password,
			SSLMode:           "disable",
			MaxOpenConns:      25,
			MaxIdleConns:      5,
			ConnMaxLifetime:   "30m",
			ConnMaxIdleTime:   "5m",
			HealthCheckPeriod: "1m",
		}

		adapter, err := dbpostgres.Connect(ctx, dbConfig)
		if err != nil {
			testContainerErr = fmt.Errorf("failed to connect to test database: %w", err)
			return
		}
		if err := dbpostgres.Migrate(ctx, adapter); err != nil {
			testContainerErr = fmt.Errorf("failed to apply schema migration: %w", err)
			return
		}
		testAdapter = adapter

		connStr, _ := container.ConnectionString(ctx, "sslmode=disable")
		log.Printf("PostgreSQL testcontainer initialized: %s", connStr)
	})

	require.NoError(t, testContainerErr, "failed to initialize test container")
	resetSchema(t, testAdapter)
	return testAdapter
}

// resetSchema truncates every ledger table between tests so each test
// starts from an empty, sequence-reset schema.
func resetSchema(t *testing.T, a *store.Adapter) {
	t.Helper()
	_, err := a.Pool.Exec(context.Background(), `TRUNCATE TABLE
		entity_status_log, outbox, idempotency_keys, velocity_log,
		account_limits, ledger_sequences, hot_chain_heads, entries,
		transfers, accounts RESTART IDENTITY CASCADE`)
	require.NoError(t, err, "failed to reset schema between tests")
}
