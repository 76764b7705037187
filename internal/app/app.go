// Package app wires every ledger component into a runnable HTTP server,
// grounded on the teacher's internal/pkg/components.Container: one
// struct assembled in dependency order, with Start serving HTTP and then
// shutting the server down gracefully on SIGINT/SIGTERM.
package app

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/handlers"
	"ledgercore/internal/api/routes"
	"ledgercore/internal/config"
	"ledgercore/internal/infrastructure/database/postgres"
	"ledgercore/internal/infrastructure/messaging/kafka"
	"ledgercore/internal/ledger/accountresolver"
	"ledgercore/internal/ledger/batch"
	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/hold"
	"ledgercore/internal/ledger/idempotency"
	"ledgercore/internal/ledger/ledgerctx"
	"ledgercore/internal/ledger/outbox"
	"ledgercore/internal/ledger/poster"
	"ledgercore/internal/ledger/store"
	"ledgercore/internal/ledger/sweeper"
	"ledgercore/internal/ledger/txmanager"
	"ledgercore/internal/ledger/velocity"
	"ledgercore/internal/pkg/logging"
)

// Container holds every wired component for the lifetime of the process.
type Container struct {
	Config     *config.Config
	Logger     *logging.Logger
	Ledger     *ledgerctx.Context
	Batch      *batch.Engine
	Sweeper    *sweeper.Sweeper
	Dispatcher *kafka.Dispatcher
	Router     *gin.Engine
	Server     *http.Server

	cancel context.CancelFunc
}

// New loads configuration, connects to Postgres, wires the ledger's core
// components and the HTTP server, and applies the schema migration.
func New(ctx context.Context) (*Container, error) {
	c := &Container{}
	c.Config = config.Load()
	c.Logger = logging.New(c.Config.Logging.Level, c.Config.Logging.Format)

	adapter, err := postgres.Connect(ctx, c.Config.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	if err := postgres.Migrate(ctx, adapter); err != nil {
		return nil, fmt.Errorf("failed to apply migrations: %w", err)
	}

	lockMode := domain.LockWait
	switch c.Config.Ledger.LockMode {
	case "nowait":
		lockMode = domain.LockNoWait
	case "optimistic":
		lockMode = domain.LockOptimistic
	}

	c.Ledger = &ledgerctx.Context{
		Adapter:     adapter,
		ReadAdapter: adapter,
		Logger:      c.Logger,
		Options: ledgerctx.Options{
			LedgerID: c.Config.Ledger.Schema,
			Schema:   c.Config.Ledger.Schema,
			Currency: c.Config.Ledger.Currency,
			Advanced: ledgerctx.AdvancedOptions{
				MaxTransactionAmount: c.Config.Ledger.MaxTransactionAmount,
				HMACSecret:           []byte(c.Config.Ledger.HMACSecret),
				LockMode:             lockMode,
				IdempotencyTTL:       c.Config.Ledger.IdempotencyTTLMs,
				EnableBatching:       c.Config.Ledger.EnableBatching,
			},
			SystemAccounts: map[string]string{"world": c.Config.Ledger.WorldAccount},
		},
	}

	d := dialect.Postgres{}
	resolver := accountresolver.New(d, c.Ledger.Options.Advanced.HMACSecret)
	p := poster.New(d, c.Ledger.Options.Advanced.HMACSecret)
	v := velocity.New(d)
	idem := idempotency.New(d)
	ob := outbox.New(d)

	manager := txmanager.New(resolver, p, v, idem, ob)
	holds := hold.New(resolver, p, v, idem, ob)

	var batchEngine *batch.Engine
	if c.Ledger.Options.Advanced.EnableBatching {
		batchEngine = batch.New(c.Ledger, manager, c.Config.Ledger.BatchMaxSize, c.Config.Ledger.BatchFlushInterval, c.Logger)
		c.Batch = batchEngine
	}

	c.Sweeper = sweeper.New(c.Ledger, holds, time.Second, 100, c.Logger)

	if os.Getenv("KAFKA_ENABLED") != "false" {
		producer, err := kafka.NewProducer(c.Config.Kafka, c.Logger)
		if err != nil {
			c.Logger.Warn("failed to initialize kafka producer, outbox dispatch disabled", map[string]interface{}{"error": err.Error()})
		} else {
			c.Dispatcher = kafka.NewDispatcher(ob, adapter, producer, c.Config.Kafka.PollInterval, c.Config.Kafka.BatchSize, c.Logger)
		}
	}

	if os.Getenv("ENVIRONMENT") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}
	c.Router = gin.New()
	routes.Register(c.Router, &handlers.Container{
		Ledger:   c.Ledger,
		Resolver: resolver,
		Manager:  manager,
		Holds:    holds,
		Batch:    batchEngine,
	}, c.Logger)

	c.Server = &http.Server{
		Addr:           c.Config.Server.Host + ":" + c.Config.Server.Port,
		Handler:        c.Router,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   15 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20,
	}

	return c, nil
}

// Start runs the background workers and serves HTTP until a termination
// signal arrives, then shuts everything down gracefully.
func (c *Container) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel

	if c.Batch != nil {
		go c.Batch.Run(ctx)
	}
	go c.Sweeper.Run(ctx)
	if c.Dispatcher != nil {
		go c.Dispatcher.Run(ctx)
	}

	go func() {
		c.Logger.Info("starting HTTP server", map[string]interface{}{"address": c.Server.Addr})
		if err := c.Server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			c.Logger.Error("server failed to start", err, nil)
			os.Exit(1)
		}
	}()

	c.waitForShutdown()
	return nil
}

func (c *Container) waitForShutdown() {
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	c.Logger.Info("shutting down", nil)
	c.cancel()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := c.Server.Shutdown(ctx); err != nil {
		c.Logger.Error("server forced to shutdown", err, nil)
	}
	c.Logger.Info("shutdown complete", nil)
}
