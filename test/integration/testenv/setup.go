package testenv

import (
	"time"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/handlers"
	"ledgercore/internal/api/routes"
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
	"ledgercore/internal/ledger/txmanager"
	"ledgercore/internal/ledger/velocity"
	"ledgercore/internal/pkg/logging"
)

// SetupTestRouter wires a real gin.Engine against adapter, exactly as
// cmd/api/main.go does, for handler-level integration tests. Grounded on
// the teacher's SetupTestRouter, generalized from the global
// database.Repo singleton to an explicit adapter parameter.
func SetupTestRouter(a *store.Adapter) *gin.Engine {
	gin.SetMode(gin.TestMode)

	log := logging.New("error", "text")
	d := dialect.Postgres{}
	hmacSecret := []byte("test-hmac-secret")

	lc := &ledgerctx.Context{
		Adapter:     a,
		ReadAdapter: a,
		Logger:      log,
		Options: ledgerctx.Options{
			LedgerID: "test",
			Schema:   "public",
			Currency: "USD",
			Advanced: ledgerctx.AdvancedOptions{
				MaxTransactionAmount: 1_000_000_00,
				HMACSecret:           hmacSecret,
				LockMode:             domain.LockWait,
				IdempotencyTTL:       int64(24 * 60 * 60 * 1000),
				EnableBatching:       false,
			},
			SystemAccounts: map[string]string{"world": "@World"},
		},
	}

	resolver := accountresolver.New(d, hmacSecret)
	p := poster.New(d, hmacSecret)
	v := velocity.New(d)
	idem := idempotency.New(d)
	ob := outbox.New(d)
	manager := txmanager.New(resolver, p, v, idem, ob)
	holds := hold.New(resolver, p, v, idem, ob)

	router := gin.New()
	routes.Register(router, &handlers.Container{
		Ledger:   lc,
		Resolver: resolver,
		Manager:  manager,
		Holds:    holds,
	}, log)
	return router
}

// SetupBatchRouter wires a router exactly as SetupTestRouter does but with
// options.advanced.enable_batching set, and hands back the underlying
// batch.Engine too so tests can submit directly against it and observe
// per-item outcomes within a shared flush.
func SetupBatchRouter(a *store.Adapter, maxBatchSize int, flushInterval time.Duration) (*gin.Engine, *batch.Engine) {
	gin.SetMode(gin.TestMode)

	log := logging.New("error", "text")
	d := dialect.Postgres{}
	hmacSecret := []byte("test-hmac-secret")

	lc := &ledgerctx.Context{
		Adapter:     a,
		ReadAdapter: a,
		Logger:      log,
		Options: ledgerctx.Options{
			LedgerID: "test",
			Schema:   "public",
			Currency: "USD",
			Advanced: ledgerctx.AdvancedOptions{
				MaxTransactionAmount: 1_000_000_00,
				HMACSecret:           hmacSecret,
				LockMode:             domain.LockWait,
				IdempotencyTTL:       int64(24 * 60 * 60 * 1000),
				EnableBatching:       true,
			},
			SystemAccounts: map[string]string{"world": "@World"},
		},
	}

	resolver := accountresolver.New(d, hmacSecret)
	p := poster.New(d, hmacSecret)
	v := velocity.New(d)
	idem := idempotency.New(d)
	ob := outbox.New(d)
	manager := txmanager.New(resolver, p, v, idem, ob)
	holds := hold.New(resolver, p, v, idem, ob)
	batchEngine := batch.New(lc, manager, maxBatchSize, flushInterval, log)

	router := gin.New()
	routes.Register(router, &handlers.Container{
		Ledger:   lc,
		Resolver: resolver,
		Manager:  manager,
		Holds:    holds,
		Batch:    batchEngine,
	}, log)
	return router, batchEngine
}
