// Package sweeper implements the Expiry Sweeper of spec §4.3/§4.8: a
// periodic worker that selects expired-and-inflight holds with
// FOR UPDATE SKIP LOCKED so it never blocks live commit/void traffic.
// Grounded on the teacher's background-worker shape in
// internal/infrastructure/messaging/kafka/async_producer.go (a
// ticker-driven loop with graceful shutdown), retargeted at hold expiry
// instead of async message flushing.
package sweeper

import (
	"context"
	"time"

	"ledgercore/internal/ledger/hold"
	"ledgercore/internal/ledger/ledgerctx"
	"ledgercore/internal/pkg/logging"
)

// Sweeper periodically expires holds for one ledger context.
type Sweeper struct {
	Ledger    *ledgerctx.Context
	Holds     *hold.Manager
	Interval  time.Duration
	BatchSize int
	Logger    *logging.Logger
}

func New(lc *ledgerctx.Context, h *hold.Manager, interval time.Duration, batchSize int, logger *logging.Logger) *Sweeper {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Sweeper{Ledger: lc, Holds: h, Interval: interval, BatchSize: batchSize, Logger: logger}
}

// Run blocks, sweeping on Interval until ctx is canceled. Per-hold
// failures are logged and do not abort the batch (spec §4.3).
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.sweepOnce(ctx)
		}
	}
}

func (s *Sweeper) sweepOnce(ctx context.Context) {
	ids, err := hold.CandidateExpiredHoldIDs(ctx, s.Ledger.Adapter, s.Ledger.Options.LedgerID, s.BatchSize)
	if err != nil {
		s.Logger.Error("sweeper: failed to list expired holds", err, nil)
		return
	}

	var expired int
	for _, id := range ids {
		ok, err := s.Holds.ExpireOne(ctx, s.Ledger, id)
		if err != nil {
			s.Logger.Error("sweeper: failed to expire hold", err, map[string]interface{}{"hold_id": id})
			continue
		}
		if ok {
			expired++
		}
	}
	if expired > 0 {
		s.Logger.Info("sweeper: expired holds", map[string]interface{}{"count": expired, "candidates": len(ids)})
	}
}
