package kafka

import (
	"context"
	"time"

	"ledgercore/internal/ledger/outbox"
	"ledgercore/internal/ledger/store"
	"ledgercore/internal/observability/metrics"
	"ledgercore/internal/pkg/logging"
)

// Dispatcher drains the transactional outbox and publishes each row to
// Kafka, implementing the external delivery half of spec §4.8 (the
// ledger core only appends rows; a separate process delivers them).
// Grounded on the teacher's AsyncProducer polling/reporting loop,
// simplified to a poll-publish-delete cycle since outbox delivery is a
// background concern, not a latency-sensitive hot path.
type Dispatcher struct {
	Outbox       *outbox.Outbox
	Adapter      *store.Adapter
	Producer     *Producer
	PollInterval time.Duration
	BatchSize    int
	Log          *logging.Logger
}

func NewDispatcher(ob *outbox.Outbox, a *store.Adapter, p *Producer, pollInterval time.Duration, batchSize int, log *logging.Logger) *Dispatcher {
	return &Dispatcher{Outbox: ob, Adapter: a, Producer: p, PollInterval: pollInterval, BatchSize: batchSize, Log: log}
}

// Run polls until ctx is canceled, publishing and deleting outbox rows
// in fixed-size batches.
func (d *Dispatcher) Run(ctx context.Context) {
	ticker := time.NewTicker(d.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			d.dispatchOnce(ctx)
		}
	}
}

func (d *Dispatcher) dispatchOnce(ctx context.Context) {
	rows, err := d.Outbox.PollPending(ctx, d.Adapter, d.BatchSize)
	if err != nil {
		d.Log.Error("failed to poll outbox", err, nil)
		return
	}
	metrics.OutboxBacklog.Set(float64(len(rows)))
	if len(rows) == 0 {
		return
	}

	delivered := make([]string, 0, len(rows))
	for _, row := range rows {
		if err := d.Producer.Publish(row.Topic, row.ID, row.Payload); err != nil {
			d.Log.Error("failed to publish outbox row", err, map[string]interface{}{
				"outbox_id": row.ID,
				"topic":     row.Topic,
			})
			continue
		}
		metrics.OutboxDispatchedTotal.WithLabelValues(row.Topic).Inc()
		delivered = append(delivered, row.ID)
	}

	if err := d.Outbox.Delete(ctx, d.Adapter, delivered); err != nil {
		d.Log.Error("failed to delete delivered outbox rows", err, nil)
	}
}
