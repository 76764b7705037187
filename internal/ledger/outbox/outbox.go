// Package outbox implements the transactional Outbox of spec §4.8: each
// mutating operation appends a (topic, payload) row in the same
// transaction as its posting, guaranteeing at-least-once delivery once an
// external dispatcher drains the table. Grounded on the teacher's Kafka
// event-publishing shape (internal/infrastructure/messaging/events.go),
// moved from "publish inline over the network" to "append transactionally,
// let a dispatcher deliver" per spec §4.8/§6.
package outbox

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/ledger/store"
)

type Outbox struct {
	Dialect dialect.Dialect
}

func New(d dialect.Dialect) *Outbox {
	return &Outbox{Dialect: d}
}

// Append inserts one outbox row for topic carrying payload, marshaled to JSON.
func (o *Outbox) Append(ctx context.Context, q store.Queryer, topic string, payload any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to marshal outbox payload")
	}

	sql := fmt.Sprintf(`INSERT INTO outbox (id, topic, payload, created_at) VALUES (%s,%s,%s,%s)`,
		o.Dialect.Placeholder(1), o.Dialect.Placeholder(2), o.Dialect.Placeholder(3), o.Dialect.Placeholder(4))

	_, err = store.RawMutate(ctx, q, sql, uuid.NewString(), topic, body, time.Now().UTC())
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to append outbox entry")
	}
	return nil
}

// PendingAppend is one row to append, used by AppendMany.
type PendingAppend struct {
	Topic   string
	Payload any
}

// AppendMany inserts every row in one multi-row INSERT, the batched
// counterpart to Append (spec §4.7's outbox write axis).
func (o *Outbox) AppendMany(ctx context.Context, q store.Queryer, rows []PendingAppend) error {
	if len(rows) == 0 {
		return nil
	}
	const width = 4
	vals := make([]string, len(rows))
	args := make([]any, 0, len(rows)*width)
	now := time.Now().UTC()
	for i, r := range rows {
		body, err := json.Marshal(r.Payload)
		if err != nil {
			return ledgererr.Wrap(ledgererr.Internal, err, "failed to marshal outbox payload")
		}
		base := i * width
		ph := make([]string, width)
		for j := range ph {
			ph[j] = o.Dialect.Placeholder(base + j + 1)
		}
		vals[i] = fmt.Sprintf("(%s)", strings.Join(ph, ","))
		args = append(args, uuid.NewString(), r.Topic, body, now)
	}
	sql := fmt.Sprintf(`INSERT INTO outbox (id, topic, payload, created_at) VALUES %s`, strings.Join(vals, ", "))
	if _, err := store.RawMutate(ctx, q, sql, args...); err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to append outbox entries")
	}
	return nil
}

// Row is one pending outbox entry as read back by a dispatcher.
type Row struct {
	ID        string
	Topic     string
	Payload   []byte
	CreatedAt time.Time
}

// PollPending reads up to limit outbox rows, oldest first, for an
// external dispatcher to publish. This is outside the core's
// transactional boundary: the dispatcher is a separate process/consumer
// per spec §1/§4.8.
func (o *Outbox) PollPending(ctx context.Context, a *store.Adapter, limit int) ([]Row, error) {
	sql := fmt.Sprintf(`SELECT id, topic, payload, created_at FROM outbox ORDER BY created_at ASC LIMIT %s`,
		o.Dialect.Placeholder(1))
	return store.Raw(ctx, a.Pool, sql, []any{limit}, func(rows pgx.Rows) (Row, error) {
		var r Row
		err := rows.Scan(&r.ID, &r.Topic, &r.Payload, &r.CreatedAt)
		return r, err
	})
}

// Delete removes delivered rows by id, matching "at-least-once... reads,
// publishes, and deletes or marks delivered" (spec §4.8).
func (o *Outbox) Delete(ctx context.Context, a *store.Adapter, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	sql := fmt.Sprintf(`DELETE FROM outbox WHERE id = ANY(%s)`, o.Dialect.Placeholder(1))
	_, err := store.RawMutate(ctx, a.Pool, sql, ids)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to delete delivered outbox rows")
	}
	return nil
}
