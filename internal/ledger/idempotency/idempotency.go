// Package idempotency implements the Idempotency Layer of spec §4.6: a
// (ledger, key) -> cached result map checked and written inside the same
// backing-store transaction that performs the posting, so a race can
// never cause double-posting. Grounded on the teacher's
// processed_operations table and AtomicDepositWithIdempotency pattern in
// internal/infrastructure/database/postgres/postgres.go (check-then-lock-
// then-insert, all inside one transaction), generalized to an upsert
// keyed by (ledger_id, key) with a TTL instead of a bespoke unique key.
package idempotency

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/ledger/store"
)

type Layer struct {
	Dialect dialect.Dialect
}

func New(d dialect.Dialect) *Layer {
	return &Layer{Dialect: d}
}

// CheckResult is what CheckKey reports.
type CheckResult struct {
	AlreadyProcessed bool
	CachedResult     []byte
}

// CheckKey looks up (ledgerID, key) inside the caller's transaction. If
// key is nil, idempotency is not requested and CheckKey always reports
// "new" without touching the table.
func (l *Layer) CheckKey(ctx context.Context, q store.Queryer, ledgerID string, key *string, reference string) (CheckResult, error) {
	if key == nil || *key == "" {
		return CheckResult{}, nil
	}

	sql := fmt.Sprintf(`SELECT cached_result FROM idempotency_keys
		WHERE ledger_id = %s AND key = %s AND expires_at > %s`,
		l.Dialect.Placeholder(1), l.Dialect.Placeholder(2), l.Dialect.Placeholder(3))

	var cached []byte
	err := q.QueryRow(ctx, sql, ledgerID, *key, time.Now().UTC()).Scan(&cached)
	if err == pgx.ErrNoRows {
		return CheckResult{}, nil
	}
	if err != nil {
		return CheckResult{}, ledgererr.Wrap(ledgererr.Internal, err, "failed to check idempotency key")
	}
	return CheckResult{AlreadyProcessed: true, CachedResult: cached}, nil
}

// SaveKey upserts (ledgerID, key) -> result with expires_at = now + ttl.
// Only successes are cached per spec §7: a failed operation must never
// call SaveKey.
func (l *Layer) SaveKey(ctx context.Context, q store.Queryer, ledgerID, key, reference string, result []byte, ttl time.Duration) error {
	if key == "" {
		return nil
	}

	onConflict := l.Dialect.OnConflictDoUpdate([]string{"ledger_id", "key"}, []string{"reference", "cached_result", "expires_at"})
	sql := fmt.Sprintf(`INSERT INTO idempotency_keys (ledger_id, key, reference, cached_result, expires_at, created_at)
		VALUES (%s,%s,%s,%s,%s,%s) %s`,
		l.Dialect.Placeholder(1), l.Dialect.Placeholder(2), l.Dialect.Placeholder(3), l.Dialect.Placeholder(4),
		l.Dialect.Placeholder(5), l.Dialect.Placeholder(6), onConflict)

	now := time.Now().UTC()
	_, err := store.RawMutate(ctx, q, sql, ledgerID, key, reference, result, now.Add(ttl), now)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to save idempotency key")
	}
	return nil
}

// PendingSave is one key to persist, used by SaveKeyMany.
type PendingSave struct {
	Key       string
	Reference string
	Result    []byte
	TTL       time.Duration
}

// SaveKeyMany upserts every save in one multi-row statement, the batched
// counterpart to SaveKey (spec §4.7's idempotency-keys write axis). Saves
// with an empty Key are skipped, matching SaveKey's no-op behavior.
func (l *Layer) SaveKeyMany(ctx context.Context, q store.Queryer, ledgerID string, saves []PendingSave) error {
	const width = 6
	vals := make([]string, 0, len(saves))
	args := make([]any, 0, len(saves)*width)
	now := time.Now().UTC()
	for _, s := range saves {
		if s.Key == "" {
			continue
		}
		base := len(vals) * width
		ph := make([]string, width)
		for j := range ph {
			ph[j] = l.Dialect.Placeholder(base + j + 1)
		}
		vals = append(vals, fmt.Sprintf("(%s)", strings.Join(ph, ",")))
		ttl := s.TTL
		if ttl <= 0 {
			ttl = 24 * time.Hour
		}
		args = append(args, ledgerID, s.Key, s.Reference, s.Result, now.Add(ttl), now)
	}
	if len(vals) == 0 {
		return nil
	}

	onConflict := l.Dialect.OnConflictDoUpdate([]string{"ledger_id", "key"}, []string{"reference", "cached_result", "expires_at"})
	sql := fmt.Sprintf(`INSERT INTO idempotency_keys (ledger_id, key, reference, cached_result, expires_at, created_at)
		VALUES %s %s`, strings.Join(vals, ", "), onConflict)

	if _, err := store.RawMutate(ctx, q, sql, args...); err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to save idempotency keys")
	}
	return nil
}

// Sweep purges expired rows in bounded batches (external worker per spec
// §4.6). The table's primary key is the composite (ledger_id, key), not key
// alone, so the DELETE must match on both columns: the same key string can
// legitimately exist in more than one ledger, and a bare "key IN (...)"
// would evict a still-live row in one ledger because a same-named key
// expired in another.
func Sweep(ctx context.Context, a *store.Adapter, batchSize int) (int64, error) {
	sql := fmt.Sprintf(`DELETE FROM idempotency_keys WHERE (ledger_id, key) IN (
		SELECT ledger_id, key FROM idempotency_keys WHERE expires_at < %s LIMIT %s)`,
		a.Dialect.Placeholder(1), a.Dialect.Placeholder(2))
	affected, err := store.RawMutate(ctx, a.Pool, sql, time.Now().UTC(), batchSize)
	if err != nil {
		return 0, err
	}
	return affected, nil
}
