// Package velocity implements the Velocity Limiter of spec §4.5: per
// transaction, daily, and monthly caps checked against a prunable
// velocity log rather than the immutable (and unprunable) entry log, so
// cleanup never has to delete append-only history.
package velocity

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/ledger/store"
)

type Limiter struct {
	Dialect dialect.Dialect
}

func New(d dialect.Dialect) *Limiter {
	return &Limiter{Dialect: d}
}

// Record appends a velocity log row for the posting that just happened.
// Called from inside the same posting transaction as the entry insert so
// enforcement and recording are atomic with the write.
func (l *Limiter) Record(ctx context.Context, q store.Queryer, ledgerID, accountID, txnType string, category *string, amount int64, currency string) error {
	sql := fmt.Sprintf(`INSERT INTO velocity_log (id, ledger_id, account_id, txn_type, category, amount, currency, created_at)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s)`,
		l.Dialect.Placeholder(1), l.Dialect.Placeholder(2), l.Dialect.Placeholder(3), l.Dialect.Placeholder(4),
		l.Dialect.Placeholder(5), l.Dialect.Placeholder(6), l.Dialect.Placeholder(7), l.Dialect.Placeholder(8))
	_, err := store.RawMutate(ctx, q, sql, uuid.NewString(), ledgerID, accountID, txnType, category, amount, currency, time.Now().UTC())
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to record velocity log entry")
	}
	return nil
}

type limitRow struct {
	limitType domain.LimitType
	category  *string
	maxAmount int64
}

func (l *Limiter) loadLimits(ctx context.Context, q store.Queryer, accountID string) ([]limitRow, error) {
	sql := fmt.Sprintf(`SELECT limit_type, category, max_amount FROM account_limits
		WHERE account_id = %s AND enabled = true`, l.Dialect.Placeholder(1))
	rows, err := q.Query(ctx, sql, accountID)
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to load account limits")
	}
	defer rows.Close()

	var out []limitRow
	for rows.Next() {
		var r limitRow
		if err := rows.Scan(&r.limitType, &r.category, &r.maxAmount); err != nil {
			return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to scan account limit")
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

func (l *Limiter) windowSum(ctx context.Context, q store.Queryer, ledgerID, accountID, txnType string, category *string, since time.Time) (int64, error) {
	args := []any{accountID, since}
	conds := fmt.Sprintf("account_id = %s AND created_at >= %s", l.Dialect.Placeholder(1), l.Dialect.Placeholder(2))
	if txnType != "" {
		args = append(args, txnType)
		conds += fmt.Sprintf(" AND txn_type = %s", l.Dialect.Placeholder(len(args)))
	}
	if category != nil {
		args = append(args, *category)
		conds += fmt.Sprintf(" AND category = %s", l.Dialect.Placeholder(len(args)))
	}
	sql := fmt.Sprintf(`SELECT COALESCE(SUM(amount), 0) FROM velocity_log WHERE %s`, conds)
	var sum int64
	if err := q.QueryRow(ctx, sql, args...).Scan(&sum); err != nil {
		return 0, ledgererr.Wrap(ledgererr.Internal, err, "failed to aggregate velocity usage")
	}
	return sum, nil
}

// EnforceLimitsWithAccountID checks per_transaction, then daily, then
// monthly limits for accountID/txnType/category against amount, returning
// the first violating limit (spec §4.5). Must be called inside the
// posting transaction for atomicity with the write.
func (l *Limiter) EnforceLimitsWithAccountID(ctx context.Context, q store.Queryer, ledgerID, accountID, txnType string, category *string, amount int64) error {
	limits, err := l.loadLimits(ctx, q, accountID)
	if err != nil {
		return err
	}
	if len(limits) == 0 {
		return nil
	}

	byType := map[domain.LimitType][]limitRow{}
	for _, r := range limits {
		byType[r.limitType] = append(byType[r.limitType], r)
	}

	matchesCategory := func(r limitRow) bool {
		return r.category == nil || category == nil || *r.category == *category
	}

	for _, r := range byType[domain.LimitPerTransaction] {
		if matchesCategory(r) && amount > r.maxAmount {
			return ledgererr.Newf(ledgererr.LimitExceeded, "per-transaction limit exceeded: %d > %d", amount, r.maxAmount)
		}
	}

	now := time.Now().UTC()
	dayStart := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	for _, r := range byType[domain.LimitDaily] {
		if !matchesCategory(r) {
			continue
		}
		used, err := l.windowSum(ctx, q, ledgerID, accountID, txnType, r.category, dayStart)
		if err != nil {
			return err
		}
		if used+amount > r.maxAmount {
			return ledgererr.Newf(ledgererr.LimitExceeded, "daily limit exceeded: %d + %d > %d", used, amount, r.maxAmount)
		}
	}

	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	for _, r := range byType[domain.LimitMonthly] {
		if !matchesCategory(r) {
			continue
		}
		used, err := l.windowSum(ctx, q, ledgerID, accountID, txnType, r.category, monthStart)
		if err != nil {
			return err
		}
		if used+amount > r.maxAmount {
			return ledgererr.Newf(ledgererr.LimitExceeded, "monthly limit exceeded: %d + %d > %d", used, amount, r.maxAmount)
		}
	}

	return nil
}

// Cleanup drops velocity_log rows older than retention in bounded
// batches, pausing briefly between batches to avoid long table locks
// (spec §4.5). This is the auxiliary-job exception to "no error is
// swallowed": callers should log and continue across batches.
func (l *Limiter) Cleanup(ctx context.Context, a *store.Adapter, retention time.Duration, batchSize int, pause time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-retention)
	sql := fmt.Sprintf(`DELETE FROM velocity_log WHERE id IN (
		SELECT id FROM velocity_log WHERE created_at < %s LIMIT %s)`,
		l.Dialect.Placeholder(1), l.Dialect.Placeholder(2))

	var total int64
	for {
		affected, err := store.RawMutate(ctx, a.Pool, sql, cutoff, batchSize)
		if err != nil {
			return total, err
		}
		total += affected
		if affected < int64(batchSize) {
			return total, nil
		}
		select {
		case <-ctx.Done():
			return total, ledgererr.Wrap(ledgererr.Timeout, ctx.Err(), "velocity cleanup canceled")
		case <-time.After(pause):
		}
	}
}
