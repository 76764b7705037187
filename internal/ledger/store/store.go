// Package store is the Storage Adapter of spec §2/§6: it executes
// parameterized statements inside an isolated backing-store transaction
// and exposes raw/rawMutate plus the row-lock modes the rest of the core
// needs. It is grounded on the teacher's direct pgxpool usage in
// internal/infrastructure/database/postgres/postgres.go, generalized
// behind the small interface spec §6 requires. Other core packages still
// import pgx directly for pgx.Tx, pgx.Row and pgx.ErrNoRows.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/ledgererr"
)

// Queryer is the minimal surface the core needs from either a pool or an
// in-flight transaction, so every core component is written once against
// this interface and works unchanged inside Transaction's callback.
type Queryer interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// Adapter wraps a pgxpool.Pool and the dialect describing it.
type Adapter struct {
	Pool    *pgxpool.Pool
	Dialect dialect.Dialect
}

// New builds an Adapter over an already-connected pool.
func New(pool *pgxpool.Pool, d dialect.Dialect) *Adapter {
	return &Adapter{Pool: pool, Dialect: d}
}

// Raw runs a read query using scan and returns every decoded row.
func Raw[T any](ctx context.Context, q Queryer, sql string, args []any, scan func(pgx.Rows) (T, error)) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, classify(err)
	}
	defer rows.Close()

	var out []T
	for rows.Next() {
		v, err := scan(rows)
		if err != nil {
			return nil, classify(err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

// RawMutate executes a statement with no result set, returning affected rows.
func RawMutate(ctx context.Context, q Queryer, sql string, args ...any) (int64, error) {
	tag, err := q.Exec(ctx, sql, args...)
	if err != nil {
		return 0, classify(err)
	}
	return tag.RowsAffected(), nil
}

// TxOptions controls isolation for Transaction.
type TxOptions struct {
	Serializable bool // otherwise RepeatableRead
	Timeout      time.Duration
}

// Transaction runs fn inside a single backing-store transaction. Any
// error returned by fn rolls the transaction back; context cancellation
// or a configured timeout aborts the in-flight statement and rolls back,
// surfacing ledgererr.Timeout, per spec §5 "Timeouts & cancellation".
func Transaction[T any](ctx context.Context, a *Adapter, opts TxOptions, fn func(ctx context.Context, tx pgx.Tx) (T, error)) (T, error) {
	var zero T

	if opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.Timeout)
		defer cancel()
	}

	level := pgx.RepeatableRead
	if opts.Serializable {
		level = pgx.Serializable
	}

	tx, err := a.Pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: level})
	if err != nil {
		return zero, classify(err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // no-op once committed

	result, err := fn(ctx, tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(ctx); err != nil {
		return zero, classify(err)
	}
	return result, nil
}

// Now returns the backing store's clock, used wherever expiry must be
// judged against database time rather than the caller's (spec §4.3
// "Commit... validates not expired against database clock").
func Now(ctx context.Context, q Queryer, d dialect.Dialect) (time.Time, error) {
	var t time.Time
	if err := q.QueryRow(ctx, fmt.Sprintf("SELECT %s", d.Now())).Scan(&t); err != nil {
		return t, classify(err)
	}
	return t, nil
}

// Classify exposes classify to other core packages (e.g. accountresolver's
// lock-acquisition failures) so every pgconn.PgError code is interpreted in
// exactly one place instead of being re-derived from error message text.
func Classify(err error) error {
	return classify(err)
}

// classify maps driver-level failures onto the domain error taxonomy so
// callers never have to inspect pgx/pgconn types directly.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return ledgererr.Wrap(ledgererr.Timeout, err, "backing-store transaction deadline exceeded")
	}
	if errors.Is(err, context.Canceled) {
		return ledgererr.Wrap(ledgererr.Timeout, err, "backing-store transaction canceled")
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return ledgererr.Wrap(ledgererr.NotFound, err, "no matching row")
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case "55P03": // lock_not_available (NOWAIT)
			return ledgererr.Wrap(ledgererr.ResourceBusy, err, "row locked by another transaction")
		case "40001": // serialization_failure
			return ledgererr.Wrap(ledgererr.ResourceBusy, err, "serialization failure, retry")
		case "40P01": // deadlock_detected
			return ledgererr.Wrap(ledgererr.ResourceBusy, err, "deadlock detected, retry")
		}
	}
	return ledgererr.Wrap(ledgererr.Internal, err, "backing-store error")
}
