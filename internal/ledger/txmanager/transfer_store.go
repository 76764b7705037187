package txmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/ledger/store"
)

const transferColumns = `id, ledger_id, type, status, reference, amount, currency, description,
	source_account_id, destination_account_id, destinations, correlation_id, metadata, is_hold,
	hold_expires_at, parent_id, is_reversal, committed_amount, refunded_amount, exchange_rate,
	effective_date, posted_at, created_at`

func insertTransfer(ctx context.Context, q store.Queryer, d dialect.Dialect, t *domain.Transfer) error {
	destJSON, err := json.Marshal(t.Destinations)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to marshal destinations")
	}
	metaJSON, err := json.Marshal(t.Metadata)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to marshal metadata")
	}

	ph := make([]string, 23)
	for i := range ph {
		ph[i] = d.Placeholder(i + 1)
	}
	sql := fmt.Sprintf(`INSERT INTO transfers (%s) VALUES (%s)`, transferColumns, joinComma(ph))

	_, err = store.RawMutate(ctx, q, sql,
		t.ID, t.LedgerID, t.Type, t.Status, t.Reference, t.Amount, t.Currency, t.Description,
		t.SourceAccountID, t.DestinationAccountID, destJSON, t.CorrelationID, metaJSON, t.IsHold,
		t.HoldExpiresAt, t.ParentID, t.IsReversal, t.CommittedAmount, t.RefundedAmount, t.ExchangeRate,
		t.EffectiveDate, t.PostedAt, t.CreatedAt)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to insert transfer")
	}
	return nil
}

// InsertTransfers appends every transfer in one multi-row INSERT, the
// batched counterpart to insertTransfer used by the batch engine (spec
// §4.7's transfers write axis). Exported because the batch engine lives
// in its own package and has no other way to reach the transfers table.
func InsertTransfers(ctx context.Context, q store.Queryer, d dialect.Dialect, transfers []*domain.Transfer) error {
	if len(transfers) == 0 {
		return nil
	}
	const width = 23
	rows := make([]string, len(transfers))
	args := make([]any, 0, len(transfers)*width)
	for i, t := range transfers {
		destJSON, err := json.Marshal(t.Destinations)
		if err != nil {
			return ledgererr.Wrap(ledgererr.Internal, err, "failed to marshal destinations")
		}
		metaJSON, err := json.Marshal(t.Metadata)
		if err != nil {
			return ledgererr.Wrap(ledgererr.Internal, err, "failed to marshal metadata")
		}
		base := i * width
		ph := make([]string, width)
		for j := range ph {
			ph[j] = d.Placeholder(base + j + 1)
		}
		rows[i] = fmt.Sprintf("(%s)", joinComma(ph))
		args = append(args,
			t.ID, t.LedgerID, t.Type, t.Status, t.Reference, t.Amount, t.Currency, t.Description,
			t.SourceAccountID, t.DestinationAccountID, destJSON, t.CorrelationID, metaJSON, t.IsHold,
			t.HoldExpiresAt, t.ParentID, t.IsReversal, t.CommittedAmount, t.RefundedAmount, t.ExchangeRate,
			t.EffectiveDate, t.PostedAt, t.CreatedAt)
	}
	sql := fmt.Sprintf(`INSERT INTO transfers (%s) VALUES %s`, transferColumns, joinComma(rows))
	if _, err := store.RawMutate(ctx, q, sql, args...); err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to insert transfers")
	}
	return nil
}

func scanTransfer(row pgx.Row) (*domain.Transfer, error) {
	var t domain.Transfer
	var destJSON, metaJSON []byte
	err := row.Scan(&t.ID, &t.LedgerID, &t.Type, &t.Status, &t.Reference, &t.Amount, &t.Currency, &t.Description,
		&t.SourceAccountID, &t.DestinationAccountID, &destJSON, &t.CorrelationID, &metaJSON, &t.IsHold,
		&t.HoldExpiresAt, &t.ParentID, &t.IsReversal, &t.CommittedAmount, &t.RefundedAmount, &t.ExchangeRate,
		&t.EffectiveDate, &t.PostedAt, &t.CreatedAt)
	if err != nil {
		return nil, err
	}
	if len(destJSON) > 0 {
		_ = json.Unmarshal(destJSON, &t.Destinations)
	}
	if len(metaJSON) > 0 {
		_ = json.Unmarshal(metaJSON, &t.Metadata)
	}
	return &t, nil
}

func getTransferByID(ctx context.Context, q store.Queryer, d dialect.Dialect, ledgerID, id string) (*domain.Transfer, error) {
	sql := fmt.Sprintf(`SELECT %s FROM transfers WHERE ledger_id = %s AND id = %s`,
		transferColumns, d.Placeholder(1), d.Placeholder(2))
	t, err := scanTransfer(q.QueryRow(ctx, sql, ledgerID, id))
	if err == pgx.ErrNoRows {
		return nil, ledgererr.Newf(ledgererr.NotFound, "transfer %q not found", id)
	}
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to load transfer")
	}
	return t, nil
}

// lockTransferByID locks the transfer row under the dialect's FOR UPDATE
// clause, for status-transition operations (commit/void/refund).
func lockTransferByID(ctx context.Context, q store.Queryer, d dialect.Dialect, ledgerID, id string) (*domain.Transfer, error) {
	sql := fmt.Sprintf(`SELECT %s FROM transfers WHERE ledger_id = %s AND id = %s %s`,
		transferColumns, d.Placeholder(1), d.Placeholder(2), d.ForUpdate())
	t, err := scanTransfer(q.QueryRow(ctx, sql, ledgerID, id))
	if err == pgx.ErrNoRows {
		return nil, ledgererr.Newf(ledgererr.NotFound, "transfer %q not found", id)
	}
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to lock transfer")
	}
	return t, nil
}

func getTransferByReference(ctx context.Context, q store.Queryer, d dialect.Dialect, ledgerID, reference string) (*domain.Transfer, error) {
	sql := fmt.Sprintf(`SELECT %s FROM transfers WHERE ledger_id = %s AND reference = %s`,
		transferColumns, d.Placeholder(1), d.Placeholder(2))
	t, err := scanTransfer(q.QueryRow(ctx, sql, ledgerID, reference))
	if err == pgx.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to load transfer by reference")
	}
	return t, nil
}

func updateTransferStatus(ctx context.Context, q store.Queryer, d dialect.Dialect, ledgerID string, t *domain.Transfer) error {
	sql := fmt.Sprintf(`UPDATE transfers SET status=%s, committed_amount=%s, refunded_amount=%s, posted_at=%s
		WHERE ledger_id=%s AND id=%s`,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5), d.Placeholder(6))
	_, err := store.RawMutate(ctx, q, sql, t.Status, t.CommittedAmount, t.RefundedAmount, t.PostedAt, ledgerID, t.ID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to update transfer status")
	}
	return nil
}

func logStatusChange(ctx context.Context, q store.Queryer, d dialect.Dialect, entityType, entityID, previous, status, reason string) error {
	sql := fmt.Sprintf(`INSERT INTO entity_status_log (id, entity_type, entity_id, previous_status, status, reason, at)
		VALUES (%s,%s,%s,%s,%s,%s,%s)`,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5), d.Placeholder(6), d.Placeholder(7))
	_, err := store.RawMutate(ctx, q, sql, newID(), entityType, entityID, previous, status, reason, time.Now().UTC())
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to append status log entry")
	}
	return nil
}

func joinComma(ss []string) string {
	out := ss[0]
	for _, s := range ss[1:] {
		out += ", " + s
	}
	return out
}
