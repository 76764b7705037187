// Package hold implements the Hold Manager of spec §4.3: a two-phase
// money reservation that increments pending_debit on create and resolves
// it on commit, void, or expiry. Grounded on the same
// AtomicTransfer-style orchestration as txmanager, reusing the Account
// Resolver, Entry/Balance Poster, Velocity Limiter and Outbox.
package hold

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledgercore/internal/ledger/accountresolver"
	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/idempotency"
	"ledgercore/internal/ledger/ledgerctx"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/ledger/outbox"
	"ledgercore/internal/ledger/poster"
	"ledgercore/internal/ledger/store"
	"ledgercore/internal/ledger/velocity"
)

type Manager struct {
	Resolver    *accountresolver.Resolver
	Poster      *poster.Poster
	Velocity    *velocity.Limiter
	Idempotency *idempotency.Layer
	Outbox      *outbox.Outbox
}

func New(resolver *accountresolver.Resolver, p *poster.Poster, v *velocity.Limiter, idem *idempotency.Layer, ob *outbox.Outbox) *Manager {
	return &Manager{Resolver: resolver, Poster: p, Velocity: v, Idempotency: idem, Outbox: ob}
}

func newID() string { return uuid.NewString() }
func ptr[T any](v T) *T { return &v }

// CreateRequest covers both create_hold (single destination) and
// create_multi_destination_hold (Destinations has more than one entry).
type CreateRequest struct {
	Holder         string
	Amount         int64
	Reference      string
	Destinations   []domain.Destination
	ExpiresAt      *time.Time
	CorrelationID  string
	IdempotencyKey *string
	Metadata       map[string]any
}

type CommitRequest struct {
	HoldID string
	Amount *int64
}

type VoidRequest struct {
	HoldID string
	Reason string
}

const transferColumns = `id, ledger_id, type, status, reference, amount, currency, description,
	source_account_id, destination_account_id, destinations, correlation_id, metadata, is_hold,
	hold_expires_at, parent_id, is_reversal, committed_amount, refunded_amount, exchange_rate,
	effective_date, posted_at, created_at`

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

func insertHoldTransfer(ctx context.Context, q store.Queryer, d dialect.Dialect, t *domain.Transfer) error {
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
	out := ph[0]
	for _, p := range ph[1:] {
		out += ", " + p
	}
	sql := fmt.Sprintf(`INSERT INTO transfers (%s) VALUES (%s)`, transferColumns, out)
	_, err = store.RawMutate(ctx, q, sql,
		t.ID, t.LedgerID, t.Type, t.Status, t.Reference, t.Amount, t.Currency, t.Description,
		t.SourceAccountID, t.DestinationAccountID, destJSON, t.CorrelationID, metaJSON, t.IsHold,
		t.HoldExpiresAt, t.ParentID, t.IsReversal, t.CommittedAmount, t.RefundedAmount, t.ExchangeRate,
		t.EffectiveDate, t.PostedAt, t.CreatedAt)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to insert hold transfer")
	}
	return nil
}

// lockHold locks a hold transfer by id, whatever its status; callers
// check the status. skipLocked drives the sweeper's non-blocking selection.
func lockHold(ctx context.Context, q store.Queryer, d dialect.Dialect, ledgerID, id string, skipLocked bool) (*domain.Transfer, error) {
	clause := d.ForUpdate()
	if skipLocked {
		clause = d.ForUpdateSkipLocked()
	}
	sql := fmt.Sprintf(`SELECT %s FROM transfers WHERE ledger_id = %s AND id = %s AND is_hold = true %s`,
		transferColumns, d.Placeholder(1), d.Placeholder(2), clause)
	t, err := scanTransfer(q.QueryRow(ctx, sql, ledgerID, id))
	if err == pgx.ErrNoRows {
		return nil, ledgererr.Newf(ledgererr.NotFound, "hold %q not found", id)
	}
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to lock hold")
	}
	return t, nil
}

func updateHoldStatus(ctx context.Context, q store.Queryer, d dialect.Dialect, t *domain.Transfer) error {
	sql := fmt.Sprintf(`UPDATE transfers SET status=%s, committed_amount=%s, posted_at=%s WHERE id=%s`,
		d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4))
	_, err := store.RawMutate(ctx, q, sql, t.Status, t.CommittedAmount, t.PostedAt, t.ID)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to update hold status")
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

func availableRoom(acc *domain.Account) int64 {
	room := acc.Available() - acc.MinAvailable()
	if room < 0 {
		return 0
	}
	return room
}

// Create implements create_hold / create_multi_destination_hold.
func (m *Manager) Create(ctx context.Context, lc *ledgerctx.Context, req CreateRequest) (*domain.Transfer, error) {
	if req.Amount <= 0 || req.Amount > lc.Options.Advanced.MaxTransactionAmount {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "amount must be in (0, %d], got %d", lc.Options.Advanced.MaxTransactionAmount, req.Amount)
	}
	if req.Reference == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "reference is required")
	}
	var destSum int64
	for _, d := range req.Destinations {
		if d.Amount <= 0 {
			return nil, ledgererr.Newf(ledgererr.InvalidArgument, "destination amount must be positive")
		}
		destSum += d.Amount
	}
	if len(req.Destinations) > 0 && destSum > req.Amount {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "destination amounts sum to %d, exceeding hold amount %d", destSum, req.Amount)
	}

	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.Transfer, error) {
		if req.IdempotencyKey != nil {
			res, err := m.Idempotency.CheckKey(ctx, tx, lc.Options.LedgerID, req.IdempotencyKey, req.Reference)
			if err != nil {
				return nil, err
			}
			if res.AlreadyProcessed {
				var cached domain.Transfer
				if err := json.Unmarshal(res.CachedResult, &cached); err != nil {
					return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to decode cached hold")
				}
				return &cached, nil
			}
		}

		holderAcc, err := m.Resolver.LockAccountForUpdate(ctx, tx, lc.Options.LedgerID, req.Holder, lc.Options.Advanced.LockMode, true)
		if err != nil {
			return nil, err
		}
		if req.Amount > availableRoom(holderAcc) {
			return nil, ledgererr.Newf(ledgererr.InsufficientBal, "insufficient balance: requested %d, available %d", req.Amount, availableRoom(holderAcc))
		}
		if err := m.Velocity.EnforceLimitsWithAccountID(ctx, tx, lc.Options.LedgerID, holderAcc.ID, "hold", nil, req.Amount); err != nil {
			return nil, err
		}

		correlationID := req.CorrelationID
		if correlationID == "" {
			correlationID = newID()
		}

		transfer := &domain.Transfer{
			ID:              newID(),
			LedgerID:        lc.Options.LedgerID,
			Type:            domain.TransferKindMove,
			Status:          domain.StatusInflight,
			Reference:       req.Reference,
			Amount:          req.Amount,
			Currency:        holderAcc.Currency,
			SourceAccountID: ptr(holderAcc.ID),
			Destinations:    req.Destinations,
			CorrelationID:   correlationID,
			Metadata:        req.Metadata,
			IsHold:          true,
			HoldExpiresAt:   req.ExpiresAt,
			EffectiveDate:   time.Now().UTC(),
			CreatedAt:       time.Now().UTC(),
		}
		if err := insertHoldTransfer(ctx, tx, lc.Adapter.Dialect, transfer); err != nil {
			return nil, err
		}
		if err := m.Poster.UpdatePending(ctx, tx, holderAcc, req.Amount, 0); err != nil {
			return nil, err
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicHoldCreated, transfer); err != nil {
			return nil, err
		}

		if req.IdempotencyKey != nil {
			body, err := json.Marshal(transfer)
			if err != nil {
				return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to encode hold for idempotency cache")
			}
			ttl := time.Duration(lc.Options.Advanced.IdempotencyTTL) * time.Millisecond
			if ttl <= 0 {
				ttl = 24 * time.Hour
			}
			if err := m.Idempotency.SaveKey(ctx, tx, lc.Options.LedgerID, *req.IdempotencyKey, req.Reference, body, ttl); err != nil {
				return nil, err
			}
		}
		return transfer, nil
	})
}

// distribute splits commitAmount across destinations, proportional to
// each earlier destination's requested share of the original hold amount.
// The last destination receives commitAmount minus those shares, so it
// absorbs the rounding remainder and any part of the hold amount that the
// destinations' amounts do not cover.
func distribute(destinations []domain.Destination, holdAmount, commitAmount int64) []int64 {
	out := make([]int64, len(destinations))
	if len(destinations) == 0 {
		return out
	}
	var allocated int64
	for i, d := range destinations[:len(destinations)-1] {
		share := (d.Amount * commitAmount) / holdAmount
		out[i] = share
		allocated += share
	}
	out[len(out)-1] = commitAmount - allocated
	return out
}

// Commit implements commit_hold(hold_id, amount?).
func (m *Manager) Commit(ctx context.Context, lc *ledgerctx.Context, req CommitRequest) (*domain.Transfer, error) {
	if req.HoldID == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "hold_id is required")
	}

	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.Transfer, error) {
		hold, err := lockHold(ctx, tx, lc.Adapter.Dialect, lc.Options.LedgerID, req.HoldID, false)
		if err != nil {
			return nil, err
		}
		if hold.Status != domain.StatusInflight {
			return nil, ledgererr.Newf(ledgererr.Conflict, "hold %s is %s, not inflight", hold.ID, hold.Status)
		}

		now, err := store.Now(ctx, tx, lc.Adapter.Dialect)
		if err != nil {
			return nil, err
		}
		if hold.HoldExpiresAt != nil && !now.Before(*hold.HoldExpiresAt) {
			if err := m.releaseAndTransition(ctx, tx, lc, hold, domain.StatusExpired, "expired at commit time"); err != nil {
				return nil, err
			}
			return nil, ledgererr.Newf(ledgererr.HoldExpired, "hold %s expired", hold.ID)
		}

		commitAmount := hold.Amount
		if req.Amount != nil {
			commitAmount = *req.Amount
		}
		if commitAmount <= 0 || commitAmount > hold.Amount {
			return nil, ledgererr.Newf(ledgererr.InvalidArgument, "commit amount must be in (0, %d], got %d", hold.Amount, commitAmount)
		}

		sourceAcc, err := m.Resolver.LockAccountByID(ctx, tx, *hold.SourceAccountID, lc.Options.Advanced.LockMode)
		if err != nil {
			return nil, err
		}

		var destAccounts []*domain.Account
		var shares []int64
		if len(hold.Destinations) > 0 {
			shares = distribute(hold.Destinations, hold.Amount, commitAmount)
			for _, d := range hold.Destinations {
				id := d.SystemIdentity
				if id == "" {
					id = d.HolderID
				}
				acc, err := m.Resolver.LockAccountForUpdate(ctx, tx, lc.Options.LedgerID, id, domain.LockOptimistic, false)
				if err != nil {
					return nil, err
				}
				destAccounts = append(destAccounts, acc)
			}
		} else if hold.DestinationAccountID != nil {
			acc, err := m.Resolver.LockAccountByID(ctx, tx, *hold.DestinationAccountID, domain.LockOptimistic)
			if err != nil {
				return nil, err
			}
			destAccounts = []*domain.Account{acc}
			shares = []int64{commitAmount}
		}

		if err := m.Poster.UpdatePending(ctx, tx, sourceAcc, -hold.Amount, 0); err != nil {
			return nil, err
		}
		if _, err := m.Poster.PostEntry(ctx, tx, lc.Options.LedgerID, sourceAcc, hold.ID, domain.EntryDebit, commitAmount, hold.Currency, time.Now().UTC()); err != nil {
			return nil, err
		}
		for i, acc := range destAccounts {
			if shares[i] <= 0 {
				continue
			}
			if acc.IsSystem {
				if _, err := m.Poster.PostHotEntry(ctx, tx, lc.Options.LedgerID, acc, hold.ID, domain.EntryCredit, shares[i], hold.Currency, time.Now().UTC()); err != nil {
					return nil, err
				}
			} else if _, err := m.Poster.PostEntry(ctx, tx, lc.Options.LedgerID, acc, hold.ID, domain.EntryCredit, shares[i], hold.Currency, time.Now().UTC()); err != nil {
				return nil, err
			}
		}

		hold.Status = domain.StatusPosted
		hold.CommittedAmount = ptr(commitAmount)
		hold.PostedAt = ptr(time.Now().UTC())
		if err := updateHoldStatus(ctx, tx, lc.Adapter.Dialect, hold); err != nil {
			return nil, err
		}
		if err := logStatusChange(ctx, tx, lc.Adapter.Dialect, "transfer", hold.ID, string(domain.StatusInflight), string(hold.Status), "committed"); err != nil {
			return nil, err
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicHoldCommitted, hold); err != nil {
			return nil, err
		}
		return hold, nil
	})
}

// Void implements void_hold(hold_id, reason?).
func (m *Manager) Void(ctx context.Context, lc *ledgerctx.Context, req VoidRequest) (*domain.Transfer, error) {
	if req.HoldID == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "hold_id is required")
	}
	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*domain.Transfer, error) {
		hold, err := lockHold(ctx, tx, lc.Adapter.Dialect, lc.Options.LedgerID, req.HoldID, false)
		if err != nil {
			return nil, err
		}
		if hold.Status != domain.StatusInflight {
			return nil, ledgererr.Newf(ledgererr.Conflict, "hold %s is %s, not inflight", hold.ID, hold.Status)
		}
		if err := m.releaseAndTransition(ctx, tx, lc, hold, domain.StatusVoided, req.Reason); err != nil {
			return nil, err
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicHoldVoided, hold); err != nil {
			return nil, err
		}
		return hold, nil
	})
}

// releaseAndTransition releases the hold's pending_debit and moves it to
// a terminal non-posted status (voided or expired). Caller holds the
// transfer row lock already.
func (m *Manager) releaseAndTransition(ctx context.Context, q store.Queryer, lc *ledgerctx.Context, hold *domain.Transfer, status domain.TransferStatus, reason string) error {
	sourceAcc, err := m.Resolver.LockAccountByID(ctx, q, *hold.SourceAccountID, lc.Options.Advanced.LockMode)
	if err != nil {
		return err
	}
	if err := m.Poster.UpdatePending(ctx, q, sourceAcc, -hold.Amount, 0); err != nil {
		return err
	}
	previous := hold.Status
	hold.Status = status
	if err := updateHoldStatus(ctx, q, lc.Adapter.Dialect, hold); err != nil {
		return err
	}
	return logStatusChange(ctx, q, lc.Adapter.Dialect, "transfer", hold.ID, string(previous), string(status), reason)
}

// ExpireOne is invoked by the sweeper for one candidate hold id. It
// re-locks the row with FOR UPDATE SKIP LOCKED inside its own
// transaction; a live commit/void racing for the same hold simply wins,
// and this call reports expired=false without error.
func (m *Manager) ExpireOne(ctx context.Context, lc *ledgerctx.Context, holdID string) (expired bool, err error) {
	_, txErr := store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (struct{}, error) {
		hold, err := lockHold(ctx, tx, lc.Adapter.Dialect, lc.Options.LedgerID, holdID, true)
		if ledgererr.IsNotFound(err) {
			return struct{}{}, nil
		}
		if err != nil {
			return struct{}{}, err
		}
		if hold.Status != domain.StatusInflight {
			return struct{}{}, nil
		}
		now, err := store.Now(ctx, tx, lc.Adapter.Dialect)
		if err != nil {
			return struct{}{}, err
		}
		if hold.HoldExpiresAt == nil || now.Before(*hold.HoldExpiresAt) {
			return struct{}{}, nil
		}
		if err := m.releaseAndTransition(ctx, tx, lc, hold, domain.StatusExpired, "expired by sweeper"); err != nil {
			return struct{}{}, err
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicHoldExpired, hold); err != nil {
			return struct{}{}, err
		}
		expired = true
		return struct{}{}, nil
	})
	if txErr != nil {
		return false, txErr
	}
	return expired, nil
}

// CandidateExpiredHoldIDs lists inflight holds past their expiry, oldest
// first, for the sweeper to attempt one at a time.
func CandidateExpiredHoldIDs(ctx context.Context, a *store.Adapter, ledgerID string, limit int) ([]string, error) {
	sql := fmt.Sprintf(`SELECT id FROM transfers WHERE ledger_id = %s AND is_hold = true AND status = %s
		AND hold_expires_at IS NOT NULL AND hold_expires_at < %s ORDER BY hold_expires_at ASC LIMIT %s`,
		a.Dialect.Placeholder(1), a.Dialect.Placeholder(2), a.Dialect.Placeholder(3), a.Dialect.Placeholder(4))
	return store.Raw(ctx, a.Pool, sql, []any{ledgerID, domain.StatusInflight, time.Now().UTC(), limit}, func(rows pgx.Rows) (string, error) {
		var id string
		err := rows.Scan(&id)
		return id, err
	})
}

// Get implements get_hold.
func Get(ctx context.Context, a *store.Adapter, ledgerID, holdID string) (*domain.Transfer, error) {
	return lockHoldReadOnly(ctx, a.Pool, a.Dialect, ledgerID, holdID)
}

func lockHoldReadOnly(ctx context.Context, q store.Queryer, d dialect.Dialect, ledgerID, id string) (*domain.Transfer, error) {
	sql := fmt.Sprintf(`SELECT %s FROM transfers WHERE ledger_id = %s AND id = %s AND is_hold = true`,
		transferColumns, d.Placeholder(1), d.Placeholder(2))
	t, err := scanTransfer(q.QueryRow(ctx, sql, ledgerID, id))
	if err == pgx.ErrNoRows {
		return nil, ledgererr.Newf(ledgererr.NotFound, "hold %q not found", id)
	}
	if err != nil {
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to load hold")
	}
	return t, nil
}

// ListActive implements list_active_holds for an account.
func ListActive(ctx context.Context, a *store.Adapter, ledgerID, accountID string) ([]*domain.Transfer, error) {
	sql := fmt.Sprintf(`SELECT %s FROM transfers WHERE ledger_id = %s AND source_account_id = %s
		AND is_hold = true AND status = %s ORDER BY created_at ASC`,
		transferColumns, a.Dialect.Placeholder(1), a.Dialect.Placeholder(2), a.Dialect.Placeholder(3))
	return store.Raw(ctx, a.Pool, sql, []any{ledgerID, accountID, domain.StatusInflight}, func(rows pgx.Rows) (*domain.Transfer, error) {
		return scanTransfer(rows)
	})
}

// ListAll implements list_all_holds for an account, regardless of status.
func ListAll(ctx context.Context, a *store.Adapter, ledgerID, accountID string) ([]*domain.Transfer, error) {
	sql := fmt.Sprintf(`SELECT %s FROM transfers WHERE ledger_id = %s AND source_account_id = %s
		AND is_hold = true ORDER BY created_at ASC`,
		transferColumns, a.Dialect.Placeholder(1), a.Dialect.Placeholder(2))
	return store.Raw(ctx, a.Pool, sql, []any{ledgerID, accountID}, func(rows pgx.Rows) (*domain.Transfer, error) {
		return scanTransfer(rows)
	})
}
