// Package txmanager implements the Transaction Manager of spec §4.2: it
// orchestrates credit/debit/transfer/multi_transfer/refund, driving the
// Account Resolver, Entry/Balance Poster, Velocity Limiter, Idempotency
// Layer and Outbox inside one backing-store transaction per call.
// Grounded on the teacher's AtomicTransfer/AtomicDepositWithIdempotency
// orchestration in internal/infrastructure/database/postgres/postgres.go,
// generalized to the full credit/debit/transfer/multi-transfer/refund
// state machine spec §4.2 describes.
package txmanager

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledgercore/internal/ledger/accountresolver"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/idempotency"
	"ledgercore/internal/ledger/ledgerctx"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/ledger/outbox"
	"ledgercore/internal/ledger/poster"
	"ledgercore/internal/ledger/store"
	"ledgercore/internal/ledger/velocity"
)

// Manager wires together the leaf components the Transaction Manager
// depends on (spec §2's dependency order).
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

func validateAmount(amount, max int64) error {
	if amount <= 0 {
		return ledgererr.Newf(ledgererr.InvalidArgument, "amount must be positive, got %d", amount)
	}
	if max > 0 && amount > max {
		return ledgererr.Newf(ledgererr.InvalidArgument, "amount %d exceeds max_transaction_amount %d", amount, max)
	}
	return nil
}

func effectiveDateOr(t *time.Time) time.Time {
	if t != nil {
		return *t
	}
	return time.Now().UTC()
}

// post routes the entry to the hot path for system accounts, and to the
// version-guarded balance update otherwise (spec §4.4 "Hot accounts").
func (m *Manager) post(ctx context.Context, q store.Queryer, ledgerID string, acc *domain.Account, transferID string, entryType domain.EntryType, amount int64, currency string, effectiveDate time.Time) (*domain.Entry, error) {
	if acc.IsSystem {
		return m.Poster.PostHotEntry(ctx, q, ledgerID, acc, transferID, entryType, amount, currency, effectiveDate)
	}
	return m.Poster.PostEntry(ctx, q, ledgerID, acc, transferID, entryType, amount, currency, effectiveDate)
}

// replay checks the Idempotency Layer inside the caller's transaction and,
// on a hit, decodes the previously cached Result verbatim (spec §4.6
// "replay contract").
func (m *Manager) replay(ctx context.Context, q store.Queryer, ledgerID string, key *string, reference string) (*Result, bool, error) {
	res, err := m.Idempotency.CheckKey(ctx, q, ledgerID, key, reference)
	if err != nil {
		return nil, false, err
	}
	if !res.AlreadyProcessed {
		return nil, false, nil
	}
	var cached Result
	if err := json.Unmarshal(res.CachedResult, &cached); err != nil {
		return nil, false, ledgererr.Wrap(ledgererr.Internal, err, "failed to decode cached idempotent result")
	}
	return &cached, true, nil
}

// finalize caches result under key, a no-op when no key was supplied.
func (m *Manager) finalize(ctx context.Context, q store.Queryer, lc *ledgerctx.Context, key *string, reference string, result *Result) error {
	if key == nil || *key == "" {
		return nil
	}
	body, err := json.Marshal(result)
	if err != nil {
		return ledgererr.Wrap(ledgererr.Internal, err, "failed to encode idempotent result")
	}
	ttl := time.Duration(lc.Options.Advanced.IdempotencyTTL) * time.Millisecond
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return m.Idempotency.SaveKey(ctx, q, lc.Options.LedgerID, *key, reference, body, ttl)
}

// availableRoom is the maximum amount acc can give up without breaching
// its overdraft floor: available() - minAvailable().
func availableRoom(acc *domain.Account) int64 {
	room := acc.Available() - acc.MinAvailable()
	if room < 0 {
		return 0
	}
	return room
}

// Credit implements credit(holder, amount, reference, category?,
// source_system?, idempotency_key?, effective_date?).
func (m *Manager) Credit(ctx context.Context, lc *ledgerctx.Context, req CreditRequest) (*Result, error) {
	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*Result, error) {
		return m.CreditInTx(ctx, tx, lc, req)
	})
}

// CreditInTx runs the credit logic against an already-open transaction,
// so the Batch Engine can coalesce many credits into one backing-store
// transaction (spec §4.7) instead of opening one per item.
func (m *Manager) CreditInTx(ctx context.Context, tx pgx.Tx, lc *ledgerctx.Context, req CreditRequest) (*Result, error) {
	if err := validateAmount(req.Amount, lc.Options.Advanced.MaxTransactionAmount); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "reference is required")
	}

	systemID := lc.WorldAccount()
	if req.SourceSystem != nil && *req.SourceSystem != "" {
		systemID = *req.SourceSystem
	}
	effectiveDate := effectiveDateOr(req.EffectiveDate)

	if cached, hit, err := m.replay(ctx, tx, lc.Options.LedgerID, req.IdempotencyKey, req.Reference); err != nil {
		return nil, err
	} else if hit {
		return cached, nil
	}

	holderAcc, err := m.Resolver.LockAccountForUpdate(ctx, tx, lc.Options.LedgerID, req.Holder, lc.Options.Advanced.LockMode, true)
	if err != nil {
		return nil, err
	}
	systemAcc, err := m.Resolver.LockAccountForUpdate(ctx, tx, lc.Options.LedgerID, systemID, domain.LockOptimistic, false)
	if err != nil {
		return nil, err
	}

	if err := m.Velocity.EnforceLimitsWithAccountID(ctx, tx, lc.Options.LedgerID, holderAcc.ID, "credit", req.Category, req.Amount); err != nil {
		return nil, err
	}

	transfer := &domain.Transfer{
		ID:                   newID(),
		LedgerID:             lc.Options.LedgerID,
		Type:                 domain.TransferCredit,
		Status:               domain.StatusPosted,
		Reference:            req.Reference,
		Amount:               req.Amount,
		Currency:             holderAcc.Currency,
		SourceAccountID:      ptr(systemAcc.ID),
		DestinationAccountID: ptr(holderAcc.ID),
		CorrelationID:        newID(),
		Metadata:             req.Metadata,
		EffectiveDate:        effectiveDate,
		PostedAt:             ptr(time.Now().UTC()),
		CreatedAt:            time.Now().UTC(),
	}
	if err := insertTransfer(ctx, tx, lc.Adapter.Dialect, transfer); err != nil {
		return nil, err
	}

	if _, err := m.post(ctx, tx, lc.Options.LedgerID, systemAcc, transfer.ID, domain.EntryDebit, req.Amount, transfer.Currency, effectiveDate); err != nil {
		return nil, err
	}
	if _, err := m.post(ctx, tx, lc.Options.LedgerID, holderAcc, transfer.ID, domain.EntryCredit, req.Amount, transfer.Currency, effectiveDate); err != nil {
		return nil, err
	}
	if err := m.Velocity.Record(ctx, tx, lc.Options.LedgerID, holderAcc.ID, "credit", req.Category, req.Amount, transfer.Currency); err != nil {
		return nil, err
	}
	if err := m.Outbox.Append(ctx, tx, domain.TopicAccountCredited, transfer); err != nil {
		return nil, err
	}

	result := &Result{Transfer: transfer}
	if err := m.finalize(ctx, tx, lc, req.IdempotencyKey, req.Reference, result); err != nil {
		return nil, err
	}
	return result, nil
}

// Debit implements debit(holder, amount, reference, category?,
// destination_system?, idempotency_key?, balancing?, force?).
func (m *Manager) Debit(ctx context.Context, lc *ledgerctx.Context, req DebitRequest) (*Result, error) {
	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*Result, error) {
		return m.DebitInTx(ctx, tx, lc, req)
	})
}

// DebitInTx runs the debit logic against an already-open transaction; see
// CreditInTx.
func (m *Manager) DebitInTx(ctx context.Context, tx pgx.Tx, lc *ledgerctx.Context, req DebitRequest) (*Result, error) {
	if err := validateAmount(req.Amount, lc.Options.Advanced.MaxTransactionAmount); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "reference is required")
	}
	if req.Balancing && req.Force {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "balancing and force cannot both be set")
	}

	systemID := lc.WorldAccount()
	if req.DestinationSystem != nil && *req.DestinationSystem != "" {
		systemID = *req.DestinationSystem
	}
	effectiveDate := time.Now().UTC()

	if cached, hit, err := m.replay(ctx, tx, lc.Options.LedgerID, req.IdempotencyKey, req.Reference); err != nil {
		return nil, err
	} else if hit {
		return cached, nil
	}

	holderAcc, err := m.Resolver.LockAccountForUpdate(ctx, tx, lc.Options.LedgerID, req.Holder, lc.Options.Advanced.LockMode, true)
	if err != nil {
		return nil, err
	}
	systemAcc, err := m.Resolver.LockAccountForUpdate(ctx, tx, lc.Options.LedgerID, systemID, domain.LockOptimistic, false)
	if err != nil {
		return nil, err
	}

		amount := req.Amount
		var requestedAmount *int64
		if !req.Force {
			room := availableRoom(holderAcc)
			if req.Balancing {
				requestedAmount = ptr(req.Amount)
				amount = min64(req.Amount, room)
			} else if req.Amount > room {
				return nil, ledgererr.Newf(ledgererr.InsufficientBal, "insufficient balance: requested %d, available %d", req.Amount, room)
			}
		}

		if amount > 0 {
			if err := m.Velocity.EnforceLimitsWithAccountID(ctx, tx, lc.Options.LedgerID, holderAcc.ID, "debit", req.Category, amount); err != nil {
				return nil, err
			}
		}

		meta := req.Metadata
		if requestedAmount != nil {
			if meta == nil {
				meta = map[string]any{}
			}
			meta["requestedAmount"] = *requestedAmount
		}

		transfer := &domain.Transfer{
			ID:                   newID(),
			LedgerID:             lc.Options.LedgerID,
			Type:                 domain.TransferDebit,
			Status:               domain.StatusPosted,
			Reference:            req.Reference,
			Amount:               amount,
			Currency:             holderAcc.Currency,
			SourceAccountID:      ptr(holderAcc.ID),
			DestinationAccountID: ptr(systemAcc.ID),
			CorrelationID:        newID(),
			Metadata:             meta,
			EffectiveDate:        effectiveDate,
			PostedAt:             ptr(time.Now().UTC()),
			CreatedAt:            time.Now().UTC(),
		}
		if err := insertTransfer(ctx, tx, lc.Adapter.Dialect, transfer); err != nil {
			return nil, err
		}

		if amount > 0 {
			if _, err := m.post(ctx, tx, lc.Options.LedgerID, holderAcc, transfer.ID, domain.EntryDebit, amount, transfer.Currency, effectiveDate); err != nil {
				return nil, err
			}
			if _, err := m.post(ctx, tx, lc.Options.LedgerID, systemAcc, transfer.ID, domain.EntryCredit, amount, transfer.Currency, effectiveDate); err != nil {
				return nil, err
			}
			if err := m.Velocity.Record(ctx, tx, lc.Options.LedgerID, holderAcc.ID, "debit", req.Category, amount, transfer.Currency); err != nil {
				return nil, err
			}
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicAccountDebited, transfer); err != nil {
			return nil, err
		}

	result := &Result{Transfer: transfer, RequestedAmount: requestedAmount}
	if err := m.finalize(ctx, tx, lc, req.IdempotencyKey, req.Reference, result); err != nil {
		return nil, err
	}
	return result, nil
}

// resolveRate returns the scaled-by-1e6 exchange rate to use for amount
// moving from srcCurrency to dstCurrency, per spec §4.2 "Cross-currency
// transfers".
func resolveRate(lc *ledgerctx.Context, srcCurrency, dstCurrency string, provided *int64) (int64, error) {
	if srcCurrency == dstCurrency {
		return 1_000_000, nil
	}
	if provided != nil {
		if *provided <= 0 || *provided > 1_000_000_000 {
			return 0, ledgererr.Newf(ledgererr.InvalidArgument, "exchange_rate %d out of bounds (0, 1e9]", *provided)
		}
		return *provided, nil
	}
	if lc.FXResolver != nil {
		if rate, ok := lc.FXResolver(srcCurrency, dstCurrency); ok {
			if rate <= 0 || rate > 1_000_000_000 {
				return 0, ledgererr.Newf(ledgererr.InvalidArgument, "resolved exchange_rate %d out of bounds (0, 1e9]", rate)
			}
			return rate, nil
		}
	}
	return 0, ledgererr.Newf(ledgererr.InvalidArgument, "exchange_rate required for %s -> %s", srcCurrency, dstCurrency)
}

func convert(amount, rateScaled int64) int64 {
	return (amount*rateScaled + 500_000) / 1_000_000
}

// Transfer implements transfer(src_holder, dst_holder, amount, reference,
// exchange_rate?, balancing?, force?).
func (m *Manager) Transfer(ctx context.Context, lc *ledgerctx.Context, req TransferRequest) (*Result, error) {
	if err := validateAmount(req.Amount, lc.Options.Advanced.MaxTransactionAmount); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "reference is required")
	}
	if req.Balancing && req.Force {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "balancing and force cannot both be set")
	}
	effectiveDate := time.Now().UTC()

	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*Result, error) {
		if cached, hit, err := m.replay(ctx, tx, lc.Options.LedgerID, req.IdempotencyKey, req.Reference); err != nil {
			return nil, err
		} else if hit {
			return cached, nil
		}

		accounts, err := m.Resolver.LockAccountsInOrder(ctx, tx, lc.Options.LedgerID,
			[]string{req.SrcHolder, req.DstHolder}, lc.Options.Advanced.LockMode, []bool{true, true})
		if err != nil {
			return nil, err
		}
		srcAcc, dstAcc := accounts[req.SrcHolder], accounts[req.DstHolder]

		rate, err := resolveRate(lc, srcAcc.Currency, dstAcc.Currency, req.ExchangeRate)
		if err != nil {
			return nil, err
		}
		crossCurrency := srcAcc.Currency != dstAcc.Currency

		debitAmount := req.Amount
		var requestedAmount *int64
		if !req.Force {
			room := availableRoom(srcAcc)
			if req.Balancing {
				requestedAmount = ptr(req.Amount)
				debitAmount = min64(req.Amount, room)
			} else if req.Amount > room {
				return nil, ledgererr.Newf(ledgererr.InsufficientBal, "insufficient balance: requested %d, available %d", req.Amount, room)
			}
		}

		creditAmount := convert(debitAmount, rate)
		if debitAmount > 0 && creditAmount <= 0 {
			return nil, ledgererr.Newf(ledgererr.InvalidArgument, "converted credit amount must be positive")
		}

		if debitAmount > 0 {
			if err := m.Velocity.EnforceLimitsWithAccountID(ctx, tx, lc.Options.LedgerID, srcAcc.ID, "transfer", nil, debitAmount); err != nil {
				return nil, err
			}
		}

		meta := req.Metadata
		if meta == nil {
			meta = map[string]any{}
		}
		if crossCurrency {
			meta["crossCurrency"] = true
		}
		if requestedAmount != nil {
			meta["requestedAmount"] = *requestedAmount
		}

		var ratePtr *int64
		if crossCurrency {
			ratePtr = ptr(rate)
		}

		transfer := &domain.Transfer{
			ID:                   newID(),
			LedgerID:             lc.Options.LedgerID,
			Type:                 domain.TransferKindMove,
			Status:               domain.StatusPosted,
			Reference:            req.Reference,
			Amount:               debitAmount,
			Currency:             srcAcc.Currency,
			SourceAccountID:      ptr(srcAcc.ID),
			DestinationAccountID: ptr(dstAcc.ID),
			CorrelationID:        newID(),
			Metadata:             meta,
			ExchangeRate:         ratePtr,
			EffectiveDate:        effectiveDate,
			PostedAt:             ptr(time.Now().UTC()),
			CreatedAt:            time.Now().UTC(),
		}
		if err := insertTransfer(ctx, tx, lc.Adapter.Dialect, transfer); err != nil {
			return nil, err
		}

		if debitAmount > 0 {
			if _, err := m.post(ctx, tx, lc.Options.LedgerID, srcAcc, transfer.ID, domain.EntryDebit, debitAmount, srcAcc.Currency, effectiveDate); err != nil {
				return nil, err
			}
			if _, err := m.post(ctx, tx, lc.Options.LedgerID, dstAcc, transfer.ID, domain.EntryCredit, creditAmount, dstAcc.Currency, effectiveDate); err != nil {
				return nil, err
			}
			if err := m.Velocity.Record(ctx, tx, lc.Options.LedgerID, srcAcc.ID, "transfer", nil, debitAmount, srcAcc.Currency); err != nil {
				return nil, err
			}
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicAccountDebited, transfer); err != nil {
			return nil, err
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicAccountCredited, transfer); err != nil {
			return nil, err
		}

		result := &Result{Transfer: transfer, RequestedAmount: requestedAmount, CrossCurrency: crossCurrency}
		if err := m.finalize(ctx, tx, lc, req.IdempotencyKey, req.Reference, result); err != nil {
			return nil, err
		}
		return result, nil
	})
}

// MultiTransfer implements multi_transfer(src_holder, amount,
// destinations[], reference): one debit on src, one credit per destination,
// the destination amounts summing to amount.
func (m *Manager) MultiTransfer(ctx context.Context, lc *ledgerctx.Context, req MultiTransferRequest) (*Result, error) {
	if err := validateAmount(req.Amount, lc.Options.Advanced.MaxTransactionAmount); err != nil {
		return nil, err
	}
	if req.Reference == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "reference is required")
	}
	if len(req.Destinations) == 0 {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "at least one destination is required")
	}
	var sum int64
	for _, d := range req.Destinations {
		if d.Amount <= 0 {
			return nil, ledgererr.Newf(ledgererr.InvalidArgument, "destination amount must be positive, got %d", d.Amount)
		}
		sum += d.Amount
	}
	if sum != req.Amount {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "destination amounts sum to %d, expected %d", sum, req.Amount)
	}
	effectiveDate := time.Now().UTC()

	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*Result, error) {
		if cached, hit, err := m.replay(ctx, tx, lc.Options.LedgerID, req.IdempotencyKey, req.Reference); err != nil {
			return nil, err
		} else if hit {
			return cached, nil
		}

		userIDs := []string{req.SrcHolder}
		userActive := []bool{true}
		for _, d := range req.Destinations {
			if d.SystemIdentity == "" {
				userIDs = append(userIDs, d.HolderID)
				userActive = append(userActive, true)
			}
		}
		accounts, err := m.Resolver.LockAccountsInOrder(ctx, tx, lc.Options.LedgerID, userIDs, lc.Options.Advanced.LockMode, userActive)
		if err != nil {
			return nil, err
		}
		srcAcc := accounts[req.SrcHolder]

		resolved := make([]*domain.Account, len(req.Destinations))
		for i, d := range req.Destinations {
			if d.SystemIdentity != "" {
				acc, err := m.Resolver.LockAccountForUpdate(ctx, tx, lc.Options.LedgerID, d.SystemIdentity, domain.LockOptimistic, false)
				if err != nil {
					return nil, err
				}
				resolved[i] = acc
			} else {
				resolved[i] = accounts[d.HolderID]
			}
		}
		for i, acc := range resolved {
			if acc.Currency != srcAcc.Currency {
				return nil, ledgererr.Newf(ledgererr.InvalidArgument, "destination %d currency %s does not match source currency %s", i, acc.Currency, srcAcc.Currency)
			}
		}

		if err := m.Velocity.EnforceLimitsWithAccountID(ctx, tx, lc.Options.LedgerID, srcAcc.ID, "multi_transfer", nil, req.Amount); err != nil {
			return nil, err
		}

		transfer := &domain.Transfer{
			ID:              newID(),
			LedgerID:        lc.Options.LedgerID,
			Type:            domain.TransferKindMove,
			Status:          domain.StatusPosted,
			Reference:       req.Reference,
			Amount:          req.Amount,
			Currency:        srcAcc.Currency,
			SourceAccountID: ptr(srcAcc.ID),
			Destinations:    req.Destinations,
			CorrelationID:   newID(),
			Metadata:        req.Metadata,
			EffectiveDate:   effectiveDate,
			PostedAt:        ptr(time.Now().UTC()),
			CreatedAt:       time.Now().UTC(),
		}
		if err := insertTransfer(ctx, tx, lc.Adapter.Dialect, transfer); err != nil {
			return nil, err
		}

		if _, err := m.post(ctx, tx, lc.Options.LedgerID, srcAcc, transfer.ID, domain.EntryDebit, req.Amount, srcAcc.Currency, effectiveDate); err != nil {
			return nil, err
		}
		for i, d := range req.Destinations {
			if _, err := m.post(ctx, tx, lc.Options.LedgerID, resolved[i], transfer.ID, domain.EntryCredit, d.Amount, resolved[i].Currency, effectiveDate); err != nil {
				return nil, err
			}
		}
		if err := m.Velocity.Record(ctx, tx, lc.Options.LedgerID, srcAcc.ID, "multi_transfer", nil, req.Amount, srcAcc.Currency); err != nil {
			return nil, err
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicAccountDebited, transfer); err != nil {
			return nil, err
		}
		if err := m.Outbox.Append(ctx, tx, domain.TopicAccountCredited, transfer); err != nil {
			return nil, err
		}

		result := &Result{Transfer: transfer}
		if err := m.finalize(ctx, tx, lc, req.IdempotencyKey, req.Reference, result); err != nil {
			return nil, err
		}
		return result, nil
	})
}

// refundReference builds the deterministic reference spec §4.2 requires so
// retries of the same delta collapse onto the same transfer row.
func refundReference(original *domain.Transfer, delta int64) string {
	cumulative := original.RefundedAmount + delta
	if cumulative >= original.Amount {
		return fmt.Sprintf("refund_%s", original.Reference)
	}
	return fmt.Sprintf("refund_%s_p%d", original.Reference, cumulative)
}

// Refund implements refund(transfer_id, reason, amount?).
func (m *Manager) Refund(ctx context.Context, lc *ledgerctx.Context, req RefundRequest) (*Result, error) {
	if req.TransferID == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "transfer_id is required")
	}
	effectiveDate := time.Now().UTC()

	return store.Transaction(ctx, lc.Adapter, store.TxOptions{}, func(ctx context.Context, tx pgx.Tx) (*Result, error) {
		original, err := lockTransferByID(ctx, tx, lc.Adapter.Dialect, lc.Options.LedgerID, req.TransferID)
		if err != nil {
			return nil, err
		}
		if original.Status != domain.StatusPosted {
			return nil, ledgererr.Newf(ledgererr.Conflict, "transfer %s is %s, not posted", original.ID, original.Status)
		}
		remaining := original.Amount - original.RefundedAmount
		delta := remaining
		if req.Amount != nil {
			delta = *req.Amount
		}
		if delta <= 0 || delta > remaining {
			return nil, ledgererr.Newf(ledgererr.InvalidArgument, "refund amount must be in (0, %d], got %d", remaining, delta)
		}

		reference := refundReference(original, delta)
		if existing, err := getTransferByReference(ctx, tx, lc.Adapter.Dialect, lc.Options.LedgerID, reference); err != nil {
			return nil, err
		} else if existing != nil {
			return &Result{Transfer: existing}, nil
		}

		if original.SourceAccountID == nil || original.DestinationAccountID == nil {
			return nil, ledgererr.Newf(ledgererr.Internal, "transfer %s is missing source/destination accounts", original.ID)
		}

		// Lock the two accounts in ascending id order to match spec §4.2's
		// deadlock-avoidance rule, same as any other two-account posting.
		ids := []string{*original.SourceAccountID, *original.DestinationAccountID}
		if ids[1] < ids[0] {
			ids[0], ids[1] = ids[1], ids[0]
		}
		locked := make(map[string]*domain.Account, 2)
		for _, id := range ids {
			acc, err := m.Resolver.LockAccountByID(ctx, tx, id, lc.Options.Advanced.LockMode)
			if err != nil {
				return nil, err
			}
			locked[id] = acc
		}
		sourceAcc := locked[*original.SourceAccountID]
		destAcc := locked[*original.DestinationAccountID]

		correction := &domain.Transfer{
			ID:                   newID(),
			LedgerID:             lc.Options.LedgerID,
			Type:                 domain.TransferCorrection,
			Status:               domain.StatusPosted,
			Reference:            reference,
			Amount:               delta,
			Currency:             original.Currency,
			SourceAccountID:      ptr(destAcc.ID),
			DestinationAccountID: ptr(sourceAcc.ID),
			ParentID:             ptr(original.ID),
			IsReversal:           true,
			CorrelationID:        original.CorrelationID,
			Metadata:             map[string]any{"reason": req.Reason},
			EffectiveDate:        effectiveDate,
			PostedAt:             ptr(time.Now().UTC()),
			CreatedAt:            time.Now().UTC(),
		}
		if err := insertTransfer(ctx, tx, lc.Adapter.Dialect, correction); err != nil {
			return nil, err
		}

		// Invert the original sides: debit what was credited, credit what
		// was debited.
		if _, err := m.post(ctx, tx, lc.Options.LedgerID, destAcc, correction.ID, domain.EntryDebit, delta, original.Currency, effectiveDate); err != nil {
			return nil, err
		}
		if _, err := m.post(ctx, tx, lc.Options.LedgerID, sourceAcc, correction.ID, domain.EntryCredit, delta, original.Currency, effectiveDate); err != nil {
			return nil, err
		}

		original.RefundedAmount += delta
		if original.RefundedAmount >= original.Amount {
			original.Status = domain.StatusReversed
		}
		if err := updateTransferStatus(ctx, tx, lc.Adapter.Dialect, lc.Options.LedgerID, original); err != nil {
			return nil, err
		}
		if err := logStatusChange(ctx, tx, lc.Adapter.Dialect, "transfer", original.ID, string(domain.StatusPosted), string(original.Status), req.Reason); err != nil {
			return nil, err
		}

		if err := m.Outbox.Append(ctx, tx, domain.TopicAccountCredited, correction); err != nil {
			return nil, err
		}

		result := &Result{Transfer: correction}
		if err := m.finalize(ctx, tx, lc, req.IdempotencyKey, reference, result); err != nil {
			return nil, err
		}
		return result, nil
	})
}

func min64(a, b int64) int64 {
	if a < b {
		return a
	}
	return b
}
