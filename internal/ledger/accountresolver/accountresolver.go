// Package accountresolver implements the Account Resolver of spec §4.1:
// it locks an account row by holder id (or system identifier) and
// returns its current balance snapshot, honoring the configured lock
// mode. Grounded on the teacher's "SELECT ... FOR UPDATE" pattern in
// internal/infrastructure/database/postgres/postgres.go, generalized
// behind dialect.Dialect so the lock clause is never hardcoded here.
package accountresolver

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"ledgercore/internal/ledger/dialect"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/hashchain"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/ledger/store"
)

type Resolver struct {
	Dialect    dialect.Dialect
	HMACSecret []byte
}

func New(d dialect.Dialect, hmacSecret []byte) *Resolver {
	return &Resolver{Dialect: d, HMACSecret: hmacSecret}
}

// IsSystemIdentifier reports whether id names a system account (e.g. "@World")
// rather than a holder id.
func IsSystemIdentifier(id string) bool {
	return strings.HasPrefix(id, "@")
}

const accountColumns = `id, ledger_id, holder_id, system_identifier, holder_type, is_system,
	currency, status, allow_overdraft, overdraft_limit, balance, credit_balance,
	debit_balance, pending_debit, pending_credit, version, checksum,
	freeze_reason, closure_reason, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(&a.ID, &a.LedgerID, &a.HolderID, &a.SystemIdentifier, &a.HolderType, &a.IsSystem,
		&a.Currency, &a.Status, &a.AllowOverdraft, &a.OverdraftLimit, &a.Balance, &a.CreditBalance,
		&a.DebitBalance, &a.PendingDebit, &a.PendingCredit, &a.Version, &a.Checksum,
		&a.FreezeReason, &a.ClosureReason, &a.CreatedAt, &a.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

// LockAccountForUpdate locks (or, in optimistic mode, simply reads) the
// account row named by holderOrSystemID and returns its snapshot. The
// caller must use the returned Version in a subsequent conditional
// UPDATE to detect concurrent writers (spec §4.1).
func (r *Resolver) LockAccountForUpdate(ctx context.Context, q store.Queryer, ledgerID, holderOrSystemID string, mode domain.LockMode, requireActive bool) (*domain.Account, error) {
	var lockClause string
	switch mode {
	case domain.LockWait:
		lockClause = r.Dialect.ForUpdate()
	case domain.LockNoWait:
		lockClause = r.Dialect.ForUpdateNoWait()
	case domain.LockOptimistic:
		lockClause = ""
	default:
		lockClause = r.Dialect.ForUpdate()
	}

	var whereCol string
	if IsSystemIdentifier(holderOrSystemID) {
		whereCol = "system_identifier"
	} else {
		whereCol = "holder_id"
	}

	sql := fmt.Sprintf(`SELECT %s FROM accounts WHERE ledger_id = %s AND %s = %s %s`,
		accountColumns, r.Dialect.Placeholder(1), whereCol, r.Dialect.Placeholder(2), lockClause)

	acc, err := scanAccount(q.QueryRow(ctx, sql, ledgerID, holderOrSystemID))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgererr.Newf(ledgererr.NotFound, "account %q not found in ledger %q", holderOrSystemID, ledgerID)
		}
		return nil, classifyLockErr(err)
	}

	if !hashchain.VerifyChecksum(r.HMACSecret, snapshotOf(acc), acc.Checksum) {
		return nil, ledgererr.Newf(ledgererr.IntegrityFailure, "checksum mismatch for account %s", acc.ID)
	}

	if requireActive && acc.Status != domain.AccountActive {
		return nil, ledgererr.Newf(ledgererr.Conflict, "account %s is %s, not active", acc.ID, acc.Status)
	}

	return acc, nil
}

// LockAccountByID locks (or, in optimistic mode, simply reads) an account
// already resolved to its internal id, used where a prior record (e.g. a
// transfer's source_account_id) names the account directly rather than by
// holder or system identifier.
func (r *Resolver) LockAccountByID(ctx context.Context, q store.Queryer, id string, mode domain.LockMode) (*domain.Account, error) {
	var lockClause string
	switch mode {
	case domain.LockWait:
		lockClause = r.Dialect.ForUpdate()
	case domain.LockNoWait:
		lockClause = r.Dialect.ForUpdateNoWait()
	case domain.LockOptimistic:
		lockClause = ""
	default:
		lockClause = r.Dialect.ForUpdate()
	}

	sql := fmt.Sprintf(`SELECT %s FROM accounts WHERE id = %s %s`, accountColumns, r.Dialect.Placeholder(1), lockClause)
	acc, err := scanAccount(q.QueryRow(ctx, sql, id))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgererr.Newf(ledgererr.NotFound, "account %q not found", id)
		}
		return nil, classifyLockErr(err)
	}
	if !hashchain.VerifyChecksum(r.HMACSecret, snapshotOf(acc), acc.Checksum) {
		return nil, ledgererr.Newf(ledgererr.IntegrityFailure, "checksum mismatch for account %s", acc.ID)
	}
	return acc, nil
}

// NewAccountParams describes an account to open. Exactly one of HolderID
// or SystemIdentifier must be set (accounts §3 "identified by (ledger_id,
// holder_id) for user accounts and by system_identifier for system
// accounts").
type NewAccountParams struct {
	LedgerID       string
	HolderID       string
	SystemIdentifier string
	Currency       string
	AllowOverdraft bool
	OverdraftLimit int64
}

// CreateAccount opens a new account row at version 0 with a checksum over
// its zeroed snapshot. Account creation is an external bootstrapping
// concern (spec §3 "accounts are created once"), not part of the core
// state machine, so it takes no lock and enforces no velocity/status
// rules beyond the column constraints the migration already carries.
func (r *Resolver) CreateAccount(ctx context.Context, q store.Queryer, p NewAccountParams) (*domain.Account, error) {
	if p.HolderID == "" && p.SystemIdentifier == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "one of holder_id or system_identifier is required")
	}
	if p.HolderID != "" && p.SystemIdentifier != "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "holder_id and system_identifier are mutually exclusive")
	}
	if p.Currency == "" {
		return nil, ledgererr.Newf(ledgererr.InvalidArgument, "currency is required")
	}

	holderType := domain.HolderUser
	isSystem := false
	var holderID, systemIdentifier *string
	if p.SystemIdentifier != "" {
		holderType = domain.HolderSystem
		isSystem = true
		systemIdentifier = &p.SystemIdentifier
	} else {
		holderID = &p.HolderID
	}

	acc := &domain.Account{
		ID:             uuid.NewString(),
		LedgerID:       p.LedgerID,
		HolderType:     holderType,
		IsSystem:       isSystem,
		Currency:       p.Currency,
		Status:         domain.AccountActive,
		AllowOverdraft: p.AllowOverdraft,
		OverdraftLimit: p.OverdraftLimit,
	}
	if holderID != nil {
		acc.HolderID = *holderID
	}
	if systemIdentifier != nil {
		acc.SystemIdentifier = *systemIdentifier
	}
	acc.Checksum = hashchain.Checksum(r.HMACSecret, snapshotOf(acc))

	sql := fmt.Sprintf(`INSERT INTO accounts
		(id, ledger_id, holder_id, system_identifier, holder_type, is_system, currency, status,
		 allow_overdraft, overdraft_limit, checksum)
		VALUES (%s,%s,%s,%s,%s,%s,%s,%s,%s,%s,%s)`,
		r.Dialect.Placeholder(1), r.Dialect.Placeholder(2), r.Dialect.Placeholder(3), r.Dialect.Placeholder(4),
		r.Dialect.Placeholder(5), r.Dialect.Placeholder(6), r.Dialect.Placeholder(7), r.Dialect.Placeholder(8),
		r.Dialect.Placeholder(9), r.Dialect.Placeholder(10), r.Dialect.Placeholder(11))

	if _, err := store.RawMutate(ctx, q, sql,
		acc.ID, acc.LedgerID, holderID, systemIdentifier, acc.HolderType, acc.IsSystem, acc.Currency,
		acc.Status, acc.AllowOverdraft, acc.OverdraftLimit, acc.Checksum); err != nil {
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to create account")
	}
	return acc, nil
}

// GetAccount is the read-only lookup, taking no row lock.
func (r *Resolver) GetAccount(ctx context.Context, q store.Queryer, ledgerID, holderID string) (*domain.Account, error) {
	sql := fmt.Sprintf(`SELECT %s FROM accounts WHERE ledger_id = %s AND holder_id = %s`,
		accountColumns, r.Dialect.Placeholder(1), r.Dialect.Placeholder(2))

	acc, err := scanAccount(q.QueryRow(ctx, sql, ledgerID, holderID))
	if err != nil {
		if isNoRows(err) {
			return nil, ledgererr.Newf(ledgererr.NotFound, "account %q not found in ledger %q", holderID, ledgerID)
		}
		return nil, ledgererr.Wrap(ledgererr.Internal, err, "failed to load account")
	}
	return acc, nil
}

func snapshotOf(a *domain.Account) hashchain.AccountSnapshot {
	return hashchain.AccountSnapshot{
		Balance:       a.Balance,
		CreditBalance: a.CreditBalance,
		DebitBalance:  a.DebitBalance,
		PendingDebit:  a.PendingDebit,
		PendingCredit: a.PendingCredit,
		Version:       a.Version,
	}
}

func isNoRows(err error) bool {
	return err == pgx.ErrNoRows
}

// classifyLockErr routes a failed lock acquisition through store.Classify
// so NOWAIT/deadlock/serialization failures are recognized by
// pgconn.PgError.Code, the same mechanism store.classify uses for every
// other backing-store error, rather than matching driver message text.
func classifyLockErr(err error) error {
	classified := store.Classify(err)
	if ledgererr.IsResourceBusy(classified) {
		return classified
	}
	return ledgererr.Wrap(ledgererr.Internal, err, "failed to lock account")
}

// LockAccountsInOrder locks every holder/system id in ascending account-id
// order to prevent the classical A<->B deadlock (spec §4.2, §5). It first
// resolves ids to account ids with a lock-free lookup so it can sort, then
// locks sequentially. Callers that already know account ids should sort
// and lock directly instead of calling this twice.
func (r *Resolver) LockAccountsInOrder(ctx context.Context, q store.Queryer, ledgerID string, ids []string, mode domain.LockMode, requireActive []bool) (map[string]*domain.Account, error) {
	type probe struct {
		input string
		id    string
		want  bool
	}
	probes := make([]probe, len(ids))
	for i, id := range ids {
		acc, err := r.LockAccountForUpdate(ctx, q, ledgerID, id, domain.LockOptimistic, false)
		if err != nil {
			return nil, err
		}
		want := false
		if requireActive != nil {
			want = requireActive[i]
		}
		probes[i] = probe{input: id, id: acc.ID, want: want}
	}

	// Stable ascending sort by resolved account id to fix lock order.
	for i := 1; i < len(probes); i++ {
		for j := i; j > 0 && probes[j].id < probes[j-1].id; j-- {
			probes[j], probes[j-1] = probes[j-1], probes[j]
		}
	}

	result := make(map[string]*domain.Account, len(ids))
	for _, p := range probes {
		acc, err := r.LockAccountForUpdate(ctx, q, ledgerID, p.input, mode, p.want)
		if err != nil {
			return nil, err
		}
		result[p.input] = acc
	}
	return result, nil
}
