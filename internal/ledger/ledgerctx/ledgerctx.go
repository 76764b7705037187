// Package ledgerctx defines the context object spec §6 requires: a
// borrowed handle carrying the storage adapter, dialect, logger and
// options through every core call, in place of module-level mutable
// state (Design Note 1).
package ledgerctx

import (
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/store"
	"ledgercore/internal/pkg/logging"
)

// FXResolver supplies an integer exchange rate (scaled by 1e6) for a
// cross-currency transfer when the caller did not provide one.
type FXResolver func(srcCurrency, dstCurrency string) (rate int64, ok bool)

// AdvancedOptions mirrors options.advanced.* of spec §6.
type AdvancedOptions struct {
	MaxTransactionAmount int64
	HMACSecret           []byte
	LockMode             domain.LockMode
	IdempotencyTTL       int64 // milliseconds
	EnableBatching       bool
}

// Options mirrors options.* of spec §6.
type Options struct {
	LedgerID       string // tenant boundary; every query is scoped by it (spec §3)
	Schema         string
	Currency       string
	Advanced       AdvancedOptions
	SystemAccounts map[string]string // logical name (e.g. "world") -> system_identifier (e.g. "@World")
}

// Context is the handle threaded through every ledger call.
type Context struct {
	Adapter     *store.Adapter
	ReadAdapter *store.Adapter // may equal Adapter
	Options     Options
	Logger      *logging.Logger
	FXResolver  FXResolver
}

// WorldAccount returns the configured system identifier used as the
// counterparty for pure credits/debits, defaulting to "@World".
func (c *Context) WorldAccount() string {
	if id, ok := c.Options.SystemAccounts["world"]; ok && id != "" {
		return id
	}
	return "@World"
}
