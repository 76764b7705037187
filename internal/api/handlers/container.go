// Package handlers implements the ledger's thin HTTP surface, grounded on
// the teacher's internal/api/handlers/*.go closure-based handler factories
// (MakeXHandler(container) returning a gin.HandlerFunc bound to the
// container's dependencies) instead of package-level globals.
package handlers

import (
	"ledgercore/internal/ledger/accountresolver"
	"ledgercore/internal/ledger/batch"
	"ledgercore/internal/ledger/hold"
	"ledgercore/internal/ledger/ledgerctx"
	"ledgercore/internal/ledger/txmanager"
)

// Container bundles the dependencies every handler factory closes over.
// Batch is optional: when nil, credit/debit go straight through Manager.
type Container struct {
	Ledger   *ledgerctx.Context
	Resolver *accountresolver.Resolver
	Manager  *txmanager.Manager
	Holds    *hold.Manager
	Batch    *batch.Engine
}
