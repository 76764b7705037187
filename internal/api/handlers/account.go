package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/apierr"
	"ledgercore/internal/ledger/accountresolver"
	"ledgercore/internal/ledger/domain"
)

type createAccountRequest struct {
	HolderID         string `json:"holderId"`
	SystemIdentifier string `json:"systemIdentifier"`
	Currency         string `json:"currency" binding:"required"`
	AllowOverdraft   bool   `json:"allowOverdraft"`
	OverdraftLimit   int64  `json:"overdraftLimit"`
}

// MakeCreateAccountHandler opens an account. Account creation sits
// outside the core state machine (spec §3: accounts are created once)
// so it runs a single insert rather than a ledger operation.
func MakeCreateAccountHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req createAccountRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
			return
		}

		acc, err := container.Resolver.CreateAccount(c.Request.Context(), container.Ledger.Adapter.Pool, accountresolver.NewAccountParams{
			LedgerID:         container.Ledger.Options.LedgerID,
			HolderID:         req.HolderID,
			SystemIdentifier: req.SystemIdentifier,
			Currency:         req.Currency,
			AllowOverdraft:   req.AllowOverdraft,
			OverdraftLimit:   req.OverdraftLimit,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusCreated, accountResponse(acc))
	}
}

// MakeGetAccountHandler returns the current balance snapshot for a
// holder, a read-only lookup that takes no row lock.
func MakeGetAccountHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		holderID := c.Param("holderId")
		acc, err := container.Resolver.GetAccount(c.Request.Context(), container.Ledger.Adapter.Pool,
			container.Ledger.Options.LedgerID, holderID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, accountResponse(acc))
	}
}

func accountResponse(a *domain.Account) gin.H {
	return gin.H{
		"id":               a.ID,
		"ledgerId":         a.LedgerID,
		"holderId":         a.HolderID,
		"systemIdentifier": a.SystemIdentifier,
		"currency":         a.Currency,
		"status":           a.Status,
		"allowOverdraft":   a.AllowOverdraft,
		"overdraftLimit":   a.OverdraftLimit,
		"balance":          a.Balance,
		"pendingDebit":     a.PendingDebit,
		"pendingCredit":    a.PendingCredit,
		"available":        a.Available(),
		"version":          a.Version,
	}
}
