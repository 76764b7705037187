package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/apierr"
	"ledgercore/internal/observability/metrics"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/hold"
)

type createHoldRequestBody struct {
	Holder        string               `json:"holder" binding:"required"`
	Amount        int64                `json:"amount" binding:"required"`
	Reference     string               `json:"reference" binding:"required"`
	Destinations  []domain.Destination `json:"destinations"`
	ExpiresAt     *time.Time           `json:"expiresAt"`
	CorrelationID string               `json:"correlationId"`
	Metadata      map[string]any       `json:"metadata"`
}

// MakeCreateHoldHandler implements both create_hold and
// create_multi_destination_hold (spec §4.3): Destinations with more than
// one entry makes it the multi-destination variant.
func MakeCreateHoldHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body createHoldRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
			return
		}

		correlationID := body.CorrelationID
		if correlationID == "" {
			if v, ok := c.Get("correlationId"); ok {
				correlationID, _ = v.(string)
			}
		}

		t, err := container.Holds.Create(c.Request.Context(), container.Ledger, hold.CreateRequest{
			Holder:         body.Holder,
			Amount:         body.Amount,
			Reference:      body.Reference,
			Destinations:   body.Destinations,
			ExpiresAt:      body.ExpiresAt,
			CorrelationID:  correlationID,
			IdempotencyKey: idempotencyKey(c),
			Metadata:       body.Metadata,
		})
		if err != nil {
			metrics.HoldOutcomesTotal.WithLabelValues("rejected").Inc()
			apierr.Respond(c, err)
			return
		}
		metrics.HoldsActive.Inc()
		c.JSON(http.StatusOK, transferResponse(t))
	}
}

type commitHoldRequestBody struct {
	Amount *int64 `json:"amount"`
}

// MakeCommitHoldHandler implements commit_hold (spec §4.3), optionally
// for less than the full held amount.
func MakeCommitHoldHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID := c.Param("holdId")
		var body commitHoldRequestBody
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
				return
			}
		}

		t, err := container.Holds.Commit(c.Request.Context(), container.Ledger, hold.CommitRequest{
			HoldID: holdID,
			Amount: body.Amount,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		metrics.HoldsActive.Dec()
		metrics.HoldOutcomesTotal.WithLabelValues("committed").Inc()
		c.JSON(http.StatusOK, transferResponse(t))
	}
}

type voidHoldRequestBody struct {
	Reason string `json:"reason"`
}

// MakeVoidHoldHandler implements void_hold (spec §4.3): releases the
// entire held amount back to the source account.
func MakeVoidHoldHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID := c.Param("holdId")
		var body voidHoldRequestBody
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
				return
			}
		}

		t, err := container.Holds.Void(c.Request.Context(), container.Ledger, hold.VoidRequest{
			HoldID: holdID,
			Reason: body.Reason,
		})
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		metrics.HoldsActive.Dec()
		metrics.HoldOutcomesTotal.WithLabelValues("voided").Inc()
		c.JSON(http.StatusOK, transferResponse(t))
	}
}

// MakeGetHoldHandler implements get_hold.
func MakeGetHoldHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		holdID := c.Param("holdId")
		t, err := hold.Get(c.Request.Context(), container.Ledger.Adapter, container.Ledger.Options.LedgerID, holdID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, transferResponse(t))
	}
}

// MakeListActiveHoldsHandler implements list_active_holds for a holder.
func MakeListActiveHoldsHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		acc, err := container.Resolver.LockAccountForUpdate(c.Request.Context(), container.Ledger.Adapter.Pool,
			container.Ledger.Options.LedgerID, c.Param("holderId"), domain.LockOptimistic, false)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		holds, err := hold.ListActive(c.Request.Context(), container.Ledger.Adapter, container.Ledger.Options.LedgerID, acc.ID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, holdListResponse(holds))
	}
}

// MakeListAllHoldsHandler implements list_all_holds for a holder.
func MakeListAllHoldsHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		acc, err := container.Resolver.LockAccountForUpdate(c.Request.Context(), container.Ledger.Adapter.Pool,
			container.Ledger.Options.LedgerID, c.Param("holderId"), domain.LockOptimistic, false)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		holds, err := hold.ListAll(c.Request.Context(), container.Ledger.Adapter, container.Ledger.Options.LedgerID, acc.ID)
		if err != nil {
			apierr.Respond(c, err)
			return
		}
		c.JSON(http.StatusOK, holdListResponse(holds))
	}
}

func holdListResponse(holds []*domain.Transfer) []gin.H {
	out := make([]gin.H, 0, len(holds))
	for _, h := range holds {
		out = append(out, transferResponse(h))
	}
	return out
}
