package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/apierr"
	"ledgercore/internal/observability/metrics"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/txmanager"
)

type debitRequestBody struct {
	Holder            string         `json:"holder" binding:"required"`
	Amount            int64          `json:"amount" binding:"required"`
	Reference         string         `json:"reference" binding:"required"`
	Category          *string        `json:"category"`
	DestinationSystem *string        `json:"destinationSystem"`
	Balancing         bool           `json:"balancing"`
	Force             bool           `json:"force"`
	Metadata          map[string]any `json:"metadata"`
}

// MakeDebitHandler implements debit (spec §4.2). Force skips the
// available-balance/overdraft check; velocity limits still apply.
// Balancing caps the amount at the available room (possibly 0) and
// records the requested amount. The two are mutually exclusive, enforced
// by the transaction manager itself.
func MakeDebitHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body debitRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
			return
		}

		req := txmanager.DebitRequest{
			Holder:            body.Holder,
			Amount:            body.Amount,
			Reference:         body.Reference,
			Category:          body.Category,
			DestinationSystem: body.DestinationSystem,
			IdempotencyKey:    idempotencyKey(c),
			Balancing:         body.Balancing,
			Force:             body.Force,
			Metadata:          body.Metadata,
		}

		var (
			res *txmanager.Result
			err error
		)
		if container.Batch != nil {
			res, err = container.Batch.SubmitDebit(c.Request.Context(), req)
		} else {
			res, err = container.Manager.Debit(c.Request.Context(), container.Ledger, req)
		}

		if err != nil {
			metrics.PostingsTotal.WithLabelValues(string(domain.TransferDebit), "rejected").Inc()
			apierr.Respond(c, err)
			return
		}
		metrics.PostingsTotal.WithLabelValues(string(domain.TransferDebit), "posted").Inc()
		metrics.PostingAmount.WithLabelValues(string(domain.TransferDebit)).Observe(float64(req.Amount))
		c.JSON(http.StatusOK, resultResponse(res))
	}
}
