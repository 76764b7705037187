package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/apierr"
	"ledgercore/internal/observability/metrics"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/txmanager"
)

type creditRequestBody struct {
	Holder        string         `json:"holder" binding:"required"`
	Amount        int64          `json:"amount" binding:"required"`
	Reference     string         `json:"reference" binding:"required"`
	Category      *string        `json:"category"`
	SourceSystem  *string        `json:"sourceSystem"`
	Metadata      map[string]any `json:"metadata"`
}

// MakeCreditHandler implements credit (spec §4.2): a debit entry on the
// system account (the world account unless sourceSystem names another)
// paired with a credit entry on the holder. Submitted through the batch engine when one
// is configured, otherwise posted in its own transaction.
func MakeCreditHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body creditRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
			return
		}

		req := txmanager.CreditRequest{
			Holder:         body.Holder,
			Amount:         body.Amount,
			Reference:      body.Reference,
			Category:       body.Category,
			SourceSystem:   body.SourceSystem,
			IdempotencyKey: idempotencyKey(c),
			Metadata:       body.Metadata,
		}

		var (
			res *txmanager.Result
			err error
		)
		if container.Batch != nil {
			res, err = container.Batch.SubmitCredit(c.Request.Context(), req)
		} else {
			res, err = container.Manager.Credit(c.Request.Context(), container.Ledger, req)
		}

		if err != nil {
			metrics.PostingsTotal.WithLabelValues(string(domain.TransferCredit), "rejected").Inc()
			apierr.Respond(c, err)
			return
		}
		metrics.PostingsTotal.WithLabelValues(string(domain.TransferCredit), "posted").Inc()
		metrics.PostingAmount.WithLabelValues(string(domain.TransferCredit)).Observe(float64(req.Amount))
		c.JSON(http.StatusOK, resultResponse(res))
	}
}
