package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/apierr"
	"ledgercore/internal/observability/metrics"
	"ledgercore/internal/ledger/txmanager"
)

type refundRequestBody struct {
	TransferID string `json:"transferId" binding:"required"`
	Reason     string `json:"reason" binding:"required"`
	Amount     *int64 `json:"amount"`
}

// MakeRefundHandler implements refund (spec §4.2): reverses a posted
// transfer, in full or in part, keyed deterministically off the parent
// transfer's reference so repeated calls with the same parent and amount dedupe
// the same way idempotency keys do.
func MakeRefundHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body refundRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
			return
		}

		req := txmanager.RefundRequest{
			TransferID:     body.TransferID,
			Reason:         body.Reason,
			Amount:         body.Amount,
			IdempotencyKey: idempotencyKey(c),
		}

		res, err := container.Manager.Refund(c.Request.Context(), container.Ledger, req)
		if err != nil {
			metrics.PostingsTotal.WithLabelValues("refund", "rejected").Inc()
			apierr.Respond(c, err)
			return
		}
		metrics.PostingsTotal.WithLabelValues("refund", "posted").Inc()
		c.JSON(http.StatusOK, resultResponse(res))
	}
}
