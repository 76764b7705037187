package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/apierr"
	"ledgercore/internal/observability/metrics"
	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/txmanager"
)

type transferRequestBody struct {
	SrcHolder    string         `json:"srcHolder" binding:"required"`
	DstHolder    string         `json:"dstHolder" binding:"required"`
	Amount       int64          `json:"amount" binding:"required"`
	Reference    string         `json:"reference" binding:"required"`
	ExchangeRate *int64         `json:"exchangeRate"`
	Balancing    bool           `json:"balancing"`
	Force        bool           `json:"force"`
	Metadata     map[string]any `json:"metadata"`
}

// MakeTransferHandler implements transfer (spec §4.2): a single
// source-to-destination move, with optional cross-currency conversion
// when the accounts' currencies differ and an exchange rate is supplied
// or resolvable.
func MakeTransferHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body transferRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
			return
		}

		req := txmanager.TransferRequest{
			SrcHolder:      body.SrcHolder,
			DstHolder:      body.DstHolder,
			Amount:         body.Amount,
			Reference:      body.Reference,
			ExchangeRate:   body.ExchangeRate,
			Balancing:      body.Balancing,
			Force:          body.Force,
			IdempotencyKey: idempotencyKey(c),
			Metadata:       body.Metadata,
		}

		res, err := container.Manager.Transfer(c.Request.Context(), container.Ledger, req)
		if err != nil {
			metrics.PostingsTotal.WithLabelValues(string(domain.TransferKindMove), "rejected").Inc()
			apierr.Respond(c, err)
			return
		}
		metrics.PostingsTotal.WithLabelValues(string(domain.TransferKindMove), "posted").Inc()
		metrics.PostingAmount.WithLabelValues(string(domain.TransferKindMove)).Observe(float64(req.Amount))
		c.JSON(http.StatusOK, resultResponse(res))
	}
}

type multiTransferRequestBody struct {
	SrcHolder    string               `json:"srcHolder" binding:"required"`
	Amount       int64                `json:"amount" binding:"required"`
	Destinations []domain.Destination `json:"destinations" binding:"required"`
	Reference    string               `json:"reference" binding:"required"`
	Metadata     map[string]any       `json:"metadata"`
}

// MakeMultiTransferHandler implements multi_transfer (spec §4.2): one
// source fans out to N destinations whose amounts must sum to Amount.
func MakeMultiTransferHandler(container *Container) gin.HandlerFunc {
	return func(c *gin.Context) {
		var body multiTransferRequestBody
		if err := c.ShouldBindJSON(&body); err != nil {
			c.JSON(http.StatusBadRequest, apierr.Body{Code: "invalid_argument", Message: err.Error()})
			return
		}

		req := txmanager.MultiTransferRequest{
			SrcHolder:      body.SrcHolder,
			Amount:         body.Amount,
			Destinations:   body.Destinations,
			Reference:      body.Reference,
			IdempotencyKey: idempotencyKey(c),
			Metadata:       body.Metadata,
		}

		res, err := container.Manager.MultiTransfer(c.Request.Context(), container.Ledger, req)
		if err != nil {
			metrics.PostingsTotal.WithLabelValues("multi_transfer", "rejected").Inc()
			apierr.Respond(c, err)
			return
		}
		metrics.PostingsTotal.WithLabelValues("multi_transfer", "posted").Inc()
		metrics.PostingAmount.WithLabelValues("multi_transfer").Observe(float64(req.Amount))
		c.JSON(http.StatusOK, resultResponse(res))
	}
}
