package handlers

import (
	"github.com/gin-gonic/gin"

	"ledgercore/internal/ledger/domain"
	"ledgercore/internal/ledger/txmanager"
)

func transferResponse(t *domain.Transfer) gin.H {
	if t == nil {
		return gin.H{}
	}
	return gin.H{
		"id":              t.ID,
		"type":            t.Type,
		"status":          t.Status,
		"reference":       t.Reference,
		"amount":          t.Amount,
		"currency":        t.Currency,
		"sourceAccountId": t.SourceAccountID,
		"destinationAccountId": t.DestinationAccountID,
		"correlationId":   t.CorrelationID,
		"isHold":          t.IsHold,
		"holdExpiresAt":   t.HoldExpiresAt,
		"parentId":        t.ParentID,
		"isReversal":      t.IsReversal,
		"committedAmount": t.CommittedAmount,
		"refundedAmount":  t.RefundedAmount,
		"exchangeRate":    t.ExchangeRate,
		"effectiveDate":   t.EffectiveDate,
		"postedAt":        t.PostedAt,
		"createdAt":       t.CreatedAt,
	}
}

func resultResponse(res *txmanager.Result) gin.H {
	body := transferResponse(res.Transfer)
	if res.RequestedAmount != nil {
		body["requestedAmount"] = *res.RequestedAmount
	}
	if res.CrossCurrency {
		body["crossCurrency"] = true
	}
	return body
}

func idempotencyKey(c *gin.Context) *string {
	v := c.GetHeader("Idempotency-Key")
	if v == "" {
		return nil
	}
	return &v
}
