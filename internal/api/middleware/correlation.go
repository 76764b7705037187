package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const correlationIDHeader = "X-Correlation-Id"

// CorrelationID assigns every request a correlation id (from the inbound
// header if the caller supplied one) and echoes it back on the response,
// so a hold's CorrelationID can default to the request's without every
// caller having to generate one.
func CorrelationID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(correlationIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set("correlationId", id)
		c.Writer.Header().Set(correlationIDHeader, id)
		c.Next()
	}
}
