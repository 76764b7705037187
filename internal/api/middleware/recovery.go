package middleware

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/api/apierr"
	"ledgercore/internal/ledger/ledgererr"
	"ledgercore/internal/pkg/logging"
)

// Recovery turns a panicking handler into an internal error response
// instead of tearing down the whole server, logging the panic the way
// the teacher's logging.Error does.
func Recovery(log *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				err, ok := r.(error)
				if !ok {
					err = fmt.Errorf("%v", r)
				}
				log.Error("panic recovered in handler", err, map[string]interface{}{
					"method": c.Request.Method,
					"path":   c.Request.URL.Path,
				})
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierr.Body{
					Code:    string(ledgererr.Internal),
					Message: "internal error",
				})
			}
		}()
		c.Next()
	}
}
