// Package apierr maps ledgererr.Code onto HTTP status codes and JSON
// bodies. Grounded on the teacher's src/errors/errors.go APIError
// (code + message + status), generalized from a fixed enum of banking
// error constructors to a lookup over the ledger's ten-value taxonomy.
package apierr

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"ledgercore/internal/ledger/ledgererr"
)

// Body is the JSON error envelope returned to API callers.
type Body struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

var statusByCode = map[ledgererr.Code]int{
	ledgererr.InvalidArgument:  http.StatusBadRequest,
	ledgererr.NotFound:         http.StatusNotFound,
	ledgererr.Conflict:         http.StatusConflict,
	ledgererr.InsufficientBal:  http.StatusUnprocessableEntity,
	ledgererr.LimitExceeded:    http.StatusUnprocessableEntity,
	ledgererr.HoldExpired:      http.StatusConflict,
	ledgererr.ResourceBusy:     http.StatusConflict,
	ledgererr.Timeout:          http.StatusGatewayTimeout,
	ledgererr.IntegrityFailure: http.StatusInternalServerError,
	ledgererr.Internal:         http.StatusInternalServerError,
}

// Respond writes err as the appropriate HTTP status/JSON body. Unknown
// error types (not *ledgererr.Error) are treated as internal.
func Respond(c *gin.Context, err error) {
	var le *ledgererr.Error
	if errors.As(err, &le) {
		c.JSON(statusByCode[le.Code], Body{Code: string(le.Code), Message: le.Message})
		return
	}
	c.JSON(http.StatusInternalServerError, Body{Code: string(ledgererr.Internal), Message: err.Error()})
}
