package apierr

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ledgercore/internal/ledger/ledgererr"
)

func respond(err error) *httptest.ResponseRecorder {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	Respond(c, err)
	return w
}

func TestRespondMapsKnownCodes(t *testing.T) {
	cases := []struct {
		code   ledgererr.Code
		status int
	}{
		{ledgererr.InvalidArgument, http.StatusBadRequest},
		{ledgererr.NotFound, http.StatusNotFound},
		{ledgererr.Conflict, http.StatusConflict},
		{ledgererr.InsufficientBal, http.StatusUnprocessableEntity},
		{ledgererr.LimitExceeded, http.StatusUnprocessableEntity},
		{ledgererr.HoldExpired, http.StatusConflict},
		{ledgererr.ResourceBusy, http.StatusConflict},
		{ledgererr.Timeout, http.StatusGatewayTimeout},
		{ledgererr.IntegrityFailure, http.StatusInternalServerError},
		{ledgererr.Internal, http.StatusInternalServerError},
	}

	for _, tc := range cases {
		w := respond(ledgererr.Newf(tc.code, "boom"))
		assert.Equal(t, tc.status, w.Code, "code %s", tc.code)

		var body Body
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, string(tc.code), body.Code)
		assert.Equal(t, "boom", body.Message)
	}
}

func TestRespondTreatsUnknownErrorAsInternal(t *testing.T) {
	w := respond(errors.New("unexpected failure"))
	assert.Equal(t, http.StatusInternalServerError, w.Code)

	var body Body
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, string(ledgererr.Internal), body.Code)
	assert.Equal(t, "unexpected failure", body.Message)
}

func TestRespondUnwrapsWrappedLedgerError(t *testing.T) {
	inner := ledgererr.Newf(ledgererr.ResourceBusy, "row locked")
	w := respond(errors.Join(inner))
	assert.Equal(t, http.StatusConflict, w.Code)
}
