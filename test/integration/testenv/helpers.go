package testenv

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func doJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return doJSONWithHeaders(t, r, method, path, body, nil)
}

func doJSONWithHeaders(t *testing.T, r *gin.Engine, method, path string, body interface{}, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var result map[string]interface{}
	require.NoError(t, json.Unmarshal(resp.Body.Bytes(), &result))
	return result
}

// Decode exposes decode to callers outside this package (e.g. scenario
// tests that need to inspect a raw response body).
func Decode(t *testing.T, resp *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	return decode(t, resp)
}

// DoJSON issues a JSON request against r and returns the raw response,
// for scenarios that need to hit an endpoint with no dedicated helper.
func DoJSON(t *testing.T, r *gin.Engine, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, r, method, path, body)
}

// CreateAccount opens a holder account with the given currency and
// returns the decoded account body.
func CreateAccount(t *testing.T, r *gin.Engine, holderID, currency string) map[string]interface{} {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/accounts", map[string]interface{}{
		"holderId": holderID,
		"currency": currency,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode(t, resp)
}

// CreateSystemAccount opens the system account identified by
// systemIdentifier (e.g. "@World"), the counterparty every credit/debit
// posts against on its system side.
func CreateSystemAccount(t *testing.T, r *gin.Engine, systemIdentifier, currency string) map[string]interface{} {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/accounts", map[string]interface{}{
		"systemIdentifier": systemIdentifier,
		"currency":         currency,
	})
	require.Equal(t, http.StatusCreated, resp.Code, resp.Body.String())
	return decode(t, resp)
}

// GetAccount fetches the current balance snapshot for holderID.
func GetAccount(t *testing.T, r *gin.Engine, holderID string) map[string]interface{} {
	t.Helper()
	resp := doJSON(t, r, http.MethodGet, "/accounts/"+holderID, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode(t, resp)
}

// Credit posts credit(holder, amount, reference) and returns the result body.
func Credit(t *testing.T, r *gin.Engine, holder string, amount int64, reference string) map[string]interface{} {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/credit", map[string]interface{}{
		"holder":    holder,
		"amount":    amount,
		"reference": reference,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode(t, resp)
}

// Debit posts debit(holder, amount, reference) and returns the raw response
// so callers can assert on rejection status codes too.
func Debit(t *testing.T, r *gin.Engine, holder string, amount int64, reference string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, r, http.MethodPost, "/debit", map[string]interface{}{
		"holder":    holder,
		"amount":    amount,
		"reference": reference,
	})
}

// CreditWithKey posts credit(holder, amount, reference) carrying an
// Idempotency-Key header, and decodes the response body.
func CreditWithKey(t *testing.T, r *gin.Engine, holder string, amount int64, reference, key string) map[string]interface{} {
	t.Helper()
	resp := doJSONWithHeaders(t, r, http.MethodPost, "/credit", map[string]interface{}{
		"holder":    holder,
		"amount":    amount,
		"reference": reference,
	}, map[string]string{"Idempotency-Key": key})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode(t, resp)
}

// DebitWithCategory posts debit(holder, amount, reference, category) and
// returns the raw response so callers can assert on rejection status codes.
func DebitWithCategory(t *testing.T, r *gin.Engine, holder string, amount int64, reference, category string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, r, http.MethodPost, "/debit", map[string]interface{}{
		"holder":    holder,
		"amount":    amount,
		"reference": reference,
		"category":  category,
	})
}

// Transfer posts transfer(src, dst, amount, reference) and returns the raw response.
func Transfer(t *testing.T, r *gin.Engine, src, dst string, amount int64, reference string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, r, http.MethodPost, "/transfer", map[string]interface{}{
		"srcHolder": src,
		"dstHolder": dst,
		"amount":    amount,
		"reference": reference,
	})
}

// CreateHold posts create_hold(holder, amount, reference) and returns the
// decoded hold.
func CreateHold(t *testing.T, r *gin.Engine, holder string, amount int64, reference string) map[string]interface{} {
	t.Helper()
	resp := doJSON(t, r, http.MethodPost, "/holds", map[string]interface{}{
		"holder":    holder,
		"amount":    amount,
		"reference": reference,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode(t, resp)
}

// CommitHold posts commit_hold(holdID, amount) (amount nil commits the
// full held amount) and returns the raw response.
func CommitHold(t *testing.T, r *gin.Engine, holdID string, amount *int64) *httptest.ResponseRecorder {
	t.Helper()
	var body interface{}
	if amount != nil {
		body = map[string]interface{}{"amount": *amount}
	}
	return doJSON(t, r, http.MethodPost, "/holds/"+holdID+"/commit", body)
}

// VoidHold posts void_hold(holdID) and returns the raw response.
func VoidHold(t *testing.T, r *gin.Engine, holdID string) *httptest.ResponseRecorder {
	t.Helper()
	return doJSON(t, r, http.MethodPost, "/holds/"+holdID+"/void", nil)
}

// GetHold fetches a hold by id and returns the decoded body.
func GetHold(t *testing.T, r *gin.Engine, holdID string) map[string]interface{} {
	t.Helper()
	resp := doJSON(t, r, http.MethodGet, "/holds/"+holdID, nil)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	return decode(t, resp)
}

// AssertHasError checks that result carries a non-empty error message.
func AssertHasError(t *testing.T, result map[string]interface{}) {
	t.Helper()
	message, ok := result["message"]
	assert.True(t, ok, "expected an error body with a message field")
	assert.NotEmpty(t, message)
}
