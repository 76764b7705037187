package scenarios

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgercore/test/integration/testenv"
)

// TestMultiTransferSplitsAcrossDestinations exercises multi_transfer: one
// source fans out to several destinations whose amounts sum to the total.
func TestMultiTransferSplitsAcrossDestinations(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "ivan", "USD")
	testenv.CreateAccount(t, router, "jan", "USD")
	testenv.CreateAccount(t, router, "kim", "USD")
	testenv.Credit(t, router, "ivan", 1000, "seed-ivan")

	resp := testenv.DoJSON(t, router, http.MethodPost, "/multi-transfer", map[string]interface{}{
		"srcHolder": "ivan",
		"amount":    600,
		"reference": "split-1",
		"destinations": []map[string]interface{}{
			{"holderId": "jan", "amount": 400},
			{"holderId": "kim", "amount": 200},
		},
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	ivan := testenv.GetAccount(t, router, "ivan")
	jan := testenv.GetAccount(t, router, "jan")
	kim := testenv.GetAccount(t, router, "kim")
	require.EqualValues(t, 400, ivan["balance"])
	require.EqualValues(t, 400, jan["balance"])
	require.EqualValues(t, 200, kim["balance"])
}

// TestMultiTransferRejectsMismatchedSplit exercises the "destinations
// must sum to amount" invariant.
func TestMultiTransferRejectsMismatchedSplit(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "liam", "USD")
	testenv.CreateAccount(t, router, "mia", "USD")
	testenv.Credit(t, router, "liam", 1000, "seed-liam")

	resp := testenv.DoJSON(t, router, http.MethodPost, "/multi-transfer", map[string]interface{}{
		"srcHolder": "liam",
		"amount":    600,
		"reference": "split-bad",
		"destinations": []map[string]interface{}{
			{"holderId": "mia", "amount": 400},
		},
	})
	require.Equal(t, http.StatusBadRequest, resp.Code, resp.Body.String())

	liam := testenv.GetAccount(t, router, "liam")
	require.EqualValues(t, 1000, liam["balance"])
}

// TestRefundReversesAPostedTransfer exercises refund: reversing a posted
// transfer credits the source back. A second full refund of the same
// transfer finds it reversed rather than posted and is rejected with a
// conflict rather than silently moving money twice.
func TestRefundReversesAPostedTransfer(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "nora", "USD")
	testenv.CreateAccount(t, router, "omar", "USD")
	testenv.Credit(t, router, "nora", 1000, "seed-nora")

	transferResp := testenv.Transfer(t, router, "nora", "omar", 300, "transfer-refund")
	require.Equal(t, http.StatusOK, transferResp.Code, transferResp.Body.String())
	transfer := testenv.Decode(t, transferResp)
	transferID, _ := transfer["id"].(string)
	require.NotEmpty(t, transferID)

	first := testenv.DoJSON(t, router, http.MethodPost, "/refund", map[string]interface{}{
		"transferId": transferID,
		"reason":     "customer-dispute",
	})
	require.Equal(t, http.StatusOK, first.Code, first.Body.String())

	nora := testenv.GetAccount(t, router, "nora")
	omar := testenv.GetAccount(t, router, "omar")
	require.EqualValues(t, 1000, nora["balance"])
	require.EqualValues(t, 0, omar["balance"])

	second := testenv.DoJSON(t, router, http.MethodPost, "/refund", map[string]interface{}{
		"transferId": transferID,
		"reason":     "customer-dispute",
	})
	require.Equal(t, http.StatusConflict, second.Code, second.Body.String())

	noraAfterRetry := testenv.GetAccount(t, router, "nora")
	require.EqualValues(t, 1000, noraAfterRetry["balance"])
}

// TestRefundPartialThenRemainder exercises a partial refund followed by a
// refund of the remaining amount, each producing its own distinct
// correction and neither exceeding the original transfer amount.
func TestRefundPartialThenRemainder(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "penny", "USD")
	testenv.CreateAccount(t, router, "quinn", "USD")
	testenv.Credit(t, router, "penny", 1000, "seed-penny")

	transferResp := testenv.Transfer(t, router, "penny", "quinn", 300, "transfer-partial-refund")
	require.Equal(t, http.StatusOK, transferResp.Code, transferResp.Body.String())
	transfer := testenv.Decode(t, transferResp)
	transferID, _ := transfer["id"].(string)

	partial := testenv.DoJSON(t, router, http.MethodPost, "/refund", map[string]interface{}{
		"transferId": transferID,
		"reason":     "partial-dispute",
		"amount":     100,
	})
	require.Equal(t, http.StatusOK, partial.Code, partial.Body.String())

	penny := testenv.GetAccount(t, router, "penny")
	require.EqualValues(t, 800, penny["balance"])

	remainder := testenv.DoJSON(t, router, http.MethodPost, "/refund", map[string]interface{}{
		"transferId": transferID,
		"reason":     "partial-dispute",
		"amount":     200,
	})
	require.Equal(t, http.StatusOK, remainder.Code, remainder.Body.String())

	pennyAfter := testenv.GetAccount(t, router, "penny")
	require.EqualValues(t, 1000, pennyAfter["balance"])

	overRefund := testenv.DoJSON(t, router, http.MethodPost, "/refund", map[string]interface{}{
		"transferId": transferID,
		"reason":     "partial-dispute",
		"amount":     1,
	})
	require.Equal(t, http.StatusConflict, overRefund.Code, overRefund.Body.String())
}
