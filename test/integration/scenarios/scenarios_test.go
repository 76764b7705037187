package scenarios

import (
	"context"
	"net/http"
	"testing"

	"github.com/stretchr/testify/require"

	"ledgercore/test/integration/testenv"
)

// TestSimpleTransfer exercises scenario 1: credit A then transfer part of
// it to B, and check the resulting balances.
func TestSimpleTransfer(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "alice", "USD")
	testenv.CreateAccount(t, router, "bob", "USD")

	testenv.Credit(t, router, "alice", 1000, "seed-alice")
	resp := testenv.Transfer(t, router, "alice", "bob", 300, "transfer-1")
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	alice := testenv.GetAccount(t, router, "alice")
	bob := testenv.GetAccount(t, router, "bob")
	require.EqualValues(t, 700, alice["balance"])
	require.EqualValues(t, 300, bob["balance"])
}

// TestIdempotentRetry exercises scenario 5: a retried credit carrying the
// same Idempotency-Key header must not double-post, and must return the
// same posting back to the caller.
func TestIdempotentRetry(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "carol", "USD")

	first := testenv.CreditWithKey(t, router, "carol", 100, "r1", "k1")
	second := testenv.CreditWithKey(t, router, "carol", 100, "r1", "k1")
	require.Equal(t, first["id"], second["id"])

	carol := testenv.GetAccount(t, router, "carol")
	require.EqualValues(t, 100, carol["balance"])
}

// TestDailyLimit exercises scenario 4: a daily payout limit rejects once
// the window's cumulative amount would exceed the cap, but only for the
// limited category.
func TestDailyLimit(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	dave := testenv.CreateAccount(t, router, "dave", "USD")
	testenv.Credit(t, router, "dave", 5000, "seed-dave")

	_, err := adapter.Pool.Exec(context.Background(), `INSERT INTO account_limits
		(account_id, limit_type, category, max_amount, enabled) VALUES ($1, 'daily', 'payout', 1000, true)`,
		dave["id"])
	require.NoError(t, err)

	ok := testenv.DebitWithCategory(t, router, "dave", 600, "payout-1", "payout")
	require.Equal(t, http.StatusOK, ok.Code, ok.Body.String())

	rejected := testenv.DebitWithCategory(t, router, "dave", 500, "payout-2", "payout")
	require.Equal(t, http.StatusUnprocessableEntity, rejected.Code, rejected.Body.String())
	testenv.AssertHasError(t, testenv.Decode(t, rejected))

	other := testenv.DebitWithCategory(t, router, "dave", 500, "other-1", "other")
	require.Equal(t, http.StatusOK, other.Code, other.Body.String())
}

// TestHoldCommitPartial exercises scenario 2: a hold can be committed for
// less than the full reserved amount, releasing the remainder back to
// the source account's available balance.
func TestHoldCommitPartial(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "erin", "USD")
	testenv.Credit(t, router, "erin", 1000, "seed-erin")

	h := testenv.CreateHold(t, router, "erin", 400, "hold-1")
	holdID, _ := h["id"].(string)
	require.NotEmpty(t, holdID)

	erinDuringHold := testenv.GetAccount(t, router, "erin")
	require.EqualValues(t, 1000, erinDuringHold["balance"])
	require.EqualValues(t, 600, erinDuringHold["available"])

	partial := int64(150)
	resp := testenv.CommitHold(t, router, holdID, &partial)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	erinAfterCommit := testenv.GetAccount(t, router, "erin")
	require.EqualValues(t, 850, erinAfterCommit["balance"])
	require.EqualValues(t, 850, erinAfterCommit["available"])
}

// TestHoldVoidReleasesFullAmount exercises scenario 3 (a hold never
// committed is released in full, whether by explicit void or by the
// sweeper expiring it; this checks the explicit void path).
func TestHoldVoidReleasesFullAmount(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "frank", "USD")
	testenv.Credit(t, router, "frank", 500, "seed-frank")

	h := testenv.CreateHold(t, router, "frank", 200, "hold-2")
	holdID, _ := h["id"].(string)
	require.NotEmpty(t, holdID)

	resp := testenv.VoidHold(t, router, holdID)
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())

	frank := testenv.GetAccount(t, router, "frank")
	require.EqualValues(t, 500, frank["balance"])
	require.EqualValues(t, 500, frank["available"])

	// A hold can only be resolved once.
	second := testenv.VoidHold(t, router, holdID)
	require.NotEqual(t, http.StatusOK, second.Code)
}

// TestCrossCurrencyTransfer exercises scenario 6: a transfer between
// accounts of different currencies converts through the supplied
// scaled-by-1e6 exchange rate and reports crossCurrency in the result.
func TestCrossCurrencyTransfer(t *testing.T) {
	adapter := testenv.SetupIntegrationTest(t)
	router := testenv.SetupTestRouter(adapter)

	testenv.CreateSystemAccount(t, router, "@World", "USD")
	testenv.CreateAccount(t, router, "gus", "USD")
	testenv.CreateAccount(t, router, "helen", "EUR")
	testenv.Credit(t, router, "gus", 10000, "seed-gus")

	resp := testenv.DoJSON(t, router, http.MethodPost, "/transfer", map[string]interface{}{
		"srcHolder":    "gus",
		"dstHolder":    "helen",
		"amount":       1000,
		"reference":    "fx-1",
		"exchangeRate": 900_000,
	})
	require.Equal(t, http.StatusOK, resp.Code, resp.Body.String())
	body := testenv.Decode(t, resp)
	require.Equal(t, true, body["crossCurrency"])

	gus := testenv.GetAccount(t, router, "gus")
	helen := testenv.GetAccount(t, router, "helen")
	require.EqualValues(t, 9000, gus["balance"])
	require.EqualValues(t, 900, helen["balance"])
}
