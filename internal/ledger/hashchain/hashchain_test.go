package hashchain

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func sampleCore(balance int64) EntryCore {
	before := balance
	after := balance + 100
	return EntryCore{
		TransferID:     "t1",
		AccountID:      "a1",
		EntryType:      "debit",
		Amount:         100,
		Currency:       "USD",
		BalanceBefore:  &before,
		BalanceAfter:   &after,
		AccountVersion: 1,
	}
}

func TestCanonicalEncodeIsDeterministic(t *testing.T) {
	core := sampleCore(500)
	first := CanonicalEncode(core)
	second := CanonicalEncode(core)
	assert.Equal(t, first, second)
}

func TestNextHashChangesWithPrevHash(t *testing.T) {
	secret := []byte("secret")
	core := sampleCore(0)
	h1 := NextHash(secret, nil, core)
	h2 := NextHash(secret, []byte("other-prev"), core)
	assert.NotEqual(t, h1, h2)
}

func TestNextHashWithoutSecretFallsBackToSHA256(t *testing.T) {
	core := sampleCore(0)
	h1 := NextHash(nil, nil, core)
	h2 := NextHash(nil, nil, core)
	require.Len(t, h1, 32)
	assert.Equal(t, h1, h2)
}

func TestVerifyChainAcceptsValidChain(t *testing.T) {
	secret := []byte("chain-secret")
	cores := []EntryCore{sampleCore(0), sampleCore(100), sampleCore(200)}

	var prevHashes, hashes [][]byte
	var prev []byte
	for _, c := range cores {
		h := NextHash(secret, prev, c)
		prevHashes = append(prevHashes, prev)
		hashes = append(hashes, h)
		prev = h
	}

	assert.True(t, VerifyChain(secret, cores, prevHashes, hashes))
}

func TestVerifyChainRejectsTamperedEntry(t *testing.T) {
	secret := []byte("chain-secret")
	cores := []EntryCore{sampleCore(0), sampleCore(100)}

	var prevHashes, hashes [][]byte
	var prev []byte
	for _, c := range cores {
		h := NextHash(secret, prev, c)
		prevHashes = append(prevHashes, prev)
		hashes = append(hashes, h)
		prev = h
	}

	cores[1].Amount = 999999

	assert.False(t, VerifyChain(secret, cores, prevHashes, hashes))
}

func TestVerifyChainRejectsBrokenLink(t *testing.T) {
	secret := []byte("chain-secret")
	cores := []EntryCore{sampleCore(0), sampleCore(100)}

	h0 := NextHash(secret, nil, cores[0])
	h1 := NextHash(secret, []byte("wrong-link"), cores[1])

	assert.False(t, VerifyChain(secret, cores, [][]byte{nil, []byte("wrong-link")}, [][]byte{h0, h1}))
}

func TestChecksumRoundTrip(t *testing.T) {
	secret := []byte("checksum-secret")
	snap := AccountSnapshot{Balance: 1000, CreditBalance: 1500, DebitBalance: 500, Version: 3}

	sum := Checksum(secret, snap)
	assert.True(t, VerifyChecksum(secret, snap, sum))

	snap.Balance = 999
	assert.False(t, VerifyChecksum(secret, snap, sum))
}
