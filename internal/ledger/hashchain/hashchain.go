// Package hashchain implements the canonical encoding and keyed hashing
// used for the per-account entry hash chain and the account checksum
// (spec §4.4, §6). The HMAC key is options.advanced.hmac_secret; when it
// is absent a plain SHA-256 is used, which weakens auditability but keeps
// the ledger usable in environments without a configured secret.
package hashchain

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/json"
	"sort"
)

// EntryCore is the subset of an entry's fields that feed the hash chain.
// For hot (system, high-contention) accounts, BalanceBefore/BalanceAfter
// are nil and IsHot is set, per spec §4.4.
type EntryCore struct {
	TransferID     string `json:"transferId"`
	AccountID      string `json:"accountId"`
	EntryType      string `json:"entryType"`
	Amount         int64  `json:"amount"`
	Currency       string `json:"currency"`
	BalanceBefore  *int64 `json:"balanceBefore,omitempty"`
	BalanceAfter   *int64 `json:"balanceAfter,omitempty"`
	AccountVersion int64  `json:"accountVersion"`
	IsHot          bool   `json:"isHot,omitempty"`
}

// AccountSnapshot is the subset of account fields the checksum covers.
type AccountSnapshot struct {
	Balance       int64 `json:"balance"`
	CreditBalance int64 `json:"creditBalance"`
	DebitBalance  int64 `json:"debitBalance"`
	PendingDebit  int64 `json:"pendingDebit"`
	PendingCredit int64 `json:"pendingCredit"`
	Version       int64 `json:"version"`
}

// CanonicalEncode produces a deterministic byte encoding: sorted object
// keys, compact separators, no whitespace. encoding/json already sorts
// map keys and struct field order is fixed, so marshaling a struct (never
// a map) is sufficient determinism for our fixed-shape inputs.
func CanonicalEncode(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		// The inputs are always the fixed structs above; a marshal error
		// here means a programming mistake, not a runtime condition.
		panic(err)
	}
	return canonicalizeMapOrder(b)
}

// canonicalizeMapOrder re-marshals through map[string]any so that if a
// caller ever feeds a map-shaped value, keys still come out sorted.
func canonicalizeMapOrder(b []byte) []byte {
	var generic any
	if err := json.Unmarshal(b, &generic); err != nil {
		return b
	}
	sortedKeys(generic)
	out, err := json.Marshal(generic)
	if err != nil {
		return b
	}
	return out
}

func sortedKeys(v any) {
	switch t := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			sortedKeys(t[k])
		}
	case []any:
		for _, e := range t {
			sortedKeys(e)
		}
	}
}

// keyedHash computes HMAC-SHA-256 when secret is non-empty, else plain
// SHA-256 over the same payload.
func keyedHash(secret []byte, payload []byte) []byte {
	if len(secret) == 0 {
		sum := sha256.Sum256(payload)
		return sum[:]
	}
	mac := hmac.New(sha256.New, secret)
	mac.Write(payload)
	return mac.Sum(nil)
}

// NextHash computes entry_k.hash = H(prev_hash || canonical(entry_core)).
// prevHash is nil/empty for the first entry in an account's chain.
func NextHash(secret []byte, prevHash []byte, core EntryCore) []byte {
	payload := append(append([]byte{}, prevHash...), CanonicalEncode(core)...)
	return keyedHash(secret, payload)
}

// VerifyChain recomputes the hash for each entry core against its stored
// prevHash/hash, returning false at the first mismatch (testable property
// 3, chain integrity).
func VerifyChain(secret []byte, cores []EntryCore, prevHashes [][]byte, hashes [][]byte) bool {
	if len(cores) != len(prevHashes) || len(cores) != len(hashes) {
		return false
	}
	var expectedPrev []byte
	for i, core := range cores {
		if i == 0 {
			if len(prevHashes[i]) != 0 {
				return false
			}
		} else if !hmac.Equal(prevHashes[i], expectedPrev) {
			return false
		}
		got := NextHash(secret, prevHashes[i], core)
		if !hmac.Equal(got, hashes[i]) {
			return false
		}
		expectedPrev = hashes[i]
	}
	return true
}

// Checksum computes the keyed hash of an account snapshot (spec §4.4).
func Checksum(secret []byte, snap AccountSnapshot) []byte {
	return keyedHash(secret, CanonicalEncode(snap))
}

// VerifyChecksum reports whether checksum is the correct keyed hash of snap.
func VerifyChecksum(secret []byte, snap AccountSnapshot, checksum []byte) bool {
	return hmac.Equal(Checksum(secret, snap), checksum)
}
