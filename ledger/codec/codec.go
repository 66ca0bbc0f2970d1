// Package codec computes the canonical digests used for chain linkage.
//
// Every hash in the ledger is a SHA-256 over a canonical JSON serialization
// of a preimage struct. Field order is fixed by the struct definition and
// nested lists serialize element-by-element in array order, so the same
// logical record always yields the same digest.
package codec

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
)

// Sum returns the lowercase hex SHA-256 digest of v's canonical serialization.
// A serialization failure is programmer error (a preimage struct carrying an
// unmarshalable field) and panics.
func Sum(v any) string {
	b, err := json.Marshal(v)
	if err != nil {
		panic(fmt.Sprintf("codec: failed to marshal hash preimage: %v", err))
	}
	return SumBytes(b)
}

// SumBytes returns the lowercase hex SHA-256 digest of raw bytes.
func SumBytes(b []byte) string {
	h := sha256.Sum256(b)
	return hex.EncodeToString(h[:])
}
