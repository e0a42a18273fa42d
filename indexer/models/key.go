package models

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// HashFunc digests the concatenated ids of a pair.
type HashFunc func(data []byte) []byte

// SHA256 is the digest used for dex lookup keys and bridge pair ids.
func SHA256(data []byte) []byte {
	sum := sha256.Sum256(data)
	return sum[:]
}

// OrderIndependentKey derives a key for an unordered pair of ids.
// Both ids are lower-cased and concatenated in ascending order before hashing,
// so OrderIndependentKey(a, b, h) == OrderIndependentKey(b, a, h).
// A nil hash returns the plain concatenation.
func OrderIndependentKey(idA, idB string, hash HashFunc) string {
	a, b := strings.ToLower(idA), strings.ToLower(idB)
	if b < a {
		a, b = b, a
	}
	concat := a + b
	if hash == nil {
		return concat
	}
	return hex.EncodeToString(hash([]byte(concat)))
}

// PairKey is the lookup key of the unordered token pair (a, b).
func PairKey(a, b Token) string {
	return OrderIndependentKey(a.ID, b.ID, SHA256)
}
