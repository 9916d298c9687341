// Package checksum derives content identities for generated text.
package checksum

import (
	"crypto/sha256"
	"encoding/hex"
)

// HexLen is the length of every string returned by Sum.
const HexLen = sha256.Size * 2

// Sum returns the lowercase hex-encoded SHA-256 digest of data.
func Sum(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
