package crypto

import (
	"crypto/sha256"
	"encoding/hex"

	"github.com/zeebo/blake3"
)

// Hash computes the BLAKE3 hash of the input data
func Hash(data []byte) []byte {
	hasher := blake3.New()
	hasher.Write(data)
	return hasher.Sum(nil)
}

// HashMultiple computes the BLAKE3 hash of multiple inputs
func HashMultiple(inputs ...[]byte) []byte {
	hasher := blake3.New()
	for _, input := range inputs {
		hasher.Write(input)
	}
	return hasher.Sum(nil)
}

// SHA256Hex returns the SHA-256 hex digest of a string.
// Canonical transaction messages and proof challenges are digested with this.
func SHA256Hex(message string) string {
	sum := sha256.Sum256([]byte(message))
	return hex.EncodeToString(sum[:])
}
