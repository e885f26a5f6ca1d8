package crypto

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"math"
	"strconv"
	"time"
)

// SeedSize is the length in bytes of a private key seed
const SeedSize = ed25519.SeedSize

// GenerateKeypair generates a new Ed25519 keypair and returns both keys hex-encoded.
// The private key is the 32-byte seed, the public key the 32-byte point.
func GenerateKeypair() (string, string, error) {
	seed := make([]byte, SeedSize)
	if _, err := rand.Read(seed); err != nil {
		return "", "", err
	}

	privateKey := ed25519.NewKeyFromSeed(seed)
	publicKey := privateKey.Public().(ed25519.PublicKey)

	return hex.EncodeToString(seed), hex.EncodeToString(publicKey), nil
}

// PublicKeyFromPrivate derives the hex public key from a hex private key seed
func PublicKeyFromPrivate(privateKeyHex string) (string, error) {
	privateKey, err := privateKeyFromHex(privateKeyHex)
	if err != nil {
		return "", err
	}

	publicKey := privateKey.Public().(ed25519.PublicKey)
	return hex.EncodeToString(publicKey), nil
}

// SignMessage signs a message with a hex private key seed and returns the hex signature.
// Messages that look like hex (even length, only hex digits) are signed over their
// decoded bytes, everything else over the raw UTF-8 bytes. Transaction digests are
// hex strings, so their 32 raw bytes are what actually gets signed.
func SignMessage(message, privateKeyHex string) (string, error) {
	privateKey, err := privateKeyFromHex(privateKeyHex)
	if err != nil {
		return "", err
	}

	signature := ed25519.Sign(privateKey, MessageBytes(message))
	return hex.EncodeToString(signature), nil
}

// VerifySignature verifies a hex signature over a message against a hex public key.
// Any malformed input yields false, never an error.
func VerifySignature(message, signatureHex, publicKeyHex string) bool {
	signature, err := hex.DecodeString(signatureHex)
	if err != nil || len(signature) != ed25519.SignatureSize {
		return false
	}

	publicKey, err := hex.DecodeString(publicKeyHex)
	if err != nil || len(publicKey) != ed25519.PublicKeySize {
		return false
	}

	return ed25519.Verify(ed25519.PublicKey(publicKey), MessageBytes(message), signature)
}

// SignTransaction signs the canonical digest of a transaction.
// An empty timestamp is replaced with the current UTC time; the timestamp that was
// signed is returned alongside the signature so callers can keep the two together.
func SignTransaction(sender, receiver string, amount float64, privateKeyHex, timestamp string) (string, string, error) {
	if timestamp == "" {
		timestamp = Now()
	}

	digest := TransactionDigest(sender, receiver, amount, timestamp)
	signature, err := SignMessage(digest, privateKeyHex)
	if err != nil {
		return "", "", err
	}

	return signature, timestamp, nil
}

// VerifyTransaction verifies a transaction signature against the canonical digest
func VerifyTransaction(sender, receiver string, amount float64, signatureHex, publicKeyHex, timestamp string) bool {
	digest := TransactionDigest(sender, receiver, amount, timestamp)
	return VerifySignature(digest, signatureHex, publicKeyHex)
}

// TransactionDigest returns the SHA-256 hex digest of the canonical transaction message
func TransactionDigest(sender, receiver string, amount float64, timestamp string) string {
	message := fmt.Sprintf("%s:%s:%s:%s", sender, receiver, FormatAmount(amount), timestamp)
	return SHA256Hex(message)
}

// FormatAmount renders an amount in its canonical decimal form.
// Whole amounts keep a trailing ".0" so that 5 and 5.0 digest identically.
func FormatAmount(amount float64) string {
	if amount == math.Trunc(amount) && math.Abs(amount) < 1e15 {
		return fmt.Sprintf("%d.0", int64(amount))
	}
	return strconv.FormatFloat(amount, 'f', -1, 64)
}

// MessageBytes returns the bytes a message is signed over: decoded hex when the
// message is an even-length string of hex digits, raw UTF-8 bytes otherwise.
func MessageBytes(message string) []byte {
	if isHexString(message) {
		decoded, err := hex.DecodeString(message)
		if err == nil {
			return decoded
		}
	}
	return []byte(message)
}

// Now returns the current UTC time in the timestamp format used throughout the chain
func Now() string {
	return time.Now().UTC().Format(time.RFC3339Nano)
}

// privateKeyFromHex rebuilds an Ed25519 private key from its hex seed
func privateKeyFromHex(privateKeyHex string) (ed25519.PrivateKey, error) {
	seed, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %v", err)
	}

	if len(seed) != SeedSize {
		return nil, errors.New("invalid private key length")
	}

	return ed25519.NewKeyFromSeed(seed), nil
}

// isHexString reports whether s is an even-length string of hex digits
func isHexString(s string) bool {
	if len(s)%2 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
