// Package zkp implements the advisory transaction proof scheme.
//
// The proof is a commit-challenge-response triple over the transaction terms.
// Verification only checks internal consistency; the response is never bound
// to a key, so a proof raises confidence but never authorizes anything.
// Signature verification remains the authorization boundary.
package zkp

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"

	"github.com/codycordova/codychain/pkg/crypto"
)

// nonceSize is the length in bytes of the proof nonce and response
const nonceSize = 32

// Proof is the advisory proof attached to a transaction
type Proof struct {
	Commitment  string `json:"commitment"`
	Challenge   string `json:"challenge"`
	Response    string `json:"response"`
	MessageHash string `json:"message_hash"`
}

// GenerateProof builds a proof over the transaction terms using the sender's
// hex private key seed. The commitment is the public key of a fresh random
// nonce; the response blends the nonce with the private key bytewise.
func GenerateProof(sender, receiver string, amount float64, privateKeyHex string) (*Proof, error) {
	seed, err := hex.DecodeString(privateKeyHex)
	if err != nil {
		return nil, fmt.Errorf("invalid private key hex: %v", err)
	}
	if len(seed) != nonceSize {
		return nil, errors.New("invalid private key length")
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return nil, err
	}

	commitment, err := crypto.PublicKeyFromPrivate(hex.EncodeToString(nonce))
	if err != nil {
		return nil, err
	}

	messageHash := messageHash(sender, receiver, amount)
	challenge := crypto.SHA256Hex(fmt.Sprintf("%s:%s", commitment, messageHash))

	response := make([]byte, nonceSize)
	for i := range response {
		response[i] = nonce[i] + seed[i]
	}

	return &Proof{
		Commitment:  commitment,
		Challenge:   challenge,
		Response:    hex.EncodeToString(response),
		MessageHash: messageHash,
	}, nil
}

// VerifyProof checks a proof against the transaction terms.
// It recomputes the message hash and challenge and checks the response shape.
// Any mismatch or malformed field yields false, never an error.
func VerifyProof(proof *Proof, sender, receiver string, amount float64) bool {
	if proof == nil {
		return false
	}

	if proof.MessageHash != messageHash(sender, receiver, amount) {
		return false
	}

	expectedChallenge := crypto.SHA256Hex(fmt.Sprintf("%s:%s", proof.Commitment, proof.MessageHash))
	if proof.Challenge != expectedChallenge {
		return false
	}

	response, err := hex.DecodeString(proof.Response)
	if err != nil || len(response) != nonceSize {
		return false
	}

	return true
}

// messageHash digests the transaction terms the proof commits to
func messageHash(sender, receiver string, amount float64) string {
	return crypto.SHA256Hex(fmt.Sprintf("%s:%s:%s", sender, receiver, crypto.FormatAmount(amount)))
}
