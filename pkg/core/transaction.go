package core

import (
	"github.com/zeebo/blake3"

	"github.com/codycordova/codychain/pkg/crypto"
	"github.com/codycordova/codychain/pkg/zkp"
)

// SystemSender is the sender recorded on mining reward transactions
const SystemSender = "SYSTEM"

// Transaction represents a transfer between two addresses.
// Signature, proof and timestamp are optional; the ledger stamps a timestamp
// at admission when none is present.
type Transaction struct {
	Sender    string     `json:"sender"`
	Receiver  string     `json:"receiver"`
	Amount    float64    `json:"amount"`
	Signature string     `json:"signature,omitempty"`
	ZKProof   *zkp.Proof `json:"zk_proof,omitempty"`
	Timestamp string     `json:"timestamp,omitempty"`
}

// NewTransaction creates a transaction stamped with the current time
func NewTransaction(sender, receiver string, amount float64) Transaction {
	return Transaction{
		Sender:    sender,
		Receiver:  receiver,
		Amount:    amount,
		Timestamp: crypto.Now(),
	}
}

// CalculateHash calculates the BLAKE3 digest of the transaction.
// Block hashes are built from these digests, so every field that changes the
// meaning of a transaction feeds into it.
func (tx *Transaction) CalculateHash() []byte {
	hasher := blake3.New()

	writeString(hasher, tx.Sender)
	writeString(hasher, tx.Receiver)
	writeString(hasher, crypto.FormatAmount(tx.Amount))
	writeString(hasher, tx.Timestamp)
	writeString(hasher, tx.Signature)
	if tx.ZKProof != nil {
		writeString(hasher, tx.ZKProof.Commitment)
		writeString(hasher, tx.ZKProof.Challenge)
		writeString(hasher, tx.ZKProof.Response)
		writeString(hasher, tx.ZKProof.MessageHash)
	}

	return hasher.Sum(nil)
}

// Sign signs the transaction with the sender's hex private key seed.
// A transaction without a timestamp is stamped first so the signature and the
// stored timestamp always agree.
func (tx *Transaction) Sign(privateKeyHex string) error {
	signature, timestamp, err := crypto.SignTransaction(tx.Sender, tx.Receiver, tx.Amount, privateKeyHex, tx.Timestamp)
	if err != nil {
		return err
	}

	tx.Signature = signature
	tx.Timestamp = timestamp
	return nil
}

// VerifySignature verifies the transaction signature against a hex public key
func (tx *Transaction) VerifySignature(publicKeyHex string) bool {
	return crypto.VerifyTransaction(tx.Sender, tx.Receiver, tx.Amount, tx.Signature, publicKeyHex, tx.Timestamp)
}

// AttachProof generates and attaches the advisory proof for this transaction
func (tx *Transaction) AttachProof(privateKeyHex string) error {
	proof, err := zkp.GenerateProof(tx.Sender, tx.Receiver, tx.Amount, privateKeyHex)
	if err != nil {
		return err
	}

	tx.ZKProof = proof
	return nil
}

// writeString writes a length-prefixed string to the hasher so that adjacent
// fields cannot be shifted into each other without changing the digest
func writeString(hasher *blake3.Hasher, s string) {
	hasher.Write(uint64ToBytes(uint64(len(s))))
	hasher.Write([]byte(s))
}

// uint64ToBytes converts a uint64 to its little-endian byte form
func uint64ToBytes(n uint64) []byte {
	b := make([]byte, 8)
	for i := uint64(0); i < 8; i++ {
		b[i] = byte(n >> (i * 8))
	}
	return b
}
