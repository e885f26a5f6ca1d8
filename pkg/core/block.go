package core

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/zeebo/blake3"

	"github.com/codycordova/codychain/pkg/crypto"
)

const (
	// Difficulty is the number of leading zero hex digits a mined hash must carry
	Difficulty = 4

	// GenesisPreviousHash is the previous-hash sentinel of the genesis block
	GenesisPreviousHash = "0"

	// cancelCheckInterval is how many nonces are tried between cancellation checks
	cancelCheckInterval = 1024
)

// difficultyPrefix is the required hash prefix at the fixed difficulty
var difficultyPrefix = strings.Repeat("0", Difficulty)

// Block is one link of the chain. Hash is only trusted once the block has been
// mined or restored verbatim from a snapshot.
type Block struct {
	Index        uint64        `json:"index"`
	Timestamp    string        `json:"timestamp"`
	Transactions []Transaction `json:"transactions"`
	PreviousHash string        `json:"previous_hash"`
	Nonce        uint64        `json:"nonce"`
	Hash         string        `json:"hash"`
}

// NewBlock creates an unmined block stamped with the current time
func NewBlock(index uint64, transactions []Transaction, previousHash string) *Block {
	return &Block{
		Index:        index,
		Timestamp:    crypto.Now(),
		Transactions: transactions,
		PreviousHash: previousHash,
	}
}

// CalculateHash calculates the BLAKE3 hash of the block contents as a hex string
func (b *Block) CalculateHash() string {
	hasher := blake3.New()

	hasher.Write(uint64ToBytes(b.Index))
	writeString(hasher, b.Timestamp)
	for _, tx := range b.Transactions {
		hasher.Write(tx.CalculateHash())
	}
	writeString(hasher, b.PreviousHash)
	hasher.Write(uint64ToBytes(b.Nonce))

	return hex.EncodeToString(hasher.Sum(nil))
}

// HasValidProofOfWork reports whether the block hash meets the difficulty prefix
func (b *Block) HasValidProofOfWork() bool {
	return strings.HasPrefix(b.Hash, difficultyPrefix)
}

// MineBlock performs the proof of work on a block: the nonce is incremented and
// the hash recomputed until it carries the difficulty prefix. The nonce is
// checked before the first increment, so a nonce that already satisfies the
// difficulty is kept as is. On cancellation the block's hash stays unset and
// the block must be discarded.
func MineBlock(ctx context.Context, b *Block) error {
	hash := b.CalculateHash()

	for attempt := 0; !strings.HasPrefix(hash, difficultyPrefix); attempt++ {
		if attempt%cancelCheckInterval == 0 {
			select {
			case <-ctx.Done():
				return fmt.Errorf("%w: %v", ErrMiningCancelled, ctx.Err())
			default:
			}
		}

		b.Nonce++
		hash = b.CalculateHash()
	}

	b.Hash = hash
	return nil
}

// CreateGenesisBlock mines the fixed first block of a fresh chain
func CreateGenesisBlock(ctx context.Context) (*Block, error) {
	genesis := NewBlock(0, []Transaction{}, GenesisPreviousHash)
	if err := MineBlock(ctx, genesis); err != nil {
		return nil, err
	}
	return genesis, nil
}
