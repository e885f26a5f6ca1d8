package core

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
	"time"

	"github.com/codycordova/codychain/pkg/crypto"
	"github.com/codycordova/codychain/pkg/registry"
	"github.com/codycordova/codychain/pkg/zkp"
)

// ProofVerifier checks an advisory proof against the transaction terms
type ProofVerifier func(proof *zkp.Proof, sender, receiver string, amount float64) bool

// Config carries the collaborators a Ledger is built from.
// Only Registry has a hard default (a fresh dev-user bootstrap); everything
// else is optional.
type Config struct {
	Registry *registry.Registry
	Store    Snapshotter
	Listener EventListener
	Logger   *slog.Logger
	Rand     *rand.Rand

	// PermissiveSignatures admits signed transactions whose sender has no
	// registered key instead of rejecting them. Verification failures against
	// a registered key are rejected under either policy.
	PermissiveSignatures bool

	// DisableProofChecks drops the proof verifier, so attached proofs are
	// carried through unchecked.
	DisableProofChecks bool
}

// Ledger is the single-writer ledger: a mined chain, a pending pool and the
// identity registry, guarded by one lock. All mutations are written through
// to the snapshot store when one is configured.
type Ledger struct {
	mu       sync.RWMutex
	chain    []*Block
	pending  []Transaction
	registry *registry.Registry
	store    Snapshotter
	listener EventListener
	logger   *slog.Logger
	rng      *rand.Rand

	permissive  bool
	verifyProof ProofVerifier
}

// NewLedger builds a ledger from the config, restoring the previous snapshot
// when one exists and mining a fresh genesis block otherwise
func NewLedger(cfg Config) (*Ledger, error) {
	reg := cfg.Registry
	if reg == nil {
		var err error
		reg, err = registry.Bootstrap()
		if err != nil {
			return nil, err
		}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}

	l := &Ledger{
		registry:   reg,
		store:      cfg.Store,
		listener:   cfg.Listener,
		logger:     logger,
		rng:        rng,
		permissive: cfg.PermissiveSignatures,
	}
	if !cfg.DisableProofChecks {
		l.verifyProof = zkp.VerifyProof
	}

	if l.store != nil {
		state, ok, err := l.store.Load()
		if err != nil {
			l.logger.Warn("snapshot load failed, starting fresh", "error", err)
		}
		if ok {
			l.chain = state.Chain
			l.pending = state.PendingTransactions
			if l.pending == nil {
				l.pending = make([]Transaction, 0)
			}
			if len(state.DevUsers) > 0 {
				l.registry.Restore(state.DevUsers)
			}
			l.logger.Info("ledger restored from snapshot",
				"blocks", len(l.chain), "pending", len(l.pending))
			return l, nil
		}
	}

	genesis, err := CreateGenesisBlock(context.Background())
	if err != nil {
		return nil, err
	}
	l.chain = []*Block{genesis}
	l.pending = make([]Transaction, 0)
	l.persist()

	l.logger.Info("fresh ledger created", "genesis_hash", genesis.Hash)
	return l, nil
}

// AddTransaction validates a transaction and appends it to the pending pool.
// A missing timestamp is stamped at admission. The admitted transaction is
// returned as stored.
func (l *Ledger) AddTransaction(tx Transaction) (Transaction, error) {
	admitted, err := l.admit(tx)
	if err != nil {
		return Transaction{}, err
	}

	if l.listener != nil {
		l.listener.TransactionAdmitted(admitted)
	}
	return admitted, nil
}

// admit performs the validated append under the write lock
func (l *Ledger) admit(tx Transaction) (Transaction, error) {
	if math.IsNaN(tx.Amount) || math.IsInf(tx.Amount, 0) || tx.Amount <= 0 {
		return Transaction{}, fmt.Errorf("%w: %v", ErrInvalidAmount, tx.Amount)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if tx.Timestamp == "" {
		tx.Timestamp = crypto.Now()
	}

	if tx.Signature != "" {
		name := l.registry.ResolveName(tx.Sender)
		publicKey, known := l.registry.PublicKey(name)
		switch {
		case known:
			if !tx.VerifySignature(publicKey) {
				return Transaction{}, fmt.Errorf("%w: sender %s", ErrInvalidSignature, tx.Sender)
			}
		case l.permissive:
			l.logger.Warn("no registered key for signer, admitting unverified", "sender", tx.Sender)
		default:
			return Transaction{}, fmt.Errorf("%w: %s", ErrUnknownSigner, tx.Sender)
		}
	}

	if tx.ZKProof != nil && l.verifyProof != nil {
		if !l.verifyProof(tx.ZKProof, tx.Sender, tx.Receiver, tx.Amount) {
			return Transaction{}, fmt.Errorf("%w: sender %s", ErrInvalidProof, tx.Sender)
		}
	}

	l.pending = append(l.pending, tx)
	l.persist()

	l.logger.Info("transaction admitted",
		"sender", tx.Sender, "receiver", tx.Receiver,
		"amount", tx.Amount, "signed", tx.Signature != "")
	return tx, nil
}

// MinePending mines the pending pool into a new block on the current tip.
// A non-empty miner address earns a reward transaction from SYSTEM in the
// same block. An empty pool still mines a valid empty block. A cancelled
// mine leaves the chain and the pool untouched.
func (l *Ledger) MinePending(ctx context.Context, minerAddress string) (*Block, error) {
	block, err := l.minePending(ctx, minerAddress)
	if err != nil {
		return nil, err
	}

	if l.listener != nil {
		l.listener.BlockMined(block)
	}
	return block, nil
}

// minePending performs the mine under the write lock, proof of work included
func (l *Ledger) minePending(ctx context.Context, minerAddress string) (*Block, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	transactions := make([]Transaction, len(l.pending))
	copy(transactions, l.pending)

	if minerAddress != "" {
		reward := NewTransaction(SystemSender, minerAddress, miningReward(l.rng))
		transactions = append(transactions, reward)
	}

	tip := l.chain[len(l.chain)-1]
	block := NewBlock(tip.Index+1, transactions, tip.Hash)

	if err := MineBlock(ctx, block); err != nil {
		l.logger.Warn("mining abandoned", "index", block.Index, "error", err)
		return nil, err
	}

	l.chain = append(l.chain, block)
	l.pending = make([]Transaction, 0)
	l.persist()

	l.logger.Info("block mined",
		"index", block.Index, "hash", block.Hash,
		"nonce", block.Nonce, "transactions", len(block.Transactions))
	return block, nil
}

// CalculateReward draws one mining reward from the tiered distribution
func (l *Ledger) CalculateReward() float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return miningReward(l.rng)
}

// BalanceOf sums what an address received minus what it sent across all mined
// blocks. Pending transactions do not count; balances may go negative.
func (l *Ledger) BalanceOf(address string) float64 {
	l.mu.RLock()
	defer l.mu.RUnlock()

	balance := 0.0
	for _, block := range l.chain {
		for _, tx := range block.Transactions {
			if tx.Receiver == address {
				balance += tx.Amount
			}
			if tx.Sender == address {
				balance -= tx.Amount
			}
		}
	}
	return balance
}

// Validate reports whether every block after genesis matches its recomputed
// hash and links to its predecessor
func (l *Ledger) Validate() bool {
	return l.CheckIntegrity() == nil
}

// CheckIntegrity walks the chain and returns the first corruption found.
// The chain is never repaired.
func (l *Ledger) CheckIntegrity() error {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return CheckChain(l.chain)
}

// CheckChain walks any chain slice and returns the first corruption found.
// Genesis is taken as given; every later block must match its recomputed hash
// and link to its predecessor.
func CheckChain(chain []*Block) error {
	for i := 1; i < len(chain); i++ {
		current, previous := chain[i], chain[i-1]
		if current.Hash != current.CalculateHash() {
			return fmt.Errorf("%w: block %d hash mismatch", ErrChainCorruption, current.Index)
		}
		if current.PreviousHash != previous.Hash {
			return fmt.Errorf("%w: block %d does not link to block %d", ErrChainCorruption, current.Index, previous.Index)
		}
	}
	return nil
}

// Chain returns a copy of the chain slice
func (l *Ledger) Chain() []*Block {
	l.mu.RLock()
	defer l.mu.RUnlock()

	chain := make([]*Block, len(l.chain))
	copy(chain, l.chain)
	return chain
}

// Pending returns a copy of the pending pool
func (l *Ledger) Pending() []Transaction {
	l.mu.RLock()
	defer l.mu.RUnlock()

	pending := make([]Transaction, len(l.pending))
	copy(pending, l.pending)
	return pending
}

// LatestBlock returns the current tip of the chain
func (l *Ledger) LatestBlock() *Block {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.chain[len(l.chain)-1]
}

// Length returns the number of mined blocks
func (l *Ledger) Length() int {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.chain)
}

// Registry returns the identity registry the ledger admits against
func (l *Ledger) Registry() *registry.Registry {
	return l.registry
}

// DevUsers returns the address to name mapping of registered identities
func (l *Ledger) DevUsers() map[string]string {
	return l.registry.Users()
}

// Persist writes the current state through to the snapshot store
func (l *Ledger) Persist() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.save()
}

// persist writes through and logs failures; the mutation that triggered the
// save is kept either way. The caller must hold the write lock.
func (l *Ledger) persist() {
	if err := l.save(); err != nil {
		l.logger.Error("snapshot save failed", "error", err)
	}
}

// save builds the snapshot state and hands it to the store; the caller must
// hold the write lock
func (l *Ledger) save() error {
	if l.store == nil {
		return nil
	}

	return l.store.Save(&SnapshotState{
		Chain:               l.chain,
		PendingTransactions: l.pending,
		DevUsers:            l.registry.Users(),
		LastSaved:           crypto.Now(),
	})
}
