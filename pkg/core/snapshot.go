package core

// SnapshotState is everything the ledger persists after each mutation.
// Registered public keys are deliberately absent: they are re-registered from
// key files at startup, never trusted from disk state.
type SnapshotState struct {
	Chain               []*Block          `json:"chain"`
	PendingTransactions []Transaction     `json:"pending_transactions"`
	DevUsers            map[string]string `json:"dev_users"`
	LastSaved           string            `json:"last_saved"`
}

// Snapshotter persists ledger state and restores it at startup.
// Load reports ok=false when no usable snapshot exists, which makes the
// ledger bootstrap a fresh chain.
type Snapshotter interface {
	Save(state *SnapshotState) error
	Load() (*SnapshotState, bool, error)
}

// EventListener receives notifications about ledger mutations
type EventListener interface {
	TransactionAdmitted(tx Transaction)
	BlockMined(block *Block)
}
