// Package store persists ledger snapshots in a key-value database.
// Blocks are stored one key each, ordered by index; the pending pool, the
// identity registry and the save timestamp get one key apiece. A snapshot
// that cannot be parsed is reported as absent so the ledger bootstraps fresh
// instead of running on corrupt state.
package store

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/codycordova/codychain/pkg/core"
	"github.com/codycordova/codychain/pkg/db"
)

const (
	blockKeyPrefix = "block:"
	pendingKey     = "pending"
	registryKey    = "registry"
	lastSavedKey   = "meta:last_saved"
)

// Store reads and writes ledger snapshots over a key-value database
type Store struct {
	database db.Database
	logger   *slog.Logger
}

// New creates a snapshot store over an open database
func New(database db.Database, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{database: database, logger: logger}
}

// Save writes the full snapshot in one atomic batch
func (s *Store) Save(state *core.SnapshotState) error {
	batch := s.database.Batch()

	for _, block := range state.Chain {
		data, err := json.Marshal(block)
		if err != nil {
			return fmt.Errorf("encode block %d: %w", block.Index, err)
		}
		if err := batch.Put(blockKey(block.Index), data); err != nil {
			return err
		}
	}

	pending, err := json.Marshal(state.PendingTransactions)
	if err != nil {
		return fmt.Errorf("encode pending pool: %w", err)
	}
	if err := batch.Put([]byte(pendingKey), pending); err != nil {
		return err
	}

	users, err := json.Marshal(state.DevUsers)
	if err != nil {
		return fmt.Errorf("encode registry: %w", err)
	}
	if err := batch.Put([]byte(registryKey), users); err != nil {
		return err
	}

	if err := batch.Put([]byte(lastSavedKey), []byte(state.LastSaved)); err != nil {
		return err
	}

	return batch.Write()
}

// Load reads the snapshot back. ok is false when no snapshot exists or when
// the stored one cannot be parsed; a database failure is returned as an error.
// Block hashes are restored verbatim, never recomputed here.
func (s *Store) Load() (*core.SnapshotState, bool, error) {
	state := &core.SnapshotState{PendingTransactions: make([]core.Transaction, 0)}

	iter, err := s.database.Iterator([]byte(blockKeyPrefix), prefixEnd(blockKeyPrefix))
	if err != nil {
		return nil, false, err
	}
	defer iter.Close()

	for iter.Next() {
		var block core.Block
		if err := json.Unmarshal(iter.Value(), &block); err != nil {
			s.logger.Warn("corrupted block in snapshot, starting fresh",
				"key", string(iter.Key()), "error", err)
			return nil, false, nil
		}
		state.Chain = append(state.Chain, &block)
	}
	if err := iter.Error(); err != nil {
		return nil, false, err
	}

	if len(state.Chain) == 0 {
		return nil, false, nil
	}
	for i, block := range state.Chain {
		if block.Index != uint64(i) {
			s.logger.Warn("snapshot chain has an index gap, starting fresh",
				"position", i, "index", block.Index)
			return nil, false, nil
		}
	}

	pending, err := s.get(pendingKey)
	if err != nil {
		return nil, false, err
	}
	if pending != nil {
		if err := json.Unmarshal(pending, &state.PendingTransactions); err != nil {
			s.logger.Warn("corrupted pending pool in snapshot, starting fresh", "error", err)
			return nil, false, nil
		}
	}

	users, err := s.get(registryKey)
	if err != nil {
		return nil, false, err
	}
	if users != nil {
		if err := json.Unmarshal(users, &state.DevUsers); err != nil {
			s.logger.Warn("corrupted registry in snapshot, starting fresh", "error", err)
			return nil, false, nil
		}
	}

	lastSaved, err := s.get(lastSavedKey)
	if err != nil {
		return nil, false, err
	}
	state.LastSaved = string(lastSaved)

	return state, true, nil
}

// get reads a key and maps absence to a nil value
func (s *Store) get(key string) ([]byte, error) {
	value, err := s.database.Get([]byte(key))
	if errors.Is(err, db.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return value, nil
}

// blockKey builds the key for a block index. Big-endian hex keeps database
// iteration order equal to chain order.
func blockKey(index uint64) []byte {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], index)
	return []byte(blockKeyPrefix + hex.EncodeToString(buf[:]))
}

// prefixEnd returns the smallest key greater than every key with the prefix
func prefixEnd(prefix string) []byte {
	end := []byte(prefix)
	end[len(end)-1]++
	return end
}
