package store

import (
	"encoding/json"
	"io"
	"log/slog"
	"testing"

	"github.com/codycordova/codychain/pkg/core"
	"github.com/codycordova/codychain/pkg/db"
)

// newTestStore builds a store over a fresh in-memory database
func newTestStore(t *testing.T) (*Store, db.Database) {
	t.Helper()

	database, err := db.NewDatabase(db.Memory)
	if err != nil {
		t.Fatalf("NewDatabase failed: %v", err)
	}
	if err := database.Open(""); err != nil {
		t.Fatalf("Open failed: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return New(database, logger), database
}

// sampleState builds a two-block snapshot with deliberately fake hashes to
// prove the store restores them verbatim
func sampleState() *core.SnapshotState {
	genesis := &core.Block{
		Index:        0,
		Timestamp:    "2024-01-01T00:00:00Z",
		Transactions: []core.Transaction{},
		PreviousHash: core.GenesisPreviousHash,
		Nonce:        7,
		Hash:         "0000feedfacefeedface",
	}
	block := &core.Block{
		Index:     1,
		Timestamp: "2024-01-01T00:01:00Z",
		Transactions: []core.Transaction{
			{Sender: "ALC1", Receiver: "BOB2", Amount: 5, Timestamp: "2024-01-01T00:00:30Z"},
		},
		PreviousHash: genesis.Hash,
		Nonce:        99,
		Hash:         "0000deadbeefdeadbeef",
	}

	return &core.SnapshotState{
		Chain: []*core.Block{genesis, block},
		PendingTransactions: []core.Transaction{
			{Sender: "BOB2", Receiver: "ALC1", Amount: 1, Timestamp: "2024-01-01T00:02:00Z"},
		},
		DevUsers:  map[string]string{"AB12": "cody", "CD34": "ezzy"},
		LastSaved: "2024-01-01T00:02:01Z",
	}
}

func TestSaveLoadRoundTrip(t *testing.T) {
	s, _ := newTestStore(t)
	saved := sampleState()

	if err := s.Save(saved); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	loaded, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if !ok {
		t.Fatal("Load reported no snapshot after Save")
	}

	savedJSON, _ := json.Marshal(saved)
	loadedJSON, _ := json.Marshal(loaded)
	if string(savedJSON) != string(loadedJSON) {
		t.Errorf("round trip mismatch:\nsaved  %s\nloaded %s", savedJSON, loadedJSON)
	}

	// Hashes come back verbatim even though they were never mined.
	if loaded.Chain[1].Hash != "0000deadbeefdeadbeef" {
		t.Error("stored hash was not restored verbatim")
	}
}

func TestLoadWithoutSnapshot(t *testing.T) {
	s, _ := newTestStore(t)

	state, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if ok || state != nil {
		t.Error("empty database reported a snapshot")
	}
}

func TestLoadCorruptedBlock(t *testing.T) {
	s, database := newTestStore(t)
	if err := s.Save(sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := database.Put(blockKey(1), []byte("{broken")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	_, ok, err := s.Load()
	if err != nil {
		t.Fatalf("Load returned an error for corruption: %v", err)
	}
	if ok {
		t.Error("corrupted snapshot was loaded")
	}
}

func TestLoadCorruptedPending(t *testing.T) {
	s, database := newTestStore(t)
	if err := s.Save(sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	if err := database.Put([]byte(pendingKey), []byte("not json")); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok, _ := s.Load(); ok {
		t.Error("snapshot with a corrupted pending pool was loaded")
	}
}

func TestLoadIndexGap(t *testing.T) {
	s, database := newTestStore(t)
	if err := s.Save(sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	// Drop block 1 while keeping block 0, leaving a chain that claims to
	// continue past its own end.
	gapped := &core.Block{Index: 5, Hash: "0000"}
	data, _ := json.Marshal(gapped)
	if err := database.Put(blockKey(1), data); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if _, ok, _ := s.Load(); ok {
		t.Error("snapshot with an index gap was loaded")
	}
}

func TestLoadDefaultsForMissingKeys(t *testing.T) {
	s, database := newTestStore(t)
	if err := s.Save(sampleState()); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	for _, key := range []string{pendingKey, registryKey, lastSavedKey} {
		if err := database.Delete([]byte(key)); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}

	state, ok, err := s.Load()
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}

	if len(state.PendingTransactions) != 0 {
		t.Error("missing pending key did not default to an empty pool")
	}
	if len(state.DevUsers) != 0 {
		t.Error("missing registry key did not default to empty")
	}
	if state.LastSaved != "" {
		t.Error("missing last-saved key did not default to empty")
	}
}

func TestSaveOverwritesPreviousState(t *testing.T) {
	s, _ := newTestStore(t)
	state := sampleState()

	if err := s.Save(state); err != nil {
		t.Fatalf("Save failed: %v", err)
	}

	state.PendingTransactions = []core.Transaction{}
	state.LastSaved = "2024-01-01T00:05:00Z"
	if err := s.Save(state); err != nil {
		t.Fatalf("second Save failed: %v", err)
	}

	loaded, ok, err := s.Load()
	if err != nil || !ok {
		t.Fatalf("Load failed: ok=%v err=%v", ok, err)
	}
	if len(loaded.PendingTransactions) != 0 {
		t.Error("second save did not overwrite the pending pool")
	}
	if loaded.LastSaved != "2024-01-01T00:05:00Z" {
		t.Errorf("last saved = %q, want the newer stamp", loaded.LastSaved)
	}
}
