package db

import (
	"bytes"

	bolt "go.etcd.io/bbolt"
)

// boltBucket is the single bucket all pairs live in
var boltBucket = []byte("codychain")

// BoltDatabase is a bbolt implementation of the Database interface.
// Unlike the other backends its path is a single file, not a directory.
type BoltDatabase struct {
	db *bolt.DB
}

// NewBoltDB creates a new bbolt database
func NewBoltDB() Database {
	return &BoltDatabase{}
}

// Open opens the database file and ensures the bucket exists
func (bdb *BoltDatabase) Open(path string) error {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return err
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(boltBucket)
		return err
	})
	if err != nil {
		db.Close()
		return err
	}

	bdb.db = db
	return nil
}

// Close closes the database
func (bdb *BoltDatabase) Close() error {
	return bdb.db.Close()
}

// Put stores a key-value pair
func (bdb *BoltDatabase) Put(key, value []byte) error {
	return bdb.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Put(key, value)
	})
}

// Get retrieves a value by key
func (bdb *BoltDatabase) Get(key []byte) ([]byte, error) {
	var result []byte
	err := bdb.db.View(func(tx *bolt.Tx) error {
		value := tx.Bucket(boltBucket).Get(key)
		if value == nil {
			return ErrNotFound
		}

		// Copy the value since it's only valid inside the transaction
		result = make([]byte, len(value))
		copy(result, value)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return result, nil
}

// Delete removes a key-value pair
func (bdb *BoltDatabase) Delete(key []byte) error {
	return bdb.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(boltBucket).Delete(key)
	})
}

// Has checks if a key exists
func (bdb *BoltDatabase) Has(key []byte) (bool, error) {
	var exists bool
	err := bdb.db.View(func(tx *bolt.Tx) error {
		exists = tx.Bucket(boltBucket).Get(key) != nil
		return nil
	})
	return exists, err
}

// Iterator returns an iterator over a key range.
// The matching pairs are copied out under one read transaction.
func (bdb *BoltDatabase) Iterator(start, end []byte) (Iterator, error) {
	var keys, values [][]byte

	err := bdb.db.View(func(tx *bolt.Tx) error {
		cursor := tx.Bucket(boltBucket).Cursor()

		var k, v []byte
		if start == nil {
			k, v = cursor.First()
		} else {
			k, v = cursor.Seek(start)
		}

		for ; k != nil; k, v = cursor.Next() {
			if end != nil && bytes.Compare(k, end) >= 0 {
				break
			}

			keyCopy := make([]byte, len(k))
			copy(keyCopy, k)
			valueCopy := make([]byte, len(v))
			copy(valueCopy, v)

			keys = append(keys, keyCopy)
			values = append(values, valueCopy)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	return &BoltIterator{keys: keys, values: values, pos: -1}, nil
}

// Batch returns a batch for atomic updates
func (bdb *BoltDatabase) Batch() Batch {
	return &BoltBatch{
		db:      bdb,
		puts:    make(map[string][]byte),
		deletes: make(map[string]bool),
	}
}

// BoltIterator is a bbolt implementation of the Iterator interface
type BoltIterator struct {
	keys   [][]byte
	values [][]byte
	pos    int
}

// Next moves the iterator to the next key
func (it *BoltIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

// Key returns the current key
func (it *BoltIterator) Key() []byte {
	if it.pos < 0 || it.pos >= len(it.keys) {
		return nil
	}
	return it.keys[it.pos]
}

// Value returns the current value
func (it *BoltIterator) Value() []byte {
	if it.pos < 0 || it.pos >= len(it.values) {
		return nil
	}
	return it.values[it.pos]
}

// Error returns any accumulated error
func (it *BoltIterator) Error() error {
	return nil
}

// Close releases associated resources
func (it *BoltIterator) Close() error {
	return nil
}

// BoltBatch is a bbolt implementation of the Batch interface.
// All operations are applied in a single update transaction on Write.
type BoltBatch struct {
	db      *BoltDatabase
	puts    map[string][]byte
	deletes map[string]bool
}

// Put adds a key-value pair to the batch
func (b *BoltBatch) Put(key, value []byte) error {
	b.puts[string(key)] = append([]byte(nil), value...)
	delete(b.deletes, string(key))
	return nil
}

// Delete adds a key deletion to the batch
func (b *BoltBatch) Delete(key []byte) error {
	b.deletes[string(key)] = true
	delete(b.puts, string(key))
	return nil
}

// Write writes the batch to the database
func (b *BoltBatch) Write() error {
	return b.db.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(boltBucket)

		for key := range b.deletes {
			if err := bucket.Delete([]byte(key)); err != nil {
				return err
			}
		}
		for key, value := range b.puts {
			if err := bucket.Put([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
}

// Reset resets the batch
func (b *BoltBatch) Reset() {
	b.puts = make(map[string][]byte)
	b.deletes = make(map[string]bool)
}
