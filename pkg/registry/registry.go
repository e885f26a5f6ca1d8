// Package registry tracks the named identities known to the ledger and the
// public keys registered for them. Addresses are short opaque handles; the
// registry is the only place that maps them back to names.
package registry

import (
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
)

// DevUserNames are the bootstrap identities seeded into a fresh registry
var DevUserNames = []string{"cody", "ezzy", "alice", "bob", "charlie", "diana", "eve", "frank"}

// addressCharset is the alphabet addresses are drawn from
const addressCharset = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// AddressLength is the length of a generated address
const AddressLength = 4

// Registry maps addresses to identity names and names to registered public keys
type Registry struct {
	mu    sync.RWMutex
	users map[string]string // address -> name
	keys  map[string]string // name -> public key hex
}

// New creates an empty registry
func New() *Registry {
	return &Registry{
		users: make(map[string]string),
		keys:  make(map[string]string),
	}
}

// Bootstrap creates a registry seeded with the dev users
func Bootstrap() (*Registry, error) {
	r := New()
	for _, name := range DevUserNames {
		if _, err := r.Register(name); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register assigns a fresh address to a name and returns it.
// Addresses are never reassigned; registering a known name is an error.
func (r *Registry) Register(name string) (string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, existing := range r.users {
		if existing == name {
			return "", fmt.Errorf("name already registered: %s", name)
		}
	}

	address, err := r.newAddress()
	if err != nil {
		return "", err
	}

	r.users[address] = name
	return address, nil
}

// ResolveName maps a sender to an identity name.
// Known addresses resolve to their name; anything else resolves to itself,
// which lets transactions name identities directly.
func (r *Registry) ResolveName(sender string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if name, ok := r.users[sender]; ok {
		return name
	}
	return sender
}

// AddressOf returns the address assigned to a name
func (r *Registry) AddressOf(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for address, existing := range r.users {
		if existing == name {
			return address, true
		}
	}
	return "", false
}

// SetPublicKey registers a hex public key for a name, replacing any previous key
func (r *Registry) SetPublicKey(name, publicKeyHex string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.keys[name] = publicKeyHex
}

// PublicKey returns the registered hex public key for a name
func (r *Registry) PublicKey(name string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	key, ok := r.keys[name]
	return key, ok
}

// Users returns a copy of the address to name mapping
func (r *Registry) Users() map[string]string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	users := make(map[string]string, len(r.users))
	for address, name := range r.users {
		users[address] = name
	}
	return users
}

// Restore replaces the address mapping with one loaded from a snapshot.
// Registered keys are not part of snapshots and are left untouched.
func (r *Registry) Restore(users map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.users = make(map[string]string, len(users))
	for address, name := range users {
		r.users[address] = name
	}
}

// Len returns the number of registered identities
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.users)
}

// newAddress draws a unique address; the caller must hold the write lock
func (r *Registry) newAddress() (string, error) {
	max := big.NewInt(int64(len(addressCharset)))

	for attempt := 0; attempt < 100; attempt++ {
		address := make([]byte, AddressLength)
		for i := range address {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", err
			}
			address[i] = addressCharset[n.Int64()]
		}

		if _, taken := r.users[string(address)]; !taken {
			return string(address), nil
		}
	}

	return "", errors.New("address space exhausted")
}
