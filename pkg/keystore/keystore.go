// Package keystore manages the hex key files identities are loaded from.
// A key file holds one hex-encoded key, optionally wrapped in PEM-style
// BEGIN/END armor lines; the loader strips armor and whitespace and returns
// the bare hex payload.
package keystore

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/codycordova/codychain/pkg/crypto"
)

// ErrKeyNotFound reports a missing key file
var ErrKeyNotFound = errors.New("key not found")

const (
	privateSuffix = "_private.pem"
	publicSuffix  = "_public.pem"
)

// KeyStore reads and writes key files in a single directory
type KeyStore struct {
	keyDir string
}

// New creates a keystore rooted at keyDir
func New(keyDir string) *KeyStore {
	return &KeyStore{keyDir: keyDir}
}

// Dir returns the directory the keystore operates on
func (ks *KeyStore) Dir() string {
	return ks.keyDir
}

// Generate creates a keypair for a name and writes both key files.
// Existing keys are never overwritten.
func (ks *KeyStore) Generate(name string) (string, string, error) {
	if ks.Has(name) {
		return "", "", fmt.Errorf("keys already exist for %s", name)
	}

	if err := os.MkdirAll(ks.keyDir, 0700); err != nil {
		return "", "", err
	}

	privateHex, publicHex, err := crypto.GenerateKeypair()
	if err != nil {
		return "", "", err
	}

	if err := os.WriteFile(ks.privatePath(name), []byte(privateHex+"\n"), 0600); err != nil {
		return "", "", err
	}
	if err := os.WriteFile(ks.publicPath(name), []byte(publicHex+"\n"), 0644); err != nil {
		return "", "", err
	}

	return privateHex, publicHex, nil
}

// LoadPrivateKey returns the hex private key stored for a name
func (ks *KeyStore) LoadPrivateKey(name string) (string, error) {
	return ks.load(ks.privatePath(name))
}

// LoadPublicKey returns the hex public key stored for a name
func (ks *KeyStore) LoadPublicKey(name string) (string, error) {
	return ks.load(ks.publicPath(name))
}

// Has reports whether a private key file exists for a name
func (ks *KeyStore) Has(name string) bool {
	_, err := os.Stat(ks.privatePath(name))
	return err == nil
}

// List returns the names that have a public key file, sorted
func (ks *KeyStore) List() ([]string, error) {
	entries, err := os.ReadDir(ks.keyDir)
	if err != nil {
		if os.IsNotExist(err) {
			return []string{}, nil
		}
		return nil, err
	}

	var names []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasSuffix(entry.Name(), publicSuffix) {
			names = append(names, strings.TrimSuffix(entry.Name(), publicSuffix))
		}
	}

	sort.Strings(names)
	return names, nil
}

// load reads a key file and returns its hex payload
func (ks *KeyStore) load(path string) (string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", fmt.Errorf("%w: %s", ErrKeyNotFound, filepath.Base(path))
		}
		return "", err
	}

	key := stripArmor(string(data))
	if key == "" {
		return "", fmt.Errorf("empty key file: %s", filepath.Base(path))
	}
	if _, err := hex.DecodeString(key); err != nil {
		return "", fmt.Errorf("malformed key file %s: %v", filepath.Base(path), err)
	}

	return key, nil
}

// privatePath builds the private key file path for a name
func (ks *KeyStore) privatePath(name string) string {
	return filepath.Join(ks.keyDir, name+privateSuffix)
}

// publicPath builds the public key file path for a name
func (ks *KeyStore) publicPath(name string) string {
	return filepath.Join(ks.keyDir, name+publicSuffix)
}

// stripArmor drops PEM-style BEGIN/END lines and joins the rest without
// whitespace
func stripArmor(content string) string {
	var payload strings.Builder
	for _, line := range strings.Split(content, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "-----") {
			continue
		}
		payload.WriteString(line)
	}
	return payload.String()
}
