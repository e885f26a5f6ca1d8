// Package auth implements challenge/response login for dev users.
//
// A client requests a challenge for a username, signs the challenge message
// with that user's private key, and exchanges the signature for a session
// token. Challenges are single use and expire after five minutes; sessions
// expire after a day.
package auth

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/codycordova/codychain/pkg/crypto"
	"github.com/codycordova/codychain/pkg/registry"
)

const (
	challengeTTL = 5 * time.Minute
	sessionTTL   = 24 * time.Hour

	tokenSize = 32
	nonceSize = 16
)

// ErrUnknownUser reports a login attempt for a user without a registered key
var ErrUnknownUser = errors.New("no registered public key for user")

// ErrUnknownChallenge reports a login with a token that was never issued or
// was already consumed
var ErrUnknownChallenge = errors.New("unknown challenge token")

// ErrChallengeExpired reports a login after the challenge TTL passed
var ErrChallengeExpired = errors.New("challenge expired")

// ErrSignatureMismatch reports a challenge signature that does not verify
// against the user's registered public key
var ErrSignatureMismatch = errors.New("challenge signature does not verify")

// Challenge is a pending login challenge
type Challenge struct {
	Token     string    `json:"challenge_token"`
	Username  string    `json:"username"`
	Message   string    `json:"message"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Session is an authenticated login session
type Session struct {
	Token     string    `json:"session_token"`
	Username  string    `json:"username"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Manager issues challenges and tracks sessions
type Manager struct {
	mu         sync.Mutex
	registry   *registry.Registry
	challenges map[string]*Challenge
	sessions   map[string]*Session
	now        func() time.Time
}

// NewManager creates a manager backed by a registry of user public keys
func NewManager(reg *registry.Registry) *Manager {
	return &Manager{
		registry:   reg,
		challenges: make(map[string]*Challenge),
		sessions:   make(map[string]*Session),
		now:        time.Now,
	}
}

// NewChallenge issues a login challenge for a registered user
func (m *Manager) NewChallenge(username string) (*Challenge, error) {
	if _, ok := m.registry.PublicKey(username); !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, username)
	}

	token, err := randomHex(tokenSize)
	if err != nil {
		return nil, err
	}
	nonce, err := randomHex(nonceSize)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()

	challenge := &Challenge{
		Token:     token,
		Username:  username,
		Message:   fmt.Sprintf("codychain_login_%s_%s", username, nonce),
		ExpiresAt: m.now().Add(challengeTTL),
	}
	m.challenges[token] = challenge
	return challenge, nil
}

// Login exchanges a signed challenge for a session. A challenge is consumed
// by its first login attempt, successful or not.
func (m *Manager) Login(challengeToken, signatureHex string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sweepLocked()

	challenge, ok := m.challenges[challengeToken]
	if !ok {
		return nil, ErrUnknownChallenge
	}
	delete(m.challenges, challengeToken)

	if m.now().After(challenge.ExpiresAt) {
		return nil, ErrChallengeExpired
	}

	publicKey, ok := m.registry.PublicKey(challenge.Username)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownUser, challenge.Username)
	}
	if !crypto.VerifySignature(challenge.Message, signatureHex, publicKey) {
		return nil, ErrSignatureMismatch
	}

	token, err := randomHex(tokenSize)
	if err != nil {
		return nil, err
	}
	session := &Session{
		Token:     token,
		Username:  challenge.Username,
		ExpiresAt: m.now().Add(sessionTTL),
	}
	m.sessions[token] = session
	return session, nil
}

// VerifySession returns the username behind a session token, if the token is
// known and not expired
func (m *Manager) VerifySession(token string) (string, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	session, ok := m.sessions[token]
	if !ok {
		return "", false
	}
	if m.now().After(session.ExpiresAt) {
		delete(m.sessions, token)
		return "", false
	}
	return session.Username, true
}

// Logout removes a session. It reports whether the token was known.
func (m *Manager) Logout(token string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()

	_, ok := m.sessions[token]
	delete(m.sessions, token)
	return ok
}

// sweepLocked drops expired challenges and sessions. Callers hold the lock.
func (m *Manager) sweepLocked() {
	now := m.now()
	for token, challenge := range m.challenges {
		if now.After(challenge.ExpiresAt) {
			delete(m.challenges, token)
		}
	}
	for token, session := range m.sessions {
		if now.After(session.ExpiresAt) {
			delete(m.sessions, token)
		}
	}
}

// randomHex returns n random bytes hex encoded
func randomHex(n int) (string, error) {
	buf := make([]byte, n)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return hex.EncodeToString(buf), nil
}
