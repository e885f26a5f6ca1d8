package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/codycordova/codychain/pkg/crypto"
	"github.com/codycordova/codychain/pkg/registry"
)

func newTestManager(t *testing.T) (*Manager, string) {
	t.Helper()

	privateHex, publicHex, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generating keypair failed: %v", err)
	}

	reg := registry.New()
	if _, err := reg.Register("cody"); err != nil {
		t.Fatalf("registering user failed: %v", err)
	}
	reg.SetPublicKey("cody", publicHex)

	return NewManager(reg), privateHex
}

func TestChallengeLoginFlow(t *testing.T) {
	manager, privateHex := newTestManager(t)

	challenge, err := manager.NewChallenge("cody")
	if err != nil {
		t.Fatalf("NewChallenge failed: %v", err)
	}
	if !strings.HasPrefix(challenge.Message, "codychain_login_cody_") {
		t.Errorf("unexpected challenge message %q", challenge.Message)
	}
	nonce := strings.TrimPrefix(challenge.Message, "codychain_login_cody_")
	if len(nonce) != nonceSize*2 {
		t.Errorf("challenge nonce length %d, want %d", len(nonce), nonceSize*2)
	}

	signature, err := crypto.SignMessage(challenge.Message, privateHex)
	if err != nil {
		t.Fatalf("signing challenge failed: %v", err)
	}

	session, err := manager.Login(challenge.Token, signature)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if session.Username != "cody" {
		t.Errorf("session username %s, want cody", session.Username)
	}

	username, ok := manager.VerifySession(session.Token)
	if !ok || username != "cody" {
		t.Errorf("VerifySession returned (%s, %v), want (cody, true)", username, ok)
	}

	if !manager.Logout(session.Token) {
		t.Error("Logout should report a known token")
	}
	if _, ok := manager.VerifySession(session.Token); ok {
		t.Error("session should be gone after logout")
	}
}

func TestChallengeUnknownUser(t *testing.T) {
	manager, _ := newTestManager(t)

	_, err := manager.NewChallenge("mallory")
	if !errors.Is(err, ErrUnknownUser) {
		t.Errorf("expected ErrUnknownUser, got %v", err)
	}
}

func TestChallengeSingleUse(t *testing.T) {
	manager, privateHex := newTestManager(t)

	challenge, err := manager.NewChallenge("cody")
	if err != nil {
		t.Fatalf("NewChallenge failed: %v", err)
	}
	signature, err := crypto.SignMessage(challenge.Message, privateHex)
	if err != nil {
		t.Fatalf("signing challenge failed: %v", err)
	}

	if _, err := manager.Login(challenge.Token, signature); err != nil {
		t.Fatalf("first Login failed: %v", err)
	}
	if _, err := manager.Login(challenge.Token, signature); !errors.Is(err, ErrUnknownChallenge) {
		t.Errorf("expected ErrUnknownChallenge on reuse, got %v", err)
	}
}

func TestLoginConsumesChallengeOnFailure(t *testing.T) {
	manager, _ := newTestManager(t)

	otherPrivate, _, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("generating keypair failed: %v", err)
	}

	challenge, err := manager.NewChallenge("cody")
	if err != nil {
		t.Fatalf("NewChallenge failed: %v", err)
	}
	forged, err := crypto.SignMessage(challenge.Message, otherPrivate)
	if err != nil {
		t.Fatalf("signing challenge failed: %v", err)
	}

	if _, err := manager.Login(challenge.Token, forged); !errors.Is(err, ErrSignatureMismatch) {
		t.Errorf("expected ErrSignatureMismatch, got %v", err)
	}
	if _, err := manager.Login(challenge.Token, forged); !errors.Is(err, ErrUnknownChallenge) {
		t.Errorf("challenge should be consumed after a failed login, got %v", err)
	}
}

func TestChallengeExpiry(t *testing.T) {
	manager, privateHex := newTestManager(t)

	start := time.Now()
	manager.now = func() time.Time { return start }

	challenge, err := manager.NewChallenge("cody")
	if err != nil {
		t.Fatalf("NewChallenge failed: %v", err)
	}
	signature, err := crypto.SignMessage(challenge.Message, privateHex)
	if err != nil {
		t.Fatalf("signing challenge failed: %v", err)
	}

	manager.now = func() time.Time { return start.Add(challengeTTL + time.Second) }

	_, err = manager.Login(challenge.Token, signature)
	if err == nil {
		t.Fatal("expected error for expired challenge")
	}
	if !errors.Is(err, ErrChallengeExpired) && !errors.Is(err, ErrUnknownChallenge) {
		t.Errorf("expected an expiry error, got %v", err)
	}
}

func TestSessionExpiry(t *testing.T) {
	manager, privateHex := newTestManager(t)

	start := time.Now()
	manager.now = func() time.Time { return start }

	challenge, err := manager.NewChallenge("cody")
	if err != nil {
		t.Fatalf("NewChallenge failed: %v", err)
	}
	signature, err := crypto.SignMessage(challenge.Message, privateHex)
	if err != nil {
		t.Fatalf("signing challenge failed: %v", err)
	}
	session, err := manager.Login(challenge.Token, signature)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	manager.now = func() time.Time { return start.Add(sessionTTL + time.Second) }

	if _, ok := manager.VerifySession(session.Token); ok {
		t.Error("expired session should not verify")
	}
}

func TestLogoutUnknownToken(t *testing.T) {
	manager, _ := newTestManager(t)

	if manager.Logout("no-such-token") {
		t.Error("Logout of an unknown token should report false")
	}
}
