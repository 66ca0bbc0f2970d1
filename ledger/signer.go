package ledger

import (
	"crypto/ed25519"
	"fmt"
)

// Signer produces signatures for the address it owns.
type Signer interface {
	Address() string
	Sign(digest string) ([]byte, error)
}

// SignatureVerifier decides whether a signed transaction's signature is
// acceptable. The ledger treats this as a pluggable capability: the default
// NoopVerifier only requires a non-empty signature, matching the source
// system, while Ed25519Verifier performs real verification against a
// registered key set.
type SignatureVerifier interface {
	Verify(tx *Transaction) error
}

// NoopVerifier accepts any transaction that reached it. Validate has already
// rejected empty signatures by the time a verifier runs.
type NoopVerifier struct{}

func (NoopVerifier) Verify(*Transaction) error { return nil }

// KeySigner signs with an ed25519 private key bound to an address.
type KeySigner struct {
	addr string
	key  ed25519.PrivateKey
}

func NewKeySigner(address string, key ed25519.PrivateKey) *KeySigner {
	return &KeySigner{addr: address, key: key}
}

func (s *KeySigner) Address() string { return s.addr }

func (s *KeySigner) Sign(digest string) ([]byte, error) {
	if len(s.key) != ed25519.PrivateKeySize {
		return nil, fmt.Errorf("ed25519 private key has wrong size: %d", len(s.key))
	}
	return ed25519.Sign(s.key, []byte(digest)), nil
}

// Ed25519Verifier verifies signatures against a map of sender address to
// public key. Unknown senders are rejected.
type Ed25519Verifier struct {
	Keys map[string]ed25519.PublicKey
}

func (v *Ed25519Verifier) Verify(tx *Transaction) error {
	pub, ok := v.Keys[tx.Sender]
	if !ok {
		return fmt.Errorf("%w: no public key registered for %q", ErrInvalidTransaction, tx.Sender)
	}
	if !ed25519.Verify(pub, []byte(tx.ComputeHash()), tx.Signature) {
		return fmt.Errorf("%w: signature verification failed for %q", ErrInvalidTransaction, tx.Sender)
	}
	return nil
}
