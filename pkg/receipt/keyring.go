// Package receipt issues and verifies signed receipts for committed command
// cycles. A receipt is a JWS binding the cycle and command identifiers, the
// engine's certified code and version, and the canonical trail hash under
// an Ed25519 signature, so the external audit sink can hand a regulator a
// self-contained, independently verifiable artifact per cycle.
package receipt

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

const kdfSalt = "reelcore-receipt-kdf"

// Keyring holds one Ed25519 signing keypair. It backs the in-process
// issuer; hosts with an HSM or KMS implement their own signing behind the
// same Issuer surface by constructing it from a derived keyring.
type Keyring struct {
	kid  string
	pub  ed25519.PublicKey
	priv ed25519.PrivateKey
}

// NewKeyring generates a fresh random keypair.
func NewKeyring() (*Keyring, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("receipt: generate keypair: %w", err)
	}
	return newKeyring(pub, priv), nil
}

// DeriveKeyring derives a deterministic keypair from a master secret via
// HKDF-SHA256, domain-separated by context (for example a jurisdiction
// code). The same secret and context always yield the same keypair, so a
// host restart does not orphan previously issued receipts.
func DeriveKeyring(masterSecret []byte, context string) (*Keyring, error) {
	if len(masterSecret) == 0 {
		return nil, errors.New("receipt: master secret is empty")
	}
	if context == "" {
		return nil, errors.New("receipt: derivation context is empty")
	}

	kdf := hkdf.New(sha256.New, masterSecret, []byte(kdfSalt), []byte(context))
	seed := make([]byte, ed25519.SeedSize)
	if _, err := io.ReadFull(kdf, seed); err != nil {
		return nil, fmt.Errorf("receipt: derive seed: %w", err)
	}

	priv := ed25519.NewKeyFromSeed(seed)
	return newKeyring(priv.Public().(ed25519.PublicKey), priv), nil
}

func newKeyring(pub ed25519.PublicKey, priv ed25519.PrivateKey) *Keyring {
	sum := sha256.Sum256(pub)
	return &Keyring{
		kid:  hex.EncodeToString(sum[:])[:16],
		pub:  pub,
		priv: priv,
	}
}

// KeyID returns the key identifier carried in receipt headers.
func (k *Keyring) KeyID() string { return k.kid }

// Public returns the verification key a regulator needs.
func (k *Keyring) Public() ed25519.PublicKey { return k.pub }
