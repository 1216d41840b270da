// Package keys implements Ed25519 keypair generation and signing for the
// node's miner reward address and for transaction signers that use this
// core directly in tests. Production wallets live outside the core; see
// spec.md §1.
package keys

import (
	"crypto/ed25519"
	"crypto/rand"

	"github.com/opensyria/pownode/address"
	"github.com/pkg/errors"
)

// SignatureSize is the length in bytes of an Ed25519 signature.
const SignatureSize = ed25519.SignatureSize // 64

// KeyPair holds an Ed25519 private key. The private key bytes are zeroized
// by Destroy; no method returns the raw secret bytes, which are used only
// inside Sign.
type KeyPair struct {
	priv ed25519.PrivateKey
	pub  ed25519.PublicKey
}

// Generate creates a fresh keypair from the OS CSPRNG.
func Generate() (*KeyPair, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, errors.Wrap(err, "generating ed25519 keypair")
	}
	return &KeyPair{priv: priv, pub: pub}, nil
}

// FromSeed deterministically derives a keypair from a 32-byte seed. Used by
// tests and by collaborators that manage their own seed storage.
func FromSeed(seed []byte) (*KeyPair, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, errors.Errorf("keys: seed must be %d bytes", ed25519.SeedSize)
	}
	priv := ed25519.NewKeyFromSeed(seed)
	return &KeyPair{priv: priv, pub: priv.Public().(ed25519.PublicKey)}, nil
}

// Address returns the account address derived from the public key.
func (k *KeyPair) Address() address.Address {
	a, _ := address.FromPublicKey(k.pub)
	return a
}

// Sign produces a 64-byte Ed25519 signature over message.
func (k *KeyPair) Sign(message []byte) [SignatureSize]byte {
	var sig [SignatureSize]byte
	copy(sig[:], ed25519.Sign(k.priv, message))
	return sig
}

// Destroy zeroizes the private key material in place. The KeyPair must not
// be used afterwards.
func (k *KeyPair) Destroy() {
	for i := range k.priv {
		k.priv[i] = 0
	}
}

// Verify checks an Ed25519 signature against a public address.
func Verify(addr address.Address, message []byte, signature [SignatureSize]byte) bool {
	return ed25519.Verify(addr.PublicKey(), message, signature[:])
}
