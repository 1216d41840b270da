// Package address implements the 32-byte account identifier used
// throughout the chain: the raw Ed25519 public key of the owning keypair.
package address

import (
	"crypto/ed25519"
	"encoding/hex"
)

// Size is the length in bytes of an Address.
const Size = ed25519.PublicKeySize // 32

// Address identifies an account by its Ed25519 public key.
type Address [Size]byte

// Zero is the coinbase sentinel address. It owns no funds and is never the
// `from` of a transfer transaction.
var Zero Address

// FromPublicKey builds an Address from an Ed25519 public key.
func FromPublicKey(pub ed25519.PublicKey) (Address, error) {
	var a Address
	if len(pub) != Size {
		return a, errInvalidPublicKeySize
	}
	copy(a[:], pub)
	return a, nil
}

// PublicKey returns the address reinterpreted as an Ed25519 public key,
// suitable for signature verification.
func (a Address) PublicKey() ed25519.PublicKey {
	pub := make(ed25519.PublicKey, Size)
	copy(pub, a[:])
	return pub
}

// IsZero reports whether a is the coinbase sentinel.
func (a Address) IsZero() bool {
	return a == Zero
}

// String returns the lowercase hex encoding of the address.
func (a Address) String() string {
	return hex.EncodeToString(a[:])
}

// Parse decodes a hex-encoded address string.
func Parse(s string) (Address, error) {
	var a Address
	b, err := hex.DecodeString(s)
	if err != nil {
		return a, err
	}
	if len(b) != Size {
		return a, errInvalidPublicKeySize
	}
	copy(a[:], b)
	return a, nil
}
