package merkle

import (
	"crypto/sha256"
	"encoding/binary"
)

// AccountLeaf is one address's contribution to the state commitment.
type AccountLeaf struct {
	Address [32]byte
	Balance uint64
	Nonce   uint64
}

// leafHash for an account leaf is address || balance LE8 || nonce LE8,
// SHA-256'd, before being folded into the tagged tree in Root.
func (l AccountLeaf) leafHash() [hashSize]byte {
	buf := make([]byte, 0, 32+8+8)
	buf = append(buf, l.Address[:]...)
	buf = binary.LittleEndian.AppendUint64(buf, l.Balance)
	buf = binary.LittleEndian.AppendUint64(buf, l.Nonce)
	var out [hashSize]byte
	copy(out[:], sha256sum(buf))
	return out
}

func sha256sum(b []byte) []byte {
	h := sha256.Sum256(b)
	return h[:]
}

// StateRoot computes the Merkle root over account-state leaves. Callers
// MUST pass leaves sorted by Address ascending — StateRoot does not sort,
// so the commitment is a pure function of the caller's ordering, and the
// chain store is the single place responsible for producing that order.
func StateRoot(leaves []AccountLeaf) [hashSize]byte {
	hashes := make([][hashSize]byte, len(leaves))
	for i, l := range leaves {
		hashes[i] = l.leafHash()
	}
	return Root(hashes)
}
