// Package merkle computes the transaction-commitment root carried in a
// block header. Unlike the classic Bitcoin tree — which duplicates the
// last leaf on an odd level and is therefore vulnerable to a forged
// duplicate-transaction collision (CVE-2012-2459) — every internal node
// here is tagged so a leaf hash can never be mistaken for an internal
// node hash, and an odd tail's promoted node is tagged distinctly from a
// normal pair hash.
package merkle

import "crypto/sha256"

const (
	leafTag  = 0x00
	nodeTag  = 0x01
	oddTag   = 0x02
	hashSize = 32
)

// Root computes the tagged Merkle root over the given leaf hashes, in
// order. An empty input yields the zero hash.
func Root(leaves [][hashSize]byte) [hashSize]byte {
	if len(leaves) == 0 {
		return [hashSize]byte{}
	}

	level := make([][hashSize]byte, len(leaves))
	for i, leaf := range leaves {
		level[i] = hashLeaf(leaf)
	}

	for len(level) > 1 {
		next := make([][hashSize]byte, 0, (len(level)+1)/2)
		for i := 0; i < len(level); i += 2 {
			if i+1 < len(level) {
				next = append(next, hashNode(level[i], level[i+1]))
			} else {
				// Odd tail: promote the lone node under a distinct tag
				// rather than duplicating it, so this level can never
				// collide with a same-shaped tree built from an even
				// number of distinct leaves.
				next = append(next, hashOdd(level[i]))
			}
		}
		level = next
	}
	return level[0]
}

func hashLeaf(leaf [hashSize]byte) [hashSize]byte {
	h := sha256.New()
	h.Write([]byte{leafTag})
	h.Write(leaf[:])
	var out [hashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashNode(left, right [hashSize]byte) [hashSize]byte {
	h := sha256.New()
	h.Write([]byte{nodeTag})
	h.Write(left[:])
	h.Write(right[:])
	var out [hashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}

func hashOdd(node [hashSize]byte) [hashSize]byte {
	h := sha256.New()
	h.Write([]byte{oddTag})
	h.Write(node[:])
	var out [hashSize]byte
	copy(out[:], h.Sum(nil))
	return out
}
