// Package pow implements the nonce-search mining loop and deterministic
// difficulty retargeting described in spec.md §4.2.
package pow

import (
	"context"
	"math"
	"time"

	"github.com/opensyria/pownode/wireformat"
	"golang.org/x/crypto/blake2b"
)

// Stats are advisory statistics about a mining attempt; they are never
// consensus data and are not persisted. Fingerprint is a blake2b digest of
// the solved header, set only when Mine finds a solution; nothing in this
// module reads it, and it is never compared against anything the chain
// store or wire protocol cares about, so it does not need to match the
// block hash's hashing scheme.
type Stats struct {
	HashesTried uint64
	Elapsed     time.Duration
	Fingerprint [32]byte
}

// hashChunk bounds how many nonces are tried between cancellation checks,
// so a tip change preempts the search within a small, bounded amount of
// work (spec.md §5).
const hashChunk = 1 << 14

// Mine searches nonce space for a header that meets the target difficulty.
// header.Nonce is ignored on entry and overwritten during the search. On
// success it returns the solved header and stats. If ctx is cancelled
// before a solution is found, it returns the partially-searched header
// (caller must discard it) and ctx.Err(). On full exhaustion of the nonce
// space without a solution — astronomically unlikely — it returns the
// header with Nonce = math.MaxUint64 and a nil error; the caller may bump
// the timestamp and retry.
func Mine(ctx context.Context, header wireformat.BlockHeader) (wireformat.BlockHeader, Stats, error) {
	start := time.Now()
	var tried uint64

	var nonce uint64
	for {
		for i := uint64(0); i < hashChunk; i++ {
			header.Nonce = nonce
			ok, err := header.MeetsDifficulty()
			if err != nil {
				return header, Stats{HashesTried: tried, Elapsed: time.Since(start)}, err
			}
			tried++
			if ok {
				return header, Stats{HashesTried: tried, Elapsed: time.Since(start), Fingerprint: fingerprint(header)}, nil
			}
			if nonce == math.MaxUint64 {
				header.Nonce = math.MaxUint64
				return header, Stats{HashesTried: tried, Elapsed: time.Since(start)}, nil
			}
			nonce++
		}
		select {
		case <-ctx.Done():
			return header, Stats{HashesTried: tried, Elapsed: time.Since(start)}, ctx.Err()
		default:
		}
	}
}

// fingerprint digests the solved header with blake2b, distinct from the
// SHA-256 block hash so a fingerprint collision can never be mistaken for
// a consensus hash collision.
func fingerprint(header wireformat.BlockHeader) [32]byte {
	b, err := header.Serialize()
	if err != nil {
		return [32]byte{}
	}
	return blake2b.Sum256(b)
}
