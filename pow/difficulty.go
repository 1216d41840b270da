package pow

import (
	"math/big"

	"github.com/opensyria/pownode/chaincfg"
)

// Retarget computes the new difficulty given the current difficulty,
// target block time, and the actual elapsed wall-clock seconds across the
// last AdjustmentInterval blocks, per spec.md §4.2. elapsedSecs is clamped
// to at least 1 before dividing. The result is clamped to ±25% of the
// current difficulty and then to [MinDifficulty, MaxDifficulty].
func Retarget(currentDifficulty uint32, elapsedSecs int64) uint32 {
	a := elapsedSecs
	if a < 1 {
		a = 1
	}

	// new = (D * T * N) / A, computed with a big.Int intermediate so the
	// product can never silently overflow even if the constants change
	// under a future network upgrade.
	d := big.NewInt(int64(currentDifficulty))
	t := big.NewInt(chaincfg.TargetBlockTimeSecs)
	n := big.NewInt(chaincfg.AdjustmentInterval)
	product := new(big.Int).Mul(d, t)
	product.Mul(product, n)
	aBig := big.NewInt(a)
	newDifficultyBig := new(big.Int).Quo(product, aBig)

	newDifficulty := newDifficultyBig.Int64()

	// Clamp the change to ±25% of the current difficulty.
	maxChange := int64(currentDifficulty) / 4
	minAllowed := int64(currentDifficulty) - maxChange
	maxAllowed := int64(currentDifficulty) + maxChange
	if newDifficulty < minAllowed {
		newDifficulty = minAllowed
	}
	if newDifficulty > maxAllowed {
		newDifficulty = maxAllowed
	}

	// Clamp to the network-wide bounds.
	if newDifficulty < int64(chaincfg.MinDifficulty) {
		newDifficulty = int64(chaincfg.MinDifficulty)
	}
	if newDifficulty > int64(chaincfg.MaxDifficulty) {
		newDifficulty = int64(chaincfg.MaxDifficulty)
	}

	return uint32(newDifficulty)
}

// ShouldRetarget reports whether the block at the given height is a
// retarget boundary: one every AdjustmentInterval blocks.
func ShouldRetarget(height uint64) bool {
	return height > 0 && height%chaincfg.AdjustmentInterval == 0
}
