// Copyright (c) 2013-2017 The btcsuite developers
// Use of this source code is governed by an ISC
// license that can be found in the LICENSE file.

// Package chaincfg holds the consensus-affecting constants and per-network
// parameters (genesis block, checkpoints, chain id) that every node on a
// given network must agree on byte-for-byte.
package chaincfg

import "time"

// Protocol constants from spec.md §6. Changing any of these requires a
// coordinated network upgrade.
const (
	TargetBlockTimeSecs       = 120
	AdjustmentInterval        = 100
	MinDifficulty        uint32 = 8
	MaxDifficulty        uint32 = 192
	MaxFutureDriftSecs        = 300
	MedianTimeWindow          = 11
	MaxReorgDepth             = 100
	InitialReward      uint64 = 50_000_000
	HalvingInterval    uint64 = 210_000
	MaxSupply          uint64 = 100_000_000_000_000
	MinFee             uint64 = 100
	MaxTxBytes                = 100_000
	MaxBlockBytes             = 1_000_000
	MaxTxsPerBlock            = 1_000
	MaxWireBytes              = 524_288
	MaxBlocksPerRequest       = 50
	MaxNonceGap        uint64 = 5

	// maxHalvings bounds the subsidy schedule: after this many halvings the
	// subsidy saturates to zero rather than right-shifting into undefined
	// shift-by-large-N behavior.
	maxHalvings = 64
)

// Chain identifiers distinguish independently-operated networks; every
// transaction carries one in its signing preimage.
const (
	ChainIDMainnet = 963
	ChainIDTestnet = 963_000
)

// Checkpoint is a hardcoded (height, expected hash) pair. append_block
// rejects any block at a checkpointed height whose hash disagrees.
type Checkpoint struct {
	Height uint64
	Hash   [32]byte
}

// Params bundles everything that differs between networks so that the core
// never branches on network identity internally — it only ever reads the
// Params value it was constructed with.
type Params struct {
	Name        string
	ChainID     uint32
	Genesis     GenesisSpec
	Checkpoints []Checkpoint
}

// GenesisSpec describes the canonical genesis block in a form independent
// of the wireformat package (which depends on chaincfg for these values),
// avoiding an import cycle. wireformat.Genesis(params) builds the real
// block from this spec.
type GenesisSpec struct {
	Version    uint32
	Timestamp  uint64
	Difficulty uint32
	Nonce      uint64
}

// MainnetParams are the parameters for the public production network.
var MainnetParams = Params{
	Name:    "mainnet",
	ChainID: ChainIDMainnet,
	Genesis: GenesisSpec{
		Version:    1,
		Timestamp:  uint64(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()),
		Difficulty: MinDifficulty,
		Nonce:      0,
	},
	Checkpoints: []Checkpoint{},
}

// TestnetParams are the parameters for the public test network. It shares
// mainnet's genesis timestamp convention but a distinct chain id so a
// mainnet-signed transaction can never replay onto testnet, and vice versa.
var TestnetParams = Params{
	Name:    "testnet",
	ChainID: ChainIDTestnet,
	Genesis: GenesisSpec{
		Version:    1,
		Timestamp:  uint64(time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC).Unix()),
		Difficulty: MinDifficulty,
		Nonce:      0,
	},
	Checkpoints: []Checkpoint{},
}

// BlockSubsidy returns the coinbase subsidy for the block at the given
// height, per spec.md §4.5: an exponentially halving schedule, saturating
// to zero after maxHalvings halvings. Height 0 (genesis) mints nothing.
func BlockSubsidy(height uint64) uint64 {
	if height == 0 {
		return 0
	}
	halvings := (height - 1) / HalvingInterval
	if halvings >= maxHalvings {
		return 0
	}
	return InitialReward >> halvings
}

// ClampedSubsidy returns the subsidy BlockSubsidy(height) would mint,
// reduced so currentSupply never exceeds MaxSupply. Both the chain store's
// append_block validation and the miner's block template must agree on
// this value, so it lives here rather than being computed independently
// in each.
func ClampedSubsidy(height uint64, currentSupply uint64) uint64 {
	subsidy := BlockSubsidy(height)
	if currentSupply >= MaxSupply {
		return 0
	}
	if currentSupply+subsidy > MaxSupply {
		return MaxSupply - currentSupply
	}
	return subsidy
}
