package chainstore

import (
	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/wireformat"
)

// accountView is the narrow read/write surface that block
// apply/revert logic needs. batchView is its only implementation: an
// in-memory overlay over leveldb that append_block uses for one block and
// reorganize uses for its whole revert-then-reapply sequence, so the same
// mutation logic drives both.
type accountView interface {
	Balance(addr address.Address) (uint64, error)
	SetBalance(addr address.Address, balance uint64) error
	Nonce(addr address.Address) (uint64, error)
	SetNonce(addr address.Address, nonce uint64) error
	Supply() (uint64, error)
	SetSupply(supply uint64) error

	PutBlock(hash [32]byte, height uint64, block *wireformat.Block) error
	// DeleteBlockAtHeight removes the height->hash and hash->height index
	// entries for height, but never the raw block body — reverted blocks
	// must remain addressable by hash for later reapply.
	DeleteBlockAtHeight(height uint64) error
	BlockHashAtHeight(height uint64) ([32]byte, bool, error)
	Block(hash [32]byte) (*wireformat.Block, bool, error)

	PutTxIndex(hash [32]byte, height uint64, indexInBlock int) error
	DeleteTxIndex(hash [32]byte) error
	AppendAddrTx(addr address.Address, txHash [32]byte) error
	RemoveAddrTx(addr address.Address, txHash [32]byte) error
	AddrTxs(addr address.Address) ([][32]byte, error)

	SetTip(hash [32]byte, height uint64) error
	Tip() ([32]byte, uint64, error)

	// MintedSubsidy records the subsidy actually minted at a height
	// (after any supply-cap clamping), so revertBlock can undo exactly
	// what was applied rather than recomputing a value that may no
	// longer match once the supply cap has been reached.
	SetMintedSubsidy(height uint64, amount uint64) error
	MintedSubsidy(height uint64) (uint64, error)
	DeleteMintedSubsidy(height uint64) error
}

// txLocation is what the tx index maps a hash to.
type txLocation struct {
	Height       uint64
	IndexInBlock int
}
