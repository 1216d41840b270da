package chainstore

import (
	"encoding/binary"

	"github.com/opensyria/pownode/address"
)

// Every persisted key is prefixed with a one-byte keyspace tag followed by
// the ASCII sub-key literally named in spec.md §4.3/§6 (e.g. "balance_",
// "height_"), so a single leveldb.DB can stand in for the four logical
// column families: blocks, index, state, meta.
const (
	keyspaceBlocks byte = 'b'
	keyspaceIndex  byte = 'i'
	keyspaceState  byte = 's'
	keyspaceMeta   byte = 'm'
)

func blockKey(hash [32]byte) []byte {
	return append([]byte{keyspaceBlocks}, hash[:]...)
}

func heightKey(height uint64) []byte {
	k := append([]byte{keyspaceIndex}, []byte("height_")...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return append(k, b[:]...)
}

func blockHashHeightKey(hash [32]byte) []byte {
	k := append([]byte{keyspaceIndex}, []byte("block_hash_")...)
	return append(k, hash[:]...)
}

func txKey(hash [32]byte) []byte {
	k := append([]byte{keyspaceIndex}, []byte("tx_")...)
	return append(k, hash[:]...)
}

func addrTxIndexKey(addr address.Address) []byte {
	k := append([]byte{keyspaceIndex}, []byte("addr_")...)
	return append(k, addr[:]...)
}

var chainTipKey = append([]byte{keyspaceIndex}, []byte("chain_tip")...)
var chainHeightKey = append([]byte{keyspaceIndex}, []byte("chain_height")...)

func balanceKey(addr address.Address) []byte {
	k := append([]byte{keyspaceState}, []byte("balance_")...)
	return append(k, addr[:]...)
}

func nonceKey(addr address.Address) []byte {
	k := append([]byte{keyspaceState}, []byte("nonce_")...)
	return append(k, addr[:]...)
}

var supplyKey = append([]byte{keyspaceState}, []byte("supply")...)

func mintedSubsidyKey(height uint64) []byte {
	k := append([]byte{keyspaceMeta}, []byte("minted_subsidy_")...)
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], height)
	return append(k, b[:]...)
}

func u64ToBytes(v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return b[:]
}

func bytesToU64(b []byte) uint64 {
	if len(b) != 8 {
		return 0
	}
	return binary.LittleEndian.Uint64(b)
}
