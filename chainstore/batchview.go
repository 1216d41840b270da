package chainstore

import (
	"bytes"
	"encoding/binary"

	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/wireformat"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

// batchView is the single implementation of accountView. It stages every
// mutation in an in-memory leveldb.Batch plus a shadow map (so staged
// writes are visible to subsequent reads within the same view, which a
// raw leveldb.Batch does not support), and only touches the real database
// when Commit is called. append_block uses one batchView per call and
// commits immediately; reorganize shares a single batchView across the
// whole revert-then-reapply sequence and commits once at the end, giving
// the "stage the new chain before the destructive revert" guarantee from
// spec.md §4.3.
type batchView struct {
	db      *leveldb.DB
	batch   *leveldb.Batch
	writes  map[string][]byte
	deletes map[string]bool
}

func newBatchView(db *leveldb.DB) *batchView {
	return &batchView{
		db:      db,
		batch:   new(leveldb.Batch),
		writes:  make(map[string][]byte),
		deletes: make(map[string]bool),
	}
}

func (v *batchView) get(key []byte) ([]byte, bool, error) {
	sk := string(key)
	if v.deletes[sk] {
		return nil, false, nil
	}
	if val, ok := v.writes[sk]; ok {
		return val, true, nil
	}
	val, err := v.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, errors.Wrap(ErrStorageFailure, err.Error())
	}
	return val, true, nil
}

func (v *batchView) put(key, val []byte) {
	sk := string(key)
	delete(v.deletes, sk)
	v.writes[sk] = val
	v.batch.Put(key, val)
}

func (v *batchView) del(key []byte) {
	sk := string(key)
	v.deletes[sk] = true
	delete(v.writes, sk)
	v.batch.Delete(key)
}

// commit atomically applies every staged mutation to the database.
func (v *batchView) commit() error {
	if err := v.db.Write(v.batch, nil); err != nil {
		return errors.Wrap(ErrStorageFailure, err.Error())
	}
	return nil
}

// --- accountView implementation ---

func (v *batchView) Balance(addr address.Address) (uint64, error) {
	b, ok, err := v.get(balanceKey(addr))
	if err != nil || !ok {
		return 0, err
	}
	return bytesToU64(b), nil
}

func (v *batchView) SetBalance(addr address.Address, balance uint64) error {
	v.put(balanceKey(addr), u64ToBytes(balance))
	return nil
}

func (v *batchView) Nonce(addr address.Address) (uint64, error) {
	b, ok, err := v.get(nonceKey(addr))
	if err != nil || !ok {
		return 0, err
	}
	return bytesToU64(b), nil
}

func (v *batchView) SetNonce(addr address.Address, nonce uint64) error {
	v.put(nonceKey(addr), u64ToBytes(nonce))
	return nil
}

func (v *batchView) Supply() (uint64, error) {
	b, ok, err := v.get(supplyKey)
	if err != nil || !ok {
		return 0, err
	}
	return bytesToU64(b), nil
}

func (v *batchView) SetSupply(supply uint64) error {
	v.put(supplyKey, u64ToBytes(supply))
	return nil
}

func (v *batchView) PutBlock(hash [32]byte, height uint64, block *wireformat.Block) error {
	serialized, err := block.Serialize()
	if err != nil {
		return err
	}
	v.put(blockKey(hash), serialized)
	v.put(heightKey(height), hash[:])
	v.put(blockHashHeightKey(hash), u64ToBytes(height))
	return nil
}

func (v *batchView) DeleteBlockAtHeight(height uint64) error {
	hash, ok, err := v.BlockHashAtHeight(height)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	v.del(heightKey(height))
	v.del(blockHashHeightKey(hash))
	return nil
}

func (v *batchView) BlockHashAtHeight(height uint64) ([32]byte, bool, error) {
	var hash [32]byte
	b, ok, err := v.get(heightKey(height))
	if err != nil || !ok {
		return hash, ok, err
	}
	copy(hash[:], b)
	return hash, true, nil
}

func (v *batchView) Block(hash [32]byte) (*wireformat.Block, bool, error) {
	b, ok, err := v.get(blockKey(hash))
	if err != nil || !ok {
		return nil, ok, err
	}
	block, err := wireformat.DeserializeBlock(bytes.NewReader(b))
	if err != nil {
		return nil, false, err
	}
	return block, true, nil
}

func (v *batchView) PutTxIndex(hash [32]byte, height uint64, indexInBlock int) error {
	buf := make([]byte, 12)
	binary.LittleEndian.PutUint64(buf[0:8], height)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(indexInBlock))
	v.put(txKey(hash), buf)
	return nil
}

func (v *batchView) DeleteTxIndex(hash [32]byte) error {
	v.del(txKey(hash))
	return nil
}

func (v *batchView) txLocation(hash [32]byte) (txLocation, bool, error) {
	b, ok, err := v.get(txKey(hash))
	if err != nil || !ok {
		return txLocation{}, ok, err
	}
	if len(b) != 12 {
		return txLocation{}, false, errors.Wrap(ErrInvariantViolated, "malformed tx index entry")
	}
	return txLocation{
		Height:       binary.LittleEndian.Uint64(b[0:8]),
		IndexInBlock: int(binary.LittleEndian.Uint32(b[8:12])),
	}, true, nil
}

func (v *batchView) AppendAddrTx(addr address.Address, txHash [32]byte) error {
	hashes, err := v.AddrTxs(addr)
	if err != nil {
		return err
	}
	hashes = append(hashes, txHash)
	v.put(addrTxIndexKey(addr), encodeHashList(hashes))
	return nil
}

func (v *batchView) RemoveAddrTx(addr address.Address, txHash [32]byte) error {
	hashes, err := v.AddrTxs(addr)
	if err != nil {
		return err
	}
	// Remove the last matching occurrence — revert always undoes the most
	// recently applied block first, so reverting the same tx hash twice
	// (unusual but possible if a hash collision were ever forged) removes
	// the most recent entry.
	for i := len(hashes) - 1; i >= 0; i-- {
		if hashes[i] == txHash {
			hashes = append(hashes[:i], hashes[i+1:]...)
			break
		}
	}
	if len(hashes) == 0 {
		v.del(addrTxIndexKey(addr))
		return nil
	}
	v.put(addrTxIndexKey(addr), encodeHashList(hashes))
	return nil
}

func (v *batchView) AddrTxs(addr address.Address) ([][32]byte, error) {
	b, ok, err := v.get(addrTxIndexKey(addr))
	if err != nil || !ok {
		return nil, err
	}
	return decodeHashList(b), nil
}

func (v *batchView) SetTip(hash [32]byte, height uint64) error {
	v.put(chainTipKey, hash[:])
	v.put(chainHeightKey, u64ToBytes(height))
	return nil
}

func (v *batchView) Tip() ([32]byte, uint64, error) {
	var hash [32]byte
	hb, ok, err := v.get(chainTipKey)
	if err != nil {
		return hash, 0, err
	}
	if !ok {
		return hash, 0, nil
	}
	copy(hash[:], hb)
	heightB, _, err := v.get(chainHeightKey)
	if err != nil {
		return hash, 0, err
	}
	return hash, bytesToU64(heightB), nil
}

func (v *batchView) SetMintedSubsidy(height uint64, amount uint64) error {
	v.put(mintedSubsidyKey(height), u64ToBytes(amount))
	return nil
}

func (v *batchView) MintedSubsidy(height uint64) (uint64, error) {
	b, ok, err := v.get(mintedSubsidyKey(height))
	if err != nil || !ok {
		return 0, err
	}
	return bytesToU64(b), nil
}

func (v *batchView) DeleteMintedSubsidy(height uint64) error {
	v.del(mintedSubsidyKey(height))
	return nil
}

func encodeHashList(hashes [][32]byte) []byte {
	buf := make([]byte, 0, len(hashes)*32)
	for _, h := range hashes {
		buf = append(buf, h[:]...)
	}
	return buf
}

func decodeHashList(b []byte) [][32]byte {
	n := len(b) / 32
	out := make([][32]byte, n)
	for i := 0; i < n; i++ {
		copy(out[i][:], b[i*32:(i+1)*32])
	}
	return out
}
