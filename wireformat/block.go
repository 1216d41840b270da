package wireformat

import (
	"bytes"
	"crypto/sha256"
	"io"
	"math/big"

	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/merkle"
	"github.com/pkg/errors"
)

// BlockHeader commits to everything about a block except the miner's
// search for a valid nonce, per spec.md §3.
type BlockHeader struct {
	Version      uint32
	PreviousHash [32]byte
	MerkleRoot   [32]byte
	StateRoot    [32]byte // all-zero until populated; see spec.md §4.3
	Timestamp    uint64
	Difficulty   uint32
	Nonce        uint64
}

// Block is a header plus its ordered transactions. The first transaction
// must always be the coinbase.
type Block struct {
	Header       BlockHeader
	Transactions []*Transaction
}

// Serialize encodes the header in the wire format. The block hash is the
// SHA-256 of this exact byte sequence.
func (h *BlockHeader) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeUint32(&buf, h.Version); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeBytesFixed(&buf, h.PreviousHash[:]); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeBytesFixed(&buf, h.MerkleRoot[:]); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeBytesFixed(&buf, h.StateRoot[:]); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeUint64(&buf, h.Timestamp); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeUint32(&buf, h.Difficulty); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeUint64(&buf, h.Nonce); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	return buf.Bytes(), nil
}

// DeserializeBlockHeader decodes a header from r.
func DeserializeBlockHeader(r io.Reader) (*BlockHeader, error) {
	h := &BlockHeader{}
	var err error
	if h.Version, err = readUint32(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	prev, err := readBytesFixed(r, 32)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	copy(h.PreviousHash[:], prev)
	mr, err := readBytesFixed(r, 32)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	copy(h.MerkleRoot[:], mr)
	sr, err := readBytesFixed(r, 32)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	copy(h.StateRoot[:], sr)
	if h.Timestamp, err = readUint64(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if h.Difficulty, err = readUint32(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if h.Nonce, err = readUint64(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	return h, nil
}

// Hash is the SHA-256 of the canonically serialized header.
func (h *BlockHeader) Hash() ([32]byte, error) {
	b, err := h.Serialize()
	if err != nil {
		return [32]byte{}, err
	}
	return sha256.Sum256(b), nil
}

// MeetsDifficulty interprets the header hash as a big-endian 256-bit
// integer and checks that at least `difficulty` leading bits are zero.
func (h *BlockHeader) MeetsDifficulty() (bool, error) {
	hash, err := h.Hash()
	if err != nil {
		return false, err
	}
	return HashMeetsDifficulty(hash, h.Difficulty), nil
}

// HashMeetsDifficulty reports whether hash has at least `difficulty`
// leading zero bits when read as a big-endian 256-bit integer.
func HashMeetsDifficulty(hash [32]byte, difficulty uint32) bool {
	if difficulty == 0 {
		return true
	}
	if difficulty > 256 {
		return false
	}
	n := new(big.Int).SetBytes(hash[:])
	// n has `difficulty` leading zero bits iff n < 2^(256-difficulty).
	threshold := new(big.Int).Lsh(big.NewInt(1), uint(256-difficulty))
	return n.Cmp(threshold) < 0
}

// Hash returns the block's hash, which is simply its header hash.
func (b *Block) Hash() ([32]byte, error) {
	return b.Header.Hash()
}

// VerifyMerkleRoot recomputes the tagged Merkle root over the block's
// transaction hashes and compares it against the header's MerkleRoot.
func (b *Block) VerifyMerkleRoot() error {
	leaves := make([][32]byte, len(b.Transactions))
	for i, tx := range b.Transactions {
		hash, err := tx.Hash()
		if err != nil {
			return err
		}
		leaves[i] = hash
	}
	got := merkle.Root(leaves)
	if got != b.Header.MerkleRoot {
		return ErrInvalidMerkleRoot
	}
	return nil
}

// VerifyTransactions checks every transaction's signature and size bound,
// and that the first transaction is the sole coinbase. Economic rules
// (subsidy amount, fee totals, supply cap) belong to the validation
// pipeline, not this data-model layer; see spec.md component table.
func (b *Block) VerifyTransactions() error {
	if len(b.Transactions) == 0 {
		return errors.New("block has no transactions")
	}
	if !b.Transactions[0].IsCoinbase() {
		return errors.New("first transaction is not a coinbase")
	}
	for i, tx := range b.Transactions {
		if i > 0 && tx.IsCoinbase() {
			return errors.New("coinbase transaction is not the first transaction")
		}
		if err := tx.ValidateSize(); err != nil {
			return err
		}
		if err := tx.ValidateFee(); err != nil {
			return err
		}
		if !tx.Verify() {
			return ErrInvalidSignature
		}
	}
	return nil
}

// ValidateTimestamp enforces spec.md §4.3 step 4: strictly greater than
// the parent's timestamp, and not more than MaxFutureDriftSecs ahead of
// now. The median-time-past check (over up to MEDIAN_TIME_WINDOW headers)
// is performed by the chain store, which alone has access to history.
func (h *BlockHeader) ValidateTimestamp(prevTimestamp uint64, now uint64) error {
	if h.Timestamp <= prevTimestamp {
		return ErrTimestampDecreased
	}
	if h.Timestamp > now+chaincfg.MaxFutureDriftSecs {
		return ErrTimestampTooFarFuture
	}
	return nil
}

// Serialize encodes the full block (header + transactions) in the wire
// format, bounded by MaxBlockBytes and MaxTxsPerBlock.
func (b *Block) Serialize() ([]byte, error) {
	if len(b.Transactions) > chaincfg.MaxTxsPerBlock {
		return nil, errors.Errorf("block has %d transactions, exceeds %d",
			len(b.Transactions), chaincfg.MaxTxsPerBlock)
	}
	var buf bytes.Buffer
	hb, err := b.Header.Serialize()
	if err != nil {
		return nil, err
	}
	buf.Write(hb)
	if err := writeUint32(&buf, uint32(len(b.Transactions))); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	for _, tx := range b.Transactions {
		txb, err := tx.Serialize()
		if err != nil {
			return nil, err
		}
		if err := writeBytesLenPrefixed(&buf, txb); err != nil {
			return nil, errors.Wrap(ErrSerializationFailed, err.Error())
		}
	}
	if buf.Len() > chaincfg.MaxBlockBytes {
		return nil, errors.Errorf("block is %d bytes, exceeds %d", buf.Len(), chaincfg.MaxBlockBytes)
	}
	return buf.Bytes(), nil
}

// DeserializeBlock decodes a block from r, refusing to read more than
// MaxTxsPerBlock transactions or MaxTxBytes per transaction.
func DeserializeBlock(r io.Reader) (*Block, error) {
	header, err := DeserializeBlockHeader(r)
	if err != nil {
		return nil, err
	}
	count, err := readUint32(r)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if count > chaincfg.MaxTxsPerBlock {
		return nil, errors.Errorf("block claims %d transactions, exceeds %d", count, chaincfg.MaxTxsPerBlock)
	}
	txs := make([]*Transaction, 0, count)
	for i := uint32(0); i < count; i++ {
		txb, err := readBytesLenPrefixed(r, chaincfg.MaxTxBytes)
		if err != nil {
			return nil, errors.Wrap(ErrSerializationFailed, err.Error())
		}
		tx, err := DeserializeTransaction(bytes.NewReader(txb))
		if err != nil {
			return nil, err
		}
		txs = append(txs, tx)
	}
	return &Block{Header: *header, Transactions: txs}, nil
}

// Genesis builds the canonical genesis block for the given network
// parameters. Every node computes the same hash from the same GenesisSpec.
func Genesis(spec chaincfg.GenesisSpec) *Block {
	header := BlockHeader{
		Version:    spec.Version,
		Timestamp:  spec.Timestamp,
		Difficulty: spec.Difficulty,
		Nonce:      spec.Nonce,
	}
	// Genesis has no transactions; its Merkle root is the all-zero hash
	// of an empty leaf set.
	header.MerkleRoot = merkle.Root(nil)
	return &Block{Header: header, Transactions: nil}
}
