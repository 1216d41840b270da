package wireformat

import (
	"bytes"
	"crypto/sha256"
	"io"

	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/keys"
	"github.com/pkg/errors"
)

// Transaction is a value transfer, or — when From is the zero address — a
// coinbase. Fields and the signing preimage follow spec.md §3 exactly.
type Transaction struct {
	ChainID   uint32
	From      address.Address
	To        address.Address
	Amount    uint64
	Fee       uint64
	Nonce     uint64
	Signature [keys.SignatureSize]byte
	Data      []byte // optional
}

// IsCoinbase reports whether the transaction is the network's minting
// transaction: sender is the zero address.
func (t *Transaction) IsCoinbase() bool {
	return t.From.IsZero()
}

// SigningHash is the SHA-256 over the exact byte sequence specified in
// spec.md §3: chain_id (LE4), from, to, amount (LE8), fee (LE8), nonce
// (LE8), then a presence byte and, if data is present, its LE8 length and
// bytes. It is a pure function of these fields — changing any of them,
// including data, changes the hash.
func (t *Transaction) SigningHash() [32]byte {
	h := sha256.New()
	_ = writeUint32(h, t.ChainID)
	h.Write(t.From[:])
	h.Write(t.To[:])
	_ = writeUint64(h, t.Amount)
	_ = writeUint64(h, t.Fee)
	_ = writeUint64(h, t.Nonce)
	if t.Data == nil {
		h.Write([]byte{0x00})
	} else {
		h.Write([]byte{0x01})
		_ = writeUint64(h, uint64(len(t.Data)))
		h.Write(t.Data)
	}
	var out [32]byte
	copy(out[:], h.Sum(nil))
	return out
}

// Hash is the transaction's identity in the tx index and Merkle tree: the
// SHA-256 of the full serialized transaction, including the signature.
func (t *Transaction) Hash() ([32]byte, error) {
	var out [32]byte
	b, err := t.Serialize()
	if err != nil {
		return out, err
	}
	out = sha256.Sum256(b)
	return out, nil
}

// Sign fills in Signature by signing the transaction with kp. The caller
// must set every other field first. Coinbases are never signed.
func (t *Transaction) Sign(kp *keys.KeyPair) {
	hash := t.SigningHash()
	t.Signature = kp.Sign(hash[:])
}

// Verify checks the transaction's signature against From. Coinbases are
// considered verified unconditionally — they carry no signature.
func (t *Transaction) Verify() bool {
	if t.IsCoinbase() {
		return true
	}
	hash := t.SigningHash()
	return keys.Verify(t.From, hash[:], t.Signature)
}

// ValidateSize checks the serialized size bound from spec.md §3/§4.5
// (MaxTxBytes overall). Data has no separate limit: it may take whatever
// the overall cap leaves after the 156 bytes of fixed-width fields and its
// 8-byte length prefix.
func (t *Transaction) ValidateSize() error {
	b, err := t.Serialize()
	if err != nil {
		return err
	}
	if len(b) > chaincfg.MaxTxBytes {
		return errors.Wrapf(ErrOversizedTransaction,
			"transaction is %d bytes, exceeds %d", len(b), chaincfg.MaxTxBytes)
	}
	return nil
}

// ValidateFee enforces the flat minimum fee for transfers and the
// exactly-zero fee for coinbases.
func (t *Transaction) ValidateFee() error {
	if t.IsCoinbase() {
		if t.Fee != 0 {
			return errors.Wrap(ErrFeeTooLow, "coinbase fee must be zero")
		}
		return nil
	}
	if t.Fee < chaincfg.MinFee {
		return errors.Wrapf(ErrFeeTooLow, "fee %d below minimum %d", t.Fee, chaincfg.MinFee)
	}
	return nil
}

// FeePerByte returns the transaction's fee divided by its serialized size,
// used by the mempool to rank candidates for mining. It returns 0, false
// if the transaction fails to serialize.
func (t *Transaction) FeePerByte() (float64, bool) {
	b, err := t.Serialize()
	if err != nil || len(b) == 0 {
		return 0, false
	}
	return float64(t.Fee) / float64(len(b)), true
}

// Serialize encodes the transaction in the wire format.
func (t *Transaction) Serialize() ([]byte, error) {
	var buf bytes.Buffer
	if err := writeUint32(&buf, t.ChainID); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeBytesFixed(&buf, t.From[:]); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeBytesFixed(&buf, t.To[:]); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeUint64(&buf, t.Amount); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeUint64(&buf, t.Fee); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeUint64(&buf, t.Nonce); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeBytesFixed(&buf, t.Signature[:]); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if err := writeBytesLenPrefixed(&buf, t.Data); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	return buf.Bytes(), nil
}

// DeserializeTransaction decodes a transaction from r, refusing to read a
// data payload larger than chaincfg.MaxTxBytes.
func DeserializeTransaction(r io.Reader) (*Transaction, error) {
	t := &Transaction{}
	var err error
	if t.ChainID, err = readUint32(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	from, err := readBytesFixed(r, address.Size)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	copy(t.From[:], from)
	to, err := readBytesFixed(r, address.Size)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	copy(t.To[:], to)
	if t.Amount, err = readUint64(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if t.Fee, err = readUint64(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if t.Nonce, err = readUint64(r); err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	sig, err := readBytesFixed(r, keys.SignatureSize)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	copy(t.Signature[:], sig)
	data, err := readBytesLenPrefixed(r, chaincfg.MaxTxBytes)
	if err != nil {
		return nil, errors.Wrap(ErrSerializationFailed, err.Error())
	}
	if len(data) > 0 {
		t.Data = data
	}
	return t, nil
}
