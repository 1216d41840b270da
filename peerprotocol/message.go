package peerprotocol

import (
	"bytes"
	"encoding/binary"
	"io"

	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/wireformat"
	"github.com/pkg/errors"
)

// Command tags each wire message the way wire.MessageCommand tags a kaspad
// message header, so a peer only needs to read the first four bytes to
// know how to decode the rest.
type Command uint32

const (
	CmdHello Command = iota
	CmdGetBlocks
	CmdBlocks
	CmdNewBlock
	CmdNewTransaction
	CmdGetTip
	CmdTip
)

func (c Command) String() string {
	switch c {
	case CmdHello:
		return "Hello"
	case CmdGetBlocks:
		return "GetBlocks"
	case CmdBlocks:
		return "Blocks"
	case CmdNewBlock:
		return "NewBlock"
	case CmdNewTransaction:
		return "NewTransaction"
	case CmdGetTip:
		return "GetTip"
	case CmdTip:
		return "Tip"
	default:
		return "Unknown"
	}
}

// Message is anything that can be framed onto the wire with a Command tag.
type Message interface {
	Command() Command
}

// Hello is the handshake message exchanged immediately after a connection
// is established.
type Hello struct {
	NetworkID uint32
	ChainID   uint32
	TipHeight uint64
	TipHash   [32]byte
}

func (*Hello) Command() Command { return CmdHello }

// GetBlocks requests up to MaxBlocks blocks starting at FromHeight.
type GetBlocks struct {
	FromHeight uint64
	MaxBlocks  uint32
}

func (*GetBlocks) Command() Command { return CmdGetBlocks }

// Blocks answers a GetBlocks request.
type Blocks struct {
	Blocks []*wireformat.Block
}

func (*Blocks) Command() Command { return CmdBlocks }

// NewBlock announces (and carries) a newly seen block.
type NewBlock struct {
	Block *wireformat.Block
}

func (*NewBlock) Command() Command { return CmdNewBlock }

// NewTransaction announces (and carries) a newly seen transaction.
type NewTransaction struct {
	Tx *wireformat.Transaction
}

func (*NewTransaction) Command() Command { return CmdNewTransaction }

// GetTip requests the peer's current chain tip.
type GetTip struct{}

func (*GetTip) Command() Command { return CmdGetTip }

// Tip answers a GetTip request.
type Tip struct {
	Height uint64
	Hash   [32]byte
}

func (*Tip) Command() Command { return CmdTip }

// EncodeMessage frames msg as a Command tag followed by its payload,
// refusing to produce anything larger than MaxWireBytes.
func EncodeMessage(msg Message) ([]byte, error) {
	var payload bytes.Buffer
	var err error
	switch m := msg.(type) {
	case *Hello:
		err = encodeHello(&payload, m)
	case *GetBlocks:
		err = encodeGetBlocks(&payload, m)
	case *Blocks:
		err = encodeBlocks(&payload, m)
	case *NewBlock:
		err = encodeNewBlock(&payload, m)
	case *NewTransaction:
		err = encodeNewTransaction(&payload, m)
	case *GetTip:
		// no payload
	case *Tip:
		err = encodeTip(&payload, m)
	default:
		return nil, ErrUnknownMessage
	}
	if err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}

	var out bytes.Buffer
	if err := binary.Write(&out, binary.LittleEndian, uint32(msg.Command())); err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	out.Write(payload.Bytes())

	if out.Len() > chaincfg.MaxWireBytes {
		return nil, ErrMessageTooLarge
	}
	return out.Bytes(), nil
}

// DecodeMessage parses a framed message, refusing to read more than
// MaxWireBytes and more than MaxBlocksPerRequest/MaxTxsPerBlock where
// applicable.
func DecodeMessage(raw []byte) (Message, error) {
	if len(raw) > chaincfg.MaxWireBytes {
		return nil, ErrMessageTooLarge
	}
	if len(raw) < 4 {
		return nil, errors.Wrap(ErrMalformedMessage, "message shorter than command tag")
	}
	cmd := Command(binary.LittleEndian.Uint32(raw[:4]))
	r := bytes.NewReader(raw[4:])

	var msg Message
	var err error
	switch cmd {
	case CmdHello:
		msg, err = decodeHello(r)
	case CmdGetBlocks:
		msg, err = decodeGetBlocks(r)
	case CmdBlocks:
		msg, err = decodeBlocks(r)
	case CmdNewBlock:
		msg, err = decodeNewBlock(r)
	case CmdNewTransaction:
		msg, err = decodeNewTransaction(r)
	case CmdGetTip:
		msg = &GetTip{}
	case CmdTip:
		msg, err = decodeTip(r)
	default:
		return nil, ErrUnknownMessage
	}
	if err != nil {
		return nil, errors.Wrap(ErrMalformedMessage, err.Error())
	}
	return msg, nil
}

func encodeHello(w io.Writer, m *Hello) error {
	if err := binary.Write(w, binary.LittleEndian, m.NetworkID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.ChainID); err != nil {
		return err
	}
	if err := binary.Write(w, binary.LittleEndian, m.TipHeight); err != nil {
		return err
	}
	_, err := w.Write(m.TipHash[:])
	return err
}

func decodeHello(r io.Reader) (*Hello, error) {
	m := &Hello{}
	if err := binary.Read(r, binary.LittleEndian, &m.NetworkID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.ChainID); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.TipHeight); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, m.TipHash[:]); err != nil {
		return nil, err
	}
	return m, nil
}

func encodeGetBlocks(w io.Writer, m *GetBlocks) error {
	if err := binary.Write(w, binary.LittleEndian, m.FromHeight); err != nil {
		return err
	}
	return binary.Write(w, binary.LittleEndian, m.MaxBlocks)
}

func decodeGetBlocks(r io.Reader) (*GetBlocks, error) {
	m := &GetBlocks{}
	if err := binary.Read(r, binary.LittleEndian, &m.FromHeight); err != nil {
		return nil, err
	}
	if err := binary.Read(r, binary.LittleEndian, &m.MaxBlocks); err != nil {
		return nil, err
	}
	if m.MaxBlocks > chaincfg.MaxBlocksPerRequest {
		return nil, ErrTooManyBlocks
	}
	return m, nil
}

func encodeBlocks(w io.Writer, m *Blocks) error {
	if err := binary.Write(w, binary.LittleEndian, uint32(len(m.Blocks))); err != nil {
		return err
	}
	for _, b := range m.Blocks {
		enc, err := b.Serialize()
		if err != nil {
			return err
		}
		if err := binary.Write(w, binary.LittleEndian, uint32(len(enc))); err != nil {
			return err
		}
		if _, err := w.Write(enc); err != nil {
			return err
		}
	}
	return nil
}

func decodeBlocks(r io.Reader) (*Blocks, error) {
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	if count > chaincfg.MaxBlocksPerRequest {
		return nil, ErrTooManyBlocks
	}
	blocks := make([]*wireformat.Block, 0, count)
	for i := uint32(0); i < count; i++ {
		var size uint32
		if err := binary.Read(r, binary.LittleEndian, &size); err != nil {
			return nil, err
		}
		if size > chaincfg.MaxBlockBytes {
			return nil, errors.New("encoded block exceeds MAX_BLOCK_BYTES")
		}
		buf := make([]byte, size)
		if _, err := io.ReadFull(r, buf); err != nil {
			return nil, err
		}
		block, err := wireformat.DeserializeBlock(bytes.NewReader(buf))
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, block)
	}
	return &Blocks{Blocks: blocks}, nil
}

func encodeNewBlock(w io.Writer, m *NewBlock) error {
	enc, err := m.Block.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

func decodeNewBlock(r io.Reader) (*NewBlock, error) {
	block, err := wireformat.DeserializeBlock(r)
	if err != nil {
		return nil, err
	}
	return &NewBlock{Block: block}, nil
}

func encodeNewTransaction(w io.Writer, m *NewTransaction) error {
	enc, err := m.Tx.Serialize()
	if err != nil {
		return err
	}
	_, err = w.Write(enc)
	return err
}

func decodeNewTransaction(r io.Reader) (*NewTransaction, error) {
	tx, err := wireformat.DeserializeTransaction(r)
	if err != nil {
		return nil, err
	}
	return &NewTransaction{Tx: tx}, nil
}

func encodeTip(w io.Writer, m *Tip) error {
	if err := binary.Write(w, binary.LittleEndian, m.Height); err != nil {
		return err
	}
	_, err := w.Write(m.Hash[:])
	return err
}

func decodeTip(r io.Reader) (*Tip, error) {
	m := &Tip{}
	if err := binary.Read(r, binary.LittleEndian, &m.Height); err != nil {
		return nil, err
	}
	if _, err := io.ReadFull(r, m.Hash[:]); err != nil {
		return nil, err
	}
	return m, nil
}
