package peerprotocol

import (
	"testing"

	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/wireformat"
)

func TestHelloRoundTrip(t *testing.T) {
	want := &Hello{NetworkID: 963, ChainID: chaincfg.ChainIDMainnet, TipHeight: 42, TipHash: [32]byte{9}}
	encoded, err := EncodeMessage(want)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	got, ok := decoded.(*Hello)
	if !ok {
		t.Fatalf("decoded message is %T, want *Hello", decoded)
	}
	if *got != *want {
		t.Fatalf("round-tripped Hello = %+v, want %+v", got, want)
	}
}

func TestGetTipRoundTrip(t *testing.T) {
	encoded, err := EncodeMessage(&GetTip{})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	if _, ok := decoded.(*GetTip); !ok {
		t.Fatalf("decoded message is %T, want *GetTip", decoded)
	}
}

func TestTipRoundTrip(t *testing.T) {
	want := &Tip{Height: 7, Hash: [32]byte{1, 2, 3}}
	encoded, err := EncodeMessage(want)
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	got, ok := decoded.(*Tip)
	if !ok {
		t.Fatalf("decoded message is %T, want *Tip", decoded)
	}
	if *got != *want {
		t.Fatalf("round-tripped Tip = %+v, want %+v", got, want)
	}
}

func TestGetBlocksRejectsExcessiveMaxBlocks(t *testing.T) {
	encoded, err := EncodeMessage(&GetBlocks{FromHeight: 0, MaxBlocks: chaincfg.MaxBlocksPerRequest + 1})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if _, err := DecodeMessage(encoded); err == nil {
		t.Fatalf("DecodeMessage succeeded for MaxBlocks beyond MaxBlocksPerRequest, want error")
	}
}

func TestNewBlockRoundTrip(t *testing.T) {
	block := wireformat.Genesis(chaincfg.MainnetParams.Genesis)
	encoded, err := EncodeMessage(&NewBlock{Block: block})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	decoded, err := DecodeMessage(encoded)
	if err != nil {
		t.Fatalf("DecodeMessage: %v", err)
	}
	got, ok := decoded.(*NewBlock)
	if !ok {
		t.Fatalf("decoded message is %T, want *NewBlock", decoded)
	}
	gotHash, err := got.Block.Hash()
	if err != nil {
		t.Fatalf("got.Block.Hash: %v", err)
	}
	wantHash, err := block.Hash()
	if err != nil {
		t.Fatalf("block.Hash: %v", err)
	}
	if gotHash != wantHash {
		t.Fatalf("round-tripped block hash = %x, want %x", gotHash, wantHash)
	}
}

func TestDecodeMessageRejectsOversizedPayload(t *testing.T) {
	raw := make([]byte, chaincfg.MaxWireBytes+1)
	if _, err := DecodeMessage(raw); err == nil {
		t.Fatalf("DecodeMessage succeeded for a payload beyond MaxWireBytes, want error")
	}
}

func TestDecodeMessageRejectsUnknownCommand(t *testing.T) {
	raw := []byte{0xff, 0xff, 0xff, 0xff}
	if _, err := DecodeMessage(raw); err == nil {
		t.Fatalf("DecodeMessage succeeded for an unknown command tag, want error")
	}
}

func TestCommandString(t *testing.T) {
	if got := CmdHello.String(); got != "Hello" {
		t.Fatalf("CmdHello.String() = %q, want %q", got, "Hello")
	}
	if got := Command(999).String(); got != "Unknown" {
		t.Fatalf("Command(999).String() = %q, want %q", got, "Unknown")
	}
}
