package peerprotocol

import (
	"path/filepath"
	"testing"

	"github.com/opensyria/pownode/chainstore"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/mempool"
)

type fakeBroadcaster struct {
	sent    []Message
	exclude []string
}

func (f *fakeBroadcaster) Broadcast(msg Message, excludePeerID string) {
	f.sent = append(f.sent, msg)
	f.exclude = append(f.exclude, excludePeerID)
}

func newTestHandler(t *testing.T) (*Handler, *chainstore.Store, *fakeBroadcaster) {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chainstore")
	store, err := chainstore.Open(dir, chaincfg.TestnetParams)
	if err != nil {
		t.Fatalf("chainstore.Open: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	pool := mempool.New(mempool.DefaultConfig, chaincfg.TestnetParams, store)
	bc := &fakeBroadcaster{}
	h := NewHandler(chaincfg.TestnetParams, chaincfg.TestnetParams.ChainID, store, pool, bc)
	return h, store, bc
}

func TestHandleHelloMismatchedChainIsPenalized(t *testing.T) {
	h, _, _ := newTestHandler(t)
	_, err := h.Handle("peer1", &Hello{NetworkID: chaincfg.TestnetParams.ChainID, ChainID: chaincfg.ChainIDMainnet})
	if err == nil {
		t.Fatalf("Handle(Hello) with wrong chain id succeeded, want error")
	}
	if score := h.reputation.Score("peer1"); score >= 0 {
		t.Fatalf("reputation score = %d after a mismatched Hello, want negative", score)
	}
}

func TestHandleHelloMatchingMarksPeerReady(t *testing.T) {
	h, _, _ := newTestHandler(t)
	_, err := h.Handle("peer1", &Hello{
		NetworkID: chaincfg.TestnetParams.ChainID,
		ChainID:   chaincfg.TestnetParams.ChainID,
		TipHeight: 0,
	})
	if err != nil {
		t.Fatalf("Handle(Hello): %v", err)
	}
	if !h.peer("peer1").Ready() {
		t.Fatalf("peer not marked ready after a matching Hello")
	}
}

func TestHandleGetTipReturnsCurrentTip(t *testing.T) {
	h, store, _ := newTestHandler(t)
	wantHash, wantHeight, err := store.GetChainTip()
	if err != nil {
		t.Fatalf("GetChainTip: %v", err)
	}

	reply, err := h.Handle("peer1", &GetTip{})
	if err != nil {
		t.Fatalf("Handle(GetTip): %v", err)
	}
	tip, ok := reply.(*Tip)
	if !ok {
		t.Fatalf("reply is %T, want *Tip", reply)
	}
	if tip.Height != wantHeight || tip.Hash != wantHash {
		t.Fatalf("Tip = (%d, %x), want (%d, %x)", tip.Height, tip.Hash, wantHeight, wantHash)
	}
}

func TestHandleGetBlocksReturnsRequestedRange(t *testing.T) {
	h, _, _ := newTestHandler(t)
	reply, err := h.Handle("peer1", &GetBlocks{FromHeight: 0, MaxBlocks: 10})
	if err != nil {
		t.Fatalf("Handle(GetBlocks): %v", err)
	}
	blocks, ok := reply.(*Blocks)
	if !ok {
		t.Fatalf("reply is %T, want *Blocks", reply)
	}
	if len(blocks.Blocks) != 1 {
		t.Fatalf("Blocks has %d entries, want 1 (just genesis)", len(blocks.Blocks))
	}
}

func TestHandleBannedPeerIsRejected(t *testing.T) {
	h, _, _ := newTestHandler(t)
	for i := 0; i < 11; i++ {
		h.reputation.PenalizeInvalidBlock("bad-peer")
	}
	raw, err := EncodeMessage(&GetTip{})
	if err != nil {
		t.Fatalf("EncodeMessage: %v", err)
	}
	if _, err := h.HandleRaw("bad-peer", raw); err != ErrPeerBanned {
		t.Fatalf("HandleRaw from a banned peer returned %v, want ErrPeerBanned", err)
	}
}

func TestHandleUnknownMessageType(t *testing.T) {
	h, _, _ := newTestHandler(t)
	if _, err := h.Handle("peer1", unknownMessage{}); err != ErrUnknownMessage {
		t.Fatalf("Handle() with an unrecognized message type returned %v, want ErrUnknownMessage", err)
	}
}

type unknownMessage struct{}

func (unknownMessage) Command() Command { return Command(999) }
