package peerprotocol

import (
	"sync"

	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/chainstore"
	"github.com/opensyria/pownode/logger"
	"github.com/opensyria/pownode/mempool"
	"github.com/opensyria/pownode/wireformat"
)

var log, _ = logger.Get(logger.SubsystemTags.PEER)

// Broadcaster re-sends a message to every connected peer except the one
// it arrived from, implementing the gossip half of spec.md §4.6.
type Broadcaster interface {
	Broadcast(msg Message, excludePeerID string)
}

// Handler is the peer protocol message dispatcher: it enforces message
// bounds and rate limits, tracks reputation, applies blocks and
// transactions to the chain store and mempool, and triggers gossip and
// sync responses. One Handler serves every connected peer.
type Handler struct {
	params      chaincfg.Params
	networkID   uint32
	store       *chainstore.Store
	pool        *mempool.Pool
	reputation  *ReputationTable
	broadcaster Broadcaster

	mu    sync.Mutex
	peers map[string]*Peer
}

// NewHandler constructs a Handler bound to store and pool for the given
// network parameters. broadcaster may be nil in tests that don't exercise
// gossip.
func NewHandler(params chaincfg.Params, networkID uint32, store *chainstore.Store, pool *mempool.Pool, broadcaster Broadcaster) *Handler {
	return &Handler{
		params:      params,
		networkID:   networkID,
		store:       store,
		pool:        pool,
		reputation:  NewReputationTable(),
		broadcaster: broadcaster,
		peers:       make(map[string]*Peer),
	}
}

func (h *Handler) peer(peerID string) *Peer {
	h.mu.Lock()
	defer h.mu.Unlock()
	p, ok := h.peers[peerID]
	if !ok {
		p = NewPeer(peerID)
		h.peers[peerID] = p
	}
	return p
}

// RemovePeer drops a disconnected peer's in-memory state.
func (h *Handler) RemovePeer(peerID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	delete(h.peers, peerID)
}

// HandleRaw enforces MAX_WIRE_BYTES, decodes the message, and dispatches
// it, returning ErrPeerBanned (after silently dropping) for a banned peer
// and ErrMessageTooLarge (after penalizing) for an oversized one. The
// returned Message, if non-nil, is the reply the transport should send
// back to peerID (e.g. Blocks for a GetBlocks, Tip for a GetTip).
func (h *Handler) HandleRaw(peerID string, raw []byte) (Message, error) {
	if h.reputation.IsBanned(peerID) {
		return nil, ErrPeerBanned
	}
	if len(raw) > chaincfg.MaxWireBytes {
		h.reputation.PenalizeOversizedMessage(peerID)
		return nil, ErrMessageTooLarge
	}
	msg, err := DecodeMessage(raw)
	if err != nil {
		return nil, err
	}
	return h.Handle(peerID, msg)
}

// Handle dispatches an already-decoded message from peerID.
func (h *Handler) Handle(peerID string, msg Message) (Message, error) {
	peer := h.peer(peerID)
	switch m := msg.(type) {
	case *Hello:
		return nil, h.handleHello(peer, m)
	case *GetBlocks:
		return h.handleGetBlocks(peer, m)
	case *Blocks:
		return nil, h.handleBlocks(peer, m)
	case *NewBlock:
		return nil, h.handleNewBlock(peer, m)
	case *NewTransaction:
		return nil, h.handleNewTransaction(peer, m)
	case *GetTip:
		return h.handleGetTip(peer)
	case *Tip:
		return nil, h.handleTip(peer, m)
	default:
		return nil, ErrUnknownMessage
	}
}

func (h *Handler) handleHello(peer *Peer, m *Hello) error {
	if m.NetworkID != h.networkID || m.ChainID != h.params.ChainID {
		log.Warnf("peer %s sent Hello for network/chain %d/%d, expected %d/%d",
			peer.ID, m.NetworkID, m.ChainID, h.networkID, h.params.ChainID)
		h.reputation.PenalizeInvalidBlock(peer.ID)
		return chainstore.ErrInvalidChainID
	}
	peer.SetTip(m.TipHeight, m.TipHash)
	peer.MarkReady()
	log.Debugf("peer %s ready at tip height %d", peer.ID, m.TipHeight)
	return nil
}

// handleGetBlocks answers an initial-sync or catch-up request: every
// block from FromHeight up to MaxBlocks (already bounded at decode time)
// that this node has on its active chain.
func (h *Handler) handleGetBlocks(peer *Peer, m *GetBlocks) (Message, error) {
	blocks := make([]*wireformat.Block, 0, m.MaxBlocks)
	for i := uint32(0); i < m.MaxBlocks; i++ {
		block, ok, err := h.store.GetBlockByHeight(m.FromHeight + uint64(i))
		if err != nil {
			return nil, err
		}
		if !ok {
			break
		}
		blocks = append(blocks, block)
	}
	return &Blocks{Blocks: blocks}, nil
}

func (h *Handler) handleBlocks(peer *Peer, m *Blocks) error {
	for _, block := range m.Blocks {
		if err := h.store.AppendBlock(block); err != nil {
			h.reputation.PenalizeInvalidBlock(peer.ID)
			return err
		}
		h.reputation.RewardValidBlock(peer.ID)
	}
	return nil
}

// handleNewBlock applies the gossip policy from spec.md §4.6: on a valid,
// previously-unseen block, apply it then re-broadcast to every other
// peer.
func (h *Handler) handleNewBlock(peer *Peer, m *NewBlock) error {
	if !peer.AllowNewBlock() {
		h.reputation.PenalizeRateLimit(peer.ID)
		return ErrRateLimitExceeded
	}
	hash, err := m.Block.Hash()
	if err != nil {
		return err
	}
	if _, ok, err := h.store.GetBlockByHash(hash); err != nil {
		return err
	} else if ok {
		return nil // already seen, not an error, nothing to gossip
	}
	if err := h.store.AppendBlock(m.Block); err != nil {
		h.reputation.PenalizeInvalidBlock(peer.ID)
		return err
	}
	h.reputation.RewardValidBlock(peer.ID)
	for _, txHash := range blockTxHashes(m.Block) {
		h.pool.Remove(txHash)
	}
	if h.broadcaster != nil {
		h.broadcaster.Broadcast(m, peer.ID)
	}
	return nil
}

// handleNewTransaction mirrors handleNewBlock's gossip policy for
// transactions: admit then re-broadcast.
func (h *Handler) handleNewTransaction(peer *Peer, m *NewTransaction) error {
	if !peer.AllowNewTransaction() {
		h.reputation.PenalizeRateLimit(peer.ID)
		return ErrRateLimitExceeded
	}
	hash, err := m.Tx.Hash()
	if err != nil {
		return err
	}
	if h.pool.Has(hash) {
		return nil
	}
	if err := h.pool.Admit(m.Tx); err != nil {
		h.reputation.PenalizeInvalidTx(peer.ID)
		return err
	}
	h.reputation.RewardValidTx(peer.ID)
	if h.broadcaster != nil {
		h.broadcaster.Broadcast(m, peer.ID)
	}
	return nil
}

func (h *Handler) handleGetTip(peer *Peer) (Message, error) {
	hash, height, err := h.store.GetChainTip()
	if err != nil {
		return nil, err
	}
	return &Tip{Height: height, Hash: hash}, nil
}

func (h *Handler) handleTip(peer *Peer, m *Tip) error {
	peer.SetTip(m.Height, m.Hash)
	return nil
}

func blockTxHashes(block *wireformat.Block) [][32]byte {
	hashes := make([][32]byte, 0, len(block.Transactions))
	for _, tx := range block.Transactions {
		if hash, err := tx.Hash(); err == nil {
			hashes = append(hashes, hash)
		}
	}
	return hashes
}
