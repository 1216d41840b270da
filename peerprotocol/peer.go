package peerprotocol

import (
	"sync"
	"sync/atomic"

	"github.com/google/uuid"
	"golang.org/x/time/rate"
)

// Peer holds per-connection state: readiness, the peer's last-known tip,
// and the sliding-window rate limiters spec.md §4.6 requires per message
// type. Modeled on the daglabs-btcd protocol/peer.Peer pattern of an
// atomic ready flag guarding the rest of the struct.
type Peer struct {
	ID string

	// SessionID distinguishes two connections from the same advertised
	// ID (e.g. a reconnecting peer) in logs and metrics.
	SessionID uuid.UUID

	ready uint32

	tipMu     sync.RWMutex
	tipHeight uint64
	tipHash   [32]byte

	newBlockLimiter *rate.Limiter
	newTxLimiter    *rate.Limiter
}

// NewPeer constructs a Peer with spec.md's default rate limits: up to 10
// NewBlock and 100 NewTransaction messages per second, as a token bucket
// refilling at that rate with a burst equal to the same count so a full
// second's allowance can arrive at once.
func NewPeer(id string) *Peer {
	return &Peer{
		ID:              id,
		SessionID:       uuid.New(),
		newBlockLimiter: rate.NewLimiter(rate.Limit(10), 10),
		newTxLimiter:    rate.NewLimiter(rate.Limit(100), 100),
	}
}

// MarkReady marks the peer as having completed its Hello handshake.
func (p *Peer) MarkReady() {
	atomic.StoreUint32(&p.ready, 1)
}

// Ready reports whether the peer has completed its handshake.
func (p *Peer) Ready() bool {
	return atomic.LoadUint32(&p.ready) == 1
}

// SetTip records the peer's last-announced chain tip.
func (p *Peer) SetTip(height uint64, hash [32]byte) {
	p.tipMu.Lock()
	defer p.tipMu.Unlock()
	p.tipHeight = height
	p.tipHash = hash
}

// Tip returns the peer's last-announced chain tip.
func (p *Peer) Tip() (uint64, [32]byte) {
	p.tipMu.RLock()
	defer p.tipMu.RUnlock()
	return p.tipHeight, p.tipHash
}

// AllowNewBlock reports whether another NewBlock message from this peer is
// within its sliding-window rate limit this second.
func (p *Peer) AllowNewBlock() bool {
	return p.newBlockLimiter.Allow()
}

// AllowNewTransaction reports whether another NewTransaction message from
// this peer is within its sliding-window rate limit this second.
func (p *Peer) AllowNewTransaction() bool {
	return p.newTxLimiter.Allow()
}
