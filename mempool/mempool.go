// Package mempool holds validated, not-yet-mined transactions and selects
// them for inclusion in candidate blocks, per spec.md §4.4.
package mempool

import (
	"container/heap"
	"sync"
	"time"

	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/wireformat"
)

// AccountReader is the narrow slice of the chain store the mempool needs to
// admit transactions against current tip state, without importing the
// chainstore package directly.
type AccountReader interface {
	GetAddressBalance(addr address.Address) (uint64, error)
	GetAddressNonce(addr address.Address) (uint64, error)
}

// Config bundles the mempool's tunable policy knobs.
type Config struct {
	// MaxBytes bounds total in-pool transaction size; admitting a
	// transaction that would exceed it evicts the lowest fee-per-byte
	// entries first.
	MaxBytes uint64

	// ReplacementMarginPercent is how much higher a replacement
	// transaction's fee must be than the one it displaces, expressed as a
	// percentage of the old fee (e.g. 10 means at least 10% higher).
	ReplacementMarginPercent uint64
}

// DefaultConfig matches the policy assumed by spec.md's worked examples.
var DefaultConfig = Config{
	MaxBytes:                 32 * 1024 * 1024,
	ReplacementMarginPercent: 10,
}

// entry is one admitted transaction plus the bookkeeping needed for
// eviction and selection ordering.
type entry struct {
	tx         *wireformat.Transaction
	hash       [32]byte
	size       int
	feePerByte float64
	added      time.Time
	heapIndex  int
}

// Pool is the mempool: a deduplicated, sender-nonce-indexed, byte-capped
// set of validated pending transactions, safe for concurrent use.
type Pool struct {
	mu sync.RWMutex

	cfg    Config
	params chaincfg.Params
	reader AccountReader

	byHash     map[[32]byte]*entry
	bySender   map[address.Address]map[uint64]*entry
	totalBytes uint64
	evictHeap  evictionHeap
}

// New constructs an empty pool that validates admission against reader's
// account state for the given network parameters.
func New(cfg Config, params chaincfg.Params, reader AccountReader) *Pool {
	return &Pool{
		cfg:      cfg,
		params:   params,
		reader:   reader,
		byHash:   make(map[[32]byte]*entry),
		bySender: make(map[address.Address]map[uint64]*entry),
	}
}

// Admit validates tx against the pool's admission rules (spec.md §4.4) and,
// if it passes, inserts it — replacing any existing same-(from, nonce) entry
// whose fee it beats by the configured margin, and evicting the
// lowest-fee-per-byte entries if the pool would otherwise exceed MaxBytes.
func (p *Pool) Admit(tx *wireformat.Transaction) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	hash, err := tx.Hash()
	if err != nil {
		return err
	}
	if _, ok := p.byHash[hash]; ok {
		return ErrAlreadyInPool
	}
	if tx.ChainID != p.params.ChainID {
		return ErrWrongChainID
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

	accountNonce, err := p.reader.GetAddressNonce(tx.From)
	if err != nil {
		return err
	}
	if tx.Nonce < accountNonce {
		return ErrNonceStale
	}
	if tx.Nonce-accountNonce > chaincfg.MaxNonceGap {
		return ErrNonceGapTooLarge
	}
	balance, err := p.reader.GetAddressBalance(tx.From)
	if err != nil {
		return err
	}
	if balance < tx.Amount+tx.Fee {
		return ErrInsufficientBalance
	}

	serialized, err := tx.Serialize()
	if err != nil {
		return err
	}
	feePerByte, ok := tx.FeePerByte()
	if !ok {
		return ErrSerializationFailed
	}
	newEntry := &entry{
		tx:         tx,
		hash:       hash,
		size:       len(serialized),
		feePerByte: feePerByte,
		added:      time.Now(),
	}

	if senderEntries, ok := p.bySender[tx.From]; ok {
		if old, ok := senderEntries[tx.Nonce]; ok {
			margin := old.tx.Fee * p.cfg.ReplacementMarginPercent / 100
			if tx.Fee <= old.tx.Fee+margin {
				return ErrReplacementFeeTooLow
			}
			p.removeEntry(old)
		}
	}

	for p.totalBytes+uint64(newEntry.size) > p.cfg.MaxBytes {
		lowest := p.evictHeap.peekLowest()
		if lowest == nil {
			break
		}
		if lowest.feePerByte >= newEntry.feePerByte {
			return ErrMempoolFull
		}
		p.removeEntry(lowest)
	}

	p.insertEntry(newEntry)
	return nil
}

func (p *Pool) insertEntry(e *entry) {
	p.byHash[e.hash] = e
	if p.bySender[e.tx.From] == nil {
		p.bySender[e.tx.From] = make(map[uint64]*entry)
	}
	p.bySender[e.tx.From][e.tx.Nonce] = e
	p.totalBytes += uint64(e.size)
	heap.Push(&p.evictHeap, e)
}

func (p *Pool) removeEntry(e *entry) {
	delete(p.byHash, e.hash)
	if senderEntries, ok := p.bySender[e.tx.From]; ok {
		delete(senderEntries, e.tx.Nonce)
		if len(senderEntries) == 0 {
			delete(p.bySender, e.tx.From)
		}
	}
	p.totalBytes -= uint64(e.size)
	if e.heapIndex >= 0 && e.heapIndex < len(p.evictHeap) && p.evictHeap[e.heapIndex] == e {
		heap.Remove(&p.evictHeap, e.heapIndex)
	}
}

// Remove drops a transaction from the pool by hash, used once it has been
// mined into a block. It is a no-op if the hash is not present.
func (p *Pool) Remove(hash [32]byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if e, ok := p.byHash[hash]; ok {
		p.removeEntry(e)
	}
}

// Has reports whether hash is currently admitted to the pool.
func (p *Pool) Has(hash [32]byte) bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	_, ok := p.byHash[hash]
	return ok
}

// Select returns transactions for a candidate block in decreasing
// fee-per-byte order, subject to per-sender nonce ordering: a higher-nonce
// transaction from a given sender never precedes a lower-nonce one from the
// same sender, even if its fee-per-byte is higher. The result never exceeds
// maxBytes in total serialized size.
func (p *Pool) Select(maxBytes uint64) []*wireformat.Transaction {
	p.mu.RLock()
	defer p.mu.RUnlock()

	ready := make([]*entry, 0, len(p.byHash))
	nextNonce := make(map[address.Address]uint64, len(p.bySender))
	for sender, bySenderNonce := range p.bySender {
		lowest := ^uint64(0)
		for nonce := range bySenderNonce {
			if nonce < lowest {
				lowest = nonce
			}
		}
		nextNonce[sender] = lowest
	}

	remaining := make(map[address.Address]map[uint64]*entry, len(p.bySender))
	for sender, bySenderNonce := range p.bySender {
		remaining[sender] = make(map[uint64]*entry, len(bySenderNonce))
		for nonce, e := range bySenderNonce {
			remaining[sender][nonce] = e
		}
	}
	for sender, nonce := range nextNonce {
		if e, ok := remaining[sender][nonce]; ok {
			ready = append(ready, e)
		}
	}

	selected := make([]*wireformat.Transaction, 0, len(ready))
	var totalBytes uint64
	for len(ready) > 0 {
		bestIdx := -1
		for i, e := range ready {
			if bestIdx == -1 || e.feePerByte > ready[bestIdx].feePerByte {
				bestIdx = i
			}
		}
		best := ready[bestIdx]
		ready = append(ready[:bestIdx], ready[bestIdx+1:]...)

		if totalBytes+uint64(best.size) > maxBytes {
			continue
		}
		totalBytes += uint64(best.size)
		selected = append(selected, best.tx)

		delete(remaining[best.tx.From], best.tx.Nonce)
		if next, ok := remaining[best.tx.From][best.tx.Nonce+1]; ok {
			ready = append(ready, next)
		}
	}
	return selected
}

// Snapshot returns every transaction hash currently admitted, for the
// get_mempool_snapshot read-only surface.
func (p *Pool) Snapshot() [][32]byte {
	p.mu.RLock()
	defer p.mu.RUnlock()
	hashes := make([][32]byte, 0, len(p.byHash))
	for h := range p.byHash {
		hashes = append(hashes, h)
	}
	return hashes
}

// Len returns the number of transactions currently admitted.
func (p *Pool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.byHash)
}

// evictionHeap is a container/heap min-heap over fee-per-byte, letting
// Admit find and evict the cheapest entries in O(log n) when the pool is
// over its byte cap — the same heap.Interface pattern mining.go uses for
// its (max-heap) block-assembly priority queue.
type evictionHeap []*entry

func (h evictionHeap) Len() int { return len(h) }
func (h evictionHeap) Less(i, j int) bool {
	return h[i].feePerByte < h[j].feePerByte
}
func (h evictionHeap) Swap(i, j int) {
	h[i], h[j] = h[j], h[i]
	h[i].heapIndex = i
	h[j].heapIndex = j
}
func (h *evictionHeap) Push(x interface{}) {
	e := x.(*entry)
	e.heapIndex = len(*h)
	*h = append(*h, e)
}
func (h *evictionHeap) Pop() interface{} {
	old := *h
	n := len(old)
	e := old[n-1]
	old[n-1] = nil
	e.heapIndex = -1
	*h = old[:n-1]
	return e
}
func (h evictionHeap) peekLowest() *entry {
	if len(h) == 0 {
		return nil
	}
	return h[0]
}
