package chainstore

import (
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/wireformat"
	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
)

const blockCacheSize = 256

// Store is the durable chain store described in spec.md §4.3: a single
// leveldb.DB holding the blocks/index/state/meta keyspaces, guarded by a
// single lock the way blockdag.BlockDAG guards its state with dagLock.
// Readers take the read half so GetBlockByHash and friends never block on
// each other; AppendBlock, RevertToHeight and Reorganize take the write
// half because they stage and then commit a batchView against the tip.
type Store struct {
	params chaincfg.Params
	now    func() uint64

	lock sync.RWMutex
	db   *leveldb.DB

	blockCache *lru.Cache[[32]byte, *wireformat.Block]
}

// Open opens (creating if necessary) the leveldb database at path and
// seeds it with the network's genesis block if it is empty.
func Open(path string, params chaincfg.Params) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrap(ErrStorageFailure, err.Error())
	}
	cache, err := lru.New[[32]byte, *wireformat.Block](blockCacheSize)
	if err != nil {
		return nil, errors.Wrap(ErrStorageFailure, err.Error())
	}
	s := &Store{
		params:     params,
		now:        func() uint64 { return uint64(time.Now().Unix()) },
		db:         db,
		blockCache: cache,
	}

	_, height, err := s.tip()
	if err != nil {
		db.Close()
		return nil, err
	}
	if height == 0 {
		_, ok, err := s.blockAtHeight(0)
		if err != nil {
			db.Close()
			return nil, err
		}
		if !ok {
			genesis := wireformat.Genesis(params.Genesis)
			if err := s.AppendBlock(genesis); err != nil {
				db.Close()
				return nil, err
			}
		}
	}
	return s, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	s.lock.Lock()
	defer s.lock.Unlock()
	if err := s.db.Close(); err != nil {
		return errors.Wrap(ErrStorageFailure, err.Error())
	}
	return nil
}

func (s *Store) applyCtx() applyContext {
	return applyContext{
		params:           s.params,
		now:              s.now,
		enforceStateRoot: true,
	}
}

// AppendBlock validates block against the current tip and, if valid,
// commits it in one atomic batch. It is the only entry point a freshly
// mined or received block goes through outside of reorganize.
func (s *Store) AppendBlock(block *wireformat.Block) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	isGenesis := false
	if _, ok, err := s.blockAtHeight(0); err != nil {
		return err
	} else if !ok {
		isGenesis = true
	}

	view := newBatchView(s.db)
	if err := applyBlock(view, s.applyCtx(), block, isGenesis); err != nil {
		return err
	}
	if err := view.commit(); err != nil {
		return err
	}
	if hash, err := block.Hash(); err == nil {
		s.blockCache.Add(hash, block)
	}
	return nil
}

// RevertToHeight rolls the chain back to targetHeight, inclusive of
// undoing every block above it, in one atomic batch. It refuses to
// revert more than MaxReorgDepth blocks at once, matching reorganize's
// bound.
func (s *Store) RevertToHeight(targetHeight uint64) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, tipHeight, err := s.tip()
	if err != nil {
		return err
	}
	if targetHeight >= tipHeight {
		return nil
	}
	if tipHeight-targetHeight > chaincfg.MaxReorgDepth {
		return ErrReorgTooDeep
	}

	view := newBatchView(s.db)
	for h := tipHeight; h > targetHeight; h-- {
		if err := revertBlock(view, h); err != nil {
			return err
		}
	}
	return view.commit()
}

// Reorganize switches the active chain from its current tip onto
// newBlocks, which must extend the common ancestor at forkHeight. Both
// the revert of the stale suffix and the reapply of newBlocks are staged
// in a single shared batchView and committed once, so a failure partway
// through reapplication leaves the database exactly as it was before the
// call — the strong guarantee spec.md §9 calls for.
func (s *Store) Reorganize(forkHeight uint64, newBlocks []*wireformat.Block) error {
	s.lock.Lock()
	defer s.lock.Unlock()

	_, tipHeight, err := s.tip()
	if err != nil {
		return err
	}
	if tipHeight < forkHeight {
		return errors.Wrap(ErrInvariantViolated, "fork height is ahead of current tip")
	}
	depth := tipHeight - forkHeight
	if depth > chaincfg.MaxReorgDepth || uint64(len(newBlocks)) > chaincfg.MaxReorgDepth {
		return ErrReorgTooDeep
	}

	view := newBatchView(s.db)
	for h := tipHeight; h > forkHeight; h-- {
		if err := revertBlock(view, h); err != nil {
			return err
		}
	}
	for _, block := range newBlocks {
		if err := applyBlock(view, s.applyCtx(), block, false); err != nil {
			return err
		}
	}
	if err := view.commit(); err != nil {
		return err
	}
	s.blockCache.Purge()
	return nil
}

func (s *Store) tip() ([32]byte, uint64, error) {
	return (newBatchView(s.db)).Tip()
}

func (s *Store) blockAtHeight(height uint64) (*wireformat.Block, bool, error) {
	v := newBatchView(s.db)
	hash, ok, err := v.BlockHashAtHeight(height)
	if err != nil || !ok {
		return nil, ok, err
	}
	return v.Block(hash)
}

// GetChainTip returns the current tip's hash and height.
func (s *Store) GetChainTip() ([32]byte, uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.tip()
}

// GetBlockByHash returns the block with the given hash, if known. Blocks
// remain addressable by hash even after being reverted from the active
// chain, so this also serves reorg bookkeeping.
func (s *Store) GetBlockByHash(hash [32]byte) (*wireformat.Block, bool, error) {
	if block, ok := s.blockCache.Get(hash); ok {
		return block, true, nil
	}
	s.lock.RLock()
	defer s.lock.RUnlock()
	v := newBatchView(s.db)
	block, ok, err := v.Block(hash)
	if err == nil && ok {
		s.blockCache.Add(hash, block)
	}
	return block, ok, err
}

// GetBlockByHeight returns the block currently active at height on the
// main chain.
func (s *Store) GetBlockByHeight(height uint64) (*wireformat.Block, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	return s.blockAtHeight(height)
}

// GetTransactionByHash returns the transaction with the given hash and the
// height of the block that includes it, if the transaction is part of a
// block on the currently active chain.
func (s *Store) GetTransactionByHash(hash [32]byte) (*wireformat.Transaction, uint64, bool, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v := newBatchView(s.db)
	loc, ok, err := v.txLocation(hash)
	if err != nil || !ok {
		return nil, 0, ok, err
	}
	block, ok, err := s.blockAtHeight(loc.Height)
	if err != nil || !ok {
		return nil, 0, false, err
	}
	if loc.IndexInBlock >= len(block.Transactions) {
		return nil, 0, false, errors.Wrap(ErrInvariantViolated, "tx index points past block's transaction list")
	}
	return block.Transactions[loc.IndexInBlock], loc.Height, true, nil
}

// GetAddressBalance returns addr's current account balance.
func (s *Store) GetAddressBalance(addr address.Address) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v := newBatchView(s.db)
	return v.Balance(addr)
}

// GetAddressNonce returns addr's current account nonce, the value the
// next transaction it sends must carry.
func (s *Store) GetAddressNonce(addr address.Address) (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v := newBatchView(s.db)
	return v.Nonce(addr)
}

// GetAddressTransactions returns the hashes of every transaction that has
// touched addr as sender or recipient, oldest first.
func (s *Store) GetAddressTransactions(addr address.Address) ([][32]byte, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v := newBatchView(s.db)
	return v.AddrTxs(addr)
}

// GetSupply returns the total amount of currency minted so far.
func (s *Store) GetSupply() (uint64, error) {
	s.lock.RLock()
	defer s.lock.RUnlock()
	v := newBatchView(s.db)
	return v.Supply()
}
