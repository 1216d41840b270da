// Package miner implements the block-template and nonce-search loop that
// turns mempool contents into mined blocks, the way cmd/kaspaminer's
// mineLoop turns block templates into submitted blocks — except here the
// template builder and the submitter are the same process, since this
// node has no separate getblocktemplate RPC boundary.
package miner

import (
	"context"
	"time"

	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/chainstore"
	"github.com/opensyria/pownode/logger"
	"github.com/opensyria/pownode/mempool"
	"github.com/opensyria/pownode/merkle"
	"github.com/opensyria/pownode/pow"
	"github.com/opensyria/pownode/wireformat"
)

var log, _ = logger.Get(logger.SubsystemTags.POW)

// maxTemplateBytes bounds how much of the block byte budget the mempool
// selection leaves for transactions once the coinbase is accounted for.
const maxTemplateBytes = chaincfg.MaxBlockBytes - chaincfg.MaxTxBytes

// Miner repeatedly builds a candidate block from the current tip and
// mempool, searches for a valid nonce, and appends it to store on success.
type Miner struct {
	params  chaincfg.Params
	store   *chainstore.Store
	pool    *mempool.Pool
	addr    address.Address
	onMined func(*wireformat.Block)
	now     func() uint64
}

// New constructs a Miner that pays coinbase subsidies to addr. onMined, if
// non-nil, is called after each block is durably appended — the entrypoint
// wires this to gossip the block to peers.
func New(params chaincfg.Params, store *chainstore.Store, pool *mempool.Pool, addr address.Address, onMined func(*wireformat.Block)) *Miner {
	return &Miner{
		params:  params,
		store:   store,
		pool:    pool,
		addr:    addr,
		onMined: onMined,
		now:     func() uint64 { return uint64(time.Now().Unix()) },
	}
}

// Run mines blocks until ctx is cancelled, logging each success. A mining
// attempt that loses the race to a block arriving from a peer simply
// fails append (stale previous hash) and the loop retries against the new
// tip, mirroring how kaspaminer retries against a fresh template.
func (m *Miner) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		block, stats, err := m.mineOne(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warnf("mining attempt failed: %s", err)
			continue
		}
		hash, err := block.Hash()
		if err != nil {
			return err
		}
		log.Infof("mined block %x at height via %d hashes in %s", hash, stats.HashesTried, stats.Elapsed)
		if m.onMined != nil {
			m.onMined(block)
		}
	}
}

// mineOne builds one candidate block against the current tip and mempool
// and searches for a solving nonce, appending it to the store on success.
func (m *Miner) mineOne(ctx context.Context) (*wireformat.Block, pow.Stats, error) {
	tipHash, tipHeight, err := m.store.GetChainTip()
	if err != nil {
		return nil, pow.Stats{}, err
	}
	tipBlock, ok, err := m.store.GetBlockByHash(tipHash)
	if err != nil {
		return nil, pow.Stats{}, err
	}
	if !ok {
		return nil, pow.Stats{}, chainstore.ErrInvariantViolated
	}

	height := tipHeight + 1
	difficulty, err := m.nextDifficulty(height, tipBlock.Header)
	if err != nil {
		return nil, pow.Stats{}, err
	}

	txs := m.pool.Select(maxTemplateBytes)
	var totalFees uint64
	for _, tx := range txs {
		totalFees += tx.Fee
	}
	supply, err := m.store.GetSupply()
	if err != nil {
		return nil, pow.Stats{}, err
	}
	subsidy := chaincfg.ClampedSubsidy(height, supply)

	coinbase := &wireformat.Transaction{
		ChainID: m.params.ChainID,
		To:      m.addr,
		Amount:  subsidy + totalFees,
	}
	allTxs := append([]*wireformat.Transaction{coinbase}, txs...)

	leaves := make([][32]byte, len(allTxs))
	for i, tx := range allTxs {
		h, err := tx.Hash()
		if err != nil {
			return nil, pow.Stats{}, err
		}
		leaves[i] = h
	}

	header := wireformat.BlockHeader{
		Version:      1,
		PreviousHash: tipHash,
		MerkleRoot:   merkle.Root(leaves),
		Timestamp:    nextTimestamp(tipBlock.Header.Timestamp, m.now()),
		Difficulty:   difficulty,
	}

	solved, stats, err := pow.Mine(ctx, header)
	if err != nil {
		return nil, stats, err
	}
	block := &wireformat.Block{Header: solved, Transactions: allTxs}
	if err := m.store.AppendBlock(block); err != nil {
		return nil, stats, err
	}
	for _, tx := range txs {
		if hash, err := tx.Hash(); err == nil {
			m.pool.Remove(hash)
		}
	}
	return block, stats, nil
}

// nextDifficulty returns tipHeader.Difficulty unchanged except at a
// retarget boundary, where it recomputes from the elapsed wall-clock time
// over the last AdjustmentInterval blocks, per spec.md §4.2.
func (m *Miner) nextDifficulty(height uint64, tipHeader wireformat.BlockHeader) (uint32, error) {
	if !pow.ShouldRetarget(height) {
		return tipHeader.Difficulty, nil
	}
	startHeight := height - chaincfg.AdjustmentInterval
	startBlock, ok, err := m.store.GetBlockByHeight(startHeight)
	if err != nil {
		return 0, err
	}
	if !ok {
		return tipHeader.Difficulty, nil
	}
	elapsed := int64(tipHeader.Timestamp) - int64(startBlock.Header.Timestamp)
	return pow.Retarget(tipHeader.Difficulty, elapsed), nil
}

// nextTimestamp picks a timestamp strictly greater than the parent's,
// preferring wall-clock now but never going backwards.
func nextTimestamp(prevTimestamp uint64, now uint64) uint64 {
	if now > prevTimestamp {
		return now
	}
	return prevTimestamp + 1
}
