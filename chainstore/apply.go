package chainstore

import (
	"sort"

	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/merkle"
	"github.com/opensyria/pownode/wireformat"
	"github.com/pkg/errors"
)

// applyContext carries everything applyBlock needs beyond the view
// itself: network parameters and a clock, injected so the core never
// reads ambient globals (spec.md §9).
type applyContext struct {
	params         chaincfg.Params
	now            func() uint64
	enforceStateRoot bool
}

// applyBlock performs the full append_block contract from spec.md §4.3
// against the given view: validation, then one coherent set of state
// mutations. It is shared by Store.AppendBlock (a single-block, live
// batchView) and Store.Reorganize (a multi-block, shared batchView).
func applyBlock(view accountView, ctx applyContext, block *wireformat.Block, isGenesis bool) error {
	tipHash, tipHeight, err := view.Tip()
	if err != nil {
		return err
	}

	var height uint64
	if isGenesis {
		height = 0
		var zero [32]byte
		if block.Header.PreviousHash != zero {
			return errors.Wrap(ErrInvalidPreviousHash, "genesis must have an all-zero previous hash")
		}
	} else {
		height = tipHeight + 1
		blockHash, err := block.Hash()
		if err != nil {
			return err
		}
		if block.Header.PreviousHash != tipHash {
			return errors.Wrap(ErrInvalidPreviousHash, "block does not extend the current tip")
		}

		// Step 1: proof of work (skipped only for genesis).
		meets, err := block.Header.MeetsDifficulty()
		if err != nil {
			return err
		}
		if !meets {
			return ErrInvalidProofOfWork
		}

		// Checkpoints: reject a block at a checkpointed height whose hash
		// disagrees, preventing long-range rewrites below the latest one.
		for _, cp := range ctx.params.Checkpoints {
			if cp.Height == height && cp.Hash != blockHash {
				return ErrCheckpointMismatch
			}
		}
	}

	// Step 2: transaction signatures, size, coinbase shape.
	if len(block.Transactions) == 0 {
		if !isGenesis {
			return errors.Wrap(ErrInvalidCoinbase, "non-genesis block must contain a coinbase")
		}
	} else if err := block.VerifyTransactions(); err != nil {
		return err
	}

	// Step 3: Merkle root.
	if len(block.Transactions) > 0 {
		if err := block.VerifyMerkleRoot(); err != nil {
			return err
		}
	}

	// Step 4: timestamp.
	if !isGenesis {
		prevHeader, err := headerAtHeight(view, tipHeight)
		if err != nil {
			return err
		}
		if err := block.Header.ValidateTimestamp(prevHeader.Timestamp, ctx.now()); err != nil {
			return err
		}
		median, err := medianTimePast(view, tipHeight)
		if err != nil {
			return err
		}
		if block.Header.Timestamp <= median {
			return wireformat.ErrTimestampDecreased
		}
	}

	// Steps 5 (previous-hash) already checked above.

	// Step 6: per-transaction nonce and balance checks, plus coinbase
	// amount validation, against the parent state (before this block's
	// mutations are applied).
	touchedAddrs := map[address.Address]bool{}
	var totalFees uint64
	var coinbaseAmount uint64
	var coinbaseRecipient address.Address
	hasCoinbase := len(block.Transactions) > 0

	if hasCoinbase {
		coinbase := block.Transactions[0]
		coinbaseAmount = coinbase.Amount
		coinbaseRecipient = coinbase.To
	}

	for i, tx := range block.Transactions {
		if i == 0 {
			continue // coinbase handled separately below
		}
		if tx.IsCoinbase() {
			return errors.Wrap(ErrInvalidCoinbase, "only the first transaction may be a coinbase")
		}
		if tx.ChainID != ctx.params.ChainID {
			return ErrInvalidChainID
		}
		senderNonce, err := view.Nonce(tx.From)
		if err != nil {
			return err
		}
		if tx.Nonce != senderNonce {
			return errors.Wrapf(ErrNonceMismatch, "tx nonce %d != account nonce %d", tx.Nonce, senderNonce)
		}
		senderBalance, err := view.Balance(tx.From)
		if err != nil {
			return err
		}
		need := tx.Amount + tx.Fee
		if senderBalance < need {
			return errors.Wrapf(ErrInsufficientBalance, "balance %d < required %d", senderBalance, need)
		}
		totalFees += tx.Fee
		touchedAddrs[tx.From] = true
		touchedAddrs[tx.To] = true
	}

	var mintedSubsidy uint64
	if hasCoinbase {
		currentSupply, err := view.Supply()
		if err != nil {
			return err
		}
		mintedSubsidy = chaincfg.ClampedSubsidy(height, currentSupply)
		if coinbaseAmount != mintedSubsidy+totalFees {
			return errors.Wrapf(ErrInvalidCoinbaseAmount, "coinbase pays %d, expected %d (subsidy %d + fees %d)",
				coinbaseAmount, mintedSubsidy+totalFees, mintedSubsidy, totalFees)
		}
		touchedAddrs[coinbaseRecipient] = true
	}

	// Step 7: apply state mutations as one batch.
	for i, tx := range block.Transactions {
		txHash, err := tx.Hash()
		if err != nil {
			return err
		}
		if i > 0 {
			senderBalance, err := view.Balance(tx.From)
			if err != nil {
				return err
			}
			if err := view.SetBalance(tx.From, senderBalance-tx.Amount-tx.Fee); err != nil {
				return err
			}
			receiverBalance, err := view.Balance(tx.To)
			if err != nil {
				return err
			}
			if err := view.SetBalance(tx.To, receiverBalance+tx.Amount); err != nil {
				return err
			}
			senderNonce, err := view.Nonce(tx.From)
			if err != nil {
				return err
			}
			if err := view.SetNonce(tx.From, senderNonce+1); err != nil {
				return err
			}
		} else if hasCoinbase {
			recipientBalance, err := view.Balance(tx.To)
			if err != nil {
				return err
			}
			if err := view.SetBalance(tx.To, recipientBalance+tx.Amount); err != nil {
				return err
			}
			currentSupply, err := view.Supply()
			if err != nil {
				return err
			}
			if err := view.SetSupply(currentSupply + mintedSubsidy); err != nil {
				return err
			}
			if err := view.SetMintedSubsidy(height, mintedSubsidy); err != nil {
				return err
			}
		}

		if err := view.PutTxIndex(txHash, height, i); err != nil {
			return err
		}
		if i > 0 {
			if err := view.AppendAddrTx(tx.From, txHash); err != nil {
				return err
			}
		}
		if err := view.AppendAddrTx(tx.To, txHash); err != nil {
			return err
		}
	}

	blockHash, err := block.Hash()
	if err != nil {
		return err
	}

	if ctx.enforceStateRoot && block.Header.StateRoot != ([32]byte{}) {
		computed, err := computeStateRoot(view, touchedAddrs)
		if err != nil {
			return err
		}
		if computed != block.Header.StateRoot {
			return ErrStateRootMismatch
		}
	}

	if err := view.PutBlock(blockHash, height, block); err != nil {
		return err
	}
	return view.SetTip(blockHash, height)
}

// computeStateRoot builds the address-sorted account-state Merkle root
// over the accounts in touched (the block's senders, receivers and
// coinbase recipient), not over every account in the store. applyBlock
// compares it against the header only when StateRoot is non-zero.
func computeStateRoot(view accountView, touched map[address.Address]bool) ([32]byte, error) {
	addrs := make([]address.Address, 0, len(touched))
	for a := range touched {
		addrs = append(addrs, a)
	}
	sort.Slice(addrs, func(i, j int) bool {
		return lessAddr(addrs[i], addrs[j])
	})
	leaves := make([]merkle.AccountLeaf, 0, len(addrs))
	for _, a := range addrs {
		bal, err := view.Balance(a)
		if err != nil {
			return [32]byte{}, err
		}
		nonce, err := view.Nonce(a)
		if err != nil {
			return [32]byte{}, err
		}
		leaves = append(leaves, merkle.AccountLeaf{Address: a, Balance: bal, Nonce: nonce})
	}
	return merkle.StateRoot(leaves), nil
}

func lessAddr(a, b address.Address) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

func headerAtHeight(view accountView, height uint64) (wireformat.BlockHeader, error) {
	hash, ok, err := view.BlockHashAtHeight(height)
	if err != nil {
		return wireformat.BlockHeader{}, err
	}
	if !ok {
		return wireformat.BlockHeader{}, errors.Wrap(ErrInvariantViolated, "missing block at height")
	}
	block, ok, err := view.Block(hash)
	if err != nil {
		return wireformat.BlockHeader{}, err
	}
	if !ok {
		return wireformat.BlockHeader{}, errors.Wrap(ErrInvariantViolated, "missing block body for indexed height")
	}
	return block.Header, nil
}

// medianTimePast returns the median of up to MedianTimeWindow header
// timestamps ending at tipHeight, inclusive.
func medianTimePast(view accountView, tipHeight uint64) (uint64, error) {
	windowSize := chaincfg.MedianTimeWindow
	timestamps := make([]uint64, 0, windowSize)
	for i := 0; i < windowSize; i++ {
		if int64(tipHeight)-int64(i) < 0 {
			break
		}
		h := tipHeight - uint64(i)
		header, err := headerAtHeight(view, h)
		if err != nil {
			return 0, err
		}
		timestamps = append(timestamps, header.Timestamp)
	}
	sort.Slice(timestamps, func(i, j int) bool { return timestamps[i] < timestamps[j] })
	return timestamps[len(timestamps)/2], nil
}

// revertBlock reverses applyBlock's state mutations for the block
// currently at height, in reverse order: re-credit senders, debit
// receivers, decrement nonces, decrement supply, remove indexes. The raw
// block body is left addressable by hash so it may be reapplied later.
func revertBlock(view accountView, height uint64) error {
	hash, ok, err := view.BlockHashAtHeight(height)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(ErrInvariantViolated, "no block at height to revert")
	}
	block, ok, err := view.Block(hash)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(ErrInvariantViolated, "block body missing for height being reverted")
	}

	for i := len(block.Transactions) - 1; i >= 0; i-- {
		tx := block.Transactions[i]
		txHash, err := tx.Hash()
		if err != nil {
			return err
		}
		if i == 0 {
			// Coinbase: debit recipient, decrement supply.
			recipientBalance, err := view.Balance(tx.To)
			if err != nil {
				return err
			}
			if err := view.SetBalance(tx.To, recipientBalance-tx.Amount); err != nil {
				return err
			}
			supply, err := view.Supply()
			if err != nil {
				return err
			}
			subsidy, err := view.MintedSubsidy(height)
			if err != nil {
				return err
			}
			if err := view.SetSupply(supply - subsidy); err != nil {
				return err
			}
			if err := view.DeleteMintedSubsidy(height); err != nil {
				return err
			}
		} else {
			senderBalance, err := view.Balance(tx.From)
			if err != nil {
				return err
			}
			if err := view.SetBalance(tx.From, senderBalance+tx.Amount+tx.Fee); err != nil {
				return err
			}
			receiverBalance, err := view.Balance(tx.To)
			if err != nil {
				return err
			}
			if err := view.SetBalance(tx.To, receiverBalance-tx.Amount); err != nil {
				return err
			}
			senderNonce, err := view.Nonce(tx.From)
			if err != nil {
				return err
			}
			if err := view.SetNonce(tx.From, senderNonce-1); err != nil {
				return err
			}
		}
		if err := view.DeleteTxIndex(txHash); err != nil {
			return err
		}
		if i > 0 {
			if err := view.RemoveAddrTx(tx.From, txHash); err != nil {
				return err
			}
		}
		if err := view.RemoveAddrTx(tx.To, txHash); err != nil {
			return err
		}
	}

	if err := view.DeleteBlockAtHeight(height); err != nil {
		return err
	}

	if height == 0 {
		return view.SetTip([32]byte{}, 0)
	}
	parentHash, ok, err := view.BlockHashAtHeight(height - 1)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrap(ErrInvariantViolated, "missing parent block while reverting")
	}
	return view.SetTip(parentHash, height-1)
}
