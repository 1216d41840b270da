package miner

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/chainstore"
	"github.com/opensyria/pownode/keys"
	"github.com/opensyria/pownode/mempool"
	"github.com/opensyria/pownode/wireformat"
)

func openTestStore(t *testing.T) *chainstore.Store {
	t.Helper()
	dir := filepath.Join(t.TempDir(), "chainstore")
	s, err := chainstore.Open(dir, chaincfg.TestnetParams)
	if err != nil {
		t.Fatalf("chainstore.Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestMineOneAppendsBlockPayingMiner(t *testing.T) {
	store := openTestStore(t)
	pool := mempool.New(mempool.DefaultConfig, chaincfg.TestnetParams, store)
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}

	m := New(chaincfg.TestnetParams, store, pool, kp.Address(), nil)
	block, stats, err := m.mineOne(context.Background())
	if err != nil {
		t.Fatalf("mineOne: %v", err)
	}
	if stats.HashesTried == 0 {
		t.Fatalf("HashesTried = 0, want at least 1")
	}

	_, height, err := store.GetChainTip()
	if err != nil {
		t.Fatalf("GetChainTip: %v", err)
	}
	if height != 1 {
		t.Fatalf("height = %d, want 1 after mining one block", height)
	}
	balance, err := store.GetAddressBalance(kp.Address())
	if err != nil {
		t.Fatalf("GetAddressBalance: %v", err)
	}
	if want := chaincfg.BlockSubsidy(1); balance != want {
		t.Fatalf("miner balance = %d, want %d", balance, want)
	}
	if len(block.Transactions) != 1 {
		t.Fatalf("mined block has %d transactions, want 1 (coinbase only, empty mempool)", len(block.Transactions))
	}
}

func TestMineOneIncludesMempoolTransactionAndPaysFee(t *testing.T) {
	store := openTestStore(t)
	pool := mempool.New(mempool.DefaultConfig, chaincfg.TestnetParams, store)
	miner, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate(miner): %v", err)
	}

	m := New(chaincfg.TestnetParams, store, pool, miner.Address(), nil)
	if _, _, err := m.mineOne(context.Background()); err != nil {
		t.Fatalf("mineOne(1): %v", err)
	}

	receiver, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate(receiver): %v", err)
	}
	tx := &wireformat.Transaction{
		ChainID: chaincfg.ChainIDTestnet,
		From:    miner.Address(),
		To:      receiver.Address(),
		Amount:  100,
		Fee:     chaincfg.MinFee,
		Nonce:   0,
	}
	tx.Sign(miner)
	if err := pool.Admit(tx); err != nil {
		t.Fatalf("Admit: %v", err)
	}

	block2, _, err := m.mineOne(context.Background())
	if err != nil {
		t.Fatalf("mineOne(2): %v", err)
	}
	if len(block2.Transactions) != 2 {
		t.Fatalf("block2 has %d transactions, want 2", len(block2.Transactions))
	}
	wantCoinbase := chaincfg.BlockSubsidy(2) + tx.Fee
	if block2.Transactions[0].Amount != wantCoinbase {
		t.Fatalf("block2 coinbase amount = %d, want %d", block2.Transactions[0].Amount, wantCoinbase)
	}
	if pool.Has(mustHash(t, tx)) {
		t.Fatalf("transaction still in pool after being mined")
	}
}

func mustHash(t *testing.T, tx *wireformat.Transaction) [32]byte {
	t.Helper()
	h, err := tx.Hash()
	if err != nil {
		t.Fatalf("tx.Hash: %v", err)
	}
	return h
}
