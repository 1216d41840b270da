package mempool

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/opensyria/pownode/address"
	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/keys"
	"github.com/opensyria/pownode/wireformat"
)

// fakeAccounts is a minimal in-memory AccountReader used to admit
// transactions against a controlled balance/nonce view, without standing
// up a real chain store.
type fakeAccounts struct {
	balances map[address.Address]uint64
	nonces   map[address.Address]uint64
}

func newFakeAccounts() *fakeAccounts {
	return &fakeAccounts{
		balances: make(map[address.Address]uint64),
		nonces:   make(map[address.Address]uint64),
	}
}

func (f *fakeAccounts) GetAddressBalance(addr address.Address) (uint64, error) {
	return f.balances[addr], nil
}

func (f *fakeAccounts) GetAddressNonce(addr address.Address) (uint64, error) {
	return f.nonces[addr], nil
}

func signedTx(t *testing.T, kp *keys.KeyPair, to address.Address, amount, fee, nonce uint64) *wireformat.Transaction {
	t.Helper()
	tx := &wireformat.Transaction{
		ChainID: chaincfg.ChainIDTestnet,
		From:    kp.Address(),
		To:      to,
		Amount:  amount,
		Fee:     fee,
		Nonce:   nonce,
	}
	tx.Sign(kp)
	return tx
}

func newTestPool(t *testing.T) (*Pool, *fakeAccounts, *keys.KeyPair) {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	accounts := newFakeAccounts()
	accounts.balances[kp.Address()] = 1_000_000
	pool := New(DefaultConfig, chaincfg.TestnetParams, accounts)
	return pool, accounts, kp
}

func TestAdmitValidTransaction(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1
	tx := signedTx(t, kp, to, 1000, chaincfg.MinFee, 0)

	if err := pool.Admit(tx); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	if pool.Len() != 1 {
		t.Fatalf("Len() = %d, want 1", pool.Len())
	}
	hash, err := tx.Hash()
	if err != nil {
		t.Fatalf("Hash: %v", err)
	}
	if !pool.Has(hash) {
		t.Fatal("Has() = false for just-admitted transaction")
	}
}

func TestAdmitRejectsDuplicateHash(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1
	tx := signedTx(t, kp, to, 1000, chaincfg.MinFee, 0)

	if err := pool.Admit(tx); err != nil {
		t.Fatalf("first Admit: %v", err)
	}
	if err := pool.Admit(tx); err != ErrAlreadyInPool {
		t.Fatalf("second Admit error = %v, want ErrAlreadyInPool", err)
	}
}

func TestAdmitRejectsWrongChainID(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1
	tx := &wireformat.Transaction{
		ChainID: chaincfg.ChainIDMainnet,
		From:    kp.Address(),
		To:      to,
		Amount:  1000,
		Fee:     chaincfg.MinFee,
		Nonce:   0,
	}
	tx.Sign(kp)
	if err := pool.Admit(tx); err != ErrWrongChainID {
		t.Fatalf("Admit error = %v, want ErrWrongChainID", err)
	}
}

func TestAdmitRejectsStaleNonce(t *testing.T) {
	pool, accounts, kp := newTestPool(t)
	accounts.nonces[kp.Address()] = 5
	var to address.Address
	to[0] = 1
	tx := signedTx(t, kp, to, 1000, chaincfg.MinFee, 4)
	if err := pool.Admit(tx); err != ErrNonceStale {
		t.Fatalf("Admit error = %v, want ErrNonceStale", err)
	}
}

func TestAdmitRejectsNonceGapTooLarge(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1
	tx := signedTx(t, kp, to, 1000, chaincfg.MinFee, chaincfg.MaxNonceGap+1)
	if err := pool.Admit(tx); err != ErrNonceGapTooLarge {
		t.Fatalf("Admit error = %v, want ErrNonceGapTooLarge", err)
	}
}

func TestAdmitRejectsInsufficientBalance(t *testing.T) {
	pool, accounts, kp := newTestPool(t)
	accounts.balances[kp.Address()] = 500
	var to address.Address
	to[0] = 1
	tx := signedTx(t, kp, to, 1000, chaincfg.MinFee, 0)
	if err := pool.Admit(tx); err != ErrInsufficientBalance {
		t.Fatalf("Admit error = %v, want ErrInsufficientBalance", err)
	}
}

func TestAdmitReplacesWithHigherFee(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1
	low := signedTx(t, kp, to, 1000, chaincfg.MinFee, 0)
	if err := pool.Admit(low); err != nil {
		t.Fatalf("Admit(low): %v", err)
	}

	high := signedTx(t, kp, to, 1000, chaincfg.MinFee*3, 0)
	if err := pool.Admit(high); err != nil {
		t.Fatalf("Admit(high): %v", err)
	}
	if pool.Len() != 1 {
		t.Fatalf("Len() = %d, want 1 after replacement", pool.Len())
	}
	lowHash, _ := low.Hash()
	if pool.Has(lowHash) {
		t.Fatal("replaced transaction still present")
	}
}

func TestAdmitRejectsReplacementBelowMargin(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1
	original := signedTx(t, kp, to, 1000, 1000, 0)
	if err := pool.Admit(original); err != nil {
		t.Fatalf("Admit(original): %v", err)
	}
	// 5% higher, below the 10% margin.
	replacement := signedTx(t, kp, to, 1000, 1050, 0)
	if err := pool.Admit(replacement); err != ErrReplacementFeeTooLow {
		t.Fatalf("Admit(replacement) error = %v, want ErrReplacementFeeTooLow", err)
	}
}

func TestSelectOrdersByFeePerByteRespectingNonceOrder(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1

	// nonce 0 has a low fee, nonce 1 a high fee; nonce 1 cannot be
	// selected ahead of nonce 0 despite its higher fee-per-byte.
	txLow := signedTx(t, kp, to, 100, chaincfg.MinFee, 0)
	txHigh := signedTx(t, kp, to, 100, chaincfg.MinFee*10, 1)
	if err := pool.Admit(txLow); err != nil {
		t.Fatalf("Admit(txLow): %v", err)
	}
	if err := pool.Admit(txHigh); err != nil {
		t.Fatalf("Admit(txHigh): %v", err)
	}

	selected := pool.Select(1 << 20)
	if len(selected) != 2 {
		t.Fatalf("Select() returned %d transactions, want 2", len(selected))
	}
	if selected[0].Nonce != 0 || selected[1].Nonce != 1 {
		t.Fatalf("Select() order = [%d %d], want [0 1]\n%s", selected[0].Nonce, selected[1].Nonce, spew.Sdump(selected))
	}
}

func TestSelectPicksHigherFeePerByteAcrossSenders(t *testing.T) {
	pool, accounts, kp1 := newTestPool(t)
	kp2, err := keys.Generate()
	if err != nil {
		t.Fatalf("Generate: %v", err)
	}
	accounts.balances[kp2.Address()] = 1_000_000
	var to address.Address
	to[0] = 1

	lowFee := signedTx(t, kp1, to, 100, chaincfg.MinFee, 0)
	highFee := signedTx(t, kp2, to, 100, chaincfg.MinFee*10, 0)
	if err := pool.Admit(lowFee); err != nil {
		t.Fatalf("Admit(lowFee): %v", err)
	}
	if err := pool.Admit(highFee); err != nil {
		t.Fatalf("Admit(highFee): %v", err)
	}

	selected := pool.Select(1 << 20)
	if len(selected) != 2 {
		t.Fatalf("Select() returned %d transactions, want 2", len(selected))
	}
	if selected[0].From != kp2.Address() {
		t.Fatalf("Select()[0].From = sender of lower-fee tx, want the higher-fee sender first")
	}
}

func TestRemoveDropsFromPool(t *testing.T) {
	pool, _, kp := newTestPool(t)
	var to address.Address
	to[0] = 1
	tx := signedTx(t, kp, to, 1000, chaincfg.MinFee, 0)
	if err := pool.Admit(tx); err != nil {
		t.Fatalf("Admit: %v", err)
	}
	hash, _ := tx.Hash()
	pool.Remove(hash)
	if pool.Has(hash) {
		t.Fatal("Has() = true after Remove()")
	}
	if pool.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", pool.Len())
	}
}

func TestAdmitEvictsLowestFeePerByteUnderByteCap(t *testing.T) {
	accounts := newFakeAccounts()
	senders := make([]*keys.KeyPair, 3)
	for i := range senders {
		kp, err := keys.Generate()
		if err != nil {
			t.Fatalf("Generate: %v", err)
		}
		senders[i] = kp
		accounts.balances[kp.Address()] = 1_000_000
	}
	var to address.Address
	to[0] = 1

	cfg := DefaultConfig
	txCheap := signedTx(t, senders[0], to, 100, chaincfg.MinFee, 0)
	serialized, err := txCheap.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	// Cap the pool so only one of the two low-fee transactions fits
	// alongside the high-fee one admitted afterward.
	cfg.MaxBytes = uint64(len(serialized)) * 2

	pool := New(cfg, chaincfg.TestnetParams, accounts)
	txCheap2 := signedTx(t, senders[1], to, 100, chaincfg.MinFee, 0)
	if err := pool.Admit(txCheap); err != nil {
		t.Fatalf("Admit(txCheap): %v", err)
	}
	if err := pool.Admit(txCheap2); err != nil {
		t.Fatalf("Admit(txCheap2): %v", err)
	}

	txExpensive := signedTx(t, senders[2], to, 100, chaincfg.MinFee*50, 0)
	if err := pool.Admit(txExpensive); err != nil {
		t.Fatalf("Admit(txExpensive): %v", err)
	}

	if pool.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 after eviction", pool.Len())
	}
	expensiveHash, _ := txExpensive.Hash()
	if !pool.Has(expensiveHash) {
		t.Fatal("high fee-per-byte transaction was evicted instead of a cheaper one")
	}
}
