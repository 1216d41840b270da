package wireformat

import (
	"bytes"
	"testing"

	"github.com/opensyria/pownode/chaincfg"
	"github.com/opensyria/pownode/keys"
)

func newKeyPair(t *testing.T) *keys.KeyPair {
	t.Helper()
	kp, err := keys.Generate()
	if err != nil {
		t.Fatalf("keys.Generate: %v", err)
	}
	return kp
}

func TestTransactionSerializeRoundTrip(t *testing.T) {
	kp := newKeyPair(t)
	to := newKeyPair(t).Address()
	tx := &Transaction{
		ChainID: chaincfg.ChainIDMainnet,
		From:    kp.Address(),
		To:      to,
		Amount:  1234,
		Fee:     chaincfg.MinFee,
		Nonce:   7,
		Data:    []byte("memo"),
	}
	tx.Sign(kp)

	encoded, err := tx.Serialize()
	if err != nil {
		t.Fatalf("Serialize: %v", err)
	}
	decoded, err := DeserializeTransaction(bytes.NewReader(encoded))
	if err != nil {
		t.Fatalf("DeserializeTransaction: %v", err)
	}

	if decoded.ChainID != tx.ChainID || decoded.From != tx.From || decoded.To != tx.To ||
		decoded.Amount != tx.Amount || decoded.Fee != tx.Fee || decoded.Nonce != tx.Nonce ||
		decoded.Signature != tx.Signature || !bytes.Equal(decoded.Data, tx.Data) {
		t.Fatalf("round-tripped transaction does not match original:\ngot  %+v\nwant %+v", decoded, tx)
	}
	if !decoded.Verify() {
		t.Fatalf("round-tripped transaction fails signature verification")
	}
}

func TestTransactionSignAndVerify(t *testing.T) {
	kp := newKeyPair(t)
	other := newKeyPair(t)
	tx := &Transaction{ChainID: chaincfg.ChainIDMainnet, From: kp.Address(), To: other.Address(), Amount: 1, Fee: chaincfg.MinFee}
	tx.Sign(kp)
	if !tx.Verify() {
		t.Fatalf("Verify() = false for a correctly signed transaction")
	}

	tx.Amount = 2 // mutate after signing
	if tx.Verify() {
		t.Fatalf("Verify() = true after the signed fields changed, want false")
	}
}

func TestCoinbaseIsUnconditionallyVerified(t *testing.T) {
	tx := &Transaction{Amount: 50}
	if !tx.IsCoinbase() {
		t.Fatalf("IsCoinbase() = false for a zero-address sender")
	}
	if !tx.Verify() {
		t.Fatalf("Verify() = false for an unsigned coinbase, want true")
	}
}

func TestValidateFeeRejectsBelowMinimum(t *testing.T) {
	kp := newKeyPair(t)
	tx := &Transaction{From: kp.Address(), To: newKeyPair(t).Address(), Amount: 1, Fee: chaincfg.MinFee - 1}
	if err := tx.ValidateFee(); err == nil {
		t.Fatalf("ValidateFee() succeeded for a below-minimum fee, want error")
	}
}

func TestValidateFeeRejectsNonZeroCoinbaseFee(t *testing.T) {
	tx := &Transaction{Amount: 50, Fee: 1}
	if err := tx.ValidateFee(); err == nil {
		t.Fatalf("ValidateFee() succeeded for a coinbase with a non-zero fee, want error")
	}
}

func TestValidateSizeRejectsOversizedData(t *testing.T) {
	tx := &Transaction{
		From: newKeyPair(t).Address(),
		To:   newKeyPair(t).Address(),
		Data: make([]byte, chaincfg.MaxTxBytes+1),
	}
	if err := tx.ValidateSize(); err == nil {
		t.Fatalf("ValidateSize() succeeded for an oversized transaction, want error")
	}
}

func TestSigningHashChangesWithData(t *testing.T) {
	base := &Transaction{ChainID: chaincfg.ChainIDMainnet, From: newKeyPair(t).Address(), To: newKeyPair(t).Address(), Amount: 1}
	withData := *base
	withData.Data = []byte("x")
	if base.SigningHash() == withData.SigningHash() {
		t.Fatalf("SigningHash() did not change when Data was added")
	}
}

func TestFeePerByteScalesWithFee(t *testing.T) {
	kp := newKeyPair(t)
	low := &Transaction{From: kp.Address(), To: newKeyPair(t).Address(), Amount: 1, Fee: chaincfg.MinFee}
	high := &Transaction{From: kp.Address(), To: low.To, Amount: 1, Fee: chaincfg.MinFee * 10}

	lowRate, ok := low.FeePerByte()
	if !ok {
		t.Fatalf("FeePerByte(low) failed")
	}
	highRate, ok := high.FeePerByte()
	if !ok {
		t.Fatalf("FeePerByte(high) failed")
	}
	if highRate <= lowRate {
		t.Fatalf("FeePerByte(high) = %f, want greater than FeePerByte(low) = %f", highRate, lowRate)
	}
}
