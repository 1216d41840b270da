package mempool

import "github.com/pkg/errors"

// Admission errors from spec.md §4.4/§7.
var (
	ErrAlreadyInPool        = errors.New("transaction already in mempool")
	ErrWrongChainID         = errors.New("transaction chain id does not match local network")
	ErrInvalidSignature     = errors.New("transaction signature is invalid")
	ErrNonceStale           = errors.New("transaction nonce is below the sender's account nonce")
	ErrNonceGapTooLarge     = errors.New("transaction nonce is more than the maximum gap above the sender's account nonce")
	ErrInsufficientBalance  = errors.New("sender balance insufficient for amount plus fee")
	ErrReplacementFeeTooLow = errors.New("replacement transaction fee does not exceed the existing one by the required margin")
	ErrMempoolFull          = errors.New("mempool is full and transaction does not outbid the lowest fee-per-byte entry")
	ErrSerializationFailed  = errors.New("transaction fee-per-byte could not be computed")
)
