package chainstore

import "github.com/pkg/errors"

// Validation and resource errors from spec.md §7 that originate in the
// chain store.
var (
	ErrInvalidChainID        = errors.New("transaction chain id does not match local network")
	ErrInvalidProofOfWork    = errors.New("block does not meet required difficulty")
	ErrInvalidPreviousHash   = errors.New("previous hash does not match chain tip")
	ErrInvalidCoinbase       = errors.New("invalid coinbase transaction")
	ErrInvalidCoinbaseAmount = errors.New("coinbase amount does not match subsidy plus fees")
	ErrNonceMismatch         = errors.New("transaction nonce does not match sender's account nonce")
	ErrInsufficientBalance   = errors.New("sender balance insufficient for amount plus fee")
	ErrStateRootMismatch     = errors.New("state root does not match computed account state")
	ErrCheckpointMismatch    = errors.New("block hash disagrees with hardcoded checkpoint")
	ErrReorgTooDeep          = errors.New("reorganization exceeds maximum depth")
	ErrStorageFailure        = errors.New("storage failure")
	ErrInvariantViolated     = errors.New("internal invariant violated")
)
