package wireformat

import "github.com/pkg/errors"

// Validation errors from spec.md §4.1/§7 that originate at the data-model
// layer, before any chain-state context is available.
var (
	ErrInvalidSignature      = errors.New("invalid signature")
	ErrOversizedTransaction  = errors.New("transaction exceeds size bound")
	ErrFeeTooLow             = errors.New("fee below minimum")
	ErrRewardOverflow        = errors.New("coinbase reward overflow")
	ErrInvalidMerkleRoot     = errors.New("merkle root mismatch")
	ErrTimestampTooFarFuture = errors.New("timestamp too far in the future")
	ErrTimestampDecreased    = errors.New("timestamp did not increase")
)
