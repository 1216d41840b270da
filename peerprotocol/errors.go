package peerprotocol

import "github.com/pkg/errors"

// Errors from spec.md §4.6/§7.
var (
	ErrMessageTooLarge   = errors.New("message exceeds MAX_WIRE_BYTES")
	ErrUnknownMessage    = errors.New("unknown message command")
	ErrMalformedMessage  = errors.New("malformed message payload")
	ErrRateLimitExceeded = errors.New("peer exceeded its rate limit for this message type")
	ErrPeerBanned        = errors.New("peer is currently banned")
	ErrTooManyBlocks     = errors.New("GetBlocks max_blocks exceeds MAX_BLOCKS_PER_REQUEST")
)
