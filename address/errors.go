package address

import "errors"

var errInvalidPublicKeySize = errors.New("address: public key must be exactly 32 bytes")
