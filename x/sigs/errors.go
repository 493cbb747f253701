package sigs

import "github.com/iov-one/escrowfactory/errors"

// ErrInvalidSequence is returned when a signature carries a sequence value
// other than the one expected for its signer. A replayed transaction fails
// with this error.
var ErrInvalidSequence = errors.Register(120, "invalid sequence number")
