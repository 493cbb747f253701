package escrow

import "github.com/iov-one/escrowfactory/errors"

var (
	// ErrInvalidParties is returned when the buyer, seller and arbiter of
	// an escrow are not distinct.
	ErrInvalidParties = errors.Register(1010, "invalid parties")

	// ErrNoArbiter is returned when a dispute is raised on an escrow
	// without an arbiter.
	ErrNoArbiter = errors.Register(1011, "no arbiter")
)
