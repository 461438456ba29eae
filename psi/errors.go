package psi

import (
	"errors"

	"github.com/privcats/labeled-psi/internal/hashing"
)

// ErrParameterInfeasible is returned by NewParams when the requested
// (receiver size, sender size, input width, ring degree) combination has
// no consistent bucket count / plaintext modulus.
var ErrParameterInfeasible = errors.New("psi: parameters infeasible for requested sizes")

// ErrDeduplicationHole is returned by Receiver.Encrypt when the input set
// contains a repeated element: the protocol treats R as a set, and a
// duplicate would silently occupy two cuckoo slots that decode to the
// same original value.
var ErrDeduplicationHole = errors.New("psi: receiver input set contains a duplicate element")

// ErrCuckooFailure and ErrRowOverflow are re-exported so callers can use
// errors.Is against the psi package without reaching into internal/hashing.
var (
	ErrCuckooFailure = hashing.ErrCuckooFailure
	ErrRowOverflow   = hashing.ErrRowOverflow
)
