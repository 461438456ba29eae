// Package psi implements the labeled private-set-intersection protocol:
// parameter derivation, the receiver's cuckoo-hash encryption step, the
// sender's batched polynomial-evaluation match computation, and the
// receiver's decryption/decode step.
package psi

import (
	"fmt"
	"math/rand/v2"

	"github.com/privcats/labeled-psi/internal/fhe"
	"github.com/privcats/labeled-psi/internal/hashing"
)

// HashFunctions is the fixed number of cuckoo hash functions used by both
// parties, H in the protocol.
const HashFunctions = hashing.HashFunctions

// Params holds the full set of protocol parameters: ring degree and
// plaintext modulus (bound to an fhe.Context), bucket-table shape,
// sender partitioning, the windowing parameter, and the per-run hash
// seeds. A Params is created once per session and becomes immutable the
// moment GenerateSeeds or SetSeeds succeeds.
type Params struct {
	ReceiverSize int
	SenderSize   int
	InputBits    int

	backend fhe.Backend
	ctx     fhe.Context

	plainModulus   uint64
	bucketCountLog uint
	bucketCapacity int
	partitionCount int
	windowSize     uint

	seeds []uint64
}

// NewParams derives a consistent parameter set for a session between a
// receiver with ReceiverSize elements and a sender with SenderSize
// elements, each InputBits wide, over a ring of degree 2^logN. partitions
// controls how many independent batches the sender splits its bucket
// capacity into (§5's parallelism knob); windowSize is the CLR17 window
// parameter (0 disables windowing).
func NewParams(backend fhe.Backend, receiverSize, senderSize, inputBits, logN, partitions int, windowSize uint) (*Params, error) {
	if logN != 13 && logN != 14 {
		return nil, fmt.Errorf("%w: ring degree 2^%d not supported, want 2^13 or 2^14", ErrParameterInfeasible, logN)
	}

	// The bucket-count exponent m coincides with logN exactly: a receiver
	// bucket table of 2^m slots must fit in one batched ciphertext of N
	// slots, and both supported ring degrees are chosen so that 2^m = N.
	bucketCountLog := uint(logN)
	bucketCount := uint64(1) << bucketCountLog

	if uint64(receiverSize) > bucketCount {
		return nil, fmt.Errorf("%w: receiver size %d exceeds bucket count 2^%d", ErrParameterInfeasible, receiverSize, bucketCountLog)
	}

	plainModulus, err := choosePlainModulus(uint(inputBits), bucketCountLog)
	if err != nil {
		return nil, err
	}

	capacity, err := senderBucketCapacity(bucketCountLog, senderSize)
	if err != nil {
		return nil, err
	}

	if partitions <= 0 || partitions > capacity {
		return nil, fmt.Errorf("%w: partition count %d must be in [1, sender bucket capacity %d]", ErrParameterInfeasible, partitions, capacity)
	}

	ctx, err := backend.NewContext(fhe.Params{LogN: logN, PlaintextModulus: plainModulus})
	if err != nil {
		return nil, fmt.Errorf("psi: deriving fhe context: %w", err)
	}

	return &Params{
		ReceiverSize:   receiverSize,
		SenderSize:     senderSize,
		InputBits:      inputBits,
		backend:        backend,
		ctx:            ctx,
		plainModulus:   plainModulus,
		bucketCountLog: bucketCountLog,
		bucketCapacity: capacity,
		partitionCount: partitions,
		windowSize:     windowSize,
	}, nil
}

// choosePlainModulus picks p from the three-entry table keyed on
// inputBits - bucketCountLog + 2, matching the original's
// PSIParams::plain_modulus table exactly.
func choosePlainModulus(inputBits, bucketCountLog uint) (uint64, error) {
	var minLogModulus uint
	if inputBits+2 >= bucketCountLog {
		minLogModulus = inputBits - bucketCountLog + 2
	}

	switch {
	case minLogModulus <= 16:
		return (8192 * 2 * 4) + 1, nil // 2^16 + 1
	case minLogModulus <= 23:
		return 8519681, nil // 2^23 + 2^17 + 1
	case minLogModulus <= 35:
		return 34359771137, nil // 2^35 + 2^15 + 1
	default:
		return 0, fmt.Errorf("%w: no plaintext prime covers input width %d at bucket-count-log %d", ErrParameterInfeasible, minLogModulus, bucketCountLog)
	}
}

// senderBucketCapacity reports [CLR17] Table 1's sender bucket capacity
// C for the given (bucket-count-log, sender set size).
func senderBucketCapacity(bucketCountLog uint, senderSize int) (int, error) {
	n := uint64(senderSize)

	switch bucketCountLog {
	case 13:
		switch {
		case n <= 1<<8:
			return 9, nil
		case n <= 1<<12:
			return 20, nil
		case n <= 1<<16:
			return 74, nil
		case n <= 1<<20:
			return 556, nil
		case n <= 1<<24:
			return 6798, nil
		case n <= 1<<28:
			return 100890, nil
		}
	case 14:
		switch {
		case n <= 1<<8:
			return 8, nil
		case n <= 1<<12:
			return 16, nil
		case n <= 1<<16:
			return 51, nil
		case n <= 1<<20:
			return 318, nil
		case n <= 1<<24:
			return 3543, nil
		case n <= 1<<28:
			return 51002, nil
		}
	}

	return 0, fmt.Errorf("%w: sender size %d exceeds the supported capacity table at bucket-count-log %d", ErrParameterInfeasible, senderSize, bucketCountLog)
}

// GenerateSeeds draws HashFunctions independent uniform 64-bit seeds.
// Exactly one of GenerateSeeds or SetSeeds must be called before the
// params are used by a Receiver or Sender; this is the client-side entry
// point (the client generates seeds and sends them to the server).
func (p *Params) GenerateSeeds(rnd *rand.Rand) {
	seeds := make([]uint64, HashFunctions)
	for i := range seeds {
		seeds[i] = rnd.Uint64()
	}
	p.seeds = seeds
}

// SetSeeds installs seeds received over the wire from the peer that
// called GenerateSeeds. This is the server-side entry point.
func (p *Params) SetSeeds(seeds []uint64) error {
	if len(seeds) != HashFunctions {
		return fmt.Errorf("psi: SetSeeds requires exactly %d seeds, got %d", HashFunctions, len(seeds))
	}
	p.seeds = append([]uint64(nil), seeds...)
	return nil
}

// Seeds returns the session's hash seeds. It panics if neither
// GenerateSeeds nor SetSeeds has been called yet: calling it earlier is a
// programmer error, not a recoverable failure.
func (p *Params) Seeds() []uint64 {
	if p.seeds == nil {
		panic("psi: Params.Seeds called before GenerateSeeds or SetSeeds")
	}
	return p.seeds
}

// PlainModulus returns the plaintext prime p.
func (p *Params) PlainModulus() uint64 { return p.plainModulus }

// BucketCountLog returns m, the receiver/sender bucket-table exponent.
func (p *Params) BucketCountLog() uint { return p.bucketCountLog }

// BucketCapacity returns C, the sender's per-row slot capacity.
func (p *Params) BucketCapacity() int { return p.bucketCapacity }

// PartitionCount returns P, the number of partitions the sender splits
// its bucket capacity into.
func (p *Params) PartitionCount() int { return p.partitionCount }

// WindowSize returns w, the CLR17 windowing parameter.
func (p *Params) WindowSize() uint { return p.windowSize }

// Context returns the bound fhe.Context.
func (p *Params) Context() fhe.Context { return p.ctx }

// Backend returns the fhe.Backend this Params was constructed with.
func (p *Params) Backend() fhe.Backend { return p.backend }

// encodeBucketElement derives the field element representing a bucket
// slot, per the protocol's normative bucket-element encoding (§3).
func (p *Params) encodeBucketElement(inputs []uint64, slot hashing.Slot, isReceiver bool) uint64 {
	return hashing.EncodeBucketElement(inputs, slot, p.bucketCountLog, isReceiver)
}
