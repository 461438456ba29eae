package psi

import (
	"context"
	"fmt"
	"math/rand/v2"
	"runtime"

	"golang.org/x/sync/errgroup"

	"github.com/privcats/labeled-psi/internal/fhe"
	"github.com/privcats/labeled-psi/internal/hashing"
	"github.com/privcats/labeled-psi/internal/polynomial"
	"github.com/privcats/labeled-psi/internal/window"
)

// Sender performs the sender side of a protocol run: complete-hash S,
// build per-partition roots/label polynomials, and homomorphically
// evaluate them against the receiver's windowed powers.
type Sender struct {
	params *Params

	// DebugLevel, if set, is called after every term is added into a
	// partition's running evaluation and after each masking step, with a
	// label identifying the step and the ciphertext whose level is worth
	// inspecting. It is the explicit, non-global replacement for the
	// source's debug key-leak global (spec.md §9): it never touches the
	// receiver's secret key, and it is nil (a no-op) unless the caller
	// opts in.
	DebugLevel func(label string, ct fhe.Ciphertext)
}

// NewSender binds a Sender to params. Params.GenerateSeeds or
// Params.SetSeeds must already have been called.
func NewSender(params *Params) *Sender {
	_ = params.Seeds()
	return &Sender{params: params}
}

// ComputeMatches computes the sender's match ciphertexts for inputs
// (optionally with labels), against the receiver's public key, relin
// keys and windowed powers. The result has PartitionCount() ciphertexts
// in unlabeled mode, or 2*PartitionCount() in labeled mode.
func (s *Sender) ComputeMatches(ctx context.Context, rnd *rand.Rand, inputs []uint64, labels []uint64, pk fhe.PublicKey, rk fhe.RelinKeys, receiverWindows []fhe.Ciphertext) ([]fhe.Ciphertext, error) {
	if len(inputs) != s.params.SenderSize {
		panic(fmt.Sprintf("psi: Sender.ComputeMatches requires %d inputs, got %d", s.params.SenderSize, len(inputs)))
	}
	labeled := labels != nil
	if labeled && len(labels) != len(inputs) {
		panic("psi: Sender.ComputeMatches requires len(labels) == len(inputs)")
	}

	p := s.params
	m := p.bucketCountLog
	capacity := p.bucketCapacity
	partitionCount := p.partitionCount
	plainModulus := p.plainModulus

	buckets, err := hashing.CompleteHash(rnd, inputs, m, capacity, p.Seeds())
	if err != nil {
		return nil, err
	}

	maxPartitionSize := ceilDiv(capacity, partitionCount)
	bigPartitionCount := capacity - (maxPartitionSize-1)*partitionCount

	backend := p.Backend()
	fctx := p.Context()
	evaluator := backend.NewEvaluator(fctx, rk)

	w := window.New(p.windowSize, uint(maxPartitionSize))
	powers := w.ComputePowers(receiverWindows, maxPartitionSize+1, evaluator)

	resultLen := partitionCount
	if labeled {
		resultLen = 2 * partitionCount
	}
	result := make([]fhe.Ciphertext, resultLen)

	bucketCount := int(uint64(1) << m)

	// Each partition needs its own source: *rand.Rand is not safe for
	// concurrent use, so fork one per partition from rnd before any
	// goroutine starts, while rnd is still only touched sequentially.
	partitionRands := make([]*rand.Rand, partitionCount)
	for i := range partitionRands {
		partitionRands[i] = rand.New(rand.NewPCG(rnd.Uint64(), rnd.Uint64()))
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for partition := 0; partition < partitionCount; partition++ {
		partition := partition
		g.Go(func() error {
			select {
			case <-gctx.Done():
				return gctx.Err()
			default:
			}

			partitionSize, partitionStart := partitionBounds(partition, maxPartitionSize, bigPartitionCount)

			return s.computePartition(partitionCtx{
				partition:      partition,
				partitionSize:  partitionSize,
				partitionStart: partitionStart,
				bucketCount:    bucketCount,
				capacity:       capacity,
				plainModulus:   plainModulus,
				inputs:         inputs,
				labels:         labels,
				labeled:        labeled,
				buckets:        buckets,
				powers:         powers,
				rnd:            partitionRands[partition],
				backend:        backend,
				fctx:           fctx,
				pk:             pk,
				rk:             rk,
				result:         result,
			})
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	return result, nil
}

// partitionBounds returns the number of rows in the given partition and
// the row offset it starts at, matching the source's uneven packing: the
// first bigPartitionCount partitions get maxPartitionSize rows, the rest
// get one fewer.
func partitionBounds(partition, maxPartitionSize, bigPartitionCount int) (size, start int) {
	if partition < bigPartitionCount {
		return maxPartitionSize, maxPartitionSize * partition
	}
	return maxPartitionSize - 1, maxPartitionSize*partition - (partition - bigPartitionCount)
}

// partitionCtx bundles everything a single partition's computation needs;
// it exists so each errgroup goroutine captures one value instead of a
// dozen loop variables.
type partitionCtx struct {
	partition      int
	partitionSize  int
	partitionStart int
	bucketCount    int
	capacity       int
	plainModulus   uint64
	inputs         []uint64
	labels         []uint64
	labeled        bool
	buckets        []hashing.Slot
	powers         []fhe.Ciphertext
	rnd            *rand.Rand
	backend        fhe.Backend
	fctx           fhe.Context
	pk             fhe.PublicKey
	rk             fhe.RelinKeys
	result         []fhe.Ciphertext
}

func (s *Sender) computePartition(c partitionCtx) error {
	encoder := c.backend.NewEncoder(c.fctx)
	encryptor := c.backend.NewEncryptor(c.fctx, c.pk)
	evaluator := c.backend.NewEvaluator(c.fctx, c.rk)

	fCoeffs := make([][]uint64, c.bucketCount)
	var gCoeffs [][]uint64
	if c.labeled {
		gCoeffs = make([][]uint64, c.bucketCount)
	}

	currentBucket := make([]uint64, c.partitionSize)
	for j := 0; j < c.bucketCount; j++ {
		for k := 0; k < c.partitionSize; k++ {
			slotIndex := j*c.capacity + c.partitionStart + k
			currentBucket[k] = s.params.encodeBucketElement(c.inputs, c.buckets[slotIndex], false)
		}

		fCoeffs[j] = polynomial.RootsPoly(currentBucket, c.plainModulus)

		if c.labeled {
			xs := make([]uint64, 0, c.partitionSize)
			ys := make([]uint64, 0, c.partitionSize)
			for k := 0; k < c.partitionSize; k++ {
				slotIndex := j*c.capacity + c.partitionStart + k
				slot := c.buckets[slotIndex]
				if !slot.Empty() {
					xs = append(xs, currentBucket[k])
					ys = append(ys, c.labels[slot.InputIndex])
				}
			}
			gCoeffs[j] = polynomial.InterpPoly(xs, ys, c.plainModulus)
		}
	}

	var fEvaluated, gEvaluated fhe.Ciphertext

	for j := 0; j <= c.partitionSize; j++ {
		fTerm := make([]uint64, c.bucketCount)
		fNonZero := false
		for k := 0; k < c.bucketCount; k++ {
			if j < len(fCoeffs[k]) {
				fTerm[k] = fCoeffs[k][j]
			}
			if fTerm[k] != 0 {
				fNonZero = true
			}
		}

		var gTerm []uint64
		gNonZero := false
		if c.labeled {
			gTerm = make([]uint64, c.bucketCount)
			for k := 0; k < c.bucketCount; k++ {
				if j < len(gCoeffs[k]) {
					gTerm[k] = gCoeffs[k][j]
				}
				if gTerm[k] != 0 {
					gNonZero = true
				}
			}
		}

		if j == 0 {
			fEvaluated = encryptor.Encrypt(encoder.Encode(fTerm))
			if c.labeled {
				gEvaluated = encryptor.Encrypt(encoder.Encode(gTerm))
			}
		} else {
			// multiply_plain disallows an all-zero plaintext, so skip
			// terms that vanish identically across every bucket.
			if fNonZero {
				term := evaluator.MulPlain(c.powers[j], encoder.Encode(fTerm))
				fEvaluated = evaluator.Add(fEvaluated, term)
			}
			if c.labeled && gNonZero {
				term := evaluator.MulPlain(c.powers[j], encoder.Encode(gTerm))
				gEvaluated = evaluator.Add(gEvaluated, term)
			}
		}

		s.debug(fmt.Sprintf("partition %d term %d", c.partition, j), fEvaluated)
	}

	fEvaluated = s.maskWithRandomMask(fEvaluated, encoder, evaluator, c.plainModulus, c.rnd)
	s.debug(fmt.Sprintf("partition %d after mask", c.partition), fEvaluated)

	if c.labeled {
		c.result[2*c.partition] = fEvaluated

		fEvaluated = s.maskWithRandomMask(fEvaluated, encoder, evaluator, c.plainModulus, c.rnd)
		s.debug(fmt.Sprintf("partition %d after second mask", c.partition), fEvaluated)

		c.result[2*c.partition+1] = evaluator.Add(fEvaluated, gEvaluated)
	} else {
		c.result[c.partition] = fEvaluated
	}

	return nil
}

// maskWithRandomMask multiplies ct by a freshly drawn plaintext vector
// whose every slot is a uniform nonzero field element, randomizing
// non-match slots while preserving zeros at match positions.
func (s *Sender) maskWithRandomMask(ct fhe.Ciphertext, encoder fhe.Encoder, evaluator fhe.Evaluator, plainModulus uint64, rnd *rand.Rand) fhe.Ciphertext {
	slotCount := s.params.Context().SlotCount()
	mask := make([]uint64, slotCount)
	for i := range mask {
		mask[i] = rnd.Uint64N(plainModulus-1) + 1
	}
	return evaluator.MulPlain(ct, encoder.Encode(mask))
}

func (s *Sender) debug(label string, ct fhe.Ciphertext) {
	if s.DebugLevel != nil {
		s.DebugLevel(label, ct)
	}
}
