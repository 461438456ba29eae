package hashing

import (
	"errors"
	"math/bits"
	"math/rand/v2"
)

// ErrCuckooFailure is returned when the receiver's input set could not be
// placed into the cuckoo table within the eviction budget.
var ErrCuckooFailure = errors.New("hashing: cuckoo insertion failed to terminate")

// evictionBudget returns the hard cap on eviction chains, 500*log2(2^m) as
// required by the specification (the original prototype has no such cap,
// a TODO that this implementation closes).
func evictionBudget(m uint) int {
	return 500 * int(m)
}

// CuckooInsert places each of the len(inputs) elements into a table of
// 2^m slots using H independently-seeded permutation hash functions,
// evicting and rehashing on collision. It returns the populated table, or
// ErrCuckooFailure if some input could not be placed within the eviction
// budget.
//
// Each input ends up in exactly one slot; each slot holds at most one
// input. seeds must have exactly HashFunctions entries.
func CuckooInsert(rnd *rand.Rand, inputs []uint64, m uint, seeds []uint64) ([]Slot, error) {
	if len(seeds) != HashFunctions {
		panic("hashing: CuckooInsert requires exactly HashFunctions seeds")
	}
	if m >= 64 {
		panic("hashing: bucket-count exponent too large")
	}

	table := make([]Slot, uint64(1)<<m)
	for i := range table {
		table[i] = EmptySlot
	}

	budget := evictionBudget(m)

	for i := range inputs {
		current := Slot{InputIndex: uint32(i), HashIndex: uint32(rnd.IntN(HashFunctions))}

		for step := 0; ; step++ {
			if step > budget {
				return nil, ErrCuckooFailure
			}

			loc := Loc(seeds[current.HashIndex], m, inputs[current.InputIndex])
			table[loc], current = current, table[loc]

			if current.Empty() {
				break
			}

			current.HashIndex = uint32(maskIndex(rnd, int(current.HashIndex)))
		}
	}

	return table, nil
}

// BucketCountLog returns the smallest m such that 2^m >= count, computed as
// bits.Len64(count-1); it returns 0 for a count of 0 or 1.
func BucketCountLog(count uint64) uint {
	if count == 0 {
		return 0
	}
	return uint(bits.Len64(count - 1))
}
