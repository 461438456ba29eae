package hashing

import (
	"errors"
	"math/rand/v2"
)

// ErrRowOverflow is returned when a sender-side bucket row cannot hold all
// the elements that hash into it under the configured capacity.
var ErrRowOverflow = errors.New("hashing: sender bucket row exceeds capacity")

// CompleteHash places every input under every one of the HashFunctions hash
// functions into a (2^m x capacity) table, arranged row-major: the j-th
// slot of row i lives at table[i*capacity+j]. It fails with ErrRowOverflow
// if any row would need more than capacity slots.
//
// After every input is placed, each row is independently shuffled with
// Fisher-Yates so the position of occupied slots within a row carries no
// information about row occupancy across partition boundaries.
func CompleteHash(rnd *rand.Rand, inputs []uint64, m uint, capacity int, seeds []uint64) ([]Slot, error) {
	if len(seeds) != HashFunctions {
		panic("hashing: CompleteHash requires exactly HashFunctions seeds")
	}

	rows := uint64(1) << m
	table := make([]Slot, rows*uint64(capacity))
	for i := range table {
		table[i] = EmptySlot
	}
	rowLen := make([]int, rows)

	for i := range inputs {
		for h := 0; h < HashFunctions; h++ {
			loc := Loc(seeds[h], m, inputs[i])
			if rowLen[loc] >= capacity {
				return nil, ErrRowOverflow
			}
			table[loc*uint64(capacity)+uint64(rowLen[loc])] = Slot{
				InputIndex: uint32(i),
				HashIndex:  uint32(h),
			}
			rowLen[loc]++
		}
	}

	for row := uint64(0); row < rows; row++ {
		base := row * uint64(capacity)
		for j := capacity - 1; j > 0; j-- {
			k := rnd.IntN(j + 1)
			table[base+uint64(j)], table[base+uint64(k)] = table[base+uint64(k)], table[base+uint64(j)]
		}
	}

	return table, nil
}
