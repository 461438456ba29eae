package hashing_test

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privcats/labeled-psi/internal/hashing"
)

func TestLocIsPermutationOnFixedHighBits(t *testing.T) {
	const m = 6
	const seed = 0xdeadbeefcafef00d

	high := uint64(0x1234)
	seen := make(map[uint64]bool)
	for low := uint64(0); low < (1 << m); low++ {
		v := (high << m) | low
		loc := hashing.Loc(seed, m, v)
		require.Less(t, loc, uint64(1<<m))
		require.False(t, seen[loc], "loc collided for low=%d", low)
		seen[loc] = true
	}
	require.Len(t, seen, 1<<m)
}

func TestCuckooInsertPlacesEveryInput(t *testing.T) {
	rnd := rand.New(rand.NewPCG(1, 2))
	seeds := []uint64{1, 2, 3}
	inputs := []uint64{0x11, 0x22, 0xca, 0xfe, 0x03, 0x07, 0x55}

	table, err := hashing.CuckooInsert(rnd, inputs, 6, seeds)
	require.NoError(t, err)

	placed := make(map[uint32]bool)
	for _, slot := range table {
		if slot.Empty() {
			continue
		}
		require.False(t, placed[slot.InputIndex])
		placed[slot.InputIndex] = true
	}
	require.Len(t, placed, len(inputs))
}

func TestCompleteHashPlacesUnderEveryHashFunction(t *testing.T) {
	rnd := rand.New(rand.NewPCG(4, 5))
	seeds := []uint64{10, 20, 30}
	inputs := []uint64{0x01, 0x02, 0x03}

	const m = 5
	const capacity = 8
	table, err := hashing.CompleteHash(rnd, inputs, m, capacity, seeds)
	require.NoError(t, err)
	require.Len(t, table, (1<<m)*capacity)

	for i := range inputs {
		for h := 0; h < hashing.HashFunctions; h++ {
			found := false
			for _, slot := range table {
				if !slot.Empty() && int(slot.InputIndex) == i && int(slot.HashIndex) == h {
					found = true
					break
				}
			}
			require.True(t, found, "input %d hash %d not placed", i, h)
		}
	}
}

func TestCompleteHashRowOverflow(t *testing.T) {
	rnd := rand.New(rand.NewPCG(7, 8))
	seeds := []uint64{1, 1, 1} // identical seeds collapse every row's capacity
	inputs := make([]uint64, 100)
	for i := range inputs {
		inputs[i] = uint64(i)
	}

	_, err := hashing.CompleteHash(rnd, inputs, 3, 2, seeds)
	require.ErrorIs(t, err, hashing.ErrRowOverflow)
}

func TestEncodeBucketElementInjective(t *testing.T) {
	inputs := []uint64{0x1234, 0xabcd}
	const m = 4

	seen := make(map[uint64]bool)
	add := func(v uint64) {
		require.False(t, seen[v], "collision on encoded value %d", v)
		seen[v] = true
	}

	for idx := range inputs {
		for h := uint32(0); h < hashing.HashFunctions; h++ {
			slot := hashing.Slot{InputIndex: uint32(idx), HashIndex: h}
			add(hashing.EncodeBucketElement(inputs, slot, m, false))
		}
	}
	add(hashing.EncodeBucketElement(inputs, hashing.EmptySlot, m, true))
	add(hashing.EncodeBucketElement(inputs, hashing.EmptySlot, m, false))
}
