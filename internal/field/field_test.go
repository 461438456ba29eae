package field_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privcats/labeled-psi/internal/field"
)

func TestMulModSmall(t *testing.T) {
	require.Equal(t, uint64(6), field.MulMod(2, 3, 101))
	require.Equal(t, uint64(1), field.MulMod(10, 10, 99))
}

func TestMulModWideIntermediate(t *testing.T) {
	const p = 34359771137 // 2^35 + 2^15 + 1, the largest plaintext prime in the table
	a := uint64(34359771136)
	b := uint64(34359771136)
	got := field.MulMod(a, b, p)

	// (p-1)*(p-1) mod p == 1
	require.Equal(t, uint64(1), got)
}

func TestPowModFermat(t *testing.T) {
	const p = 17
	for x := uint64(1); x < p; x++ {
		require.Equal(t, uint64(1), field.PowMod(x, p-1, p))
	}
}

func TestInvModRoundTrips(t *testing.T) {
	const p = 8519681 // 2^23 + 2^17 + 1
	for _, x := range []uint64{1, 2, 3, 12345, p - 1} {
		inv := field.InvMod(x, p)
		require.Equal(t, uint64(1), field.MulMod(x, inv, p))
	}
}

func TestSubModNoUnderflow(t *testing.T) {
	require.Equal(t, uint64(15), field.SubMod(3, 5, 17))
	require.Equal(t, uint64(0), field.SubMod(5, 5, 17))
}

func TestAddModWraps(t *testing.T) {
	require.Equal(t, uint64(1), field.AddMod(16, 2, 17))
}
