package window_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privcats/labeled-psi/internal/fhe"
	"github.com/privcats/labeled-psi/internal/field"
	"github.com/privcats/labeled-psi/internal/window"
)

// plainCiphertext/plainPlaintext stand in for a real homomorphic backend,
// operating on plain []uint64 vectors instead of actual ciphertexts, so
// windowing's reconstruction arithmetic can be checked without depending on
// a concrete fhe.Backend.
type plainCiphertext struct{ v []uint64 }
type plainPlaintext struct{ v []uint64 }

type plainEncoder struct{}

func (plainEncoder) Encode(values []uint64) fhe.Plaintext {
	cp := make([]uint64, len(values))
	copy(cp, values)
	return plainPlaintext{v: cp}
}

func (plainEncoder) Decode(pt fhe.Plaintext) []uint64 {
	return pt.(plainPlaintext).v
}

type plainEncryptor struct{}

func (plainEncryptor) Encrypt(pt fhe.Plaintext) fhe.Ciphertext {
	return plainCiphertext{v: pt.(plainPlaintext).v}
}

type plainEvaluator struct{ p uint64 }

func (e plainEvaluator) Add(a, b fhe.Ciphertext) fhe.Ciphertext       { panic("unused") }
func (e plainEvaluator) AddPlain(a fhe.Ciphertext, b fhe.Plaintext) fhe.Ciphertext { panic("unused") }
func (e plainEvaluator) MulPlain(a fhe.Ciphertext, b fhe.Plaintext) fhe.Ciphertext { panic("unused") }

func (e plainEvaluator) Mul(a, b fhe.Ciphertext) fhe.Ciphertext {
	av, bv := a.(plainCiphertext).v, b.(plainCiphertext).v
	out := make([]uint64, len(av))
	for i := range av {
		out[i] = field.MulMod(av[i], bv[i], e.p)
	}
	return plainCiphertext{v: out}
}

func (e plainEvaluator) Square(a fhe.Ciphertext) fhe.Ciphertext {
	return e.Mul(a, a)
}

func TestComputePowersNoWindowMatchesDirectExponentiation(t *testing.T) {
	const p = 8519681
	input := []uint64{3, 5, 7}

	w := window.New(0, 10)
	scratch := append([]uint64(nil), input...)
	windows := w.Prepare(scratch, p, plainEncoder{}, plainEncryptor{})
	powers := w.ComputePowers(windows, 11, plainEvaluator{p: p})

	for i := 1; i < 11; i++ {
		got := powers[i].(plainCiphertext).v
		for k, x := range input {
			require.Equal(t, field.PowMod(x, uint64(i), p), got[k])
		}
	}
}

func TestComputePowersWithWindowMatchesDirectExponentiation(t *testing.T) {
	const p = 8519681
	input := []uint64{2, 11}

	w := window.New(2, 20)
	scratch := append([]uint64(nil), input...)
	windows := w.Prepare(scratch, p, plainEncoder{}, plainEncryptor{})
	powers := w.ComputePowers(windows, 21, plainEvaluator{p: p})

	for i := 1; i < 21; i++ {
		got := powers[i].(plainCiphertext).v
		for k, x := range input {
			require.Equal(t, field.PowMod(x, uint64(i), p), got[k])
		}
	}
}

func TestCipherCountMatchesPrepareOutput(t *testing.T) {
	w := window.New(3, 50)
	input := []uint64{1, 2, 3, 4}
	windows := w.Prepare(append([]uint64(nil), input...), 101, plainEncoder{}, plainEncryptor{})
	require.Len(t, windows, w.CipherCount())
}
