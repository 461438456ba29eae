// Package window implements the CLR17 windowing optimization: the
// receiver computes a handful of powers of its batched input and sends
// only those over as ciphertexts, and the sender reconstructs every power
// up to max_power from them with far fewer ciphertext multiplications
// than computing each power from scratch.
//
// A window size of 0 disables the optimization: the receiver sends only
// the input itself, and the sender squares/multiplies its way up one
// power at a time.
package window

import (
	"github.com/privcats/labeled-psi/internal/fhe"
	"github.com/privcats/labeled-psi/internal/field"
)

// Window holds the derived shape of a windowing scheme for a fixed window
// size and maximum power.
type Window struct {
	size        uint
	maxPower    uint
	width       uint // 2^size - 1, when size > 0
	windowCount uint // number of windows, when size > 0
}

// New derives a Window for the given window size and maximum power. A
// size of 0 requests the no-windowing special case.
func New(size, maxPower uint) *Window {
	w := &Window{size: size, maxPower: maxPower}
	if size == 0 {
		return w
	}

	w.width = (uint(1) << size) - 1
	w.windowCount = 1
	// windowCount is the smallest i >= 1 such that 2^(size*i) > maxPower,
	// i.e. ceil(log2(maxPower+1) / size) base-2^size digits (at least one).
	for (uint64(1) << (w.windowCount * size)) <= uint64(maxPower) {
		w.windowCount++
	}
	return w
}

// CipherCount returns how many ciphertexts Prepare produces.
func (w *Window) CipherCount() int {
	if w.size == 0 {
		return 1
	}
	return int(w.width * w.windowCount)
}

// Prepare batch-encrypts the strategically chosen powers of input that
// the sender needs to reconstruct every power up to max_power. input is
// consumed (overwritten) as scratch space, matching the source routine's
// in-place power-raising.
func (w *Window) Prepare(input []uint64, modulus uint64, encoder fhe.Encoder, encryptor fhe.Encryptor) []fhe.Ciphertext {
	if w.size == 0 {
		return []fhe.Ciphertext{encryptor.Encrypt(encoder.Encode(input))}
	}

	windows := make([]fhe.Ciphertext, w.width*w.windowCount)

	inputMul := make([]uint64, len(input))
	for i := uint(0); i < w.windowCount; i++ {
		// Invariant through this loop (y denotes the original input):
		//   input    = y^(2^(size*i))
		//   inputMul = y^(2^(size*i) * j)
		copy(inputMul, input)
		for j := uint(1); j <= w.width; j++ {
			windows[i*w.width+j-1] = encryptor.Encrypt(encoder.Encode(inputMul))

			if j <= w.width-1 {
				for k := range inputMul {
					inputMul[k] = field.MulMod(inputMul[k], input[k], modulus)
				}
			}
		}

		if i < w.windowCount-1 {
			for k := range input {
				input[k] = field.PowMod(input[k], uint64(1)<<w.size, modulus)
			}
		}
	}

	return windows
}

// ComputePowers reconstructs powers[1..numPowers-1] from the ciphertexts
// Prepare produced; powers[0] is left untouched (the constant term is
// handled separately by the caller's polynomial evaluation).
func (w *Window) ComputePowers(windows []fhe.Ciphertext, numPowers int, evaluator fhe.Evaluator) []fhe.Ciphertext {
	powers := make([]fhe.Ciphertext, numPowers)

	if w.size == 0 {
		if numPowers > 1 {
			powers[1] = windows[0]
		}
		for i := 2; i < numPowers; i++ {
			// The source's power-parity check reads `i & 2 == 0`, which in
			// C++ parses as `i & (2 == 0)` due to operator precedence and
			// is always false, so every power beyond the first was built
			// by multiplying instead of squaring. The intended check is
			// parity: i % 2 == 0 means i/2 has already been computed.
			if i%2 == 0 {
				powers[i] = evaluator.Square(powers[i/2])
			} else {
				powers[i] = evaluator.Mul(powers[i-1], powers[1])
			}
		}
		return powers
	}

	for i := uint(1); i <= w.width; i++ {
		if int(i) >= numPowers {
			return powers
		}
		powers[i] = windows[i-1]
	}

	for i := uint(1); i < w.windowCount; i++ {
		for j := uint(1); j <= w.width; j++ {
			// For window i, element j encodes y^(2^(size*i) * j). Every
			// power already known before window i (low_bits < 2^(size*i))
			// combines with it to produce a new power.
			highBits := j << (w.size * i)
			if int(highBits) >= numPowers {
				break
			}
			powers[highBits] = windows[i*w.width+j-1]

			for lowBits := uint64(1); lowBits < (uint64(1) << (w.size * i)); lowBits++ {
				newPower := highBits | uint(lowBits)
				if int(newPower) >= numPowers {
					break
				}
				powers[newPower] = evaluator.Mul(powers[lowBits], powers[highBits])
			}
		}
	}

	return powers
}
