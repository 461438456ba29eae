// Package polynomial implements the two polynomial constructions the
// sender needs over the plaintext prime field: the roots polynomial used
// to build f(x) = prod(x - bucket element), and Newton-form interpolation
// used to build the label polynomial g(x) in labeled mode.
//
// Coefficients are always stored low-degree-first: coeffs[i] is the
// coefficient of x^i.
package polynomial

import "github.com/privcats/labeled-psi/internal/field"

// RootsPoly returns the coefficients of prod_i (x - roots[i]) mod p, via
// the standard O(n^2) incremental build: start from [1] and multiply by
// (x - r) one root at a time. The result has length len(roots)+1.
func RootsPoly(roots []uint64, p uint64) []uint64 {
	result := make([]uint64, len(roots)+1)
	result[0] = 1 % p

	for i, r := range roots {
		negRoot := field.SubMod(0, r, p)

		for j := i + 1; j > 0; j-- {
			result[j] = field.AddMod(result[j-1], field.MulMod(negRoot, result[j], p), p)
		}
		result[0] = field.MulMod(result[0], negRoot, p)
	}

	return result
}

// InterpPoly returns the coefficients of the unique polynomial of degree
// at most len(xs)-1 passing through (xs[i], ys[i]) for every i, computed
// via Newton's divided differences mod p. Duplicate x values are
// deduplicated before interpolation (first occurrence wins): this is
// required because the sender derives xs from bucket-slot encodings that
// can collide when slots are empty.
func InterpPoly(xs, ys []uint64, p uint64) []uint64 {
	if len(xs) != len(ys) {
		panic("polynomial: InterpPoly requires len(xs) == len(ys)")
	}

	dedupXs, dedupYs := dedupPoints(xs, ys)
	n := len(dedupXs)
	if n == 0 {
		return []uint64{0}
	}

	// divided differences table, computed in place: coeffs[i] holds
	// f[x0, ..., xi] by the end of the outer loop.
	coeffs := make([]uint64, n)
	copy(coeffs, dedupYs)

	for j := 1; j < n; j++ {
		for i := n - 1; i >= j; i-- {
			num := field.SubMod(coeffs[i], coeffs[i-1], p)
			den := field.SubMod(dedupXs[i], dedupXs[i-j], p)
			coeffs[i] = field.MulMod(num, field.InvMod(den, p), p)
		}
	}

	// Expand Newton form f(x) = sum_k coeffs[k] * prod_{i<k} (x - xs[i])
	// into the standard monomial basis, low-degree-first.
	result := make([]uint64, n)
	result[0] = coeffs[0]

	basis := []uint64{1} // running product of (x - xs[i]) so far, degree = len(basis)-1
	for k := 1; k < n; k++ {
		basis = multiplyByLinear(basis, dedupXs[k-1], p)
		for d := range basis {
			result[d] = field.AddMod(result[d], field.MulMod(coeffs[k], basis[d], p), p)
		}
	}

	return result
}

// dedupPoints drops later points whose x coordinate repeats an earlier one.
func dedupPoints(xs, ys []uint64) (dedupXs, dedupYs []uint64) {
	seen := make(map[uint64]bool, len(xs))
	dedupXs = make([]uint64, 0, len(xs))
	dedupYs = make([]uint64, 0, len(ys))
	for i, x := range xs {
		if seen[x] {
			continue
		}
		seen[x] = true
		dedupXs = append(dedupXs, x)
		dedupYs = append(dedupYs, ys[i])
	}
	return
}

// multiplyByLinear multiplies the polynomial poly (low-degree-first) by
// (x - r) mod p, returning a new slice of length len(poly)+1.
func multiplyByLinear(poly []uint64, r, p uint64) []uint64 {
	negR := field.SubMod(0, r, p)
	result := make([]uint64, len(poly)+1)
	for j := 0; j <= len(poly); j++ {
		var shifted, scaled uint64
		if j > 0 {
			shifted = poly[j-1]
		}
		if j < len(poly) {
			scaled = field.MulMod(negR, poly[j], p)
		}
		result[j] = field.AddMod(shifted, scaled, p)
	}
	return result
}
