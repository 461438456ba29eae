// Package bgvbackend implements internal/fhe.Backend on top of
// tuneinsight/lattigo's BGV scheme. Lattigo's BGV evaluator, run in
// scale-invariant mode, reproduces BFV's integer-batching semantics
// exactly (this is why lattigo itself folds the historical bfv package
// into bgv); the specification's "BFV-style" backend contract (section 6)
// is served by the heint evaluator that NewEvaluator constructs below
// (heint is lattigo's integer-arithmetic facade over bgv).
package bgvbackend

import (
	"fmt"

	"github.com/tuneinsight/lattigo/v5/core/rlwe"
	"github.com/tuneinsight/lattigo/v5/he/heint"

	"github.com/privcats/labeled-psi/internal/fhe"
)

// Backend is the stateless bgvbackend.Backend. It has no fields; every
// method is a pure constructor bound to the Context it is given.
type Backend struct{}

var _ fhe.Backend = Backend{}

type context struct {
	params heint.Parameters
}

func (c *context) SlotCount() int           { return c.params.MaxSlots() }
func (c *context) PlaintextModulus() uint64 { return c.params.PlaintextModulus() }

// NewContext derives full BGV ring parameters at a fixed, vetted 128-bit
// security coefficient-modulus chain for the requested ring degree, with
// the plaintext modulus the protocol layer selected. Choosing the security
// level adaptively from a target (rather than this fixed per-LogN chain)
// is explicitly out of scope (specification section 9, "TODO:
// security-parameter selection").
func (Backend) NewContext(p fhe.Params) (fhe.Context, error) {
	chain, ok := coeffModulusChains[p.LogN]
	if !ok {
		return nil, fmt.Errorf("bgvbackend: no vetted coefficient modulus chain for LogN=%d", p.LogN)
	}

	params, err := heint.NewParametersFromLiteral(heint.ParametersLiteral{
		LogN:             p.LogN,
		LogQ:             chain.logQ,
		LogP:             chain.logP,
		PlaintextModulus: p.PlaintextModulus,
	})
	if err != nil {
		return nil, fmt.Errorf("bgvbackend: deriving ring parameters: %w", err)
	}

	return &context{params: params}, nil
}

// coeffModulusChains gives a 128-bit-security LogQ/LogP pair per supported
// ring degree, matching the bit-budgets lattigo ships as its own default
// parameter literals for these degrees (core/rlwe/example_parameters.go).
var coeffModulusChains = map[int]struct {
	logQ []int
	logP []int
}{
	13: {logQ: []int{54, 54, 54}, logP: []int{55}},
	14: {logQ: []int{56, 55, 55, 54, 54, 54}, logP: []int{55, 55}},
}

// plaintext, ciphertext, publicKey, secretKey and relinKeys wrap the
// concrete lattigo types behind the fhe package's opaque interfaces. Apart
// from the binary codec methods below they carry no methods of their own;
// type assertions at the package boundary
// (below) are how this package gets its lattigo values back out of an
// fhe.Plaintext/fhe.Ciphertext/etc.
type (
	plaintext struct{ pt *rlwe.Plaintext }
	ciphertext struct{ ct *rlwe.Ciphertext }
	publicKey  struct{ pk *rlwe.PublicKey }
	secretKey  struct{ sk *rlwe.SecretKey }
	relinKeys  struct{ rk *rlwe.RelinearizationKey }
)

// MarshalBinary/UnmarshalBinary forward to the embedded lattigo type's own
// implementation (core/rlwe/element.go's Element[T] and
// core/rlwe/gadgetciphertext.go's GadgetCiphertext both implement
// encoding.BinaryMarshaler), so the wire package can type-assert
// encoding.BinaryMarshaler/BinaryUnmarshaler on the opaque fhe.Ciphertext/
// PublicKey/RelinKeys values without ever importing lattigo itself.
func (c ciphertext) MarshalBinary() ([]byte, error) { return c.ct.MarshalBinary() }
func (c ciphertext) UnmarshalBinary(p []byte) error { return c.ct.UnmarshalBinary(p) }

func (k publicKey) MarshalBinary() ([]byte, error) { return k.pk.MarshalBinary() }
func (k publicKey) UnmarshalBinary(p []byte) error { return k.pk.UnmarshalBinary(p) }

func (k relinKeys) MarshalBinary() ([]byte, error) { return k.rk.MarshalBinary() }
func (k relinKeys) UnmarshalBinary(p []byte) error { return k.rk.UnmarshalBinary(p) }

type encoder struct {
	params heint.Parameters
	enc    *heint.Encoder
}

func (Backend) NewEncoder(ctx fhe.Context) fhe.Encoder {
	c := ctx.(*context)
	return &encoder{params: c.params, enc: heint.NewEncoder(c.params)}
}

func (e *encoder) Encode(values []uint64) fhe.Plaintext {
	pt := heint.NewPlaintext(e.params, e.params.MaxLevel())
	if err := e.enc.Encode(values, pt); err != nil {
		panic(fmt.Errorf("bgvbackend: encode: %w", err))
	}
	return plaintext{pt: pt}
}

func (e *encoder) Decode(pt fhe.Plaintext) []uint64 {
	values := make([]uint64, e.params.MaxSlots())
	if err := e.enc.Decode(pt.(plaintext).pt, values); err != nil {
		panic(fmt.Errorf("bgvbackend: decode: %w", err))
	}
	return values
}

type keyGenerator struct {
	kgen *rlwe.KeyGenerator
}

func (Backend) NewKeyGenerator(ctx fhe.Context) fhe.KeyGenerator {
	c := ctx.(*context)
	return &keyGenerator{kgen: rlwe.NewKeyGenerator(c.params)}
}

func (k *keyGenerator) GenKeyPair() (fhe.SecretKey, fhe.PublicKey) {
	sk, pk := k.kgen.GenKeyPairNew()
	return secretKey{sk: sk}, publicKey{pk: pk}
}

func (k *keyGenerator) GenRelinKeys(sk fhe.SecretKey) fhe.RelinKeys {
	rk := k.kgen.GenRelinearizationKeyNew(sk.(secretKey).sk)
	return relinKeys{rk: rk}
}

type encryptor struct {
	enc *rlwe.Encryptor
}

func (Backend) NewEncryptor(ctx fhe.Context, pk fhe.PublicKey) fhe.Encryptor {
	c := ctx.(*context)
	return &encryptor{enc: heint.NewEncryptor(c.params, pk.(publicKey).pk)}
}

func (e *encryptor) Encrypt(pt fhe.Plaintext) fhe.Ciphertext {
	ct, err := e.enc.EncryptNew(pt.(plaintext).pt)
	if err != nil {
		panic(fmt.Errorf("bgvbackend: encrypt: %w", err))
	}
	return ciphertext{ct: ct}
}

type decryptor struct {
	dec *rlwe.Decryptor
}

func (Backend) NewDecryptor(ctx fhe.Context, sk fhe.SecretKey) fhe.Decryptor {
	c := ctx.(*context)
	return &decryptor{dec: heint.NewDecryptor(c.params, sk.(secretKey).sk)}
}

func (d *decryptor) Decrypt(ct fhe.Ciphertext) fhe.Plaintext {
	return plaintext{pt: d.dec.DecryptNew(ct.(ciphertext).ct)}
}

type evaluator struct {
	eval *heint.Evaluator
}

var _ fhe.LevelReporter = (*evaluator)(nil)

// Level implements fhe.LevelReporter, used only by the optional
// Sender.DebugLevel hook: it reports how many coefficient-modulus primes
// remain in ct's RNS representation, a coarse proxy for noise budget.
func (e *evaluator) Level(ct fhe.Ciphertext) int {
	return ct.(ciphertext).ct.Level()
}

func (Backend) NewEvaluator(ctx fhe.Context, rk fhe.RelinKeys) fhe.Evaluator {
	c := ctx.(*context)
	evk := rlwe.NewMemEvaluationKeySet(rk.(relinKeys).rk)
	return &evaluator{eval: heint.NewEvaluator(c.params, evk)}
}

func (e *evaluator) Add(a, b fhe.Ciphertext) fhe.Ciphertext {
	return ciphertext{ct: e.eval.AddNew(a.(ciphertext).ct, b.(ciphertext).ct)}
}

func (e *evaluator) AddPlain(a fhe.Ciphertext, b fhe.Plaintext) fhe.Ciphertext {
	return ciphertext{ct: e.eval.AddNew(a.(ciphertext).ct, b.(plaintext).pt)}
}

func (e *evaluator) Mul(a, b fhe.Ciphertext) fhe.Ciphertext {
	return ciphertext{ct: e.eval.MulRelinNew(a.(ciphertext).ct, b.(ciphertext).ct)}
}

func (e *evaluator) MulPlain(a fhe.Ciphertext, b fhe.Plaintext) fhe.Ciphertext {
	return ciphertext{ct: e.eval.MulNew(a.(ciphertext).ct, b.(plaintext).pt)}
}

func (e *evaluator) Square(a fhe.Ciphertext) fhe.Ciphertext {
	ct := a.(ciphertext).ct
	return ciphertext{ct: e.eval.MulRelinNew(ct, ct)}
}

// NewEmptyCiphertext, NewEmptyPublicKey and NewEmptyRelinKeys allocate
// zero-valued containers the wire package decodes a received message
// into via encoding.BinaryUnmarshaler, mirroring the source's
// read_ciphertext/read_public_key/read_relin_keys pattern of allocating
// a destination object before the library deserializes into it.
func (Backend) NewEmptyCiphertext(ctx fhe.Context) fhe.Ciphertext {
	c := ctx.(*context)
	return ciphertext{ct: heint.NewCiphertext(c.params, 1, c.params.MaxLevel())}
}

func (Backend) NewEmptyPublicKey(ctx fhe.Context) fhe.PublicKey {
	c := ctx.(*context)
	return publicKey{pk: rlwe.NewPublicKey(c.params)}
}

func (Backend) NewEmptyRelinKeys(ctx fhe.Context) fhe.RelinKeys {
	c := ctx.(*context)
	return relinKeys{rk: rlwe.NewRelinearizationKey(c.params)}
}
