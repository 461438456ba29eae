// Package fhe defines the narrow interface the PSI protocol core consumes
// from a homomorphic-encryption backend: encryption parameters, a
// batch-encoding context, key generation, encryption/decryption, additive
// and multiplicative evaluation with relinearization, and plaintext
// batching (CRT slot packing). The concrete backend lives in
// internal/fhe/bgvbackend; the core (internal/window and psi) only ever
// imports this package.
package fhe

// Params is the subset of homomorphic-encryption parameters the core needs
// to pick: the ring degree and the plaintext modulus. Everything else
// (coefficient modulus chain, noise distribution, relinearization
// decomposition) is the backend's responsibility to choose at a fixed
// security level.
type Params struct {
	// LogN is log2 of the ring degree (the batch slot count).
	LogN int
	// PlaintextModulus is the prime p that ciphertext slots are reduced
	// modulo; it must satisfy p == 1 (mod 2N) for batching to work.
	PlaintextModulus uint64
}

// Ciphertext is an opaque homomorphically-encrypted batched vector. Every
// ciphertext carries a finite noise budget, consumed by multiplications
// and relinearizations, that the parameter choice in psi.Params must keep
// positive through the entire protocol run. The interface carries no
// methods: backends are free to wrap whatever concrete type they need,
// and callers only ever pass Ciphertext values back through this package
// and the backend that produced them.
type Ciphertext interface{}

// Plaintext is an opaque batched plaintext vector (one CRT slot per
// element), produced by an Encoder and consumed by an Encryptor.
type Plaintext interface{}

// PublicKey, SecretKey and RelinKeys are opaque key material.
type (
	PublicKey interface{}
	SecretKey interface{}
	RelinKeys interface{}
)

// Context is a backend instance bound to a fixed Params: it is the single
// piece of shared, read-only state a protocol run threads through
// encoding, key generation and evaluation.
type Context interface {
	// SlotCount returns N, the number of batched plaintext slots.
	SlotCount() int
	// PlaintextModulus returns p.
	PlaintextModulus() uint64
}

// Encoder packs/unpacks up-to-N-long []uint64 vectors into a single
// Plaintext via CRT slot batching.
type Encoder interface {
	Encode(values []uint64) Plaintext
	Decode(pt Plaintext) []uint64
}

// KeyGenerator produces a receiver key pair and the relinearization keys
// derived from the secret key.
type KeyGenerator interface {
	GenKeyPair() (SecretKey, PublicKey)
	GenRelinKeys(sk SecretKey) RelinKeys
}

// Encryptor encrypts plaintexts under a fixed public (or secret) key.
type Encryptor interface {
	Encrypt(pt Plaintext) Ciphertext
}

// Decryptor decrypts ciphertexts under a fixed secret key.
type Decryptor interface {
	Decrypt(ct Ciphertext) Plaintext
}

// Evaluator performs homomorphic operations. Mul and Square always
// relinearize their result, since multiplying two ciphertexts grows the
// result's degree and the rest of the protocol assumes a degree-1
// ciphertext whenever it next consults the noise budget. MulPlain does
// not relinearize: multiplying by a plaintext leaves the ciphertext's
// degree unchanged, so there is nothing to relinearize away.
type Evaluator interface {
	Add(a, b Ciphertext) Ciphertext
	AddPlain(a Ciphertext, b Plaintext) Ciphertext
	Mul(a, b Ciphertext) Ciphertext
	MulPlain(a Ciphertext, b Plaintext) Ciphertext
	Square(a Ciphertext) Ciphertext
}

// LevelReporter is implemented by evaluators that can report a
// ciphertext's current modulus level, the number of coefficient-modulus primes remaining before
// the ciphertext runs out of room for further multiplications. It is used
// only by the optional debug hook on Sender (see psi.Sender.DebugLevel),
// never on any path that affects protocol correctness: the level is a
// coarse proxy for noise budget, not a noise measurement itself.
type LevelReporter interface {
	Level(ct Ciphertext) int
}

// Backend constructs a Context and the operators bound to it. It is the
// seam between the protocol core and a concrete homomorphic-encryption
// library.
type Backend interface {
	NewContext(params Params) (Context, error)
	NewEncoder(ctx Context) Encoder
	NewKeyGenerator(ctx Context) KeyGenerator
	NewEncryptor(ctx Context, pk PublicKey) Encryptor
	NewDecryptor(ctx Context, sk SecretKey) Decryptor
	NewEvaluator(ctx Context, rk RelinKeys) Evaluator

	// NewEmptyCiphertext, NewEmptyPublicKey and NewEmptyRelinKeys allocate
	// zero-valued containers of the right shape for ctx, suitable as the
	// destination of encoding.BinaryUnmarshaler when deserializing a wire
	// message: the wire package itself never constructs backend types
	// directly.
	NewEmptyCiphertext(ctx Context) Ciphertext
	NewEmptyPublicKey(ctx Context) PublicKey
	NewEmptyRelinKeys(ctx Context) RelinKeys
}
