package psi

import (
	"fmt"
	"math/rand/v2"

	"github.com/privcats/labeled-psi/internal/fhe"
	"github.com/privcats/labeled-psi/internal/hashing"
	"github.com/privcats/labeled-psi/internal/window"
)

// Receiver holds the receiver-side key material for one protocol session
// and the operations bound to it: cuckoo-hash encryption of R, and
// decryption of the sender's match ciphertexts.
type Receiver struct {
	params *Params

	sk fhe.SecretKey
	pk fhe.PublicKey
	rk fhe.RelinKeys
}

// NewReceiver generates a fresh receiver key pair and relinearization
// keys bound to params. Params.GenerateSeeds or Params.SetSeeds must
// already have been called.
func NewReceiver(params *Params) *Receiver {
	_ = params.Seeds() // panics if seeds were never set — a programmer error

	kgen := params.Backend().NewKeyGenerator(params.Context())
	sk, pk := kgen.GenKeyPair()
	rk := kgen.GenRelinKeys(sk)

	return &Receiver{params: params, sk: sk, pk: pk, rk: rk}
}

// PublicKey returns the receiver's public key, to be shared with the
// sender.
func (r *Receiver) PublicKey() fhe.PublicKey { return r.pk }

// RelinKeys returns the receiver's relinearization keys, to be shared
// with the sender.
func (r *Receiver) RelinKeys() fhe.RelinKeys { return r.rk }

// Encrypt cuckoo-hashes inputs into the bucket table and returns the
// windowed ciphertexts the sender needs, plus the bucket vector that maps
// bucket indices back to input indices so the caller can translate
// matched buckets back to original elements.
func (r *Receiver) Encrypt(rnd *rand.Rand, inputs []uint64) (windows []fhe.Ciphertext, buckets []hashing.Slot, err error) {
	if len(inputs) != r.params.ReceiverSize {
		panic(fmt.Sprintf("psi: Receiver.Encrypt requires %d inputs, got %d", r.params.ReceiverSize, len(inputs)))
	}
	if hole := findDuplicate(inputs); hole {
		return nil, nil, ErrDeduplicationHole
	}

	m := r.params.bucketCountLog
	buckets, err = hashing.CuckooInsert(rnd, inputs, m, r.params.Seeds())
	if err != nil {
		return nil, nil, err
	}

	bucketCount := uint64(1) << m
	bucketsEnc := make([]uint64, bucketCount)
	for i, slot := range buckets {
		bucketsEnc[i] = r.params.encodeBucketElement(inputs, slot, true)
	}

	maxPartitionSize := ceilDiv(r.params.bucketCapacity, r.params.partitionCount)

	encoder := r.params.Backend().NewEncoder(r.params.Context())
	encryptor := r.params.Backend().NewEncryptor(r.params.Context(), r.pk)

	w := window.New(r.params.windowSize, uint(maxPartitionSize))
	windows = w.Prepare(bucketsEnc, r.params.plainModulus, encoder, encryptor)

	return windows, buckets, nil
}

// Match is a single decrypted unlabeled match: the bucket index, which
// the caller maps back to an input via the bucket vector Encrypt
// returned.
type Match struct {
	Bucket int
}

// LabeledMatch is a single decrypted labeled match: the bucket index and
// the sender's label attached to the matched element.
type LabeledMatch struct {
	Bucket int
	Label  uint64
}

// Decrypt decodes the sender's unlabeled match ciphertexts and reports
// every bucket index whose slot decrypted to zero.
func (r *Receiver) Decrypt(matches []fhe.Ciphertext) []Match {
	decryptor := r.params.Backend().NewDecryptor(r.params.Context(), r.sk)
	encoder := r.params.Backend().NewEncoder(r.params.Context())

	bucketCount := int(uint64(1) << r.params.bucketCountLog)

	var result []Match
	for _, ct := range matches {
		slots := encoder.Decode(decryptor.Decrypt(ct))
		for j := 0; j < bucketCount; j++ {
			if slots[j] == 0 {
				result = append(result, Match{Bucket: j})
			}
		}
	}
	return result
}

// DecryptLabeled decodes the sender's labeled match ciphertexts. matches
// must have even length, alternating (match, label) ciphertext pairs per
// partition.
func (r *Receiver) DecryptLabeled(matches []fhe.Ciphertext) []LabeledMatch {
	if len(matches)%2 != 0 {
		panic("psi: Receiver.DecryptLabeled requires an even number of ciphertexts")
	}

	decryptor := r.params.Backend().NewDecryptor(r.params.Context(), r.sk)
	encoder := r.params.Backend().NewEncoder(r.params.Context())

	bucketCount := int(uint64(1) << r.params.bucketCountLog)

	var result []LabeledMatch
	for i := 0; i < len(matches)/2; i++ {
		matchSlots := encoder.Decode(decryptor.Decrypt(matches[2*i]))
		labelSlots := encoder.Decode(decryptor.Decrypt(matches[2*i+1]))

		for j := 0; j < bucketCount; j++ {
			if matchSlots[j] == 0 {
				result = append(result, LabeledMatch{Bucket: j, Label: labelSlots[j]})
			}
		}
	}
	return result
}

func findDuplicate(inputs []uint64) bool {
	seen := make(map[uint64]bool, len(inputs))
	for _, v := range inputs {
		if seen[v] {
			return true
		}
		seen[v] = true
	}
	return false
}

func ceilDiv(a, b int) int {
	return (a + b - 1) / b
}
