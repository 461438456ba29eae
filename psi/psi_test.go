package psi_test

import (
	"context"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privcats/labeled-psi/internal/fhe/bgvbackend"
	"github.com/privcats/labeled-psi/psi"
)

func newSessionParams(t *testing.T, receiverSize, senderSize, inputBits int) (*psi.Params, *psi.Params) {
	t.Helper()
	return newPartitionedSessionParams(t, receiverSize, senderSize, inputBits, 1)
}

func newPartitionedSessionParams(t *testing.T, receiverSize, senderSize, inputBits, partitionCount int) (*psi.Params, *psi.Params) {
	t.Helper()

	client, err := psi.NewParams(bgvbackend.Backend{}, receiverSize, senderSize, inputBits, 13, partitionCount, 0)
	require.NoError(t, err)
	client.GenerateSeeds(rand.New(rand.NewPCG(1, 2)))

	server, err := psi.NewParams(bgvbackend.Backend{}, receiverSize, senderSize, inputBits, 13, partitionCount, 0)
	require.NoError(t, err)
	require.NoError(t, server.SetSeeds(client.Seeds()))

	return client, server
}

// runSession drives a full unlabeled protocol run and returns the set of
// receiver input values whose bucket decrypted to a match.
func runSession(t *testing.T, r, s []uint64, inputBits int) map[uint64]bool {
	t.Helper()

	clientParams, serverParams := newSessionParams(t, len(r), len(s), inputBits)
	rnd := rand.New(rand.NewPCG(3, 4))

	receiver := psi.NewReceiver(clientParams)
	windows, buckets, err := receiver.Encrypt(rnd, r)
	require.NoError(t, err)

	sender := psi.NewSender(serverParams)
	matches, err := sender.ComputeMatches(context.Background(), rnd, s, nil, receiver.PublicKey(), receiver.RelinKeys(), windows)
	require.NoError(t, err)

	decoded := receiver.Decrypt(matches)

	result := make(map[uint64]bool)
	for _, m := range decoded {
		slot := buckets[m.Bucket]
		if !slot.Empty() {
			result[r[slot.InputIndex]] = true
		}
	}
	return result
}

// Scenario 1: R = {0x11, 0x22, 0xca, 0xfe}, S = {0x02, 0x03, 0x04, 0x05,
// 0x22, 0xfe}, input_bits=8. Expected matched-element set = {0x22, 0xfe}.
func TestObliviousIntersectionScenario1(t *testing.T) {
	r := []uint64{0x11, 0x22, 0xca, 0xfe}
	s := []uint64{0x02, 0x03, 0x04, 0x05, 0x22, 0xfe}

	got := runSession(t, r, s, 8)
	require.Equal(t, map[uint64]bool{0x22: true, 0xfe: true}, got)
}

// Scenario 2: labeled intersection.
func TestLabeledIntersectionScenario2(t *testing.T) {
	r := []uint64{0x02, 0x07, 0x05, 0xfe}
	s := []uint64{0x01, 0x02, 0x03, 0x04, 0x07, 0x22, 0xca, 0xfe}
	labels := []uint64{0x01, 0x01, 0x02, 0x03, 0x01, 0x02, 0x00, 0x03}

	clientParams, serverParams := newSessionParams(t, len(r), len(s), 8)
	rnd := rand.New(rand.NewPCG(5, 6))

	receiver := psi.NewReceiver(clientParams)
	windows, buckets, err := receiver.Encrypt(rnd, r)
	require.NoError(t, err)

	sender := psi.NewSender(serverParams)
	matches, err := sender.ComputeMatches(context.Background(), rnd, s, labels, receiver.PublicKey(), receiver.RelinKeys(), windows)
	require.NoError(t, err)

	decoded := receiver.DecryptLabeled(matches)

	got := make(map[uint64]uint64)
	for _, m := range decoded {
		slot := buckets[m.Bucket]
		if !slot.Empty() {
			got[r[slot.InputIndex]] = m.Label
		}
	}

	require.Equal(t, map[uint64]uint64{0x02: 0x01, 0x07: 0x01, 0xfe: 0x03}, got)
}

// Scenario 3: disjoint sets, expected match count 0.
func TestDisjointSetsScenario3(t *testing.T) {
	r := make([]uint64, 10)
	s := make([]uint64, 100)
	for i := range r {
		r[i] = uint64(i + 1)
	}
	for i := range s {
		s[i] = uint64(i + 1000)
	}

	got := runSession(t, r, s, 32)
	require.Empty(t, got)
}

// Scenario 4: R subset of S, expected match count 10.
func TestSubsetScenario4(t *testing.T) {
	s := make([]uint64, 100)
	for i := range s {
		s[i] = uint64(i + 1)
	}
	r := append([]uint64(nil), s[:10]...)

	got := runSession(t, r, s, 32)
	require.Len(t, got, 10)
	for _, v := range r {
		require.True(t, got[v])
	}
}

// TestSubsetScenarioPartitioned reruns scenario 4 with partitionCount > 1,
// which fans ComputeMatches out across multiple errgroup goroutines and so
// exercises the per-partition mask randomness under the race detector.
func TestSubsetScenarioPartitioned(t *testing.T) {
	s := make([]uint64, 100)
	for i := range s {
		s[i] = uint64(i + 1)
	}
	r := append([]uint64(nil), s[:10]...)

	clientParams, serverParams := newPartitionedSessionParams(t, len(r), len(s), 32, 4)
	rnd := rand.New(rand.NewPCG(9, 10))

	receiver := psi.NewReceiver(clientParams)
	windows, buckets, err := receiver.Encrypt(rnd, r)
	require.NoError(t, err)

	sender := psi.NewSender(serverParams)
	matches, err := sender.ComputeMatches(context.Background(), rnd, s, nil, receiver.PublicKey(), receiver.RelinKeys(), windows)
	require.NoError(t, err)
	require.Len(t, matches, serverParams.PartitionCount())

	decoded := receiver.Decrypt(matches)
	got := make(map[uint64]bool)
	for _, m := range decoded {
		slot := buckets[m.Bucket]
		if !slot.Empty() {
			got[r[slot.InputIndex]] = true
		}
	}

	require.Len(t, got, 10)
	for _, v := range r {
		require.True(t, got[v])
	}
}

func TestEncryptRejectsDuplicateInputs(t *testing.T) {
	clientParams, _ := newSessionParams(t, 4, 4, 8)
	receiver := psi.NewReceiver(clientParams)
	rnd := rand.New(rand.NewPCG(7, 8))

	_, _, err := receiver.Encrypt(rnd, []uint64{1, 1, 2, 3})
	require.ErrorIs(t, err, psi.ErrDeduplicationHole)
}
