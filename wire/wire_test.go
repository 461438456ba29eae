package wire_test

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/privcats/labeled-psi/internal/fhe"
	"github.com/privcats/labeled-psi/internal/fhe/bgvbackend"
	"github.com/privcats/labeled-psi/psi"
	"github.com/privcats/labeled-psi/wire"
)

func testParams(t *testing.T) *psi.Params {
	t.Helper()
	params, err := psi.NewParams(bgvbackend.Backend{}, 1<<8, 1<<8, 32, 13, 1, 0)
	require.NoError(t, err)
	return params
}

func newBoundReader(r *bytes.Buffer, params *psi.Params) *wire.Reader {
	reader := wire.NewReader(r)
	reader.BindContext(params.Backend(), params.Context())
	return reader
}

func TestHelloRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WriteHello())

	params := testParams(t)
	r := newBoundReader(&buf, params)
	require.NoError(t, r.ReadHello())
}

func TestHelloRejectsBadMagic(t *testing.T) {
	var buf bytes.Buffer
	buf.Write([]byte{0, 0, 0, 0, 0, 0, 0, 0})

	params := testParams(t)
	r := newBoundReader(&buf, params)
	err := r.ReadHello()
	require.Error(t, err)
	var badMagic *wire.ErrBadMagic
	require.ErrorAs(t, err, &badMagic)
}

func TestUint64sRoundTrip(t *testing.T) {
	params := testParams(t)
	values := []uint64{1, 2, 3, 18446744073709551615}

	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WriteUint64s(values))

	r := newBoundReader(&buf, params)
	got, err := r.ReadUint64s()
	require.NoError(t, err)
	require.Equal(t, values, got)
}

func TestCiphertextRoundTrip(t *testing.T) {
	params := testParams(t)
	backend, ctx := params.Backend(), params.Context()

	kgen := backend.NewKeyGenerator(ctx)
	sk, pk := kgen.GenKeyPair()
	encoder := backend.NewEncoder(ctx)
	encryptor := backend.NewEncryptor(ctx, pk)
	decryptor := backend.NewDecryptor(ctx, sk)

	values := make([]uint64, ctx.SlotCount())
	for i := range values {
		values[i] = uint64(i % 7)
	}
	ct := encryptor.Encrypt(encoder.Encode(values))

	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WriteCiphertext(ct))

	r := newBoundReader(&buf, params)
	gotCt, err := r.ReadCiphertext()
	require.NoError(t, err)

	got := encoder.Decode(decryptor.Decrypt(gotCt))
	require.Equal(t, values, got[:len(values)])
}

func TestCiphertextsRoundTrip(t *testing.T) {
	params := testParams(t)
	backend, ctx := params.Backend(), params.Context()

	kgen := backend.NewKeyGenerator(ctx)
	_, pk := kgen.GenKeyPair()
	encoder := backend.NewEncoder(ctx)
	encryptor := backend.NewEncryptor(ctx, pk)

	cts := make([]fhe.Ciphertext, 3)
	for i := range cts {
		values := make([]uint64, ctx.SlotCount())
		values[0] = uint64(i)
		cts[i] = encryptor.Encrypt(encoder.Encode(values))
	}

	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WriteCiphertexts(cts))

	r := newBoundReader(&buf, params)
	got, err := r.ReadCiphertexts()
	require.NoError(t, err)
	require.Len(t, got, 3)
}

func TestPublicKeyRoundTrip(t *testing.T) {
	params := testParams(t)
	backend, ctx := params.Backend(), params.Context()

	kgen := backend.NewKeyGenerator(ctx)
	_, pk := kgen.GenKeyPair()

	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WritePublicKey(pk))

	r := newBoundReader(&buf, params)
	gotPk, err := r.ReadPublicKey()
	require.NoError(t, err)

	// A round-tripped public key must still encrypt usable ciphertexts.
	encoder := backend.NewEncoder(ctx)
	encryptor := backend.NewEncryptor(ctx, gotPk)
	values := make([]uint64, ctx.SlotCount())
	values[1] = 42
	ct := encryptor.Encrypt(encoder.Encode(values))
	require.NotNil(t, ct)
}

func TestRelinKeysRoundTrip(t *testing.T) {
	params := testParams(t)
	backend, ctx := params.Backend(), params.Context()

	kgen := backend.NewKeyGenerator(ctx)
	sk, pk := kgen.GenKeyPair()
	rk := kgen.GenRelinKeys(sk)

	var buf bytes.Buffer
	require.NoError(t, wire.NewWriter(&buf).WriteRelinKeys(rk))

	r := newBoundReader(&buf, params)
	gotRk, err := r.ReadRelinKeys()
	require.NoError(t, err)

	encoder := backend.NewEncoder(ctx)
	encryptor := backend.NewEncryptor(ctx, pk)
	evaluator := backend.NewEvaluator(ctx, gotRk)

	values := make([]uint64, ctx.SlotCount())
	values[0] = 3
	ct := encryptor.Encrypt(encoder.Encode(values))
	squared := evaluator.Square(ct)

	decryptor := backend.NewDecryptor(ctx, sk)
	got := encoder.Decode(decryptor.Decrypt(squared))
	require.Equal(t, uint64(9), got[0])
}
