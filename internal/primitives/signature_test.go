package primitives

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	digest := Sum256([]byte("a transaction's signing digest"))

	sig, err := Sign(priv, digest)
	require.NoError(t, err)
	require.True(t, Verify(priv.Public(), digest, sig))
}

func TestSignIsDeterministic(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	digest := Sum256([]byte("same message"))

	sig1, err := Sign(priv, digest)
	require.NoError(t, err)
	sig2, err := Sign(priv, digest)
	require.NoError(t, err)
	require.Equal(t, sig1, sig2)
}

func TestVerifyRejectsWrongKey(t *testing.T) {
	priv1, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	priv2, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	digest := Sum256([]byte("payload"))

	sig, err := Sign(priv1, digest)
	require.NoError(t, err)
	require.False(t, Verify(priv2.Public(), digest, sig))
}

func TestVerifyRejectsTamperedDigest(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	digest := Sum256([]byte("payload"))
	other := Sum256([]byte("different payload"))

	sig, err := Sign(priv, digest)
	require.NoError(t, err)
	require.False(t, Verify(priv.Public(), other, sig))
}

func TestSignatureBytesRoundTrip(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	digest := Sum256([]byte("x"))
	sig, err := Sign(priv, digest)
	require.NoError(t, err)

	encoded := sig.Bytes()
	require.Len(t, encoded, 64)

	decoded, err := SignatureFromBytes(encoded)
	require.NoError(t, err)
	require.Equal(t, sig.R, decoded.R)
	require.Equal(t, sig.S, decoded.S)
	require.True(t, Verify(priv.Public(), digest, decoded))
}

func TestSignatureFromBytesRejectsWrongLength(t *testing.T) {
	_, err := SignatureFromBytes(make([]byte, 63))
	require.Error(t, err)
}

func TestPrivateKeyBytesRoundTrip(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)

	back, err := PrivateKeyFromBytes(priv.Bytes())
	require.NoError(t, err)
	require.Equal(t, priv.Public().CompressedBytes(), back.Public().CompressedBytes())
}

func TestCompressedPublicKeyRoundTrip(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	compressed := priv.Public().CompressedBytes()
	require.Len(t, compressed, 33)

	pub, err := PublicKeyFromCompressed(compressed)
	require.NoError(t, err)
	require.Equal(t, compressed, pub.CompressedBytes())
}

func TestPublicKeyFromCompressedRejectsMalformed(t *testing.T) {
	_, err := PublicKeyFromCompressed(make([]byte, 32))
	require.Error(t, err)

	bad := make([]byte, 33)
	bad[0] = 0x04
	_, err = PublicKeyFromCompressed(bad)
	require.Error(t, err)
}
