package primitives

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSum256Deterministic(t *testing.T) {
	a := Sum256([]byte("hello"))
	b := Sum256([]byte("hello"))
	require.Equal(t, a, b)
	require.NotEqual(t, a, Sum256([]byte("world")))
}

func TestHashHexRoundTrip(t *testing.T) {
	h := Sum256([]byte("denaro"))
	back, err := HashFromHex(h.String())
	require.NoError(t, err)
	require.Equal(t, h, back)
}

func TestHashFromHexRejectsMalformed(t *testing.T) {
	_, err := HashFromHex("not-hex")
	require.Error(t, err)

	_, err = HashFromHex("aabb")
	require.Error(t, err)
}

func TestIsZero(t *testing.T) {
	var z Hash
	require.True(t, z.IsZero())
	require.False(t, Sum256([]byte("x")).IsZero())
}

func TestHasherMatchesSum256(t *testing.T) {
	data := []byte("streamed data")
	hr := NewHasher()
	_, err := hr.Write(data[:5])
	require.NoError(t, err)
	_, err = hr.Write(data[5:])
	require.NoError(t, err)
	require.Equal(t, Sum256(data), hr.Sum())
}
