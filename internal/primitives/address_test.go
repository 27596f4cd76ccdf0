package primitives

import (
	"crypto/rand"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodeParseAddressRoundTrip(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)

	addr, err := EncodeAddress(priv.Public(), AddressPrefixD)
	require.NoError(t, err)
	require.Equal(t, byte(AddressPrefixD), addr[0])

	parsed, err := ParseAddress(addr)
	require.NoError(t, err)
	require.Equal(t, priv.Public().CompressedBytes(), parsed.PublicKey.CompressedBytes())
	require.Equal(t, addr, parsed.String())
}

func TestEncodeAddressRejectsUnknownPrefix(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = EncodeAddress(priv.Public(), 'Z')
	require.Error(t, err)
}

func TestParseAddressRejectsBadChecksum(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := EncodeAddress(priv.Public(), AddressPrefixE)
	require.NoError(t, err)

	tampered := []byte(addr)
	last := len(tampered) - 1
	if tampered[last] == 'a' {
		tampered[last] = 'b'
	} else {
		tampered[last] = 'a'
	}
	_, err = ParseAddress(string(tampered))
	require.Error(t, err)
}

func TestParseAddressRejectsWrongLength(t *testing.T) {
	_, err := ParseAddress("D1234")
	require.Error(t, err)
}

func TestParseAddressRejectsUnknownPrefix(t *testing.T) {
	priv, err := GenerateKey(rand.Reader)
	require.NoError(t, err)
	addr, err := EncodeAddress(priv.Public(), AddressPrefixD)
	require.NoError(t, err)
	mutated := "Z" + addr[1:]
	_, err = ParseAddress(mutated)
	require.Error(t, err)
}
