package peer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewIdentityDerivesNodeIDFromPubkey(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	require.NotEmpty(t, id.NodeID)
	require.NotEmpty(t, id.PublicKeyHex())
}

func TestLoadIdentityRoundTrip(t *testing.T) {
	orig, err := NewIdentity()
	require.NoError(t, err)

	loaded, err := LoadIdentity(orig.Private.Bytes())
	require.NoError(t, err)
	require.Equal(t, orig.NodeID, loaded.NodeID)
	require.Equal(t, orig.PublicKeyHex(), loaded.PublicKeyHex())
}

func TestDistinctIdentitiesHaveDistinctNodeIDs(t *testing.T) {
	a, err := NewIdentity()
	require.NoError(t, err)
	b, err := NewIdentity()
	require.NoError(t, err)
	require.NotEqual(t, a.NodeID, b.NodeID)
}
