package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSignVerifyRoundTrip(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	body := []byte(`{"hello":"world"}`)

	headers, err := Sign(id, "1", "POST", "/push_block", body, now)
	require.NoError(t, err)
	require.Equal(t, id.NodeID, headers.NodeID)

	err = Verify(headers, "POST", "/push_block", body, now)
	require.NoError(t, err)
}

func TestVerifyRejectsStaleTimestamp(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	signedAt := time.Unix(1_700_000_000, 0)
	body := []byte("payload")

	headers, err := Sign(id, "1", "POST", "/push_block", body, signedAt)
	require.NoError(t, err)

	tooLate := signedAt.Add((MaxTimestampSkewSeconds + 1) * time.Second)
	err = Verify(headers, "POST", "/push_block", body, tooLate)
	require.Error(t, err)
}

func TestVerifyRejectsTamperedBody(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)

	headers, err := Sign(id, "1", "POST", "/push_block", []byte("original"), now)
	require.NoError(t, err)

	err = Verify(headers, "POST", "/push_block", []byte("tampered"), now)
	require.Error(t, err)
}

func TestVerifyRejectsMismatchedNodeID(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	body := []byte("payload")

	headers, err := Sign(id, "1", "GET", "/get_status", body, now)
	require.NoError(t, err)
	headers.NodeID = "0000000000000000000000000000000000000000000000000000000000000"

	err = Verify(headers, "GET", "/get_status", body, now)
	require.Error(t, err)
}

func TestVerifyRejectsWrongPath(t *testing.T) {
	id, err := NewIdentity()
	require.NoError(t, err)
	now := time.Unix(1_700_000_000, 0)
	body := []byte("payload")

	headers, err := Sign(id, "1", "POST", "/push_block", body, now)
	require.NoError(t, err)

	err = Verify(headers, "POST", "/push_blocks", body, now)
	require.Error(t, err)
}
