package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestLocatorStartsAtHeightAndEndsAtOne(t *testing.T) {
	loc := Locator(10)
	require.Equal(t, int64(10), loc[0])
	require.Equal(t, int64(1), loc[len(loc)-1])
}

func TestLocatorIsDoublingBackoff(t *testing.T) {
	loc := Locator(100)
	require.Equal(t, int64(100), loc[0])
	require.Equal(t, int64(99), loc[1])
	require.Equal(t, int64(98), loc[2])
	require.Equal(t, int64(96), loc[3])
}

func TestLocatorHandlesSmallHeights(t *testing.T) {
	require.Equal(t, []int64{1}, Locator(1))
	require.Empty(t, Locator(0))
}

func TestShouldSync(t *testing.T) {
	require.True(t, ShouldSync(10, &HandshakeInfo{TipHeight: 11}))
	require.True(t, ShouldSync(10, &HandshakeInfo{TipHeight: 20}))
	require.False(t, ShouldSync(10, &HandshakeInfo{TipHeight: 10}))
	require.False(t, ShouldSync(10, &HandshakeInfo{TipHeight: 9}))
}
