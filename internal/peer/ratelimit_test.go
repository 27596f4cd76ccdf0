package peer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestRateLimiterAllowsUpToCapacity(t *testing.T) {
	rl := NewRateLimiter(3)
	now := time.Unix(0, 0)
	for i := 0; i < 3; i++ {
		require.True(t, rl.Allow("/get_status", "1.2.3.4", now))
	}
	require.False(t, rl.Allow("/get_status", "1.2.3.4", now))
}

func TestRateLimiterRefillsOverTime(t *testing.T) {
	rl := NewRateLimiter(60) // 1/sec
	now := time.Unix(0, 0)
	for i := 0; i < 60; i++ {
		require.True(t, rl.Allow("/get_peers", "key", now))
	}
	require.False(t, rl.Allow("/get_peers", "key", now))

	later := now.Add(2 * time.Second)
	require.True(t, rl.Allow("/get_peers", "key", later))
}

func TestRateLimiterKeysAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Unix(0, 0)
	require.True(t, rl.Allow("/get_status", "a", now))
	require.False(t, rl.Allow("/get_status", "a", now))
	require.True(t, rl.Allow("/get_status", "b", now))
}

func TestRateLimiterEndpointsAreIndependent(t *testing.T) {
	rl := NewRateLimiter(1)
	now := time.Unix(0, 0)
	require.True(t, rl.Allow("/get_status", "a", now))
	require.True(t, rl.Allow("/get_peers", "a", now))
}
