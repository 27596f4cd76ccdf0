package peer

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestUpsertThenGet(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	reg.Upsert("node-1", "pub-1", "http://a", true, "1", now)

	r, ok := reg.Get("node-1")
	require.True(t, ok)
	require.Equal(t, "node-1", r.NodeID)
	require.Equal(t, "http://a", r.URL)
}

func TestUpsertRefreshesExisting(t *testing.T) {
	reg := NewRegistry()
	t0 := time.Unix(1_700_000_000, 0)
	reg.Upsert("node-1", "pub-1", "http://a", true, "1", t0)

	t1 := t0.Add(time.Minute)
	reg.Upsert("node-1", "pub-1", "http://a", true, "1", t1)

	r, ok := reg.Get("node-1")
	require.True(t, ok)
	require.Equal(t, t1, r.LastSeen)
}

func TestAdjustBansOnThresholdCrossing(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	r := reg.Upsert("node-1", "pub-1", "http://a", true, "1", now)

	require.False(t, r.IsBanned(now))
	r.Adjust(ScoreProtocolViolation*2, now)
	require.True(t, r.IsBanned(now))
	require.False(t, r.IsBanned(now.Add(2*time.Hour)))
}

func TestAdjustDoublesBanDurationOnRepeatOffense(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	r := reg.Upsert("node-1", "pub-1", "http://a", true, "1", now)

	r.Adjust(BanThreshold, now)
	require.True(t, r.IsBanned(now))
	firstExpiry := r.BannedUntil

	afterFirstBan := firstExpiry.Add(time.Second)
	r.Adjust(BanThreshold, afterFirstBan)
	require.True(t, r.BannedUntil.Sub(afterFirstBan) > firstExpiry.Sub(now))
}

func TestActiveExcludesBannedAndInactive(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)

	reg.Upsert("active", "pub", "http://a", true, "1", now)

	banned := reg.Upsert("banned", "pub", "http://b", true, "1", now)
	banned.Adjust(BanThreshold, now)

	reg.Upsert("stale", "pub", "http://c", true, "1", now.Add(-8*24*time.Hour))

	got := reg.Active(now)
	ids := make(map[string]bool)
	for _, r := range got {
		ids[r.NodeID] = true
	}
	require.True(t, ids["active"])
	require.False(t, ids["banned"])
	require.False(t, ids["stale"])
}

func TestPruneRemovesInactiveUnbannedPeers(t *testing.T) {
	reg := NewRegistry()
	now := time.Unix(1_700_000_000, 0)
	reg.Upsert("stale", "pub", "http://c", true, "1", now.Add(-8*24*time.Hour))
	banned := reg.Upsert("banned-stale", "pub", "http://d", true, "1", now.Add(-8*24*time.Hour))
	banned.Adjust(BanThreshold, now)

	reg.Prune(now)

	_, staleOK := reg.Get("stale")
	require.False(t, staleOK)
	_, bannedOK := reg.Get("banned-stale")
	require.True(t, bannedOK)
}

func TestUpsertEvictsLRUWhenFull(t *testing.T) {
	reg := NewRegistry()
	base := time.Unix(1_700_000_000, 0)
	for i := 0; i < MaxPeersCount; i++ {
		reg.Upsert(fmt.Sprintf("a%d", i), "pub", "http://x", true, "1", base.Add(time.Duration(i)*time.Second))
	}
	// The oldest record (i=0) should still be present before the cap is exceeded.
	_, ok := reg.Get("a0")
	require.True(t, ok)

	reg.Upsert("newcomer", "pub", "http://y", true, "1", base.Add(time.Duration(MaxPeersCount)*time.Second))
	_, evicted := reg.Get("a0")
	require.False(t, evicted)
	_, present := reg.Get("newcomer")
	require.True(t, present)
}
