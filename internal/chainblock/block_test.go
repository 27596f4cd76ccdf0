package chainblock

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/The-Sycorax/denaro/internal/amount"
)

func TestDifficultyPredicateNoFraction(t *testing.T) {
	// Whole=2: the candidate hash must start with the last 2 hex chars of
	// prevHash ("44"); with f=0 any char is allowed at position 2.
	d := NewDifficulty(2.0)
	prevHash := "abcdef0011223344"
	require.True(t, SatisfiesPredicate("44ffffffffffffffffffffff", prevHash, d))
	require.False(t, SatisfiesPredicate("45ffffffffffffffffffffff", prevHash, d))
}

func TestDifficultyPredicateWithFraction(t *testing.T) {
	// f=0.5 -> count = ceil(16*0.5) = 8, so only hex chars 0-7 are allowed
	// at position d (here, position 2).
	d := NewDifficulty(2.5)
	prevHash := "abcdef0011223344"
	require.True(t, SatisfiesPredicate("447fffffffffffffffffffff", prevHash, d))
	require.False(t, SatisfiesPredicate("44ffffffffffffffffffffff", prevHash, d))
}

func TestRewardHalvingSchedule(t *testing.T) {
	require.Equal(t, "64.000000", RewardForHeight(1, 0).String())
	require.Equal(t, "32.000000", RewardForHeight(262145, 0).String())
	require.Equal(t, "0.000000", RewardForHeight(262144*64+1, 0).String())
}

func TestRewardCapsAtMaxSupply(t *testing.T) {
	nearCap, err := amount.Parse("33554431.999999")
	require.NoError(t, err)
	r := RewardForHeight(1, nearCap)
	require.Equal(t, "0.000001", r.String())
}

func TestDifficultyAdjustmentClampedAndBounded(t *testing.T) {
	prev := NewDifficulty(10.0)
	// Window took much longer than target: difficulty must drop, but by
	// at most one whole unit.
	next := NextDifficulty(prev, TargetWindowSeconds*100)
	require.GreaterOrEqual(t, int(next), int(prev)-10)
	require.Less(t, int(next), int(prev))

	// Window was much faster than target: difficulty must rise, clamped.
	next = NextDifficulty(prev, TargetWindowSeconds/100)
	require.LessOrEqual(t, int(next), int(prev)+10)
	require.Greater(t, int(next), int(prev))
}

func TestBlockEncodeDecodeRoundTrip(t *testing.T) {
	b := &Block{
		ID:           1,
		MinerAddress: "Dtestminertestminertestminertestminertestmi",
		Nonce:        42,
		Difficulty:   StartDifficulty,
		Reward:       mustAmount(t, "64.000000"),
		Timestamp:    1700000000,
	}
	encoded, err := b.Encode()
	require.NoError(t, err)
	decoded, err := Decode(encoded)
	require.NoError(t, err)
	require.Equal(t, b.ID, decoded.ID)
	require.Equal(t, b.MinerAddress, decoded.MinerAddress)
	require.Equal(t, b.Nonce, decoded.Nonce)
	require.Equal(t, b.Difficulty, decoded.Difficulty)
	require.Equal(t, b.Reward, decoded.Reward)
	require.Equal(t, b.Hash(), decoded.Hash())
}

func mustAmount(t *testing.T, s string) amount.Amount {
	t.Helper()
	a, err := amount.Parse(s)
	require.NoError(t, err)
	return a
}
