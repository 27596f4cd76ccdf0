package consensus

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/The-Sycorax/denaro/internal/chainblock"
)

func TestCumulativeWorkEmpty(t *testing.T) {
	require.Equal(t, float64(0), CumulativeWork(nil))
}

func TestCumulativeWorkSumsPowersOfSixteen(t *testing.T) {
	difficulties := []chainblock.Difficulty{
		chainblock.NewDifficulty(1.0),
		chainblock.NewDifficulty(2.0),
	}
	want := math.Pow(16, 1.0) + math.Pow(16, 2.0)
	got := CumulativeWork(difficulties)
	require.InDelta(t, want, got, 1e-9)
}

func TestCumulativeWorkIsMonotonicInDifficulty(t *testing.T) {
	low := CumulativeWork([]chainblock.Difficulty{chainblock.NewDifficulty(1.0)})
	high := CumulativeWork([]chainblock.Difficulty{chainblock.NewDifficulty(2.0)})
	require.Greater(t, high, low)
}

func TestVersionForHeight(t *testing.T) {
	v0 := versionFor(0)
	v1 := versionFor(1)
	require.Equal(t, v0, v1)
}
