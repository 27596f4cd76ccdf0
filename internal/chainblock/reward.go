package chainblock

import "github.com/The-Sycorax/denaro/internal/amount"

// HalvingIntervalBlocks is the number of blocks between reward halvings:
// 262144 = 2^18.
const HalvingIntervalBlocks = 262144

// MaxHalvings is the halving count at which the reward reaches zero.
const MaxHalvings = 64

// MaxSupply is the accumulated-supply cap in whole coins.
const MaxSupply = 33_554_432

// baseRewardUnits is 64 coins in smallest units.
const baseRewardUnits = 64_000_000

// RewardForHeight implements reward(height) = 64 · 2^-⌊(height-1)/262144⌋,
// zeroed once the halving count reaches MaxHalvings or accumulatedSupply
// would exceed MaxSupply.
func RewardForHeight(height int64, accumulatedSupply amount.Amount) amount.Amount {
	if height < 1 {
		return 0
	}
	halvings := (height - 1) / HalvingIntervalBlocks
	if halvings >= MaxHalvings {
		return 0
	}
	reward := int64(baseRewardUnits) >> uint(halvings)
	if reward == 0 {
		return 0
	}
	maxUnits := int64(MaxSupply) * 1_000_000
	if int64(accumulatedSupply)+reward > maxUnits {
		remaining := maxUnits - int64(accumulatedSupply)
		if remaining <= 0 {
			return 0
		}
		reward = remaining
	}
	a, _ := amount.FromSmallestUnits(reward)
	return a
}
