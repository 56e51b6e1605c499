package consensus

import (
	"math"

	"github.com/meridian-chain/meridian-node/internal/core"
)

// RewardConfig holds the knobs that parameterise block rewards.
type RewardConfig struct {
	BaseBlockReward uint64
	PerTxReward     uint64
	HalvingInterval uint64
}

// Reward computes reward(block) = (base_block_reward + tx_count *
// per_tx_reward) / halving_divisor, where halving_divisor = 2^(block.index /
// halving_interval), per spec.md §4.4.
func Reward(cfg RewardConfig, block *core.Block, txCount int) uint64 {
	numerator := cfg.BaseBlockReward + uint64(txCount)*cfg.PerTxReward
	halvings := uint64(block.Header.Index) / cfg.HalvingInterval
	divisor := uint64(1) << halvings
	if divisor == 0 {
		return 0
	}
	return numerator / divisor
}

// SplitReward divides a producer's total reward between the producer and its
// delegators: delegators receive (1 - commission) * share of the reward
// proportional to delegated stake's share of total stake.
func SplitReward(total uint64, v *Validator) (producerShare, delegatorShare uint64) {
	ts := v.TotalStake()
	if ts == 0 {
		return total, 0
	}
	delegatedFraction := float64(v.DelegatedStake) / float64(ts)
	delegatorGross := uint64(math.Floor(float64(total) * delegatedFraction))
	delegatorNet := uint64(math.Floor(float64(delegatorGross) * (1 - v.CommissionRate)))
	producerShare = total - delegatorNet
	return producerShare, delegatorNet
}

// ApplySlashing reduces v's staking_amount by floor(fraction * staking_amount),
// capped at current stake, and returns the amount actually seized, per
// spec.md §4.4.
func ApplySlashing(v *Validator, fraction float64) uint64 {
	seized := uint64(math.Floor(fraction * float64(v.StakingAmount)))
	if seized > v.StakingAmount {
		seized = v.StakingAmount
	}
	v.StakingAmount -= seized
	v.Metrics.SlashingEvents++
	return seized
}

// RecordSlot updates a validator's produced/missed counters for a single slot
// and recomputes its uptime, per spec.md §4.4.
func RecordSlot(v *Validator, produced bool) {
	if produced {
		v.Metrics.BlocksProduced++
	} else {
		v.Metrics.MissedSlots++
	}
	v.RecomputeUptime()
}
