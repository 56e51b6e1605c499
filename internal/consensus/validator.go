// Package consensus implements the C5 DPoS consensus engine: validator pool
// management, shard assignment, producer scheduling, block production and
// validation, finality tracking, and reward/slashing accounting, per
// spec.md §4.4.
package consensus

import (
	"bytes"
	"crypto/ed25519"
	"sync"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// ValidatorState is the per-validator state machine of spec.md §4.4.
type ValidatorState uint8

const (
	StateActive ValidatorState = iota
	StateJailed
	StateBanned
)

// ValidatorMetrics tracks a validator's production history.
type ValidatorMetrics struct {
	BlocksProduced       uint64
	TransactionsProcessed uint64
	MissedSlots          uint64
	RewardsEarned        uint64
	SlashingEvents       uint64
}

// Validator is owned exclusively by the consensus engine (spec.md §3).
type Validator struct {
	ID             types.Hash
	PublicKey      ed25519.PublicKey
	StakingAddress types.Address
	StakingAmount  uint64
	DelegatedStake uint64
	CommissionRate float64 // [0, 1]
	Uptime         float64 // [0, 1]
	LastActive     types.Timestamp

	Metrics ValidatorMetrics

	VotingPower      float64 // derived
	ShardAssignments []types.ShardId
	HardwareCapability int

	State ValidatorState
}

// TotalStake is staking_amount + delegated_stake.
func (v *Validator) TotalStake() uint64 {
	return v.StakingAmount + v.DelegatedStake
}

// RecomputeVotingPower sets VotingPower = (total_stake / pool_total_stake) *
// uptime, per spec.md §3.
func (v *Validator) RecomputeVotingPower(poolTotalStake uint64) {
	if poolTotalStake == 0 {
		v.VotingPower = 0
		return
	}
	v.VotingPower = (float64(v.TotalStake()) / float64(poolTotalStake)) * v.Uptime
}

// RecomputeUptime sets uptime = blocks_produced / (blocks_produced +
// missed_slots), called after every recorded slot, per spec.md §4.4.
func (v *Validator) RecomputeUptime() {
	total := v.Metrics.BlocksProduced + v.Metrics.MissedSlots
	if total == 0 {
		v.Uptime = 1
		return
	}
	v.Uptime = float64(v.Metrics.BlocksProduced) / float64(total)
}

// ValidatorPool maintains the by-id and by-pubkey maps, the per-shard sets, and
// the running total stake, per spec.md §4.4.
type ValidatorPool struct {
	mu sync.RWMutex

	byID     map[types.Hash]*Validator
	byPubKey map[string]*Validator
	byShard  map[types.ShardId]map[types.Hash]struct{}
	// shardOrder preserves assignment (insertion) order per shard, since
	// producer scheduling (spec.md §4.4) indexes into this order deterministically.
	shardOrder map[types.ShardId][]types.Hash

	totalStake uint64
}

// NewValidatorPool returns an empty pool.
func NewValidatorPool() *ValidatorPool {
	return &ValidatorPool{
		byID:       make(map[types.Hash]*Validator),
		byPubKey:   make(map[string]*Validator),
		byShard:    make(map[types.ShardId]map[types.Hash]struct{}),
		shardOrder: make(map[types.ShardId][]types.Hash),
	}
}

// Add inserts v into the by-id and by-pubkey indices, adds its stake to the
// running total, and recomputes voting powers across the pool. Shard
// membership is not set here; AssignValidatorsToShards assigns it.
func (p *ValidatorPool) Add(v *Validator) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.byID[v.ID] = v
	p.byPubKey[string(v.PublicKey)] = v
	p.totalStake += v.TotalStake()
	p.recomputeVotingPowersLocked()
}

// Remove deletes the validator with the given id from every index.
func (p *ValidatorPool) Remove(id types.Hash) {
	p.mu.Lock()
	defer p.mu.Unlock()

	v, ok := p.byID[id]
	if !ok {
		return
	}
	delete(p.byID, id)
	delete(p.byPubKey, string(v.PublicKey))
	for _, sid := range v.ShardAssignments {
		delete(p.byShard[sid], id)
		order := p.shardOrder[sid]
		for i, sv := range order {
			if sv == id {
				p.shardOrder[sid] = append(order[:i], order[i+1:]...)
				break
			}
		}
	}
	p.totalStake -= v.TotalStake()
	p.recomputeVotingPowersLocked()
}

func (p *ValidatorPool) recomputeVotingPowersLocked() {
	for _, v := range p.byID {
		v.RecomputeVotingPower(p.totalStake)
	}
}

// Get returns the validator with the given id.
func (p *ValidatorPool) Get(id types.Hash) (*Validator, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.byID[id]
	return v, ok
}

// GetByPubKey returns the validator with the given public key.
func (p *ValidatorPool) GetByPubKey(pub ed25519.PublicKey) (*Validator, bool) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	v, ok := p.byPubKey[string(pub)]
	return v, ok
}

// TotalStake returns the pool's running total stake.
func (p *ValidatorPool) TotalStake() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.totalStake
}

// ShardValidators returns the (insertion-ordered) validator ids assigned to
// shard, per the order recorded by AssignValidatorsToShards.
func (p *ValidatorPool) ShardValidators(shard types.ShardId) []types.Hash {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return append([]types.Hash(nil), p.shardOrder[shard]...)
}

// AssignValidatorsToShards sorts validators by total_stake desc and assigns
// the validator at sorted index i to shard i mod N, per spec.md §4.4.
func (p *ValidatorPool) AssignValidatorsToShards(n int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	ids := make([]types.Hash, 0, len(p.byID))
	for id := range p.byID {
		ids = append(ids, id)
	}
	sortByStakeDesc(ids, p.byID)

	p.byShard = make(map[types.ShardId]map[types.Hash]struct{})
	p.shardOrder = make(map[types.ShardId][]types.Hash)

	for i, id := range ids {
		shard := types.ShardId(i % n)
		v := p.byID[id]
		v.ShardAssignments = []types.ShardId{shard}
		if p.byShard[shard] == nil {
			p.byShard[shard] = make(map[types.Hash]struct{})
		}
		p.byShard[shard][id] = struct{}{}
		p.shardOrder[shard] = append(p.shardOrder[shard], id)
	}
}

// sortByStakeDesc orders ids by total_stake desc, breaking ties by id so
// that shard assignment (and hence producer scheduling, spec.md §4.4) is
// deterministic across nodes even when two validators share identical
// stake — map iteration order alone must never decide this.
func sortByStakeDesc(ids []types.Hash, byID map[types.Hash]*Validator) {
	// Simple insertion sort is adequate at validator-pool scale (hundreds, not
	// millions) and keeps the comparison/tiebreak logic easy to read.
	for i := 1; i < len(ids); i++ {
		for j := i; j > 0; j-- {
			a, b := byID[ids[j-1]], byID[ids[j]]
			if stakeOrderLess(a, b, ids[j-1], ids[j]) {
				break
			}
			ids[j-1], ids[j] = ids[j], ids[j-1]
		}
	}
}

// stakeOrderLess reports whether validator x (id xID) sorts strictly before
// y (id yID) in the desc-by-stake, asc-by-id order AssignValidatorsToShards
// needs.
func stakeOrderLess(x, y *Validator, xID, yID types.Hash) bool {
	if x.TotalStake() != y.TotalStake() {
		return x.TotalStake() > y.TotalStake()
	}
	return bytes.Compare(xID[:], yID[:]) < 0
}
