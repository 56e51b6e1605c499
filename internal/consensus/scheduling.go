package consensus

import (
	"crypto/ed25519"
	"sync"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// Scheduler determines which validator is scheduled to produce at a given
// height/shard, per spec.md §4.4. An override schedule (height -> shard ->
// pubkey) takes precedence when populated.
type Scheduler struct {
	pool *ValidatorPool

	mu        sync.RWMutex
	overrides map[types.BlockHeight]map[types.ShardId]ed25519.PublicKey
}

// NewScheduler builds a Scheduler over pool.
func NewScheduler(pool *ValidatorPool) *Scheduler {
	return &Scheduler{
		pool:      pool,
		overrides: make(map[types.BlockHeight]map[types.ShardId]ed25519.PublicKey),
	}
}

// SetOverride pins the scheduled producer for (height, shard) to pub,
// bypassing the deterministic rotation.
func (s *Scheduler) SetOverride(height types.BlockHeight, shard types.ShardId, pub ed25519.PublicKey) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.overrides[height] == nil {
		s.overrides[height] = make(map[types.ShardId]ed25519.PublicKey)
	}
	s.overrides[height][shard] = pub
}

// ScheduledProducer returns the validator scheduled to produce at (height,
// shard): the override if one is set, else the validator at deterministic
// position height mod |shard_set| in the shard's insertion order.
func (s *Scheduler) ScheduledProducer(height types.BlockHeight, shard types.ShardId) (*Validator, bool) {
	s.mu.RLock()
	if byShard, ok := s.overrides[height]; ok {
		if pub, ok := byShard[shard]; ok {
			s.mu.RUnlock()
			return s.pool.GetByPubKey(pub)
		}
	}
	s.mu.RUnlock()

	members := s.pool.ShardValidators(shard)
	if len(members) == 0 {
		return nil, false
	}
	idx := int(uint64(height) % uint64(len(members)))
	return s.pool.Get(members[idx])
}

// IsScheduled reports whether pub is the validator scheduled to produce at
// (height, shard).
func (s *Scheduler) IsScheduled(height types.BlockHeight, shard types.ShardId, pub ed25519.PublicKey) bool {
	v, ok := s.ScheduledProducer(height, shard)
	if !ok {
		return false
	}
	return string(v.PublicKey) == string(pub)
}
