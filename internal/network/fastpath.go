package network

import (
	"sort"
	"sync"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// FastPathTypes is the default message-type set eligible for the fast path
// when priority alone doesn't already qualify a message, per spec.md §4.5.7.
var FastPathTypes = map[MessageType]struct{}{
	MsgBlockAnnouncement:       {},
	MsgTransactionAnnouncement: {},
	MsgCheckpointVote:          {},
}

// PeerScore is the [0,1]-normalised score spec.md §4.5.7 weights: success
// rate 0.6, ping 0.3, uptime 0.1.
type PeerScore struct {
	SuccessRate float64 // [0,1]
	PingScore   float64 // [0,1], 1 = lowest latency
	Uptime      float64 // [0,1]
}

// Score combines the three normalised inputs per spec.md §4.5.7's weights.
func (s PeerScore) Score() float64 {
	return s.SuccessRate*0.6 + s.PingScore*0.3 + s.Uptime*0.1
}

// ScoreFunc computes a PeerScore for a node, supplied by the caller (the
// bandwidth/reputation subsystems own the underlying raw metrics).
type ScoreFunc func(nodeID types.Hash) PeerScore

// FastPathSet maintains the min..max "fast-path peers" of spec.md §4.5.7.
type FastPathSet struct {
	mu       sync.RWMutex
	min, max int
	members  map[types.Hash]struct{}
}

// NewFastPathSet returns an empty fast-path set bounded by [min, max].
func NewFastPathSet(min, max int) *FastPathSet {
	return &FastPathSet{min: min, max: max, members: make(map[types.Hash]struct{})}
}

// Refresh recomputes the fast-path membership from the current connected
// peer set and a scoring function, keeping the top `max` scorers and never
// falling below `min` while candidates remain.
func (f *FastPathSet) Refresh(peers []*Peer, score ScoreFunc) {
	type scored struct {
		id types.Hash
		s  float64
	}
	ranked := make([]scored, 0, len(peers))
	for _, p := range peers {
		ranked = append(ranked, scored{id: p.NodeID, s: score(p.NodeID).Score()})
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].s > ranked[j].s })

	n := f.max
	if n > len(ranked) {
		n = len(ranked)
	}
	if n < f.min && len(ranked) >= f.min {
		n = f.min
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.members = make(map[types.Hash]struct{}, n)
	for i := 0; i < n; i++ {
		f.members[ranked[i].id] = struct{}{}
	}
}

// BelowMinimum reports whether the current set has fallen below the
// configured minimum, triggering an immediate refresh per spec.md §4.5.7.
func (f *FastPathSet) BelowMinimum() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return len(f.members) < f.min
}

// Contains reports whether nodeID is currently a fast-path peer.
func (f *FastPathSet) Contains(nodeID types.Hash) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	_, ok := f.members[nodeID]
	return ok
}

// Members returns a snapshot of the current fast-path peer ids.
func (f *FastPathSet) Members() []types.Hash {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]types.Hash, 0, len(f.members))
	for id := range f.members {
		out = append(out, id)
	}
	return out
}

// UsesFastPath decides whether a message should be routed via the fast path,
// per spec.md §4.5.7: priority High, or its type is in the fast-path set.
func UsesFastPath(priority types.Priority, msgType MessageType, fastPathTypes map[MessageType]struct{}) bool {
	if priority == types.PriorityHigh {
		return true
	}
	_, ok := fastPathTypes[msgType]
	return ok
}
