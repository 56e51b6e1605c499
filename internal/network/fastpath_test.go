package network

import (
	"testing"

	"github.com/meridian-chain/meridian-node/internal/types"
)

func TestFastPathSetRefreshKeepsTopScorers(t *testing.T) {
	fp := NewFastPathSet(1, 2)
	a := NewPeer(types.Hash{1}, "10.0.0.1:9000", DirectionOutbound)
	b := NewPeer(types.Hash{2}, "10.0.0.2:9000", DirectionOutbound)
	c := NewPeer(types.Hash{3}, "10.0.0.3:9000", DirectionOutbound)

	scores := map[types.Hash]PeerScore{
		a.NodeID: {SuccessRate: 0.9, PingScore: 0.9, Uptime: 0.9},
		b.NodeID: {SuccessRate: 0.1, PingScore: 0.1, Uptime: 0.1},
		c.NodeID: {SuccessRate: 0.5, PingScore: 0.5, Uptime: 0.5},
	}
	fp.Refresh([]*Peer{a, b, c}, func(id types.Hash) PeerScore { return scores[id] })

	if !fp.Contains(a.NodeID) || !fp.Contains(c.NodeID) {
		t.Fatalf("expected top two scorers in fast path set")
	}
	if fp.Contains(b.NodeID) {
		t.Fatalf("expected lowest scorer excluded from a 2-capacity set")
	}
}

func TestFastPathSetBelowMinimum(t *testing.T) {
	fp := NewFastPathSet(3, 5)
	if !fp.BelowMinimum() {
		t.Fatalf("empty set should be below minimum")
	}
	a := NewPeer(types.Hash{1}, "10.0.0.1:9000", DirectionOutbound)
	fp.Refresh([]*Peer{a}, func(types.Hash) PeerScore { return PeerScore{SuccessRate: 1, PingScore: 1, Uptime: 1} })
	if !fp.BelowMinimum() {
		t.Fatalf("set with 1 member and min 3 should remain below minimum")
	}
}

func TestUsesFastPath(t *testing.T) {
	if !UsesFastPath(types.PriorityHigh, MsgPeerDiscovery, nil) {
		t.Fatalf("High priority should always use fast path")
	}
	if !UsesFastPath(types.PriorityNormal, MsgCheckpointVote, FastPathTypes) {
		t.Fatalf("CheckpointVote is in the default fast path type set")
	}
	if UsesFastPath(types.PriorityNormal, MsgPeerExchange, FastPathTypes) {
		t.Fatalf("PeerExchange at normal priority should not use fast path")
	}
}

func TestPeerScoreWeighting(t *testing.T) {
	s := PeerScore{SuccessRate: 1, PingScore: 0, Uptime: 0}
	if got := s.Score(); got != 0.6 {
		t.Fatalf("expected success-rate weight 0.6, got %v", got)
	}
}
