package network

import (
	"testing"
	"time"

	"github.com/meridian-chain/meridian-node/internal/types"
)

func TestMeshOptimizeDisconnectsExcessPerRegion(t *testing.T) {
	clock := time.Unix(0, 0)
	m := NewMesh(MeshConfig{
		ConnectionsPerRegion:    1,
		MinOutbound:             1,
		MaxOutbound:             10,
		MaxInbound:              10,
		ConnectionRetryInterval: time.Minute,
	}, func() time.Time { return clock })

	connected := []RegionScore{
		{NodeID: types.Hash{1}, Region: "region-1", Score: 0.9},
		{NodeID: types.Hash{2}, Region: "region-1", Score: 0.2},
	}
	prop := m.Optimize(connected, 2, nil)
	if len(prop.ToDisconnect) != 1 {
		t.Fatalf("expected exactly one excess peer marked for disconnect, got %d", len(prop.ToDisconnect))
	}
	if prop.ToDisconnect[0] != (types.Hash{2}) {
		t.Fatalf("expected lowest-scoring peer to be disconnected, got %x", prop.ToDisconnect[0])
	}
}

func TestMeshOptimizeRequestsConnectionsForUnderfilledRegion(t *testing.T) {
	clock := time.Unix(0, 0)
	m := NewMesh(MeshConfig{
		ConnectionsPerRegion:    2,
		MinOutbound:             1,
		MaxOutbound:             10,
		MaxInbound:              10,
		ConnectionRetryInterval: time.Minute,
	}, func() time.Time { return clock })

	candidates := []Candidate{{Address: "10.0.0.5:9000"}}
	prop := m.Optimize(nil, 0, candidates)
	if len(prop.ToConnect) != 1 {
		t.Fatalf("expected one candidate proposed for connection, got %d", len(prop.ToConnect))
	}
}

func TestMeshOptimizeHonoursConnectionRetryInterval(t *testing.T) {
	clock := time.Unix(0, 0)
	m := NewMesh(MeshConfig{
		ConnectionsPerRegion:    5,
		MinOutbound:             0,
		MaxOutbound:             10,
		MaxInbound:              10,
		ConnectionRetryInterval: time.Minute,
	}, func() time.Time { return clock })

	candidates := []Candidate{{Address: "10.0.0.5:9000"}}
	first := m.Optimize(nil, 0, candidates)
	if len(first.ToConnect) != 1 {
		t.Fatalf("expected first pass to propose the candidate")
	}
	second := m.Optimize(nil, 0, candidates)
	if len(second.ToConnect) != 0 {
		t.Fatalf("expected retry interval to suppress immediate re-proposal")
	}
	clock = clock.Add(2 * time.Minute)
	third := m.Optimize(nil, 0, candidates)
	if len(third.ToConnect) != 1 {
		t.Fatalf("expected candidate to be retried after the interval elapses")
	}
}

func TestMeshInboundAllowed(t *testing.T) {
	m := NewMesh(MeshConfig{MaxInbound: 2}, nil)
	if !m.InboundAllowed(1) {
		t.Fatalf("expected inbound allowed under cap")
	}
	if m.InboundAllowed(2) {
		t.Fatalf("expected inbound disallowed at cap")
	}
}
