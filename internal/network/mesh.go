package network

import (
	"sort"
	"sync"
	"time"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// MeshConfig mirrors the tunables of spec.md §4.5.9, duplicated locally (not
// imported from internal/config) so this package stays free of a dependency
// on the config package; a node wires config.NetworkConfig.Mesh into this at
// startup.
type MeshConfig struct {
	ConnectionsPerRegion      int
	MinOutbound               int
	MaxOutbound               int
	MaxInbound                int
	OptimizationInterval      time.Duration
	ConnectionRetryInterval   time.Duration
}

// RegionScore is a peer's latency/uptime/bandwidth-derived score used by the
// topology optimiser to rank candidates for disconnect.
type RegionScore struct {
	NodeID types.Hash
	Region Region
	Score  float64
}

// Proposal is the optimiser's (to_connect, to_disconnect) recommendation for
// one optimisation pass, per spec.md §4.5.9.
type Proposal struct {
	ToDisconnect []types.Hash
	ToConnect    []Candidate
}

// Mesh implements the region-aware topology optimiser of spec.md §4.5.9.
type Mesh struct {
	mu        sync.Mutex
	cfg       MeshConfig
	lastRetry map[string]time.Time
	now       func() time.Time
	scores    map[types.Hash]float64
}

// NewMesh constructs a Mesh with the given configuration.
func NewMesh(cfg MeshConfig, nowFn func() time.Time) *Mesh {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Mesh{
		cfg:       cfg,
		lastRetry: make(map[string]time.Time),
		now:       nowFn,
		scores:    make(map[types.Hash]float64),
	}
}

// Score implements MeshScorer (gossip.go) over the most recent Optimize pass's
// per-peer scores, so block-relay selection reuses mesh scoring rather than
// recomputing it.
func (m *Mesh) Score(id types.Hash) float64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.scores[id]
}

// Optimize recomputes per-region outbound excess/deficit and proposes
// connect/disconnect actions, per spec.md §4.5.9:
//   - outbound connections beyond connections_per_region per region, lowest
//     scoring first, are marked for disconnect (bounded by max_outbound/
//     min_outbound);
//   - under-filled regions request new connections from the discovered
//     candidate set, honouring connection_retry_interval per address.
func (m *Mesh) Optimize(connected []RegionScore, outboundCount int, candidates []Candidate) Proposal {
	m.mu.Lock()
	defer m.mu.Unlock()

	byRegion := make(map[Region][]RegionScore)
	for _, c := range connected {
		byRegion[c.Region] = append(byRegion[c.Region], c)
	}

	var prop Proposal

	for _, c := range connected {
		m.scores[c.NodeID] = c.Score
	}

	for region, peers := range byRegion {
		sort.Slice(peers, func(i, j int) bool { return peers[i].Score < peers[j].Score })
		excess := len(peers) - m.cfg.ConnectionsPerRegion
		if outboundCount > m.cfg.MaxOutbound {
			excess = len(peers)
		}
		for i := 0; i < excess && i < len(peers); i++ {
			prop.ToDisconnect = append(prop.ToDisconnect, peers[i].NodeID)
		}
		_ = region
	}

	// Under-filled regions request new connections from the candidate set
	// regardless of the disconnect pass above: a region short of its target
	// (or an outbound count below min_outbound) is exactly the case that
	// needs new connections, per spec.md §4.5.9.
	if outboundCount-len(prop.ToDisconnect) < m.cfg.MaxOutbound {
		byRegionCount := make(map[Region]int)
		for _, c := range connected {
			byRegionCount[c.Region]++
		}
		for _, cand := range candidates {
			region := InferRegion(cand.Address)
			if byRegionCount[region] >= m.cfg.ConnectionsPerRegion {
				continue
			}
			last, seen := m.lastRetry[cand.Address]
			if seen && m.now().Sub(last) < m.cfg.ConnectionRetryInterval {
				continue
			}
			prop.ToConnect = append(prop.ToConnect, cand)
			byRegionCount[region]++
			m.lastRetry[cand.Address] = m.now()
		}
	}

	return prop
}

// InboundAllowed reports whether another inbound connection may be accepted
// given the current inbound count, per spec.md §4.5.9's max_inbound cap.
func (m *Mesh) InboundAllowed(currentInbound int) bool {
	return currentInbound < m.cfg.MaxInbound
}
