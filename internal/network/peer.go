// Package network implements the C6 network core: peer database, handshake
// protocol, wire framing, discovery, propagation, Bloom-filtered gossip, fast
// path, bandwidth management, and mesh topology optimisation, per spec.md §4.5.
package network

import (
	"net"
	"strconv"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// knownHashCacheSize bounds the per-peer "known block/tx hash" memory so a
// long-lived connection to a chatty peer can't grow these sets unboundedly.
const knownHashCacheSize = 4096

// ConnectionState is a peer's connection lifecycle stage, per spec.md §3.
type ConnectionState uint8

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateHandshaking
	StateConnected
)

// Direction tags whether a peer connection was initiated locally or remotely.
type Direction uint8

const (
	DirectionInbound Direction = iota
	DirectionOutbound
)

// ReputationBand is the named score band a peer's reputation maps to, per
// spec.md §3.
type ReputationBand int

const (
	BandBanned    ReputationBand = -100
	BandPoor      ReputationBand = 0
	BandAverage   ReputationBand = 50
	BandGood      ReputationBand = 75
	BandExcellent ReputationBand = 100
)

// Region is a crude IPv4-first-octet-derived geographic tag, per spec.md §4.5.9.
type Region string

const RegionUnknown Region = "unknown"

// InferRegion crudely tags an IPv4 address by its first octet; IPv6 addresses
// are always RegionUnknown, per spec.md §4.5.9.
func InferRegion(addr string) Region {
	host := addr
	if h, _, err := net.SplitHostPort(addr); err == nil {
		host = h
	}
	ip := net.ParseIP(host)
	if ip == nil {
		return RegionUnknown
	}
	v4 := ip.To4()
	if v4 == nil {
		return RegionUnknown
	}
	first := strconv.Itoa(int(v4[0]))
	return Region("region-" + first)
}

// PeerCounters tracks per-peer traffic and reliability metrics.
type PeerCounters struct {
	MessagesSent     uint64
	MessagesReceived uint64
	MessagesFailed   uint64
	BytesSent        uint64
	BytesReceived    uint64
	LastPingMs       int64
}

// Peer is owned exclusively by the peer database, per spec.md §3.
type Peer struct {
	NodeID    types.Hash
	Address   string
	Direction Direction

	State ConnectionState

	reputation int // clamped to [-100, 100]

	Counters PeerCounters
	Region   Region

	Capabilities CapabilitySet
	knownBlocks  *lru.Cache[types.Hash, struct{}]
	knownTxs     *lru.Cache[types.Hash, struct{}]
	BlockHeight  types.BlockHeight
}

// NewPeer constructs a Peer in the Disconnected state with neutral reputation.
func NewPeer(id types.Hash, address string, dir Direction) *Peer {
	knownBlocks, _ := lru.New[types.Hash, struct{}](knownHashCacheSize)
	knownTxs, _ := lru.New[types.Hash, struct{}](knownHashCacheSize)
	return &Peer{
		NodeID:      id,
		Address:     address,
		Direction:   dir,
		State:       StateDisconnected,
		reputation:  int(BandAverage),
		Region:      InferRegion(address),
		knownBlocks: knownBlocks,
		knownTxs:    knownTxs,
	}
}

// Reputation returns the peer's current clamped reputation score.
func (p *Peer) Reputation() int { return p.reputation }

// adjustReputation clamps reputation to [-100, 100] after applying delta.
func (p *Peer) adjustReputation(delta int) {
	p.reputation += delta
	if p.reputation < -100 {
		p.reputation = -100
	}
	if p.reputation > 100 {
		p.reputation = 100
	}
}

// RecordPing applies the ping-latency scoring rule of spec.md §4.5.3: <50ms
// => +1, >300ms => -1.
func (p *Peer) RecordPing(ms int64) {
	p.Counters.LastPingMs = ms
	switch {
	case ms < 50:
		p.adjustReputation(1)
	case ms > 300:
		p.adjustReputation(-1)
	}
}

// RecordDeliveryFailure applies the -1 reputation penalty for a failed
// message delivery, per spec.md §4.5.3.
func (p *Peer) RecordDeliveryFailure() {
	p.Counters.MessagesFailed++
	p.adjustReputation(-1)
}

// Band maps the peer's current reputation score to its named band, per
// spec.md §3's five bands.
func (p *Peer) Band() ReputationBand {
	switch {
	case p.reputation <= int(BandBanned):
		return BandBanned
	case p.reputation < int(BandAverage):
		return BandPoor
	case p.reputation < int(BandGood):
		return BandAverage
	case p.reputation < int(BandExcellent):
		return BandGood
	default:
		return BandExcellent
	}
}

// IsBanned reports whether the peer's reputation has fallen to the Banned band.
func (p *Peer) IsBanned() bool { return p.Band() == BandBanned }

// KnowsBlock reports whether the peer is known to already have hash.
func (p *Peer) KnowsBlock(hash types.Hash) bool {
	return p.knownBlocks.Contains(hash)
}

// MarkKnowsBlock records that the peer is now known to have hash.
func (p *Peer) MarkKnowsBlock(hash types.Hash) {
	p.knownBlocks.Add(hash, struct{}{})
}

// KnowsTx reports whether the peer is known to already have a transaction id.
func (p *Peer) KnowsTx(id types.Hash) bool {
	return p.knownTxs.Contains(id)
}

// MarkKnowsTx records that the peer is now known to have transaction id.
func (p *Peer) MarkKnowsTx(id types.Hash) {
	p.knownTxs.Add(id, struct{}{})
}

// PeerDB owns the full set of known/connected peers, guarded by a single lock
// per spec.md §5's "peer database ... guarded by a single lock" rule.
type PeerDB struct {
	mu    sync.RWMutex
	peers map[types.Hash]*Peer
}

// NewPeerDB returns an empty peer database.
func NewPeerDB() *PeerDB {
	return &PeerDB{peers: make(map[types.Hash]*Peer)}
}

// Add registers p, replacing any existing entry with the same NodeID.
func (db *PeerDB) Add(p *Peer) {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.peers[p.NodeID] = p
}

// Remove deletes the peer with the given id.
func (db *PeerDB) Remove(id types.Hash) {
	db.mu.Lock()
	defer db.mu.Unlock()
	delete(db.peers, id)
}

// Get returns the peer with the given id.
func (db *PeerDB) Get(id types.Hash) (*Peer, bool) {
	db.mu.RLock()
	defer db.mu.RUnlock()
	p, ok := db.peers[id]
	return p, ok
}

// All returns a snapshot slice of every currently known peer.
func (db *PeerDB) All() []*Peer {
	db.mu.RLock()
	defer db.mu.RUnlock()
	out := make([]*Peer, 0, len(db.peers))
	for _, p := range db.peers {
		out = append(out, p)
	}
	return out
}

// Connected returns a snapshot of every peer currently in StateConnected.
func (db *PeerDB) Connected() []*Peer {
	db.mu.RLock()
	defer db.mu.RUnlock()
	var out []*Peer
	for _, p := range db.peers {
		if p.State == StateConnected {
			out = append(out, p)
		}
	}
	return out
}

// DisconnectBanned marks every peer whose reputation has reached the Banned
// band Disconnected, per spec.md §4.5.3, and returns their ids. The peers
// stay in the database, where IsBanned keeps reporting them as banned.
func (db *PeerDB) DisconnectBanned() []types.Hash {
	db.mu.Lock()
	defer db.mu.Unlock()
	var disconnected []types.Hash
	for id, p := range db.peers {
		if p.IsBanned() {
			p.State = StateDisconnected
			disconnected = append(disconnected, id)
		}
	}
	return disconnected
}
