package network

import (
	"net"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/meridian-chain/meridian-node/internal/logging"
)

// Candidate is a discovered-but-not-yet-connected peer address.
type Candidate struct {
	Address string
	Source  string // "manual", "dns", "exchange", "local"
}

// Discovery merges candidates from the four methods of spec.md §4.5.4 into a
// single deduplicated set bounded by MaxDiscoveryPeers. Each method runs on
// its own interval; this type only owns the merged result set and the
// dedup/bound logic — interval scheduling is driven externally (by a node's
// main loop) so tests can call each method synchronously.
type Discovery struct {
	mu      sync.Mutex
	log     *logrus.Entry
	max     int
	known   map[string]Candidate
	resolve func(host string) ([]string, error) // swappable for tests
}

// NewDiscovery returns a Discovery bounded to maxDiscoveryPeers candidates.
func NewDiscovery(maxDiscoveryPeers int) *Discovery {
	return &Discovery{
		log:     logging.New("network.discovery"),
		max:     maxDiscoveryPeers,
		known:   make(map[string]Candidate),
		resolve: net.LookupHost,
	}
}

// AddManual seeds the candidate set from a static bootstrap list.
func (d *Discovery) AddManual(addrs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range addrs {
		d.insertLocked(Candidate{Address: a, Source: "manual"})
	}
}

// RunDnsSeed resolves each seed hostname and appends listenPort to every
// resulting address, per spec.md §4.5.4's DnsSeed method.
func (d *Discovery) RunDnsSeed(seeds []string, listenPort string) {
	for _, seed := range seeds {
		ips, err := d.resolve(seed)
		if err != nil {
			d.log.WithField("seed", seed).WithError(err).Warn("dns seed resolution failed")
			continue
		}
		d.mu.Lock()
		for _, ip := range ips {
			d.insertLocked(Candidate{Address: net.JoinHostPort(ip, listenPort), Source: "dns"})
		}
		d.mu.Unlock()
	}
}

// ApplyPeerExchange merges up to maxPeersToExchange addresses received from a
// neighbour's periodic peer-exchange reply.
func (d *Discovery) ApplyPeerExchange(addrs []string, maxPeersToExchange int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if len(addrs) > maxPeersToExchange {
		addrs = addrs[:maxPeersToExchange]
	}
	for _, a := range addrs {
		d.insertLocked(Candidate{Address: a, Source: "exchange"})
	}
}

// ApplyLocalDiscovery merges addresses observed via LAN broadcast.
func (d *Discovery) ApplyLocalDiscovery(addrs []string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, a := range addrs {
		d.insertLocked(Candidate{Address: a, Source: "local"})
	}
}

// insertLocked adds c if not already known and the set has room; once the
// bound is reached, new addresses are dropped and the ones already held are
// kept.
func (d *Discovery) insertLocked(c Candidate) {
	if _, exists := d.known[c.Address]; exists {
		return
	}
	if d.max > 0 && len(d.known) >= d.max {
		return
	}
	d.known[c.Address] = c
}

// Candidates returns a snapshot of the current deduplicated candidate set.
func (d *Discovery) Candidates() []Candidate {
	d.mu.Lock()
	defer d.mu.Unlock()
	out := make([]Candidate, 0, len(d.known))
	for _, c := range d.known {
		out = append(out, c)
	}
	return out
}

// Remove drops an address from the candidate set, e.g. once connected.
func (d *Discovery) Remove(addr string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.known, addr)
}
