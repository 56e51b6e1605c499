package network

import "testing"

func TestDiscoveryDedupesAcrossMethods(t *testing.T) {
	d := NewDiscovery(100)
	d.AddManual([]string{"10.0.0.1:9000", "10.0.0.2:9000"})
	d.ApplyPeerExchange([]string{"10.0.0.1:9000", "10.0.0.3:9000"}, 10)
	d.ApplyLocalDiscovery([]string{"10.0.0.3:9000"})

	cands := d.Candidates()
	if len(cands) != 3 {
		t.Fatalf("expected 3 deduplicated candidates, got %d: %+v", len(cands), cands)
	}
}

func TestDiscoveryBoundedByMaxDiscoveryPeers(t *testing.T) {
	d := NewDiscovery(2)
	d.AddManual([]string{"10.0.0.1:9000", "10.0.0.2:9000", "10.0.0.3:9000"})
	if len(d.Candidates()) != 2 {
		t.Fatalf("expected candidate set bounded to max_discovery_peers, got %d", len(d.Candidates()))
	}
}

func TestDiscoveryDnsSeedUsesInjectedResolver(t *testing.T) {
	d := NewDiscovery(100)
	d.resolve = func(host string) ([]string, error) {
		return []string{"198.51.100.7"}, nil
	}
	d.RunDnsSeed([]string{"seed.example.com"}, "9000")
	cands := d.Candidates()
	if len(cands) != 1 || cands[0].Address != "198.51.100.7:9000" {
		t.Fatalf("expected resolved address with listen port appended, got %+v", cands)
	}
}

func TestDiscoveryPeerExchangeTruncatesToLimit(t *testing.T) {
	d := NewDiscovery(100)
	d.ApplyPeerExchange([]string{"a:1", "b:1", "c:1"}, 2)
	if len(d.Candidates()) != 2 {
		t.Fatalf("expected peer exchange truncated to max_peers_to_exchange, got %d", len(d.Candidates()))
	}
}
