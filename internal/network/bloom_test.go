package network

import (
	"crypto/sha256"
	"fmt"
	"testing"

	"github.com/meridian-chain/meridian-node/internal/types"
)

func idFor(s string) types.Hash {
	return types.Hash(sha256.Sum256([]byte(s)))
}

func TestBloomFilterNoFalseNegatives(t *testing.T) {
	f := NewTransactionBloomFilter(1000, 0.01, 100000, 0xfeed, 0xface)
	ids := make([]types.Hash, 500)
	for i := range ids {
		ids[i] = idFor(fmt.Sprintf("tx-%d", i))
		f.Insert(ids[i])
	}
	for _, id := range ids {
		if !f.MayContain(id) {
			t.Fatalf("false negative for inserted id %x", id)
		}
	}
}

// TestBloomFilterFalsePositiveRateBound checks the empirical false-positive
// rate over elements never inserted stays within a generous multiple of the
// configured target, matching property S6.
func TestBloomFilterFalsePositiveRateBound(t *testing.T) {
	const n = 2000
	const p = 0.01
	f := NewTransactionBloomFilter(n, p, 10*n, 0x1234, 0x5678)
	for i := 0; i < n; i++ {
		f.Insert(idFor(fmt.Sprintf("member-%d", i)))
	}

	falsePositives := 0
	const trials = 5000
	for i := 0; i < trials; i++ {
		id := idFor(fmt.Sprintf("nonmember-%d", i))
		if f.MayContain(id) {
			falsePositives++
		}
	}
	rate := float64(falsePositives) / float64(trials)
	if rate > p*5 {
		t.Fatalf("false positive rate %.4f exceeds 5x target %.4f", rate, p)
	}
}

func TestBloomFilterResetsAfterMaxTransactions(t *testing.T) {
	const max = 5
	f := NewTransactionBloomFilter(10, 0.1, max, 0xaa, 0xbb)
	for i := 0; i < max; i++ {
		f.Insert(idFor(fmt.Sprintf("filler-%d", i)))
	}
	bitsBeforeWrap := countSetBits(f.Marshal())

	// The (max+1)th insert must trigger an internal reset before inserting,
	// per spec.md §4.5.6, so the resulting filter holds only this one element
	// instead of max+1 elements worth of bits.
	f.Insert(idFor("post-wrap"))
	bitsAfterWrap := countSetBits(f.Marshal())

	if bitsAfterWrap >= bitsBeforeWrap+int(f.k) {
		t.Fatalf("expected reset-before-insert to keep bit count low: before=%d after=%d k=%d", bitsBeforeWrap, bitsAfterWrap, f.k)
	}
}

func countSetBits(b []byte) int {
	n := 0
	for _, by := range b {
		for by != 0 {
			n += int(by & 1)
			by >>= 1
		}
	}
	return n
}

func TestBloomFilterExplicitReset(t *testing.T) {
	f := NewTransactionBloomFilter(10, 0.1, 1000, 0xaa, 0xbb)
	id := idFor("first")
	f.Insert(id)
	f.Reset()
	if f.MayContain(id) {
		t.Fatalf("expected MayContain to be false after Reset")
	}
}

func TestBloomFilterMarshalLoadBitsRoundTrip(t *testing.T) {
	f := NewTransactionBloomFilter(100, 0.01, 1000, 0x1, 0x2)
	id := idFor("marshal-me")
	f.Insert(id)

	bits := f.Marshal()

	g := NewTransactionBloomFilter(100, 0.01, 1000, 0x1, 0x2)
	g.LoadBits(bits)
	if !g.MayContain(id) {
		t.Fatalf("expected loaded filter to report membership for inserted id")
	}
}
