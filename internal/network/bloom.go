package network

import (
	"math"
	"sync"

	"github.com/bits-and-blooms/bitset"
	"github.com/dchest/siphash"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// TransactionBloomFilter is a reset-after-saturation Bloom filter used to
// gossip mempool contents without enumerating every transaction id, per
// spec.md §4.5.6.
//
// Sizing follows the standard formulas:
//
//	m = ceil(-n * ln(p) / (ln 2)^2)   bits
//	k = ceil((m / n) * ln 2)          hash functions
type TransactionBloomFilter struct {
	mu sync.Mutex

	bits             *bitset.BitSet
	m                uint64
	k                uint64
	seed0, seed1     uint64
	inserted         uint64
	maxTransactions  uint64
}

// NewTransactionBloomFilter sizes a filter for n expected elements and a
// target false-positive rate p, resetting automatically once maxTransactions
// insertions have been made.
func NewTransactionBloomFilter(n uint64, p float64, maxTransactions uint64, seed0, seed1 uint64) *TransactionBloomFilter {
	if n == 0 {
		n = 1
	}
	m := uint64(math.Ceil(-float64(n) * math.Log(p) / (math.Ln2 * math.Ln2)))
	if m == 0 {
		m = 1
	}
	k := uint64(math.Ceil((float64(m) / float64(n)) * math.Ln2))
	if k == 0 {
		k = 1
	}
	return &TransactionBloomFilter{
		bits:            bitset.New(uint(m)),
		m:               m,
		k:               k,
		seed0:           seed0,
		seed1:           seed1,
		maxTransactions: maxTransactions,
	}
}

// indices derives k independent bit positions for id using SipHash-2-4 keyed
// with (seed0, seed1). Two independent digests are computed by salting the
// input with a trailing marker byte, then combined via the Kirsch-Mitzenmacher
// double-hashing technique (h1 + i*h2) to cheaply derive k positions from two
// underlying hashes, per spec.md §4.5.6's "keyed hash family" requirement.
func (f *TransactionBloomFilter) indices(id types.Hash) []uint {
	salted := make([]byte, len(id)+1)
	copy(salted, id[:])

	salted[len(id)] = 0x00
	h1 := siphash.Hash(f.seed0, f.seed1, salted)
	salted[len(id)] = 0xff
	h2 := siphash.Hash(f.seed0, f.seed1, salted)

	out := make([]uint, f.k)
	for i := uint64(0); i < f.k; i++ {
		combined := h1 + i*h2
		out[i] = uint(combined % f.m)
	}
	return out
}

// Insert adds id to the filter, resetting first if maxTransactions has been
// reached.
func (f *TransactionBloomFilter) Insert(id types.Hash) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.maxTransactions > 0 && f.inserted >= f.maxTransactions {
		f.bits.ClearAll()
		f.inserted = 0
	}
	for _, idx := range f.indices(id) {
		f.bits.Set(idx)
	}
	f.inserted++
}

// MayContain reports whether id may be a member (false positives possible,
// false negatives never).
func (f *TransactionBloomFilter) MayContain(id types.Hash) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, idx := range f.indices(id) {
		if !f.bits.Test(idx) {
			return false
		}
	}
	return true
}

// Reset clears the filter and its insertion counter.
func (f *TransactionBloomFilter) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.ClearAll()
	f.inserted = 0
}

// Marshal serialises the filter's bit array LSB-first into bytes, per
// spec.md §6's Bloom-filter wire form.
func (f *TransactionBloomFilter) Marshal() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, (f.m+7)/8)
	for i := uint64(0); i < f.m; i++ {
		if f.bits.Test(uint(i)) {
			out[i/8] |= 1 << (i % 8)
		}
	}
	return out
}

// LoadBits overwrites the filter's bit array from a peer-supplied LSB-first
// byte slice, leaving m/k/seeds unchanged. Used when applying a remote peer's
// filter to test local transactions against it.
func (f *TransactionBloomFilter) LoadBits(b []byte) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.bits.ClearAll()
	for i := uint64(0); i < f.m && i/8 < uint64(len(b)); i++ {
		if b[i/8]&(1<<(i%8)) != 0 {
			f.bits.Set(uint(i))
		}
	}
}
