package consensus

import (
	"sync"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// ReceiptTracker resolves spec.md §9's Open Question on cross-shard receipt
// durability: a receipt is durable once both the source-shard block that
// emits it and the destination-shard block that consumes it are final. This
// is the conservative reading -- it never lets a destination shard act on a
// receipt the source shard could still reorg away, and never finalizes a
// receipt the destination hasn't yet observed.
type ReceiptTracker struct {
	mu sync.Mutex

	sourceFinal map[types.Hash]types.BlockHeight // txid -> source block height
	destSeen    map[types.Hash]types.BlockHeight // txid -> destination block height
	durable     map[types.Hash]bool
}

// NewReceiptTracker returns an empty tracker.
func NewReceiptTracker() *ReceiptTracker {
	return &ReceiptTracker{
		sourceFinal: make(map[types.Hash]types.BlockHeight),
		destSeen:    make(map[types.Hash]types.BlockHeight),
		durable:     make(map[types.Hash]bool),
	}
}

// RecordEmitted records that receipt r was emitted at the given source height.
func (t *ReceiptTracker) RecordEmitted(r core.Receipt) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sourceFinal[r.TxID] = r.SourceHeight
}

// RecordConsumed records that the destination shard observed receipt txID in
// a block at destHeight.
func (t *ReceiptTracker) RecordConsumed(txID types.Hash, destHeight types.BlockHeight) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.destSeen[txID] = destHeight
}

// ReconcileFinality re-evaluates durability for every tracked receipt given the
// current final height of the source and destination shards, marking a
// receipt durable only once both sides are confirmed final.
func (t *ReceiptTracker) ReconcileFinality(sourceFinalHeight, destFinalHeight types.BlockHeight) {
	t.mu.Lock()
	defer t.mu.Unlock()

	for txID, srcHeight := range t.sourceFinal {
		destHeight, seen := t.destSeen[txID]
		if !seen {
			continue
		}
		if srcHeight <= sourceFinalHeight && destHeight <= destFinalHeight {
			t.durable[txID] = true
		}
	}
}

// IsDurable reports whether txID's receipt has been marked durable.
func (t *ReceiptTracker) IsDurable(txID types.Hash) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.durable[txID]
}
