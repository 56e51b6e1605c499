package network

import (
	"sort"
	"sync"
	"time"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// PeerWeight blends the inputs spec.md §4.5.8 names: peer scoring, priority
// mix, and message-type class, into a single per-peer weight used to split
// the aggregate bandwidth budget.
type PeerWeight struct {
	NodeID types.Hash
	Weight float64
}

// QueuedMessage is an outbound message awaiting a bandwidth slot.
type QueuedMessage struct {
	Peer            types.Hash
	Priority        types.Priority
	Type            MessageType
	Size            int
	priorityWeight  float64
	msgTypeWeight   float64
}

// Score returns priority_weight x message_type_weight, the ordering key the
// outbound queue dequeues by, per spec.md §4.5.8.
func (q QueuedMessage) Score() float64 { return q.priorityWeight * q.msgTypeWeight }

var priorityWeights = map[types.Priority]float64{
	types.PriorityLow:      0.25,
	types.PriorityNormal:   0.5,
	types.PriorityHigh:     0.75,
	types.PriorityCritical: 1.0,
}

var messageTypeWeights = map[MessageType]float64{
	MsgCheckpointVote:          1.0,
	MsgBlockAnnouncement:       0.9,
	MsgBlockHeader:             0.8,
	MsgBlockBody:               0.6,
	MsgTransactionAnnouncement: 0.5,
	MsgTransactionBatch:        0.4,
	MsgValidatorHandshake:      0.9,
	MsgShardSyncRequest:        0.5,
	MsgShardStateResponse:      0.5,
	MsgPeerDiscovery:           0.2,
	MsgPeerExchange:            0.2,
	MsgStateSnapshot:           0.3,
	MsgNetworkHealth:           0.3,
}

// NewQueuedMessage constructs a QueuedMessage with its ordering weights
// pre-resolved.
func NewQueuedMessage(peer types.Hash, priority types.Priority, msgType MessageType, size int) QueuedMessage {
	return QueuedMessage{
		Peer:           peer,
		Priority:       priority,
		Type:           msgType,
		Size:           size,
		priorityWeight: priorityWeights[priority],
		msgTypeWeight:  messageTypeWeights[msgType],
	}
}

// BandwidthManager implements the adaptive per-peer token-budget scheme of
// spec.md §4.5.8, including the 90%-utilisation burst mode.
type BandwidthManager struct {
	mu sync.Mutex

	maxBandwidth     uint64
	minPeerBandwidth uint64
	burstFactor      float64

	budgets map[types.Hash]uint64 // bytes/sec currently allotted
	used    map[types.Hash]uint64 // bytes sent in the current window

	burstUntil time.Time
	now        func() time.Time

	queue []QueuedMessage
}

// NewBandwidthManager constructs a manager with the given caps.
func NewBandwidthManager(maxBandwidth, minPeerBandwidth uint64, burstFactor float64, nowFn func() time.Time) *BandwidthManager {
	if nowFn == nil {
		nowFn = time.Now
	}
	return &BandwidthManager{
		maxBandwidth:     maxBandwidth,
		minPeerBandwidth: minPeerBandwidth,
		burstFactor:      burstFactor,
		budgets:          make(map[types.Hash]uint64),
		used:             make(map[types.Hash]uint64),
		now:              nowFn,
	}
}

// Recompute redistributes the (possibly burst-scaled) bandwidth cap across
// peers proportionally to weight, clamped to at least minPeerBandwidth, per
// spec.md §4.5.8's "max_bandwidth x weight_i / sum(weight)" formula. Called
// every update_interval.
func (b *BandwidthManager) Recompute(weights []PeerWeight) {
	b.mu.Lock()
	defer b.mu.Unlock()

	bandwidthCap := b.maxBandwidth
	if b.inBurstLocked() {
		bandwidthCap = uint64(float64(bandwidthCap) * b.burstFactor)
	}

	var total float64
	for _, w := range weights {
		total += w.Weight
	}
	b.budgets = make(map[types.Hash]uint64, len(weights))
	if total <= 0 {
		return
	}
	for _, w := range weights {
		alloc := uint64(float64(bandwidthCap) * (w.Weight / total))
		if alloc < b.minPeerBandwidth {
			alloc = b.minPeerBandwidth
		}
		b.budgets[w.NodeID] = alloc
	}
	b.used = make(map[types.Hash]uint64, len(weights))
}

func (b *BandwidthManager) inBurstLocked() bool {
	return b.now().Before(b.burstUntil)
}

// ObserveUtilization checks aggregate outbound utilisation against the 90%
// threshold and, if crossed, (re)enters burst mode for 30s, per spec.md
// §4.5.8.
func (b *BandwidthManager) ObserveUtilization(totalUsed uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.maxBandwidth == 0 {
		return
	}
	utilization := float64(totalUsed) / float64(b.maxBandwidth)
	if utilization > 0.9 {
		b.burstUntil = b.now().Add(30 * time.Second)
	}
}

// InBurstMode reports whether the manager is currently in burst mode.
func (b *BandwidthManager) InBurstMode() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.inBurstLocked()
}

// Enqueue adds a message to the priority-ordered outbound queue.
func (b *BandwidthManager) Enqueue(m QueuedMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.queue = append(b.queue, m)
}

// Dequeue returns the highest-scoring queued message whose peer is currently
// below its outbound budget, per spec.md §4.5.8, or ok=false if none
// qualifies.
func (b *BandwidthManager) Dequeue() (msg QueuedMessage, ok bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	sort.SliceStable(b.queue, func(i, j int) bool { return b.queue[i].Score() > b.queue[j].Score() })

	for i, m := range b.queue {
		budget := b.budgets[m.Peer]
		if budget == 0 {
			budget = b.minPeerBandwidth
		}
		if b.used[m.Peer]+uint64(m.Size) <= budget {
			b.used[m.Peer] += uint64(m.Size)
			b.queue = append(b.queue[:i], b.queue[i+1:]...)
			return m, true
		}
	}
	return QueuedMessage{}, false
}

// QueueLen reports how many messages are currently queued.
func (b *BandwidthManager) QueueLen() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.queue)
}
