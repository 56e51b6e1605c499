package network

import (
	"sort"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// MeshScorer ranks peers for relay selection; Mesh implements this.
type MeshScorer interface {
	Score(nodeID types.Hash) float64
}

// AnnounceBlock computes the set of peers that should receive a
// BlockAnnouncement for a locally-produced or newly-received block (every
// connected peer that does not already know the hash), and the subset that
// should additionally receive the full BlockBody: the first
// initialBlockRelayCount peers ordered by mesh score, per spec.md §4.5.5.
func AnnounceBlock(peers []*Peer, scorer MeshScorer, hash types.Hash, initialBlockRelayCount int) (announce []*Peer, fullRelay []*Peer) {
	for _, p := range peers {
		if !p.KnowsBlock(hash) {
			announce = append(announce, p)
		}
	}
	ranked := make([]*Peer, len(announce))
	copy(ranked, announce)
	sort.SliceStable(ranked, func(i, j int) bool {
		return scorer.Score(ranked[i].NodeID) > scorer.Score(ranked[j].NodeID)
	})
	if initialBlockRelayCount < len(ranked) {
		fullRelay = ranked[:initialBlockRelayCount]
	} else {
		fullRelay = ranked
	}
	return announce, fullRelay
}

// ReceiveBlockAnnouncement records the hash against the sending peer's
// known-set and reports whether a BlockHeader request should be issued
// (iff the block is not already held locally), per spec.md §4.5.5.
func ReceiveBlockAnnouncement(peer *Peer, hash types.Hash, haveLocally bool) (shouldRequestHeader bool) {
	peer.MarkKnowsBlock(hash)
	return !haveLocally
}

// TxAnnouncementMode selects whether a transaction announcement carries an
// explicit id list or a serialised Bloom filter, per spec.md §4.5.5.
type TxAnnouncementMode uint8

const (
	TxAnnounceExplicit TxAnnouncementMode = iota
	TxAnnounceBloom
)

// BuildTxAnnouncement selects the announcement mode for a peer and, for the
// explicit mode, filters txIDs down to the ones that peer doesn't yet know.
func BuildTxAnnouncement(peer *Peer, txIDs []types.Hash, useBloomFilter bool, bloom *TransactionBloomFilter) (mode TxAnnouncementMode, explicitIDs []types.Hash, bloomBytes []byte) {
	if useBloomFilter && bloom != nil {
		return TxAnnounceBloom, nil, bloom.Marshal()
	}
	for _, id := range txIDs {
		if !peer.KnowsTx(id) {
			explicitIDs = append(explicitIDs, id)
		}
	}
	return TxAnnounceExplicit, explicitIDs, nil
}

// RequestedFromAnnouncement computes which of a remote peer's announced
// tx-ids the local node should request, given what it already has in its
// mempool, per spec.md §4.5.5's "request any tx-ids the peer hasn't yet seen"
// rule (read from the requester's perspective: ids not yet locally known).
func RequestedFromAnnouncement(announced []types.Hash, locallyKnown func(types.Hash) bool) []types.Hash {
	var out []types.Hash
	for _, id := range announced {
		if !locallyKnown(id) {
			out = append(out, id)
		}
	}
	return out
}

// BatchTransactionIDs chunks a set of transaction ids into TransactionBatch
// groups no larger than maxTxBatchSize, per spec.md §4.5.5.
func BatchTransactionIDs(ids []types.Hash, maxTxBatchSize int) [][]types.Hash {
	if maxTxBatchSize <= 0 {
		maxTxBatchSize = len(ids)
		if maxTxBatchSize == 0 {
			return nil
		}
	}
	var batches [][]types.Hash
	for i := 0; i < len(ids); i += maxTxBatchSize {
		end := i + maxTxBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batches = append(batches, ids[i:end])
	}
	return batches
}

// EncodeBlockBody serialises a block's body for a BlockBody message payload
// as the concatenated 32-byte transaction ids of every ShardData, in order;
// receipts and the other ShardData fields are not included. The header
// travels separately via BlockHeader messages, per spec.md §4.5.2's message
// taxonomy.
func EncodeBlockBody(b *core.Block) []byte {
	var out []byte
	for _, sd := range b.ShardData {
		for _, id := range sd.TransactionIDs {
			out = append(out, id[:]...)
		}
	}
	return out
}
