package consensus

import (
	"crypto/ed25519"
	"errors"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// ChainTip is the minimal view of chain state this package needs from
// internal/chainstore, kept as an interface so tests can supply a fake.
type ChainTip interface {
	LatestHeight() types.BlockHeight
	LatestHash() types.Hash
}

// ProducerConfig carries the local node's identity for block production.
type ProducerConfig struct {
	NodePublicKey  ed25519.PublicKey
	NodePrivateKey ed25519.PrivateKey
}

// Producer assembles blocks when the local node is scheduled to propose, per
// spec.md §4.4's "Block production" rules.
type Producer struct {
	pool      *ValidatorPool
	scheduler *Scheduler
	cfg       ProducerConfig
	nowFn     func() types.Timestamp
}

// NewProducer builds a Producer.
func NewProducer(pool *ValidatorPool, scheduler *Scheduler, cfg ProducerConfig, nowFn func() types.Timestamp) *Producer {
	return &Producer{pool: pool, scheduler: scheduler, cfg: cfg, nowFn: nowFn}
}

// IsScheduled reports whether the local node is scheduled to produce at
// (height, shard).
func (p *Producer) IsScheduled(height types.BlockHeight, shard types.ShardId) bool {
	return p.scheduler.IsScheduled(height, shard, p.cfg.NodePublicKey)
}

// ProduceBlock builds a block at tip.height+1 for shard, containing one
// ShardData populated from readyTxIDs (selected by the mempool per spec.md
// §4.3's selection rule, which is the caller's responsibility).
func (p *Producer) ProduceBlock(tip ChainTip, shard types.ShardId, readyTxIDs []types.Hash, stateRoot types.Hash) *core.Block {
	header := core.BlockHeader{
		Index:            tip.LatestHeight() + 1,
		Timestamp:        p.nowFn(),
		PreviousHash:     tip.LatestHash(),
		StateRoot:        stateRoot,
		ShardIdentifiers: []types.ShardId{shard},
	}
	shardData := core.ShardData{ShardId: shard, TransactionIDs: readyTxIDs}

	block := &core.Block{Header: header, ShardData: []core.ShardData{shardData}}
	block.Header.TransactionRoot = block.TransactionRoot()
	block.Header.ReceiptRoot = block.ReceiptRoot()
	block.Header.ValidatorMerkle = block.ValidatorMerkleRoot()

	sig := crypto.Sign(p.cfg.NodePrivateKey, block.Hash().Bytes())
	block.Header.AggregatedSignature = sig
	return block
}

var (
	// ErrBadHeight is returned when a block's index doesn't follow the chain tip.
	ErrBadHeight = errors.New("block index does not follow chain tip")
	// ErrFutureTimestamp is returned when a block's timestamp is too far ahead of now.
	ErrFutureTimestamp = errors.New("block timestamp too far in the future")
	// ErrTooFast is returned when a block arrives before the minimum block interval has elapsed.
	ErrTooFast = errors.New("block arrived before minimum interval since previous block")
	// ErrNoScheduledValidator is returned when no validator is scheduled for a declared shard.
	ErrNoScheduledValidator = errors.New("no validator scheduled for declared shard")
	// ErrBadAggregateSignature is returned when a block's aggregated signature does not verify.
	ErrBadAggregateSignature = errors.New("block aggregated signature does not verify")
)

// ValidationConfig holds the timing knobs block validation depends on.
type ValidationConfig struct {
	FutureToleranceMicros int64
	BlockIntervalMicros   int64
	ToleranceMicros       int64 // the "- 1s" slack in the too-fast check
}

// ValidateBlock rejects a block per spec.md §4.4's validation rules: the
// structural checks spec.md §4.4 names explicitly, the shard invariants, and
// mandatory verification of the aggregated signature against each declared
// shard's scheduled producer (spec.md §9 overrides the teacher's
// unconditional pass-through placeholder). Transaction validity, state
// transitions and Merkle roots are not checked here.
func (s *Scheduler) ValidateBlock(cfg ValidationConfig, tip ChainTip, lastBlockTime types.Timestamp, now types.Timestamp, block *core.Block) error {
	expectedHeight := tip.LatestHeight() + 1
	if block.Header.Index != expectedHeight {
		return merrors.Wrap(merrors.BlockValidation, "height", ErrBadHeight)
	}
	if int64(block.Header.Timestamp) > int64(now)+cfg.FutureToleranceMicros {
		return merrors.Wrap(merrors.BlockValidation, "future timestamp", ErrFutureTimestamp)
	}
	if int64(block.Header.Timestamp) < int64(lastBlockTime)+cfg.BlockIntervalMicros-cfg.ToleranceMicros {
		return merrors.Wrap(merrors.BlockValidation, "too fast", ErrTooFast)
	}
	for _, shard := range block.Header.ShardIdentifiers {
		if _, ok := s.ScheduledProducer(block.Header.Index, shard); !ok {
			return merrors.Wrap(merrors.BlockValidation, "scheduled validator", ErrNoScheduledValidator)
		}
	}
	if err := block.CheckShardInvariants(); err != nil {
		return err
	}
	if !verifyAggregateSignature(s, block) {
		return merrors.Wrap(merrors.BlockValidation, "aggregate signature", ErrBadAggregateSignature)
	}
	return nil
}

func verifyAggregateSignature(s *Scheduler, block *core.Block) bool {
	for _, shard := range block.Header.ShardIdentifiers {
		producer, ok := s.ScheduledProducer(block.Header.Index, shard)
		if !ok {
			return false
		}
		signed := headerHashForSignature(block)
		if !crypto.Verify(producer.PublicKey, signed[:], block.Header.AggregatedSignature) {
			return false
		}
	}
	return true
}

func headerHashForSignature(block *core.Block) types.Hash {
	h := *block
	h.Header.AggregatedSignature = nil
	return h.Hash()
}

// IsFinal reports whether a block at blockIndex is final given the current
// chain height, per spec.md §4.4: current_height - block.index >=
// finality_confirmations.
func IsFinal(currentHeight, blockIndex types.BlockHeight, finalityConfirmations uint64) bool {
	if currentHeight < blockIndex {
		return false
	}
	return uint64(currentHeight-blockIndex) >= finalityConfirmations
}
