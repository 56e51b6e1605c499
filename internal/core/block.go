package core

import (
	"errors"

	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
	"github.com/meridian-chain/meridian-node/pkg/merkle"
)

// ShardData is the per-shard contribution to a block: the transactions executed
// for that shard, the proof that execution was applied, and the signatures of
// the validators assigned to that shard.
type ShardData struct {
	ShardId         types.ShardId
	TransactionIDs  []types.Hash
	ExecutionProof  types.Hash
	ValidatorSigs   [][]byte
}

// Receipt is a cross-shard receipt: a fact emitted by one shard that another
// shard must observe before acting on it (e.g. a balance credit following a
// cross-shard transfer).
type Receipt struct {
	TxID          types.Hash
	SourceShard   types.ShardId
	DestShard     types.ShardId
	SourceHeight  types.BlockHeight
	Payload       []byte
}

// BlockHeader carries the commitments and metadata of a block, per spec.md §3.
type BlockHeader struct {
	Index             types.BlockHeight
	Timestamp         types.Timestamp
	PreviousHash      types.Hash
	StateRoot         types.Hash
	TransactionRoot   types.Hash
	ReceiptRoot       types.Hash
	ValidatorMerkle   types.Hash
	ShardIdentifiers  []types.ShardId
	AggregatedSignature []byte
}

// Block is the unit of chain storage: a header, the per-shard data, the
// cross-shard receipts it carries, and the validator set that signed it.
type Block struct {
	Header        BlockHeader
	ShardData     []ShardData
	Receipts      []Receipt
	ValidatorSet  []types.Hash // validator ids that participated in this block
}

// Hash computes the block's identity hash over its header bytes.
func (b *Block) Hash() types.Hash {
	return sha256Header(b.Header)
}

var (
	// ErrShardNotDeclared is returned when a ShardData's shard id is absent from
	// the header's shard_identifiers list.
	ErrShardNotDeclared = errors.New("shard data references an undeclared shard id")
	// ErrDuplicateShard is returned when a shard id appears more than once among
	// the block's ShardData entries.
	ErrDuplicateShard = errors.New("shard id appears more than once in shard data")
)

// CheckShardInvariants enforces spec.md §3: every ShardData.shard_id appears in
// shard_identifiers and at most once.
func (b *Block) CheckShardInvariants() error {
	declared := make(map[types.ShardId]bool, len(b.Header.ShardIdentifiers))
	for _, sid := range b.Header.ShardIdentifiers {
		declared[sid] = true
	}
	seen := make(map[types.ShardId]bool, len(b.ShardData))
	for _, sd := range b.ShardData {
		if !declared[sd.ShardId] {
			return merrors.Wrap(merrors.BlockValidation, "shard invariant", ErrShardNotDeclared)
		}
		if seen[sd.ShardId] {
			return merrors.Wrap(merrors.BlockValidation, "shard invariant", ErrDuplicateShard)
		}
		seen[sd.ShardId] = true
	}
	return nil
}

// TransactionRoot computes the Merkle root over every transaction id carried by
// the block's shard data, in shard-then-insertion order.
func (b *Block) TransactionRoot() types.Hash {
	var leaves []types.Hash
	for _, sd := range b.ShardData {
		leaves = append(leaves, sd.TransactionIDs...)
	}
	return merkle.Root(leaves)
}

// ReceiptRoot computes the Merkle root over the block's cross-shard receipts.
func (b *Block) ReceiptRoot() types.Hash {
	leaves := make([]types.Hash, len(b.Receipts))
	for i, r := range b.Receipts {
		leaves[i] = r.TxID
	}
	return merkle.Root(leaves)
}

// ValidatorMerkleRoot computes the Merkle root over the participating validator
// set's ids.
func (b *Block) ValidatorMerkleRoot() types.Hash {
	return merkle.Root(b.ValidatorSet)
}
