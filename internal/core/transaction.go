// Package core defines the block-assembly data model: Transaction, Block,
// ShardData, and the canonical byte encodings used for hashing and signing.
package core

import (
	"crypto/ed25519"
	"errors"
	"time"

	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// TxType enumerates the kinds of transaction this chain accepts.
type TxType uint8

const (
	TxTransfer TxType = iota
	TxContractDeploy
	TxContractCall
	TxValidatorRegister
	TxValidatorUnregister
	TxStake
	TxUnstake
	TxSystem
)

// DataKind tags the variant carried in Transaction.Data.
type DataKind uint8

const (
	DataNone DataKind = iota
	DataText
	DataBinary
	DataJSON
	DataContractCode
	DataContractCallData
)

// TxData is the tagged payload attached to a transaction.
type TxData struct {
	Kind    DataKind
	Content []byte
}

// DependencyKind classifies how strongly a transaction depends on another.
type DependencyKind uint8

const (
	DepHard DependencyKind = iota
	DepSoft
	DepState
)

// Dependency references another transaction this one depends on.
type Dependency struct {
	TxID          types.Hash
	Kind          DependencyKind
	RequiredState []byte // optional, only meaningful for DepState
}

// OptimisticStatus tracks runtime-only execution state; it is never part of the
// canonical/signed form of a transaction.
type OptimisticStatus uint8

const (
	StatusPending OptimisticStatus = iota
	StatusExecuted
	StatusConfirmed
	StatusRolledBack
)

// Transaction is immutable once signed, except for the runtime-only fields
// marked below, which mirror spec.md's † annotations.
type Transaction struct {
	ID types.Hash

	Version uint8
	Type    TxType

	SenderPubKey    ed25519.PublicKey
	SenderShard     types.ShardId
	RecipientAddr   types.Address
	RecipientShard  types.ShardId

	Amount    uint64
	Fee       uint64
	GasLimit  uint64
	Nonce     uint64
	Timestamp types.Timestamp

	Data TxData

	Dependencies []Dependency

	Signature []byte

	// Runtime-only fields (†): never included in canonical bytes, never signed.
	ExecutionPriority types.Priority
	OptimisticStatus  OptimisticStatus
	ParallelMarkers   []string
	BatchInfo         string
}

// NewTransaction builds an unsigned transaction with the given fields; the caller
// must call Sign before submitting it.
func NewTransaction(
	txType TxType,
	senderPub ed25519.PublicKey,
	senderShard types.ShardId,
	recipient types.Address,
	recipientShard types.ShardId,
	amount, fee, gasLimit, nonce uint64,
	data TxData,
	deps []Dependency,
) *Transaction {
	return &Transaction{
		Version:        1,
		Type:           txType,
		SenderPubKey:   senderPub,
		SenderShard:    senderShard,
		RecipientAddr:  recipient,
		RecipientShard: recipientShard,
		Amount:         amount,
		Fee:            fee,
		GasLimit:       gasLimit,
		Nonce:          nonce,
		Timestamp:      types.Timestamp(time.Now().UnixMicro()),
		Data:           data,
		Dependencies:   deps,
	}
}

// CanonicalBytes returns the deterministic byte encoding used for hashing and
// signing, per spec.md §6: every field except signature and id, in field order.
func (tx *Transaction) CanonicalBytes() []byte {
	return encodeTransactionCanonical(tx)
}

// ComputeID hashes the canonical bytes to derive the transaction id.
func (tx *Transaction) ComputeID() types.Hash {
	return crypto.SHA256(tx.CanonicalBytes())
}

// Sign computes the canonical hash, stores it as ID, and signs it with priv.
func (tx *Transaction) Sign(priv ed25519.PrivateKey) error {
	tx.ID = tx.ComputeID()
	tx.Signature = crypto.Sign(priv, tx.ID[:])
	return nil
}

// VerifySignature reports whether tx.Signature validates under tx.SenderPubKey
// over tx.ID, and that ID matches the canonical hash.
func (tx *Transaction) VerifySignature() bool {
	if len(tx.SenderPubKey) == 0 || len(tx.Signature) == 0 {
		return false
	}
	if tx.ComputeID() != tx.ID {
		return false
	}
	return crypto.Verify(tx.SenderPubKey, tx.ID[:], tx.Signature)
}

var (
	// ErrEmptySenderPubKey is returned when a transaction has no sender public key.
	ErrEmptySenderPubKey = errors.New("sender pubkey is empty")
	// ErrEmptyRecipient is returned when a transaction has no recipient address.
	ErrEmptyRecipient = errors.New("recipient address is empty")
	// ErrIDMismatch is returned when a transaction's id does not match its canonical hash.
	ErrIDMismatch = errors.New("transaction id does not match canonical hash")
	// ErrBadSignature is returned when a transaction's signature does not verify.
	ErrBadSignature = errors.New("transaction signature does not verify")
)

// CheckWellFormed validates the structural invariants from spec.md §3 that don't
// require state access: non-empty sender/recipient, id correctness, signature
// validity. Nonce and balance checks require state and live in the services that
// have access to it (internal/txservice, internal/mempool).
func (tx *Transaction) CheckWellFormed() error {
	if len(tx.SenderPubKey) == 0 {
		return merrors.Wrap(merrors.TransactionValidation, "well-formed check", ErrEmptySenderPubKey)
	}
	if tx.RecipientAddr.IsZero() {
		return merrors.Wrap(merrors.TransactionValidation, "well-formed check", ErrEmptyRecipient)
	}
	if tx.ComputeID() != tx.ID {
		return merrors.Wrap(merrors.TransactionValidation, "well-formed check", ErrIDMismatch)
	}
	if !tx.VerifySignature() {
		return merrors.Wrap(merrors.TransactionValidation, "well-formed check", ErrBadSignature)
	}
	return nil
}

// Size returns the approximate wire size of tx, used by the mempool for
// fee-per-byte computation and size-limit enforcement.
func (tx *Transaction) Size() int {
	size := 1 + 1 + len(tx.SenderPubKey) + 2 + 24 + 2 + 8*5 + 1 + len(tx.Data.Content) + len(tx.Signature)
	for _, d := range tx.Dependencies {
		size += 32 + 1 + len(d.RequiredState)
	}
	return size
}

// FeePerByte computes fee divided by size, used by the mempool's priority index.
func (tx *Transaction) FeePerByte() float64 {
	sz := tx.Size()
	if sz == 0 {
		return 0
	}
	return float64(tx.Fee) / float64(sz)
}
