// Package txservice implements the C7 transaction service of spec.md §4.6:
// transaction construction, signing, validation, submission, fee estimation,
// balance lookup, and a per-address transaction history cache.
package txservice

import (
	"crypto/ed25519"
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meridian-chain/meridian-node/internal/config"
	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/mempool"
	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// defaultGasLimit is used when CreateTransaction's caller leaves gas unset,
// mirroring the "sensible default when omitted" wording of spec.md §4.6.
const defaultGasLimit = 21000

// State is the subset of statestore.Store the transaction service needs:
// balance and nonce lookups.
type State interface {
	GetBalance(addr types.Address) (uint64, error)
	GetNonce(addr types.Address) (uint64, error)
}

// Mempool is the subset of mempool.Mempool the transaction service submits
// validated transactions into.
type Mempool interface {
	Add(tx *core.Transaction) error
}

var (
	// ErrNonceTooLow is returned by Validate when tx.Nonce is behind the
	// sender's account nonce.
	ErrNonceTooLow = merrors.New(merrors.TransactionValidation, "nonce below account nonce")
	// ErrInsufficientBalance is returned by Validate for a Transfer whose
	// sender cannot cover amount+fee.
	ErrInsufficientBalance = merrors.New(merrors.TransactionValidation, "insufficient balance for amount and fee")
)

// Service implements spec.md §4.6's Transaction Service API.
type Service struct {
	state State
	pool  Mempool
	cfg   config.TxServiceConfig

	mu      sync.Mutex
	history map[types.Address]*lru.Cache[types.Hash, *core.Transaction]
}

// NewService constructs a Service bound to state and the mempool.
func NewService(state State, pool Mempool, cfg config.TxServiceConfig) *Service {
	return &Service{
		state:   state,
		pool:    pool,
		cfg:     cfg,
		history: make(map[types.Address]*lru.Cache[types.Hash, *core.Transaction]),
	}
}

// CreateTransaction builds an unsigned transaction, filling in fee/gas/nonce
// when the caller leaves them at their zero value, per spec.md §4.6.
func (s *Service) CreateTransaction(
	txType core.TxType,
	senderPub ed25519.PublicKey,
	senderShard types.ShardId,
	recipient types.Address,
	recipientShard types.ShardId,
	amount, fee, gasLimit, nonce uint64,
	data core.TxData,
	deps []core.Dependency,
) (*core.Transaction, error) {
	if fee == 0 {
		fee = s.EstimateFee(txType, len(data.Content))
	}
	if gasLimit == 0 {
		gasLimit = defaultGasLimit
	}
	if nonce == 0 {
		senderAddr, err := crypto.DeriveAddress(senderPub)
		if err != nil {
			return nil, merrors.Wrap(merrors.Crypto, "derive sender address", err)
		}
		accountNonce, err := s.state.GetNonce(senderAddr)
		if err != nil {
			return nil, merrors.Wrap(merrors.State, "load sender nonce", err)
		}
		nonce = accountNonce
	}
	return core.NewTransaction(txType, senderPub, senderShard, recipient, recipientShard, amount, fee, gasLimit, nonce, data, deps), nil
}

// Sign signs tx with priv, setting its id and signature.
func (s *Service) Sign(tx *core.Transaction, priv ed25519.PrivateKey) error {
	return tx.Sign(priv)
}

// Validate enforces spec.md §4.6's rules: well-formedness, nonce ordering,
// and, for Transfer transactions, sender solvency.
func (s *Service) Validate(tx *core.Transaction) error {
	if err := tx.CheckWellFormed(); err != nil {
		return err
	}

	senderAddr, err := crypto.DeriveAddress(tx.SenderPubKey)
	if err != nil {
		return merrors.Wrap(merrors.Crypto, "derive sender address", err)
	}

	accountNonce, err := s.state.GetNonce(senderAddr)
	if err != nil {
		return merrors.Wrap(merrors.State, "load sender nonce", err)
	}
	if tx.Nonce < accountNonce {
		return ErrNonceTooLow
	}

	if tx.Type == core.TxTransfer {
		balance, err := s.state.GetBalance(senderAddr)
		if err != nil {
			return merrors.Wrap(merrors.State, "load sender balance", err)
		}
		if balance < tx.Amount+tx.Fee {
			return ErrInsufficientBalance
		}
	}

	return nil
}

// Submit validates tx, inserts it into the mempool, and records it in both
// the sender's and recipient's history caches.
func (s *Service) Submit(tx *core.Transaction) error {
	if err := s.Validate(tx); err != nil {
		return err
	}
	if err := s.pool.Add(tx); err != nil {
		return merrors.Wrap(merrors.TransactionValidation, "submit to mempool", err)
	}

	senderAddr, err := crypto.DeriveAddress(tx.SenderPubKey)
	if err == nil {
		s.recordHistory(senderAddr, tx)
	}
	s.recordHistory(tx.RecipientAddr, tx)

	return nil
}

func (s *Service) recordHistory(addr types.Address, tx *core.Transaction) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cache, ok := s.history[addr]
	if !ok {
		max := s.cfg.MaxHistoryItems
		if max <= 0 {
			max = 1
		}
		cache, _ = lru.New[types.Hash, *core.Transaction](max)
		s.history[addr] = cache
	}
	cache.Add(tx.ID, tx)
}

// EstimateFee implements spec.md §4.6's four fee models, selected by
// cfg.FeeModel.
func (s *Service) EstimateFee(txType core.TxType, dataSize int) uint64 {
	switch s.cfg.FeeModel {
	case "size_based":
		return s.cfg.DefaultFee + uint64(dataSize)/100
	case "type_based":
		return s.typeBasedFee(txType)
	case "dynamic":
		base := s.typeBasedFee(txType) + uint64(dataSize)/100
		return uint64(float64(base) * s.cfg.CongestionMultiplier)
	default: // "fixed" and unrecognised values fall back to the fixed model
		return s.cfg.DefaultFee
	}
}

func (s *Service) typeBasedFee(txType core.TxType) uint64 {
	switch txType {
	case core.TxTransfer:
		return s.cfg.DefaultFee
	case core.TxContractDeploy:
		return s.cfg.DefaultFee * 10
	case core.TxContractCall:
		return s.cfg.DefaultFee * 5
	default:
		return s.cfg.DefaultFee * 2
	}
}

// GetTransactionHistory returns the cached transactions touching addr, most
// recently added last, bounded by cfg.MaxHistoryItems.
func (s *Service) GetTransactionHistory(addr types.Address) []*core.Transaction {
	s.mu.Lock()
	cache, ok := s.history[addr]
	s.mu.Unlock()
	if !ok {
		return nil
	}
	keys := cache.Keys()
	out := make([]*core.Transaction, 0, len(keys))
	for _, k := range keys {
		if tx, ok := cache.Peek(k); ok {
			out = append(out, tx)
		}
	}
	return out
}

// GetBalance reads addr's current balance from state.
func (s *Service) GetBalance(addr types.Address) (uint64, error) {
	balance, err := s.state.GetBalance(addr)
	if err != nil {
		return 0, merrors.Wrap(merrors.State, "load balance", err)
	}
	return balance, nil
}

// CreateTransfer builds, fee-fills, signs, and returns a Transfer
// transaction in one call, per spec.md §4.6.
func (s *Service) CreateTransfer(
	priv ed25519.PrivateKey,
	pub ed25519.PublicKey,
	senderShard types.ShardId,
	recipient types.Address,
	recipientShard types.ShardId,
	amount, fee uint64,
) (*core.Transaction, error) {
	tx, err := s.CreateTransaction(core.TxTransfer, pub, senderShard, recipient, recipientShard, amount, fee, 0, 0, core.TxData{}, nil)
	if err != nil {
		return nil, err
	}
	if err := s.Sign(tx, priv); err != nil {
		return nil, merrors.Wrap(merrors.Crypto, "sign transfer", err)
	}
	return tx, nil
}
