// Package statestore implements the C2 state store: a columnar key-value store
// over account balances/nonces, contract code/storage, and per-shard state
// roots, per spec.md §4.1/§6.
package statestore

import (
	"encoding/binary"
	"errors"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// Column prefixes, per spec.md §6 key layout.
const (
	colBalance    byte = 0x01
	colNonce      byte = 0x02
	colCode       byte = 0x03
	colStorage    byte = 0x04
	colShardRoot  byte = 0x05
	colValidator  byte = 0x06
	colStaking    byte = 0x07
	colMetadata   byte = 0x08
)

const currentSchemaVersion uint32 = 1

const metadataVersionKey = "version"

// ErrInsufficientBalance is returned by AdjustBalance when a negative delta
// would underflow the account's balance.
var ErrInsufficientBalance = errors.New("insufficient balance")

// Store is the columnar state store, backed by a single goleveldb database.
type Store struct {
	db *leveldb.DB
}

// Open opens (creating if absent) the state store at path, then runs any
// pending schema migrations.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "open state store", err)
	}
	s := &Store{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// Close flushes and closes the underlying database, guaranteeing durability.
func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return merrors.Wrap(merrors.Storage, "close state store", err)
	}
	return nil
}

func balanceKey(addr types.Address) []byte   { return append([]byte{colBalance}, addr.Bytes()...) }
func nonceKey(addr types.Address) []byte     { return append([]byte{colNonce}, addr.Bytes()...) }
func codeKey(addr types.Address) []byte      { return append([]byte{colCode}, addr.Bytes()...) }
func storageKey(addr types.Address, slot []byte) []byte {
	key := append([]byte{colStorage}, addr.Bytes()...)
	return append(key, slot...)
}
func shardRootKey(sid types.ShardId) []byte {
	key := make([]byte, 3)
	key[0] = colShardRoot
	binary.BigEndian.PutUint16(key[1:3], uint16(sid))
	return key
}
func validatorKey(addr types.Address) []byte { return append([]byte{colValidator}, addr.Bytes()...) }
func stakingKey(addr types.Address) []byte   { return append([]byte{colStaking}, addr.Bytes()...) }
func metadataKey(name string) []byte         { return append([]byte{colMetadata}, []byte(name)...) }

func (s *Store) getU64(key []byte) (uint64, error) {
	v, err := s.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, merrors.Wrap(merrors.Storage, "get", err)
	}
	if len(v) != 8 {
		return 0, merrors.New(merrors.Storage, "corrupt fixed-width value")
	}
	return binary.BigEndian.Uint64(v), nil
}

func (s *Store) putU64(key []byte, v uint64) error {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, v)
	if err := s.db.Put(key, buf, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "put", err)
	}
	return nil
}

// GetBalance returns the account's balance, 0 if absent.
func (s *Store) GetBalance(addr types.Address) (uint64, error) {
	return s.getU64(balanceKey(addr))
}

// SetBalance sets the account's balance directly.
func (s *Store) SetBalance(addr types.Address, balance uint64) error {
	return s.putU64(balanceKey(addr), balance)
}

// AdjustBalance applies delta (positive or negative) to the account's balance,
// failing with ErrInsufficientBalance if the subtraction would underflow.
func (s *Store) AdjustBalance(addr types.Address, delta int64) error {
	cur, err := s.GetBalance(addr)
	if err != nil {
		return err
	}
	if delta < 0 && uint64(-delta) > cur {
		return merrors.Wrap(merrors.State, "adjust balance", ErrInsufficientBalance)
	}
	var next uint64
	if delta >= 0 {
		next = cur + uint64(delta)
	} else {
		next = cur - uint64(-delta)
	}
	return s.SetBalance(addr, next)
}

// GetNonce returns the account's nonce, 0 if absent.
func (s *Store) GetNonce(addr types.Address) (uint64, error) {
	return s.getU64(nonceKey(addr))
}

// SetNonce sets the account's nonce directly.
func (s *Store) SetNonce(addr types.Address, nonce uint64) error {
	return s.putU64(nonceKey(addr), nonce)
}

// IncrementNonce increments the account's nonce by one and returns the new value.
func (s *Store) IncrementNonce(addr types.Address) (uint64, error) {
	cur, err := s.GetNonce(addr)
	if err != nil {
		return 0, err
	}
	next := cur + 1
	return next, s.SetNonce(addr, next)
}

// GetCode returns the account's contract code, nil if absent.
func (s *Store) GetCode(addr types.Address) ([]byte, error) {
	v, err := s.db.Get(codeKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get code", err)
	}
	return v, nil
}

// SetCode sets the account's contract code.
func (s *Store) SetCode(addr types.Address, code []byte) error {
	if err := s.db.Put(codeKey(addr), code, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "set code", err)
	}
	return nil
}

// HasCode reports whether addr has contract code stored.
func (s *Store) HasCode(addr types.Address) (bool, error) {
	ok, err := s.db.Has(codeKey(addr), nil)
	if err != nil {
		return false, merrors.Wrap(merrors.Storage, "has code", err)
	}
	return ok, nil
}

// GetStorage returns the contract storage value at (addr, key), nil if absent.
func (s *Store) GetStorage(addr types.Address, key []byte) ([]byte, error) {
	v, err := s.db.Get(storageKey(addr, key), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get storage", err)
	}
	return v, nil
}

// SetStorage sets the contract storage value at (addr, key).
func (s *Store) SetStorage(addr types.Address, key, value []byte) error {
	if err := s.db.Put(storageKey(addr, key), value, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "set storage", err)
	}
	return nil
}

// GetShardStateRoot returns the state root committed for sid, zero hash if absent.
func (s *Store) GetShardStateRoot(sid types.ShardId) (types.Hash, error) {
	v, err := s.db.Get(shardRootKey(sid), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return types.Hash{}, nil
	}
	if err != nil {
		return types.Hash{}, merrors.Wrap(merrors.Storage, "get shard state root", err)
	}
	return types.HashFromBytes(v), nil
}

// SetShardStateRoot commits the state root for sid.
func (s *Store) SetShardStateRoot(sid types.ShardId, root types.Hash) error {
	if err := s.db.Put(shardRootKey(sid), root.Bytes(), nil); err != nil {
		return merrors.Wrap(merrors.Storage, "set shard state root", err)
	}
	return nil
}

// GetValidatorRecord / SetValidatorRecord store the opaque serialised validator
// record for addr; internal/consensus owns the encoding.
func (s *Store) GetValidatorRecord(addr types.Address) ([]byte, error) {
	v, err := s.db.Get(validatorKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get validator record", err)
	}
	return v, nil
}

func (s *Store) SetValidatorRecord(addr types.Address, record []byte) error {
	if err := s.db.Put(validatorKey(addr), record, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "set validator record", err)
	}
	return nil
}

// GetStakingRecord / SetStakingRecord store the opaque serialised staking
// record for addr.
func (s *Store) GetStakingRecord(addr types.Address) ([]byte, error) {
	v, err := s.db.Get(stakingKey(addr), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get staking record", err)
	}
	return v, nil
}

func (s *Store) SetStakingRecord(addr types.Address, record []byte) error {
	if err := s.db.Put(stakingKey(addr), record, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "set staking record", err)
	}
	return nil
}

// IterateStoragePrefix iterates every storage slot stored for addr, invoking fn
// with (slotKey, value). Iteration order is the store's natural key order.
func (s *Store) IterateStoragePrefix(addr types.Address, fn func(slotKey, value []byte) bool) error {
	prefix := append([]byte{colStorage}, addr.Bytes()...)
	iter := s.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		slotKey := append([]byte(nil), iter.Key()[len(prefix):]...)
		value := append([]byte(nil), iter.Value()...)
		if !fn(slotKey, value) {
			break
		}
	}
	if err := iter.Error(); err != nil {
		return merrors.Wrap(merrors.Storage, "iterate storage", err)
	}
	return nil
}

// BatchWriter accumulates a set of operations for atomic commit, used when a
// block applies changes across multiple columns.
type BatchWriter struct {
	store *Store
	batch leveldb.Batch
}

// NewBatch starts a new atomic batch against the store.
func (s *Store) NewBatch() *BatchWriter {
	return &BatchWriter{store: s}
}

func (w *BatchWriter) SetBalance(addr types.Address, balance uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, balance)
	w.batch.Put(balanceKey(addr), buf)
}

func (w *BatchWriter) SetNonce(addr types.Address, nonce uint64) {
	buf := make([]byte, 8)
	binary.BigEndian.PutUint64(buf, nonce)
	w.batch.Put(nonceKey(addr), buf)
}

func (w *BatchWriter) SetShardStateRoot(sid types.ShardId, root types.Hash) {
	w.batch.Put(shardRootKey(sid), root.Bytes())
}

func (w *BatchWriter) SetStorage(addr types.Address, key, value []byte) {
	w.batch.Put(storageKey(addr, key), value)
}

// Commit writes every queued operation atomically.
func (w *BatchWriter) Commit() error {
	if err := w.store.db.Write(&w.batch, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "commit batch", err)
	}
	return nil
}
