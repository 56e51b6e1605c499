// Package chainstore implements the C3 chain store: blocks indexed by height
// and by hash, transactions indexed by id, and the latest/genesis pointers,
// per spec.md §4.2.
package chainstore

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

const (
	colBlockByHeight byte = 0x01
	colBlockByHash   byte = 0x02
	colTxByID        byte = 0x03
	colPointers      byte = 0x04
	colTxContent     byte = 0x05
)

const (
	pointerLatestHeight = "latest_height"
	pointerLatestHash   = "latest_hash"
	pointerGenesisHash  = "genesis_hash"
)

// Store is the chain store, backed by its own goleveldb database distinct from
// the state store (spec.md §5's lock-order treats chain and state separately).
type Store struct {
	mu sync.RWMutex
	db *leveldb.DB

	latestHeight types.BlockHeight
	latestHash   types.Hash
	genesisHash  types.Hash
	hasGenesis   bool
}

// Open opens (creating if absent) the chain store at path.
func Open(path string) (*Store, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "open chain store", err)
	}
	s := &Store{db: db}
	if err := s.loadPointers(); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if err := s.db.Close(); err != nil {
		return merrors.Wrap(merrors.Storage, "close chain store", err)
	}
	return nil
}

func heightKey(h types.BlockHeight) []byte {
	key := make([]byte, 9)
	key[0] = colBlockByHeight
	binary.BigEndian.PutUint64(key[1:], uint64(h))
	return key
}

func hashKey(h types.Hash) []byte {
	return append([]byte{colBlockByHash}, h[:]...)
}

func txKey(id types.Hash) []byte {
	return append([]byte{colTxByID}, id[:]...)
}

func txContentKey(id types.Hash) []byte {
	return append([]byte{colTxContent}, id[:]...)
}

func pointerKey(name string) []byte {
	return append([]byte{colPointers}, []byte(name)...)
}

func (s *Store) loadPointers() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if v, err := s.db.Get(pointerKey(pointerLatestHeight), nil); err == nil {
		s.latestHeight = types.BlockHeight(binary.BigEndian.Uint64(v))
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return merrors.Wrap(merrors.Storage, "load latest height pointer", err)
	}

	if v, err := s.db.Get(pointerKey(pointerLatestHash), nil); err == nil {
		s.latestHash = types.HashFromBytes(v)
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return merrors.Wrap(merrors.Storage, "load latest hash pointer", err)
	}

	if v, err := s.db.Get(pointerKey(pointerGenesisHash), nil); err == nil {
		s.genesisHash = types.HashFromBytes(v)
		s.hasGenesis = true
	} else if !errors.Is(err, leveldb.ErrNotFound) {
		return merrors.Wrap(merrors.Storage, "load genesis hash pointer", err)
	}

	return nil
}

// storedBlock is the JSON-serialisable mirror of core.Block used for disk
// persistence; the in-memory type stays the canonical one used everywhere else.
type storedBlock struct {
	Header       core.BlockHeader
	ShardData    []core.ShardData
	Receipts     []core.Receipt
	ValidatorSet []types.Hash
}

func toStored(b *core.Block) storedBlock {
	return storedBlock{Header: b.Header, ShardData: b.ShardData, Receipts: b.Receipts, ValidatorSet: b.ValidatorSet}
}

func fromStored(sb storedBlock) *core.Block {
	return &core.Block{Header: sb.Header, ShardData: sb.ShardData, Receipts: sb.Receipts, ValidatorSet: sb.ValidatorSet}
}

// PutBlock stores b, updates the height/hash/tx-id indices atomically, and
// advances the latest pointers if b's height exceeds the current tip. A block
// at height 0 also sets the genesis-hash pointer, per spec.md §4.2. txs, if
// given, are the full transactions b's ShardData references by id; they are
// written into the tx-by-id content index in the same batch, per spec.md
// §2's C3 "transactions by id" table entry and §4.2's tx-id -> transaction
// map. Callers that don't have the full transactions on hand (e.g. replaying
// a block received with only ids) may omit txs; GetTransaction then falls
// back to "not found" for those ids.
func (s *Store) PutBlock(b *core.Block, txs ...*core.Transaction) error {
	encoded, err := json.Marshal(toStored(b))
	if err != nil {
		return merrors.Wrap(merrors.Serialization, "marshal block", err)
	}
	hash := b.Hash()

	var batch leveldb.Batch
	batch.Put(heightKey(b.Header.Index), encoded)
	batch.Put(hashKey(hash), encoded)
	for _, sd := range b.ShardData {
		for _, txid := range sd.TransactionIDs {
			batch.Put(txKey(txid), hash.Bytes())
		}
	}
	for _, tx := range txs {
		txEncoded, err := json.Marshal(tx)
		if err != nil {
			return merrors.Wrap(merrors.Serialization, "marshal transaction", err)
		}
		batch.Put(txContentKey(tx.ID), txEncoded)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	isNewTip := !s.hasAnyBlock() || b.Header.Index > s.latestHeight

	if isNewTip {
		heightBuf := make([]byte, 8)
		binary.BigEndian.PutUint64(heightBuf, uint64(b.Header.Index))
		batch.Put(pointerKey(pointerLatestHeight), heightBuf)
		batch.Put(pointerKey(pointerLatestHash), hash.Bytes())
	}
	if b.Header.Index == 0 {
		batch.Put(pointerKey(pointerGenesisHash), hash.Bytes())
	}

	if err := s.db.Write(&batch, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "commit block batch", err)
	}

	if isNewTip {
		s.latestHeight = b.Header.Index
		s.latestHash = hash
	}
	if b.Header.Index == 0 {
		s.genesisHash = hash
		s.hasGenesis = true
	}

	return nil
}

func (s *Store) hasAnyBlock() bool {
	return s.hasGenesis || s.latestHeight != 0 || !s.latestHash.IsZero()
}

// GetBlockByHeight returns the block stored at height h.
func (s *Store) GetBlockByHeight(h types.BlockHeight) (*core.Block, error) {
	v, err := s.db.Get(heightKey(h), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, merrors.New(merrors.Storage, "block not found at height")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get block by height", err)
	}
	return decodeBlock(v)
}

// GetBlockByHash returns the block with the given hash.
func (s *Store) GetBlockByHash(hash types.Hash) (*core.Block, error) {
	v, err := s.db.Get(hashKey(hash), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, merrors.New(merrors.Storage, "block not found for hash")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get block by hash", err)
	}
	return decodeBlock(v)
}

func decodeBlock(v []byte) (*core.Block, error) {
	var sb storedBlock
	if err := json.Unmarshal(v, &sb); err != nil {
		return nil, merrors.Wrap(merrors.Serialization, "unmarshal block", err)
	}
	return fromStored(sb), nil
}

// GetBlockForTx returns the block that contains txid, if any.
func (s *Store) GetBlockForTx(txid types.Hash) (*core.Block, error) {
	v, err := s.db.Get(txKey(txid), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, merrors.New(merrors.Storage, "transaction not indexed")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get block for tx", err)
	}
	return s.GetBlockByHash(types.HashFromBytes(v))
}

// PutTransaction writes tx into the durable tx-by-id content index outside
// of a block write, e.g. so a transaction's content survives mempool
// eviction before it is confirmed. PutBlock also writes this index for any
// transactions passed to it.
func (s *Store) PutTransaction(tx *core.Transaction) error {
	encoded, err := json.Marshal(tx)
	if err != nil {
		return merrors.Wrap(merrors.Serialization, "marshal transaction", err)
	}
	if err := s.db.Put(txContentKey(tx.ID), encoded, nil); err != nil {
		return merrors.Wrap(merrors.Storage, "put transaction", err)
	}
	return nil
}

// GetTransaction returns the full transaction content stored for id, per
// spec.md §4.2's tx-id -> transaction map.
func (s *Store) GetTransaction(id types.Hash) (*core.Transaction, error) {
	v, err := s.db.Get(txContentKey(id), nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, merrors.New(merrors.Storage, "transaction content not found")
	}
	if err != nil {
		return nil, merrors.Wrap(merrors.Storage, "get transaction", err)
	}
	var tx core.Transaction
	if err := json.Unmarshal(v, &tx); err != nil {
		return nil, merrors.Wrap(merrors.Serialization, "unmarshal transaction", err)
	}
	return &tx, nil
}

// LatestHeight returns the current chain tip height.
func (s *Store) LatestHeight() types.BlockHeight {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestHeight
}

// LatestHash returns the current chain tip hash.
func (s *Store) LatestHash() types.Hash {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latestHash
}

// GenesisHash returns the genesis block's hash, and whether one has been set.
func (s *Store) GenesisHash() (types.Hash, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.genesisHash, s.hasGenesis
}
