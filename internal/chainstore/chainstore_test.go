package chainstore

import (
	"testing"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/types"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir())
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPutGenesisBlockSetsAllPointers(t *testing.T) {
	s := openTestStore(t)
	genesis := &core.Block{Header: core.BlockHeader{Index: 0, ShardIdentifiers: []types.ShardId{0}}}
	if err := s.PutBlock(genesis); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if s.LatestHeight() != 0 {
		t.Fatalf("expected latest height 0, got %d", s.LatestHeight())
	}
	gHash, ok := s.GenesisHash()
	if !ok || gHash != genesis.Hash() {
		t.Fatal("genesis pointer not set correctly")
	}
}

func TestPutBlockAdvancesTip(t *testing.T) {
	s := openTestStore(t)
	genesis := &core.Block{Header: core.BlockHeader{Index: 0, ShardIdentifiers: []types.ShardId{0}}}
	s.PutBlock(genesis)

	next := &core.Block{Header: core.BlockHeader{Index: 1, PreviousHash: genesis.Hash(), ShardIdentifiers: []types.ShardId{0}}}
	if err := s.PutBlock(next); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}
	if s.LatestHeight() != 1 {
		t.Fatalf("expected latest height 1, got %d", s.LatestHeight())
	}
	if s.LatestHash() != next.Hash() {
		t.Fatal("latest hash pointer did not advance")
	}
}

func TestGetBlockByHeightAndHash(t *testing.T) {
	s := openTestStore(t)
	b := &core.Block{Header: core.BlockHeader{Index: 0, ShardIdentifiers: []types.ShardId{0}}}
	s.PutBlock(b)

	byHeight, err := s.GetBlockByHeight(0)
	if err != nil {
		t.Fatalf("GetBlockByHeight: %v", err)
	}
	if byHeight.Header.Index != 0 {
		t.Fatal("wrong block returned by height")
	}

	byHash, err := s.GetBlockByHash(b.Hash())
	if err != nil {
		t.Fatalf("GetBlockByHash: %v", err)
	}
	if byHash.Hash() != b.Hash() {
		t.Fatal("wrong block returned by hash")
	}
}

func TestGetBlockForTx(t *testing.T) {
	s := openTestStore(t)
	var txid types.Hash
	txid[0] = 7
	b := &core.Block{
		Header:    core.BlockHeader{Index: 0, ShardIdentifiers: []types.ShardId{0}},
		ShardData: []core.ShardData{{ShardId: 0, TransactionIDs: []types.Hash{txid}}},
	}
	s.PutBlock(b)

	found, err := s.GetBlockForTx(txid)
	if err != nil {
		t.Fatalf("GetBlockForTx: %v", err)
	}
	if found.Hash() != b.Hash() {
		t.Fatal("GetBlockForTx returned wrong block")
	}
}

func TestPutTransactionRoundTrip(t *testing.T) {
	s := openTestStore(t)
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tx := core.NewTransaction(core.TxTransfer, pub, 0, types.Address{1, 2, 3}, 0, 100, 10, 21000, 0, core.TxData{}, nil)
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	if err := s.PutTransaction(tx); err != nil {
		t.Fatalf("PutTransaction: %v", err)
	}
	got, err := s.GetTransaction(tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction: %v", err)
	}
	if got.ID != tx.ID || got.Amount != tx.Amount {
		t.Fatalf("round-tripped transaction mismatch: got %+v, want %+v", got, tx)
	}
}

func TestGetTransactionNotFound(t *testing.T) {
	s := openTestStore(t)
	if _, err := s.GetTransaction(types.Hash{9}); err == nil {
		t.Fatal("expected error for unknown transaction id")
	}
}

func TestPutBlockPersistsTransactionContent(t *testing.T) {
	s := openTestStore(t)
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	tx := core.NewTransaction(core.TxTransfer, pub, 0, types.Address{4, 5, 6}, 0, 50, 5, 21000, 0, core.TxData{}, nil)
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}

	b := &core.Block{
		Header:    core.BlockHeader{Index: 0, ShardIdentifiers: []types.ShardId{0}},
		ShardData: []core.ShardData{{ShardId: 0, TransactionIDs: []types.Hash{tx.ID}}},
	}
	if err := s.PutBlock(b, tx); err != nil {
		t.Fatalf("PutBlock: %v", err)
	}

	got, err := s.GetTransaction(tx.ID)
	if err != nil {
		t.Fatalf("GetTransaction after PutBlock: %v", err)
	}
	if got.ID != tx.ID {
		t.Fatal("transaction content not persisted alongside block")
	}
}

func TestPointersPersistAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	s1, _ := Open(dir)
	genesis := &core.Block{Header: core.BlockHeader{Index: 0, ShardIdentifiers: []types.ShardId{0}}}
	s1.PutBlock(genesis)
	s1.Close()

	s2, err := Open(dir)
	if err != nil {
		t.Fatalf("reopen: %v", err)
	}
	defer s2.Close()
	if s2.LatestHeight() != 0 {
		t.Fatal("latest height did not persist")
	}
	if h, ok := s2.GenesisHash(); !ok || h != genesis.Hash() {
		t.Fatal("genesis hash did not persist")
	}
}
