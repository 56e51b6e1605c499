package rpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"testing"

	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/mempool"
	"github.com/meridian-chain/meridian-node/internal/types"
)

type fakeTxService struct {
	submitted []*core.Transaction
	submitErr error
	balances  map[types.Address]uint64
	history   map[types.Address][]*core.Transaction
}

func (f *fakeTxService) Submit(tx *core.Transaction) error {
	if f.submitErr != nil {
		return f.submitErr
	}
	f.submitted = append(f.submitted, tx)
	return nil
}

func (f *fakeTxService) GetBalance(addr types.Address) (uint64, error) {
	return f.balances[addr], nil
}

func (f *fakeTxService) GetTransactionHistory(addr types.Address) []*core.Transaction {
	return f.history[addr]
}

type fakeChain struct {
	blocks map[types.Hash]*core.Block
	txs    map[types.Hash]*core.Transaction
}

func (f *fakeChain) GetBlockForTx(txid types.Hash) (*core.Block, error) {
	if b, ok := f.blocks[txid]; ok {
		return b, nil
	}
	return nil, errors.New("not found")
}

func (f *fakeChain) GetTransaction(id types.Hash) (*core.Transaction, error) {
	if tx, ok := f.txs[id]; ok {
		return tx, nil
	}
	return nil, errors.New("not found")
}

func newTestTransfer(t *testing.T) *core.Transaction {
	t.Helper()
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	recipient := types.Address{1, 2, 3}
	tx := core.NewTransaction(core.TxTransfer, pub, 0, recipient, 0, 100, 10, 21000, 0, core.TxData{}, nil)
	if err := tx.Sign(priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	return tx
}

func TestPostTxSubmitsAndReturnsID(t *testing.T) {
	tx := newTestTransfer(t)
	svc := &fakeTxService{}
	srv := NewServer(svc, nil, nil, nil)

	body, err := json.Marshal(tx)
	if err != nil {
		t.Fatalf("marshal tx: %v", err)
	}

	req := httptest.NewRequest("POST", "/tx", bytes.NewReader(body))
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 202 {
		t.Fatalf("expected 202 Accepted, got %d: %s", rec.Code, rec.Body.String())
	}
	if len(svc.submitted) != 1 {
		t.Fatalf("expected 1 submitted transaction, got %d", len(svc.submitted))
	}
}

func TestGetBalanceReturnsBalance(t *testing.T) {
	pub, _, _ := crypto.GenerateKeypair()
	addr, _ := crypto.DeriveAddress(pub)
	svc := &fakeTxService{balances: map[types.Address]uint64{addr: 12345}}
	srv := NewServer(svc, nil, nil, nil)

	req := httptest.NewRequest("GET", "/balance/"+crypto.AddressToBase58(addr), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]uint64
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out["balance"] != 12345 {
		t.Fatalf("expected balance 12345, got %d", out["balance"])
	}
}

func TestGetBalanceRejectsBadAddress(t *testing.T) {
	svc := &fakeTxService{}
	srv := NewServer(svc, nil, nil, nil)

	req := httptest.NewRequest("GET", "/balance/not-a-valid-address", nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 400 {
		t.Fatalf("expected 400 for malformed address, got %d", rec.Code)
	}
}

func TestGetTxReturnsPendingFromMempool(t *testing.T) {
	tx := newTestTransfer(t)
	pool := mempool.New(mempool.Config{MaxSize: 10, MaxAgeSeconds: 3600, MinFeePerByte: 0, MaxTxSize: 1 << 20}, func() int64 { return 0 })
	if err := pool.Add(tx); err != nil {
		t.Fatalf("mempool Add: %v", err)
	}

	svc := &fakeTxService{}
	srv := NewServer(svc, pool, nil, nil)

	req := httptest.NewRequest("GET", "/tx/"+tx.ID.String(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out["status"] != "pending" {
		t.Fatalf("expected status=pending, got %v", out["status"])
	}
}

func TestGetTxReturnsConfirmedTransactionContentFromChain(t *testing.T) {
	tx := newTestTransfer(t)
	block := &core.Block{Header: core.BlockHeader{Index: 5}}
	chain := &fakeChain{
		blocks: map[types.Hash]*core.Block{tx.ID: block},
		txs:    map[types.Hash]*core.Transaction{tx.ID: tx},
	}
	svc := &fakeTxService{}
	srv := NewServer(svc, nil, chain, nil)

	req := httptest.NewRequest("GET", "/tx/"+tx.ID.String(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 200 {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	var out map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("unmarshal response: %v", err)
	}
	if out["status"] != "confirmed" {
		t.Fatalf("expected status=confirmed, got %v", out["status"])
	}
	if out["transaction"] == nil {
		t.Fatal("expected confirmed response to include transaction content from chainstore")
	}
}

func TestGetTxNotFound(t *testing.T) {
	svc := &fakeTxService{}
	srv := NewServer(svc, nil, nil, nil)

	req := httptest.NewRequest("GET", "/tx/"+(types.Hash{}).String(), nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if rec.Code != 404 {
		t.Fatalf("expected 404, got %d", rec.Code)
	}
}
