package txservice

import (
	"testing"

	"github.com/meridian-chain/meridian-node/internal/config"
	"github.com/meridian-chain/meridian-node/internal/core"
	"github.com/meridian-chain/meridian-node/internal/crypto"
	"github.com/meridian-chain/meridian-node/internal/types"
)

type memState struct {
	balances map[types.Address]uint64
	nonces   map[types.Address]uint64
}

func newMemState() *memState {
	return &memState{balances: make(map[types.Address]uint64), nonces: make(map[types.Address]uint64)}
}

func (m *memState) GetBalance(addr types.Address) (uint64, error) { return m.balances[addr], nil }
func (m *memState) GetNonce(addr types.Address) (uint64, error)   { return m.nonces[addr], nil }

type memMempool struct {
	added []*core.Transaction
}

func (m *memMempool) Add(tx *core.Transaction) error {
	m.added = append(m.added, tx)
	return nil
}

func testConfig() config.TxServiceConfig {
	return config.TxServiceConfig{
		FeeModel:             "dynamic",
		DefaultFee:           100,
		CongestionMultiplier: 1.0,
		MaxHistoryItems:      4,
	}
}

func TestEstimateFeeModels(t *testing.T) {
	cfg := testConfig()
	s := NewService(newMemState(), &memMempool{}, cfg)

	cfg.FeeModel = "fixed"
	s.cfg = cfg
	if got := s.EstimateFee(core.TxTransfer, 1000); got != cfg.DefaultFee {
		t.Fatalf("fixed model: got %d want %d", got, cfg.DefaultFee)
	}

	cfg.FeeModel = "size_based"
	s.cfg = cfg
	if got, want := s.EstimateFee(core.TxTransfer, 1000), cfg.DefaultFee+10; got != want {
		t.Fatalf("size_based model: got %d want %d", got, want)
	}

	cfg.FeeModel = "type_based"
	s.cfg = cfg
	if got, want := s.EstimateFee(core.TxContractDeploy, 0), cfg.DefaultFee*10; got != want {
		t.Fatalf("type_based ContractDeploy: got %d want %d", got, want)
	}
	if got, want := s.EstimateFee(core.TxContractCall, 0), cfg.DefaultFee*5; got != want {
		t.Fatalf("type_based ContractCall: got %d want %d", got, want)
	}
	if got, want := s.EstimateFee(core.TxStake, 0), cfg.DefaultFee*2; got != want {
		t.Fatalf("type_based other: got %d want %d", got, want)
	}

	cfg.FeeModel = "dynamic"
	cfg.CongestionMultiplier = 2.0
	s.cfg = cfg
	base := cfg.DefaultFee + 10 // transfer type-based fee + size component
	if got, want := s.EstimateFee(core.TxTransfer, 1000), uint64(float64(base)*2.0); got != want {
		t.Fatalf("dynamic model: got %d want %d", got, want)
	}
}

func TestCreateTransferSubmitAndHistory(t *testing.T) {
	pub, priv, err := crypto.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	senderAddr, err := crypto.DeriveAddress(pub)
	if err != nil {
		t.Fatalf("DeriveAddress: %v", err)
	}
	recipient := types.Address{1, 2, 3, 4}

	state := newMemState()
	state.balances[senderAddr] = 10000

	pool := &memMempool{}
	s := NewService(state, pool, testConfig())

	tx, err := s.CreateTransfer(priv, pub, 0, recipient, 0, 500, 0)
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if tx.Fee == 0 {
		t.Fatal("expected fee to be auto-estimated")
	}
	if !tx.VerifySignature() {
		t.Fatal("CreateTransfer produced an unsigned/invalid transaction")
	}

	if err := s.Submit(tx); err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if len(pool.added) != 1 {
		t.Fatalf("expected 1 transaction submitted to mempool, got %d", len(pool.added))
	}

	senderHist := s.GetTransactionHistory(senderAddr)
	if len(senderHist) != 1 || senderHist[0].ID != tx.ID {
		t.Fatalf("sender history missing submitted transaction: %+v", senderHist)
	}
	recipientHist := s.GetTransactionHistory(recipient)
	if len(recipientHist) != 1 || recipientHist[0].ID != tx.ID {
		t.Fatalf("recipient history missing submitted transaction: %+v", recipientHist)
	}
}

func TestSubmitRejectsInsufficientBalance(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeypair()
	senderAddr, _ := crypto.DeriveAddress(pub)
	recipient := types.Address{9, 9, 9}

	state := newMemState()
	state.balances[senderAddr] = 10 // far below amount+fee

	pool := &memMempool{}
	s := NewService(state, pool, testConfig())

	tx, err := s.CreateTransfer(priv, pub, 0, recipient, 0, 5000, 100)
	if err != nil {
		t.Fatalf("CreateTransfer: %v", err)
	}
	if err := s.Submit(tx); err == nil {
		t.Fatal("expected Submit to reject insufficient balance")
	}
	if len(pool.added) != 0 {
		t.Fatal("transaction should not have reached the mempool")
	}
}

func TestValidateRejectsStaleNonce(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeypair()
	senderAddr, _ := crypto.DeriveAddress(pub)
	recipient := types.Address{7, 7, 7}

	state := newMemState()
	state.balances[senderAddr] = 10000
	state.nonces[senderAddr] = 5

	s := NewService(state, &memMempool{}, testConfig())

	tx, err := s.CreateTransaction(core.TxTransfer, pub, 0, recipient, 0, 100, 100, 0, 1, core.TxData{}, nil)
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}
	if err := s.Sign(tx, priv); err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if err := s.Validate(tx); err == nil {
		t.Fatal("expected Validate to reject a nonce behind the account nonce")
	}
}

func TestHistoryBoundedByMaxHistoryItems(t *testing.T) {
	pub, priv, _ := crypto.GenerateKeypair()
	senderAddr, _ := crypto.DeriveAddress(pub)

	state := newMemState()
	state.balances[senderAddr] = 1 << 30

	pool := &memMempool{}
	cfg := testConfig()
	cfg.MaxHistoryItems = 2
	s := NewService(state, pool, cfg)

	for i := 0; i < 5; i++ {
		recipient := types.Address{byte(i)}
		tx, err := s.CreateTransfer(priv, pub, 0, recipient, 0, 1, 10)
		if err != nil {
			t.Fatalf("CreateTransfer %d: %v", i, err)
		}
		if err := s.Submit(tx); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	hist := s.GetTransactionHistory(senderAddr)
	if len(hist) != 2 {
		t.Fatalf("expected history bounded to 2, got %d", len(hist))
	}
}
