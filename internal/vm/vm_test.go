package vm

import (
	"testing"

	"github.com/meridian-chain/meridian-node/internal/types"
)

type memState struct {
	code    map[types.Address][]byte
	storage map[types.Address]map[string][]byte
}

func newMemState() *memState {
	return &memState{code: make(map[types.Address][]byte), storage: make(map[types.Address]map[string][]byte)}
}

func (m *memState) GetCode(addr types.Address) ([]byte, error) { return m.code[addr], nil }
func (m *memState) SetCode(addr types.Address, code []byte) error {
	m.code[addr] = code
	return nil
}
func (m *memState) GetStorage(addr types.Address, key []byte) ([]byte, error) {
	return m.storage[addr][string(key)], nil
}
func (m *memState) SetStorage(addr types.Address, key, value []byte) error {
	if m.storage[addr] == nil {
		m.storage[addr] = make(map[string][]byte)
	}
	m.storage[addr][string(key)] = value
	return nil
}

func TestGasMeterConsumeAndExhaustion(t *testing.T) {
	g := NewGasMeter(3)
	for i := 0; i < 3; i++ {
		if err := g.Consume(1); err != nil {
			t.Fatalf("unexpected error on call %d: %v", i, err)
		}
	}
	if err := g.Consume(1); err == nil {
		t.Fatalf("expected ErrOutOfGas once the budget is exhausted")
	}
	if g.Remaining() != 0 {
		t.Fatalf("expected 0 remaining, got %d", g.Remaining())
	}
}

func TestEngineDeployRejectsInvalidModule(t *testing.T) {
	e := NewEngine(newMemState())
	addr := types.Address{1, 2, 3}
	if err := e.Deploy(addr, []byte("not a wasm module")); err == nil {
		t.Fatalf("expected deploy to reject malformed wasm bytecode")
	}
}

func TestEngineCallRejectsMissingContract(t *testing.T) {
	e := NewEngine(newMemState())
	addr := types.Address{9, 9, 9}
	if _, err := e.Call(addr, nil, 1000); err == nil {
		t.Fatalf("expected call to a non-deployed address to fail")
	}
}
