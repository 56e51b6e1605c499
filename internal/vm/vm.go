// Package vm implements the WebAssembly execution environment for the
// ContractDeploy/ContractCall transaction types of spec.md §3, supplementing
// the spec's distillation per SPEC_FULL.md §4.7 ("the spec's data model
// carries ContractDeploy/ContractCall... but does not specify a VM").
//
// Gas accounting here is a simple call-budget counter decremented by each
// host-function invocation, not instruction-level metering: wasmer-go's
// metering middleware isn't part of the version pinned in this module's
// go.mod, so GasMeter.Consume bounds the number of host calls a contract
// may make rather than the number of WASM instructions it executes.
package vm

import (
	"sync"

	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/meridian-chain/meridian-node/internal/merrors"
	"github.com/meridian-chain/meridian-node/internal/types"
)

// State is the subset of statestore.Store the VM needs to read/write
// contract code and storage, kept narrow so the VM package doesn't import
// statestore directly.
type State interface {
	GetCode(addr types.Address) ([]byte, error)
	SetCode(addr types.Address, code []byte) error
	GetStorage(addr types.Address, key []byte) ([]byte, error)
	SetStorage(addr types.Address, key, value []byte) error
}

// GasMeter is a call-budget counter: every host function call costs one unit.
type GasMeter struct {
	mu        sync.Mutex
	remaining uint64
}

// NewGasMeter returns a meter with the given call budget.
func NewGasMeter(limit uint64) *GasMeter {
	return &GasMeter{remaining: limit}
}

// ErrOutOfGas is returned when a contract call exceeds its budget.
var ErrOutOfGas = merrors.New(merrors.Other, "out of gas")

// Consume decrements the budget by n, returning ErrOutOfGas if it would go
// negative.
func (g *GasMeter) Consume(n uint64) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.remaining < n {
		return ErrOutOfGas
	}
	g.remaining -= n
	return nil
}

// Remaining reports the gas meter's remaining budget.
func (g *GasMeter) Remaining() uint64 {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.remaining
}

// Result is the outcome of a contract execution.
type Result struct {
	ReturnData []byte
	GasUsed    uint64
}

// Engine executes WASM contract code against a State backend.
type Engine struct {
	state State
}

// NewEngine constructs an Engine bound to state.
func NewEngine(state State) *Engine {
	return &Engine{state: state}
}

// Deploy stores code under addr, after a sanity-check compile to reject
// malformed modules before they're persisted.
func (e *Engine) Deploy(addr types.Address, code []byte) error {
	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	if _, err := wasmer.NewModule(store, code); err != nil {
		return merrors.Wrap(merrors.Validation, "compile contract module", err)
	}
	if err := e.state.SetCode(addr, code); err != nil {
		return merrors.Wrap(merrors.State, "store contract code", err)
	}
	return nil
}

// Call loads the contract at addr, instantiates it with the host imports of
// host.go, invokes its exported "execute" function with input, and returns
// the bytes it wrote back via the env.ret import, bounded by gasLimit
// host-call units.
func (e *Engine) Call(addr types.Address, input []byte, gasLimit uint64) (*Result, error) {
	code, err := e.state.GetCode(addr)
	if err != nil {
		return nil, merrors.Wrap(merrors.State, "load contract code", err)
	}
	if len(code) == 0 {
		return nil, merrors.New(merrors.Validation, "no contract deployed at address")
	}

	meter := NewGasMeter(gasLimit)
	host := newHostContext(e.state, addr, input, meter)

	engine := wasmer.NewEngine()
	store := wasmer.NewStore(engine)
	module, err := wasmer.NewModule(store, code)
	if err != nil {
		return nil, merrors.Wrap(merrors.Validation, "compile contract module", err)
	}

	imports := registerHostImports(store, host)
	instance, err := wasmer.NewInstance(module, imports)
	if err != nil {
		return nil, merrors.Wrap(merrors.Validation, "instantiate contract module", err)
	}
	defer instance.Close()

	execute, err := instance.Exports.GetFunction("execute")
	if err != nil {
		return nil, merrors.Wrap(merrors.Validation, "missing execute export", err)
	}

	host.memory, err = instance.Exports.GetMemory("memory")
	if err != nil {
		return nil, merrors.Wrap(merrors.Validation, "missing memory export", err)
	}

	if _, err := execute(); err != nil {
		return nil, merrors.Wrap(merrors.Other, "contract execution trapped", err)
	}

	return &Result{
		ReturnData: host.returnData,
		GasUsed:    gasLimit - meter.Remaining(),
	}, nil
}
