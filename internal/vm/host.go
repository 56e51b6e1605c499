package vm

import (
	"github.com/wasmerio/wasmer-go/wasmer"

	"github.com/meridian-chain/meridian-node/internal/types"
)

// hostContext carries the per-call state the host functions close over:
// the contract's own storage namespace, the call input, the gas meter, and
// the accumulated return buffer, mirroring the teacher's vm package
// description of "host function implementations bridging WASM to
// blockchain state".
type hostContext struct {
	state   State
	self    types.Address
	input   []byte
	meter   *GasMeter
	memory  *wasmer.Memory

	returnData []byte
}

func newHostContext(state State, self types.Address, input []byte, meter *GasMeter) *hostContext {
	return &hostContext{state: state, self: self, input: input, meter: meter}
}

// registerHostImports builds the import object exposing:
//   - env.storage_get(key_ptr, key_len, out_ptr, out_max) -> i32 (bytes written, -1 on error)
//   - env.storage_set(key_ptr, key_len, val_ptr, val_len) -> i32 (0 ok, -1 on error)
//   - env.input_len() -> i32
//   - env.input_copy(out_ptr, out_max) -> i32 (bytes written)
//   - env.ret(ptr, len) -> i32 (0 ok), copies the contract's return payload out
//
// Every call consumes one unit from the gas meter before doing any work.
func registerHostImports(store *wasmer.Store, h *hostContext) *wasmer.ImportObject {
	imports := wasmer.NewImportObject()

	i32 := wasmer.NewValueTypes(wasmer.I32)
	i32i32 := wasmer.NewValueTypes(wasmer.I32, wasmer.I32)
	i32x4 := wasmer.NewValueTypes(wasmer.I32, wasmer.I32, wasmer.I32, wasmer.I32)

	storageGet := wasmer.NewFunction(store, wasmer.NewFunctionType(i32x4, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.meter.Consume(1); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			keyPtr := args[0].I32()
			keyLen := args[1].I32()
			outPtr := args[2].I32()
			outMax := args[3].I32()
			mem := h.memory.Data()
			key := append([]byte(nil), mem[keyPtr:keyPtr+keyLen]...)
			val, err := h.state.GetStorage(h.self, key)
			if err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			n := int32(len(val))
			if n > outMax {
				n = outMax
			}
			copy(mem[outPtr:outPtr+n], val[:n])
			return []wasmer.Value{wasmer.NewI32(n)}, nil
		},
	)

	storageSet := wasmer.NewFunction(store, wasmer.NewFunctionType(i32x4, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.meter.Consume(1); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			keyPtr, keyLen := args[0].I32(), args[1].I32()
			valPtr, valLen := args[2].I32(), args[3].I32()
			mem := h.memory.Data()
			key := append([]byte(nil), mem[keyPtr:keyPtr+keyLen]...)
			val := append([]byte(nil), mem[valPtr:valPtr+valLen]...)
			if err := h.state.SetStorage(h.self, key, val); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	inputLen := wasmer.NewFunction(store, wasmer.NewFunctionType(wasmer.NewValueTypes(), i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			_ = h.meter.Consume(1)
			return []wasmer.Value{wasmer.NewI32(int32(len(h.input)))}, nil
		},
	)

	inputCopy := wasmer.NewFunction(store, wasmer.NewFunctionType(i32i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.meter.Consume(1); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			outPtr, outMax := args[0].I32(), args[1].I32()
			mem := h.memory.Data()
			n := int32(len(h.input))
			if n > outMax {
				n = outMax
			}
			copy(mem[outPtr:outPtr+n], h.input[:n])
			return []wasmer.Value{wasmer.NewI32(n)}, nil
		},
	)

	ret := wasmer.NewFunction(store, wasmer.NewFunctionType(i32i32, i32),
		func(args []wasmer.Value) ([]wasmer.Value, error) {
			if err := h.meter.Consume(1); err != nil {
				return []wasmer.Value{wasmer.NewI32(-1)}, nil
			}
			ptr, length := args[0].I32(), args[1].I32()
			mem := h.memory.Data()
			h.returnData = append([]byte(nil), mem[ptr:ptr+length]...)
			return []wasmer.Value{wasmer.NewI32(0)}, nil
		},
	)

	imports.Register("env", map[string]wasmer.IntoExtern{
		"storage_get": storageGet,
		"storage_set": storageSet,
		"input_len":   inputLen,
		"input_copy":  inputCopy,
		"ret":         ret,
	})

	return imports
}
