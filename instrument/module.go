package instrument

import (
	"bytes"
	"fmt"
	"math"

	"github.com/disputelabs/wasm-instrument/wasm"
)

// Module is the capability a module representation must provide to be
// instrumentable. Two implementations exist: BinaryModule over the
// standalone parsed model (the deterministic executor's view) and the
// engine's compile-time metadata (the fast executor's view). Every pass
// mutates modules exclusively through these five operations, so both
// representations end up with identical externally observable shapes -
// the parity the dispute protocol depends on.
type Module interface {
	// AddGlobal appends a mutable global with the given initializer,
	// exports it under name, and returns its index in the global index
	// space. Fails if the export name is already taken.
	AddGlobal(name string, ty wasm.ValType, init Value) (uint32, error)

	// GetSignature returns the function type at sigIdx in the type
	// index space. Fails if the index is out of range.
	GetSignature(sigIdx uint32) (wasm.FuncType, error)

	// GetFunction resolves the type of the function at funcIdx in the
	// function index space (imports first). Fails with the function's
	// name, when known, if the index resolves to nothing.
	GetFunction(funcIdx uint32) (wasm.FuncType, error)

	// MoveStartFunction removes the implicit start designation, if any,
	// and re-exports the same function index under exportName. Without
	// a start function it succeeds with no effect. Fails if exportName
	// is already taken.
	MoveStartFunction(exportName string) error

	// LimitHeap caps the single linear memory at pageLimit pages:
	// new max = min(existing max or limit, limit). Fails if the module
	// declares more than one memory, or if the memory's minimum exceeds
	// the new bound (in which case the memory is left unmodified).
	LimitHeap(pageLimit uint64) error
}

// Value is a scalar WebAssembly value, used for global initializers and
// typed instance access. Bits holds the raw representation: sign- or
// zero-extended integers, IEEE 754 bit patterns for floats.
type Value struct {
	Type wasm.ValType
	Bits uint64
}

// I32Value builds an i32 Value.
func I32Value(v int32) Value {
	return Value{Type: wasm.ValI32, Bits: uint64(uint32(v))}
}

// I64Value builds an i64 Value.
func I64Value(v int64) Value {
	return Value{Type: wasm.ValI64, Bits: uint64(v)}
}

// F32Value builds an f32 Value.
func F32Value(v float32) Value {
	return Value{Type: wasm.ValF32, Bits: uint64(math.Float32bits(v))}
}

// F64Value builds an f64 Value.
func F64Value(v float64) Value {
	return Value{Type: wasm.ValF64, Bits: math.Float64bits(v)}
}

// I32 returns the value as an i32.
func (v Value) I32() int32 { return int32(uint32(v.Bits)) }

// I64 returns the value as an i64.
func (v Value) I64() int64 { return int64(v.Bits) }

// F32 returns the value as an f32.
func (v Value) F32() float32 { return math.Float32frombits(uint32(v.Bits)) }

// F64 returns the value as an f64.
func (v Value) F64() float64 { return math.Float64frombits(v.Bits) }

func (v Value) String() string {
	switch v.Type {
	case wasm.ValI32:
		return fmt.Sprintf("i32(%d)", v.I32())
	case wasm.ValI64:
		return fmt.Sprintf("i64(%d)", v.I64())
	case wasm.ValF32:
		return fmt.Sprintf("f32(%g)", v.F32())
	case wasm.ValF64:
		return fmt.Sprintf("f64(%g)", v.F64())
	default:
		return fmt.Sprintf("unknown(%#x)", v.Bits)
	}
}

// InitExpr encodes the value as a constant init expression, end opcode
// included.
func (v Value) InitExpr() []byte {
	var buf bytes.Buffer
	switch v.Type {
	case wasm.ValI32:
		buf.WriteByte(wasm.OpI32Const)
		wasm.WriteLEB128s(&buf, v.I32())
	case wasm.ValI64:
		buf.WriteByte(wasm.OpI64Const)
		wasm.WriteLEB128s64(&buf, v.I64())
	case wasm.ValF32:
		buf.WriteByte(wasm.OpF32Const)
		wasm.WriteFloat32(&buf, v.F32())
	case wasm.ValF64:
		buf.WriteByte(wasm.OpF64Const)
		wasm.WriteFloat64(&buf, v.F64())
	}
	buf.WriteByte(wasm.OpEnd)
	return buf.Bytes()
}
