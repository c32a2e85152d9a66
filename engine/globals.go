package engine

import (
	"math"

	"github.com/tetratelabs/wazero/api"

	"github.com/disputelabs/wasm-instrument/errors"
)

// Scalar is the set of Go types that map onto WebAssembly's numeric
// value types.
type Scalar interface {
	int32 | uint32 | int64 | uint64 | float32 | float64
}

// GetGlobal reads an exported global as T. Failures are host invariant
// violations: instrumentation fixed the global names and types at
// compile time, so a miss means the host asked for a global its own
// passes never created.
func GetGlobal[T Scalar](inst *Instance, name string) (T, error) {
	var zero T
	g := inst.mod.ExportedGlobal(name)
	if g == nil {
		return zero, errors.HostInvariant("global %q does not exist", name)
	}
	if got, want := g.Type(), valueType[T](); got != want {
		return zero, errors.HostInvariant("global %q has type %s, host expected %s",
			name, api.ValueTypeName(got), api.ValueTypeName(want))
	}
	return decodeScalar[T](g.Get()), nil
}

// SetGlobal writes an exported mutable global.
func SetGlobal[T Scalar](inst *Instance, name string, value T) error {
	g := inst.mod.ExportedGlobal(name)
	if g == nil {
		return errors.HostInvariant("global %q does not exist", name)
	}
	if got, want := g.Type(), valueType[T](); got != want {
		return errors.HostInvariant("global %q has type %s, host expected %s",
			name, api.ValueTypeName(got), api.ValueTypeName(want))
	}
	mg, ok := g.(api.MutableGlobal)
	if !ok {
		return errors.HostInvariant("global %q is immutable", name)
	}
	mg.Set(encodeScalar(value))
	return nil
}

func valueType[T Scalar]() api.ValueType {
	var z T
	switch any(z).(type) {
	case int32, uint32:
		return api.ValueTypeI32
	case int64, uint64:
		return api.ValueTypeI64
	case float32:
		return api.ValueTypeF32
	default:
		return api.ValueTypeF64
	}
}

func encodeScalar[T Scalar](v T) uint64 {
	switch x := any(v).(type) {
	case int32:
		return uint64(uint32(x))
	case uint32:
		return uint64(x)
	case int64:
		return uint64(x)
	case uint64:
		return x
	case float32:
		return uint64(math.Float32bits(x))
	default:
		return math.Float64bits(any(v).(float64))
	}
}

func decodeScalar[T Scalar](bits uint64) T {
	var z T
	switch any(z).(type) {
	case int32:
		return any(int32(uint32(bits))).(T)
	case uint32:
		return any(uint32(bits)).(T)
	case int64:
		return any(int64(bits)).(T)
	case uint64:
		return any(bits).(T)
	case float32:
		return any(math.Float32frombits(uint32(bits))).(T)
	default:
		return any(math.Float64frombits(bits)).(T)
	}
}
