package instrument

import (
	"github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/wasm"
)

// Middleware is a module-level instrumentation pass. A pass first
// updates module structure through the capability interface, then
// instruments each function body in turn. Passes run to completion
// before the next pass starts, so later passes observe the structure
// (and code) earlier passes produced.
type Middleware interface {
	// UpdateModule applies the pass's structural changes: adding
	// globals, relocating the start function, bounding memory.
	UpdateModule(module Module) error

	// Instrument returns the per-function transform for the declared
	// function at funcIdx (code section order). Called once per
	// function; the returned transform holds that function's state.
	Instrument(funcIdx uint32) (FuncMiddleware, error)

	// Name identifies the pass in errors and logs.
	Name() string
}

// FuncMiddleware transforms one function's body as an operator stream.
// Feed receives each input operator in order and pushes zero or more
// output operators to out. Relative ordering of the input operators
// that survive must be preserved.
type FuncMiddleware interface {
	Feed(op wasm.Instruction, out *OpSink) error
	Name() string
}

// OpSink collects the operators a FuncMiddleware emits.
type OpSink struct {
	ops []wasm.Instruction
}

// NewOpSink returns a sink with room for n operators.
func NewOpSink(n int) *OpSink {
	return &OpSink{ops: make([]wasm.Instruction, 0, n)}
}

// Push appends one operator.
func (s *OpSink) Push(op wasm.Instruction) {
	s.ops = append(s.ops, op)
}

// Append appends a sequence of operators in order.
func (s *OpSink) Append(ops ...wasm.Instruction) {
	s.ops = append(s.ops, ops...)
}

// Ops returns the collected operators.
func (s *OpSink) Ops() []wasm.Instruction {
	return s.ops
}

// Len returns the number of collected operators.
func (s *OpSink) Len() int {
	return len(s.ops)
}

// DefaultFuncMiddleware is the identity transform: every operator passes
// through unchanged. Passes that only touch module structure return it
// from Instrument.
type DefaultFuncMiddleware struct{}

func (DefaultFuncMiddleware) Feed(op wasm.Instruction, out *OpSink) error {
	out.Push(op)
	return nil
}

func (DefaultFuncMiddleware) Name() string {
	return "default middleware"
}

// Apply runs the passes over the module in order. For each pass the
// module hook completes before any function is instrumented, and the
// pass finishes all functions before the next pass begins. Function
// bodies whose transform is the identity are left untouched. Errors
// carry the name of the pass that produced them.
func Apply(m *wasm.Module, passes ...Middleware) error {
	bin := NewBinaryModule(m)
	for _, pass := range passes {
		if err := pass.UpdateModule(bin); err != nil {
			return errors.Middleware(pass.Name(), err)
		}
		for i := range m.Code {
			fm, err := pass.Instrument(uint32(i))
			if err != nil {
				return errors.Middleware(pass.Name(), err)
			}
			if _, identity := fm.(DefaultFuncMiddleware); identity {
				continue
			}

			instrs, err := wasm.DecodeInstructions(m.Code[i].Code)
			if err != nil {
				return errors.Middleware(pass.Name(), errors.ParseFailed("function body", err))
			}
			sink := NewOpSink(len(instrs))
			for _, op := range instrs {
				if err := fm.Feed(op, sink); err != nil {
					return errors.Middleware(fm.Name(), err)
				}
			}
			m.Code[i].Code = wasm.EncodeInstructions(sink.Ops())
		}
	}
	return nil
}
