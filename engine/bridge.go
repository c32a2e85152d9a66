package engine

import (
	"github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/instrument"
	"github.com/disputelabs/wasm-instrument/wasm"
)

// MiddlewareWrapper adapts an instrumentation pass to the engine's
// compile hooks: one module hook run against the compile-time metadata,
// then one function hook per declared function. Errors come back tagged
// with the pass name.
type MiddlewareWrapper struct {
	pass instrument.Middleware
}

// WrapMiddleware wraps a pass for the engine pipeline.
func WrapMiddleware(pass instrument.Middleware) *MiddlewareWrapper {
	return &MiddlewareWrapper{pass: pass}
}

// Name returns the wrapped pass's name.
func (w *MiddlewareWrapper) Name() string {
	return w.pass.Name()
}

// ModulePass runs the pass's structural changes against the metadata.
func (w *MiddlewareWrapper) ModulePass(meta *ModuleMeta) error {
	return errors.Middleware(w.pass.Name(), w.pass.UpdateModule(meta))
}

// FuncPass rewrites one function body in place. funcIdx is the declared
// function's position in the code section. Identity transforms leave
// the body bytes untouched.
func (w *MiddlewareWrapper) FuncPass(funcIdx uint32, body *wasm.FuncBody) error {
	fm, err := w.pass.Instrument(funcIdx)
	if err != nil {
		return errors.Middleware(w.pass.Name(), err)
	}
	if _, identity := fm.(instrument.DefaultFuncMiddleware); identity {
		return nil
	}

	fw := newFuncWrapper(fm)
	instrs, err := wasm.DecodeInstructions(body.Code)
	if err != nil {
		return errors.Middleware(w.pass.Name(), errors.ParseFailed("function body", err))
	}
	for _, op := range instrs {
		if err := fw.Feed(op); err != nil {
			return err
		}
	}
	body.Code = wasm.EncodeInstructions(fw.Finish())
	return nil
}

// funcWrapper accumulates the operators a per-function transform emits
// for one body.
type funcWrapper struct {
	fm   instrument.FuncMiddleware
	sink *instrument.OpSink
}

func newFuncWrapper(fm instrument.FuncMiddleware) *funcWrapper {
	return &funcWrapper{fm: fm, sink: instrument.NewOpSink(64)}
}

func (fw *funcWrapper) Feed(op wasm.Instruction) error {
	return errors.Middleware(fw.fm.Name(), fw.fm.Feed(op, fw.sink))
}

func (fw *funcWrapper) Finish() []wasm.Instruction {
	return fw.sink.Ops()
}
