package instrument

import (
	"github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/wasm"
)

// BinaryModule adapts the parsed binary model to the Module capability.
// This is the deterministic executor's view: passes applied through it
// mutate the module tree directly, and the result re-encodes to the
// canonical instrumented binary.
type BinaryModule struct {
	mod *wasm.Module
}

// NewBinaryModule wraps a parsed module.
func NewBinaryModule(m *wasm.Module) *BinaryModule {
	return &BinaryModule{mod: m}
}

// Unwrap returns the underlying module tree.
func (b *BinaryModule) Unwrap() *wasm.Module {
	return b.mod
}

// AddGlobal appends a mutable exported global. The returned index counts
// imported globals first, matching the runtime's global index space.
func (b *BinaryModule) AddGlobal(name string, ty wasm.ValType, init Value) (uint32, error) {
	if _, taken := b.mod.FindExport(name); taken {
		return 0, errors.DuplicateExport(name)
	}
	if !ty.IsNumeric() {
		return 0, errors.New(errors.PhaseInstrument, errors.KindUnsupported).
			Detail("cannot add global of type %s", ty).Build()
	}
	if init.Type != ty {
		return 0, errors.New(errors.PhaseInstrument, errors.KindTypeMismatch).
			Detail("global %q declared %s but initialized with %s", name, ty, init.Type).
			Value(init).Build()
	}

	idx := uint32(b.mod.NumImportedGlobals() + len(b.mod.Globals))
	b.mod.Globals = append(b.mod.Globals, wasm.Global{
		Type: wasm.GlobalType{ValType: ty, Mutable: true},
		Init: init.InitExpr(),
	})
	b.mod.Exports = append(b.mod.Exports, wasm.Export{
		Name: name,
		Kind: wasm.KindGlobal,
		Idx:  idx,
	})
	return idx, nil
}

// GetSignature returns the function type at sigIdx.
func (b *BinaryModule) GetSignature(sigIdx uint32) (wasm.FuncType, error) {
	if int(sigIdx) >= len(b.mod.Types) {
		return wasm.FuncType{}, errors.MissingSignature(sigIdx)
	}
	return b.mod.Types[sigIdx], nil
}

// GetFunction returns the type of the function at funcIdx in the
// function index space, imports included.
func (b *BinaryModule) GetFunction(funcIdx uint32) (wasm.FuncType, error) {
	typeIdx, ok := b.mod.FuncTypeIdx(funcIdx)
	if !ok {
		return wasm.FuncType{}, errors.MissingFunction(funcIdx, b.mod.Names.FuncNames[funcIdx])
	}
	return b.GetSignature(typeIdx)
}

// MoveStartFunction strips the start section and re-exports its function
// under exportName, recording the name for debugging. A module without a
// start function is left unchanged.
func (b *BinaryModule) MoveStartFunction(exportName string) error {
	if exp, taken := b.mod.FindExport(exportName); taken {
		return errors.NameCollision(exportName, exp.Idx, exp.Kind)
	}
	if b.mod.Start == nil {
		return nil
	}

	funcIdx := *b.mod.Start
	b.mod.Start = nil
	b.mod.Exports = append(b.mod.Exports, wasm.Export{
		Name: exportName,
		Kind: wasm.KindFunc,
		Idx:  funcIdx,
	})
	b.mod.Names.SetFuncName(funcIdx, exportName)
	return nil
}

// LimitHeap bounds the single linear memory, imported or declared, at
// pageLimit pages. Limits above the wasm32 addressable page count clamp
// to MemoryMaxPages. On a bound violation the memory is left untouched.
func (b *BinaryModule) LimitHeap(pageLimit uint64) error {
	var limits []*wasm.Limits
	for i := range b.mod.Imports {
		if b.mod.Imports[i].Desc.Kind == wasm.KindMemory && b.mod.Imports[i].Desc.Memory != nil {
			limits = append(limits, &b.mod.Imports[i].Desc.Memory.Limits)
		}
	}
	for i := range b.mod.Memories {
		limits = append(limits, &b.mod.Memories[i].Limits)
	}

	if len(limits) > 1 {
		return errors.MultiMemory(len(limits))
	}
	if len(limits) == 0 {
		return nil
	}

	l := limits[0]
	bound := pageLimit
	if bound > wasm.MemoryMaxPages {
		bound = wasm.MemoryMaxPages
	}
	if l.Max != nil && *l.Max < bound {
		bound = *l.Max
	}
	if l.Min > bound {
		return errors.MemoryBound(l.Min, bound)
	}
	l.Max = &bound
	return nil
}
