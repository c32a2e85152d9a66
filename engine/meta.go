package engine

import (
	"github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/instrument"
	"github.com/disputelabs/wasm-instrument/wasm"
)

// ModuleMeta is the engine's compile-time view of a module: the tables
// the instrumentation passes touch, lifted out of the parsed tree. It
// implements the same capability interface as the binary adapter, and
// both must produce identical results for identical inputs - the engine
// and the deterministic replayer prove each other's execution.
//
// Exports live in a map for lookup plus an insertion-order list, so
// finalizing writes them back deterministically.
type ModuleMeta struct {
	types     []wasm.FuncType
	funcTypes []uint32 // function index space, imports first

	importedGlobals int
	globals         []metaGlobal // declared globals; injected ones are the tail

	memories  []wasm.Limits // imported first, then declared
	startFunc *uint32

	exports     map[string]wasm.Export
	exportOrder []string

	funcNames map[uint32]string
}

// metaGlobal carries a declared or injected global. Name is the export
// name for injected globals, empty otherwise.
type metaGlobal struct {
	typ  wasm.GlobalType
	init []byte
	name string
}

// MetaFromModule lifts the tables passes operate on out of a parsed
// module.
func MetaFromModule(m *wasm.Module) *ModuleMeta {
	meta := &ModuleMeta{
		types:           append([]wasm.FuncType(nil), m.Types...),
		importedGlobals: m.NumImportedGlobals(),
		exports:         make(map[string]wasm.Export, len(m.Exports)),
		funcNames:       make(map[uint32]string, len(m.Names.FuncNames)),
	}

	meta.funcTypes = make([]uint32, 0, m.NumFuncs())
	for _, imp := range m.Imports {
		if imp.Desc.Kind == wasm.KindFunc {
			meta.funcTypes = append(meta.funcTypes, imp.Desc.TypeIdx)
		}
		if imp.Desc.Kind == wasm.KindMemory && imp.Desc.Memory != nil {
			meta.memories = append(meta.memories, imp.Desc.Memory.Limits)
		}
	}
	meta.funcTypes = append(meta.funcTypes, m.Funcs...)

	for _, g := range m.Globals {
		meta.globals = append(meta.globals, metaGlobal{typ: g.Type, init: g.Init})
	}
	for _, mem := range m.Memories {
		meta.memories = append(meta.memories, mem.Limits)
	}
	for _, exp := range m.Exports {
		meta.exports[exp.Name] = exp
		meta.exportOrder = append(meta.exportOrder, exp.Name)
	}
	if m.Start != nil {
		start := *m.Start
		meta.startFunc = &start
	}
	for idx, name := range m.Names.FuncNames {
		meta.funcNames[idx] = name
	}
	return meta
}

func (meta *ModuleMeta) addExport(exp wasm.Export) {
	meta.exports[exp.Name] = exp
	meta.exportOrder = append(meta.exportOrder, exp.Name)
}

// AddGlobal appends a mutable exported global, returning its index in
// the global index space (imports first).
func (meta *ModuleMeta) AddGlobal(name string, ty wasm.ValType, init instrument.Value) (uint32, error) {
	if _, taken := meta.exports[name]; taken {
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

	idx := uint32(meta.importedGlobals + len(meta.globals))
	meta.globals = append(meta.globals, metaGlobal{
		typ:  wasm.GlobalType{ValType: ty, Mutable: true},
		init: init.InitExpr(),
		name: name,
	})
	meta.addExport(wasm.Export{Name: name, Kind: wasm.KindGlobal, Idx: idx})
	return idx, nil
}

// GetSignature returns the function type at sigIdx.
func (meta *ModuleMeta) GetSignature(sigIdx uint32) (wasm.FuncType, error) {
	if int(sigIdx) >= len(meta.types) {
		return wasm.FuncType{}, errors.MissingSignature(sigIdx)
	}
	return meta.types[sigIdx], nil
}

// GetFunction returns the type of the function at funcIdx.
func (meta *ModuleMeta) GetFunction(funcIdx uint32) (wasm.FuncType, error) {
	if int(funcIdx) >= len(meta.funcTypes) {
		return wasm.FuncType{}, errors.MissingFunction(funcIdx, meta.funcNames[funcIdx])
	}
	return meta.GetSignature(meta.funcTypes[funcIdx])
}

// MoveStartFunction clears the start designation and re-exports the
// function under exportName.
func (meta *ModuleMeta) MoveStartFunction(exportName string) error {
	if exp, taken := meta.exports[exportName]; taken {
		return errors.NameCollision(exportName, exp.Idx, exp.Kind)
	}
	if meta.startFunc == nil {
		return nil
	}

	funcIdx := *meta.startFunc
	meta.startFunc = nil
	meta.addExport(wasm.Export{Name: exportName, Kind: wasm.KindFunc, Idx: funcIdx})
	meta.funcNames[funcIdx] = exportName
	return nil
}

// LimitHeap bounds the single linear memory at pageLimit pages. Limits
// above the wasm32 addressable page count clamp to MemoryMaxPages.
func (meta *ModuleMeta) LimitHeap(pageLimit uint64) error {
	if len(meta.memories) > 1 {
		return errors.MultiMemory(len(meta.memories))
	}
	if len(meta.memories) == 0 {
		return nil
	}

	l := &meta.memories[0]
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

// Finalize writes the pass mutations back into the module tree the meta
// was lifted from, so the engine can encode and compile the instrumented
// module. The export section is rebuilt in insertion order.
func (meta *ModuleMeta) Finalize(m *wasm.Module) {
	for _, g := range meta.globals[len(m.Globals):] {
		m.Globals = append(m.Globals, wasm.Global{Type: g.typ, Init: g.init})
	}

	m.Exports = m.Exports[:0]
	for _, name := range meta.exportOrder {
		m.Exports = append(m.Exports, meta.exports[name])
	}

	m.Start = meta.startFunc

	memIdx := 0
	for i := range m.Imports {
		if m.Imports[i].Desc.Kind == wasm.KindMemory && m.Imports[i].Desc.Memory != nil {
			m.Imports[i].Desc.Memory.Limits = meta.memories[memIdx]
			memIdx++
		}
	}
	for i := range m.Memories {
		m.Memories[i].Limits = meta.memories[memIdx]
		memIdx++
	}

	for idx, name := range meta.funcNames {
		m.Names.SetFuncName(idx, name)
	}
}

var _ instrument.Module = (*ModuleMeta)(nil)
