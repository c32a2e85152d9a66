package wasm

import "fmt"

// Validate checks cross-section consistency: every index a section
// mentions must land inside its index space, export names must be
// unique, and section counts must agree. Operand typing inside function
// bodies is left to the runtime.
func (m *Module) Validate() error {
	if err := m.checkTypeRefs(); err != nil {
		return err
	}
	if err := m.checkExports(); err != nil {
		return err
	}
	if err := m.checkSegments(); err != nil {
		return err
	}
	if err := m.checkStart(); err != nil {
		return err
	}
	if err := m.checkCounts(); err != nil {
		return err
	}
	return m.checkMemories()
}

// ParseModuleValidate decodes data and validates the result.
func ParseModuleValidate(data []byte) (*Module, error) {
	m, err := ParseModule(data)
	if err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return m, nil
}

// checkTypeRefs verifies every function, imported or declared, names a
// defined signature.
func (m *Module) checkTypeRefs() error {
	numTypes := uint32(len(m.Types))
	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindFunc && imp.Desc.TypeIdx >= numTypes {
			return fmt.Errorf("import %d (%s.%s): type index %d out of range (%d types)",
				i, imp.Module, imp.Name, imp.Desc.TypeIdx, numTypes)
		}
	}
	for i, typeIdx := range m.Funcs {
		if typeIdx >= numTypes {
			return fmt.Errorf("func %d: type index %d out of range (%d types)",
				i, typeIdx, numTypes)
		}
	}
	return nil
}

// checkExports verifies name uniqueness and that every export's index
// lands inside the index space for its kind.
func (m *Module) checkExports() error {
	space := map[byte]uint32{
		KindFunc:   uint32(m.NumFuncs()),
		KindTable:  uint32(m.NumImportedTables() + len(m.Tables)),
		KindMemory: uint32(m.NumMemories()),
		KindGlobal: uint32(m.NumImportedGlobals() + len(m.Globals)),
	}

	seen := make(map[string]struct{}, len(m.Exports))
	for i, exp := range m.Exports {
		if _, dup := seen[exp.Name]; dup {
			return fmt.Errorf("export %d: name %q exported twice", i, exp.Name)
		}
		seen[exp.Name] = struct{}{}

		if exp.Idx >= space[exp.Kind] {
			return fmt.Errorf("export %q (kind %d): index %d out of range (space holds %d)",
				exp.Name, exp.Kind, exp.Idx, space[exp.Kind])
		}
	}
	return nil
}

// checkSegments verifies element and data segments point at live
// functions, tables, and memories. Passive segments carry no target.
func (m *Module) checkSegments() error {
	numFuncs := uint32(m.NumFuncs())
	numTables := uint32(m.NumImportedTables() + len(m.Tables))
	for i, elem := range m.Elements {
		if active := elem.Flags&0x01 == 0; active && elem.TableIdx >= numTables {
			return fmt.Errorf("element %d: table index %d out of range (%d tables)",
				i, elem.TableIdx, numTables)
		}
		for j, funcIdx := range elem.FuncIdxs {
			if funcIdx >= numFuncs {
				return fmt.Errorf("element %d entry %d: func index %d out of range (%d funcs)",
					i, j, funcIdx, numFuncs)
			}
		}
	}

	numMems := uint32(m.NumMemories())
	for i, seg := range m.Data {
		if seg.Flags != 1 && seg.MemIdx >= numMems {
			return fmt.Errorf("data segment %d: memory index %d out of range (%d memories)",
				i, seg.MemIdx, numMems)
		}
	}
	return nil
}

// checkStart verifies a declared start function exists and is nullary.
func (m *Module) checkStart() error {
	if m.Start == nil {
		return nil
	}
	ft := m.GetFuncType(*m.Start)
	if ft == nil {
		return fmt.Errorf("start: func index %d out of range", *m.Start)
	}
	if len(ft.Params) != 0 || len(ft.Results) != 0 {
		return fmt.Errorf("start: func %d has signature %s, must take and return nothing",
			*m.Start, ft)
	}
	return nil
}

// checkCounts verifies section counts agree with each other.
func (m *Module) checkCounts() error {
	if len(m.Code) != len(m.Funcs) {
		return fmt.Errorf("%d code bodies for %d declared funcs", len(m.Code), len(m.Funcs))
	}
	if m.DataCount != nil && int(*m.DataCount) != len(m.Data) {
		return fmt.Errorf("data count %d disagrees with %d data segments",
			*m.DataCount, len(m.Data))
	}
	return nil
}

// checkMemories verifies every memory's limits stay inside the wasm32
// page space and keep min below max.
func (m *Module) checkMemories() error {
	check := func(l Limits, what string) error {
		if l.Min > MemoryMaxPages {
			return fmt.Errorf("%s: min %d pages past the addressable %d", what, l.Min, MemoryMaxPages)
		}
		if l.Max == nil {
			return nil
		}
		if *l.Max > MemoryMaxPages {
			return fmt.Errorf("%s: max %d pages past the addressable %d", what, *l.Max, MemoryMaxPages)
		}
		if l.Min > *l.Max {
			return fmt.Errorf("%s: min %d above max %d", what, l.Min, *l.Max)
		}
		return nil
	}

	for i, imp := range m.Imports {
		if imp.Desc.Kind == KindMemory && imp.Desc.Memory != nil {
			if err := check(imp.Desc.Memory.Limits, fmt.Sprintf("imported memory %d", i)); err != nil {
				return err
			}
		}
	}
	for i := range m.Memories {
		if err := check(m.Memories[i].Limits, fmt.Sprintf("memory %d", i)); err != nil {
			return err
		}
	}
	return nil
}
