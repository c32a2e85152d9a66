package wasm

import (
	"bytes"
	"encoding/binary"
)

// Encode encodes the module to WebAssembly binary format
func (m *Module) Encode() []byte {
	var w bytes.Buffer

	// Magic number and version
	var header [8]byte
	binary.LittleEndian.PutUint32(header[0:], Magic)
	binary.LittleEndian.PutUint32(header[4:], Version)
	w.Write(header[:])

	// Type section
	if len(m.Types) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Types)))
		for _, ft := range m.Types {
			sec.WriteByte(FuncTypeByte)
			writeValTypes(&sec, ft.Params)
			writeValTypes(&sec, ft.Results)
		}
		writeSection(&w, SectionType, sec.Bytes())
	}

	// Import section
	if len(m.Imports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Imports)))
		for _, imp := range m.Imports {
			writeName(&sec, imp.Module)
			writeName(&sec, imp.Name)
			sec.WriteByte(imp.Desc.Kind)
			switch imp.Desc.Kind {
			case KindFunc:
				WriteLEB128u(&sec, imp.Desc.TypeIdx)
			case KindTable:
				if imp.Desc.Table != nil {
					writeTableType(&sec, *imp.Desc.Table)
				}
			case KindMemory:
				if imp.Desc.Memory != nil {
					writeLimits(&sec, imp.Desc.Memory.Limits)
				}
			case KindGlobal:
				if imp.Desc.Global != nil {
					writeGlobalType(&sec, *imp.Desc.Global)
				}
			}
		}
		writeSection(&w, SectionImport, sec.Bytes())
	}

	// Function section
	if len(m.Funcs) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Funcs)))
		for _, typeIdx := range m.Funcs {
			WriteLEB128u(&sec, typeIdx)
		}
		writeSection(&w, SectionFunction, sec.Bytes())
	}

	// Table section
	if len(m.Tables) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Tables)))
		for _, t := range m.Tables {
			writeTableType(&sec, t)
		}
		writeSection(&w, SectionTable, sec.Bytes())
	}

	// Memory section
	if len(m.Memories) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Memories)))
		for _, mem := range m.Memories {
			writeLimits(&sec, mem.Limits)
		}
		writeSection(&w, SectionMemory, sec.Bytes())
	}

	// Global section
	if len(m.Globals) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Globals)))
		for _, g := range m.Globals {
			writeGlobalType(&sec, g.Type)
			sec.Write(g.Init)
		}
		writeSection(&w, SectionGlobal, sec.Bytes())
	}

	// Export section
	if len(m.Exports) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Exports)))
		for _, exp := range m.Exports {
			writeName(&sec, exp.Name)
			sec.WriteByte(exp.Kind)
			WriteLEB128u(&sec, exp.Idx)
		}
		writeSection(&w, SectionExport, sec.Bytes())
	}

	// Start section
	if m.Start != nil {
		var sec bytes.Buffer
		WriteLEB128u(&sec, *m.Start)
		writeSection(&w, SectionStart, sec.Bytes())
	}

	// Element section
	if len(m.Elements) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Elements)))
		for _, elem := range m.Elements {
			WriteLEB128u(&sec, elem.Flags)

			hasTableIdx := elem.Flags&0x02 != 0 && elem.Flags&0x01 == 0
			hasOffset := elem.Flags&0x01 == 0
			usesExprs := elem.Flags&0x04 != 0

			if hasTableIdx {
				WriteLEB128u(&sec, elem.TableIdx)
			}
			if hasOffset {
				sec.Write(elem.Offset)
			}
			// Flags 1, 2, 3: elemkind; flags 5, 6, 7: reftype
			if elem.Flags&0x03 != 0 {
				if usesExprs {
					sec.WriteByte(byte(elem.Type))
				} else {
					sec.WriteByte(elem.ElemKind)
				}
			}
			if usesExprs {
				WriteLEB128u(&sec, uint32(len(elem.Exprs)))
				for _, expr := range elem.Exprs {
					sec.Write(expr)
				}
			} else {
				WriteLEB128u(&sec, uint32(len(elem.FuncIdxs)))
				for _, idx := range elem.FuncIdxs {
					WriteLEB128u(&sec, idx)
				}
			}
		}
		writeSection(&w, SectionElement, sec.Bytes())
	}

	// DataCount section (must appear before Code section if present)
	if m.DataCount != nil {
		var sec bytes.Buffer
		WriteLEB128u(&sec, *m.DataCount)
		writeSection(&w, SectionDataCount, sec.Bytes())
	}

	// Code section
	if len(m.Code) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Code)))
		for _, body := range m.Code {
			var bodyBuf bytes.Buffer
			WriteLEB128u(&bodyBuf, uint32(len(body.Locals)))
			for _, local := range body.Locals {
				WriteLEB128u(&bodyBuf, local.Count)
				bodyBuf.WriteByte(byte(local.ValType))
			}
			bodyBuf.Write(body.Code)
			WriteLEB128u(&sec, uint32(bodyBuf.Len()))
			sec.Write(bodyBuf.Bytes())
		}
		writeSection(&w, SectionCode, sec.Bytes())
	}

	// Data section
	if len(m.Data) > 0 {
		var sec bytes.Buffer
		WriteLEB128u(&sec, uint32(len(m.Data)))
		for _, d := range m.Data {
			WriteLEB128u(&sec, d.Flags)
			if d.Flags == 2 {
				WriteLEB128u(&sec, d.MemIdx)
			}
			if d.Flags != 1 {
				sec.Write(d.Offset)
			}
			WriteLEB128u(&sec, uint32(len(d.Init)))
			sec.Write(d.Init)
		}
		writeSection(&w, SectionData, sec.Bytes())
	}

	// Name section, then remaining custom sections (at end)
	if !m.Names.IsEmpty() {
		var sec bytes.Buffer
		writeName(&sec, NameSectionName)
		sec.Write(encodeNameSection(&m.Names))
		writeSection(&w, SectionCustom, sec.Bytes())
	}
	for _, cs := range m.CustomSections {
		var sec bytes.Buffer
		writeName(&sec, cs.Name)
		sec.Write(cs.Data)
		writeSection(&w, SectionCustom, sec.Bytes())
	}

	return w.Bytes()
}

func writeSection(w *bytes.Buffer, id byte, data []byte) {
	w.WriteByte(id)
	WriteLEB128u(w, uint32(len(data)))
	w.Write(data)
}

func writeName(w *bytes.Buffer, s string) {
	WriteLEB128u(w, uint32(len(s)))
	w.WriteString(s)
}

func writeValTypes(w *bytes.Buffer, types []ValType) {
	WriteLEB128u(w, uint32(len(types)))
	for _, t := range types {
		w.WriteByte(byte(t))
	}
}

// writeLimits emits limits at full width; Validate bounds the values, so
// encoding never narrows them.
func writeLimits(w *bytes.Buffer, l Limits) {
	if l.Max != nil {
		w.WriteByte(LimitsHasMax)
		WriteLEB128u64(w, l.Min)
		WriteLEB128u64(w, *l.Max)
	} else {
		w.WriteByte(0)
		WriteLEB128u64(w, l.Min)
	}
}

func writeTableType(w *bytes.Buffer, t TableType) {
	w.WriteByte(t.ElemType)
	writeLimits(w, t.Limits)
}

func writeGlobalType(w *bytes.Buffer, g GlobalType) {
	w.WriteByte(byte(g.ValType))
	if g.Mutable {
		w.WriteByte(1)
	} else {
		w.WriteByte(0)
	}
}
