package wasm

import (
	"bytes"
	"io"
	"sort"
)

// The "name" custom section carries debug names for the module and its
// functions. Instrumentation mutates it: relocating the start function
// records a name for the relocated index, so failure reports can point
// at functions by name.

func parseNameSection(data []byte, names *NameSection) error {
	r := bytes.NewReader(data)
	for r.Len() > 0 {
		subID, err := r.ReadByte()
		if err != nil {
			return err
		}
		size, err := ReadLEB128u(r)
		if err != nil {
			return err
		}
		sub := make([]byte, size)
		if _, err := io.ReadFull(r, sub); err != nil {
			return err
		}
		sr := bytes.NewReader(sub)

		switch subID {
		case NameSubModule:
			name, err := readName(sr)
			if err != nil {
				return err
			}
			names.Module = name
		case NameSubFunction:
			count, err := ReadLEB128u(sr)
			if err != nil {
				return err
			}
			for i := uint32(0); i < count; i++ {
				idx, err := ReadLEB128u(sr)
				if err != nil {
					return err
				}
				name, err := readName(sr)
				if err != nil {
					return err
				}
				names.SetFuncName(idx, name)
			}
		default:
			// Local and later subsections are not tracked
		}
	}
	return nil
}

func encodeNameSection(names *NameSection) []byte {
	var buf bytes.Buffer

	if names.Module != "" {
		var sub bytes.Buffer
		writeName(&sub, names.Module)
		buf.WriteByte(NameSubModule)
		WriteLEB128u(&buf, uint32(sub.Len()))
		buf.Write(sub.Bytes())
	}

	if len(names.FuncNames) > 0 {
		// Name map entries must appear in increasing index order
		idxs := make([]uint32, 0, len(names.FuncNames))
		for idx := range names.FuncNames {
			idxs = append(idxs, idx)
		}
		sort.Slice(idxs, func(i, j int) bool { return idxs[i] < idxs[j] })

		var sub bytes.Buffer
		WriteLEB128u(&sub, uint32(len(idxs)))
		for _, idx := range idxs {
			WriteLEB128u(&sub, idx)
			writeName(&sub, names.FuncNames[idx])
		}
		buf.WriteByte(NameSubFunction)
		WriteLEB128u(&buf, uint32(sub.Len()))
		buf.Write(sub.Bytes())
	}

	return buf.Bytes()
}
