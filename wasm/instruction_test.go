package wasm_test

import (
	"testing"

	"github.com/disputelabs/wasm-instrument/wasm"
)

func TestInstructionRoundTrip(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpBlock, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: int32(1)}},
		{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeI32}},
		{Opcode: wasm.OpElse},
		{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: 2}},
		{Opcode: wasm.OpBrIf, Imm: wasm.BranchImm{LabelIdx: 0}},
		{Opcode: wasm.OpBrTable, Imm: wasm.BrTableImm{Labels: []uint32{0, 1, 2}, Default: 3}},
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 9}},
		{Opcode: wasm.OpCallIndirect, Imm: wasm.CallIndirectImm{TypeIdx: 4, TableIdx: 0}},
		{Opcode: wasm.OpReturnCall, Imm: wasm.CallImm{FuncIdx: 1}},
		{Opcode: wasm.OpLocalGet, Imm: wasm.LocalImm{LocalIdx: 3}},
		{Opcode: wasm.OpLocalTee, Imm: wasm.LocalImm{LocalIdx: 3}},
		{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: 1}},
		{Opcode: wasm.OpI32Load, Imm: wasm.MemoryImm{Align: 2, Offset: 16}},
		{Opcode: wasm.OpI64Store, Imm: wasm.MemoryImm{Align: 3, Offset: 1 << 20}},
		{Opcode: wasm.OpMemorySize, Imm: wasm.MemoryIdxImm{}},
		{Opcode: wasm.OpMemoryGrow, Imm: wasm.MemoryIdxImm{}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: -123456}},
		{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: 1 << 40}},
		{Opcode: wasm.OpF32Const, Imm: wasm.F32Imm{Value: 1.5}},
		{Opcode: wasm.OpF64Const, Imm: wasm.F64Imm{Value: -2.25}},
		{Opcode: wasm.OpI32Add},
		{Opcode: wasm.OpI64LtU},
		{Opcode: wasm.OpSelect},
		{Opcode: wasm.OpDrop},
		{Opcode: wasm.OpUnreachable},
		{Opcode: wasm.OpReturn},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpEnd},
	}

	encoded := wasm.EncodeInstructions(instrs)
	decoded, err := wasm.DecodeInstructions(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(decoded) != len(instrs) {
		t.Fatalf("decoded %d instructions, want %d", len(decoded), len(instrs))
	}
	for i := range instrs {
		if decoded[i].Opcode != instrs[i].Opcode {
			t.Errorf("instr %d opcode = %#x, want %#x", i, decoded[i].Opcode, instrs[i].Opcode)
		}
	}

	// Re-encoding must be byte-stable
	again := wasm.EncodeInstructions(decoded)
	if string(again) != string(encoded) {
		t.Fatalf("encode not stable:\nfirst:  %x\nsecond: %x", encoded, again)
	}

	// Spot-check a few immediates
	if imm := decoded[6].Imm.(wasm.BrTableImm); imm.Default != 3 || len(imm.Labels) != 3 {
		t.Errorf("br_table imm = %+v", imm)
	}
	if imm := decoded[14].Imm.(wasm.MemoryImm); imm.Offset != 1<<20 || imm.Align != 3 {
		t.Errorf("i64.store imm = %+v", imm)
	}
	if imm := decoded[18].Imm.(wasm.I64Imm); imm.Value != 1<<40 {
		t.Errorf("i64.const imm = %+v", imm)
	}
}

func TestInstructionMiscPrefix(t *testing.T) {
	instrs := []wasm.Instruction{
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryFill, Operands: []uint32{0}}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscMemoryCopy, Operands: []uint32{0, 0}}},
		{Opcode: wasm.OpPrefixMisc, Imm: wasm.MiscImm{SubOpcode: wasm.MiscI32TruncSatF32S}},
		{Opcode: wasm.OpEnd},
	}

	encoded := wasm.EncodeInstructions(instrs)
	decoded, err := wasm.DecodeInstructions(encoded)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	imm := decoded[1].Imm.(wasm.MiscImm)
	if imm.SubOpcode != wasm.MiscMemoryCopy || len(imm.Operands) != 2 {
		t.Errorf("memory.copy imm = %+v", imm)
	}
}

func TestDecodeRejectsUnknownOpcode(t *testing.T) {
	if _, err := wasm.DecodeInstructions([]byte{0xFF, wasm.OpEnd}); err == nil {
		t.Error("unknown opcode accepted")
	}
}

func TestGetCallTarget(t *testing.T) {
	call := wasm.Instruction{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 12}}
	if idx, ok := call.GetCallTarget(); !ok || idx != 12 {
		t.Errorf("GetCallTarget = %d, %v", idx, ok)
	}
	if _, ok := (wasm.Instruction{Opcode: wasm.OpNop}).GetCallTarget(); ok {
		t.Error("nop reported a call target")
	}
}
