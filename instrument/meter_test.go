package instrument

import (
	stderrors "errors"
	"testing"

	ierr "github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/wasm"
)

func opcodes(ops []wasm.Instruction) []byte {
	out := make([]byte, len(ops))
	for i, op := range ops {
		out[i] = op.Opcode
	}
	return out
}

// chargePrefix is the shape of one charge preamble: budget check, trap
// arm, decrement.
var chargePrefix = []byte{
	wasm.OpGlobalGet, wasm.OpI64Const, wasm.OpI64LtU,
	wasm.OpIf, wasm.OpI32Const, wasm.OpGlobalSet, wasm.OpUnreachable, wasm.OpEnd,
	wasm.OpGlobalGet, wasm.OpI64Const, wasm.OpI64Sub, wasm.OpGlobalSet,
}

func TestMeterAddsGlobals(t *testing.T) {
	m := testModule()
	meter := NewMeter(FixedCost(1), 1000)
	bin := NewBinaryModule(m)

	if err := meter.UpdateModule(bin); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}

	gas, ok := m.FindExport(GasGlobalName)
	if !ok {
		t.Fatalf("export %q missing", GasGlobalName)
	}
	status, ok := m.FindExport(StatusGlobalName)
	if !ok {
		t.Fatalf("export %q missing", StatusGlobalName)
	}
	if gas.Idx != 0 || status.Idx != 1 {
		t.Errorf("global indices = %d, %d, want 0, 1", gas.Idx, status.Idx)
	}

	g := m.Globals[0]
	if g.Type.ValType != wasm.ValI64 || !g.Type.Mutable {
		t.Errorf("gas global type = %+v, want mutable i64", g.Type)
	}
	wantInit := []byte{wasm.OpI64Const, 0xE8, 0x07, wasm.OpEnd} // LEB(1000)
	if string(g.Init) != string(wantInit) {
		t.Errorf("gas init = %v, want %v", g.Init, wantInit)
	}
}

func TestMeterRequiresInstall(t *testing.T) {
	meter := NewMeter(FixedCost(1), 10)
	_, err := meter.Instrument(0)
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindHostInvariant {
		t.Errorf("error = %v, want kind %s", err, ierr.KindHostInvariant)
	}
}

func TestMeterChargesStraightLine(t *testing.T) {
	body := []wasm.Instruction{
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 2}},
		{Opcode: wasm.OpI32Add},
		{Opcode: wasm.OpDrop},
		{Opcode: wasm.OpEnd},
	}

	got := meterBody(t, body, FixedCost(3))

	want := append(append([]byte{}, chargePrefix...), opcodes(body)...)
	assertOpcodes(t, got, want)

	// One block of five ops at cost 3 each
	if imm := got[1].Imm.(wasm.I64Imm); imm.Value != 15 {
		t.Errorf("block cost = %d, want 15", imm.Value)
	}
	if imm := got[len(chargePrefix)-3].Imm.(wasm.I64Imm); imm.Value != 15 {
		t.Errorf("decrement cost = %d, want 15", imm.Value)
	}
}

func TestMeterChargesLoopBodySeparately(t *testing.T) {
	body := []wasm.Instruction{
		{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		{Opcode: wasm.OpNop},
		{Opcode: wasm.OpBr, Imm: wasm.BranchImm{LabelIdx: 0}},
		{Opcode: wasm.OpEnd},
		{Opcode: wasm.OpEnd},
	}

	got := meterBody(t, body, FixedCost(1))

	// The loop opcode ends the first block, so its charge lands before
	// the loop. The body (nop, br) is charged inside the loop on every
	// iteration, ahead of the branch back.
	var want []byte
	want = append(want, chargePrefix...)
	want = append(want, wasm.OpLoop)
	want = append(want, chargePrefix...)
	want = append(want, wasm.OpNop, wasm.OpBr)
	want = append(want, chargePrefix...)
	want = append(want, wasm.OpEnd)
	want = append(want, chargePrefix...)
	want = append(want, wasm.OpEnd)
	assertOpcodes(t, got, want)

	// Per-iteration charge covers nop and br only
	if imm := got[len(chargePrefix)+1+1].Imm.(wasm.I64Imm); imm.Value != 2 {
		t.Errorf("loop body cost = %d, want 2", imm.Value)
	}
}

func TestMeterChargesBeforeCall(t *testing.T) {
	body := []wasm.Instruction{
		{Opcode: wasm.OpCall, Imm: wasm.CallImm{FuncIdx: 0}},
		{Opcode: wasm.OpEnd},
	}

	got := meterBody(t, body, FixedCost(5))

	var want []byte
	want = append(want, chargePrefix...)
	want = append(want, wasm.OpCall)
	want = append(want, chargePrefix...)
	want = append(want, wasm.OpEnd)
	assertOpcodes(t, got, want)
}

func TestMeterGlobalIndicesInPreamble(t *testing.T) {
	m := testModule()
	m.Imports = append(m.Imports, wasm.Import{
		Module: "env", Name: "g",
		Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32}},
	})
	meter := NewMeter(FixedCost(1), 10)
	if err := meter.UpdateModule(NewBinaryModule(m)); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}
	fm, err := meter.Instrument(0)
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}

	sink := NewOpSink(16)
	if err := fm.Feed(wasm.Instruction{Opcode: wasm.OpEnd}, sink); err != nil {
		t.Fatalf("Feed: %v", err)
	}
	got := sink.Ops()

	// With one imported global, gas lands at index 1 and status at 2
	if imm := got[0].Imm.(wasm.GlobalImm); imm.GlobalIdx != 1 {
		t.Errorf("gas global index = %d, want 1", imm.GlobalIdx)
	}
	if imm := got[5].Imm.(wasm.GlobalImm); imm.GlobalIdx != 2 {
		t.Errorf("status global index = %d, want 2", imm.GlobalIdx)
	}
}

func TestMeterRoundTripsThroughEncoding(t *testing.T) {
	m := testModule()
	m.Code[0].Code = wasm.EncodeInstructions([]wasm.Instruction{
		{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 9}},
		{Opcode: wasm.OpDrop},
		{Opcode: wasm.OpEnd},
	})

	if err := Apply(m, NewMeter(FixedCost(1), 100)); err != nil {
		t.Fatalf("Apply: %v", err)
	}

	instrs, err := wasm.DecodeInstructions(m.Code[0].Code)
	if err != nil {
		t.Fatalf("decode instrumented body: %v", err)
	}
	want := append(append([]byte{}, chargePrefix...), wasm.OpI32Const, wasm.OpDrop, wasm.OpEnd)
	assertOpcodes(t, instrs, want)
}

func TestMeterConfigKey(t *testing.T) {
	a := NewMeter(FixedCost(1), 1000)
	b := NewMeter(FixedCost(1), 1000)
	if a.ConfigKey() == "" {
		t.Fatal("fixed cost model yielded no key")
	}
	if a.ConfigKey() != b.ConfigKey() {
		t.Errorf("equal configurations keyed %q and %q", a.ConfigKey(), b.ConfigKey())
	}
	if NewMeter(FixedCost(2), 1000).ConfigKey() == a.ConfigKey() {
		t.Error("different per-op cost shares a key")
	}
	if NewMeter(FixedCost(1), 500).ConfigKey() == a.ConfigKey() {
		t.Error("different budget shares a key")
	}

	// Installing globals must not change the key
	if err := a.UpdateModule(NewBinaryModule(testModule())); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}
	if a.ConfigKey() != b.ConfigKey() {
		t.Errorf("key changed after install: %q vs %q", a.ConfigKey(), b.ConfigKey())
	}

	anon := NewMeter(CostModel{Cost: func(*wasm.Instruction) uint64 { return 1 }}, 10)
	if anon.ConfigKey() != "" {
		t.Errorf("anonymous cost model keyed %q", anon.ConfigKey())
	}
}

func meterBody(t *testing.T, body []wasm.Instruction, costs CostModel) []wasm.Instruction {
	t.Helper()
	meter := NewMeter(costs, 100)
	if err := meter.UpdateModule(NewBinaryModule(testModule())); err != nil {
		t.Fatalf("UpdateModule: %v", err)
	}
	fm, err := meter.Instrument(0)
	if err != nil {
		t.Fatalf("Instrument: %v", err)
	}
	sink := NewOpSink(len(body) * 4)
	for _, op := range body {
		if err := fm.Feed(op, sink); err != nil {
			t.Fatalf("Feed: %v", err)
		}
	}
	return sink.Ops()
}

func assertOpcodes(t *testing.T, got []wasm.Instruction, want []byte) {
	t.Helper()
	gotOps := opcodes(got)
	if len(gotOps) != len(want) {
		t.Fatalf("emitted %d ops, want %d\ngot:  %x\nwant: %x", len(gotOps), len(want), gotOps, want)
	}
	for i := range want {
		if gotOps[i] != want[i] {
			t.Fatalf("op %d = %#x, want %#x\ngot:  %x\nwant: %x", i, gotOps[i], want[i], gotOps, want)
		}
	}
}
