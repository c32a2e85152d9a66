package engine

import (
	stderrors "errors"
	"testing"

	ierr "github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/instrument"
	"github.com/disputelabs/wasm-instrument/wasm"
)

func metaTestModule() *wasm.Module {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "host_fn", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs:    []uint32{1},
		Memories: []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}},
		Exports:  []wasm.Export{{Name: "mem", Kind: wasm.KindMemory, Idx: 0}},
		Code:     []wasm.FuncBody{{Code: []byte{wasm.OpEnd}}},
	}
	start := uint32(1)
	m.Start = &start
	return m
}

func TestMetaCapabilityOps(t *testing.T) {
	m := metaTestModule()
	meta := MetaFromModule(m)

	idx, err := meta.AddGlobal("counter", wasm.ValI64, instrument.I64Value(5))
	if err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	if idx != 0 {
		t.Errorf("global index = %d, want 0", idx)
	}
	if _, err := meta.AddGlobal("counter", wasm.ValI64, instrument.I64Value(0)); err == nil {
		t.Error("duplicate export accepted")
	}

	ft, err := meta.GetFunction(0)
	if err != nil {
		t.Fatalf("GetFunction(0): %v", err)
	}
	if !ft.Equal(m.Types[0]) {
		t.Errorf("GetFunction(0) = %s, want %s", ft, m.Types[0])
	}
	_, err = meta.GetFunction(9)
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindMissingFunc {
		t.Errorf("error = %v, want kind %s", err, ierr.KindMissingFunc)
	}
	if _, err := meta.GetSignature(9); err == nil {
		t.Error("out-of-range signature accepted")
	}

	if err := meta.MoveStartFunction("init"); err != nil {
		t.Fatalf("MoveStartFunction: %v", err)
	}
	if err := meta.LimitHeap(16); err != nil {
		t.Fatalf("LimitHeap: %v", err)
	}

	meta.Finalize(m)

	if m.Start != nil {
		t.Error("start designation survived finalize")
	}
	if len(m.Globals) != 1 || m.Globals[0].Type.ValType != wasm.ValI64 {
		t.Errorf("globals = %+v, want one i64", m.Globals)
	}
	if got := m.Memories[0].Limits.Max; got == nil || *got != 16 {
		t.Errorf("memory max = %v, want 16", got)
	}
	if exp, ok := m.FindExport("init"); !ok || exp.Kind != wasm.KindFunc || exp.Idx != 1 {
		t.Errorf("relocated start export = %+v", exp)
	}
	if m.Names.FuncNames[1] != "init" {
		t.Errorf("func name = %q, want %q", m.Names.FuncNames[1], "init")
	}
	// Pre-existing exports keep their position
	if m.Exports[0].Name != "mem" {
		t.Errorf("first export = %q, want %q", m.Exports[0].Name, "mem")
	}
}

func TestMetaExportOrderDeterministic(t *testing.T) {
	names := []string{"g0", "g1", "g2", "g3"}
	m := metaTestModule()
	meta := MetaFromModule(m)
	for _, name := range names {
		if _, err := meta.AddGlobal(name, wasm.ValI32, instrument.I32Value(0)); err != nil {
			t.Fatalf("AddGlobal(%s): %v", name, err)
		}
	}
	meta.Finalize(m)

	got := make([]string, 0, len(m.Exports))
	for _, exp := range m.Exports {
		got = append(got, exp.Name)
	}
	want := append([]string{"mem"}, names...)
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("export order = %v, want %v", got, want)
		}
	}
}

func TestMetaLimitHeapClamps(t *testing.T) {
	m := metaTestModule()
	meta := MetaFromModule(m)

	if err := meta.LimitHeap(1 << 40); err != nil {
		t.Fatalf("LimitHeap(1<<40): %v", err)
	}
	meta.Finalize(m)

	got := m.Memories[0].Limits.Max
	if got == nil || *got != wasm.MemoryMaxPages {
		t.Errorf("max = %v, want %d", got, wasm.MemoryMaxPages)
	}
}

// Both module representations must instrument identically: the engine
// compiles one, the deterministic replayer re-derives the other, and
// any divergence breaks the dispute protocol.
func TestMetaMatchesBinaryAdapter(t *testing.T) {
	build := func() *wasm.Module {
		m := metaTestModule()
		m.Code[0].Code = wasm.EncodeInstructions([]wasm.Instruction{
			{Opcode: wasm.OpLoop, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
			{Opcode: wasm.OpNop},
			{Opcode: wasm.OpEnd},
			{Opcode: wasm.OpEnd},
		})
		return m
	}
	passes := func() []instrument.Middleware {
		return []instrument.Middleware{
			instrument.NewStartMover(""),
			instrument.NewHeapBound(64),
			instrument.NewMeter(instrument.FixedCost(2), 500),
		}
	}

	viaBinary := build()
	if err := instrument.Apply(viaBinary, passes()...); err != nil {
		t.Fatalf("binary path: %v", err)
	}

	viaMeta := build()
	meta := MetaFromModule(viaMeta)
	for _, pass := range passes() {
		w := WrapMiddleware(pass)
		if err := w.ModulePass(meta); err != nil {
			t.Fatalf("meta module pass: %v", err)
		}
		for i := range viaMeta.Code {
			if err := w.FuncPass(uint32(i), &viaMeta.Code[i]); err != nil {
				t.Fatalf("meta func pass: %v", err)
			}
		}
	}
	meta.Finalize(viaMeta)

	a, b := viaBinary.Encode(), viaMeta.Encode()
	if string(a) != string(b) {
		t.Fatalf("representations diverged:\nbinary: %x\nmeta:   %x", a, b)
	}
}

func TestBridgeTagsErrors(t *testing.T) {
	m := metaTestModule()
	m.Memories[0].Limits.Min = 100
	meta := MetaFromModule(m)

	w := WrapMiddleware(instrument.NewHeapBound(1))
	err := w.ModulePass(meta)
	var e *ierr.Error
	if !stderrors.As(err, &e) {
		t.Fatalf("error = %T, want *errors.Error", err)
	}
	if e.Middleware != "heap bound" || e.Kind != ierr.KindMemoryBound {
		t.Errorf("error = %v, want memory_bound tagged with heap bound", e)
	}
}
