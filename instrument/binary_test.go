package instrument

import (
	stderrors "errors"
	"testing"

	ierr "github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/wasm"
)

// testModule builds a module with one imported function, one declared
// function, and a start designation pointing at the declared one.
func testModule() *wasm.Module {
	m := &wasm.Module{
		Types: []wasm.FuncType{
			{Params: []wasm.ValType{wasm.ValI32}, Results: []wasm.ValType{wasm.ValI32}},
			{},
		},
		Imports: []wasm.Import{
			{Module: "env", Name: "host_fn", Desc: wasm.ImportDesc{Kind: wasm.KindFunc, TypeIdx: 0}},
		},
		Funcs: []uint32{1},
		Code: []wasm.FuncBody{
			{Code: []byte{wasm.OpEnd}},
		},
	}
	start := uint32(1)
	m.Start = &start
	return m
}

func TestAddGlobal(t *testing.T) {
	m := testModule()
	m.Imports = append(m.Imports, wasm.Import{
		Module: "env", Name: "imported_global",
		Desc: wasm.ImportDesc{Kind: wasm.KindGlobal, Global: &wasm.GlobalType{ValType: wasm.ValI32}},
	})
	bin := NewBinaryModule(m)

	idx, err := bin.AddGlobal("counter", wasm.ValI64, I64Value(42))
	if err != nil {
		t.Fatalf("AddGlobal: %v", err)
	}
	// Imported global occupies index 0
	if idx != 1 {
		t.Errorf("global index = %d, want 1", idx)
	}

	if len(m.Globals) != 1 {
		t.Fatalf("globals = %d, want 1", len(m.Globals))
	}
	g := m.Globals[0]
	if g.Type.ValType != wasm.ValI64 || !g.Type.Mutable {
		t.Errorf("global type = %+v, want mutable i64", g.Type)
	}
	wantInit := []byte{wasm.OpI64Const, 42, wasm.OpEnd}
	if string(g.Init) != string(wantInit) {
		t.Errorf("init expr = %v, want %v", g.Init, wantInit)
	}

	exp, ok := m.FindExport("counter")
	if !ok {
		t.Fatal("export not added")
	}
	if exp.Kind != wasm.KindGlobal || exp.Idx != 1 {
		t.Errorf("export = %+v, want global @ 1", exp)
	}

	next, err := bin.AddGlobal("counter2", wasm.ValI32, I32Value(0))
	if err != nil {
		t.Fatalf("second AddGlobal: %v", err)
	}
	if next != 2 {
		t.Errorf("second global index = %d, want 2", next)
	}
}

func TestAddGlobalDuplicateExport(t *testing.T) {
	m := testModule()
	m.Exports = []wasm.Export{{Name: "taken", Kind: wasm.KindFunc, Idx: 0}}
	bin := NewBinaryModule(m)

	_, err := bin.AddGlobal("taken", wasm.ValI64, I64Value(0))
	if err == nil {
		t.Fatal("expected duplicate export error")
	}
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindDuplicateExport {
		t.Errorf("error = %v, want kind %s", err, ierr.KindDuplicateExport)
	}
	if len(m.Globals) != 0 {
		t.Error("failed AddGlobal mutated the module")
	}
}

func TestAddGlobalTypeMismatch(t *testing.T) {
	bin := NewBinaryModule(testModule())
	_, err := bin.AddGlobal("g", wasm.ValI64, I32Value(1))
	if err == nil {
		t.Fatal("expected type mismatch error")
	}
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindTypeMismatch {
		t.Errorf("error = %v, want kind %s", err, ierr.KindTypeMismatch)
	}
}

func TestGetSignature(t *testing.T) {
	bin := NewBinaryModule(testModule())

	ft, err := bin.GetSignature(0)
	if err != nil {
		t.Fatalf("GetSignature(0): %v", err)
	}
	if len(ft.Params) != 1 || len(ft.Results) != 1 {
		t.Errorf("signature = %s, want (i32) -> (i32)", ft)
	}

	_, err = bin.GetSignature(7)
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindMissingSig {
		t.Errorf("error = %v, want kind %s", err, ierr.KindMissingSig)
	}
}

func TestGetFunction(t *testing.T) {
	m := testModule()
	m.Names.SetFuncName(5, "phantom")
	bin := NewBinaryModule(m)

	// Imported function at index 0 has type 0
	ft, err := bin.GetFunction(0)
	if err != nil {
		t.Fatalf("GetFunction(0): %v", err)
	}
	if !ft.Equal(m.Types[0]) {
		t.Errorf("GetFunction(0) = %s, want %s", ft, m.Types[0])
	}

	// Declared function at index 1 has type 1
	ft, err = bin.GetFunction(1)
	if err != nil {
		t.Fatalf("GetFunction(1): %v", err)
	}
	if !ft.Equal(m.Types[1]) {
		t.Errorf("GetFunction(1) = %s, want %s", ft, m.Types[1])
	}

	// Out of range, with a known name
	_, err = bin.GetFunction(5)
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindMissingFunc {
		t.Fatalf("error = %v, want kind %s", err, ierr.KindMissingFunc)
	}
	if got := e.Error(); got == "" || e.Detail != "missing func phantom @ index 5" {
		t.Errorf("detail = %q, want name included", e.Detail)
	}
}

func TestMoveStartFunction(t *testing.T) {
	m := testModule()
	bin := NewBinaryModule(m)

	if err := bin.MoveStartFunction("init"); err != nil {
		t.Fatalf("MoveStartFunction: %v", err)
	}
	if m.Start != nil {
		t.Error("start designation not cleared")
	}
	exp, ok := m.FindExport("init")
	if !ok {
		t.Fatal("relocated start not exported")
	}
	if exp.Kind != wasm.KindFunc || exp.Idx != 1 {
		t.Errorf("export = %+v, want func @ 1", exp)
	}
	if m.Names.FuncNames[1] != "init" {
		t.Errorf("func name = %q, want %q", m.Names.FuncNames[1], "init")
	}
}

func TestMoveStartFunctionNoStart(t *testing.T) {
	m := testModule()
	m.Start = nil
	bin := NewBinaryModule(m)

	if err := bin.MoveStartFunction("init"); err != nil {
		t.Fatalf("MoveStartFunction without start: %v", err)
	}
	if len(m.Exports) != 0 {
		t.Error("no-op relocation added an export")
	}
}

func TestMoveStartFunctionCollision(t *testing.T) {
	m := testModule()
	m.Exports = []wasm.Export{{Name: "init", Kind: wasm.KindMemory, Idx: 0}}
	bin := NewBinaryModule(m)

	err := bin.MoveStartFunction("init")
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindNameCollision {
		t.Fatalf("error = %v, want kind %s", err, ierr.KindNameCollision)
	}
	if m.Start == nil {
		t.Error("failed relocation cleared the start designation")
	}
}

func TestLimitHeap(t *testing.T) {
	max20 := uint64(20)
	tests := []struct {
		name    string
		min     uint64
		max     *uint64
		limit   uint64
		wantMax uint64
	}{
		{"no existing max", 2, nil, 10, 10},
		{"existing max above limit", 2, &max20, 10, 10},
		{"existing max below limit", 2, &max20, 100, 20},
		{"limit equals min", 5, nil, 5, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := testModule()
			m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: tt.min, Max: tt.max}}}
			bin := NewBinaryModule(m)

			if err := bin.LimitHeap(tt.limit); err != nil {
				t.Fatalf("LimitHeap(%d): %v", tt.limit, err)
			}
			got := m.Memories[0].Limits.Max
			if got == nil || *got != tt.wantMax {
				t.Errorf("max = %v, want %d", got, tt.wantMax)
			}
		})
	}
}

func TestLimitHeapClampsToAddressableRange(t *testing.T) {
	m := testModule()
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 1}}}
	bin := NewBinaryModule(m)

	// A limit past the wasm32 page space would not survive encoding
	if err := bin.LimitHeap(1 << 40); err != nil {
		t.Fatalf("LimitHeap(1<<40): %v", err)
	}
	got := m.Memories[0].Limits.Max
	if got == nil || *got != wasm.MemoryMaxPages {
		t.Errorf("max = %v, want %d", got, wasm.MemoryMaxPages)
	}
}

func TestLimitHeapMinExceedsBound(t *testing.T) {
	m := testModule()
	m.Memories = []wasm.MemoryType{{Limits: wasm.Limits{Min: 2}}}
	bin := NewBinaryModule(m)

	if err := bin.LimitHeap(10); err != nil {
		t.Fatalf("LimitHeap(10): %v", err)
	}
	err := bin.LimitHeap(1)
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindMemoryBound {
		t.Fatalf("error = %v, want kind %s", err, ierr.KindMemoryBound)
	}
	// The failed call must not have touched the memory
	if got := m.Memories[0].Limits.Max; got == nil || *got != 10 {
		t.Errorf("max after failed limit = %v, want 10", got)
	}
}

func TestLimitHeapMultiMemory(t *testing.T) {
	m := testModule()
	m.Memories = []wasm.MemoryType{
		{Limits: wasm.Limits{Min: 1}},
		{Limits: wasm.Limits{Min: 1}},
	}
	bin := NewBinaryModule(m)

	err := bin.LimitHeap(10)
	var e *ierr.Error
	if !stderrors.As(err, &e) || e.Kind != ierr.KindMultiMemory {
		t.Errorf("error = %v, want kind %s", err, ierr.KindMultiMemory)
	}
}

func TestLimitHeapImportedMemory(t *testing.T) {
	m := testModule()
	m.Imports = append(m.Imports, wasm.Import{
		Module: "env", Name: "memory",
		Desc: wasm.ImportDesc{Kind: wasm.KindMemory, Memory: &wasm.MemoryType{Limits: wasm.Limits{Min: 1}}},
	})
	bin := NewBinaryModule(m)

	if err := bin.LimitHeap(4); err != nil {
		t.Fatalf("LimitHeap on imported memory: %v", err)
	}
	got := m.Imports[1].Desc.Memory.Limits.Max
	if got == nil || *got != 4 {
		t.Errorf("imported memory max = %v, want 4", got)
	}
}

func TestLimitHeapNoMemory(t *testing.T) {
	bin := NewBinaryModule(testModule())
	if err := bin.LimitHeap(10); err != nil {
		t.Errorf("LimitHeap without memory: %v", err)
	}
}
