package instrument

import (
	"fmt"
	"math"

	"github.com/disputelabs/wasm-instrument/errors"
	"github.com/disputelabs/wasm-instrument/wasm"
)

// Names of the globals the meter injects. The host reads and writes them
// through the instance global accessor between calls into the guest.
const (
	GasGlobalName    = "cost_left"   // i64, remaining budget
	StatusGlobalName = "cost_status" // i32, 0 while in budget, 1 once exhausted
)

// OpCost assigns a cost to one operator. Costs must be pure functions of
// the operator: both executors run the same pricing, and any divergence
// diverges the instrumented code they prove against each other.
type OpCost func(op *wasm.Instruction) uint64

// CostModel pairs a pricing function with a stable identifier. The
// identifier stands in for the function wherever the configuration must
// be compared, compile caching included, so two models sharing an
// identifier must price identically. A model with an empty identifier
// makes every compile that uses it uncacheable.
type CostModel struct {
	Ident string
	Cost  OpCost
}

// FixedCost prices every operator at per units.
func FixedCost(per uint64) CostModel {
	return CostModel{
		Ident: fmt.Sprintf("fixed:%d", per),
		Cost:  func(*wasm.Instruction) uint64 { return per },
	}
}

// Meter injects cost accounting. UpdateModule adds the two exported
// globals; the per-function transform charges each basic block against
// cost_left up front, trapping with cost_status set once the budget is
// exhausted.
type Meter struct {
	Costs  CostModel
	Budget uint64

	gasIdx    uint32
	statusIdx uint32
	installed bool
}

// NewMeter returns a metering pass seeding cost_left with budget.
func NewMeter(costs CostModel, budget uint64) *Meter {
	return &Meter{Costs: costs, Budget: budget}
}

func (m *Meter) UpdateModule(module Module) error {
	gas, err := module.AddGlobal(GasGlobalName, wasm.ValI64, I64Value(int64(m.Budget)))
	if err != nil {
		return err
	}
	status, err := module.AddGlobal(StatusGlobalName, wasm.ValI32, I32Value(0))
	if err != nil {
		return err
	}
	m.gasIdx, m.statusIdx = gas, status
	m.installed = true
	return nil
}

func (m *Meter) Instrument(funcIdx uint32) (FuncMiddleware, error) {
	if !m.installed {
		return nil, errors.New(errors.PhaseInstrument, errors.KindHostInvariant).
			Detail("metering globals not yet installed").Build()
	}
	return &meterFunc{
		costs:     m.Costs.Cost,
		gasIdx:    m.gasIdx,
		statusIdx: m.statusIdx,
	}, nil
}

func (m *Meter) Name() string {
	return "cost meter"
}

// ConfigKey renders the declared configuration. The key covers only the
// inputs that determine the instrumented output: cost model identity and
// budget. An anonymous cost model yields no key.
func (m *Meter) ConfigKey() string {
	if m.Costs.Ident == "" {
		return ""
	}
	return fmt.Sprintf("meter:%s:%d", m.Costs.Ident, m.Budget)
}

// meterFunc meters one function body. Operators are buffered per basic
// block; when an operator that ends the block arrives, the accumulated
// cost is charged in one check-and-decrement preamble emitted ahead of
// the buffered operators. The preamble is stack-neutral, so inserting it
// mid-stream never disturbs operand stack typing.
type meterFunc struct {
	costs     OpCost
	gasIdx    uint32
	statusIdx uint32
	block     []wasm.Instruction
	blockCost uint64
}

func (f *meterFunc) Feed(op wasm.Instruction, out *OpSink) error {
	cost := f.costs(&op)
	if f.blockCost > math.MaxUint64-cost {
		f.blockCost = math.MaxUint64
	} else {
		f.blockCost += cost
	}
	f.block = append(f.block, op)
	if endsBasicBlock(op.Opcode) {
		f.flush(out)
	}
	return nil
}

func (f *meterFunc) Name() string {
	return "cost meter"
}

// flush emits the charge preamble followed by the buffered block:
//
//	global.get cost_left
//	i64.const  <block cost>
//	i64.lt_u
//	if
//	    i32.const 1
//	    global.set cost_status
//	    unreachable
//	end
//	global.get cost_left
//	i64.const  <block cost>
//	i64.sub
//	global.set cost_left
func (f *meterFunc) flush(out *OpSink) {
	if len(f.block) == 0 {
		return
	}
	out.Append(
		wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: f.gasIdx}},
		wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: int64(f.blockCost)}},
		wasm.Instruction{Opcode: wasm.OpI64LtU},
		wasm.Instruction{Opcode: wasm.OpIf, Imm: wasm.BlockImm{Type: wasm.BlockTypeVoid}},
		wasm.Instruction{Opcode: wasm.OpI32Const, Imm: wasm.I32Imm{Value: 1}},
		wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: f.statusIdx}},
		wasm.Instruction{Opcode: wasm.OpUnreachable},
		wasm.Instruction{Opcode: wasm.OpEnd},
		wasm.Instruction{Opcode: wasm.OpGlobalGet, Imm: wasm.GlobalImm{GlobalIdx: f.gasIdx}},
		wasm.Instruction{Opcode: wasm.OpI64Const, Imm: wasm.I64Imm{Value: int64(f.blockCost)}},
		wasm.Instruction{Opcode: wasm.OpI64Sub},
		wasm.Instruction{Opcode: wasm.OpGlobalSet, Imm: wasm.GlobalImm{GlobalIdx: f.gasIdx}},
	)
	out.Append(f.block...)
	f.block = f.block[:0]
	f.blockCost = 0
}

// endsBasicBlock reports whether op terminates a basic block: control
// may leave (or re-enter, for loop headers) at this operator, so the
// charge for the block must land before it executes.
func endsBasicBlock(op byte) bool {
	switch op {
	case wasm.OpUnreachable,
		wasm.OpBlock, wasm.OpLoop, wasm.OpIf, wasm.OpElse, wasm.OpEnd,
		wasm.OpBr, wasm.OpBrIf, wasm.OpBrTable,
		wasm.OpReturn,
		wasm.OpCall, wasm.OpCallIndirect,
		wasm.OpReturnCall, wasm.OpReturnCallIndirect:
		return true
	}
	return false
}
