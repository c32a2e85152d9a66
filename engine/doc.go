// Package engine compiles and runs instrumented modules on wazero.
//
// Compilation mirrors the deterministic path in package instrument: the
// guest binary is parsed, each pass runs through a MiddlewareWrapper
// against the compile-time ModuleMeta and per-function bridges, and the
// reassembled module goes to wazero. Module.Bytes exposes the
// instrumented encoding, which must match what instrument.Apply
// produces for the same input and passes.
//
//	eng := engine.New(ctx, &engine.Config{CacheSize: 32})
//	defer eng.Close(ctx)
//
//	mod, err := eng.Compile(ctx, guestWasm,
//	    instrument.NewStartMover(""),
//	    instrument.NewMeter(instrument.FixedCost(1), 0),
//	)
//	...
//	inst, err := mod.Instantiate(ctx)
//	inst.SetGasLeft(budget)
//	_, err = inst.Call(ctx, instrument.DefaultStartExport)
//
// Injected globals are read and written through the typed accessors
// GetGlobal and SetGlobal; the gas and status globals additionally have
// shorthands on Instance.
package engine
