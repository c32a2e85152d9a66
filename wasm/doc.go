// Package wasm provides WebAssembly binary format parsing and encoding
// for core modules.
//
// This package implements the standalone module model mutated by the
// instrumentation pipeline. It deliberately covers core WebAssembly
// only - the four numeric value types, functions, tables, at most a
// handful of memories (the instrumenter rejects more than one), globals,
// imports/exports, element and data segments, bulk memory operations,
// tail calls, and the "name" custom section. Post-MVP proposals such as
// GC, SIMD, threads, and exception handling are rejected at decode
// time: guests of the fraud-proving engine are restricted to core
// features so both executors can replay them deterministically.
//
// # Parsing
//
// Parse a WebAssembly module from binary:
//
//	data, _ := os.ReadFile("module.wasm")
//	module, err := wasm.ParseModule(data)
//	if err != nil {
//	    log.Fatal(err)
//	}
//
// Parse with validation enabled:
//
//	module, err := wasm.ParseModuleValidate(data)
//
// # Encoding
//
// Encode a module back to binary:
//
//	encoded := module.Encode()
//
// Round-trip parsing and encoding preserves module semantics.
//
// # Instructions
//
// Function bodies decode into operator sequences that the
// instrumentation layer streams through its per-function transforms:
//
//	instrs, err := wasm.DecodeInstructions(body.Code)
//	...
//	body.Code = wasm.EncodeInstructions(instrs)
package wasm
