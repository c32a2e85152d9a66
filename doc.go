// Package wasminstrument rewrites untrusted WebAssembly before it runs
// inside a fraud-proving execution engine.
//
// The packages compose bottom-up:
//
//   - wasm parses and encodes core WebAssembly binaries and their
//     operator streams.
//   - errors defines the structured failure taxonomy shared by every
//     layer: each error carries a phase, a kind, and the name of the
//     instrumentation pass that raised it.
//   - instrument holds the capability interface modules expose to
//     passes, the Middleware contracts, and the shipped passes: start
//     relocation, heap bounding, and cost metering.
//   - engine compiles instrumented modules on wazero and gives the
//     host typed access to the globals the passes injected.
//   - cmd/instrument is the operator CLI, with an interactive
//     inspector for poking at instrumented guests.
//
// The same passes drive two module representations - the engine's
// compile-time metadata and the standalone binary model - and both must
// produce identical instrumented modules, because a dispute pits the
// engine's native execution against a deterministic replay of the
// instrumented binary.
package wasminstrument
