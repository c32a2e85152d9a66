// Package instrument rewrites WebAssembly modules before they enter a
// fraud-proving execution engine. Untrusted guest code must behave
// identically under the fast native executor and the deterministic
// replay executor, so every behavioral change is expressed as a
// Middleware pass over the capability interface both module
// representations implement.
//
// Three passes ship with the package:
//
//   - StartMover relocates the implicit start function to a named
//     export, putting initialization under host control.
//   - HeapBound caps the guest's linear memory.
//   - Meter injects cost accounting: exported cost_left/cost_status
//     globals plus per-basic-block charge sequences that trap when the
//     budget runs out.
//
// Apply runs passes over a parsed binary:
//
//	m, err := wasm.ParseModule(data)
//	...
//	err = instrument.Apply(m,
//	    instrument.NewStartMover(""),
//	    instrument.NewHeapBound(128),
//	    instrument.NewMeter(instrument.FixedCost(1), budget),
//	)
//	out := m.Encode()
//
// The engine package applies the same passes through its compiler
// metadata instead, bridging each Middleware to module and function
// hooks. Results must match operator for operator.
package instrument
