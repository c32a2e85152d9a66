// Package errors provides structured error types for the instrumentation
// pipeline and its engine.
//
// Every error carries a Phase (where in processing it occurred) and a
// Kind (what went wrong). Failures that escape a middleware pass are
// additionally tagged with the pass's name, producing the failure
// reports that cross the library boundary:
//
//	[instrument] memory_bound in heap bound: module memory minimum 2 exceeds limit 1
//
// Errors support errors.Is matching on (Phase, Kind) pairs and
// errors.Unwrap for cause chains. Nothing in the pipeline swallows or
// downgrades an error: any pass failure rejects the whole module.
package errors
