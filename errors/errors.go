package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseParse      Phase = "parse"      // binary decoding
	PhaseEncode     Phase = "encode"     // binary encoding
	PhaseValidate   Phase = "validate"   // module validation
	PhaseInstrument Phase = "instrument" // middleware passes
	PhaseCompile    Phase = "compile"    // engine compilation
	PhaseRuntime    Phase = "runtime"    // instantiated execution
	PhaseHost       Phase = "host"       // host-side instance access
)

// Kind categorizes the error
type Kind string

const (
	KindDuplicateExport Kind = "duplicate_export"
	KindNameCollision   Kind = "name_collision"
	KindMissingSig      Kind = "missing_signature"
	KindMissingFunc     Kind = "missing_function"
	KindMultiMemory     Kind = "multi_memory"
	KindMemoryBound     Kind = "memory_bound"
	KindHostInvariant   Kind = "host_invariant"
	KindTypeMismatch    Kind = "type_mismatch"
	KindOutOfBounds     Kind = "out_of_bounds"
	KindInvalidData     Kind = "invalid_data"
	KindUnsupported     Kind = "unsupported"
	KindNotFound        Kind = "not_found"
	KindInstantiation   Kind = "instantiation"
)

// Error is the structured error type used throughout the instrumenter.
// Middleware carries the name of the pass that produced the failure, so
// a rejected module can be traced to the transform that rejected it.
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	Middleware string
	Detail     string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Middleware != "" {
		b.WriteString(" in ")
		b.WriteString(e.Middleware)
	}

	if e.Detail != "" {
		b.WriteString(": ")
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Middleware sets the originating pass name
func (b *Builder) Middleware(name string) *Builder {
	b.err.Middleware = name
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// DuplicateExport reports an export name that is already taken.
func DuplicateExport(name string) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindDuplicateExport,
		Detail: fmt.Sprintf("wasm already contains export %q", name),
		Value:  name,
	}
}

// NameCollision reports a start-relocation export name that is already taken.
func NameCollision(name string, idx uint32, kind byte) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindNameCollision,
		Detail: fmt.Sprintf("export %q already exists @ index %d (kind %d)", name, idx, kind),
		Value:  name,
	}
}

// MissingSignature reports a signature index outside the type index space.
func MissingSignature(sig uint32) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindMissingSig,
		Detail: fmt.Sprintf("missing signature %d", sig),
		Value:  sig,
	}
}

// MissingFunction reports a function index that resolves to no signature.
// The function's name is included when the name section knows it.
func MissingFunction(funcIdx uint32, name string) *Error {
	detail := fmt.Sprintf("missing func @ index %d", funcIdx)
	if name != "" {
		detail = fmt.Sprintf("missing func %s @ index %d", name, funcIdx)
	}
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindMissingFunc,
		Detail: detail,
		Value:  funcIdx,
	}
}

// MultiMemory reports a module declaring more than one linear memory.
func MultiMemory(count int) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindMultiMemory,
		Detail: fmt.Sprintf("multi-memory extension not supported: %d memories", count),
		Value:  count,
	}
}

// MemoryBound reports a memory minimum exceeding the post-limit maximum.
// Both bounds appear in the message so the failure is diagnosable without
// the module at hand.
func MemoryBound(minimum, bound uint64) *Error {
	return &Error{
		Phase:  PhaseInstrument,
		Kind:   KindMemoryBound,
		Detail: fmt.Sprintf("module memory minimum %d exceeds limit %d", minimum, bound),
		Value:  minimum,
	}
}

// HostInvariant reports a host-programming bug observed at runtime, such
// as reading an injected global that was never created. These are never
// guest-triggerable: global names are fixed during instrumentation.
func HostInvariant(detail string, args ...any) *Error {
	return &Error{
		Phase:  PhaseHost,
		Kind:   KindHostInvariant,
		Detail: fmt.Sprintf(detail, args...),
	}
}

// Middleware tags err with the pass name that produced it. Structured
// errors keep their phase and kind; foreign errors are wrapped as
// instrumentation failures. A nil err stays nil.
func Middleware(name string, err error) error {
	if err == nil {
		return nil
	}
	if e, ok := err.(*Error); ok {
		if e.Middleware == "" {
			tagged := *e
			tagged.Middleware = name
			return &tagged
		}
		return e
	}
	return &Error{
		Phase:      PhaseInstrument,
		Kind:       KindInvalidData,
		Middleware: name,
		Cause:      err,
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Detail: detail,
	}
}

// Instantiation creates an instantiation error
func Instantiation(cause error) *Error {
	return &Error{
		Phase:  PhaseRuntime,
		Kind:   KindInstantiation,
		Detail: "instantiate module",
		Cause:  cause,
	}
}

// Compile creates an engine compilation error
func Compile(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseCompile,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseParse,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
