package errors

import (
	stderrors "errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorRendering(t *testing.T) {
	err := New(PhaseInstrument, KindMemoryBound).
		Middleware("heap bound").
		Detail("module memory minimum %d exceeds limit %d", 4, 2).
		Build()

	got := err.Error()
	for _, want := range []string{"[instrument]", "memory_bound", "heap bound", "minimum 4", "limit 2"} {
		if !strings.Contains(got, want) {
			t.Errorf("Error() = %q, missing %q", got, want)
		}
	}
}

func TestErrorUnwrap(t *testing.T) {
	cause := stderrors.New("boom")
	err := ParseFailed("module", cause)
	if !stderrors.Is(err, cause) {
		t.Error("cause not reachable through Unwrap")
	}
	if !strings.Contains(err.Error(), "boom") {
		t.Errorf("Error() = %q, cause not rendered", err.Error())
	}
}

func TestErrorIsMatchesPhaseAndKind(t *testing.T) {
	err := DuplicateExport("gas")
	if !stderrors.Is(err, &Error{Phase: PhaseInstrument, Kind: KindDuplicateExport}) {
		t.Error("Is failed on matching phase and kind")
	}
	if stderrors.Is(err, &Error{Phase: PhaseInstrument, Kind: KindMultiMemory}) {
		t.Error("Is matched a different kind")
	}
}

func TestMiddlewareTagging(t *testing.T) {
	if Middleware("meter", nil) != nil {
		t.Error("nil error got tagged")
	}

	tagged := Middleware("meter", MissingSignature(3))
	var e *Error
	if !stderrors.As(tagged, &e) {
		t.Fatalf("tagged = %T", tagged)
	}
	if e.Middleware != "meter" || e.Kind != KindMissingSig {
		t.Errorf("tagged = %v", e)
	}

	// A pass name already present wins
	twice := Middleware("outer", tagged)
	if !stderrors.As(twice, &e) || e.Middleware != "meter" {
		t.Errorf("retag overwrote pass name: %v", twice)
	}

	// Foreign errors wrap as instrumentation failures
	foreign := Middleware("meter", fmt.Errorf("short read"))
	if !stderrors.As(foreign, &e) || e.Phase != PhaseInstrument || e.Cause == nil {
		t.Errorf("foreign wrap = %v", foreign)
	}
}

func TestMissingFunctionDetail(t *testing.T) {
	named := MissingFunction(4, "handler")
	if !strings.Contains(named.Error(), "missing func handler @ index 4") {
		t.Errorf("named = %q", named.Error())
	}
	anon := MissingFunction(4, "")
	if !strings.Contains(anon.Error(), "missing func @ index 4") {
		t.Errorf("anonymous = %q", anon.Error())
	}
}
