package engineerr

import (
	"errors"
	"testing"

	"github.com/example/kigalisim/internal/scope"
)

func TestErrorUnwrapsToSentinel(t *testing.T) {
	err := New(KindInvalidDisplacement, "baseline", 2030, scope.Scope{Application: "Refrigeration", Substance: "HFC-134a"}, 3, "import to import")
	if !errors.Is(err, ErrInvalidDisplacement) {
		t.Error("expected errors.Is to match ErrInvalidDisplacement")
	}
}

func TestWrapPreservesCause(t *testing.T) {
	cause := errors.New("boom")
	err := Wrap(KindUnitMismatch, "baseline", 2030, scope.Scope{}, 0, cause)
	if !errors.Is(err, cause) {
		t.Error("expected errors.Is to reach the wrapped cause")
	}
}
