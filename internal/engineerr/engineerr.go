// Package engineerr defines the closed set of fatal error kinds a scenario
// run can produce (spec §7), following internal/allocation/rules.go's
// sentinel-error-plus-errors.Join convention rather than ad hoc fmt.Errorf
// call sites scattered across the engine.
package engineerr

import (
	"errors"
	"fmt"

	"github.com/example/kigalisim/internal/scope"
)

// Kind is the closed set of fatal error categories.
type Kind string

const (
	KindParseError          Kind = "ParseError"
	KindDuplicateDefinition Kind = "DuplicateDefinition"
	KindUnitMismatch        Kind = "UnitMismatch"
	KindUnknownStream       Kind = "UnknownStream"
	KindInvalidDisplacement Kind = "InvalidDisplacement"
	KindNumericOverflow     Kind = "NumericOverflow"
)

// Sentinels for errors.Is comparisons against Error.Cause / Error.Kind.
var (
	ErrParseError          = errors.New("engineerr: parse error")
	ErrDuplicateDefinition = errors.New("engineerr: duplicate definition")
	ErrUnitMismatch        = errors.New("engineerr: unit mismatch")
	ErrUnknownStream       = errors.New("engineerr: unknown stream")
	ErrInvalidDisplacement = errors.New("engineerr: invalid displacement")
	ErrNumericOverflow     = errors.New("engineerr: numeric overflow")
)

var sentinelByKind = map[Kind]error{
	KindParseError:          ErrParseError,
	KindDuplicateDefinition: ErrDuplicateDefinition,
	KindUnitMismatch:        ErrUnitMismatch,
	KindUnknownStream:       ErrUnknownStream,
	KindInvalidDisplacement: ErrInvalidDisplacement,
	KindNumericOverflow:     ErrNumericOverflow,
}

// Error is a fatal error abandoning the current scenario run, carrying the
// scenario name, year, scope, and operation index it was raised at (spec
// §7's "surfaced with: scenario name, year, scope, operation index, human
// message").
type Error struct {
	Kind           Kind
	Scenario       string
	Year           int
	Scope          scope.Scope
	OperationIndex int
	Msg            string
	Cause          error
}

// New constructs an Error for the given kind and message, at the supplied
// coordinates.
func New(kind Kind, scenario string, year int, sc scope.Scope, opIndex int, msg string) *Error {
	return &Error{Kind: kind, Scenario: scenario, Year: year, Scope: sc, OperationIndex: opIndex, Msg: msg}
}

// Wrap constructs an Error from an underlying cause, preserving it for
// errors.Unwrap/errors.Is.
func Wrap(kind Kind, scenario string, year int, sc scope.Scope, opIndex int, cause error) *Error {
	return &Error{Kind: kind, Scenario: scenario, Year: year, Scope: sc, OperationIndex: opIndex, Msg: cause.Error(), Cause: cause}
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s: scenario=%q year=%d scope=%s op=%d: %s",
		e.Kind, e.Scenario, e.Year, e.Scope, e.OperationIndex, e.Msg)
}

// Unwrap lets errors.Is/errors.As reach the wrapped Cause, or the sentinel
// matching this error's Kind when no Cause was supplied.
func (e *Error) Unwrap() error {
	if e.Cause != nil {
		return e.Cause
	}
	return sentinelByKind[e.Kind]
}
