// Package scope defines the addressing tuples used throughout the engine:
// UseKey, a (application, substance) pair identifying a reportable series,
// and Scope, the (stanza, application, substance) triple used while
// operations are being evaluated so that a policy stanza can address a
// different substance than the one it is nominally attached to (see
// executor.Displace).
package scope

import "fmt"

// UseKey identifies one reportable (application, substance) series.
// Equality is structural, so UseKey is safe to use as a map key directly.
type UseKey struct {
	Application string
	Substance   string
}

// String renders "Application/Substance".
func (k UseKey) String() string {
	return fmt.Sprintf("%s/%s", k.Application, k.Substance)
}

// IsZero reports whether the key has neither an application nor substance.
func (k UseKey) IsZero() bool {
	return k.Application == "" && k.Substance == ""
}

// Scope is the addressing triple in effect while a stanza's operations are
// being evaluated. Stanza distinguishes the baseline from a named policy;
// Application and Substance form the UseKey that state mutations are
// recorded against.
type Scope struct {
	Stanza      string
	Application string
	Substance   string
}

// UseKey projects Scope down to its UseKey, dropping the stanza.
func (s Scope) UseKey() UseKey {
	return UseKey{Application: s.Application, Substance: s.Substance}
}

// WithSubstance returns a copy of s addressing a different substance within
// the same application and stanza. Used by executor.Displace to evaluate a
// targeted recalc in the destination scope without mutating any shared,
// mutable "current scope" field (see spec's redesign note against global
// scope swapping).
func (s Scope) WithSubstance(substance string) Scope {
	s.Substance = substance
	return s
}

// String renders "Stanza:Application/Substance".
func (s Scope) String() string {
	return fmt.Sprintf("%s:%s/%s", s.Stanza, s.Application, s.Substance)
}
