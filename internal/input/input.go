// Package input defines ParsedProgram, the interface boundary the engine
// depends on instead of a QubecTalk parser (spec.md §6.1: the grammar and
// AST are out of scope; the engine only needs scenario names and, per
// name, a baseline stanza, ordered policy stanzas, a year range, and a
// trial count). It also provides FixtureProgram, a JSON-fixture-backed
// implementation that stands in for the real parser so the engine is
// runnable end to end (SPEC_FULL.md §6).
package input

import (
	"github.com/example/kigalisim/internal/runner"
)

// ParsedProgram is everything the engine needs from a parsed QubecTalk
// program (spec.md §6.1).
type ParsedProgram interface {
	// ScenarioNames lists every scenario defined in the program, in
	// declaration order.
	ScenarioNames() []string

	// Scenario resolves one scenario by name into the fields
	// internal/runner.Run needs, plus its trial count.
	Scenario(name string) (ScenarioSpec, error)
}

// ScenarioSpec is one scenario's resolved definition: a baseline stanza,
// zero or more policy stanzas layered on top of it in order, the simulated
// year range, and the number of Monte Carlo trials to run.
type ScenarioSpec struct {
	BaselineStanza       runner.Stanza
	OrderedPolicyStanzas []runner.Stanza
	StartYear            int
	EndYear              int
	Trials               int
}

// ScenarioDef converts a ScenarioSpec into the runner.ScenarioDef shape
// internal/runner.Run consumes directly.
func (s ScenarioSpec) ScenarioDef(name string) runner.ScenarioDef {
	return runner.ScenarioDef{
		Name:      name,
		Baseline:  s.BaselineStanza,
		Policies:  s.OrderedPolicyStanzas,
		StartYear: s.StartYear,
		EndYear:   s.EndYear,
	}
}
