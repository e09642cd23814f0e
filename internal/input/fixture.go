package input

import (
	"encoding/json"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/operation"
	"github.com/example/kigalisim/internal/runner"
	"github.com/example/kigalisim/internal/state"
)

// FixtureProgram is a JSON-fixture-backed ParsedProgram: an implementation
// convenience for this repository only (SPEC_FULL.md §6), not part of the
// engine's contract. Its on-disk shape mirrors spec.md §6.1's literal
// structure: scenarios -> {baseline stanza, ordered policy stanzas, year
// range, trials} -> stanza -> applications -> substances -> ordered
// operations.
type FixtureProgram struct {
	doc fixtureDoc
}

// LoadFixture parses raw JSON bytes shaped like a fixtureDoc into a
// FixtureProgram.
func LoadFixture(raw []byte) (*FixtureProgram, error) {
	var doc fixtureDoc
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("input: parse fixture: %w", err)
	}
	return &FixtureProgram{doc: doc}, nil
}

// ScenarioNames implements ParsedProgram. Names are returned sorted for
// determinism: the fixture format is a JSON object, whose key order is not
// preserved by encoding/json.
func (p *FixtureProgram) ScenarioNames() []string {
	names := make([]string, 0, len(p.doc.Scenarios))
	for name := range p.doc.Scenarios {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Scenario implements ParsedProgram.
func (p *FixtureProgram) Scenario(name string) (ScenarioSpec, error) {
	sc, ok := p.doc.Scenarios[name]
	if !ok {
		return ScenarioSpec{}, fmt.Errorf("input: unknown scenario %q", name)
	}

	baseline, err := sc.Baseline.toStanza()
	if err != nil {
		return ScenarioSpec{}, fmt.Errorf("input: scenario %q baseline: %w", name, err)
	}

	policies := make([]runner.Stanza, 0, len(sc.Policies))
	for i, raw := range sc.Policies {
		st, err := raw.toStanza()
		if err != nil {
			return ScenarioSpec{}, fmt.Errorf("input: scenario %q policy[%d]: %w", name, i, err)
		}
		policies = append(policies, st)
	}

	trials := sc.Trials
	if trials <= 0 {
		trials = 1
	}

	return ScenarioSpec{
		BaselineStanza:       baseline,
		OrderedPolicyStanzas: policies,
		StartYear:            sc.StartYear,
		EndYear:              sc.EndYear,
		Trials:                trials,
	}, nil
}

// fixtureDoc is the top-level JSON document shape.
type fixtureDoc struct {
	Scenarios map[string]fixtureScenario `json:"scenarios"`
}

type fixtureScenario struct {
	StartYear int              `json:"startYear"`
	EndYear   int              `json:"endYear"`
	Trials    int              `json:"trials"`
	Baseline  fixtureStanza    `json:"baseline"`
	Policies  []fixtureStanza  `json:"policies"`
}

type fixtureStanza struct {
	Name         string                                `json:"name"`
	Applications map[string]map[string][]operationJSON `json:"applications"`
}

func (s fixtureStanza) toStanza() (runner.Stanza, error) {
	ops := make(map[string]map[string][]operation.Operation, len(s.Applications))
	for app, substances := range s.Applications {
		ops[app] = make(map[string][]operation.Operation, len(substances))
		for sub, rawOps := range substances {
			converted := make([]operation.Operation, 0, len(rawOps))
			for i, raw := range rawOps {
				op, err := raw.toOperation()
				if err != nil {
					return runner.Stanza{}, fmt.Errorf("application %q substance %q op[%d]: %w", app, sub, i, err)
				}
				converted = append(converted, op)
			}
			ops[app][sub] = converted
		}
	}
	return runner.Stanza{Name: s.Name, Ops: ops}, nil
}

// numberJSON is the wire shape of an engnum.Number: a decimal value (as a
// JSON string or number; shopspring/decimal accepts both) tagged with a
// unit string.
type numberJSON struct {
	Value decimal.Decimal `json:"value"`
	Units string          `json:"units"`
}

func (n numberJSON) toNumber() engnum.Number {
	return engnum.New(n.Value, n.Units)
}

// yearsJSON is the wire shape of an operation.YearMatcher: both bounds
// omitted (or the whole field omitted) means operation.AllYears{}.
type yearsJSON struct {
	Start *int `json:"start"`
	End   *int `json:"end"`
}

func (y *yearsJSON) toMatcher() operation.YearMatcher {
	if y == nil || (y.Start == nil && y.End == nil) {
		return operation.AllYears{}
	}
	return operation.YearRange{Start: y.Start, End: y.End}
}

// operationJSON is the discriminated-union wire shape for one
// operation.Operation. "type" selects which of the remaining, mostly
// optional fields apply; unused fields for a given type are ignored.
type operationJSON struct {
	Type string `json:"type"`

	Channel   string     `json:"channel,omitempty"`
	Of        string     `json:"of,omitempty"`
	Stream    string     `json:"stream,omitempty"`
	Amount    numberJSON `json:"amount,omitempty"`
	Delta     numberJSON `json:"delta,omitempty"`
	Limit     numberJSON `json:"limit,omitempty"`
	Intensity numberJSON `json:"intensity,omitempty"`

	Rate      decimal.Decimal `json:"rate,omitempty"`
	Fraction  decimal.Decimal `json:"fraction,omitempty"`
	Reuse     decimal.Decimal `json:"reuse,omitempty"`
	Induction decimal.Decimal `json:"induction,omitempty"`
	Stage     string          `json:"stage,omitempty"`

	DisplaceTarget   string `json:"displaceTarget,omitempty"`
	DisplacementType string `json:"displacementType,omitempty"`

	SourceSubstance string `json:"sourceSubstance,omitempty"`
	TargetSubstance string `json:"targetSubstance,omitempty"`

	Years *yearsJSON `json:"years,omitempty"`
}

func (o operationJSON) toOperation() (operation.Operation, error) {
	matcher := o.Years.toMatcher()

	switch o.Type {
	case "InitialCharge":
		return operation.InitialCharge{Channel: o.Channel, Intensity: o.Intensity.toNumber()}, nil
	case "Equals":
		return operation.Equals{Of: operation.EqualsKind(o.Of), Intensity: o.Intensity.toNumber()}, nil
	case "Enable":
		return operation.Enable{Stream: state.Stream(o.Stream)}, nil
	case "Set":
		return operation.Set{Stream: state.Stream(o.Stream), Amount: o.Amount.toNumber(), Matcher: matcher}, nil
	case "Change":
		return operation.Change{Stream: state.Stream(o.Stream), Delta: o.Delta.toNumber(), Matcher: matcher}, nil
	case "Cap":
		return operation.Cap{
			Stream: state.Stream(o.Stream), Limit: o.Limit.toNumber(), Matcher: matcher,
			DisplaceTarget: o.DisplaceTarget, DisplacementType: operation.DisplacementType(o.DisplacementType),
		}, nil
	case "Floor":
		return operation.Floor{
			Stream: state.Stream(o.Stream), Limit: o.Limit.toNumber(), Matcher: matcher,
			DisplaceTarget: o.DisplaceTarget, DisplacementType: operation.DisplacementType(o.DisplacementType),
		}, nil
	case "Retire":
		return operation.Retire{Rate: o.Rate, Matcher: matcher}, nil
	case "Recharge":
		return operation.Recharge{Fraction: o.Fraction, Intensity: o.Intensity.toNumber(), Matcher: matcher}, nil
	case "Recover":
		return operation.Recover{
			Stage: state.RecoveryStage(o.Stage), Fraction: o.Fraction, Reuse: o.Reuse,
			Induction: o.Induction, Matcher: matcher,
		}, nil
	case "Replace":
		return operation.Replace{
			SourceSubstance: o.SourceSubstance, TargetSubstance: o.TargetSubstance,
			Stream: state.Stream(o.Stream), Amount: o.Amount.toNumber(),
		}, nil
	default:
		return nil, fmt.Errorf("input: unknown operation type %q", o.Type)
	}
}
