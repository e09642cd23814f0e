// Package validate checks a set of scenario definitions for structural
// problems before ScenarioRunner ever touches a SimulationState: duplicate
// names, unrecognized streams, and illegal displacement targets (spec §7's
// DuplicateDefinition/UnknownStream/InvalidDisplacement kinds). Grounded on
// internal/allocation/rules.go's Validate() + errors.Join pattern: every
// problem found in a pass is collected and returned together rather than
// failing fast at the first one, since the caller (internal/engine) reports
// all of them in one shot rather than making the author fix-and-rerun one at
// a time.
package validate

import (
	"errors"
	"fmt"

	"github.com/example/kigalisim/internal/engineerr"
	"github.com/example/kigalisim/internal/operation"
	"github.com/example/kigalisim/internal/runner"
	"github.com/example/kigalisim/internal/scope"
)

// Scenarios validates a full set of scenario definitions destined for a
// single engine run (spec §6.3's execute(code), or §C9's parallel driver
// running several at once). It returns a joined error covering every
// scenario, or nil if all are clean.
func Scenarios(defs []runner.ScenarioDef) error {
	var errs []error

	seen := make(map[string]bool, len(defs))
	for _, def := range defs {
		if seen[def.Name] {
			errs = append(errs, engineerr.New(engineerr.KindDuplicateDefinition, def.Name, 0, scope.Scope{}, 0,
				fmt.Sprintf("duplicate scenario name %q", def.Name)))
			continue
		}
		seen[def.Name] = true

		if err := Scenario(def); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// Scenario validates one scenario definition: its stanza names must be
// distinct, and every operation across every stanza must reference a known
// stream and a legal displacement target.
func Scenario(def runner.ScenarioDef) error {
	var errs []error

	stanzas := append([]runner.Stanza{def.Baseline}, def.Policies...)
	stanzaNames := make(map[string]bool, len(stanzas))
	for _, st := range stanzas {
		if stanzaNames[st.Name] {
			errs = append(errs, engineerr.New(engineerr.KindDuplicateDefinition, def.Name, 0, scope.Scope{}, 0,
				fmt.Sprintf("duplicate stanza name %q", st.Name)))
			continue
		}
		stanzaNames[st.Name] = true
	}

	knownSubstances := substancesByApplication(stanzas)

	for _, st := range stanzas {
		for app, bySubstance := range st.Ops {
			for sub, ops := range bySubstance {
				sc := scope.Scope{Stanza: st.Name, Application: app, Substance: sub}
				for i, op := range ops {
					if err := checkOperation(def.Name, sc, i, op, knownSubstances[app]); err != nil {
						errs = append(errs, err)
					}
				}
			}
		}
	}

	if len(errs) == 0 {
		return nil
	}
	return errors.Join(errs...)
}

// substancesByApplication collects every substance name that appears under
// each application across all stanzas, so a displacement target can be
// checked against the full set of substances the scenario actually defines,
// not just the ones visible in the stanza the operation happens to sit in.
func substancesByApplication(stanzas []runner.Stanza) map[string]map[string]bool {
	known := make(map[string]map[string]bool)
	for _, st := range stanzas {
		for app, bySubstance := range st.Ops {
			if known[app] == nil {
				known[app] = make(map[string]bool)
			}
			for sub := range bySubstance {
				known[app][sub] = true
			}
		}
	}
	return known
}

func checkOperation(scenario string, sc scope.Scope, opIndex int, op operation.Operation, siblings map[string]bool) error {
	switch o := op.(type) {
	case operation.Set:
		return checkStream(scenario, sc, opIndex, o.Stream)
	case operation.Change:
		return checkStream(scenario, sc, opIndex, o.Stream)
	case operation.Cap:
		if err := checkStream(scenario, sc, opIndex, o.Stream); err != nil {
			return err
		}
		return checkDisplacement(scenario, sc, opIndex, o.DisplaceTarget, siblings)
	case operation.Floor:
		if err := checkStream(scenario, sc, opIndex, o.Stream); err != nil {
			return err
		}
		return checkDisplacement(scenario, sc, opIndex, o.DisplaceTarget, siblings)
	case operation.Replace:
		if err := checkStream(scenario, sc, opIndex, o.Stream); err != nil {
			return err
		}
		return checkReplace(scenario, sc, opIndex, o, siblings)
	case operation.Enable:
		return checkStream(scenario, sc, opIndex, o.Stream)
	}
	return nil
}

func checkStream(scenario string, sc scope.Scope, opIndex int, stream interface{ IsValid() bool }) error {
	if stream.IsValid() {
		return nil
	}
	return engineerr.New(engineerr.KindUnknownStream, scenario, 0, sc, opIndex,
		fmt.Sprintf("unrecognized stream %v", stream))
}

// checkDisplacement rejects a Cap/Floor naming itself as its own
// displacement target, or a target substance never defined anywhere in the
// scenario (spec §7: "e.g. import→import, or unknown target substance").
func checkDisplacement(scenario string, sc scope.Scope, opIndex int, target string, siblings map[string]bool) error {
	if target == "" {
		return nil
	}
	if target == sc.Substance {
		return engineerr.New(engineerr.KindInvalidDisplacement, scenario, 0, sc, opIndex,
			fmt.Sprintf("displacement target %q is the same as the source substance", target))
	}
	if !siblings[target] {
		return engineerr.New(engineerr.KindInvalidDisplacement, scenario, 0, sc, opIndex,
			fmt.Sprintf("displacement target %q is not a defined substance in application %q", target, sc.Application))
	}
	return nil
}

func checkReplace(scenario string, sc scope.Scope, opIndex int, o operation.Replace, siblings map[string]bool) error {
	if o.SourceSubstance == o.TargetSubstance {
		return engineerr.New(engineerr.KindInvalidDisplacement, scenario, 0, sc, opIndex,
			fmt.Sprintf("replace source and target substance are both %q", o.SourceSubstance))
	}
	if !siblings[o.SourceSubstance] {
		return engineerr.New(engineerr.KindInvalidDisplacement, scenario, 0, sc, opIndex,
			fmt.Sprintf("replace source substance %q is not defined in application %q", o.SourceSubstance, sc.Application))
	}
	if !siblings[o.TargetSubstance] {
		return engineerr.New(engineerr.KindInvalidDisplacement, scenario, 0, sc, opIndex,
			fmt.Sprintf("replace target substance %q is not defined in application %q", o.TargetSubstance, sc.Application))
	}
	return nil
}
