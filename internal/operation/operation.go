// Package operation defines the closed set of QubecTalk policy operations
// (spec §4.3) as a Go sum type: an Operation interface implemented only by
// the variants declared in this file. Each scenario stanza is an ordered
// slice of Operations, executed in that order against a
// state.Store/scope.Scope by the internal/executor and internal/recalc
// packages.
//
// This generalizes the teacher's Intervention/InterventionType tagged
// union (internal/scenarios/engine.go), which discriminates on a single
// string field, into a closed Go interface per spec §9's redesign note:
// each variant carries exactly the fields it needs instead of a flat
// struct with fields that are meaningless for most variants.
package operation

import (
	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/state"
)

// YearMatcher reports whether an operation applies in a given simulated
// year. It replaces the nullable start/end-year pair of the source with an
// explicit two-variant sum (spec §9).
type YearMatcher interface {
	Matches(year int) bool
	isYearMatcher()
}

// AllYears matches every year unconditionally.
type AllYears struct{}

// Matches always returns true.
func (AllYears) Matches(int) bool { return true }
func (AllYears) isYearMatcher()   {}

// YearRange matches years within [Start, End], where either bound may be
// nil to mean unbounded in that direction.
type YearRange struct {
	Start *int
	End   *int
}

// Matches reports whether year falls within the (possibly half-open) range.
func (r YearRange) Matches(year int) bool {
	if r.Start != nil && year < *r.Start {
		return false
	}
	if r.End != nil && year > *r.End {
		return false
	}
	return true
}
func (YearRange) isYearMatcher() {}

// DisplacementType controls how a reduced (or increased) amount is
// translated into the corresponding change on a displacement target
// (spec §4.5.1).
type DisplacementType string

const (
	// DisplacementEquivalent adds the same mass to the target. Default.
	DisplacementEquivalent DisplacementType = "EQUIVALENT"
	// DisplacementByVolume behaves identically to DisplacementEquivalent.
	DisplacementByVolume DisplacementType = "BY_VOLUME"
	// DisplacementByUnits converts the delta to source-units via the
	// source's initial charge, then to target mass via the target's.
	DisplacementByUnits DisplacementType = "BY_UNITS"
)

// EqualsKind names the declarative property set by an Equals operation.
type EqualsKind string

const (
	EqualsGWP             EqualsKind = "GWP"
	EqualsEnergyIntensity EqualsKind = "ENERGY_INTENSITY"
)

// Operation is implemented only by the variants in this file.
type Operation interface {
	Kind() string
	isOperation()
}

// InitialCharge declares the per-unit mass used to convert equipment counts
// to mass for one sales channel ("domestic" or "import").
type InitialCharge struct {
	Channel   string
	Intensity engnum.Number
}

func (InitialCharge) Kind() string { return "InitialCharge" }
func (InitialCharge) isOperation() {}

// Equals declares GWP or energy intensity for a substance.
type Equals struct {
	Of        EqualsKind
	Intensity engnum.Number
}

func (Equals) Kind() string { return "Equals" }
func (Equals) isOperation() {}

// Enable marks a sales channel as active; a disabled channel stays at 0
// regardless of other operations targeting it.
type Enable struct {
	Stream state.Stream
}

func (Enable) Kind() string { return "Enable" }
func (Enable) isOperation() {}

// Set assigns an absolute value to a stream.
type Set struct {
	Stream  state.Stream
	Amount  engnum.Number
	Matcher YearMatcher
}

func (Set) Kind() string { return "Set" }
func (Set) isOperation() {}

// Change increments a stream by a signed delta. Delta may be a percentage
// of the last-specified value ("%"), a percentage of the current value
// ("% current"), a unit count, or a mass.
type Change struct {
	Stream  state.Stream
	Delta   engnum.Number
	Matcher YearMatcher
}

func (Change) Kind() string { return "Change" }
func (Change) isOperation() {}

// Cap sets a maximum for a stream, optionally displacing the reduced
// amount onto a different substance within the same application.
type Cap struct {
	Stream           state.Stream
	Limit            engnum.Number
	Matcher          YearMatcher
	DisplaceTarget   string // substance name; empty means no displacement
	DisplacementType DisplacementType
}

func (Cap) Kind() string { return "Cap" }
func (Cap) isOperation() {}

// Floor sets a minimum for a stream, the mirror of Cap.
type Floor struct {
	Stream           state.Stream
	Limit            engnum.Number
	Matcher          YearMatcher
	DisplaceTarget   string
	DisplacementType DisplacementType
}

func (Floor) Kind() string { return "Floor" }
func (Floor) isOperation() {}

// Retire sets a cumulative retirement-rate delta for priorEquipment.
type Retire struct {
	Rate    decimal.Decimal // percent
	Matcher YearMatcher
}

func (Retire) Kind() string { return "Retire" }
func (Retire) isOperation() {}

// Recharge sets the servicing rate and per-unit intensity used for
// implicit recharge.
type Recharge struct {
	Fraction  decimal.Decimal // percent of population serviced
	Intensity engnum.Number   // mass per unit
	Matcher   YearMatcher
}

func (Recharge) Kind() string { return "Recharge" }
func (Recharge) isOperation() {}

// Recover configures recovery for one stage: what fraction of the stage's
// base material is recovered, what fraction of that is reused, and what
// fraction of reused material is induced (adds demand) rather than
// displacing virgin supply.
type Recover struct {
	Stage     state.RecoveryStage
	Fraction  decimal.Decimal // percent
	Reuse     decimal.Decimal // percent
	Induction decimal.Decimal // 0..1
	Matcher   YearMatcher
}

func (Recover) Kind() string { return "Recover" }
func (Recover) isOperation() {}

// Replace transfers an amount from one substance's stream to another
// within the same application, unconditionally (distinct from Cap/Floor's
// conditional displacement).
type Replace struct {
	SourceSubstance string
	TargetSubstance string
	Stream          state.Stream
	Amount          engnum.Number
}

func (Replace) Kind() string { return "Replace" }
func (Replace) isOperation() {}

var (
	_ Operation = InitialCharge{}
	_ Operation = Equals{}
	_ Operation = Enable{}
	_ Operation = Set{}
	_ Operation = Change{}
	_ Operation = Cap{}
	_ Operation = Floor{}
	_ Operation = Retire{}
	_ Operation = Recharge{}
	_ Operation = Recover{}
	_ Operation = Replace{}
)
