// Package state holds SimulationState (internally "Store"), the
// per-(application, substance) stream storage a scenario run mutates as it
// steps through years. Per spec §5 a SimulationState is only ever touched
// by the single goroutine running its scenario, so unlike the teacher's
// registry types this one carries no mutex: concurrency safety comes from
// never sharing a Store across goroutines, not from locking.
package state

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/example/kigalisim/internal/engnum"
	"github.com/example/kigalisim/internal/scope"
)

// Stream names the closed set of channels tracked per UseKey.
type Stream string

const (
	StreamSales    Stream = "sales"
	StreamDomestic Stream = "domestic"
	StreamImport   Stream = "import"
	StreamExport   Stream = "export"

	StreamEquipment      Stream = "equipment"
	StreamPriorEquipment Stream = "priorEquipment"
	StreamPopulationNew  Stream = "populationNew"

	StreamConsumption          Stream = "consumption"
	StreamConsumptionNoRecycle Stream = "consumptionNoRecycle"
	StreamRecycle              Stream = "recycle"
	StreamRecycleConsumption   Stream = "recycleConsumption"
	StreamRechargeEmissions    Stream = "rechargeEmissions"
	StreamEOLEmissions         Stream = "eolEmissions"
	StreamEnergyConsumption    Stream = "energyConsumption"
	StreamImplicitRecharge     Stream = "implicitRecharge"
)

// IsValid reports whether s is one of the recognized streams.
func (s Stream) IsValid() bool {
	switch s {
	case StreamSales, StreamDomestic, StreamImport, StreamExport,
		StreamEquipment, StreamPriorEquipment, StreamPopulationNew,
		StreamConsumption, StreamConsumptionNoRecycle, StreamRecycle,
		StreamRecycleConsumption, StreamRechargeEmissions, StreamEOLEmissions,
		StreamEnergyConsumption, StreamImplicitRecharge:
		return true
	default:
		return false
	}
}

// RecoveryStage is one of the two points at which material can be
// recovered: at end-of-life, or during servicing (recharge).
type RecoveryStage string

const (
	StageEOL      RecoveryStage = "EOL"
	StageRecharge RecoveryStage = "RECHARGE"
)

// RechargeSpec is the servicing rate and per-unit intensity used to compute
// implicit recharge (spec §4.4.1).
type RechargeSpec struct {
	PopulationFraction decimal.Decimal
	MassPerUnit        decimal.Decimal
}

// RecoverySpec is a recovery configuration for one stage: what fraction of
// the stage's base material is recovered, what fraction of that recovered
// material is actually reused, and what fraction of reused material creates
// additional demand (induction) rather than displacing virgin supply.
type RecoverySpec struct {
	RecoveryFraction decimal.Decimal
	ReuseYield       decimal.Decimal
	InductionRate    decimal.Decimal
}

// Distribution is the domestic/import split used to portion a sales-family
// write across its two channels. Domestic+Import always sum to 1.
type Distribution struct {
	Domestic decimal.Decimal
	Import   decimal.Decimal
}

// DiagnosticKind classifies a non-fatal event surfaced from recalc or
// validation, per spec §7's diagnostic channel.
type DiagnosticKind string

const (
	DiagnosticMultipleRecover  DiagnosticKind = "MultipleRecoverSameStage"
	DiagnosticClampedRetire    DiagnosticKind = "ClampedRetirementRate"
	DiagnosticZeroZeroFallback DiagnosticKind = "ZeroDistributionFallback"
	DiagnosticRunLockSkip      DiagnosticKind = "RunLockSkip"
)

// Diagnostic is one non-fatal event recorded during a scenario run.
type Diagnostic struct {
	Kind    DiagnosticKind
	UseKey  scope.UseKey
	Stage   RecoveryStage
	Message string
}

type entry struct {
	streams       map[Stream]engnum.Number
	lastSpecified map[Stream]engnum.Number

	retirementRate decimal.Decimal

	rechargeSpec RechargeSpec
	recoverySpec map[RecoveryStage]RecoverySpec
	recoverHits  map[RecoveryStage]int // touches this year, for the MultipleRecover diagnostic

	initialCharge map[string]engnum.Number // channel ("domestic"/"import") -> kg/unit
	gwp           decimal.Decimal
	energyIntensity engnum.Number

	lastDistribution Distribution
	hasDistribution  bool

	enabled map[Stream]bool
}

func newEntry() *entry {
	return &entry{
		streams:       make(map[Stream]engnum.Number),
		lastSpecified: make(map[Stream]engnum.Number),
		recoverySpec:  make(map[RecoveryStage]RecoverySpec),
		recoverHits:   make(map[RecoveryStage]int),
		initialCharge: make(map[string]engnum.Number),
		enabled:       make(map[Stream]bool),
	}
}

// Store is the per-scenario SimulationState: all stream storage, keyed by
// UseKey. A Store is created empty at the start of a scenario run and
// discarded at the end; it is never shared between scenario runs.
type Store struct {
	data        map[scope.UseKey]*entry
	diagnostics []Diagnostic
}

// New returns an empty Store, ready for one scenario run.
func New() *Store {
	return &Store{data: make(map[scope.UseKey]*entry)}
}

func (s *Store) entry(key scope.UseKey) *entry {
	e, ok := s.data[key]
	if !ok {
		e = newEntry()
		s.data[key] = e
	}
	return e
}

// Stream returns the current value of a stream, or a zero Number in its
// canonical "kg" unit if nothing has been written yet.
func (s *Store) Stream(key scope.UseKey, name Stream) engnum.Number {
	e := s.entry(key)
	if v, ok := e.streams[name]; ok {
		return v
	}
	return engnum.New(decimal.Zero, "kg")
}

// SetStream overwrites the current value of a stream.
func (s *Store) SetStream(key scope.UseKey, name Stream, value engnum.Number) {
	s.entry(key).streams[name] = value
}

// LastSpecifiedValue returns the last user-supplied value for a stream and
// whether one has ever been recorded.
func (s *Store) LastSpecifiedValue(key scope.UseKey, name Stream) (engnum.Number, bool) {
	e := s.entry(key)
	v, ok := e.lastSpecified[name]
	return v, ok
}

// SetLastSpecifiedValue records the user's original intent for a stream
// (value plus its original unit), used for percentage-based compounding and
// unit-based carry-over (spec §3, §8 invariant 8).
func (s *Store) SetLastSpecifiedValue(key scope.UseKey, name Stream, value engnum.Number) {
	s.entry(key).lastSpecified[name] = value
}

// SetRetirementRate applies a retirement-rate delta (or absolute value) to
// a UseKey. When additive, the delta is added to the current cumulative
// rate; the net rate is always clamped to [0,100]. A clamp is recorded as a
// ClampedRetirementRate diagnostic, not an error (spec §7).
func (s *Store) SetRetirementRate(key scope.UseKey, rate decimal.Decimal, additive bool) {
	e := s.entry(key)
	next := rate
	if additive {
		next = e.retirementRate.Add(rate)
	}

	clamped := clampPercent(next)
	if !clamped.Equal(next) {
		s.diagnostics = append(s.diagnostics, Diagnostic{
			Kind:    DiagnosticClampedRetire,
			UseKey:  key,
			Message: fmt.Sprintf("retirement rate %s clamped to %s", next.String(), clamped.String()),
		})
	}
	e.retirementRate = clamped
}

// RetirementRate returns the current cumulative retirement rate (percent,
// 0-100) for a UseKey.
func (s *Store) RetirementRate(key scope.UseKey) decimal.Decimal {
	return s.entry(key).retirementRate
}

func clampPercent(v decimal.Decimal) decimal.Decimal {
	if v.IsNegative() {
		return decimal.Zero
	}
	hundred := decimal.NewFromInt(100)
	if v.GreaterThan(hundred) {
		return hundred
	}
	return v
}

// SetRechargeSpec sets the servicing rate and intensity for a UseKey.
func (s *Store) SetRechargeSpec(key scope.UseKey, spec RechargeSpec) {
	s.entry(key).rechargeSpec = spec
}

// RechargeSpec returns the current servicing rate and intensity.
func (s *Store) RechargeSpec(key scope.UseKey) RechargeSpec {
	return s.entry(key).rechargeSpec
}

// SetRecoverySpec records a recovery configuration for one stage. When
// additive and a spec already exists for this stage, the recovery fraction
// and induction rate are added and the reuse yield is averaged; a second
// (or later) recover command for the same stage in the same scenario-year
// is surfaced as a MultipleRecoverSameStage diagnostic rather than an
// error, per spec §7/§9.
func (s *Store) SetRecoverySpec(key scope.UseKey, stage RecoveryStage, spec RecoverySpec, additive bool) {
	e := s.entry(key)
	e.recoverHits[stage]++

	existing, had := e.recoverySpec[stage]
	if additive && had {
		merged := RecoverySpec{
			RecoveryFraction: existing.RecoveryFraction.Add(spec.RecoveryFraction),
			ReuseYield:       existing.ReuseYield.Add(spec.ReuseYield).Div(decimal.NewFromInt(2)),
			InductionRate:    existing.InductionRate.Add(spec.InductionRate),
		}
		e.recoverySpec[stage] = merged
	} else {
		e.recoverySpec[stage] = spec
	}

	if e.recoverHits[stage] > 1 {
		s.diagnostics = append(s.diagnostics, Diagnostic{
			Kind:    DiagnosticMultipleRecover,
			UseKey:  key,
			Stage:   stage,
			Message: fmt.Sprintf("multiple recover commands for stage %s resolved additively", stage),
		})
	}
}

// RecoverySpec returns the current recovery configuration for a stage.
func (s *Store) RecoverySpec(key scope.UseKey, stage RecoveryStage) RecoverySpec {
	return s.entry(key).recoverySpec[stage]
}

// SetInitialCharge sets the per-unit mass used to convert equipment counts
// to mass for a sales channel ("domestic" or "import").
func (s *Store) SetInitialCharge(key scope.UseKey, channel string, value engnum.Number) {
	s.entry(key).initialCharge[channel] = value
}

// InitialCharge returns the per-unit mass for a sales channel.
func (s *Store) InitialCharge(key scope.UseKey, channel string) engnum.Number {
	e := s.entry(key)
	if v, ok := e.initialCharge[channel]; ok {
		return v
	}
	return engnum.New(decimal.Zero, "kg/unit")
}

// SetGWP sets the global-warming potential (tCO2e per kg) for a UseKey.
func (s *Store) SetGWP(key scope.UseKey, gwp decimal.Decimal) {
	s.entry(key).gwp = gwp
}

// GWP returns the current global-warming potential for a UseKey.
func (s *Store) GWP(key scope.UseKey) decimal.Decimal {
	return s.entry(key).gwp
}

// SetEnergyIntensity sets the energy intensity (kwh/unit or kwh/kg) for a
// UseKey.
func (s *Store) SetEnergyIntensity(key scope.UseKey, intensity engnum.Number) {
	s.entry(key).energyIntensity = intensity
}

// EnergyIntensity returns the current energy intensity for a UseKey.
func (s *Store) EnergyIntensity(key scope.UseKey) engnum.Number {
	return s.entry(key).energyIntensity
}

// Distribution computes the domestic/import split for a UseKey from the
// current magnitudes of those two streams. If both are zero, it falls back
// to the last-known nonzero ratio; if none has ever been recorded, it falls
// back to (1, 0) — preserved verbatim per spec §9's Open Question, not
// "fixed", since the source's intent here is unconfirmed.
func (s *Store) Distribution(key scope.UseKey) Distribution {
	e := s.entry(key)
	domestic := s.Stream(key, StreamDomestic).Value
	imp := s.Stream(key, StreamImport).Value
	total := domestic.Add(imp)

	if total.IsZero() {
		if e.hasDistribution {
			return e.lastDistribution
		}
		fallback := Distribution{Domestic: decimal.NewFromInt(1), Import: decimal.Zero}
		s.diagnostics = append(s.diagnostics, Diagnostic{
			Kind:    DiagnosticZeroZeroFallback,
			UseKey:  key,
			Message: "domestic and import both zero; falling back to (1,0) distribution",
		})
		return fallback
	}

	dist := Distribution{
		Domestic: domestic.Div(total),
		Import:   imp.Div(total),
	}
	e.lastDistribution = dist
	e.hasDistribution = true
	return dist
}

// RollYear rolls every UseKey's equipment stock over into priorEquipment and
// zeroes the "new" counters, per spec §4.6 step (a). ScenarioRunner calls
// this once at the start of each simulated year.
func (s *Store) RollYear() {
	for key, e := range s.data {
		e.streams[StreamPriorEquipment] = s.Stream(key, StreamEquipment)
		e.streams[StreamPopulationNew] = engnum.New(decimal.Zero, "units")
		e.recoverHits = make(map[RecoveryStage]int)
	}
}

// Diagnostics returns every non-fatal event recorded so far.
func (s *Store) Diagnostics() []Diagnostic {
	return s.diagnostics
}

// AddDiagnostic appends a diagnostic raised by a caller outside the Store
// itself (e.g. a recalc function or executor).
func (s *Store) AddDiagnostic(d Diagnostic) {
	s.diagnostics = append(s.diagnostics, d)
}

// SetEnabled marks a sales channel stream as explicitly enabled for a
// UseKey. An Enable operation records this so validation can flag a
// Set/Change/Cap/Floor targeting a channel that was never enabled;
// streams default to disabled until the first Enable, which does not by
// itself gate writes (spec §4.3's Enable is declarative, not a lock).
func (s *Store) SetEnabled(key scope.UseKey, name Stream) {
	s.entry(key).enabled[name] = true
}

// IsEnabled reports whether a stream has been marked enabled for a UseKey.
func (s *Store) IsEnabled(key scope.UseKey, name Stream) bool {
	return s.entry(key).enabled[name]
}

// UseKeys returns every UseKey that has been touched so far, in no
// particular order. Callers that need deterministic ordering should sort
// the result.
func (s *Store) UseKeys() []scope.UseKey {
	keys := make([]scope.UseKey, 0, len(s.data))
	for k := range s.data {
		keys = append(keys, k)
	}
	return keys
}
