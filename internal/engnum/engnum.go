// Package engnum provides EngineNumber, a decimal value tagged with a
// canonical unit string, and Converter, which converts between compatible
// units using a per-scope numeric context (population, amortized unit
// volume, volume total, GWP, energy intensity).
//
// Units are free-form strings; whitespace is insignificant ("kg / unit" and
// "kg/unit" are the same unit). Conversions that have no defined path in the
// current context fail with UnitMismatchError.
package engnum

import (
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/shopspring/decimal"
)

// ErrUnitMismatch is the sentinel wrapped by every UnitMismatchError.
var ErrUnitMismatch = errors.New("engnum: unit mismatch")

// ErrEmptyUnits is returned when a Number is constructed or converted with
// no units at all.
var ErrEmptyUnits = errors.New("engnum: units required")

// UnitMismatchError reports a conversion with no defined path in the
// supplied Context.
type UnitMismatchError struct {
	From, To string
}

func (e *UnitMismatchError) Error() string {
	return fmt.Sprintf("engnum: cannot convert %q to %q", e.From, e.To)
}

func (e *UnitMismatchError) Unwrap() error { return ErrUnitMismatch }

// Number is a value tagged with its canonical unit string, plus the
// original text it was parsed from (for diagnostics; never used in
// arithmetic).
type Number struct {
	Value          decimal.Decimal
	Units          string
	OriginalString string
}

// New constructs a Number, canonicalizing its units.
func New(value decimal.Decimal, units string) Number {
	return Number{Value: value, Units: Canonicalize(units)}
}

// NewFromString constructs a Number and preserves the original source text.
func NewFromString(value decimal.Decimal, units, original string) Number {
	return Number{Value: value, Units: Canonicalize(units), OriginalString: original}
}

// Validate reports whether the Number carries a non-empty unit.
func (n Number) Validate() error {
	if strings.TrimSpace(n.Units) == "" {
		return ErrEmptyUnits
	}
	return nil
}

// IsZero reports whether the value is exactly zero, regardless of units.
func (n Number) IsZero() bool {
	return n.Value.IsZero()
}

// String renders the number with its units, e.g. "12.5 kg".
func (n Number) String() string {
	return fmt.Sprintf("%s %s", n.Value.String(), n.Units)
}

// Canonicalize strips all Unicode whitespace from a unit string. Case is
// preserved: "tCO2e/kg" and "TCO2E/KG" are distinct units.
func Canonicalize(units string) string {
	var b strings.Builder
	b.Grow(len(units))
	for _, r := range units {
		if !unicode.IsSpace(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

const perYearSuffix = "/year"

func stripPerYear(u string) (base string, perYear bool) {
	if strings.HasSuffix(u, perYearSuffix) {
		return strings.TrimSuffix(u, perYearSuffix), true
	}
	return u, false
}

var massFactors = map[string]decimal.Decimal{
	"kg": decimal.NewFromInt(1),
	"mt": decimal.NewFromInt(1000),
}

func isMassUnit(u string) bool {
	_, ok := massFactors[u]
	return ok
}

func isCountUnit(u string) bool { return u == "units" }

func isPercentCurrent(u string) bool   { return u == "%" || u == "%current" }
func isPercentPriorYear(u string) bool { return u == "%prioryear" }
func isPercentUnit(u string) bool {
	return isPercentCurrent(u) || isPercentPriorYear(u)
}

func isPerUnitIntensity(u string) bool { return u == "kg/unit" || u == "kwh/unit" }
func isPerMassIntensity(u string) bool {
	switch u {
	case "kwh/kg", "tCO2e/kg", "kgCO2e/kg":
		return true
	default:
		return false
	}
}

// Context supplies the scope-specific numeric values a Converter needs to
// bridge unit families that have no fixed numeric ratio between them:
// population size, the per-unit mass used to amortize equipment counts into
// mass, a current running total (used by "% current" and as the mass side
// of per-mass intensities), GWP, energy intensity, and the last
// user-specified value in a stream (used by "% prior year").
type Context struct {
	Population          decimal.Decimal
	AmortizedUnitVolume decimal.Decimal // kg per unit
	VolumeTotal         decimal.Decimal // kg
	GWP                 decimal.Decimal
	EnergyIntensity     decimal.Decimal
	LastSpecifiedValue  decimal.Decimal
}

// Converter converts Numbers between compatible units using a fixed
// Context. Build a new Converter whenever the context changes (e.g. a new
// scope or year).
type Converter struct {
	ctx Context
}

// NewConverter returns a Converter bound to ctx.
func NewConverter(ctx Context) *Converter {
	return &Converter{ctx: ctx}
}

// Context returns the Converter's bound context.
func (c *Converter) Context() Context { return c.ctx }

// Convert converts n to targetUnits, or fails with *UnitMismatchError if no
// conversion path exists in the Converter's Context.
func (c *Converter) Convert(n Number, targetUnits string) (Number, error) {
	from := Canonicalize(n.Units)
	to := Canonicalize(targetUnits)
	if from == to {
		return Number{Value: n.Value, Units: to}, nil
	}

	fromBase, fromPerYear := stripPerYear(from)
	toBase, toPerYear := stripPerYear(to)
	if fromPerYear != toPerYear {
		return Number{}, &UnitMismatchError{From: n.Units, To: targetUnits}
	}

	value, err := c.convertBase(n.Value, fromBase, toBase)
	if err != nil {
		return Number{}, &UnitMismatchError{From: n.Units, To: targetUnits}
	}
	return Number{Value: value, Units: to}, nil
}

func (c *Converter) convertBase(value decimal.Decimal, from, to string) (decimal.Decimal, error) {
	switch {
	case isMassUnit(from) && isMassUnit(to):
		return value.Mul(massFactors[from]).Div(massFactors[to]), nil

	case isCountUnit(from) && isMassUnit(to):
		if c.ctx.AmortizedUnitVolume.IsZero() {
			return decimal.Zero, ErrUnitMismatch
		}
		kg := value.Mul(c.ctx.AmortizedUnitVolume)
		return kg.Div(massFactors[to]), nil

	case isMassUnit(from) && isCountUnit(to):
		if c.ctx.AmortizedUnitVolume.IsZero() {
			return decimal.Zero, ErrUnitMismatch
		}
		kg := value.Mul(massFactors[from])
		return kg.Div(c.ctx.AmortizedUnitVolume), nil

	case isPercentCurrent(from):
		absolute := c.ctx.VolumeTotal.Mul(value).Div(decimal.NewFromInt(100))
		return c.convertBase(absolute, "kg", to)

	case isPercentPriorYear(from):
		absolute := c.ctx.LastSpecifiedValue.Mul(value).Div(decimal.NewFromInt(100))
		return c.convertBase(absolute, "kg", to)

	case isPerUnitIntensity(from) && !isPercentUnit(to) && !isPerUnitIntensity(to) && !isPerMassIntensity(to):
		// kg/unit -> kg, kwh/unit -> kwh : multiply by population.
		return value.Mul(c.ctx.Population), nil

	case isPerMassIntensity(from) && !isPercentUnit(to) && !isPerUnitIntensity(to) && !isPerMassIntensity(to):
		// kwh/kg, tCO2e/kg, kgCO2e/kg -> absolute : multiply by mass total.
		return value.Mul(c.ctx.VolumeTotal), nil

	case isPerUnitIntensity(to) && !isPercentUnit(from):
		if c.ctx.Population.IsZero() {
			return decimal.Zero, ErrUnitMismatch
		}
		return value.Div(c.ctx.Population), nil

	case isPerMassIntensity(to) && !isPercentUnit(from):
		if c.ctx.VolumeTotal.IsZero() {
			return decimal.Zero, ErrUnitMismatch
		}
		return value.Div(c.ctx.VolumeTotal), nil

	default:
		return decimal.Zero, ErrUnitMismatch
	}
}

// SameFamily reports whether two unit strings belong to the same
// conversion family without requiring a Context (mass-to-mass,
// units-to-units, or identical strings). Used by executors to decide
// whether a conversion is even necessary before reaching for a Converter.
func SameFamily(a, b string) bool {
	a, b = Canonicalize(a), Canonicalize(b)
	if a == b {
		return true
	}
	aBase, aY := stripPerYear(a)
	bBase, bY := stripPerYear(b)
	if aY != bY {
		return false
	}
	if isMassUnit(aBase) && isMassUnit(bBase) {
		return true
	}
	return false
}

// IsMass reports whether a canonical unit string is a mass unit (kg, mt),
// ignoring any "/year" suffix.
func IsMass(units string) bool {
	base, _ := stripPerYear(Canonicalize(units))
	return isMassUnit(base)
}

// IsUnits reports whether a canonical unit string is the equipment-count
// unit, ignoring any "/year" suffix.
func IsUnits(units string) bool {
	base, _ := stripPerYear(Canonicalize(units))
	return isCountUnit(base)
}

// IsPercent reports whether a canonical unit string is one of the two
// percent forms ("%"/"% current", "% prior year").
func IsPercent(units string) bool {
	base, _ := stripPerYear(Canonicalize(units))
	return isPercentUnit(base)
}

// IsPercentCurrent reports whether units is specifically the "current"
// percent form, as distinct from "% prior year" (see spec §9: the two must
// remain semantically distinct even when numerically equal).
func IsPercentCurrent(units string) bool {
	base, _ := stripPerYear(Canonicalize(units))
	return isPercentCurrent(base)
}

// IsPercentPriorYear reports whether units is the "% prior year" form.
func IsPercentPriorYear(units string) bool {
	base, _ := stripPerYear(Canonicalize(units))
	return isPercentPriorYear(base)
}
