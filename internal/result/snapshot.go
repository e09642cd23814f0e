package result

import (
	"github.com/example/kigalisim/internal/scope"
	"github.com/example/kigalisim/internal/state"
)

// Snapshot reads every reportable stream for key out of s into a Row for
// the given year, application, and substance (spec §4.6 step 3d: "snapshot
// all reportable streams per UseKey into a Result record").
func Snapshot(s *state.Store, key scope.UseKey, year int) Row {
	consumption := s.Stream(key, state.StreamConsumption)
	return Row{
		Year:                  year,
		Application:           key.Application,
		Substance:             key.Substance,
		Domestic:              s.Stream(key, state.StreamDomestic),
		Import:                s.Stream(key, state.StreamImport),
		Export:                s.Stream(key, state.StreamExport),
		Sales:                 s.Stream(key, state.StreamSales),
		Recycle:               s.Stream(key, state.StreamRecycle),
		Population:            s.Stream(key, state.StreamEquipment),
		PopulationNew:         s.Stream(key, state.StreamPopulationNew),
		Consumption:           consumption,
		ConsumptionNoRecycle:  s.Stream(key, state.StreamConsumptionNoRecycle),
		RecycleConsumption:    s.Stream(key, state.StreamRecycleConsumption),
		GHGConsumption:        consumption,
		RechargeEmissions:     s.Stream(key, state.StreamRechargeEmissions),
		EOLEmissions:          s.Stream(key, state.StreamEOLEmissions),
		EnergyConsumption:     s.Stream(key, state.StreamEnergyConsumption),
		Trade: TradeSupplement{
			ImportInitialChargeValue: s.InitialCharge(key, "import"),
			ExportInitialChargeValue: s.InitialCharge(key, "export"),
		},
	}
}
