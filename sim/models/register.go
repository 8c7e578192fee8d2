// Package models provides the simulation models of the pipeline. The
// SimulationModel interface is defined in sim/ (parent package).
//
// register.go wires the constructors into sim.NewModelsFunc. This init()
// runs when any package imports sim/models, breaking the import cycle
// between sim/ (interface owner) and sim/models/ (implementation).
package models

import "github.com/qca-lab/qca-sim/sim"

func init() {
	sim.NewModelsFunc = func() []sim.SimulationModel {
		return []sim.SimulationModel{
			NewFullBasisModel(),
			NewICHAModel(),
		}
	}
}
