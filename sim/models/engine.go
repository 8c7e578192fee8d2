package models

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/qca-lab/qca-sim/sim"
)

// boltzmann is k_B in eV/K.
const boltzmann = 8.617333e-5

// PhysicsSettings holds the electrostatic and solver parameters shared by
// every model.
type PhysicsSettings struct {
	RelativePermittivity float64 `json:"relative_permittivity"`
	RadiusOfEffect       float64 `json:"radius_of_effect"` // nm
	LayerSeparation      float64 `json:"layer_separation"` // nm
	ConvergenceTolerance float64 `json:"convergence_tolerance"`
	MaxIterations        int     `json:"max_iterations"`
	// StoreAllCells keeps every cell's samples; otherwise only input and
	// output cells are stored.
	StoreAllCells bool `json:"store_all_cells"`
}

// DefaultPhysicsSettings returns GaAs-like defaults.
func DefaultPhysicsSettings() PhysicsSettings {
	return PhysicsSettings{
		RelativePermittivity: 12.9,
		RadiusOfEffect:       65,
		LayerSeparation:      11.5,
		ConvergenceTolerance: 1e-3,
		MaxIterations:        100,
		StoreAllCells:        false,
	}
}

// Validate checks parameter ranges.
func (p PhysicsSettings) Validate() error {
	if p.RelativePermittivity <= 0 {
		return fmt.Errorf("relative_permittivity must be positive, got %g", p.RelativePermittivity)
	}
	if p.RadiusOfEffect <= 0 {
		return fmt.Errorf("radius_of_effect must be positive, got %g", p.RadiusOfEffect)
	}
	if p.LayerSeparation < 0 {
		return fmt.Errorf("layer_separation must be non-negative, got %g", p.LayerSeparation)
	}
	if p.ConvergenceTolerance <= 0 {
		return fmt.Errorf("convergence_tolerance must be positive, got %g", p.ConvergenceTolerance)
	}
	if p.MaxIterations < 1 {
		return fmt.Errorf("max_iterations must be at least 1, got %d", p.MaxIterations)
	}
	return nil
}

func physicsOptions(p PhysicsSettings) sim.OptionsList {
	return sim.OptionsList{
		sim.HeaderOption("physics_header", "Physical parameters"),
		sim.NumberInput("relative_permittivity", "Relative permittivity", "Dielectric constant of the substrate",
			p.RelativePermittivity, 1, 100, false, ""),
		sim.NumberInput("radius_of_effect", "Radius of effect", "Cells farther apart do not interact",
			p.RadiusOfEffect, 1, 1000, false, "nm"),
		sim.NumberInput("layer_separation", "Layer separation", "Vertical distance between layers",
			p.LayerSeparation, 0, 100, false, "nm"),
		sim.BreakOption("solver_break"),
		sim.HeaderOption("solver_header", "Solver"),
		sim.NumberInput("convergence_tolerance", "Convergence tolerance", "Largest polarization change accepted as converged",
			p.ConvergenceTolerance, 1e-9, 1, false, ""),
		sim.NumberInput("max_iterations", "Max iterations", "Relaxation iterations per sample",
			float64(p.MaxIterations), 1, 100000, true, ""),
		sim.BooleanInput("store_all_cells", "Store all cells", p.StoreAllCells),
	}
}

// responseFunc maps a driving field and tunneling energy to a target
// polarization component.
type responseFunc func(field, gamma float64) float64

// bistableResponse is the zero-temperature two-state response.
func bistableResponse(field, gamma float64) float64 {
	x := field / (2 * gamma)
	return x / math.Sqrt(1+x*x)
}

// thermalResponse weights the two-state response by the thermal
// occupation at temperature kelvin.
func thermalResponse(kelvin float64) responseFunc {
	if kelvin <= 0 {
		return bistableResponse
	}
	kT := boltzmann * kelvin
	return func(field, gamma float64) float64 {
		x := field / (2 * gamma)
		r := math.Sqrt(1 + x*x)
		return x / r * math.Tanh(gamma*r/kT)
	}
}

// solver relaxes the system to a self-consistent state at each sample.
type solver struct {
	response responseFunc
	// sequential updates each cell in place (Gauss-Seidel); otherwise all
	// cells update from the previous iterate (Jacobi).
	sequential bool
	damping    float64
	tolerance  float64
	maxIter    int
}

func (sv solver) relax(sys *system, gammas *[sim.ClockChannels]float64) int {
	for iter := 1; iter <= sv.maxIter; iter++ {
		delta := 0.0
		for i, c := range sys.cells {
			if c.typ == sim.CellFixed || c.typ == sim.CellInput {
				continue
			}
			g := gammas[c.channel]
			for k := range c.pol {
				target := sv.response(sys.field(i, k), g)
				c.next[k] = c.pol[k] + sv.damping*(target-c.pol[k])
			}
			clampNorm(c.next)
			if sv.sequential {
				delta = math.Max(delta, maxAbsDiff(c.pol, c.next))
				copy(c.pol, c.next)
			}
		}
		if !sv.sequential {
			for _, c := range sys.cells {
				if c.typ == sim.CellFixed || c.typ == sim.CellInput {
					continue
				}
				delta = math.Max(delta, maxAbsDiff(c.pol, c.next))
				copy(c.pol, c.next)
			}
		}
		if delta < sv.tolerance {
			return iter
		}
	}
	return sv.maxIter
}

func maxAbsDiff(a, b []float64) float64 {
	d := 0.0
	for i := range a {
		d = math.Max(d, math.Abs(a[i]-b[i]))
	}
	return d
}

// runSystem drives the clocked sample loop shared by all models.
func runSystem(
	ctx context.Context,
	modelID string,
	layers []sim.Layer,
	architectures map[string]sim.CellArchitecture,
	physics PhysicsSettings,
	clock ClockGeneratorSettings,
	sv solver,
	report sim.ProgressFunc,
) (*sim.SimulationResult, error) {
	start := time.Now()
	sys, err := buildSystem(layers, architectures, physics)
	if err != nil {
		return nil, err
	}
	total := clock.cycles(sys.inputs) * clock.SamplesPerCycle
	logrus.Debugf("[%s] %d cells, %d inputs, %d stored, %d samples", modelID, len(sys.cells), sys.inputs, len(sys.stored), total)

	result := &sim.SimulationResult{
		Metadata: sim.SimulationMetadata{
			QCACoreVersion: sim.CoreVersion,
			StartTime:      start.UTC(),
			NumSamples:     total,
			StoredCells:    sys.storedIndices(),
		},
		ClockData: clock.Waveforms(total),
		CellsData: make([]sim.CellData, len(sys.stored)),
	}
	for si, ci := range sys.stored {
		c := sys.cells[ci]
		result.CellsData[si] = sim.CellData{Index: c.index, Width: c.width, Data: make([]float64, c.width*total)}
	}

	if report == nil {
		report = func(int, int) {}
	}
	report(0, total)
	var gammas [sim.ClockChannels]float64
	for s := 0; s < total; s++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		for ch := range gammas {
			gammas[ch] = clock.Gamma(result.ClockData[ch][s])
		}
		for _, c := range sys.cells {
			if c.input < 0 {
				continue
			}
			for k := range c.pol {
				c.pol[k] = 0
			}
			c.pol[0] = clock.InputPolarization(c.input, s)
		}
		iters := sv.relax(sys, &gammas)
		if iters == sv.maxIter {
			logrus.Tracef("[%s] sample %d hit max iterations", modelID, s)
		}
		for si, ci := range sys.stored {
			c := sys.cells[ci]
			copy(result.CellsData[si].Data[s*c.width:(s+1)*c.width], c.pol)
		}
		report(s+1, total)
	}
	result.Metadata.Duration = sim.NewTimeDelta(time.Since(start))
	return result, nil
}
