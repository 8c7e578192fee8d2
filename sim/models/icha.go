package models

import (
	"context"
	"fmt"

	"github.com/qca-lab/qca-sim/sim"
)

// ICHAID identifies the intercellular Hartree approximation model.
const ICHAID = "icha"

// ICHASettings configures ICHAModel.
type ICHASettings struct {
	PhysicsSettings
	Temperature float64 `json:"temperature"` // K
	// Damping mixes each new iterate with the previous one; 1 disables it.
	Damping float64 `json:"damping"`
}

// Validate checks parameter ranges.
func (s ICHASettings) Validate() error {
	if err := s.PhysicsSettings.Validate(); err != nil {
		return err
	}
	if s.Temperature < 0 {
		return fmt.Errorf("temperature must be non-negative, got %g", s.Temperature)
	}
	if s.Damping <= 0 || s.Damping > 1 {
		return fmt.Errorf("damping must be in (0, 1], got %g", s.Damping)
	}
	return nil
}

// ICHAModel updates all cells simultaneously from the previous iterate
// (mean-field Hartree), with thermal weighting and damped mixing.
type ICHAModel struct {
	settings ICHASettings
	clock    ClockGeneratorSettings
}

// NewICHAModel returns the model with default settings.
func NewICHAModel() *ICHAModel {
	return &ICHAModel{
		settings: ICHASettings{
			PhysicsSettings: DefaultPhysicsSettings(),
			Temperature:     1.0,
			Damping:         0.5,
		},
		clock: DefaultClockGeneratorSettings(),
	}
}

func (m *ICHAModel) ID() string   { return ICHAID }
func (m *ICHAModel) Name() string { return "ICHA" }

func (m *ICHAModel) ModelOptions() sim.OptionsList {
	d := NewICHAModel().settings
	opts := physicsOptions(d.PhysicsSettings)
	return append(opts,
		sim.BreakOption("icha_break"),
		sim.HeaderOption("icha_header", "Hartree approximation"),
		sim.NumberInput("temperature", "Temperature", "Lattice temperature", d.Temperature, 0, 400, false, "K"),
		sim.SliderInput("damping", "Damping", 0.05, 1, d.Damping, 0.05, ""),
	)
}

func (m *ICHAModel) MarshalModelSettings() (string, error) {
	return sim.EncodeSettings(m.settings)
}

func (m *ICHAModel) UnmarshalModelSettings(data string) error {
	s := m.settings
	if err := sim.DecodeStrict(data, &s); err != nil {
		return err
	}
	if err := s.Validate(); err != nil {
		return err
	}
	m.settings = s
	return nil
}

func (m *ICHAModel) ClockGeneratorOptions() sim.OptionsList {
	return clockGeneratorOptions()
}

func (m *ICHAModel) MarshalClockGeneratorSettings() (string, error) {
	return sim.EncodeSettings(m.clock)
}

func (m *ICHAModel) UnmarshalClockGeneratorSettings(data string) error {
	return unmarshalClock(&m.clock, data)
}

func (m *ICHAModel) Run(ctx context.Context, layers []sim.Layer, architectures map[string]sim.CellArchitecture, report sim.ProgressFunc) (*sim.SimulationResult, error) {
	sv := solver{
		response:   thermalResponse(m.settings.Temperature),
		sequential: false,
		damping:    m.settings.Damping,
		tolerance:  m.settings.ConvergenceTolerance,
		maxIter:    m.settings.MaxIterations,
	}
	return runSystem(ctx, ICHAID, layers, architectures, m.settings.PhysicsSettings, m.clock, sv, report)
}
