package models

import (
	"context"

	"github.com/qca-lab/qca-sim/sim"
)

// FullBasisID identifies the full-basis model.
const FullBasisID = "full_basis"

// FullBasisSettings configures FullBasisModel.
type FullBasisSettings struct {
	PhysicsSettings
}

// FullBasisModel relaxes every cell to the zero-temperature two-state
// response of its neighbors' field, updating cells in place until the
// largest change falls under the tolerance.
type FullBasisModel struct {
	settings FullBasisSettings
	clock    ClockGeneratorSettings
}

// NewFullBasisModel returns the model with default settings.
func NewFullBasisModel() *FullBasisModel {
	return &FullBasisModel{
		settings: FullBasisSettings{PhysicsSettings: DefaultPhysicsSettings()},
		clock:    DefaultClockGeneratorSettings(),
	}
}

func (m *FullBasisModel) ID() string   { return FullBasisID }
func (m *FullBasisModel) Name() string { return "Full Basis" }

func (m *FullBasisModel) ModelOptions() sim.OptionsList {
	return physicsOptions(DefaultPhysicsSettings())
}

func (m *FullBasisModel) MarshalModelSettings() (string, error) {
	return sim.EncodeSettings(m.settings)
}

func (m *FullBasisModel) UnmarshalModelSettings(data string) error {
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

func (m *FullBasisModel) ClockGeneratorOptions() sim.OptionsList {
	return clockGeneratorOptions()
}

func (m *FullBasisModel) MarshalClockGeneratorSettings() (string, error) {
	return sim.EncodeSettings(m.clock)
}

func (m *FullBasisModel) UnmarshalClockGeneratorSettings(data string) error {
	return unmarshalClock(&m.clock, data)
}

func (m *FullBasisModel) Run(ctx context.Context, layers []sim.Layer, architectures map[string]sim.CellArchitecture, report sim.ProgressFunc) (*sim.SimulationResult, error) {
	sv := solver{
		response:   bistableResponse,
		sequential: true,
		damping:    1,
		tolerance:  m.settings.ConvergenceTolerance,
		maxIter:    m.settings.MaxIterations,
	}
	return runSystem(ctx, FullBasisID, layers, architectures, m.settings.PhysicsSettings, m.clock, sv, report)
}

// unmarshalClock decodes over a copy of the current settings so omitted
// keys keep their values, and commits only a valid result.
func unmarshalClock(dst *ClockGeneratorSettings, data string) error {
	c := *dst
	if err := sim.DecodeStrict(data, &c); err != nil {
		return err
	}
	if err := c.Validate(); err != nil {
		return err
	}
	*dst = c
	return nil
}
