package sim

import (
	"context"
	"fmt"
)

// SimulationModel is a simulation capability: it owns its typed model and
// clock generator configuration, exposes both as option schemas and JSON
// settings, and runs over a design's layers.
//
// Implementations are stateful only in their settings; Run must not retain
// layers or architectures after it returns.
type SimulationModel interface {
	// ID is the stable identifier used in Design.SimulationSettings.
	ID() string

	// Name is a human-readable label.
	Name() string

	ModelOptions() OptionsList
	MarshalModelSettings() (string, error)
	UnmarshalModelSettings(data string) error

	ClockGeneratorOptions() OptionsList
	MarshalClockGeneratorSettings() (string, error)
	UnmarshalClockGeneratorSettings(data string) error

	// Run computes per-sample cell states. It reports progress with
	// non-decreasing sample counts and returns ctx.Err() promptly once ctx
	// is done.
	Run(ctx context.Context, layers []Layer, architectures map[string]CellArchitecture, report ProgressFunc) (*SimulationResult, error)
}

// NewModelsFunc builds a fresh instance of every available model, in
// display order. Set by sim/models' init(); nil means no models registered.
var NewModelsFunc func() []SimulationModel

// ModelDescriptor is the serializable summary of a model, including its
// default settings for both channels.
type ModelDescriptor struct {
	ModelID                  string      `json:"model_id"`
	ModelName                string      `json:"model_name"`
	ModelOptionList          OptionsList `json:"model_option_list"`
	ModelSettings            string      `json:"model_settings"`
	ClockGeneratorOptionList OptionsList `json:"clock_generator_option_list"`
	ClockGeneratorSettings   string      `json:"clock_generator_settings"`
}

func availableModels() []SimulationModel {
	if NewModelsFunc == nil {
		return nil
	}
	return NewModelsFunc()
}

// ModelDescriptors lists every available model with its default settings.
func ModelDescriptors() ([]ModelDescriptor, error) {
	models := availableModels()
	out := make([]ModelDescriptor, 0, len(models))
	for _, m := range models {
		modelSettings, err := m.MarshalModelSettings()
		if err != nil {
			return nil, fmt.Errorf("model %q: encoding model settings: %w", m.ID(), err)
		}
		clockSettings, err := m.MarshalClockGeneratorSettings()
		if err != nil {
			return nil, fmt.Errorf("model %q: encoding clock generator settings: %w", m.ID(), err)
		}
		out = append(out, ModelDescriptor{
			ModelID:                  m.ID(),
			ModelName:                m.Name(),
			ModelOptionList:          m.ModelOptions(),
			ModelSettings:            modelSettings,
			ClockGeneratorOptionList: m.ClockGeneratorOptions(),
			ClockGeneratorSettings:   clockSettings,
		})
	}
	return out, nil
}

// NewModel returns a fresh instance of the model with the given id.
func NewModel(id string) (SimulationModel, error) {
	for _, m := range availableModels() {
		if m.ID() == id {
			return m, nil
		}
	}
	return nil, fmt.Errorf("%w: %q", ErrModelNotFound, id)
}
