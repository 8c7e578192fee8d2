package sim

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingModel keeps the last settings text it was given.
type recordingModel struct {
	id          string
	modelText   string
	clockText   string
	rejectModel bool
	Threshold   float64 `json:"threshold"`
}

func (m *recordingModel) ID() string                { return m.id }
func (m *recordingModel) Name() string              { return "Recording " + m.id }
func (m *recordingModel) ModelOptions() OptionsList { return nil }
func (m *recordingModel) ClockGeneratorOptions() OptionsList {
	return OptionsList{NumberInput("samples", "Samples", "", 10, 1, 100, true, "")}
}
func (m *recordingModel) MarshalModelSettings() (string, error) {
	return EncodeSettings(struct {
		Threshold float64 `json:"threshold"`
	}{m.Threshold})
}
func (m *recordingModel) MarshalClockGeneratorSettings() (string, error) { return `{}`, nil }
func (m *recordingModel) UnmarshalModelSettings(data string) error {
	m.modelText = data
	if m.rejectModel {
		return DecodeStrict(data, &struct{}{})
	}
	return nil
}
func (m *recordingModel) UnmarshalClockGeneratorSettings(data string) error {
	m.clockText = data
	return nil
}
func (m *recordingModel) Run(context.Context, []Layer, map[string]CellArchitecture, ProgressFunc) (*SimulationResult, error) {
	return &SimulationResult{}, nil
}

func withModels(t *testing.T, models ...string) {
	t.Helper()
	prev := NewModelsFunc
	NewModelsFunc = func() []SimulationModel {
		out := make([]SimulationModel, len(models))
		for i, id := range models {
			out[i] = &recordingModel{id: id, Threshold: 0.5}
		}
		return out
	}
	t.Cleanup(func() { NewModelsFunc = prev })
}

func TestApplySettings_Forms(t *testing.T) {
	tests := []struct {
		name      string
		raw       string
		wantModel string
	}{
		{"object", `{"threshold": 0.2}`, `{"threshold": 0.2}`},
		{"embedded string", `"{\"threshold\": 0.2}"`, `{"threshold": 0.2}`},
		{"null keeps defaults", `null`, ""},
		{"absent keeps defaults", ``, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			m := &recordingModel{id: "m"}
			require.NoError(t, ApplySettings(m, ModelSettings{ModelSettings: json.RawMessage(tc.raw)}))
			assert.Equal(t, tc.wantModel, m.modelText)
			assert.Empty(t, m.clockText)
		})
	}
}

func TestApplySettings_ErrorWrapsSettingsParse(t *testing.T) {
	m := &recordingModel{id: "m", rejectModel: true}
	err := ApplySettings(m, ModelSettings{ModelSettings: json.RawMessage(`{"unknown": 1}`)})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrSettingsParse)
	assert.Contains(t, err.Error(), "unknown")
}

func TestDecodeStrict(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	require.NoError(t, DecodeStrict(`{"a": 1}`, &v))
	assert.Equal(t, 1, v.A)
	assert.Error(t, DecodeStrict(`{"b": 1}`, &v))
	assert.Error(t, DecodeStrict(`{"a": 1} {"a": 2}`, &v))
	assert.Error(t, DecodeStrict(`{"a": "x"}`, &v))
}

func TestRegistry(t *testing.T) {
	withModels(t, "alpha", "beta")

	descriptors, err := ModelDescriptors()
	require.NoError(t, err)
	require.Len(t, descriptors, 2)
	assert.Equal(t, "alpha", descriptors[0].ModelID)
	assert.Equal(t, "Recording beta", descriptors[1].ModelName)
	assert.JSONEq(t, `{"threshold": 0.5}`, descriptors[0].ModelSettings)
	assert.Len(t, descriptors[0].ClockGeneratorOptionList, 1)

	m, err := NewModel("beta")
	require.NoError(t, err)
	assert.Equal(t, "beta", m.ID())

	_, err = NewModel("gamma")
	assert.ErrorIs(t, err, ErrModelNotFound)
}

func TestRegistry_Empty(t *testing.T) {
	prev := NewModelsFunc
	NewModelsFunc = nil
	t.Cleanup(func() { NewModelsFunc = prev })

	descriptors, err := ModelDescriptors()
	require.NoError(t, err)
	assert.Empty(t, descriptors)
	_, err = NewModel("any")
	assert.ErrorIs(t, err, ErrModelNotFound)
}
