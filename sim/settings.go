package sim

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// ApplySettings decodes both settings channels into the model. An empty or
// null channel leaves the model's defaults in place. Failures carry the
// parser message and wrap ErrSettingsParse.
func ApplySettings(m SimulationModel, s ModelSettings) error {
	if raw := settingsText(s.ModelSettings); raw != "" {
		if err := m.UnmarshalModelSettings(raw); err != nil {
			return fmt.Errorf("%w: model settings for %q: %v", ErrSettingsParse, m.ID(), err)
		}
	}
	if raw := settingsText(s.ClockGeneratorSettings); raw != "" {
		if err := m.UnmarshalClockGeneratorSettings(raw); err != nil {
			return fmt.Errorf("%w: clock generator settings for %q: %v", ErrSettingsParse, m.ID(), err)
		}
	}
	return nil
}

// settingsText accepts a settings channel stored either as a JSON object or
// as a JSON string holding the object's text.
func settingsText(raw json.RawMessage) string {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return ""
	}
	if trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err == nil {
			return s
		}
	}
	return string(trimmed)
}

// DecodeStrict unmarshals data into v rejecting unknown fields, so that a
// typo in a settings key is reported rather than silently ignored.
func DecodeStrict(data string, v any) error {
	dec := json.NewDecoder(bytes.NewReader([]byte(data)))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return err
	}
	if dec.More() {
		return fmt.Errorf("unexpected data after settings object")
	}
	return nil
}

// EncodeSettings renders a settings struct as compact JSON.
func EncodeSettings(v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
