package sim

// OptionType discriminates entries of an OptionsList.
type OptionType string

const (
	OptionHeader OptionType = "header"
	OptionBreak  OptionType = "break"
	OptionInput  OptionType = "input"
)

// InputType is the editor widget kind for an input option.
type InputType string

const (
	InputNumber  InputType = "number"
	InputString  InputType = "string"
	InputSelect  InputType = "select"
	InputSlider  InputType = "slider"
	InputBoolean InputType = "boolean"
)

// SelectChoice is one entry of a select input.
type SelectChoice struct {
	Label string `json:"label"`
	Value any    `json:"value"`
}

// InputDescriptor describes the value domain of an input option. Only the
// fields relevant to Type are set.
type InputDescriptor struct {
	Type          InputType      `json:"type"`
	Min           *float64       `json:"min,omitempty"`
	Max           *float64       `json:"max,omitempty"`
	Step          *float64       `json:"step,omitempty"`
	WholeNum      bool           `json:"whole_num,omitempty"`
	Unit          string         `json:"unit,omitempty"`
	Placeholder   string         `json:"placeholder,omitempty"`
	MaxLength     int            `json:"maxLength,omitempty"`
	Pattern       string         `json:"pattern,omitempty"`
	Options       []SelectChoice `json:"options,omitempty"`
	AllowMultiple bool           `json:"allowMultiple,omitempty"`
	Default       any            `json:"default"`
}

// Option is one entry of a model's option schema, rendered by the design
// editor as a settings form.
type Option struct {
	Type        OptionType       `json:"type"`
	ID          string           `json:"id"`
	Label       string           `json:"label,omitempty"`
	Name        string           `json:"name,omitempty"`
	Description string           `json:"description,omitempty"`
	Required    bool             `json:"required,omitempty"`
	Descriptor  *InputDescriptor `json:"descriptor,omitempty"`
}

// OptionsList is an ordered option schema.
type OptionsList []Option

// Defaults returns the default value of every input option keyed by id.
func (l OptionsList) Defaults() map[string]any {
	out := make(map[string]any)
	for _, o := range l {
		if o.Type == OptionInput && o.Descriptor != nil {
			out[o.ID] = o.Descriptor.Default
		}
	}
	return out
}

// HeaderOption starts a titled section.
func HeaderOption(id, label string) Option {
	return Option{Type: OptionHeader, ID: id, Label: label}
}

// BreakOption separates sections.
func BreakOption(id string) Option {
	return Option{Type: OptionBreak, ID: id}
}

// NumberInput declares a bounded numeric input.
func NumberInput(id, name, description string, def, min, max float64, wholeNum bool, unit string) Option {
	return Option{
		Type:        OptionInput,
		ID:          id,
		Name:        name,
		Description: description,
		Required:    true,
		Descriptor: &InputDescriptor{
			Type:     InputNumber,
			Min:      &min,
			Max:      &max,
			WholeNum: wholeNum,
			Unit:     unit,
			Default:  def,
		},
	}
}

// SliderInput declares a slider over [min, max].
func SliderInput(id, name string, min, max, def, step float64, unit string) Option {
	return Option{
		Type: OptionInput,
		ID:   id,
		Name: name,
		Descriptor: &InputDescriptor{
			Type:    InputSlider,
			Min:     &min,
			Max:     &max,
			Step:    &step,
			Unit:    unit,
			Default: def,
		},
	}
}

// BooleanInput declares a checkbox.
func BooleanInput(id, name string, def bool) Option {
	return Option{
		Type:       OptionInput,
		ID:         id,
		Name:       name,
		Descriptor: &InputDescriptor{Type: InputBoolean, Default: def},
	}
}

// SelectInput declares a single-choice select.
func SelectInput(id, name string, choices []SelectChoice, def any) Option {
	return Option{
		Type:       OptionInput,
		ID:         id,
		Name:       name,
		Descriptor: &InputDescriptor{Type: InputSelect, Options: choices, Default: def},
	}
}
