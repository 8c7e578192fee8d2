package sim

import (
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// CellType is the role a cell plays in a design.
type CellType int

const (
	CellNormal CellType = 0
	CellInput  CellType = 1
	CellOutput CellType = 2
	CellFixed  CellType = 3
)

func (t CellType) String() string {
	switch t {
	case CellNormal:
		return "normal"
	case CellInput:
		return "input"
	case CellOutput:
		return "output"
	case CellFixed:
		return "fixed"
	default:
		return fmt.Sprintf("CellType(%d)", int(t))
	}
}

// Cell is the atomic simulated unit placed within a Layer.
type Cell struct {
	Position                   [2]float64 `json:"position"` // nm
	Rotation                   float64    `json:"rotation"` // radians
	Typ                        CellType   `json:"typ"`
	ClockPhaseShift            float64    `json:"clock_phase_shift"` // degrees
	DotProbabilityDistribution []float64  `json:"dot_probability_distribution"`
	Label                      string     `json:"label,omitempty"`
}

// ClockChannel returns the clock zone (0-3) driving this cell.
func (c Cell) ClockChannel() int {
	zone := int(math.Round(c.ClockPhaseShift/90.0)) % ClockChannels
	if zone < 0 {
		zone += ClockChannels
	}
	return zone
}

// CellArchitecture holds the geometric parameters shared by a class of cells.
type CellArchitecture struct {
	Name         string       `json:"name"`
	SideLength   float64      `json:"side_length"`
	DotDiameter  float64      `json:"dot_diameter"`
	DotCount     int          `json:"dot_count"`
	DotPositions [][2]float64 `json:"dot_positions"`
	DotTunnels   [][2]int     `json:"dot_tunnels"`
}

// FeatureWidth is the number of float values stored per sample for a cell
// of this architecture.
func (a CellArchitecture) FeatureWidth() int {
	return a.DotCount / 4
}

// Validate checks the dot layout is one the pipeline can store.
func (a CellArchitecture) Validate() error {
	if a.DotCount <= 0 || a.DotCount%4 != 0 {
		return fmt.Errorf("architecture %q: dot_count %d is not a positive multiple of 4", a.Name, a.DotCount)
	}
	if len(a.DotPositions) != a.DotCount {
		return fmt.Errorf("architecture %q: %d dot positions for dot_count %d", a.Name, len(a.DotPositions), a.DotCount)
	}
	return nil
}

// Layer is an ordered collection of cells sharing one architecture.
type Layer struct {
	Name               string `json:"name"`
	Visible            bool   `json:"visible"`
	CellArchitectureID string `json:"cell_architecture_id"`
	Cells              []Cell `json:"cells"`
}

// ModelSettings holds the two textual settings channels of one model.
type ModelSettings struct {
	ModelSettings          json.RawMessage `json:"model_settings"`
	ClockGeneratorSettings json.RawMessage `json:"clock_generator_settings"`
}

// SimulationSettings maps each model id to its settings and records which
// model is selected for the next run.
type SimulationSettings struct {
	SelectedSimulationModelID string                   `json:"selected_simulation_model_id,omitempty"`
	SimulationModelSettings   map[string]ModelSettings `json:"simulation_model_settings"`
}

// Design is the unit of work handed to the pipeline: layers, the
// architectures they reference, and per-model settings.
type Design struct {
	QCACoreVersion     string                      `json:"qca_core_version"`
	Layers             []Layer                     `json:"layers"`
	CellArchitectures  map[string]CellArchitecture `json:"cell_architectures"`
	SimulationSettings SimulationSettings          `json:"simulation_settings"`
}

// Validate checks that every layer references a known, storable architecture.
func (d *Design) Validate() error {
	ids := make([]string, 0, len(d.CellArchitectures))
	for id := range d.CellArchitectures {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		if err := d.CellArchitectures[id].Validate(); err != nil {
			return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
		}
	}
	for i := range d.Layers {
		if _, err := d.ArchitectureFor(i); err != nil {
			return err
		}
	}
	return nil
}

// ArchitectureFor resolves the architecture of the given layer.
func (d *Design) ArchitectureFor(layer int) (CellArchitecture, error) {
	if layer < 0 || layer >= len(d.Layers) {
		return CellArchitecture{}, fmt.Errorf("%w: layer %d out of range [0, %d)", ErrStaleCellReference, layer, len(d.Layers))
	}
	id := d.Layers[layer].CellArchitectureID
	arch, ok := d.CellArchitectures[id]
	if !ok {
		return CellArchitecture{}, fmt.Errorf("%w: layer %d references %q", ErrMissingArchitecture, layer, id)
	}
	return arch, nil
}

// CellAt resolves a cell and its architecture.
func (d *Design) CellAt(idx CellIndex) (Cell, CellArchitecture, error) {
	arch, err := d.ArchitectureFor(idx.Layer)
	if err != nil {
		return Cell{}, CellArchitecture{}, err
	}
	cells := d.Layers[idx.Layer].Cells
	if idx.Cell < 0 || idx.Cell >= len(cells) {
		return Cell{}, CellArchitecture{}, fmt.Errorf("%w: cell %s out of range (layer has %d cells)", ErrStaleCellReference, idx, len(cells))
	}
	return cells[idx.Cell], arch, nil
}

// SelectedModelID returns the selected model id, which must be set.
func (d *Design) SelectedModelID() (string, error) {
	id := d.SimulationSettings.SelectedSimulationModelID
	if id == "" {
		return "", fmt.Errorf("%w: selected_simulation_model_id", ErrMissingParameter)
	}
	return id, nil
}

// SelectedSettings returns the selected model id and its settings bundle.
func (d *Design) SelectedSettings() (string, ModelSettings, error) {
	id, err := d.SelectedModelID()
	if err != nil {
		return "", ModelSettings{}, err
	}
	settings, ok := d.SimulationSettings.SimulationModelSettings[id]
	if !ok {
		return "", ModelSettings{}, fmt.Errorf("%w: no settings for model %q", ErrSettingsParse, id)
	}
	return id, settings, nil
}

// CellCount returns the number of cells across all layers.
func (d *Design) CellCount() int {
	n := 0
	for _, l := range d.Layers {
		n += len(l.Cells)
	}
	return n
}
