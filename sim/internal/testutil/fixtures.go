// Package testutil provides shared test infrastructure for the QCA
// simulation pipeline: design fixtures, hand-built results and float
// assertion helpers used across sim/ sub-package tests.
package testutil

import (
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/qca-lab/qca-sim/sim"
)

// Architecture IDs used by the fixtures.
const (
	QuadArchID = "qdca"
	OctArchID  = "qdca8"
)

// QuadArchitecture is an 18nm four-dot cell. Dots 0 and 2 share a diagonal.
func QuadArchitecture() sim.CellArchitecture {
	return sim.CellArchitecture{
		Name:        "QDCA 4-dot",
		SideLength:  18,
		DotDiameter: 5,
		DotCount:    4,
		DotPositions: [][2]float64{
			{4.5, 4.5}, {-4.5, 4.5}, {-4.5, -4.5}, {4.5, -4.5},
		},
	}
}

// OctArchitecture is an eight-dot cell with two polarization components.
func OctArchitecture() sim.CellArchitecture {
	return sim.CellArchitecture{
		Name:        "QDCA 8-dot",
		SideLength:  18,
		DotDiameter: 4,
		DotCount:    8,
		DotPositions: [][2]float64{
			{6, 0}, {0, 6}, {-6, 0}, {0, -6},
			{4.2, 4.2}, {-4.2, 4.2}, {-4.2, -4.2}, {4.2, -4.2},
		},
	}
}

// WireDesign returns a single-layer horizontal wire at 20nm pitch: one input
// cell, n normal cells and one output cell, all on clock zone 0. The design
// selects modelID with samples_per_cycle set to samplesPerCycle.
func WireDesign(n int, modelID string, samplesPerCycle int) *sim.Design {
	cells := []sim.Cell{{Position: [2]float64{0, 0}, Typ: sim.CellInput, DotProbabilityDistribution: []float64{0, 0, 0, 0}, Label: "A"}}
	for i := 1; i <= n; i++ {
		cells = append(cells, sim.Cell{Position: [2]float64{float64(20 * i), 0}, Typ: sim.CellNormal, DotProbabilityDistribution: []float64{0, 0, 0, 0}})
	}
	cells = append(cells, sim.Cell{Position: [2]float64{float64(20 * (n + 1)), 0}, Typ: sim.CellOutput, DotProbabilityDistribution: []float64{0, 0, 0, 0}, Label: "Y"})

	clock, _ := json.Marshal(map[string]any{"samples_per_cycle": samplesPerCycle})
	return &sim.Design{
		QCACoreVersion: sim.CoreVersion,
		Layers: []sim.Layer{{
			Name:               "Main Cell Layer",
			Visible:            true,
			CellArchitectureID: QuadArchID,
			Cells:              cells,
		}},
		CellArchitectures: map[string]sim.CellArchitecture{QuadArchID: QuadArchitecture()},
		SimulationSettings: sim.SimulationSettings{
			SelectedSimulationModelID: modelID,
			SimulationModelSettings: map[string]sim.ModelSettings{
				modelID: {ClockGeneratorSettings: clock},
			},
		},
	}
}

// ResultBuilder assembles a SimulationResult by hand for codec, query and
// truth table tests.
type ResultBuilder struct {
	r sim.SimulationResult
}

// NewResult starts a result of numSamples samples.
func NewResult(numSamples int) *ResultBuilder {
	return &ResultBuilder{r: sim.SimulationResult{
		Metadata: sim.SimulationMetadata{
			QCACoreVersion: sim.CoreVersion,
			StartTime:      time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
			Duration:       sim.TimeDelta{Seconds: 1, Nanoseconds: 500},
			NumSamples:     numSamples,
		},
	}}
}

// Clock appends a clock channel.
func (b *ResultBuilder) Clock(values ...float64) *ResultBuilder {
	b.r.ClockData = append(b.r.ClockData, values)
	return b
}

// Cell appends a stored cell. values are sample-major.
func (b *ResultBuilder) Cell(idx sim.CellIndex, width int, values ...float64) *ResultBuilder {
	b.r.Metadata.StoredCells = append(b.r.Metadata.StoredCells, idx)
	b.r.CellsData = append(b.r.CellsData, sim.CellData{Index: idx, Width: width, Data: values})
	return b
}

// Build returns the result, failing the test if its shape is invalid.
func (b *ResultBuilder) Build(t *testing.T) *sim.SimulationResult {
	t.Helper()
	r := b.r
	if err := r.Validate(); err != nil {
		t.Fatalf("fixture result is invalid: %v", err)
	}
	return &r
}

// TestdataPath resolves name under the repository's testdata directory,
// relative to this source file: sim/internal/testutil/ → testdata/.
func TestdataPath(t *testing.T, name string) string {
	t.Helper()
	_, thisFile, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("Failed to get current file path")
	}
	return filepath.Join(filepath.Dir(thisFile), "..", "..", "..", "testdata", name)
}

// LoadDesign reads a design JSON file from testdata.
func LoadDesign(t *testing.T, name string) *sim.Design {
	t.Helper()
	data, err := os.ReadFile(TestdataPath(t, name))
	if err != nil {
		t.Fatalf("Failed to read design %s: %v", name, err)
	}
	var d sim.Design
	if err := json.Unmarshal(data, &d); err != nil {
		t.Fatalf("Failed to parse design %s: %v", name, err)
	}
	return &d
}

// AssertFloat64Equal compares two float64 values with relative tolerance.
func AssertFloat64Equal(t *testing.T, name string, want, got, relTol float64) {
	t.Helper()
	if want == 0 && got == 0 {
		return
	}
	diff := math.Abs(want - got)
	maxVal := math.Max(math.Abs(want), math.Abs(got))
	if diff/maxVal > relTol {
		t.Errorf("%s: got %v, want %v (diff=%v, relDiff=%v)", name, got, want, diff, diff/maxVal)
	}
}
