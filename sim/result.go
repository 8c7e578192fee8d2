package sim

import (
	"fmt"
	"time"
)

// CoreVersion is recorded in designs and simulation metadata produced by
// this build.
const CoreVersion = "0.3.0"

// ClockChannels is the number of clock zones every run produces.
const ClockChannels = 4

// ProgressState tags a ProgressEvent.
type ProgressState string

const (
	ProgressRunning   ProgressState = "running"
	ProgressCompleted ProgressState = "completed"
	ProgressFailed    ProgressState = "failed"
)

// ProgressEvent reports how far a run has advanced. Events of one run are
// delivered with non-decreasing CurrentSample.
type ProgressEvent struct {
	State         ProgressState `json:"state"`
	CurrentSample int           `json:"current_sample"`
	TotalSamples  int           `json:"total_samples"`
	Err           error         `json:"-"`
}

// Percent returns progress in [0, 100].
func (e ProgressEvent) Percent() float64 {
	if e.TotalSamples <= 0 {
		return 0
	}
	return float64(e.CurrentSample) / float64(e.TotalSamples) * 100.0
}

// ProgressFunc receives progress from a model's step loop.
type ProgressFunc func(currentSample, totalSamples int)

// TimeDelta is a duration split into whole seconds and the nanosecond
// remainder.
type TimeDelta struct {
	Seconds     int64 `json:"seconds"`
	Nanoseconds int32 `json:"nanoseconds"`
}

// NewTimeDelta converts a time.Duration.
func NewTimeDelta(d time.Duration) TimeDelta {
	return TimeDelta{Seconds: int64(d / time.Second), Nanoseconds: int32(d % time.Second)}
}

// Duration converts back to a time.Duration.
func (t TimeDelta) Duration() time.Duration {
	return time.Duration(t.Seconds)*time.Second + time.Duration(t.Nanoseconds)
}

// SimulationMetadata describes the shape of a stored result. StoredCells
// defines both the persisted order and the default query order.
type SimulationMetadata struct {
	QCACoreVersion string      `json:"qca_core_version"`
	StartTime      time.Time   `json:"start_time"`
	Duration       TimeDelta   `json:"duration"`
	NumSamples     int         `json:"num_samples"`
	StoredCells    []CellIndex `json:"stored_cells"`
}

// CellData is the sample array of one stored cell. Samples are laid out
// sample-major: sample s occupies Data[s*Width : s*Width+Width].
type CellData struct {
	Index CellIndex
	Width int
	Data  []float64
}

// Sample returns component k of sample s.
func (c CellData) Sample(s, k int) float64 {
	return c.Data[s*c.Width+k]
}

// SimulationResult is the immutable output of one run.
type SimulationResult struct {
	Metadata  SimulationMetadata
	ClockData [][]float64
	CellsData []CellData
}

// Validate checks the result's internal shape: one data block per stored
// cell, every clock array and cell array sized by NumSamples.
func (r *SimulationResult) Validate() error {
	n := r.Metadata.NumSamples
	if n < 0 {
		return fmt.Errorf("num_samples %d is negative", n)
	}
	if len(r.ClockData) > ClockChannels {
		return fmt.Errorf("%d clock channels, at most %d supported", len(r.ClockData), ClockChannels)
	}
	for i, clock := range r.ClockData {
		if len(clock) != n {
			return fmt.Errorf("clock channel %d has %d samples, expected %d", i, len(clock), n)
		}
	}
	if len(r.CellsData) != len(r.Metadata.StoredCells) {
		return fmt.Errorf("%d cell arrays for %d stored cells", len(r.CellsData), len(r.Metadata.StoredCells))
	}
	for i, cell := range r.CellsData {
		if cell.Index != r.Metadata.StoredCells[i] {
			return fmt.Errorf("cell array %d is %s, metadata lists %s", i, cell.Index, r.Metadata.StoredCells[i])
		}
		if cell.Width <= 0 {
			return fmt.Errorf("cell %s has width %d", cell.Index, cell.Width)
		}
		if len(cell.Data) != cell.Width*n {
			return fmt.Errorf("cell %s has %d values, expected %d", cell.Index, len(cell.Data), cell.Width*n)
		}
	}
	return nil
}

// ValidateAgainst checks that every stored cell resolves in the design and
// that its width matches the architecture.
func (r *SimulationResult) ValidateAgainst(d *Design) error {
	for i, idx := range r.Metadata.StoredCells {
		_, arch, err := d.CellAt(idx)
		if err != nil {
			return err
		}
		if i < len(r.CellsData) && r.CellsData[i].Width != arch.FeatureWidth() {
			return fmt.Errorf("cell %s has width %d, architecture %q implies %d",
				idx, r.CellsData[i].Width, arch.Name, arch.FeatureWidth())
		}
	}
	return nil
}
