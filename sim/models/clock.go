package models

import (
	"fmt"
	"math"

	"github.com/qca-lab/qca-sim/sim"
)

// Clock waveform shapes.
const (
	ClockShapeSine      = "sine"
	ClockShapeTrapezoid = "trapezoid"
)

// trapezoidGain steepens the sine before clipping so each zone spends part
// of every cycle fully latched and part fully relaxed.
const trapezoidGain = 2.0

// minSamplesPerCycle is the lowest resolution that still separates the
// four phases.
const minSamplesPerCycle = 4

// maxAutoInputs bounds the input count for which NumCycles=0 enumerates
// every input combination.
const maxAutoInputs = 10

// ClockGeneratorSettings configures the four-phase clock shared by all
// models. Waveforms are normalized: 1 latches a zone, 0 relaxes it.
type ClockGeneratorSettings struct {
	// NumCycles is the number of clock cycles to simulate; 0 derives it
	// from the input count so every input combination is visited once.
	NumCycles       int     `json:"num_cycles"`
	SamplesPerCycle int     `json:"samples_per_cycle"`
	ClockLow        float64 `json:"clock_low"`  // tunneling energy when latched, eV
	ClockHigh       float64 `json:"clock_high"` // tunneling energy when relaxed, eV
	Shape           string  `json:"shape"`
}

// DefaultClockGeneratorSettings returns the stock clock configuration.
func DefaultClockGeneratorSettings() ClockGeneratorSettings {
	return ClockGeneratorSettings{
		NumCycles:       0,
		SamplesPerCycle: 100,
		ClockLow:        2.4e-4,
		ClockHigh:       6.1e-3,
		Shape:           ClockShapeTrapezoid,
	}
}

// Validate checks the clock configuration.
func (c ClockGeneratorSettings) Validate() error {
	if c.NumCycles < 0 {
		return fmt.Errorf("num_cycles must be non-negative, got %d", c.NumCycles)
	}
	if c.SamplesPerCycle < minSamplesPerCycle {
		return fmt.Errorf("samples_per_cycle must be at least %d, got %d", minSamplesPerCycle, c.SamplesPerCycle)
	}
	if c.ClockLow <= 0 || c.ClockHigh <= c.ClockLow {
		return fmt.Errorf("clock energies must satisfy 0 < clock_low < clock_high, got %g and %g", c.ClockLow, c.ClockHigh)
	}
	if c.Shape != ClockShapeSine && c.Shape != ClockShapeTrapezoid {
		return fmt.Errorf("unknown clock shape %q", c.Shape)
	}
	return nil
}

func clockGeneratorOptions() sim.OptionsList {
	d := DefaultClockGeneratorSettings()
	return sim.OptionsList{
		sim.HeaderOption("clock_header", "Clock generator"),
		sim.NumberInput("num_cycles", "Cycles", "Clock cycles to simulate; 0 enumerates every input combination",
			float64(d.NumCycles), 0, 4096, true, ""),
		sim.NumberInput("samples_per_cycle", "Samples per cycle", "Samples taken in each clock cycle",
			float64(d.SamplesPerCycle), minSamplesPerCycle, 100000, true, ""),
		sim.NumberInput("clock_low", "Clock low", "Tunneling energy while a zone is latched",
			d.ClockLow, 0, 1, false, "eV"),
		sim.NumberInput("clock_high", "Clock high", "Tunneling energy while a zone is relaxed",
			d.ClockHigh, 0, 1, false, "eV"),
		sim.SelectInput("shape", "Waveform", []sim.SelectChoice{
			{Label: "Sine", Value: ClockShapeSine},
			{Label: "Trapezoid", Value: ClockShapeTrapezoid},
		}, d.Shape),
	}
}

// cycles resolves NumCycles against the number of driven inputs.
func (c ClockGeneratorSettings) cycles(numInputs int) int {
	if c.NumCycles > 0 {
		return c.NumCycles
	}
	n := numInputs
	if n > maxAutoInputs {
		n = maxAutoInputs
	}
	// One extra cycle lets the last combination reach the outputs.
	return (1 << n) + 1
}

// Level returns the normalized clock value of channel at sample s.
func (c ClockGeneratorSettings) Level(channel, s int) float64 {
	phase := 2*math.Pi*float64(s)/float64(c.SamplesPerCycle) - float64(channel)*math.Pi/2
	v := math.Sin(phase)
	if c.Shape == ClockShapeTrapezoid {
		v = math.Max(-1, math.Min(1, trapezoidGain*v))
	}
	return 0.5 + 0.5*v
}

// Waveforms returns ClockChannels arrays of numSamples normalized values.
func (c ClockGeneratorSettings) Waveforms(numSamples int) [][]float64 {
	out := make([][]float64, sim.ClockChannels)
	for ch := range out {
		out[ch] = make([]float64, numSamples)
		for s := 0; s < numSamples; s++ {
			out[ch][s] = c.Level(ch, s)
		}
	}
	return out
}

// Gamma maps a normalized clock level to a tunneling energy in eV.
func (c ClockGeneratorSettings) Gamma(level float64) float64 {
	return c.ClockHigh - level*(c.ClockHigh-c.ClockLow)
}

// InputPolarization is the polarization an input cell holds at sample s:
// input i follows bit i of the current cycle number.
func (c ClockGeneratorSettings) InputPolarization(input, s int) float64 {
	cycle := s / c.SamplesPerCycle
	if (cycle>>uint(input))&1 == 1 {
		return 1
	}
	return -1
}
