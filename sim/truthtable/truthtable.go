// Package truthtable derives an input to output logic mapping from a stored
// simulation. The timeline is cut into stable windows where the reference
// clock is latched; each window contributes one row sampled at per-cell
// delays and binarized against a logical threshold.
package truthtable

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/qca-lab/qca-sim/sim"
)

// Loader performs a full store read.
type Loader interface {
	Load(ctx context.Context, key string) (*sim.Design, *sim.SimulationResult, error)
}

// Request selects the cells to observe and the thresholds to apply.
// CellClockDelay is keyed by the "<layer>-<cell>" form and must cover every
// requested cell.
type Request struct {
	Filename         string          `json:"filename,omitempty"`
	Cells            []sim.CellIndex `json:"cells"`
	CellClockDelay   map[string]int  `json:"cell_clock_delay"`
	ClockThreshold   float64         `json:"clock_threshold"`
	LogicalThreshold float64         `json:"logical_threshold"`
}

// Column is one binarized component of a requested cell.
type Column struct {
	Cell      sim.CellIndex `json:"cell"`
	Component int           `json:"component"`
	Name      string        `json:"name"`
}

// Row is a distinct (inputs, outputs) pattern and the number of windows
// that produced it.
type Row struct {
	Inputs  []int `json:"inputs"`
	Outputs []int `json:"outputs"`
	Count   int   `json:"count"`
}

// TruthTable lists rows in the order their pattern first appeared.
type TruthTable struct {
	Inputs  []Column `json:"inputs"`
	Outputs []Column `json:"outputs"`
	Rows    []Row    `json:"rows"`
	// Windows is the number of stable windows sampled; windows whose delayed
	// samples fall past the end of the run are not counted.
	Windows int `json:"windows"`
}

// observed is a requested cell resolved against the store.
type observed struct {
	data    sim.CellData
	delay   int
	channel int
	columns []Column
}

// Resolve reads req.Filename and derives its table.
func Resolve(ctx context.Context, loader Loader, req Request) (*TruthTable, error) {
	if strings.TrimSpace(req.Filename) == "" {
		return nil, fmt.Errorf("%w: filename", sim.ErrMissingParameter)
	}
	design, result, err := loader.Load(ctx, req.Filename)
	if err != nil {
		return nil, err
	}
	return Derive(design, result, req)
}

// ParseDelays converts the textual delay mapping. Keys must be valid cell
// indices and delays non-negative.
func ParseDelays(raw map[string]int) (map[sim.CellIndex]int, error) {
	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make(map[sim.CellIndex]int, len(raw))
	for _, k := range keys {
		idx, err := sim.ParseCellIndex(k)
		if err != nil {
			return nil, fmt.Errorf("cell_clock_delay key: %w", err)
		}
		if raw[k] < 0 {
			return nil, fmt.Errorf("%w: cell_clock_delay[%s] is negative (%d)", sim.ErrInvalidRequest, k, raw[k])
		}
		out[idx] = raw[k]
	}
	return out, nil
}

// Derive builds the table for req from an already loaded store.
func Derive(design *sim.Design, result *sim.SimulationResult, req Request) (*TruthTable, error) {
	if len(req.Cells) == 0 {
		return nil, fmt.Errorf("%w: no cells requested", sim.ErrInvalidRequest)
	}
	if math.IsNaN(req.ClockThreshold) || math.IsNaN(req.LogicalThreshold) {
		return nil, fmt.Errorf("%w: thresholds must be numbers", sim.ErrInvalidRequest)
	}
	delays, err := ParseDelays(req.CellClockDelay)
	if err != nil {
		return nil, err
	}

	stored := make(map[sim.CellIndex]int, len(result.CellsData))
	for i, c := range result.CellsData {
		stored[c.Index] = i
	}

	var inputs, outputs []observed
	for _, idx := range req.Cells {
		delay, ok := delays[idx]
		if !ok {
			return nil, fmt.Errorf("%w: cell %s", sim.ErrMissingDelayMapping, idx)
		}
		cell, arch, err := design.CellAt(idx)
		if err != nil {
			return nil, err
		}
		pos, ok := stored[idx]
		if !ok {
			return nil, fmt.Errorf("%w: cell %s was not stored by this run", sim.ErrStaleCellReference, idx)
		}
		data := result.CellsData[pos]
		if data.Width != arch.FeatureWidth() || len(data.Data) != data.Width*result.Metadata.NumSamples {
			return nil, fmt.Errorf("%w: cell %s holds %d values of width %d", sim.ErrStoreFormat, idx, len(data.Data), data.Width)
		}
		o := observed{data: data, delay: delay, channel: cell.ClockChannel(), columns: columnsFor(idx, cell, data.Width)}
		if cell.Typ == sim.CellInput {
			inputs = append(inputs, o)
		} else {
			outputs = append(outputs, o)
		}
	}

	ref := referenceChannel(inputs, outputs)
	if ref >= len(result.ClockData) {
		return nil, fmt.Errorf("%w: clock channel %d not present (%d stored)", sim.ErrStoreFormat, ref, len(result.ClockData))
	}

	table := &TruthTable{Inputs: flatten(inputs), Outputs: flatten(outputs)}
	seen := map[string]int{}
	n := result.Metadata.NumSamples
	for _, start := range windowStarts(result.ClockData[ref], req.ClockThreshold) {
		in, okIn := levels(inputs, start, n, req.LogicalThreshold)
		out, okOut := levels(outputs, start, n, req.LogicalThreshold)
		if !okIn || !okOut {
			continue
		}
		table.Windows++
		key := patternKey(in, out)
		if r, ok := seen[key]; ok {
			table.Rows[r].Count++
			continue
		}
		seen[key] = len(table.Rows)
		table.Rows = append(table.Rows, Row{Inputs: in, Outputs: out, Count: 1})
	}
	return table, nil
}

func columnsFor(idx sim.CellIndex, cell sim.Cell, width int) []Column {
	name := cell.Label
	if name == "" {
		name = idx.String()
	}
	cols := make([]Column, width)
	for k := range cols {
		cols[k] = Column{Cell: idx, Component: k, Name: name}
		if width > 1 {
			cols[k].Name = fmt.Sprintf("%s.%d", name, k)
		}
	}
	return cols
}

func flatten(obs []observed) []Column {
	cols := []Column{}
	for _, o := range obs {
		cols = append(cols, o.columns...)
	}
	return cols
}

// referenceChannel is the clock zone of the first input, or of the first
// output when no inputs were requested.
func referenceChannel(inputs, outputs []observed) int {
	if len(inputs) > 0 {
		return inputs[0].channel
	}
	return outputs[0].channel
}

// windowStarts returns the first sample of every maximal run of samples at
// or above threshold.
func windowStarts(clock []float64, threshold float64) []int {
	var starts []int
	inside := false
	for s, v := range clock {
		high := v >= threshold
		if high && !inside {
			starts = append(starts, s)
		}
		inside = high
	}
	return starts
}

// levels samples every column at start plus its cell's delay. ok is false
// when any sample lies past the end of the run.
func levels(obs []observed, start, numSamples int, threshold float64) ([]int, bool) {
	out := []int{}
	for _, o := range obs {
		if o.delay >= numSamples-start {
			return nil, false
		}
		s := start + o.delay
		for k := 0; k < o.data.Width; k++ {
			level := 0
			if o.data.Sample(s, k) > threshold {
				level = 1
			}
			out = append(out, level)
		}
	}
	return out, true
}

func patternKey(in, out []int) string {
	var b strings.Builder
	for _, v := range in {
		b.WriteByte(byte('0' + v))
	}
	b.WriteByte('|')
	for _, v := range out {
		b.WriteByte(byte('0' + v))
	}
	return b.String()
}
