// Package pipeline drives a design's selected model on a background
// goroutine and carries its result through persistence.
package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qca-lab/qca-sim/sim"
)

// progressBuffer is how many Running events may queue before the model
// loop starts dropping intermediate ones. Terminal events are never dropped.
const progressBuffer = 64

// Run is one launched simulation. Progress is consumable once; Wait
// joins the computation.
type Run struct {
	ID      uuid.UUID
	ModelID string

	progress chan sim.ProgressEvent
	done     chan struct{}
	cancel   context.CancelFunc

	result *sim.SimulationResult
	err    error

	drainOnce sync.Once
}

// Launch resolves the design's selected model, applies both settings
// channels and starts the run on its own goroutine. Resolution and
// settings failures are returned before anything is started.
func Launch(ctx context.Context, design *sim.Design) (*Run, error) {
	if err := design.Validate(); err != nil {
		return nil, err
	}
	modelID, err := design.SelectedModelID()
	if err != nil {
		return nil, err
	}
	model, err := sim.NewModel(modelID)
	if err != nil {
		return nil, err
	}
	_, settings, err := design.SelectedSettings()
	if err != nil {
		return nil, err
	}
	if err := sim.ApplySettings(model, settings); err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	r := &Run{
		ID:       uuid.New(),
		ModelID:  modelID,
		progress: make(chan sim.ProgressEvent, progressBuffer),
		done:     make(chan struct{}),
		cancel:   cancel,
	}
	go r.execute(runCtx, model, design.Layers, design.CellArchitectures)
	return r, nil
}

func (r *Run) execute(ctx context.Context, model sim.SimulationModel, layers []sim.Layer, archs map[string]sim.CellArchitecture) {
	defer close(r.done)
	defer r.cancel()

	last, total := 0, 0
	report := func(current, totalSamples int) {
		if current < last {
			current = last
		}
		last, total = current, totalSamples
		select {
		case r.progress <- sim.ProgressEvent{State: sim.ProgressRunning, CurrentSample: current, TotalSamples: totalSamples}:
		default:
			// Consumer is behind; a later event supersedes this one.
		}
	}

	result, err := safeRun(ctx, model, layers, archs, report)
	if err != nil {
		r.err = fmt.Errorf("%w: model %q: %w", sim.ErrRunFailed, r.ModelID, err)
		r.progress <- sim.ProgressEvent{State: sim.ProgressFailed, CurrentSample: last, TotalSamples: total, Err: r.err}
	} else {
		r.result = result
		r.progress <- sim.ProgressEvent{State: sim.ProgressCompleted, CurrentSample: total, TotalSamples: total}
	}
	close(r.progress)
}

// safeRun converts a panicking model into an error.
func safeRun(ctx context.Context, model sim.SimulationModel, layers []sim.Layer, archs map[string]sim.CellArchitecture, report sim.ProgressFunc) (result *sim.SimulationResult, err error) {
	defer func() {
		if p := recover(); p != nil {
			logrus.Errorf("[pipeline] model %q panicked: %v", model.ID(), p)
			result, err = nil, fmt.Errorf("model panicked: %v", p)
		}
	}()
	result, err = model.Run(ctx, layers, archs, report)
	if err == nil && result == nil {
		err = fmt.Errorf("model returned no result")
	}
	if err == nil {
		err = result.Validate()
	}
	return result, err
}

// Progress returns the run's event stream. It ends with exactly one
// Completed or Failed event and is closed when the run stops.
func (r *Run) Progress() <-chan sim.ProgressEvent {
	return r.progress
}

// Cancel asks the model to stop at its next sample boundary.
func (r *Run) Cancel() {
	r.cancel()
}

// Wait drains any progress the caller has not consumed, then returns the
// result. Failures wrap sim.ErrRunFailed.
func (r *Run) Wait() (*sim.SimulationResult, error) {
	r.drainOnce.Do(func() {
		for range r.progress {
		}
	})
	<-r.done
	return r.result, r.err
}
