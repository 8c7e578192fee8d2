package pipeline

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/catalog"
	"github.com/qca-lab/qca-sim/sim/store"
)

// Report describes a run that was persisted.
type Report struct {
	RunID    uuid.UUID              `json:"run_id"`
	ModelID  string                 `json:"model_id"`
	StoreKey string                 `json:"store_key"`
	Size     int64                  `json:"size_bytes"`
	Metadata sim.SimulationMetadata `json:"metadata"`
	Elapsed  time.Duration          `json:"-"`
}

// Executor runs a design end to end: launch, drain progress, join, persist,
// record. Execute returns only once the store is written.
type Executor struct {
	Repo    *store.Repository
	Catalog catalog.Catalog
	// OnFinish, when set, observes every attempt after it ends.
	OnFinish func(modelID string, elapsed time.Duration, err error)
}

// NewExecutor wires a repository and catalog. A nil catalog disables
// recording.
func NewExecutor(repo *store.Repository, cat catalog.Catalog) *Executor {
	if cat == nil {
		cat = catalog.Nop{}
	}
	return &Executor{Repo: repo, Catalog: cat}
}

// UnknownModel is reported to OnFinish in place of a selected model id that
// is not registered.
const UnknownModel = "unknown"

// Execute runs design and persists the result under a key unique to this
// run. onProgress, if non-nil, receives every delivered event in order.
func (e *Executor) Execute(ctx context.Context, design *sim.Design, onProgress func(sim.ProgressEvent)) (*Report, error) {
	start := time.Now()
	run, err := Launch(ctx, design)
	if err != nil {
		modelID := design.SimulationSettings.SelectedSimulationModelID
		logrus.Warnf("[pipeline] run rejected (model %q): %v", modelID, err)
		if errors.Is(err, sim.ErrModelNotFound) {
			modelID = UnknownModel
		}
		e.finish(modelID, start, err)
		return nil, err
	}
	key := e.Repo.NewKey(run.ID)
	logrus.Infof("[pipeline] run %s started: model=%s store=%s", run.ID, run.ModelID, key)
	if err := e.Catalog.Begin(ctx, catalog.RunRecord{ID: run.ID, ModelID: run.ModelID, StoreKey: key, StartedAt: start.UTC()}); err != nil {
		logrus.Warnf("[pipeline] run %s: catalog begin: %v", run.ID, err)
	}

	lastPct := -1
	for ev := range run.Progress() {
		if onProgress != nil {
			onProgress(ev)
		}
		if pct := int(ev.Percent()); pct/10 != lastPct/10 {
			lastPct = pct
			logrus.Debugf("[pipeline] run %s: %d/%d samples (%d%%)", run.ID, ev.CurrentSample, ev.TotalSamples, pct)
		}
	}
	result, err := run.Wait()
	if err != nil {
		logrus.Warnf("[pipeline] run %s failed: %v", run.ID, err)
		e.record(run.ID, nil, err)
		e.finish(run.ModelID, start, err)
		return nil, err
	}

	info, err := e.Repo.Save(ctx, key, design, result)
	if err != nil {
		logrus.Warnf("[pipeline] run %s: %v", run.ID, err)
		e.record(run.ID, result, err)
		e.finish(run.ModelID, start, err)
		return nil, err
	}
	e.record(run.ID, result, nil)
	elapsed := time.Since(start)
	logrus.Infof("[pipeline] run %s completed in %s: %d samples, %d stored cells, %d bytes",
		run.ID, elapsed.Round(time.Millisecond), result.Metadata.NumSamples, len(result.Metadata.StoredCells), info.Size)
	e.finish(run.ModelID, start, nil)
	return &Report{
		RunID:    run.ID,
		ModelID:  run.ModelID,
		StoreKey: key,
		Size:     info.Size,
		Metadata: result.Metadata,
		Elapsed:  elapsed,
	}, nil
}

// record writes the outcome with a fresh context so a cancelled request
// still leaves a terminal row.
func (e *Executor) record(id uuid.UUID, result *sim.SimulationResult, runErr error) {
	out := catalog.Outcome{Status: catalog.StatusCompleted, FinishedAt: time.Now().UTC()}
	if result != nil {
		out.NumSamples = result.Metadata.NumSamples
		out.StoredCells = len(result.Metadata.StoredCells)
	}
	if runErr != nil {
		out.Status = catalog.StatusFailed
		out.ErrorKind = sim.KindOf(runErr)
		out.Error = runErr.Error()
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Catalog.Finish(ctx, id, out); err != nil {
		logrus.Warnf("[pipeline] run %s: catalog finish: %v", id, err)
	}
}

func (e *Executor) finish(modelID string, start time.Time, err error) {
	if e.OnFinish != nil {
		e.OnFinish(modelID, time.Since(start), err)
	}
}
