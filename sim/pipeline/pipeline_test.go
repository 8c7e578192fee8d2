package pipeline_test

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/blob/memory"
	"github.com/qca-lab/qca-sim/sim/catalog"
	"github.com/qca-lab/qca-sim/sim/internal/testutil"
	"github.com/qca-lab/qca-sim/sim/models"
	"github.com/qca-lab/qca-sim/sim/pipeline"
	"github.com/qca-lab/qca-sim/sim/store"
)

// stubModel reports a scripted progress sequence and returns a fixed
// result, or fails/panics on demand.
type stubModel struct {
	steps   []int
	total   int
	fail    error
	panics  bool
	blockOn chan struct{}
}

func (m *stubModel) ID() string                                     { return "stub" }
func (m *stubModel) Name() string                                   { return "Stub" }
func (m *stubModel) ModelOptions() sim.OptionsList                  { return nil }
func (m *stubModel) MarshalModelSettings() (string, error)          { return "{}", nil }
func (m *stubModel) UnmarshalModelSettings(string) error            { return nil }
func (m *stubModel) ClockGeneratorOptions() sim.OptionsList         { return nil }
func (m *stubModel) MarshalClockGeneratorSettings() (string, error) { return "{}", nil }
func (m *stubModel) UnmarshalClockGeneratorSettings(s string) error {
	var v map[string]any
	return json.Unmarshal([]byte(s), &v)
}

func (m *stubModel) Run(ctx context.Context, layers []sim.Layer, _ map[string]sim.CellArchitecture, report sim.ProgressFunc) (*sim.SimulationResult, error) {
	for _, s := range m.steps {
		report(s, m.total)
	}
	if m.blockOn != nil {
		select {
		case <-m.blockOn:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if m.panics {
		panic("boom")
	}
	if m.fail != nil {
		return nil, m.fail
	}
	n := m.total
	clock := make([]float64, n)
	in := make([]float64, n)
	out := make([]float64, n)
	return &sim.SimulationResult{
		Metadata: sim.SimulationMetadata{
			QCACoreVersion: sim.CoreVersion,
			NumSamples:     n,
			StoredCells:    []sim.CellIndex{{Layer: 0, Cell: 0}, {Layer: 0, Cell: 2}},
		},
		ClockData: [][]float64{clock},
		CellsData: []sim.CellData{
			{Index: sim.CellIndex{Layer: 0, Cell: 0}, Width: 1, Data: in},
			{Index: sim.CellIndex{Layer: 0, Cell: 2}, Width: 1, Data: out},
		},
	}, nil
}

func useStub(t *testing.T, m *stubModel) *sim.Design {
	t.Helper()
	prev := sim.NewModelsFunc
	sim.NewModelsFunc = func() []sim.SimulationModel { return []sim.SimulationModel{m} }
	t.Cleanup(func() { sim.NewModelsFunc = prev })
	return testutil.WireDesign(1, "stub", 8)
}

func TestLaunch_ProgressIsMonotonicAndEndsBeforeJoin(t *testing.T) {
	// GIVEN a model whose raw progress goes backwards once
	d := useStub(t, &stubModel{steps: []int{0, 2, 5, 3, 8}, total: 8})

	run, err := pipeline.Launch(context.Background(), d)
	require.NoError(t, err)

	// WHEN the stream is drained
	var events []sim.ProgressEvent
	for ev := range run.Progress() {
		events = append(events, ev)
	}
	result, err := run.Wait()

	// THEN samples never decrease, the last event is terminal, and the
	// result is available only after the stream closed
	require.NoError(t, err)
	require.NotNil(t, result)
	require.NotEmpty(t, events)
	for i := 1; i < len(events); i++ {
		if events[i].CurrentSample < events[i-1].CurrentSample {
			t.Fatalf("progress decreased at %d: %+v", i, events)
		}
	}
	last := events[len(events)-1]
	assert.Equal(t, sim.ProgressCompleted, last.State)
	assert.Equal(t, 8, last.CurrentSample)
	for _, ev := range events[:len(events)-1] {
		assert.Equal(t, sim.ProgressRunning, ev.State)
	}
}

func TestLaunch_WaitWithoutDraining(t *testing.T) {
	steps := make([]int, 500)
	for i := range steps {
		steps[i] = i
	}
	d := useStub(t, &stubModel{steps: steps, total: 500})
	run, err := pipeline.Launch(context.Background(), d)
	require.NoError(t, err)

	done := make(chan struct{})
	go func() {
		defer close(done)
		_, err = run.Wait()
	}()
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Wait blocked on an undrained progress stream")
	}
	require.NoError(t, err)
}

func TestLaunch_FailureWrapsRunFailed(t *testing.T) {
	cause := errors.New("solver diverged")
	d := useStub(t, &stubModel{steps: []int{0, 1}, total: 4, fail: cause})
	run, err := pipeline.Launch(context.Background(), d)
	require.NoError(t, err)

	var last sim.ProgressEvent
	for ev := range run.Progress() {
		last = ev
	}
	assert.Equal(t, sim.ProgressFailed, last.State)
	assert.ErrorIs(t, last.Err, sim.ErrRunFailed)

	_, err = run.Wait()
	assert.ErrorIs(t, err, sim.ErrRunFailed)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "run_failed", sim.KindOf(err))
}

func TestLaunch_PanicBecomesRunFailed(t *testing.T) {
	d := useStub(t, &stubModel{total: 4, panics: true})
	run, err := pipeline.Launch(context.Background(), d)
	require.NoError(t, err)
	_, err = run.Wait()
	assert.ErrorIs(t, err, sim.ErrRunFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestLaunch_Cancel(t *testing.T) {
	d := useStub(t, &stubModel{steps: []int{0}, total: 4, blockOn: make(chan struct{})})
	run, err := pipeline.Launch(context.Background(), d)
	require.NoError(t, err)
	run.Cancel()
	_, err = run.Wait()
	assert.ErrorIs(t, err, sim.ErrRunFailed)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestLaunch_RejectsBeforeStarting(t *testing.T) {
	t.Run("unknown model", func(t *testing.T) {
		d := testutil.WireDesign(1, models.ICHAID, 8)
		d.SimulationSettings.SelectedSimulationModelID = "nope"
		_, err := pipeline.Launch(context.Background(), d)
		assert.ErrorIs(t, err, sim.ErrModelNotFound)
		assert.NotErrorIs(t, err, sim.ErrSettingsParse)
	})
	t.Run("unknown model without settings entry", func(t *testing.T) {
		d := testutil.WireDesign(1, "nope", 8)
		d.SimulationSettings.SimulationModelSettings = map[string]sim.ModelSettings{}
		_, err := pipeline.Launch(context.Background(), d)
		assert.ErrorIs(t, err, sim.ErrModelNotFound)
	})
	t.Run("known model without settings entry", func(t *testing.T) {
		d := testutil.WireDesign(1, models.ICHAID, 8)
		d.SimulationSettings.SimulationModelSettings = map[string]sim.ModelSettings{}
		_, err := pipeline.Launch(context.Background(), d)
		assert.ErrorIs(t, err, sim.ErrSettingsParse)
	})
	t.Run("no model selected", func(t *testing.T) {
		d := testutil.WireDesign(1, models.ICHAID, 8)
		d.SimulationSettings.SelectedSimulationModelID = ""
		_, err := pipeline.Launch(context.Background(), d)
		assert.ErrorIs(t, err, sim.ErrMissingParameter)
	})
	t.Run("bad settings", func(t *testing.T) {
		d := testutil.WireDesign(1, models.ICHAID, 8)
		d.SimulationSettings.SimulationModelSettings[models.ICHAID] = sim.ModelSettings{
			ModelSettings: json.RawMessage(`{"damping": "lots"}`),
		}
		_, err := pipeline.Launch(context.Background(), d)
		assert.ErrorIs(t, err, sim.ErrSettingsParse)
		assert.Contains(t, err.Error(), "damping")
	})
	t.Run("missing architecture", func(t *testing.T) {
		d := testutil.WireDesign(1, models.ICHAID, 8)
		d.Layers[0].CellArchitectureID = "gone"
		_, err := pipeline.Launch(context.Background(), d)
		assert.ErrorIs(t, err, sim.ErrMissingArchitecture)
	})
}

func newExecutor(t *testing.T) (*pipeline.Executor, *store.Repository, catalog.Catalog) {
	t.Helper()
	repo := store.NewRepository(memory.New(), "runs/")
	cat, err := catalog.OpenSQLite(context.Background(), ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = cat.Close() })
	return pipeline.NewExecutor(repo, cat), repo, cat
}

func TestExecute_PersistsAndRecords(t *testing.T) {
	// GIVEN a real model over a small wire
	exec, repo, cat := newExecutor(t)
	var finished []error
	exec.OnFinish = func(_ string, _ time.Duration, err error) { finished = append(finished, err) }
	d := testutil.WireDesign(1, models.FullBasisID, 8)

	// WHEN it is executed
	var events int
	report, err := exec.Execute(context.Background(), d, func(sim.ProgressEvent) { events++ })
	require.NoError(t, err)

	// THEN the store is readable and the catalog row is completed
	assert.Positive(t, events)
	_, result, err := repo.Load(context.Background(), report.StoreKey)
	require.NoError(t, err)
	assert.Equal(t, report.Metadata.NumSamples, result.Metadata.NumSamples)
	assert.Equal(t, report.Metadata.StoredCells, result.Metadata.StoredCells)

	rec, err := cat.Get(context.Background(), report.RunID)
	require.NoError(t, err)
	assert.Equal(t, catalog.StatusCompleted, rec.Status)
	assert.Equal(t, report.StoreKey, rec.StoreKey)
	assert.Equal(t, []error{nil}, finished)
}

func TestExecute_ConcurrentRunsGetDistinctStores(t *testing.T) {
	exec, repo, _ := newExecutor(t)
	const n = 4
	keys := make(chan string, n)
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		go func() {
			r, err := exec.Execute(context.Background(), testutil.WireDesign(1, models.ICHAID, 8), nil)
			if err != nil {
				errs <- err
				return
			}
			keys <- r.StoreKey
		}()
	}
	seen := map[string]bool{}
	for i := 0; i < n; i++ {
		select {
		case err := <-errs:
			t.Fatalf("execute: %v", err)
		case k := <-keys:
			assert.False(t, seen[k], "duplicate store key %s", k)
			seen[k] = true
		}
	}
	infos, err := repo.List(context.Background())
	require.NoError(t, err)
	assert.Len(t, infos, n)
}

func TestExecute_FailedRunIsRecorded(t *testing.T) {
	exec, repo, cat := newExecutor(t)
	d := useStub(t, &stubModel{total: 4, fail: errors.New("no convergence")})
	_, err := exec.Execute(context.Background(), d, nil)
	assert.ErrorIs(t, err, sim.ErrRunFailed)

	recs, lerr := cat.List(context.Background(), 0)
	require.NoError(t, lerr)
	require.Len(t, recs, 1)
	assert.Equal(t, catalog.StatusFailed, recs[0].Status)
	assert.Equal(t, "run_failed", recs[0].ErrorKind)

	infos, lerr := repo.List(context.Background())
	require.NoError(t, lerr)
	assert.Empty(t, infos, "a failed run must not leave a store")
}

func TestExecute_UnregisteredModelReportsFixedLabel(t *testing.T) {
	// GIVEN a design selecting a model that is not registered
	exec, _, _ := newExecutor(t)
	var labels []string
	exec.OnFinish = func(id string, _ time.Duration, _ error) { labels = append(labels, id) }
	d := testutil.WireDesign(1, models.ICHAID, 8)
	d.SimulationSettings.SelectedSimulationModelID = "caller-chosen-id"

	// WHEN it is executed
	_, err := exec.Execute(context.Background(), d, nil)

	// THEN the failure is model_not_found and the observer never sees the id
	assert.ErrorIs(t, err, sim.ErrModelNotFound)
	assert.Equal(t, []string{pipeline.UnknownModel}, labels)
}
