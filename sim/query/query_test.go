package query_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/blob/memory"
	"github.com/qca-lab/qca-sim/sim/internal/testutil"
	"github.com/qca-lab/qca-sim/sim/query"
	"github.com/qca-lab/qca-sim/sim/store"
)

func saved(t *testing.T, d *sim.Design, r *sim.SimulationResult) (*store.Repository, string) {
	t.Helper()
	repo := store.NewRepository(memory.New(), "")
	_, err := repo.Save(context.Background(), "sim.qcs", d, r)
	require.NoError(t, err)
	return repo, "sim.qcs"
}

// threeCells stores cells 0-0, 0-1 (eight-dot, width 2) and 1-0.
func threeCells(t *testing.T) (*store.Repository, string, *sim.SimulationResult) {
	t.Helper()
	d := testutil.WireDesign(0, "full_basis", 8)
	d.CellArchitectures[testutil.OctArchID] = testutil.OctArchitecture()
	d.Layers = append(d.Layers, sim.Layer{
		Name:               "Via Layer",
		CellArchitectureID: testutil.OctArchID,
		Cells:              []sim.Cell{{Typ: sim.CellOutput, DotProbabilityDistribution: make([]float64, 8)}},
	})
	r := testutil.NewResult(3).
		Clock(0, 0.5, 1).Clock(1, 0.5, 0).Clock(0.5, 1, 0.5).Clock(0.5, 0, 0.5).
		Cell(sim.CellIndex{Layer: 0, Cell: 0}, 1, 1, 2, 3).
		Cell(sim.CellIndex{Layer: 0, Cell: 1}, 1, 4, 5, 6).
		Cell(sim.CellIndex{Layer: 1, Cell: 0}, 2, 7, 8, 9, 10, 11, 12).
		Build(t)
	repo, key := saved(t, d, r)
	return repo, key, r
}

func TestResolve_ConcreteScenario(t *testing.T) {
	// GIVEN one clock channel [0,1,1,0] and one four-dot cell
	d := testutil.WireDesign(0, "full_basis", 8)
	r := testutil.NewResult(4).
		Clock(0, 1, 1, 0).
		Cell(sim.CellIndex{Layer: 0, Cell: 0}, 1, 0.1, 0.9, 0.9, 0.1).
		Build(t)
	repo, key := saved(t, d, r)

	// WHEN indices=[0] is queried
	body, err := query.Resolve(context.Background(), repo, query.Request{Filename: key, Indices: []int{0}})
	require.NoError(t, err)

	// THEN the body decodes to clock then cell
	got, err := query.DecodeFloats(body)
	require.NoError(t, err)
	assert.Equal(t, []float64{0, 1, 1, 0, 0.1, 0.9, 0.9, 0.1}, got)
}

func TestResolve_EmptyIndicesIsFullRange(t *testing.T) {
	repo, key, r := threeCells(t)
	ctx := context.Background()

	omitted, err := query.Resolve(ctx, repo, query.Request{Filename: key})
	require.NoError(t, err)
	empty, err := query.Resolve(ctx, repo, query.Request{Filename: key, Indices: []int{}})
	require.NoError(t, err)
	full, err := query.Resolve(ctx, repo, query.Request{Filename: key, Indices: []int{0, 1, 2}})
	require.NoError(t, err)

	n := r.Metadata.NumSamples
	widths := 1 + 1 + 2
	assert.Len(t, omitted, 8*(4*n+widths*n))
	assert.Equal(t, full, omitted)
	assert.Equal(t, full, empty)
}

func TestResolve_PreservesRequestOrder(t *testing.T) {
	repo, key, _ := threeCells(t)
	body, err := query.Resolve(context.Background(), repo, query.Request{Filename: key, Indices: []int{2, 0, 2}})
	require.NoError(t, err)
	got, err := query.DecodeFloats(body)
	require.NoError(t, err)

	cells := got[4*3:]
	assert.Equal(t, []float64{7, 8, 9, 10, 11, 12, 1, 2, 3, 7, 8, 9, 10, 11, 12}, cells)
}

func TestResolve_Errors(t *testing.T) {
	repo, key, _ := threeCells(t)
	ctx := context.Background()

	_, err := query.Resolve(ctx, repo, query.Request{Filename: key, Indices: []int{0, 3}})
	assert.ErrorIs(t, err, sim.ErrStaleCellReference)

	_, err = query.Resolve(ctx, repo, query.Request{Filename: "missing.qcs"})
	assert.ErrorIs(t, err, sim.ErrStoreRead)
}

func TestParseRequest(t *testing.T) {
	tests := []struct {
		name    string
		raw     string
		want    query.Request
		wantErr error
	}{
		{"filename only", "filename=runs%2Fa.qcs", query.Request{Filename: "runs/a.qcs"}, nil},
		{"indices", "filename=a&indices=%5B2%2C0%5D", query.Request{Filename: "a", Indices: []int{2, 0}}, nil},
		{"empty indices", "filename=a&indices=", query.Request{Filename: "a"}, nil},
		{"missing filename", "indices=[0]", query.Request{}, sim.ErrMissingParameter},
		{"blank filename", "filename=", query.Request{}, sim.ErrMissingParameter},
		{"not json", "filename=a&indices=0,1", query.Request{}, sim.ErrMalformedIndices},
		{"negative", "filename=a&indices=[-1]", query.Request{}, sim.ErrMalformedIndices},
		{"fractional", "filename=a&indices=[1.5]", query.Request{}, sim.ErrMalformedIndices},
		{"strings", `filename=a&indices=["1"]`, query.Request{}, sim.ErrMalformedIndices},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got, err := query.ParseRequest(tc.raw)
			if tc.wantErr != nil {
				assert.ErrorIs(t, err, tc.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tc.want, got)
		})
	}
}

func TestHandler_Success(t *testing.T) {
	repo, key, _ := threeCells(t)
	srv := httptest.NewServer(query.Handler(repo))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/load-sim?filename=" + url.QueryEscape(key) + "&indices=" + url.QueryEscape("[1]"))
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET", resp.Header.Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "application/octet-stream", resp.Header.Get("Content-Type"))
	assert.Len(t, body, 8*(4*3+3))
}

func TestHandler_NonexistentFileIs400WithMessage(t *testing.T) {
	repo := store.NewRepository(memory.New(), "")
	srv := httptest.NewServer(query.Handler(repo))
	defer srv.Close()

	resp, err := http.Get(srv.URL + "/load-sim?filename=nowhere.qcs")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "*", resp.Header.Get("Access-Control-Allow-Origin"))
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/plain")
	assert.NotEmpty(t, body)
	assert.Contains(t, string(body), "nowhere.qcs")
}

func TestHandler_Preflight(t *testing.T) {
	rec := httptest.NewRecorder()
	query.Handler(store.NewRepository(memory.New(), "")).ServeHTTP(rec, httptest.NewRequest(http.MethodOptions, "/load-sim", nil))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
	assert.Zero(t, rec.Body.Len())
}

func TestServe_FailureNeverCarriesBinary(t *testing.T) {
	repo, key, _ := threeCells(t)
	resp := query.Serve(context.Background(), repo, "filename="+key+"&indices=[0,9]")
	assert.Equal(t, http.StatusBadRequest, resp.Status)
	assert.ErrorIs(t, resp.Err, sim.ErrStaleCellReference)
	assert.Equal(t, "text/plain; charset=utf-8", resp.ContentType)
	assert.Contains(t, string(resp.Body), "stale cell reference")
}
