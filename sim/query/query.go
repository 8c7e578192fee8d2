// Package query answers byte-exact sample queries against a stored
// simulation: clock waveforms followed by the requested cells, as raw
// native-endian float64 values.
package query

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"net/url"
	"strings"

	"github.com/qca-lab/qca-sim/sim"
)

// Loader performs a full store read.
type Loader interface {
	Load(ctx context.Context, key string) (*sim.Design, *sim.SimulationResult, error)
}

// Request is a decoded query. Indices are positions in the store's
// stored-cell list; nil or empty selects all of them in ascending order.
type Request struct {
	Filename string
	Indices  []int
}

// ParseRequest decodes a query string carrying `filename` (required) and
// `indices` (optional JSON array of non-negative integers).
func ParseRequest(rawQuery string) (Request, error) {
	values, err := url.ParseQuery(rawQuery)
	if err != nil {
		return Request{}, fmt.Errorf("%w: query string: %v", sim.ErrInvalidRequest, err)
	}
	req := Request{Filename: values.Get("filename")}
	if strings.TrimSpace(req.Filename) == "" {
		return Request{}, fmt.Errorf("%w: filename", sim.ErrMissingParameter)
	}
	if raw := strings.TrimSpace(values.Get("indices")); raw != "" {
		req.Indices, err = ParseIndices(raw)
		if err != nil {
			return Request{}, err
		}
	}
	return req, nil
}

// ParseIndices decodes a JSON array of non-negative integers.
func ParseIndices(raw string) ([]int, error) {
	var indices []int
	if err := json.Unmarshal([]byte(raw), &indices); err != nil {
		return nil, fmt.Errorf("%w: %q is not a JSON array of integers: %v", sim.ErrMalformedIndices, raw, err)
	}
	for _, i := range indices {
		if i < 0 {
			return nil, fmt.Errorf("%w: negative index %d", sim.ErrMalformedIndices, i)
		}
	}
	return indices, nil
}

// Resolve reads the store and renders the response body. The body is
// built completely before it is returned; any failure yields no bytes.
func Resolve(ctx context.Context, loader Loader, req Request) ([]byte, error) {
	design, result, err := loader.Load(ctx, req.Filename)
	if err != nil {
		return nil, err
	}
	return Encode(design, result, req.Indices)
}

// Encode lays out the clock channels present in result (at most
// sim.ClockChannels, in channel order), then each requested stored cell in
// request order without sorting or deduplication.
func Encode(design *sim.Design, result *sim.SimulationResult, indices []int) ([]byte, error) {
	n := result.Metadata.NumSamples
	if len(result.ClockData) > sim.ClockChannels {
		return nil, fmt.Errorf("%w: %d clock channels, at most %d supported", sim.ErrStoreFormat, len(result.ClockData), sim.ClockChannels)
	}
	if len(indices) == 0 {
		indices = make([]int, len(result.CellsData))
		for i := range indices {
			indices[i] = i
		}
	}

	floats := len(result.ClockData) * n
	for _, i := range indices {
		if i < 0 || i >= len(result.CellsData) {
			return nil, fmt.Errorf("%w: index %d outside [0, %d)", sim.ErrStaleCellReference, i, len(result.CellsData))
		}
		cell := result.CellsData[i]
		_, arch, err := design.CellAt(cell.Index)
		if err != nil {
			return nil, err
		}
		if w := arch.FeatureWidth(); w != cell.Width || len(cell.Data) != w*n {
			return nil, fmt.Errorf("%w: cell %s holds %d values, architecture %q implies %d", sim.ErrStoreFormat, cell.Index, len(cell.Data), arch.Name, w*n)
		}
		floats += len(cell.Data)
	}

	buf := make([]byte, 0, 8*floats)
	for _, ch := range result.ClockData {
		if len(ch) != n {
			return nil, fmt.Errorf("%w: clock channel has %d samples, expected %d", sim.ErrStoreFormat, len(ch), n)
		}
		buf = appendFloats(buf, ch)
	}
	for _, i := range indices {
		buf = appendFloats(buf, result.CellsData[i].Data)
	}
	return buf, nil
}

func appendFloats(buf []byte, vs []float64) []byte {
	for _, v := range vs {
		buf = binary.NativeEndian.AppendUint64(buf, math.Float64bits(v))
	}
	return buf
}

// DecodeFloats is the inverse of the body encoding, for clients and tests.
func DecodeFloats(body []byte) ([]float64, error) {
	if len(body)%8 != 0 {
		return nil, fmt.Errorf("body of %d bytes is not a whole number of float64 values", len(body))
	}
	out := make([]float64, len(body)/8)
	for i := range out {
		out[i] = math.Float64frombits(binary.NativeEndian.Uint64(body[8*i:]))
	}
	return out, nil
}
