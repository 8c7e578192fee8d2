package store_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"runtime"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/blob/memory"
	"github.com/qca-lab/qca-sim/sim/internal/testutil"
	"github.com/qca-lab/qca-sim/sim/store"
)

func fixture(t *testing.T) (*sim.Design, *sim.SimulationResult) {
	t.Helper()
	d := testutil.WireDesign(1, "full_basis", 20)
	r := testutil.NewResult(4).
		Clock(0, 1, 1, 0).
		Clock(1, 1, 0, 0).
		Cell(sim.CellIndex{Layer: 0, Cell: 0}, 1, -1, -1, 1, 1).
		Cell(sim.CellIndex{Layer: 0, Cell: 2}, 1, 0.1, 0.9, 0.9, 0.1).
		Build(t)
	return d, r
}

func encode(t *testing.T, d *sim.Design, r *sim.SimulationResult) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, store.Write(&buf, d, r))
	return buf.Bytes()
}

func TestContainer_RoundTrip(t *testing.T) {
	// GIVEN a design and a result written to a container
	d, r := fixture(t)
	data := encode(t, d, r)

	// WHEN it is read back in full
	gotDesign, gotResult, err := store.Read(bytes.NewReader(data))
	require.NoError(t, err)

	// THEN shape, order and values survive unchanged
	assert.Equal(t, r.Metadata.NumSamples, gotResult.Metadata.NumSamples)
	assert.Equal(t, r.Metadata.StoredCells, gotResult.Metadata.StoredCells)
	assert.True(t, r.Metadata.StartTime.Equal(gotResult.Metadata.StartTime))
	assert.Equal(t, r.Metadata.Duration, gotResult.Metadata.Duration)
	assert.Equal(t, r.ClockData, gotResult.ClockData)
	assert.Equal(t, r.CellsData, gotResult.CellsData)
	assert.Equal(t, len(d.Layers[0].Cells), len(gotDesign.Layers[0].Cells))
	assert.Equal(t, d.CellArchitectures, gotDesign.CellArchitectures)
}

func TestContainer_MetadataOnlyIgnoresSamples(t *testing.T) {
	d, r := fixture(t)
	data := encode(t, d, r)

	// Cut the container right after META: a metadata read must not need
	// anything beyond it.
	clck := bytes.Index(data, []byte("CLCK"))
	require.Positive(t, clck)
	_, meta, err := store.ReadMetadata(bytes.NewReader(data[:clck]))
	require.NoError(t, err)
	assert.Equal(t, 4, meta.NumSamples)
	assert.Equal(t, r.Metadata.StoredCells, meta.StoredCells)

	// The same cut is a truncated store for a full read.
	_, _, err = store.Read(bytes.NewReader(data[:clck]))
	assert.ErrorIs(t, err, sim.ErrStoreFormat)
}

func TestContainer_FormatErrors(t *testing.T) {
	d, r := fixture(t)
	good := encode(t, d, r)

	badVersion := append([]byte(nil), good...)
	binary.LittleEndian.PutUint16(badVersion[4:6], 99)

	tests := []struct {
		name string
		data []byte
	}{
		{"empty", nil},
		{"bad magic", append([]byte("NOPE"), good[4:]...)},
		{"bad version", badVersion},
		{"truncated samples", good[:len(good)-20]},
		{"missing end", good[:len(good)-12]},
		{"not json", []byte("QCAS\x01\x00DSGN\x03\x00\x00\x00\x00\x00\x00\x00{{{")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, _, err := store.Read(bytes.NewReader(tc.data))
			assert.ErrorIs(t, err, sim.ErrStoreFormat)
			assert.Equal(t, "store_format", sim.KindOf(err))
		})
	}
}

// section appends one tagged section to buf.
func section(buf *bytes.Buffer, tag string, payload []byte, length uint64) {
	buf.WriteString(tag)
	_ = binary.Write(buf, binary.LittleEndian, length)
	buf.Write(payload)
}

func TestContainer_OverstatedSampleCountDoesNotPreallocate(t *testing.T) {
	// GIVEN a header claiming 2^28 samples over four clocks, with a clock
	// section length to match but only two samples actually present
	d, r := fixture(t)
	const claimed = 1 << 28
	meta := r.Metadata
	meta.NumSamples = claimed
	designJSON, err := json.Marshal(d)
	require.NoError(t, err)
	metaJSON, err := json.Marshal(meta)
	require.NoError(t, err)

	var buf bytes.Buffer
	buf.WriteString("QCAS")
	_ = binary.Write(&buf, binary.LittleEndian, store.Version)
	section(&buf, "DSGN", designJSON, uint64(len(designJSON)))
	section(&buf, "META", metaJSON, uint64(len(metaJSON)))
	clock := binary.LittleEndian.AppendUint32(nil, 4)
	clock = append(clock, make([]byte, 16)...)
	section(&buf, "CLCK", clock, 4+8*4*claimed)

	// WHEN it is read
	var before, after runtime.MemStats
	runtime.ReadMemStats(&before)
	_, _, err = store.Read(bytes.NewReader(buf.Bytes()))
	runtime.ReadMemStats(&after)

	// THEN it is reported as truncated without allocating for the claim
	assert.ErrorIs(t, err, sim.ErrStoreFormat)
	assert.Less(t, after.TotalAlloc-before.TotalAlloc, uint64(16<<20))
}

func TestContainer_SkipsUnknownSections(t *testing.T) {
	d, r := fixture(t)
	data := encode(t, d, r)
	clck := bytes.Index(data, []byte("CLCK"))

	extra := []byte("XTRA")
	extra = binary.LittleEndian.AppendUint64(extra, 3)
	extra = append(extra, 'a', 'b', 'c')
	patched := append(append(append([]byte(nil), data[:clck]...), extra...), data[clck:]...)

	_, got, err := store.Read(bytes.NewReader(patched))
	require.NoError(t, err)
	assert.Equal(t, r.CellsData, got.CellsData)
}

func TestContainer_StaleStoredCell(t *testing.T) {
	// GIVEN a container whose metadata names a cell the design lacks
	d, r := fixture(t)
	data := encode(t, d, r)
	d.Layers[0].Cells = d.Layers[0].Cells[:1]
	shrunk := encode(t, d, testutil.NewResult(4).Clock(0, 1, 1, 0).
		Cell(sim.CellIndex{Layer: 0, Cell: 0}, 1, 0, 0, 0, 0).Build(t))
	require.NotEmpty(t, shrunk)

	// WHEN the stale design is spliced in front of the original metadata
	spliced := splice(t, shrunk, data)

	// THEN both read granularities reject it with the lookup kind
	_, _, err := store.Read(bytes.NewReader(spliced))
	assert.ErrorIs(t, err, sim.ErrStoreFormat)
	assert.ErrorIs(t, err, sim.ErrStaleCellReference)
	_, _, err = store.ReadMetadata(bytes.NewReader(spliced))
	assert.ErrorIs(t, err, sim.ErrStaleCellReference)
}

// splice returns designFrom's header and DSGN section followed by the
// remaining sections of rest.
func splice(t *testing.T, designFrom, rest []byte) []byte {
	t.Helper()
	metaA := bytes.Index(designFrom, []byte("META"))
	metaB := bytes.Index(rest, []byte("META"))
	require.Positive(t, metaA)
	require.Positive(t, metaB)
	return append(append([]byte(nil), designFrom[:metaA]...), rest[metaB:]...)
}

func TestWrite_RejectsInconsistentResult(t *testing.T) {
	d, r := fixture(t)
	r.CellsData[1].Data = r.CellsData[1].Data[:3]
	err := store.Write(&bytes.Buffer{}, d, r)
	assert.ErrorIs(t, err, sim.ErrStoreWrite)
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWrite_IOErrorIsReported(t *testing.T) {
	d, r := fixture(t)
	err := store.Write(failingWriter{}, d, r)
	assert.ErrorIs(t, err, sim.ErrStoreWrite)
	assert.Contains(t, err.Error(), "disk full")
}

func TestRepository_SaveLoad(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(memory.New(), "runs/")
	d, r := fixture(t)

	key := repo.NewKey(uuid.New())
	assert.Regexp(t, `^runs/[0-9a-f-]{36}\.qcs$`, key)
	info, err := repo.Save(ctx, key, d, r)
	require.NoError(t, err)
	assert.Equal(t, store.ContentType, info.ContentType)
	assert.Equal(t, "4", info.Metadata["num-samples"])

	_, got, err := repo.Load(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, r.Metadata.StoredCells, got.Metadata.StoredCells)

	_, meta, err := repo.LoadMetadata(ctx, key)
	require.NoError(t, err)
	assert.Equal(t, 4, meta.NumSamples)

	infos, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, infos, 1)
	assert.Equal(t, key, infos[0].Key)
}

func TestRepository_KeysAreUniquePerRun(t *testing.T) {
	repo := store.NewRepository(memory.New(), "")
	assert.NotEqual(t, repo.NewKey(uuid.New()), repo.NewKey(uuid.New()))
}

func TestRepository_SaveRefusesExistingKey(t *testing.T) {
	ctx := context.Background()
	repo := store.NewRepository(memory.New(), "")
	d, r := fixture(t)
	_, err := repo.Save(ctx, "fixed.qcs", d, r)
	require.NoError(t, err)
	_, err = repo.Save(ctx, "fixed.qcs", d, r)
	assert.ErrorIs(t, err, sim.ErrStoreWrite)
}

func TestRepository_MissingStore(t *testing.T) {
	repo := store.NewRepository(memory.New(), "")
	_, _, err := repo.Load(context.Background(), "nope.qcs")
	assert.ErrorIs(t, err, sim.ErrStoreRead)
	assert.Contains(t, err.Error(), "nope.qcs")
	_, _, err = repo.LoadMetadata(context.Background(), "nope.qcs")
	assert.ErrorIs(t, err, sim.ErrStoreRead)
}
