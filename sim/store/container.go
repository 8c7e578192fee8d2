// Package store persists a design together with its simulation result as a
// single versioned container, and reads it back whole or metadata-only.
//
// Container layout (little-endian):
//
//	"QCAS" uint16(version)
//	section*: [4]byte tag, uint64 payload length, payload
//
// Sections appear in order DSGN (design JSON), META (metadata JSON), CLCK
// (uint32 channel count, then channels × num_samples float64), CELL (per
// stored cell: uint32 width, then width × num_samples float64) and END\0.
// Readers skip sections with unknown tags.
package store

import (
	"bufio"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"

	"github.com/qca-lab/qca-sim/sim"
)

const (
	magic = "QCAS"
	// Version is the container version this package writes.
	Version uint16 = 1
	// maxJSONSection bounds the design and metadata sections.
	maxJSONSection = 256 << 20
	// maxSamples bounds num_samples so a corrupt header cannot force a
	// huge allocation.
	maxSamples = 1 << 28
	// floatChunk is the initial capacity of a sample slice.
	floatChunk = 1 << 13
)

var (
	tagDesign = [4]byte{'D', 'S', 'G', 'N'}
	tagMeta   = [4]byte{'M', 'E', 'T', 'A'}
	tagClock  = [4]byte{'C', 'L', 'C', 'K'}
	tagCells  = [4]byte{'C', 'E', 'L', 'L'}
	tagEnd    = [4]byte{'E', 'N', 'D', 0}
)

var order = binary.LittleEndian

// Write encodes design and result into w. The result must be internally
// consistent and every stored cell must resolve in design.
func Write(w io.Writer, design *sim.Design, result *sim.SimulationResult) error {
	if err := result.Validate(); err != nil {
		return fmt.Errorf("%w: %v", sim.ErrStoreWrite, err)
	}
	if err := result.ValidateAgainst(design); err != nil {
		return fmt.Errorf("%w: %w", sim.ErrStoreWrite, err)
	}
	designJSON, err := json.Marshal(design)
	if err != nil {
		return fmt.Errorf("%w: encoding design: %v", sim.ErrStoreWrite, err)
	}
	metaJSON, err := json.Marshal(result.Metadata)
	if err != nil {
		return fmt.Errorf("%w: encoding metadata: %v", sim.ErrStoreWrite, err)
	}

	bw := bufio.NewWriter(w)
	e := &encoder{w: bw}
	e.bytes([]byte(magic))
	e.u16(Version)
	e.section(tagDesign, uint64(len(designJSON)))
	e.bytes(designJSON)
	e.section(tagMeta, uint64(len(metaJSON)))
	e.bytes(metaJSON)

	n := result.Metadata.NumSamples
	e.section(tagClock, 4+8*uint64(len(result.ClockData))*uint64(n))
	e.u32(uint32(len(result.ClockData)))
	for _, ch := range result.ClockData {
		e.floats(ch)
	}

	var cellsLen uint64
	for _, c := range result.CellsData {
		cellsLen += 4 + 8*uint64(len(c.Data))
	}
	e.section(tagCells, cellsLen)
	for _, c := range result.CellsData {
		e.u32(uint32(c.Width))
		e.floats(c.Data)
	}
	e.section(tagEnd, 0)
	if e.err == nil {
		e.err = bw.Flush()
	}
	if e.err != nil {
		return fmt.Errorf("%w: %v", sim.ErrStoreWrite, e.err)
	}
	return nil
}

// encoder latches the first write error.
type encoder struct {
	w   io.Writer
	err error
	buf [8]byte
}

func (e *encoder) bytes(b []byte) {
	if e.err == nil {
		_, e.err = e.w.Write(b)
	}
}

func (e *encoder) u16(v uint16) {
	order.PutUint16(e.buf[:2], v)
	e.bytes(e.buf[:2])
}

func (e *encoder) u32(v uint32) {
	order.PutUint32(e.buf[:4], v)
	e.bytes(e.buf[:4])
}

func (e *encoder) u64(v uint64) {
	order.PutUint64(e.buf[:8], v)
	e.bytes(e.buf[:8])
}

func (e *encoder) floats(vs []float64) {
	for _, v := range vs {
		e.u64(math.Float64bits(v))
	}
}

func (e *encoder) section(tag [4]byte, length uint64) {
	e.bytes(tag[:])
	e.u64(length)
}

// Read decodes a full container.
func Read(r io.Reader) (*sim.Design, *sim.SimulationResult, error) {
	d := newDecoder(r)
	design, meta, err := d.header()
	if err != nil {
		return nil, nil, err
	}
	result := &sim.SimulationResult{Metadata: *meta}
	if err := d.body(result); err != nil {
		return nil, nil, err
	}
	if err := result.Validate(); err != nil {
		return nil, nil, fmt.Errorf("%w: %v", sim.ErrStoreFormat, err)
	}
	if err := result.ValidateAgainst(design); err != nil {
		return nil, nil, fmt.Errorf("%w: %w", sim.ErrStoreFormat, err)
	}
	return design, result, nil
}

// ReadMetadata decodes only the design and metadata sections; sample data
// is never read.
func ReadMetadata(r io.Reader) (*sim.Design, *sim.SimulationMetadata, error) {
	d := newDecoder(r)
	design, meta, err := d.header()
	if err != nil {
		return nil, nil, err
	}
	for _, idx := range meta.StoredCells {
		if _, _, err := design.CellAt(idx); err != nil {
			return nil, nil, fmt.Errorf("%w: %w", sim.ErrStoreFormat, err)
		}
	}
	return design, meta, nil
}

type decoder struct {
	r   *bufio.Reader
	buf [8]byte
}

func newDecoder(r io.Reader) *decoder {
	return &decoder{r: bufio.NewReader(r)}
}

// fail classifies a read error: truncation is a format problem, anything
// else is an I/O problem.
func fail(what string, err error) error {
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return fmt.Errorf("%w: truncated %s", sim.ErrStoreFormat, what)
	}
	return fmt.Errorf("%w: reading %s: %v", sim.ErrStoreRead, what, err)
}

func (d *decoder) full(b []byte, what string) error {
	if _, err := io.ReadFull(d.r, b); err != nil {
		return fail(what, err)
	}
	return nil
}

func (d *decoder) u32(what string) (uint32, error) {
	if err := d.full(d.buf[:4], what); err != nil {
		return 0, err
	}
	return order.Uint32(d.buf[:4]), nil
}

// floats reads count values. Capacity grows with the bytes actually read, so
// a header that overstates the sample count fails on truncation before it
// can force a large allocation.
func (d *decoder) floats(count uint64, what string) ([]float64, error) {
	out := make([]float64, 0, min(count, floatChunk))
	for uint64(len(out)) < count {
		if err := d.full(d.buf[:8], what); err != nil {
			return nil, err
		}
		out = append(out, math.Float64frombits(order.Uint64(d.buf[:8])))
	}
	return out, nil
}

// next returns the next known section, skipping unknown ones.
func (d *decoder) next() ([4]byte, uint64, error) {
	for {
		var tag [4]byte
		if err := d.full(tag[:], "section tag"); err != nil {
			return tag, 0, err
		}
		if err := d.full(d.buf[:8], "section length"); err != nil {
			return tag, 0, err
		}
		length := order.Uint64(d.buf[:8])
		switch tag {
		case tagDesign, tagMeta, tagClock, tagCells, tagEnd:
			return tag, length, nil
		}
		if length > math.MaxInt64 {
			return tag, 0, fmt.Errorf("%w: section %q is %d bytes", sim.ErrStoreFormat, tag[:], length)
		}
		if _, err := io.CopyN(io.Discard, d.r, int64(length)); err != nil {
			return tag, 0, fail(fmt.Sprintf("section %q", tag[:]), err)
		}
	}
}

func (d *decoder) expect(want [4]byte) (uint64, error) {
	tag, length, err := d.next()
	if err != nil {
		return 0, err
	}
	if tag != want {
		return 0, fmt.Errorf("%w: expected section %q, found %q", sim.ErrStoreFormat, want[:], tag[:])
	}
	return length, nil
}

func (d *decoder) jsonSection(tag [4]byte, v any) error {
	length, err := d.expect(tag)
	if err != nil {
		return err
	}
	if length > maxJSONSection {
		return fmt.Errorf("%w: section %q is %d bytes", sim.ErrStoreFormat, tag[:], length)
	}
	b := make([]byte, length)
	if err := d.full(b, fmt.Sprintf("section %q", tag[:])); err != nil {
		return err
	}
	if err := json.Unmarshal(b, v); err != nil {
		return fmt.Errorf("%w: section %q: %v", sim.ErrStoreFormat, tag[:], err)
	}
	return nil
}

func (d *decoder) header() (*sim.Design, *sim.SimulationMetadata, error) {
	var head [6]byte
	if err := d.full(head[:], "header"); err != nil {
		return nil, nil, err
	}
	if string(head[:4]) != magic {
		return nil, nil, fmt.Errorf("%w: not a simulation store (bad magic %q)", sim.ErrStoreFormat, head[:4])
	}
	if v := order.Uint16(head[4:]); v != Version {
		return nil, nil, fmt.Errorf("%w: unsupported container version %d", sim.ErrStoreFormat, v)
	}
	var design sim.Design
	if err := d.jsonSection(tagDesign, &design); err != nil {
		return nil, nil, err
	}
	var meta sim.SimulationMetadata
	if err := d.jsonSection(tagMeta, &meta); err != nil {
		return nil, nil, err
	}
	if meta.NumSamples < 0 || meta.NumSamples > maxSamples {
		return nil, nil, fmt.Errorf("%w: num_samples %d out of range", sim.ErrStoreFormat, meta.NumSamples)
	}
	return &design, &meta, nil
}

// body reads CLCK, CELL and END. Section lengths are checked against the
// metadata before any samples are read.
func (d *decoder) body(result *sim.SimulationResult) error {
	n := uint64(result.Metadata.NumSamples)
	length, err := d.expect(tagClock)
	if err != nil {
		return err
	}
	channels, err := d.u32("clock channel count")
	if err != nil {
		return err
	}
	if channels > sim.ClockChannels {
		return fmt.Errorf("%w: %d clock channels, at most %d supported", sim.ErrStoreFormat, channels, sim.ClockChannels)
	}
	if length != 4+8*uint64(channels)*n {
		return fmt.Errorf("%w: clock section is %d bytes, expected %d", sim.ErrStoreFormat, length, 4+8*uint64(channels)*n)
	}
	result.ClockData = make([][]float64, channels)
	for ch := range result.ClockData {
		if result.ClockData[ch], err = d.floats(n, "clock samples"); err != nil {
			return err
		}
	}

	length, err = d.expect(tagCells)
	if err != nil {
		return err
	}
	result.CellsData = make([]sim.CellData, len(result.Metadata.StoredCells))
	var consumed uint64
	for i, idx := range result.Metadata.StoredCells {
		width, err := d.u32("cell width")
		if err != nil {
			return err
		}
		if width == 0 || width > 64 {
			return fmt.Errorf("%w: cell %s has width %d", sim.ErrStoreFormat, idx, width)
		}
		consumed += 4 + 8*uint64(width)*n
		if consumed > length {
			return fmt.Errorf("%w: cell section shorter than its cells", sim.ErrStoreFormat)
		}
		data, err := d.floats(uint64(width)*n, "cell samples")
		if err != nil {
			return err
		}
		result.CellsData[i] = sim.CellData{Index: idx, Width: int(width), Data: data}
	}
	if consumed != length {
		return fmt.Errorf("%w: cell section has %d trailing bytes", sim.ErrStoreFormat, length-consumed)
	}
	if _, err := d.expect(tagEnd); err != nil {
		return err
	}
	return nil
}
