package store

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/qca-lab/qca-sim/sim"
	"github.com/qca-lab/qca-sim/sim/blob"
	"github.com/qca-lab/qca-sim/sim/blob/core"
)

// ContentType labels stored containers in the blob store.
const ContentType = "application/vnd.qca-sim.store"

// Extension is the suffix of generated store keys.
const Extension = ".qcs"

// Repository reads and writes containers through a blob store. Keys it
// generates are unique per run, and the blob store's create-only Put keeps
// concurrent runs from touching each other's output.
type Repository struct {
	blobs  blob.Store
	prefix string
}

// NewRepository wraps blobs; generated keys start with prefix.
func NewRepository(blobs blob.Store, prefix string) *Repository {
	return &Repository{blobs: blobs, prefix: prefix}
}

// Driver reports the backing blob store driver.
func (r *Repository) Driver() core.Driver { return r.blobs.Driver() }

// NewKey returns a fresh store key for runID.
func (r *Repository) NewKey(runID uuid.UUID) string {
	return r.prefix + runID.String() + Extension
}

// Save encodes design and result and writes them under key. The container
// is fully encoded before the blob is created, so a failure never leaves a
// partial store behind.
func (r *Repository) Save(ctx context.Context, key string, design *sim.Design, result *sim.SimulationResult) (core.Info, error) {
	var buf bytes.Buffer
	if err := Write(&buf, design, result); err != nil {
		return core.Info{}, err
	}
	info, err := r.blobs.Put(ctx, key, &buf, core.PutOptions{
		ContentType: ContentType,
		Metadata: map[string]string{
			"qca-core-version": result.Metadata.QCACoreVersion,
			"num-samples":      strconv.Itoa(result.Metadata.NumSamples),
			"stored-cells":     strconv.Itoa(len(result.Metadata.StoredCells)),
		},
	})
	if err != nil {
		return core.Info{}, fmt.Errorf("%w: %s: %v", sim.ErrStoreWrite, key, err)
	}
	logrus.Debugf("[store] wrote %s (%d bytes, %s)", key, info.Size, r.blobs.Driver())
	return info, nil
}

// Load performs a full read.
func (r *Repository) Load(ctx context.Context, key string) (*sim.Design, *sim.SimulationResult, error) {
	rc, err := r.open(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	design, result, err := Read(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", key, err)
	}
	return design, result, nil
}

// LoadMetadata reads only the design and metadata sections.
func (r *Repository) LoadMetadata(ctx context.Context, key string) (*sim.Design, *sim.SimulationMetadata, error) {
	rc, err := r.open(ctx, key)
	if err != nil {
		return nil, nil, err
	}
	defer rc.Close()
	design, meta, err := ReadMetadata(rc)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", key, err)
	}
	return design, meta, nil
}

// List returns the stores under the repository prefix.
func (r *Repository) List(ctx context.Context) ([]core.Info, error) {
	infos, err := r.blobs.List(ctx, r.prefix)
	if err != nil {
		return nil, fmt.Errorf("%w: listing %q: %v", sim.ErrStoreRead, r.prefix, err)
	}
	out := infos[:0]
	for _, info := range infos {
		if strings.HasSuffix(info.Key, Extension) {
			out = append(out, info)
		}
	}
	return out, nil
}

func (r *Repository) open(ctx context.Context, key string) (io.ReadCloser, error) {
	_, rc, err := r.blobs.Get(ctx, key)
	switch {
	case err == nil:
		return rc, nil
	case errors.Is(err, core.ErrNotFound):
		return nil, fmt.Errorf("%w: %s does not exist", sim.ErrStoreRead, key)
	default:
		return nil, fmt.Errorf("%w: %s: %v", sim.ErrStoreRead, key, err)
	}
}
