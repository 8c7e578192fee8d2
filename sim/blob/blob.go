// Package blob selects the blob store backend the result repository writes
// simulation containers to.
package blob

import (
	"context"
	"fmt"

	"github.com/qca-lab/qca-sim/sim/blob/core"
	"github.com/qca-lab/qca-sim/sim/blob/fs"
	"github.com/qca-lab/qca-sim/sim/blob/memory"
	"github.com/qca-lab/qca-sim/sim/blob/s3"
)

// Store re-exports core.Store so callers need only this package.
type Store = core.Store

// Config selects and configures a backend.
type Config struct {
	Driver core.Driver `yaml:"driver"`
	Root   string      `yaml:"root"`   // fs only
	Prefix string      `yaml:"prefix"` // key prefix for stored results
	S3     s3.Config   `yaml:"s3"`
}

// Validate checks the driver name and its required fields.
func (c Config) Validate() error {
	switch c.Driver {
	case "", core.DriverFilesystem, core.DriverMemory:
		return nil
	case core.DriverS3:
		if c.S3.Bucket == "" {
			return fmt.Errorf("store.s3.bucket is required for the s3 driver")
		}
		return nil
	default:
		return fmt.Errorf("unknown store driver %q; valid: fs, memory, s3", c.Driver)
	}
}

// Open constructs the configured backend. An empty driver means fs.
func Open(ctx context.Context, cfg Config) (Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case core.DriverMemory:
		return memory.New(), nil
	case core.DriverS3:
		return s3.New(ctx, cfg.S3)
	default:
		return fs.New(cfg.Root)
	}
}
