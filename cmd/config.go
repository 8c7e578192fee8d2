package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/qca-lab/qca-sim/sim/blob"
	"github.com/qca-lab/qca-sim/sim/blob/core"
	"github.com/qca-lab/qca-sim/sim/blob/s3"
	"github.com/qca-lab/qca-sim/sim/catalog"
	"github.com/qca-lab/qca-sim/sim/store"
)

// Config represents the full qca-sim.yaml structure.
// All top-level sections must be listed to satisfy KnownFields(true) strict parsing.
type Config struct {
	LogLevel string         `yaml:"log_level"`
	Store    blob.Config    `yaml:"store"`
	Catalog  catalog.Config `yaml:"catalog"`
	Server   ServerConfig   `yaml:"server"`
}

// ServerConfig configures `qca-sim serve`.
type ServerConfig struct {
	Addr string `yaml:"addr"`
}

// DefaultConfig keeps everything under ./simulations.
func DefaultConfig() Config {
	return Config{
		LogLevel: "info",
		Store: blob.Config{
			Driver: core.DriverFilesystem,
			Root:   "./simulations",
			Prefix: "runs/",
			S3:     s3.Config{Region: "us-east-1"},
		},
		Catalog: catalog.Config{Driver: catalog.DriverSQLite, DSN: "./simulations/catalog.db"},
		Server:  ServerConfig{Addr: ":8080"},
	}
}

// LoadConfig reads path over the defaults, then applies environment
// overrides. An empty path skips the file.
func LoadConfig(path string, getenv func(string) string) (Config, error) {
	cfg := DefaultConfig()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return Config{}, fmt.Errorf("reading config: %w", err)
		}
		// Parse YAML with strict field checking: typos must cause errors
		decoder := yaml.NewDecoder(bytes.NewReader(data))
		decoder.KnownFields(true)
		if err := decoder.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
		}
	}
	cfg.applyEnv(getenv)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// envOverrides maps environment variables onto config fields.
var envOverrides = []struct {
	name string
	set  func(*Config, string)
}{
	{"QCASIM_LOG_LEVEL", func(c *Config, v string) { c.LogLevel = v }},
	{"QCASIM_STORE_DRIVER", func(c *Config, v string) { c.Store.Driver = core.Driver(v) }},
	{"QCASIM_STORE_ROOT", func(c *Config, v string) { c.Store.Root = v }},
	{"QCASIM_STORE_PREFIX", func(c *Config, v string) { c.Store.Prefix = v }},
	{"QCASIM_S3_BUCKET", func(c *Config, v string) { c.Store.S3.Bucket = v }},
	{"QCASIM_S3_REGION", func(c *Config, v string) { c.Store.S3.Region = v }},
	{"QCASIM_S3_ENDPOINT", func(c *Config, v string) { c.Store.S3.Endpoint = v }},
	{"QCASIM_S3_ACCESS_KEY_ID", func(c *Config, v string) { c.Store.S3.AccessKeyID = v }},
	{"QCASIM_S3_SECRET_ACCESS_KEY", func(c *Config, v string) { c.Store.S3.SecretAccessKey = v }},
	{"QCASIM_CATALOG_DRIVER", func(c *Config, v string) { c.Catalog.Driver = v }},
	{"QCASIM_CATALOG_DSN", func(c *Config, v string) { c.Catalog.DSN = v }},
	{"QCASIM_SERVER_ADDR", func(c *Config, v string) { c.Server.Addr = v }},
}

func (c *Config) applyEnv(getenv func(string) string) {
	if getenv == nil {
		return
	}
	for _, o := range envOverrides {
		if v := getenv(o.name); v != "" {
			o.set(c, v)
		}
	}
}

// Validate rejects unknown drivers and log levels.
func (c Config) Validate() error {
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		return fmt.Errorf("log_level: %w", err)
	}
	if err := c.Store.Validate(); err != nil {
		return fmt.Errorf("store: %w", err)
	}
	if err := c.Catalog.Validate(); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

// openRepository opens the configured blob store.
func openRepository(ctx context.Context, cfg Config) (*store.Repository, error) {
	blobs, err := blob.Open(ctx, cfg.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", cfg.Store.Driver, err)
	}
	logrus.Debugf("[cmd] store driver=%s prefix=%q", blobs.Driver(), cfg.Store.Prefix)
	return store.NewRepository(blobs, cfg.Store.Prefix), nil
}

// openCatalog opens the configured run catalog.
func openCatalog(ctx context.Context, cfg Config) (catalog.Catalog, error) {
	cat, err := catalog.Open(ctx, cfg.Catalog)
	if err != nil {
		return nil, fmt.Errorf("opening %s catalog: %w", cfg.Catalog.Driver, err)
	}
	return cat, nil
}
