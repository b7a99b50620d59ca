package app

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/gasparian/lsh-search-go/common"
	"github.com/gasparian/lsh-search-go/lsh"
	"github.com/gasparian/lsh-search-go/store"
)

// Store backends
const (
	StoreMemory = "memory"
	StoreKV     = "kv"
	StorePureKV = "purekv"
	StoreSQLite = "sqlite"
)

// IndexConfig holds the index shape; Seed = 0 leaves hash functions unseeded
type IndexConfig struct {
	Hashes  int    `yaml:"hashes"`
	Tables  int    `yaml:"tables"`
	Dims    int    `yaml:"dims"`
	Family  string `yaml:"family"`
	Seed    uint64 `yaml:"seed"`
	Verbose bool   `yaml:"verbose"`
}

// StoreConfig selects where buckets live. DSN is the pure-kv server address
// or the sqlite database path.
type StoreConfig struct {
	Kind      string `yaml:"kind"`
	DSN       string `yaml:"dsn"`
	Namespace string `yaml:"namespace"`
	Timeout   int    `yaml:"timeout"`
}

// SnapshotConfig tells where in-memory indexes are saved to and loaded from
type SnapshotConfig struct {
	Dir         string `yaml:"dir"`
	Compression string `yaml:"compression"`
}

// Config holds all the settings of the command line app
type Config struct {
	Index    IndexConfig    `yaml:"index"`
	Store    StoreConfig    `yaml:"store"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
}

// DefaultConfig returns the settings used when nothing else is given
func DefaultConfig() Config {
	return Config{
		Index: IndexConfig{
			Hashes: 12,
			Tables: 8,
			Family: "cosine",
		},
		Store: StoreConfig{
			Kind:      StoreMemory,
			Namespace: "lsh",
			Timeout:   30000,
		},
		Snapshot: SnapshotConfig{
			Dir:         "./snapshots",
			Compression: "zstd",
		},
	}
}

// LoadConfig reads YAML file over the defaults, unknown fields are rejected
func LoadConfig(path string) (Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return config, fmt.Errorf("can't open config: %w", err)
	}
	defer f.Close()

	decoder := yaml.NewDecoder(f)
	decoder.KnownFields(true)
	if err := decoder.Decode(&config); err != nil {
		return config, fmt.Errorf("can't parse config %s: %w", path, err)
	}
	return config, nil
}

// Validate checks the app level settings, the index shape is checked by lsh.
// Every error matches lsh.ErrConfiguration.
func (c *Config) Validate() error {
	if _, err := lsh.ParseFamily(c.Index.Family); err != nil {
		return err
	}
	if _, err := lsh.ParseCompression(c.Snapshot.Compression); err != nil {
		return err
	}
	switch c.Store.Kind {
	case StoreMemory, StoreKV:
	case StorePureKV, StoreSQLite:
		if c.Store.DSN == "" {
			return fmt.Errorf("%w: %s store needs a dsn", lsh.ErrConfiguration, c.Store.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown store %q, must be one of %s", lsh.ErrConfiguration,
			c.Store.Kind, strings.Join([]string{StoreMemory, StoreKV, StorePureKV, StoreSQLite}, ", "))
	}
	// records written with one set of hash functions are unreachable with another
	if c.Store.Kind != StoreMemory && c.Index.Seed == 0 {
		return fmt.Errorf("%w: %s store needs a non zero seed", lsh.ErrConfiguration, c.Store.Kind)
	}
	return nil
}

func (c *Config) lshConfig(st store.Store, logger *common.Logger, observer lsh.Observer) lsh.Config {
	family, _ := lsh.ParseFamily(c.Index.Family)
	config := lsh.Config{
		Hashes:    c.Index.Hashes,
		Tables:    c.Index.Tables,
		Dims:      c.Index.Dims,
		Family:    family,
		Store:     st,
		Namespace: c.Store.Namespace,
		Logger:    logger,
		Verbose:   c.Index.Verbose,
		Observer:  observer,
	}
	if c.Index.Seed != 0 {
		config.Source = lsh.NewRandomSource(c.Index.Seed)
	}
	return config
}

func (c *Config) compression() lsh.Compression {
	compression, _ := lsh.ParseCompression(c.Snapshot.Compression)
	return compression
}
