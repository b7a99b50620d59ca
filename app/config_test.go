package app

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasparian/lsh-search-go/lsh"
)

func TestLoadConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsh.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
index:
  hashes: 6
  family: superbit
  seed: 42
store:
  kind: sqlite
  dsn: /tmp/index.db
`), 0644))

	config, err := LoadConfig(path)
	require.NoError(t, err)
	assert.Equal(t, 6, config.Index.Hashes)
	assert.Equal(t, 8, config.Index.Tables, "defaults are kept")
	assert.Equal(t, "superbit", config.Index.Family)
	assert.Equal(t, uint64(42), config.Index.Seed)
	assert.Equal(t, StoreSQLite, config.Store.Kind)
	assert.Equal(t, "zstd", config.Snapshot.Compression)
	require.NoError(t, config.Validate())

	lc := config.lshConfig(nil, nil, nil)
	assert.Equal(t, lsh.FamilySuperBit, lc.Family)
	require.NotNil(t, lc.Source)
	assert.Equal(t, uint64(42), lc.Source.Seed())
}

func TestLoadConfigUnknownField(t *testing.T) {
	path := filepath.Join(t.TempDir(), "lsh.yaml")
	require.NoError(t, os.WriteFile(path, []byte("index:\n  buckets: 3\n"), 0644))
	_, err := LoadConfig(path)
	assert.Error(t, err)

	_, err = LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.Error(t, err)
}

func TestParseEnv(t *testing.T) {
	t.Setenv("LSH_HASHES", "20")
	t.Setenv("LSH_SEED", "7")
	t.Setenv("LSH_STORE", "kv")
	t.Setenv("LSH_COMPRESSION", "lz4")

	config := DefaultConfig()
	require.NoError(t, ParseEnv(&config))
	assert.Equal(t, 20, config.Index.Hashes)
	assert.Equal(t, uint64(7), config.Index.Seed)
	assert.Equal(t, StoreKV, config.Store.Kind)
	assert.Equal(t, "lz4", config.Snapshot.Compression)
	assert.Equal(t, 8, config.Index.Tables)

	t.Setenv("LSH_TABLES", "many")
	assert.Error(t, ParseEnv(&config))
}

func TestValidate(t *testing.T) {
	cases := map[string]func(*Config){
		"family":      func(c *Config) { c.Index.Family = "simhash" },
		"compression": func(c *Config) { c.Snapshot.Compression = "gzip" },
		"store":       func(c *Config) { c.Store.Kind = "redis" },
		"dsn":         func(c *Config) { c.Store.Kind, c.Index.Seed = StoreSQLite, 1 },
		"seed":        func(c *Config) { c.Store.Kind = StoreKV },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			config := DefaultConfig()
			mutate(&config)
			err := config.Validate()
			require.Error(t, err)
			assert.True(t, errors.Is(err, lsh.ErrConfiguration), err.Error())
		})
	}
	config := DefaultConfig()
	assert.NoError(t, config.Validate())
}
