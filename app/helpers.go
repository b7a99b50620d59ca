package app

import (
	"fmt"
	"os"
	"strconv"
)

// ParseEnv overrides the config with the LSH_* environment variables that are set
func ParseEnv(config *Config) error {
	intVars := map[string]*int{
		"LSH_HASHES":        &config.Index.Hashes,
		"LSH_TABLES":        &config.Index.Tables,
		"LSH_DIM":           &config.Index.Dims,
		"LSH_STORE_TIMEOUT": &config.Store.Timeout,
	}
	for key, dst := range intVars {
		val, ok := os.LookupEnv(key)
		if !ok {
			continue
		}
		n, err := strconv.Atoi(val)
		if err != nil {
			return fmt.Errorf("env %s: %w", key, err)
		}
		*dst = n
	}
	if val, ok := os.LookupEnv("LSH_SEED"); ok {
		seed, err := strconv.ParseUint(val, 10, 64)
		if err != nil {
			return fmt.Errorf("env LSH_SEED: %w", err)
		}
		config.Index.Seed = seed
	}
	stringVars := map[string]*string{
		"LSH_FAMILY":       &config.Index.Family,
		"LSH_STORE":        &config.Store.Kind,
		"LSH_STORE_DSN":    &config.Store.DSN,
		"LSH_NAMESPACE":    &config.Store.Namespace,
		"LSH_SNAPSHOT_DIR": &config.Snapshot.Dir,
		"LSH_COMPRESSION":  &config.Snapshot.Compression,
	}
	for key, dst := range stringVars {
		if val, ok := os.LookupEnv(key); ok {
			*dst = val
		}
	}
	return nil
}
