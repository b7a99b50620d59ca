package lsh

import (
	"fmt"
	"time"

	"github.com/gasparian/lsh-search-go/common"
	"github.com/gasparian/lsh-search-go/store"
)

const defaultNamespace = "lsh"

// Config holds the shape of the index and its collaborators
type Config struct {
	Hashes int // k, hash functions per table
	Tables int // L
	Dims   int
	Family FamilyTag
	// Source makes hash function generation reproducible; unseeded when nil
	Source *RandomSource
	// Store keeps the buckets outside of the process memory when set
	Store     store.Store
	Namespace string
	Logger    *common.Logger
	// Verbose logs per-table bucket sizes on every query
	Verbose  bool
	Observer Observer
}

// Validate checks the structural parameters
func (c *Config) Validate() error {
	if c.Hashes <= 0 || c.Hashes > MaxHashes {
		return configErr("hashes", c.Hashes, fmt.Sprintf("must be in [1, %d]", MaxHashes))
	}
	if c.Tables <= 0 {
		return configErr("tables", c.Tables, "must be a positive integer")
	}
	if c.Dims <= 0 {
		return configErr("dimension", c.Dims, "must be a positive integer")
	}
	switch c.Family {
	case 0, FamilyCosine:
	case FamilySuperBit:
		if c.Hashes > c.Dims {
			return configErr("hashes", c.Hashes, "super-bit tables need hashes <= dimension")
		}
	default:
		return configErr("family", c.Family, "only CosineHash and SuperBit tables are supported")
	}
	return nil
}

func (c Config) withDefaults() Config {
	if c.Family == 0 {
		c.Family = FamilyCosine
	}
	if c.Source == nil {
		c.Source = NewUnseededSource()
	}
	if c.Namespace == "" {
		c.Namespace = defaultNamespace
	}
	if c.Logger == nil {
		c.Logger = common.NewDiscardLogger()
	}
	if c.Observer == nil {
		c.Observer = nopObserver{}
	}
	return c
}

// Observer receives index events, e.g. to export metrics
type Observer interface {
	ObserveInsert()
	// candidates is the number of distinct vectors re-ranked,
	// returned is the size of the result after truncation
	ObserveQuery(candidates, returned int, elapsed time.Duration)
}

type nopObserver struct{}

func (nopObserver) ObserveInsert() {}
func (nopObserver) ObserveQuery(int, int, time.Duration) {}
