package lsh

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	guuid "github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/gasparian/lsh-search-go/parallel"
	"github.com/gasparian/lsh-search-go/vector"
)

const rerankParallelThreshold = 512

// Candidate is a query result: an indexed vector and its cosine distance to the query
type Candidate struct {
	ID       uint64
	Label    string
	Vector   *vector.Vector
	Distance float64
}

// Index holds L independently randomized hash tables. A vector colliding
// with the query in any of them becomes a candidate, candidates are then
// re-ranked by the exact cosine distance.
type Index struct {
	mutex   sync.RWMutex
	config  Config
	tables  []*HashTable
	entries []*Entry // in-memory buckets only, position == ID
	nextID  uint64
	touched atomic.Uint64
}

// New creates the index; with a store attached it continues the ids of the
// records already stored under the namespace
func New(config Config) (*Index, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	seeded := config.Source != nil
	config = config.withDefaults()

	idx := &Index{config: config}
	tables := make([]*HashTable, config.Tables)
	var g errgroup.Group
	for i := range tables {
		g.Go(func() error {
			t, err := idx.newTable(i)
			tables[i] = t
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	idx.tables = tables

	if sb, ok := tables[0].buckets.(*storeBuckets); ok {
		maxID, found, err := sb.maxID()
		if err != nil {
			return nil, fmt.Errorf("recovering ids from store: %w", err)
		}
		if found {
			idx.nextID = maxID + 1
			if !seeded {
				config.Logger.Warn.Printf("store namespace %q holds %d entries but the hash functions are unseeded, old records won't be found\n",
					config.Namespace, idx.nextID)
			}
		}
	}
	return idx, nil
}

// NewIndex creates in-memory cosine index with k hashes per table, L tables and dimension d
func NewIndex(k, L, d int) (*Index, error) {
	return New(Config{Hashes: k, Tables: L, Dims: d})
}

func (idx *Index) newTable(i int) (*HashTable, error) {
	c := idx.config
	src := c.Source.Derive(uint64(i))
	var b buckets = newMemoryBuckets()
	if c.Store != nil {
		b = newStoreBuckets(c.Store, c.Namespace, i, c.Dims)
	}
	if c.Family == FamilySuperBit {
		return newSuperBitTable(i, c.Hashes, c.Dims, src, b)
	}
	sketch, err := NewCosineSketch(c.Dims, c.Hashes, src)
	if err != nil {
		return nil, err
	}
	return newHashTable(i, c.Dims, sketch.Functions(), b), nil
}

// Insert adds the vector under a random label and returns its id
func (idx *Index) Insert(v *vector.Vector) (uint64, error) {
	return idx.Add(guuid.NewString(), v)
}

// Add stores a read-only copy of v in every table and returns the entry id
func (idx *Index) Add(label string, v *vector.Vector) (uint64, error) {
	if err := checkDims(idx.config.Dims, v); err != nil {
		return 0, err
	}
	if len(label) > math.MaxUint16 {
		return 0, configErr("label", len(label), "label must be shorter than 64KiB")
	}
	// hash functions never change, so keys are computed outside of the lock
	keys := make([]uint64, len(idx.tables))
	for i, t := range idx.tables {
		key, err := t.Hash(v)
		if err != nil {
			return 0, err
		}
		keys[i] = key
	}
	e := &Entry{Label: label, Vector: vector.ReadOnly(v.Values())}

	idx.mutex.Lock()
	defer idx.mutex.Unlock()
	e.ID = idx.nextID
	if err := idx.addKeys(keys, e); err != nil {
		return 0, err
	}
	idx.nextID++
	idx.config.Observer.ObserveInsert()
	return e.ID, nil
}

func (idx *Index) addKeys(keys []uint64, e *Entry) error {
	if idx.config.Store == nil {
		for i, t := range idx.tables {
			if err := t.addKey(nil, keys[i], e); err != nil {
				return err
			}
		}
		idx.entries = append(idx.entries, e)
		return nil
	}
	tx, err := idx.config.Store.Begin()
	if err != nil {
		return err
	}
	for i, t := range idx.tables {
		if err := t.addKey(tx, keys[i], e); err != nil {
			tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Query returns the indexed vectors sharing a bucket with q in at least one
// table, closest first. Each vector appears once; equal distances are
// ordered by insertion. maxSize <= 0 returns every candidate.
func (idx *Index) Query(q *vector.Vector, maxSize int) ([]Candidate, error) {
	if err := checkDims(idx.config.Dims, q); err != nil {
		return nil, err
	}
	start := time.Now()

	idx.mutex.RLock()
	found := make([][]*Entry, len(idx.tables))
	var g errgroup.Group
	for i, t := range idx.tables {
		g.Go(func() error {
			bucket, err := t.Query(q)
			found[i] = bucket
			return err
		})
	}
	err := g.Wait()
	idx.mutex.RUnlock()
	if err != nil {
		return nil, err
	}

	seen := make(map[uint64]struct{})
	candidates := make([]Candidate, 0)
	for i, bucket := range found {
		if idx.config.Verbose {
			idx.config.Logger.Info.Printf("table %d: %d entries in bucket\n", i, len(bucket))
		}
		for _, e := range bucket {
			if _, ok := seen[e.ID]; ok {
				continue
			}
			seen[e.ID] = struct{}{}
			candidates = append(candidates, Candidate{ID: e.ID, Label: e.Label, Vector: e.Vector})
		}
	}
	idx.touched.Add(uint64(len(candidates)))

	parallel.For(len(candidates), rerankParallelThreshold, func(i int) {
		// dimensions were checked on insert
		candidates[i].Distance, _ = vector.CosineDistance(q, candidates[i].Vector)
	})
	slices.SortFunc(candidates, func(a, b Candidate) int {
		if c := cmp.Compare(a.Distance, b.Distance); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	total := len(candidates)
	if maxSize > 0 && len(candidates) > maxSize {
		candidates = candidates[:maxSize]
	}
	idx.config.Observer.ObserveQuery(total, len(candidates), time.Since(start))
	return candidates, nil
}

// Touched returns the number of distinct candidates re-ranked by all queries so far
func (idx *Index) Touched() uint64 {
	return idx.touched.Load()
}

// Len returns the number of inserted vectors
func (idx *Index) Len() int {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	return int(idx.nextID)
}

// Lookup returns the first inserted entry carrying the label. Store-backed
// indexes scan the records of the first table.
func (idx *Index) Lookup(label string) (*Entry, bool, error) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	if sb, ok := idx.tables[0].buckets.(*storeBuckets); ok {
		return sb.lookup(label)
	}
	for _, e := range idx.entries {
		if e.Label == label {
			return e, true, nil
		}
	}
	return nil, false, nil
}

// NumberOfHashTables returns L
func (idx *Index) NumberOfHashTables() int {
	return len(idx.tables)
}

// NumberOfHashes returns k
func (idx *Index) NumberOfHashes() int {
	return idx.config.Hashes
}

// Dimension returns d
func (idx *Index) Dimension() int {
	return idx.config.Dims
}

// Family returns the family of the tables' hash functions
func (idx *Index) Family() FamilyTag {
	return idx.config.Family
}

// Tables returns the hash tables in order
func (idx *Index) Tables() []*HashTable {
	return slices.Clone(idx.tables)
}

func (idx *Index) String() string {
	return fmt.Sprintf("Index family=%s hashes=%d tables=%d dims=%d entries=%d",
		idx.config.Family, idx.config.Hashes, len(idx.tables), idx.config.Dims, idx.Len())
}
