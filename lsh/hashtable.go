package lsh

import (
	"fmt"

	"github.com/gasparian/lsh-search-go/store"
	"github.com/gasparian/lsh-search-go/vector"
)

// HashTable is one band of the index: k hash functions and the buckets
// addressed by their combined output. It is not safe for concurrent
// Add and Query; Index serializes them.
type HashTable struct {
	id        int
	dims      int
	functions []*CosineHash
	buckets   buckets
}

// NewHashTable creates in-memory table with k fresh random projections
func NewHashTable(id, k, d int, src *RandomSource) (*HashTable, error) {
	if k <= 0 || k > MaxHashes {
		return nil, configErr("hashes", k, fmt.Sprintf("must be in [1, %d]", MaxHashes))
	}
	sketch, err := NewCosineSketch(d, k, src)
	if err != nil {
		return nil, err
	}
	return newHashTable(id, d, sketch.Functions(), newMemoryBuckets()), nil
}

// newSuperBitTable uses the k orthogonalized hyperplanes of a single super-bit as projections
func newSuperBitTable(id, k, d int, src *RandomSource, b buckets) (*HashTable, error) {
	sb, err := NewSuperBit(d, k, 1, src)
	if err != nil {
		return nil, err
	}
	functions := make([]*CosineHash, k)
	for i, h := range sb.Hyperplanes() {
		functions[i] = cosineHashFrom(vector.FromFloat64(h))
	}
	return newHashTable(id, d, functions, b), nil
}

func newHashTable(id, d int, functions []*CosineHash, b buckets) *HashTable {
	return &HashTable{
		id:        id,
		dims:      d,
		functions: functions,
		buckets:   b,
	}
}

// Hash combines the outputs of the table's functions into the bucket key
func (t *HashTable) Hash(v *vector.Vector) (uint64, error) {
	if err := checkDims(t.dims, v); err != nil {
		return 0, err
	}
	bits := make([]uint8, len(t.functions))
	for i, h := range t.functions {
		bits[i] = h.Hash(v)
	}
	return Combine(bits)
}

// Add appends the entry to its bucket, duplicates are kept
func (t *HashTable) Add(e *Entry) error {
	key, err := t.Hash(e.Vector)
	if err != nil {
		return err
	}
	return t.buckets.add(nil, key, e)
}

func (t *HashTable) addKey(w store.Writer, key uint64, e *Entry) error {
	return t.buckets.add(w, key, e)
}

// Query returns the content of the bucket v falls into; an absent bucket is
// an empty result and is not created
func (t *HashTable) Query(v *vector.Vector) ([]*Entry, error) {
	key, err := t.Hash(v)
	if err != nil {
		return nil, err
	}
	return t.buckets.get(key)
}

// NumberOfHashes returns k
func (t *HashTable) NumberOfHashes() int {
	return len(t.functions)
}

// Functions returns the hash functions in bit order
func (t *HashTable) Functions() []*CosineHash {
	return t.functions
}

// ID returns the table position within its index
func (t *HashTable) ID() int {
	return t.id
}

func (t *HashTable) String() string {
	return fmt.Sprintf("HashTable id=%d hashes=%d dims=%d", t.id, len(t.functions), t.dims)
}
