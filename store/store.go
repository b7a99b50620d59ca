package store

import (
	"errors"
	"strings"
	"sync"
)

var (
	// ErrClosed is returned by every operation on a closed store
	ErrClosed = errors.New("store: closed")
	// ErrTxDone is returned when a committed or rolled back transaction is used
	ErrTxDone = errors.New("store: transaction has already been committed or rolled back")
)

// Result is a key/value record returned by FindMatching
type Result struct {
	Key   string
	Value []byte
}

// Iterator walks over the records matched by FindMatching in key order
type Iterator interface {
	Next() (Result, bool)
	Err() error
	Close() error
}

// Writer stores a value under the key, overwriting the previous one
type Writer interface {
	Put(key string, value []byte) error
}

// Tx groups puts so that they become visible together
type Tx interface {
	Writer
	Commit() error
	Rollback() error
}

// Store methods to be able to hold the search index buckets outside of
// the process. Keys are flat strings, FindMatching takes a glob pattern
// where '*' matches any sequence (including '/') and '?' one byte.
type Store interface {
	Writer
	FindMatching(pattern string) (Iterator, error)
	Begin() (Tx, error)
	Close() error
}

// Match reports whether key matches the glob pattern
func Match(pattern, key string) bool {
	p, k := 0, 0
	star, mark := -1, 0
	for k < len(key) {
		switch {
		case p < len(pattern) && (pattern[p] == '?' || pattern[p] == key[k]):
			p++
			k++
		case p < len(pattern) && pattern[p] == '*':
			star, mark = p, k
			p++
		case star >= 0:
			p = star + 1
			mark++
			k = mark
		default:
			return false
		}
	}
	for p < len(pattern) && pattern[p] == '*' {
		p++
	}
	return p == len(pattern)
}

// Prefix returns the literal part of the pattern before the first wildcard
func Prefix(pattern string) string {
	if i := strings.IndexAny(pattern, "*?"); i >= 0 {
		return pattern[:i]
	}
	return pattern
}

// SliceIterator iterates over already fetched records
type SliceIterator struct {
	results []Result
	pos     int
}

// NewSliceIterator creates iterator over the results
func NewSliceIterator(results []Result) *SliceIterator {
	return &SliceIterator{results: results}
}

func (it *SliceIterator) Next() (Result, bool) {
	if it.pos >= len(it.results) {
		return Result{}, false
	}
	res := it.results[it.pos]
	it.pos++
	return res, true
}

func (it *SliceIterator) Err() error { return nil }

func (it *SliceIterator) Close() error {
	it.pos = len(it.results)
	return nil
}

// Batch is a transaction which buffers puts in memory and hands them
// to apply on commit. Later puts of the same key win.
type Batch struct {
	mx    sync.Mutex
	puts  []Result
	apply func([]Result) error
	done  bool
}

// NewBatch creates transaction flushed by apply
func NewBatch(apply func([]Result) error) *Batch {
	return &Batch{apply: apply}
}

func (b *Batch) Put(key string, value []byte) error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.done {
		return ErrTxDone
	}
	val := make([]byte, len(value))
	copy(val, value)
	b.puts = append(b.puts, Result{Key: key, Value: val})
	return nil
}

func (b *Batch) Commit() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.done {
		return ErrTxDone
	}
	b.done = true
	return b.apply(b.puts)
}

func (b *Batch) Rollback() error {
	b.mx.Lock()
	defer b.mx.Unlock()
	if b.done {
		return ErrTxDone
	}
	b.done = true
	b.puts = nil
	return nil
}
