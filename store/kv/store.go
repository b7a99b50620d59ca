package kv

import (
	"strings"
	"sync"

	"github.com/gasparian/lsh-search-go/store"
	"github.com/tidwall/btree"
)

// KVStore keeps records in an ordered in-memory map
type KVStore struct {
	mx     sync.RWMutex
	m      *btree.Map[string, []byte]
	closed bool
}

func NewKVStore() *KVStore {
	return &KVStore{
		m: new(btree.Map[string, []byte]),
	}
}

func (s *KVStore) Put(key string, value []byte) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	s.set(key, value)
	return nil
}

func (s *KVStore) set(key string, value []byte) {
	val := make([]byte, len(value))
	copy(val, value)
	s.m.Set(key, val)
}

// FindMatching scans the keys starting with the literal prefix of the pattern.
// Matches are collected before returning, so the iterator never holds the lock.
func (s *KVStore) FindMatching(pattern string) (store.Iterator, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	prefix := store.Prefix(pattern)
	results := make([]store.Result, 0)
	s.m.Ascend(prefix, func(key string, value []byte) bool {
		if !strings.HasPrefix(key, prefix) {
			return false
		}
		if store.Match(pattern, key) {
			results = append(results, store.Result{Key: key, Value: value})
		}
		return true
	})
	return store.NewSliceIterator(results), nil
}

func (s *KVStore) Begin() (store.Tx, error) {
	s.mx.RLock()
	defer s.mx.RUnlock()
	if s.closed {
		return nil, store.ErrClosed
	}
	return store.NewBatch(s.apply), nil
}

func (s *KVStore) apply(puts []store.Result) error {
	s.mx.Lock()
	defer s.mx.Unlock()
	if s.closed {
		return store.ErrClosed
	}
	for _, p := range puts {
		s.set(p.Key, p.Value)
	}
	return nil
}

// Len returns the number of records
func (s *KVStore) Len() int {
	s.mx.RLock()
	defer s.mx.RUnlock()
	return s.m.Len()
}

// Clear drops all the records
func (s *KVStore) Clear() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.m = new(btree.Map[string, []byte])
	return nil
}

func (s *KVStore) Close() error {
	s.mx.Lock()
	defer s.mx.Unlock()
	s.closed = true
	return nil
}
