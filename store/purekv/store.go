package purekv

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/gasparian/lsh-search-go/store"
	pkv "github.com/gasparian/pure-kv-go/client"
)

var (
	wrongValueTypeErr = errors.New("purekv: stored value is not a byte slice")
)

const defaultBucket = "lsh"

// Config holds pure-kv server address, client timeout (ms) and the name
// of the registry bucket
type Config struct {
	Address string
	Timeout int
	Bucket  string
}

// PureKvStore keeps every key prefix (everything up to the last '/') in
// its own pure-kv bucket, so a bucket lookup walks only its own records.
// Names of the data buckets are kept in the registry bucket to survive
// reconnects. The server holds a single cursor per bucket, hence
// FindMatching takes the exclusive lock and always drains it.
type PureKvStore struct {
	mx      sync.RWMutex
	config  Config
	client  *pkv.Client
	gen     int
	buckets map[string]string // key prefix -> pure-kv bucket
	closed  bool
}

// New creates the store, it's not connected until Start is called
func New(config Config) *PureKvStore {
	if config.Bucket == "" {
		config.Bucket = defaultBucket
	}
	return &PureKvStore{
		config:  config,
		client:  pkv.New(config.Address, config.Timeout),
		buckets: make(map[string]string),
	}
}

// Start opens the connection and loads the registry,
// creating it on the first run
func (p *PureKvStore) Start() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	err := p.client.Open()
	if err != nil {
		return err
	}
	// NOTE: MakeIterator fails only for a missing bucket on a live connection
	if err := p.client.MakeIterator(p.config.Bucket); err != nil {
		if err := p.client.Create(p.config.Bucket); err != nil {
			p.client.Close()
			return fmt.Errorf("purekv: creating registry %q: %w", p.config.Bucket, err)
		}
		return nil
	}
	entries := make(map[string]string)
	err = p.drain(p.config.Bucket, func(key string, val []byte) {
		entries[key] = string(val)
	})
	if err != nil {
		p.client.Close()
		return err
	}
	gens := make(map[string]int, len(entries))
	for name := range entries {
		gen, ok := p.generation(name)
		if !ok {
			continue
		}
		gens[name] = gen
		if gen > p.gen {
			p.gen = gen
		}
	}
	for name, prefix := range entries {
		if gen, ok := gens[name]; ok && gen == p.gen {
			p.buckets[prefix] = name
		}
	}
	return nil
}

func (p *PureKvStore) Close() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	return p.client.Close()
}

// Clear destroys every data bucket. Server drops buckets asynchronously,
// so the records written afterwards go to buckets of the next generation.
func (p *PureKvStore) Clear() error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return store.ErrClosed
	}
	for prefix, name := range p.buckets {
		if err := p.client.Destroy(name); err != nil {
			return err
		}
		if err := p.client.Del(p.config.Bucket, name); err != nil {
			return err
		}
		delete(p.buckets, prefix)
	}
	p.gen++
	return nil
}

func (p *PureKvStore) Put(key string, value []byte) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return store.ErrClosed
	}
	return p.set(key, value)
}

// Get returns the value stored under the exact key
func (p *PureKvStore) Get(key string) ([]byte, bool) {
	p.mx.RLock()
	defer p.mx.RUnlock()
	if p.closed {
		return nil, false
	}
	name, ok := p.buckets[keyPrefix(key)]
	if !ok {
		return nil, false
	}
	tmpVal, ok := p.client.Get(name, key)
	if !ok {
		return nil, false
	}
	val, ok := tmpVal.([]byte)
	return val, ok
}

// FindMatching walks the buckets whose prefix is compatible with the
// literal part of the pattern
func (p *PureKvStore) FindMatching(pattern string) (store.Iterator, error) {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return nil, store.ErrClosed
	}
	literal := store.Prefix(pattern)
	names := make([]string, 0)
	for prefix, name := range p.buckets {
		if strings.HasPrefix(prefix, literal) || strings.HasPrefix(literal, prefix) {
			names = append(names, name)
		}
	}
	sort.Strings(names)

	results := make([]store.Result, 0)
	var valErr error
	for _, name := range names {
		if err := p.client.MakeIterator(name); err != nil {
			return nil, fmt.Errorf("purekv: iterating %q: %w", name, err)
		}
		err := p.drainValues(name, func(key string, tmpVal interface{}) {
			if !store.Match(pattern, key) {
				return
			}
			val, ok := tmpVal.([]byte)
			if !ok {
				if valErr == nil {
					valErr = fmt.Errorf("%s: %w", key, wrongValueTypeErr)
				}
				return
			}
			results = append(results, store.Result{Key: key, Value: val})
		})
		if err != nil {
			return nil, err
		}
	}
	if valErr != nil {
		return nil, valErr
	}
	sort.Slice(results, func(i, j int) bool {
		return results[i].Key < results[j].Key
	})
	return store.NewSliceIterator(results), nil
}

func (p *PureKvStore) Begin() (store.Tx, error) {
	p.mx.RLock()
	defer p.mx.RUnlock()
	if p.closed {
		return nil, store.ErrClosed
	}
	return store.NewBatch(p.apply), nil
}

func (p *PureKvStore) apply(puts []store.Result) error {
	p.mx.Lock()
	defer p.mx.Unlock()
	if p.closed {
		return store.ErrClosed
	}
	for _, r := range puts {
		if err := p.set(r.Key, r.Value); err != nil {
			return err
		}
	}
	return nil
}

// set must be called under the write lock. The server can't set a key
// of a missing bucket, so the bucket is created and registered first.
func (p *PureKvStore) set(key string, value []byte) error {
	prefix := keyPrefix(key)
	name, ok := p.buckets[prefix]
	if !ok {
		name = p.bucketName(prefix)
		if err := p.client.Create(name); err != nil {
			return fmt.Errorf("purekv: creating bucket %q: %w", name, err)
		}
		if err := p.client.Set(p.config.Bucket, name, []byte(prefix)); err != nil {
			return fmt.Errorf("purekv: registering bucket %q: %w", name, err)
		}
		p.buckets[prefix] = name
	}
	return p.client.Set(name, key, value)
}

// drain reads an iterator created by MakeIterator up to its end.
// Abandoned cursors keep the server shards locked, so it never stops early.
func (p *PureKvStore) drain(name string, fn func(key string, val []byte)) error {
	return p.drainValues(name, func(key string, tmpVal interface{}) {
		val, _ := tmpVal.([]byte)
		fn(key, val)
	})
}

func (p *PureKvStore) drainValues(name string, fn func(key string, val interface{})) error {
	for {
		key, tmpVal, err := p.client.Next(name)
		if err != nil {
			return fmt.Errorf("purekv: reading %q: %w", name, err)
		}
		if key == "" && tmpVal == nil {
			return nil
		}
		fn(key, tmpVal)
	}
}

func (p *PureKvStore) bucketName(prefix string) string {
	return fmt.Sprintf("%s/%d/%s", p.config.Bucket, p.gen, prefix)
}

func (p *PureKvStore) generation(name string) (int, bool) {
	rest := strings.TrimPrefix(name, p.config.Bucket+"/")
	if rest == name {
		return 0, false
	}
	i := strings.IndexByte(rest, '/')
	if i < 0 {
		return 0, false
	}
	gen, err := strconv.Atoi(rest[:i])
	return gen, err == nil
}

// keyPrefix returns the key up to and including its last '/'
func keyPrefix(key string) string {
	return key[:strings.LastIndexByte(key, '/')+1]
}
