package lsh

import (
	"encoding/binary"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/tidwall/btree"

	"github.com/gasparian/lsh-search-go/store"
	"github.com/gasparian/lsh-search-go/vector"
)

var (
	shortEntryErr = errors.New("entry record is truncated")
	badKeyErr     = errors.New("malformed bucket record key")
)

// Entry is an indexed vector. ID is the insertion ordinal within the index,
// Vector is a read-only copy of the inserted one.
type Entry struct {
	ID     uint64
	Label  string
	Vector *vector.Vector
}

// buckets maps a combined hash to the entries which fell into it
type buckets interface {
	// add appends e to the bucket; w, when not nil, is the transaction
	// the write belongs to
	add(w store.Writer, key uint64, e *Entry) error
	get(key uint64) ([]*Entry, error)
}

type memoryBuckets struct {
	m btree.Map[uint64, []*Entry]
}

func newMemoryBuckets() *memoryBuckets {
	return &memoryBuckets{}
}

func (b *memoryBuckets) add(_ store.Writer, key uint64, e *Entry) error {
	bucket, _ := b.m.Get(key)
	b.m.Set(key, append(bucket, e))
	return nil
}

func (b *memoryBuckets) get(key uint64) ([]*Entry, error) {
	bucket, _ := b.m.Get(key)
	return bucket, nil
}

// scan visits buckets in ascending key order
func (b *memoryBuckets) scan(fn func(key uint64, bucket []*Entry) bool) {
	b.m.Scan(fn)
}

func (b *memoryBuckets) len() int {
	return b.m.Len()
}

// storeBuckets keeps one record per (bucket, entry) pair in a store.Store
// under "<namespace>/<table>/<hash>/<id>", the value being the encoded entry.
// Numbers are zero-padded so that keys sort numerically.
type storeBuckets struct {
	st     store.Store
	prefix string
	dims   int
}

func newStoreBuckets(st store.Store, namespace string, table, dims int) *storeBuckets {
	return &storeBuckets{
		st:     st,
		prefix: fmt.Sprintf("%s/%d/", namespace, table),
		dims:   dims,
	}
}

func (b *storeBuckets) bucketPattern(key uint64) string {
	return fmt.Sprintf("%s%020d/*", b.prefix, key)
}

func (b *storeBuckets) recordKey(key, id uint64) string {
	return fmt.Sprintf("%s%020d/%020d", b.prefix, key, id)
}

func (b *storeBuckets) add(w store.Writer, key uint64, e *Entry) error {
	rec := appendEntry(nil, e)
	if w != nil {
		return w.Put(b.recordKey(key, e.ID), rec)
	}
	tx, err := b.st.Begin()
	if err != nil {
		return err
	}
	if err := tx.Put(b.recordKey(key, e.ID), rec); err != nil {
		tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (b *storeBuckets) get(key uint64) ([]*Entry, error) {
	it, err := b.st.FindMatching(b.bucketPattern(key))
	if err != nil {
		return nil, err
	}
	defer it.Close()
	bucket := make([]*Entry, 0)
	for {
		res, ok := it.Next()
		if !ok {
			break
		}
		e, _, err := decodeEntry(res.Value, b.dims)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", res.Key, err)
		}
		bucket = append(bucket, e)
	}
	return bucket, it.Err()
}

// maxID returns the largest entry id stored in the table, ok is false for an empty table
func (b *storeBuckets) maxID() (uint64, bool, error) {
	it, err := b.st.FindMatching(b.prefix + "*")
	if err != nil {
		return 0, false, err
	}
	defer it.Close()
	var maxID uint64
	found := false
	for {
		res, ok := it.Next()
		if !ok {
			break
		}
		id, err := parseRecordID(res.Key)
		if err != nil {
			return 0, false, err
		}
		if !found || id > maxID {
			maxID, found = id, true
		}
	}
	return maxID, found, it.Err()
}

// lookup returns the earliest stored entry carrying the label
func (b *storeBuckets) lookup(label string) (*Entry, bool, error) {
	it, err := b.st.FindMatching(b.prefix + "*")
	if err != nil {
		return nil, false, err
	}
	defer it.Close()
	var found *Entry
	for {
		res, ok := it.Next()
		if !ok {
			break
		}
		e, _, err := decodeEntry(res.Value, b.dims)
		if err != nil {
			return nil, false, fmt.Errorf("%s: %w", res.Key, err)
		}
		if e.Label == label && (found == nil || e.ID < found.ID) {
			found = e
		}
	}
	if err := it.Err(); err != nil {
		return nil, false, err
	}
	return found, found != nil, nil
}

func parseRecordID(key string) (uint64, error) {
	i := strings.LastIndexByte(key, '/')
	if i < 0 {
		return 0, fmt.Errorf("%s: %w", key, badKeyErr)
	}
	id, err := strconv.ParseUint(key[i+1:], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, badKeyErr)
	}
	return id, nil
}

// appendEntry encodes {uint64 id, uint16 labelLen, label, d x float32}
func appendEntry(buf []byte, e *Entry) []byte {
	buf = binary.LittleEndian.AppendUint64(buf, e.ID)
	buf = binary.LittleEndian.AppendUint16(buf, uint16(len(e.Label)))
	buf = append(buf, e.Label...)
	return append(buf, e.Vector.Bytes()...)
}

// decodeEntry returns the entry and the number of bytes consumed
func decodeEntry(buf []byte, dims int) (*Entry, int, error) {
	if len(buf) < 10 {
		return nil, 0, shortEntryErr
	}
	id := binary.LittleEndian.Uint64(buf)
	labelLen := int(binary.LittleEndian.Uint16(buf[8:]))
	n := 10 + labelLen + dims*4
	if len(buf) < n {
		return nil, 0, shortEntryErr
	}
	vec, err := vector.FromBytes(buf[10+labelLen : n])
	if err != nil {
		return nil, 0, err
	}
	return &Entry{
		ID:     id,
		Label:  string(buf[10 : 10+labelLen]),
		Vector: vec,
	}, n, nil
}
