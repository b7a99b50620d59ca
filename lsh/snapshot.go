package lsh

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"hash/crc32"
	"io"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/gasparian/lsh-search-go/vector"
)

const (
	snapshotMagic      = "LSHI"
	snapshotVersion    = 1
	snapshotHeaderSize = 7
	snapshotCRCSize    = 4
)

var (
	badMagicErr           = errors.New("not an index snapshot")
	unknownCompressionErr = errors.New("unknown compression")
	checksumErr           = errors.New("checksum mismatch")
	truncatedErr          = errors.New("unexpected end of snapshot")
	trailingDataErr       = errors.New("trailing data after the last table")
	storeSnapshotErr      = errors.New("store-backed index is persisted by its store")
)

// Compression of the snapshot body
type Compression uint8

const (
	CompressionNone Compression = iota
	CompressionLZ4
	CompressionZSTD
)

func (c Compression) String() string {
	switch c {
	case CompressionNone:
		return "none"
	case CompressionLZ4:
		return "lz4"
	case CompressionZSTD:
		return "zstd"
	}
	return fmt.Sprintf("Compression(%d)", uint8(c))
}

// ParseCompression maps "", "none", "lz4" and "zstd" to the compression
func ParseCompression(name string) (Compression, error) {
	switch strings.ToLower(name) {
	case "", "none":
		return CompressionNone, nil
	case "lz4":
		return CompressionLZ4, nil
	case "zstd":
		return CompressionZSTD, nil
	}
	return 0, configErr("compression", name, "must be one of none, lz4, zstd")
}

// SnapshotName ties the file to the index shape: <family>_<k>_<L>.bin
func SnapshotName(family FamilyTag, k, L int) string {
	return fmt.Sprintf("%s_%d_%d.bin", family, k, L)
}

// WriteTo writes uncompressed snapshot
func (idx *Index) WriteTo(w io.Writer) (int64, error) {
	return idx.WriteSnapshot(w, CompressionNone)
}

// WriteSnapshot writes the index as
//
//	"LSHI" | uint16 version | uint8 compression | body | uint32 crc32(body)
//
// All numbers are little endian, the checksum covers the uncompressed body.
func (idx *Index) WriteSnapshot(w io.Writer, c Compression) (int64, error) {
	body, err := idx.encodeBody()
	if err != nil {
		return 0, &SerializationError{Op: "encode", Err: err}
	}
	cw := &countingWriter{w: w}
	header := append([]byte(snapshotMagic), 0, 0, byte(c))
	binary.LittleEndian.PutUint16(header[4:], snapshotVersion)
	if _, err := cw.Write(header); err != nil {
		return cw.n, &SerializationError{Op: "write", Err: err}
	}
	if err := compress(cw, c, body); err != nil {
		return cw.n, &SerializationError{Op: "write", Err: err}
	}
	if _, err := cw.Write(binary.LittleEndian.AppendUint32(nil, crc32.ChecksumIEEE(body))); err != nil {
		return cw.n, &SerializationError{Op: "write", Err: err}
	}
	return cw.n, nil
}

// encodeBody lays out
//
//	uint8 family | uint32 k, L, d | uint64 touched, nextID
//	L*k*d float32 projections
//	uint64 entryCount | entries
//	per table: uint32 bucketCount | buckets {uint64 key, uint32 n, n*uint64 id}
func (idx *Index) encodeBody() ([]byte, error) {
	idx.mutex.RLock()
	defer idx.mutex.RUnlock()
	if idx.config.Store != nil {
		return nil, storeSnapshotErr
	}
	c := idx.config
	buf := make([]byte, 0, 29+4*c.Tables*c.Hashes*c.Dims+len(idx.entries)*(10+4*c.Dims))
	buf = append(buf, byte(c.Family))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Hashes))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Tables))
	buf = binary.LittleEndian.AppendUint32(buf, uint32(c.Dims))
	buf = binary.LittleEndian.AppendUint64(buf, idx.touched.Load())
	buf = binary.LittleEndian.AppendUint64(buf, idx.nextID)
	for _, t := range idx.tables {
		for _, h := range t.functions {
			buf = append(buf, h.projection.Bytes()...)
		}
	}
	buf = binary.LittleEndian.AppendUint64(buf, uint64(len(idx.entries)))
	for _, e := range idx.entries {
		buf = appendEntry(buf, e)
	}
	for _, t := range idx.tables {
		mb := t.buckets.(*memoryBuckets)
		buf = binary.LittleEndian.AppendUint32(buf, uint32(mb.len()))
		mb.scan(func(key uint64, bucket []*Entry) bool {
			buf = binary.LittleEndian.AppendUint64(buf, key)
			buf = binary.LittleEndian.AppendUint32(buf, uint32(len(bucket)))
			for _, e := range bucket {
				buf = binary.LittleEndian.AppendUint64(buf, e.ID)
			}
			return true
		})
	}
	return buf, nil
}

func compress(w io.Writer, c Compression, body []byte) error {
	switch c {
	case CompressionNone:
		_, err := w.Write(body)
		return err
	case CompressionLZ4:
		zw := lz4.NewWriter(w)
		if _, err := zw.Write(body); err != nil {
			return err
		}
		return zw.Close()
	case CompressionZSTD:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return err
		}
		if _, err := zw.Write(body); err != nil {
			zw.Close()
			return err
		}
		return zw.Close()
	}
	return fmt.Errorf("%w: %d", unknownCompressionErr, c)
}

func decompress(payload []byte, c Compression) ([]byte, error) {
	switch c {
	case CompressionNone:
		return payload, nil
	case CompressionLZ4:
		return io.ReadAll(lz4.NewReader(bytes.NewReader(payload)))
	case CompressionZSTD:
		zr, err := zstd.NewReader(bytes.NewReader(payload))
		if err != nil {
			return nil, err
		}
		defer zr.Close()
		return io.ReadAll(zr)
	}
	return nil, fmt.Errorf("%w: %d", unknownCompressionErr, c)
}

// ReadIndex decodes a snapshot written by WriteSnapshot. The shape and the
// family come from the snapshot; Logger, Verbose and Observer from config.
// Loaded indexes always keep their buckets in memory.
func ReadIndex(r io.Reader, config Config) (*Index, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, &SerializationError{Op: "read", Err: err}
	}
	if len(data) < snapshotHeaderSize+snapshotCRCSize {
		return nil, &SerializationError{Op: "read", Err: truncatedErr}
	}
	if string(data[:4]) != snapshotMagic {
		return nil, &SerializationError{Op: "read", Err: badMagicErr}
	}
	if v := binary.LittleEndian.Uint16(data[4:]); v != snapshotVersion {
		return nil, &SerializationError{Op: "read", Err: fmt.Errorf("unsupported version %d", v)}
	}
	body, err := decompress(data[snapshotHeaderSize:len(data)-snapshotCRCSize], Compression(data[6]))
	if err != nil {
		return nil, &SerializationError{Op: "decompress", Err: err}
	}
	if crc32.ChecksumIEEE(body) != binary.LittleEndian.Uint32(data[len(data)-snapshotCRCSize:]) {
		return nil, &SerializationError{Op: "read", Err: checksumErr}
	}
	idx, err := decodeBody(body, config)
	if err != nil {
		return nil, &SerializationError{Op: "decode", Err: err}
	}
	return idx, nil
}

func decodeBody(body []byte, config Config) (*Index, error) {
	d := &decoder{buf: body}
	family := FamilyTag(d.u8())
	config.Hashes = int(d.u32())
	config.Tables = int(d.u32())
	config.Dims = int(d.u32())
	touched := d.u64()
	nextID := d.u64()
	if d.err != nil {
		return nil, d.err
	}
	if config.Store != nil && config.Logger != nil {
		config.Logger.Warn.Println("store is ignored for the index loaded from snapshot")
	}
	config.Store = nil
	config.Family = family
	if err := config.Validate(); err != nil {
		return nil, err
	}
	config = config.withDefaults()
	k, dims := config.Hashes, config.Dims
	// projections alone take L*k*d floats, so the header can't claim more
	// tables than the body holds
	projBytes := uint64(k) * uint64(dims) * 4
	if uint64(config.Tables) > uint64(d.remaining())/projBytes {
		return nil, fmt.Errorf("%d tables of %d projections with %d dimensions: %w",
			config.Tables, k, dims, truncatedErr)
	}

	idx := &Index{config: config, nextID: nextID}
	idx.touched.Store(touched)
	idx.tables = make([]*HashTable, config.Tables)
	for i := range idx.tables {
		functions := make([]*CosineHash, k)
		for j := range functions {
			proj, err := vector.FromBytes(d.bytes(4 * dims))
			if err != nil || d.err != nil {
				return nil, errors.Join(d.err, err)
			}
			functions[j] = cosineHashFrom(proj)
		}
		idx.tables[i] = newHashTable(i, dims, functions, newMemoryBuckets())
	}

	entryCount := d.u64()
	if d.err != nil {
		return nil, d.err
	}
	if entryCount != nextID || entryCount > uint64(d.remaining()/(10+4*dims)) {
		return nil, fmt.Errorf("bad entry count %d for next id %d", entryCount, nextID)
	}
	idx.entries = make([]*Entry, entryCount)
	for i := range idx.entries {
		e, n, err := decodeEntry(d.rest(), dims)
		if err != nil {
			return nil, err
		}
		if e.ID != uint64(i) {
			return nil, fmt.Errorf("entry %d has id %d", i, e.ID)
		}
		d.skip(n)
		idx.entries[i] = e
	}

	for _, t := range idx.tables {
		mb := t.buckets.(*memoryBuckets)
		bucketCount := d.u32()
		for b := uint32(0); b < bucketCount && d.err == nil; b++ {
			key := d.u64()
			n := d.u32()
			if d.err == nil && uint64(n) > uint64(d.remaining()/8) {
				return nil, truncatedErr
			}
			bucket := make([]*Entry, 0, n)
			for j := uint32(0); j < n && d.err == nil; j++ {
				id := d.u64()
				if id >= entryCount {
					return nil, fmt.Errorf("bucket %d of table %d refers to unknown entry %d", key, t.id, id)
				}
				bucket = append(bucket, idx.entries[id])
			}
			mb.m.Set(key, bucket)
		}
		if d.err != nil {
			return nil, d.err
		}
	}
	if d.remaining() != 0 {
		return nil, trailingDataErr
	}
	return idx, nil
}

type decoder struct {
	buf []byte
	off int
	err error
}

func (d *decoder) bytes(n int) []byte {
	if d.err != nil {
		return nil
	}
	if n < 0 || d.off+n > len(d.buf) {
		d.err = truncatedErr
		return nil
	}
	out := d.buf[d.off : d.off+n]
	d.off += n
	return out
}

func (d *decoder) u8() uint8 {
	if b := d.bytes(1); b != nil {
		return b[0]
	}
	return 0
}

func (d *decoder) u32() uint32 {
	if b := d.bytes(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (d *decoder) u64() uint64 {
	if b := d.bytes(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

func (d *decoder) rest() []byte {
	return d.buf[d.off:]
}

func (d *decoder) skip(n int) {
	d.off += n
}

func (d *decoder) remaining() int {
	return len(d.buf) - d.off
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

// Save writes the snapshot into dir under SnapshotName, replacing the
// previous one atomically. It returns the file path.
func (idx *Index) Save(dir string, c Compression) (string, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	path := filepath.Join(dir, SnapshotName(idx.Family(), idx.NumberOfHashes(), idx.NumberOfHashTables()))
	f, err := os.CreateTemp(dir, filepath.Base(path)+".tmp*")
	if err != nil {
		return "", err
	}
	defer os.Remove(f.Name())
	defer f.Close()

	w := bufio.NewWriter(f)
	if _, err := idx.WriteSnapshot(w, c); err != nil {
		return "", err
	}
	if err := w.Flush(); err != nil {
		return "", err
	}
	if err := f.Sync(); err != nil {
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}
	if err := os.Rename(f.Name(), path); err != nil {
		return "", err
	}
	return path, nil
}

// Load reads the snapshot matching the config shape from dir, see LoadWith
func Load(dir string, config Config) (*Index, error) {
	return LoadWith(dir, config, nil)
}

// LoadWith reads <dir>/SnapshotName(config.Family, config.Hashes, config.Tables).
// A missing file gives a fresh index and no error. A corrupt or incompatible
// one gives a fresh index together with the *SerializationError, which is
// also logged. config.Dims = 0 takes the dimension from the snapshot, then
// there is no fresh index to fall back to and the error is returned alone.
// wrap, when set, wraps the file reader, e.g. to report progress.
func LoadWith(dir string, config Config, wrap func(r io.Reader, size int64) io.Reader) (*Index, error) {
	inferDims := config.Dims == 0
	check := config
	if inferDims {
		check.Dims = math.MaxInt32
	}
	if err := check.Validate(); err != nil {
		return nil, err
	}
	family := config.Family
	if family == 0 {
		family = FamilyCosine
	}
	path := filepath.Join(dir, SnapshotName(family, config.Hashes, config.Tables))
	f, err := os.Open(path)
	if errors.Is(err, fs.ErrNotExist) {
		if inferDims {
			return nil, configErr("dimension", 0, "no snapshot at "+path+" to take it from")
		}
		return New(config)
	}
	if err != nil {
		return fallback(config, path, &SerializationError{Op: "open", Err: err})
	}
	defer f.Close()

	var r io.Reader = bufio.NewReader(f)
	if wrap != nil {
		var size int64
		if st, err := f.Stat(); err == nil {
			size = st.Size()
		}
		r = wrap(r, size)
	}
	idx, err := ReadIndex(r, config)
	if err != nil {
		return fallback(config, path, err)
	}
	if idx.NumberOfHashes() != config.Hashes || idx.NumberOfHashTables() != config.Tables {
		return fallback(config, path, &SerializationError{
			Op: "decode",
			Err: fmt.Errorf("snapshot holds %d hashes in %d tables, expected %d in %d",
				idx.NumberOfHashes(), idx.NumberOfHashTables(), config.Hashes, config.Tables),
		})
	}
	if !inferDims && idx.Dimension() != config.Dims {
		return fallback(config, path, &SerializationError{
			Op:  "decode",
			Err: &DimensionMismatchError{Expected: config.Dims, Actual: idx.Dimension()},
		})
	}
	return idx, nil
}

func fallback(config Config, path string, loadErr error) (*Index, error) {
	logger := config.withDefaults().Logger
	if config.Dims == 0 {
		logger.Err.Printf("can't load index snapshot %s: %v\n", path, loadErr)
		return nil, loadErr
	}
	logger.Err.Printf("can't load index snapshot %s, starting with an empty index: %v\n", path, loadErr)
	idx, err := New(config)
	if err != nil {
		return nil, err
	}
	return idx, loadErr
}
