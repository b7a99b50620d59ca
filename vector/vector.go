// Package vector implements the dense float32 vector used everywhere in the
// search index, together with the dot product, norm and cosine similarity
// primitives the hash families and the re-ranking step are built on.
package vector

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"strings"
)

var (
	// ErrReadOnly is returned by mutating methods of a read-only vector
	ErrReadOnly   = errors.New("unsupported operation: vector is read-only")
	// ErrZeroNorm is returned when a zero vector is normalized
	ErrZeroNorm   = errors.New("vector has zero norm")
	bufferSizeErr = errors.New("buffer length must be a multiple of 4")
)

// DimensionMismatchError indicates that two vectors, or a vector and an index,
// disagree on dimensionality
type DimensionMismatchError struct {
	Expected int
	Actual   int
}

func (e *DimensionMismatchError) Error() string {
	return fmt.Sprintf("dimension mismatch: expected %d, got %d", e.Expected, e.Actual)
}

// Vector is a fixed-length sequence of float32 values.
// A read-only vector rejects Set and Normalize with ErrReadOnly.
type Vector struct {
	data     []float32
	readOnly bool
}

// New creates zeroed mutable vector of d elements
func New(d int) *Vector {
	return &Vector{data: make([]float32, d)}
}

// FromSlice creates mutable vector holding a copy of vals
func FromSlice(vals []float32) *Vector {
	data := make([]float32, len(vals))
	copy(data, vals)
	return &Vector{data: data}
}

// FromFloat64 creates mutable vector converting vals to float32
func FromFloat64(vals []float64) *Vector {
	data := make([]float32, len(vals))
	for i, v := range vals {
		data[i] = float32(v)
	}
	return &Vector{data: data}
}

// ReadOnly wraps vals without copying; the caller must not modify vals afterwards
func ReadOnly(vals []float32) *Vector {
	return &Vector{data: vals, readOnly: true}
}

// FromBytes decodes little-endian float32 buffer into a read-only vector
func FromBytes(buf []byte) (*Vector, error) {
	if len(buf)%4 != 0 {
		return nil, bufferSizeErr
	}
	data := make([]float32, len(buf)/4)
	for i := range data {
		data[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return &Vector{data: data, readOnly: true}, nil
}

// Bytes encodes the vector as little-endian float32 buffer
func (v *Vector) Bytes() []byte {
	buf := make([]byte, len(v.data)*4)
	for i, x := range v.data {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(x))
	}
	return buf
}

// Size returns the vector dimension
func (v *Vector) Size() int {
	return len(v.data)
}

// Get returns the i-th element
func (v *Vector) Get(i int) float32 {
	return v.data[i]
}

// Set assigns the i-th element
func (v *Vector) Set(i int, x float32) error {
	if v.readOnly {
		return ErrReadOnly
	}
	v.data[i] = x
	return nil
}

// IsReadOnly reports whether mutation is rejected
func (v *Vector) IsReadOnly() bool {
	return v.readOnly
}

// Values returns a copy of the underlying elements
func (v *Vector) Values() []float32 {
	out := make([]float32, len(v.data))
	copy(out, v.data)
	return out
}

// Float64 returns the elements converted to float64
func (v *Vector) Float64() []float64 {
	out := make([]float64, len(v.data))
	for i, x := range v.data {
		out[i] = float64(x)
	}
	return out
}

// Equal reports element-wise bit equality
func (v *Vector) Equal(o *Vector) bool {
	if len(v.data) != len(o.data) {
		return false
	}
	for i := range v.data {
		if math.Float32bits(v.data[i]) != math.Float32bits(o.data[i]) {
			return false
		}
	}
	return true
}

// DotAt computes the dot product of length elements of v starting at off
// and of o starting at oOff. Out of range offsets panic like slice indexing.
func (v *Vector) DotAt(off int, o *Vector, oOff, length int) float64 {
	return dot(v.data[off:off+length], o.data[oOff:oOff+length])
}

// Norm returns the L2 norm
func (v *Vector) Norm() float64 {
	return math.Sqrt(sumSquares(v.data))
}

// Normalize scales the vector to unit length in place
func (v *Vector) Normalize() error {
	if v.readOnly {
		return ErrReadOnly
	}
	norm := v.Norm()
	if norm == 0 {
		return ErrZeroNorm
	}
	for i := range v.data {
		v.data[i] = float32(float64(v.data[i]) / norm)
	}
	return nil
}

func (v *Vector) String() string {
	var sb strings.Builder
	sb.WriteByte('[')
	for i, x := range v.data {
		if i > 0 {
			sb.WriteByte(' ')
		}
		fmt.Fprintf(&sb, "%g", x)
	}
	sb.WriteByte(']')
	return sb.String()
}

// Dot returns the dot product of two vectors of equal size
func Dot(a, b *Vector) (float64, error) {
	if a.Size() != b.Size() {
		return 0, &DimensionMismatchError{Expected: a.Size(), Actual: b.Size()}
	}
	return dot(a.data, b.data), nil
}

// CosineSimilarity computes dot(a,b) / (|a|*|b|).
// Similarity with a zero vector is defined as 0.
func CosineSimilarity(a, b *Vector) (float64, error) {
	d, err := Dot(a, b)
	if err != nil {
		return 0, err
	}
	denom := a.Norm() * b.Norm()
	if denom == 0 {
		return 0, nil
	}
	return d / denom, nil
}

// CosineDistance returns 1 - CosineSimilarity(a, b)
func CosineDistance(a, b *Vector) (float64, error) {
	sim, err := CosineSimilarity(a, b)
	if err != nil {
		return 0, err
	}
	return 1.0 - sim, nil
}
