// Package embedding reads word embeddings in the GloVe text format:
// one "<label> <v1> <v2> ... <vd>" record per line.
package embedding

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/gasparian/lsh-search-go/vector"
)

const maxLineSize = 1 << 20

var (
	emptyLabelErr = errors.New("record has no label")
)

// Reader streams (label, vector) records
type Reader struct {
	scanner *bufio.Scanner
	dims    int
	line    int
	label   string
	vec     *vector.Vector
	err     error
}

// NewReader creates reader expecting d values per record; d = 0 takes the
// dimension of the first record
func NewReader(r io.Reader, d int) *Reader {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	return &Reader{scanner: scanner, dims: d}
}

// Next advances to the next record, blank lines are skipped. It returns
// false at the end of input or on the first malformed record, see Err.
func (r *Reader) Next() bool {
	if r.err != nil {
		return false
	}
	for r.scanner.Scan() {
		r.line++
		fields := strings.Fields(r.scanner.Text())
		if len(fields) == 0 {
			continue
		}
		r.label, r.vec, r.err = r.parse(fields)
		if r.err != nil {
			r.err = fmt.Errorf("line %d: %w", r.line, r.err)
			return false
		}
		return true
	}
	r.err = r.scanner.Err()
	return false
}

func (r *Reader) parse(fields []string) (string, *vector.Vector, error) {
	values := fields[1:]
	if r.dims == 0 {
		if len(values) == 0 {
			return "", nil, emptyLabelErr
		}
		r.dims = len(values)
	}
	if len(values) != r.dims {
		return "", nil, &vector.DimensionMismatchError{Expected: r.dims, Actual: len(values)}
	}
	data := make([]float32, r.dims)
	for i, s := range values {
		x, err := strconv.ParseFloat(s, 32)
		if err != nil {
			return "", nil, err
		}
		data[i] = float32(x)
	}
	return fields[0], vector.ReadOnly(data), nil
}

// Label of the current record
func (r *Reader) Label() string {
	return r.label
}

// Vector of the current record, read-only
func (r *Reader) Vector() *vector.Vector {
	return r.vec
}

// Dims returns the expected number of values, 0 before the first record when inferred
func (r *Reader) Dims() int {
	return r.dims
}

// Line returns the number of the last line read
func (r *Reader) Line() int {
	return r.line
}

// Err returns the first error met, nil at a clean end of input
func (r *Reader) Err() error {
	return r.err
}
