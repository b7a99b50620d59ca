package lsh

import (
	"gonum.org/v1/gonum/blas/blas64"

	"github.com/gasparian/lsh-search-go/parallel"
	"github.com/gasparian/lsh-search-go/vector"
)

const (
	defaultCodeLength         = 10000
	defaultSuperBitSeed       = 8675309
	superBitParallelThreshold = 64
)

// SuperBit is random projection hashing with K = n*l hyperplanes grouped in
// l bands of n. Hyperplanes of the same band are orthonormalized with
// Gram-Schmidt, which lowers the variance of the cosine estimate compared to
// independent projections. Bands are not orthogonalized against each other.
//
// Ji et al., "Super-Bit Locality-Sensitive Hashing", NIPS 2012.
type SuperBit struct {
	dims        int
	depth       int
	bands       int
	hyperplanes []blas64.Vector
}

// NewSuperBit creates the hyperplanes for data dimension d, depth n in [1, d]
// and l >= 1 bands.
func NewSuperBit(d, n, l int, src *RandomSource) (*SuperBit, error) {
	if d <= 0 {
		return nil, configErr("dimension", d, "must be a positive integer")
	}
	if n < 1 || n > d {
		return nil, configErr("depth", n, "super-bit depth must be in [1, d]")
	}
	if l < 1 {
		return nil, configErr("bands", l, "number of super-bits must be >= 1")
	}
	src = orUnseeded(src)
	codeLength := n * l

	v := make([]blas64.Vector, codeLength)
	parallel.For(codeLength, superBitParallelThreshold, func(t int) {
		data := make([]float64, d)
		gaussianFill(data, src.Derive(uint64(t)), uint64(FamilySuperBit))
		v[t] = NewVec(data)
		normalize(v[t])
	})

	w := make([]blas64.Vector, codeLength)
	parallel.For(l, 2, func(band int) {
		for j := 0; j < n; j++ {
			idx := band*n + j
			w[idx] = NewVec(make([]float64, d))
			blas64.Copy(v[idx], w[idx])
			for k := 0; k < j; k++ {
				prev := w[band*n+k]
				blas64.Axpy(-blas64.Dot(prev, v[idx]), prev, w[idx])
			}
			normalize(w[idx])
		}
	})

	return &SuperBit{
		dims:        d,
		depth:       n,
		bands:       l,
		hyperplanes: w,
	}, nil
}

// NewDefaultSuperBit uses code length 10000 orthogonalized in 10000/d bands of d,
// with a fixed seed; the mean estimation error is about 0.01
func NewDefaultSuperBit(d int) (*SuperBit, error) {
	if d <= 0 {
		return nil, configErr("dimension", d, "must be a positive integer")
	}
	l := defaultCodeLength / d
	if l < 1 {
		l = 1
	}
	return NewSuperBit(d, d, l, NewRandomSource(defaultSuperBitSeed))
}

// Family returns FamilySuperBit
func (sb *SuperBit) Family() FamilyTag {
	return FamilySuperBit
}

// CodeLength returns the number of hyperplanes (signature bits)
func (sb *SuperBit) CodeLength() int {
	return len(sb.hyperplanes)
}

// Depth returns the number of hyperplanes per band
func (sb *SuperBit) Depth() int {
	return sb.depth
}

// Bands returns the number of bands
func (sb *SuperBit) Bands() int {
	return sb.bands
}

// Hyperplanes returns a copy of the hyperplane coefficients
func (sb *SuperBit) Hyperplanes() [][]float64 {
	out := make([][]float64, len(sb.hyperplanes))
	for i, h := range sb.hyperplanes {
		out[i] = make([]float64, h.N)
		copy(out[i], h.Data)
	}
	return out
}

// Signature computes bit i = (hyperplane_i . v >= 0)
func (sb *SuperBit) Signature(v *vector.Vector) (BitSignature, error) {
	if err := checkDims(sb.dims, v); err != nil {
		return nil, err
	}
	return sb.signature(NewVec(v.Float64())), nil
}

// SignatureFloat64 is Signature for a float64 input
func (sb *SuperBit) SignatureFloat64(v []float64) (BitSignature, error) {
	if len(v) != sb.dims {
		return nil, &DimensionMismatchError{Expected: sb.dims, Actual: len(v)}
	}
	return sb.signature(NewVec(v)), nil
}

func (sb *SuperBit) signature(v blas64.Vector) BitSignature {
	sig := make(BitSignature, len(sb.hyperplanes))
	parallel.For(len(sig), 1024, func(i int) {
		sig[i] = blas64.Dot(sb.hyperplanes[i], v) >= 0
	})
	return sig
}

// Similarity estimates the cosine similarity: cos(pi * (1 - agreement))
func (sb *SuperBit) Similarity(a, b BitSignature) (float64, error) {
	return angularSimilarity(a, b)
}

// NewVec creates new blas vector
func NewVec(data []float64) blas64.Vector {
	if data == nil {
		data = make([]float64, 0)
	}
	return blas64.Vector{
		N:    len(data),
		Inc:  1,
		Data: data,
	}
}

func normalize(v blas64.Vector) {
	norm := blas64.Nrm2(v)
	if norm > 0 {
		blas64.Scal(1/norm, v)
	}
}
