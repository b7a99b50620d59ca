package lsh

import (
	"math"

	"github.com/RoaringBitmap/roaring/v2"

	"github.com/gasparian/lsh-search-go/parallel"
	"github.com/gasparian/lsh-search-go/vector"
)

// LargePrime is the modulus of the MinHash functions, 2^31 - 1
const LargePrime = 1<<31 - 1

const (
	bandThreshold            = 0.5
	minHashParallelThreshold = 256
)

// MinHash produces signatures whose agreement rate estimates the Jaccard
// index of the underlying sets. Each of the n functions is
// h_i(x) = (a_i*x + b_i) mod LargePrime with a_i, b_i drawn from [1, LargePrime-1];
// the expected estimation error is 1/sqrt(n).
type MinHash struct {
	coefs [][2]uint64
}

// MinHashSize returns the signature size needed for the given estimation error: ceil(1/error^2)
func MinHashSize(err float64) (int, error) {
	if !(err > 0 && err < 1) {
		return 0, configErr("error", err, "must be in (0, 1)")
	}
	return int(math.Ceil(1 / (err * err))), nil
}

// BandedSignatureSize computes the signature size for a banded index with
// the given number of bands, so that sets with Jaccard index 0.5 become
// candidates with probability ~1/2: r = ceil(ln(1/b) / ln(0.5)) + 1, size = r*b
func BandedSignatureSize(bands int) (int, error) {
	if bands <= 0 {
		return 0, configErr("bands", bands, "must be a positive integer")
	}
	r := int(math.Ceil(math.Log(1.0/float64(bands))/math.Log(bandThreshold))) + 1
	return r * bands, nil
}

// NewMinHash draws the coefficients of n hash functions
func NewMinHash(n int, src *RandomSource) (*MinHash, error) {
	if n <= 0 {
		return nil, configErr("signature size", n, "must be a positive integer")
	}
	r := orUnseeded(src).Slot(uint64(FamilyMinHash))
	coefs := make([][2]uint64, n)
	for i := range coefs {
		coefs[i][0] = uint64(r.IntN(LargePrime-1)) + 1
		coefs[i][1] = uint64(r.IntN(LargePrime-1)) + 1
	}
	return &MinHash{coefs: coefs}, nil
}

// NewMinHashWithError sizes the signature for the given estimation error
func NewMinHashWithError(err float64, src *RandomSource) (*MinHash, error) {
	n, e := MinHashSize(err)
	if e != nil {
		return nil, e
	}
	return NewMinHash(n, src)
}

// Family returns FamilyMinHash
func (m *MinHash) Family() FamilyTag {
	return FamilyMinHash
}

// Size returns the signature size
func (m *MinHash) Size() int {
	return len(m.coefs)
}

// ExpectedError returns 1/sqrt(n)
func (m *MinHash) ExpectedError() float64 {
	return 1.0 / math.Sqrt(float64(len(m.coefs)))
}

// Coefficients returns a copy of the (a, b) pairs
func (m *MinHash) Coefficients() [][2]uint64 {
	out := make([][2]uint64, len(m.coefs))
	copy(out, m.coefs)
	return out
}

// a < 2^31 and x < 2^32, so a*x + b can't overflow uint64
func (m *MinHash) hash(i int, x uint32) uint32 {
	return uint32((m.coefs[i][0]*uint64(x) + m.coefs[i][1]) % LargePrime)
}

// SignatureOfSet computes the signature of a set. Elements are visited in
// ascending order. The signature of an empty set is all math.MaxUint32.
func (m *MinHash) SignatureOfSet(set *roaring.Bitmap) MinSignature {
	elems := set.ToArray()
	sig := make(MinSignature, len(m.coefs))
	parallel.For(len(sig), minHashParallelThreshold, func(i int) {
		low := uint32(math.MaxUint32)
		for _, x := range elems {
			if h := m.hash(i, x); h < low {
				low = h
			}
		}
		sig[i] = low
	})
	return sig
}

// Signature computes the signature of the set of raw bit patterns of v's elements
func (m *MinHash) Signature(v *vector.Vector) (MinSignature, error) {
	return m.SignatureOfSet(SetFromVector(v)), nil
}

// Similarity estimates the Jaccard index as the fraction of equal positions
func (m *MinHash) Similarity(a, b MinSignature) (float64, error) {
	return agreement(a, b)
}

// SetFromVector collects the IEEE-754 bit patterns of v's elements
func SetFromVector(v *vector.Vector) *roaring.Bitmap {
	set := roaring.New()
	for i := 0; i < v.Size(); i++ {
		set.Add(math.Float32bits(v.Get(i)))
	}
	return set
}

// SetFromBools collects the indices of the true elements
func SetFromBools(bits []bool) *roaring.Bitmap {
	set := roaring.New()
	for i, b := range bits {
		if b {
			set.Add(uint32(i))
		}
	}
	return set
}

// JaccardIndex computes |a ∩ b| / |a ∪ b| exactly; it is 0 when both sets are empty
func JaccardIndex(a, b *roaring.Bitmap) float64 {
	union := a.OrCardinality(b)
	if union == 0 {
		return 0
	}
	return float64(a.AndCardinality(b)) / float64(union)
}
