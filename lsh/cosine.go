package lsh

import (
	"fmt"

	"github.com/gasparian/lsh-search-go/parallel"
	"github.com/gasparian/lsh-search-go/vector"
)

// MaxHashes is the largest number of hashes per table: bucket keys are
// uint64, one bit per hash
const MaxHashes = 64

// parallelFunctionsThreshold is the number of hash functions starting from
// which they are generated concurrently
const parallelFunctionsThreshold = 65

// CosineHash is a random projection hash: the sign of the dot product
// between the input and a vector of standard normal samples.
// The projection never changes after construction.
type CosineHash struct {
	projection *vector.Vector
}

// NewCosineHash draws a random projection of d standard normal samples
func NewCosineHash(d int, src *RandomSource) (*CosineHash, error) {
	if d <= 0 {
		return nil, configErr("dimension", d, "must be a positive integer")
	}
	src = orUnseeded(src)
	samples := make([]float64, d)
	gaussianFill(samples, src, 0)
	return &CosineHash{projection: vector.FromFloat64(samples)}, nil
}

func cosineHashFrom(projection *vector.Vector) *CosineHash {
	return &CosineHash{projection: projection}
}

// Hash returns 1 when the dot product with the projection is non-negative,
// 0 otherwise. v must have the projection's size.
func (h *CosineHash) Hash(v *vector.Vector) uint8 {
	if h.projection.DotAt(0, v, 0, h.projection.Size()) >= 0 {
		return 1
	}
	return 0
}

// Projection returns read-only view of the random projection
func (h *CosineHash) Projection() *vector.Vector {
	return vector.ReadOnly(h.projection.Values())
}

// Dims returns the projection size
func (h *CosineHash) Dims() int {
	return h.projection.Size()
}

func (h *CosineHash) String() string {
	return fmt.Sprintf("CosineHash randomProjectionSize=%d", h.projection.Size())
}

// Combine packs hash bits into a bucket key, bit i is set when hashes[i] != 0
func Combine(hashes []uint8) (uint64, error) {
	if len(hashes) > MaxHashes {
		return 0, configErr("hashes", len(hashes), fmt.Sprintf("at most %d bits fit the bucket key", MaxHashes))
	}
	var key uint64
	for i, h := range hashes {
		if h != 0 {
			key |= 1 << i
		}
	}
	return key, nil
}

// Decode unpacks the first k bits of a bucket key
func Decode(key uint64, k int) []uint8 {
	bits := make([]uint8, k)
	for i := range bits {
		bits[i] = uint8((key >> i) & 1)
	}
	return bits
}

// CosineSketch signs a vector with n independent random projections.
// Unlike a hash table it keeps all the bits as a signature, so it can
// estimate the cosine similarity of two vectors.
type CosineSketch struct {
	dims      int
	functions []*CosineHash
}

// NewCosineSketch creates n random projections of dimension d
func NewCosineSketch(d, n int, src *RandomSource) (*CosineSketch, error) {
	if d <= 0 {
		return nil, configErr("dimension", d, "must be a positive integer")
	}
	if n <= 0 {
		return nil, configErr("hashes", n, "must be a positive integer")
	}
	src = orUnseeded(src)
	functions := make([]*CosineHash, n)
	parallel.For(n, parallelFunctionsThreshold, func(i int) {
		// d was validated above
		functions[i], _ = NewCosineHash(d, src.Derive(uint64(i)))
	})
	return &CosineSketch{dims: d, functions: functions}, nil
}

// Family returns FamilyCosine
func (s *CosineSketch) Family() FamilyTag {
	return FamilyCosine
}

// Functions returns the hash functions in signature order
func (s *CosineSketch) Functions() []*CosineHash {
	return s.functions
}

// Signature returns one bit per random projection
func (s *CosineSketch) Signature(v *vector.Vector) (BitSignature, error) {
	if err := checkDims(s.dims, v); err != nil {
		return nil, err
	}
	sig := make(BitSignature, len(s.functions))
	for i, h := range s.functions {
		sig[i] = h.Hash(v) == 1
	}
	return sig, nil
}

// Similarity estimates the cosine similarity from two signatures
func (s *CosineSketch) Similarity(a, b BitSignature) (float64, error) {
	return angularSimilarity(a, b)
}
