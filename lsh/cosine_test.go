package lsh

import (
	"errors"
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasparian/lsh-search-go/vector"
)

const tol = 1e-6

func randomUnitVector(r *rand.Rand, d int) *vector.Vector {
	vals := make([]float32, d)
	for i := range vals {
		vals[i] = float32(r.NormFloat64())
	}
	v := vector.FromSlice(vals)
	v.Normalize()
	return v
}

func TestCombineDecode(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(42))
	for k := 1; k <= MaxHashes; k++ {
		bits := make([]uint8, k)
		for i := range bits {
			bits[i] = uint8(r.Intn(2))
		}
		key, err := Combine(bits)
		require.NoError(t, err)
		assert.Equal(t, bits, Decode(key, k))
	}

	key, err := Combine([]uint8{1, 0, 1})
	require.NoError(t, err)
	if key != 5 {
		t.Fatalf("bit i must contribute 2^i, got %d", key)
	}
	key, _ = Combine([]uint8{0, 7})
	assert.Equal(t, uint64(2), key, "any non-zero output sets the bit")
}

func TestCombineTooManyBits(t *testing.T) {
	t.Parallel()
	_, err := Combine(make([]uint8, MaxHashes+1))
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestCosineHashIsPure(t *testing.T) {
	t.Parallel()
	h, err := NewCosineHash(20, NewRandomSource(1))
	require.NoError(t, err)
	r := rand.New(rand.NewSource(1))
	for i := 0; i < 100; i++ {
		v := randomUnitVector(r, 20)
		assert.Equal(t, h.Hash(v), h.Hash(v))
	}
}

func TestCosineHashSign(t *testing.T) {
	t.Parallel()
	h := cosineHashFrom(vector.FromSlice([]float32{1, 1, 1}))
	assert.Equal(t, uint8(1), h.Hash(vector.FromSlice([]float32{5, 1, 1})))
	assert.Equal(t, uint8(0), h.Hash(vector.FromSlice([]float32{-5, 1, 1})))
	assert.Equal(t, uint8(1), h.Hash(vector.FromSlice([]float32{1, -1, 0})), "zero dot product maps to 1")
}

func TestCosineHashProjection(t *testing.T) {
	t.Parallel()
	h, err := NewCosineHash(2000, NewRandomSource(5))
	require.NoError(t, err)
	p := h.Projection()
	assert.True(t, p.IsReadOnly())
	assert.Equal(t, 2000, h.Dims())

	// standard normal samples
	var mean, sq float64
	for _, x := range p.Values() {
		mean += float64(x)
		sq += float64(x) * float64(x)
	}
	mean /= 2000
	assert.InDelta(t, 0, mean, 0.1)
	assert.InDelta(t, 1, sq/2000-mean*mean, 0.15)

	_, err = NewCosineHash(0, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestSeededGenerationIsReproducible(t *testing.T) {
	t.Parallel()
	// d > 1000 and n > 64 take the concurrent paths
	a, err := NewCosineSketch(1500, 80, NewRandomSource(7))
	require.NoError(t, err)
	b, err := NewCosineSketch(1500, 80, NewRandomSource(7))
	require.NoError(t, err)
	c, err := NewCosineSketch(1500, 80, NewRandomSource(8))
	require.NoError(t, err)
	for i := range a.Functions() {
		if !a.Functions()[i].projection.Equal(b.Functions()[i].projection) {
			t.Fatalf("projection %d differs for the same seed", i)
		}
	}
	assert.False(t, a.Functions()[0].projection.Equal(c.Functions()[0].projection))
}

func TestCosineSketchSimilarity(t *testing.T) {
	t.Parallel()
	s, err := NewCosineSketch(32, 2048, NewRandomSource(3))
	require.NoError(t, err)
	r := rand.New(rand.NewSource(3))
	for i := 0; i < 10; i++ {
		v1 := randomUnitVector(r, 32)
		v2 := randomUnitVector(r, 32)
		exact, _ := vector.CosineSimilarity(v1, v2)
		sig1, err := s.Signature(v1)
		require.NoError(t, err)
		sig2, err := s.Signature(v2)
		require.NoError(t, err)
		est, err := s.Similarity(sig1, sig2)
		require.NoError(t, err)
		assert.InDelta(t, exact, est, 0.15)
	}

	_, err = s.Signature(vector.New(3))
	var dimErr *DimensionMismatchError
	assert.True(t, errors.As(err, &dimErr))

	_, err = s.Similarity(BitSignature{true}, BitSignature{true, false})
	var lenErr *SignatureLengthMismatchError
	assert.True(t, errors.As(err, &lenErr))
}

func TestAgreementParallelMatchesSerial(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(11))
	n := agreementParallelThreshold * 3
	a := make(MinSignature, n)
	b := make(MinSignature, n)
	same := 0
	for i := range a {
		a[i] = uint32(r.Intn(4))
		b[i] = uint32(r.Intn(4))
		if a[i] == b[i] {
			same++
		}
	}
	got, err := agreement(a, b)
	require.NoError(t, err)
	if math.Abs(got-float64(same)/float64(n)) > tol {
		t.Fatalf("agreement %v != %v", got, float64(same)/float64(n))
	}
	_, err = agreement(MinSignature{}, MinSignature{})
	assert.Error(t, err)
}

func TestParseFamily(t *testing.T) {
	t.Parallel()
	for name, want := range map[string]FamilyTag{
		"":         FamilyCosine,
		"Cosine":   FamilyCosine,
		"MinHash":  FamilyMinHash,
		"superbit": FamilySuperBit,
	} {
		got, err := ParseFamily(name)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	_, err := ParseFamily("euclidean")
	assert.True(t, errors.Is(err, ErrConfiguration))
	assert.Equal(t, "SuperBit", FamilySuperBit.String())
}
