package vector

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const tol = 1e-6

func randomVector(r *rand.Rand, d int) *Vector {
	v := New(d)
	for i := 0; i < d; i++ {
		v.data[i] = float32(r.NormFloat64())
	}
	return v
}

func TestFromSliceCopies(t *testing.T) {
	t.Parallel()
	vals := []float32{0.0, 42.0}
	v := FromSlice(vals)
	vals[1] = 1.0
	if v.Get(1) != 42.0 {
		t.Error("Vector must own a copy of the input slice")
	}
	if v.Size() != 2 {
		t.Error("Wrong vector size")
	}
}

func TestReadOnlyRejectsMutation(t *testing.T) {
	t.Parallel()
	v := ReadOnly([]float32{1, 2, 3})
	err := v.Set(0, 5)
	require.ErrorIs(t, err, ErrReadOnly)
	require.ErrorIs(t, v.Normalize(), ErrReadOnly)
	assert.Equal(t, float32(1), v.Get(0))

	m := FromSlice([]float32{1, 2, 3})
	require.NoError(t, m.Set(0, 5))
	assert.Equal(t, float32(5), m.Get(0))
}

func TestBytesRoundTrip(t *testing.T) {
	t.Parallel()
	v := FromSlice([]float32{-1.5, 0, 3.25, float32(math.Inf(1))})
	back, err := FromBytes(v.Bytes())
	require.NoError(t, err)
	assert.True(t, back.IsReadOnly())
	assert.True(t, v.Equal(back))

	_, err = FromBytes([]byte{1, 2, 3})
	assert.Error(t, err)
}

func TestDot(t *testing.T) {
	t.Parallel()
	v1 := FromSlice([]float32{1, 2, 3})
	v2 := FromSlice([]float32{4, -5, 6})
	d, err := Dot(v1, v2)
	require.NoError(t, err)
	if math.Abs(d-12.0) > tol {
		t.Errorf("Dot product is wrong: %v", d)
	}
	if math.Abs(v1.DotAt(1, v2, 1, 2)-8.0) > tol {
		t.Error("Offset dot product is wrong")
	}

	_, err = Dot(v1, FromSlice([]float32{1}))
	var dm *DimensionMismatchError
	require.True(t, errors.As(err, &dm))
	assert.Equal(t, 3, dm.Expected)
	assert.Equal(t, 1, dm.Actual)
}

func TestCosineSimilarity(t *testing.T) {
	t.Parallel()
	v1 := FromSlice([]float32{0.0, 1.0})
	v2 := FromSlice([]float32{0.0, 1.0})
	v3 := FromSlice([]float32{1.0, 0.0})
	v4 := FromSlice([]float32{0.0, -1.0})
	zero := FromSlice([]float32{0.0, 0.0})

	cases := []struct {
		name     string
		a, b     *Vector
		expected float64
	}{
		{"equal", v1, v2, 1.0},
		{"orthogonal", v1, v3, 0.0},
		{"opposite", v1, v4, -1.0},
		{"zero vector", v1, zero, 0.0},
	}
	for _, c := range cases {
		sim, err := CosineSimilarity(c.a, c.b)
		require.NoError(t, err)
		if math.Abs(sim-c.expected) > tol {
			t.Errorf("%s: cosine similarity must be %v, got %v", c.name, c.expected, sim)
		}
		dist, err := CosineDistance(c.a, c.b)
		require.NoError(t, err)
		if math.Abs(dist-(1-c.expected)) > tol {
			t.Errorf("%s: cosine distance must be %v, got %v", c.name, 1-c.expected, dist)
		}
	}
}

func TestNormalize(t *testing.T) {
	t.Parallel()
	v := FromSlice([]float32{3, 4})
	require.NoError(t, v.Normalize())
	if math.Abs(v.Norm()-1.0) > tol {
		t.Error("Normalized vector must have unit norm")
	}
	require.ErrorIs(t, New(3).Normalize(), ErrZeroNorm)
}

func TestKernelsAgree(t *testing.T) {
	prev := CurrentKernel()
	defer UseKernel(prev)

	r := rand.New(rand.NewPCG(1, 2))
	for _, d := range []int{1, 3, 50, 1000, ParallelThreshold + 17} {
		a := randomVector(r, d)
		b := randomVector(r, d)

		UseKernel(Scalar)
		scalar, err := Dot(a, b)
		require.NoError(t, err)
		scalarNorm := a.Norm()

		UseKernel(Batched)
		batched, err := Dot(a, b)
		require.NoError(t, err)
		batchedNorm := a.Norm()

		scale := math.Max(1, math.Abs(scalar))
		assert.InDeltaf(t, scalar, batched, 1e-5*scale, "dot, d=%d", d)
		assert.InDeltaf(t, scalarNorm, batchedNorm, 1e-5*scalarNorm, "norm, d=%d", d)
	}
}

func TestParallelReductionMatchesSerial(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewPCG(3, 4))
	a := randomVector(r, 4*ParallelThreshold)
	b := randomVector(r, 4*ParallelThreshold)
	got, err := Dot(a, b)
	require.NoError(t, err)
	want := dotScalar(a.data, b.data)
	assert.InDelta(t, want, got, 1e-6*float64(a.Size()))
}
