package lsh

import (
	"errors"
	"math"
	"testing"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasparian/lsh-search-go/vector"
)

func rangeSet(lo, hi uint32) *roaring.Bitmap {
	set := roaring.New()
	set.AddRange(uint64(lo), uint64(hi))
	return set
}

func TestMinHashSize(t *testing.T) {
	t.Parallel()
	n, err := MinHashSize(0.1)
	require.NoError(t, err)
	assert.Equal(t, 100, n)
	n, _ = MinHashSize(0.03)
	assert.Equal(t, 1112, n)

	for _, bad := range []float64{0, 1, -0.5, 2, math.NaN()} {
		_, err = MinHashSize(bad)
		assert.True(t, errors.Is(err, ErrConfiguration), "error=%v", bad)
	}

	size, err := BandedSignatureSize(10)
	require.NoError(t, err)
	assert.Equal(t, 50, size)
	_, err = BandedSignatureSize(0)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestJaccardIndex(t *testing.T) {
	t.Parallel()
	assert.InDelta(t, 1.0/3, JaccardIndex(rangeSet(0, 1000), rangeSet(500, 1500)), tol)
	assert.Equal(t, 0.0, JaccardIndex(roaring.New(), roaring.New()))
	assert.Equal(t, 1.0, JaccardIndex(rangeSet(3, 9), rangeSet(3, 9)))
}

func TestMinHashConvergence(t *testing.T) {
	t.Parallel()
	a, b := rangeSet(0, 1000), rangeSet(500, 1500)
	exact := JaccardIndex(a, b)

	meanErr := func(n int) float64 {
		var total float64
		const trials = 20
		for seed := uint64(0); seed < trials; seed++ {
			mh, err := NewMinHash(n, NewRandomSource(seed))
			require.NoError(t, err)
			est, err := mh.Similarity(mh.SignatureOfSet(a), mh.SignatureOfSet(b))
			require.NoError(t, err)
			total += math.Abs(est - exact)
		}
		return total / trials
	}
	small, large := meanErr(10), meanErr(1000)
	assert.Less(t, large, small)
	assert.Less(t, large, 0.03)
}

func TestMinHashCoefficients(t *testing.T) {
	t.Parallel()
	mh, err := NewMinHashWithError(0.05, NewRandomSource(9))
	require.NoError(t, err)
	assert.Equal(t, 400, mh.Size())
	assert.InDelta(t, 0.05, mh.ExpectedError(), tol)
	for _, c := range mh.Coefficients() {
		if c[0] < 1 || c[0] >= LargePrime || c[1] < 1 || c[1] >= LargePrime {
			t.Fatalf("coefficients %v out of [1, P-1]", c)
		}
	}
	again, _ := NewMinHashWithError(0.05, NewRandomSource(9))
	assert.Equal(t, mh.Coefficients(), again.Coefficients())

	_, err = NewMinHash(0, nil)
	assert.True(t, errors.Is(err, ErrConfiguration))
}

func TestMinHashSignature(t *testing.T) {
	t.Parallel()
	mh, err := NewMinHash(300, NewRandomSource(2))
	require.NoError(t, err)

	empty := mh.SignatureOfSet(roaring.New())
	for _, x := range empty {
		require.Equal(t, uint32(math.MaxUint32), x)
	}

	v := vector.FromSlice([]float32{1, 2, 3, 2})
	set := SetFromVector(v)
	assert.Equal(t, uint64(3), set.GetCardinality())
	sig, err := mh.Signature(v)
	require.NoError(t, err)
	assert.Equal(t, mh.SignatureOfSet(set), sig)
	for _, x := range sig {
		require.Less(t, x, uint32(LargePrime))
	}

	same, err := mh.Similarity(sig, sig)
	require.NoError(t, err)
	assert.Equal(t, 1.0, same)

	_, err = mh.Similarity(sig, sig[:10])
	var lenErr *SignatureLengthMismatchError
	assert.True(t, errors.As(err, &lenErr))

	bits := SetFromBools([]bool{true, false, true})
	assert.Equal(t, []uint32{0, 2}, bits.ToArray())
}
