package annbench

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasparian/lsh-search-go/common"
	"github.com/gasparian/lsh-search-go/lsh"
	"github.com/gasparian/lsh-search-go/vector"
)

func randomVectors(r *rand.Rand, n, d int) []*vector.Vector {
	vecs := make([]*vector.Vector, n)
	for i := range vecs {
		vals := make([]float32, d)
		for j := range vals {
			vals[j] = float32(r.NormFloat64())
		}
		vecs[i] = vector.FromSlice(vals)
	}
	return vecs
}

func TestPrecisionRecall(t *testing.T) {
	t.Parallel()
	p, r := PrecisionRecall([]int{1, 2, 9}, []int{1, 2, 3, 4})
	assert.InDelta(t, 2.0/3, p, 1e-9)
	assert.InDelta(t, 0.5, r, 1e-9)

	p, r = PrecisionRecall(nil, []int{1})
	assert.Equal(t, 0.0, p)
	assert.Equal(t, 0.0, r)

	p, r = PrecisionRecall([]int{5}, nil)
	assert.Equal(t, 0.0, p)
	assert.Equal(t, 0.0, r)
}

func TestBruteForce(t *testing.T) {
	t.Parallel()
	vecs := []*vector.Vector{
		vector.FromSlice([]float32{1, 0}),
		vector.FromSlice([]float32{0, 1}),
		vector.FromSlice([]float32{1, 1}),
		vector.FromSlice([]float32{-1, 0}),
	}
	nn, err := BruteForce(vecs, vector.FromSlice([]float32{1, 0.1}), 3)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 2, 1}, nn)

	nn, err = BruteForce(vecs, vector.FromSlice([]float32{1, 0}), 10)
	require.NoError(t, err)
	assert.Len(t, nn, 4)

	_, err = BruteForce(vecs, vector.New(3), 1)
	assert.Error(t, err)
}

func TestEvaluate(t *testing.T) {
	t.Parallel()
	r := rand.New(rand.NewSource(1))
	train := randomVectors(r, 2000, 16)
	queries := train[:20]
	truth, err := GroundTruth(train, queries, 10)
	require.NoError(t, err)

	idx, err := lsh.New(lsh.Config{Hashes: 6, Tables: 10, Dims: 16, Source: lsh.NewRandomSource(1)})
	require.NoError(t, err)
	for _, v := range train {
		_, err := idx.Insert(v)
		require.NoError(t, err)
	}
	res, err := Evaluate(idx, queries, truth, 10)
	require.NoError(t, err)
	assert.Greater(t, res.Recall, 0.3)
	assert.Greater(t, res.Precision, 0.3)
	assert.Greater(t, res.CandidatesPerQuery, 1.0)
	assert.Less(t, res.CandidatesPerQuery, 2000.0)

	// exact search has perfect recall
	for i, q := range queries {
		nn, err := BruteForce(train, q, 1)
		require.NoError(t, err)
		assert.Equal(t, i, nn[0])
	}
}

func TestPrintMemUsage(t *testing.T) {
	var buf bytes.Buffer
	PrintMemUsage(common.NewLogger(&buf))
	assert.Contains(t, buf.String(), "TotalAlloc")
}
