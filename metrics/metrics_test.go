package metrics

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gasparian/lsh-search-go/lsh"
	"github.com/gasparian/lsh-search-go/vector"
)

func TestCollector(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	idx, err := lsh.New(lsh.Config{Hashes: 2, Tables: 3, Dims: 4, Observer: c})
	require.NoError(t, err)

	r := rand.New(rand.NewSource(1))
	for i := 0; i < 10; i++ {
		v := vector.FromSlice([]float32{r.Float32(), r.Float32(), r.Float32(), r.Float32()})
		_, err := idx.Insert(v)
		require.NoError(t, err)
	}
	_, err = idx.Query(vector.FromSlice([]float32{1, 1, 1, 1}), 3)
	require.NoError(t, err)

	assert.Equal(t, 10.0, testutil.ToFloat64(c.Inserts))
	assert.Equal(t, 1.0, testutil.ToFloat64(c.Queries))
	assert.Equal(t, float64(idx.Touched()), testutil.ToFloat64(c.Touched))
	assert.Equal(t, 1, testutil.CollectAndCount(c.QueryDuration))

	var buf bytes.Buffer
	require.NoError(t, WriteText(&buf, reg))
	assert.Contains(t, buf.String(), "lsh_inserts_total 10")
	assert.Contains(t, buf.String(), "lsh_query_candidates_bucket")
}
