// Package annbench measures the quality of the approximate search against
// the exact nearest neighbors, ann-benchmarks style.
package annbench

import (
	"cmp"
	"runtime"
	"slices"
	"sort"
	"time"

	"github.com/gasparian/lsh-search-go/common"
	"github.com/gasparian/lsh-search-go/lsh"
	"github.com/gasparian/lsh-search-go/parallel"
	"github.com/gasparian/lsh-search-go/vector"
)

// Searcher is the part of the index the benchmark needs
type Searcher interface {
	Query(q *vector.Vector, maxSize int) ([]lsh.Candidate, error)
	Touched() uint64
}

// PrecisionRecall returns the share of predictions found in the ground truth
// and the share of the ground truth found among the predictions.
// groundTruth MUST BE SORTED
func PrecisionRecall(prediction, groundTruth []int) (float64, float64) {
	valid := 0
	for _, val := range prediction {
		idx := sort.SearchInts(groundTruth, val)
		if idx < len(groundTruth) && groundTruth[idx] == val {
			valid++
		}
	}
	precision, recall := 0.0, 0.0
	if len(prediction) > 0 {
		precision = float64(valid) / float64(len(prediction))
	}
	if len(groundTruth) > 0 {
		recall = float64(valid) / float64(len(groundTruth))
	}
	return precision, recall
}

// BruteForce returns the positions of the k vectors closest to q by cosine
// distance, closest first
func BruteForce(vecs []*vector.Vector, q *vector.Vector, k int) ([]int, error) {
	type scored struct {
		pos  int
		dist float64
	}
	all := make([]scored, len(vecs))
	for i, v := range vecs {
		dist, err := vector.CosineDistance(q, v)
		if err != nil {
			return nil, err
		}
		all[i] = scored{pos: i, dist: dist}
	}
	slices.SortFunc(all, func(a, b scored) int {
		if c := cmp.Compare(a.dist, b.dist); c != 0 {
			return c
		}
		return cmp.Compare(a.pos, b.pos)
	})
	k = min(k, len(all))
	out := make([]int, k)
	for i := range out {
		out[i] = all[i].pos
	}
	return out, nil
}

// GroundTruth computes the exact k nearest neighbors of every query, sorted by position
func GroundTruth(train, queries []*vector.Vector, k int) ([][]int, error) {
	out := make([][]int, len(queries))
	errs := make([]error, len(queries))
	parallel.For(len(queries), 2, func(i int) {
		out[i], errs[i] = BruteForce(train, queries[i], k)
		sort.Ints(out[i])
	})
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return out, nil
}

// Result holds the averages over all the queries
type Result struct {
	Precision          float64
	Recall             float64
	CandidatesPerQuery float64
	AvgQueryTime       time.Duration
}

// Evaluate queries the index, whose entry ids must be the positions in the
// train set, and compares top k answers with the sorted groundTruth
func Evaluate(index Searcher, queries []*vector.Vector, groundTruth [][]int, k int) (Result, error) {
	var res Result
	if len(queries) == 0 {
		return res, nil
	}
	touchedBefore := index.Touched()
	var elapsed time.Duration
	for i, q := range queries {
		start := time.Now()
		closest, err := index.Query(q, k)
		if err != nil {
			return Result{}, err
		}
		elapsed += time.Since(start)
		prediction := make([]int, len(closest))
		for j, c := range closest {
			prediction[j] = int(c.ID)
		}
		sort.Ints(prediction)
		p, r := PrecisionRecall(prediction, groundTruth[i])
		res.Precision += p
		res.Recall += r
	}
	n := float64(len(queries))
	res.Precision /= n
	res.Recall /= n
	res.CandidatesPerQuery = float64(index.Touched()-touchedBefore) / n
	res.AvgQueryTime = elapsed / time.Duration(len(queries))
	return res, nil
}

// PrintMemUsage logs the heap statistics
func PrintMemUsage(logger *common.Logger) {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	logger.Info.Printf("Alloc = %v MiB", bToMb(m.Alloc))
	logger.Info.Printf("\tTotalAlloc = %v MiB", bToMb(m.TotalAlloc))
	logger.Info.Printf("\tSys = %v MiB", bToMb(m.Sys))
	logger.Info.Printf("\tNumGC = %v\n", m.NumGC)
}

func bToMb(b uint64) uint64 {
	return b / 1024 / 1024
}
