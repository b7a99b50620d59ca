// Package parallel holds the loop helpers used by the vector kernels and the
// hash families: a chunked parallel-for whose workers own disjoint index
// ranges, and an atomic float64 accumulator for global reductions.
package parallel

import (
	"math"
	"runtime"
	"sync/atomic"

	"golang.org/x/sync/errgroup"
)

// For calls fn(i) for every i in [0, n). When n is below threshold the loop
// runs on the calling goroutine, otherwise the range is split into contiguous
// chunks, one per worker. fn must only write to slots it owns.
func For(n, threshold int, fn func(i int)) {
	if n <= 0 {
		return
	}
	if n < threshold || runtime.GOMAXPROCS(0) == 1 {
		for i := 0; i < n; i++ {
			fn(i)
		}
		return
	}
	Chunks(n, func(lo, hi int) {
		for i := lo; i < hi; i++ {
			fn(i)
		}
	})
}

// Chunks splits [0, n) into at most GOMAXPROCS contiguous ranges and runs fn
// on each of them concurrently.
func Chunks(n int, fn func(lo, hi int)) {
	workers := runtime.GOMAXPROCS(0)
	if workers > n {
		workers = n
	}
	if workers <= 1 {
		fn(0, n)
		return
	}
	step := (n + workers - 1) / workers
	var g errgroup.Group
	for lo := 0; lo < n; lo += step {
		lo, hi := lo, min(lo+step, n)
		g.Go(func() error {
			fn(lo, hi)
			return nil
		})
	}
	_ = g.Wait()
}

// Float64Adder is a lock-free float64 accumulator. The order in which
// concurrent Add calls land is not fixed, so sums may differ from a
// sequential loop in the last bits.
type Float64Adder struct {
	bits atomic.Uint64
}

// Add atomically adds delta.
func (a *Float64Adder) Add(delta float64) {
	for {
		old := a.bits.Load()
		next := math.Float64bits(math.Float64frombits(old) + delta)
		if a.bits.CompareAndSwap(old, next) {
			return
		}
	}
}

// Sum returns the accumulated value.
func (a *Float64Adder) Sum() float64 {
	return math.Float64frombits(a.bits.Load())
}
