package vector

import (
	"sync/atomic"

	"github.com/klauspost/cpuid/v2"
	"gonum.org/v1/gonum/blas/gonum"

	"github.com/gasparian/lsh-search-go/parallel"
)

// Kernel selects how dot products are computed
type Kernel int32

const (
	// Scalar is the plain loop accumulating in float64
	Scalar Kernel = iota
	// Batched goes through gonum's float32 BLAS, which uses SIMD lanes where available
	Batched
)

// ParallelThreshold is the vector size starting from which dot products
// and norms are reduced by several workers
const ParallelThreshold = 1 << 14

var (
	gonumEngine = gonum.Implementation{}
	kernel      atomic.Int32
)

func init() {
	if cpuid.CPU.Has(cpuid.AVX2) || cpuid.CPU.Has(cpuid.ASIMD) {
		kernel.Store(int32(Batched))
	}
}

// UseKernel switches the dot product implementation and returns the previous one.
// Both kernels agree up to float rounding.
func UseKernel(k Kernel) Kernel {
	return Kernel(kernel.Swap(int32(k)))
}

// CurrentKernel returns the kernel in use
func CurrentKernel() Kernel {
	return Kernel(kernel.Load())
}

func (k Kernel) String() string {
	if k == Batched {
		return "batched"
	}
	return "scalar"
}

func dotScalar(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

func dotBatched(a, b []float32) float64 {
	return gonumEngine.Dsdot(len(a), a, 1, b, 1)
}

func dotSerial(a, b []float32) float64 {
	if Kernel(kernel.Load()) == Batched {
		return dotBatched(a, b)
	}
	return dotScalar(a, b)
}

func dot(a, b []float32) float64 {
	if len(a) < ParallelThreshold {
		return dotSerial(a, b)
	}
	var acc parallel.Float64Adder
	parallel.Chunks(len(a), func(lo, hi int) {
		acc.Add(dotSerial(a[lo:hi], b[lo:hi]))
	})
	return acc.Sum()
}

func sumSquares(a []float32) float64 {
	return dot(a, a)
}
