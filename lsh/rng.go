package lsh

import (
	"math/rand/v2"

	"github.com/gasparian/lsh-search-go/parallel"
)

// drawBlock is the number of consecutive gaussian draws taken from one
// sub-generator; block boundaries don't depend on the number of workers
const drawBlock = 256

// RandomSource derives independent generators for numbered slots, so that
// parallel generation of hash functions is reproducible for a fixed seed
// regardless of goroutine scheduling.
type RandomSource struct {
	seed uint64
}

// NewRandomSource creates a source with the fixed seed
func NewRandomSource(seed uint64) *RandomSource {
	return &RandomSource{seed: seed}
}

// NewUnseededSource creates a source seeded from the runtime's random generator
func NewUnseededSource() *RandomSource {
	return &RandomSource{seed: rand.Uint64()}
}

func orUnseeded(src *RandomSource) *RandomSource {
	if src == nil {
		return NewUnseededSource()
	}
	return src
}

// Seed returns the root seed
func (s *RandomSource) Seed() uint64 {
	return s.seed
}

// Derive returns a child source for the given path of ids
func (s *RandomSource) Derive(ids ...uint64) *RandomSource {
	return &RandomSource{seed: s.mix(ids)}
}

// Slot returns the generator owned by the given path of ids
func (s *RandomSource) Slot(ids ...uint64) *rand.Rand {
	h := s.mix(ids)
	return rand.New(rand.NewPCG(h, splitmix(h)))
}

func (s *RandomSource) mix(ids []uint64) uint64 {
	h := splitmix(s.seed)
	for _, id := range ids {
		h = splitmix(h ^ id)
	}
	return h
}

func splitmix(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// gaussianFill writes standard normal samples into dst, block by block.
// Blocks are drawn concurrently when dst has more than 1000 elements.
func gaussianFill(dst []float64, src *RandomSource, slot uint64) {
	blocks := (len(dst) + drawBlock - 1) / drawBlock
	fill := func(b int) {
		r := src.Slot(slot, uint64(b))
		hi := min((b+1)*drawBlock, len(dst))
		for i := b * drawBlock; i < hi; i++ {
			dst[i] = r.NormFloat64()
		}
	}
	if len(dst) > 1000 {
		parallel.For(blocks, 1, fill)
		return
	}
	for b := 0; b < blocks; b++ {
		fill(b)
	}
}
