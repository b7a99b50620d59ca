package lsh

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	"github.com/gasparian/lsh-search-go/parallel"
	"github.com/gasparian/lsh-search-go/vector"
)

// FamilyTag identifies a hash family
type FamilyTag uint8

// Used to represent the supported hash families
const (
	FamilyCosine FamilyTag = iota + 1
	FamilyMinHash
	FamilySuperBit
)

func (f FamilyTag) String() string {
	switch f {
	case FamilyCosine:
		return "CosineHash"
	case FamilyMinHash:
		return "MinHash"
	case FamilySuperBit:
		return "SuperBit"
	}
	return fmt.Sprintf("FamilyTag(%d)", uint8(f))
}

// ParseFamily maps a family name (case insensitive) to its tag
func ParseFamily(name string) (FamilyTag, error) {
	switch strings.ToLower(name) {
	case "", "cosine", "cosinehash":
		return FamilyCosine, nil
	case "minhash":
		return FamilyMinHash, nil
	case "superbit":
		return FamilySuperBit, nil
	}
	return 0, configErr("family", name, "unknown hash family")
}

// BitSignature holds one sign bit per hyperplane
type BitSignature []bool

// MinSignature holds one minimum per MinHash function
type MinSignature []uint32

// Sketcher is the common shape of the hash families: a vector is turned into
// a compact signature, and two signatures give an estimate of the similarity
// of the vectors they were computed from.
type Sketcher[S any] interface {
	Family() FamilyTag
	Signature(v *vector.Vector) (S, error)
	Similarity(a, b S) (float64, error)
}

var (
	_ Sketcher[BitSignature] = (*CosineSketch)(nil)
	_ Sketcher[BitSignature] = (*SuperBit)(nil)
	_ Sketcher[MinSignature] = (*MinHash)(nil)
)

const agreementParallelThreshold = 1 << 13

// agreement returns the fraction of positions where a and b are equal
func agreement[T comparable](a, b []T) (float64, error) {
	if len(a) != len(b) {
		return 0, &SignatureLengthMismatchError{Left: len(a), Right: len(b)}
	}
	if len(a) == 0 {
		return 0, emptySignatureErr
	}
	if len(a) < agreementParallelThreshold {
		same := 0
		for i := range a {
			if a[i] == b[i] {
				same++
			}
		}
		return float64(same) / float64(len(a)), nil
	}
	var same atomic.Int64
	parallel.Chunks(len(a), func(lo, hi int) {
		local := 0
		for i := lo; i < hi; i++ {
			if a[i] == b[i] {
				local++
			}
		}
		same.Add(int64(local))
	})
	return float64(same.Load()) / float64(len(a)), nil
}

// angularSimilarity converts the fraction of equal sign bits into a cosine
// estimate: a random hyperplane separates two vectors with probability theta/pi.
func angularSimilarity(a, b BitSignature) (float64, error) {
	agree, err := agreement(a, b)
	if err != nil {
		return 0, err
	}
	return math.Cos(math.Pi * (1 - agree)), nil
}
