// Package hdf5data reads ann-benchmarks datasets: "train" and "test"
// float32 matrices and the "neighbors" int32 matrix of true nearest neighbors.
package hdf5data

import (
	"fmt"
	"slices"
	"sort"

	"gonum.org/v1/hdf5"

	"github.com/gasparian/lsh-search-go/vector"
)

// Dataset holds the benchmark data; Neighbors rows are ordered nearest first
type Dataset struct {
	Train     []*vector.Vector
	Test      []*vector.Vector
	Neighbors [][]int
}

// Dims returns the vectors dimension
func (ds *Dataset) Dims() int {
	if len(ds.Train) == 0 {
		return 0
	}
	return ds.Train[0].Size()
}

// Open reads the whole dataset file into memory
func Open(path string) (*Dataset, error) {
	f, err := hdf5.OpenFile(path, hdf5.F_ACC_RDONLY)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	train, err := readVectors(f, "train")
	if err != nil {
		return nil, err
	}
	test, err := readVectors(f, "test")
	if err != nil {
		return nil, err
	}
	neighbors, err := readNeighbors(f, "neighbors")
	if err != nil {
		return nil, err
	}
	if len(neighbors) != len(test) {
		return nil, fmt.Errorf("%s: %d test vectors but %d neighbor lists", path, len(test), len(neighbors))
	}
	return &Dataset{Train: train, Test: test, Neighbors: neighbors}, nil
}

func shape(dataset *hdf5.Dataset, name string) (int, int, error) {
	space := dataset.Space()
	defer space.Close()
	dims, _, err := space.SimpleExtentDims()
	if err != nil {
		return 0, 0, err
	}
	if len(dims) != 2 {
		return 0, 0, fmt.Errorf("dataset %q: expected 2 dimensions, got %d", name, len(dims))
	}
	return int(dims[0]), int(dims[1]), nil
}

func readVectors(f *hdf5.File, name string) ([]*vector.Vector, error) {
	dataset, err := f.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	defer dataset.Close()

	rows, cols, err := shape(dataset, name)
	if err != nil {
		return nil, err
	}
	flat := make([]float32, rows*cols)
	if err := dataset.Read(&flat); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}
	vecs := make([]*vector.Vector, rows)
	for i := range vecs {
		vecs[i] = vector.FromSlice(flat[i*cols : (i+1)*cols])
	}
	return vecs, nil
}

func readNeighbors(f *hdf5.File, name string) ([][]int, error) {
	dataset, err := f.OpenDataset(name)
	if err != nil {
		return nil, err
	}
	defer dataset.Close()

	rows, cols, err := shape(dataset, name)
	if err != nil {
		return nil, err
	}
	flat := make([]int32, rows*cols)
	if err := dataset.Read(&flat); err != nil {
		return nil, fmt.Errorf("dataset %q: %w", name, err)
	}
	out := make([][]int, rows)
	for i := range out {
		row := make([]int, cols)
		for j := range row {
			row[j] = int(flat[i*cols+j])
		}
		out[i] = row
	}
	return out, nil
}

// GroundTruth keeps the k nearest neighbors of every test vector, sorted by position
func GroundTruth(neighbors [][]int, k int) [][]int {
	out := make([][]int, len(neighbors))
	for i, row := range neighbors {
		out[i] = slices.Clone(row[:min(k, len(row))])
		sort.Ints(out[i])
	}
	return out
}
