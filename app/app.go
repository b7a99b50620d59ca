// Package app wires the index, its store, snapshots and metrics together
// behind the lsh command line tool.
package app

import (
	"errors"
	"fmt"
	"io"

	"github.com/cheggaaa/pb/v3"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/gasparian/lsh-search-go/annbench"
	"github.com/gasparian/lsh-search-go/annbench/hdf5data"
	"github.com/gasparian/lsh-search-go/common"
	"github.com/gasparian/lsh-search-go/embedding"
	"github.com/gasparian/lsh-search-go/lsh"
	"github.com/gasparian/lsh-search-go/metrics"
	"github.com/gasparian/lsh-search-go/store"
	"github.com/gasparian/lsh-search-go/store/kv"
	"github.com/gasparian/lsh-search-go/store/purekv"
	"github.com/gasparian/lsh-search-go/store/sqlite"
	"github.com/gasparian/lsh-search-go/vector"
)

var labelNotFoundErr = errors.New("label not found")

// App holds the index together with its store and metrics
type App struct {
	Config   Config
	Logger   *common.Logger
	Index    *lsh.Index
	Registry *prometheus.Registry
	metrics  *metrics.Collector
	store    store.Store
	// progress bars are drawn here when set
	progress io.Writer
}

// New opens the configured store; the index is created by LoadIndex or NewIndex
func New(config Config, logger *common.Logger, progress io.Writer) (*App, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	st, err := openStore(config.Store)
	if err != nil {
		return nil, fmt.Errorf("opening %s store: %w", config.Store.Kind, err)
	}
	registry := prometheus.NewRegistry()
	return &App{
		Config:   config,
		Logger:   logger,
		Registry: registry,
		metrics:  metrics.NewCollector(registry),
		store:    st,
		progress: progress,
	}, nil
}

// openStore returns nil for the in-memory buckets
func openStore(config StoreConfig) (store.Store, error) {
	switch config.Kind {
	case StoreKV:
		return kv.NewKVStore(), nil
	case StorePureKV:
		st := purekv.New(purekv.Config{
			Address: config.DSN,
			Timeout: config.Timeout,
			Bucket:  config.Namespace,
		})
		if err := st.Start(); err != nil {
			return nil, err
		}
		return st, nil
	case StoreSQLite:
		return sqlite.New(config.DSN)
	}
	return nil, nil
}

// Close releases the store
func (a *App) Close() error {
	if a.store == nil {
		return nil
	}
	return a.store.Close()
}

func (a *App) newBar(total int64) *pb.ProgressBar {
	bar := pb.New64(total).SetTemplate(pb.Full)
	if a.progress == nil {
		bar.SetWriter(io.Discard)
	} else {
		bar.SetWriter(a.progress)
	}
	return bar.Start()
}

// NewIndex creates an empty index; a persistent store keeps its records
func (a *App) NewIndex() error {
	idx, err := lsh.New(a.Config.lshConfig(a.store, a.Logger, a.metrics))
	if err != nil {
		return err
	}
	a.Index = idx
	return nil
}

// LoadIndex restores the in-memory index from its snapshot, a store-backed
// one from the store. A broken snapshot is logged and replaced by an empty index.
func (a *App) LoadIndex() error {
	if a.store != nil {
		return a.NewIndex()
	}
	var bar *pb.ProgressBar
	wrap := func(r io.Reader, size int64) io.Reader {
		bar = a.newBar(size)
		bar.Set(pb.Bytes, true)
		return bar.NewProxyReader(r)
	}
	idx, err := lsh.LoadWith(a.Config.Snapshot.Dir, a.Config.lshConfig(nil, a.Logger, a.metrics), wrap)
	if bar != nil {
		bar.Finish()
	}
	if idx == nil {
		return err
	}
	a.Index = idx
	return nil
}

// Save writes the snapshot of the in-memory index, store-backed indexes
// are already persisted
func (a *App) Save() (string, error) {
	if a.store != nil {
		if a.Config.Store.Kind == StoreKV {
			a.Logger.Warn.Println("kv store lives in the process memory, records are dropped on exit")
		}
		return "", nil
	}
	defer common.Timer(a.Logger, "saving snapshot")()
	return a.Index.Save(a.Config.Snapshot.Dir, a.Config.compression())
}

// IndexEmbeddings adds every "<label> <v1> ... <vd>" line of r to the index
// and returns their count. With no dimension configured it is taken from the
// first line, the index is loaded once it is known.
func (a *App) IndexEmbeddings(r io.Reader, size int64) (int, error) {
	defer common.Timer(a.Logger, "indexing")()
	bar := a.newBar(size)
	bar.Set(pb.Bytes, true)
	defer bar.Finish()

	reader := embedding.NewReader(bar.NewProxyReader(r), a.Config.Index.Dims)
	n := 0
	for reader.Next() {
		if a.Index == nil {
			a.Config.Index.Dims = reader.Dims()
			if err := a.LoadIndex(); err != nil {
				return 0, err
			}
		}
		if _, err := a.Index.Add(reader.Label(), reader.Vector()); err != nil {
			return n, fmt.Errorf("line %d: %w", reader.Line(), err)
		}
		n++
	}
	if err := reader.Err(); err != nil {
		return n, err
	}
	if a.Index == nil {
		return 0, a.LoadIndex()
	}
	return n, nil
}

// Vector returns the stored vector carrying the label
func (a *App) Vector(label string) (*vector.Vector, error) {
	e, ok, err := a.Index.Lookup(label)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%q: %w", label, labelNotFoundErr)
	}
	return e.Vector, nil
}

// Search returns up to top nearest neighbors of q
func (a *App) Search(q *vector.Vector, top int) ([]lsh.Candidate, error) {
	return a.Index.Query(q, top)
}

// Bench indexes the train split of the dataset into the empty index and
// measures the top k answers against the true neighbors
func (a *App) Bench(ds *hdf5data.Dataset, k int) (annbench.Result, error) {
	if a.Index.Len() != 0 {
		return annbench.Result{}, fmt.Errorf("bench needs an empty index, got %d entries", a.Index.Len())
	}
	bar := a.newBar(int64(len(ds.Train)))
	stop := common.Timer(a.Logger, "indexing train split")
	for _, v := range ds.Train {
		if _, err := a.Index.Insert(v); err != nil {
			bar.Finish()
			return annbench.Result{}, err
		}
		bar.Increment()
	}
	bar.Finish()
	stop()
	annbench.PrintMemUsage(a.Logger)

	defer common.Timer(a.Logger, "querying test split")()
	return annbench.Evaluate(a.Index, ds.Test, hdf5data.GroundTruth(ds.Neighbors, k), k)
}

// WriteMetrics dumps the collected metrics in the prometheus text format
func (a *App) WriteMetrics(w io.Writer) error {
	return metrics.WriteText(w, a.Registry)
}
