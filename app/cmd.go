package app

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/gasparian/lsh-search-go/annbench/hdf5data"
	"github.com/gasparian/lsh-search-go/common"
	"github.com/gasparian/lsh-search-go/embedding"
	"github.com/gasparian/lsh-search-go/lsh"
	"github.com/gasparian/lsh-search-go/vector"
)

var version = "dev"

// flags overriding the config file and the environment
type flags struct {
	configPath  string
	hashes      int
	tables      int
	dims        int
	seed        uint64
	family      string
	store       string
	dsn         string
	namespace   string
	snapshotDir string
	compression string
	verbose     bool
}

func (f *flags) register(fs *pflag.FlagSet) {
	def := DefaultConfig()
	fs.StringVarP(&f.configPath, "config", "c", "", "path to the YAML config")
	fs.IntVarP(&f.hashes, "hashes", "k", def.Index.Hashes, "hash functions per table")
	fs.IntVarP(&f.tables, "tables", "l", def.Index.Tables, "number of hash tables")
	fs.IntVarP(&f.dims, "dim", "d", def.Index.Dims, "vectors dimension, 0 infers it from the input")
	fs.Uint64Var(&f.seed, "seed", def.Index.Seed, "seed of the hash functions, 0 for a random one")
	fs.StringVar(&f.family, "family", def.Index.Family, "hash family: cosine or superbit")
	fs.StringVar(&f.store, "store", def.Store.Kind, "buckets store: memory, kv, purekv or sqlite")
	fs.StringVar(&f.dsn, "dsn", def.Store.DSN, "pure-kv server address or sqlite database path")
	fs.StringVar(&f.namespace, "namespace", def.Store.Namespace, "store keys prefix")
	fs.StringVar(&f.snapshotDir, "snapshot-dir", def.Snapshot.Dir, "directory of the index snapshots")
	fs.StringVar(&f.compression, "compression", def.Snapshot.Compression, "snapshot compression: none, lz4 or zstd")
	fs.BoolVarP(&f.verbose, "verbose", "v", false, "log bucket sizes on every query")
}

// config merges defaults, the config file, LSH_* variables and the flags set explicitly
func (f *flags) config(fs *pflag.FlagSet) (Config, error) {
	config, err := LoadConfig(f.configPath)
	if err != nil {
		return config, err
	}
	if err := ParseEnv(&config); err != nil {
		return config, err
	}
	overrides := map[string]func(){
		"hashes":       func() { config.Index.Hashes = f.hashes },
		"tables":       func() { config.Index.Tables = f.tables },
		"dim":          func() { config.Index.Dims = f.dims },
		"seed":         func() { config.Index.Seed = f.seed },
		"family":       func() { config.Index.Family = f.family },
		"store":        func() { config.Store.Kind = f.store },
		"dsn":          func() { config.Store.DSN = f.dsn },
		"namespace":    func() { config.Store.Namespace = f.namespace },
		"snapshot-dir": func() { config.Snapshot.Dir = f.snapshotDir },
		"compression":  func() { config.Snapshot.Compression = f.compression },
		"verbose":      func() { config.Index.Verbose = f.verbose },
	}
	for name, apply := range overrides {
		if fs.Changed(name) {
			apply()
		}
	}
	return config, config.Validate()
}

func (f *flags) open(cmd *cobra.Command) (*App, error) {
	config, err := f.config(cmd.Flags())
	if err != nil {
		return nil, err
	}
	logger := common.NewLogger(cmd.ErrOrStderr())
	return New(config, logger, cmd.ErrOrStderr())
}

// NewRootCmd builds the lsh command tree
func NewRootCmd() *cobra.Command {
	f := &flags{}
	root := &cobra.Command{
		Use:   "lsh",
		Short: "Approximate nearest neighbor search with locality sensitive hashing",
		Long: `Builds banded LSH indexes over dense vectors and answers
cosine nearest neighbor queries against them.`,
		SilenceUsage: true,
	}
	f.register(root.PersistentFlags())
	root.AddCommand(
		newIndexCmd(f),
		newQueryCmd(f),
		newBenchCmd(f),
		newVersionCmd(),
	)
	return root
}

// Execute runs the command line app
func Execute() error {
	return NewRootCmd().Execute()
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version number",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "lsh version %s\n", version)
		},
	}
}

func newIndexCmd(f *flags) *cobra.Command {
	return &cobra.Command{
		Use:   "index [file]",
		Short: "Add embeddings to the index",
		Long: `Reads "<label> <v1> ... <vd>" lines from the file, or stdin when
it's omitted or "-", adds them to the index and saves it.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			var r io.Reader = cmd.InOrStdin()
			var size int64
			if len(args) == 1 && args[0] != "-" {
				file, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer file.Close()
				if st, err := file.Stat(); err == nil {
					size = st.Size()
				}
				r = file
			}
			n, err := a.IndexEmbeddings(r, size)
			if err != nil {
				return err
			}
			path, err := a.Save()
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d vectors, %d in total\n", n, a.Index.Len())
			if path != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "snapshot: %s\n", path)
			}
			return nil
		},
	}
}

type searchResult struct {
	ID       uint64  `json:"id"`
	Label    string  `json:"label"`
	Distance float64 `json:"distance"`
}

func newQueryCmd(f *flags) *cobra.Command {
	var (
		top         int
		asJSON      bool
		rawVector   string
		withMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "query [label]",
		Short: "Find the nearest neighbors of an indexed label or of --vector",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if (len(args) == 1) == (rawVector != "") {
				return fmt.Errorf("either a label or --vector is needed")
			}
			a, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			if err := a.LoadIndex(); err != nil {
				return err
			}

			var q *vector.Vector
			if len(args) == 1 {
				q, err = a.Vector(args[0])
			} else {
				q, err = parseVector(rawVector, a.Index.Dimension())
			}
			if err != nil {
				return err
			}
			found, err := a.Search(q, top)
			if err != nil {
				return err
			}
			results := make([]searchResult, len(found))
			for i, c := range found {
				results[i] = searchResult{ID: c.ID, Label: c.Label, Distance: c.Distance}
			}
			if asJSON {
				err = outputJSON(cmd, results)
			} else {
				outputTable(cmd, results)
			}
			if err != nil || !withMetrics {
				return err
			}
			return a.WriteMetrics(cmd.OutOrStdout())
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 10, "maximum number of results, 0 for all candidates")
	cmd.Flags().BoolVar(&asJSON, "json", false, "output results as JSON")
	cmd.Flags().StringVar(&rawVector, "vector", "", "query vector, space or comma separated values")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "print the collected metrics")
	return cmd
}

// parseVector reads the values the same way index lines are read
func parseVector(s string, d int) (*vector.Vector, error) {
	reader := embedding.NewReader(strings.NewReader("query "+strings.ReplaceAll(s, ",", " ")), d)
	if !reader.Next() {
		if err := reader.Err(); err != nil {
			return nil, fmt.Errorf("--vector: %w", err)
		}
		return nil, fmt.Errorf("--vector is empty")
	}
	return reader.Vector(), nil
}

func outputJSON(cmd *cobra.Command, results []searchResult) error {
	data, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}

func outputTable(cmd *cobra.Command, results []searchResult) {
	if len(results) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No results found.")
		return
	}
	for i, r := range results {
		fmt.Fprintf(cmd.OutOrStdout(), "  [%d] %s id=%d (%.4f)\n", i+1, r.Label, r.ID, r.Distance)
	}
}

func newBenchCmd(f *flags) *cobra.Command {
	var (
		top         int
		withMetrics bool
	)
	cmd := &cobra.Command{
		Use:   "bench <dataset.hdf5>",
		Short: "Measure precision and recall on an ann-benchmarks dataset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ds, err := hdf5data.Open(args[0])
			if err != nil {
				return err
			}
			a, err := f.open(cmd)
			if err != nil {
				return err
			}
			defer a.Close()
			a.Config.Index.Dims = ds.Dims()
			if err := a.NewIndex(); err != nil {
				return err
			}
			res, err := a.Bench(ds, top)
			if err != nil {
				return err
			}
			family, _ := lsh.ParseFamily(a.Config.Index.Family)
			fmt.Fprintf(cmd.OutOrStdout(), "%s k=%d L=%d: precision %.4f, recall %.4f, %.1f candidates per query, %v per query\n",
				family, a.Config.Index.Hashes, a.Config.Index.Tables,
				res.Precision, res.Recall, res.CandidatesPerQuery, res.AvgQueryTime)
			if withMetrics {
				return a.WriteMetrics(cmd.OutOrStdout())
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&top, "top", "n", 10, "number of neighbors to compare")
	cmd.Flags().BoolVar(&withMetrics, "metrics", false, "print the collected metrics")
	return cmd
}
