// Package metrics exports index activity as Prometheus metrics.
package metrics

import (
	"io"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/common/expfmt"

	"github.com/gasparian/lsh-search-go/lsh"
)

var _ lsh.Observer = (*Collector)(nil)

// Collector implements lsh.Observer
type Collector struct {
	Inserts       prometheus.Counter
	Queries       prometheus.Counter
	Touched       prometheus.Counter
	Candidates    prometheus.Histogram
	Returned      prometheus.Histogram
	QueryDuration prometheus.Histogram
}

// NewCollector creates the metrics and registers them in reg
func NewCollector(reg prometheus.Registerer) *Collector {
	factory := promauto.With(reg)
	return &Collector{
		Inserts: factory.NewCounter(prometheus.CounterOpts{
			Name: "lsh_inserts_total",
			Help: "Total number of vectors inserted into the index",
		}),
		Queries: factory.NewCounter(prometheus.CounterOpts{
			Name: "lsh_queries_total",
			Help: "Total number of queries",
		}),
		Touched: factory.NewCounter(prometheus.CounterOpts{
			Name: "lsh_touched_candidates_total",
			Help: "Distinct candidates re-ranked by all queries",
		}),
		// from a handful of vectors in a sparse bucket to a near linear scan
		Candidates: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lsh_query_candidates",
			Help:    "Distinct candidates re-ranked per query",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}),
		Returned: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lsh_query_results",
			Help:    "Results returned per query after truncation",
			Buckets: prometheus.ExponentialBuckets(1, 4, 8),
		}),
		QueryDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "lsh_query_duration_seconds",
			Help:    "Duration of queries in seconds",
			Buckets: []float64{0.0001, 0.0005, 0.001, 0.005, 0.01, 0.05, 0.1, 0.5, 1},
		}),
	}
}

func (c *Collector) ObserveInsert() {
	c.Inserts.Inc()
}

func (c *Collector) ObserveQuery(candidates, returned int, elapsed time.Duration) {
	c.Queries.Inc()
	c.Touched.Add(float64(candidates))
	c.Candidates.Observe(float64(candidates))
	c.Returned.Observe(float64(returned))
	c.QueryDuration.Observe(elapsed.Seconds())
}

// WriteText writes everything gathered by g in the text exposition format
func WriteText(w io.Writer, g prometheus.Gatherer) error {
	families, err := g.Gather()
	if err != nil {
		return err
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			return err
		}
	}
	return nil
}
