// Package metrics exports view traversal events as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/qri-io/mcastack"
)

const namespace = "mcastack"

// Collector counts the chunks and rows views move through their buffers.
type Collector struct {
	chunks        *prometheus.CounterVec
	rows          *prometheus.CounterVec
	chunkRows     prometheus.Histogram
	capacity      prometheus.Gauge
	memoryUnknown prometheus.Counter
	traversals    *prometheus.CounterVec
}

// NewCollector registers the view metrics with reg. A nil reg uses the
// default registerer.
func NewCollector(reg prometheus.Registerer) *Collector {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	f := promauto.With(reg)
	return &Collector{
		chunks: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "chunks_total",
			Help:      "Chunks moved between sources and view buffers",
		}, []string{"direction"}),
		rows: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "rows_total",
			Help:      "Rows moved between sources and view buffers",
		}, []string{"direction"}),
		chunkRows: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "chunk_rows",
			Help:      "Distribution of rows per chunk read",
			Buckets:   prometheus.ExponentialBuckets(1, 4, 10),
		}),
		capacity: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "buffer_rows",
			Help:      "Row capacity of the most recently planned view",
		}),
		memoryUnknown: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "memory_unknown_total",
			Help:      "Views planned without knowing the available memory",
		}),
		traversals: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "view",
			Name:      "traversals_total",
			Help:      "Completed traversals by kind",
		}, []string{"kind"}),
	}
}

// Observe records one event. It has the signature of mcastack.Observer.
func (c *Collector) Observe(e mcastack.Event) {
	switch e.Kind {
	case mcastack.EventPlanned:
		c.capacity.Set(float64(e.Rows))
	case mcastack.EventMemoryUnknown:
		c.memoryUnknown.Inc()
	case mcastack.EventChunkRead:
		c.chunks.WithLabelValues("read").Inc()
		c.rows.WithLabelValues("read").Add(float64(e.Rows))
		c.chunkRows.Observe(float64(e.Rows))
	case mcastack.EventChunkWritten:
		c.chunks.WithLabelValues("write").Inc()
		c.rows.WithLabelValues("write").Add(float64(e.Rows))
	case mcastack.EventExhausted:
		kind := "full"
		if e.Masked {
			kind = "masked"
		}
		c.traversals.WithLabelValues(kind).Inc()
	}
}

// Observer returns c.Observe as a view option.
func (c *Collector) Observer() mcastack.Option {
	return mcastack.WithObserver(c.Observe)
}
