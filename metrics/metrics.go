// Package metrics exposes counters and latency histograms for the parts of
// the engine worth watching in production: block cache hits/misses,
// compaction bytes read/written, memtable flush counts, and write/flush/
// compaction/WAL-sync latency. It is purely additive instrumentation,
// never on a correctness path, following the teacher's own split between
// structural code and its Prometheus-backed metrics (see
// cockroachdb-pebble/wal/wal.go's Options.FsyncLatency field) plus its
// cmd/pebble load-test tool's use of an HdrHistogram-family histogram for
// latency distributions (cockroachdb-pebble/cmd/pebble/test.go).
package metrics

import (
	"time"

	hdrhistogram "github.com/HdrHistogram/hdrhistogram-go"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	minLatency = int64(time.Microsecond)
	maxLatency = int64(10 * time.Second)
)

// Metrics collects every counter and histogram the engine updates. The
// zero value is not usable; construct one with New.
type Metrics struct {
	// CacheHits and CacheMisses are created and registered by New, but the
	// block cache does not update them, so they stay at zero.
	CacheHits   prometheus.Counter
	CacheMisses prometheus.Counter

	CompactionBytesRead    prometheus.Counter
	CompactionBytesWritten prometheus.Counter
	CompactionCount        prometheus.Counter
	FlushCount             prometheus.Counter

	WriteLatency      *LatencyHistogram
	FlushLatency      *LatencyHistogram
	CompactionLatency *LatencyHistogram
	WALSyncLatency    *LatencyHistogram
}

// New returns a Metrics with every counter and histogram initialized and
// registered with reg. reg may be nil, in which case the Prometheus
// collectors are created but not registered with any registry (useful in
// tests that don't want to pollute prometheus.DefaultRegisterer).
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corekv", Subsystem: "cache", Name: "hits_total",
			Help: "Number of block cache lookups that found their key.",
		}),
		CacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corekv", Subsystem: "cache", Name: "misses_total",
			Help: "Number of block cache lookups that missed.",
		}),
		CompactionBytesRead: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corekv", Subsystem: "compaction", Name: "bytes_read_total",
			Help: "Bytes read from input sorted tables across all compactions.",
		}),
		CompactionBytesWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corekv", Subsystem: "compaction", Name: "bytes_written_total",
			Help: "Bytes written to output sorted tables across all compactions.",
		}),
		CompactionCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corekv", Subsystem: "compaction", Name: "count_total",
			Help: "Number of compactions run.",
		}),
		FlushCount: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "corekv", Subsystem: "memtable", Name: "flush_count_total",
			Help: "Number of memtables flushed to level-0 sorted tables.",
		}),
		WriteLatency:      newLatencyHistogram("corekv", "write", "Latency of DB.Write calls."),
		FlushLatency:      newLatencyHistogram("corekv", "flush", "Latency of memtable flushes."),
		CompactionLatency: newLatencyHistogram("corekv", "compaction", "Latency of compaction runs."),
		WALSyncLatency:    newLatencyHistogram("corekv", "wal_sync", "Latency of WAL fsync calls."),
	}
	if reg != nil {
		reg.MustRegister(
			m.CacheHits, m.CacheMisses,
			m.CompactionBytesRead, m.CompactionBytesWritten, m.CompactionCount,
			m.FlushCount,
			m.WriteLatency.Collector(), m.FlushLatency.Collector(),
			m.CompactionLatency.Collector(), m.WALSyncLatency.Collector(),
		)
	}
	return m
}

// LatencyHistogram pairs a Prometheus histogram (for scraping/alerting)
// with an HdrHistogram (for the CLI's `stats` command, which wants exact
// quantiles rather than Prometheus's fixed bucket boundaries).
type LatencyHistogram struct {
	prom *prometheus.HistogramVec
	hdr  *hdrhistogram.Histogram
}

func newLatencyHistogram(namespace, name, help string) *LatencyHistogram {
	return &LatencyHistogram{
		prom: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      name + "_latency_seconds",
			Help:      help,
			Buckets:   prometheus.ExponentialBuckets(0.00001, 2, 20),
		}, nil),
		hdr: hdrhistogram.New(minLatency, maxLatency, 3),
	}
}

// Observe records one latency sample.
func (h *LatencyHistogram) Observe(d time.Duration) {
	h.prom.WithLabelValues().Observe(d.Seconds())
	_ = h.hdr.RecordValue(int64(d))
}

// Quantile returns the latency at the given quantile (0 < q < 1) over every
// sample recorded so far, as reported by the underlying HdrHistogram.
func (h *LatencyHistogram) Quantile(q float64) time.Duration {
	return time.Duration(h.hdr.ValueAtQuantile(q * 100))
}

// Collector exposes the Prometheus side of the histogram for registration.
func (h *LatencyHistogram) Collector() prometheus.Collector { return h.prom }

// Timer starts a latency measurement, stopped and recorded by calling the
// returned function.
func (h *LatencyHistogram) Timer() func() {
	start := time.Now()
	return func() { h.Observe(time.Since(start)) }
}
