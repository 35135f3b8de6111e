package tensor

import (
	"github.com/prometheus/client_golang/prometheus"
)

type engineMetrics struct {
	chunksFetched prometheus.Counter
	chunksWritten prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
}

func newEngineMetrics(tensorName string) *engineMetrics {
	labels := prometheus.Labels{"tensor": tensorName}
	return &engineMetrics{
		chunksFetched: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hub",
			Subsystem:   "chunk_engine",
			Name:        "chunks_fetched_total",
			Help:        "Number of chunks fetched from the backing store.",
			ConstLabels: labels,
		}),
		chunksWritten: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hub",
			Subsystem:   "chunk_engine",
			Name:        "chunks_written_total",
			Help:        "Number of chunks written to the backing store.",
			ConstLabels: labels,
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hub",
			Subsystem:   "chunk_engine",
			Name:        "chunk_cache_hits_total",
			Help:        "Number of chunk reads served from the decoded-chunk cache.",
			ConstLabels: labels,
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "hub",
			Subsystem:   "chunk_engine",
			Name:        "chunk_cache_misses_total",
			Help:        "Number of chunk reads that went to the backing store.",
			ConstLabels: labels,
		}),
	}
}

func (m *engineMetrics) register(reg prometheus.Registerer) error {
	for _, c := range []prometheus.Collector{m.chunksFetched, m.chunksWritten, m.cacheHits, m.cacheMisses} {
		if err := reg.Register(c); err != nil {
			return err
		}
	}
	return nil
}
