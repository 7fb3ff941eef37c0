package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	urlsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "webrag",
		Subsystem: "ingest",
		Name:      "urls_total",
		Help:      "URLs processed, labelled by outcome.",
	}, []string{"outcome"})

	chunksStored = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "webrag",
		Subsystem: "ingest",
		Name:      "chunks_stored_total",
		Help:      "Chunks written to the vector store.",
	})

	urlDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Namespace: "webrag",
		Subsystem: "ingest",
		Name:      "url_duration_seconds",
		Help:      "Wall time spent processing a single URL.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})
)
