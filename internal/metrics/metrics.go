// Package metrics provides Prometheus metrics for the toolpath codec
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// Chunk codec metrics
	ChunksSealed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolpath_chunks_sealed_total",
			Help: "Total number of binary stream chunks sealed",
		},
		[]string{"codec"},
	)

	ChunkBytes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolpath_chunk_bytes_total",
			Help: "Total chunk payload bytes before and after compression",
		},
		[]string{"stage"},
	)

	ChunkDecodes = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolpath_chunk_decodes_total",
			Help: "Total number of chunk decompressions",
		},
		[]string{"result"},
	)

	// Layer session metrics
	LayersWritten = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolpath_layers_written_total",
			Help: "Total number of layers finished",
		},
		[]string{"mode"},
	)

	SegmentsRead = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "toolpath_segments_read_total",
			Help: "Total number of segments decoded from layer XML",
		},
		[]string{"type"},
	)

	ReadWarnings = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "toolpath_read_warnings_total",
			Help: "Total number of recoverable layer parse warnings",
		},
	)
)

// RecordChunkSealed records one sealed chunk.
func RecordChunkSealed(codec string, raw, compressed int) {
	ChunksSealed.WithLabelValues(codec).Inc()
	ChunkBytes.WithLabelValues("raw").Add(float64(raw))
	ChunkBytes.WithLabelValues("compressed").Add(float64(compressed))
}

// RecordChunkDecode records the outcome of a chunk decompression.
func RecordChunkDecode(err error) {
	if err != nil {
		ChunkDecodes.WithLabelValues("error").Inc()
		return
	}
	ChunkDecodes.WithLabelValues("ok").Inc()
}

// RecordLayerWritten records a finished layer.
func RecordLayerWritten(binary bool) {
	mode := "inline"
	if binary {
		mode = "binary"
	}
	LayersWritten.WithLabelValues(mode).Inc()
}
