package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// persistenceLabel maps the persist flag onto the metric label values.
func persistenceLabel(persist bool) string {
	if persist {
		return "persistent"
	}
	return "ephemeral"
}

// UploadMetrics instruments the upload lifecycle. A nil receiver is
// valid on every method and records nothing, so the manager can be
// wired with or without metrics.
type UploadMetrics struct {
	uploadsCreated   *prometheus.CounterVec
	uploadsCompleted *prometheus.CounterVec
	uploadsRemoved   *prometheus.CounterVec
	chunksReceived   prometheus.Counter
	duplicateChunks  prometheus.Counter
	chunkBytes       prometheus.Histogram
	assemblyDuration prometheus.Histogram
	activeUploads    prometheus.Gauge
}

// NewUploadMetrics creates Prometheus-backed upload metrics.
//
// Returns nil if metrics are not enabled (InitRegistry not called).
func NewUploadMetrics() *UploadMetrics {
	if !IsEnabled() {
		return nil
	}

	reg := GetRegistry()

	return &UploadMetrics{
		uploadsCreated: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropgate_uploads_created_total",
				Help: "Total uploads created, by persistence mode",
			},
			[]string{"persistence"},
		),
		uploadsCompleted: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropgate_uploads_completed_total",
				Help: "Total uploads assembled and finalized, by persistence mode",
			},
			[]string{"persistence"},
		),
		uploadsRemoved: promauto.With(reg).NewCounterVec(
			prometheus.CounterOpts{
				Name: "dropgate_uploads_removed_total",
				Help: "Total uploads cancelled or forgotten before completion, by persistence mode",
			},
			[]string{"persistence"},
		),
		chunksReceived: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dropgate_chunks_received_total",
				Help: "Total chunk submissions stored",
			},
		),
		duplicateChunks: promauto.With(reg).NewCounter(
			prometheus.CounterOpts{
				Name: "dropgate_duplicate_chunks_total",
				Help: "Total chunk submissions skipped because the part already existed",
			},
		),
		chunkBytes: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name: "dropgate_chunk_bytes",
				Help: "Distribution of stored chunk sizes in bytes",
				Buckets: []float64{
					64 << 10,  // 64KiB
					256 << 10, // 256KiB
					1 << 20,   // 1MiB
					4 << 20,   // 4MiB
					16 << 20,  // 16MiB
					40 << 20,  // 40MiB
					80 << 20,  // 80MiB - request cap
				},
			},
		),
		assemblyDuration: promauto.With(reg).NewHistogram(
			prometheus.HistogramOpts{
				Name:    "dropgate_assembly_duration_seconds",
				Help:    "Time spent streaming parts into the final artifact",
				Buckets: prometheus.DefBuckets,
			},
		),
		activeUploads: promauto.With(reg).NewGauge(
			prometheus.GaugeOpts{
				Name: "dropgate_active_uploads",
				Help: "Uploads currently in flight (active or paused)",
			},
		),
	}
}

// UploadCreated records a new upload.
func (m *UploadMetrics) UploadCreated(persist bool) {
	if m == nil {
		return
	}
	m.uploadsCreated.WithLabelValues(persistenceLabel(persist)).Inc()
	m.activeUploads.Inc()
}

// UploadCompleted records a finalized upload.
func (m *UploadMetrics) UploadCompleted(persist bool) {
	if m == nil {
		return
	}
	m.uploadsCompleted.WithLabelValues(persistenceLabel(persist)).Inc()
	m.activeUploads.Dec()
}

// UploadRemoved records a cancelled or forgotten upload.
func (m *UploadMetrics) UploadRemoved(persist bool) {
	if m == nil {
		return
	}
	m.uploadsRemoved.WithLabelValues(persistenceLabel(persist)).Inc()
	m.activeUploads.Dec()
}

// UploadsRecovered raises the in-flight gauge for uploads found in
// durable state at startup.
func (m *UploadMetrics) UploadsRecovered(n int) {
	if m == nil {
		return
	}
	m.activeUploads.Add(float64(n))
}

// ChunkReceived records a stored chunk of the given size.
func (m *UploadMetrics) ChunkReceived(bytes int64) {
	if m == nil {
		return
	}
	m.chunksReceived.Inc()
	m.chunkBytes.Observe(float64(bytes))
}

// DuplicateChunk records a chunk submission skipped as already stored.
func (m *UploadMetrics) DuplicateChunk() {
	if m == nil {
		return
	}
	m.duplicateChunks.Inc()
}

// ObserveAssembly records the duration of one assembly run.
func (m *UploadMetrics) ObserveAssembly(d time.Duration) {
	if m == nil {
		return
	}
	m.assemblyDuration.Observe(d.Seconds())
}
