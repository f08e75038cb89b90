package observability

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics groups all Prometheus instruments used by the service.
type Metrics struct {
	StoreOps       *prometheus.CounterVec
	StorageErrors  *prometheus.CounterVec
	TrimmedRecords prometheus.Counter
	VolatileMode   prometheus.Gauge
	ArchiveWrites  *prometheus.CounterVec
	StorageLatency prometheus.Histogram
}

func NewMetrics(namespace string) *Metrics {
	return &Metrics{
		StoreOps: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "store_ops_total",
			Help:      "Context store operations by operation and backend.",
		}, []string{"op", "backend"}),
		StorageErrors: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "storage_errors_total",
			Help:      "Storage failures by backend and classification.",
		}, []string{"backend", "kind"}),
		TrimmedRecords: promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "trimmed_records_total",
			Help:      "Messages evicted by the FIFO history bound.",
		}),
		VolatileMode: promauto.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "volatile_mode",
			Help:      "1 when the store is serving from the in-process fallback backend.",
		}),
		ArchiveWrites: promauto.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "archive_writes_total",
			Help:      "PostgreSQL archive writes by status.",
		}, []string{"status"}),
		StorageLatency: promauto.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "storage_op_latency_ms",
			Help:      "Durable backend operation latency in milliseconds.",
			Buckets:   []float64{1, 5, 10, 25, 50, 100, 250, 500, 1000, 2000},
		}),
	}
}

func (m *Metrics) ObserveStorageLatency(d time.Duration) {
	m.StorageLatency.Observe(float64(d.Milliseconds()))
}

func MetricsHandler() http.Handler {
	return promhttp.Handler()
}
