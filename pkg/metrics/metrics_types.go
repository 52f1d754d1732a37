package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Registry holds all replica metrics on a private Prometheus registry.
//
// All recording methods are safe to call on a nil *Registry.
type Registry struct {
	// Replication Metrics
	ReplicationLagSeconds   prometheus.Gauge
	ConfirmedLSN            prometheus.Gauge
	RecordsAppliedTotal     prometheus.Counter
	ReceivedBytesTotal      prometheus.Counter
	ConnectAttemptsTotal    *prometheus.CounterVec
	ConnectionErrorsTotal   *prometheus.CounterVec
	PullerState             *prometheus.GaugeVec
	ApplyDuration           prometheus.Histogram
	LastRecordTimestampUnix prometheus.Gauge

	registry  *prometheus.Registry
	mu        sync.Mutex
	lastState string
}

var (
	// Global registry instance
	defaultRegistry *Registry
	once            sync.Once
)

// DefaultRegistry returns the global metrics registry
func DefaultRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = NewRegistry()
	})
	return defaultRegistry
}

// NewRegistry creates a new metrics registry with all metrics initialized
func NewRegistry() *Registry {
	reg := prometheus.NewRegistry()

	r := &Registry{
		registry: reg,
	}

	r.initReplicationMetrics()

	return r
}

// GetPrometheusRegistry returns the underlying Prometheus registry
func (r *Registry) GetPrometheusRegistry() *prometheus.Registry {
	return r.registry
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Registry) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}
