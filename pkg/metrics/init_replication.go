package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

func (r *Registry) initReplicationMetrics() {
	r.ReplicationLagSeconds = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "walfollow_replication_lag_seconds",
			Help: "Difference between local time and the timestamp of the last applied record",
		},
	)

	r.ConfirmedLSN = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "walfollow_confirmed_lsn",
			Help: "LSN of the last applied record",
		},
	)

	r.RecordsAppliedTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "walfollow_records_applied_total",
			Help: "Total number of records applied",
		},
	)

	r.ReceivedBytesTotal = promauto.With(r.registry).NewCounter(
		prometheus.CounterOpts{
			Name: "walfollow_received_bytes_total",
			Help: "Total number of bytes received from the master",
		},
	)

	r.ConnectAttemptsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "walfollow_connect_attempts_total",
			Help: "Total number of connection attempts to the master",
		},
		[]string{"result"}, // success, failure
	)

	r.ConnectionErrorsTotal = promauto.With(r.registry).NewCounterVec(
		prometheus.CounterOpts{
			Name: "walfollow_connection_errors_total",
			Help: "Total number of transport errors by stage",
		},
		[]string{"stage"}, // connect, read
	)

	r.PullerState = promauto.With(r.registry).NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "walfollow_puller_state",
			Help: "Current puller state (1 for the active state)",
		},
		[]string{"state"},
	)

	r.ApplyDuration = promauto.With(r.registry).NewHistogram(
		prometheus.HistogramOpts{
			Name:    "walfollow_apply_duration_seconds",
			Help:    "Time spent applying a single record",
			Buckets: prometheus.ExponentialBuckets(0.0001, 4, 10),
		},
	)

	r.LastRecordTimestampUnix = promauto.With(r.registry).NewGauge(
		prometheus.GaugeOpts{
			Name: "walfollow_last_record_timestamp_seconds",
			Help: "Master timestamp of the last applied record",
		},
	)
}
