package metrics

import (
	"time"
)

// Connect attempt results.
const (
	ResultSuccess = "success"
	ResultFailure = "failure"
)

// RecordApplied records one applied record.
func (r *Registry) RecordApplied(lsn int64, masterTime time.Time, lag, took time.Duration) {
	if r == nil {
		return
	}
	r.RecordsAppliedTotal.Inc()
	r.ConfirmedLSN.Set(float64(lsn))
	r.ReplicationLagSeconds.Set(lag.Seconds())
	r.LastRecordTimestampUnix.Set(float64(masterTime.UnixNano()) / 1e9)
	r.ApplyDuration.Observe(took.Seconds())
}

// SetConfirmedLSN sets the confirmed LSN without counting an apply.
func (r *Registry) SetConfirmedLSN(lsn int64) {
	if r == nil {
		return
	}
	r.ConfirmedLSN.Set(float64(lsn))
}

// AddReceivedBytes adds n to the received byte counter.
func (r *Registry) AddReceivedBytes(n int64) {
	if r == nil || n <= 0 {
		return
	}
	r.ReceivedBytesTotal.Add(float64(n))
}

// RecordConnectAttempt records a connection attempt with its result.
func (r *Registry) RecordConnectAttempt(result string) {
	if r == nil {
		return
	}
	r.ConnectAttemptsTotal.WithLabelValues(result).Inc()
}

// RecordConnectionError records a transport failure in the given stage.
func (r *Registry) RecordConnectionError(stage string) {
	if r == nil {
		return
	}
	r.ConnectionErrorsTotal.WithLabelValues(stage).Inc()
}

// SetPullerState marks state as the active puller state.
func (r *Registry) SetPullerState(state string) {
	if r == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.lastState != "" && r.lastState != state {
		r.PullerState.WithLabelValues(r.lastState).Set(0)
	}
	r.PullerState.WithLabelValues(state).Set(1)
	r.lastState = state
}
