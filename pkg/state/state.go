package state

import "time"

// State is the operator-facing snapshot of a replica.
// It is rewritten on every puller state change and periodically while streaming.
type State struct {
	// Source is the master address as configured (host:port)
	Source string `json:"source"`

	// Status is the short status string, "replica/<source>/<title>"
	Status string `json:"status"`

	// State is the puller state name (Disconnected, Connecting, ...)
	State string `json:"state"`

	// ConfirmedLSN is the LSN of the last applied record
	ConfirmedLSN int64 `json:"confirmed_lsn"`

	// LagSeconds is local time minus the master timestamp of the last applied record
	LagSeconds float64 `json:"lag_seconds"`

	// LastUpdateAt is when the last record was applied
	LastUpdateAt time.Time `json:"last_update_at,omitempty"`

	// LastError is the most recent transport or fatal error, if any
	LastError string `json:"last_error,omitempty"`

	// UpdatedAt is when this snapshot was taken
	UpdatedAt time.Time `json:"updated_at"`
}

// IsEmpty returns true if no snapshot has been recorded yet.
func (s State) IsEmpty() bool {
	return s.Source == "" && s.UpdatedAt.IsZero()
}

// Streaming reports whether the snapshot was taken while records were flowing.
func (s State) Streaming() bool {
	return s.State == "Streaming"
}

// Lag returns LagSeconds as a duration.
func (s State) Lag() time.Duration {
	return time.Duration(s.LagSeconds * float64(time.Second))
}
