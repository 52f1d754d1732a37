package replica

import (
	"sync"
	"sync/atomic"

	"github.com/bft-labs/walfollow/internal/puller"
)

// Applier applies replicated records to local state.
type Applier = puller.Applier

// ApplierFunc adapts a function to Applier.
type ApplierFunc = puller.ApplierFunc

// Recovery is the local replication context: the confirmed LSN, the applier
// records go to, and at most one attached remote session.
type Recovery struct {
	confirmed atomic.Int64
	applier   Applier

	// mu serializes Start and Stop.
	mu      sync.Mutex
	session atomic.Pointer[Session]
}

// NewRecovery creates a Recovery resuming after confirmedLSN.
func NewRecovery(confirmedLSN int64, applier Applier) *Recovery {
	rc := &Recovery{applier: applier}
	rc.confirmed.Store(confirmedLSN)
	return rc
}

// ConfirmedLSN returns the LSN of the last applied record.
func (rc *Recovery) ConfirmedLSN() int64 {
	return rc.confirmed.Load()
}

// SetConfirmedLSN records lsn as applied.
func (rc *Recovery) SetConfirmedLSN(lsn int64) {
	rc.confirmed.Store(lsn)
}

// Remote returns the attached session, or nil.
func (rc *Recovery) Remote() *Session {
	return rc.session.Load()
}
