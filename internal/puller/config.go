package puller

import (
	"context"
	"net"
	"time"

	"github.com/bft-labs/walfollow/pkg/lifecycle"
	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/metrics"
	"github.com/bft-labs/walfollow/pkg/wire"
)

// Defaults.
const (
	DefaultReconnectDelay   = time.Second
	DefaultConnectTimeout   = 10 * time.Second
	DefaultHandshakeTimeout = 10 * time.Second
)

// Applier applies one record to local durable state. It is called
// synchronously, in LSN order, never concurrently. rec.Payload is only valid
// for the duration of the call.
type Applier interface {
	Apply(rec wire.Record) error
}

// ApplierFunc adapts a function to Applier.
type ApplierFunc func(rec wire.Record) error

// Apply calls f.
func (f ApplierFunc) Apply(rec wire.Record) error {
	return f(rec)
}

// Cursor holds the confirmed LSN the puller resumes from and advances.
type Cursor interface {
	ConfirmedLSN() int64
	SetConfirmedLSN(lsn int64)
}

// Dialer opens connections to the master.
type Dialer interface {
	DialContext(ctx context.Context, network, address string) (net.Conn, error)
}

// Observer receives puller events. Calls are made from the puller goroutine
// and must not block.
type Observer interface {
	OnStateChange(previous, current lifecycle.State, reason string)
	OnRecordApplied(rec wire.Record, lag time.Duration)
	OnConnectionError(stage string, err error, attempt int)
}

// Stages reported to OnConnectionError.
const (
	StageConnect = "connect"
	StageRead    = "read"
)

// Config configures a Puller.
type Config struct {
	// Address is the resolved master address to dial.
	Address string

	// Source is the master address as configured, used in status strings.
	Source string

	ReconnectDelay   time.Duration
	ConnectTimeout   time.Duration
	HandshakeTimeout time.Duration

	// ReadAhead is reserved before each header read. Zero selects wire.DefaultReadAhead.
	ReadAhead int

	// VerifyChecksums treats a payload checksum mismatch as a transport error.
	VerifyChecksums bool

	// VersionID is sent in the greeting.
	VersionID uint32

	Dialer   Dialer
	Clock    func() time.Time
	Logger   log.Logger
	Metrics  *metrics.Registry
	Observer Observer

	// OnFatal is called from the puller goroutine when Run ends with a *FatalError.
	OnFatal func(err error)
}

func (c *Config) setDefaults() {
	if c.Source == "" {
		c.Source = c.Address
	}
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = DefaultReconnectDelay
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = DefaultConnectTimeout
	}
	if c.HandshakeTimeout <= 0 {
		c.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.ReadAhead <= 0 {
		c.ReadAhead = wire.DefaultReadAhead
	}
	if c.VersionID == 0 {
		c.VersionID = wire.VersionID(wire.Version)
	}
	if c.Dialer == nil {
		c.Dialer = &net.Dialer{Timeout: c.ConnectTimeout}
	}
	if c.Clock == nil {
		c.Clock = time.Now
	}
	if c.Logger == nil {
		c.Logger = log.NewNoopLogger()
	}
}
