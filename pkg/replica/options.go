package replica

import (
	"os"
	"time"

	"github.com/bft-labs/walfollow/internal/puller"
	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/metrics"
)

// Dialer opens TCP connections to the master. *net.Dialer satisfies it.
type Dialer = puller.Dialer

// Option configures optional behavior of a Session.
type Option func(*options)

// options holds the optional configuration for a Session.
type options struct {
	logger           log.Logger
	reconnectDelay   time.Duration
	connectTimeout   time.Duration
	handshakeTimeout time.Duration
	readAhead        int
	verifyChecksums  bool
	metrics          *metrics.Registry
	eventHandler     EventHandler
	fatalHandler     func(error)
	dialer           Dialer
	clock            func() time.Time
}

// defaultOptions returns options with sensible defaults.
func defaultOptions() options {
	return options{
		logger:           log.NewNoopLogger(),
		reconnectDelay:   puller.DefaultReconnectDelay,
		connectTimeout:   puller.DefaultConnectTimeout,
		handshakeTimeout: puller.DefaultHandshakeTimeout,
		clock:            time.Now,
	}
}

// WithLogger sets a custom logger for structured logging.
// If not provided, a no-op logger is used (no output).
func WithLogger(logger log.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithReconnectDelay sets the fixed delay between connection attempts.
// Defaults to one second.
func WithReconnectDelay(d time.Duration) Option {
	return func(o *options) {
		o.reconnectDelay = d
	}
}

// WithConnectTimeout bounds each dial.
func WithConnectTimeout(d time.Duration) Option {
	return func(o *options) {
		o.connectTimeout = d
	}
}

// WithHandshakeTimeout bounds the greeting and subscribe exchange.
func WithHandshakeTimeout(d time.Duration) Option {
	return func(o *options) {
		o.handshakeTimeout = d
	}
}

// WithReadAhead sets how many bytes are reserved before each header read.
func WithReadAhead(n int) Option {
	return func(o *options) {
		o.readAhead = n
	}
}

// WithVerifyChecksums makes payload checksum mismatches a transport error.
func WithVerifyChecksums(verify bool) Option {
	return func(o *options) {
		o.verifyChecksums = verify
	}
}

// WithMetrics records session metrics in reg.
func WithMetrics(reg *metrics.Registry) Option {
	return func(o *options) {
		o.metrics = reg
	}
}

// WithEventHandler sets a handler for session events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithFatalHandler replaces the default fatal handler, which logs the error
// and exits the process.
func WithFatalHandler(fn func(error)) Option {
	return func(o *options) {
		o.fatalHandler = fn
	}
}

// WithDialer sets a custom dialer.
func WithDialer(d Dialer) Option {
	return func(o *options) {
		o.dialer = d
	}
}

// WithClock sets the time source used for lag accounting.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.clock = now
	}
}

// exit is swapped in tests.
var exit = os.Exit

func defaultFatalHandler(logger log.Logger) func(error) {
	return func(err error) {
		logger.Error("replication failed, aborting", log.Err(err))
		exit(1)
	}
}
