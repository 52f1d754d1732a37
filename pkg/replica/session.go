package replica

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/bft-labs/walfollow/internal/puller"
	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/wire"
)

// Session is a running remote replication session.
type Session struct {
	source string
	addr   *net.TCPAddr
	puller *puller.Puller
	logger log.Logger
}

// Start attaches a remote session to rc that follows the master at address
// (host:port) and returns immediately. The puller runs in its own goroutine
// until Stop or a fatal error.
func Start(rc *Recovery, address string, opts ...Option) (*Session, error) {
	if err := validateModuleVersions(); err != nil {
		return nil, err
	}
	if rc.applier == nil {
		return nil, ErrNoApplier
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = log.NewNoopLogger()
	}
	if o.fatalHandler == nil {
		o.fatalHandler = defaultFatalHandler(o.logger)
	}

	rc.mu.Lock()
	defer rc.mu.Unlock()

	if rc.session.Load() != nil {
		return nil, ErrAlreadyAttached
	}

	addr, err := resolve(address)
	if err != nil {
		return nil, err
	}

	o.logger.Info("initializing the replica, WAL master",
		log.String("master", address),
		log.Int64("confirmed_lsn", rc.ConfirmedLSN()),
	)

	cfg := puller.Config{
		Address:          addr.String(),
		Source:           address,
		ReconnectDelay:   o.reconnectDelay,
		ConnectTimeout:   o.connectTimeout,
		HandshakeTimeout: o.handshakeTimeout,
		ReadAhead:        o.readAhead,
		VerifyChecksums:  o.verifyChecksums,
		VersionID:        wire.VersionID(Version),
		Dialer:           o.dialer,
		Clock:            o.clock,
		Logger:           o.logger,
		Metrics:          o.metrics,
		OnFatal:          o.fatalHandler,
	}
	if o.eventHandler != nil {
		cfg.Observer = &eventEmitterWrapper{source: address, handler: o.eventHandler}
	}

	s := &Session{
		source: address,
		addr:   addr,
		puller: puller.New(cfg, rc, rc.applier),
		logger: o.logger,
	}
	if err := s.puller.Start(context.Background()); err != nil {
		return nil, err
	}

	rc.session.Store(s)
	return s, nil
}

// Stop cancels rc's session and detaches it. A record being applied is
// finished first and none is applied after Stop returns. Stop does not wait
// for the puller goroutine to exit; use Session.Wait for that.
func Stop(rc *Recovery) error {
	rc.mu.Lock()
	defer rc.mu.Unlock()

	s := rc.session.Load()
	if s == nil {
		return ErrNotAttached
	}

	s.logger.Info("shutting down the replica", log.String("master", s.source))
	s.puller.Cancel()
	rc.session.Store(nil)
	return nil
}

func resolve(address string) (*net.TCPAddr, error) {
	host, port, err := net.SplitHostPort(address)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	if host == "" || port == "" {
		return nil, fmt.Errorf("%w %q: host and port are required", ErrInvalidAddress, address)
	}
	addr, err := net.ResolveTCPAddr("tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w %q: %v", ErrInvalidAddress, address, err)
	}
	return addr, nil
}

// Source returns the master address as given to Start.
func (s *Session) Source() string {
	return s.source
}

// Address returns the resolved master address.
func (s *Session) Address() *net.TCPAddr {
	return s.addr
}

// ReconnectDelay returns the fixed delay between connection attempts.
func (s *Session) ReconnectDelay() time.Duration {
	return s.puller.ReconnectDelay()
}

// Lag returns local time minus the master timestamp of the last applied record.
func (s *Session) Lag() time.Duration {
	return s.puller.Lag()
}

// LastUpdate returns when the last record was applied.
func (s *Session) LastUpdate() time.Time {
	return s.puller.LastUpdate()
}

// State returns the current connection state.
func (s *Session) State() State {
	return s.puller.State()
}

// Status returns "replica/<source>/<state>", e.g. "replica/10.0.0.5:3301/connected".
func (s *Session) Status() string {
	return s.puller.Status()
}

// LastError returns the most recent transport or fatal error.
func (s *Session) LastError() error {
	return s.puller.LastError()
}

// Done is closed when the puller goroutine exits.
func (s *Session) Done() <-chan struct{} {
	return s.puller.Done()
}

// Err returns the error the puller ended with once Done is closed:
// context.Canceled after Stop, or a *FatalError.
func (s *Session) Err() error {
	return s.puller.Err()
}

// Wait blocks until the puller goroutine exits or timeout elapses.
func (s *Session) Wait(timeout time.Duration) error {
	return s.puller.Wait(timeout)
}
