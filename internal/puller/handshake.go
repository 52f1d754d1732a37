package puller

import (
	"context"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/bft-labs/walfollow/pkg/lifecycle"
	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/metrics"
	"github.com/bft-labs/walfollow/pkg/wire"
)

// session is one subscribed connection.
type session struct {
	conn    net.Conn
	reader  *wire.Reader
	master  wire.Greeting
	unwatch func() bool
	counted int64
}

func (s *session) close() {
	s.unwatch()
	_ = s.conn.Close()
}

// received returns the bytes read since the last call.
func (s *session) received() int64 {
	n := s.reader.BytesRead()
	d := n - s.counted
	s.counted = n
	return d
}

// connect dials the master, exchanges greetings and subscribes from initialLSN.
// The returned session's connection is closed when ctx is canceled.
func (p *Puller) connect(ctx context.Context, initialLSN int64) (*session, error) {
	p.transition(lifecycle.StateConnecting, "dial")

	dialCtx, cancel := context.WithTimeout(ctx, p.cfg.ConnectTimeout)
	conn, err := p.cfg.Dialer.DialContext(dialCtx, "tcp", p.cfg.Address)
	cancel()
	if err != nil {
		p.cfg.Metrics.RecordConnectAttempt(metrics.ResultFailure)
		return nil, fmt.Errorf("dial %s: %w", p.cfg.Address, err)
	}

	s := &session{
		conn:    conn,
		unwatch: context.AfterFunc(ctx, func() { _ = conn.Close() }),
	}

	p.transition(lifecycle.StateHandshaking, "connected")

	master, err := handshake(conn, p.cfg.HandshakeTimeout, p.cfg.VersionID, initialLSN)
	if err != nil {
		s.close()
		p.cfg.Metrics.RecordConnectAttempt(metrics.ResultFailure)
		return nil, err
	}
	p.cfg.Metrics.RecordConnectAttempt(metrics.ResultSuccess)

	s.master = master
	s.reader = wire.NewReader(conn, p.cfg.ReadAhead)

	p.logger.Info("successfully connected to master",
		log.Uint32("master_version", master.VersionID),
	)
	p.logger.Info("starting replication from lsn",
		log.Int64("lsn", initialLSN),
	)
	return s, nil
}

// handshake sends our greeting, checks the master's and sends the subscribe
// request. The whole exchange runs under one deadline.
func handshake(conn net.Conn, timeout time.Duration, versionID uint32, initialLSN int64) (wire.Greeting, error) {
	if timeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
			return wire.Greeting{}, fmt.Errorf("set handshake deadline: %w", err)
		}
	}

	out, _ := wire.NewGreeting(versionID).MarshalBinary()
	if _, err := conn.Write(out); err != nil {
		return wire.Greeting{}, fmt.Errorf("send greeting: %w", err)
	}

	buf := make([]byte, wire.GreetingSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		return wire.Greeting{}, fmt.Errorf("read greeting: %w", err)
	}
	master, err := wire.UnmarshalGreeting(buf)
	if err != nil {
		return wire.Greeting{}, err
	}
	if master.Format != wire.FormatVersion {
		return master, fmt.Errorf("%w: master format %d, replica format %d",
			ErrIncompatibleFormat, master.Format, wire.FormatVersion)
	}

	req, _ := wire.NewSubscribeRequest(initialLSN).MarshalBinary()
	if _, err := conn.Write(req); err != nil {
		return master, fmt.Errorf("send subscribe: %w", err)
	}

	if err := conn.SetDeadline(time.Time{}); err != nil {
		return master, fmt.Errorf("clear handshake deadline: %w", err)
	}
	return master, nil
}
