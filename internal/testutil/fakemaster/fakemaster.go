// Package fakemaster runs an in-process TCP master for replica tests.
//
// The master answers the greeting, reads the subscribe request and hands the
// connection to the test, which scripts what is streamed back.
package fakemaster

import (
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/bft-labs/walfollow/pkg/wire"
)

// Master is a scripted replication master.
type Master struct {
	ln       net.Listener
	greeting wire.Greeting

	conns chan *Conn

	mu         sync.Mutex
	accepted   int
	subscribes []int64
	open       []net.Conn
	closed     bool

	wg sync.WaitGroup
}

// Option configures a Master.
type Option func(*Master)

// WithFormat makes the master advertise a different log format.
func WithFormat(format uint32) Option {
	return func(m *Master) { m.greeting.Format = format }
}

// Conn is an accepted, subscribed replica connection.
type Conn struct {
	net.Conn
	Greeting  wire.Greeting
	Subscribe wire.SubscribeRequest
}

// Send streams records to the replica.
func (c *Conn) Send(recs ...wire.Record) error {
	var b []byte
	for _, r := range recs {
		b = wire.AppendRecord(b, r)
	}
	return c.SendRaw(b)
}

// SendRaw writes raw bytes to the replica.
func (c *Conn) SendRaw(b []byte) error {
	_, err := c.Write(b)
	return err
}

// Start listens on a loopback port. The master is closed on test cleanup.
func Start(t testing.TB, opts ...Option) *Master {
	t.Helper()

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("fakemaster: listen: %v", err)
	}

	m := &Master{
		ln:       ln,
		greeting: wire.NewGreeting(wire.VersionID("1.6.0")),
		conns:    make(chan *Conn, 64),
	}
	for _, opt := range opts {
		opt(m)
	}

	m.wg.Add(1)
	go m.serve()

	t.Cleanup(m.Close)
	return m
}

// Addr returns the listen address as host:port.
func (m *Master) Addr() string {
	return m.ln.Addr().String()
}

// Next waits for the next subscribed connection.
func (m *Master) Next(t testing.TB, timeout time.Duration) *Conn {
	t.Helper()
	select {
	case c := <-m.conns:
		return c
	case <-time.After(timeout):
		t.Fatalf("fakemaster: no subscription within %v", timeout)
		return nil
	}
}

// Accepted returns the number of TCP connections accepted so far.
func (m *Master) Accepted() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.accepted
}

// Subscriptions returns the initial LSN of every subscribe request received.
func (m *Master) Subscriptions() []int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]int64(nil), m.subscribes...)
}

// DropAll closes every open replica connection.
func (m *Master) DropAll() {
	m.mu.Lock()
	open := m.open
	m.open = nil
	m.mu.Unlock()
	for _, c := range open {
		_ = c.Close()
	}
}

// Close stops accepting and drops all connections.
func (m *Master) Close() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	m.mu.Unlock()

	_ = m.ln.Close()
	m.DropAll()
	m.wg.Wait()
}

func (m *Master) serve() {
	defer m.wg.Done()
	for {
		conn, err := m.ln.Accept()
		if err != nil {
			return
		}

		m.mu.Lock()
		if m.closed {
			m.mu.Unlock()
			_ = conn.Close()
			return
		}
		m.accepted++
		m.open = append(m.open, conn)
		m.mu.Unlock()

		m.wg.Add(1)
		go func() {
			defer m.wg.Done()
			m.handshake(conn)
		}()
	}
}

func (m *Master) handshake(conn net.Conn) {
	buf := make([]byte, wire.GreetingSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		_ = conn.Close()
		return
	}
	replica, err := wire.UnmarshalGreeting(buf)
	if err != nil {
		_ = conn.Close()
		return
	}

	out, _ := m.greeting.MarshalBinary()
	if _, err := conn.Write(out); err != nil {
		_ = conn.Close()
		return
	}

	buf = make([]byte, wire.SubscribeRequestSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		// A replica that rejects our format hangs up here.
		_ = conn.Close()
		return
	}
	req, err := wire.UnmarshalSubscribeRequest(buf)
	if err != nil {
		_ = conn.Close()
		return
	}

	m.mu.Lock()
	m.subscribes = append(m.subscribes, req.InitialLSN)
	m.mu.Unlock()

	select {
	case m.conns <- &Conn{Conn: conn, Greeting: replica, Subscribe: req}:
	default:
		_ = conn.Close()
	}
}
