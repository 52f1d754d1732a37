package puller

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walfollow/internal/testutil/fakemaster"
	"github.com/bft-labs/walfollow/internal/testutil/testlog"
	"github.com/bft-labs/walfollow/pkg/lifecycle"
	"github.com/bft-labs/walfollow/pkg/wire"
)

const waitTimeout = 3 * time.Second

type memCursor struct {
	lsn atomic.Int64
}

func (c *memCursor) ConfirmedLSN() int64       { return c.lsn.Load() }
func (c *memCursor) SetConfirmedLSN(lsn int64) { c.lsn.Store(lsn) }

// recordingApplier copies every applied record.
type recordingApplier struct {
	mu      sync.Mutex
	applied []wire.Record
}

func (a *recordingApplier) Apply(rec wire.Record) error {
	cp := rec
	cp.Payload = append([]byte(nil), rec.Payload...)
	a.mu.Lock()
	a.applied = append(a.applied, cp)
	a.mu.Unlock()
	return nil
}

func (a *recordingApplier) LSNs() []int64 {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]int64, len(a.applied))
	for i, r := range a.applied {
		out[i] = r.LSN
	}
	return out
}

func (a *recordingApplier) Count() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.applied)
}

type connError struct {
	stage   string
	attempt int
}

type recordingObserver struct {
	mu     sync.Mutex
	states []lifecycle.State
	errors []connError
}

func (o *recordingObserver) OnStateChange(_, current lifecycle.State, _ string) {
	o.mu.Lock()
	o.states = append(o.states, current)
	o.mu.Unlock()
}

func (o *recordingObserver) OnRecordApplied(wire.Record, time.Duration) {}

func (o *recordingObserver) OnConnectionError(stage string, _ error, attempt int) {
	o.mu.Lock()
	o.errors = append(o.errors, connError{stage, attempt})
	o.mu.Unlock()
}

func (o *recordingObserver) Errors() []connError {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]connError(nil), o.errors...)
}

func (o *recordingObserver) States() []lifecycle.State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]lifecycle.State(nil), o.states...)
}

type harness struct {
	puller   *Puller
	cursor   *memCursor
	applier  *recordingApplier
	logs     *testlog.Recorder
	observer *recordingObserver
}

func newHarness(t *testing.T, addr string, applier Applier, mutate func(*Config)) *harness {
	t.Helper()

	h := &harness{
		cursor:   &memCursor{},
		applier:  &recordingApplier{},
		logs:     testlog.New(),
		observer: &recordingObserver{},
	}
	if applier == nil {
		applier = h.applier
	}

	cfg := Config{
		Address:          addr,
		ReconnectDelay:   10 * time.Millisecond,
		ConnectTimeout:   time.Second,
		HandshakeTimeout: time.Second,
		Logger:           h.logs,
		Observer:         h.observer,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	h.puller = New(cfg, h.cursor, applier)
	return h
}

func (h *harness) start(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, h.puller.Start(ctx))
	t.Cleanup(func() {
		h.puller.Cancel()
		_ = h.puller.Wait(waitTimeout)
	})
	// Registered last so it runs first, mirroring t.Context (Go 1.24+),
	// which is cancelled before any Cleanup functions run.
	t.Cleanup(cancel)
}

func (h *harness) waitDone(t *testing.T) error {
	t.Helper()
	select {
	case <-h.puller.Done():
		return h.puller.Err()
	case <-time.After(waitTimeout):
		t.Fatal("puller did not stop")
		return nil
	}
}

func (h *harness) waitLSN(t *testing.T, lsn int64) {
	t.Helper()
	require.Eventually(t, func() bool { return h.cursor.ConfirmedLSN() == lsn },
		waitTimeout, 5*time.Millisecond, "confirmed lsn never reached %d", lsn)
}

func walRecords(from, to int64) []wire.Record {
	var out []wire.Record
	for lsn := from; lsn <= to; lsn++ {
		out = append(out, wire.NewRecord(lsn, time.Now(), []byte{byte(lsn)}))
	}
	return out
}

// closedAddr returns a loopback address nothing listens on.
func closedAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())
	return addr
}

func startMaster(t *testing.T, opts ...fakemaster.Option) *fakemaster.Master {
	return fakemaster.Start(t, opts...)
}
