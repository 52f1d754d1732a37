package puller

import (
	"context"
	"errors"
	"io"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walfollow/internal/testutil/fakemaster"
	"github.com/bft-labs/walfollow/internal/testutil/testlog"
	"github.com/bft-labs/walfollow/pkg/lifecycle"
	"github.com/bft-labs/walfollow/pkg/wire"
)

func TestPuller_StreamsInOrder(t *testing.T) {
	m := startMaster(t)
	h := newHarness(t, m.Addr(), nil, nil)
	h.cursor.SetConfirmedLSN(100)
	h.start(t)

	conn := m.Next(t, waitTimeout)
	assert.Equal(t, int64(101), conn.Subscribe.InitialLSN)
	assert.Equal(t, wire.RequestGetWAL, conn.Subscribe.Kind)
	assert.Equal(t, wire.FormatVersion, conn.Greeting.Format)

	require.NoError(t, conn.Send(walRecords(101, 103)...))
	h.waitLSN(t, 103)

	assert.Equal(t, []int64{101, 102, 103}, h.applier.LSNs())
	assert.Equal(t, lifecycle.StateStreaming, h.puller.State())
	assert.Equal(t, "replica/"+m.Addr()+"/connected", h.puller.Status())
	assert.Equal(t, 1, h.logs.Count(testlog.LevelInfo, "successfully connected to master"))

	h.puller.Cancel()
	err := h.waitDone(t)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, lifecycle.StateStopped, h.puller.State())
}

func TestPuller_ReconnectResumesFromConfirmed(t *testing.T) {
	m := startMaster(t)
	h := newHarness(t, m.Addr(), nil, nil)
	h.start(t)

	conn := m.Next(t, waitTimeout)
	require.NoError(t, conn.Send(walRecords(1, 2)...))
	h.waitLSN(t, 2)
	require.NoError(t, conn.Close())

	conn = m.Next(t, waitTimeout)
	assert.Equal(t, int64(3), conn.Subscribe.InitialLSN)

	require.NoError(t, conn.Send(walRecords(3, 3)...))
	h.waitLSN(t, 3)

	assert.Equal(t, []int64{1, 2, 3}, h.applier.LSNs())
	assert.Equal(t, []int64{1, 3}, m.Subscriptions())
}

func TestPuller_GreetingMismatchNeverApplies(t *testing.T) {
	m := startMaster(t, fakemaster.WithFormat(wire.FormatVersion-1))
	h := newHarness(t, m.Addr(), nil, nil)
	h.start(t)

	require.Eventually(t, func() bool { return m.Accepted() >= 3 }, waitTimeout, 5*time.Millisecond)

	assert.Zero(t, h.applier.Count())
	assert.Empty(t, m.Subscriptions(), "replica must not subscribe after a format mismatch")
	assert.Equal(t, 1, h.logs.Count(testlog.LevelError, "master has unknown log format"))
	assert.Zero(t, h.logs.Count(testlog.LevelError, "can't connect to master"))
	assert.ErrorIs(t, h.puller.LastError(), ErrIncompatibleFormat)
}

func TestPuller_FailureLoggedOncePerStreak(t *testing.T) {
	h := newHarness(t, closedAddr(t), nil, nil)
	h.start(t)

	require.Eventually(t, func() bool { return len(h.observer.Errors()) >= 4 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, 1, h.logs.Count(testlog.LevelError, "can't connect to master"))
	assert.Equal(t, 1, h.logs.Count(testlog.LevelInfo, "will retry every"))
	assert.GreaterOrEqual(t, h.logs.Count(testlog.LevelDebug, "can't connect to master"), 3)

	errs := h.observer.Errors()
	for i, e := range errs {
		assert.Equal(t, StageConnect, e.stage)
		assert.Equal(t, i+1, e.attempt)
	}
}

func TestPuller_StreakResetsAfterConnect(t *testing.T) {
	m := startMaster(t)
	h := newHarness(t, m.Addr(), nil, nil)
	h.start(t)

	for i := 0; i < 2; i++ {
		conn := m.Next(t, waitTimeout)
		require.NoError(t, conn.Close())
	}
	m.Next(t, waitTimeout)

	assert.Equal(t, 2, h.logs.Count(testlog.LevelError, "can't read row"))
	assert.Equal(t, 2, h.logs.Count(testlog.LevelInfo, "will retry every"))
}

func TestPuller_CancelWhileBlockedInRead(t *testing.T) {
	m := startMaster(t)
	h := newHarness(t, m.Addr(), nil, nil)
	h.start(t)

	m.Next(t, waitTimeout)
	require.Eventually(t, func() bool { return h.puller.State() == lifecycle.StateStreaming },
		waitTimeout, 5*time.Millisecond)

	h.puller.Cancel()
	err := h.waitDone(t)

	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, h.applier.Count())
	assert.Equal(t, 0, h.logs.Count(testlog.LevelError, ""))
}

func TestPuller_CancelWhileSleeping(t *testing.T) {
	h := newHarness(t, closedAddr(t), nil, func(c *Config) {
		c.ReconnectDelay = time.Hour
	})
	h.start(t)

	require.Eventually(t, func() bool { return len(h.observer.Errors()) == 1 }, waitTimeout, 5*time.Millisecond)

	assert.Equal(t, "replica/"+h.puller.Source()+"/failed", h.puller.Status())

	h.puller.Cancel()
	assert.ErrorIs(t, h.waitDone(t), context.Canceled)
	assert.Equal(t, lifecycle.StateStopped, h.puller.State())
}

func TestPuller_CancelDuringApply(t *testing.T) {
	m := startMaster(t)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	var applied atomic.Int64
	blocking := ApplierFunc(func(rec wire.Record) error {
		entered <- struct{}{}
		<-release
		applied.Add(1)
		return nil
	})

	h := newHarness(t, m.Addr(), blocking, nil)
	h.start(t)

	conn := m.Next(t, waitTimeout)
	// The second frame is buffered or still in flight when Cancel runs.
	require.NoError(t, conn.Send(walRecords(1, 2)...))

	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("apply never started")
	}

	cancelled := make(chan struct{})
	go func() {
		h.puller.Cancel()
		close(cancelled)
	}()

	select {
	case <-cancelled:
		t.Fatal("Cancel returned while an apply was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-cancelled

	assert.ErrorIs(t, h.waitDone(t), context.Canceled)
	assert.Equal(t, int64(1), applied.Load(), "in-flight apply completes, nothing after cancel")
	assert.Equal(t, int64(1), h.cursor.ConfirmedLSN())
}

func TestPuller_CancelDuringApplyIgnoresBufferedFrames(t *testing.T) {
	m := startMaster(t)

	entered := make(chan struct{}, 1)
	release := make(chan struct{})
	blocking := ApplierFunc(func(rec wire.Record) error {
		entered <- struct{}{}
		<-release
		return nil
	})

	fatal := make(chan error, 1)
	h := newHarness(t, m.Addr(), blocking, func(c *Config) {
		c.OnFatal = func(err error) { fatal <- err }
	})
	h.start(t)

	conn := m.Next(t, waitTimeout)
	// A non-WAL frame behind the in-flight record would be fatal if decoded.
	require.NoError(t, conn.Send(
		wire.NewRecord(1, time.Now(), []byte{1}),
		wire.Record{LSN: 2, Tag: wire.TagSnap, Payload: []byte("x")},
	))

	select {
	case <-entered:
	case <-time.After(waitTimeout):
		t.Fatal("apply never started")
	}

	cancelled := make(chan struct{})
	go func() {
		h.puller.Cancel()
		close(cancelled)
	}()
	select {
	case <-cancelled:
		t.Fatal("Cancel returned while an apply was in progress")
	case <-time.After(50 * time.Millisecond):
	}

	close(release)
	<-cancelled

	err := h.waitDone(t)
	assert.ErrorIs(t, err, context.Canceled)
	assert.False(t, IsFatal(err), "err = %v, want cancellation", err)
	assert.NoError(t, h.puller.LastError())
	assert.Equal(t, int64(1), h.cursor.ConfirmedLSN())

	select {
	case got := <-fatal:
		t.Fatalf("OnFatal called with %v", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPuller_FatalErrors(t *testing.T) {
	tests := []struct {
		name    string
		record  wire.Record
		applier Applier
		want    error
	}{
		{
			name:   "unexpected tag",
			record: wire.Record{LSN: 1, Tag: wire.TagSnap, Payload: []byte("x")},
			want:   ErrUnexpectedTag,
		},
		{
			name:   "lsn gap",
			record: wire.NewRecord(5, time.Now(), []byte("x")),
			want:   ErrLSNGap,
		},
		{
			name:    "apply failure",
			record:  wire.NewRecord(1, time.Now(), []byte("x")),
			applier: ApplierFunc(func(wire.Record) error { return errors.New("disk full") }),
			want:    ErrApplyFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := startMaster(t)
			fatal := make(chan error, 1)
			h := newHarness(t, m.Addr(), tt.applier, func(c *Config) {
				c.OnFatal = func(err error) { fatal <- err }
			})
			h.start(t)

			conn := m.Next(t, waitTimeout)
			require.NoError(t, conn.Send(tt.record))

			err := h.waitDone(t)
			require.True(t, IsFatal(err), "err = %v, want fatal", err)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, h.applier.Count())
			assert.Equal(t, int64(0), h.cursor.ConfirmedLSN())
			assert.Equal(t, lifecycle.StateStopped, h.puller.State())

			select {
			case got := <-fatal:
				assert.Equal(t, err, got)
			case <-time.After(waitTimeout):
				t.Fatal("OnFatal not called")
			}
		})
	}
}

func TestPuller_ChecksumMismatchRetries(t *testing.T) {
	m := startMaster(t)
	h := newHarness(t, m.Addr(), nil, func(c *Config) {
		c.VerifyChecksums = true
	})
	h.start(t)

	bad := wire.NewRecord(1, time.Now(), []byte("payload"))
	bad.Checksum++

	conn := m.Next(t, waitTimeout)
	require.NoError(t, conn.Send(bad))

	conn = m.Next(t, waitTimeout)
	assert.Equal(t, int64(1), conn.Subscribe.InitialLSN)
	assert.Zero(t, h.applier.Count())
	assert.ErrorIs(t, h.puller.LastError(), wire.ErrChecksumMismatch)

	require.NoError(t, conn.Send(walRecords(1, 1)...))
	h.waitLSN(t, 1)
}

func TestPuller_TruncatedFrameRetries(t *testing.T) {
	m := startMaster(t)
	h := newHarness(t, m.Addr(), nil, nil)
	h.start(t)

	frame := wire.AppendRecord(nil, wire.NewRecord(1, time.Now(), make([]byte, 64)))

	conn := m.Next(t, waitTimeout)
	require.NoError(t, conn.SendRaw(frame[:wire.HeaderSize+10]))
	require.NoError(t, conn.Close())

	conn = m.Next(t, waitTimeout)
	assert.Equal(t, int64(1), conn.Subscribe.InitialLSN)
	assert.Zero(t, h.applier.Count())
	assert.ErrorIs(t, h.puller.LastError(), io.ErrUnexpectedEOF)
}

func TestPuller_Lag(t *testing.T) {
	m := startMaster(t)
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	h := newHarness(t, m.Addr(), nil, func(c *Config) {
		c.Clock = func() time.Time { return now }
	})
	h.start(t)

	conn := m.Next(t, waitTimeout)
	require.NoError(t, conn.Send(wire.NewRecord(1, now.Add(-2*time.Second), nil)))
	h.waitLSN(t, 1)

	assert.InDelta(t, float64(2*time.Second), float64(h.puller.Lag()), float64(time.Millisecond))
	assert.True(t, h.puller.LastUpdate().Equal(now))
}

func TestPuller_StartTwice(t *testing.T) {
	h := newHarness(t, closedAddr(t), nil, nil)
	h.start(t)
	assert.ErrorIs(t, h.puller.Start(context.Background()), ErrAlreadyStarted)
}

func TestPuller_CancelBeforeStart(t *testing.T) {
	h := newHarness(t, closedAddr(t), nil, nil)
	h.puller.Cancel()
	require.NoError(t, h.puller.Start(context.Background()))

	assert.ErrorIs(t, h.waitDone(t), context.Canceled)
}

func TestRetryNotice(t *testing.T) {
	tests := []struct {
		d    time.Duration
		want string
	}{
		{time.Second, "will retry every 1 second"},
		{3 * time.Second, "will retry every 3 seconds"},
		{250 * time.Millisecond, "will retry every 250ms"},
	}
	for _, tt := range tests {
		if got := retryNotice(tt.d); got != tt.want {
			t.Errorf("retryNotice(%v) = %q, want %q", tt.d, got, tt.want)
		}
	}
}
