package walfollow

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walfollow/internal/testutil/fakemaster"
	"github.com/bft-labs/walfollow/pkg/replica"
	"github.com/bft-labs/walfollow/pkg/wire"
)

type appliedLSN struct {
	replica.BaseEventHandler
	lsn atomic.Int64
}

func (a *appliedLSN) OnRecordApplied(event replica.RecordAppliedEvent) {
	a.lsn.Store(event.LSN)
}

func TestRun_AppliesUntilCancelled(t *testing.T) {
	m := fakemaster.Start(t)
	dir := t.TempDir()
	applied := &appliedLSN{}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- Run(ctx, dir, m.Addr(), replica.WithEventHandler(applied)) }()

	conn := m.Next(t, 5*time.Second)
	require.Equal(t, int64(1), conn.Subscribe.InitialLSN)
	now := time.Now()
	require.NoError(t, conn.Send(
		wire.NewRecord(1, now, []byte("a")),
		wire.NewRecord(2, now, []byte("b")),
	))

	require.Eventually(t, func() bool { return applied.lsn.Load() == 2 }, 5*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}

	st, err := OpenStore(dir, false)
	require.NoError(t, err)
	defer st.Close()
	assert.Equal(t, int64(2), st.ConfirmedLSN())
	e, err := st.Get(2)
	require.NoError(t, err)
	assert.Equal(t, []byte("b"), e.Payload)
}

func TestRun_ReturnsFatalError(t *testing.T) {
	m := fakemaster.Start(t)

	done := make(chan error, 1)
	go func() { done <- Run(context.Background(), t.TempDir(), m.Addr()) }()

	conn := m.Next(t, 5*time.Second)
	require.NoError(t, conn.Send(wire.NewRecord(5, time.Now(), nil)))

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, replica.IsFatal(err))
		assert.ErrorIs(t, err, replica.ErrLSNGap)
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return")
	}
}

func TestRun_InvalidAddress(t *testing.T) {
	err := Run(context.Background(), t.TempDir(), "no-port")
	assert.ErrorIs(t, err, replica.ErrInvalidAddress)
}
