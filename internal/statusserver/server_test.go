package statusserver

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bft-labs/walfollow/internal/store"
	"github.com/bft-labs/walfollow/pkg/metrics"
	"github.com/bft-labs/walfollow/pkg/state"
)

type fakeRecords map[int64]store.Entry

func (f fakeRecords) Get(lsn int64) (store.Entry, error) {
	if lsn < 0 {
		return store.Entry{}, fmt.Errorf("disk on fire")
	}
	e, ok := f[lsn]
	if !ok {
		return store.Entry{}, fmt.Errorf("%w: lsn %d", store.ErrNotFound, lsn)
	}
	return e, nil
}

func snapshotOf(st state.State) SnapshotFunc {
	return func() state.State { return st }
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	return rec
}

func TestStatus(t *testing.T) {
	st := state.State{
		Source:       "127.0.0.1:3301",
		Status:       "replica/127.0.0.1:3301/connected",
		State:        "Streaming",
		ConfirmedLSN: 42,
		LagSeconds:   0.25,
	}
	h := New(snapshotOf(st), nil, nil, nil).Handler()

	rec := get(t, h, "/status")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var got state.State
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, st.Status, got.Status)
	assert.Equal(t, int64(42), got.ConfirmedLSN)
	assert.InDelta(t, 0.25, got.LagSeconds, 1e-9)
}

func TestHealthz(t *testing.T) {
	tests := []struct {
		state string
		want  int
	}{
		{"Streaming", http.StatusOK},
		{"Connecting", http.StatusServiceUnavailable},
		{"Handshaking", http.StatusServiceUnavailable},
		{"Disconnected", http.StatusServiceUnavailable},
		{"Stopped", http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.state, func(t *testing.T) {
			h := New(snapshotOf(state.State{State: tt.state}), nil, nil, nil).Handler()
			rec := get(t, h, "/healthz")
			assert.Equal(t, tt.want, rec.Code)
			assert.Contains(t, rec.Body.String(), tt.state)
		})
	}
}

func TestMetrics(t *testing.T) {
	reg := metrics.NewRegistry()
	reg.SetConfirmedLSN(7)

	h := New(snapshotOf(state.State{}), nil, reg, nil).Handler()
	rec := get(t, h, "/metrics")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "walfollow_confirmed_lsn 7")
}

func TestMetrics_NotMountedWithoutRegistry(t *testing.T) {
	h := New(snapshotOf(state.State{}), nil, nil, nil).Handler()
	rec := get(t, h, "/metrics")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRecords(t *testing.T) {
	records := fakeRecords{
		5: {LSN: 5, Tag: 3, Timestamp: 1700000000.5, Payload: []byte("hello")},
	}
	h := New(snapshotOf(state.State{}), records, nil, nil).Handler()

	tests := []struct {
		name string
		path string
		want int
	}{
		{"found", "/records/5", http.StatusOK},
		{"missing", "/records/6", http.StatusNotFound},
		{"not a number", "/records/abc", http.StatusBadRequest},
		{"lookup error", "/records/-1", http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := get(t, h, tt.path)
			assert.Equal(t, tt.want, rec.Code)
		})
	}

	rec := get(t, h, "/records/5")
	var got recordResponse
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&got))
	assert.Equal(t, int64(5), got.LSN)
	assert.Equal(t, uint32(3), got.Tag)
	assert.Equal(t, 5, got.Size)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestServe_ShutsDownOnCancel(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	srv := New(snapshotOf(state.State{State: "Streaming"}), nil, nil, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- srv.Serve(ctx, ln) }()

	resp, err := http.Get("http://" + ln.Addr().String() + "/healthz")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, strings.Contains(string(body), "Streaming"))

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down")
	}
}
