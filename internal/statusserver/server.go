// Package statusserver exposes the replica's status snapshot, health and
// Prometheus metrics over HTTP.
package statusserver

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bft-labs/walfollow/internal/store"
	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/metrics"
	"github.com/bft-labs/walfollow/pkg/state"
)

const shutdownTimeout = 5 * time.Second

// SnapshotFunc returns the current replica snapshot.
type SnapshotFunc func() state.State

// RecordLookup fetches an applied record by LSN.
type RecordLookup interface {
	Get(lsn int64) (store.Entry, error)
}

// Server serves /status, /healthz, /metrics and /records/{lsn}.
type Server struct {
	snapshot SnapshotFunc
	records  RecordLookup
	metrics  *metrics.Registry
	logger   log.Logger
}

// New creates a Server. records and reg may be nil.
func New(snapshot SnapshotFunc, records RecordLookup, reg *metrics.Registry, logger log.Logger) *Server {
	if logger == nil {
		logger = log.NewNoopLogger()
	}
	return &Server{
		snapshot: snapshot,
		records:  records,
		metrics:  reg,
		logger:   logger,
	}
}

// Handler builds the chi router.
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()

	r.Get("/status", s.handleStatus)
	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	if s.records != nil {
		r.Get("/records/{lsn}", s.handleRecord)
	}

	return r
}

// Serve accepts connections on ln until ctx is cancelled, then shuts down.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()

	s.logger.Info("status server listening", log.String("addr", ln.Addr().String()))

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	return nil
}

// ListenAndServe listens on addr and calls Serve.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, s.snapshot())
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	st := s.snapshot()
	code := http.StatusOK
	if !st.Streaming() {
		code = http.StatusServiceUnavailable
	}
	s.writeJSON(w, code, map[string]string{
		"state":  st.State,
		"status": st.Status,
	})
}

// recordResponse is the JSON form of a stored record.
type recordResponse struct {
	LSN       int64   `json:"lsn"`
	Tag       uint32  `json:"tag"`
	Timestamp float64 `json:"timestamp"`
	Size      int     `json:"size"`
	Payload   []byte  `json:"payload"`
}

func (s *Server) handleRecord(w http.ResponseWriter, r *http.Request) {
	lsn, err := strconv.ParseInt(chi.URLParam(r, "lsn"), 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid lsn")
		return
	}

	e, err := s.records.Get(lsn)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "record not found")
			return
		}
		s.logger.Error("record lookup failed", log.Int64("lsn", lsn), log.Err(err))
		s.writeError(w, http.StatusInternalServerError, "lookup failed")
		return
	}

	s.writeJSON(w, http.StatusOK, recordResponse{
		LSN:       e.LSN,
		Tag:       e.Tag,
		Timestamp: e.Timestamp,
		Size:      len(e.Payload),
		Payload:   e.Payload,
	})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Warn("failed to encode response", log.Err(err))
	}
}

func (s *Server) writeError(w http.ResponseWriter, code int, message string) {
	s.writeJSON(w, code, map[string]string{"error": message})
}
