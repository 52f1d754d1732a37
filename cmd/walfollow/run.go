package main

import (
	"context"
	"errors"
	"fmt"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/bft-labs/walfollow/internal/cliconfig"
	"github.com/bft-labs/walfollow/internal/statusserver"
	"github.com/bft-labs/walfollow/internal/store"
	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/metrics"
	"github.com/bft-labs/walfollow/pkg/replica"
	"github.com/bft-labs/walfollow/pkg/state"
	"github.com/bft-labs/walfollow/plugins/configwatcher"
	"github.com/bft-labs/walfollow/plugins/walcleanup"
)

const stopTimeout = 5 * time.Second

// runner owns the store, the replica session and the surfaces around it.
type runner struct {
	cfgFile string
	changed map[string]bool
	logger  log.Logger
	metrics *metrics.Registry

	store *store.Store
	rc    *replica.Recovery
	repo  *state.FileRepository

	// fatal receives the error that aborted replication.
	fatal chan error

	mu  sync.Mutex
	cfg cliconfig.Config

	// sessMu serializes reattach with shutdown.
	sessMu  sync.Mutex
	closing bool
}

func newRunner(cfg cliconfig.Config, cfgFile string, changed map[string]bool, logger log.Logger) *runner {
	return &runner{
		cfg:     cfg,
		cfgFile: cfgFile,
		changed: changed,
		logger:  logger,
		metrics: metrics.NewRegistry(),
		repo:    state.NewFileRepository(cfg.StateDir),
		fatal:   make(chan error, 1),
	}
}

// run blocks until ctx is done, a signal arrives, or replication fails.
func (r *runner) run(ctx context.Context) error {
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if r.store == nil {
		if err := r.open(); err != nil {
			return err
		}
	}
	defer r.closeStore()

	if err := r.startSession(r.config().Master); err != nil {
		return err
	}

	var wg sync.WaitGroup
	bgCtx, cancelBG := context.WithCancel(ctx)
	defer func() {
		cancelBG()
		wg.Wait()
	}()

	cfg := r.config()
	if cfg.Listen != "" {
		srv := statusserver.New(r.snapshot, r.store, r.metrics, r.logger)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := srv.ListenAndServe(bgCtx, cfg.Listen); err != nil {
				r.logger.Error("status server failed", log.Err(err))
			}
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		r.statusLoop(bgCtx, cfg.StatusInterval)
	}()

	cleanup := walcleanup.New(r.store, walcleanup.Config{
		CheckInterval:  cfg.CleanupInterval,
		HighWatermark:  int64(cfg.MaxRecords),
		LowWatermark:   int64(cfg.KeepRecords),
		RunImmediately: true,
	}, r.logger)
	if err := cleanup.Start(bgCtx); err != nil {
		return err
	}
	defer cleanup.Shutdown(context.Background())

	if r.cfgFile != "" {
		watcher := configwatcher.New(r.cfgFile, configwatcher.DefaultConfig(), r.reload, r.logger)
		if err := watcher.Start(bgCtx); err != nil {
			r.logger.Warn("config watcher disabled", log.Err(err))
		} else {
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), stopTimeout)
				defer cancel()
				_ = watcher.Shutdown(shutdownCtx)
			}()
		}
	}

	var runErr error
	select {
	case <-ctx.Done():
		r.logger.Info("received signal, stopping...")
	case err := <-r.fatal:
		runErr = err
	}

	r.shutdown()
	r.saveStatus(context.Background(), r.snapshot())
	return runErr
}

func (r *runner) open() error {
	cfg := r.config()
	st, err := store.Open(cfg.DataDir,
		store.WithSyncWrites(cfg.SyncWrites),
		store.WithLogger(r.logger),
	)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	r.store = st
	r.rc = replica.NewRecovery(st.ConfirmedLSN(), st)
	r.metrics.SetConfirmedLSN(st.ConfirmedLSN())
	return nil
}

func (r *runner) closeStore() {
	if err := r.store.Close(); err != nil {
		r.logger.Warn("failed to close store", log.Err(err))
	}
}

func (r *runner) config() cliconfig.Config {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.cfg
}

func (r *runner) startSession(master string) error {
	cfg := r.config()
	_, err := replica.Start(r.rc, master,
		replica.WithLogger(r.logger),
		replica.WithReconnectDelay(cfg.ReconnectDelay),
		replica.WithConnectTimeout(cfg.ConnectTimeout),
		replica.WithHandshakeTimeout(cfg.HandshakeTimeout),
		replica.WithReadAhead(cfg.ReadAhead),
		replica.WithVerifyChecksums(cfg.Verify),
		replica.WithMetrics(r.metrics),
		replica.WithEventHandler(&statusWriter{r: r}),
		replica.WithFatalHandler(r.onFatal),
	)
	if err != nil {
		return fmt.Errorf("start replica: %w", err)
	}
	return nil
}

func (r *runner) shutdown() {
	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	r.closing = true
	r.stopSession()
}

// stopSession detaches the current session, if any, and waits for it.
func (r *runner) stopSession() {
	s := r.rc.Remote()
	if s == nil {
		return
	}
	if err := replica.Stop(r.rc); err != nil && !errors.Is(err, replica.ErrNotAttached) {
		r.logger.Warn("failed to stop replica", log.Err(err))
		return
	}
	if err := s.Wait(stopTimeout); err != nil {
		r.logger.Warn("replica did not stop in time", log.Err(err))
	}
}

func (r *runner) onFatal(err error) {
	r.logger.Error("replication failed, aborting", log.Err(err))
	select {
	case r.fatal <- err:
	default:
	}
}

// reload re-reads the config file and reattaches to a new master when the
// master address changed. Other settings take effect on the next start.
func (r *runner) reload() {
	next := cliconfig.DefaultConfig()
	cur := r.config()
	// Flags given on the command line keep their values.
	next.Master = cur.Master
	next.DataDir = cur.DataDir
	if err := loadConfig(&next, r.cfgFile, r.changed); err != nil {
		r.logger.Warn("ignoring config change", log.Err(err))
		return
	}
	if err := next.Validate(); err != nil {
		r.logger.Warn("ignoring invalid config change", log.Err(err))
		return
	}
	if next.Master == cur.Master {
		return
	}

	r.sessMu.Lock()
	defer r.sessMu.Unlock()
	if r.closing {
		return
	}

	r.logger.Info("master changed, reattaching",
		log.String("from", cur.Master),
		log.String("to", next.Master),
	)

	r.mu.Lock()
	r.cfg.Master = next.Master
	r.mu.Unlock()

	r.stopSession()
	if err := r.startSession(next.Master); err != nil {
		r.logger.Error("failed to reattach replica", log.Err(err))
	}
}

func (r *runner) statusLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.saveStatus(ctx, r.snapshot())
		}
	}
}

// snapshot builds the operator-facing status of the replica.
func (r *runner) snapshot() state.State {
	st := state.State{
		Source:       r.config().Master,
		State:        replica.StateStopped.String(),
		ConfirmedLSN: r.rc.ConfirmedLSN(),
		UpdatedAt:    time.Now().UTC(),
	}

	s := r.rc.Remote()
	if s == nil {
		st.Status = fmt.Sprintf("replica/%s/%s", st.Source, replica.StateStopped.Title())
		return st
	}

	st.Source = s.Source()
	st.State = s.State().String()
	st.Status = s.Status()
	st.LagSeconds = s.Lag().Seconds()
	if t := s.LastUpdate(); !t.IsZero() {
		st.LastUpdateAt = t.UTC()
	}
	if err := s.LastError(); err != nil {
		st.LastError = err.Error()
	}
	return st
}

func (r *runner) saveStatus(ctx context.Context, st state.State) {
	if err := r.repo.Save(ctx, st); err != nil {
		r.logger.Warn("failed to save status", log.Err(err))
	}
}

// statusWriter persists a snapshot on every state change.
type statusWriter struct {
	replica.BaseEventHandler
	r *runner
}

func (w *statusWriter) OnStateChange(event replica.StateChangeEvent) {
	st := w.r.snapshot()
	// The session may not be attached yet during the first transitions.
	st.Source = event.Source
	st.State = event.Current.String()
	st.Status = fmt.Sprintf("replica/%s/%s", event.Source, event.Current.Title())
	w.r.saveStatus(context.Background(), st)
}
