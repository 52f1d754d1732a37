package puller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bft-labs/walfollow/pkg/lifecycle"
	"github.com/bft-labs/walfollow/pkg/log"
	"github.com/bft-labs/walfollow/pkg/wire"
)

// ErrAlreadyStarted is returned by Start when the puller was started before.
var ErrAlreadyStarted = errors.New("puller already started")

// Puller streams records from one master into one Cursor/Applier pair.
type Puller struct {
	cfg     Config
	cursor  Cursor
	applier Applier
	logger  log.Logger

	lc  *lifecycle.DefaultManager
	lag LagTracker

	// gate serializes apply + LSN advance with Cancel.
	gate      sync.Mutex
	started   bool
	cancelled atomic.Bool

	streak failureStreak

	errMu   sync.RWMutex
	lastErr error
	err     error
	done    chan struct{}
}

// New creates a Puller. It does not connect until Start or Run.
func New(cfg Config, cursor Cursor, applier Applier) *Puller {
	cfg.setDefaults()

	p := &Puller{
		cfg:     cfg,
		cursor:  cursor,
		applier: applier,
		logger:  log.With(cfg.Logger, log.String("source", cfg.Source)),
		done:    make(chan struct{}),
	}
	p.lc = lifecycle.NewManager(cfg.Logger, lifecycle.EmitterFunc(p.onStateChange))
	return p
}

// Start runs the puller in a new goroutine bound to ctx.
func (p *Puller) Start(ctx context.Context) error {
	p.gate.Lock()
	defer p.gate.Unlock()

	if p.started {
		return ErrAlreadyStarted
	}
	p.started = true

	ctx, cancel := context.WithCancel(ctx)
	p.lc.SetCancel(cancel)
	if p.cancelled.Load() {
		cancel()
	}

	p.lc.AddWorker()
	go func() {
		defer p.lc.WorkerDone()
		defer cancel()

		err := p.Run(ctx)

		p.errMu.Lock()
		p.err = err
		p.errMu.Unlock()
		close(p.done)

		if IsFatal(err) && p.cfg.OnFatal != nil {
			p.cfg.OnFatal(err)
		}
	}()
	return nil
}

// Cancel requests the puller to stop. An apply already in progress finishes
// first; no record is applied after Cancel returns. Cancel does not wait for
// the goroutine to exit.
func (p *Puller) Cancel() {
	p.cancelled.Store(true)
	p.lc.Cancel()

	// Wait out the in-flight apply, if any. apply rechecks ctx under the gate.
	p.gate.Lock()
	p.gate.Unlock()
}

// Done is closed when the goroutine started by Start exits.
func (p *Puller) Done() <-chan struct{} {
	return p.done
}

// Err returns the error Run ended with, once Done is closed.
func (p *Puller) Err() error {
	p.errMu.RLock()
	defer p.errMu.RUnlock()
	return p.err
}

// Wait blocks until the goroutine exits or timeout elapses.
func (p *Puller) Wait(timeout time.Duration) error {
	return p.lc.WaitWithTimeout(timeout)
}

// State returns the current connection state.
func (p *Puller) State() lifecycle.State {
	return p.lc.State()
}

// Status returns "replica/<source>/<state title>".
func (p *Puller) Status() string {
	return fmt.Sprintf("replica/%s/%s", p.cfg.Source, p.State().Title())
}

// Source returns the master address as configured.
func (p *Puller) Source() string {
	return p.cfg.Source
}

// Address returns the resolved master address.
func (p *Puller) Address() string {
	return p.cfg.Address
}

// ReconnectDelay returns the fixed delay between connection attempts.
func (p *Puller) ReconnectDelay() time.Duration {
	return p.cfg.ReconnectDelay
}

// Lag returns the lag observed at the last applied record.
func (p *Puller) Lag() time.Duration {
	lag, _ := p.lag.Snapshot()
	return lag
}

// LastUpdate returns when the last record was applied.
func (p *Puller) LastUpdate() time.Time {
	_, at := p.lag.Snapshot()
	return at
}

// LastError returns the most recent transport or fatal error.
func (p *Puller) LastError() error {
	p.errMu.RLock()
	defer p.errMu.RUnlock()
	return p.lastErr
}

func (p *Puller) setLastError(err error) {
	p.errMu.Lock()
	p.lastErr = err
	p.errMu.Unlock()
}

// Run is the reconnect loop. It returns ctx's error on cancellation or a
// *FatalError when replication cannot continue.
func (p *Puller) Run(ctx context.Context) error {
	var s *session
	defer func() {
		if s != nil {
			s.close()
		}
	}()

	retry := lifecycle.NewFixedDelay(p.cfg.ReconnectDelay)

	for {
		if err := ctx.Err(); err != nil {
			return p.stop(err)
		}

		if s == nil {
			var err error
			s, err = p.connect(ctx, p.cursor.ConfirmedLSN()+1)
			if err != nil {
				if ctx.Err() != nil {
					return p.stop(ctx.Err())
				}
				p.transition(lifecycle.StateDisconnected, "connect failed")
				p.fail(StageConnect, err)
				if err := retry.Wait(ctx); err != nil {
					return p.stop(err)
				}
				continue
			}
			p.streak.reset()
			p.transition(lifecycle.StateStreaming, "subscribed")
		}

		rec, err := s.reader.ReadRecord()
		p.cfg.Metrics.AddReceivedBytes(s.received())
		if err == nil && p.cfg.VerifyChecksums {
			err = rec.Verify()
		}
		if err != nil {
			if ctx.Err() != nil {
				return p.stop(ctx.Err())
			}
			s.close()
			s = nil
			p.transition(lifecycle.StateDisconnected, "read failed")
			p.fail(StageRead, err)
			if err := retry.Wait(ctx); err != nil {
				return p.stop(err)
			}
			continue
		}

		if err := p.apply(ctx, rec); err != nil {
			if IsFatal(err) {
				return p.abort(err)
			}
			return p.stop(err)
		}
		s.reader.Release()
	}
}

// apply hands rec to the applier and advances the confirmed LSN. It holds
// the apply gate for the whole step; if cancellation already happened the
// record is dropped and ctx's error returned.
func (p *Puller) apply(ctx context.Context, rec wire.Record) error {
	p.gate.Lock()
	defer p.gate.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	if rec.Tag != wire.TagWAL {
		return &FatalError{LSN: rec.LSN, Tag: rec.Tag, Err: ErrUnexpectedTag}
	}

	if want := p.cursor.ConfirmedLSN() + 1; rec.LSN != want {
		return &FatalError{LSN: rec.LSN, Tag: rec.Tag,
			Err: fmt.Errorf("%w: got %d, want %d", ErrLSNGap, rec.LSN, want)}
	}

	start := p.cfg.Clock()
	if err := p.applier.Apply(rec); err != nil {
		return &FatalError{LSN: rec.LSN, Tag: rec.Tag,
			Err: fmt.Errorf("%w: %w", ErrApplyFailed, err)}
	}
	p.cursor.SetConfirmedLSN(rec.LSN)

	now := p.cfg.Clock()
	lag := p.lag.Update(rec.Time(), now)
	p.cfg.Metrics.RecordApplied(rec.LSN, rec.Time(), lag, now.Sub(start))
	if p.cfg.Observer != nil {
		p.cfg.Observer.OnRecordApplied(rec, lag)
	}
	return nil
}

func (p *Puller) stop(err error) error {
	p.transition(lifecycle.StateStopped, "canceled")
	return err
}

func (p *Puller) abort(err error) error {
	p.setLastError(err)
	p.logger.Error("replication stopped", log.Err(err))
	p.transition(lifecycle.StateStopped, "fatal")
	return err
}

func (p *Puller) transition(to lifecycle.State, reason string) {
	if err := p.lc.TransitionTo(to, reason); err != nil {
		p.logger.Warn("ignored state transition",
			log.String("to", to.String()),
			log.Err(err),
		)
	}
}

func (p *Puller) onStateChange(previous, current lifecycle.State, reason string) {
	p.cfg.Metrics.SetPullerState(current.Title())
	if p.cfg.Observer != nil {
		p.cfg.Observer.OnStateChange(previous, current, reason)
	}
}
