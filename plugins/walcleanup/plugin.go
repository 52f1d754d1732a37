// Package walcleanup bounds the replica store. It periodically prunes the
// oldest applied records once the store holds more than a high watermark.
package walcleanup

import (
	"context"
	"sync"
	"time"

	"github.com/bft-labs/walfollow/pkg/log"
)

// Store is the subset of the replica store the cleanup needs.
type Store interface {
	FirstLSN() (int64, error)
	ConfirmedLSN() int64
	Prune(before int64) error
}

// Plugin implements store cleanup.
// When the number of stored records exceeds the high watermark it prunes
// down to the low watermark, oldest first.
type Plugin struct {
	// Configuration
	checkInterval  time.Duration
	highWatermark  int64
	lowWatermark   int64
	runImmediately bool

	store  Store
	logger log.Logger
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// Config holds configuration options for the cleanup plugin.
type Config struct {
	// CheckInterval is how often to count stored records.
	// Default: 1 hour
	CheckInterval time.Duration

	// HighWatermark is the record count above which cleanup begins.
	// Zero disables cleanup.
	HighWatermark int64

	// LowWatermark is the record count kept after cleanup.
	// Default: three quarters of HighWatermark
	LowWatermark int64

	// RunImmediately runs a check on startup.
	RunImmediately bool
}

// DefaultConfig returns a Config with cleanup disabled.
func DefaultConfig() Config {
	return Config{
		CheckInterval:  time.Hour,
		RunImmediately: true,
	}
}

// New creates a cleanup plugin for store.
func New(store Store, cfg Config, logger log.Logger) *Plugin {
	if cfg.CheckInterval <= 0 {
		cfg.CheckInterval = time.Hour
	}
	if cfg.LowWatermark <= 0 || cfg.LowWatermark > cfg.HighWatermark {
		cfg.LowWatermark = cfg.HighWatermark / 4 * 3
	}
	if logger == nil {
		logger = log.NewNoopLogger()
	}

	return &Plugin{
		checkInterval:  cfg.CheckInterval,
		highWatermark:  cfg.HighWatermark,
		lowWatermark:   cfg.LowWatermark,
		runImmediately: cfg.RunImmediately,
		store:          store,
		logger:         logger,
	}
}

// Name returns the plugin identifier.
func (p *Plugin) Name() string {
	return "walcleanup"
}

// Enabled reports whether a high watermark is configured.
func (p *Plugin) Enabled() bool {
	return p.highWatermark > 0
}

// Start launches the cleanup loop. It is a no-op when disabled.
func (p *Plugin) Start(ctx context.Context) error {
	if !p.Enabled() {
		p.logger.Debug("store cleanup disabled")
		return nil
	}

	cleanupCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel

	p.logger.Info("store cleanup enabled",
		log.Int64("high_watermark", p.highWatermark),
		log.Int64("low_watermark", p.lowWatermark),
		log.Duration("interval", p.checkInterval),
	)

	p.wg.Add(1)
	go p.cleanupLoop(cleanupCtx)
	return nil
}

// Shutdown stops the cleanup loop.
func (p *Plugin) Shutdown(ctx context.Context) error {
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
	return nil
}

func (p *Plugin) cleanupLoop(ctx context.Context) {
	defer p.wg.Done()

	if p.runImmediately {
		p.CleanupOnce()
	}

	ticker := time.NewTicker(p.checkInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.CleanupOnce()
		}
	}
}

// CleanupOnce performs a single check and returns the number of records
// pruned.
func (p *Plugin) CleanupOnce() int64 {
	if !p.Enabled() {
		return 0
	}

	first, err := p.store.FirstLSN()
	if err != nil {
		p.logger.Error("store cleanup: first lsn lookup failed", log.Err(err))
		return 0
	}
	if first == 0 {
		return 0
	}

	confirmed := p.store.ConfirmedLSN()
	stored := confirmed - first + 1
	if stored <= p.highWatermark {
		return 0
	}

	before := confirmed - p.lowWatermark + 1
	if err := p.store.Prune(before); err != nil {
		p.logger.Error("store cleanup: prune failed", log.Err(err))
		return 0
	}

	removed := before - first
	p.logger.Info("store cleanup completed",
		log.Int64("removed", removed),
		log.Int64("first_lsn", before),
	)
	return removed
}
