// ABOUTME: Long-running scheduler that polls the schedule gate and runs one cycle per permitted window
// ABOUTME: Holds a file lock so only one daemon works a mailbox, and serves metrics alongside
package pipeline

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/metrics"
	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/schedule"
)

// ErrLocked means another daemon already holds the instance lock.
var ErrLocked = errors.New("another leadsync daemon is already running")

// Cycler runs one sync cycle.
type Cycler interface {
	RunCycle(ctx context.Context, trigger string) (Summary, error)
}

// DaemonOptions wires a Daemon. DB, Cycler and LockPath are required; Tick
// defaults to 30s.
type DaemonOptions struct {
	DB       *sql.DB
	Cycler   Cycler
	Gate     schedule.Gate
	Tick     time.Duration
	LockPath string

	// MetricsAddr, when set, serves Gatherer on /metrics while the daemon runs.
	MetricsAddr string
	Gatherer    prometheus.Gatherer

	Metrics *metrics.Metrics
	Logger  *zap.Logger
	Now     func() time.Time
}

// Daemon fires at most one cycle per schedule slot. Slots are persisted, so
// a restart inside a window does not fire it again.
type Daemon struct {
	opts    DaemonOptions
	metrics *metrics.Metrics
	logger  *zap.Logger
	now     func() time.Time
}

// NewDaemon validates opts and fills in defaults.
func NewDaemon(opts DaemonOptions) (*Daemon, error) {
	if opts.DB == nil || opts.Cycler == nil {
		return nil, errors.New("daemon requires a database and a cycler")
	}
	if opts.LockPath == "" {
		return nil, errors.New("daemon requires a lock path")
	}
	if opts.Tick <= 0 {
		opts.Tick = 30 * time.Second
	}

	d := &Daemon{
		opts:    opts,
		metrics: opts.Metrics,
		logger:  opts.Logger,
		now:     opts.Now,
	}
	if d.metrics == nil {
		d.metrics = metrics.New(nil)
	}
	if d.logger == nil {
		d.logger = zap.NewNop()
	}
	if d.now == nil {
		d.now = time.Now
	}
	d.logger = d.logger.Named("daemon")
	return d, nil
}

// Run blocks until ctx is cancelled. It returns ErrLocked when another
// daemon is running.
func (d *Daemon) Run(ctx context.Context) error {
	if err := os.MkdirAll(filepath.Dir(d.opts.LockPath), 0o755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	lock := flock.New(d.opts.LockPath)
	locked, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("failed to acquire lock: %w", err)
	}
	if !locked {
		return ErrLocked
	}
	defer func() {
		if err := lock.Unlock(); err != nil {
			d.logger.Warn("failed to release lock", zap.Error(err))
		}
	}()

	g, gctx := errgroup.WithContext(ctx)

	if d.opts.MetricsAddr != "" && d.opts.Gatherer != nil {
		g.Go(func() error {
			return metrics.Serve(gctx, d.opts.MetricsAddr, d.opts.Gatherer, d.logger)
		})
	}

	g.Go(func() error {
		return d.loop(gctx)
	})

	return g.Wait()
}

func (d *Daemon) loop(ctx context.Context) error {
	d.logger.Info("daemon started",
		zap.String("gate", d.opts.Gate.String()),
		zap.Duration("tick", d.opts.Tick),
		zap.Time("next_run", d.opts.Gate.NextRun(d.now())))

	ticker := time.NewTicker(d.opts.Tick)
	defer ticker.Stop()

	for {
		if _, err := d.Tick(ctx); err != nil {
			d.logger.Error("scheduled cycle failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			d.logger.Info("daemon stopping")
			return nil
		case <-ticker.C:
		}
	}
}

// Tick evaluates the gate once and runs a cycle when the current slot is
// permitted and has not fired yet. It reports whether a cycle ran.
func (d *Daemon) Tick(ctx context.Context) (bool, error) {
	now := d.now()
	run := d.opts.Gate.ShouldRun(now)
	d.metrics.ObserveScheduleCheck(run)
	if !run {
		return false, nil
	}

	slot := d.opts.Gate.SlotKey(now)
	last, err := db.GetSyncToken(d.opts.DB, db.ServiceSchedule)
	if err != nil {
		return false, err
	}
	if last == slot {
		return false, nil
	}

	if err := db.UpdateSyncStatus(d.opts.DB, db.ServiceSchedule, models.SyncStatusSyncing, nil); err != nil {
		d.logger.Warn("failed to mark schedule syncing", zap.Error(err))
	}

	d.logger.Info("schedule window open", zap.String("slot", slot))
	summary, cycleErr := d.opts.Cycler.RunCycle(ctx, models.TriggerSchedule)

	// The slot is spent whether or not the cycle succeeded.
	if err := db.UpdateSyncToken(d.opts.DB, db.ServiceSchedule, slot); err != nil {
		d.logger.Error("failed to persist schedule slot", zap.String("slot", slot), zap.Error(err))
	}
	if cycleErr != nil {
		msg := cycleErr.Error()
		if err := db.UpdateSyncStatus(d.opts.DB, db.ServiceSchedule, models.SyncStatusError, &msg); err != nil {
			d.logger.Warn("failed to mark schedule error", zap.Error(err))
		}
		return true, cycleErr
	}

	d.logger.Info("scheduled cycle finished",
		zap.String("slot", slot),
		zap.String("run_id", summary.RunID),
		zap.String("status", summary.Status))
	return true, nil
}
