// ABOUTME: Scheduling daemon command
// ABOUTME: Runs cycles in each permitted window until interrupted, with Prometheus metrics
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/harperreed/leadsync/config"
	"github.com/harperreed/leadsync/metrics"
	"github.com/harperreed/leadsync/pipeline"
)

// LockPath is the daemon's single-instance lock file.
func LockPath() string {
	return filepath.Join(config.DataDir(), "daemon.lock")
}

// DaemonCommand blocks, firing one cycle per schedule window.
func DaemonCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	metricsAddr := fs.String("metrics-addr", app.Config.Metrics.Addr, "Serve /metrics and /health on this address (empty disables)")
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	app.Metrics = metrics.New(reg)

	gate, err := app.Config.Gate()
	if err != nil {
		return err
	}

	p, release, err := app.BuildPipeline(ctx)
	if err != nil {
		return err
	}
	defer release()

	d, err := pipeline.NewDaemon(pipeline.DaemonOptions{
		DB:          app.DB,
		Cycler:      p,
		Gate:        gate,
		Tick:        app.Config.Tick(),
		LockPath:    LockPath(),
		MetricsAddr: *metricsAddr,
		Gatherer:    reg,
		Metrics:     app.Metrics,
		Logger:      app.logger(),
	})
	if err != nil {
		return err
	}

	fmt.Printf("✓ Daemon started (%s)\n", gate)
	if *metricsAddr != "" {
		fmt.Printf("✓ Metrics on http://%s/metrics\n", *metricsAddr)
	}
	fmt.Println("Press Ctrl+C to stop")

	if err := d.Run(ctx); err != nil {
		if errors.Is(err, pipeline.ErrLocked) {
			return fmt.Errorf("%w (lock: %s)", err, LockPath())
		}
		return err
	}

	fmt.Println("\n✓ Daemon stopped")
	return nil
}
