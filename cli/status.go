// ABOUTME: Status and dashboard commands
// ABOUTME: Prints recent runs, sync state, and the next window, or opens the TUI
package cli

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/harperreed/leadsync/db"
	"github.com/harperreed/leadsync/pipeline"
	"github.com/harperreed/leadsync/schedule"
	"github.com/harperreed/leadsync/tui"
)

// StatusCommand prints the schedule, sync state, and recent runs.
func StatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	limit := fs.Int("limit", 10, "Number of recent runs to show")
	_ = fs.Parse(args)

	gate, err := app.Config.Gate()
	if err != nil {
		return err
	}
	return writeStatus(os.Stdout, app.DB, gate, time.Now(), *limit)
}

func writeStatus(w io.Writer, database *sql.DB, gate schedule.Gate, now time.Time, limit int) error {
	_, _ = fmt.Fprintf(w, "Schedule: %s\n", gate)
	if gate.ShouldRun(now) {
		_, _ = fmt.Fprintln(w, "  Window:   ✓ open now")
	} else {
		_, _ = fmt.Fprintln(w, "  Window:   closed")
	}
	if next := gate.NextRun(now); !next.IsZero() {
		_, _ = fmt.Fprintf(w, "  Next run: %s\n", next.Format("Mon 2006-01-02 15:04 MST"))
	}

	states, err := db.GetAllSyncStates(database)
	if err != nil {
		return fmt.Errorf("failed to get sync states: %w", err)
	}
	processed, err := db.CountSyncLogs(database, db.ServiceMail)
	if err != nil {
		return fmt.Errorf("failed to count processed messages: %w", err)
	}

	_, _ = fmt.Fprintln(w, "\nSync state:")
	if len(states) == 0 {
		_, _ = fmt.Fprintln(w, "  (none yet)")
	}
	for _, s := range states {
		line := fmt.Sprintf("  %-10s %s", s.Service, s.Status)
		if s.LastSyncToken != nil && *s.LastSyncToken != "" {
			line += fmt.Sprintf(" • last slot %s", *s.LastSyncToken)
		}
		if s.ErrorMessage != nil && *s.ErrorMessage != "" {
			line += fmt.Sprintf(" • error: %s", *s.ErrorMessage)
		}
		_, _ = fmt.Fprintln(w, line)
	}
	_, _ = fmt.Fprintf(w, "  %d messages processed\n", processed)

	runs, err := db.ListRuns(database, limit)
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	_, _ = fmt.Fprintln(w, "\nRecent runs:")
	if len(runs) == 0 {
		_, _ = fmt.Fprintln(w, "  No runs recorded yet")
		return nil
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, "STARTED\tTRIGGER\tSTATUS\tMSGS\tRECORDS\tSKIPPED\tAPPENDED\tDUPES\tID")
	_, _ = fmt.Fprintln(tw, "-------\t-------\t------\t----\t-------\t-------\t--------\t-----\t--")
	for _, r := range runs {
		_, _ = fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d\t%d\t%s\n",
			r.StartedAt.Local().Format("2006-01-02 15:04"), r.Trigger, r.Status,
			r.MessagesSeen, r.RecordsIngested, r.RowsSkipped, r.RowsAppended, r.Duplicates, r.ID)
	}
	_ = tw.Flush()

	_, _ = fmt.Fprintf(w, "\nTotal: %d run(s)\n", len(runs))
	return nil
}

// TUICommand opens the interactive dashboard.
func TUICommand(app *App, args []string) error {
	fs := flag.NewFlagSet("tui", flag.ExitOnError)
	_ = fs.Parse(args)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	gate, err := app.Config.Gate()
	if err != nil {
		return err
	}

	var cycler pipeline.Cycler
	p, release, err := app.BuildPipeline(ctx)
	if err != nil {
		app.logger().Warn("run-now disabled", zap.Error(err))
	} else {
		defer release()
		cycler = p
	}

	return tui.Run(ctx, tui.NewModel(app.DB, cycler, gate))
}
