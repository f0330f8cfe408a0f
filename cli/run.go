// ABOUTME: One-shot sync cycle command
// ABOUTME: Checks the schedule gate (unless forced), runs a cycle, and prints the summary
package cli

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/harperreed/leadsync/models"
	"github.com/harperreed/leadsync/pipeline"
)

// RunCommand runs a single cycle when the schedule permits, or always with --force.
func RunCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	force := fs.Bool("force", false, "Run even when the schedule window is closed")
	_ = fs.Parse(args)

	gate, err := app.Config.Gate()
	if err != nil {
		return err
	}

	now := time.Now()
	if !*force && !gate.ShouldRun(now) {
		fmt.Printf("Schedule window closed (%s)\n", gate)
		fmt.Printf("Next run: %s\n", gate.NextRun(now).Format(time.RFC1123))
		fmt.Println("Use --force to run anyway.")
		return nil
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, release, err := app.BuildPipeline(ctx)
	if err != nil {
		return err
	}
	defer release()

	fmt.Println("Running sync cycle...")
	summary, err := p.RunCycle(ctx, models.TriggerManual)
	if err != nil {
		return fmt.Errorf("sync cycle failed: %w", err)
	}

	printSummary(os.Stdout, summary)
	if summary.Status == models.RunStatusFailed {
		return fmt.Errorf("sync cycle finished with errors")
	}
	return nil
}

func printSummary(w io.Writer, s pipeline.Summary) {
	mark := "✓"
	switch s.Status {
	case models.RunStatusFailed:
		mark = "✗"
	case models.RunStatusFallback:
		mark = "!"
	}

	_, _ = fmt.Fprintf(w, "\n%s Run %s: %s (%s)\n", mark, s.RunID, s.Status, s.Duration.Round(time.Millisecond))
	_, _ = fmt.Fprintf(w, "  Messages:     %d found, %d processed, %d already seen\n",
		s.MessagesFound, s.MessagesSeen, s.AlreadyProcessed)
	_, _ = fmt.Fprintf(w, "  Attachments:  %d\n", s.Attachments)
	_, _ = fmt.Fprintf(w, "  Records:      %d ingested, %d skipped\n", s.RecordsIngested, s.RowsSkipped)
	_, _ = fmt.Fprintf(w, "  Sheet:        %d appended, %d duplicates\n", s.RowsAppended, s.Duplicates)

	if s.MergeFailures > 0 {
		_, _ = fmt.Fprintf(w, "  Merge failed: %d attachment(s)\n", s.MergeFailures)
	}
	for _, e := range s.Exports {
		_, _ = fmt.Fprintf(w, "  Exported:     %s\n", e)
	}
	if len(s.Errors) > 0 {
		_, _ = fmt.Fprintf(w, "  Errors:\n    %s\n", strings.Join(s.Errors, "\n    "))
	}
}
