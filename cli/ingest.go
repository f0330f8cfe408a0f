// ABOUTME: Local CSV ingestion command
// ABOUTME: Previews normalized records from a file and optionally merges or exports them
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/harperreed/leadsync/ingest"
	"github.com/harperreed/leadsync/merge"
	"github.com/harperreed/leadsync/models"
)

type ingestOptions struct {
	merge   bool
	export  bool
	preview int
	maxRows int
}

// IngestCommand normalizes a local CSV file. Flags must come before the file.
func IngestCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("ingest", flag.ExitOnError)
	mergeRows := fs.Bool("merge", false, "Merge the records into the configured sheet")
	export := fs.Bool("export", false, "Write the flat CSV into the export directory")
	preview := fs.Int("preview", 10, "Records to print (0 prints none)")
	maxRows := fs.Int("max-rows", app.Config.Ingest.MaxRows, "Maximum data rows to process")
	_ = fs.Parse(args)

	if fs.NArg() != 1 {
		return errors.New("usage: leadsync ingest [--merge] [--export] <file.csv>")
	}

	opts := ingestOptions{merge: *mergeRows, export: *export, preview: *preview, maxRows: *maxRows}
	ctx := context.Background()

	var dest merge.Destination
	if opts.merge {
		client, err := app.googleClient(ctx)
		if err != nil {
			return err
		}
		sheet, err := app.sheetDestination(ctx, client)
		if err != nil {
			return err
		}
		dest = sheet
	}

	return runIngest(ctx, os.Stdout, app, fs.Arg(0), opts, dest)
}

func runIngest(ctx context.Context, w io.Writer, app *App, path string, opts ingestOptions, dest merge.Destination) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", path, err)
	}

	result := ingest.NewIngestor(opts.maxRows, app.logger()).Ingest(raw)

	_, _ = fmt.Fprintf(w, "✓ %d record(s) from %s\n", len(result.Records), path)
	if result.Skipped > 0 {
		_, _ = fmt.Fprintf(w, "  %d row(s) skipped\n", result.Skipped)
		for _, f := range result.Failures {
			_, _ = fmt.Fprintf(w, "    %q: %v\n", clipLine(f.Line, 60), f.Err)
		}
	}

	writeRecords(w, result.Records, opts.preview)

	if len(result.Records) == 0 {
		return nil
	}

	if opts.export {
		data, err := ingest.RenderCSV(result.Records)
		if err != nil {
			return err
		}
		exporter := ingest.LocalExporter{Dir: app.Config.Export.Dir}
		location, err := exporter.Export(ctx, ingest.OutputFilename(time.Now()), data)
		if err != nil {
			return err
		}
		_, _ = fmt.Fprintf(w, "✓ Exported to %s\n", location)
	}

	if opts.merge {
		merger, err := app.newMerger(dest)
		if err != nil {
			return fmt.Errorf("failed to create merger: %w", err)
		}
		res := merger.Merge(ctx, models.RecordsToRows(result.Records))
		if !res.OK() {
			return fmt.Errorf("merge failed (use --export to keep a flat file): %w", res.Err)
		}
		_, _ = fmt.Fprintf(w, "✓ Merged: %d appended, %d duplicates, %d existing rows\n",
			res.Appended, res.Duplicates, res.Existing)
		if res.Header {
			_, _ = fmt.Fprintln(w, "  Header row written to empty sheet")
		}
	}

	return nil
}

func writeRecords(w io.Writer, records []models.LeadRecord, limit int) {
	if limit <= 0 || len(records) == 0 {
		return
	}

	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(tw, strings.Join(models.LeadHeaders, "\t"))
	for i, r := range records {
		if i == limit {
			break
		}
		_, _ = fmt.Fprintln(tw, strings.Join(r.Values(), "\t"))
	}
	_ = tw.Flush()

	if len(records) > limit {
		_, _ = fmt.Fprintf(w, "... and %d more\n", len(records)-limit)
	}
}

func clipLine(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
