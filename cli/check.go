// ABOUTME: Schedule gate inspection command
// ABOUTME: Reports whether a run is permitted at an instant and when the next window opens
package cli

import (
	"flag"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/harperreed/leadsync/config"
	"github.com/harperreed/leadsync/schedule"
)

// CheckCommand evaluates the schedule gate now, or at --at.
func CheckCommand(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("check", flag.ExitOnError)
	at := fs.String("at", "", "Instant to check (RFC3339, or 'YYYY-MM-DD HH:MM' in the schedule zone)")
	_ = fs.Parse(args)

	gate, err := cfg.Gate()
	if err != nil {
		return err
	}

	instant := time.Now()
	if *at != "" {
		instant, err = parseInstant(*at, gate.Location)
		if err != nil {
			return err
		}
	}

	writeCheck(os.Stdout, gate, instant)
	return nil
}

func parseInstant(s string, loc *time.Location) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	if loc == nil {
		loc = time.Local
	}
	t, err := time.ParseInLocation("2006-01-02 15:04", s, loc)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: use RFC3339 or 'YYYY-MM-DD HH:MM'", s)
	}
	return t, nil
}

func yesNo(b bool) string {
	if b {
		return "✓ yes"
	}
	return "✗ no"
}

func writeCheck(w io.Writer, gate schedule.Gate, at time.Time) {
	if gate.Location != nil {
		at = at.In(gate.Location)
	}

	_, _ = fmt.Fprintf(w, "Schedule:   %s\n", gate)
	_, _ = fmt.Fprintf(w, "Checked at: %s\n", at.Format("Mon 2006-01-02 15:04 MST"))
	_, _ = fmt.Fprintf(w, "  Run day:  %s\n", yesNo(gate.IsRunDay(at)))
	_, _ = fmt.Fprintf(w, "  On week:  %s\n", yesNo(gate.IsOnWeek(at)))
	_, _ = fmt.Fprintf(w, "  Run now:  %s\n", yesNo(gate.ShouldRun(at)))
	if gate.ShouldRun(at) {
		_, _ = fmt.Fprintf(w, "  Slot:     %s\n", gate.SlotKey(at))
	}
	if next := gate.NextRun(at); !next.IsZero() {
		_, _ = fmt.Fprintf(w, "Next run:   %s\n", next.Format("Mon 2006-01-02 15:04 MST"))
	}
}
