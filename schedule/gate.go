// ABOUTME: Biweekly schedule gate anchored on a fixed reference date
// ABOUTME: Decides whether a moment falls in an on-week run window and finds the next one
package schedule

import (
	"fmt"
	"sort"
	"time"
)

// DefaultReference anchors the biweekly cadence; its week is an on week.
var DefaultReference = time.Date(2025, time.September, 30, 0, 0, 0, 0, time.UTC)

// Gate answers "run now?" for a biweekly weekday schedule. It has no side
// effects and never fails.
type Gate struct {
	// Reference is read as a calendar date; its time and zone are ignored.
	Reference time.Time
	Weekday   time.Weekday
	Windows   []Window
	// Location converts incoming times before evaluation. Nil evaluates
	// times in whatever zone they carry.
	Location *time.Location
}

// NewGate returns the default Tuesday 11:20 / 12:00 gate for loc.
func NewGate(loc *time.Location) Gate {
	return Gate{
		Reference: DefaultReference,
		Weekday:   time.Tuesday,
		Windows:   DefaultWindows,
		Location:  loc,
	}
}

func (g Gate) local(t time.Time) time.Time {
	if g.Location != nil {
		return t.In(g.Location)
	}
	return t
}

// ShouldRun reports whether now is exactly one of the window minutes on an
// on-week target weekday.
func (g Gate) ShouldRun(now time.Time) bool {
	now = g.local(now)
	if !g.IsRunDay(now) {
		return false
	}
	for _, w := range g.Windows {
		if w.matches(now.Hour(), now.Minute()) {
			return true
		}
	}
	return false
}

// IsRunDay reports whether t's date is the target weekday of an on week.
func (g Gate) IsRunDay(t time.Time) bool {
	t = g.local(t)
	return t.Weekday() == g.Weekday && g.IsOnWeek(t)
}

// IsOnWeek reports whether t's date lies an even number of whole weeks from
// the reference date, in either direction.
func (g Gate) IsOnWeek(t time.Time) bool {
	weeks := floorDiv(daysBetween(g.Reference, g.local(t)), 7)
	return weeks%2 == 0
}

// WeeksFromReference is the floored whole-week offset of t's date.
func (g Gate) WeeksFromReference(t time.Time) int {
	return floorDiv(daysBetween(g.Reference, g.local(t)), 7)
}

// NextRun returns the first window minute strictly after now, or the zero
// time when no windows are configured.
func (g Gate) NextRun(now time.Time) time.Time {
	if len(g.Windows) == 0 {
		return time.Time{}
	}

	windows := make([]Window, len(g.Windows))
	copy(windows, g.Windows)
	sort.Slice(windows, func(i, j int) bool {
		if windows[i].Hour != windows[j].Hour {
			return windows[i].Hour < windows[j].Hour
		}
		return windows[i].Minute < windows[j].Minute
	})

	now = g.local(now)
	loc := now.Location()
	y, m, d := now.Date()

	// An on-week run day recurs every 14 days, so 15 covers every case.
	for offset := 0; offset <= 15; offset++ {
		day := time.Date(y, m, d+offset, 0, 0, 0, 0, loc)
		if !g.IsRunDay(day) {
			continue
		}
		for _, w := range windows {
			candidate := time.Date(day.Year(), day.Month(), day.Day(), w.Hour, w.Minute, 0, 0, loc)
			if candidate.After(now) {
				return candidate
			}
		}
	}
	return time.Time{}
}

// SlotKey identifies the window minute containing t, used to avoid running
// the same slot twice.
func (g Gate) SlotKey(t time.Time) string {
	return g.local(t).Format("2006-01-02T15:04")
}

func (g Gate) String() string {
	return fmt.Sprintf("every other %s at %v from %s", g.Weekday, g.Windows, g.Reference.Format("2006-01-02"))
}

// daysBetween counts civil days from ref's date to t's date, each date read
// in its own zone.
func daysBetween(ref, t time.Time) int {
	ry, rm, rd := ref.Date()
	ty, tm, td := t.Date()
	a := time.Date(ry, rm, rd, 0, 0, 0, 0, time.UTC)
	b := time.Date(ty, tm, td, 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
