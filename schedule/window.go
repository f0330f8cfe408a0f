// ABOUTME: Single-minute execution windows for the biweekly schedule
// ABOUTME: Parses and formats HH:MM window strings
package schedule

import (
	"fmt"
	"strconv"
	"strings"
)

// Window is one permitted execution minute within a run day.
type Window struct {
	Hour   int
	Minute int
}

// DefaultWindows are the two daily run slots.
var DefaultWindows = []Window{{Hour: 11, Minute: 20}, {Hour: 12, Minute: 0}}

// ParseWindow parses "HH:MM" in 24-hour form.
func ParseWindow(s string) (Window, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return Window{}, fmt.Errorf("invalid window %q: expected HH:MM", s)
	}

	hour, err := strconv.Atoi(hh)
	if err != nil || hour < 0 || hour > 23 {
		return Window{}, fmt.Errorf("invalid window %q: bad hour", s)
	}
	minute, err := strconv.Atoi(mm)
	if err != nil || minute < 0 || minute > 59 {
		return Window{}, fmt.Errorf("invalid window %q: bad minute", s)
	}

	return Window{Hour: hour, Minute: minute}, nil
}

// ParseWindows parses every entry, failing on the first bad one.
func ParseWindows(specs []string) ([]Window, error) {
	windows := make([]Window, 0, len(specs))
	for _, s := range specs {
		w, err := ParseWindow(s)
		if err != nil {
			return nil, err
		}
		windows = append(windows, w)
	}
	return windows, nil
}

func (w Window) String() string {
	return fmt.Sprintf("%02d:%02d", w.Hour, w.Minute)
}

func (w Window) matches(hour, minute int) bool {
	return w.Hour == hour && w.Minute == minute
}
