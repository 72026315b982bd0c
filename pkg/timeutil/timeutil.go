// Package timeutil holds small time helpers shared by the worker surfaces.
package timeutil

import (
	"fmt"
	"time"
)

// Clock returns the current time. Components take one so tests can pin time.
type Clock func() time.Time

// UTC is the production clock.
func UTC() time.Time { return time.Now().UTC() }

// Fixed returns a clock stuck at t.
func Fixed(t time.Time) Clock {
	return func() time.Time { return t }
}

// Stepper returns a clock that starts at t and advances by step on every call.
func Stepper(t time.Time, step time.Duration) Clock {
	cur := t.Add(-step)
	return func() time.Time {
		cur = cur.Add(step)
		return cur
	}
}

// FormatRelative renders t relative to now, e.g. "3m ago" or "in 2h".
// The zero time renders as "never".
func FormatRelative(t, now time.Time) string {
	if t.IsZero() {
		return "never"
	}
	d := now.Sub(t)
	if d < 0 {
		return "in " + compact(-d)
	}
	if d < time.Second {
		return "just now"
	}
	return compact(d) + " ago"
}

// compact renders a duration with its largest unit only.
func compact(d time.Duration) string {
	switch {
	case d < time.Second:
		return "0s"
	case d < time.Minute:
		return fmt.Sprintf("%ds", int(d.Seconds()))
	case d < time.Hour:
		return fmt.Sprintf("%dm", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh", int(d.Hours()))
	default:
		return fmt.Sprintf("%dd", int(d.Hours()/24))
	}
}

// FormatRFC3339 formats t in UTC, or returns "" for the zero time.
func FormatRFC3339(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
