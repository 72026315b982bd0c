package scheduler

import (
	"fmt"
	"math/rand/v2"
	"time"
)

// IntervalSchedule runs a job every Interval, optionally spread by up to
// Jitter so that several workers do not sweep the store in lockstep.
type IntervalSchedule struct {
	Interval time.Duration
	Jitter   time.Duration
}

// NewIntervalSchedule creates a new IntervalSchedule.
func NewIntervalSchedule(interval time.Duration) *IntervalSchedule {
	return &IntervalSchedule{Interval: interval}
}

// WithJitter returns a copy with the given jitter.
func (s IntervalSchedule) WithJitter(d time.Duration) *IntervalSchedule {
	s.Jitter = d
	return &s
}

// Next returns the next scheduled time.
func (s *IntervalSchedule) Next(t time.Time) time.Time {
	next := t.Add(s.Interval)
	if s.Jitter > 0 {
		next = next.Add(rand.N(s.Jitter))
	}
	return next
}

// String returns the string representation of the schedule.
func (s *IntervalSchedule) String() string {
	if s.Jitter > 0 {
		return fmt.Sprintf("@every %s +rand(%s)", s.Interval, s.Jitter)
	}
	return fmt.Sprintf("@every %s", s.Interval)
}
